package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/meridian/internal/precedent"
)

func init() {
	cmd := &cobra.Command{
		Use:   "precedents [query]",
		Short: "Find historical precedents",
		Long: "Rank historical cases against free text or a stored event. Embeddings are used when " +
			"both sides have them; otherwise keyword overlap with a category boost.",
		Run: runPrecedents,
	}

	cmd.Flags().String("event-id", "", "Match against a stored event")
	cmd.Flags().String("category", "", "Event category for the keyword boost")
	cmd.Flags().String("embedding-file", "", "JSON array with a precomputed query embedding")
	cmd.Flags().IntP("top", "k", 0, "Number of cases (default: precedent.top_k)")

	RootCmd.AddCommand(cmd)
}

func runPrecedents(cmd *cobra.Command, args []string) {
	eventID, _ := cmd.Flags().GetString("event-id")
	category, _ := cmd.Flags().GetString("category")
	embeddingFile, _ := cmd.Flags().GetString("embedding-file")
	k, _ := cmd.Flags().GetInt("top")

	if eventID == "" && len(args) == 0 {
		exitErr("precedents", fmt.Errorf("a query or --event-id is required"))
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	q := precedent.Query{Text: strings.Join(args, " "), Category: category}
	if eventID != "" {
		e, err := s.GetEvent(cmd.Context(), eventID)
		if err != nil {
			exitErr("precedents", err)
		}
		q = precedent.QueryFor(e)
	}
	if embeddingFile != "" {
		data, err := readInput(embeddingFile)
		if err != nil {
			exitErr("read embedding", err)
		}
		if err := json.Unmarshal(data, &q.Embedding); err != nil {
			exitErr("parse embedding", err)
		}
	}

	matches, err := newMatcher(s).FindPrecedents(cmd.Context(), q, k)
	if err != nil {
		exitErr("precedents", err)
	}
	printJSON(matches)
}
