package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/meridian/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "context [description]",
		Short: "Show the knowledge an event would be analyzed with",
		Long: "Rank knowledge entries against an event (or free text) and greedily pack them " +
			"into a token budget, exactly as the analysis prompt does.",
		Run: runContext,
	}

	cmd.Flags().String("event-id", "", "Use a stored event as the query")
	cmd.Flags().StringSliceP("topics", "t", nil, "Restrict to these topics")
	cmd.Flags().IntP("budget", "b", 1500, "Max tokens in output")

	knowledgeCmd.AddCommand(cmd)
}

func runContext(cmd *cobra.Command, args []string) {
	eventID, _ := cmd.Flags().GetString("event-id")
	topics, _ := cmd.Flags().GetStringSlice("topics")
	budget, _ := cmd.Flags().GetInt("budget")
	query := strings.Join(args, " ")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if eventID != "" {
		e, err := s.GetEvent(cmd.Context(), eventID)
		if err != nil {
			exitErr("context", err)
		}
		query = e.Text()
	}

	result, err := s.Context(cmd.Context(), store.ContextParams{
		Topics: topics,
		Query:  query,
		Budget: budget,
	})
	if err != nil {
		exitErr("context", err)
	}
	printJSON(result)
}
