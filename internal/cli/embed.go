package cli

import (
	"encoding/json"
	"sort"

	"github.com/spf13/cobra"

	"github.com/rcliao/meridian/internal/embedding"
	"github.com/rcliao/meridian/internal/logger"
	"github.com/rcliao/meridian/internal/model"
	"github.com/rcliao/meridian/internal/precedent"
)

func init() {
	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Compute or import case embeddings",
		Long: "Embed cases without an embedding using the configured provider (--force re-embeds all). " +
			"With --file, import precomputed vectors from a JSON object {\"case_id\": [floats], ...}.",
		Run: runEmbed,
	}

	cmd.Flags().Bool("force", false, "Re-embed cases that already have an embedding")
	cmd.Flags().String("file", "", "Import embeddings from a JSON file instead of calling a provider")

	casesCmd.AddCommand(cmd)
}

func runEmbed(cmd *cobra.Command, args []string) {
	force, _ := cmd.Flags().GetBool("force")
	file, _ := cmd.Flags().GetString("file")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if file == "" {
		report, err := precedent.EmbedCases(cmd.Context(), s, newEmbedder(), force)
		if err != nil {
			exitErr("embed", err)
		}
		printJSON(report)
		return
	}

	data, err := readInput(file)
	if err != nil {
		exitErr("read embeddings", err)
	}
	var vectors map[string]embedding.Vector
	if err := json.Unmarshal(data, &vectors); err != nil {
		exitErr("parse embeddings", err)
	}
	ids := make([]string, 0, len(vectors))
	for id := range vectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var report model.RunReport
	for _, id := range ids {
		if err := s.SetCaseEmbedding(cmd.Context(), id, vectors[id]); err != nil {
			report.Failed++
			logger.Log.WithField("case_id", id).Errorf("store embedding failed: %v", err)
			continue
		}
		report.Processed++
	}
	printJSON(report)
}
