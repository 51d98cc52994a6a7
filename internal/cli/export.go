package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/meridian/internal/model"
)

func init() {
	knowledgeExport := &cobra.Command{
		Use:   "export",
		Short: "Export knowledge as JSON",
		Long:  "Export knowledge entries as a JSON array of {topic, category, content}. Filter with --topic.",
		Run:   runKnowledgeExport,
	}
	knowledgeExport.Flags().String("topic", "", "Only this topic")

	casesExport := &cobra.Command{
		Use:   "export",
		Short: "Export the case library as JSON",
		Run:   runCasesExport,
	}
	casesExport.Flags().Bool("embeddings", false, "Include stored embeddings")

	knowledgeCmd.AddCommand(knowledgeExport)
	casesCmd.AddCommand(casesExport)
}

func runKnowledgeExport(cmd *cobra.Command, args []string) {
	topic, _ := cmd.Flags().GetString("topic")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	entries, err := s.ListKnowledge(cmd.Context(), topic)
	if err != nil {
		exitErr("export", err)
	}
	if entries == nil {
		entries = []model.KnowledgeEntry{}
	}
	printJSON(entries)
}

func runCasesExport(cmd *cobra.Command, args []string) {
	withEmbeddings, _ := cmd.Flags().GetBool("embeddings")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	seed, err := s.ExportSeed(cmd.Context(), withEmbeddings)
	if err != nil {
		exitErr("export", err)
	}
	printJSON(seed.Cases)
}
