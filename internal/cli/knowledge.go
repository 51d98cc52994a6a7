package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/meridian/internal/store"
)

var knowledgeCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "Manage the knowledge base",
}

var casesCmd = &cobra.Command{
	Use:   "cases",
	Short: "Manage the historical case library",
}

func init() {
	topicsCmd := &cobra.Command{
		Use:   "topics",
		Short: "List knowledge topics and their categories",
		Run:   runTopics,
	}

	knowledgeCmd.AddCommand(topicsCmd)
	RootCmd.AddCommand(knowledgeCmd, casesCmd)
}

func runTopics(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	topics, err := s.Topics(cmd.Context())
	if err != nil {
		exitErr("list topics", err)
	}
	if topics == nil {
		topics = []store.TopicStats{}
	}
	printJSON(topics)
}
