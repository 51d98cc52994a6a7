package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/meridian/internal/scoring"
)

func init() {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score new events",
		Long:  "Score every event in status new, oldest first, and flag priority events.",
		Run:   runScore,
	}

	cmd.Flags().IntP("limit", "l", 0, "Max events to score (default: scoring.batch_limit)")
	cmd.Flags().Bool("dry-run", false, "Compute scores without saving them")

	RootCmd.AddCommand(cmd)
}

func runScore(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	sum, err := scoring.New(cfg.Scoring, s).ScorePending(cmd.Context(), limit, dryRun)
	if sum != nil {
		printJSON(sum)
	}
	if err != nil {
		exitErr("score", err)
	}
}
