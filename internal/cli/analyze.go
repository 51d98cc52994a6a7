package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/meridian/internal/analysis"
	"github.com/rcliao/meridian/internal/provider"
)

func init() {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Interpret priority events",
		Long: "Interpret scored priority events, highest score first. Already analyzed events are " +
			"left untouched unless --overwrite is set.",
		Run: runAnalyze,
	}

	cmd.Flags().String("event-id", "", "Analyze only this event")
	cmd.Flags().IntP("limit", "l", 0, "Max events to analyze (default: analysis.batch_limit)")
	cmd.Flags().Bool("overwrite", false, "Re-analyze events that already carry an interpretation")
	cmd.Flags().Bool("dry-run", false, "Call the provider and validate without saving")
	cmd.Flags().Bool("print-prompts", false, "Print each prompt to stderr")

	RootCmd.AddCommand(cmd)
}

func runAnalyze(cmd *cobra.Command, args []string) {
	eventID, _ := cmd.Flags().GetString("event-id")
	limit, _ := cmd.Flags().GetInt("limit")
	overwrite, _ := cmd.Flags().GetBool("overwrite")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	printPrompts, _ := cmd.Flags().GetBool("print-prompts")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	o, err := newOrchestrator(cmd.Context(), s)
	if err != nil {
		exitErr("provider", err)
	}

	report, err := o.AnalyzePending(cmd.Context(), analysis.BatchOptions{
		Limit:      limit,
		Overwrite:  overwrite,
		DryRun:     dryRun,
		EventID:    eventID,
		KeepPrompt: printPrompts,
	})
	if err != nil {
		exitErr("analyze", err)
	}

	if printPrompts {
		for _, out := range report.Outcomes {
			if out.Prompt == "" {
				continue
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "=== prompt %s ===\n[system] %s\n\n%s\n", out.EventID, provider.SystemPrompt, out.Prompt)
			out.Prompt = ""
		}
	}
	printJSON(report)
}
