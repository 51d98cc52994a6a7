package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Show the daily briefing",
		Long: "Show the digest for a day, assembling it on first request or when its priority " +
			"events changed. --refresh always reassembles.",
		Run: runDigest,
	}

	cmd.Flags().String("date", "", "Day as YYYY-MM-DD in digest.timezone (default: today)")
	cmd.Flags().Bool("refresh", false, "Reassemble even when nothing changed")
	cmd.Flags().Bool("text", false, "Print the rendered briefing instead of JSON")

	RootCmd.AddCommand(cmd)
}

func runDigest(cmd *cobra.Command, args []string) {
	date, _ := cmd.Flags().GetString("date")
	refresh, _ := cmd.Flags().GetBool("refresh")
	text, _ := cmd.Flags().GetBool("text")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	a, err := newAssembler(s)
	if err != nil {
		exitErr("digest", err)
	}
	day, err := a.ParseDay(date)
	if err != nil {
		exitErr("digest", err)
	}

	get := a.Get
	if refresh {
		get = a.Refresh
	}
	d, err := get(cmd.Context(), day)
	if err != nil {
		exitErr("digest", err)
	}

	if text {
		fmt.Println(d.Snapshot.Text)
		return
	}
	fmt.Println(string(d.Content))
}
