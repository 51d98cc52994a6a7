package cli

import (
	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect and manage events",
}

func init() {
	RootCmd.AddCommand(eventsCmd)
}
