package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "dismiss [event-id]",
		Short: "Dismiss an event",
		Long:  "Move an event to dismissed. Dismissed events are never analyzed and leave the digest.",
		Args:  cobra.ExactArgs(1),
		Run:   runDismiss,
	}

	eventsCmd.AddCommand(cmd)
}

func runDismiss(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if err := s.Dismiss(cmd.Context(), args[0]); err != nil {
		exitErr("dismiss", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"id":%q,"status":"dismissed"}`+"\n", args[0])
}
