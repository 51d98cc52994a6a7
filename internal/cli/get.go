package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/meridian/internal/model"
	"github.com/rcliao/meridian/internal/scoring"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get [event-id]",
		Short: "Show one event with its score, facts, interpretation and precedents",
		Args:  cobra.ExactArgs(1),
		Run:   runGet,
	}

	eventsCmd.AddCommand(cmd)
}

// eventScore is the score block of an event view.
type eventScore struct {
	Total      int                    `json:"total"`
	Components *model.ScoreComponents `json:"components,omitempty"`
	Band       model.Band             `json:"band"`
	Priority   bool                   `json:"priority_flag"`
}

// eventView keeps raw facts and interpretation as separate fields.
type eventView struct {
	Event          *model.Event           `json:"event"`
	Score          *eventScore            `json:"score"`
	RawFacts       []string               `json:"raw_facts"`
	Interpretation *model.Interpretation  `json:"interpretation"`
	Precedents     []model.PrecedentMatch `json:"precedents"`
}

func runGet(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	e, err := s.GetEvent(cmd.Context(), args[0])
	if err != nil {
		exitErr("get", err)
	}
	precedents, err := s.EventPrecedents(cmd.Context(), e.ID)
	if err != nil {
		exitErr("get precedents", err)
	}

	view := eventView{
		Event:          e,
		RawFacts:       e.RawFacts,
		Interpretation: e.Interpretation,
		Precedents:     precedents,
	}
	if view.RawFacts == nil {
		view.RawFacts = []string{}
	}
	if view.Precedents == nil {
		view.Precedents = []model.PrecedentMatch{}
	}
	if e.Score != nil {
		view.Score = &eventScore{
			Total:      *e.Score,
			Components: e.Components,
			Band:       scoring.New(cfg.Scoring, nil).Band(*e.Score),
			Priority:   e.Priority,
		}
	}

	// The nested event repeats neither group.
	bare := *e
	bare.RawFacts = nil
	bare.Interpretation = nil
	view.Event = &bare

	printJSON(view)
}
