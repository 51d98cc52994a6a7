package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/meridian/internal/model"
	"github.com/rcliao/meridian/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List events",
		Run:   runList,
	}

	cmd.Flags().Bool("priority", false, "Only priority events")
	cmd.Flags().Int("min-score", -1, "Minimum score")
	cmd.Flags().Int("max-score", -1, "Maximum score")
	cmd.Flags().String("status", "", "Filter by status (comma-separated: new, scored, analyzed, dismissed)")
	cmd.Flags().String("since", "", "Published at or after (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().String("until", "", "Published before (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().IntP("limit", "l", 20, "Max results")
	cmd.Flags().Bool("headlines", false, "Only output id, score and headline")

	eventsCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	priority, _ := cmd.Flags().GetBool("priority")
	minScore, _ := cmd.Flags().GetInt("min-score")
	maxScore, _ := cmd.Flags().GetInt("max-score")
	statusStr, _ := cmd.Flags().GetString("status")
	since, _ := cmd.Flags().GetString("since")
	until, _ := cmd.Flags().GetString("until")
	limit, _ := cmd.Flags().GetInt("limit")
	headlines, _ := cmd.Flags().GetBool("headlines")

	p := store.ListEventsParams{PriorityOnly: priority, Limit: limit}
	if statusStr != "" {
		for _, st := range strings.Split(statusStr, ",") {
			status, err := model.ParseStatus(strings.TrimSpace(st))
			if err != nil {
				exitErr("list", err)
			}
			p.Statuses = append(p.Statuses, status)
		}
	}
	if minScore >= 0 {
		p.MinScore = &minScore
	}
	if maxScore >= 0 {
		p.MaxScore = &maxScore
	}
	var err error
	if p.Since, err = parseTimeFlag(since); err != nil {
		exitErr("parse --since", err)
	}
	if p.Until, err = parseTimeFlag(until); err != nil {
		exitErr("parse --until", err)
	}
	if p.MinScore != nil || p.MaxScore != nil {
		p.Order = store.OrderScore
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	events, err := s.ListEvents(cmd.Context(), p)
	if err != nil {
		exitErr("list", err)
	}

	if headlines {
		for _, e := range events {
			score := "  -"
			if e.Score != nil {
				score = fmt.Sprintf("%3d", *e.Score)
			}
			fmt.Printf("%s %s %s\n", e.ID, score, e.Headline)
		}
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	printJSON(events)
}

func parseTimeFlag(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", v, cfg.Location())
}
