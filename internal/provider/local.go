package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rcliao/meridian/internal/model"
	"github.com/rcliao/meridian/internal/textutil"
	"github.com/rcliao/meridian/internal/transmission"
)

const insufficient = "insufficient data"

// Local is a deterministic provider that needs no network. It quotes the
// headline and the first body sentence as facts, cites the top precedent
// and takes transmission from the rule table.
type Local struct {
	ev *transmission.Evaluator
}

// NewLocal creates a local provider. A nil evaluator uses the default rules.
func NewLocal(ev *transmission.Evaluator) *Local {
	if ev == nil {
		ev = transmission.NewEvaluator()
	}
	return &Local{ev: ev}
}

func (l *Local) Name() string { return "local" }

type localResponse struct {
	RawFacts     []string                `json:"raw_facts"`
	Impacts      map[string]model.Impact `json:"metal_impacts"`
	Precedent    string                  `json:"historical_precedent"`
	CounterCase  string                  `json:"counter_case"`
	Transmission model.Transmission      `json:"crypto_transmission"`
}

func (l *Local) Interpret(ctx context.Context, req *Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	e := req.Event

	var facts []string
	headline := textutil.CollapseSpace(e.Headline)
	if headline != "" {
		facts = append(facts, headline)
	}
	if s := textutil.Sentences(e.Body); len(s) > 0 && s[0] != headline {
		facts = append(facts, textutil.Truncate(s[0], 280))
	}
	if len(facts) == 0 {
		facts = []string{insufficient}
	}

	resp := localResponse{
		RawFacts:     facts,
		Impacts:      map[string]model.Impact{},
		Precedent:    insufficient,
		CounterCase:  insufficient,
		Transmission: l.ev.Evaluate(e.Text(), e.Category),
	}
	for _, topic := range req.TopicsOrDefault() {
		resp.Impacts[topic] = model.Impact{
			Direction: model.DirectionNeutral,
			Magnitude: "unknown",
			Driver:    insufficient,
		}
	}
	if len(req.Precedents) > 0 {
		c := req.Precedents[0].Case
		period := c.DateRange
		if period == "" {
			period = "unknown period"
		}
		resp.Precedent = fmt.Sprintf("case_id %s: %s (%s)", c.ID, c.Name, period)
		if len(c.CounterExamples) > 0 {
			resp.CounterCase = c.CounterExamples[0]
		}
	}

	out, err := json.Marshal(resp)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
