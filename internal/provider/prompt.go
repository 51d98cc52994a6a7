package provider

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rcliao/meridian/internal/model"
	"github.com/rcliao/meridian/internal/textutil"
)

// SystemPrompt is sent as the system message to chat providers.
const SystemPrompt = "You are a macro analyst. Produce JSON only."

const bodyBudget = 4000

const instructions = `Return a JSON object with these keys:
- raw_facts: list of short, literal facts drawn only from EVENT_JSON. No interpretation.
- metal_impacts: object keyed by %TOPICS% with direction (bullish/bearish/neutral), magnitude, driver.
- historical_precedent: reference case ids from HISTORICAL_CASES_JSON.
- counter_case: plausible counter-case to the main interpretation. Required.
- crypto_transmission: object with exists (bool), path (string),
  strength (strong/moderate/weak/none), relevant_assets (list).

If data is missing, say "insufficient data". Do not include extra keys.
Avoid signal-bot tone; keep language thesis-supportive.`

type promptEvent struct {
	ID           string    `json:"id"`
	Source       string    `json:"source"`
	Headline     string    `json:"headline"`
	FullText     string    `json:"full_text,omitempty"`
	PublishedAt  time.Time `json:"published_at"`
	EventType    string    `json:"event_type,omitempty"`
	Regions      []string  `json:"regions,omitempty"`
	Entities     []string  `json:"entities,omitempty"`
	Significance *int      `json:"significance_score,omitempty"`
}

type promptCase struct {
	ID              string                  `json:"id"`
	Name            string                  `json:"event_name"`
	DateRange       string                  `json:"date_range"`
	EventType       string                  `json:"event_type,omitempty"`
	Significance    *int                    `json:"significance_score,omitempty"`
	Impacts         map[string]model.Impact `json:"metal_impacts,omitempty"`
	Lessons         []string                `json:"lessons,omitempty"`
	CounterExamples []string                `json:"counter_examples,omitempty"`
}

// BuildPrompt renders the user prompt for a request. The output depends
// only on the request. SystemPrompt is not included.
func BuildPrompt(req *Request) string {
	e := req.Event
	ev := promptEvent{
		ID:           e.ID,
		Source:       e.Source,
		Headline:     e.Headline,
		FullText:     textutil.Lead(e.Body, bodyBudget),
		PublishedAt:  e.PublishedAt.UTC(),
		EventType:    e.Category,
		Regions:      e.Regions,
		Entities:     e.Entities,
		Significance: e.Score,
	}

	knowledge := map[string]map[string]json.RawMessage{}
	for _, k := range req.Knowledge {
		if knowledge[k.Topic] == nil {
			knowledge[k.Topic] = map[string]json.RawMessage{}
		}
		knowledge[k.Topic][k.Category] = k.Content
	}

	cases := make([]promptCase, 0, len(req.Precedents))
	for _, p := range req.Precedents {
		c := p.Case
		cases = append(cases, promptCase{
			ID:              c.ID,
			Name:            c.Name,
			DateRange:       c.DateRange,
			EventType:       c.Category,
			Significance:    c.Significance,
			Impacts:         c.Impacts,
			Lessons:         c.Lessons,
			CounterExamples: c.CounterExamples,
		})
	}

	var b strings.Builder
	if req.Note != "" {
		b.WriteString("CORRECTION: " + req.Note + "\n\n")
	}
	b.WriteString(strings.Replace(instructions, "%TOPICS%", strings.Join(req.TopicsOrDefault(), "/"), 1))
	writeBlock(&b, "EVENT_JSON", ev)
	writeBlock(&b, "KNOWLEDGE_JSON", knowledge)
	writeBlock(&b, "HISTORICAL_CASES_JSON", cases)
	return b.String()
}

func writeBlock(b *strings.Builder, label string, v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		data = []byte("null")
	}
	b.WriteString("\n\n" + label + ":\n")
	b.Write(data)
	b.WriteString("\n")
}
