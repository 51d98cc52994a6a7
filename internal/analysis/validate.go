package analysis

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rcliao/meridian/internal/model"
	"github.com/rcliao/meridian/internal/provider"
	"github.com/rcliao/meridian/internal/textutil"
)

// MaxFactLen is the longest raw fact kept; longer facts are cut on a word.
const MaxFactLen = 280

var directionAliases = map[string]model.Direction{
	"up":        model.DirectionBullish,
	"higher":    model.DirectionBullish,
	"positive":  model.DirectionBullish,
	"bull":      model.DirectionBullish,
	"down":      model.DirectionBearish,
	"lower":     model.DirectionBearish,
	"negative":  model.DirectionBearish,
	"bear":      model.DirectionBearish,
	"flat":      model.DirectionNeutral,
	"mixed":     model.DirectionNeutral,
	"unchanged": model.DirectionNeutral,
	"unknown":   model.DirectionNeutral,
	"none":      model.DirectionNeutral,
}

// parsed is a provider answer after validation. CounterCase is empty when
// the provider left it out.
type parsed struct {
	RawFacts     []string
	Impacts      map[string]model.Impact
	Precedent    string
	CounterCase  string
	Transmission json.RawMessage
}

type wireResponse struct {
	RawFacts     json.RawMessage `json:"raw_facts"`
	Impacts      json.RawMessage `json:"metal_impacts"`
	Precedent    json.RawMessage `json:"historical_precedent"`
	CounterCase  json.RawMessage `json:"counter_case"`
	Transmission json.RawMessage `json:"crypto_transmission"`
}

// parseResponse validates provider output against the interpretation
// contract. Every failure wraps provider.ErrMalformedResponse.
func parseResponse(text string, topics []string) (*parsed, error) {
	var w wireResponse
	if err := json.Unmarshal([]byte(provider.StripFences(text)), &w); err != nil {
		return nil, malformed("response is not a JSON object: %v", err)
	}

	facts, err := parseFacts(w.RawFacts)
	if err != nil {
		return nil, err
	}
	impacts, err := parseImpacts(w.Impacts, topics)
	if err != nil {
		return nil, err
	}

	precedent := optionalString(w.Precedent)
	if precedent == "" {
		precedent = "insufficient data"
	}
	return &parsed{
		RawFacts:     facts,
		Impacts:      impacts,
		Precedent:    precedent,
		CounterCase:  optionalString(w.CounterCase),
		Transmission: w.Transmission,
	}, nil
}

func parseFacts(raw json.RawMessage) ([]string, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, malformed("raw_facts must be a list")
	}
	facts := make([]string, 0, len(items))
	for i, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			return nil, malformed("raw_facts[%d] is not a string", i)
		}
		if s = textutil.CollapseSpace(s); s != "" {
			facts = append(facts, textutil.Truncate(s, MaxFactLen))
		}
	}
	if len(facts) == 0 {
		return nil, malformed("raw_facts must contain at least one fact")
	}
	return facts, nil
}

func parseImpacts(raw json.RawMessage, topics []string) (map[string]model.Impact, error) {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil || entries == nil {
		return nil, malformed("metal_impacts must be an object")
	}
	byTopic := make(map[string]json.RawMessage, len(entries))
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		byTopic[strings.ToLower(strings.TrimSpace(k))] = entries[k]
	}

	out := make(map[string]model.Impact, len(topics))
	for _, topic := range topics {
		entry, ok := byTopic[topic]
		if !ok {
			out[topic] = model.Impact{Direction: model.DirectionNeutral, Magnitude: "unknown", Driver: model.NotProvided}
			continue
		}
		var fields struct {
			Direction json.RawMessage `json:"direction"`
			Magnitude json.RawMessage `json:"magnitude"`
			Driver    json.RawMessage `json:"driver"`
		}
		if err := json.Unmarshal(entry, &fields); err != nil {
			return nil, malformed("metal_impacts.%s must be an object", topic)
		}
		dir, ok := NormalizeDirection(optionalString(fields.Direction))
		if !ok {
			return nil, malformed("metal_impacts.%s.direction %s is not bullish, bearish or neutral", topic, fields.Direction)
		}
		imp := model.Impact{
			Direction: dir,
			Magnitude: optionalString(fields.Magnitude),
			Driver:    optionalString(fields.Driver),
		}
		if imp.Magnitude == "" {
			imp.Magnitude = "unknown"
		}
		if imp.Driver == "" {
			imp.Driver = model.NotProvided
		}
		out[topic] = imp
	}
	return out, nil
}

// NormalizeDirection maps a direction or alias onto the enum.
func NormalizeDirection(s string) (model.Direction, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if model.ValidDirections[model.Direction(s)] {
		return model.Direction(s), true
	}
	d, ok := directionAliases[s]
	return d, ok
}

// optionalString returns a trimmed string value. Numbers and other scalars
// are rendered as text; objects, arrays and null yield "".
func optionalString(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return textutil.CollapseSpace(s)
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n.String()
	}
	return ""
}

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", provider.ErrMalformedResponse, fmt.Sprintf(format, args...))
}
