package store

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"strings"

	"github.com/rcliao/meridian/internal/model"
	"github.com/rcliao/meridian/internal/textutil"
)

// ContextParams holds parameters for knowledge context assembly.
type ContextParams struct {
	Topics []string // empty means all topics
	Query  string   // event text the entries are ranked against
	Budget int      // max tokens in output (rough proxy: 1 token ≈ 4 chars)
}

// ContextEntry is a scored knowledge entry selected for a prompt.
type ContextEntry struct {
	Topic    string          `json:"topic"`
	Category string          `json:"category"`
	Content  json.RawMessage `json:"content"`
	Score    float64         `json:"score"`
}

// ContextResult is the assembled knowledge slice.
type ContextResult struct {
	Budget  int            `json:"budget"`
	Used    int            `json:"used"`
	Skipped int            `json:"skipped"`
	Entries []ContextEntry `json:"entries"`
}

// Knowledge returns the entries as plain knowledge records.
func (r *ContextResult) Knowledge() []model.KnowledgeEntry {
	out := make([]model.KnowledgeEntry, len(r.Entries))
	for i, e := range r.Entries {
		out[i] = model.KnowledgeEntry{Topic: e.Topic, Category: e.Category, Content: e.Content}
	}
	return out
}

// Context selects the knowledge entries most relevant to an event within a
// token budget. Ranking is deterministic: score, then topic, then category.
// An entry that does not fit is skipped whole, never cut.
func (s *SQLiteStore) Context(ctx context.Context, p ContextParams) (*ContextResult, error) {
	budget := p.Budget
	if budget <= 0 {
		budget = 1500
	}
	charBudget := budget * 4

	entries, err := s.ListKnowledge(ctx, "")
	if err != nil {
		return nil, err
	}

	want := map[string]bool{}
	for _, t := range p.Topics {
		want[strings.ToLower(t)] = true
	}
	keywords := textutil.Keywords(p.Query)

	var candidates []ContextEntry
	for _, e := range entries {
		if len(want) > 0 && !want[e.Topic] {
			continue
		}
		// Relevance: share of event keywords found in the entry
		relevance := 0.0
		if len(keywords) > 0 {
			text := strings.ToLower(string(e.Content))
			hits := 0
			for _, k := range keywords {
				if strings.Contains(text, k) {
					hits++
				}
			}
			relevance = float64(hits) / float64(len(keywords))
		}
		score := relevance*0.6 + categoryWeight(e.Category)*0.4
		candidates = append(candidates, ContextEntry{
			Topic:    e.Topic,
			Category: e.Category,
			Content:  e.Content,
			Score:    math.Round(score*100) / 100,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Topic != b.Topic {
			return a.Topic < b.Topic
		}
		return a.Category < b.Category
	})

	// Greedy packing into budget
	result := &ContextResult{Budget: budget, Entries: []ContextEntry{}}
	used := 0
	for _, c := range candidates {
		if used+len(c.Content) > charBudget {
			result.Skipped++
			continue
		}
		result.Entries = append(result.Entries, c)
		used += len(c.Content)
	}

	result.Used = used / 4
	return result, nil
}

func categoryWeight(category string) float64 {
	switch category {
	case "patterns":
		return 1.0
	case "correlations":
		return 0.9
	case "actors":
		return 0.7
	case "supply_chain":
		return 0.6
	case "use_cases":
		return 0.5
	default:
		return 0.5
	}
}
