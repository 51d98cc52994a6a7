// Package precedent retrieves historical cases analogous to an event.
package precedent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rcliao/meridian/internal/embedding"
	"github.com/rcliao/meridian/internal/logger"
	"github.com/rcliao/meridian/internal/model"
	"github.com/rcliao/meridian/internal/scoring"
	"github.com/rcliao/meridian/internal/textutil"
)

// DefaultTopK is the number of precedents returned when k is not positive.
const DefaultTopK = 5

// categoryBoost is added to the keyword score of a case sharing the
// event's category.
const categoryBoost = 5

// CaseStore is the read side of the case library.
type CaseStore interface {
	ListCases(ctx context.Context) ([]model.HistoricalCase, error)
}

// Query describes the event to match. Embedding is optional.
type Query struct {
	Text      string
	Category  string
	Embedding embedding.Vector
}

// QueryFor builds a query from an event.
func QueryFor(e *model.Event) Query {
	return Query{Text: e.Text(), Category: e.Category}
}

// Matcher finds precedents by embedding distance, falling back to keyword
// and category overlap when no embedding can be used.
type Matcher struct {
	store    CaseStore
	embedder embedding.Embedder
	topK     int
}

// NewMatcher creates a matcher. embedder may be nil.
func NewMatcher(s CaseStore, embedder embedding.Embedder, topK int) *Matcher {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Matcher{store: s, embedder: embedder, topK: topK}
}

// FindPrecedents returns up to k ranked cases. Only a failure to read the
// case library is an error; missing embeddings select the keyword path.
func (m *Matcher) FindPrecedents(ctx context.Context, q Query, k int) ([]model.PrecedentMatch, error) {
	if k <= 0 {
		k = m.topK
	}
	cases, err := m.store.ListCases(ctx)
	if err != nil {
		return nil, fmt.Errorf("load case library: %w", err)
	}
	if len(cases) == 0 {
		return []model.PrecedentMatch{}, nil
	}

	vec := q.Embedding
	if len(vec) == 0 && m.embedder != nil && strings.TrimSpace(q.Text) != "" {
		vec, err = m.embedder.Embed(ctx, q.Text)
		if err != nil {
			logger.Log.Warnf("event embedding failed, using keyword match: %v", err)
			vec = nil
		}
	}
	if len(vec) > 0 {
		if matches := byEmbedding(cases, vec, k); len(matches) > 0 {
			return matches, nil
		}
		logger.Log.WithField("dims", len(vec)).Debug("no case embeddings of matching size, using keyword match")
	}
	return byKeywords(cases, q, k), nil
}

// byEmbedding ranks cases that carry an embedding by cosine distance
// ascending, ties by case ID.
func byEmbedding(cases []model.HistoricalCase, vec embedding.Vector, k int) []model.PrecedentMatch {
	type scored struct {
		c    model.HistoricalCase
		dist float64
	}
	var candidates []scored
	for _, c := range cases {
		if len(c.Embedding) == 0 || len(c.Embedding) != len(vec) {
			continue
		}
		candidates = append(candidates, scored{c: c, dist: embedding.CosineDistance(vec, c.Embedding)})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		return candidates[i].c.ID < candidates[j].c.ID
	})

	out := make([]model.PrecedentMatch, 0, min(k, len(candidates)))
	for i, s := range candidates {
		if i == k {
			break
		}
		d := s.dist
		out = append(out, model.PrecedentMatch{
			Case:     stripped(s.c),
			Rank:     i + 1,
			Method:   model.MatchEmbedding,
			Distance: &d,
		})
	}
	return out
}

// byKeywords scores each case by the number of event keywords found in
// its text plus a boost for a shared category. Ties go to the more recent
// case, then the more significant one, then by name and ID.
func byKeywords(cases []model.HistoricalCase, q Query, k int) []model.PrecedentMatch {
	keywords := textutil.Keywords(q.Text)
	category := scoring.NormalizeCategory(q.Category)

	type scored struct {
		c     model.HistoricalCase
		score int
	}
	candidates := make([]scored, len(cases))
	for i, c := range cases {
		text := CaseText(c)
		score := 0
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				score++
			}
		}
		if category != "" && scoring.NormalizeCategory(c.Category) == category {
			score += categoryBoost
		}
		candidates[i] = scored{c: c, score: score}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if ta, tb := occurred(a.c), occurred(b.c); ta != tb {
			return ta > tb
		}
		if sa, sb := significance(a.c), significance(b.c); sa != sb {
			return sa > sb
		}
		if na, nb := strings.ToLower(a.c.Name), strings.ToLower(b.c.Name); na != nb {
			return na < nb
		}
		return a.c.ID < b.c.ID
	})

	out := make([]model.PrecedentMatch, 0, min(k, len(candidates)))
	for i, s := range candidates {
		if i == k {
			break
		}
		score := s.score
		out = append(out, model.PrecedentMatch{
			Case:       stripped(s.c),
			Rank:       i + 1,
			Method:     model.MatchFallback,
			MatchScore: &score,
		})
	}
	return out
}

// CaseText is the lower-cased text a case is matched and embedded by.
func CaseText(c model.HistoricalCase) string {
	parts := []string{c.Name, c.Category}
	parts = append(parts, c.StructuralDrivers...)
	parts = append(parts, c.Lessons...)
	parts = append(parts, c.CounterExamples...)
	parts = append(parts, c.MarketReaction...)
	var b strings.Builder
	for _, p := range parts {
		if p = strings.TrimSpace(p); p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(p)
	}
	return strings.ToLower(b.String())
}

// occurred returns a sortable date key; cases without a date sort last.
func occurred(c model.HistoricalCase) string {
	if c.OccurredOn == nil {
		return ""
	}
	return c.OccurredOn.UTC().Format("2006-01-02")
}

func significance(c model.HistoricalCase) int {
	if c.Significance == nil {
		return 0
	}
	return *c.Significance
}

func stripped(c model.HistoricalCase) model.HistoricalCase {
	c.Embedding = nil
	return c
}

// CaseWriter stores case embeddings.
type CaseWriter interface {
	CaseStore
	SetCaseEmbedding(ctx context.Context, id string, vec embedding.Vector) error
}

// EmbedCases computes embeddings for cases that lack one, or for every
// case when force is set. One failed case never stops the rest.
func EmbedCases(ctx context.Context, s CaseWriter, e embedding.Embedder, force bool) (model.RunReport, error) {
	var report model.RunReport
	if e == nil {
		return report, fmt.Errorf("no embedding provider configured")
	}
	cases, err := s.ListCases(ctx)
	if err != nil {
		return report, fmt.Errorf("load case library: %w", err)
	}
	for _, c := range cases {
		if len(c.Embedding) > 0 && !force {
			report.Skipped++
			continue
		}
		log := logger.Log.WithFields(logrus.Fields{"case_id": c.ID, "case": c.Name})
		vec, err := e.Embed(ctx, CaseText(c))
		if err == nil {
			err = s.SetCaseEmbedding(ctx, c.ID, vec)
		}
		if err != nil {
			report.Failed++
			log.Errorf("embed case failed: %v", err)
			continue
		}
		report.Processed++
		log.Debug("embedded case")
	}
	return report, nil
}
