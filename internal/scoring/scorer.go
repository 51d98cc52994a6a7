// Package scoring rates events 0-100 for significance and flags the ones
// that deserve full interpretation.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rcliao/meridian/internal/config"
	"github.com/rcliao/meridian/internal/logger"
	"github.com/rcliao/meridian/internal/model"
	"github.com/rcliao/meridian/internal/store"
	"github.com/rcliao/meridian/internal/textutil"
)

// Store is the persistence the scorer needs.
type Store interface {
	ListEvents(ctx context.Context, p store.ListEventsParams) ([]model.Event, error)
	Topics(ctx context.Context) ([]store.TopicStats, error)
	SaveScore(ctx context.Context, p store.SaveScoreParams) error
}

// Result is the score of one event.
type Result struct {
	Total      int                   `json:"significance_score"`
	Components model.ScoreComponents `json:"score_components"`
	// Weighted holds each component's share of the total in points.
	Weighted model.ScoreComponents `json:"weighted_components"`
	Priority bool                  `json:"priority_flag"`
	Band     model.Band            `json:"band"`
	Category string                `json:"category"`
	Regions  []string              `json:"regions"`
	Entities []string              `json:"entities"`
}

// EventScore pairs an event with its result in a batch summary.
type EventScore struct {
	EventID  string `json:"event_id"`
	Headline string `json:"headline"`
	Result   Result `json:"result"`
}

// Summary is the outcome of ScorePending.
type Summary struct {
	model.RunReport
	Priority   int          `json:"priority"`
	Monitoring int          `json:"monitoring"`
	Logged     int          `json:"logged"`
	DryRun     bool         `json:"dry_run"`
	Scores     []EventScore `json:"scores"`
}

// Scorer computes significance scores.
type Scorer struct {
	cfg   config.ScoringConfig
	store Store
}

// New creates a scorer. Unset (zero) weights or thresholds fall back to the
// defaults; config.Validate rejects a configured zero before it gets here.
func New(cfg config.ScoringConfig, s Store) *Scorer {
	def := config.Default().Scoring
	if cfg.Weights.Sum() <= 0 {
		cfg.Weights = def.Weights
	}
	if cfg.PriorityThreshold <= 0 {
		cfg.PriorityThreshold = def.PriorityThreshold
	}
	if cfg.MonitoringThreshold <= 0 {
		cfg.MonitoringThreshold = def.MonitoringThreshold
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = def.BatchLimit
	}
	return &Scorer{cfg: cfg, store: s}
}

// Band classifies a total with the configured thresholds.
func (s *Scorer) Band(total int) model.Band {
	return model.BandFor(total, s.cfg.PriorityThreshold, s.cfg.MonitoringThreshold)
}

// Score rates one event. topics are the knowledge topics whose mention
// raises transmission plausibility; empty means gold, silver and copper.
// The result depends only on the event text, its category, regions,
// entities and source, and on topics.
func (s *Scorer) Score(e *model.Event, topics []string) Result {
	text := strings.ToLower(e.Text())
	category := NormalizeCategory(e.Category)
	if category == "" {
		category = InferCategory(text)
	}
	regions := ExtractRegions(e.Text(), e.Regions)
	entities := ExtractEntities(text, e.Entities)

	nMajorRegions := 0
	for _, r := range regions {
		if majorRegions[r] {
			nMajorRegions++
		}
	}
	nMajorEntities := 0
	for _, en := range entities {
		if majorEntities[en] {
			nMajorEntities++
		}
	}

	structural := lookup(structuralBase, category, defaultStructural) +
		min(25, 8*nMajorRegions) + min(15, 5*nMajorEntities)

	topicTerms := topicTerms(topics)
	transmission := lookup(transmissionBase, category, defaultTransmission)
	if textutil.ContainsAny(text, topicTerms) {
		transmission += 20
	}
	if textutil.ContainsAny(text, macroTerms) {
		transmission += 10
	}
	if textutil.ContainsAny(text, supplyTerms) {
		transmission += 10
	}
	if nMajorEntities > 0 {
		transmission += 5
	}

	historical := lookup(historicalBase, category, defaultHistorical) + min(10, 5*nMajorRegions)
	if textutil.ContainsAny(text, historicalTerms) {
		historical += 10
	}

	attention := lookup(sourceAttentionBase, strings.ToLower(e.Source), defaultAttention)
	if textutil.ContainsAny(text, attentionTerms) {
		attention += 15
	}
	if nMajorRegions >= 2 {
		attention += 5
	}
	if nMajorEntities >= 2 {
		attention += 5
	}

	c := model.ScoreComponents{
		Structural:   clamp(structural),
		Transmission: clamp(transmission),
		Historical:   clamp(historical),
		Attention:    clamp(attention),
	}
	total := Total(c, s.cfg.Weights)
	return Result{
		Total:      total,
		Components: c,
		Weighted:   Weighted(c, s.cfg.Weights),
		Priority:   total >= s.cfg.PriorityThreshold,
		Band:       s.Band(total),
		Category:   category,
		Regions:    regions,
		Entities:   entities,
	}
}

// Total combines components by weight, rounded half up and clamped to [0,100].
func Total(c model.ScoreComponents, w config.Weights) int {
	sum := w.Sum()
	if sum <= 0 {
		return 0
	}
	raw := c.Structural*w.Structural + c.Transmission*w.Transmission +
		c.Historical*w.Historical + c.Attention*w.Attention
	return clamp((2*raw + sum) / (2 * sum))
}

// Weighted returns each component's contribution to the total in points.
func Weighted(c model.ScoreComponents, w config.Weights) model.ScoreComponents {
	sum := w.Sum()
	if sum <= 0 {
		return model.ScoreComponents{}
	}
	share := func(v, weight int) int { return (2*v*weight + sum) / (2 * sum) }
	return model.ScoreComponents{
		Structural:   share(c.Structural, w.Structural),
		Transmission: share(c.Transmission, w.Transmission),
		Historical:   share(c.Historical, w.Historical),
		Attention:    share(c.Attention, w.Attention),
	}
}

// ScorePending scores up to limit events in status new, oldest first.
// When the knowledge topics cannot be loaded no event is touched and all
// of them count as failed. A failed write leaves that event new.
func (s *Scorer) ScorePending(ctx context.Context, limit int, dryRun bool) (*Summary, error) {
	if limit <= 0 {
		limit = s.cfg.BatchLimit
	}
	events, err := s.store.ListEvents(ctx, store.ListEventsParams{
		Statuses: []model.Status{model.StatusNew},
		Limit:    limit,
		Order:    store.OrderOldestFirst,
	})
	if err != nil {
		return nil, fmt.Errorf("list new events: %w", err)
	}

	sum := &Summary{DryRun: dryRun, Scores: []EventScore{}}
	if len(events) == 0 {
		return sum, nil
	}

	stats, err := s.store.Topics(ctx)
	if err != nil {
		sum.Failed = len(events)
		logger.Log.WithField("events", len(events)).Errorf("knowledge lookup failed, events stay new: %v", err)
		return sum, fmt.Errorf("load knowledge topics: %w", err)
	}
	topics := make([]string, len(stats))
	for i, t := range stats {
		topics[i] = t.Topic
	}

	for i := range events {
		e := &events[i]
		if ctx.Err() != nil {
			sum.Skipped += len(events) - i
			logger.Log.WithField("remaining", len(events)-i).Warn("scoring batch cancelled")
			break
		}
		r := s.Score(e, topics)
		log := logger.Log.WithFields(logrus.Fields{
			"event_id": e.ID,
			"score":    r.Total,
			"band":     r.Band,
		})

		if !dryRun {
			err := s.store.SaveScore(ctx, store.SaveScoreParams{
				ID:         e.ID,
				Score:      r.Total,
				Components: r.Components,
				Priority:   r.Priority,
				Category:   r.Category,
				Regions:    r.Regions,
				Entities:   r.Entities,
			})
			if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNotFound) {
				sum.Skipped++
				log.Infof("event no longer new, skipped: %v", err)
				continue
			}
			if err != nil {
				sum.Failed++
				log.Errorf("save score failed: %v", err)
				continue
			}
		}

		sum.Processed++
		switch r.Band {
		case model.BandPriority:
			sum.Priority++
		case model.BandMonitoring:
			sum.Monitoring++
		default:
			sum.Logged++
		}
		sum.Scores = append(sum.Scores, EventScore{EventID: e.ID, Headline: e.Headline, Result: r})
		log.Debug("scored event")
	}

	logger.Log.WithFields(logrus.Fields{
		"priority":   sum.Priority,
		"monitoring": sum.Monitoring,
		"logged":     sum.Logged,
		"dry_run":    dryRun,
	}).Infof("scoring run: %s", sum.RunReport)
	return sum, nil
}

// NormalizeCategory lower-cases a category, turns dashes and spaces into
// underscores and resolves aliases.
func NormalizeCategory(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	c = strings.NewReplacer("-", "_", " ", "_").Replace(c)
	if canon, ok := categoryAliases[c]; ok {
		return canon
	}
	return c
}

// InferCategory picks a category from lower-cased event text. Crisis terms
// win over monetary, then geopolitical, supply and economic data.
func InferCategory(text string) string {
	switch {
	case textutil.ContainsAny(text, crisisTerms):
		return CategoryFinancialCrisis
	case textutil.ContainsAny(text, monetaryTerms):
		return CategoryMonetaryPolicy
	case textutil.ContainsAny(text, geopoliticalTerms):
		return CategoryGeopolitical
	case textutil.ContainsAny(text, supplyTerms):
		return CategorySupplyShock
	case textutil.ContainsAny(text, econDataTerms):
		return CategoryEconomicData
	default:
		return ""
	}
}

type alias struct {
	re    *regexp.Regexp
	canon string
}

var (
	regionMatchers = buildMatchers(regionAliases, true)
	entityMatchers = buildMatchers(entityAliases, false)
)

// buildMatchers compiles one bounded pattern per alias. When shortCase is
// set, aliases of up to four characters match case-sensitively.
func buildMatchers(aliases map[string]string, shortCase bool) []alias {
	keys := make([]string, 0, len(aliases))
	for k := range aliases {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]alias, 0, len(keys))
	for _, k := range keys {
		flags := "(?i)"
		if shortCase && len(k) <= 4 {
			flags = ""
		}
		re := regexp.MustCompile(flags + `(^|[^A-Za-z0-9])` + regexp.QuoteMeta(k) + `($|[^A-Za-z0-9])`)
		out = append(out, alias{re: re, canon: aliases[k]})
	}
	return out
}

// ExtractRegions returns the sorted region codes named in text plus the
// given regions, normalized through the alias table.
func ExtractRegions(text string, given []string) []string {
	set := map[string]bool{}
	for _, r := range given {
		r = strings.ToUpper(strings.TrimSpace(r))
		if canon, ok := regionAliases[r]; ok {
			r = canon
		}
		if r != "" {
			set[r] = true
		}
	}
	for _, m := range regionMatchers {
		if m.re.MatchString(text) {
			set[m.canon] = true
		}
	}
	return sortedSet(set)
}

// ExtractEntities returns the sorted institution codes named in text plus
// the given entities.
func ExtractEntities(text string, given []string) []string {
	set := map[string]bool{}
	for _, en := range given {
		en = strings.ToLower(strings.TrimSpace(en))
		if canon, ok := entityAliases[en]; ok {
			en = canon
		}
		if en != "" {
			set[en] = true
		}
	}
	for _, m := range entityMatchers {
		if m.re.MatchString(text) {
			set[m.canon] = true
		}
	}
	return sortedSet(set)
}

func topicTerms(topics []string) []string {
	terms := append([]string(nil), metalTerms...)
	if len(topics) == 0 {
		return append(terms, defaultTopicTerms...)
	}
	for _, t := range topics {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}

func lookup(table map[string]int, key string, def int) int {
	if v, ok := table[key]; ok {
		return v
	}
	return def
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
