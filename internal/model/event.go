// Package model defines the core analysis data types.
package model

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of an event.
type Status string

const (
	StatusNew       Status = "new"
	StatusScored    Status = "scored"
	StatusAnalyzed  Status = "analyzed"
	StatusDismissed Status = "dismissed"
)

// ValidStatuses are the allowed lifecycle states.
var ValidStatuses = map[Status]bool{
	StatusNew:       true,
	StatusScored:    true,
	StatusAnalyzed:  true,
	StatusDismissed: true,
}

// transitions lists, for each target status, the statuses it may be entered from.
// analyzed -> analyzed is the overwrite re-run.
var transitions = map[Status][]Status{
	StatusScored:    {StatusNew},
	StatusAnalyzed:  {StatusScored, StatusAnalyzed},
	StatusDismissed: {StatusNew, StatusScored, StatusAnalyzed},
}

// CanTransition reports whether an event may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[to] {
		if s == from {
			return true
		}
	}
	return false
}

// SourcesFor returns the statuses an event may be in before entering to.
func SourcesFor(to Status) []Status {
	return append([]Status(nil), transitions[to]...)
}

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !ValidStatuses[st] {
		return "", fmt.Errorf("invalid status %q (valid: new, scored, analyzed, dismissed)", s)
	}
	return st, nil
}

// ScoreComponents holds the four named sub-scores, each 0-100.
type ScoreComponents struct {
	Structural   int `json:"structural"`
	Transmission int `json:"transmission"`
	Historical   int `json:"historical"`
	Attention    int `json:"attention"`
}

// Band is the display tier of a score. It is never stored.
type Band string

const (
	BandPriority   Band = "priority"
	BandMonitoring Band = "monitoring"
	BandLogged     Band = "logged"
)

// BandFor classifies a score against the priority and monitoring thresholds.
func BandFor(score, priorityThreshold, monitoringThreshold int) Band {
	switch {
	case score >= priorityThreshold:
		return BandPriority
	case score >= monitoringThreshold:
		return BandMonitoring
	default:
		return BandLogged
	}
}

// Event is one detected occurrence from a source feed.
type Event struct {
	ID           string    `json:"id"`
	DedupKey     string    `json:"dedup_key"`
	Source       string    `json:"source"`
	Headline     string    `json:"headline"`
	Body         string    `json:"body,omitempty"`
	URL          string    `json:"url,omitempty"`
	PublishedAt  time.Time `json:"published_at"`
	DiscoveredAt time.Time `json:"discovered_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Category string   `json:"category,omitempty"`
	Regions  []string `json:"regions,omitempty"`
	Entities []string `json:"entities,omitempty"`

	Score      *int             `json:"significance_score,omitempty"`
	Components *ScoreComponents `json:"score_components,omitempty"`
	Priority   bool             `json:"priority_flag"`

	// RawFacts and Interpretation are kept apart on purpose; nothing
	// may merge them into one field.
	RawFacts       []string        `json:"raw_facts,omitempty"`
	Interpretation *Interpretation `json:"interpretation,omitempty"`

	Status     Status     `json:"status"`
	AnalyzedAt *time.Time `json:"analyzed_at,omitempty"`
}

// Text returns headline and body joined for keyword matching.
func (e *Event) Text() string {
	if e.Body == "" {
		return e.Headline
	}
	return e.Headline + " " + e.Body
}

// Analyzed reports whether the event carries a stored interpretation.
func (e *Event) Analyzed() bool {
	return e.Status == StatusAnalyzed && e.Interpretation != nil
}

// RunReport summarizes a batch run. Nothing is allowed to fail silently:
// every unit of work lands in exactly one of Processed, Failed or Skipped.
type RunReport struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Retried   int `json:"retried"`
	Skipped   int `json:"skipped"`
}

// Add folds another report into r.
func (r *RunReport) Add(o RunReport) {
	r.Processed += o.Processed
	r.Failed += o.Failed
	r.Retried += o.Retried
	r.Skipped += o.Skipped
}

func (r RunReport) String() string {
	return fmt.Sprintf("processed=%d failed=%d retried=%d skipped=%d", r.Processed, r.Failed, r.Retried, r.Skipped)
}
