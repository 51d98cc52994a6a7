// Package store persists events, reference material and digests in SQLite.
package store

import (
	"errors"
	"time"

	"github.com/rcliao/meridian/internal/model"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a guarded write finds the row in an
	// unexpected state (wrong status, lease held by someone else).
	ErrConflict = errors.New("conflict")
)

// UpsertEventParams holds the intake fields of an event.
type UpsertEventParams struct {
	DedupKey     string
	Source       string
	Headline     string
	Body         string
	URL          string
	PublishedAt  time.Time
	DiscoveredAt time.Time
}

// EventOrder selects the sort order of ListEvents.
type EventOrder int

const (
	// OrderRecent sorts by publish time, newest first.
	OrderRecent EventOrder = iota
	// OrderOldestFirst sorts by discovery time, oldest first. Batch jobs use it.
	OrderOldestFirst
	// OrderScore sorts by score desc, publish time desc, then ID.
	OrderScore
)

// ListEventsParams holds filters for listing events. Since/Until bound
// the publish time as [Since, Until).
type ListEventsParams struct {
	Statuses     []model.Status
	PriorityOnly bool
	MinScore     *int
	MaxScore     *int
	Since        time.Time
	Until        time.Time
	Limit        int // 0 means 20, negative means no limit
	Order        EventOrder
}

// SaveScoreParams holds a scorer result for one event.
type SaveScoreParams struct {
	ID         string
	Score      int
	Components model.ScoreComponents
	Priority   bool
	Category   string
	Regions    []string
	Entities   []string
}

// SaveAnalysisParams holds a validated interpretation for one event.
type SaveAnalysisParams struct {
	ID         string
	Result     model.InterpretationResult
	Precedents []model.PrecedentMatch
	Overwrite  bool
	LeaseToken string // when set, the analysis lease must still be this one
}

// DigestRecord is one stored digest row.
type DigestRecord struct {
	Period      string    `json:"period"`
	Timezone    string    `json:"timezone"`
	Content     []byte    `json:"-"`
	Text        string    `json:"-"`
	Fingerprint string    `json:"fingerprint"`
	GeneratedAt time.Time `json:"generated_at"`
}
