package model

import (
	"encoding/json"
	"time"
)

// DigestEvent is a copy of a priority event as it appears in a digest.
type DigestEvent struct {
	ID            string        `json:"id"`
	Source        string        `json:"source"`
	Headline      string        `json:"headline"`
	PublishedAt   time.Time     `json:"published_at"`
	Score         int           `json:"score"`
	Band          Band          `json:"band"`
	AnalysisReady bool          `json:"analysis_ready"`
	CounterCase   string        `json:"counter_case,omitempty"`
	Transmission  *Transmission `json:"crypto_transmission,omitempty"`
}

// Section wraps an externally supplied snapshot. A missing or failed source
// yields Available=false with a Note instead of vanishing.
type Section struct {
	Available bool            `json:"available"`
	Note      string          `json:"note,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// MarketSnapshot is the externally supplied market/price view for a day.
type MarketSnapshot struct {
	AsOf    string             `json:"as_of,omitempty"`
	Prices  map[string]Quote   `json:"prices,omitempty"`
	Ratios  map[string]float64 `json:"ratios,omitempty"`
	Regimes map[string]string  `json:"regimes,omitempty"`
}

// Quote is one instrument's latest level.
type Quote struct {
	Price         float64  `json:"price"`
	ChangePercent *float64 `json:"change_percent,omitempty"`
}

// CalendarEntry is one scheduled macro release.
type CalendarEntry struct {
	Name     string    `json:"event_name"`
	At       time.Time `json:"event_date"`
	Region   string    `json:"region,omitempty"`
	Impact   string    `json:"impact_level,omitempty"`
	Expected string    `json:"expected_value,omitempty"`
	Actual   string    `json:"actual_value,omitempty"`
}

// ThesisSummary is an opaque tracked-idea status line.
type ThesisSummary struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Status        string     `json:"status"`
	Asset         string     `json:"asset,omitempty"`
	ChangePercent *float64   `json:"price_change_percent,omitempty"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

// DigestSnapshot is the deterministic rollup for one period.
type DigestSnapshot struct {
	Period         string        `json:"digest_date"`
	Timezone       string        `json:"timezone"`
	WindowStart    time.Time     `json:"window_start"`
	WindowEnd      time.Time     `json:"window_end"`
	PriorityEvents []DigestEvent `json:"priority_events"`
	Market         Section       `json:"market_snapshot"`
	Calendar       Section       `json:"economic_calendar"`
	Theses         Section       `json:"active_theses"`
	Text           string        `json:"full_digest"`
}
