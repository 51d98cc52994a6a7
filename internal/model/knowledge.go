package model

import (
	"encoding/json"
	"time"
)

// KnowledgeEntry is curated reference material for one topic and category.
type KnowledgeEntry struct {
	Topic    string          `json:"topic"`
	Category string          `json:"category"`
	Content  json.RawMessage `json:"content"`
}

// ValidKnowledgeCategories are the allowed knowledge categories.
var ValidKnowledgeCategories = map[string]bool{
	"supply_chain": true,
	"use_cases":    true,
	"patterns":     true,
	"correlations": true,
	"actors":       true,
}

// HistoricalCase is a past analogous event.
type HistoricalCase struct {
	ID                string            `json:"id"`
	Name              string            `json:"event_name"`
	DateRange         string            `json:"date_range"`
	OccurredOn        *time.Time        `json:"occurred_on,omitempty"`
	Category          string            `json:"event_type,omitempty"`
	Significance      *int              `json:"significance_score,omitempty"`
	StructuralDrivers []string          `json:"structural_drivers,omitempty"`
	Impacts           map[string]Impact `json:"metal_impacts,omitempty"`
	Lessons           []string          `json:"lessons,omitempty"`
	CounterExamples   []string          `json:"counter_examples,omitempty"`
	MarketReaction    []string          `json:"traditional_market_reaction,omitempty"`
	Embedding         []float32         `json:"embedding,omitempty"`
}

// Match methods for precedents.
const (
	MatchEmbedding = "embedding"
	MatchFallback  = "fallback"
)

// PrecedentMatch is a ranked historical case for an event.
type PrecedentMatch struct {
	Case       HistoricalCase `json:"case"`
	Rank       int            `json:"rank"`
	Method     string         `json:"match_method"`
	Distance   *float64       `json:"distance,omitempty"`
	MatchScore *int           `json:"match_score,omitempty"`
}
