package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rcliao/meridian/internal/model"
)

// TopicStats holds per-topic knowledge counts.
type TopicStats struct {
	Topic      string   `json:"topic"`
	Categories []string `json:"categories"`
}

// PutKnowledge inserts or replaces knowledge entries by (topic, category).
func (s *SQLiteStore) PutKnowledge(ctx context.Context, entries []model.KnowledgeEntry) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	now := formatTime(s.now())
	for _, e := range entries {
		topic := strings.ToLower(strings.TrimSpace(e.Topic))
		if topic == "" {
			return 0, fmt.Errorf("knowledge entry: topic is required")
		}
		if !model.ValidKnowledgeCategories[e.Category] {
			return 0, fmt.Errorf("knowledge %s: invalid category %q (valid: supply_chain, use_cases, patterns, correlations, actors)", topic, e.Category)
		}
		if !json.Valid(e.Content) {
			return 0, fmt.Errorf("knowledge %s/%s: content is not valid JSON", topic, e.Category)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO knowledge (topic, category, content, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(topic, category) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
			topic, e.Category, string(e.Content), now)
		if err != nil {
			return 0, fmt.Errorf("put knowledge %s/%s: %w", topic, e.Category, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(entries), nil
}

// ListKnowledge returns knowledge entries, optionally for one topic,
// ordered by topic and category.
func (s *SQLiteStore) ListKnowledge(ctx context.Context, topic string) ([]model.KnowledgeEntry, error) {
	query := `SELECT topic, category, content FROM knowledge`
	var args []interface{}
	if topic != "" {
		query += ` WHERE topic = ?`
		args = append(args, strings.ToLower(topic))
	}
	query += ` ORDER BY topic, category`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list knowledge: %w", err)
	}
	defer rows.Close()

	var entries []model.KnowledgeEntry
	for rows.Next() {
		var e model.KnowledgeEntry
		var content string
		if err := rows.Scan(&e.Topic, &e.Category, &content); err != nil {
			return nil, err
		}
		e.Content = json.RawMessage(content)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Topics lists the knowledge topics with the categories each one has.
func (s *SQLiteStore) Topics(ctx context.Context) ([]TopicStats, error) {
	entries, err := s.ListKnowledge(ctx, "")
	if err != nil {
		return nil, err
	}
	var out []TopicStats
	for _, e := range entries {
		if n := len(out); n > 0 && out[n-1].Topic == e.Topic {
			out[n-1].Categories = append(out[n-1].Categories, e.Category)
			continue
		}
		out = append(out, TopicStats{Topic: e.Topic, Categories: []string{e.Category}})
	}
	return out, nil
}
