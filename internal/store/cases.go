package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rcliao/meridian/internal/embedding"
	"github.com/rcliao/meridian/internal/model"
)

var caseColumns = []string{
	"id", "event_name", "date_range", "occurred_on", "event_type", "significance_score",
	"structural_drivers", "metal_impacts", "lessons", "counter_examples", "market_reaction", "embedding",
}

func caseCols(prefix string) string {
	cols := make([]string, len(caseColumns))
	for i, c := range caseColumns {
		cols[i] = prefix + c
	}
	return strings.Join(cols, ", ")
}

// PutCases inserts or replaces historical cases by ID. A case without an ID
// gets a new one. A stored embedding survives an update that carries none.
func (s *SQLiteStore) PutCases(ctx context.Context, cases []model.HistoricalCase) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	now := formatTime(s.now())
	for i := range cases {
		c := &cases[i]
		if strings.TrimSpace(c.Name) == "" {
			return 0, fmt.Errorf("case %d: event_name is required", i)
		}
		if c.ID == "" {
			c.ID = s.newID()
		}
		if err := putCase(ctx, tx, c, now); err != nil {
			return 0, fmt.Errorf("put case %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(cases), nil
}

func putCase(ctx context.Context, tx *sql.Tx, c *model.HistoricalCase, now string) error {
	var occurred *string
	if c.OccurredOn != nil {
		v := c.OccurredOn.UTC().Format(dateLayout)
		occurred = &v
	}
	var significance interface{}
	if c.Significance != nil {
		significance = *c.Significance
	}
	drivers, err := marshalNull(c.StructuralDrivers)
	if err != nil {
		return err
	}
	impacts, err := marshalNull(c.Impacts)
	if err != nil {
		return err
	}
	lessons, err := marshalNull(c.Lessons)
	if err != nil {
		return err
	}
	counter, err := marshalNull(c.CounterExamples)
	if err != nil {
		return err
	}
	reaction, err := marshalNull(c.MarketReaction)
	if err != nil {
		return err
	}
	var vec interface{}
	if len(c.Embedding) > 0 {
		vec = embedding.Encode(c.Embedding)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO historical_cases (`+caseCols("")+`, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			event_name = excluded.event_name,
			date_range = excluded.date_range,
			occurred_on = excluded.occurred_on,
			event_type = excluded.event_type,
			significance_score = excluded.significance_score,
			structural_drivers = excluded.structural_drivers,
			metal_impacts = excluded.metal_impacts,
			lessons = excluded.lessons,
			counter_examples = excluded.counter_examples,
			market_reaction = excluded.market_reaction,
			embedding = COALESCE(excluded.embedding, historical_cases.embedding),
			updated_at = excluded.updated_at`,
		c.ID, c.Name, c.DateRange, occurred, c.Category, significance,
		drivers, impacts, lessons, counter, reaction, vec, now)
	return err
}

// ListCases returns the whole case library ordered by ID.
func (s *SQLiteStore) ListCases(ctx context.Context) ([]model.HistoricalCase, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+caseCols("")+` FROM historical_cases ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	defer rows.Close()

	var cases []model.HistoricalCase
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

// GetCase returns one case by ID.
func (s *SQLiteStore) GetCase(ctx context.Context, id string) (*model.HistoricalCase, error) {
	c, err := scanCase(s.db.QueryRowContext(ctx, `SELECT `+caseCols("")+` FROM historical_cases WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("case %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// SetCaseEmbedding stores the embedding vector of one case.
func (s *SQLiteStore) SetCaseEmbedding(ctx context.Context, id string, vec embedding.Vector) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE historical_cases SET embedding = ?, updated_at = ? WHERE id = ?`,
		embedding.Encode(vec), formatTime(s.now()), id)
	if err != nil {
		return fmt.Errorf("set case embedding: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("case %s: %w", id, ErrNotFound)
	}
	return nil
}

// scanCase scans the case columns, preceded by any extra destinations the
// query selects first.
func scanCase(row scanner, extra ...interface{}) (model.HistoricalCase, error) {
	var c model.HistoricalCase
	var occurred, drivers, impacts, lessons, counter, reaction sql.NullString
	var significance sql.NullInt64
	var vec []byte

	dest := append(extra,
		&c.ID, &c.Name, &c.DateRange, &occurred, &c.Category, &significance,
		&drivers, &impacts, &lessons, &counter, &reaction, &vec,
	)
	if err := row.Scan(dest...); err != nil {
		return c, err
	}

	if occurred.Valid && occurred.String != "" {
		if t, err := time.Parse(dateLayout, occurred.String); err == nil {
			c.OccurredOn = &t
		}
	}
	if significance.Valid {
		v := int(significance.Int64)
		c.Significance = &v
	}
	for _, f := range []struct {
		src sql.NullString
		dst interface{}
	}{
		{drivers, &c.StructuralDrivers},
		{impacts, &c.Impacts},
		{lessons, &c.Lessons},
		{counter, &c.CounterExamples},
		{reaction, &c.MarketReaction},
	} {
		if err := unmarshalNull(f.src, f.dst); err != nil {
			return c, fmt.Errorf("decode case %s: %w", c.ID, err)
		}
	}
	if len(vec) > 0 {
		v, err := embedding.Decode(vec)
		if err != nil {
			return c, fmt.Errorf("decode case %s embedding: %w", c.ID, err)
		}
		c.Embedding = v
	}
	return c, nil
}
