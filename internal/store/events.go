package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rcliao/meridian/internal/model"
)

var eventColumns = []string{
	"id", "dedup_key", "source", "headline", "body", "url",
	"published_at", "discovered_at", "updated_at",
	"category", "regions", "entities",
	"significance_score", "score_components", "priority_flag",
	"raw_facts", "interpretation", "status", "analyzed_at",
}

// eventCols returns the event column list, each column qualified by prefix.
func eventCols(prefix string) string {
	cols := make([]string, len(eventColumns))
	for i, c := range eventColumns {
		cols[i] = prefix + c
	}
	return strings.Join(cols, ", ")
}

// UpsertEvent inserts a new event or refreshes the non-authoritative fields
// of the event already stored under the same dedup key. The body is replaced
// only by a non-empty body and the URL only fills an empty one. updated_at
// moves only when something changed.
func (s *SQLiteStore) UpsertEvent(ctx context.Context, p UpsertEventParams) (*model.Event, bool, error) {
	now := formatTime(s.now())
	id := s.newID()

	var gotID string
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO events (id, dedup_key, source, headline, body, url, published_at, discovered_at, updated_at, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'new')
		 ON CONFLICT(dedup_key) DO UPDATE SET
			body = CASE WHEN excluded.body <> '' THEN excluded.body ELSE events.body END,
			url = CASE WHEN events.url = '' THEN excluded.url ELSE events.url END,
			updated_at = CASE
				WHEN (excluded.body <> '' AND excluded.body <> events.body)
				  OR (events.url = '' AND excluded.url <> '') THEN excluded.updated_at
				ELSE events.updated_at END
		 RETURNING id`,
		id, p.DedupKey, p.Source, p.Headline, p.Body, p.URL,
		formatTime(p.PublishedAt), formatTime(p.DiscoveredAt), now).Scan(&gotID)
	if err != nil {
		return nil, false, fmt.Errorf("upsert event: %w", err)
	}

	e, err := s.GetEvent(ctx, gotID)
	if err != nil {
		return nil, false, err
	}
	return e, gotID == id, nil
}

// GetEvent returns one event by ID.
func (s *SQLiteStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventCols("")+` FROM events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &e, nil
}

// ListEvents lists events matching the given filters.
func (s *SQLiteStore) ListEvents(ctx context.Context, p ListEventsParams) ([]model.Event, error) {
	var where []string
	var args []interface{}

	if len(p.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(p.Statuses))+")")
		for _, st := range p.Statuses {
			args = append(args, string(st))
		}
	}
	if p.PriorityOnly {
		where = append(where, "priority_flag = 1")
	}
	if p.MinScore != nil {
		where = append(where, "significance_score >= ?")
		args = append(args, *p.MinScore)
	}
	if p.MaxScore != nil {
		where = append(where, "significance_score <= ?")
		args = append(args, *p.MaxScore)
	}
	if !p.Since.IsZero() {
		where = append(where, "published_at >= ?")
		args = append(args, formatTime(p.Since))
	}
	if !p.Until.IsZero() {
		where = append(where, "published_at < ?")
		args = append(args, formatTime(p.Until))
	}

	query := `SELECT ` + eventCols("") + ` FROM events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	switch p.Order {
	case OrderOldestFirst:
		query += " ORDER BY discovered_at ASC, id ASC"
	case OrderScore:
		query += " ORDER BY significance_score DESC, published_at DESC, id ASC"
	default:
		query += " ORDER BY published_at DESC, id ASC"
	}

	limit := p.Limit
	if limit == 0 {
		limit = 20
	}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// SaveScore writes a score and moves the event from new to scored in one
// statement. An event that is no longer new yields ErrConflict.
func (s *SQLiteStore) SaveScore(ctx context.Context, p SaveScoreParams) error {
	if p.Score < 0 || p.Score > 100 {
		return fmt.Errorf("score %d out of range", p.Score)
	}
	components, err := marshalNull(p.Components)
	if err != nil {
		return err
	}
	regions, err := marshalNull(p.Regions)
	if err != nil {
		return err
	}
	entities, err := marshalNull(p.Entities)
	if err != nil {
		return err
	}

	args := []interface{}{
		p.Score, components, boolInt(p.Priority), p.Category, regions, entities,
		string(model.StatusScored), formatTime(s.now()), p.ID,
	}
	query := `UPDATE events SET significance_score = ?, score_components = ?, priority_flag = ?,
		category = ?, regions = ?, entities = ?, status = ?, updated_at = ?
		WHERE id = ? AND status IN (` + placeholders(len(model.SourcesFor(model.StatusScored))) + `)`
	for _, st := range model.SourcesFor(model.StatusScored) {
		args = append(args, string(st))
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("save score: %w", err)
	}
	return s.checkGuarded(ctx, res, p.ID)
}

// AcquireLease marks an event as being analyzed until the given time. It
// fails with ErrConflict while another unexpired lease is held. The
// returned token releases the lease.
func (s *SQLiteStore) AcquireLease(ctx context.Context, id string, until time.Time) (string, error) {
	token := formatTime(until)
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET analysis_lease_until = ?
		 WHERE id = ? AND (analysis_lease_until IS NULL OR analysis_lease_until <= ?)`,
		token, id, formatTime(s.now()))
	if err != nil {
		return "", fmt.Errorf("acquire lease: %w", err)
	}
	if err := s.checkGuarded(ctx, res, id); err != nil {
		return "", err
	}
	return token, nil
}

// RenewLease moves a lease still identified by token to until and returns
// the new token. It fails with ErrConflict once the lease was taken over.
func (s *SQLiteStore) RenewLease(ctx context.Context, id, token string, until time.Time) (string, error) {
	next := formatTime(until)
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET analysis_lease_until = ? WHERE id = ? AND analysis_lease_until = ?`,
		next, id, token)
	if err != nil {
		return "", fmt.Errorf("renew lease: %w", err)
	}
	if err := s.checkGuarded(ctx, res, id); err != nil {
		return "", err
	}
	return next, nil
}

// ReleaseLease clears a lease if it is still the one identified by token.
func (s *SQLiteStore) ReleaseLease(ctx context.Context, id, token string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE events SET analysis_lease_until = NULL WHERE id = ? AND analysis_lease_until = ?`,
		id, token)
	if err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

// SaveAnalysis writes raw facts, interpretation, precedent links and the
// analyzed status in one transaction. Without Overwrite only a scored event
// is accepted; with it an analyzed event is replaced in place. Either way
// the event must carry the priority flag, and with LeaseToken set the lease
// must still be that one. Nothing is written on failure.
func (s *SQLiteStore) SaveAnalysis(ctx context.Context, p SaveAnalysisParams) error {
	rawFacts, err := marshalNull(p.Result.RawFacts)
	if err != nil {
		return err
	}
	interp, err := marshalNull(p.Result.Interpretation)
	if err != nil {
		return err
	}

	sources := []model.Status{model.StatusScored}
	if p.Overwrite {
		sources = model.SourcesFor(model.StatusAnalyzed)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := formatTime(s.now())
	args := []interface{}{rawFacts, interp, string(model.StatusAnalyzed), now, now, p.ID}
	for _, st := range sources {
		args = append(args, string(st))
	}
	leaseGuard := ""
	if p.LeaseToken != "" {
		leaseGuard = " AND analysis_lease_until = ?"
		args = append(args, p.LeaseToken)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE events SET raw_facts = ?, interpretation = ?, status = ?, analyzed_at = ?, updated_at = ?,
			analysis_lease_until = NULL
		 WHERE id = ? AND priority_flag = 1 AND status IN (`+placeholders(len(sources))+`)`+leaseGuard, args...)
	if err != nil {
		return fmt.Errorf("save analysis: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("save analysis %s: %w", p.ID, ErrConflict)
	}

	if err := replacePrecedents(ctx, tx, p.ID, p.Precedents, now); err != nil {
		return err
	}

	return tx.Commit()
}

// Dismiss moves an event to dismissed from any other status.
func (s *SQLiteStore) Dismiss(ctx context.Context, id string) error {
	sources := model.SourcesFor(model.StatusDismissed)
	args := []interface{}{string(model.StatusDismissed), formatTime(s.now()), id}
	for _, st := range sources {
		args = append(args, string(st))
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET status = ?, updated_at = ? WHERE id = ? AND status IN (`+placeholders(len(sources))+`)`,
		args...)
	if err != nil {
		return fmt.Errorf("dismiss: %w", err)
	}
	return s.checkGuarded(ctx, res, id)
}

// checkGuarded turns a zero-row guarded update into ErrNotFound or ErrConflict.
func (s *SQLiteStore) checkGuarded(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var one int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM events WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("event %s: %w", id, ErrConflict)
}

func scanEvent(row scanner) (model.Event, error) {
	var e model.Event
	var published, discovered, updated string
	var category, regions, entities, components, rawFacts, interp, analyzedAt sql.NullString
	var score sql.NullInt64
	var priority int
	var status string

	err := row.Scan(
		&e.ID, &e.DedupKey, &e.Source, &e.Headline, &e.Body, &e.URL,
		&published, &discovered, &updated,
		&category, &regions, &entities,
		&score, &components, &priority,
		&rawFacts, &interp, &status, &analyzedAt,
	)
	if err != nil {
		return e, err
	}

	e.PublishedAt = parseTime(published)
	e.DiscoveredAt = parseTime(discovered)
	e.UpdatedAt = parseTime(updated)
	e.Category = category.String
	e.Priority = priority == 1
	e.Status = model.Status(status)
	e.AnalyzedAt = parseNullTime(analyzedAt)
	if score.Valid {
		v := int(score.Int64)
		e.Score = &v
	}

	if err := unmarshalNull(regions, &e.Regions); err != nil {
		return e, fmt.Errorf("decode regions: %w", err)
	}
	if err := unmarshalNull(entities, &e.Entities); err != nil {
		return e, fmt.Errorf("decode entities: %w", err)
	}
	if components.Valid {
		e.Components = &model.ScoreComponents{}
		if err := unmarshalNull(components, e.Components); err != nil {
			return e, fmt.Errorf("decode score components: %w", err)
		}
	}
	if err := unmarshalNull(rawFacts, &e.RawFacts); err != nil {
		return e, fmt.Errorf("decode raw facts: %w", err)
	}
	if interp.Valid {
		e.Interpretation = &model.Interpretation{}
		if err := unmarshalNull(interp, e.Interpretation); err != nil {
			return e, fmt.Errorf("decode interpretation: %w", err)
		}
	}

	return e, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
