package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rcliao/meridian/internal/model"
)

// replacePrecedents swaps the precedent links of an event inside tx.
func replacePrecedents(ctx context.Context, tx *sql.Tx, eventID string, matches []model.PrecedentMatch, now string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM event_precedents WHERE event_id = ?`, eventID); err != nil {
		return fmt.Errorf("clear precedents: %w", err)
	}
	for _, m := range matches {
		var distance interface{}
		if m.Distance != nil {
			distance = *m.Distance
		}
		var matchScore interface{}
		if m.MatchScore != nil {
			matchScore = *m.MatchScore
		}
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO event_precedents (event_id, case_id, rank, method, distance, match_score, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			eventID, m.Case.ID, m.Rank, m.Method, distance, matchScore, now)
		if err != nil {
			return fmt.Errorf("link precedent %s: %w", m.Case.ID, err)
		}
	}
	return nil
}

// EventPrecedents returns the precedents linked to an event by its last
// analysis, in rank order.
func (s *SQLiteStore) EventPrecedents(ctx context.Context, eventID string) ([]model.PrecedentMatch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.rank, p.method, p.distance, p.match_score, `+caseCols("c.")+`
		 FROM event_precedents p
		 JOIN historical_cases c ON c.id = p.case_id
		 WHERE p.event_id = ?
		 ORDER BY p.rank ASC, c.id ASC`, eventID)
	if err != nil {
		return nil, fmt.Errorf("event precedents: %w", err)
	}
	defer rows.Close()

	var matches []model.PrecedentMatch
	for rows.Next() {
		var m model.PrecedentMatch
		var distance sql.NullFloat64
		var matchScore sql.NullInt64
		hc, err := scanCase(rows, &m.Rank, &m.Method, &distance, &matchScore)
		if err != nil {
			return nil, err
		}
		hc.Embedding = nil
		m.Case = hc
		if distance.Valid {
			d := distance.Float64
			m.Distance = &d
		}
		if matchScore.Valid {
			v := int(matchScore.Int64)
			m.MatchScore = &v
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}
