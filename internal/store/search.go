package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/rcliao/meridian/internal/model"
	"github.com/rcliao/meridian/internal/textutil"
)

// SearchParams holds parameters for searching events.
type SearchParams struct {
	Query string
	Limit int
}

// SearchEvents runs a full-text search over event headlines and bodies.
// Every keyword of the query is an OR term; results are ranked by bm25.
func (s *SQLiteStore) SearchEvents(ctx context.Context, p SearchParams) ([]model.Event, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	terms := textutil.Keywords(p.Query)
	if len(terms) == 0 {
		return nil, nil
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + t + `"`
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventCols("e.")+`
		FROM events_fts
		JOIN events e ON e.rowid = events_fts.rowid
		WHERE events_fts MATCH ?
		ORDER BY events_fts.rank, e.published_at DESC, e.id
		LIMIT ?`, strings.Join(quoted, " OR "), limit)
	if err != nil {
		return nil, fmt.Errorf("search events: %w", err)
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
