package store

import (
	"context"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	DBPath              string         `json:"db_path"`
	DBSizeBytes         int64          `json:"db_size_bytes"`
	TotalEvents         int            `json:"total_events"`
	EventsByStatus      map[string]int `json:"events_by_status"`
	PriorityEvents      int            `json:"priority_events"`
	MonitoringEvents    int            `json:"monitoring_events"`
	HistoricalCases     int            `json:"historical_cases"`
	CasesWithEmbeddings int            `json:"cases_with_embeddings"`
	KnowledgeEntries    int            `json:"knowledge_entries"`
	Topics              int            `json:"topics"`
	Digests             int            `json:"digests"`
}

// Stats returns database statistics. Events in [monitoringThreshold,
// priority) count as monitoring.
func (s *SQLiteStore) Stats(ctx context.Context, dbPath string, monitoringThreshold int) (*Stats, error) {
	st := &Stats{DBPath: dbPath, EventsByStatus: map[string]int{}}

	// DB file size
	if info, err := os.Stat(dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}

	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&st.TotalEvents)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE priority_flag = 1`).Scan(&st.PriorityEvents)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE priority_flag = 0 AND significance_score >= ?`,
		monitoringThreshold).Scan(&st.MonitoringEvents)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM historical_cases`).Scan(&st.HistoricalCases)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM historical_cases WHERE embedding IS NOT NULL`).Scan(&st.CasesWithEmbeddings)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knowledge`).Scan(&st.KnowledgeEntries)
	s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT topic) FROM knowledge`).Scan(&st.Topics)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM digests`).Scan(&st.Digests)

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM events GROUP BY status ORDER BY status`)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		rows.Scan(&status, &n)
		st.EventsByStatus[status] = n
	}

	return st, rows.Err()
}
