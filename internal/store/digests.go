package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetDigest returns the stored digest for a period.
func (s *SQLiteStore) GetDigest(ctx context.Context, period string) (*DigestRecord, error) {
	var r DigestRecord
	var content, generated string
	err := s.db.QueryRowContext(ctx,
		`SELECT period, timezone, content, full_text, fingerprint, generated_at FROM digests WHERE period = ?`,
		period).Scan(&r.Period, &r.Timezone, &content, &r.Text, &r.Fingerprint, &generated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("digest %s: %w", period, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get digest: %w", err)
	}
	r.Content = []byte(content)
	r.GeneratedAt = parseTime(generated)
	return &r, nil
}

// UpsertDigest stores the digest for a period, replacing any previous one.
func (s *SQLiteStore) UpsertDigest(ctx context.Context, r DigestRecord) error {
	generated := r.GeneratedAt
	if generated.IsZero() {
		generated = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO digests (period, timezone, content, full_text, fingerprint, generated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(period) DO UPDATE SET
			timezone = excluded.timezone,
			content = excluded.content,
			full_text = excluded.full_text,
			fingerprint = excluded.fingerprint,
			generated_at = excluded.generated_at`,
		r.Period, r.Timezone, string(r.Content), r.Text, r.Fingerprint, formatTime(generated))
	if err != nil {
		return fmt.Errorf("upsert digest: %w", err)
	}
	return nil
}
