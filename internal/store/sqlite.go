package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so that stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const dateLayout = "2006-01-02"

// SQLiteStore implements persistence for events, reference material and
// digests using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	mu      sync.Mutex
	entropy *rand.Rand
	now     func() time.Time
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := newSQLiteStoreFromDB(db)
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// newSQLiteStoreFromDB wraps an already open handle without migrating it.
func newSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the store's time source. Tests use it to pin
// updated_at and generated_at values.
func (s *SQLiteStore) SetClock(now func() time.Time) {
	s.now = now
}

func (s *SQLiteStore) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id                   TEXT PRIMARY KEY,
		dedup_key            TEXT NOT NULL UNIQUE,
		source               TEXT NOT NULL,
		headline             TEXT NOT NULL,
		body                 TEXT NOT NULL DEFAULT '',
		url                  TEXT NOT NULL DEFAULT '',
		published_at         TEXT NOT NULL,
		discovered_at        TEXT NOT NULL,
		updated_at           TEXT NOT NULL,
		category             TEXT,
		regions              TEXT,
		entities             TEXT,
		significance_score   INTEGER CHECK (significance_score BETWEEN 0 AND 100),
		score_components     TEXT,
		priority_flag        INTEGER NOT NULL DEFAULT 0,
		raw_facts            TEXT,
		interpretation       TEXT,
		status               TEXT NOT NULL DEFAULT 'new',
		analyzed_at          TEXT,
		analysis_lease_until TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_events_status ON events(status, discovered_at);
	CREATE INDEX IF NOT EXISTS idx_events_published ON events(published_at DESC);
	CREATE INDEX IF NOT EXISTS idx_events_priority ON events(priority_flag, published_at);

	CREATE TABLE IF NOT EXISTS knowledge (
		topic      TEXT NOT NULL,
		category   TEXT NOT NULL,
		content    TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (topic, category)
	);

	CREATE TABLE IF NOT EXISTS historical_cases (
		id                 TEXT PRIMARY KEY,
		event_name         TEXT NOT NULL,
		date_range         TEXT NOT NULL DEFAULT '',
		occurred_on        TEXT,
		event_type         TEXT NOT NULL DEFAULT '',
		significance_score INTEGER,
		structural_drivers TEXT,
		metal_impacts      TEXT,
		lessons            TEXT,
		counter_examples   TEXT,
		market_reaction    TEXT,
		embedding          BLOB,
		updated_at         TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS event_precedents (
		event_id    TEXT NOT NULL REFERENCES events(id),
		case_id     TEXT NOT NULL REFERENCES historical_cases(id),
		rank        INTEGER NOT NULL,
		method      TEXT NOT NULL,
		distance    REAL,
		match_score INTEGER,
		created_at  TEXT NOT NULL,
		PRIMARY KEY (event_id, case_id)
	);
	CREATE INDEX IF NOT EXISTS idx_precedents_case ON event_precedents(case_id);

	CREATE TABLE IF NOT EXISTS digests (
		period       TEXT PRIMARY KEY,
		timezone     TEXT NOT NULL,
		content      TEXT NOT NULL,
		full_text    TEXT NOT NULL,
		fingerprint  TEXT NOT NULL,
		generated_at TEXT NOT NULL
	);

	CREATE VIRTUAL TABLE IF NOT EXISTS events_fts USING fts5(
		headline,
		body,
		content=events,
		content_rowid=rowid
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// FTS5 triggers for automatic sync
	s.db.Exec(`CREATE TRIGGER IF NOT EXISTS events_ai AFTER INSERT ON events BEGIN
		INSERT INTO events_fts(rowid, headline, body) VALUES (new.rowid, new.headline, new.body);
	END`)
	s.db.Exec(`CREATE TRIGGER IF NOT EXISTS events_ad AFTER DELETE ON events BEGIN
		INSERT INTO events_fts(events_fts, rowid, headline, body) VALUES('delete', old.rowid, old.headline, old.body);
	END`)
	s.db.Exec(`CREATE TRIGGER IF NOT EXISTS events_au AFTER UPDATE OF headline, body ON events BEGIN
		INSERT INTO events_fts(events_fts, rowid, headline, body) VALUES('delete', old.rowid, old.headline, old.body);
		INSERT INTO events_fts(rowid, headline, body) VALUES (new.rowid, new.headline, new.body);
	END`)

	return nil
}

// Close closes the store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

// marshalNull encodes v as JSON text, or NULL when v is empty.
func marshalNull(v interface{}) (*string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(b) == "null" || string(b) == "[]" || string(b) == "{}" {
		return nil, nil
	}
	str := string(b)
	return &str, nil
}

func unmarshalNull(ns sql.NullString, v interface{}) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), v)
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
