package intake

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rcliao/meridian/internal/model"
	"github.com/rcliao/meridian/internal/store"
)

func newTestNormalizer(t *testing.T) (*Normalizer, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	n := NewNormalizer(s, time.Hour)
	n.now = func() time.Time { return time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC) }
	return n, s
}

func at(h, m int) *time.Time {
	t := time.Date(2026, 3, 4, h, m, 0, 0, time.UTC)
	return &t
}

func TestDedupKey(t *testing.T) {
	base := time.Date(2026, 3, 4, 14, 5, 0, 0, time.UTC)
	k := DedupKey("Reuters", "Fed  raises   rates", base, time.Hour)

	if got := DedupKey("reuters", "fed raises rates", base.Add(50*time.Minute), time.Hour); got != k {
		t.Error("expected same key within the hour bucket, case and whitespace insensitive")
	}
	if got := DedupKey("reuters", "fed raises rates", base.Add(time.Hour), time.Hour); got == k {
		t.Error("expected a different key in the next bucket")
	}
	if got := DedupKey("ap", "fed raises rates", base, time.Hour); got == k {
		t.Error("expected a different key for another source")
	}
	if len(k) != 64 {
		t.Errorf("expected hex sha256, got %d chars", len(k))
	}
}

func TestIngest_SameHourIsOneEvent(t *testing.T) {
	ctx := context.Background()
	n, s := newTestNormalizer(t)

	first, created, err := n.Ingest(ctx, Payload{Source: "reuters", Headline: "Fed raises rates", PublishedAt: at(14, 5)})
	if err != nil || !created {
		t.Fatalf("expected create, got created=%v err=%v", created, err)
	}
	second, created, err := n.Ingest(ctx, Payload{
		Source: "Reuters", Headline: "Fed raises  rates", Body: "Powell cites inflation.", PublishedAt: at(14, 40),
	})
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if created {
		t.Error("expected second payload to refresh the first")
	}
	if second.ID != first.ID {
		t.Errorf("expected same event, got %s and %s", first.ID, second.ID)
	}
	if second.Body != "Powell cites inflation." {
		t.Errorf("expected body refresh, got %q", second.Body)
	}
	if !second.PublishedAt.Equal(*at(14, 5)) {
		t.Errorf("publish time is authoritative, got %s", second.PublishedAt)
	}

	events, _ := s.ListEvents(ctx, store.ListEventsParams{Limit: -1})
	if len(events) != 1 {
		t.Errorf("expected one stored event, got %d", len(events))
	}
}

func TestIngest_InvalidPayload(t *testing.T) {
	n, _ := newTestNormalizer(t)
	tests := []struct {
		name string
		p    Payload
	}{
		{"no headline", Payload{Source: "reuters", Headline: "   "}},
		{"no source", Payload{Headline: "Fed raises rates"}},
		{"nothing", Payload{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := n.Ingest(context.Background(), tt.p)
			if !errors.Is(err, ErrInvalidPayload) {
				t.Errorf("expected ErrInvalidPayload, got %v", err)
			}
		})
	}
}

func TestIngest_MissingPublishTimeUsesDiscovery(t *testing.T) {
	n, _ := newTestNormalizer(t)
	e, _, err := n.Ingest(context.Background(), Payload{Source: "ap", Headline: "Oil jumps"})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !e.PublishedAt.Equal(n.now()) {
		t.Errorf("expected discovery time as publish time, got %s", e.PublishedAt)
	}
}

func TestIngestBatch(t *testing.T) {
	n, _ := newTestNormalizer(t)
	report := n.IngestBatch(context.Background(), []Payload{
		{Source: "reuters", Headline: "Fed raises rates", PublishedAt: at(14, 0)},
		{Source: "reuters", Headline: ""},
		{Source: "reuters", Headline: "Fed raises rates", PublishedAt: at(14, 30)},
		{Source: "ap", Headline: "Copper slides", PublishedAt: at(9, 0)},
	})
	want := model.RunReport{Processed: 2, Failed: 1, Skipped: 1}
	if report != want {
		t.Errorf("expected %s, got %s", want, report)
	}
}

func TestIngestBatch_Cancelled(t *testing.T) {
	n, _ := newTestNormalizer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report := n.IngestBatch(ctx, []Payload{{Source: "a", Headline: "b"}, {Source: "c", Headline: "d"}})
	if report.Skipped != 2 || report.Processed != 0 {
		t.Errorf("expected all skipped after cancel, got %s", report)
	}
}
