package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rcliao/meridian/internal/embedding"
	"github.com/rcliao/meridian/internal/model"
)

func TestSearchEvents(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	putEvent(t, s, "a", "Fed raises rates again", testPublished)
	putEvent(t, s, "b", "Copper slides on China demand", testPublished)
	putEvent(t, s, "c", "ECB signals pause", testPublished)

	results, err := s.SearchEvents(ctx, SearchParams{Query: "copper"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].Headline != "Copper slides on China demand" {
		t.Errorf("expected the copper event, got %+v", results)
	}

	// Body text is indexed too.
	results, _ = s.SearchEvents(ctx, SearchParams{Query: "body pause"})
	if len(results) != 3 {
		t.Errorf("expected body matches for all events, got %d", len(results))
	}

	results, _ = s.SearchEvents(ctx, SearchParams{Query: "an of"})
	if len(results) != 0 {
		t.Errorf("expected stopword-only query to match nothing, got %d", len(results))
	}
}

func TestSearchEvents_SeesRefreshedBody(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	putEvent(t, s, "a", "Fed raises rates", testPublished)

	s.UpsertEvent(ctx, UpsertEventParams{
		DedupKey: "a", Source: "reuters", Headline: "Fed raises rates",
		Body: "Powell cites sticky inflation", PublishedAt: testPublished, DiscoveredAt: testPublished,
	})
	results, _ := s.SearchEvents(ctx, SearchParams{Query: "powell"})
	if len(results) != 1 {
		t.Errorf("expected refreshed body to be searchable, got %d results", len(results))
	}
}

func TestCases(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	putTestCases(t, s)

	if err := s.SetCaseEmbedding(ctx, "c1", embedding.Vector{0.1, 0.2}); err != nil {
		t.Fatalf("set embedding: %v", err)
	}
	if err := s.SetCaseEmbedding(ctx, "missing", embedding.Vector{1}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	// Re-importing without an embedding keeps the stored one.
	if _, err := s.PutCases(ctx, []model.HistoricalCase{{ID: "c1", Name: "Volcker shock (renamed)"}}); err != nil {
		t.Fatalf("put cases: %v", err)
	}
	c, err := s.GetCase(ctx, "c1")
	if err != nil {
		t.Fatalf("get case: %v", err)
	}
	if c.Name != "Volcker shock (renamed)" {
		t.Errorf("expected renamed case, got %q", c.Name)
	}
	if len(c.Embedding) != 2 {
		t.Errorf("expected embedding to survive update, got %v", c.Embedding)
	}

	cases, _ := s.ListCases(ctx)
	if len(cases) != 2 || cases[0].ID != "c1" {
		t.Errorf("expected 2 cases ordered by id, got %d", len(cases))
	}

	if _, err := s.PutCases(ctx, []model.HistoricalCase{{ID: "c3"}}); err == nil {
		t.Error("expected case without name to be rejected")
	}
	if _, err := s.GetCase(ctx, "c3"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected rejected batch to write nothing, got %v", err)
	}
}

func TestDigestUpsert(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.GetDigest(ctx, "2026-03-04"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	rec := DigestRecord{Period: "2026-03-04", Timezone: "UTC", Content: []byte(`{"a":1}`), Text: "v1", Fingerprint: "f1"}
	if err := s.UpsertDigest(ctx, rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	rec.Content, rec.Text, rec.Fingerprint = []byte(`{"a":2}`), "v2", "f2"
	if err := s.UpsertDigest(ctx, rec); err != nil {
		t.Fatalf("upsert again: %v", err)
	}

	got, err := s.GetDigest(ctx, "2026-03-04")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got.Content) != `{"a":2}` || got.Text != "v2" || got.Fingerprint != "f2" {
		t.Errorf("expected replaced digest, got %+v", got)
	}

	st, _ := s.Stats(ctx, filepath.Join(t.TempDir(), "none.db"), 50)
	if st.Digests != 1 {
		t.Errorf("expected one digest row per period, got %d", st.Digests)
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	putTestCases(t, s)
	putTestKnowledge(t, s)

	a := putEvent(t, s, "a", "Gold hits record", testPublished)
	b := putEvent(t, s, "b", "ECB holds", testPublished)
	putEvent(t, s, "c", "Copper slides", testPublished)
	scoreEvent(t, s, a.ID, 80, true)
	scoreEvent(t, s, b.ID, 58, false)
	s.SetCaseEmbedding(ctx, "c1", embedding.Vector{1, 0})

	st, err := s.Stats(ctx, "", 50)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.TotalEvents != 3 {
		t.Errorf("expected 3 events, got %d", st.TotalEvents)
	}
	if st.EventsByStatus["scored"] != 2 || st.EventsByStatus["new"] != 1 {
		t.Errorf("unexpected status counts %v", st.EventsByStatus)
	}
	if st.PriorityEvents != 1 || st.MonitoringEvents != 1 {
		t.Errorf("expected 1 priority and 1 monitoring, got %d/%d", st.PriorityEvents, st.MonitoringEvents)
	}
	if st.HistoricalCases != 2 || st.CasesWithEmbeddings != 1 {
		t.Errorf("expected 2 cases, 1 embedded, got %d/%d", st.HistoricalCases, st.CasesWithEmbeddings)
	}
	if st.KnowledgeEntries != 3 || st.Topics != 2 {
		t.Errorf("expected 3 entries over 2 topics, got %d/%d", st.KnowledgeEntries, st.Topics)
	}
}

func TestExportImportSeed(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	putTestCases(t, s)
	putTestKnowledge(t, s)
	s.SetCaseEmbedding(ctx, "c1", embedding.Vector{1, 0})

	seed, err := s.ExportSeed(ctx, false)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(seed.Knowledge) != 3 || len(seed.Cases) != 2 {
		t.Fatalf("expected 3 knowledge and 2 cases, got %d/%d", len(seed.Knowledge), len(seed.Cases))
	}
	for _, c := range seed.Cases {
		if c.Embedding != nil {
			t.Errorf("expected embeddings stripped from %s", c.ID)
		}
	}

	s2 := newTestStore(t)
	k, c, err := s2.ImportSeed(ctx, seed)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if k != 3 || c != 2 {
		t.Errorf("expected 3/2 imported, got %d/%d", k, c)
	}
	got, _ := s2.GetCase(ctx, "c1")
	if got == nil || got.Significance == nil || *got.Significance != 90 {
		t.Errorf("expected significance to survive the round trip, got %+v", got)
	}
}
