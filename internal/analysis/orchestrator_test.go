package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rcliao/meridian/internal/model"
	"github.com/rcliao/meridian/internal/precedent"
	"github.com/rcliao/meridian/internal/provider"
	"github.com/rcliao/meridian/internal/store"
)

type funcProvider struct {
	mu    sync.Mutex
	calls []*provider.Request
	fn    func(n int, req *provider.Request) (string, error)
}

func (f *funcProvider) Name() string { return "scripted" }

func (f *funcProvider) Interpret(ctx context.Context, req *provider.Request) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	n := len(f.calls)
	f.mu.Unlock()
	return f.fn(n, req)
}

func (f *funcProvider) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// replies returns the given answers in order, repeating the last one.
func replies(answers ...string) *funcProvider {
	return &funcProvider{fn: func(n int, req *provider.Request) (string, error) {
		if n > len(answers) {
			n = len(answers)
		}
		return answers[n-1], nil
	}}
}

func answer(counter string) string {
	m := map[string]interface{}{
		"raw_facts": []string{"Fed raised rates by 50bp.", "  Markets   fell. "},
		"metal_impacts": map[string]interface{}{
			"Gold": map[string]string{"direction": "down", "magnitude": "moderate", "driver": "Real yields rise."},
		},
		"historical_precedent": "case_id c1: Volcker shock (1979-1981)",
		"crypto_transmission": map[string]interface{}{
			"exists": true, "path": "Tighter liquidity weighs on BTC", "strength": "weak", "relevant_assets": []string{"bitcoin"},
		},
	}
	if counter != "" {
		m["counter_case"] = counter
	}
	b, _ := json.Marshal(m)
	return string(b)
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	return seedStore(t, newTestStoreAt(t, filepath.Join(t.TempDir(), "test.db")))
}

func newTestStoreAt(t *testing.T, path string) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedStore(t *testing.T, s *store.SQLiteStore) *store.SQLiteStore {
	t.Helper()
	ctx := context.Background()
	if _, err := s.PutKnowledge(ctx, []model.KnowledgeEntry{
		{Topic: "gold", Category: "patterns", Content: json.RawMessage(`{"rates":"gold falls when real rates rise"}`)},
	}); err != nil {
		t.Fatalf("put knowledge: %v", err)
	}
	sig := 90
	if _, err := s.PutCases(ctx, []model.HistoricalCase{
		{ID: "c1", Name: "Volcker shock", DateRange: "1979-1981", Category: "monetary_policy", Significance: &sig,
			StructuralDrivers: []string{"Fed raised rates to fight inflation"}},
	}); err != nil {
		t.Fatalf("put cases: %v", err)
	}
	return s
}

func putScored(t *testing.T, s *store.SQLiteStore, key string, score int) *model.Event {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	e, _, err := s.UpsertEvent(ctx, store.UpsertEventParams{
		DedupKey: key, Source: "reuters", Headline: "Fed hikes rates by 50bp " + key,
		PublishedAt: now, DiscoveredAt: now,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if score >= 0 {
		err = s.SaveScore(ctx, store.SaveScoreParams{
			ID: e.ID, Score: score, Priority: score >= 65, Category: "monetary_policy",
		})
		if err != nil {
			t.Fatalf("score: %v", err)
		}
	}
	return e
}

func newOrchestrator(s *store.SQLiteStore, p provider.Provider) (*Orchestrator, *[]time.Duration) {
	o := New(s, precedent.NewMatcher(s, nil, 5), p, nil, Config{MaxAttempts: 3, BaseDelay: time.Second})
	var slept []time.Duration
	o.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return o, &slept
}

func storedAnalysis(t *testing.T, s *store.SQLiteStore, id string) string {
	t.Helper()
	e, err := s.GetEvent(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := json.Marshal(struct {
		Status         model.Status
		RawFacts       []string
		Interpretation *model.Interpretation
		AnalyzedAt     *time.Time
	}{e.Status, e.RawFacts, e.Interpretation, e.AnalyzedAt})
	return string(b)
}

func TestAnalyze(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := putScored(t, s, "k1", 86)
	p := replies(answer("Hikes may already be priced in."))
	o, _ := newOrchestrator(s, p)

	out, err := o.Analyze(ctx, e.ID, Options{})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if out.Status != StatusAnalyzed || out.Attempts != 1 || out.Reprompted || out.TransmissionFallback {
		t.Errorf("unexpected outcome %s", out)
	}

	got, _ := s.GetEvent(ctx, e.ID)
	if got.Status != model.StatusAnalyzed || got.AnalyzedAt == nil {
		t.Fatalf("expected analyzed event, got %s", got.Status)
	}
	if !reflect.DeepEqual(got.RawFacts, []string{"Fed raised rates by 50bp.", "Markets fell."}) {
		t.Errorf("unexpected raw facts %q", got.RawFacts)
	}
	in := got.Interpretation
	if in.Impacts["gold"].Direction != model.DirectionBearish {
		t.Errorf("expected alias normalized to bearish, got %+v", in.Impacts)
	}
	if in.CounterCase != "Hikes may already be priced in." {
		t.Errorf("unexpected counter-case %q", in.CounterCase)
	}
	if !in.Transmission.Exists || !reflect.DeepEqual(in.Transmission.RelevantAssets, []string{"BTC"}) {
		t.Errorf("unexpected transmission %+v", in.Transmission)
	}

	req := p.calls[0]
	if len(req.Knowledge) != 1 || len(req.Precedents) != 1 || !reflect.DeepEqual(req.Topics, []string{"gold"}) {
		t.Errorf("expected knowledge, precedent and topics in request, got %+v", req)
	}
	links, _ := s.EventPrecedents(ctx, e.ID)
	if len(links) != 1 || links[0].Case.ID != "c1" {
		t.Errorf("expected precedent link to c1, got %+v", links)
	}
	if _, err := s.AcquireLease(ctx, e.ID, time.Now().Add(time.Minute)); err != nil {
		t.Errorf("expected lease cleared after analysis, got %v", err)
	}
}

func TestAnalyze_AlreadyAnalyzedIsNoOp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := putScored(t, s, "k1", 86)
	p := replies(answer("first counter"), answer("second counter"))
	o, _ := newOrchestrator(s, p)

	if _, err := o.Analyze(ctx, e.ID, Options{}); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	before := storedAnalysis(t, s, e.ID)

	out, err := o.Analyze(ctx, e.ID, Options{})
	if err != nil {
		t.Fatalf("second analyze: %v", err)
	}
	if out.Status != StatusSkipped {
		t.Errorf("expected skipped, got %s", out.Status)
	}
	if p.count() != 1 {
		t.Errorf("expected no provider call on re-run, got %d calls", p.count())
	}
	if after := storedAnalysis(t, s, e.ID); after != before {
		t.Errorf("expected byte-identical fields\nbefore %s\nafter  %s", before, after)
	}
}

func TestAnalyze_Overwrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := putScored(t, s, "k1", 86)
	o, _ := newOrchestrator(s, replies(answer("first counter"), answer("second counter")))

	if _, err := o.Analyze(ctx, e.ID, Options{}); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	out, err := o.Analyze(ctx, e.ID, Options{Overwrite: true})
	if err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if out.Status != StatusAnalyzed {
		t.Errorf("expected analyzed, got %s", out.Status)
	}
	got, _ := s.GetEvent(ctx, e.ID)
	if got.Interpretation.CounterCase != "second counter" {
		t.Errorf("expected replaced counter-case, got %q", got.Interpretation.CounterCase)
	}
	events, _ := s.ListEvents(ctx, store.ListEventsParams{Limit: -1})
	if len(events) != 1 {
		t.Errorf("expected one event after overwrite, got %d", len(events))
	}
}

func TestAnalyze_Guards(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	fresh := putScored(t, s, "new", -1)
	monitoring := putScored(t, s, "mon", 58)
	dismissed := putScored(t, s, "dis", 80)
	if err := s.Dismiss(ctx, dismissed.ID); err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	p := replies(answer("c"))
	o, _ := newOrchestrator(s, p)

	tests := []struct {
		id   string
		want error
	}{
		{fresh.ID, ErrNotScored},
		{monitoring.ID, ErrNotPriority},
		{dismissed.ID, ErrDismissed},
		{"missing", store.ErrNotFound},
	}
	for _, tt := range tests {
		if _, err := o.Analyze(ctx, tt.id, Options{Overwrite: true}); !errors.Is(err, tt.want) {
			t.Errorf("expected %v, got %v", tt.want, err)
		}
	}
	if p.count() != 0 {
		t.Errorf("expected no provider calls, got %d", p.count())
	}
}

func TestAnalyze_CounterCaseReprompt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := putScored(t, s, "k1", 86)
	p := replies(answer(""), answer("Second try counter"))
	o, _ := newOrchestrator(s, p)

	out, err := o.Analyze(ctx, e.ID, Options{})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !out.Reprompted || out.CounterCaseMissing || out.Attempts != 2 {
		t.Errorf("unexpected outcome %s", out)
	}
	if p.calls[0].Note != "" || !strings.Contains(p.calls[1].Note, "counter_case is mandatory") {
		t.Errorf("expected corrective note only on the re-prompt")
	}
	got, _ := s.GetEvent(ctx, e.ID)
	if got.Interpretation.CounterCase != "Second try counter" {
		t.Errorf("unexpected counter-case %q", got.Interpretation.CounterCase)
	}
}

func TestAnalyze_CounterCasePlaceholder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := putScored(t, s, "k1", 86)
	p := replies(answer(""))
	o, _ := newOrchestrator(s, p)

	out, err := o.Analyze(ctx, e.ID, Options{})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !out.CounterCaseMissing || p.count() != 2 {
		t.Errorf("expected one re-prompt then placeholder, got %s with %d calls", out, p.count())
	}
	got, _ := s.GetEvent(ctx, e.ID)
	if got.Interpretation.CounterCase != model.CounterCasePlaceholder {
		t.Errorf("expected placeholder, got %q", got.Interpretation.CounterCase)
	}
}

func TestAnalyze_RetriesWithBackoff(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := putScored(t, s, "k1", 86)
	p := &funcProvider{fn: func(n int, req *provider.Request) (string, error) {
		switch n {
		case 1:
			return "", provider.ErrRateLimited
		case 2:
			return "I think gold goes down", nil
		default:
			return answer("counter"), nil
		}
	}}
	o, slept := newOrchestrator(s, p)

	out, err := o.Analyze(ctx, e.ID, Options{})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if out.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", out.Attempts)
	}
	if want := []time.Duration{time.Second, 2 * time.Second}; !reflect.DeepEqual(*slept, want) {
		t.Errorf("expected backoff %v, got %v", want, *slept)
	}
}

func TestAnalyze_FailureLeavesEventUntouched(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := putScored(t, s, "k1", 86)
	o, _ := newOrchestrator(s, replies(answer("original")))
	if _, err := o.Analyze(ctx, e.ID, Options{}); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	before := storedAnalysis(t, s, e.ID)

	failing := &funcProvider{fn: func(n int, req *provider.Request) (string, error) {
		return "", provider.ErrUnavailable
	}}
	o, _ = newOrchestrator(s, failing)
	out, err := o.Analyze(ctx, e.ID, Options{Overwrite: true})
	if !errors.Is(err, provider.ErrUnavailable) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if out == nil || out.Attempts != 3 || out.Status != StatusFailed {
		t.Errorf("expected 3 failed attempts, got %+v", out)
	}
	if after := storedAnalysis(t, s, e.ID); after != before {
		t.Errorf("failed overwrite changed the event\nbefore %s\nafter  %s", before, after)
	}
	if _, err := s.AcquireLease(ctx, e.ID, time.Now().Add(time.Minute)); err != nil {
		t.Errorf("expected lease released after failure, got %v", err)
	}
}

func TestAnalyze_NonRetryableStops(t *testing.T) {
	s := newTestStore(t)
	e := putScored(t, s, "k1", 86)
	p := &funcProvider{fn: func(n int, req *provider.Request) (string, error) {
		return "", errors.New("invalid api key")
	}}
	o, slept := newOrchestrator(s, p)
	out, err := o.Analyze(context.Background(), e.ID, Options{})
	if err == nil || out.Attempts != 1 || len(*slept) != 0 {
		t.Errorf("expected one attempt without backoff, got %v attempts=%d slept=%v", err, out.Attempts, *slept)
	}
}

func TestAnalyze_TransmissionFallback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := putScored(t, s, "k1", 86)
	text := `{"raw_facts":["Fed hikes"],"metal_impacts":{"gold":{"direction":"neutral","driver":"x"}},
		"counter_case":"c","crypto_transmission":{"path":"maybe"}}`
	o, _ := newOrchestrator(s, replies(text))

	out, err := o.Analyze(ctx, e.ID, Options{})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !out.TransmissionFallback {
		t.Error("expected rule table fallback")
	}
	tr := out.Result.Interpretation.Transmission
	if !tr.Exists || tr.Strength != model.StrengthWeak || !reflect.DeepEqual(tr.RelevantAssets, []string{"BTC", "ETH"}) {
		t.Errorf("expected liquidity rule result, got %+v", tr)
	}
	if out.Result.Interpretation.Impacts["gold"].Magnitude != "unknown" {
		t.Errorf("expected default magnitude, got %+v", out.Result.Interpretation.Impacts)
	}
}

func TestAnalyze_DryRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := putScored(t, s, "k1", 86)
	o, _ := newOrchestrator(s, replies(answer("c")))

	out, err := o.Analyze(ctx, e.ID, Options{DryRun: true, KeepPrompt: true})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if out.Status != StatusDryRun || out.Result == nil || !strings.Contains(out.Prompt, "EVENT_JSON") {
		t.Errorf("unexpected dry run outcome %+v", out)
	}
	got, _ := s.GetEvent(ctx, e.ID)
	if got.Status != model.StatusScored || got.Interpretation != nil {
		t.Errorf("dry run must not persist, got %s", got.Status)
	}
}

func TestAnalyze_InFlight(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := putScored(t, s, "k1", 86)

	release := make(chan struct{})
	started := make(chan struct{})
	p := &funcProvider{fn: func(n int, req *provider.Request) (string, error) {
		if n == 1 {
			close(started)
			<-release
		}
		return answer("c"), nil
	}}
	o, _ := newOrchestrator(s, p)

	done := make(chan error, 1)
	go func() {
		_, err := o.Analyze(ctx, e.ID, Options{})
		done <- err
	}()
	<-started
	if _, err := o.Analyze(ctx, e.ID, Options{}); !errors.Is(err, ErrInFlight) {
		t.Errorf("expected ErrInFlight for concurrent analysis, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first analysis: %v", err)
	}
	if p.count() != 1 {
		t.Errorf("expected exactly one provider call, got %d", p.count())
	}
}

func TestAnalyze_LeaseHeldElsewhere(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := putScored(t, s, "k1", 86)
	if _, err := s.AcquireLease(ctx, e.ID, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("lease: %v", err)
	}
	p := replies(answer("c"))
	o, _ := newOrchestrator(s, p)
	if _, err := o.Analyze(ctx, e.ID, Options{}); !errors.Is(err, ErrInFlight) {
		t.Errorf("expected ErrInFlight, got %v", err)
	}
	if p.count() != 0 {
		t.Errorf("expected no provider call, got %d", p.count())
	}
}

func TestAnalyze_DryRunRespectsLease(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := putScored(t, s, "k1", 86)
	if _, err := s.AcquireLease(ctx, e.ID, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("lease: %v", err)
	}
	p := replies(answer("c"))
	o, _ := newOrchestrator(s, p)
	if _, err := o.Analyze(ctx, e.ID, Options{DryRun: true}); !errors.Is(err, ErrInFlight) {
		t.Errorf("expected ErrInFlight, got %v", err)
	}
	if p.count() != 0 {
		t.Errorf("expected no provider call, got %d", p.count())
	}
}

func TestAnalyze_DryRunReleasesLease(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := putScored(t, s, "k1", 86)
	o, _ := newOrchestrator(s, replies(answer("c")))
	if _, err := o.Analyze(ctx, e.ID, Options{DryRun: true}); err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if _, err := s.AcquireLease(ctx, e.ID, time.Now().Add(time.Minute)); err != nil {
		t.Errorf("expected lease free after dry run, got %v", err)
	}
}

func TestAnalyze_LeaseOutlivesSlowProvider(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "shared.db")
	ctx := context.Background()
	s := newTestStoreAt(t, dbPath)
	e := putScored(t, s, "k1", 90)

	var mu sync.Mutex
	active, peak := 0, 0
	p := &funcProvider{fn: func(n int, req *provider.Request) (string, error) {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()
		time.Sleep(300 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return answer("Hikes may already be priced in."), nil
	}}

	// Two processes sharing one database, each with its own orchestrator.
	cfg := Config{MaxAttempts: 1, Lease: 100 * time.Millisecond}
	first := New(s, precedent.NewMatcher(s, nil, 5), p, nil, cfg)
	other := newTestStoreAt(t, dbPath)
	second := New(other, precedent.NewMatcher(other, nil, 5), p, nil, cfg)

	done := make(chan error, 1)
	go func() {
		_, err := first.Analyze(ctx, e.ID, Options{})
		done <- err
	}()
	time.Sleep(150 * time.Millisecond)

	if _, err := second.Analyze(ctx, e.ID, Options{}); !errors.Is(err, ErrInFlight) {
		t.Errorf("expected ErrInFlight past the initial lease length, got %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("first analysis: %v", err)
	}
	if p.count() != 1 || peak != 1 {
		t.Errorf("expected one provider call, got %d calls with %d concurrent", p.count(), peak)
	}
	got, _ := s.GetEvent(ctx, e.ID)
	if got.Status != model.StatusAnalyzed {
		t.Errorf("expected analyzed, got %s", got.Status)
	}
}

// blockingProvider waits for cancellation.
type blockingProvider struct {
	started chan struct{}
}

func (b *blockingProvider) Name() string { return "blocking" }

func (b *blockingProvider) Interpret(ctx context.Context, req *provider.Request) (string, error) {
	close(b.started)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(5 * time.Second):
		return answer("c"), nil
	}
}

func TestAnalyze_LostLeaseAbandonsAnalysis(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "shared.db")
	ctx := context.Background()
	s := newTestStoreAt(t, dbPath)
	e := putScored(t, s, "k1", 90)

	p := &blockingProvider{started: make(chan struct{})}
	o := New(s, precedent.NewMatcher(s, nil, 5), p, nil, Config{MaxAttempts: 1, Lease: 60 * time.Millisecond})

	done := make(chan error, 1)
	go func() {
		_, err := o.Analyze(ctx, e.ID, Options{})
		done <- err
	}()
	<-p.started

	// Another process whose clock says the lease has expired takes it over.
	other := newTestStoreAt(t, dbPath)
	other.SetClock(func() time.Time { return time.Now().Add(time.Hour) })
	if _, err := other.AcquireLease(ctx, e.ID, time.Now().Add(2*time.Hour)); err != nil {
		t.Fatalf("take over: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, ErrInFlight) {
			t.Errorf("expected ErrInFlight after losing the lease, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("analysis kept running after losing its lease")
	}
	got, _ := s.GetEvent(ctx, e.ID)
	if got.Status != model.StatusScored || got.Interpretation != nil {
		t.Errorf("expected event untouched, got %s", got.Status)
	}
}

func TestAnalyzePending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	good := putScored(t, s, "good", 90)
	bad := putScored(t, s, "bad", 70)
	putScored(t, s, "low", 40)

	p := &funcProvider{fn: func(n int, req *provider.Request) (string, error) {
		if req.Event.ID == bad.ID {
			return "not json", nil
		}
		return answer("c"), nil
	}}
	o, _ := newOrchestrator(s, p)

	report, err := o.AnalyzePending(ctx, BatchOptions{})
	if err != nil {
		t.Fatalf("analyze pending: %v", err)
	}
	if report.Processed != 1 || report.Failed != 1 || report.Retried != 2 || report.Skipped != 0 {
		t.Errorf("unexpected report %s", report.RunReport)
	}
	if len(report.Outcomes) != 2 || report.Outcomes[0].EventID != good.ID {
		t.Errorf("expected highest score first, got %+v", report.Outcomes)
	}
	got, _ := s.GetEvent(ctx, bad.ID)
	if got.Status != model.StatusScored {
		t.Errorf("expected failed event to stay scored, got %s", got.Status)
	}

	report, _ = o.AnalyzePending(ctx, BatchOptions{EventID: good.ID})
	if report.Skipped != 1 {
		t.Errorf("expected analyzed event skipped without overwrite, got %s", report.RunReport)
	}
}

func TestParseResponse(t *testing.T) {
	topics := []string{"gold", "silver"}
	tests := []struct {
		name    string
		text    string
		wantErr string
	}{
		{"not json", "gold up", "not a JSON object"},
		{"facts missing", `{"metal_impacts":{}}`, "raw_facts must be a list"},
		{"facts empty", `{"raw_facts":["  "],"metal_impacts":{}}`, "at least one fact"},
		{"fact not string", `{"raw_facts":[1],"metal_impacts":{}}`, "raw_facts[0]"},
		{"impacts missing", `{"raw_facts":["a"]}`, "metal_impacts must be an object"},
		{"bad direction", `{"raw_facts":["a"],"metal_impacts":{"gold":{"direction":"sideways"}}}`, "direction"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseResponse(tt.text, topics)
			if !errors.Is(err, provider.ErrMalformedResponse) || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected malformed error containing %q, got %v", tt.wantErr, err)
			}
		})
	}

	long := strings.Repeat("word ", 100)
	p, err := parseResponse("```json\n"+`{"raw_facts":["`+long+`"],"metal_impacts":{"gold":{"direction":"Bullish","magnitude":2}},"historical_precedent":null}`+"\n```", topics)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(p.RawFacts[0]) > MaxFactLen {
		t.Errorf("expected fact cut to %d, got %d", MaxFactLen, len(p.RawFacts[0]))
	}
	if p.Impacts["gold"].Direction != model.DirectionBullish || p.Impacts["gold"].Magnitude != "2" {
		t.Errorf("unexpected gold impact %+v", p.Impacts["gold"])
	}
	if p.Impacts["silver"].Driver != model.NotProvided {
		t.Errorf("expected missing topic marked not provided, got %+v", p.Impacts["silver"])
	}
	if p.Precedent != "insufficient data" || p.CounterCase != "" {
		t.Errorf("unexpected precedent %q / counter %q", p.Precedent, p.CounterCase)
	}
}
