// Package digest assembles the once-per-day briefing from stored priority
// events and externally supplied snapshots.
package digest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rcliao/meridian/internal/config"
	"github.com/rcliao/meridian/internal/logger"
	"github.com/rcliao/meridian/internal/model"
	"github.com/rcliao/meridian/internal/store"
)

const (
	DefaultEventLimit    = 10
	DefaultThesisLimit   = 10
	DefaultSourceTimeout = 10 * time.Second
)

// Store is the persistence the assembler needs.
type Store interface {
	ListEvents(ctx context.Context, p store.ListEventsParams) ([]model.Event, error)
	GetDigest(ctx context.Context, period string) (*store.DigestRecord, error)
	UpsertDigest(ctx context.Context, r store.DigestRecord) error
}

// Sources are the external snapshot providers. A nil source yields an
// unavailable section.
type Sources struct {
	Market   MarketSource
	Calendar CalendarSource
	Theses   ThesisSource
}

// Digest is an assembled or cached digest.
type Digest struct {
	Snapshot    *model.DigestSnapshot
	Content     []byte
	Fingerprint string
	GeneratedAt time.Time
	Regenerated bool
}

// Assembler builds and caches digests.
type Assembler struct {
	store       Store
	src         Sources
	loc         *time.Location
	eventLimit  int
	thesisLimit int
	timeout     time.Duration
	now         func() time.Time
}

// New creates an assembler. Zero limits and timeout fall back to defaults.
func New(s Store, cfg config.DigestConfig, src Sources) (*Assembler, error) {
	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("digest timezone %q: %w", cfg.Timezone, err)
		}
		loc = l
	}
	a := &Assembler{
		store:       s,
		src:         src,
		loc:         loc,
		eventLimit:  cfg.EventLimit,
		thesisLimit: cfg.ThesisLimit,
		timeout:     cfg.SourceTimeout,
		now:         time.Now,
	}
	if a.eventLimit <= 0 {
		a.eventLimit = DefaultEventLimit
	}
	if a.thesisLimit <= 0 {
		a.thesisLimit = DefaultThesisLimit
	}
	if a.timeout <= 0 {
		a.timeout = DefaultSourceTimeout
	}
	return a, nil
}

// Location is the timezone periods are cut in.
func (a *Assembler) Location() *time.Location { return a.loc }

// Today returns the current period start.
func (a *Assembler) Today() time.Time {
	start, _ := a.Window(a.now())
	return start
}

// ParseDay parses a YYYY-MM-DD period in the assembler's timezone. An empty
// string means today.
func (a *Assembler) ParseDay(s string) (time.Time, error) {
	if s == "" {
		return a.Today(), nil
	}
	day, err := time.ParseInLocation("2006-01-02", s, a.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return day, nil
}

// Window returns [day 00:00, next day 00:00) in the configured timezone.
func (a *Assembler) Window(day time.Time) (time.Time, time.Time) {
	y, m, d := day.In(a.loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, a.loc)
	return start, start.AddDate(0, 0, 1)
}

// Period returns the storage key of the day.
func (a *Assembler) Period(day time.Time) string {
	start, _ := a.Window(day)
	return start.Format("2006-01-02")
}

// Get returns the stored digest for day when its upstream state is
// unchanged, and otherwise assembles and stores a fresh one.
func (a *Assembler) Get(ctx context.Context, day time.Time) (*Digest, error) {
	built, err := a.assemble(ctx, day)
	if err != nil {
		return nil, err
	}

	rec, err := a.store.GetDigest(ctx, built.Snapshot.Period)
	switch {
	case err == nil && rec.Fingerprint == built.Fingerprint:
		var snap model.DigestSnapshot
		if err := json.Unmarshal(rec.Content, &snap); err != nil {
			logger.Log.WithField("period", rec.Period).Warnf("stored digest unreadable, regenerating: %v", err)
			return a.save(ctx, built)
		}
		logger.Log.WithField("period", rec.Period).Debug("digest unchanged")
		return &Digest{
			Snapshot:    &snap,
			Content:     rec.Content,
			Fingerprint: rec.Fingerprint,
			GeneratedAt: rec.GeneratedAt,
		}, nil
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return nil, err
	}
	return a.save(ctx, built)
}

// Refresh always assembles and stores the digest for day.
func (a *Assembler) Refresh(ctx context.Context, day time.Time) (*Digest, error) {
	built, err := a.assemble(ctx, day)
	if err != nil {
		return nil, err
	}
	return a.save(ctx, built)
}

func (a *Assembler) save(ctx context.Context, d *Digest) (*Digest, error) {
	d.GeneratedAt = a.now().UTC()
	d.Regenerated = true
	err := a.store.UpsertDigest(ctx, store.DigestRecord{
		Period:      d.Snapshot.Period,
		Timezone:    d.Snapshot.Timezone,
		Content:     d.Content,
		Text:        d.Snapshot.Text,
		Fingerprint: d.Fingerprint,
		GeneratedAt: d.GeneratedAt,
	})
	if err != nil {
		return nil, err
	}
	logger.Log.WithFields(logrus.Fields{
		"period":      d.Snapshot.Period,
		"events":      len(d.Snapshot.PriorityEvents),
		"fingerprint": d.Fingerprint[:12],
	}).Info("digest stored")
	return d, nil
}

// assemble reads upstream state and builds the snapshot. Only a failure to
// read events is an error; source failures become unavailable sections.
func (a *Assembler) assemble(ctx context.Context, day time.Time) (*Digest, error) {
	start, end := a.Window(day)
	events, err := a.store.ListEvents(ctx, store.ListEventsParams{
		Statuses:     []model.Status{model.StatusScored, model.StatusAnalyzed},
		PriorityOnly: true,
		Since:        start.UTC(),
		Until:        end.UTC(),
		Limit:        a.eventLimit,
		Order:        store.OrderScore,
	})
	if err != nil {
		return nil, fmt.Errorf("digest events: %w", err)
	}

	snap := &model.DigestSnapshot{
		Period:         start.Format("2006-01-02"),
		Timezone:       a.loc.String(),
		WindowStart:    start,
		WindowEnd:      end,
		PriorityEvents: make([]model.DigestEvent, 0, len(events)),
	}
	for i := range events {
		snap.PriorityEvents = append(snap.PriorityEvents, digestEvent(&events[i]))
	}

	var in renderInput
	in.market, snap.Market = a.market(ctx, start)
	in.calendar, snap.Calendar = a.calendar(ctx, start, end)
	in.theses, snap.Theses = a.theses(ctx)
	snap.Text = render(snap, in, a.loc)

	content, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode digest: %w", err)
	}
	return &Digest{
		Snapshot:    snap,
		Content:     content,
		Fingerprint: fingerprint(events, content),
	}, nil
}

func (a *Assembler) market(ctx context.Context, day time.Time) (*model.MarketSnapshot, model.Section) {
	if a.src.Market == nil {
		return nil, unavailable("market", errors.New("no source configured"))
	}
	m, err := bounded(ctx, a.timeout, func(ctx context.Context) (*model.MarketSnapshot, error) {
		return a.src.Market.Market(ctx, day)
	})
	if err != nil {
		return nil, unavailable("market", err)
	}
	return m, available(m)
}

func (a *Assembler) calendar(ctx context.Context, start, end time.Time) ([]model.CalendarEntry, model.Section) {
	if a.src.Calendar == nil {
		return nil, unavailable("calendar", errors.New("no source configured"))
	}
	c, err := bounded(ctx, a.timeout, func(ctx context.Context) ([]model.CalendarEntry, error) {
		return a.src.Calendar.Calendar(ctx, start, end)
	})
	if err != nil {
		return nil, unavailable("calendar", err)
	}
	if c == nil {
		c = []model.CalendarEntry{}
	}
	return c, available(c)
}

func (a *Assembler) theses(ctx context.Context) ([]model.ThesisSummary, model.Section) {
	if a.src.Theses == nil {
		return nil, unavailable("theses", errors.New("no source configured"))
	}
	t, err := bounded(ctx, a.timeout, func(ctx context.Context) ([]model.ThesisSummary, error) {
		return a.src.Theses.Theses(ctx, a.thesisLimit)
	})
	if err != nil {
		return nil, unavailable("theses", err)
	}
	if t == nil {
		t = []model.ThesisSummary{}
	}
	if len(t) > a.thesisLimit {
		t = t[:a.thesisLimit]
	}
	return t, available(t)
}

func available(v interface{}) model.Section {
	data, err := json.Marshal(v)
	if err != nil {
		return model.Section{Available: false, Note: "encode failed: " + err.Error()}
	}
	return model.Section{Available: true, Data: data}
}

func unavailable(kind string, err error) model.Section {
	note := kind + " unavailable: " + err.Error()
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		note = kind + " source timed out"
	case errors.Is(err, ErrNoSnapshot):
		note = "no " + kind + " snapshot"
	}
	logger.Log.WithField("section", kind).Warnf("digest section unavailable: %v", err)
	return model.Section{Available: false, Note: note}
}

func digestEvent(e *model.Event) model.DigestEvent {
	d := model.DigestEvent{
		ID:            e.ID,
		Source:        e.Source,
		Headline:      e.Headline,
		PublishedAt:   e.PublishedAt.UTC(),
		Band:          model.BandPriority,
		AnalysisReady: e.Analyzed(),
	}
	if e.Score != nil {
		d.Score = *e.Score
	}
	if e.Interpretation != nil {
		d.CounterCase = e.Interpretation.CounterCase
		t := e.Interpretation.Transmission
		d.Transmission = &t
	}
	return d
}

// fingerprint hashes the events' identities and update times together with
// the assembled content.
func fingerprint(events []model.Event, content []byte) string {
	h := sha256.New()
	for _, e := range events {
		fmt.Fprintf(h, "%s|%s|%s\n", e.ID, e.UpdatedAt.UTC().Format(time.RFC3339Nano), e.Status)
	}
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}
