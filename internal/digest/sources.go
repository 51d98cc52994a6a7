package digest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rcliao/meridian/internal/model"
)

// ErrNoSnapshot is returned by a source that has nothing for the day.
var ErrNoSnapshot = errors.New("no snapshot")

// MarketSource supplies the market and price view for a day.
type MarketSource interface {
	Market(ctx context.Context, day time.Time) (*model.MarketSnapshot, error)
}

// CalendarSource supplies scheduled releases between start and end.
type CalendarSource interface {
	Calendar(ctx context.Context, start, end time.Time) ([]model.CalendarEntry, error)
}

// ThesisSource supplies active tracked ideas.
type ThesisSource interface {
	Theses(ctx context.Context, limit int) ([]model.ThesisSummary, error)
}

// closedThesis lists statuses that drop a thesis from the digest.
var closedThesis = map[string]bool{"closed": true, "dismissed": true, "archived": true}

// SnapshotDir reads snapshots from JSON files in a directory. For each
// kind it tries <kind>-YYYY-MM-DD.json first, then <kind>.json:
//
//	market.json    model.MarketSnapshot
//	calendar.json  []model.CalendarEntry
//	theses.json    []model.ThesisSummary
type SnapshotDir struct {
	Dir string
}

// NewSnapshotDir returns a source rooted at dir.
func NewSnapshotDir(dir string) *SnapshotDir {
	return &SnapshotDir{Dir: dir}
}

// Market implements MarketSource.
func (d *SnapshotDir) Market(ctx context.Context, day time.Time) (*model.MarketSnapshot, error) {
	var m model.MarketSnapshot
	if err := d.read(ctx, "market", day, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Calendar implements CalendarSource. Only high-impact releases in the
// window are returned, ordered by time then name.
func (d *SnapshotDir) Calendar(ctx context.Context, start, end time.Time) ([]model.CalendarEntry, error) {
	var all []model.CalendarEntry
	if err := d.read(ctx, "calendar", start, &all); err != nil {
		return nil, err
	}
	out := []model.CalendarEntry{}
	for _, c := range all {
		if c.At.Before(start) || !c.At.Before(end) {
			continue
		}
		if !strings.EqualFold(c.Impact, "high") {
			continue
		}
		c.At = c.At.UTC()
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].At.Equal(out[j].At) {
			return out[i].At.Before(out[j].At)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Theses implements ThesisSource. Closed, dismissed and archived theses
// are dropped; the rest are ordered by last update, newest first.
func (d *SnapshotDir) Theses(ctx context.Context, limit int) ([]model.ThesisSummary, error) {
	var all []model.ThesisSummary
	if err := d.read(ctx, "theses", time.Time{}, &all); err != nil {
		return nil, err
	}
	out := []model.ThesisSummary{}
	for _, t := range all {
		if closedThesis[strings.ToLower(t.Status)] {
			continue
		}
		if t.UpdatedAt != nil {
			u := t.UpdatedAt.UTC()
			t.UpdatedAt = &u
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].UpdatedAt, out[j].UpdatedAt
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.After(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (d *SnapshotDir) read(ctx context.Context, kind string, day time.Time, v interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.Dir == "" {
		return fmt.Errorf("%s: %w (no snapshot directory configured)", kind, ErrNoSnapshot)
	}
	var names []string
	if !day.IsZero() {
		names = append(names, kind+"-"+day.Format("2006-01-02")+".json")
	}
	names = append(names, kind+".json")

	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(d.Dir, name))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
		return nil
	}
	return fmt.Errorf("%s: %w", kind, ErrNoSnapshot)
}

// bounded runs fn with a timeout. fn runs in its own goroutine so a source
// that ignores its context still cannot stall assembly.
func bounded[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
