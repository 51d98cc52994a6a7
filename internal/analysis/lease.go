package analysis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rcliao/meridian/internal/logger"
)

// heldLease keeps an event's store lease alive while one analysis runs.
// Losing it cancels the analysis context with an ErrInFlight cause.
type heldLease struct {
	store Store
	id    string

	mu    sync.Mutex
	token string

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// holdLease acquires the lease and renews it every third of its length
// until stopRenewing or release.
func (o *Orchestrator) holdLease(ctx context.Context, id string, cancel context.CancelCauseFunc) (*heldLease, error) {
	token, err := o.store.AcquireLease(ctx, id, o.now().Add(o.cfg.Lease))
	if err != nil {
		return nil, err
	}
	l := &heldLease{
		store: o.store,
		id:    id,
		token: token,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go l.renew(ctx, o, cancel)
	return l, nil
}

func (l *heldLease) renew(ctx context.Context, o *Orchestrator, cancel context.CancelCauseFunc) {
	defer close(l.done)
	every := o.cfg.Lease / 3
	if every < time.Millisecond {
		every = time.Millisecond
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ctx.Done():
			return
		case <-t.C:
		}
		l.mu.Lock()
		next, err := l.store.RenewLease(ctx, l.id, l.token, o.now().Add(o.cfg.Lease))
		if err == nil {
			l.token = next
		}
		l.mu.Unlock()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Log.WithField("event_id", l.id).Warnf("analysis lease lost: %v", err)
			cancel(fmt.Errorf("event %s: lease lost: %w", l.id, ErrInFlight))
			return
		}
	}
}

// stopRenewing halts the renewal loop and returns the current token.
func (l *heldLease) stopRenewing() string {
	l.stopOnce.Do(func() { close(l.stop) })
	<-l.done
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.token
}

// release stops renewing and clears the lease. After a successful save
// the lease is already gone and this is a no-op.
func (l *heldLease) release(ctx context.Context) {
	token := l.stopRenewing()
	if err := l.store.ReleaseLease(context.WithoutCancel(ctx), l.id, token); err != nil {
		logger.Log.WithField("event_id", l.id).Warnf("release lease: %v", err)
	}
}
