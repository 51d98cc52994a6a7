// Package analysis runs the reasoning provider over priority events and
// persists validated interpretations.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rcliao/meridian/internal/logger"
	"github.com/rcliao/meridian/internal/model"
	"github.com/rcliao/meridian/internal/precedent"
	"github.com/rcliao/meridian/internal/provider"
	"github.com/rcliao/meridian/internal/store"
	"github.com/rcliao/meridian/internal/transmission"
)

var (
	// ErrNotScored is returned for events that have not been scored yet.
	ErrNotScored = errors.New("event is not scored")
	// ErrNotPriority is returned for scored events below the priority threshold.
	ErrNotPriority = errors.New("event is not flagged priority")
	// ErrDismissed is returned for dismissed events.
	ErrDismissed = errors.New("event is dismissed")
	// ErrInFlight is returned while another analysis of the event runs.
	ErrInFlight = errors.New("analysis already in flight")
)

const counterCaseNote = "counter_case is mandatory. Return the full JSON object again " +
	"and include a non-empty counter_case explaining why the main interpretation might be wrong."

// Store is the persistence the orchestrator needs.
type Store interface {
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	ListEvents(ctx context.Context, p store.ListEventsParams) ([]model.Event, error)
	Topics(ctx context.Context) ([]store.TopicStats, error)
	Context(ctx context.Context, p store.ContextParams) (*store.ContextResult, error)
	AcquireLease(ctx context.Context, id string, until time.Time) (string, error)
	RenewLease(ctx context.Context, id, token string, until time.Time) (string, error)
	ReleaseLease(ctx context.Context, id, token string) error
	SaveAnalysis(ctx context.Context, p store.SaveAnalysisParams) error
}

// Matcher finds precedents for an event.
type Matcher interface {
	FindPrecedents(ctx context.Context, q precedent.Query, k int) ([]model.PrecedentMatch, error)
}

// Config tunes the orchestrator.
type Config struct {
	TopK            int
	MaxAttempts     int
	BaseDelay       time.Duration
	Lease           time.Duration
	KnowledgeBudget int // tokens of knowledge context per prompt
	BatchLimit      int
}

func (c *Config) setDefaults() {
	if c.TopK <= 0 {
		c.TopK = precedent.DefaultTopK
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay < 0 {
		c.BaseDelay = 0
	}
	if c.Lease <= 0 {
		c.Lease = 5 * time.Minute
	}
	if c.KnowledgeBudget <= 0 {
		c.KnowledgeBudget = 1500
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = 50
	}
}

// Options controls one analysis.
type Options struct {
	Overwrite  bool
	DryRun     bool // run the provider and validate, but persist nothing
	KeepPrompt bool
}

// Status is the result kind of one analysis.
type Status string

const (
	StatusAnalyzed Status = "analyzed"
	StatusSkipped  Status = "skipped"
	StatusDryRun   Status = "dry_run"
	StatusFailed   Status = "failed"
)

// Outcome describes one analysis. It is returned alongside errors once the
// provider has been called so retries are still reported.
type Outcome struct {
	EventID              string                      `json:"event_id"`
	Status               Status                      `json:"status"`
	Provider             string                      `json:"provider,omitempty"`
	Attempts             int                         `json:"attempts"`
	Reprompted           bool                        `json:"reprompted"`
	CounterCaseMissing   bool                        `json:"counter_case_placeholder"`
	TransmissionFallback bool                        `json:"transmission_fallback"`
	Result               *model.InterpretationResult `json:"result,omitempty"`
	Precedents           []model.PrecedentMatch      `json:"precedents,omitempty"`
	Prompt               string                      `json:"prompt,omitempty"`
	Error                string                      `json:"error,omitempty"`
}

// Orchestrator assembles context, calls the provider, validates the answer
// and saves it atomically.
type Orchestrator struct {
	store     Store
	matcher   Matcher
	provider  provider.Provider
	evaluator *transmission.Evaluator
	cfg       Config
	locks     *keyedLock
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

// New creates an orchestrator.
func New(s Store, m Matcher, p provider.Provider, ev *transmission.Evaluator, cfg Config) *Orchestrator {
	cfg.setDefaults()
	if ev == nil {
		ev = transmission.NewEvaluator()
	}
	return &Orchestrator{
		store:     s,
		matcher:   m,
		provider:  p,
		evaluator: ev,
		cfg:       cfg,
		locks:     newKeyedLock(),
		now:       func() time.Time { return time.Now().UTC() },
		sleep:     sleepCtx,
	}
}

// Analyze interprets one priority event. An analyzed event is left
// untouched unless Overwrite is set. A failure at any step leaves the
// stored event as it was.
func (o *Orchestrator) Analyze(ctx context.Context, id string, opts Options) (*Outcome, error) {
	e, err := o.store.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := eligible(e); err != nil {
		return nil, err
	}
	out := &Outcome{EventID: id, Provider: o.provider.Name()}
	if e.Status == model.StatusAnalyzed && !opts.Overwrite {
		out.Status = StatusSkipped
		return out, nil
	}

	if !o.locks.tryLock(id) {
		return nil, fmt.Errorf("event %s: %w", id, ErrInFlight)
	}
	defer o.locks.unlock(id)

	// Dry runs hold the lease too: they still call the provider.
	actx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	lease, err := o.holdLease(actx, id, cancel)
	if errors.Is(err, store.ErrConflict) {
		return nil, fmt.Errorf("event %s: %w", id, ErrInFlight)
	}
	if err != nil {
		return nil, err
	}
	defer lease.release(ctx)

	// Re-read under the lease; the event may have moved meanwhile.
	if e, err = o.store.GetEvent(actx, id); err != nil {
		return nil, err
	}
	if err := eligible(e); err != nil {
		return nil, err
	}
	if e.Status == model.StatusAnalyzed && !opts.Overwrite {
		out.Status = StatusSkipped
		return out, nil
	}

	req, err := o.buildRequest(actx, e)
	if err != nil {
		return nil, err
	}
	out.Precedents = req.Precedents
	if opts.KeepPrompt {
		out.Prompt = provider.BuildPrompt(req)
	}

	log := logger.Log.WithFields(logrus.Fields{"event_id": id, "provider": out.Provider})
	p, err := o.interpret(actx, req, out)
	if err != nil {
		err = leaseCause(actx, err)
		out.Status = StatusFailed
		out.Error = err.Error()
		log.WithField("attempts", out.Attempts).Errorf("analysis failed, event unchanged: %v", err)
		return out, err
	}

	if p.CounterCase == "" {
		out.Reprompted = true
		log.Warn("provider omitted counter_case, re-prompting once")
		retry := *req
		retry.Note = counterCaseNote
		second, err := o.interpret(actx, &retry, out)
		if err = leaseCause(actx, err); errors.Is(err, ErrInFlight) {
			out.Status = StatusFailed
			out.Error = err.Error()
			log.Warnf("analysis abandoned: %v", err)
			return out, err
		}
		switch {
		case err != nil:
			log.Warnf("re-prompt failed, keeping first answer: %v", err)
		case second.CounterCase != "":
			p = second
		}
		if p.CounterCase == "" {
			out.CounterCaseMissing = true
			p.CounterCase = model.CounterCasePlaceholder
		}
	}

	t, fallback := o.evaluator.Resolve(p.Transmission, e)
	out.TransmissionFallback = fallback
	out.Result = &model.InterpretationResult{
		RawFacts: p.RawFacts,
		Interpretation: model.Interpretation{
			Impacts:      p.Impacts,
			Precedent:    p.Precedent,
			CounterCase:  p.CounterCase,
			Transmission: t,
		},
	}

	if opts.DryRun {
		out.Status = StatusDryRun
		return out, nil
	}
	if err := context.Cause(actx); err != nil && errors.Is(err, ErrInFlight) {
		out.Status = StatusFailed
		out.Error = err.Error()
		return out, err
	}
	err = o.store.SaveAnalysis(ctx, store.SaveAnalysisParams{
		ID:         id,
		Result:     *out.Result,
		Precedents: req.Precedents,
		Overwrite:  opts.Overwrite,
		LeaseToken: lease.stopRenewing(),
	})
	if err != nil {
		out.Status = StatusFailed
		out.Error = err.Error()
		log.Errorf("save analysis failed: %v", err)
		return out, err
	}
	out.Status = StatusAnalyzed
	log.WithFields(logrus.Fields{
		"attempts":              out.Attempts,
		"transmission_fallback": fallback,
	}).Info("event analyzed")
	return out, nil
}

// leaseCause reports a lost lease in place of the cancellation it caused.
func leaseCause(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if cause := context.Cause(ctx); cause != nil && errors.Is(cause, ErrInFlight) {
		return cause
	}
	return err
}

func eligible(e *model.Event) error {
	switch {
	case e.Status == model.StatusDismissed:
		return fmt.Errorf("event %s: %w", e.ID, ErrDismissed)
	case e.Status == model.StatusNew:
		return fmt.Errorf("event %s: %w", e.ID, ErrNotScored)
	case !e.Priority:
		return fmt.Errorf("event %s: %w", e.ID, ErrNotPriority)
	}
	return nil
}

// buildRequest gathers knowledge and precedents. The knowledge base and
// case library are read-only here.
func (o *Orchestrator) buildRequest(ctx context.Context, e *model.Event) (*provider.Request, error) {
	stats, err := o.store.Topics(ctx)
	if err != nil {
		return nil, fmt.Errorf("load topics: %w", err)
	}
	topics := make([]string, len(stats))
	for i, t := range stats {
		topics[i] = t.Topic
	}

	kctx, err := o.store.Context(ctx, store.ContextParams{Query: e.Text(), Budget: o.cfg.KnowledgeBudget})
	if err != nil {
		return nil, fmt.Errorf("load knowledge: %w", err)
	}

	var precedents []model.PrecedentMatch
	if o.matcher != nil {
		precedents, err = o.matcher.FindPrecedents(ctx, precedent.QueryFor(e), o.cfg.TopK)
		if err != nil {
			return nil, fmt.Errorf("find precedents: %w", err)
		}
	}

	return &provider.Request{
		Event:      e,
		Knowledge:  kctx.Knowledge(),
		Precedents: precedents,
		Topics:     topics,
	}, nil
}

// interpret calls the provider and validates the answer, retrying
// retryable failures with exponential backoff.
func (o *Orchestrator) interpret(ctx context.Context, req *provider.Request, out *Outcome) (*parsed, error) {
	topics := req.TopicsOrDefault()
	var lastErr error
	for i := 0; i < o.cfg.MaxAttempts; i++ {
		if i > 0 {
			delay := o.cfg.BaseDelay * time.Duration(1<<(i-1))
			logger.Log.WithField("event_id", req.Event.ID).Debugf("retrying in %s: %v", delay, lastErr)
			if err := o.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
		out.Attempts++

		text, err := o.provider.Interpret(ctx, req)
		if err == nil {
			var p *parsed
			if p, err = parseResponse(text, topics); err == nil {
				return p, nil
			}
		}
		lastErr = err
		if !provider.Retryable(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("after %d attempts: %w", o.cfg.MaxAttempts, lastErr)
}

// BatchOptions controls AnalyzePending.
type BatchOptions struct {
	Limit      int
	Overwrite  bool
	DryRun     bool
	EventID    string // analyze only this event
	KeepPrompt bool
}

// BatchReport is the outcome of AnalyzePending.
type BatchReport struct {
	model.RunReport
	Outcomes []*Outcome `json:"outcomes"`
}

// AnalyzePending analyzes scored priority events, highest score first, or
// only opts.EventID when set. A failed event never stops the batch.
func (o *Orchestrator) AnalyzePending(ctx context.Context, opts BatchOptions) (*BatchReport, error) {
	var ids []string
	if opts.EventID != "" {
		ids = []string{opts.EventID}
	} else {
		limit := opts.Limit
		if limit <= 0 {
			limit = o.cfg.BatchLimit
		}
		statuses := []model.Status{model.StatusScored}
		if opts.Overwrite {
			statuses = model.SourcesFor(model.StatusAnalyzed)
		}
		events, err := o.store.ListEvents(ctx, store.ListEventsParams{
			Statuses:     statuses,
			PriorityOnly: true,
			Limit:        limit,
			Order:        store.OrderScore,
		})
		if err != nil {
			return nil, fmt.Errorf("list priority events: %w", err)
		}
		for _, e := range events {
			ids = append(ids, e.ID)
		}
	}

	report := &BatchReport{Outcomes: []*Outcome{}}
	for i, id := range ids {
		if ctx.Err() != nil {
			report.Skipped += len(ids) - i
			logger.Log.WithField("remaining", len(ids)-i).Warn("analysis batch cancelled")
			break
		}
		out, err := o.Analyze(ctx, id, Options{Overwrite: opts.Overwrite, DryRun: opts.DryRun, KeepPrompt: opts.KeepPrompt})
		if out == nil {
			out = &Outcome{EventID: id, Status: StatusSkipped}
		}
		if out.Attempts > 1 {
			report.Retried += out.Attempts - 1
		}
		switch {
		case errors.Is(err, ErrInFlight), errors.Is(err, ErrNotPriority), errors.Is(err, ErrDismissed), errors.Is(err, ErrNotScored):
			report.Skipped++
			out.Status = StatusSkipped
			out.Error = err.Error()
			logger.Log.WithField("event_id", id).Infof("analysis skipped: %v", err)
		case err != nil:
			report.Failed++
			out.Status = StatusFailed
			out.Error = err.Error()
		case out.Status == StatusSkipped:
			report.Skipped++
		default:
			report.Processed++
		}
		report.Outcomes = append(report.Outcomes, out)
	}

	logger.Log.WithFields(logrus.Fields{
		"dry_run":   opts.DryRun,
		"overwrite": opts.Overwrite,
	}).Infof("analysis run: %s", report.RunReport)
	return report, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// String renders an outcome as one line.
func (o *Outcome) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s attempts=%d", o.EventID, o.Status, o.Attempts)
	if o.Reprompted {
		b.WriteString(" reprompted")
	}
	if o.CounterCaseMissing {
		b.WriteString(" counter_case=placeholder")
	}
	if o.TransmissionFallback {
		b.WriteString(" transmission=rules")
	}
	if o.Error != "" {
		b.WriteString(" error=" + o.Error)
	}
	return b.String()
}
