// Package scheduler runs the pipeline stages as independent cron jobs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/rcliao/meridian/internal/logger"
	"github.com/rcliao/meridian/internal/model"
)

var (
	// ErrAlreadyRunning is returned when a job is triggered while its
	// previous run is still going.
	ErrAlreadyRunning = errors.New("job already running")
	// ErrUnknownJob is returned for a name that was never registered.
	ErrUnknownJob = errors.New("unknown job")
)

// Job is one pipeline stage run.
type Job func(ctx context.Context) (model.RunReport, error)

type jobEntry struct {
	name       string
	schedule   string
	job        Job
	cronID     cron.EntryID
	lastRun    *time.Time
	lastReport model.RunReport
	lastError  string
	isRunning  bool
}

// JobStatus is a snapshot of one job.
type JobStatus struct {
	Name       string          `json:"name"`
	Schedule   string          `json:"schedule"`
	Running    bool            `json:"running"`
	LastRun    *time.Time      `json:"last_run,omitempty"`
	NextRun    *time.Time      `json:"next_run,omitempty"`
	LastReport model.RunReport `json:"last_report"`
	LastError  string          `json:"last_error,omitempty"`
}

// Scheduler owns the cron runner. Jobs never overlap with themselves but
// distinct jobs run concurrently.
type Scheduler struct {
	cron *cron.Cron
	mu   sync.Mutex
	jobs map[string]*jobEntry
	ctx  context.Context
}

// New creates a scheduler. Jobs run with ctx.
func New(ctx context.Context) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithLogger(cron.PrintfLogger(logger.Log))),
		jobs: make(map[string]*jobEntry),
		ctx:  ctx,
	}
}

// Register adds a job under a standard five-field cron expression. An
// empty schedule registers nothing.
func (s *Scheduler) Register(name, schedule string, job Job) error {
	if schedule == "" {
		logger.Log.WithField("job", name).Info("job disabled (no schedule)")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}
	entry := &jobEntry{name: name, schedule: schedule, job: job}
	id, err := s.cron.AddFunc(schedule, func() { s.execute(name) })
	if err != nil {
		return fmt.Errorf("job %s: invalid schedule %q: %w", name, schedule, err)
	}
	entry.cronID = id
	s.jobs[name] = entry

	logger.Log.WithFields(logrus.Fields{"job": name, "schedule": schedule}).Info("job registered")
	return nil
}

// Start begins running jobs on their schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Log.Info("scheduler started")
}

// Stop halts the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	logger.Log.Info("scheduler stopped")
}

// RunNow runs a job synchronously, outside its schedule.
func (s *Scheduler) RunNow(name string) (model.RunReport, error) {
	s.mu.Lock()
	entry, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return model.RunReport{}, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.run(entry)
}

func (s *Scheduler) execute(name string) {
	s.mu.Lock()
	entry, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return
	}
	if _, err := s.run(entry); errors.Is(err, ErrAlreadyRunning) {
		logger.Log.WithField("job", name).Warn("previous run still going, tick skipped")
	}
}

func (s *Scheduler) run(entry *jobEntry) (report model.RunReport, err error) {
	s.mu.Lock()
	if entry.isRunning {
		s.mu.Unlock()
		return model.RunReport{}, fmt.Errorf("%w: %s", ErrAlreadyRunning, entry.name)
	}
	entry.isRunning = true
	s.mu.Unlock()

	log := logger.Log.WithField("job", entry.name)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			log.Errorf("job panicked: %v", r)
		}
		done := time.Now()
		s.mu.Lock()
		entry.isRunning = false
		entry.lastRun = &done
		entry.lastReport = report
		entry.lastError = ""
		if err != nil {
			entry.lastError = err.Error()
		}
		s.mu.Unlock()
	}()

	log.Debug("job started")
	report, err = entry.job(s.ctx)
	fields := logrus.Fields{
		"processed": report.Processed,
		"failed":    report.Failed,
		"retried":   report.Retried,
		"skipped":   report.Skipped,
		"duration":  time.Since(start).Round(time.Millisecond).String(),
	}
	if err != nil {
		log.WithFields(fields).Errorf("job failed: %v", err)
	} else {
		log.WithFields(fields).Info("job finished")
	}
	return report, err
}

// Statuses returns every job ordered by name.
func (s *Scheduler) Statuses() []JobStatus {
	next := map[cron.EntryID]time.Time{}
	for _, e := range s.cron.Entries() {
		next[e.ID] = e.Next
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStatus, 0, len(s.jobs))
	for _, e := range s.jobs {
		st := JobStatus{
			Name:       e.name,
			Schedule:   e.schedule,
			Running:    e.isRunning,
			LastRun:    e.lastRun,
			LastReport: e.lastReport,
			LastError:  e.lastError,
		}
		if n, ok := next[e.cronID]; ok && !n.IsZero() {
			st.NextRun = &n
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
