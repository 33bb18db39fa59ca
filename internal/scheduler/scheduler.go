// Package scheduler fires the publication cycle on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"blogwire/internal/logger"

	"github.com/robfig/cron/v3"
)

// Job is the callback registered with a Scheduler.
type Job func(ctx context.Context)

// Scheduler registers jobs against cron specs and owns their lifecycle.
type Scheduler interface {
	// Register adds job under a 5-field cron spec.
	Register(spec string, job Job) error
	// Start begins firing registered jobs.
	Start()
	// Stop cancels pending triggers and waits for running jobs. Jobs still running
	// when ctx is done see their context cancelled.
	Stop(ctx context.Context) error
}

// DailySpec returns the cron spec firing once a day at hour:minute.
func DailySpec(hour, minute int) string {
	return fmt.Sprintf("%d %d * * *", minute, hour)
}

// CronScheduler runs jobs with robfig/cron.
type CronScheduler struct {
	cron   *cron.Cron
	parser cron.Parser
	ctx    context.Context
	cancel context.CancelFunc
	log    *logger.Logger
}

// NewCronScheduler creates a scheduler using the standard 5-field parser. Panics in
// jobs are recovered and logged.
func NewCronScheduler() *CronScheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	log := logger.Get()
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cronLogger{log})))
	ctx, cancel := context.WithCancel(context.Background())
	return &CronScheduler{cron: c, parser: parser, ctx: ctx, cancel: cancel, log: log}
}

// Register implements Scheduler.
func (s *CronScheduler) Register(spec string, job Job) error {
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	id, err := s.cron.AddFunc(spec, s.bind(job))
	if err != nil {
		return fmt.Errorf("failed to register job: %w", err)
	}
	s.log.Info("Registered scheduled job", "spec", spec, "entry_id", int(id))
	return nil
}

func (s *CronScheduler) bind(job Job) func() {
	return func() { job(s.ctx) }
}

// Start implements Scheduler.
func (s *CronScheduler) Start() {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.log.Info("Next scheduled run", "entry_id", int(e.ID), "next", e.Next)
	}
}

// Stop implements Scheduler. A running cycle is allowed to finish; its context is
// cancelled only if ctx expires first.
func (s *CronScheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.cancel()
		s.log.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.cancel()
		return fmt.Errorf("scheduler stop interrupted: %w", ctx.Err())
	}
}

// cronLogger adapts the process logger to cron.Logger.
type cronLogger struct {
	log *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error(msg, err, keysAndValues...)
}

// ManualScheduler records registrations and fires them only on Trigger.
type ManualScheduler struct {
	mu      sync.Mutex
	specs   []string
	jobs    []Job
	started bool
	stopped bool
}

// NewManualScheduler creates an empty ManualScheduler.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// Register implements Scheduler.
func (m *ManualScheduler) Register(spec string, job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.specs = append(m.specs, spec)
	m.jobs = append(m.jobs, job)
	return nil
}

// Start implements Scheduler.
func (m *ManualScheduler) Start() {
	m.mu.Lock()
	m.started = true
	m.mu.Unlock()
}

// Stop implements Scheduler.
func (m *ManualScheduler) Stop(context.Context) error {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
	return nil
}

// Trigger runs every registered job once, synchronously. It is a no-op unless
// the scheduler is started and not stopped.
func (m *ManualScheduler) Trigger(ctx context.Context) int {
	m.mu.Lock()
	if !m.started || m.stopped {
		m.mu.Unlock()
		return 0
	}
	jobs := append([]Job(nil), m.jobs...)
	m.mu.Unlock()

	for _, job := range jobs {
		job(ctx)
	}
	return len(jobs)
}

// Specs returns the registered cron specs.
func (m *ManualScheduler) Specs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.specs...)
}
