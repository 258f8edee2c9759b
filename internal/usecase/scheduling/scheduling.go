// Package scheduling runs named recurring tasks on cron expressions or
// fixed intervals.
package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// defaultRunTimeout bounds a single task run.
const defaultRunTimeout = 5 * time.Minute

// Scheduler runs named tasks on recurring schedules. Tasks added before
// Start begin firing once the scheduler starts; tasks added after start
// fire on their next slot.
type Scheduler struct {
	cron    *cron.Cron
	entries map[string]cron.EntryID
	logger  *slog.Logger

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler creates a Scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		entries: make(map[string]cron.EntryID),
		logger:  logger,
	}
}

// Add registers a named task. Names are unique; re-adding an existing
// name is an error. The schedule is a five-field cron expression or a
// duration string.
func (s *Scheduler) Add(name, schedule string, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[name]; exists {
		return fmt.Errorf("scheduler: task %q already exists", name)
	}
	sched, err := parseSchedule(schedule)
	if err != nil {
		return fmt.Errorf("scheduler: task %q: %w", name, err)
	}

	logger := s.logger
	entryID := s.cron.Schedule(sched, cron.FuncJob(func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()
		if ctx == nil {
			logger.Debug("scheduler stopped, skipping task", "task", name)
			return
		}

		runCtx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				logger.Error("scheduled task panicked", "task", name, "panic", r)
			}
		}()

		start := time.Now()
		if err := fn(runCtx); err != nil {
			logger.Warn("scheduled task failed", "task", name, "error", err, "duration", time.Since(start))
			return
		}
		logger.Info("scheduled task completed", "task", name, "duration", time.Since(start))
	}))

	s.entries[name] = entryID
	logger.Info("task scheduled", "task", name, "schedule", schedule)
	return nil
}

// Remove unregisters a named task.
func (s *Scheduler) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("scheduler: task %q not found", name)
	}
	s.cron.Remove(entryID)
	delete(s.entries, name)
	return nil
}

// NextRun returns the next fire time of a named task, or nil when the
// task is unknown or the scheduler has not started.
func (s *Scheduler) NextRun(name string) *time.Time {
	s.mu.Lock()
	entryID, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	entry := s.cron.Entry(entryID)
	if entry.Next.IsZero() {
		return nil
	}
	t := entry.Next
	return &t
}

// Len returns the number of registered tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Start begins firing schedules. Idempotent.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.started = true
}

// Stop cancels running tasks and waits for them to settle. The wait
// happens outside the mutex; task closures take it to read the context.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.ctx = nil
	s.started = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
}

// Validate reports whether schedule parses as a cron expression or
// duration.
func Validate(schedule string) error {
	_, err := parseSchedule(schedule)
	return err
}

// parseSchedule accepts a five-field cron expression (with @descriptors)
// or a Go duration string.
func parseSchedule(schedule string) (cron.Schedule, error) {
	if schedule == "" {
		return nil, fmt.Errorf("empty schedule")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if sched, err := parser.Parse(schedule); err == nil {
		return sched, nil
	}

	dur, err := time.ParseDuration(schedule)
	if err != nil {
		return nil, fmt.Errorf("not a valid cron expression or duration: %q", schedule)
	}
	if dur <= 0 {
		return nil, fmt.Errorf("duration must be positive: %q", schedule)
	}
	return constantDelay{delay: dur}, nil
}

// constantDelay implements cron.Schedule for a fixed interval. Unlike
// cron.Every() it supports sub-second durations.
type constantDelay struct {
	delay time.Duration
}

func (d constantDelay) Next(t time.Time) time.Time {
	return t.Add(d.delay)
}
