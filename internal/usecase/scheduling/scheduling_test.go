package scheduling

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSchedulerTaskFires(t *testing.T) {
	var count atomic.Int32

	s := NewScheduler(newTestLogger())
	if err := s.Add("ticker", "50ms", func(ctx context.Context) error {
		count.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	time.Sleep(200 * time.Millisecond)
	s.Stop()

	if c := count.Load(); c < 1 {
		t.Errorf("task fired %d times, expected at least 1", c)
	}
}

func TestSchedulerDuplicateName(t *testing.T) {
	s := NewScheduler(newTestLogger())
	_ = s.Add("dup", "1h", func(ctx context.Context) error { return nil })
	if err := s.Add("dup", "1h", func(ctx context.Context) error { return nil }); err == nil {
		t.Error("expected error for duplicate task name")
	}
	if s.Len() != 1 {
		t.Errorf("len = %d, want 1", s.Len())
	}
}

func TestSchedulerInvalidSchedule(t *testing.T) {
	s := NewScheduler(newTestLogger())
	if err := s.Add("bad", "not-a-schedule", func(ctx context.Context) error { return nil }); err == nil {
		t.Error("expected error for invalid schedule")
	}
}

func TestSchedulerRemove(t *testing.T) {
	var count atomic.Int32
	s := NewScheduler(newTestLogger())
	_ = s.Add("removable", "50ms", func(ctx context.Context) error {
		count.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	time.Sleep(100 * time.Millisecond)
	if err := s.Remove("removable"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	after := count.Load()
	time.Sleep(150 * time.Millisecond)
	s.Stop()

	if count.Load() > after+1 {
		t.Error("task continued firing after removal")
	}
	if err := s.Remove("removable"); err == nil {
		t.Error("expected error removing an unknown task")
	}
}

func TestSchedulerTaskErrorDoesNotStopOthers(t *testing.T) {
	var ok atomic.Int32
	s := NewScheduler(newTestLogger())
	_ = s.Add("failing", "50ms", func(ctx context.Context) error {
		return fmt.Errorf("simulated error")
	})
	_ = s.Add("healthy", "50ms", func(ctx context.Context) error {
		ok.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	time.Sleep(200 * time.Millisecond)
	s.Stop()

	if ok.Load() < 1 {
		t.Error("healthy task never fired alongside a failing one")
	}
}

func TestSchedulerPanicRecovered(t *testing.T) {
	var after atomic.Int32
	s := NewScheduler(newTestLogger())
	_ = s.Add("panicky", "40ms", func(ctx context.Context) error {
		panic("boom")
	})
	_ = s.Add("survivor", "40ms", func(ctx context.Context) error {
		after.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	time.Sleep(200 * time.Millisecond)
	s.Stop()

	if after.Load() < 1 {
		t.Error("a panicking task should not take down the scheduler")
	}
}

func TestSchedulerStopPreventsFurtherRuns(t *testing.T) {
	var count atomic.Int32
	s := NewScheduler(newTestLogger())
	_ = s.Add("ctx-task", "50ms", func(ctx context.Context) error {
		count.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	time.Sleep(150 * time.Millisecond)
	cancel()
	s.Stop()

	after := count.Load()
	time.Sleep(100 * time.Millisecond)
	if count.Load() != after {
		t.Error("task continued after Stop")
	}
}

func TestSchedulerDoubleStop(t *testing.T) {
	s := NewScheduler(newTestLogger())
	s.Start(context.Background())
	s.Stop()
	s.Stop()
}

func TestSchedulerStopWithoutStart(t *testing.T) {
	s := NewScheduler(newTestLogger())
	s.Stop()
}

func TestSchedulerNextRun(t *testing.T) {
	s := NewScheduler(newTestLogger())
	_ = s.Add("hourly", "1h", func(ctx context.Context) error { return nil })

	s.Start(context.Background())
	defer s.Stop()

	next := s.NextRun("hourly")
	if next == nil {
		t.Fatal("expected non-nil next run time")
	}
	if next.Before(time.Now()) {
		t.Error("next run should be in the future")
	}
	if s.NextRun("nope") != nil {
		t.Error("expected nil for unknown task")
	}
}

func TestValidate(t *testing.T) {
	valid := []string{"*/5 * * * *", "0 9 * * 1-5", "@every 30m", "30m", "100ms"}
	for _, schedule := range valid {
		if err := Validate(schedule); err != nil {
			t.Errorf("Validate(%q) = %v", schedule, err)
		}
	}
	invalid := []string{"", "not-a-schedule", "-5m", "* * *"}
	for _, schedule := range invalid {
		if err := Validate(schedule); err == nil {
			t.Errorf("Validate(%q) should fail", schedule)
		}
	}
}
