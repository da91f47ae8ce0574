package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingTask struct {
	id    string
	steps int32
	until int32
	delay time.Duration

	mu      sync.Mutex
	running bool
	overlap bool
}

func (t *countingTask) ID() string { return t.id }

func (t *countingTask) Step(ctx context.Context) (time.Duration, bool) {
	t.mu.Lock()
	if t.running {
		t.overlap = true
	}
	t.running = true
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
	}()

	n := atomic.AddInt32(&t.steps, 1)
	return t.delay, n >= t.until
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func waitClosed(t *testing.T, ch <-chan struct{}, timeout time.Duration) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatal("timeout waiting for completion")
	}
}

func TestNewSchedulerDefaults(t *testing.T) {
	s := NewScheduler(0, discardLogger())
	if s.workers != 1 {
		t.Fatalf("expected workers default to 1, got %d", s.workers)
	}
}

func TestSchedulerRunsTaskToCompletion(t *testing.T) {
	s := NewScheduler(2, discardLogger())
	s.Start(context.Background())
	defer s.Stop()

	task := &countingTask{id: "a", until: 4, delay: 5 * time.Millisecond}
	done := make(chan struct{})
	if err := s.Schedule(task, func() { close(done) }); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	waitClosed(t, done, time.Second)

	if got := atomic.LoadInt32(&task.steps); got != 4 {
		t.Fatalf("expected 4 steps, got %d", got)
	}
	if task.overlap {
		t.Fatal("steps of one task overlapped")
	}
	if s.InFlight() != 0 {
		t.Fatalf("expected no tasks in flight, got %d", s.InFlight())
	}
}

func TestSchedulerZeroDelayStepsInline(t *testing.T) {
	s := NewScheduler(1, discardLogger())
	s.Start(context.Background())
	defer s.Stop()

	task := &countingTask{id: "b", until: 10}
	done := make(chan struct{})
	if err := s.Schedule(task, func() { close(done) }); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	waitClosed(t, done, time.Second)
}

func TestSchedulerManyTasksOnSmallPool(t *testing.T) {
	s := NewScheduler(2, discardLogger())
	s.Start(context.Background())
	defer s.Stop()

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		task := &countingTask{id: string(rune('A' + i)), until: 3, delay: time.Millisecond}
		if err := s.Schedule(task, wg.Done); err != nil {
			t.Fatalf("schedule %d: %v", i, err)
		}
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	waitClosed(t, finished, 2*time.Second)
}

func TestSchedulerRejectsDuplicateAndStopped(t *testing.T) {
	s := NewScheduler(1, discardLogger())
	if err := s.Schedule(&countingTask{id: "x", until: 1}, nil); !errors.Is(err, ErrSchedulerStopped) {
		t.Fatalf("expected ErrSchedulerStopped before start, got %v", err)
	}

	s.Start(context.Background())
	long := &countingTask{id: "x", until: 2, delay: time.Hour}
	if err := s.Schedule(long, nil); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := s.Schedule(&countingTask{id: "x", until: 1}, nil); !errors.Is(err, ErrAlreadyScheduled) {
		t.Fatalf("expected ErrAlreadyScheduled, got %v", err)
	}

	s.Stop()
	waitClosed(t, s.Done(), time.Second)
	if err := s.Schedule(&countingTask{id: "y", until: 1}, nil); !errors.Is(err, ErrSchedulerStopped) {
		t.Fatalf("expected ErrSchedulerStopped after stop, got %v", err)
	}
	if s.InFlight() != 0 {
		t.Fatalf("expected pending timers discarded, got %d in flight", s.InFlight())
	}
}
