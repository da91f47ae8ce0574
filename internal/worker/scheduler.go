package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrSchedulerStopped is returned when tasks are scheduled outside Start/Stop.
	ErrSchedulerStopped = errors.New("scheduler is not running")
	// ErrAlreadyScheduled is returned for a task whose ID is still in flight.
	ErrAlreadyScheduled = errors.New("task already scheduled")
)

// Task is a resumable unit of work. Step reports the delay before the next
// step, or done once the task finished.
type Task interface {
	ID() string
	Step(ctx context.Context) (delay time.Duration, done bool)
}

// Scheduler executes task steps on a fixed worker pool. Waiting tasks hold a
// timer rather than a goroutine.
type Scheduler struct {
	workers int
	logger  *slog.Logger

	jobs chan *entry

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	inflight map[string]*entry
	stopped  chan struct{}
	wg       sync.WaitGroup
}

type entry struct {
	task   Task
	onDone func()
	timer  *time.Timer
}

// NewScheduler constructs a scheduler with the given pool size.
func NewScheduler(workers int, logger *slog.Logger) *Scheduler {
	if workers <= 0 {
		workers = 1
	}
	return &Scheduler{
		workers:  workers,
		logger:   logger,
		jobs:     make(chan *entry, workers*4),
		inflight: make(map[string]*entry),
		stopped:  make(chan struct{}),
	}
}

// Start launches the worker pool. Tasks run on ctx, not on their submitter's context.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(s.ctx)
	}
}

// Stop cancels running steps, discards pending timers and waits for workers.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return
	}
	s.cancel()
	for id, e := range s.inflight {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(s.inflight, id)
	}
	select {
	case <-s.stopped:
	default:
		close(s.stopped)
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// Done is closed once the scheduler stops.
func (s *Scheduler) Done() <-chan struct{} {
	return s.stopped
}

// InFlight returns the number of unfinished tasks.
func (s *Scheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

// Schedule queues the first step of task. onDone, when set, runs on a worker
// after the task finished.
func (s *Scheduler) Schedule(task Task, onDone func()) error {
	s.mu.Lock()
	if s.ctx == nil || s.ctx.Err() != nil {
		s.mu.Unlock()
		return ErrSchedulerStopped
	}
	if _, ok := s.inflight[task.ID()]; ok {
		s.mu.Unlock()
		return ErrAlreadyScheduled
	}
	e := &entry{task: task, onDone: onDone}
	s.inflight[task.ID()] = e
	ctx := s.ctx
	s.mu.Unlock()

	s.enqueue(ctx, e)
	return nil
}

func (s *Scheduler) enqueue(ctx context.Context, e *entry) {
	select {
	case <-ctx.Done():
	case s.jobs <- e:
	}
}

func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-s.jobs:
			s.run(ctx, e)
		}
	}
}

// run steps the task until it finishes or asks to wait.
func (s *Scheduler) run(ctx context.Context, e *entry) {
	for {
		delay, done := e.task.Step(ctx)
		if ctx.Err() != nil {
			return
		}
		if done {
			s.finish(e)
			return
		}
		if delay > 0 {
			s.arm(ctx, e, delay)
			return
		}
	}
}

func (s *Scheduler) arm(ctx context.Context, e *entry, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	e.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		e.timer = nil
		s.mu.Unlock()
		s.enqueue(ctx, e)
	})
}

func (s *Scheduler) finish(e *entry) {
	s.mu.Lock()
	delete(s.inflight, e.task.ID())
	s.mu.Unlock()

	if e.onDone != nil {
		e.onDone()
	}
	s.logger.Debug("task finished", slog.String("task_id", e.task.ID()))
}
