package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/polkiloo/stockpoints/internal/domain/model"
)

var (
	// ErrQueueFull is returned when the event buffer has no room; the event is dropped.
	ErrQueueFull = errors.New("notification queue is full")
	// ErrNotifierClosed is returned for events published after Stop.
	ErrNotifierClosed = errors.New("notifier is stopped")
)

const defaultSendTimeout = 5 * time.Second

type job struct {
	event string
	key   string
	send  func(ctx context.Context) error
}

// Async hands events to a single publisher goroutine so callers never wait
// on the downstream notifier.
type Async struct {
	next        Notifier
	logger      *slog.Logger
	sendTimeout time.Duration

	mu      sync.RWMutex
	closed  bool
	started bool
	jobs    chan job
	done    chan struct{}
}

var _ Notifier = (*Async)(nil)

// NewAsync wraps next with a buffer of size events.
func NewAsync(next Notifier, size int, logger *slog.Logger) *Async {
	if size <= 0 {
		size = 1
	}
	return &Async{
		next:        next,
		logger:      logger,
		sendTimeout: defaultSendTimeout,
		jobs:        make(chan job, size),
		done:        make(chan struct{}),
	}
}

// Start launches the publisher goroutine.
func (a *Async) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started || a.closed {
		return
	}
	a.started = true
	go a.run()
}

// Stop refuses new events and waits until buffered ones are delivered or ctx ends.
func (a *Async) Stop(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.jobs)
	started := a.started
	a.mu.Unlock()

	if !started {
		return nil
	}
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Async) BatchCompleted(_ context.Context, userID int64, result model.BatchResult) error {
	return a.enqueue(job{
		event: EventBatchCompleted,
		key:   result.BatchID,
		send: func(ctx context.Context) error {
			return a.next.BatchCompleted(ctx, userID, result)
		},
	})
}

func (a *Async) OrderFailed(_ context.Context, order model.Order) error {
	return a.enqueue(job{
		event: EventOrderFailed,
		key:   order.ID,
		send: func(ctx context.Context) error {
			return a.next.OrderFailed(ctx, order)
		},
	})
}

func (a *Async) enqueue(j job) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrNotifierClosed
	}
	select {
	case a.jobs <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

func (a *Async) run() {
	defer close(a.done)
	for j := range a.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), a.sendTimeout)
		err := j.send(ctx)
		cancel()
		if err != nil {
			a.logger.Warn("event delivery failed",
				slog.String("type", j.event),
				slog.String("key", j.key),
				slog.String("error", err.Error()))
		}
	}
}
