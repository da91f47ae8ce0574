package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polkiloo/stockpoints/internal/domain/model"
)

type recordingNotifier struct {
	release chan struct{}
	err     error

	mu     sync.Mutex
	events []string
}

func (r *recordingNotifier) wait(ctx context.Context) error {
	if r.release == nil {
		return nil
	}
	select {
	case <-r.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *recordingNotifier) record(key string) {
	r.mu.Lock()
	r.events = append(r.events, key)
	r.mu.Unlock()
}

func (r *recordingNotifier) BatchCompleted(ctx context.Context, _ int64, result model.BatchResult) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	r.record(result.BatchID)
	return r.err
}

func (r *recordingNotifier) OrderFailed(ctx context.Context, order model.Order) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	r.record(order.ID)
	return r.err
}

func (r *recordingNotifier) delivered() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func discard() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestAsyncDoesNotBlockOnSlowPublisher(t *testing.T) {
	next := &recordingNotifier{release: make(chan struct{})}
	a := NewAsync(next, 8, discard())
	a.Start()

	began := time.Now()
	require.NoError(t, a.OrderFailed(context.Background(), model.Order{ID: "o-1"}))
	require.NoError(t, a.BatchCompleted(context.Background(), 1, model.BatchResult{BatchID: "b-1"}))
	assert.Less(t, time.Since(began), 100*time.Millisecond)
	assert.Empty(t, next.delivered())

	close(next.release)
	require.NoError(t, a.Stop(context.Background()))
	assert.Equal(t, []string{"o-1", "b-1"}, next.delivered())
}

func TestAsyncDropsWhenBufferIsFull(t *testing.T) {
	next := &recordingNotifier{}
	a := NewAsync(next, 1, discard())

	require.NoError(t, a.OrderFailed(context.Background(), model.Order{ID: "o-1"}))
	err := a.OrderFailed(context.Background(), model.Order{ID: "o-2"})
	assert.ErrorIs(t, err, ErrQueueFull)

	a.Start()
	require.NoError(t, a.Stop(context.Background()))
	assert.Equal(t, []string{"o-1"}, next.delivered())
}

func TestAsyncStopHonoursContext(t *testing.T) {
	next := &recordingNotifier{release: make(chan struct{})}
	a := NewAsync(next, 4, discard())
	a.Start()
	require.NoError(t, a.OrderFailed(context.Background(), model.Order{ID: "stuck"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, a.Stop(ctx), context.DeadlineExceeded)
	close(next.release)

	assert.ErrorIs(t, a.OrderFailed(context.Background(), model.Order{ID: "late"}), ErrNotifierClosed)
	assert.NoError(t, a.Stop(context.Background()))
}

func TestAsyncDeliveryErrorsDoNotStopPublisher(t *testing.T) {
	next := &recordingNotifier{err: errors.New("sqs down")}
	a := NewAsync(next, 4, discard())
	a.Start()

	require.NoError(t, a.OrderFailed(context.Background(), model.Order{ID: "o-1"}))
	require.NoError(t, a.OrderFailed(context.Background(), model.Order{ID: "o-2"}))
	require.NoError(t, a.Stop(context.Background()))
	assert.Equal(t, []string{"o-1", "o-2"}, next.delivered())
}

func TestAsyncStopWithoutStart(t *testing.T) {
	a := NewAsync(&recordingNotifier{}, 0, discard())
	require.NoError(t, a.Stop(context.Background()))
	a.Start()
	assert.ErrorIs(t, a.BatchCompleted(context.Background(), 1, model.BatchResult{}), ErrNotifierClosed)
}
