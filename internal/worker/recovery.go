package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/polkiloo/stockpoints/internal/domain/model"
)

// RecoveryFacade exposes the subset of application functionality required by the sweeper.
type RecoveryFacade interface {
	StaleOrders(ctx context.Context, limit int) ([]model.Order, error)
	ResumeOrder(ctx context.Context, order model.Order) error
}

// Recovery periodically resumes orders abandoned by a crashed or restarted process.
type Recovery struct {
	facade    RecoveryFacade
	interval  time.Duration
	batchSize int
	logger    *slog.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
	mu     sync.Mutex
}

// NewRecovery constructs the sweeper.
func NewRecovery(facade RecoveryFacade, interval time.Duration, batchSize int, logger *slog.Logger) *Recovery {
	if batchSize <= 0 {
		batchSize = 1
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Recovery{
		facade:    facade,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Start runs one sweep immediately and then one per interval.
func (r *Recovery) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go r.loop(runCtx)
}

// Stop waits for the running sweep to finish.
func (r *Recovery) Stop() {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Recovery) loop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Recovery) sweep(ctx context.Context) {
	orders, err := r.facade.StaleOrders(ctx, r.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Error("fetch stale orders failed", slog.String("error", err.Error()))
		}
		return
	}
	if len(orders) > 0 {
		r.logger.Info("resuming stale orders", slog.Int("count", len(orders)))
	}
	for _, order := range orders {
		if ctx.Err() != nil {
			return
		}
		if err := r.facade.ResumeOrder(ctx, order); err != nil {
			r.logger.Error("resume order failed", slog.String("order_id", order.ID), slog.String("error", err.Error()))
		}
	}
}
