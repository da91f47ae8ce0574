package repository

import (
	"context"
	"time"

	"github.com/polkiloo/stockpoints/internal/domain/model"
)

// OrderRepository describes persistence operations with orders.
type OrderRepository interface {
	Update(ctx context.Context, order *model.Order) error
	ListByBatch(ctx context.Context, batchID string) ([]model.Order, error)
	// ClaimStale returns unfinished orders untouched for longer than staleAfter
	// and marks them touched so concurrent sweepers skip them.
	ClaimStale(ctx context.Context, staleAfter time.Duration, limit int) ([]model.Order, error)
}

// BatchRepository reads batches. Batches are created through BalanceRepository.Apply.
type BatchRepository interface {
	Get(ctx context.Context, batchID string) (*model.Batch, error)
}
