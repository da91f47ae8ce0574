package repository

import (
	"context"

	"github.com/polkiloo/stockpoints/internal/domain/model"
)

// BalanceRepository stores balances and applies conditional ledger writes.
type BalanceRepository interface {
	GetOrCreate(ctx context.Context, userID int64) (*model.Balance, error)
	// Apply returns errors.ErrStorageConflict when the stored version moved.
	Apply(ctx context.Context, change model.BalanceChange) (*model.Balance, *model.Transaction, error)
}

// TransactionRepository provides access to the ledger audit trail.
type TransactionRepository interface {
	ListByUser(ctx context.Context, userID int64) ([]model.Transaction, error)
}
