package handlers

import (
	"context"

	"github.com/polkiloo/stockpoints/internal/domain/model"
)

// AuthFacade describes authentication capabilities required by handlers.
type AuthFacade interface {
	Register(ctx context.Context, login, password string) (*model.Session, error)
	Authenticate(ctx context.Context, login, password string) (*model.Session, error)
	ParseToken(token string) (int64, error)
}

// LedgerFacade provides balance related operations.
type LedgerFacade interface {
	Balance(ctx context.Context, userID int64) (int64, error)
	Transactions(ctx context.Context, userID int64) ([]model.Transaction, error)
	AdjustBalance(ctx context.Context, userID, delta int64, reference string) (*model.Balance, error)
}

// BatchFacade encapsulates batch operations exposed via HTTP.
type BatchFacade interface {
	SubmitBatch(ctx context.Context, userID int64, items []model.AssetRequest) (*model.BatchResult, error)
	StartBatch(ctx context.Context, userID int64, items []model.AssetRequest) (*model.BatchResult, error)
	BatchStatus(ctx context.Context, userID int64, batchID string) (*model.BatchStatus, error)
}

// HealthFacade reports readiness of dependencies.
type HealthFacade interface {
	HealthCheck(ctx context.Context) error
}

// StockFacade aggregates the full set of operations used across handlers.
type StockFacade interface {
	AuthFacade
	LedgerFacade
	BatchFacade
	HealthFacade
}
