package app

import (
	"context"

	"github.com/polkiloo/stockpoints/internal/config"
	"github.com/polkiloo/stockpoints/internal/domain/model"
	"github.com/polkiloo/stockpoints/internal/domain/repository"
	"github.com/polkiloo/stockpoints/internal/usecase"
)

// StockFacade is the single entry point used by the HTTP layer and the recovery sweeper.
type StockFacade struct {
	auth    *usecase.AuthUseCase
	ledger  *usecase.LedgerUseCase
	batches *usecase.BatchUseCase
	storage repository.Factory
	cfg     *config.Config
}

func NewStockFacade(auth *usecase.AuthUseCase, ledger *usecase.LedgerUseCase, batches *usecase.BatchUseCase, storage repository.Factory, cfg *config.Config) *StockFacade {
	return &StockFacade{auth: auth, ledger: ledger, batches: batches, storage: storage, cfg: cfg}
}

func (f *StockFacade) Register(ctx context.Context, login, password string) (*model.Session, error) {
	return f.auth.Register(ctx, login, password)
}

func (f *StockFacade) Authenticate(ctx context.Context, login, password string) (*model.Session, error) {
	return f.auth.Authenticate(ctx, login, password)
}

func (f *StockFacade) ParseToken(token string) (int64, error) {
	return f.auth.ParseToken(token)
}

func (f *StockFacade) Balance(ctx context.Context, userID int64) (int64, error) {
	return f.ledger.Balance(ctx, userID)
}

func (f *StockFacade) Transactions(ctx context.Context, userID int64) ([]model.Transaction, error) {
	return f.ledger.History(ctx, userID)
}

func (f *StockFacade) AdjustBalance(ctx context.Context, userID, delta int64, reference string) (*model.Balance, error) {
	return f.ledger.Adjust(ctx, userID, delta, reference)
}

func (f *StockFacade) SubmitBatch(ctx context.Context, userID int64, items []model.AssetRequest) (*model.BatchResult, error) {
	return f.batches.Submit(ctx, userID, items)
}

func (f *StockFacade) StartBatch(ctx context.Context, userID int64, items []model.AssetRequest) (*model.BatchResult, error) {
	return f.batches.Start(ctx, userID, items)
}

func (f *StockFacade) BatchStatus(ctx context.Context, userID int64, batchID string) (*model.BatchStatus, error) {
	return f.batches.Status(ctx, userID, batchID)
}

func (f *StockFacade) StaleOrders(ctx context.Context, limit int) ([]model.Order, error) {
	return f.storage.Orders().ClaimStale(ctx, f.cfg.RecoveryStaleAfter, limit)
}

func (f *StockFacade) ResumeOrder(ctx context.Context, order model.Order) error {
	return f.batches.Resume(ctx, order)
}

func (f *StockFacade) HealthCheck(ctx context.Context) error {
	return f.storage.HealthCheck(ctx)
}
