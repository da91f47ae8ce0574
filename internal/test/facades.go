package test

import (
	"context"
	"sync"
	"time"

	"github.com/polkiloo/stockpoints/internal/domain/model"
)

// LedgerFacadeStub simulates balance operations.
type LedgerFacadeStub struct {
	BalanceFn      func(context.Context, int64) (int64, error)
	TransactionsFn func(context.Context, int64) ([]model.Transaction, error)
	AdjustFn       func(context.Context, int64, int64, string) (*model.Balance, error)
}

// Balance returns stored points or a default value.
func (s LedgerFacadeStub) Balance(ctx context.Context, userID int64) (int64, error) {
	if s.BalanceFn != nil {
		return s.BalanceFn(ctx, userID)
	}
	return 100, nil
}

// Transactions returns preconfigured history.
func (s LedgerFacadeStub) Transactions(ctx context.Context, userID int64) ([]model.Transaction, error) {
	if s.TransactionsFn != nil {
		return s.TransactionsFn(ctx, userID)
	}
	return []model.Transaction{{ID: "t-1", UserID: userID, Amount: 100, Reason: model.ReasonPurchase, BalanceAfter: 100, CreatedAt: time.Unix(0, 0)}}, nil
}

// AdjustBalance executes configured adjustment handler.
func (s LedgerFacadeStub) AdjustBalance(ctx context.Context, userID, delta int64, reference string) (*model.Balance, error) {
	if s.AdjustFn != nil {
		return s.AdjustFn(ctx, userID, delta, reference)
	}
	return &model.Balance{UserID: userID, Points: 100 + delta, Version: 1}, nil
}

// BatchFacadeStub provides controllable behaviour for batch endpoints.
type BatchFacadeStub struct {
	SubmitFn func(context.Context, int64, []model.AssetRequest) (*model.BatchResult, error)
	StartFn  func(context.Context, int64, []model.AssetRequest) (*model.BatchResult, error)
	StatusFn func(context.Context, int64, string) (*model.BatchStatus, error)
}

// SubmitBatch delegates to provided function or resolves every item.
func (s BatchFacadeStub) SubmitBatch(ctx context.Context, userID int64, items []model.AssetRequest) (*model.BatchResult, error) {
	if s.SubmitFn != nil {
		return s.SubmitFn(ctx, userID, items)
	}
	result := &model.BatchResult{BatchID: "batch-1", State: model.BatchStateAllSucceeded}
	for i, item := range items {
		result.Items = append(result.Items, model.ItemResult{
			Position:    i,
			Site:        item.Site,
			AssetID:     item.AssetID,
			Outcome:     model.ItemSucceeded,
			Cost:        10,
			DownloadURL: "https://cdn.example/" + item.AssetID,
		})
		result.TotalCost += 10
	}
	result.NewBalance = 100 - result.TotalCost
	return result, nil
}

// StartBatch delegates to provided function or returns an in-progress batch.
func (s BatchFacadeStub) StartBatch(ctx context.Context, userID int64, items []model.AssetRequest) (*model.BatchResult, error) {
	if s.StartFn != nil {
		return s.StartFn(ctx, userID, items)
	}
	return &model.BatchResult{BatchID: "batch-1", State: model.BatchStateInProgress}, nil
}

// BatchStatus returns configured status.
func (s BatchFacadeStub) BatchStatus(ctx context.Context, userID int64, batchID string) (*model.BatchStatus, error) {
	if s.StatusFn != nil {
		return s.StatusFn(ctx, userID, batchID)
	}
	return &model.BatchStatus{BatchID: batchID, State: model.BatchStateInProgress}, nil
}

// RecoveryFacadeStub mimics the sweeper's view of the application.
type RecoveryFacadeStub struct {
	Batches  [][]model.Order
	StaleFn  func(context.Context, int) ([]model.Order, error)
	ResumeFn func(context.Context, model.Order) error

	mu      sync.Mutex
	calls   int
	limit   int
	resumed []string
}

// StaleOrders returns batches from configured queue.
func (s *RecoveryFacadeStub) StaleOrders(ctx context.Context, limit int) ([]model.Order, error) {
	if s.StaleFn != nil {
		return s.StaleFn(ctx, limit)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limit = limit
	s.calls++
	if s.calls <= len(s.Batches) {
		return s.Batches[s.calls-1], nil
	}
	return nil, nil
}

// ResumeOrder records resumed order identifiers.
func (s *RecoveryFacadeStub) ResumeOrder(ctx context.Context, order model.Order) error {
	if s.ResumeFn != nil {
		return s.ResumeFn(ctx, order)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumed = append(s.resumed, order.ID)
	return nil
}

// Resumed returns identifiers passed to ResumeOrder.
func (s *RecoveryFacadeStub) Resumed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.resumed...)
}

// Limit returns the last limit passed to StaleOrders.
func (s *RecoveryFacadeStub) Limit() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limit
}
