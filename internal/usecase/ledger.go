package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/polkiloo/stockpoints/internal/config"
	domainErrors "github.com/polkiloo/stockpoints/internal/domain/errors"
	"github.com/polkiloo/stockpoints/internal/domain/model"
	"github.com/polkiloo/stockpoints/internal/domain/repository"
	"github.com/polkiloo/stockpoints/internal/metrics"
)

// LedgerUseCase mutates point balances. Every mutation is a version
// compare-and-set that is retried on conflict.
type LedgerUseCase struct {
	balances     repository.BalanceRepository
	transactions repository.TransactionRepository
	maxAttempts  int
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// NewLedgerUseCase constructs LedgerUseCase.
func NewLedgerUseCase(
	balances repository.BalanceRepository,
	transactions repository.TransactionRepository,
	cfg *config.Config,
	m *metrics.Metrics,
	logger *slog.Logger,
) *LedgerUseCase {
	attempts := cfg.LedgerMaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return &LedgerUseCase{
		balances:     balances,
		transactions: transactions,
		maxAttempts:  attempts,
		metrics:      m,
		logger:       logger,
	}
}

// GetOrCreate returns the balance of a user, creating an empty one.
func (u *LedgerUseCase) GetOrCreate(ctx context.Context, userID int64) (*model.Balance, error) {
	if userID <= 0 {
		return nil, domainErrors.ErrUnauthenticated
	}
	return u.balances.GetOrCreate(ctx, userID)
}

// Balance returns current points of a user.
func (u *LedgerUseCase) Balance(ctx context.Context, userID int64) (int64, error) {
	bal, err := u.GetOrCreate(ctx, userID)
	if err != nil {
		return 0, err
	}
	return bal.Points, nil
}

// Credit adds points to a user balance.
func (u *LedgerUseCase) Credit(ctx context.Context, userID, points int64, reason model.TransactionReason, reference string) (*model.Balance, error) {
	if points <= 0 {
		return nil, domainErrors.ErrInvalidAmount
	}
	bal, _, err := u.apply(ctx, model.BalanceChange{UserID: userID, Amount: points, Reason: reason, Reference: reference})
	return bal, err
}

// Debit removes points from a user balance. A short balance yields
// *errors.InsufficientBalanceError and nothing is written.
func (u *LedgerUseCase) Debit(ctx context.Context, userID, points int64, reason model.TransactionReason, reference string) (*model.Balance, error) {
	if points <= 0 {
		return nil, domainErrors.ErrInvalidAmount
	}
	bal, _, err := u.apply(ctx, model.BalanceChange{UserID: userID, Amount: -points, Reason: reason, Reference: reference})
	return bal, err
}

// Adjust credits a positive delta and debits a negative one. Zero only ensures
// the balance exists.
func (u *LedgerUseCase) Adjust(ctx context.Context, userID, delta int64, reference string) (*model.Balance, error) {
	if delta == 0 {
		return u.GetOrCreate(ctx, userID)
	}
	bal, _, err := u.apply(ctx, model.BalanceChange{UserID: userID, Amount: delta, Reason: model.ReasonAdjustment, Reference: reference})
	return bal, err
}

// Reserve debits the batch total and stores the batch with its orders in the
// same write.
func (u *LedgerUseCase) Reserve(ctx context.Context, batch *model.Batch) (*model.Balance, error) {
	if batch == nil || len(batch.Orders) == 0 {
		return nil, domainErrors.ErrEmptyBatch
	}
	if batch.TotalCost <= 0 {
		return nil, domainErrors.ErrInvalidAmount
	}
	bal, _, err := u.apply(ctx, model.BalanceChange{
		UserID:    batch.UserID,
		Amount:    -batch.TotalCost,
		Reason:    model.ReasonDebitForOrder,
		Reference: batch.ID,
		Batch:     batch,
	})
	return bal, err
}

// Refund returns the cost of a failed order. It reports false when the order
// was refunded before.
func (u *LedgerUseCase) Refund(ctx context.Context, order model.Order) (*model.Balance, bool, error) {
	if order.State != model.OrderStateFailed {
		return nil, false, fmt.Errorf("refund order %s in state %s: %w", order.ID, order.State, domainErrors.ErrInvalidAmount)
	}
	bal, _, err := u.apply(ctx, model.BalanceChange{
		UserID:        order.UserID,
		Amount:        order.Cost,
		Reason:        model.ReasonRefund,
		Reference:     order.ID,
		RefundOrderID: order.ID,
	})
	if errors.Is(err, domainErrors.ErrAlreadyRefunded) {
		bal, err = u.balances.GetOrCreate(ctx, order.UserID)
		return bal, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return bal, true, nil
}

// History lists ledger transactions of a user, newest first.
func (u *LedgerUseCase) History(ctx context.Context, userID int64) ([]model.Transaction, error) {
	if userID <= 0 {
		return nil, domainErrors.ErrUnauthenticated
	}
	return u.transactions.ListByUser(ctx, userID)
}

func (u *LedgerUseCase) apply(ctx context.Context, change model.BalanceChange) (*model.Balance, *model.Transaction, error) {
	if change.UserID <= 0 {
		return nil, nil, domainErrors.ErrUnauthenticated
	}
	change.TransactionID = uuid.NewString()
	reason := string(change.Reason)

	for attempt := 1; attempt <= u.maxAttempts; attempt++ {
		current, err := u.balances.GetOrCreate(ctx, change.UserID)
		if err != nil {
			u.metrics.LedgerMutation(reason, "error")
			return nil, nil, err
		}
		if change.Amount < 0 && current.Points+change.Amount < 0 {
			u.metrics.LedgerMutation(reason, "insufficient")
			return nil, nil, &domainErrors.InsufficientBalanceError{
				UserID:    change.UserID,
				Required:  -change.Amount,
				Available: current.Points,
			}
		}

		change.ExpectedVersion = current.Version
		bal, tx, err := u.balances.Apply(ctx, change)
		switch {
		case err == nil:
			u.metrics.LedgerMutation(reason, "ok")
			u.logger.Debug("ledger mutation",
				slog.Int64("user_id", change.UserID),
				slog.Int64("amount", change.Amount),
				slog.String("reason", reason),
				slog.String("reference", change.Reference),
				slog.Int64("balance", bal.Points))
			return bal, tx, nil
		case errors.Is(err, domainErrors.ErrStorageConflict):
			u.metrics.LedgerConflict()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, nil, ctxErr
			}
			continue
		case errors.Is(err, domainErrors.ErrAlreadyRefunded):
			u.metrics.LedgerMutation(reason, "duplicate")
			return nil, nil, err
		default:
			u.metrics.LedgerMutation(reason, "error")
			return nil, nil, err
		}
	}

	u.metrics.LedgerMutation(reason, "conflict")
	u.logger.Warn("ledger gave up after conflicts", slog.Int64("user_id", change.UserID), slog.Int("attempts", u.maxAttempts))
	return nil, nil, fmt.Errorf("ledger: %d attempts: %w", u.maxAttempts, domainErrors.ErrStorageConflict)
}
