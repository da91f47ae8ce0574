package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	domainErrors "github.com/polkiloo/stockpoints/internal/domain/errors"
	"github.com/polkiloo/stockpoints/internal/domain/model"
)

const pgCheckViolation = "23514"

// --- BalanceRepository implementation ---

func (r *balanceRepository) GetOrCreate(ctx context.Context, userID int64) (*model.Balance, error) {
	const insertQuery = `INSERT INTO balances (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`
	if _, err := r.storage.pool.Exec(ctx, insertQuery, userID); err != nil {
		return nil, err
	}

	const selectQuery = `SELECT user_id, points, version, updated_at FROM balances WHERE user_id=$1`
	var b model.Balance
	if err := r.storage.pool.QueryRow(ctx, selectQuery, userID).Scan(&b.UserID, &b.Points, &b.Version, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *balanceRepository) Apply(ctx context.Context, change model.BalanceChange) (*model.Balance, *model.Transaction, error) {
	var (
		balance model.Balance
		entry   model.Transaction
	)

	err := r.storage.WithinTransaction(ctx, func(tx pgx.Tx) error {
		if change.RefundOrderID != "" {
			const markRefunded = `UPDATE orders SET refunded=TRUE, updated_at=NOW() WHERE id=$1 AND refunded=FALSE`
			tag, err := tx.Exec(ctx, markRefunded, change.RefundOrderID)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return domainErrors.ErrAlreadyRefunded
			}
		}

		const updateBalance = `UPDATE balances SET points = points + $1, version = version + 1, updated_at = NOW()
                               WHERE user_id=$2 AND version=$3
                               RETURNING user_id, points, version, updated_at`
		err := tx.QueryRow(ctx, updateBalance, change.Amount, change.UserID, change.ExpectedVersion).
			Scan(&balance.UserID, &balance.Points, &balance.Version, &balance.UpdatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.Is(err, pgx.ErrNoRows) || (errors.As(err, &pgErr) && pgErr.Code == pgCheckViolation) {
				return domainErrors.ErrStorageConflict
			}
			return err
		}

		entry = model.Transaction{
			ID:           change.TransactionID,
			UserID:       change.UserID,
			Amount:       change.Amount,
			Reason:       change.Reason,
			Reference:    change.Reference,
			BalanceAfter: balance.Points,
		}
		const insertTransaction = `INSERT INTO transactions (id, user_id, amount, reason, reference, balance_after)
                                   VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`
		if err := tx.QueryRow(ctx, insertTransaction, entry.ID, entry.UserID, entry.Amount, string(entry.Reason), entry.Reference, entry.BalanceAfter).
			Scan(&entry.CreatedAt); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}

		if change.Batch != nil {
			return insertBatchTx(ctx, tx, change.Batch)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &balance, &entry, nil
}

func insertBatchTx(ctx context.Context, tx pgx.Tx, batch *model.Batch) error {
	excluded, err := encodeExcluded(batch.Excluded)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	const insertBatch = `INSERT INTO batches (id, user_id, total_cost, excluded) VALUES ($1, $2, $3, $4) RETURNING created_at`
	if err := tx.QueryRow(ctx, insertBatch, batch.ID, batch.UserID, batch.TotalCost, excluded).Scan(&batch.CreatedAt); err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	const insertOrder = `INSERT INTO orders (id, batch_id, user_id, position, site, asset_id, source_url, cost, state, attempts)
                         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	for i := range batch.Orders {
		o := &batch.Orders[i]
		if _, err := tx.Exec(ctx, insertOrder, o.ID, batch.ID, o.UserID, o.Position, o.Site, o.AssetID, o.SourceURL, o.Cost, string(o.State), o.Attempts); err != nil {
			return fmt.Errorf("insert order %s: %w", o.ID, err)
		}
		o.BatchID = batch.ID
		o.CreatedAt = batch.CreatedAt
		o.UpdatedAt = batch.CreatedAt
	}
	return nil
}

// --- TransactionRepository implementation ---

func (r *transactionRepository) ListByUser(ctx context.Context, userID int64) ([]model.Transaction, error) {
	const query = `SELECT id, user_id, amount, reason, reference, balance_after, created_at
                   FROM transactions WHERE user_id=$1 ORDER BY created_at DESC, id`
	rows, err := r.storage.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Transaction
	for rows.Next() {
		var (
			t      model.Transaction
			reason string
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &reason, &t.Reference, &t.BalanceAfter, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Reason = model.TransactionReason(reason)
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
