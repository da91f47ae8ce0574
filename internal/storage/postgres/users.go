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

const pgUniqueViolation = "23505"

func (r *userRepository) CreateAccount(ctx context.Context, account model.NewAccount) (*model.Account, error) {
	result := &model.Account{
		User: model.User{Login: account.Login, PasswordHash: account.PasswordHash},
	}

	err := r.storage.WithinTransaction(ctx, func(tx pgx.Tx) error {
		const insertUser = `INSERT INTO users (login, password_hash) VALUES ($1, $2) RETURNING id, created_at`
		if err := tx.QueryRow(ctx, insertUser, account.Login, account.PasswordHash).
			Scan(&result.User.ID, &result.User.CreatedAt); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
				return domainErrors.ErrAlreadyExists
			}
			return err
		}

		var version int64
		if account.OpeningPoints > 0 {
			version = 1
		}
		const upsertBalance = `INSERT INTO balances (user_id, points, version) VALUES ($1, $2, $3)
                               ON CONFLICT (user_id) DO UPDATE
                               SET points = balances.points + EXCLUDED.points,
                                   version = balances.version + EXCLUDED.version,
                                   updated_at = NOW()
                               RETURNING points, version, updated_at`
		result.Balance.UserID = result.User.ID
		if err := tx.QueryRow(ctx, upsertBalance, result.User.ID, account.OpeningPoints, version).
			Scan(&result.Balance.Points, &result.Balance.Version, &result.Balance.UpdatedAt); err != nil {
			return fmt.Errorf("insert balance: %w", err)
		}

		if account.OpeningPoints <= 0 {
			return nil
		}
		opening := model.Transaction{
			ID:           account.TransactionID,
			UserID:       result.User.ID,
			Amount:       account.OpeningPoints,
			Reason:       model.ReasonSignupBonus,
			BalanceAfter: result.Balance.Points,
		}
		const insertTransaction = `INSERT INTO transactions (id, user_id, amount, reason, reference, balance_after)
                                   VALUES ($1, $2, $3, $4, '', $5) RETURNING created_at`
		if err := tx.QueryRow(ctx, insertTransaction, opening.ID, opening.UserID, opening.Amount, string(opening.Reason), opening.BalanceAfter).
			Scan(&opening.CreatedAt); err != nil {
			return fmt.Errorf("insert signup transaction: %w", err)
		}
		result.Opening = &opening
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *userRepository) GetByLogin(ctx context.Context, login string) (*model.User, error) {
	const query = `SELECT id, login, password_hash, created_at FROM users WHERE login=$1`
	var u model.User
	err := r.storage.pool.QueryRow(ctx, query, login).Scan(&u.ID, &u.Login, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}
