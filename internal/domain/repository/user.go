package repository

import (
	"context"

	"github.com/polkiloo/stockpoints/internal/domain/model"
)

// UserRepository describes persistence operations for account holders.
type UserRepository interface {
	// CreateAccount inserts the user together with its balance row in one
	// storage transaction. A taken login yields errors.ErrAlreadyExists.
	CreateAccount(ctx context.Context, account model.NewAccount) (*model.Account, error)
	GetByLogin(ctx context.Context, login string) (*model.User, error)
}
