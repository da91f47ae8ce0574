package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/polkiloo/stockpoints/internal/config"
	domainErrors "github.com/polkiloo/stockpoints/internal/domain/errors"
	"github.com/polkiloo/stockpoints/internal/domain/model"
	"github.com/polkiloo/stockpoints/internal/domain/repository"
	pkgAuth "github.com/polkiloo/stockpoints/internal/pkg/auth"
)

// AuthUseCase opens accounts and issues session tokens.
type AuthUseCase struct {
	users    repository.UserRepository
	balances repository.BalanceRepository
	hasher   pkgAuth.PasswordHasher
	tokens   pkgAuth.Strategy
	bonus    int64
}

// NewAuthUseCase constructs AuthUseCase.
func NewAuthUseCase(
	users repository.UserRepository,
	balances repository.BalanceRepository,
	hasher pkgAuth.PasswordHasher,
	strategy pkgAuth.Strategy,
	cfg *config.Config,
) *AuthUseCase {
	uc := &AuthUseCase{users: users, balances: balances, hasher: hasher, tokens: strategy}
	if cfg != nil && cfg.SignupBonus > 0 {
		uc.bonus = int64(cfg.SignupBonus)
	}
	return uc
}

// Register opens an account with its balance row in one storage write and returns a session.
func (u *AuthUseCase) Register(ctx context.Context, login, password string) (*model.Session, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, domainErrors.ErrInvalidCredentials
	}

	hash, err := u.hasher.Hash(password)
	if err != nil {
		if errors.Is(err, pkgAuth.ErrPasswordTooLong) {
			return nil, domainErrors.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}

	account := model.NewAccount{Login: login, PasswordHash: hash, OpeningPoints: u.bonus}
	if u.bonus > 0 {
		account.TransactionID = uuid.NewString()
	}
	created, err := u.users.CreateAccount(ctx, account)
	if err != nil {
		if errors.Is(err, domainErrors.ErrAlreadyExists) {
			return nil, domainErrors.ErrAlreadyExists
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	token, err := u.tokens.IssueToken(created.User.ID)
	if err != nil {
		return nil, err
	}
	return &model.Session{UserID: created.User.ID, Token: token, Points: created.Balance.Points}, nil
}

// Authenticate validates credentials and returns a session with the current balance.
func (u *AuthUseCase) Authenticate(ctx context.Context, login, password string) (*model.Session, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, domainErrors.ErrInvalidCredentials
	}

	usr, err := u.users.GetByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, domainErrors.ErrNotFound) {
			return nil, domainErrors.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := u.hasher.Compare(usr.PasswordHash, password); err != nil {
		return nil, domainErrors.ErrInvalidCredentials
	}

	bal, err := u.balances.GetOrCreate(ctx, usr.ID)
	if err != nil {
		return nil, fmt.Errorf("load balance: %w", err)
	}

	token, err := u.tokens.IssueToken(usr.ID)
	if err != nil {
		return nil, err
	}
	return &model.Session{UserID: usr.ID, Token: token, Points: bal.Points}, nil
}

// ParseToken extracts user ID from provided token.
func (u *AuthUseCase) ParseToken(token string) (int64, error) {
	if token == "" {
		return 0, pkgAuth.ErrInvalidToken
	}
	return u.tokens.ParseToken(token)
}
