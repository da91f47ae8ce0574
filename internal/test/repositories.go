package test

import (
	"context"
	"sync"
	"time"

	domainErrors "github.com/polkiloo/stockpoints/internal/domain/errors"
	"github.com/polkiloo/stockpoints/internal/domain/model"
)

// UserRepositoryStub stores accounts in-memory for tests.
type UserRepositoryStub struct {
	mu       sync.Mutex
	Users    map[string]*model.User
	Accounts map[int64]model.NewAccount
	Next     int64
	Err      error
}

// NewUserRepositoryStub constructs stub repository with initialized maps.
func NewUserRepositoryStub() *UserRepositoryStub {
	return &UserRepositoryStub{
		Users:    make(map[string]*model.User),
		Accounts: make(map[int64]model.NewAccount),
		Next:     1,
	}
}

// CreateAccount registers a user with its opening balance unless the login is taken.
func (s *UserRepositoryStub) CreateAccount(ctx context.Context, account model.NewAccount) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Users == nil {
		s.Users = make(map[string]*model.User)
	}
	if s.Accounts == nil {
		s.Accounts = make(map[int64]model.NewAccount)
	}
	if _, exists := s.Users[account.Login]; exists {
		return nil, domainErrors.ErrAlreadyExists
	}
	if s.Next == 0 {
		s.Next = 1
	}
	user := &model.User{ID: s.Next, Login: account.Login, PasswordHash: account.PasswordHash}
	s.Next++
	s.Users[account.Login] = user
	s.Accounts[user.ID] = account
	return &model.Account{
		User:    *user,
		Balance: model.Balance{UserID: user.ID, Points: account.OpeningPoints},
	}, nil
}

// GetByLogin fetches user by login or returns not found.
func (s *UserRepositoryStub) GetByLogin(ctx context.Context, login string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	if user, ok := s.Users[login]; ok {
		return user, nil
	}
	return nil, domainErrors.ErrNotFound
}

// OrderRepositoryStub allows tests to customize behaviour.
type OrderRepositoryStub struct {
	UpdateFn      func(context.Context, *model.Order) error
	ListByBatchFn func(context.Context, string) ([]model.Order, error)
	ClaimStaleFn  func(context.Context, time.Duration, int) ([]model.Order, error)

	Orders  []model.Order
	Stale   []model.Order
	Updates []model.Order

	mu sync.Mutex
}

// Update records persisted orders.
func (s *OrderRepositoryStub) Update(ctx context.Context, order *model.Order) error {
	if s.UpdateFn != nil {
		return s.UpdateFn(ctx, order)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Updates = append(s.Updates, *order)
	return nil
}

// ListByBatch returns orders from configured slice.
func (s *OrderRepositoryStub) ListByBatch(ctx context.Context, batchID string) ([]model.Order, error) {
	if s.ListByBatchFn != nil {
		return s.ListByBatchFn(ctx, batchID)
	}
	var result []model.Order
	for _, o := range s.Orders {
		if o.BatchID == batchID {
			result = append(result, o)
		}
	}
	return result, nil
}

// ClaimStale returns queued stale orders.
func (s *OrderRepositoryStub) ClaimStale(ctx context.Context, staleAfter time.Duration, limit int) ([]model.Order, error) {
	if s.ClaimStaleFn != nil {
		return s.ClaimStaleFn(ctx, staleAfter, limit)
	}
	if limit > 0 && len(s.Stale) > limit {
		return s.Stale[:limit], nil
	}
	return s.Stale, nil
}
