package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	domainErrors "github.com/polkiloo/stockpoints/internal/domain/errors"
	"github.com/polkiloo/stockpoints/internal/domain/model"
	"github.com/polkiloo/stockpoints/internal/domain/repository"
)

// Store keeps all state in process memory. Each balance row has its own mutex
// so different users never contend. Lock order is users, balance row, orders.
type Store struct {
	now func() time.Time

	balancesMu sync.Mutex
	balances   map[int64]*balanceRow

	usersMu  sync.RWMutex
	users    map[int64]model.User
	byLogin  map[string]int64
	nextUser int64

	ordersMu sync.RWMutex
	batches  map[string]model.Batch
	orders   map[string]*model.Order
}

type balanceRow struct {
	mu      sync.Mutex
	balance model.Balance
	history []model.Transaction
}

var _ repository.Factory = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		now:      time.Now,
		balances: make(map[int64]*balanceRow),
		users:    make(map[int64]model.User),
		byLogin:  make(map[string]int64),
		batches:  make(map[string]model.Batch),
		orders:   make(map[string]*model.Order),
	}
}

func (s *Store) Users() repository.UserRepository               { return (*userRepository)(s) }
func (s *Store) Balances() repository.BalanceRepository         { return (*balanceRepository)(s) }
func (s *Store) Transactions() repository.TransactionRepository { return (*transactionRepository)(s) }
func (s *Store) Batches() repository.BatchRepository            { return (*batchRepository)(s) }
func (s *Store) Orders() repository.OrderRepository             { return (*orderRepository)(s) }

func (s *Store) HealthCheck(context.Context) error { return nil }

func (s *Store) Close() {}

func (s *Store) row(userID int64) *balanceRow {
	s.balancesMu.Lock()
	defer s.balancesMu.Unlock()
	r, ok := s.balances[userID]
	if !ok {
		r = &balanceRow{balance: model.Balance{UserID: userID, UpdatedAt: s.now()}}
		s.balances[userID] = r
	}
	return r
}

// --- UserRepository implementation ---

type userRepository Store

func (r *userRepository) CreateAccount(_ context.Context, account model.NewAccount) (*model.Account, error) {
	s := (*Store)(r)
	s.usersMu.Lock()
	defer s.usersMu.Unlock()
	if _, ok := s.byLogin[account.Login]; ok {
		return nil, domainErrors.ErrAlreadyExists
	}

	now := s.now()
	s.nextUser++
	u := model.User{ID: s.nextUser, Login: account.Login, PasswordHash: account.PasswordHash, CreatedAt: now}

	row := s.row(u.ID)
	row.mu.Lock()
	defer row.mu.Unlock()
	result := &model.Account{User: u}
	if account.OpeningPoints > 0 {
		row.balance.Points += account.OpeningPoints
		row.balance.Version++
		opening := model.Transaction{
			ID:           account.TransactionID,
			UserID:       u.ID,
			Amount:       account.OpeningPoints,
			Reason:       model.ReasonSignupBonus,
			BalanceAfter: row.balance.Points,
			CreatedAt:    now,
		}
		row.history = append(row.history, opening)
		result.Opening = &opening
	}
	row.balance.UpdatedAt = now
	result.Balance = row.balance

	s.users[u.ID] = u
	s.byLogin[u.Login] = u.ID
	return result, nil
}

func (r *userRepository) GetByLogin(_ context.Context, login string) (*model.User, error) {
	s := (*Store)(r)
	s.usersMu.RLock()
	defer s.usersMu.RUnlock()
	id, ok := s.byLogin[login]
	if !ok {
		return nil, domainErrors.ErrNotFound
	}
	u := s.users[id]
	return &u, nil
}

// HasBalance reports whether a balance row exists for userID without creating one.
func (s *Store) HasBalance(userID int64) bool {
	s.balancesMu.Lock()
	defer s.balancesMu.Unlock()
	_, ok := s.balances[userID]
	return ok
}

// --- BalanceRepository implementation ---

type balanceRepository Store

func (r *balanceRepository) GetOrCreate(_ context.Context, userID int64) (*model.Balance, error) {
	row := (*Store)(r).row(userID)
	row.mu.Lock()
	defer row.mu.Unlock()
	b := row.balance
	return &b, nil
}

func (r *balanceRepository) Apply(ctx context.Context, change model.BalanceChange) (*model.Balance, *model.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	s := (*Store)(r)
	row := s.row(change.UserID)
	row.mu.Lock()
	defer row.mu.Unlock()

	if row.balance.Version != change.ExpectedVersion || row.balance.Points+change.Amount < 0 {
		return nil, nil, domainErrors.ErrStorageConflict
	}

	now := s.now()
	if change.RefundOrderID != "" || change.Batch != nil {
		s.ordersMu.Lock()
		if change.RefundOrderID != "" {
			o, ok := s.orders[change.RefundOrderID]
			if !ok || o.Refunded {
				s.ordersMu.Unlock()
				return nil, nil, domainErrors.ErrAlreadyRefunded
			}
			o.Refunded = true
			o.UpdatedAt = now
		}
		if change.Batch != nil {
			s.insertBatchLocked(change.Batch, now)
		}
		s.ordersMu.Unlock()
	}

	row.balance.Points += change.Amount
	row.balance.Version++
	row.balance.UpdatedAt = now

	entry := model.Transaction{
		ID:           change.TransactionID,
		UserID:       change.UserID,
		Amount:       change.Amount,
		Reason:       change.Reason,
		Reference:    change.Reference,
		BalanceAfter: row.balance.Points,
		CreatedAt:    now,
	}
	row.history = append(row.history, entry)

	b := row.balance
	return &b, &entry, nil
}

func (s *Store) insertBatchLocked(batch *model.Batch, now time.Time) {
	batch.CreatedAt = now
	stored := *batch
	stored.Orders = nil
	stored.Excluded = append([]model.ItemResult(nil), batch.Excluded...)
	s.batches[batch.ID] = stored
	for i := range batch.Orders {
		batch.Orders[i].BatchID = batch.ID
		batch.Orders[i].CreatedAt = now
		batch.Orders[i].UpdatedAt = now
		o := batch.Orders[i]
		s.orders[o.ID] = &o
	}
}

// --- TransactionRepository implementation ---

type transactionRepository Store

func (r *transactionRepository) ListByUser(_ context.Context, userID int64) ([]model.Transaction, error) {
	s := (*Store)(r)
	s.balancesMu.Lock()
	row, ok := s.balances[userID]
	s.balancesMu.Unlock()
	if !ok {
		return nil, nil
	}
	row.mu.Lock()
	defer row.mu.Unlock()
	result := make([]model.Transaction, len(row.history))
	for i, t := range row.history {
		result[len(row.history)-1-i] = t
	}
	return result, nil
}

// --- BatchRepository implementation ---

type batchRepository Store

func (r *batchRepository) Get(ctx context.Context, batchID string) (*model.Batch, error) {
	s := (*Store)(r)
	s.ordersMu.RLock()
	b, ok := s.batches[batchID]
	s.ordersMu.RUnlock()
	if !ok {
		return nil, domainErrors.ErrNotFound
	}
	orders, err := (*orderRepository)(s).ListByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	b.Orders = orders
	b.Excluded = append([]model.ItemResult(nil), b.Excluded...)
	return &b, nil
}

// --- OrderRepository implementation ---

type orderRepository Store

func (r *orderRepository) Update(_ context.Context, order *model.Order) error {
	s := (*Store)(r)
	s.ordersMu.Lock()
	defer s.ordersMu.Unlock()
	stored, ok := s.orders[order.ID]
	if !ok {
		return domainErrors.ErrNotFound
	}
	stored.State = order.State
	stored.TaskID = order.TaskID
	stored.DownloadURL = order.DownloadURL
	stored.FailureReason = order.FailureReason
	stored.Attempts = order.Attempts
	stored.PollDeadline = order.PollDeadline
	stored.UpdatedAt = s.now()
	return nil
}

func (r *orderRepository) ListByBatch(_ context.Context, batchID string) ([]model.Order, error) {
	s := (*Store)(r)
	s.ordersMu.RLock()
	defer s.ordersMu.RUnlock()
	var result []model.Order
	for _, o := range s.orders {
		if o.BatchID == batchID {
			result = append(result, *o)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Position < result[j].Position })
	return result, nil
}

func (r *orderRepository) ClaimStale(_ context.Context, staleAfter time.Duration, limit int) ([]model.Order, error) {
	s := (*Store)(r)
	s.ordersMu.Lock()
	defer s.ordersMu.Unlock()

	now := s.now()
	cutoff := now.Add(-staleAfter)
	var candidates []*model.Order
	for _, o := range s.orders {
		pending := !o.State.Terminal() || (o.State == model.OrderStateFailed && !o.Refunded)
		if pending && o.UpdatedAt.Before(cutoff) {
			candidates = append(candidates, o)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].UpdatedAt.Before(candidates[j].UpdatedAt) })
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	result := make([]model.Order, 0, len(candidates))
	for _, o := range candidates {
		result = append(result, *o)
		o.UpdatedAt = now
	}
	return result, nil
}
