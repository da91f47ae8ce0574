package repository

import "context"

// Factory describes access to different domain repositories.
type Factory interface {
	Users() UserRepository
	Balances() BalanceRepository
	Transactions() TransactionRepository
	Batches() BatchRepository
	Orders() OrderRepository
	HealthCheck(ctx context.Context) error
	Close()
}
