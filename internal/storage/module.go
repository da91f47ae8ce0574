package storage

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/polkiloo/stockpoints/internal/config"
	"github.com/polkiloo/stockpoints/internal/domain/repository"
	"github.com/polkiloo/stockpoints/internal/storage/memory"
	"github.com/polkiloo/stockpoints/internal/storage/postgres"
)

// Module wires the configured storage backend and its repository adapters.
var Module = fx.Options(
	fx.Provide(newFactory),
	fx.Provide(
		func(f repository.Factory) repository.UserRepository { return f.Users() },
		func(f repository.Factory) repository.BalanceRepository { return f.Balances() },
		func(f repository.Factory) repository.TransactionRepository { return f.Transactions() },
		func(f repository.Factory) repository.BatchRepository { return f.Batches() },
		func(f repository.Factory) repository.OrderRepository { return f.Orders() },
	),
	fx.Invoke(registerLifecycle),
)

type factoryParams struct {
	fx.In

	Ctx    context.Context
	Config *config.Config
	Logger *slog.Logger
}

func newFactory(p factoryParams) (repository.Factory, error) {
	if p.Config.UseMemoryStore() {
		p.Logger.Warn("using in-memory storage, state is lost on restart")
		return memory.New(), nil
	}
	return postgres.New(p.Ctx, p.Config.DatabaseURI, p.Logger)
}

func registerLifecycle(lc fx.Lifecycle, factory repository.Factory) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			factory.Close()
			return nil
		},
	})
}
