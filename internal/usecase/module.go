package usecase

import (
	"go.uber.org/fx"

	"github.com/polkiloo/stockpoints/internal/worker"
)

// Module provides core business use cases to the fx container.
var Module = fx.Provide(
	NewAuthUseCase,
	NewLedgerUseCase,
	NewBatchUseCase,
	provideScheduler,
)

func provideScheduler(s *worker.Scheduler) TaskScheduler {
	return s
}
