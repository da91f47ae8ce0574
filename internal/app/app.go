package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"github.com/polkiloo/stockpoints/internal/config"
	"github.com/polkiloo/stockpoints/internal/worker"
)

// Module wires application services, runtime components, and lifecycle hooks.
var Module = fx.Options(
	fx.Provide(
		NewStockFacade,
		newHTTPServer,
		newScheduler,
		newRecovery,
	),
	fx.Invoke(registerLifecycle),
)

type serverParams struct {
	fx.In

	Config *config.Config
	Router *gin.Engine
}

func newHTTPServer(p serverParams) *http.Server {
	return &http.Server{
		Addr:    p.Config.RunAddress,
		Handler: p.Router,
	}
}

type workerParams struct {
	fx.In

	Config *config.Config
	Logger *slog.Logger
}

func newScheduler(p workerParams) *worker.Scheduler {
	return worker.NewScheduler(p.Config.WorkerPoolSize, p.Logger)
}

type recoveryParams struct {
	fx.In

	Facade *StockFacade
	Config *config.Config
	Logger *slog.Logger
}

func newRecovery(p recoveryParams) *worker.Recovery {
	return worker.NewRecovery(
		p.Facade,
		p.Config.RecoveryInterval,
		p.Config.RecoveryBatchSize,
		p.Logger,
	)
}

type lifecycleParams struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Shutdowner fx.Shutdowner
	Logger     *slog.Logger
	Server     *http.Server
	Scheduler  *worker.Scheduler
	Recovery   *worker.Recovery
	Config     *config.Config
}

func registerLifecycle(p lifecycleParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			p.Logger.Info("starting stockpoints", slog.String("addr", p.Server.Addr))
			// start context is short-lived; background work runs until OnStop
			p.Scheduler.Start(context.WithoutCancel(ctx))
			p.Recovery.Start(context.WithoutCancel(ctx))
			go func() {
				if err := p.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					p.Logger.Error("http server terminated", slog.String("error", err.Error()))
					_ = p.Shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx := ctx
			cancel := func() {}
			if _, ok := ctx.Deadline(); !ok {
				shutdownCtx, cancel = context.WithTimeout(ctx, p.Config.ShutdownTimeout)
			}
			defer cancel()

			// handlers waiting on a batch return once the scheduler is done
			p.Recovery.Stop()
			p.Scheduler.Stop()
			serverErr := p.Server.Shutdown(shutdownCtx)

			if serverErr != nil && !errors.Is(serverErr, http.ErrServerClosed) {
				return serverErr
			}
			p.Logger.Info("stockpoints stopped")
			return nil
		},
	})
}
