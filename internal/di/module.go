package di

import (
	"go.uber.org/fx"

	"github.com/polkiloo/stockpoints/internal/adapter/notify"
	"github.com/polkiloo/stockpoints/internal/adapter/provider"
	"github.com/polkiloo/stockpoints/internal/app"
	"github.com/polkiloo/stockpoints/internal/config"
	"github.com/polkiloo/stockpoints/internal/logger"
	"github.com/polkiloo/stockpoints/internal/metrics"
	"github.com/polkiloo/stockpoints/internal/pkg/auth"
	"github.com/polkiloo/stockpoints/internal/pkg/ratelimit"
	"github.com/polkiloo/stockpoints/internal/server/http/handlers"
	"github.com/polkiloo/stockpoints/internal/server/http/router"
	"github.com/polkiloo/stockpoints/internal/storage"
	"github.com/polkiloo/stockpoints/internal/usecase"
)

func Module(opts ...fx.Option) fx.Option {
	modules := []fx.Option{
		config.Module,
		logger.Module,
		metrics.Module,
		auth.Module,
		ratelimit.Module,
		storage.Module,
		provider.Module,
		notify.Module,
		usecase.Module,
		fx.Provide(func(f *app.StockFacade) handlers.StockFacade { return f }),
		router.Module,
		app.Module,
	}
	modules = append(modules, opts...)
	return fx.Options(modules...)
}
