package router

import (
	"log/slog"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"github.com/polkiloo/stockpoints/internal/metrics"
	"github.com/polkiloo/stockpoints/internal/pkg/auth"
	"github.com/polkiloo/stockpoints/internal/server/http/handlers"
	"github.com/polkiloo/stockpoints/internal/server/http/middleware"
)

const maxRequestBody = 1 << 20

// Params lists router dependencies resolved by fx.
type Params struct {
	fx.In

	Facade  handlers.StockFacade
	Admin   *auth.AdminVerifier
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Setup configures gin router with handlers and middleware.
func Setup(p Params) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestLogger(p.Logger, p.Metrics))
	engine.Use(middleware.DecompressRequest(maxRequestBody))
	engine.Use(gzip.Gzip(gzip.DefaultCompression))

	authHandler := handlers.NewAuthHandler(p.Facade)
	balanceHandler := handlers.NewBalanceHandler(p.Facade)
	batchHandler := handlers.NewBatchHandler(p.Facade)
	healthHandler := handlers.NewHealthHandler(p.Facade)

	engine.GET("/metrics", gin.WrapH(p.Metrics.Handler()))

	api := engine.Group("/api")
	api.GET("/health", healthHandler.Check)

	user := api.Group("/user")
	user.POST("/register", authHandler.Register)
	user.POST("/login", authHandler.Login)

	userAuth := user.Group("")
	userAuth.Use(middleware.AuthRequired(p.Facade))
	userAuth.GET("/balance", balanceHandler.Balance)
	userAuth.GET("/transactions", balanceHandler.Transactions)
	userAuth.POST("/batches", batchHandler.Submit)
	userAuth.GET("/batches/:id", batchHandler.Status)

	admin := api.Group("/admin")
	admin.Use(middleware.AdminRequired(p.Admin))
	admin.POST("/balance/adjust", balanceHandler.Adjust)

	return engine
}
