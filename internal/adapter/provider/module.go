package provider

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/polkiloo/stockpoints/internal/config"
	"github.com/polkiloo/stockpoints/internal/metrics"
)

// Module exposes provider client implementation to fx graph.
var Module = fx.Provide(newClient)

type clientParams struct {
	fx.In

	Config  *config.Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

func newClient(p clientParams) (Client, error) {
	client, err := NewHTTPClient(p.Config.ProviderAddress, p.Config.ProviderAPIKey, p.Config.ProviderTimeout, p.Logger)
	if err != nil {
		return nil, err
	}
	return Instrument(client, p.Metrics), nil
}
