package provider

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/polkiloo/stockpoints/internal/config"
	"github.com/polkiloo/stockpoints/internal/metrics"
)

func TestModuleProvidesInstrumentedClient(t *testing.T) {
	var client Client
	app := fxtest.New(t,
		fx.Supply(&config.Config{ProviderAddress: "http://provider.local", ProviderTimeout: time.Second}),
		fx.Supply(slog.New(slog.NewJSONHandler(io.Discard, nil))),
		fx.Provide(metrics.New),
		Module,
		fx.Populate(&client),
	)
	app.RequireStart()
	defer app.RequireStop()

	if _, ok := client.(*instrumented); !ok {
		t.Fatalf("expected instrumented client, got %T", client)
	}
}

func TestModuleRejectsRelativeAddress(t *testing.T) {
	app := fx.New(
		fx.NopLogger,
		fx.Supply(&config.Config{ProviderAddress: "provider.local"}),
		fx.Supply(slog.New(slog.NewJSONHandler(io.Discard, nil))),
		Module,
		fx.Invoke(func(Client) {}),
	)
	if app.Err() == nil {
		t.Fatal("expected construction error")
	}
}
