package provider

import (
	"context"
	"errors"

	domainErrors "github.com/polkiloo/stockpoints/internal/domain/errors"
	"github.com/polkiloo/stockpoints/internal/domain/model"
	"github.com/polkiloo/stockpoints/internal/metrics"
)

type instrumented struct {
	next    Client
	metrics *metrics.Metrics
}

// Instrument wraps client so every call is counted by outcome.
func Instrument(next Client, m *metrics.Metrics) Client {
	return &instrumented{next: next, metrics: m}
}

func (c *instrumented) LookupAsset(ctx context.Context, site, assetID, sourceURL string) (*model.AssetInfo, error) {
	info, err := c.next.LookupAsset(ctx, site, assetID, sourceURL)
	c.metrics.ProviderCall("lookup", outcome(err))
	return info, err
}

func (c *instrumented) SubmitOrder(ctx context.Context, site, assetID, sourceURL string) (string, error) {
	taskID, err := c.next.SubmitOrder(ctx, site, assetID, sourceURL)
	c.metrics.ProviderCall("submit", outcome(err))
	return taskID, err
}

func (c *instrumented) PollStatus(ctx context.Context, taskID string) (*model.TaskStatus, error) {
	status, err := c.next.PollStatus(ctx, taskID)
	c.metrics.ProviderCall("poll", outcome(err))
	return status, err
}

func (c *instrumented) ResolveDownload(ctx context.Context, taskID, deliveryMode string) (string, error) {
	url, err := c.next.ResolveDownload(ctx, taskID, deliveryMode)
	c.metrics.ProviderCall("download", outcome(err))
	return url, err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domainErrors.ErrProviderUnavailable):
		return "unavailable"
	case errors.Is(err, domainErrors.ErrAssetNotFound):
		return "not_found"
	case errors.Is(err, domainErrors.ErrOrderRejected):
		return "rejected"
	case errors.Is(err, domainErrors.ErrNotReady):
		return "not_ready"
	default:
		return "error"
	}
}
