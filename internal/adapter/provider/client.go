package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	domainErrors "github.com/polkiloo/stockpoints/internal/domain/errors"
	"github.com/polkiloo/stockpoints/internal/domain/model"
)

const apiKeyHeader = "X-API-Key"

// Client exposes the remote stock provider operations. Implementations never retry.
type Client interface {
	LookupAsset(ctx context.Context, site, assetID, sourceURL string) (*model.AssetInfo, error)
	SubmitOrder(ctx context.Context, site, assetID, sourceURL string) (string, error)
	PollStatus(ctx context.Context, taskID string) (*model.TaskStatus, error)
	ResolveDownload(ctx context.Context, taskID, deliveryMode string) (string, error)
}

// HTTPClient implements Client via the provider REST API.
type HTTPClient struct {
	client *resty.Client
	logger *slog.Logger
}

type infoResponse struct {
	Site      string `json:"site"`
	ID        string `json:"id"`
	Title     string `json:"title"`
	Cost      *int64 `json:"cost"`
	Preview   string `json:"preview"`
	Extension string `json:"ext"`
}

type orderResponse struct {
	TaskID string `json:"task_id"`
}

type statusResponse struct {
	Status   string `json:"status"`
	Progress *int   `json:"progress,omitempty"`
	Message  string `json:"message,omitempty"`
}

type downloadResponse struct {
	URL string `json:"url"`
}

// NewHTTPClient creates provider client with a finite per-call timeout.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) (*HTTPClient, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse provider url: %w", err)
	}
	if !parsed.IsAbs() {
		return nil, fmt.Errorf("provider url must be absolute")
	}

	client := resty.New().
		SetBaseURL(strings.TrimSuffix(parsed.String(), "/")).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetHeader(apiKeyHeader, apiKey)
	}

	return &HTTPClient{client: client, logger: logger}, nil
}

// LookupAsset fetches price and metadata of a stock asset.
func (c *HTTPClient) LookupAsset(ctx context.Context, site, assetID, sourceURL string) (*model.AssetInfo, error) {
	resp, err := c.request(ctx).
		SetPathParams(map[string]string{"site": site, "id": assetID}).
		SetQueryParam("url", sourceURL).
		Get("/api/stock/{site}/{id}/info")
	if err := c.classify("lookup", resp, err, domainErrors.ErrProviderUnavailable); err != nil {
		return nil, err
	}

	var data infoResponse
	if err := decode(resp, &data); err != nil {
		return nil, err
	}
	if data.Cost == nil || *data.Cost <= 0 {
		return nil, schemaError("lookup", "cost must be positive")
	}

	info := &model.AssetInfo{
		Site:       site,
		AssetID:    assetID,
		Title:      data.Title,
		Cost:       *data.Cost,
		PreviewURL: data.Preview,
		Extension:  data.Extension,
	}
	if data.Site != "" {
		info.Site = data.Site
	}
	if data.ID != "" {
		info.AssetID = data.ID
	}
	return info, nil
}

// SubmitOrder asks the provider to start sourcing an asset and returns its task id.
func (c *HTTPClient) SubmitOrder(ctx context.Context, site, assetID, sourceURL string) (string, error) {
	resp, err := c.request(ctx).
		SetPathParams(map[string]string{"site": site, "id": assetID}).
		SetQueryParam("url", sourceURL).
		Post("/api/stock/{site}/{id}/order")
	if err := c.classify("submit", resp, err, domainErrors.ErrOrderRejected); err != nil {
		return "", err
	}

	var data orderResponse
	if err := decode(resp, &data); err != nil {
		return "", err
	}
	if strings.TrimSpace(data.TaskID) == "" {
		return "", schemaError("submit", "missing task id")
	}
	return data.TaskID, nil
}

// PollStatus reports provider-side progress of a submitted task.
func (c *HTTPClient) PollStatus(ctx context.Context, taskID string) (*model.TaskStatus, error) {
	resp, err := c.request(ctx).
		SetPathParam("task", taskID).
		Get("/api/order/{task}/status")
	if err := c.classify("poll", resp, err, domainErrors.ErrProviderUnavailable); err != nil {
		return nil, err
	}

	var data statusResponse
	if err := decode(resp, &data); err != nil {
		return nil, err
	}

	state := model.TaskState(strings.ToLower(data.Status))
	switch state {
	case model.TaskPending, model.TaskReady, model.TaskFailed:
	default:
		return nil, schemaError("poll", fmt.Sprintf("unknown status %q", data.Status))
	}
	return &model.TaskStatus{State: state, Progress: data.Progress, Message: data.Message}, nil
}

// ResolveDownload returns the final download URL of a ready task.
func (c *HTTPClient) ResolveDownload(ctx context.Context, taskID, deliveryMode string) (string, error) {
	resp, err := c.request(ctx).
		SetPathParam("task", taskID).
		SetQueryParam("type", deliveryMode).
		Get("/api/order/{task}/download")
	if err == nil && (resp.StatusCode() == http.StatusConflict || resp.StatusCode() == http.StatusTooEarly) {
		return "", domainErrors.ErrNotReady
	}
	if err := c.classify("download", resp, err, domainErrors.ErrProviderUnavailable); err != nil {
		return "", err
	}

	var data downloadResponse
	if err := decode(resp, &data); err != nil {
		return "", err
	}
	if strings.TrimSpace(data.URL) == "" {
		return "", schemaError("download", "empty url")
	}
	return data.URL, nil
}

func (c *HTTPClient) request(ctx context.Context) *resty.Request {
	return c.client.R().SetContext(ctx)
}

// classify maps transport and status failures onto the provider error taxonomy.
// clientErr is returned for 4xx responses other than 404 and 429.
func (c *HTTPClient) classify(op string, resp *resty.Response, err error, clientErr error) error {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%s: %w: %v", op, domainErrors.ErrProviderUnavailable, err)
	}

	status := resp.StatusCode()
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, domainErrors.ErrAssetNotFound)
	case status == http.StatusTooManyRequests || status >= 500:
		c.logger.Warn("provider unavailable",
			slog.String("operation", op),
			slog.Int("status", status),
			slog.String("body", truncate(resp.String(), 256)))
		return fmt.Errorf("%s: %w: status %d", op, domainErrors.ErrProviderUnavailable, status)
	default:
		c.logger.Warn("provider rejected request",
			slog.String("operation", op),
			slog.Int("status", status),
			slog.String("body", truncate(resp.String(), 256)))
		return fmt.Errorf("%s: %w: status %d", op, clientErr, status)
	}
}

func decode(resp *resty.Response, dst any) error {
	if err := json.Unmarshal(resp.Body(), dst); err != nil {
		return fmt.Errorf("decode response: %w: %v", domainErrors.ErrProviderUnavailable, err)
	}
	return nil
}

func schemaError(op, detail string) error {
	return fmt.Errorf("%s: %w: unexpected response: %s", op, domainErrors.ErrProviderUnavailable, detail)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
