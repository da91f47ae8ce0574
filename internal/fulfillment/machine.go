package fulfillment

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/polkiloo/stockpoints/internal/adapter/provider"
	domainErrors "github.com/polkiloo/stockpoints/internal/domain/errors"
	"github.com/polkiloo/stockpoints/internal/domain/model"
)

// OrderWriter persists order transitions.
type OrderWriter interface {
	Update(ctx context.Context, order *model.Order) error
}

// Machine drives one order from CREATED to a terminal state.
//
// Step performs at most one provider call and reports how long the caller must
// wait before the next step. A machine is not safe for concurrent use; the
// scheduler never runs two steps of the same machine at once.
type Machine struct {
	order    model.Order
	provider provider.Client
	store    OrderWriter
	policy   Policy
	now      func() time.Time
	logger   *slog.Logger

	dirty           bool
	reentered       bool
	resolveAttempts int
}

// Option customizes a machine.
type Option func(*Machine)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// NewMachine creates a machine resuming from the order's current state.
func NewMachine(order model.Order, client provider.Client, store OrderWriter, policy Policy, logger *slog.Logger, opts ...Option) *Machine {
	m := &Machine{
		order:    order,
		provider: client,
		store:    store,
		policy:   policy,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ID returns the order identifier.
func (m *Machine) ID() string {
	return m.order.ID
}

// Order returns a snapshot of the order.
func (m *Machine) Order() model.Order {
	return m.order
}

// Step advances the machine. done is true once a terminal state is persisted.
// A canceled context leaves the state untouched.
func (m *Machine) Step(ctx context.Context) (delay time.Duration, done bool) {
	if ctx.Err() != nil {
		return 0, false
	}
	if m.dirty {
		if err := m.persist(ctx); err != nil {
			return m.policy.Backoff(1), false
		}
	}
	if m.order.State.Terminal() {
		return 0, true
	}

	switch m.order.State {
	case model.OrderStateCreated:
		return m.submit(ctx)
	case model.OrderStateSubmitted:
		return m.arm(ctx)
	case model.OrderStatePolling:
		return m.poll(ctx)
	case model.OrderStateReady:
		return m.resolve(ctx)
	default:
		m.logger.Error("order in unknown state", slog.String("order_id", m.order.ID), slog.String("state", string(m.order.State)))
		return m.fail(ctx, model.FailureInternal)
	}
}

func (m *Machine) submit(ctx context.Context) (time.Duration, bool) {
	m.order.Attempts++
	taskID, err := m.provider.SubmitOrder(ctx, m.order.Site, m.order.AssetID, m.order.SourceURL)
	if ctx.Err() != nil {
		m.order.Attempts--
		return 0, false
	}

	switch {
	case err == nil:
		m.order.TaskID = taskID
		return m.transition(ctx, model.OrderStateSubmitted, 0)
	case errors.Is(err, domainErrors.ErrAssetNotFound):
		return m.fail(ctx, model.FailureAssetNotFound)
	case errors.Is(err, domainErrors.ErrOrderRejected):
		return m.fail(ctx, model.FailureOrderRejected)
	}

	m.logger.Warn("submit failed",
		slog.String("order_id", m.order.ID),
		slog.Int("attempt", m.order.Attempts),
		slog.Any("error", err))
	if m.order.Attempts >= m.policy.MaxAttempts {
		return m.fail(ctx, model.FailureProviderUnavailable)
	}
	return m.commit(ctx, m.policy.Backoff(m.order.Attempts))
}

func (m *Machine) arm(ctx context.Context) (time.Duration, bool) {
	m.order.PollDeadline = m.now().Add(m.policy.PollTimeout)
	return m.transition(ctx, model.OrderStatePolling, m.pollDelay())
}

func (m *Machine) poll(ctx context.Context) (time.Duration, bool) {
	if m.order.PollDeadline.IsZero() {
		m.order.PollDeadline = m.now().Add(m.policy.PollTimeout)
	}
	if !m.now().Before(m.order.PollDeadline) {
		return m.fail(ctx, model.FailureTimeout)
	}

	status, err := m.provider.PollStatus(ctx, m.order.TaskID)
	if ctx.Err() != nil {
		return 0, false
	}

	switch {
	case err != nil && !errors.Is(err, domainErrors.ErrProviderUnavailable):
		m.logger.Warn("poll failed permanently", slog.String("order_id", m.order.ID), slog.Any("error", err))
		return m.fail(ctx, model.FailureProviderFailed)
	case err != nil:
		m.logger.Debug("poll failed, will retry", slog.String("order_id", m.order.ID), slog.Any("error", err))
	case status.State == model.TaskReady:
		return m.transition(ctx, model.OrderStateReady, 0)
	case status.State == model.TaskFailed:
		m.logger.Info("provider reported failure", slog.String("order_id", m.order.ID), slog.String("message", status.Message))
		return m.fail(ctx, model.FailureProviderFailed)
	}

	// still pending: persisting refreshes updated_at so recovery leaves the order alone
	return m.commit(ctx, m.pollDelay())
}

func (m *Machine) resolve(ctx context.Context) (time.Duration, bool) {
	url, err := m.provider.ResolveDownload(ctx, m.order.TaskID, m.policy.DeliveryMode)
	if ctx.Err() != nil {
		return 0, false
	}

	switch {
	case err == nil:
		m.order.DownloadURL = url
		return m.transition(ctx, model.OrderStateResolved, 0)
	case errors.Is(err, domainErrors.ErrNotReady):
		if m.reentered {
			return m.fail(ctx, model.FailureNotReady)
		}
		m.reentered = true
		return m.transition(ctx, model.OrderStatePolling, m.pollDelay())
	case errors.Is(err, domainErrors.ErrProviderUnavailable):
		m.resolveAttempts++
		if m.resolveAttempts >= m.policy.MaxAttempts {
			return m.fail(ctx, model.FailureProviderUnavailable)
		}
		return m.policy.Backoff(m.resolveAttempts), false
	default:
		m.logger.Warn("resolve failed permanently", slog.String("order_id", m.order.ID), slog.Any("error", err))
		return m.fail(ctx, model.FailureProviderFailed)
	}
}

// pollDelay is the poll interval clipped to the remaining time before the deadline.
func (m *Machine) pollDelay() time.Duration {
	remaining := m.order.PollDeadline.Sub(m.now())
	if remaining <= 0 {
		return 0
	}
	if remaining < m.policy.PollInterval {
		return remaining
	}
	return m.policy.PollInterval
}

func (m *Machine) transition(ctx context.Context, to model.OrderState, delay time.Duration) (time.Duration, bool) {
	from := m.order.State
	m.order.State = to
	m.logger.Info("order transition",
		slog.String("order_id", m.order.ID),
		slog.String("batch_id", m.order.BatchID),
		slog.String("from", string(from)),
		slog.String("to", string(to)))
	return m.commit(ctx, delay)
}

func (m *Machine) fail(ctx context.Context, reason model.FailureReason) (time.Duration, bool) {
	m.order.FailureReason = reason
	m.logger.Info("order failed",
		slog.String("order_id", m.order.ID),
		slog.String("batch_id", m.order.BatchID),
		slog.String("from", string(m.order.State)),
		slog.String("reason", string(reason)))
	m.order.State = model.OrderStateFailed
	return m.commit(ctx, 0)
}

// commit persists the current order. On failure the step is retried after a backoff.
func (m *Machine) commit(ctx context.Context, delay time.Duration) (time.Duration, bool) {
	if err := m.persist(ctx); err != nil {
		return m.policy.Backoff(1), false
	}
	return delay, m.order.State.Terminal()
}

func (m *Machine) persist(ctx context.Context) error {
	m.order.UpdatedAt = m.now()
	if err := m.store.Update(ctx, &m.order); err != nil {
		m.dirty = true
		m.logger.Error("persist order", slog.String("order_id", m.order.ID), slog.Any("error", err))
		return err
	}
	m.dirty = false
	return nil
}
