package fulfillment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainErrors "github.com/polkiloo/stockpoints/internal/domain/errors"
	"github.com/polkiloo/stockpoints/internal/domain/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type scriptedProvider struct {
	submitErrs  []error
	statuses    []model.TaskState
	pollErrs    []error
	resolveErrs []error

	submits  int
	polls    int
	resolves int
}

func (p *scriptedProvider) LookupAsset(context.Context, string, string, string) (*model.AssetInfo, error) {
	return nil, errors.New("not used")
}

func (p *scriptedProvider) SubmitOrder(context.Context, string, string, string) (string, error) {
	i := p.submits
	p.submits++
	if i < len(p.submitErrs) && p.submitErrs[i] != nil {
		return "", p.submitErrs[i]
	}
	return "task-1", nil
}

func (p *scriptedProvider) PollStatus(context.Context, string) (*model.TaskStatus, error) {
	i := p.polls
	p.polls++
	if i < len(p.pollErrs) && p.pollErrs[i] != nil {
		return nil, p.pollErrs[i]
	}
	state := model.TaskPending
	if i < len(p.statuses) {
		state = p.statuses[i]
	}
	return &model.TaskStatus{State: state}, nil
}

func (p *scriptedProvider) ResolveDownload(context.Context, string, string) (string, error) {
	i := p.resolves
	p.resolves++
	if i < len(p.resolveErrs) && p.resolveErrs[i] != nil {
		return "", p.resolveErrs[i]
	}
	return "https://cdn.example/file.jpg", nil
}

type recordingStore struct {
	updates []model.Order
	err     error
}

func (s *recordingStore) Update(_ context.Context, o *model.Order) error {
	if s.err != nil {
		return s.err
	}
	s.updates = append(s.updates, *o)
	return nil
}

func testPolicy() Policy {
	return Policy{
		PollInterval: 5 * time.Second,
		PollTimeout:  30 * time.Second,
		MaxAttempts:  3,
		BackoffBase:  time.Second,
		BackoffCap:   4 * time.Second,
		DeliveryMode: "any",
	}
}

func newTestMachine(p *scriptedProvider, s *recordingStore, clock *fakeClock) *Machine {
	order := model.Order{ID: "o-1", BatchID: "b-1", UserID: 1, Site: "shutterstock", AssetID: "42", Cost: 30, State: model.OrderStateCreated}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewMachine(order, p, s, testPolicy(), logger, WithClock(clock.Now))
}

// run steps the machine until done, advancing the clock by each returned delay.
func run(t *testing.T, m *Machine, clock *fakeClock, maxSteps int) {
	t.Helper()
	for i := 0; i < maxSteps; i++ {
		delay, done := m.Step(context.Background())
		if done {
			return
		}
		clock.Advance(delay)
	}
	t.Fatalf("machine did not finish within %d steps, state %s", maxSteps, m.Order().State)
}

func TestMachineHappyPath(t *testing.T) {
	clock := newFakeClock()
	p := &scriptedProvider{statuses: []model.TaskState{model.TaskPending, model.TaskReady}}
	s := &recordingStore{}
	m := newTestMachine(p, s, clock)

	run(t, m, clock, 10)

	order := m.Order()
	assert.Equal(t, model.OrderStateResolved, order.State)
	assert.Equal(t, "task-1", order.TaskID)
	assert.Equal(t, "https://cdn.example/file.jpg", order.DownloadURL)
	assert.Equal(t, 1, p.submits)
	assert.Equal(t, 2, p.polls)
	assert.Equal(t, 1, p.resolves)

	var states []model.OrderState
	for _, u := range s.updates {
		states = append(states, u.State)
	}
	assert.Equal(t, []model.OrderState{
		model.OrderStateSubmitted,
		model.OrderStatePolling,
		model.OrderStatePolling,
		model.OrderStateReady,
		model.OrderStateResolved,
	}, states)
}

func TestMachineSubmitBackoffThenFail(t *testing.T) {
	clock := newFakeClock()
	p := &scriptedProvider{submitErrs: []error{
		domainErrors.ErrProviderUnavailable,
		domainErrors.ErrProviderUnavailable,
		domainErrors.ErrProviderUnavailable,
	}}
	s := &recordingStore{}
	m := newTestMachine(p, s, clock)

	delay, done := m.Step(context.Background())
	require.False(t, done)
	assert.Equal(t, time.Second, delay)

	delay, done = m.Step(context.Background())
	require.False(t, done)
	assert.Equal(t, 2*time.Second, delay)

	_, done = m.Step(context.Background())
	require.True(t, done)

	order := m.Order()
	assert.Equal(t, model.OrderStateFailed, order.State)
	assert.Equal(t, model.FailureProviderUnavailable, order.FailureReason)
	assert.Equal(t, 3, order.Attempts)
	assert.Equal(t, 3, p.submits)
}

func TestMachineSubmitPermanentFailures(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason model.FailureReason
	}{
		{name: "not found", err: domainErrors.ErrAssetNotFound, reason: model.FailureAssetNotFound},
		{name: "rejected", err: domainErrors.ErrOrderRejected, reason: model.FailureOrderRejected},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clock := newFakeClock()
			p := &scriptedProvider{submitErrs: []error{tc.err}}
			m := newTestMachine(p, &recordingStore{}, clock)

			_, done := m.Step(context.Background())
			require.True(t, done)
			assert.Equal(t, tc.reason, m.Order().FailureReason)
			assert.Equal(t, 1, p.submits)
		})
	}
}

func TestMachinePollTimeoutMakesNoCallAfterDeadline(t *testing.T) {
	clock := newFakeClock()
	p := &scriptedProvider{}
	m := newTestMachine(p, &recordingStore{}, clock)

	run(t, m, clock, 50)

	order := m.Order()
	assert.Equal(t, model.OrderStateFailed, order.State)
	assert.Equal(t, model.FailureTimeout, order.FailureReason)
	// deadline 30s with 5s interval: polls at 5,10,15,20,25 only
	assert.Equal(t, 5, p.polls)
	assert.Zero(t, p.resolves)
}

func TestMachinePollDelayClippedToDeadline(t *testing.T) {
	clock := newFakeClock()
	p := &scriptedProvider{}
	m := newTestMachine(p, &recordingStore{}, clock)
	m.policy.PollTimeout = 7 * time.Second

	m.Step(context.Background()) // submit
	delay, _ := m.Step(context.Background())
	assert.Equal(t, 5*time.Second, delay)
	clock.Advance(delay)

	delay, _ = m.Step(context.Background())
	assert.Equal(t, 2*time.Second, delay)
}

func TestMachineProviderReportsFailure(t *testing.T) {
	clock := newFakeClock()
	p := &scriptedProvider{statuses: []model.TaskState{model.TaskFailed}}
	m := newTestMachine(p, &recordingStore{}, clock)

	run(t, m, clock, 10)
	assert.Equal(t, model.FailureProviderFailed, m.Order().FailureReason)
}

func TestMachineTransientPollErrorKeepsPolling(t *testing.T) {
	clock := newFakeClock()
	p := &scriptedProvider{
		pollErrs: []error{domainErrors.ErrProviderUnavailable},
		statuses: []model.TaskState{model.TaskPending, model.TaskReady},
	}
	m := newTestMachine(p, &recordingStore{}, clock)

	run(t, m, clock, 10)
	assert.Equal(t, model.OrderStateResolved, m.Order().State)
	assert.Equal(t, 2, p.polls)
}

func TestMachinePollNotFoundFails(t *testing.T) {
	clock := newFakeClock()
	p := &scriptedProvider{pollErrs: []error{domainErrors.ErrAssetNotFound}}
	m := newTestMachine(p, &recordingStore{}, clock)

	run(t, m, clock, 10)
	assert.Equal(t, model.FailureProviderFailed, m.Order().FailureReason)
}

func TestMachineNotReadyReentersPollingOnce(t *testing.T) {
	clock := newFakeClock()
	p := &scriptedProvider{
		statuses:    []model.TaskState{model.TaskReady, model.TaskReady},
		resolveErrs: []error{domainErrors.ErrNotReady},
	}
	m := newTestMachine(p, &recordingStore{}, clock)

	run(t, m, clock, 10)
	assert.Equal(t, model.OrderStateResolved, m.Order().State)
	assert.Equal(t, 2, p.polls)
	assert.Equal(t, 2, p.resolves)
}

func TestMachineNotReadyTwiceFails(t *testing.T) {
	clock := newFakeClock()
	p := &scriptedProvider{
		statuses:    []model.TaskState{model.TaskReady, model.TaskReady},
		resolveErrs: []error{domainErrors.ErrNotReady, domainErrors.ErrNotReady},
	}
	m := newTestMachine(p, &recordingStore{}, clock)

	run(t, m, clock, 10)
	assert.Equal(t, model.FailureNotReady, m.Order().FailureReason)
}

func TestMachineResolveUnavailableBounded(t *testing.T) {
	clock := newFakeClock()
	p := &scriptedProvider{
		statuses: []model.TaskState{model.TaskReady},
		resolveErrs: []error{
			domainErrors.ErrProviderUnavailable,
			domainErrors.ErrProviderUnavailable,
			domainErrors.ErrProviderUnavailable,
		},
	}
	m := newTestMachine(p, &recordingStore{}, clock)

	run(t, m, clock, 10)
	assert.Equal(t, model.FailureProviderUnavailable, m.Order().FailureReason)
	assert.Equal(t, 3, p.resolves)
}

func TestMachineCanceledContextLeavesState(t *testing.T) {
	clock := newFakeClock()
	p := &scriptedProvider{}
	s := &recordingStore{}
	m := newTestMachine(p, s, clock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	delay, done := m.Step(ctx)
	assert.Zero(t, delay)
	assert.False(t, done)
	assert.Equal(t, model.OrderStateCreated, m.Order().State)
	assert.Zero(t, p.submits)
	assert.Empty(t, s.updates)
}

func TestMachineRetriesPersistenceBeforeReportingDone(t *testing.T) {
	clock := newFakeClock()
	p := &scriptedProvider{submitErrs: []error{domainErrors.ErrAssetNotFound}}
	s := &recordingStore{err: errors.New("db down")}
	m := newTestMachine(p, s, clock)

	delay, done := m.Step(context.Background())
	assert.False(t, done)
	assert.Equal(t, time.Second, delay)
	assert.Equal(t, model.OrderStateFailed, m.Order().State)

	s.err = nil
	_, done = m.Step(context.Background())
	assert.True(t, done)
	assert.Equal(t, 1, p.submits)
	require.Len(t, s.updates, 1)
	assert.Equal(t, model.OrderStateFailed, s.updates[0].State)
}

func TestMachineResumesFromPersistedState(t *testing.T) {
	clock := newFakeClock()
	p := &scriptedProvider{statuses: []model.TaskState{model.TaskReady}}
	order := model.Order{ID: "o-2", State: model.OrderStatePolling, TaskID: "task-9", PollDeadline: clock.Now().Add(time.Minute)}
	m := NewMachine(order, p, &recordingStore{}, testPolicy(), slog.New(slog.NewTextHandler(io.Discard, nil)), WithClock(clock.Now))

	run(t, m, clock, 5)
	assert.Equal(t, model.OrderStateResolved, m.Order().State)
	assert.Zero(t, p.submits)
	assert.Equal(t, "o-2", m.ID())
}

func TestPolicyBackoff(t *testing.T) {
	p := Policy{BackoffBase: time.Second, BackoffCap: 5 * time.Second}
	assert.Equal(t, time.Second, p.Backoff(0))
	assert.Equal(t, time.Second, p.Backoff(1))
	assert.Equal(t, 2*time.Second, p.Backoff(2))
	assert.Equal(t, 4*time.Second, p.Backoff(3))
	assert.Equal(t, 5*time.Second, p.Backoff(4))
	assert.Equal(t, 5*time.Second, p.Backoff(60))
}
