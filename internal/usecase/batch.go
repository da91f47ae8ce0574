package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"

	"github.com/polkiloo/stockpoints/internal/adapter/notify"
	"github.com/polkiloo/stockpoints/internal/adapter/provider"
	"github.com/polkiloo/stockpoints/internal/config"
	domainErrors "github.com/polkiloo/stockpoints/internal/domain/errors"
	"github.com/polkiloo/stockpoints/internal/domain/model"
	"github.com/polkiloo/stockpoints/internal/domain/repository"
	"github.com/polkiloo/stockpoints/internal/fulfillment"
	"github.com/polkiloo/stockpoints/internal/metrics"
	"github.com/polkiloo/stockpoints/internal/pkg/ratelimit"
	"github.com/polkiloo/stockpoints/internal/worker"
)

const settleTimeout = 30 * time.Second

// TaskScheduler runs order machines in the background.
type TaskScheduler interface {
	Schedule(task worker.Task, onDone func()) error
	Done() <-chan struct{}
}

// BatchParams collects BatchUseCase dependencies.
type BatchParams struct {
	fx.In

	Ledger    *LedgerUseCase
	Provider  provider.Client
	Batches   repository.BatchRepository
	Orders    repository.OrderRepository
	Scheduler TaskScheduler
	Limiter   ratelimit.Limiter
	Notifier  notify.Notifier
	Config    *config.Config
	Metrics   *metrics.Metrics `optional:"true"`
	Logger    *slog.Logger
}

// BatchUseCase prices, reserves and fulfills multi-asset requests.
type BatchUseCase struct {
	ledger    *LedgerUseCase
	provider  provider.Client
	batches   repository.BatchRepository
	orders    repository.OrderRepository
	scheduler TaskScheduler
	limiter   ratelimit.Limiter
	notifier  notify.Notifier
	policy    fulfillment.Policy
	maxItems  int
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewBatchUseCase constructs BatchUseCase.
func NewBatchUseCase(p BatchParams) *BatchUseCase {
	maxItems := p.Config.MaxBatchItems
	if maxItems <= 0 {
		maxItems = 1
	}
	limiter := p.Limiter
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	return &BatchUseCase{
		ledger:    p.Ledger,
		provider:  p.Provider,
		batches:   p.Batches,
		orders:    p.Orders,
		scheduler: p.Scheduler,
		limiter:   limiter,
		notifier:  p.Notifier,
		policy:    fulfillment.PolicyFromConfig(p.Config),
		maxItems:  maxItems,
		metrics:   p.Metrics,
		logger:    p.Logger,
	}
}

// Submit runs a batch and waits until every order is terminal.
//
// When ctx ends first the orders keep running in the background and the
// current snapshot is returned together with ctx.Err().
func (u *BatchUseCase) Submit(ctx context.Context, userID int64, items []model.AssetRequest) (*model.BatchResult, error) {
	run, err := u.start(ctx, userID, items)
	if run == nil || err != nil {
		return runSnapshot(run), err
	}

	select {
	case <-run.done:
		return run.snapshot(), nil
	case <-ctx.Done():
		return run.snapshot(), ctx.Err()
	case <-u.scheduler.Done():
		return run.snapshot(), worker.ErrSchedulerStopped
	}
}

// Start reserves and schedules a batch without waiting for fulfillment.
func (u *BatchUseCase) Start(ctx context.Context, userID int64, items []model.AssetRequest) (*model.BatchResult, error) {
	run, err := u.start(ctx, userID, items)
	return runSnapshot(run), err
}

// Status returns the stored state of a batch owned by userID.
func (u *BatchUseCase) Status(ctx context.Context, userID int64, batchID string) (*model.BatchStatus, error) {
	if userID <= 0 {
		return nil, domainErrors.ErrUnauthenticated
	}
	batch, err := u.batches.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.UserID != userID {
		return nil, domainErrors.ErrNotFound
	}

	status := &model.BatchStatus{
		BatchID:   batch.ID,
		State:     model.DeriveBatchState(batch.Orders),
		TotalCost: batch.TotalCost,
		Items:     batch.Items(),
	}
	return status, nil
}

// Resume continues an order found by the recovery sweeper.
func (u *BatchUseCase) Resume(_ context.Context, order model.Order) error {
	switch {
	case order.State == model.OrderStateFailed && !order.Refunded:
		u.settle(nil, order)
		return nil
	case order.State.Terminal():
		return nil
	}

	machine := fulfillment.NewMachine(order, u.provider, u.orders, u.policy, u.logger)
	err := u.scheduler.Schedule(machine, func() { u.settle(nil, machine.Order()) })
	if errors.Is(err, worker.ErrAlreadyScheduled) {
		return nil
	}
	return err
}

func (u *BatchUseCase) start(ctx context.Context, userID int64, items []model.AssetRequest) (*batchRun, error) {
	items = append([]model.AssetRequest(nil), items...)
	if err := u.preflight(userID, items); err != nil {
		return nil, err
	}

	results, infos, err := u.price(ctx, items)
	if err != nil {
		return nil, err
	}

	batch := &model.Batch{ID: uuid.NewString(), UserID: userID}
	for i, info := range infos {
		if info == nil {
			batch.Excluded = append(batch.Excluded, results[i])
			continue
		}
		batch.Orders = append(batch.Orders, model.Order{
			ID:        uuid.NewString(),
			UserID:    userID,
			Position:  i,
			Site:      items[i].Site,
			AssetID:   items[i].AssetID,
			SourceURL: items[i].SourceURL,
			Cost:      info.Cost,
			State:     model.OrderStateCreated,
		})
		batch.TotalCost += info.Cost
	}

	if len(batch.Orders) == 0 {
		run := newBatchRun(batch, results, 0)
		run.result.State = model.BatchStateAllFailed
		return run, domainErrors.ErrNoValidItems
	}

	bal, err := u.ledger.Reserve(ctx, batch)
	if err != nil {
		return nil, err
	}
	u.logger.Info("batch reserved",
		slog.String("batch_id", batch.ID),
		slog.Int64("user_id", userID),
		slog.Int("orders", len(batch.Orders)),
		slog.Int64("total_cost", batch.TotalCost))

	run := newBatchRun(batch, results, bal.Points)
	for _, order := range batch.Orders {
		machine := fulfillment.NewMachine(order, u.provider, u.orders, u.policy, u.logger)
		if err := u.scheduler.Schedule(machine, func() { u.settle(run, machine.Order()) }); err != nil {
			// the order stays CREATED in storage and is picked up by recovery
			u.logger.Error("schedule order failed", slog.String("order_id", order.ID), slog.String("error", err.Error()))
		}
	}
	return run, nil
}

func (u *BatchUseCase) preflight(userID int64, items []model.AssetRequest) error {
	if userID <= 0 {
		return domainErrors.ErrUnauthenticated
	}
	if ok, retryAfter := u.limiter.Allow(strconv.FormatInt(userID, 10)); !ok {
		return &domainErrors.RateLimitedError{RetryAfter: retryAfter}
	}
	if len(items) == 0 {
		return domainErrors.ErrEmptyBatch
	}
	if len(items) > u.maxItems {
		return fmt.Errorf("%d items, limit %d: %w", len(items), u.maxItems, domainErrors.ErrBatchTooLarge)
	}
	for i := range items {
		items[i].Site = strings.TrimSpace(items[i].Site)
		items[i].AssetID = strings.TrimSpace(items[i].AssetID)
		if items[i].Site == "" || items[i].AssetID == "" {
			return fmt.Errorf("item %d: %w", i, domainErrors.ErrInvalidItem)
		}
	}
	return nil
}

// price looks up every item concurrently. Items that cannot be priced are
// reported in results and have a nil info.
func (u *BatchUseCase) price(ctx context.Context, items []model.AssetRequest) ([]model.ItemResult, []*model.AssetInfo, error) {
	infos := make([]*model.AssetInfo, len(items))
	errs := make([]error, len(items))

	g, gctx := errgroup.WithContext(ctx)
	for i, item := range items {
		g.Go(func() error {
			info, err := u.provider.LookupAsset(gctx, item.Site, item.AssetID, item.SourceURL)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			infos[i], errs[i] = info, err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	results := make([]model.ItemResult, len(items))
	for i, item := range items {
		results[i] = model.ItemResult{Position: i, Site: item.Site, AssetID: item.AssetID, Outcome: model.ItemPending}
		switch err := errs[i]; {
		case err == nil:
			results[i].Cost = infos[i].Cost
		case errors.Is(err, domainErrors.ErrAssetNotFound):
			results[i].Outcome = model.ItemNotFound
			results[i].Reason = model.FailureAssetNotFound
		default:
			u.logger.Warn("asset lookup failed",
				slog.String("site", item.Site),
				slog.String("asset_id", item.AssetID),
				slog.String("error", err.Error()))
			results[i].Outcome = model.ItemFailed
			results[i].Reason = model.FailureProviderUnavailable
		}
	}
	return results, infos, nil
}

// settle refunds a finished order and, for the last order of a batch,
// publishes the batch result. It runs on a scheduler worker.
func (u *BatchUseCase) settle(run *batchRun, order model.Order) {
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()

	if order.State == model.OrderStateFailed {
		_, refunded, err := u.ledger.Refund(ctx, order)
		if err != nil {
			u.logger.Error("refund failed", slog.String("order_id", order.ID), slog.String("error", err.Error()))
		} else {
			order.Refunded = true
			if refunded {
				u.logger.Info("order refunded", slog.String("order_id", order.ID), slog.Int64("amount", order.Cost))
			}
		}
		if err := u.notifier.OrderFailed(ctx, order); err != nil {
			u.logger.Warn("notify order failed", slog.String("order_id", order.ID), slog.String("error", err.Error()))
		}
	}
	u.metrics.OrderFinished(string(order.State), string(order.FailureReason))

	if run == nil {
		u.settleStored(ctx, order)
		return
	}
	if !run.complete(order) {
		return
	}

	if bal, err := u.ledger.Balance(ctx, order.UserID); err == nil {
		run.setBalance(bal)
	}
	result := run.snapshot()
	u.publish(ctx, order.UserID, *result)
	close(run.done)
}

// settleStored publishes the batch result when a resumed order was the last one.
func (u *BatchUseCase) settleStored(ctx context.Context, order model.Order) {
	batch, err := u.batches.Get(ctx, order.BatchID)
	if err != nil {
		u.logger.Error("load batch failed", slog.String("batch_id", order.BatchID), slog.String("error", err.Error()))
		return
	}
	state := model.DeriveBatchState(batch.Orders)
	if state == model.BatchStateInProgress {
		return
	}

	result := model.BatchResult{BatchID: batch.ID, State: state, TotalCost: batch.TotalCost, Items: batch.Items()}
	for _, item := range result.Items {
		result.Refunded += item.Refunded
	}
	if bal, err := u.ledger.Balance(ctx, batch.UserID); err == nil {
		result.NewBalance = bal
	}
	u.publish(ctx, batch.UserID, result)
}

func (u *BatchUseCase) publish(ctx context.Context, userID int64, result model.BatchResult) {
	u.metrics.BatchFinished(string(result.State), result.Refunded)
	u.logger.Info("batch finished",
		slog.String("batch_id", result.BatchID),
		slog.String("state", string(result.State)),
		slog.Int64("refunded", result.Refunded))
	if err := u.notifier.BatchCompleted(ctx, userID, result); err != nil {
		u.logger.Warn("notify batch completed", slog.String("batch_id", result.BatchID), slog.String("error", err.Error()))
	}
}

// batchRun aggregates the orders of one batch in the current process.
type batchRun struct {
	mu        sync.Mutex
	result    model.BatchResult
	index     map[string]int
	orders    []model.Order
	remaining int
	done      chan struct{}
}

func newBatchRun(batch *model.Batch, items []model.ItemResult, balance int64) *batchRun {
	run := &batchRun{
		result: model.BatchResult{
			BatchID:    batch.ID,
			State:      model.BatchStateInProgress,
			Items:      items,
			TotalCost:  batch.TotalCost,
			NewBalance: balance,
		},
		index:     make(map[string]int, len(batch.Orders)),
		orders:    append([]model.Order(nil), batch.Orders...),
		remaining: len(batch.Orders),
		done:      make(chan struct{}),
	}
	for i, o := range batch.Orders {
		run.index[o.ID] = i
		run.result.Items[o.Position].OrderID = o.ID
	}
	return run
}

// complete records a terminal order and reports whether it was the last one.
func (r *batchRun) complete(order model.Order) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.index[order.ID]
	if !ok || r.orders[i].State.Terminal() {
		return false
	}
	r.orders[i] = order
	item := model.ResultFromOrder(order)
	r.result.Items[order.Position] = item
	r.result.Refunded += item.Refunded

	r.remaining--
	if r.remaining > 0 {
		return false
	}
	r.result.State = model.DeriveBatchState(r.orders)
	return true
}

func (r *batchRun) setBalance(points int64) {
	r.mu.Lock()
	r.result.NewBalance = points
	r.mu.Unlock()
}

func (r *batchRun) snapshot() *model.BatchResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := r.result
	res.Items = append([]model.ItemResult(nil), r.result.Items...)
	return &res
}

func runSnapshot(run *batchRun) *model.BatchResult {
	if run == nil {
		return nil
	}
	return run.snapshot()
}
