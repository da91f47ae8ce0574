package test

import (
	"context"
	"sync"
	"time"

	"github.com/polkiloo/stockpoints/internal/domain/model"
)

// NotifierStub records published events.
type NotifierStub struct {
	Err error

	mu      sync.Mutex
	batches []model.BatchResult
	failed  []model.Order
}

// BatchCompleted stores the batch result.
func (n *NotifierStub) BatchCompleted(_ context.Context, _ int64, result model.BatchResult) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.batches = append(n.batches, result)
	return n.Err
}

// OrderFailed stores the failed order.
func (n *NotifierStub) OrderFailed(_ context.Context, order model.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, order)
	return n.Err
}

// Batches returns published batch results.
func (n *NotifierStub) Batches() []model.BatchResult {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.BatchResult(nil), n.batches...)
}

// Failed returns published failed orders.
func (n *NotifierStub) Failed() []model.Order {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.Order(nil), n.failed...)
}

// LimiterStub denies every request when Deny is set.
type LimiterStub struct {
	Deny       bool
	RetryAfter time.Duration

	mu   sync.Mutex
	keys []string
}

// Allow records the key and applies the configured decision.
func (l *LimiterStub) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, key)
	if l.Deny {
		return false, l.RetryAfter
	}
	return true, 0
}

// Keys returns checked keys.
func (l *LimiterStub) Keys() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.keys...)
}
