package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the service collectors. A nil *Metrics is a valid no-op recorder.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	httpLatency     *prometheus.HistogramVec
	ledgerMutations *prometheus.CounterVec
	ledgerConflicts prometheus.Counter
	providerCalls   *prometheus.CounterVec
	ordersFinished  *prometheus.CounterVec
	batchesFinished *prometheus.CounterVec
	refundedPoints  prometheus.Counter
}

// New registers the service collectors on a dedicated registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stockpoints_http_requests_total",
			Help: "Total HTTP requests processed, labeled by status code",
		}, []string{"method", "endpoint", "status"}),
		httpLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stockpoints_http_request_duration_seconds",
			Help:    "Latency distribution of HTTP requests",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5, 30},
		}, []string{"method", "endpoint"}),
		ledgerMutations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stockpoints_ledger_mutations_total",
			Help: "Ledger mutations by reason and result",
		}, []string{"reason", "result"}),
		ledgerConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "stockpoints_ledger_version_conflicts_total",
			Help: "Optimistic balance writes retried after a version conflict",
		}),
		providerCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stockpoints_provider_calls_total",
			Help: "Provider calls by operation and outcome",
		}, []string{"operation", "outcome"}),
		ordersFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stockpoints_orders_finished_total",
			Help: "Orders reaching a terminal state",
		}, []string{"state", "reason"}),
		batchesFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stockpoints_batches_finished_total",
			Help: "Batches fully settled by aggregate state",
		}, []string{"state"}),
		refundedPoints: factory.NewCounter(prometheus.CounterOpts{
			Name: "stockpoints_refunded_points_total",
			Help: "Points returned to users for failed orders",
		}),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveHTTP(method, endpoint, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, endpoint, status).Inc()
	m.httpLatency.WithLabelValues(method, endpoint).Observe(elapsed.Seconds())
}

func (m *Metrics) LedgerMutation(reason, result string) {
	if m == nil {
		return
	}
	m.ledgerMutations.WithLabelValues(reason, result).Inc()
}

func (m *Metrics) LedgerConflict() {
	if m == nil {
		return
	}
	m.ledgerConflicts.Inc()
}

func (m *Metrics) ProviderCall(operation, outcome string) {
	if m == nil {
		return
	}
	m.providerCalls.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) OrderFinished(state, reason string) {
	if m == nil {
		return
	}
	m.ordersFinished.WithLabelValues(state, reason).Inc()
}

func (m *Metrics) BatchFinished(state string, refunded int64) {
	if m == nil {
		return
	}
	m.batchesFinished.WithLabelValues(state).Inc()
	if refunded > 0 {
		m.refundedPoints.Add(float64(refunded))
	}
}
