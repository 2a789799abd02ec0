package observability

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	orderMetricsOnce sync.Once
	orderRegistry    *OrderMetrics

	indexerMetricsOnce sync.Once
	indexerRegistry    *IndexerMetrics
)

// ModuleMetrics returns the lazily-initialised module metrics registry used to
// record RPC module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "orderchain",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "orderchain",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "orderchain",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "orderchain",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a module request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit".
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// OrderMetrics tracks call execution and escrow custody on the node.
type OrderMetrics struct {
	calls      *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	escrowHeld prometheus.Gauge
	height     prometheus.Gauge
}

// Orders returns the metrics registry for call execution.
func Orders() *OrderMetrics {
	orderMetricsOnce.Do(func() {
		orderRegistry = &OrderMetrics{
			calls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "orderchain",
				Subsystem: "calls",
				Name:      "total",
				Help:      "Applied calls segmented by call type and outcome kind.",
			}, []string{"type", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "orderchain",
				Subsystem: "calls",
				Name:      "apply_duration_seconds",
				Help:      "Time spent executing and committing a call.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"type"}),
			escrowHeld: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "orderchain",
				Subsystem: "escrow",
				Name:      "held",
				Help:      "Amount the store escrow owes to open orders, in base units.",
			}),
			height: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "orderchain",
				Subsystem: "chain",
				Name:      "height",
				Help:      "Height of the latest committed block.",
			}),
		}
		prometheus.MustRegister(
			orderRegistry.calls,
			orderRegistry.latency,
			orderRegistry.escrowHeld,
			orderRegistry.height,
		)
	})
	return orderRegistry
}

// RecordCall counts one call. outcome is "ok" or an error kind.
func (m *OrderMetrics) RecordCall(callType, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	if callType == "" {
		callType = "unknown"
	}
	if outcome == "" {
		outcome = "ok"
	}
	m.calls.WithLabelValues(callType, outcome).Inc()
	m.latency.WithLabelValues(callType).Observe(d.Seconds())
}

// SetEscrowHeld publishes the escrow's outstanding obligations.
func (m *OrderMetrics) SetEscrowHeld(amount *big.Int) {
	if m == nil {
		return
	}
	m.escrowHeld.Set(bigToFloat(amount))
}

// SetHeight publishes the committed chain height.
func (m *OrderMetrics) SetHeight(height uint64) {
	if m == nil {
		return
	}
	m.height.Set(float64(height))
}

// IndexerMetrics instruments the order indexer service.
type IndexerMetrics struct {
	ingested  *prometheus.CounterVec
	lastBlock prometheus.Gauge
	reconnect prometheus.Counter
}

// Indexer returns the metrics registry for the order indexer.
func Indexer() *IndexerMetrics {
	indexerMetricsOnce.Do(func() {
		indexerRegistry = &IndexerMetrics{
			ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "orderchain",
				Subsystem: "indexer",
				Name:      "events_total",
				Help:      "Events persisted by the indexer segmented by event type.",
			}, []string{"type"}),
			lastBlock: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "orderchain",
				Subsystem: "indexer",
				Name:      "last_height",
				Help:      "Height of the most recent indexed event.",
			}),
			reconnect: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "orderchain",
				Subsystem: "indexer",
				Name:      "reconnects_total",
				Help:      "Number of times the indexer re-dialled the node stream.",
			}),
		}
		prometheus.MustRegister(indexerRegistry.ingested, indexerRegistry.lastBlock, indexerRegistry.reconnect)
	})
	return indexerRegistry
}

// RecordEvent counts an indexed event and advances the height gauge.
func (m *IndexerMetrics) RecordEvent(eventType string, height uint64) {
	if m == nil {
		return
	}
	m.ingested.WithLabelValues(labelEvent(eventType)).Inc()
	m.lastBlock.Set(float64(height))
}

// RecordReconnect counts a stream reconnect.
func (m *IndexerMetrics) RecordReconnect() {
	if m == nil {
		return
	}
	m.reconnect.Inc()
}

func labelEvent(eventType string) string {
	normalized := strings.TrimSpace(strings.ToLower(eventType))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(value).Float64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0
	}
	return f
}
