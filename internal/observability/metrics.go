package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "arcana_pos"

// Metrics holds the agent's prometheus collectors. All recorders are safe on a nil receiver
// so components can run without metrics in tests.
type Metrics struct {
	registry *prometheus.Registry

	queueSize     prometheus.Gauge
	failedSize    prometheus.Gauge
	replaysTotal  *prometheus.CounterVec
	droppedTotal  prometheus.Counter
	drainsTotal   *prometheus.CounterVec
	drainDuration prometheus.Histogram
	networkOnline prometheus.Gauge
	cacheRequests *prometheus.CounterVec
	breakerState  *prometheus.GaugeVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// NewMetrics creates and registers all collectors on a private registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		queueSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "offline",
			Name:      "queue_size",
			Help:      "Number of requests waiting for replay",
		}),
		failedSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "offline",
			Name:      "failed_size",
			Help:      "Number of requests dropped after retry exhaustion and not yet dismissed",
		}),
		replaysTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "replays_total",
			Help:      "Replay attempts by result",
		}, []string{"method", "result"}),
		droppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "dropped_total",
			Help:      "Requests dropped after exhausting retries",
		}),
		drainsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "drains_total",
			Help:      "Drain cycles by outcome",
		}, []string{"outcome"}),
		drainDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "drain_duration_seconds",
			Help:      "Drain cycle duration",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		networkOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "network",
			Name:      "online",
			Help:      "1 when the device is connected and the internet is reachable",
		}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Response cache lookups by result (hit, miss, shared)",
		}, []string{"result"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		}, []string{"name"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "http_requests_total",
			Help:      "Local API requests",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "http_request_duration_seconds",
			Help:      "Local API request duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	registry.MustRegister(
		m.queueSize,
		m.failedSize,
		m.replaysTotal,
		m.droppedTotal,
		m.drainsTotal,
		m.drainDuration,
		m.networkOnline,
		m.cacheRequests,
		m.breakerState,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for Prometheus metrics
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetQueueSize records the pending and failed entry counts
func (m *Metrics) SetQueueSize(pending, failed int) {
	if m == nil {
		return
	}
	m.queueSize.Set(float64(pending))
	m.failedSize.Set(float64(failed))
}

// RecordReplay counts one replay attempt
func (m *Metrics) RecordReplay(method string, success bool) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	m.replaysTotal.WithLabelValues(method, result).Inc()
}

// RecordDropped counts one request dropped after retry exhaustion
func (m *Metrics) RecordDropped() {
	if m == nil {
		return
	}
	m.droppedTotal.Inc()
}

// RecordDrain records a finished drain cycle. outcome is completed, halted, interrupted or failed.
func (m *Metrics) RecordDrain(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.drainsTotal.WithLabelValues(outcome).Inc()
	m.drainDuration.Observe(duration.Seconds())
}

// SetOnline records the monitor's online flag
func (m *Metrics) SetOnline(online bool) {
	if m == nil {
		return
	}
	if online {
		m.networkOnline.Set(1)
	} else {
		m.networkOnline.Set(0)
	}
}

// RecordCache counts a cache lookup
func (m *Metrics) RecordCache(result string) {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues(result).Inc()
}

// SetBreakerState records a circuit breaker transition
func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(name).Set(float64(state))
}

// RecordHTTPRequest records a local API request
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
