package monitor

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks hub link metrics. It implements hub.Observer.
type Metrics struct {
	// Dispatch metrics
	Requests       *prometheus.CounterVec
	RequestLatency *prometheus.HistogramVec
	AuthWarnings   prometheus.Counter

	// Limiter metrics
	RateLimited  *prometheus.CounterVec
	WindowCalls  *prometheus.GaugeVec
	TrackedUsers prometheus.Gauge

	// Health metrics
	LinkHealth      prometheus.Gauge // 0-100 score
	LastHealthCheck prometheus.Gauge
}

// NewMetrics creates and registers the metrics on registry, or on the
// default registerer when registry is nil.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hublink_requests_total",
			Help: "Hub requests by method, outcome and whether they were signed",
		}, []string{"method", "outcome", "signed"}),
		RequestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hublink_request_latency_seconds",
			Help:    "Hub request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		AuthWarnings: factory.NewCounter(prometheus.CounterOpts{
			Name: "hublink_auth_warnings_total",
			Help: "Responses where the hub accepted a request without authenticating it",
		}),

		RateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hublink_rate_limited_total",
			Help: "Calls denied by a rate limiter",
		}, []string{"scope", "constraint"}),
		WindowCalls: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hublink_global_window_calls",
			Help: "Calls counted in each global limiter window",
		}, []string{"window"}),
		TrackedUsers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hublink_rate_limit_tracked_users",
			Help: "Users with entries in the per-user limiter",
		}),

		LinkHealth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hublink_link_health_score",
			Help: "Hub link health score (0-100)",
		}),
		LastHealthCheck: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hublink_last_health_check_timestamp",
			Help: "Timestamp of last health check",
		}),
	}
}

func (m *Metrics) ObserveRequest(method, outcome string, signed bool, elapsed time.Duration) {
	m.Requests.WithLabelValues(method, outcome, strconv.FormatBool(signed)).Inc()
	m.RequestLatency.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveAuthWarning() {
	m.AuthWarnings.Inc()
}

func (m *Metrics) ObserveRateLimited(scope, constraint string) {
	m.RateLimited.WithLabelValues(scope, constraint).Inc()
}
