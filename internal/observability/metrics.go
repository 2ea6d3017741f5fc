package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentorscore_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mentorscore_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	gapFillTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentorscore_gapfill_total",
			Help: "Gap filling attempts by stage and outcome",
		},
		[]string{"stage", "outcome"},
	)

	generatorRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentorscore_generator_requests_total",
			Help: "Requests sent to the generative text collaborator",
		},
		[]string{"status"},
	)

	generatorRequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mentorscore_generator_request_duration_seconds",
			Help:    "Generative text request duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
	)

	viewCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentorscore_view_cache_total",
			Help: "Session view cache lookups",
		},
		[]string{"result"},
	)

	sessionWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentorscore_session_writes_total",
			Help: "Session writes by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	initOnce sync.Once
)

// Gap filling outcomes.
const (
	OutcomeSkipped  = "skipped"
	OutcomeFilled   = "filled"
	OutcomeDegraded = "degraded"
)

// InitMetrics registers the collectors with the default registry.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpRequestsTotal,
			httpRequestDuration,
			gapFillTotal,
			generatorRequestsTotal,
			generatorRequestDuration,
			viewCacheTotal,
			sessionWritesTotal,
		)
	})
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

func RecordHTTPRequest(method, route, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func RecordGapFill(stage, outcome string) {
	gapFillTotal.WithLabelValues(stage, outcome).Inc()
}

func RecordGeneratorRequest(status string, duration time.Duration) {
	generatorRequestsTotal.WithLabelValues(status).Inc()
	generatorRequestDuration.Observe(duration.Seconds())
}

func RecordViewCache(hit bool) {
	if hit {
		viewCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	viewCacheTotal.WithLabelValues("miss").Inc()
}

func RecordSessionWrite(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	sessionWritesTotal.WithLabelValues(operation, outcome).Inc()
}
