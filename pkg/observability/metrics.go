package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
	CacheErrorsTotal *prometheus.CounterVec

	// Auth metrics
	AuthFailuresTotal  *prometheus.CounterVec
	IdentityLoadsTotal prometheus.Counter
	LoginAttemptsTotal *prometheus.CounterVec
	RateLimitedTotal   *prometheus.CounterVec

	// Menu metrics
	MenuTreeBuildsTotal   *prometheus.CounterVec
	MenuTreeBuildDuration *prometheus.HistogramVec

	// Scheduled job metrics
	JobRunsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adminhub_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "adminhub_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adminhub_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type", "key_type"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adminhub_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type", "key_type"},
		),
		CacheErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adminhub_cache_errors_total",
				Help: "Total number of cache operation failures",
			},
			[]string{"cache_type", "operation"},
		),

		AuthFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adminhub_auth_failures_total",
				Help: "Total number of rejected authentication or authorization checks",
			},
			[]string{"kind"},
		),
		IdentityLoadsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "adminhub_identity_store_loads_total",
				Help: "Identity resolutions that fell through to the credential store",
			},
		),
		LoginAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adminhub_login_attempts_total",
				Help: "Total number of login attempts",
			},
			[]string{"status"},
		),
		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adminhub_rate_limited_total",
				Help: "Requests rejected by a rate limiter",
			},
			[]string{"limiter"},
		),

		MenuTreeBuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adminhub_menu_tree_builds_total",
				Help: "Menu tree projections materialized from the store",
			},
			[]string{"projection"},
		),
		MenuTreeBuildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "adminhub_menu_tree_build_duration_seconds",
				Help:    "Time spent loading and assembling a menu tree",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"projection"},
		),

		JobRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adminhub_job_runs_total",
				Help: "Scheduled job runs by outcome",
			},
			[]string{"job", "status"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheErrorsTotal,
		m.AuthFailuresTotal,
		m.IdentityLoadsTotal,
		m.LoginAttemptsTotal,
		m.RateLimitedTotal,
		m.MenuTreeBuildsTotal,
		m.MenuTreeBuildDuration,
		m.JobRunsTotal,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// routeLabel returns the mux route template so ids do not explode label cardinality
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Register it with router.Use so the matched route is available.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
