// Package observability provides structured logging, Prometheus metrics and
// health checks for the admin backend.
//
// # Structured Logging
//
// Loggers are logrus loggers with a JSON formatter:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("port", 8080).Info("server started")
//
// Request-scoped logging picks up the request and user IDs stored by the
// HTTP middleware:
//
//	observability.FromContext(r.Context(), logger).Warn("cache unavailable")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	router.Use(observability.HTTPMetricsMiddleware(metrics))
//
// Cache hits and misses are labelled by key family ("user", "CacheModel:Menu",
// ...), never by full key.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	observability.RegisterHealthRoutes(healthMux, checker)
//
// The database is required for readiness. A failing Redis only degrades the
// reported status since identity resolution falls back to the store.
package observability
