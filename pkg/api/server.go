package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/adminhub/pkg/audit"
	"github.com/platinummonkey/adminhub/pkg/auth"
	"github.com/platinummonkey/adminhub/pkg/httputil"
	"github.com/platinummonkey/adminhub/pkg/mail"
	"github.com/platinummonkey/adminhub/pkg/menu"
	"github.com/platinummonkey/adminhub/pkg/middleware"
	"github.com/platinummonkey/adminhub/pkg/observability"
	"github.com/platinummonkey/adminhub/pkg/rbac"
	"github.com/platinummonkey/adminhub/pkg/users"
)

// DefaultMaxBodyBytes caps request bodies
const DefaultMaxBodyBytes = 1 << 20

// Config wires the API server
type Config struct {
	Users    *users.Store
	Menus    *menu.Store
	RBAC     *rbac.Store
	Resolver *auth.Resolver
	Mailer   mail.Mailer

	// TrustedProxies may set the client address through forwarding headers;
	// nil trusts only the socket peer
	TrustedProxies *middleware.TrustedProxies

	// LoginLimiter throttles the unauthenticated auth endpoints; nil disables it
	LoginLimiter middleware.Limiter

	// Audit records auth flows and mutating requests; nil disables recording.
	// AuditStore, when set, serves the trail at /api/audit/events.
	Audit      audit.Logger
	AuditStore *audit.DBStore

	Metrics *observability.Metrics // optional
	Logger  logrus.FieldLogger

	PublicURL    string
	EmailsFrom   string
	CORSOrigins  []string
	MaxBodyBytes int64
}

// Server represents our API server
type Server struct {
	router   *mux.Router
	handler  http.Handler
	guard    *middleware.Guard
	resolver *auth.Resolver
	logger   logrus.FieldLogger
}

// NewServer creates the API server with every route mounted under /api
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	if cfg.Mailer == nil {
		cfg.Mailer = mail.NewLogMailer(logger)
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	s := &Server{
		router:   mux.NewRouter(),
		guard:    middleware.NewGuard(cfg.Resolver, logger),
		resolver: cfg.Resolver,
		logger:   logger,
	}
	s.setupRoutes(cfg)

	chain := httputil.Chain(
		httputil.RequestIDMiddleware,
		middleware.RealIP(cfg.TrustedProxies),
		httputil.RecoveryMiddleware(logger),
		httputil.LoggingMiddleware(logger),
		httputil.CORSMiddleware(cfg.CORSOrigins),
		httputil.MaxBytesMiddleware(maxBody),
	)
	s.handler = otelhttp.NewHandler(chain(s.router), "adminhub.api")
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes(cfg Config) {
	s.router.Use(nameSpan)
	if cfg.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(cfg.Metrics))
	}
	api := s.router.PathPrefix("/api").Subrouter()
	// mux resolves misses on the router that owns the routes, so the
	// subrouter needs its own handlers
	for _, r := range []*mux.Router{s.router, api} {
		r.NotFoundHandler = http.HandlerFunc(notFound)
		r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	}
	if cfg.Audit != nil {
		api.Use(audit.NewMiddleware(cfg.Audit, s.actor, s.logger).Handler)
	}

	NewAuthHandlers(AuthConfig{
		Users:      cfg.Users,
		Tokens:     cfg.Resolver.Tokens(),
		Guard:      s.guard,
		Mailer:     cfg.Mailer,
		Limiter:    cfg.LoginLimiter,
		Metrics:    cfg.Metrics,
		Audit:      cfg.Audit,
		PublicURL:  cfg.PublicURL,
		EmailsFrom: cfg.EmailsFrom,
		Logger:     s.logger,
	}).RegisterRoutes(api)

	userCfg := users.HandlerConfig{
		Store:      cfg.Users,
		Guard:      s.guard,
		Mailer:     cfg.Mailer,
		EmailsFrom: cfg.EmailsFrom,
		PublicURL:  cfg.PublicURL,
		Logger:     s.logger,
	}
	if cfg.RBAC != nil {
		userCfg.Roles = cfg.RBAC
		rbac.NewHandlers(cfg.RBAC, s.guard, s.logger).RegisterRoutes(api)
	}
	users.NewHandlers(userCfg).RegisterRoutes(api)

	if cfg.Menus != nil {
		menu.NewHandlers(cfg.Menus, s.guard, s.logger).RegisterRoutes(api)
	}
	if cfg.AuditStore != nil {
		audit.NewHandlers(cfg.AuditStore, s.guard, s.logger).RegisterRoutes(api)
	}
}

func notFound(w http.ResponseWriter, r *http.Request) {
	httputil.WriteNotFound(w, "not found")
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	httputil.WriteErrorCode(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}

// actor reads the caller from the access token without loading the user
func (s *Server) actor(r *http.Request) *int64 {
	token, ok := middleware.BearerToken(r)
	if !ok {
		return nil
	}
	claims, err := s.resolver.VerifyAccess(token)
	if err != nil {
		return nil
	}
	return &claims.UserID
}

// nameSpan renames the server span after the matched route template
func nameSpan(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				span := trace.SpanFromContext(r.Context())
				span.SetName(r.Method + " " + tpl)
				span.SetAttributes(semconv.HTTPRouteKey.String(tpl))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Router exposes the route table
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
