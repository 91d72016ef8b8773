package audit

import (
	"net/http"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/adminhub/pkg/observability"
)

// ActorFunc identifies the caller of a request, or returns nil
type ActorFunc func(r *http.Request) *int64

// Middleware records mutating requests after they complete
type Middleware struct {
	logger Logger
	actor  ActorFunc
	log    logrus.FieldLogger
}

// NewMiddleware creates audit middleware. actor may be nil.
func NewMiddleware(logger Logger, actor ActorFunc, log logrus.FieldLogger) *Middleware {
	if log == nil {
		log = observability.NopLogger()
	}
	if actor == nil {
		actor = func(*http.Request) *int64 { return nil }
	}
	return &Middleware{logger: logger, actor: actor, log: log}
}

// Handler is router middleware: it must run after route matching so the
// route template is known.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !mutating(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		metrics := httpsnoop.CaptureMetrics(next, w, r)

		e := NewEvent(r, EventRequest, StatusFromCode(metrics.Code))
		e.UserID = m.actor(r)
		e.StatusCode = metrics.Code
		e.Route = r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				e.Route = tpl
			}
			if vars := mux.Vars(r); len(vars) > 0 {
				e.Metadata = make(map[string]interface{}, len(vars))
				for k, v := range vars {
					e.Metadata[k] = v
				}
			}
		}
		e.Message = r.Method + " " + e.Route

		if err := m.logger.Log(r.Context(), e); err != nil {
			observability.FromContext(r.Context(), m.log).WithError(err).Warn("failed to record audit event")
		}
	})
}

func mutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}
