package audit

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/adminhub/pkg/httputil"
	"github.com/platinummonkey/adminhub/pkg/middleware"
	"github.com/platinummonkey/adminhub/pkg/observability"
)

// Handlers serves the audit trail to superusers
type Handlers struct {
	store  *DBStore
	guard  *middleware.Guard
	logger logrus.FieldLogger
}

// NewHandlers creates audit handlers
func NewHandlers(store *DBStore, guard *middleware.Guard, logger logrus.FieldLogger) *Handlers {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Handlers{store: store, guard: guard, logger: logger}
}

// RegisterRoutes registers the /audit routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/audit/events", h.guard.RequireSuperuser(http.HandlerFunc(h.ListEvents))).Methods("GET")
}

// ListEvents searches the audit trail. Query parameters: user_id,
// event_type (comma separated), status, since and until (RFC 3339),
// skip and limit.
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	list, err := h.store.Search(r.Context(), f)
	if err != nil {
		observability.FromContext(r.Context(), h.logger).WithError(err).Error("audit search failed")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, list)
}

func parseFilter(r *http.Request) (Filter, error) {
	var f Filter
	var err error

	f.Limit, f.Offset, err = httputil.ParseSkipLimit(r, 50, 500)
	if err != nil {
		return f, err
	}

	q := r.URL.Query()
	if v := q.Get("user_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, &paramError{"user_id", "must be an integer"}
		}
		f.UserID = &id
	}
	if v := q.Get("event_type"); v != "" {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				f.Types = append(f.Types, EventType(t))
			}
		}
	}
	switch s := Status(q.Get("status")); s {
	case "", StatusSuccess, StatusFailure, StatusDenied:
		f.Status = s
	default:
		return f, &paramError{"status", "must be success, failure or denied"}
	}
	if f.Since, err = parseTime(q.Get("since"), "since"); err != nil {
		return f, err
	}
	if f.Until, err = parseTime(q.Get("until"), "until"); err != nil {
		return f, err
	}
	return f, nil
}

func parseTime(v, name string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, &paramError{name, "must be an RFC 3339 timestamp"}
	}
	return &t, nil
}

type paramError struct {
	param, reason string
}

func (e *paramError) Error() string { return e.param + ": " + e.reason }
