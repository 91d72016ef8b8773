package menu

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/adminhub/pkg/auth"
	"github.com/platinummonkey/adminhub/pkg/httputil"
	"github.com/platinummonkey/adminhub/pkg/middleware"
	"github.com/platinummonkey/adminhub/pkg/observability"
)

// Handlers provides HTTP handlers for the menu hierarchy
type Handlers struct {
	store  *Store
	guard  *middleware.Guard
	logger logrus.FieldLogger
}

// NewHandlers creates menu handlers
func NewHandlers(store *Store, guard *middleware.Guard, logger logrus.FieldLogger) *Handlers {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Handlers{store: store, guard: guard, logger: logger}
}

// RegisterRoutes registers the menu routes. Reads need any valid access
// token; writes need a superuser.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/catalogs", h.guard.RequireToken(http.HandlerFunc(h.Catalogs))).Methods("GET")
	router.Handle("/menus", h.guard.RequireToken(http.HandlerFunc(h.ListMenus))).Methods("GET")
	router.Handle("/menus", h.guard.RequireSuperuser(http.HandlerFunc(h.CreateMenu))).Methods("POST")
	router.Handle("/menus/{id:[0-9]+}", h.guard.RequireSuperuser(http.HandlerFunc(h.GetMenu))).Methods("GET")
	router.Handle("/menus/{id:[0-9]+}", h.guard.RequireSuperuser(http.HandlerFunc(h.UpdateMenu))).Methods("PUT")
	router.Handle("/menus/{id:[0-9]+}", h.guard.RequireSuperuser(http.HandlerFunc(h.DeleteMenu))).Methods("DELETE")
	router.Handle("/routes", h.guard.RequireActive(http.HandlerFunc(h.Routes))).Methods("GET")
}

// Catalogs returns the selector tree
func (h *Handlers) Catalogs(w http.ResponseWriter, r *http.Request) {
	tree, err := h.store.CatalogTree(r.Context(), nil)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, tree)
}

// ListMenus returns the full tree, optionally filtered by keywords
func (h *Handlers) ListMenus(w http.ResponseWriter, r *http.Request) {
	tree, err := h.store.FullTree(r.Context(), nil, httputil.ParseQueryString(r, "keywords", ""))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, tree)
}

// Routes returns the navigation routes for the front end
func (h *Handlers) Routes(w http.ResponseWriter, r *http.Request) {
	routes, err := h.store.RouteTree(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, routes)
}

// CreateMenu creates a menu and returns its id
func (h *Handlers) CreateMenu(w http.ResponseWriter, r *http.Request) {
	var req MenuCreate
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	m, err := h.store.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, m.ID)
}

// GetMenu returns a single menu
func (h *Handlers) GetMenu(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	m, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, m)
}

// UpdateMenu applies a partial update
func (h *Handlers) UpdateMenu(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req MenuUpdate
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	m, err := h.store.Update(r.Context(), id, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, m)
}

// DeleteMenu soft-deletes a menu
func (h *Handlers) DeleteMenu(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, id)
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var cycle *CycleError
	switch {
	case errors.As(err, &cycle):
		httputil.WriteErrorCode(w, http.StatusUnprocessableEntity, "invalid_parent", cycle.Error())
	case isNotFound(err):
		httputil.WriteNotFound(w, err.Error())
	case errors.Is(err, ErrDuplicate):
		httputil.WriteConflict(w, ErrDuplicate.Error())
	default:
		if auth.StatusCode(err) == http.StatusInternalServerError {
			observability.FromContext(r.Context(), h.logger).WithError(err).Error("menu request failed")
		}
		httputil.WriteError(w, err)
	}
}
