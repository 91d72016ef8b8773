package rbac

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

const (
	defaultPageSize = 10
	maxPageSize     = 20
)

// Handlers provides HTTP handlers for groups and roles
type Handlers struct {
	store  *Store
	guard  *middleware.Guard
	logger logrus.FieldLogger
}

// NewHandlers creates RBAC handlers
func NewHandlers(store *Store, guard *middleware.Guard, logger logrus.FieldLogger) *Handlers {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Handlers{store: store, guard: guard, logger: logger}
}

// RegisterRoutes registers group and role routes. Listing needs an active
// user; everything else needs a superuser.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	active := func(f http.HandlerFunc) http.Handler { return h.guard.RequireActive(f) }
	super := func(f http.HandlerFunc) http.Handler { return h.guard.RequireSuperuser(f) }

	// Groups
	router.Handle("/groups", active(h.ListGroups)).Methods("GET")
	router.Handle("/groups", super(h.CreateGroup)).Methods("POST")
	router.Handle("/groups/{id:[0-9]+}", super(h.GetGroup)).Methods("GET")
	router.Handle("/groups/{id:[0-9]+}", super(h.UpdateGroup)).Methods("PUT")
	router.Handle("/groups/{id:[0-9]+}", super(h.DeleteGroup)).Methods("DELETE")
	router.Handle("/groups/{id:[0-9]+}/permissions", super(h.SetPermissions)).Methods("PUT")
	router.Handle("/groups/{id:[0-9]+}/members", super(h.Members)).Methods("GET")
	router.Handle("/groups/{id:[0-9]+}/members", super(h.AddMembers)).Methods("POST")
	router.Handle("/groups/{id:[0-9]+}/members/{user_id:[0-9]+}", super(h.RemoveMember)).Methods("DELETE")

	// Roles
	router.Handle("/roles", active(h.ListRoles)).Methods("GET")
	router.Handle("/roles", super(h.CreateRole)).Methods("POST")
	router.Handle("/roles/{id:[0-9]+}", super(h.GetRole)).Methods("GET")
	router.Handle("/roles/{id:[0-9]+}", super(h.UpdateRole)).Methods("PUT")
	router.Handle("/roles/{ids:[0-9,]+}", super(h.DeleteRoles)).Methods("DELETE")
	router.Handle("/roles/{id:[0-9]+}/menus", super(h.RoleMenus)).Methods("GET")
	router.Handle("/roles/{id:[0-9]+}/menus", super(h.SetRoleMenus)).Methods("PUT")
	router.Handle("/roles/{id:[0-9]+}/users", super(h.RoleUsers)).Methods("GET")
	router.Handle("/roles/{id:[0-9]+}/users", super(h.AssignUsers)).Methods("POST")
	router.Handle("/roles/{id:[0-9]+}/users/{user_id:[0-9]+}", super(h.RevokeUser)).Methods("DELETE")
}

// ListGroups returns a page of groups filtered by keywords
func (h *Handlers) ListGroups(w http.ResponseWriter, r *http.Request) {
	page, err := httputil.ParsePage(r, defaultPageSize, maxPageSize)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}
	list, err := h.store.ListGroups(r.Context(), httputil.ParseQueryString(r, "keywords", ""), page.PageSize, page.Offset())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

// CreateGroup creates a group
func (h *Handlers) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req GroupCreate
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	g, err := h.store.CreateGroup(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, g)
}

// GetGroup returns one group
func (h *Handlers) GetGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	g, err := h.store.GetGroup(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, g)
}

// UpdateGroup renames or redescribes a group
func (h *Handlers) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req GroupUpdate
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	g, err := h.store.UpdateGroup(r.Context(), id, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, g)
}

// DeleteGroup deletes a group and returns its id
func (h *Handlers) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteGroup(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, id)
}

// SetPermissions replaces the permission keys of a group
func (h *Handlers) SetPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Permissions []string `json:"permissions"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	keys, err := h.store.SetPermissions(r.Context(), id, req.Permissions)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, keys)
}

// Members lists the users of a group
func (h *Handlers) Members(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	members, err := h.store.Members(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, members)
}

// AddMembers adds users to a group and returns how many were added
func (h *Handlers) AddMembers(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req UserIDs
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	n, err := h.store.AddMembers(r.Context(), id, req.UserIDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]int{"added": n})
}

// RemoveMember removes a user from a group
func (h *Handlers) RemoveMember(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}
	if err := h.store.RemoveMember(r.Context(), id, userID); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, userID)
}

// ListRoles returns a page of roles filtered by keywords
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	page, err := httputil.ParsePage(r, defaultPageSize, maxPageSize)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}
	list, err := h.store.ListRoles(r.Context(), httputil.ParseQueryString(r, "keywords", ""), page.PageSize, page.Offset())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

// CreateRole creates a role
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req RoleCreate
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	role, err := h.store.CreateRole(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, role)
}

// GetRole returns one role
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	role, err := h.store.GetRole(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// UpdateRole applies a partial update
func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req RoleUpdate
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	role, err := h.store.UpdateRole(r.Context(), id, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// DeleteRoles deletes the roles named by a comma separated id list
func (h *Handlers) DeleteRoles(w http.ResponseWriter, r *http.Request) {
	ids, err := httputil.ParsePathIDList(r, "ids")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	n, err := h.store.DeleteRoles(r.Context(), ids)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]int{"deleted": n})
}

// RoleMenus returns the menu ids granted to a role
func (h *Handlers) RoleMenus(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	ids, err := h.store.RoleMenuIDs(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, ids)
}

// SetRoleMenus replaces the menus granted to a role
func (h *Handlers) SetRoleMenus(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req MenuIDs
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	ids, err := h.store.SetRoleMenus(r.Context(), id, req.MenuIDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, ids)
}

// RoleUsers lists the holders of a role
func (h *Handlers) RoleUsers(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	members, err := h.store.RoleUsers(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, members)
}

// AssignUsers gives a role to users
func (h *Handlers) AssignUsers(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req UserIDs
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	n, err := h.store.AssignUsers(r.Context(), id, req.UserIDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]int{"assigned": n})
}

// RevokeUser removes a role from a user
func (h *Handlers) RevokeUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}
	if err := h.store.RevokeUser(r.Context(), id, userID); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, userID)
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httputil.WriteNotFound(w, err.Error())
	case errors.Is(err, ErrDuplicate):
		httputil.WriteConflict(w, err.Error())
	default:
		if auth.StatusCode(err) == http.StatusInternalServerError {
			observability.FromContext(r.Context(), h.logger).WithError(err).Error("rbac request failed")
		}
		httputil.WriteError(w, err)
	}
}
