package users

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/adminhub/pkg/auth"
	"github.com/platinummonkey/adminhub/pkg/httputil"
	"github.com/platinummonkey/adminhub/pkg/mail"
	"github.com/platinummonkey/adminhub/pkg/middleware"
	"github.com/platinummonkey/adminhub/pkg/observability"
)

// PermissionReadUsers guards the user listing
const PermissionReadUsers = "users_read"

// RoleSource reports what a user is granted through roles
type RoleSource interface {
	RoleKeys(ctx context.Context, userID int64) ([]string, error)
	RolePermissionKeys(ctx context.Context, userID int64) ([]string, error)
}

// HandlerConfig wires Handlers
type HandlerConfig struct {
	Store  *Store
	Guard  *middleware.Guard
	Mailer mail.Mailer
	Roles  RoleSource // optional
	// EmailsFrom is the sender of account mails
	EmailsFrom string
	// PublicURL is the base of links sent to users
	PublicURL string
	Logger    logrus.FieldLogger
}

// Handlers provides HTTP handlers for user management
type Handlers struct {
	store     *Store
	guard     *middleware.Guard
	mailer    mail.Mailer
	roles     RoleSource
	from      string
	publicURL string
	logger    logrus.FieldLogger
}

// NewHandlers creates user handlers
func NewHandlers(cfg HandlerConfig) *Handlers {
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Handlers{
		store:     cfg.Store,
		guard:     cfg.Guard,
		mailer:    cfg.Mailer,
		roles:     cfg.Roles,
		from:      cfg.EmailsFrom,
		publicURL: cfg.PublicURL,
		logger:    logger,
	}
}

// RegisterRoutes registers the /users routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/users", h.guard.RequirePermissions(PermissionReadUsers)(http.HandlerFunc(h.ListUsers))).Methods("GET")
	router.Handle("/users", h.guard.RequireSuperuser(http.HandlerFunc(h.CreateUser))).Methods("POST")
	router.Handle("/users/me", h.guard.RequireActive(http.HandlerFunc(h.GetMe))).Methods("GET")
	router.Handle("/users/me", h.guard.RequireActive(http.HandlerFunc(h.UpdateMe))).Methods("PUT")
	router.Handle("/users/{id:[0-9]+}", h.guard.RequireActive(http.HandlerFunc(h.GetUser))).Methods("GET")
	router.Handle("/users/{id:[0-9]+}", h.guard.RequireSuperuser(http.HandlerFunc(h.UpdateUser))).Methods("PUT")
}

// ListUsers returns a page of users selected by skip and limit
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := httputil.ParseSkipLimit(r, 100, 1000)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	list, err := h.store.List(r.Context(), limit, offset)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

// CreateUser creates an account and notifies its owner
func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req UserCreate
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := h.store.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if h.mailer != nil {
		msg := mail.NewAccount(h.from, user.Email, user.Username, h.publicURL+"/login")
		if err := h.mailer.Send(r.Context(), msg); err != nil {
			observability.FromContext(r.Context(), h.logger).WithError(err).Warn("failed to send new account email")
		}
	}

	httputil.WriteCreated(w, user)
}

// GetMe returns the caller with their effective permissions
func (h *Handlers) GetMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.CurrentUser(ctx)

	perms := auth.EffectivePermissions(user)
	out := &MeOut{User: user, Roles: []string{}}

	if h.roles != nil {
		keys, err := h.roles.RolePermissionKeys(ctx, user.ID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		for _, k := range keys {
			perms.Add(k)
		}
		roles, err := h.roles.RoleKeys(ctx, user.ID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		out.Roles = roles
	}
	out.Permissions = perms.Sorted()

	httputil.WriteSuccess(w, out)
}

// UpdateMe lets the caller change their own profile and password
func (h *Handlers) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req SelfUpdate
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	// The context holds a cached snapshot; mutate the live row instead
	user, err := h.update(r.Context(), middleware.CurrentUser(r.Context()).ID, req.AsUpdate())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

// GetUser returns a user. Only superusers may read other accounts.
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	current := middleware.CurrentUser(r.Context())
	if current.ID != id && !current.IsSuperuser {
		httputil.WriteBadRequest(w, "The user doesn't have enough privileges")
		return
	}

	user, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

// UpdateUser applies a partial update to any account
func (h *Handlers) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req UserUpdate
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := h.update(r.Context(), id, &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

func (h *Handlers) update(ctx context.Context, id int64, req *UserUpdate) (*auth.User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	user, err := h.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	req.Apply(user)
	if err := h.store.Save(ctx, user); err != nil {
		return nil, err
	}
	if req.Password != nil {
		if err := h.store.SetPassword(ctx, id, *req.Password); err != nil {
			return nil, err
		}
	}
	return user, nil
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httputil.WriteNotFound(w, "The user with this id does not exist in the system")
	case errors.Is(err, ErrDuplicate):
		httputil.WriteBadRequest(w, ErrDuplicate.Error())
	default:
		if auth.StatusCode(err) == http.StatusInternalServerError {
			observability.FromContext(r.Context(), h.logger).WithError(err).Error("user request failed")
		}
		httputil.WriteError(w, err)
	}
}
