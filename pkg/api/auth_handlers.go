package api

import (
	"errors"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/adminhub/pkg/audit"
	"github.com/platinummonkey/adminhub/pkg/auth"
	"github.com/platinummonkey/adminhub/pkg/httputil"
	"github.com/platinummonkey/adminhub/pkg/mail"
	"github.com/platinummonkey/adminhub/pkg/middleware"
	"github.com/platinummonkey/adminhub/pkg/observability"
	"github.com/platinummonkey/adminhub/pkg/users"
)

// AuthConfig wires AuthHandlers
type AuthConfig struct {
	Users   *users.Store
	Tokens  *auth.TokenIssuer
	Guard   *middleware.Guard
	Mailer  mail.Mailer
	Limiter middleware.Limiter     // optional
	Metrics *observability.Metrics // optional
	Audit   audit.Logger           // optional

	PublicURL  string
	EmailsFrom string
	Logger     logrus.FieldLogger
}

// AuthHandlers handles login, password recovery and self registration
type AuthHandlers struct {
	users     *users.Store
	tokens    *auth.TokenIssuer
	guard     *middleware.Guard
	mailer    mail.Mailer
	limiter   middleware.Limiter
	metrics   *observability.Metrics
	audit     audit.Logger
	publicURL string
	from      string
	logger    logrus.FieldLogger
	now       func() time.Time
}

// NewAuthHandlers creates a new auth handlers instance
func NewAuthHandlers(cfg AuthConfig) *AuthHandlers {
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	recorder := cfg.Audit
	if recorder == nil {
		recorder = audit.NopLogger{}
	}
	return &AuthHandlers{
		users:     cfg.Users,
		tokens:    cfg.Tokens,
		guard:     cfg.Guard,
		mailer:    cfg.Mailer,
		limiter:   cfg.Limiter,
		metrics:   cfg.Metrics,
		audit:     recorder,
		publicURL: cfg.PublicURL,
		from:      cfg.EmailsFrom,
		logger:    logger,
		now:       time.Now,
	}
}

// TokenResponse is the OAuth2 password grant response
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// RegisterRoutes registers authentication routes
func (h *AuthHandlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/auth/login/access-token", h.limited("login", h.Login)).Methods("POST")
	router.Handle("/auth/login/password-recovery/{email}", h.limited("password_recovery", h.RecoverPassword)).Methods("POST")
	router.Handle("/auth/login/reset-password", h.limited("reset_password", h.ResetPassword)).Methods("POST")

	router.Handle("/auth/register", h.limited("register", h.Register)).Methods("POST")
	router.HandleFunc("/auth/register/account-confirm", h.ConfirmAccount).Methods("GET")
	router.Handle("/auth/register/request-account-confirm", h.guard.RequireActive(http.HandlerFunc(h.RequestAccountConfirm))).Methods("GET")

	router.Handle("/auth/logout", h.guard.RequireActive(http.HandlerFunc(h.Logout))).Methods("DELETE")
}

func (h *AuthHandlers) limited(name string, fn http.HandlerFunc) http.Handler {
	if h.limiter == nil {
		return fn
	}
	return middleware.RateLimit(h.limiter, name, h.metrics, h.logger)(fn)
}

// Login exchanges credentials for an access token. The body is either an
// OAuth2 password grant form or JSON with the same field names.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req, func(form url.Values) {
		req.Username = form.Get("username")
		req.Password = form.Get("password")
	}) {
		return
	}

	ctx := r.Context()
	logger := observability.FromContext(ctx, h.logger)

	user, err := h.users.Authenticate(ctx, req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		h.recordLogin("invalid_credentials")
		h.record(r, audit.EventLoginFailed, audit.StatusFailure, nil, req.Username, "incorrect email or password")
		httputil.WriteErrorCode(w, http.StatusBadRequest, "invalid_credentials", "Incorrect email or password")
		return
	case errors.Is(err, auth.ErrInactive):
		h.recordLogin("inactive")
		h.record(r, audit.EventLoginFailed, audit.StatusDenied, nil, req.Username, "inactive user")
		httputil.WriteErrorCode(w, http.StatusBadRequest, "inactive", "Inactive user")
		return
	case err != nil:
		h.recordLogin("error")
		logger.WithError(err).Error("login failed")
		httputil.WriteError(w, err)
		return
	}

	if err := h.users.UpdateLastLogin(ctx, user.ID, h.now()); err != nil {
		logger.WithError(err).WithField("user_id", user.ID).Warn("failed to record last login")
	}

	token, err := h.tokens.IssueAccessToken(user.ID)
	if err != nil {
		h.recordLogin("error")
		logger.WithError(err).Error("failed to issue access token")
		httputil.WriteInternalError(w)
		return
	}

	h.recordLogin("success")
	h.record(r, audit.EventLogin, audit.StatusSuccess, &user.ID, user.Email, "login succeeded")
	httputil.WriteJSON(w, http.StatusOK, TokenResponse{AccessToken: token, TokenType: "bearer"})
}

// RecoverPassword mails a password reset link to the account owner
func (h *AuthHandlers) RecoverPassword(w http.ResponseWriter, r *http.Request) {
	email, err := httputil.ParsePathString(r, "email")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	ctx := r.Context()
	user, err := h.users.GetByEmail(ctx, email)
	if errors.Is(err, users.ErrNotFound) {
		httputil.WriteNotFound(w, "The user with this username does not exist in the system.")
		return
	}
	if err != nil {
		h.internal(w, r, err, "password recovery lookup failed")
		return
	}

	token, err := h.tokens.IssuePasswordResetToken(user.Email)
	if err != nil {
		h.internal(w, r, err, "failed to issue password reset token")
		return
	}

	validHours := int(h.tokens.TTL(auth.PurposePasswordReset) / time.Hour)
	if validHours < 1 {
		validHours = 1
	}
	link := h.publicURL + "/auth/reset-password?token=" + url.QueryEscape(token)
	msg := mail.PasswordReset(h.from, user.Email, user.Username, link, validHours)
	if err := h.mailer.Send(ctx, msg); err != nil {
		observability.FromContext(ctx, h.logger).WithError(err).Error("failed to send password recovery email")
		httputil.WriteServiceUnavailable(w, "failed to send password recovery email")
		return
	}

	h.record(r, audit.EventPasswordRecovery, audit.StatusSuccess, &user.ID, user.Email, "password recovery email sent")
	httputil.WriteMessage(w, "Password recovery email sent")
}

// ResetPassword sets a new password using a mailed reset token
func (h *AuthHandlers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	email, err := h.tokens.VerifyPasswordResetToken(req.Token)
	if err != nil {
		h.record(r, audit.EventPasswordReset, audit.StatusDenied, nil, "", "invalid reset token")
		httputil.WriteErrorCode(w, http.StatusBadRequest, "invalid_token", "Invalid token")
		return
	}

	ctx := r.Context()
	user, err := h.users.GetByEmail(ctx, email)
	if errors.Is(err, users.ErrNotFound) {
		httputil.WriteNotFound(w, "The user with this username does not exist in the system.")
		return
	}
	if err != nil {
		h.internal(w, r, err, "password reset lookup failed")
		return
	}
	if !user.IsActive {
		httputil.WriteErrorCode(w, http.StatusBadRequest, "inactive", "Inactive user")
		return
	}

	if err := h.users.SetPassword(ctx, user.ID, req.NewPassword); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.record(r, audit.EventPasswordReset, audit.StatusSuccess, &user.ID, user.Email, "password reset")
	httputil.WriteMessage(w, "Password updated successfully")
}

// RegisterRequest is a self registration. Form and JSON bodies are accepted.
type RegisterRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

// Register creates an unconfirmed account and mails the confirmation link
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeBody(w, r, &req, func(form url.Values) {
		req.Username = form.Get("username")
		req.Email = form.Get("email")
		req.Password = form.Get("password")
		req.PasswordConfirm = form.Get("password_confirm")
	}) {
		return
	}
	if req.Password != req.PasswordConfirm {
		httputil.WriteValidationError(w, "password: passwords do not match")
		return
	}

	ctx := r.Context()
	user, err := h.users.Create(ctx, users.UserCreate{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	// The account exists either way; a lost mail can be requested again
	if err := h.sendConfirmation(r, user); err != nil {
		observability.FromContext(ctx, h.logger).WithError(err).
			WithField("user_id", user.ID).Warn("failed to send account confirmation email")
	}

	h.record(r, audit.EventRegister, audit.StatusSuccess, &user.ID, user.Email, "account registered")
	httputil.WriteCreated(w, user)
}

// ConfirmAccount marks the account in a mailed confirmation link confirmed
func (h *AuthHandlers) ConfirmAccount(w http.ResponseWriter, r *http.Request) {
	id, email, err := h.tokens.VerifyAccountConfirmToken(r.URL.Query().Get("token"))
	if err != nil {
		h.record(r, audit.EventAccountConfirm, audit.StatusDenied, nil, "", "invalid confirmation token")
		httputil.WriteErrorCode(w, http.StatusForbidden, "invalid_link", "Invalid link")
		return
	}

	user, err := h.users.Confirm(r.Context(), id, email)
	if errors.Is(err, users.ErrNotFound) {
		// The account was removed or its email changed since the link was sent
		h.record(r, audit.EventAccountConfirm, audit.StatusDenied, &id, email, "stale confirmation link")
		httputil.WriteErrorCode(w, http.StatusForbidden, "invalid_link", "Invalid link")
		return
	}
	if err != nil {
		h.internal(w, r, err, "account confirmation failed")
		return
	}
	h.record(r, audit.EventAccountConfirm, audit.StatusSuccess, &user.ID, user.Email, "account confirmed")
	httputil.WriteSuccess(w, user)
}

// RequestAccountConfirm mails a fresh confirmation link to the caller
func (h *AuthHandlers) RequestAccountConfirm(w http.ResponseWriter, r *http.Request) {
	user := middleware.CurrentUser(r.Context())
	if user.IsConfirmed {
		httputil.WriteErrorCode(w, http.StatusBadRequest, "already_confirmed", "User already confirmed")
		return
	}

	if err := h.sendConfirmation(r, user); err != nil {
		observability.FromContext(r.Context(), h.logger).WithError(err).Error("failed to send account confirmation email")
		httputil.WriteServiceUnavailable(w, "failed to send account confirmation email")
		return
	}
	httputil.WriteMessage(w, "Account confirmation email sent")
}

// Logout returns the caller. Access tokens are stateless, so the client
// discards its own copy.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	user := middleware.CurrentUser(r.Context())
	h.record(r, audit.EventLogout, audit.StatusSuccess, &user.ID, user.Email, "logout")
	httputil.WriteSuccess(w, user)
}

func (h *AuthHandlers) sendConfirmation(r *http.Request, user *auth.User) error {
	token, err := h.tokens.IssueAccountConfirmToken(user.ID, user.Email)
	if err != nil {
		return err
	}
	link := h.publicURL + "/api/auth/register/account-confirm?token=" + url.QueryEscape(token)
	return h.mailer.Send(r.Context(), mail.AccountConfirm(h.from, user.Email, user.Username, link))
}

func (h *AuthHandlers) recordLogin(status string) {
	if h.metrics != nil {
		h.metrics.LoginAttemptsTotal.WithLabelValues(status).Inc()
	}
}

func (h *AuthHandlers) record(r *http.Request, eventType audit.EventType, status audit.Status, userID *int64, email, msg string) {
	e := audit.NewEvent(r, eventType, status)
	e.UserID = userID
	e.Email = email
	e.Message = msg
	e.ResourceType = "user"
	if userID != nil {
		e.ResourceID = strconv.FormatInt(*userID, 10)
	}
	if err := h.audit.Log(r.Context(), e); err != nil {
		observability.FromContext(r.Context(), h.logger).WithError(err).Warn("failed to record audit event")
	}
}

func (h *AuthHandlers) internal(w http.ResponseWriter, r *http.Request, err error, msg string) {
	observability.FromContext(r.Context(), h.logger).WithError(err).Error(msg)
	httputil.WriteError(w, err)
}

func (h *AuthHandlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, users.ErrNotFound):
		httputil.WriteNotFound(w, "The user with this username does not exist in the system.")
	case errors.Is(err, users.ErrDuplicate):
		httputil.WriteBadRequest(w, users.ErrDuplicate.Error())
	default:
		if auth.StatusCode(err) == http.StatusInternalServerError {
			observability.FromContext(r.Context(), h.logger).WithError(err).Error("auth request failed")
		}
		httputil.WriteError(w, err)
	}
}

// decodeBody decodes a JSON body into dest, or hands a form body to fromForm
func decodeBody(w http.ResponseWriter, r *http.Request, dest interface{}, fromForm func(url.Values)) bool {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseMultipartForm(32 << 10); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			httputil.WriteBadRequest(w, "invalid form body")
			return false
		}
		fromForm(r.PostForm)
		return true
	default:
		return httputil.ParseJSONOrError(w, r, dest)
	}
}
