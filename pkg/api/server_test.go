package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"golang.org/x/crypto/bcrypt"

	"github.com/platinummonkey/adminhub/pkg/audit"
	"github.com/platinummonkey/adminhub/pkg/auth"
	"github.com/platinummonkey/adminhub/pkg/cache"
	"github.com/platinummonkey/adminhub/pkg/mail"
	"github.com/platinummonkey/adminhub/pkg/menu"
	"github.com/platinummonkey/adminhub/pkg/observability"
	"github.com/platinummonkey/adminhub/pkg/rbac"
	"github.com/platinummonkey/adminhub/pkg/storage/storagetest"
	"github.com/platinummonkey/adminhub/pkg/users"
)

func TestMain(m *testing.M) {
	auth.PasswordCost = bcrypt.MinCost
	os.Exit(m.Run())
}

type testEnv struct {
	server  *Server
	users   *users.Store
	menus   *menu.Store
	rbac    *rbac.Store
	tokens  *auth.TokenIssuer
	mailer  *mail.RecordingMailer
	metrics *observability.Metrics
	trail   *audit.DBStore
	root    *auth.User
}

func setupServer(t *testing.T, opts ...func(*Config)) *testEnv {
	t.Helper()
	db := storagetest.NewDB(t)
	c := cache.NewMemoryCache(100)
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	accounts := users.NewStore(db, c, nil)
	menus := menu.NewStore(menu.Config{DB: db, Cache: c, Metrics: metrics})
	groups := rbac.NewStore(rbac.Config{DB: db, Cache: c, Menus: menus})

	tokens, err := auth.NewTokenIssuer(auth.TokenConfig{Secret: strings.Repeat("k", 32)})
	require.NoError(t, err)
	resolver := auth.NewResolver(auth.ResolverConfig{Tokens: tokens, Users: accounts, Cache: c, Metrics: metrics})
	mailer := &mail.RecordingMailer{}
	trail, err := audit.NewDBStore(db)
	require.NoError(t, err)

	cfg := Config{
		Users:       accounts,
		Menus:       menus,
		RBAC:        groups,
		Resolver:    resolver,
		Mailer:      mailer,
		Metrics:     metrics,
		Audit:       trail,
		AuditStore:  trail,
		PublicURL:   "https://admin.example.com",
		EmailsFrom:  "noreply@example.com",
		CORSOrigins: []string{"https://admin.example.com"},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	root, err := accounts.EnsureSuperuser(context.Background(), "root@admin.com", "rootpass")
	require.NoError(t, err)

	return &testEnv{
		server:  NewServer(cfg),
		users:   accounts,
		menus:   menus,
		rbac:    groups,
		tokens:  tokens,
		mailer:  mailer,
		metrics: metrics,
		trail:   trail,
		root:    root,
	}
}

func (e *testEnv) request(t *testing.T, method, path string, as *auth.User, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		token, err := e.tokens.IssueAccessToken(as.ID)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func (e *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) do(t *testing.T, method, path string, as *auth.User, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return e.serve(e.request(t, method, path, as, body))
}

func (e *testEnv) postForm(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.serve(req)
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	var env struct {
		Code int             `json:"code"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, 0, env.Code)
	require.NoError(t, json.Unmarshal(env.Data, dest))
}

func decodeMsg(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Msg string `json:"msg"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Msg
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) (message, code string) {
	t.Helper()
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error, body.Code
}

func TestServer_UnknownRouteIsJSON(t *testing.T) {
	env := setupServer(t)

	rec := env.do(t, http.MethodGet, "/api/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	_, code := decodeError(t, rec)
	assert.Equal(t, "not_found", code)

	rec = env.do(t, http.MethodPatch, "/api/users/me", env.root, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	_, code = decodeError(t, rec)
	assert.Equal(t, "method_not_allowed", code)

	rec = env.do(t, http.MethodGet, "/nowhere", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_RequestIDAndCORS(t *testing.T) {
	env := setupServer(t)

	req := env.request(t, http.MethodGet, "/api/users/me", env.root, nil)
	req.Header.Set("X-Request-ID", "req-42")
	req.Header.Set("Origin", "https://admin.example.com")
	rec := env.serve(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "https://admin.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	preflight := httptest.NewRequest(http.MethodOptions, "/api/menus", nil)
	preflight.Header.Set("Origin", "https://evil.example.com")
	preflight.Header.Set("Access-Control-Request-Method", "POST")
	rec = env.serve(preflight)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_RejectsOversizedBodies(t *testing.T) {
	env := setupServer(t, func(c *Config) { c.MaxBodyBytes = 64 })

	rec := env.do(t, http.MethodPost, "/api/menus", env.root, map[string]string{
		"name": strings.Repeat("x", 200),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_MetricsUseRouteTemplates(t *testing.T) {
	env := setupServer(t)

	for _, path := range []string{"/api/users/1", "/api/users/2"} {
		env.do(t, http.MethodGet, path, env.root, nil)
	}

	got := testutil.ToFloat64(env.metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/users/{id:[0-9]+}", "200"))
	assert.Equal(t, float64(1), got)
	got = testutil.ToFloat64(env.metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/users/{id:[0-9]+}", "404"))
	assert.Equal(t, float64(1), got)
}

func TestServer_SpansNamedAfterRoutes(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	env := setupServer(t)
	rec := env.do(t, http.MethodGet, "/api/menus/7", env.root, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var found bool
	for _, span := range recorder.Ended() {
		if span.Name() == "GET /api/menus/{id:[0-9]+}" {
			found = true
		}
	}
	assert.True(t, found, "expected a server span named after the route template")
}

// A role granting a button menu reaches the caller's permission list
func TestServer_RoleGrantsFlowIntoProfile(t *testing.T) {
	env := setupServer(t)
	ctx := context.Background()

	alice, err := env.users.Create(ctx, users.UserCreate{Email: "alice@example.com", Password: "secret123"})
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/api/menus", env.root, map[string]interface{}{
		"name": "Add menu", "type": "BUTTON", "permission_key": "sys:menu:add",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var menuID int64
	decodeData(t, rec, &menuID)

	rec = env.do(t, http.MethodPost, "/api/roles", env.root, map[string]interface{}{"name": "Editor", "key": "editor"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var role rbac.Role
	decodeData(t, rec, &role)

	rec = env.do(t, http.MethodPut, "/api/roles/"+itoa(role.ID)+"/menus", env.root, rbac.MenuIDs{MenuIDs: []int64{menuID}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = env.do(t, http.MethodPost, "/api/roles/"+itoa(role.ID)+"/users", env.root, rbac.UserIDs{UserIDs: []int64{alice.ID}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/users/me", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me users.MeOut
	decodeData(t, rec, &me)
	assert.Equal(t, []string{"editor"}, me.Roles)
	assert.Contains(t, me.Permissions, "sys:menu:add")

	// Menu writes stay superuser-only whatever the roles grant
	rec = env.do(t, http.MethodPost, "/api/menus", alice, map[string]interface{}{"name": "Other"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestServer_TokenForDeactivatedUserRejected(t *testing.T) {
	env := setupServer(t)
	ctx := context.Background()

	bob, err := env.users.Create(ctx, users.UserCreate{Email: "bob@example.com", Password: "secret123"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/users/me", bob, nil).Code)

	inactive := false
	rec := env.do(t, http.MethodPut, "/api/users/"+itoa(bob.ID), env.root, users.UserUpdate{IsActive: &inactive})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The cached snapshot was dropped by the update
	rec = env.do(t, http.MethodGet, "/api/users/me", bob, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	_, code := decodeError(t, rec)
	assert.Equal(t, "inactive", code)
}

func TestServer_DefaultsToLogMailer(t *testing.T) {
	env := setupServer(t, func(c *Config) { c.Mailer = nil; c.Logger = nil })

	rec := env.do(t, http.MethodPost, "/api/auth/login/password-recovery/root@admin.com", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, env.mailer.Sent())
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
