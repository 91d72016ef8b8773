package api

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/adminhub/pkg/audit"
	"github.com/platinummonkey/adminhub/pkg/users"
)

func trailOf(t *testing.T, env *testEnv, types ...audit.EventType) []*audit.Event {
	t.Helper()
	list, err := env.trail.Search(context.Background(), audit.Filter{Types: types, Limit: 100})
	require.NoError(t, err)
	return list.Items
}

func TestAudit_LoginOutcomes(t *testing.T) {
	env := setupServer(t)

	env.postForm(t, "/api/auth/login/access-token", url.Values{"username": {"root@admin.com"}, "password": {"wrong"}})
	rec := env.postForm(t, "/api/auth/login/access-token", url.Values{"username": {"root@admin.com"}, "password": {"rootpass"}})
	require.Equal(t, http.StatusOK, rec.Code)

	failed := trailOf(t, env, audit.EventLoginFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, audit.StatusFailure, failed[0].Status)
	assert.Equal(t, "root@admin.com", failed[0].Email)
	assert.Nil(t, failed[0].UserID)

	ok := trailOf(t, env, audit.EventLogin)
	require.Len(t, ok, 1)
	require.NotNil(t, ok[0].UserID)
	assert.Equal(t, env.root.ID, *ok[0].UserID)
	assert.NotEmpty(t, ok[0].RequestID)
}

func TestAudit_MutationsCarryRouteAndActor(t *testing.T) {
	env := setupServer(t)

	rec := env.do(t, http.MethodPost, "/api/roles", env.root, map[string]interface{}{"name": "Editor", "key": "editor"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	env.do(t, http.MethodGet, "/api/roles", env.root, nil)

	requests := trailOf(t, env, audit.EventRequest)
	require.Len(t, requests, 1, "reads are not recorded")
	e := requests[0]
	assert.Equal(t, "/api/roles", e.Route)
	assert.Equal(t, http.MethodPost, e.Method)
	assert.Equal(t, http.StatusCreated, e.StatusCode)
	assert.Equal(t, audit.StatusSuccess, e.Status)
	require.NotNil(t, e.UserID)
	assert.Equal(t, env.root.ID, *e.UserID)
}

func TestAudit_TrailIsSuperuserOnly(t *testing.T) {
	env := setupServer(t)
	alice, err := env.users.Create(context.Background(), users.UserCreate{Email: "alice@example.com", Password: "secret123"})
	require.NoError(t, err)

	env.do(t, http.MethodDelete, "/api/auth/logout", alice, nil)

	rec := env.do(t, http.MethodGet, "/api/audit/events?event_type=auth.logout", env.root, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var list audit.List
	decodeData(t, rec, &list)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, alice.ID, *list.Items[0].UserID)

	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/api/audit/events", alice, nil).Code)
}
