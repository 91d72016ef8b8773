package rbac

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/platinummonkey/adminhub/pkg/auth"
	"github.com/platinummonkey/adminhub/pkg/cache"
	"github.com/platinummonkey/adminhub/pkg/menu"
	"github.com/platinummonkey/adminhub/pkg/storage/storagetest"
	"github.com/platinummonkey/adminhub/pkg/users"
)

func TestMain(m *testing.M) {
	auth.PasswordCost = bcrypt.MinCost
	os.Exit(m.Run())
}

type storeEnv struct {
	store    *Store
	db       *sql.DB
	cache    *cache.MemoryCache
	menus    *menu.Store
	accounts *users.Store
}

func setupStore(t *testing.T) *storeEnv {
	t.Helper()
	db := storagetest.NewDB(t)
	c := cache.NewMemoryCache(100)
	menus := menu.NewStore(menu.Config{DB: db})
	return &storeEnv{
		store:    NewStore(Config{DB: db, Cache: c, Menus: menus}),
		db:       db,
		cache:    c,
		menus:    menus,
		accounts: users.NewStore(db, c, nil),
	}
}

func (e *storeEnv) user(t *testing.T, name string) *auth.User {
	t.Helper()
	u, err := e.accounts.Create(context.Background(), users.UserCreate{
		Username: name,
		Email:    name + "@example.com",
		Password: "secret123",
	})
	require.NoError(t, err)
	return u
}

func (e *storeEnv) button(t *testing.T, name, key string) *menu.Menu {
	t.Helper()
	m, err := e.menus.Create(context.Background(), menu.MenuCreate{Name: name, Type: menu.TypeButton, PermissionKey: key})
	require.NoError(t, err)
	return m
}

func TestGroups_CRUD(t *testing.T) {
	env := setupStore(t)
	ctx := context.Background()
	env.button(t, "Add user", "sys:user:add")

	g, err := env.store.CreateGroup(ctx, GroupCreate{Name: " editors ", Permissions: []string{"sys:user:add", "sys:user:add"}})
	require.NoError(t, err)
	assert.Equal(t, "editors", g.Name)
	assert.Equal(t, []string{"sys:user:add"}, g.Permissions)

	_, err = env.store.CreateGroup(ctx, GroupCreate{Name: "editors"})
	assert.ErrorIs(t, err, ErrDuplicate)

	var verr *auth.ValidationError
	_, err = env.store.CreateGroup(ctx, GroupCreate{Name: "ghosts", Permissions: []string{"sys:nothing"}})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "sys:nothing")

	got, err := env.store.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"sys:user:add"}, got.Permissions)
	assert.Zero(t, got.UserCount)

	desc := "can add users"
	updated, err := env.store.UpdateGroup(ctx, g.ID, GroupUpdate{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "editors", updated.Name)
	assert.Equal(t, desc, updated.Description)

	require.NoError(t, env.store.DeleteGroup(ctx, g.ID))
	_, err = env.store.GetGroup(ctx, g.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, env.store.DeleteGroup(ctx, g.ID), ErrNotFound)
}

func TestGroups_List(t *testing.T) {
	env := setupStore(t)
	ctx := context.Background()
	for _, name := range []string{"Editors", "Auditors", "Readers", "Credit"} {
		_, err := env.store.CreateGroup(ctx, GroupCreate{Name: name})
		require.NoError(t, err)
	}

	list, err := env.store.ListGroups(ctx, "ED", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, list.Total)
	require.Len(t, list.Items, 2)
	assert.Equal(t, "Editors", list.Items[0].Name)
	assert.Equal(t, "Credit", list.Items[1].Name)

	list, err = env.store.ListGroups(ctx, "", 3, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, list.Total)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "Credit", list.Items[0].Name)
}

func TestGroups_Membership(t *testing.T) {
	env := setupStore(t)
	ctx := context.Background()
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	g, err := env.store.CreateGroup(ctx, GroupCreate{Name: "staff"})
	require.NoError(t, err)

	n, err := env.store.AddMembers(ctx, g.ID, []int64{alice.ID, bob.ID, 999})
	require.NoError(t, err)
	assert.Equal(t, 2, n, "unknown users are skipped")

	n, err = env.store.AddMembers(ctx, g.ID, []int64{alice.ID})
	require.NoError(t, err)
	assert.Zero(t, n, "existing memberships are skipped")

	members, err := env.store.Members(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "alice", members[0].Username)

	got, err := env.store.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.UserCount)

	require.NoError(t, env.store.RemoveMember(ctx, g.ID, bob.ID))
	assert.ErrorIs(t, env.store.RemoveMember(ctx, g.ID, bob.ID), ErrNotFound)

	_, err = env.store.AddMembers(ctx, 404, []int64{alice.ID})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = env.store.Members(ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)

	u, err := env.accounts.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, u.Groups, 1)
	assert.Equal(t, "staff", u.Groups[0].Name)
}

func TestGroups_ChangesInvalidateSnapshots(t *testing.T) {
	env := setupStore(t)
	ctx := context.Background()
	env.button(t, "Add user", "sys:user:add")
	env.button(t, "Delete user", "sys:user:delete")
	alice := env.user(t, "alice")
	resolver := auth.NewResolver(auth.ResolverConfig{Users: env.accounts, Cache: env.cache})

	g, err := env.store.CreateGroup(ctx, GroupCreate{Name: "staff", Permissions: []string{"sys:user:add"}})
	require.NoError(t, err)

	u, err := resolver.Load(ctx, alice.ID)
	require.NoError(t, err)
	assert.False(t, auth.HasPermission(u, "sys:user:add"))

	_, err = env.store.AddMembers(ctx, g.ID, []int64{alice.ID})
	require.NoError(t, err)
	u, err = resolver.Load(ctx, alice.ID)
	require.NoError(t, err)
	assert.True(t, auth.HasPermission(u, "sys:user:add"), "membership change is visible")

	_, err = env.store.SetPermissions(ctx, g.ID, []string{"sys:user:delete"})
	require.NoError(t, err)
	u, err = resolver.Load(ctx, alice.ID)
	require.NoError(t, err)
	assert.False(t, auth.HasPermission(u, "sys:user:add"))
	assert.True(t, auth.HasPermission(u, "sys:user:delete"), "permission change is visible")

	require.NoError(t, env.store.DeleteGroup(ctx, g.ID))
	u, err = resolver.Load(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, u.Groups, "deletion is visible")
}

func TestGroups_SetPermissions(t *testing.T) {
	env := setupStore(t)
	ctx := context.Background()
	b := env.button(t, "Add user", "sys:user:add")
	g, err := env.store.CreateGroup(ctx, GroupCreate{Name: "staff"})
	require.NoError(t, err)

	keys, err := env.store.SetPermissions(ctx, g.ID, []string{" sys:user:add "})
	require.NoError(t, err)
	assert.Equal(t, []string{"sys:user:add"}, keys)

	keys, err = env.store.SetPermissions(ctx, g.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = env.store.SetPermissions(ctx, 404, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	// A deleted menu's key leaves the vocabulary
	require.NoError(t, env.menus.Delete(ctx, b.ID))
	var verr *auth.ValidationError
	_, err = env.store.SetPermissions(ctx, g.ID, []string{"sys:user:add"})
	assert.ErrorAs(t, err, &verr)
}

func TestRoles_CRUD(t *testing.T) {
	env := setupStore(t)
	ctx := context.Background()

	r, err := env.store.CreateRole(ctx, RoleCreate{Name: "Editor", Key: "editor", Sort: 2})
	require.NoError(t, err)
	assert.True(t, r.Active)

	_, err = env.store.CreateRole(ctx, RoleCreate{Name: "Editor 2", Key: "editor"})
	assert.ErrorIs(t, err, ErrDuplicate)
	var verr *auth.ValidationError
	_, err = env.store.CreateRole(ctx, RoleCreate{Name: "No key"})
	assert.ErrorAs(t, err, &verr)

	inactive := false
	desc := "edits"
	updated, err := env.store.UpdateRole(ctx, r.ID, RoleUpdate{Active: &inactive, Description: &desc})
	require.NoError(t, err)
	assert.False(t, updated.Active)
	assert.Equal(t, "editor", updated.Key)

	got, err := env.store.GetRole(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "edits", got.Description)
	assert.Equal(t, 2, got.Sort)

	_, err = env.store.UpdateRole(ctx, 404, RoleUpdate{Active: &inactive})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRoles_ListAndBulkDelete(t *testing.T) {
	env := setupStore(t)
	ctx := context.Background()
	var ids []int64
	for i, spec := range []RoleCreate{
		{Name: "Admin", Key: "admin", Sort: 3},
		{Name: "Editor", Key: "editor", Sort: 1},
		{Name: "Viewer", Key: "view-only", Sort: 2},
	} {
		r, err := env.store.CreateRole(ctx, spec)
		require.NoError(t, err, i)
		ids = append(ids, r.ID)
	}

	list, err := env.store.ListRoles(ctx, "", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, list.Total)
	require.Len(t, list.Items, 3)
	assert.Equal(t, []string{"editor", "view-only", "admin"}, []string{list.Items[0].Key, list.Items[1].Key, list.Items[2].Key})

	list, err = env.store.ListRoles(ctx, "VIEW", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, list.Total)

	n, err := env.store.DeleteRoles(ctx, []int64{ids[0], ids[1], 999})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err = env.store.ListRoles(ctx, "", 10, 0)
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "Viewer", list.Items[0].Name)
}

func TestRoles_SetRoleMenusReplacesAll(t *testing.T) {
	env := setupStore(t)
	ctx := context.Background()
	a := env.button(t, "A", "a")
	b := env.button(t, "B", "b")
	c := env.button(t, "C", "c")
	require.NoError(t, env.menus.Delete(ctx, c.ID))
	r, err := env.store.CreateRole(ctx, RoleCreate{Name: "Editor", Key: "editor"})
	require.NoError(t, err)

	ids, err := env.store.SetRoleMenus(ctx, r.ID, []int64{a.ID, b.ID, c.ID, 999, a.ID})
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID, b.ID}, ids, "deleted and unknown menus are skipped")

	ids, err = env.store.SetRoleMenus(ctx, r.ID, []int64{b.ID})
	require.NoError(t, err)
	assert.Equal(t, []int64{b.ID}, ids)

	ids, err = env.store.RoleMenuIDs(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{b.ID}, ids)

	ids, err = env.store.SetRoleMenus(ctx, r.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = env.store.SetRoleMenus(ctx, 404, []int64{a.ID})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = env.store.RoleMenuIDs(ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRoles_AssignmentsAndPermissionKeys(t *testing.T) {
	env := setupStore(t)
	ctx := context.Background()
	alice := env.user(t, "alice")
	add := env.button(t, "Add", "sys:user:add")
	del := env.button(t, "Delete", "sys:user:delete")
	page, err := env.menus.Create(ctx, menu.MenuCreate{Name: "Users page"})
	require.NoError(t, err)

	editor, err := env.store.CreateRole(ctx, RoleCreate{Name: "Editor", Key: "editor"})
	require.NoError(t, err)
	off := false
	dormant, err := env.store.CreateRole(ctx, RoleCreate{Name: "Dormant", Key: "dormant", Active: &off})
	require.NoError(t, err)

	_, err = env.store.SetRoleMenus(ctx, editor.ID, []int64{add.ID, page.ID})
	require.NoError(t, err)
	_, err = env.store.SetRoleMenus(ctx, dormant.ID, []int64{del.ID})
	require.NoError(t, err)

	n, err := env.store.AssignUsers(ctx, editor.ID, []int64{alice.ID, 999})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = env.store.AssignUsers(ctx, dormant.ID, []int64{alice.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	keys, err := env.store.RolePermissionKeys(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"sys:user:add"}, keys, "inactive roles and key-less menus contribute nothing")

	roleKeys, err := env.store.RoleKeys(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"editor"}, roleKeys)

	holders, err := env.store.RoleUsers(ctx, editor.ID)
	require.NoError(t, err)
	require.Len(t, holders, 1)
	assert.Equal(t, alice.ID, holders[0].ID)

	require.NoError(t, env.store.RevokeUser(ctx, editor.ID, alice.ID))
	assert.ErrorIs(t, env.store.RevokeUser(ctx, editor.ID, alice.ID), ErrNotFound)
	keys, err = env.store.RolePermissionKeys(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestStore_ImplementsRoleSource(t *testing.T) {
	var _ users.RoleSource = (*Store)(nil)
	var _ MenuSource = (*menu.Store)(nil)
}
