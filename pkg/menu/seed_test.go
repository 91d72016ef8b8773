package menu

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `
menus:
  - name: System
    type: CATALOG
    path: /system
    icon: system
    sort: 1
    children:
      - name: Users
        path: user
        component: system/user/index
        children:
          - name: Add user
            type: BUTTON
            permission_key: "sys:user:add"
      - name: Roles
        path: role
        component: system/role/index
  - name: Docs
    type: EXTERNAL_LINK
    external_link: https://example.com/docs
`

func TestParseSeed(t *testing.T) {
	f, err := ParseSeed(strings.NewReader(seedYAML))
	require.NoError(t, err)
	require.Len(t, f.Menus, 2)
	assert.Equal(t, TypeCatalog, f.Menus[0].Type)
	require.NotNil(t, f.Menus[0].Sort)
	assert.Equal(t, 1, *f.Menus[0].Sort)
	require.Len(t, f.Menus[0].Children, 2)
	assert.Equal(t, "sys:user:add", f.Menus[0].Children[0].Children[0].PermissionKey)

	_, err = ParseSeed(strings.NewReader("menus:\n  - name: X\n    colour: red\n"))
	assert.Error(t, err, "unknown fields are rejected")

	f, err = ParseSeed(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, f.Menus)
}

func TestStore_SeedIsIdempotent(t *testing.T) {
	s, _, _ := setupStore(t)
	ctx := context.Background()
	f, err := ParseSeed(strings.NewReader(seedYAML))
	require.NoError(t, err)

	created, err := s.Seed(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, 5, created)

	created, err = s.Seed(ctx, f)
	require.NoError(t, err)
	assert.Zero(t, created)

	tree, err := s.FullTree(ctx, nil, "")
	require.NoError(t, err)
	require.Equal(t, []string{"System", "Docs"}, names(tree))
	assert.Equal(t, []string{"Users", "Roles"}, names(tree[0].Children))
	assert.Equal(t, []string{"Add user"}, names(tree[0].Children[0].Children))
}

func TestStore_SeedKeepsExistingEntries(t *testing.T) {
	s, _, _ := setupStore(t)
	ctx := context.Background()
	existing := mustCreate(t, s, MenuCreate{Name: "System", Type: TypeCatalog, Path: "/custom"})

	f, err := ParseSeed(strings.NewReader(seedYAML))
	require.NoError(t, err)
	created, err := s.Seed(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, 4, created)

	got, err := s.Get(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "/custom", got.Path)

	users, err := s.GetByName(ctx, "Users")
	require.NoError(t, err)
	require.NotNil(t, users.ParentID)
	assert.Equal(t, existing.ID, *users.ParentID)
}
