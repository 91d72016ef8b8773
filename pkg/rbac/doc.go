// Package rbac manages the two authorization structures of the admin API:
// groups, which carry permission keys directly, and roles, which grant menus
// and through them the permission keys attached to those menus.
//
// # Groups
//
// A group is a named, validated set of permission keys. Every key must be
// attached to at least one live menu at the time it is set, so a group never
// refers to a button that does not exist.
//
// Membership changes are single join-table statements. User snapshots embed
// their groups, so every membership or permission change deletes the cached
// user:<id> entry of each affected user:
//
//	added, err := store.AddMembers(ctx, groupID, []int64{2, 3})
//	err = store.SetPermissions(ctx, groupID, []string{"sys:user:add"})
//
// # Roles
//
// Roles have a unique key, an active flag and a sort order. Menus are granted
// with a replace-all write:
//
//	err := store.SetRoleMenus(ctx, roleID, []int64{1, 4, 7})
//
// Unknown or deleted menu ids are skipped. RolePermissionKeys reports the
// distinct permission keys a user reaches through active roles.
package rbac
