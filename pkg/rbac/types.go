package rbac

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/platinummonkey/adminhub/pkg/auth"
)

var (
	// ErrNotFound is returned for unknown groups, roles and memberships
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a group name or a role name or key is taken
	ErrDuplicate = errors.New("already exists")
)

// MenuSource supplies the vocabulary of permission keys attached to live
// menus. Implemented by menu.Store.
type MenuSource interface {
	PermissionKeys(ctx context.Context) (auth.PermissionSet, error)
}

// Group is a permission group with its member count
type Group struct {
	auth.Group
	UserCount int `json:"user_count"`
}

// GroupCreate is the payload for a new group
type GroupCreate struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

// Validate trims and checks the fields
func (g *GroupCreate) Validate() error {
	g.Name = strings.TrimSpace(g.Name)
	if g.Name == "" {
		return &auth.ValidationError{Field: "name", Message: "must not be empty"}
	}
	if len(g.Name) > 100 {
		return &auth.ValidationError{Field: "name", Message: "must be at most 100 characters"}
	}
	return nil
}

// GroupUpdate is a partial group update. Permissions are changed through
// SetPermissions.
type GroupUpdate struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// Apply copies the set fields onto g
func (u GroupUpdate) Apply(g *Group) error {
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return &auth.ValidationError{Field: "name", Message: "must not be empty"}
		}
		g.Name = name
	}
	if u.Description != nil {
		g.Description = *u.Description
	}
	return nil
}

// Member is a user as listed under a group or role
type Member struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	IsActive bool   `json:"is_active"`
}

// Role groups menus for assignment to users
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Key         string    `json:"key"`
	Description string    `json:"description"`
	Active      bool      `json:"active"`
	Sort        int       `json:"sort"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RoleCreate is the payload for a new role
type RoleCreate struct {
	Name        string `json:"name"`
	Key         string `json:"key"`
	Description string `json:"description"`
	Active      *bool  `json:"active"`
	Sort        int    `json:"sort"`
}

// Validate trims and checks the fields
func (r *RoleCreate) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Key = strings.TrimSpace(r.Key)
	if r.Name == "" {
		return &auth.ValidationError{Field: "name", Message: "must not be empty"}
	}
	if r.Key == "" {
		return &auth.ValidationError{Field: "key", Message: "must not be empty"}
	}
	if len(r.Name) > 100 || len(r.Key) > 100 {
		return &auth.ValidationError{Message: "name and key must be at most 100 characters"}
	}
	return nil
}

// RoleUpdate is a partial role update
type RoleUpdate struct {
	Name        *string `json:"name"`
	Key         *string `json:"key"`
	Description *string `json:"description"`
	Active      *bool   `json:"active"`
	Sort        *int    `json:"sort"`
}

// Apply copies the set fields onto r
func (u RoleUpdate) Apply(r *Role) error {
	if u.Name != nil {
		if r.Name = strings.TrimSpace(*u.Name); r.Name == "" {
			return &auth.ValidationError{Field: "name", Message: "must not be empty"}
		}
	}
	if u.Key != nil {
		if r.Key = strings.TrimSpace(*u.Key); r.Key == "" {
			return &auth.ValidationError{Field: "key", Message: "must not be empty"}
		}
	}
	if u.Description != nil {
		r.Description = *u.Description
	}
	if u.Active != nil {
		r.Active = *u.Active
	}
	if u.Sort != nil {
		r.Sort = *u.Sort
	}
	return nil
}

// GroupList is one page of groups
type GroupList struct {
	Total int      `json:"total"`
	Items []*Group `json:"items"`
}

// RoleList is one page of roles
type RoleList struct {
	Total int     `json:"total"`
	Items []*Role `json:"items"`
}

// MenuIDs is the payload of a role menu grant
type MenuIDs struct {
	MenuIDs []int64 `json:"menu_ids"`
}

// UserIDs is the payload of a membership or assignment change
type UserIDs struct {
	UserIDs []int64 `json:"user_ids"`
}
