package menu

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/adminhub/pkg/auth"
)

// Type is the kind of a menu entry
type Type string

const (
	TypeCatalog      Type = "CATALOG"
	TypeMenu         Type = "MENU"
	TypeButton       Type = "BUTTON"
	TypeExternalLink Type = "EXTERNAL_LINK"
)

// Valid reports whether t is a known type
func (t Type) Valid() bool {
	switch t {
	case TypeCatalog, TypeMenu, TypeButton, TypeExternalLink:
		return true
	}
	return false
}

var (
	// ErrNotFound is returned for unknown or deleted menus
	ErrNotFound = errors.New("menu not found")

	// ErrDuplicate is returned when the name is taken
	ErrDuplicate = errors.New("a menu with this name already exists")
)

// CycleError rejects a reparent that would make a menu its own ancestor
type CycleError struct {
	MenuID   int64
	ParentID int64
}

func (e *CycleError) Error() string {
	if e.MenuID == e.ParentID {
		return fmt.Sprintf("menu %d cannot be its own parent", e.MenuID)
	}
	return fmt.Sprintf("menu %d cannot move under its descendant %d", e.MenuID, e.ParentID)
}

// Menu is one row of the hierarchy
type Menu struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	ParentID      *int64    `json:"parent_id"`
	Type          Type      `json:"type"`
	Path          string    `json:"path"`
	Icon          string    `json:"icon"`
	Redirect      string    `json:"redirect"`
	Component     string    `json:"component"`
	PermissionKey string    `json:"permission_key"`
	ExternalLink  string    `json:"external_link"`
	Active        bool      `json:"active"`
	Sort          *int      `json:"sort"`
	IsDeleted     bool      `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Node is a menu with its children in the full tree
type Node struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	ParentID      *int64  `json:"parent_id"`
	Children      []*Node `json:"children"`
	Type          Type    `json:"type"`
	Path          string  `json:"path"`
	Icon          string  `json:"icon"`
	Redirect      string  `json:"redirect"`
	Component     string  `json:"component"`
	PermissionKey string  `json:"permission_key"`
	ExternalLink  string  `json:"external_link"`
	Active        bool    `json:"active"`
	Sort          *int    `json:"sort"`
}

// CatalogNode is the selector projection used by menu editors
type CatalogNode struct {
	Value    int64          `json:"value"`
	Label    string         `json:"label"`
	Children []*CatalogNode `json:"children"`
}

// RouteMeta carries display hints for a route
type RouteMeta struct {
	Title     string `json:"title"`
	Icon      string `json:"icon,omitempty"`
	Hidden    bool   `json:"hidden"`
	KeepAlive bool   `json:"keepAlive"`
}

// Route is a front-end router entry
type Route struct {
	Path      string    `json:"path"`
	Name      string    `json:"name,omitempty"`
	Component string    `json:"component,omitempty"`
	Redirect  string    `json:"redirect,omitempty"`
	Meta      RouteMeta `json:"meta"`
	Children  []*Route  `json:"children"`
}

// MenuCreate is the input for a new menu
type MenuCreate struct {
	Name          string `json:"name" yaml:"name"`
	ParentID      *int64 `json:"parent_id" yaml:"-"`
	Type          Type   `json:"type" yaml:"type"`
	Path          string `json:"path" yaml:"path"`
	Icon          string `json:"icon" yaml:"icon"`
	Redirect      string `json:"redirect" yaml:"redirect"`
	Component     string `json:"component" yaml:"component"`
	PermissionKey string `json:"permission_key" yaml:"permission_key"`
	ExternalLink  string `json:"external_link" yaml:"external_link"`
	Active        *bool  `json:"active" yaml:"active"`
	Sort          *int   `json:"sort" yaml:"sort"`
}

// Validate normalizes and checks the input
func (c *MenuCreate) Validate() error {
	c.Name = strings.TrimSpace(c.Name)
	c.PermissionKey = strings.TrimSpace(c.PermissionKey)
	if c.Type == "" {
		c.Type = TypeMenu
	}
	if c.Name == "" {
		return &auth.ValidationError{Field: "name", Message: "is required"}
	}
	if len(c.Name) > 100 {
		return &auth.ValidationError{Field: "name", Message: "must be at most 100 characters"}
	}
	if !c.Type.Valid() {
		return &auth.ValidationError{Field: "type", Message: fmt.Sprintf("unknown menu type %q", c.Type)}
	}
	return nil
}

// OptionalID distinguishes an absent field from an explicit null
type OptionalID struct {
	Set   bool
	Value *int64
}

func (o *OptionalID) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var id int64
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	o.Value = &id
	return nil
}

// SetID returns an OptionalID holding id
func SetID(id int64) OptionalID {
	return OptionalID{Set: true, Value: &id}
}

// MenuUpdate is a partial update. ParentID set to null moves the menu to the
// top level.
type MenuUpdate struct {
	Name          *string    `json:"name"`
	ParentID      OptionalID `json:"parent_id"`
	Type          *Type      `json:"type"`
	Path          *string    `json:"path"`
	Icon          *string    `json:"icon"`
	Redirect      *string    `json:"redirect"`
	Component     *string    `json:"component"`
	PermissionKey *string    `json:"permission_key"`
	ExternalLink  *string    `json:"external_link"`
	Active        *bool      `json:"active"`
	Sort          *int       `json:"sort"`
}

// Apply copies set fields onto m and validates the result. The parent is
// handled by the store.
func (u *MenuUpdate) Apply(m *Menu) error {
	if u.Name != nil {
		m.Name = strings.TrimSpace(*u.Name)
		if m.Name == "" {
			return &auth.ValidationError{Field: "name", Message: "is required"}
		}
	}
	if u.Type != nil {
		if !u.Type.Valid() {
			return &auth.ValidationError{Field: "type", Message: fmt.Sprintf("unknown menu type %q", *u.Type)}
		}
		m.Type = *u.Type
	}
	setString(&m.Path, u.Path)
	setString(&m.Icon, u.Icon)
	setString(&m.Redirect, u.Redirect)
	setString(&m.Component, u.Component)
	setString(&m.PermissionKey, u.PermissionKey)
	setString(&m.ExternalLink, u.ExternalLink)
	if u.Active != nil {
		m.Active = *u.Active
	}
	if u.Sort != nil {
		m.Sort = u.Sort
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}
