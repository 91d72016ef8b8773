package auth

import (
	"sort"
	"strings"
	"time"
)

// User is an account together with the groups it belongs to. The group list
// is always loaded with the user so permission checks never touch the store.
type User struct {
	ID           int64      `json:"id"`
	HashedID     string     `json:"hashed_id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	FirstName    string     `json:"first_name,omitempty"`
	LastName     string     `json:"last_name,omitempty"`
	NickName     string     `json:"nick_name,omitempty"`
	Avatar       string     `json:"avatar,omitempty"`
	PasswordHash string     `json:"-"` // Never serialized, never cached
	IsActive     bool       `json:"is_active"`
	IsSuperuser  bool       `json:"is_superuser"`
	IsConfirmed  bool       `json:"is_confirmed"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Groups       []Group    `json:"groups"`
}

// FullName returns "first last", falling back to the username
func (u *User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

// Group is a named set of permission keys
type Group struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	ParentID    *int64    `json:"parent_id,omitempty"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PermissionSet is a set of permission keys
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from keys
func NewPermissionSet(keys ...string) PermissionSet {
	s := make(PermissionSet, len(keys))
	for _, k := range keys {
		s.Add(k)
	}
	return s
}

// Add inserts a key
func (s PermissionSet) Add(key string) {
	s[key] = struct{}{}
}

// Has reports whether key is present
func (s PermissionSet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Sorted returns the keys in lexical order
func (s PermissionSet) Sorted() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
