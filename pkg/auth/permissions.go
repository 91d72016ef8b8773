package auth

import (
	"fmt"
	"sort"
	"strings"
)

// EffectivePermissions is the union of the permission keys of the user's
// already-loaded groups. It performs no I/O.
func EffectivePermissions(u *User) PermissionSet {
	set := PermissionSet{}
	if u == nil {
		return set
	}
	for _, g := range u.Groups {
		for _, key := range g.Permissions {
			set.Add(key)
		}
	}
	return set
}

// HasPermission reports whether u holds key. Superusers hold every key.
func HasPermission(u *User, key string) bool {
	if u == nil {
		return false
	}
	if u.IsSuperuser {
		return true
	}
	return EffectivePermissions(u).Has(key)
}

// Authorize succeeds only when u holds every required key
func Authorize(u *User, required ...string) error {
	if u == nil {
		return ErrForbidden
	}
	if u.IsSuperuser || len(required) == 0 {
		return nil
	}

	granted := EffectivePermissions(u)
	var missing []string
	for _, key := range required {
		if !granted.Has(key) {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return newError(KindForbidden, "missing permissions: "+strings.Join(missing, ", "), nil)
	}
	return nil
}

// ValidatePermissionKeys checks keys against the vocabulary of permission
// keys in use and returns them trimmed and deduplicated in input order.
func ValidatePermissionKeys(keys []string, vocabulary PermissionSet) ([]string, error) {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	var unknown []string

	for _, raw := range keys {
		key := strings.TrimSpace(raw)
		if key == "" {
			return nil, &ValidationError{Field: "permissions", Message: "permission key must not be empty"}
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if !vocabulary.Has(key) {
			unknown = append(unknown, key)
			continue
		}
		out = append(out, key)
	}

	if len(unknown) > 0 {
		return nil, &ValidationError{
			Field:   "permissions",
			Message: fmt.Sprintf("unknown permission keys: %s", strings.Join(unknown, ", ")),
		}
	}
	return out, nil
}
