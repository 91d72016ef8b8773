package rbac

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/adminhub/pkg/storage"
)

const roleColumns = `id, name, role_key, description, active, sort, created_at, updated_at`

func scanRole(row rowScanner) (*Role, error) {
	var r Role
	err := row.Scan(&r.ID, &r.Name, &r.Key, &r.Description, &r.Active, &r.Sort, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRole inserts a role
func (s *Store) CreateRole(ctx context.Context, in RoleCreate) (*Role, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	r := &Role{
		Name:        in.Name,
		Key:         in.Key,
		Description: in.Description,
		Active:      in.Active == nil || *in.Active,
		Sort:        in.Sort,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO roles (name, role_key, description, active, sort, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		r.Name, r.Key, r.Description, r.Active, r.Sort, now, now,
	).Scan(&r.ID)
	if storage.IsUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create role: %w", err)
	}
	return r, nil
}

// GetRole retrieves a role by id
func (s *Store) GetRole(ctx context.Context, id int64) (*Role, error) {
	r, err := scanRole(s.db.QueryRowContext(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return r, nil
}

// ListRoles returns a page of roles whose name or key contains keywords,
// ordered by sort then id
func (s *Store) ListRoles(ctx context.Context, keywords string, limit, offset int) (*RoleList, error) {
	where := "(LOWER(name) LIKE $1 OR LOWER(role_key) LIKE $1)"
	pattern := likePattern(keywords)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM roles WHERE `+where, pattern).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count roles: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE `+where+` ORDER BY sort, id LIMIT $2 OFFSET $3`,
		pattern, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	list := &RoleList{Total: total, Items: []*Role{}}
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		list.Items = append(list.Items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	return list, nil
}

// UpdateRole applies a partial update
func (s *Store) UpdateRole(ctx context.Context, id int64, u RoleUpdate) (*Role, error) {
	r, err := s.GetRole(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := u.Apply(r); err != nil {
		return nil, err
	}
	r.UpdatedAt = s.now().UTC()

	_, err = s.db.ExecContext(ctx,
		`UPDATE roles SET name = $1, role_key = $2, description = $3, active = $4, sort = $5, updated_at = $6
		 WHERE id = $7`,
		r.Name, r.Key, r.Description, r.Active, r.Sort, r.UpdatedAt, id)
	if storage.IsUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}
	return r, nil
}

// DeleteRoles removes roles with their grants and assignments. Unknown ids
// are ignored; returns the number of roles deleted.
func (s *Store) DeleteRoles(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	in := storage.Placeholders(1, len(ids))
	args := storage.Int64Args(ids)

	var deleted int64
	err := storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, table := range []string{"role_menus", "role_users"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE role_id IN ("+in+")", args...); err != nil {
				return fmt.Errorf("failed to delete %s: %w", table, err)
			}
		}
		result, err := tx.ExecContext(ctx, "DELETE FROM roles WHERE id IN ("+in+")", args...)
		if err != nil {
			return fmt.Errorf("failed to delete roles: %w", err)
		}
		deleted, _ = result.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(deleted), nil
}

// RoleMenuIDs returns the ids of live menus granted to a role
func (s *Store) RoleMenuIDs(ctx context.Context, roleID int64) ([]int64, error) {
	if _, err := s.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	return queryIDs(ctx, s.db,
		`SELECT rm.menu_id FROM role_menus rm JOIN menus m ON m.id = rm.menu_id
		 WHERE rm.role_id = $1 AND m.is_deleted = $2 ORDER BY rm.menu_id`, roleID, false)
}

// SetRoleMenus replaces the menus granted to a role in one transaction.
// Unknown and deleted menu ids are skipped. Returns the granted ids.
func (s *Store) SetRoleMenus(ctx context.Context, roleID int64, menuIDs []int64) ([]int64, error) {
	err := storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, "SELECT 1 FROM roles WHERE id = $1", roleID).Scan(&exists); err != nil {
			if err == sql.ErrNoRows {
				return ErrNotFound
			}
			return fmt.Errorf("failed to get role: %w", err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM role_menus WHERE role_id = $1", roleID); err != nil {
			return fmt.Errorf("failed to clear role menus: %w", err)
		}
		if len(menuIDs) == 0 {
			return nil
		}

		query := fmt.Sprintf(
			`INSERT INTO role_menus (role_id, menu_id)
			 SELECT $1, id FROM menus WHERE is_deleted = $2 AND id IN (%s)`,
			storage.Placeholders(3, len(menuIDs)))
		args := append([]interface{}{roleID, false}, storage.Int64Args(menuIDs)...)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to grant role menus: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.RoleMenuIDs(ctx, roleID)
}

// AssignUsers gives a role to existing users. Unknown user ids and existing
// assignments are skipped. Returns the number of assignments created.
func (s *Store) AssignUsers(ctx context.Context, roleID int64, userIDs []int64) (int, error) {
	if _, err := s.GetRole(ctx, roleID); err != nil {
		return 0, err
	}
	if len(userIDs) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf(
		`INSERT INTO role_users (role_id, user_id)
		 SELECT $1, id FROM users WHERE id IN (%s)
		 ON CONFLICT DO NOTHING`, storage.Placeholders(2, len(userIDs)))
	args := append([]interface{}{roleID}, storage.Int64Args(userIDs)...)
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to assign role: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// RevokeUser removes a role from a user
func (s *Store) RevokeUser(ctx context.Context, roleID, userID int64) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM role_users WHERE role_id = $1 AND user_id = $2", roleID, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke role: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RoleUsers lists the users holding a role
func (s *Store) RoleUsers(ctx context.Context, roleID int64) ([]*Member, error) {
	if _, err := s.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	return s.queryMembers(ctx,
		`SELECT u.id, u.username, u.email, u.is_active FROM users u
		 JOIN role_users ru ON ru.user_id = u.id
		 WHERE ru.role_id = $1 ORDER BY u.id`, roleID)
}

// RoleKeys returns the keys of the active roles held by a user
func (s *Store) RoleKeys(ctx context.Context, userID int64) ([]string, error) {
	return s.queryStrings(ctx,
		`SELECT r.role_key FROM roles r JOIN role_users ru ON ru.role_id = r.id
		 WHERE ru.user_id = $1 AND r.active = $2 ORDER BY r.role_key`, userID, true)
}

// RolePermissionKeys returns the distinct permission keys of live menus
// granted to a user through active roles
func (s *Store) RolePermissionKeys(ctx context.Context, userID int64) ([]string, error) {
	return s.queryStrings(ctx,
		`SELECT DISTINCT m.permission_key FROM menus m
		 JOIN role_menus rm ON rm.menu_id = m.id
		 JOIN role_users ru ON ru.role_id = rm.role_id
		 JOIN roles r ON r.id = ru.role_id
		 WHERE ru.user_id = $1 AND r.active = $2 AND m.is_deleted = $3 AND m.permission_key <> ''
		 ORDER BY m.permission_key`, userID, true, false)
}

func (s *Store) queryStrings(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
