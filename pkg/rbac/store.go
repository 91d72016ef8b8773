package rbac

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/adminhub/pkg/auth"
	"github.com/platinummonkey/adminhub/pkg/cache"
	"github.com/platinummonkey/adminhub/pkg/observability"
	"github.com/platinummonkey/adminhub/pkg/storage"
)

// Config wires a Store
type Config struct {
	DB     *sql.DB
	Cache  cache.Cache // optional; holds the user snapshots to invalidate
	Menus  MenuSource
	Logger logrus.FieldLogger
}

// Store persists groups, roles and their assignments
type Store struct {
	db     *sql.DB
	cache  cache.Cache
	menus  MenuSource
	logger logrus.FieldLogger
	now    func() time.Time
}

// NewStore creates an RBAC store
func NewStore(cfg Config) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Store{
		db:     cfg.DB,
		cache:  cfg.Cache,
		menus:  cfg.Menus,
		logger: logger,
		now:    time.Now,
	}
}

const groupColumns = `g.id, g.name, g.description, g.permissions, g.created_at, g.updated_at,
	(SELECT COUNT(*) FROM auth_user_groups ug WHERE ug.group_id = g.id)`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanGroup(row rowScanner) (*Group, error) {
	var g Group
	var permissions string
	if err := row.Scan(&g.ID, &g.Name, &g.Description, &permissions, &g.CreatedAt, &g.UpdatedAt, &g.UserCount); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(permissions), &g.Permissions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal permissions of group %d: %w", g.ID, err)
	}
	if g.Permissions == nil {
		g.Permissions = []string{}
	}
	return &g, nil
}

// likePattern builds a case-insensitive substring pattern
func likePattern(keywords string) string {
	return "%" + strings.ToLower(strings.TrimSpace(keywords)) + "%"
}

// CreateGroup inserts a group. Permissions are validated like SetPermissions.
func (s *Store) CreateGroup(ctx context.Context, in GroupCreate) (*Group, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	permissions, err := s.validatePermissions(ctx, in.Permissions)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(permissions)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal permissions: %w", err)
	}

	now := s.now().UTC()
	g := &Group{}
	g.Name = in.Name
	g.Description = in.Description
	g.Permissions = permissions
	g.CreatedAt = now
	g.UpdatedAt = now

	err = s.db.QueryRowContext(ctx,
		`INSERT INTO auth_groups (name, description, permissions, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		g.Name, g.Description, string(encoded), now, now,
	).Scan(&g.ID)
	if storage.IsUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}
	return g, nil
}

// GetGroup retrieves a group by id
func (s *Store) GetGroup(ctx context.Context, id int64) (*Group, error) {
	g, err := scanGroup(s.db.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM auth_groups g WHERE g.id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return g, nil
}

// ListGroups returns a page of groups whose name contains keywords
func (s *Store) ListGroups(ctx context.Context, keywords string, limit, offset int) (*GroupList, error) {
	where := "LOWER(g.name) LIKE $1"
	pattern := likePattern(keywords)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM auth_groups g WHERE `+where, pattern).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count groups: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+groupColumns+` FROM auth_groups g WHERE `+where+` ORDER BY g.id LIMIT $2 OFFSET $3`,
		pattern, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	list := &GroupList{Total: total, Items: []*Group{}}
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		list.Items = append(list.Items, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	return list, nil
}

// UpdateGroup renames or redescribes a group
func (s *Store) UpdateGroup(ctx context.Context, id int64, u GroupUpdate) (*Group, error) {
	g, err := s.GetGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := u.Apply(g); err != nil {
		return nil, err
	}
	g.UpdatedAt = s.now().UTC()

	_, err = s.db.ExecContext(ctx,
		`UPDATE auth_groups SET name = $1, description = $2, updated_at = $3 WHERE id = $4`,
		g.Name, g.Description, g.UpdatedAt, id)
	if storage.IsUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update group: %w", err)
	}

	members, err := s.memberIDs(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	s.invalidateUsers(ctx, members)
	return g, nil
}

// DeleteGroup removes a group and its memberships
func (s *Store) DeleteGroup(ctx context.Context, id int64) error {
	var members []int64
	err := storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		if members, err = s.memberIDs(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM auth_user_groups WHERE group_id = $1", id); err != nil {
			return fmt.Errorf("failed to delete memberships: %w", err)
		}
		result, err := tx.ExecContext(ctx, "DELETE FROM auth_groups WHERE id = $1", id)
		if err != nil {
			return fmt.Errorf("failed to delete group: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidateUsers(ctx, members)
	return nil
}

// SetPermissions replaces the permission keys of a group. Every key must be
// attached to a live menu.
func (s *Store) SetPermissions(ctx context.Context, groupID int64, keys []string) ([]string, error) {
	permissions, err := s.validatePermissions(ctx, keys)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(permissions)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal permissions: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE auth_groups SET permissions = $1, updated_at = $2 WHERE id = $3",
		string(encoded), s.now().UTC(), groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to set permissions: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}

	members, err := s.memberIDs(ctx, s.db, groupID)
	if err != nil {
		return nil, err
	}
	s.invalidateUsers(ctx, members)
	return permissions, nil
}

func (s *Store) validatePermissions(ctx context.Context, keys []string) ([]string, error) {
	if len(keys) == 0 {
		return []string{}, nil
	}
	if s.menus == nil {
		return nil, fmt.Errorf("no permission vocabulary configured")
	}
	vocabulary, err := s.menus.PermissionKeys(ctx)
	if err != nil {
		return nil, err
	}
	return auth.ValidatePermissionKeys(keys, vocabulary)
}

// AddMembers adds existing users to a group. Unknown user ids and existing
// memberships are skipped. Returns the number of memberships created.
func (s *Store) AddMembers(ctx context.Context, groupID int64, userIDs []int64) (int, error) {
	if _, err := s.GetGroup(ctx, groupID); err != nil {
		return 0, err
	}
	if len(userIDs) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf(
		`INSERT INTO auth_user_groups (user_id, group_id)
		 SELECT id, $1 FROM users WHERE id IN (%s)
		 ON CONFLICT DO NOTHING`, storage.Placeholders(2, len(userIDs)))
	args := append([]interface{}{groupID}, storage.Int64Args(userIDs)...)
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to add members: %w", err)
	}
	n, _ := result.RowsAffected()

	s.invalidateUsers(ctx, userIDs)
	return int(n), nil
}

// RemoveMember drops one membership
func (s *Store) RemoveMember(ctx context.Context, groupID, userID int64) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM auth_user_groups WHERE group_id = $1 AND user_id = $2", groupID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	s.invalidateUsers(ctx, []int64{userID})
	return nil
}

// Members lists the users of a group
func (s *Store) Members(ctx context.Context, groupID int64) ([]*Member, error) {
	if _, err := s.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	return s.queryMembers(ctx,
		`SELECT u.id, u.username, u.email, u.is_active FROM users u
		 JOIN auth_user_groups ug ON ug.user_id = u.id
		 WHERE ug.group_id = $1 ORDER BY u.id`, groupID)
}

func (s *Store) queryMembers(ctx context.Context, query string, args ...interface{}) ([]*Member, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members := []*Member{}
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.Username, &m.Email, &m.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, &m)
	}
	return members, rows.Err()
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func (s *Store) memberIDs(ctx context.Context, q queryer, groupID int64) ([]int64, error) {
	return queryIDs(ctx, q, "SELECT user_id FROM auth_user_groups WHERE group_id = $1", groupID)
}

func queryIDs(ctx context.Context, q queryer, query string, args ...interface{}) ([]int64, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load ids: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// invalidateUsers drops cached snapshots. Failures leave entries to expire
// with their TTL.
func (s *Store) invalidateUsers(ctx context.Context, ids []int64) {
	if s.cache == nil || len(ids) == 0 {
		return
	}
	if err := s.cache.Delete(ctx, cache.UserKeys(ids)...); err != nil {
		observability.FromContext(ctx, s.logger).WithError(err).WithField("users", len(ids)).
			Warn("failed to invalidate user snapshots")
	}
}
