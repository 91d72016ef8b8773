package menu

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/adminhub/pkg/auth"
	"github.com/platinummonkey/adminhub/pkg/cache"
	"github.com/platinummonkey/adminhub/pkg/observability"
	"github.com/platinummonkey/adminhub/pkg/storage"
)

// DefaultTreeTTL bounds how long a cached projection is served
const DefaultTreeTTL = 600 * time.Second

const menuColumns = `id, name, parent_id, type, path, icon, redirect, component,
	permission_key, external_link, active, sort, is_deleted, created_at, updated_at`

// Config wires a Store
type Config struct {
	DB      *sql.DB
	Cache   cache.Cache // optional
	TreeTTL time.Duration
	Logger  logrus.FieldLogger
	Metrics *observability.Metrics // optional
}

// Store persists menus and builds their projections
type Store struct {
	db      *sql.DB
	cache   cache.Cache
	ttl     time.Duration
	logger  logrus.FieldLogger
	metrics *observability.Metrics
	now     func() time.Time

	// gen counts invalidations; a projection built across one is not cached
	gen atomic.Uint64
}

// NewStore creates a menu store
func NewStore(cfg Config) *Store {
	ttl := cfg.TreeTTL
	if ttl <= 0 {
		ttl = DefaultTreeTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Store{
		db:      cfg.DB,
		cache:   cfg.Cache,
		ttl:     ttl,
		logger:  logger,
		metrics: cfg.Metrics,
		now:     time.Now,
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMenu(row rowScanner) (*Menu, error) {
	var m Menu
	var parentID, sortOrder sql.NullInt64
	err := row.Scan(
		&m.ID,
		&m.Name,
		&parentID,
		&m.Type,
		&m.Path,
		&m.Icon,
		&m.Redirect,
		&m.Component,
		&m.PermissionKey,
		&m.ExternalLink,
		&m.Active,
		&sortOrder,
		&m.IsDeleted,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.ParentID = storage.Int64Ptr(parentID)
	if sortOrder.Valid {
		v := int(sortOrder.Int64)
		m.Sort = &v
	}
	return &m, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

// querier is satisfied by *sql.DB and *sql.Tx
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func getMenu(ctx context.Context, q querier, where string, arg interface{}) (*Menu, error) {
	query := `SELECT ` + menuColumns + ` FROM menus WHERE ` + where + ` AND is_deleted = $2`
	m, err := scanMenu(q.QueryRowContext(ctx, query, arg, false))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get menu: %w", err)
	}
	return m, nil
}

// Get retrieves a live menu by id
func (s *Store) Get(ctx context.Context, id int64) (*Menu, error) {
	return getMenu(ctx, s.db, "id = $1", id)
}

// GetByName retrieves a live menu by its unique name
func (s *Store) GetByName(ctx context.Context, name string) (*Menu, error) {
	return getMenu(ctx, s.db, "name = $1", name)
}

// loadAll returns every live row in one query
func (s *Store) loadAll(ctx context.Context) ([]*Menu, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+menuColumns+` FROM menus WHERE is_deleted = $1`, false)
	if err != nil {
		return nil, fmt.Errorf("failed to load menus: %w", err)
	}
	defer rows.Close()

	var menus []*Menu
	for rows.Next() {
		m, err := scanMenu(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan menu: %w", err)
		}
		menus = append(menus, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load menus: %w", err)
	}
	return menus, nil
}

// Create inserts a menu under an existing parent (or at the top level)
func (s *Store) Create(ctx context.Context, in MenuCreate) (*Menu, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	m := &Menu{
		Name:          in.Name,
		ParentID:      in.ParentID,
		Type:          in.Type,
		Path:          in.Path,
		Icon:          in.Icon,
		Redirect:      in.Redirect,
		Component:     in.Component,
		PermissionKey: in.PermissionKey,
		ExternalLink:  in.ExternalLink,
		Active:        in.Active == nil || *in.Active,
		Sort:          in.Sort,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if m.ParentID != nil {
			if _, err := getMenu(ctx, tx, "id = $1", *m.ParentID); err != nil {
				return fmt.Errorf("parent %d: %w", *m.ParentID, err)
			}
		}

		query := `
			INSERT INTO menus (name, parent_id, type, path, icon, redirect, component,
				permission_key, external_link, active, sort, is_deleted, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			RETURNING id
		`
		err := tx.QueryRowContext(ctx, query,
			m.Name, storage.NullInt64(m.ParentID), string(m.Type), m.Path, m.Icon, m.Redirect, m.Component,
			m.PermissionKey, m.ExternalLink, m.Active, nullInt(m.Sort), false, m.CreatedAt, m.UpdatedAt,
		).Scan(&m.ID)
		if storage.IsUniqueViolation(err) {
			return ErrDuplicate
		}
		if err != nil {
			return fmt.Errorf("failed to create menu: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	return m, nil
}

// Update applies a partial update. A parent change is validated inside the
// write transaction; a rejected move leaves the table unchanged.
func (s *Store) Update(ctx context.Context, id int64, u MenuUpdate) (*Menu, error) {
	var m *Menu
	err := storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		current, err := getMenu(ctx, tx, "id = $1", id)
		if err != nil {
			return err
		}
		m = current

		if err := u.Apply(m); err != nil {
			return err
		}
		if u.ParentID.Set {
			if u.ParentID.Value != nil {
				if err := checkParent(ctx, tx, id, *u.ParentID.Value); err != nil {
					return err
				}
			}
			m.ParentID = u.ParentID.Value
		}

		m.UpdatedAt = s.now().UTC()
		query := `
			UPDATE menus SET name = $1, parent_id = $2, type = $3, path = $4, icon = $5, redirect = $6,
				component = $7, permission_key = $8, external_link = $9, active = $10, sort = $11, updated_at = $12
			WHERE id = $13
		`
		_, err = tx.ExecContext(ctx, query,
			m.Name, storage.NullInt64(m.ParentID), string(m.Type), m.Path, m.Icon, m.Redirect,
			m.Component, m.PermissionKey, m.ExternalLink, m.Active, nullInt(m.Sort), m.UpdatedAt, id,
		)
		if storage.IsUniqueViolation(err) {
			return ErrDuplicate
		}
		if err != nil {
			return fmt.Errorf("failed to update menu: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	return m, nil
}

// checkParent verifies parentID exists and is neither id nor one of its
// descendants, by walking the ancestor chain of parentID.
func checkParent(ctx context.Context, tx *sql.Tx, id, parentID int64) error {
	if parentID == id {
		return &CycleError{MenuID: id, ParentID: parentID}
	}
	parent, err := getMenu(ctx, tx, "id = $1", parentID)
	if err != nil {
		return fmt.Errorf("parent %d: %w", parentID, err)
	}

	visited := map[int64]bool{parentID: true}
	next := parent.ParentID
	for next != nil {
		if *next == id {
			return &CycleError{MenuID: id, ParentID: parentID}
		}
		if visited[*next] {
			// The existing chain already loops and does not pass through id
			return nil
		}
		visited[*next] = true

		var ancestor sql.NullInt64
		err := tx.QueryRowContext(ctx, "SELECT parent_id FROM menus WHERE id = $1", *next).Scan(&ancestor)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to walk menu ancestors: %w", err)
		}
		next = storage.Int64Ptr(ancestor)
	}
	return nil
}

// Delete soft-deletes a menu. Its descendants drop out of every projection.
func (s *Store) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE menus SET is_deleted = $1, updated_at = $2 WHERE id = $3 AND is_deleted = $4",
		true, s.now().UTC(), id, false)
	if err != nil {
		return fmt.Errorf("failed to delete menu: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete menu: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	s.invalidate(ctx)
	return nil
}

// PermissionKeys is the vocabulary of permission keys attached to live menus
func (s *Store) PermissionKeys(ctx context.Context) (auth.PermissionSet, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT permission_key FROM menus WHERE permission_key <> '' AND is_deleted = $1", false)
	if err != nil {
		return nil, fmt.Errorf("failed to load permission keys: %w", err)
	}
	defer rows.Close()

	set := auth.PermissionSet{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan permission key: %w", err)
		}
		set.Add(key)
	}
	return set, rows.Err()
}

func (s *Store) invalidate(ctx context.Context) {
	s.gen.Add(1)
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, treeKeys...); err != nil {
		observability.FromContext(ctx, s.logger).WithError(err).Warn("failed to invalidate menu tree cache")
	}
}

// isNotFound reports whether err means a missing menu or parent
func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
