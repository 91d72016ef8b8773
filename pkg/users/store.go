package users

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/adminhub/pkg/auth"
	"github.com/platinummonkey/adminhub/pkg/cache"
	"github.com/platinummonkey/adminhub/pkg/observability"
	"github.com/platinummonkey/adminhub/pkg/storage"
)

const userColumns = `id, hashed_id, username, email, first_name, last_name, nick_name, avatar,
	password_hash, is_active, is_superuser, is_confirmed, last_login, created_at, updated_at`

// Store handles user persistence
type Store struct {
	db     *sql.DB
	cache  cache.Cache
	logger logrus.FieldLogger
	now    func() time.Time
}

// NewStore creates a user store. c may be nil.
func NewStore(db *sql.DB, c cache.Cache, logger logrus.FieldLogger) *Store {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Store{db: db, cache: c, logger: logger, now: time.Now}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*auth.User, error) {
	var u auth.User
	var lastLogin sql.NullTime
	err := row.Scan(
		&u.ID,
		&u.HashedID,
		&u.Username,
		&u.Email,
		&u.FirstName,
		&u.LastName,
		&u.NickName,
		&u.Avatar,
		&u.PasswordHash,
		&u.IsActive,
		&u.IsSuperuser,
		&u.IsConfirmed,
		&lastLogin,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	u.Groups = []auth.Group{}
	return &u, nil
}

func (s *Store) getOne(ctx context.Context, where string, arg interface{}) (*auth.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where
	u, err := scanUser(s.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if err := s.loadGroups(ctx, []*auth.User{u}); err != nil {
		return nil, err
	}
	return u, nil
}

// GetByID retrieves a user with its groups
func (s *Store) GetByID(ctx context.Context, id int64) (*auth.User, error) {
	return s.getOne(ctx, "id = $1", id)
}

// GetByUsername retrieves a user by exact username
func (s *Store) GetByUsername(ctx context.Context, username string) (*auth.User, error) {
	return s.getOne(ctx, "username = $1", username)
}

// GetByEmail retrieves a user by email, ignoring case
func (s *Store) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.getOne(ctx, "LOWER(email) = LOWER($1)", email)
}

// LoadUser implements auth.UserLoader
func (s *Store) LoadUser(ctx context.Context, id int64) (*auth.User, error) {
	return s.GetByID(ctx, id)
}

// List returns a page of users ordered by id
func (s *Store) List(ctx context.Context, limit, offset int) (*List, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	users := []*auth.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	if err := s.loadGroups(ctx, users); err != nil {
		return nil, err
	}
	return &List{Total: total, Items: users}, nil
}

// loadGroups fills Groups for every user with one query
func (s *Store) loadGroups(ctx context.Context, users []*auth.User) error {
	if len(users) == 0 {
		return nil
	}
	byID := make(map[int64]*auth.User, len(users))
	ids := make([]int64, 0, len(users))
	for _, u := range users {
		byID[u.ID] = u
		ids = append(ids, u.ID)
	}

	query := fmt.Sprintf(`
		SELECT ug.user_id, g.id, g.name, g.description, g.parent_id, g.permissions, g.created_at, g.updated_at
		FROM auth_user_groups ug
		JOIN auth_groups g ON g.id = ug.group_id
		WHERE ug.user_id IN (%s)
		ORDER BY g.id
	`, storage.Placeholders(1, len(ids)))

	rows, err := s.db.QueryContext(ctx, query, storage.Int64Args(ids)...)
	if err != nil {
		return fmt.Errorf("failed to load user groups: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID int64
		var g auth.Group
		var parentID sql.NullInt64
		var permissionsJSON []byte
		if err := rows.Scan(&userID, &g.ID, &g.Name, &g.Description, &parentID, &permissionsJSON, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return fmt.Errorf("failed to scan group: %w", err)
		}
		if err := json.Unmarshal(permissionsJSON, &g.Permissions); err != nil {
			return fmt.Errorf("failed to unmarshal permissions of group %d: %w", g.ID, err)
		}
		g.ParentID = storage.Int64Ptr(parentID)
		if u, ok := byID[userID]; ok {
			u.Groups = append(u.Groups, g)
		}
	}
	return rows.Err()
}

// Create validates and inserts a new account
func (s *Store) Create(ctx context.Context, in UserCreate) (*auth.User, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	u := &auth.User{
		HashedID:     uuid.NewString(),
		Username:     in.Username,
		Email:        in.Email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		NickName:     in.NickName,
		Avatar:       in.Avatar,
		PasswordHash: hash,
		IsActive:     in.IsActive == nil || *in.IsActive,
		IsSuperuser:  in.IsSuperuser,
		IsConfirmed:  in.IsConfirmed,
		CreatedAt:    now,
		UpdatedAt:    now,
		Groups:       []auth.Group{},
	}

	query := `
		INSERT INTO users (hashed_id, username, email, first_name, last_name, nick_name, avatar,
			password_hash, is_active, is_superuser, is_confirmed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`
	err = s.db.QueryRowContext(ctx, query,
		u.HashedID, u.Username, u.Email, u.FirstName, u.LastName, u.NickName, u.Avatar,
		u.PasswordHash, u.IsActive, u.IsSuperuser, u.IsConfirmed, u.CreatedAt, u.UpdatedAt,
	).Scan(&u.ID)
	if storage.IsUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

// Save writes the profile and account flags of u
func (s *Store) Save(ctx context.Context, u *auth.User) error {
	u.UpdatedAt = s.now().UTC()
	query := `
		UPDATE users SET username = $1, email = $2, first_name = $3, last_name = $4, nick_name = $5,
			avatar = $6, is_active = $7, is_superuser = $8, is_confirmed = $9, updated_at = $10
		WHERE id = $11
	`
	result, err := s.db.ExecContext(ctx, query,
		u.Username, u.Email, u.FirstName, u.LastName, u.NickName,
		u.Avatar, u.IsActive, u.IsSuperuser, u.IsConfirmed, u.UpdatedAt, u.ID,
	)
	if storage.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	if err := s.checkUpdated(result, err, "save user"); err != nil {
		return err
	}
	s.Invalidate(ctx, u.ID)
	return nil
}

// SetPassword replaces the password of a user
func (s *Store) SetPassword(ctx context.Context, id int64, password string) error {
	if err := validatePassword(password); err != nil {
		return err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	return s.setPasswordHash(ctx, id, hash)
}

func (s *Store) setPasswordHash(ctx context.Context, id int64, hash string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3", hash, s.now().UTC(), id)
	if err := s.checkUpdated(result, err, "set password"); err != nil {
		return err
	}
	s.Invalidate(ctx, id)
	return nil
}

// UpdateLastLogin records a successful login
func (s *Store) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	result, err := s.db.ExecContext(ctx, "UPDATE users SET last_login = $1 WHERE id = $2", at.UTC(), id)
	if err := s.checkUpdated(result, err, "update last login"); err != nil {
		return err
	}
	s.Invalidate(ctx, id)
	return nil
}

// Confirm marks the account confirmed. The email must still match the one
// the confirmation was issued for.
func (s *Store) Confirm(ctx context.Context, id int64, email string) (*auth.User, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE users SET is_confirmed = $1, updated_at = $2 WHERE id = $3 AND LOWER(email) = LOWER($4)",
		true, s.now().UTC(), id, email)
	if err := s.checkUpdated(result, err, "confirm user"); err != nil {
		return nil, err
	}
	s.Invalidate(ctx, id)
	return s.GetByID(ctx, id)
}

func (s *Store) checkUpdated(result sql.Result, err error, op string) error {
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Invalidate drops the identity snapshots of ids. Failures are logged; the
// snapshot still expires with its TTL.
func (s *Store) Invalidate(ctx context.Context, ids ...int64) {
	if s.cache == nil || len(ids) == 0 {
		return
	}
	if err := s.cache.Delete(ctx, cache.UserKeys(ids)...); err != nil {
		observability.FromContext(ctx, s.logger).WithError(err).
			WithField("user_ids", ids).Warn("failed to invalidate identity cache")
	}
}

// Authenticate checks a login (email or username) and password. Unknown
// logins and wrong passwords return the same error.
func (s *Store) Authenticate(ctx context.Context, login, password string) (*auth.User, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, auth.ErrInvalidCredentials
	}

	u, err := s.GetByEmail(ctx, login)
	if errors.Is(err, ErrNotFound) {
		u, err = s.GetByUsername(ctx, login)
	}
	if errors.Is(err, ErrNotFound) {
		// Burn the same time as a real comparison
		auth.CheckPassword(dummyHash(), password)
		return nil, auth.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	ok, needsRehash := auth.CheckPassword(u.PasswordHash, password)
	if !ok {
		return nil, auth.ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, auth.ErrInactive
	}

	if needsRehash {
		if hash, err := auth.HashPassword(password); err == nil {
			if err := s.setPasswordHash(ctx, u.ID, hash); err != nil {
				observability.FromContext(ctx, s.logger).WithError(err).Warn("failed to upgrade password hash")
			} else {
				u.PasswordHash = hash
			}
		}
	}
	return u, nil
}

var (
	dummyOnce sync.Once
	dummy     string
)

// dummyHash is compared against when the login is unknown
func dummyHash() string {
	dummyOnce.Do(func() {
		dummy, _ = auth.HashPassword(uuid.NewString())
	})
	return dummy
}

// EnsureSuperuser creates the bootstrap superuser, or elevates the existing
// account with that email. The username is the email.
func (s *Store) EnsureSuperuser(ctx context.Context, email, password string) (*auth.User, error) {
	u, err := s.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		u, err = s.Create(ctx, UserCreate{
			Username:    email,
			Email:       email,
			Password:    password,
			IsSuperuser: true,
			IsConfirmed: true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create superuser: %w", err)
		}
		observability.FromContext(ctx, s.logger).WithField("email", email).Info("superuser created")
		return u, nil
	}
	if err != nil {
		return nil, err
	}

	if u.IsSuperuser && u.IsActive {
		return u, nil
	}
	u.IsSuperuser = true
	u.IsActive = true
	if err := s.Save(ctx, u); err != nil {
		return nil, fmt.Errorf("failed to elevate superuser: %w", err)
	}
	observability.FromContext(ctx, s.logger).WithField("email", email).Info("existing user elevated to superuser")
	return u, nil
}
