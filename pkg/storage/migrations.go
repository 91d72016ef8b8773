package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns the PostgreSQL schema migrations in order
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					hashed_id UUID NOT NULL UNIQUE,
					username VARCHAR(255) NOT NULL UNIQUE,
					email VARCHAR(255) NOT NULL UNIQUE,
					first_name VARCHAR(50) NOT NULL DEFAULT '',
					last_name VARCHAR(50) NOT NULL DEFAULT '',
					nick_name VARCHAR(50) NOT NULL DEFAULT '',
					avatar TEXT NOT NULL DEFAULT '',
					password_hash VARCHAR(255) NOT NULL,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					is_superuser BOOLEAN NOT NULL DEFAULT FALSE,
					is_confirmed BOOLEAN NOT NULL DEFAULT FALSE,
					last_login TIMESTAMPTZ,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     2,
			Description: "Create groups and memberships",
			SQL: `
				CREATE TABLE IF NOT EXISTS auth_groups (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(100) NOT NULL UNIQUE,
					description TEXT NOT NULL DEFAULT '',
					parent_id BIGINT REFERENCES auth_groups(id) ON DELETE SET NULL,
					permissions JSONB NOT NULL DEFAULT '[]',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS auth_user_groups (
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					group_id BIGINT NOT NULL REFERENCES auth_groups(id) ON DELETE CASCADE,
					PRIMARY KEY (user_id, group_id)
				);

				CREATE INDEX IF NOT EXISTS idx_auth_user_groups_group_id ON auth_user_groups(group_id);
			`,
		},
		{
			Version:     3,
			Description: "Create menus table",
			SQL: `
				CREATE TABLE IF NOT EXISTS menus (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(100) NOT NULL UNIQUE,
					parent_id BIGINT REFERENCES menus(id) ON DELETE SET NULL,
					type VARCHAR(20) NOT NULL CHECK (type IN ('CATALOG', 'MENU', 'BUTTON', 'EXTERNAL_LINK')),
					path VARCHAR(255) NOT NULL DEFAULT '',
					icon VARCHAR(100) NOT NULL DEFAULT '',
					redirect VARCHAR(255) NOT NULL DEFAULT '',
					component VARCHAR(255) NOT NULL DEFAULT '',
					permission_key VARCHAR(100) NOT NULL DEFAULT '',
					external_link VARCHAR(255) NOT NULL DEFAULT '',
					active BOOLEAN NOT NULL DEFAULT TRUE,
					sort INT,
					is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_menus_parent_id ON menus(parent_id);
				CREATE INDEX IF NOT EXISTS idx_menus_permission_key ON menus(permission_key) WHERE permission_key <> '';
			`,
		},
		{
			Version:     4,
			Description: "Create roles and grants",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(100) NOT NULL UNIQUE,
					role_key VARCHAR(100) NOT NULL UNIQUE,
					description TEXT NOT NULL DEFAULT '',
					active BOOLEAN NOT NULL DEFAULT TRUE,
					sort INT NOT NULL DEFAULT 0,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS role_menus (
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					menu_id BIGINT NOT NULL REFERENCES menus(id) ON DELETE CASCADE,
					PRIMARY KEY (role_id, menu_id)
				);

				CREATE TABLE IF NOT EXISTS role_users (
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					PRIMARY KEY (role_id, user_id)
				);

				CREATE INDEX IF NOT EXISTS idx_role_users_user_id ON role_users(user_id);
			`,
		},
		{
			Version:     5,
			Description: "Create audit events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_events (
					id BIGSERIAL PRIMARY KEY,
					occurred_at TIMESTAMPTZ NOT NULL,
					event_type VARCHAR(100) NOT NULL,
					status VARCHAR(20) NOT NULL,
					user_id BIGINT,
					email VARCHAR(255) NOT NULL DEFAULT '',
					resource_type VARCHAR(50) NOT NULL DEFAULT '',
					resource_id VARCHAR(255) NOT NULL DEFAULT '',
					ip_address VARCHAR(45) NOT NULL DEFAULT '',
					user_agent TEXT NOT NULL DEFAULT '',
					request_id VARCHAR(128) NOT NULL DEFAULT '',
					method VARCHAR(10) NOT NULL DEFAULT '',
					route TEXT NOT NULL DEFAULT '',
					status_code INT NOT NULL DEFAULT 0,
					message TEXT NOT NULL DEFAULT '',
					metadata JSONB
				);

				CREATE INDEX IF NOT EXISTS idx_audit_events_occurred_at ON audit_events(occurred_at DESC);
				CREATE INDEX IF NOT EXISTS idx_audit_events_user_id ON audit_events(user_id);
				CREATE INDEX IF NOT EXISTS idx_audit_events_event_type ON audit_events(event_type);
			`,
		},
	}
}

// RunMigrations executes all pending migrations, each in its own transaction
func RunMigrations(ctx context.Context, db *sql.DB, logger logrus.FieldLogger) error {
	return runMigrations(ctx, db, GetMigrations(), logger)
}

func runMigrations(ctx context.Context, db *sql.DB, migrations []Migration, logger logrus.FieldLogger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("failed to read migrations: %w", err)
	}
	rows.Close()

	for _, migration := range migrations {
		if appliedVersions[migration.Version] {
			continue
		}

		logger.WithField("version", migration.Version).Infof("running migration: %s", migration.Description)

		err := WithTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, description, applied_at) VALUES ($1, $2, $3)",
				migration.Version, migration.Description, time.Now().UTC(),
			); err != nil {
				return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}
