// Package storagetest provides an in-memory SQLite database carrying the
// application schema, for store and handler tests.
package storagetest

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// Schema mirrors the PostgreSQL migrations in SQLite dialect
const Schema = `
	CREATE TABLE users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		hashed_id TEXT NOT NULL UNIQUE,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		nick_name TEXT NOT NULL DEFAULT '',
		avatar TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		is_superuser BOOLEAN NOT NULL DEFAULT 0,
		is_confirmed BOOLEAN NOT NULL DEFAULT 0,
		last_login TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE auth_groups (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		parent_id INTEGER REFERENCES auth_groups(id) ON DELETE SET NULL,
		permissions TEXT NOT NULL DEFAULT '[]',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE auth_user_groups (
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		group_id INTEGER NOT NULL REFERENCES auth_groups(id) ON DELETE CASCADE,
		PRIMARY KEY (user_id, group_id)
	);

	CREATE TABLE menus (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		parent_id INTEGER REFERENCES menus(id) ON DELETE SET NULL,
		type TEXT NOT NULL CHECK (type IN ('CATALOG', 'MENU', 'BUTTON', 'EXTERNAL_LINK')),
		path TEXT NOT NULL DEFAULT '',
		icon TEXT NOT NULL DEFAULT '',
		redirect TEXT NOT NULL DEFAULT '',
		component TEXT NOT NULL DEFAULT '',
		permission_key TEXT NOT NULL DEFAULT '',
		external_link TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT 1,
		sort INTEGER,
		is_deleted BOOLEAN NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE roles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		role_key TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT 1,
		sort INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE role_menus (
		role_id INTEGER NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
		menu_id INTEGER NOT NULL REFERENCES menus(id) ON DELETE CASCADE,
		PRIMARY KEY (role_id, menu_id)
	);

	CREATE TABLE role_users (
		role_id INTEGER NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		PRIMARY KEY (role_id, user_id)
	);

	CREATE TABLE audit_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		occurred_at TIMESTAMP NOT NULL,
		event_type TEXT NOT NULL,
		status TEXT NOT NULL,
		user_id INTEGER,
		email TEXT NOT NULL DEFAULT '',
		resource_type TEXT NOT NULL DEFAULT '',
		resource_id TEXT NOT NULL DEFAULT '',
		ip_address TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		request_id TEXT NOT NULL DEFAULT '',
		method TEXT NOT NULL DEFAULT '',
		route TEXT NOT NULL DEFAULT '',
		status_code INTEGER NOT NULL DEFAULT 0,
		message TEXT NOT NULL DEFAULT '',
		metadata TEXT
	);
`

// NewDB opens an in-memory database with the schema applied. The pool is
// pinned to one connection because every SQLite :memory: connection is a
// separate database; callers must not query the *sql.DB while holding a
// transaction or an open *sql.Rows.
func NewDB(t testing.TB) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		t.Fatalf("Failed to create schema: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}
