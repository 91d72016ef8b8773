// Package storage owns the relational store: connection setup, the schema
// migrations and a few helpers shared by the SQL-backed stores.
//
// Queries use $N placeholders and RETURNING, which both PostgreSQL (lib/pq)
// and the SQLite driver used in tests accept. Timestamps are always passed in
// from Go rather than computed with database functions.
//
//	db, err := storage.Open(ctx, storage.Config{URL: cfg.Database.PostgresURL})
//	if err := storage.RunMigrations(ctx, db, logger); err != nil {
//		return err
//	}
package storage
