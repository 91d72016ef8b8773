//go:build integration

package storage

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/platinummonkey/adminhub/pkg/observability"
)

// postgresURL returns ADMINHUB_TEST_POSTGRES_URL, or starts a throwaway
// container when it is unset. The test is skipped without Docker.
func postgresURL(t *testing.T) string {
	t.Helper()
	if url := os.Getenv("ADMINHUB_TEST_POSTGRES_URL"); url != "" {
		return url
	}

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker not available, skipping integration tests")
	}
	provider.Close()

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("adminhub_test"),
		postgres.WithUsername("adminhub"),
		postgres.WithPassword("adminhub_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	})

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return url
}

func openPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := Open(ctx, Config{URL: postgresURL(t), MaxConns: 4, Timeout: 10 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPostgres_MigrationsApplyCleanly(t *testing.T) {
	db := openPostgres(t)
	ctx := context.Background()
	logger := observability.NopLogger()

	require.NoError(t, RunMigrations(ctx, db, logger))
	require.NoError(t, RunMigrations(ctx, db, logger), "second run must be a no-op")

	for _, table := range []string{"users", "auth_groups", "auth_user_groups", "menus", "roles", "role_menus", "role_users", "audit_events"} {
		var exists bool
		err := db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, table)
	}

	var applied int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&applied))
	assert.Equal(t, len(GetMigrations()), applied)
}

func TestPostgres_UniqueViolation(t *testing.T) {
	db := openPostgres(t)
	ctx := context.Background()
	require.NoError(t, RunMigrations(ctx, db, observability.NopLogger()))

	insert := `INSERT INTO roles (name, role_key) VALUES ($1, $2)`
	_, err := db.ExecContext(ctx, insert, "Auditor", "auditor")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, insert, "Auditor", "auditor-2")
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
}
