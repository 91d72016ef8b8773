package menu

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SeedFromFile(t *testing.T) {
	s, _, _ := setupStore(t)
	ctx := context.Background()

	_, err := s.SeedFromFile(ctx, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "menus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o644))
	created, err := s.SeedFromFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 5, created)
}

func TestStore_WatchSeedReappliesOnChange(t *testing.T) {
	s, _, _ := setupStore(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "menus.yaml")
	require.NoError(t, os.WriteFile(path, []byte("menus: []\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.WatchSeed(ctx, path, 20*time.Millisecond) }()

	// Rewrite until the watcher is registered and picks the change up
	require.Eventually(t, func() bool {
		if err := os.WriteFile(path, []byte(seedYAML), 0o644); err != nil {
			return false
		}
		_, err := s.GetByName(context.Background(), "Docs")
		return err == nil
	}, 5*time.Second, 100*time.Millisecond)

	// Other files in the directory are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("menus:\n  - name: Other\n"), 0o644))
	time.Sleep(100 * time.Millisecond)
	_, err := s.GetByName(context.Background(), "Other")
	assert.ErrorIs(t, err, ErrNotFound)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("WatchSeed did not stop after cancel")
	}
}

func TestStore_WatchSeedMissingDirectory(t *testing.T) {
	s, _, _ := setupStore(t)
	err := s.WatchSeed(context.Background(), filepath.Join(t.TempDir(), "nope", "menus.yaml"), 0)
	assert.Error(t, err)
}
