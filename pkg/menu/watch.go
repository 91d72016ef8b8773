package menu

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultSeedDebounce collapses the burst of events an editor save produces
const DefaultSeedDebounce = 500 * time.Millisecond

// SeedFromFile parses and applies the seed file at path
func (s *Store) SeedFromFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open menu seed: %w", err)
	}
	defer f.Close()

	seed, err := ParseSeed(f)
	if err != nil {
		return 0, err
	}
	return s.Seed(ctx, seed)
}

// WatchSeed reapplies the seed file whenever it changes, until ctx is done.
// The parent directory is watched so atomic renames by editors are seen.
// Apply errors are logged and watching continues.
func (s *Store) WatchSeed(ctx context.Context, path string, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultSeedDebounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	logger := s.logger.WithField("seed", abs)
	logger.Info("watching menu seed")

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			timer.Reset(debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("menu seed watcher error")
		case <-timer.C:
			created, err := s.SeedFromFile(ctx, abs)
			if err != nil {
				logger.WithError(err).Error("failed to reapply menu seed")
				continue
			}
			logger.WithField("created", created).Info("menu seed reapplied")
		}
	}
}
