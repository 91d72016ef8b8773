package jobs

import (
	"context"
	"time"

	"github.com/platinummonkey/adminhub/pkg/audit"
	"github.com/platinummonkey/adminhub/pkg/menu"
	"github.com/platinummonkey/adminhub/pkg/middleware"
)

// LimiterCleanup drops expired windows from an in-process rate limiter
func LimiterCleanup(limiter *middleware.MemoryRateLimiter, schedule string) Job {
	return Job{
		Name:     "ratelimit_cleanup",
		Schedule: schedule,
		Run: func(context.Context) error {
			limiter.Cleanup()
			return nil
		},
	}
}

// MenuTreeWarm rebuilds the cached menu projections
func MenuTreeWarm(store *menu.Store, schedule string) Job {
	return Job{
		Name:     "menu_tree_warm",
		Schedule: schedule,
		Timeout:  30 * time.Second,
		Run:      store.WarmTrees,
	}
}

// AuditRetention purges audit events older than maxAge
func AuditRetention(store *audit.DBStore, maxAge time.Duration, schedule string) Job {
	return Job{
		Name:     "audit_retention",
		Schedule: schedule,
		Timeout:  5 * time.Minute,
		Run: func(ctx context.Context) error {
			_, err := store.Purge(ctx, time.Now().Add(-maxAge))
			return err
		},
	}
}
