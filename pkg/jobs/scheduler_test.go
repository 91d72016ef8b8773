package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/adminhub/pkg/audit"
	"github.com/platinummonkey/adminhub/pkg/cache"
	"github.com/platinummonkey/adminhub/pkg/menu"
	"github.com/platinummonkey/adminhub/pkg/middleware"
	"github.com/platinummonkey/adminhub/pkg/observability"
	"github.com/platinummonkey/adminhub/pkg/storage/storagetest"
)

func noop(context.Context) error { return nil }

func TestScheduler_AddValidates(t *testing.T) {
	s := NewScheduler(nil, nil)

	require.NoError(t, s.Add(Job{Name: "a", Schedule: "*/5 * * * *", Run: noop}))
	require.NoError(t, s.Add(Job{Name: "b", Schedule: "@every 1m", Run: noop}))

	assert.Error(t, s.Add(Job{Name: "a", Schedule: "@hourly", Run: noop}), "duplicate name")
	assert.Error(t, s.Add(Job{Name: "c", Schedule: "every now and then", Run: noop}), "bad schedule")
	assert.Error(t, s.Add(Job{Schedule: "@hourly", Run: noop}), "missing name")
	assert.Error(t, s.Add(Job{Name: "d", Schedule: "@hourly"}), "missing run")

	assert.Equal(t, []string{"a", "b"}, s.Names())
}

func TestScheduler_RunNowRecordsOutcome(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	s := NewScheduler(nil, metrics)

	boom := errors.New("boom")
	require.NoError(t, s.Add(Job{Name: "ok", Schedule: "@hourly", Run: noop}))
	require.NoError(t, s.Add(Job{Name: "bad", Schedule: "@hourly", Run: func(context.Context) error { return boom }}))

	require.NoError(t, s.RunNow(context.Background(), "ok"))
	assert.ErrorIs(t, s.RunNow(context.Background(), "bad"), boom)
	assert.ErrorIs(t, s.RunNow(context.Background(), "missing"), ErrUnknownJob)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.JobRunsTotal.WithLabelValues("ok", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.JobRunsTotal.WithLabelValues("bad", "error")))
}

func TestScheduler_TimeoutBoundsRun(t *testing.T) {
	s := NewScheduler(nil, nil)
	require.NoError(t, s.Add(Job{
		Name:     "slow",
		Schedule: "@hourly",
		Timeout:  10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}))
	assert.ErrorIs(t, s.RunNow(context.Background(), "slow"), context.DeadlineExceeded)
}

func TestScheduler_RunNowRecoversPanic(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	s := NewScheduler(nil, metrics)
	require.NoError(t, s.Add(Job{Name: "explode", Schedule: "@hourly", Run: func(context.Context) error {
		panic("boom")
	}}))

	var err error
	require.NotPanics(t, func() { err = s.RunNow(context.Background(), "explode") })
	assert.ErrorIs(t, err, ErrJobPanicked)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.JobRunsTotal.WithLabelValues("explode", "panic")))

	// a second run is not blocked by the first
	assert.ErrorIs(t, s.RunNow(context.Background(), "explode"), ErrJobPanicked)
}

func TestScheduler_RunsOnScheduleAndSurvivesPanics(t *testing.T) {
	s := NewScheduler(nil, nil)
	var runs, panics atomic.Int32
	require.NoError(t, s.Add(Job{Name: "tick", Schedule: "@every 1s", Run: func(context.Context) error {
		runs.Add(1)
		return nil
	}}))
	require.NoError(t, s.Add(Job{Name: "panic", Schedule: "@every 1s", Run: func(context.Context) error {
		panics.Add(1)
		panic("job exploded")
	}}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	assert.Eventually(t, func() bool { return runs.Load() >= 3 && panics.Load() >= 3 }, 6*time.Second, 50*time.Millisecond)
}

func TestLimiterCleanupJob(t *testing.T) {
	limiter := middleware.NewMemoryRateLimiter(middleware.RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Millisecond})
	limiter.Allow(context.Background(), "a")
	require.Equal(t, 1, limiter.Len())
	time.Sleep(5 * time.Millisecond)

	s := NewScheduler(nil, nil)
	require.NoError(t, s.Add(LimiterCleanup(limiter, "@every 1m")))
	require.NoError(t, s.RunNow(context.Background(), "ratelimit_cleanup"))
	assert.Zero(t, limiter.Len())
}

func TestMenuTreeWarmJob(t *testing.T) {
	c := cache.NewMemoryCache(10)
	store := menu.NewStore(menu.Config{DB: storagetest.NewDB(t), Cache: c})
	_, err := store.Create(context.Background(), menu.MenuCreate{Name: "System", Type: menu.TypeCatalog})
	require.NoError(t, err)

	s := NewScheduler(nil, nil)
	require.NoError(t, s.Add(MenuTreeWarm(store, "@every 5m")))
	require.NoError(t, s.RunNow(context.Background(), "menu_tree_warm"))
	assert.Equal(t, 3, c.Len())
}

func TestAuditRetentionJob(t *testing.T) {
	store, err := audit.NewDBStore(storagetest.NewDB(t))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.Log(ctx, &audit.Event{OccurredAt: time.Now().Add(-100 * 24 * time.Hour), Type: audit.EventLogin, Status: audit.StatusSuccess}))
	require.NoError(t, store.Log(ctx, &audit.Event{OccurredAt: time.Now(), Type: audit.EventLogin, Status: audit.StatusSuccess}))

	s := NewScheduler(nil, nil)
	require.NoError(t, s.Add(AuditRetention(store, 90*24*time.Hour, "@daily")))
	require.NoError(t, s.RunNow(ctx, "audit_retention"))

	list, err := store.Search(ctx, audit.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 1, list.Total)
}
