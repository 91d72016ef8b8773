package cache

import (
	"context"
	"time"

	"github.com/platinummonkey/adminhub/pkg/observability"
)

// InstrumentedCache records hits, misses and backend errors by key family
type InstrumentedCache struct {
	next      Cache
	metrics   *observability.Metrics
	cacheType string
}

// Instrumented wraps next. A nil metrics returns next unchanged.
func Instrumented(next Cache, cacheType string, metrics *observability.Metrics) Cache {
	if metrics == nil {
		return next
	}
	return &InstrumentedCache{next: next, metrics: metrics, cacheType: cacheType}
}

func (c *InstrumentedCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	found, err := c.next.Get(ctx, key, dest)
	switch {
	case err != nil:
		c.metrics.CacheErrorsTotal.WithLabelValues(c.cacheType, "get").Inc()
	case found:
		c.metrics.CacheHitsTotal.WithLabelValues(c.cacheType, KeyFamily(key)).Inc()
	default:
		c.metrics.CacheMissesTotal.WithLabelValues(c.cacheType, KeyFamily(key)).Inc()
	}
	return found, err
}

func (c *InstrumentedCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	err := c.next.Set(ctx, key, value, ttl)
	if err != nil {
		c.metrics.CacheErrorsTotal.WithLabelValues(c.cacheType, "set").Inc()
	}
	return err
}

func (c *InstrumentedCache) Delete(ctx context.Context, keys ...string) error {
	err := c.next.Delete(ctx, keys...)
	if err != nil {
		c.metrics.CacheErrorsTotal.WithLabelValues(c.cacheType, "delete").Inc()
	}
	return err
}
