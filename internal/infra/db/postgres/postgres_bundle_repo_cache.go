package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"esim-reseller/internal/domain/model"
	"esim-reseller/internal/domain/ports/repository"
	"esim-reseller/internal/infra/metrics"
	red "esim-reseller/internal/infra/redis"
)

var _ repository.BundleRepository = (*bundleRepoCacheDecorator)(nil)

// bundleRepoCacheDecorator caches catalog reads. The catalog changes only on
// sync jobs, so a short TTL is enough and no explicit invalidation is wired.
type bundleRepoCacheDecorator struct {
	inner repository.BundleRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewBundleRepoCacheDecorator(inner repository.BundleRepository, cache red.RedisClient, ttl time.Duration) repository.BundleRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &bundleRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl}
}

func (d *bundleRepoCacheDecorator) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Bundle, error) {
	key := fmt.Sprintf("bundle:%s", code)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		metrics.IncCacheRequest("bundle", "hit")
		var b model.Bundle
		if json.Unmarshal([]byte(val), &b) == nil {
			return &b, nil
		}
	}

	metrics.IncCacheRequest("bundle", "miss")
	b, err := d.inner.FindByCode(ctx, tx, code)
	if err != nil {
		return nil, err
	}
	if b != nil {
		bytes, _ := json.Marshal(b)
		_ = d.cache.Set(ctx, key, bytes, d.ttl)
	}
	return b, nil
}
