package workflow

import (
	"context"
	"time"

	"github.com/mmdatafocus/purchasing_backend/config"
)

const lastResultKey = "DeliveryReconciliation:last"

// ResultCache keeps the result of the latest finished run.
type ResultCache interface {
	SaveLast(ctx context.Context, result *ReconciliationResult) error
	Last(ctx context.Context) (*ReconciliationResult, error)
}

// RedisResultCache stores the last result in Redis. Without a Redis connection it stores
// nothing and Last returns nil.
type RedisResultCache struct {
	TTL time.Duration
}

func NewRedisResultCache() *RedisResultCache {
	return &RedisResultCache{TTL: 7 * 24 * time.Hour}
}

func (c *RedisResultCache) SaveLast(ctx context.Context, result *ReconciliationResult) error {
	return config.SetRedisObject(ctx, lastResultKey, result, c.TTL)
}

func (c *RedisResultCache) Last(ctx context.Context) (*ReconciliationResult, error) {
	var result ReconciliationResult
	exists, err := config.GetRedisObject(ctx, lastResultKey, &result)
	if err != nil || !exists {
		return nil, err
	}
	return &result, nil
}
