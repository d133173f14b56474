package catalog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const productKeyFmt = "catalog:product:"

// Cache is a read-through cache for products. Failures degrade to a miss.
type Cache interface {
	GetProduct(ctx context.Context, id string) (*Product, bool)
	SetProduct(ctx context.Context, p Product)
	Invalidate(ctx context.Context, ids ...string)
}

// NopCache caches nothing.
type NopCache struct{}

func (NopCache) GetProduct(context.Context, string) (*Product, bool) { return nil, false }
func (NopCache) SetProduct(context.Context, Product)                 {}
func (NopCache) Invalidate(context.Context, ...string)               {}

// RedisCache stores products as JSON strings with a TTL.
type RedisCache struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisClient connects to addr with short per-command timeouts.
func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func NewRedisCache(rdb redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{rdb: rdb, ttl: ttl, logger: logger}
}

func (c *RedisCache) GetProduct(ctx context.Context, id string) (*Product, bool) {
	raw, err := c.rdb.Get(ctx, productKeyFmt+id).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("product cache read failed", zap.String("product_id", id), zap.Error(err))
		}
		return nil, false
	}
	var p Product
	if err := json.Unmarshal(raw, &p); err != nil {
		c.logger.Warn("product cache entry corrupt", zap.String("product_id", id), zap.Error(err))
		return nil, false
	}
	return &p, true
}

func (c *RedisCache) SetProduct(ctx context.Context, p Product) {
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, productKeyFmt+p.ProductID, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("product cache write failed", zap.String("product_id", p.ProductID), zap.Error(err))
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, ids ...string) {
	if len(ids) == 0 {
		return
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = productKeyFmt + id
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("product cache invalidate failed", zap.Strings("product_ids", ids), zap.Error(err))
	}
}
