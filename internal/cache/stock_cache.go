package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"darbar-billing/internal/core"
	"darbar-billing/internal/logging"
)

// StockCache stores StockInfo snapshots in Redis. A nil client turns every
// call into a no-op miss, so callers never need to check whether Redis is set up.
type StockCache struct {
	rdb *redis.Client
	ttl time.Duration
	log logrus.FieldLogger
}

var _ core.StockInfoCache = (*StockCache)(nil)

func NewStockCache(rdb *redis.Client, ttl time.Duration, log logrus.FieldLogger) *StockCache {
	return &StockCache{rdb: rdb, ttl: ttl, log: log}
}

// Connect parses url and pings the server. An empty url returns a nil client.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("unable to parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("unable to ping redis: %w", err)
	}
	return rdb, nil
}

func stockKey(itemID int) string {
	return fmt.Sprintf("stock:item:%d", itemID)
}

func (c *StockCache) Get(ctx context.Context, itemID int) (*core.StockInfo, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	val, err := c.rdb.Get(ctx, stockKey(itemID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logging.LogError(c.log, "cache", "Get", "redis get", itemID, err)
		}
		return nil, false
	}
	var info core.StockInfo
	if err := json.Unmarshal([]byte(val), &info); err != nil {
		logging.LogError(c.log, "cache", "Get", "decode stock info", itemID, err)
		return nil, false
	}
	return &info, true
}

func (c *StockCache) Set(ctx context.Context, info *core.StockInfo) {
	if c == nil || c.rdb == nil || info == nil {
		return
	}
	b, err := json.Marshal(info)
	if err != nil {
		logging.LogError(c.log, "cache", "Set", "encode stock info", info.ItemID, err)
		return
	}
	if err := c.rdb.Set(ctx, stockKey(info.ItemID), b, c.ttl).Err(); err != nil {
		logging.LogError(c.log, "cache", "Set", "redis set", info.ItemID, err)
	}
}

func (c *StockCache) Invalidate(ctx context.Context, itemIDs ...int) {
	if c == nil || c.rdb == nil || len(itemIDs) == 0 {
		return
	}
	keys := make([]string, len(itemIDs))
	for i, id := range itemIDs {
		keys[i] = stockKey(id)
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		logging.LogError(c.log, "cache", "Invalidate", "redis del", itemIDs, err)
	}
}
