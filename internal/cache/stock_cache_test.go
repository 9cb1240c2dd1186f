package cache

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"darbar-billing/internal/core"
)

func TestStockCache_DisabledIsNoop(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	ctx := context.Background()

	c := NewStockCache(nil, time.Minute, log)
	c.Set(ctx, &core.StockInfo{ItemID: 1, CurrentStock: 3})
	info, ok := c.Get(ctx, 1)
	assert.False(t, ok)
	assert.Nil(t, info)
	c.Invalidate(ctx, 1, 2)

	var nilCache *StockCache
	_, ok = nilCache.Get(ctx, 1)
	assert.False(t, ok)
	nilCache.Set(ctx, &core.StockInfo{ItemID: 1})
	nilCache.Invalidate(ctx, 1)
}

func TestConnect_EmptyURL(t *testing.T) {
	rdb, err := Connect(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, rdb)
}

func TestConnect_InvalidURL(t *testing.T) {
	_, err := Connect(context.Background(), "not-a-redis-url")
	assert.Error(t, err)
}

func TestStockKey(t *testing.T) {
	assert.Equal(t, "stock:item:42", stockKey(42))
}
