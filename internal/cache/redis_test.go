package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/orderledger/internal/domain"
)

func TestOrderKey(t *testing.T) {
	assert.Equal(t, "order:abc", orderKey("abc"))
}

func TestDefaultTTL(t *testing.T) {
	c := NewOrderCache(nil, 0)
	assert.Equal(t, DefaultTTL, c.ttl)
}

func TestVersionFollowsUpdatedAt(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 1500, time.UTC)
	older := &domain.Order{UpdatedAt: at}
	newer := &domain.Order{UpdatedAt: at.Add(time.Microsecond)}

	assert.Equal(t, at.UnixMicro(), version(older))
	assert.Less(t, version(older), version(newer))
}

func TestUnreachableRedisReturnsErrors(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer func() { _ = rdb.Close() }()
	c := NewOrderCache(rdb, time.Minute)
	ctx := context.Background()

	order, err := c.Get(ctx, "o-1")
	require.Error(t, err)
	assert.Nil(t, order)

	require.Error(t, c.Set(ctx, &domain.Order{ID: "o-1"}))
	require.Error(t, c.Fill(ctx, &domain.Order{ID: "o-1"}))
	require.Error(t, c.Invalidate(ctx, "o-1"))
}
