// Package cache keeps read-through copies of order aggregates in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joao-fontenele/orderledger/internal/domain"
)

// order:{order_id} -> hash{order: JSON aggregate, version: UpdatedAt in µs}
const keyOrder = "order:%s"

const (
	fieldOrder   = "order"
	fieldVersion = "version"
)

const DefaultTTL = 5 * time.Minute

// fillScript stores the order unless the cached version is the same or newer.
// KEYS[1] order key, ARGV[1] payload, ARGV[2] version, ARGV[3] ttl in ms.
var fillScript = redis.NewScript(`
local cached = redis.call('HGET', KEYS[1], 'version')
if cached and tonumber(cached) >= tonumber(ARGV[2]) then
	return 0
end
redis.call('HSET', KEYS[1], 'order', ARGV[1], 'version', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})
}

type OrderCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewOrderCache(rdb redis.Cmdable, ttl time.Duration) *OrderCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &OrderCache{rdb: rdb, ttl: ttl}
}

func orderKey(id string) string {
	return fmt.Sprintf(keyOrder, id)
}

// Get returns nil without error on a miss.
func (c *OrderCache) Get(ctx context.Context, id string) (*domain.Order, error) {
	data, err := c.rdb.HGet(ctx, orderKey(id), fieldOrder).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cached order %s: %w", id, err)
	}

	var order domain.Order
	if err := json.Unmarshal(data, &order); err != nil {
		// A stale encoding is a miss; drop it so the next read repopulates.
		_ = c.rdb.Del(ctx, orderKey(id)).Err()
		return nil, nil
	}
	return &order, nil
}

// Set stores a just-committed order, replacing whatever is cached.
func (c *OrderCache) Set(ctx context.Context, order *domain.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("encode order %s: %w", order.ID, err)
	}

	key := orderKey(order.ID)
	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fieldOrder, data, fieldVersion, version(order))
		pipe.PExpire(ctx, key, c.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache order %s: %w", order.ID, err)
	}
	return nil
}

// Fill stores an order read outside a mutation. A cached copy with the same
// or a later version is kept.
func (c *OrderCache) Fill(ctx context.Context, order *domain.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("encode order %s: %w", order.ID, err)
	}

	err = fillScript.Run(ctx, c.rdb, []string{orderKey(order.ID)}, data, version(order), c.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("fill cached order %s: %w", order.ID, err)
	}
	return nil
}

func (c *OrderCache) Invalidate(ctx context.Context, id string) error {
	if err := c.rdb.Del(ctx, orderKey(id)).Err(); err != nil {
		return fmt.Errorf("invalidate order %s: %w", id, err)
	}
	return nil
}

// version orders cached copies of one order. Postgres keeps microseconds.
func version(order *domain.Order) int64 {
	return order.UpdatedAt.UnixMicro()
}
