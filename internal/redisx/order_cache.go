package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
	"github.com/redis/go-redis/v9"
)

// OrderCache keeps serialized orders and idempotency keys. A nil *OrderCache is a
// valid no-op cache, used when Redis is not configured.
type OrderCache struct {
	RDB redis.Cmdable
	TTL time.Duration
}

func NewOrderCache(rdb redis.Cmdable, ttl time.Duration) *OrderCache {
	if ttl <= 0 {
		ttl = TTLOrderCache
	}
	return &OrderCache{RDB: rdb, TTL: ttl}
}

// Get returns the cached order; ok is false on a miss.
func (c *OrderCache) Get(ctx context.Context, id string) (orders.Order, bool, error) {
	if c == nil {
		return orders.Order{}, false, nil
	}
	b, err := c.RDB.Get(ctx, fmt.Sprintf(KeyOrder, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return orders.Order{}, false, nil
	}
	if err != nil {
		return orders.Order{}, false, err
	}
	var o orders.Order
	if err := json.Unmarshal(b, &o); err != nil {
		return orders.Order{}, false, fmt.Errorf("decode cached order %s: %w", id, err)
	}
	return o, true, nil
}

func (c *OrderCache) Put(ctx context.Context, o orders.Order) error {
	if c == nil {
		return nil
	}
	b, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return c.RDB.Set(ctx, fmt.Sprintf(KeyOrder, o.ID), b, c.TTL).Err()
}

func (c *OrderCache) Invalidate(ctx context.Context, id string) error {
	if c == nil {
		return nil
	}
	return c.RDB.Del(ctx, fmt.Sprintf(KeyOrder, id)).Err()
}

// idemPending marks an idempotency key whose create is still running.
const idemPending = "pending"

// ClaimIdempotent reserves key for a single create. When claimed is false the key
// is already held: orderID is the order it produced, or "" while the first
// request is still running. Without a cache or a key every request is claimed.
func (c *OrderCache) ClaimIdempotent(ctx context.Context, key string) (claimed bool, orderID string, err error) {
	if c == nil || key == "" {
		return true, "", nil
	}
	k := fmt.Sprintf(KeyIdemOrderCreate, key)
	ok, err := c.RDB.SetNX(ctx, k, idemPending, TTLIdempotency).Result()
	if err != nil {
		return false, "", err
	}
	if ok {
		return true, "", nil
	}
	id, err := c.RDB.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// Released between the two commands; the holder failed and a retry is allowed.
		return c.ClaimIdempotent(ctx, key)
	}
	if err != nil {
		return false, "", err
	}
	if id == idemPending {
		return false, "", nil
	}
	return false, id, nil
}

// RememberIdempotent records the order a claimed key produced.
func (c *OrderCache) RememberIdempotent(ctx context.Context, key, orderID string) error {
	if c == nil || key == "" {
		return nil
	}
	return c.RDB.Set(ctx, fmt.Sprintf(KeyIdemOrderCreate, key), orderID, TTLIdempotency).Err()
}

// ReleaseIdempotent drops a claim whose create failed so the client can retry.
func (c *OrderCache) ReleaseIdempotent(ctx context.Context, key string) error {
	if c == nil || key == "" {
		return nil
	}
	return c.RDB.Del(ctx, fmt.Sprintf(KeyIdemOrderCreate, key)).Err()
}
