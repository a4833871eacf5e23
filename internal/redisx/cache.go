package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-realtime-shop/internal/orders"
	"github.com/redis/go-redis/v9"
)

// Cache keeps order documents for the customer status page and remembers
// submitted orders per idempotency key. The database stays the source of
// truth; every method tolerates a missing or failing redis.
type Cache struct {
	rdb *redis.Client
}

func NewCache(rdb *redis.Client) *Cache { return &Cache{rdb: rdb} }

func (c *Cache) getOrder(ctx context.Context, key string) (orders.Order, bool) {
	if c == nil {
		return orders.Order{}, false
	}
	s, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		return orders.Order{}, false
	}
	var o orders.Order
	if err := json.Unmarshal([]byte(s), &o); err != nil {
		return orders.Order{}, false
	}
	return o, true
}

func (c *Cache) setOrder(ctx context.Context, key string, o orders.Order, ttl time.Duration) {
	if c == nil {
		return
	}
	b, err := json.Marshal(o)
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, key, b, ttl).Err()
}

func (c *Cache) Order(ctx context.Context, shopID, orderID string) (orders.Order, bool) {
	return c.getOrder(ctx, fmt.Sprintf(KeyOrderStatus, shopID, orderID))
}

func (c *Cache) SetOrder(ctx context.Context, o orders.Order) {
	c.setOrder(ctx, fmt.Sprintf(KeyOrderStatus, o.ShopID, o.ID), o, TTLStatusCache)
}

func (c *Cache) InvalidateOrder(ctx context.Context, shopID, orderID string) error {
	if c == nil {
		return nil
	}
	err := c.rdb.Del(ctx, fmt.Sprintf(KeyOrderStatus, shopID, orderID)).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

// Submitted returns the order previously created under an idempotency key.
func (c *Cache) Submitted(ctx context.Context, shopID, idemKey string) (orders.Order, bool) {
	return c.getOrder(ctx, fmt.Sprintf(KeyIdemOrderSubmit, shopID, idemKey))
}

func (c *Cache) RememberSubmit(ctx context.Context, idemKey string, o orders.Order) {
	c.setOrder(ctx, fmt.Sprintf(KeyIdemOrderSubmit, o.ShopID, idemKey), o, TTLIdempotency)
}
