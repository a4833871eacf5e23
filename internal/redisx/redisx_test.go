package redisx

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-realtime-shop/internal/orders"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestClaim(t *testing.T) {
	mr, rdb := setup(t)
	ctx := context.Background()

	first, err := Claim(ctx, rdb, "dedup:relay:e1", time.Hour)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := Claim(ctx, rdb, "dedup:relay:e1", time.Hour)
	require.NoError(t, err)
	assert.False(t, again)
	assert.Equal(t, time.Hour, mr.TTL("dedup:relay:e1"))
}

func TestCacheOrder(t *testing.T) {
	mr, rdb := setup(t)
	ctx := context.Background()
	c := NewCache(rdb)

	_, ok := c.Order(ctx, "s1", "o1")
	assert.False(t, ok)

	o := orders.Order{ShopID: "s1", ID: "o1", Index: 4, Status: orders.OrderIdle, ProductAmount: map[string]int{"latte": 2}}
	c.SetOrder(ctx, o)
	key := fmt.Sprintf(KeyOrderStatus, "s1", "o1")
	assert.Equal(t, TTLStatusCache, mr.TTL(key))

	got, ok := c.Order(ctx, "s1", "o1")
	require.True(t, ok)
	assert.Equal(t, 4, got.Index)
	assert.Equal(t, 2, got.ProductAmount["latte"])

	require.NoError(t, c.InvalidateOrder(ctx, "s1", "o1"))
	assert.False(t, mr.Exists(key))
	require.NoError(t, c.InvalidateOrder(ctx, "s1", "o1"))

	mr.Set(key, "not json")
	_, ok = c.Order(ctx, "s1", "o1")
	assert.False(t, ok)
}

func TestCacheSubmitted(t *testing.T) {
	mr, rdb := setup(t)
	ctx := context.Background()
	c := NewCache(rdb)

	c.RememberSubmit(ctx, "k1", orders.Order{ShopID: "s1", ID: "o9"})
	assert.Equal(t, TTLIdempotency, mr.TTL(fmt.Sprintf(KeyIdemOrderSubmit, "s1", "k1")))

	got, ok := c.Submitted(ctx, "s1", "k1")
	require.True(t, ok)
	assert.Equal(t, "o9", got.ID)

	_, ok = c.Submitted(ctx, "s2", "k1")
	assert.False(t, ok)
}

func TestNilCacheIsSafe(t *testing.T) {
	var c *Cache
	ctx := context.Background()
	c.SetOrder(ctx, orders.Order{ID: "o1"})
	c.RememberSubmit(ctx, "k", orders.Order{ID: "o1"})
	_, ok := c.Order(ctx, "s", "o1")
	assert.False(t, ok)
	_, ok = c.Submitted(ctx, "s", "k")
	assert.False(t, ok)
	assert.NoError(t, c.InvalidateOrder(ctx, "s", "o1"))
}

func TestBusDeliversPerShop(t *testing.T) {
	_, rdb := setup(t)
	bus := NewBus(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed, err := bus.Subscribe(ctx, "s1")
	require.NoError(t, err)

	bus.Publish(ctx, []orders.Change{
		{ID: "c1", ShopID: "s2", Collection: orders.CollOrders, DocID: "other"},
		{ID: "c2", ShopID: "s1", Collection: orders.CollOrders, Type: orders.ChangeAdded, DocID: "o1", MutationID: "m1"},
		{ID: "c3", ShopID: "s1", Collection: orders.CollStocks, Type: orders.ChangeAdded, DocID: "u1", MutationID: "m1"},
	})

	select {
	case b := <-feed:
		assert.Equal(t, "s1", b.ShopID)
		assert.Equal(t, "m1", b.MutationID)
		require.Len(t, b.Changes, 2)
		assert.Equal(t, "o1", b.Changes[0].DocID)
		assert.Equal(t, "u1", b.Changes[1].DocID)
	case <-time.After(2 * time.Second):
		t.Fatal("no batch")
	}
	select {
	case b := <-feed:
		t.Fatalf("unexpected second batch %+v", b)
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-feed:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBusClosesFeedWhenRedisGoesAway(t *testing.T) {
	mr, rdb := setup(t)
	bus := NewBus(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed, err := bus.Subscribe(ctx, "s1")
	require.NoError(t, err)
	mr.Close()

	select {
	case _, ok := <-feed:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("feed still open after redis went away")
	}
}
