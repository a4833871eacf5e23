package redisx

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/ariefcatur/go-realtime-shop/internal/orders"
	"github.com/redis/go-redis/v9"
)

// Bus is the live change feed: one pub/sub channel per shop, one message
// per committed transaction.
type Bus struct {
	rdb *redis.Client
}

func NewBus(rdb *redis.Client) *Bus { return &Bus{rdb: rdb} }

var _ orders.Publisher = (*Bus)(nil)

func (b *Bus) PublishBatch(ctx context.Context, batch orders.ChangeBatch) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, fmt.Sprintf(ChannelFeed, batch.ShopID), payload).Err()
}

// Publish pushes committed changes straight to subscribers, bypassing the
// Kafka log. Failures are logged; subscribers recover by resnapshotting.
func (b *Bus) Publish(ctx context.Context, changes []orders.Change) {
	for _, batch := range orders.Batches(changes) {
		if err := b.PublishBatch(ctx, batch); err != nil {
			log.Printf("feed publish %s (%d changes): %v", batch.ShopID, len(batch.Changes), err)
		}
	}
}

// Subscribe streams the change batches of one shop. The returned channel is
// closed when ctx ends or the connection drops; the stream is not
// resumable, so the caller must take a fresh snapshot after resubscribing.
func (b *Bus) Subscribe(ctx context.Context, shopID string) (<-chan orders.ChangeBatch, error) {
	ps := b.rdb.Subscribe(ctx, fmt.Sprintf(ChannelFeed, shopID))
	// wait for the subscription confirmation so nothing published after
	// Subscribe returns is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	out := make(chan orders.ChangeBatch, 64)
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		_ = ps.Close()
	}()
	go func() {
		defer close(out)
		defer close(stop)
		for {
			msg, err := ps.Receive(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("feed %s dropped: %v", shopID, err)
				}
				return
			}
			m, ok := msg.(*redis.Message)
			if !ok {
				continue
			}
			var batch orders.ChangeBatch
			if err := json.Unmarshal([]byte(m.Payload), &batch); err != nil {
				log.Printf("feed %s: bad batch: %v", shopID, err)
				continue
			}
			select {
			case out <- batch:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
