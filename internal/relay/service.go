package relay

import (
	"context"
	"encoding/json"
	"fmt"

	kafkax "github.com/ariefcatur/go-realtime-shop/internal/kafka"
	"github.com/ariefcatur/go-realtime-shop/internal/orders"
	"github.com/ariefcatur/go-realtime-shop/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
)

// Service moves committed changes from the Kafka log onto the live feed.
type Service struct {
	Bus         *redisx.Bus
	Cache       *redisx.Cache
	Redis       *redis.Client
	ServiceName string
}

// HandleBatch is installed as the consumer handler.
func (s *Service) HandleBatch(ctx context.Context, m kafkago.Message) error {
	// 1) decode envelope
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventChangesCommitted {
		return nil
	} // ignore

	// 2) dedup via Redis (event_id)
	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	first, err := redisx.Claim(ctx, s.Redis, dkey, redisx.TTLDedup)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}

	// 3) decode payload
	batch, err := kafkax.UnwrapPayload[orders.ChangeBatch](env.Payload)
	if err != nil {
		return err
	}

	// 4) fan out; release the dedup marker so a retry can deliver it
	if err := s.Bus.PublishBatch(ctx, batch); err != nil {
		_ = s.Redis.Del(ctx, dkey).Err()
		return err
	}

	// 5) the customer status cache must not outlive the order's state
	for _, ch := range batch.Changes {
		if ch.Collection != orders.CollOrders {
			continue
		}
		if err := s.Cache.InvalidateOrder(ctx, ch.ShopID, ch.DocID); err != nil {
			return err
		}
	}
	return nil
}
