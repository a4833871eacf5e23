package redisx

import "time"

const (
	// Idempotency submit order: idem:order:submit:{shop_id}:{key} -> order json
	KeyIdemOrderSubmit = "idem:order:submit:%s:%s"

	// Customer status page cache: order_status:{shop_id}:{order_id} -> order json
	KeyOrderStatus = "order_status:%s:%s"

	// Dedup event processing: dedup:{service}:{id} (id = event_id)
	KeyDedup = "dedup:%s:%s"

	// Live change feed channel per shop: feed:{shop_id}
	ChannelFeed = "feed:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
