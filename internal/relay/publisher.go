package relay

import (
	"context"
	"strconv"
	"time"

	kafkax "github.com/ariefcatur/go-realtime-shop/internal/kafka"
	"github.com/ariefcatur/go-realtime-shop/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
)

// Sink is the part of the Kafka producer the publisher needs.
type Sink interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// KafkaPublisher appends committed changes to the shop.changes log, one
// event per transaction, keyed by shop so one shop's events stay in order.
type KafkaPublisher struct {
	Sink    Sink
	Service string
}

var _ orders.Publisher = (*KafkaPublisher)(nil)

func (p *KafkaPublisher) Publish(ctx context.Context, changes []orders.Change) {
	var traceID string
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	for _, batch := range orders.Batches(changes) {
		ev := orders.Envelope{
			EventID:       batch.ID,
			EventType:     orders.EventChangesCommitted,
			EventVersion:  1,
			OccurredAt:    time.Now().UTC(),
			Producer:      p.Service,
			TraceID:       traceID,
			CorrelationID: batch.ShopID,
			Payload:       kafkax.MustMarshal(batch),
		}
		p.Sink.Publish(orders.PartitionKey(batch.ShopID), kafkax.MustMarshal(ev),
			kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventChangesCommitted)},
			kafkago.Header{Key: "x-event-version", Value: []byte("1")},
			kafkago.Header{Key: "x-changes", Value: []byte(strconv.Itoa(len(batch.Changes)))},
		)
	}
}
