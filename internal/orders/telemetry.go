package orders

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/ariefcatur/go-realtime-shop/internal/orders"

var tracer trace.Tracer = otel.Tracer(instrumentationName)

type instruments struct {
	submitted   metric.Int64Counter
	transitions metric.Int64Counter
	conflicts   metric.Int64Counter
	retries     metric.Int64Counter
	delayed     metric.Int64Counter
}

func newInstruments() *instruments {
	m := otel.Meter(instrumentationName)
	in := &instruments{}
	// Instrument creation only fails on invalid names; add skips a nil
	// counter.
	in.submitted, _ = m.Int64Counter("shop.orders.submitted")
	in.transitions, _ = m.Int64Counter("shop.stock.transitions")
	in.conflicts, _ = m.Int64Counter("shop.stock.conflicts")
	in.retries, _ = m.Int64Counter("shop.tx.retries")
	in.delayed, _ = m.Int64Counter("shop.orders.delayed")
	return in
}

// A Service not built by NewService has nil instruments; every helper is a
// no-op then.
func add(ctx context.Context, c metric.Int64Counter, n int64, attrs ...attribute.KeyValue) {
	if c == nil {
		return
	}
	c.Add(ctx, n, metric.WithAttributes(attrs...))
}

func (in *instruments) orderSubmitted(ctx context.Context, shopID string, units int) {
	if in == nil {
		return
	}
	add(ctx, in.submitted, 1, attribute.String("shop_id", shopID), attribute.Int("units", units))
}

func (in *instruments) transition(ctx context.Context, to StockStatus) {
	if in == nil {
		return
	}
	add(ctx, in.transitions, 1, attribute.String("to", string(to)))
}

func (in *instruments) conflict(ctx context.Context, op string) {
	if in == nil {
		return
	}
	add(ctx, in.conflicts, 1, attribute.String("op", op))
}

func (in *instruments) retry(ctx context.Context, op string) {
	if in == nil {
		return
	}
	add(ctx, in.retries, 1, attribute.String("op", op))
}

func (in *instruments) ordersDelayed(ctx context.Context, shopID string, n int) {
	if in == nil {
		return
	}
	add(ctx, in.delayed, int64(n), attribute.String("shop_id", shopID))
}
