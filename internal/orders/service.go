package orders

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Service implements the order fulfillment operations on top of a Store.
// Every mutation runs in one store transaction and its changes are
// published only after commit.
type Service struct {
	Store     Store
	Publisher Publisher
	Policy    CompletionPolicy
	Location  *time.Location // shop-day boundary
	Retry     RetryConfig
	Now       func() time.Time

	metrics *instruments
}

func NewService(store Store, pub Publisher) *Service {
	if pub == nil {
		pub = NopPublisher{}
	}
	return &Service{
		Store:     store,
		Publisher: pub,
		Policy:    CompletionPolicy{Mode: CompleteSerial},
		Location:  time.Local,
		Retry:     DefaultRetryConfig(),
		Now:       time.Now,
		metrics:   newInstruments(),
	}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *Service) today(now time.Time) time.Time {
	return DayStart(now, s.Location)
}

type mutateFunc func(ctx context.Context, tx Tx, cs *changeSet) error

// mutate runs fn transactionally (with transient retries), wraps failures
// in an OpError and publishes the committed changes.
func (s *Service) mutate(ctx context.Context, op, kind, id, shopID string, fn mutateFunc) error {
	ctx, span := tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("shop_id", shopID),
		attribute.String(kind+"_id", id),
	))
	defer span.End()

	cs := newChangeSet(ctx, shopID)
	err := s.runTx(ctx, op, func(ctx context.Context, tx Tx) error {
		cs.reset()
		return fn(ctx, tx, cs)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return opErr(op, kind, id, err)
	}
	if len(cs.changes) > 0 && s.Publisher != nil {
		s.Publisher.Publish(ctx, slices.Clone(cs.changes))
	}
	return nil
}

// read runs fn in a transaction that publishes nothing.
func (s *Service) read(ctx context.Context, op, kind, id string, fn func(ctx context.Context, tx Tx) error) error {
	ctx, span := tracer.Start(ctx, op)
	defer span.End()
	if err := s.runTx(ctx, op, fn); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return opErr(op, kind, id, err)
	}
	return nil
}

// SubmitOrder allocates the next index and fans the requested quantities
// out into stock units, all in a single transaction.
func (s *Service) SubmitOrder(ctx context.Context, shopID string, amounts map[string]int) (Order, error) {
	var created Order
	err := s.mutate(ctx, "orders.SubmitOrder", "shop", shopID, shopID, func(ctx context.Context, tx Tx, cs *changeSet) error {
		shop, err := tx.GetShop(ctx, shopID)
		if err != nil {
			return err
		}
		if shop.Status != ShopActive {
			return transitionf("shop %s is not taking orders (%s)", shopID, shop.Status)
		}
		list, err := tx.ListProducts(ctx, shopID)
		if err != nil {
			return err
		}
		products := make(map[string]Product, len(list))
		for _, p := range list {
			products[p.ID] = p
		}

		now := s.now()
		o, stocks, err := ExpandOrder(shop, amounts, products, now, s.Policy)
		if err != nil {
			return err
		}
		if o.Index, err = s.allocate(ctx, tx, shopID, now); err != nil {
			return err
		}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}
		if err := tx.InsertStocks(ctx, stocks); err != nil {
			return err
		}
		cs.order(ChangeAdded, o)
		for _, st := range stocks {
			cs.stock(ChangeAdded, st)
		}
		created = o
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrRetryExhausted) {
			return Order{}, fmt.Errorf("%w: %w", ErrAllocationFailed, err)
		}
		return Order{}, err
	}
	s.metrics.orderSubmitted(ctx, shopID, created.Units())
	log.Printf("order %s submitted: shop=%s index=%d units=%d", created.ID, shopID, created.Index, created.Units())
	return created, nil
}

// ClaimStock assigns an idle unit to barista. Exactly one of several
// concurrent claimers wins; the others get ErrConflict.
func (s *Service) ClaimStock(ctx context.Context, shopID, stockID string, barista int) (Stock, error) {
	const op = "orders.ClaimStock"
	var out Stock
	err := s.mutate(ctx, op, "stock", stockID, shopID, func(ctx context.Context, tx Tx, cs *changeSet) error {
		shop, err := tx.GetShop(ctx, shopID)
		if err != nil {
			return err
		}
		if len(shop.Baristas) > 0 && shop.Baristas[barista] != BaristaActive {
			return validationf("barista %d is not active in shop %s", barista, shopID)
		}
		st, err := tx.GetStock(ctx, shopID, stockID)
		if err != nil {
			return err
		}
		now := s.now()
		next, changed, err := Claim(st, barista, now)
		if errors.Is(err, ErrConflict) {
			s.metrics.conflict(ctx, op)
			return fmt.Errorf("%w: stock %s is held by barista %d", ErrConflict, st.ID, st.BaristaID)
		}
		if err != nil {
			return err
		}
		out = next
		if !changed {
			return nil
		}
		if err := s.saveStock(ctx, tx, cs, next); err != nil {
			return err
		}
		return s.syncOrderStatus(ctx, tx, cs, shopID, next.OrderID, now)
	})
	return out, err
}

// CompleteStock marks a unit completed. Completing a completed unit is a
// no-op; idle units may be completed directly.
func (s *Service) CompleteStock(ctx context.Context, shopID, stockID string) (Stock, error) {
	var out Stock
	err := s.mutate(ctx, "orders.CompleteStock", "stock", stockID, shopID, func(ctx context.Context, tx Tx, cs *changeSet) error {
		st, err := tx.GetStock(ctx, shopID, stockID)
		if err != nil {
			return err
		}
		now := s.now()
		next, changed := Complete(st, now)
		out = next
		if !changed {
			return nil
		}
		if err := s.saveStock(ctx, tx, cs, next); err != nil {
			return err
		}
		return s.syncOrderStatus(ctx, tx, cs, shopID, next.OrderID, now)
	})
	return out, err
}

// RevertStock undoes the last step of a unit (cashier correction).
func (s *Service) RevertStock(ctx context.Context, shopID, stockID string) (Stock, error) {
	var out Stock
	err := s.mutate(ctx, "orders.RevertStock", "stock", stockID, shopID, func(ctx context.Context, tx Tx, cs *changeSet) error {
		st, err := tx.GetStock(ctx, shopID, stockID)
		if err != nil {
			return err
		}
		o, err := tx.GetOrder(ctx, shopID, st.OrderID)
		if err != nil {
			return err
		}
		if o.LineReceived(st.ProductID) {
			return transitionf("product %s of order %s was already received", st.ProductID, o.ID)
		}
		now := s.now()
		next, err := Revert(st, now)
		if err != nil {
			return err
		}
		out = next
		if err := s.saveStock(ctx, tx, cs, next); err != nil {
			return err
		}
		return s.syncOrderStatus(ctx, tx, cs, shopID, next.OrderID, now)
	})
	return out, err
}

// CompleteOrder is the cashier bulk action completing every unit.
func (s *Service) CompleteOrder(ctx context.Context, shopID, orderID string) (Order, error) {
	var out Order
	err := s.mutate(ctx, "orders.CompleteOrder", "order", orderID, shopID, func(ctx context.Context, tx Tx, cs *changeSet) error {
		stocks, err := tx.LockOrderStocks(ctx, shopID, orderID)
		if err != nil {
			return err
		}
		o, err := tx.GetOrder(ctx, shopID, orderID)
		if err != nil {
			return err
		}
		now := s.now()
		for i, st := range stocks {
			next, changed := Complete(st, now)
			if !changed {
				continue
			}
			if err := s.saveStock(ctx, tx, cs, next); err != nil {
				return err
			}
			stocks[i] = next
		}
		out, err = s.storeStatus(ctx, tx, cs, o, stocks, now)
		return err
	})
	return out, err
}

// ReceiveOrder hands every line of a fulfilled order to the customer.
func (s *Service) ReceiveOrder(ctx context.Context, shopID, orderID string) (Order, error) {
	return s.receive(ctx, "orders.ReceiveOrder", shopID, orderID, func(o *Order, stocks []Stock) error {
		if !IsFulfilled(stocks) {
			return transitionf("order %s is not fulfilled", o.ID)
		}
		o.ReceivedProducts = o.ProductIDs()
		return nil
	})
}

// ReceiveOrderLine hands over one product line whose units are completed.
func (s *Service) ReceiveOrderLine(ctx context.Context, shopID, orderID, productID string) (Order, error) {
	return s.receive(ctx, "orders.ReceiveOrderLine", shopID, orderID, func(o *Order, stocks []Stock) error {
		if _, ok := o.ProductAmount[productID]; !ok {
			return fmt.Errorf("%w: product %s is not part of order %s", ErrNotFound, productID, o.ID)
		}
		if !LineFulfilled(stocks, productID) {
			return transitionf("product %s of order %s is not fulfilled", productID, o.ID)
		}
		i, found := slices.BinarySearch(o.ReceivedProducts, productID)
		if !found {
			o.ReceivedProducts = slices.Insert(slices.Clone(o.ReceivedProducts), i, productID)
		}
		return nil
	})
}

func (s *Service) UnreceiveOrder(ctx context.Context, shopID, orderID string) (Order, error) {
	return s.receive(ctx, "orders.UnreceiveOrder", shopID, orderID, func(o *Order, _ []Stock) error {
		o.ReceivedProducts = []string{}
		return nil
	})
}

func (s *Service) receive(ctx context.Context, op, shopID, orderID string, apply func(o *Order, stocks []Stock) error) (Order, error) {
	var out Order
	err := s.mutate(ctx, op, "order", orderID, shopID, func(ctx context.Context, tx Tx, cs *changeSet) error {
		o, err := tx.GetOrder(ctx, shopID, orderID)
		if err != nil {
			return err
		}
		stocks, err := tx.ListOrderStocks(ctx, shopID, orderID)
		if err != nil {
			return err
		}
		before := slices.Clone(o.ReceivedProducts)
		if err := apply(&o, stocks); err != nil {
			return err
		}
		now := s.now()
		if !slices.Equal(before, o.ReceivedProducts) {
			o.Status = DeriveStatus(o, stocks)
			o.UpdatedAt = now
			if err := tx.UpdateOrder(ctx, o); err != nil {
				return err
			}
			cs.order(ChangeModified, o)
			out = o
			return nil
		}
		out, err = s.storeStatus(ctx, tx, cs, o, stocks, now)
		return err
	})
	return out, err
}

// DeleteOrder cancels an order together with all of its units.
func (s *Service) DeleteOrder(ctx context.Context, shopID, orderID string) error {
	return s.mutate(ctx, "orders.DeleteOrder", "order", orderID, shopID, func(ctx context.Context, tx Tx, cs *changeSet) error {
		stocks, err := tx.LockOrderStocks(ctx, shopID, orderID)
		if err != nil {
			return err
		}
		o, err := tx.GetOrder(ctx, shopID, orderID)
		if err != nil {
			return err
		}
		if err := tx.DeleteOrderStocks(ctx, shopID, orderID); err != nil {
			return err
		}
		if err := tx.DeleteOrder(ctx, shopID, orderID); err != nil {
			return err
		}
		now := s.now()
		for _, st := range stocks {
			st.UpdatedAt = now
			cs.stock(ChangeRemoved, st)
		}
		o.UpdatedAt = now
		cs.order(ChangeRemoved, o)
		return nil
	})
}

func (s *Service) saveStock(ctx context.Context, tx Tx, cs *changeSet, st Stock) error {
	if err := tx.UpdateStock(ctx, st); err != nil {
		return err
	}
	s.metrics.transition(ctx, st.Status)
	cs.stock(ChangeModified, st)
	return nil
}

// syncOrderStatus recomputes the composite status of an order after one of
// its units changed.
func (s *Service) syncOrderStatus(ctx context.Context, tx Tx, cs *changeSet, shopID, orderID string, now time.Time) error {
	o, err := tx.GetOrder(ctx, shopID, orderID)
	if err != nil {
		return err
	}
	stocks, err := tx.ListOrderStocks(ctx, shopID, orderID)
	if err != nil {
		return err
	}
	_, err = s.storeStatus(ctx, tx, cs, o, stocks, now)
	return err
}

func (s *Service) storeStatus(ctx context.Context, tx Tx, cs *changeSet, o Order, stocks []Stock, now time.Time) (Order, error) {
	status := DeriveStatus(o, stocks)
	if status == o.Status {
		return o, nil
	}
	o.Status = status
	o.UpdatedAt = now
	if err := tx.UpdateOrder(ctx, o); err != nil {
		return o, err
	}
	cs.order(ChangeModified, o)
	return o, nil
}
