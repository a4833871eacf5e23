package orders

import (
	"context"
	"time"
)

// Snapshot is the full current state of one shop's day.
type Snapshot struct {
	Shop     Shop      `json:"shop"`
	Products []Product `json:"products"`
	Orders   []Order   `json:"orders"`
	Stocks   []Stock   `json:"stocks"`
	Day      time.Time `json:"day"`
	TakenAt  time.Time `json:"taken_at"`
}

type OrderView struct {
	Order  Order   `json:"order"`
	Stocks []Stock `json:"stocks"`
}

// StatusView is what the customer status page shows.
type StatusView struct {
	ShopID       string      `json:"shop_id"`
	OrderID      string      `json:"order_id"`
	Index        int         `json:"index"`
	Status       OrderStatus `json:"status"`
	CompleteAt   time.Time   `json:"complete_at"`
	DelaySeconds int         `json:"delay_seconds"`
	WaitSeconds  int         `json:"wait_seconds"`
}

func NewStatusView(o Order, now time.Time) StatusView {
	return StatusView{
		ShopID:       o.ShopID,
		OrderID:      o.ID,
		Index:        o.Index,
		Status:       o.Status,
		CompleteAt:   o.CompleteAt,
		DelaySeconds: o.DelaySeconds,
		WaitSeconds:  WaitSeconds(o, now),
	}
}

func (s *Service) GetShop(ctx context.Context, shopID string) (Shop, error) {
	var out Shop
	err := s.read(ctx, "orders.GetShop", "shop", shopID, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.GetShop(ctx, shopID)
		return err
	})
	return out, err
}

func (s *Service) ListProducts(ctx context.Context, shopID string) ([]Product, error) {
	var out []Product
	err := s.read(ctx, "orders.ListProducts", "shop", shopID, func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetShop(ctx, shopID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListProducts(ctx, shopID)
		return err
	})
	return out, err
}

func (s *Service) GetOrder(ctx context.Context, shopID, orderID string) (OrderView, error) {
	var out OrderView
	err := s.read(ctx, "orders.GetOrder", "order", orderID, func(ctx context.Context, tx Tx) error {
		o, err := tx.GetOrder(ctx, shopID, orderID)
		if err != nil {
			return err
		}
		stocks, err := tx.ListOrderStocks(ctx, shopID, orderID)
		if err != nil {
			return err
		}
		SortStocks(stocks)
		out = OrderView{Order: o, Stocks: stocks}
		return nil
	})
	return out, err
}

func (s *Service) OrderStatus(ctx context.Context, shopID, orderID string) (StatusView, error) {
	v, err := s.GetOrder(ctx, shopID, orderID)
	if err != nil {
		return StatusView{}, err
	}
	return NewStatusView(v.Order, s.now()), nil
}

// ListQueue returns today's unreceived orders in work order.
func (s *Service) ListQueue(ctx context.Context, shopID string) ([]Order, error) {
	var all []Order
	err := s.read(ctx, "orders.ListQueue", "shop", shopID, func(ctx context.Context, tx Tx) error {
		var err error
		all, err = tx.ListOrders(ctx, shopID, s.today(s.now()))
		return err
	})
	if err != nil {
		return nil, err
	}
	return Queue(all), nil
}

func (s *Service) Snapshot(ctx context.Context, shopID string) (Snapshot, error) {
	now := s.now()
	snap := Snapshot{Day: s.today(now), TakenAt: now}
	err := s.read(ctx, "orders.Snapshot", "shop", shopID, func(ctx context.Context, tx Tx) error {
		var err error
		if snap.Shop, err = tx.GetShop(ctx, shopID); err != nil {
			return err
		}
		if snap.Products, err = tx.ListProducts(ctx, shopID); err != nil {
			return err
		}
		if snap.Orders, err = tx.ListOrders(ctx, shopID, snap.Day); err != nil {
			return err
		}
		snap.Stocks, err = tx.ListStocks(ctx, shopID, snap.Day)
		return err
	})
	return snap, err
}
