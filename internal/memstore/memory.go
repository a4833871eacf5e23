// Package memstore is an in-process document store for development and
// tests. Transactions are serialized by one lock and run against a copy of
// the data that replaces the live state only on success.
package memstore

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/ariefcatur/go-realtime-shop/internal/orders"
)

type key struct{ shop, id string }

type state struct {
	shops    map[string]orders.Shop
	products map[key]orders.Product
	info     map[string]orders.OrderInfo
	orders   map[key]orders.Order
	stocks   map[key]orders.Stock
}

func (s *state) clone() *state {
	return &state{
		shops:    maps.Clone(s.shops),
		products: maps.Clone(s.products),
		info:     maps.Clone(s.info),
		orders:   maps.Clone(s.orders),
		stocks:   maps.Clone(s.stocks),
	}
}

type Store struct {
	mu sync.Mutex
	st *state
}

func New() *Store {
	return &Store{st: &state{
		shops:    make(map[string]orders.Shop),
		products: make(map[key]orders.Product),
		info:     make(map[string]orders.OrderInfo),
		orders:   make(map[key]orders.Order),
		stocks:   make(map[key]orders.Stock),
	}}
}

var _ orders.Store = (*Store)(nil)

func (m *Store) RunTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	work := m.st.clone()
	if err := fn(ctx, &tx{st: work}); err != nil {
		return err
	}
	m.st = work
	return nil
}

type tx struct{ st *state }

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", orders.ErrNotFound, kind, id)
}

func exists(kind, id string) error {
	return fmt.Errorf("%w: %s %s", orders.ErrAlreadyExists, kind, id)
}

func cloneShop(s orders.Shop) orders.Shop {
	s.Baristas = maps.Clone(s.Baristas)
	return s
}

func cloneOrder(o orders.Order) orders.Order {
	o.ProductAmount = maps.Clone(o.ProductAmount)
	o.StockIDs = slices.Clone(o.StockIDs)
	o.ReceivedProducts = slices.Clone(o.ReceivedProducts)
	return o
}

func (t *tx) GetShop(_ context.Context, shopID string) (orders.Shop, error) {
	s, ok := t.st.shops[shopID]
	if !ok {
		return orders.Shop{}, notFound("shop", shopID)
	}
	return cloneShop(s), nil
}

func (t *tx) InsertShop(_ context.Context, s orders.Shop) error {
	if _, ok := t.st.shops[s.ID]; ok {
		return exists("shop", s.ID)
	}
	t.st.shops[s.ID] = cloneShop(s)
	return nil
}

func (t *tx) UpdateShop(_ context.Context, s orders.Shop) error {
	if _, ok := t.st.shops[s.ID]; !ok {
		return notFound("shop", s.ID)
	}
	t.st.shops[s.ID] = cloneShop(s)
	return nil
}

func (t *tx) GetProduct(_ context.Context, shopID, productID string) (orders.Product, error) {
	p, ok := t.st.products[key{shopID, productID}]
	if !ok {
		return orders.Product{}, notFound("product", productID)
	}
	return p, nil
}

func (t *tx) ListProducts(_ context.Context, shopID string) ([]orders.Product, error) {
	out := make([]orders.Product, 0)
	for k, p := range t.st.products {
		if k.shop == shopID {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b orders.Product) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (t *tx) InsertProduct(_ context.Context, p orders.Product) error {
	k := key{p.ShopID, p.ID}
	if _, ok := t.st.products[k]; ok {
		return exists("product", p.ID)
	}
	t.st.products[k] = p
	return nil
}

func (t *tx) UpdateProduct(_ context.Context, p orders.Product) error {
	k := key{p.ShopID, p.ID}
	if _, ok := t.st.products[k]; !ok {
		return notFound("product", p.ID)
	}
	t.st.products[k] = p
	return nil
}

func (t *tx) GetOrderInfo(_ context.Context, shopID string) (orders.OrderInfo, error) {
	info, ok := t.st.info[shopID]
	if !ok {
		return orders.OrderInfo{ShopID: shopID}, nil
	}
	return info, nil
}

func (t *tx) PutOrderInfo(_ context.Context, info orders.OrderInfo) error {
	t.st.info[info.ShopID] = info
	return nil
}

func (t *tx) GetOrder(_ context.Context, shopID, orderID string) (orders.Order, error) {
	o, ok := t.st.orders[key{shopID, orderID}]
	if !ok {
		return orders.Order{}, notFound("order", orderID)
	}
	return cloneOrder(o), nil
}

func (t *tx) InsertOrder(_ context.Context, o orders.Order) error {
	k := key{o.ShopID, o.ID}
	if _, ok := t.st.orders[k]; ok {
		return exists("order", o.ID)
	}
	t.st.orders[k] = cloneOrder(o)
	return nil
}

func (t *tx) UpdateOrder(_ context.Context, o orders.Order) error {
	k := key{o.ShopID, o.ID}
	if _, ok := t.st.orders[k]; !ok {
		return notFound("order", o.ID)
	}
	t.st.orders[k] = cloneOrder(o)
	return nil
}

func (t *tx) DeleteOrder(_ context.Context, shopID, orderID string) error {
	k := key{shopID, orderID}
	if _, ok := t.st.orders[k]; !ok {
		return notFound("order", orderID)
	}
	delete(t.st.orders, k)
	return nil
}

func (t *tx) listOrders(shopID string, since time.Time, keep func(orders.Order) bool) []orders.Order {
	out := make([]orders.Order, 0)
	for k, o := range t.st.orders {
		if k.shop != shopID || o.CreatedAt.Before(since) || !keep(o) {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	slices.SortFunc(out, func(a, b orders.Order) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return a.Index - b.Index
	})
	return out
}

func (t *tx) ListOrders(_ context.Context, shopID string, since time.Time) ([]orders.Order, error) {
	return t.listOrders(shopID, since, func(orders.Order) bool { return true }), nil
}

func (t *tx) ListOpenOrders(_ context.Context, shopID string, since time.Time) ([]orders.Order, error) {
	return t.listOrders(shopID, since, func(o orders.Order) bool { return o.Status != orders.OrderReceived }), nil
}

func (t *tx) GetStock(_ context.Context, shopID, stockID string) (orders.Stock, error) {
	s, ok := t.st.stocks[key{shopID, stockID}]
	if !ok {
		return orders.Stock{}, notFound("stock", stockID)
	}
	return s, nil
}

func (t *tx) InsertStocks(_ context.Context, stocks []orders.Stock) error {
	for _, s := range stocks {
		if _, ok := t.st.stocks[key{s.ShopID, s.ID}]; ok {
			return exists("stock", s.ID)
		}
	}
	for _, s := range stocks {
		t.st.stocks[key{s.ShopID, s.ID}] = s
	}
	return nil
}

func (t *tx) UpdateStock(_ context.Context, s orders.Stock) error {
	k := key{s.ShopID, s.ID}
	if _, ok := t.st.stocks[k]; !ok {
		return notFound("stock", s.ID)
	}
	t.st.stocks[k] = s
	return nil
}

func (t *tx) listStocks(keep func(key, orders.Stock) bool) []orders.Stock {
	out := make([]orders.Stock, 0)
	for k, s := range t.st.stocks {
		if keep(k, s) {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b orders.Stock) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if c := cmp.Compare(a.OrderID, b.OrderID); c != 0 {
			return c
		}
		return a.Seq - b.Seq
	})
	return out
}

func (t *tx) ListStocks(_ context.Context, shopID string, since time.Time) ([]orders.Stock, error) {
	return t.listStocks(func(k key, s orders.Stock) bool {
		return k.shop == shopID && !s.CreatedAt.Before(since)
	}), nil
}

func (t *tx) ListOrderStocks(_ context.Context, shopID, orderID string) ([]orders.Stock, error) {
	return t.listStocks(func(k key, s orders.Stock) bool {
		return k.shop == shopID && s.OrderID == orderID
	}), nil
}

// LockOrderStocks is ListOrderStocks; the store lock already serializes
// transactions.
func (t *tx) LockOrderStocks(ctx context.Context, shopID, orderID string) ([]orders.Stock, error) {
	return t.ListOrderStocks(ctx, shopID, orderID)
}

func (t *tx) DeleteOrderStocks(_ context.Context, shopID, orderID string) error {
	for k, s := range t.st.stocks {
		if k.shop == shopID && s.OrderID == orderID {
			delete(t.st.stocks, k)
		}
	}
	return nil
}
