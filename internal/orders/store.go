package orders

import (
	"context"
	"time"
)

// Store is the document store contract: all-or-nothing transactions over
// the shop partition. Implementations report store-level aborts as
// ErrTxConflict and infrastructure failures as ErrStoreUnavailable.
type Store interface {
	RunTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of document operations available inside a transaction.
// Point reads lock the document until the transaction ends.
type Tx interface {
	GetShop(ctx context.Context, shopID string) (Shop, error)
	InsertShop(ctx context.Context, s Shop) error
	UpdateShop(ctx context.Context, s Shop) error

	GetProduct(ctx context.Context, shopID, productID string) (Product, error)
	ListProducts(ctx context.Context, shopID string) ([]Product, error)
	InsertProduct(ctx context.Context, p Product) error
	UpdateProduct(ctx context.Context, p Product) error

	// GetOrderInfo returns a zero OrderInfo (not ErrNotFound) for a shop
	// that has never allocated an index.
	GetOrderInfo(ctx context.Context, shopID string) (OrderInfo, error)
	PutOrderInfo(ctx context.Context, info OrderInfo) error

	GetOrder(ctx context.Context, shopID, orderID string) (Order, error)
	InsertOrder(ctx context.Context, o Order) error
	UpdateOrder(ctx context.Context, o Order) error
	DeleteOrder(ctx context.Context, shopID, orderID string) error
	// ListOrders returns orders created at or after since, oldest first.
	ListOrders(ctx context.Context, shopID string, since time.Time) ([]Order, error)
	// ListOpenOrders is ListOrders restricted to unreceived orders, locked.
	ListOpenOrders(ctx context.Context, shopID string, since time.Time) ([]Order, error)

	GetStock(ctx context.Context, shopID, stockID string) (Stock, error)
	InsertStocks(ctx context.Context, stocks []Stock) error
	UpdateStock(ctx context.Context, s Stock) error
	ListStocks(ctx context.Context, shopID string, since time.Time) ([]Stock, error)
	ListOrderStocks(ctx context.Context, shopID, orderID string) ([]Stock, error)
	// LockOrderStocks is ListOrderStocks with every unit locked in seq
	// order. Locks go shop, then stocks, then order.
	LockOrderStocks(ctx context.Context, shopID, orderID string) ([]Stock, error)
	DeleteOrderStocks(ctx context.Context, shopID, orderID string) error
}
