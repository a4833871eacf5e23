package orders

import (
	"slices"
	"time"
)

type Shop struct {
	ID               string               `json:"id" yaml:"id"`
	Name             string               `json:"name" yaml:"name"`
	Status           ShopStatus           `json:"status" yaml:"status"`
	EmergencyMessage string               `json:"emergency_message" yaml:"emergency_message"`
	PublicMessage    string               `json:"public_message" yaml:"public_message"`
	LastActiveAt     time.Time            `json:"last_active_at" yaml:"-"`
	Baristas         map[int]BaristaState `json:"baristas" yaml:"baristas"`
	UpdatedAt        time.Time            `json:"updated_at" yaml:"-"`
}

// ActiveBaristas counts roster entries currently marked active.
func (s Shop) ActiveBaristas() int {
	n := 0
	for _, st := range s.Baristas {
		if st == BaristaActive {
			n++
		}
	}
	return n
}

type Product struct {
	ShopID       string    `json:"shop_id" yaml:"-"`
	ID           string    `json:"id" yaml:"id"`
	Name         string    `json:"name" yaml:"name"`
	ShortName    string    `json:"short_name" yaml:"short_name"`
	Price        int       `json:"price" yaml:"price"`
	SpanSeconds  int       `json:"span_seconds" yaml:"span_seconds"`
	ThumbnailURL string    `json:"thumbnail_url" yaml:"thumbnail_url"`
	Stock        int       `json:"stock" yaml:"stock"` // legacy aggregate counter, reset nightly elsewhere
	CreatedAt    time.Time `json:"created_at" yaml:"-"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"-"`
}

type Order struct {
	ShopID           string         `json:"shop_id"`
	ID               string         `json:"id"`
	Index            int            `json:"index"`
	ProductAmount    map[string]int `json:"product_amount"`
	CreatedAt        time.Time      `json:"created_at"`
	CompleteAt       time.Time      `json:"complete_at"`
	DelaySeconds     int            `json:"delay_seconds"`
	Status           OrderStatus    `json:"status"`
	StockIDs         []string       `json:"stock_ids"`
	ReceivedProducts []string       `json:"received_products"`
	TotalPrice       int            `json:"total_price"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// ProductIDs returns the order's product ids in sorted order.
func (o Order) ProductIDs() []string {
	ids := make([]string, 0, len(o.ProductAmount))
	for id := range o.ProductAmount {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (o Order) LineReceived(productID string) bool {
	_, found := slices.BinarySearch(o.ReceivedProducts, productID)
	return found
}

func (o Order) Units() int {
	n := 0
	for _, q := range o.ProductAmount {
		n += q
	}
	return n
}

type Stock struct {
	ShopID         string      `json:"shop_id"`
	ID             string      `json:"id"`
	OrderID        string      `json:"order_id"`
	ProductID      string      `json:"product_id"`
	Seq            int         `json:"seq"`
	Status         StockStatus `json:"status"`
	BaristaID      int         `json:"barista_id"`
	CreatedAt      time.Time   `json:"created_at"`
	StartWorkingAt time.Time   `json:"start_working_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// OrderInfo is the per-shop counter document backing index allocation.
type OrderInfo struct {
	ShopID         string    `json:"shop_id"`
	LastOrderIndex int       `json:"last_order_index"`
	ResetAt        time.Time `json:"reset_at"`
}
