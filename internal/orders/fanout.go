package orders

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// ExpandOrder builds an uncommitted order and one idle stock unit per
// requested quantity. Zero quantities are dropped; negative ones and
// unknown products are rejected. Index is left for the allocator.
func ExpandOrder(shop Shop, amounts map[string]int, products map[string]Product, now time.Time, policy CompletionPolicy) (Order, []Stock, error) {
	clean := make(map[string]int, len(amounts))
	for id, q := range amounts {
		switch {
		case q < 0:
			return Order{}, nil, validationf("quantity for product %s must be positive", id)
		case q == 0:
			continue
		}
		if _, ok := products[id]; !ok {
			return Order{}, nil, fmt.Errorf("%w: product %s", ErrNotFound, id)
		}
		clean[id] = q
	}
	if len(clean) == 0 {
		return Order{}, nil, validationf("order has no items")
	}

	o := Order{
		ShopID:           shop.ID,
		ID:               uuid.NewString(),
		ProductAmount:    clean,
		CreatedAt:        now,
		Status:           OrderIdle,
		ReceivedProducts: []string{},
		UpdatedAt:        now,
	}

	ids := o.ProductIDs()
	stocks := make([]Stock, 0, o.Units())
	spans := make([]int, 0, o.Units())
	for _, pid := range ids {
		p := products[pid]
		for range clean[pid] {
			stocks = append(stocks, Stock{
				ShopID:    shop.ID,
				ID:        uuid.NewString(),
				OrderID:   o.ID,
				ProductID: pid,
				Seq:       len(stocks),
				Status:    StockIdle,
				CreatedAt: now,
				UpdatedAt: now,
			})
			spans = append(spans, p.SpanSeconds)
		}
		o.TotalPrice += p.Price * clean[pid]
	}

	o.StockIDs = make([]string, 0, len(stocks))
	for _, s := range stocks {
		o.StockIDs = append(o.StockIDs, s.ID)
	}
	o.CompleteAt = policy.CompleteAt(now, spans, shop)
	return o, stocks, nil
}

// CountUnits tallies stock units per product.
func CountUnits(stocks []Stock) map[string]int {
	out := make(map[string]int)
	for _, s := range stocks {
		out[s.ProductID]++
	}
	return out
}

// SortStocks orders units by their creation sequence.
func SortStocks(stocks []Stock) {
	slices.SortFunc(stocks, func(a, b Stock) int { return a.Seq - b.Seq })
}
