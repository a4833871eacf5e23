package orders

import (
	"cmp"
	"fmt"
	"slices"
	"time"
)

type CompletionMode string

const (
	// CompleteParallel assumes every unit is made at the same time.
	CompleteParallel CompletionMode = "parallel"
	// CompleteSerial spreads the summed spans over the available lanes.
	CompleteSerial CompletionMode = "serial"
)

// CompletionPolicy fixes an order's promised completion time at creation.
type CompletionPolicy struct {
	Mode CompletionMode
	// Lanes is the number of units produced concurrently under
	// CompleteSerial. Zero means the shop's active barista count.
	Lanes int
}

func ParseCompletionMode(s string) (CompletionMode, error) {
	switch m := CompletionMode(s); m {
	case CompleteParallel, CompleteSerial:
		return m, nil
	case "":
		return CompleteSerial, nil
	}
	return "", fmt.Errorf("%w: unknown completion policy %q", ErrValidation, s)
}

// CompleteAt returns created plus the production time of units, where
// units holds one span (seconds) per stock unit.
func (p CompletionPolicy) CompleteAt(created time.Time, units []int, shop Shop) time.Time {
	if len(units) == 0 {
		return created
	}
	var secs int
	switch p.Mode {
	case CompleteParallel:
		secs = slices.Max(units)
	default:
		lanes := p.Lanes
		if lanes <= 0 {
			lanes = shop.ActiveBaristas()
		}
		lanes = max(lanes, 1)
		sum := 0
		for _, s := range units {
			sum += s
		}
		secs = (sum + lanes - 1) / lanes
	}
	return created.Add(time.Duration(secs) * time.Second)
}

// IsFulfilled is true iff every unit is completed. An order without units
// is never fulfilled.
func IsFulfilled(stocks []Stock) bool {
	if len(stocks) == 0 {
		return false
	}
	for _, s := range stocks {
		if s.Status != StockCompleted {
			return false
		}
	}
	return true
}

// LineFulfilled is IsFulfilled restricted to one product.
func LineFulfilled(stocks []Stock, productID string) bool {
	seen := false
	for _, s := range stocks {
		if s.ProductID != productID {
			continue
		}
		seen = true
		if s.Status != StockCompleted {
			return false
		}
	}
	return seen
}

// IsReceived is true iff the order is fulfilled and every product line has
// been handed over.
func IsReceived(o Order, stocks []Stock) bool {
	if !IsFulfilled(stocks) {
		return false
	}
	for id := range o.ProductAmount {
		if !o.LineReceived(id) {
			return false
		}
	}
	return true
}

func DeriveStatus(o Order, stocks []Stock) OrderStatus {
	switch {
	case IsReceived(o, stocks):
		return OrderReceived
	case IsFulfilled(stocks):
		return OrderCompleted
	}
	return OrderIdle
}

// WaitSeconds is the customer-facing estimate: complete_at - now + delay,
// floored at zero.
func WaitSeconds(o Order, now time.Time) int {
	left := int(o.CompleteAt.Sub(now)/time.Second) + o.DelaySeconds
	return max(left, 0)
}

// Queue returns the unreceived orders, fulfilled ones first, then oldest
// first. The input is not modified.
func Queue(all []Order) []Order {
	out := make([]Order, 0, len(all))
	for _, o := range all {
		if o.Status != OrderReceived {
			out = append(out, o)
		}
	}
	slices.SortStableFunc(out, func(a, b Order) int {
		af, bf := a.Status == OrderCompleted, b.Status == OrderCompleted
		if af != bf {
			if af {
				return -1
			}
			return 1
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Index, b.Index)
	})
	return out
}

// DayStart returns local midnight of t in loc.
func DayStart(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}
