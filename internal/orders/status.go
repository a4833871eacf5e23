package orders

// StockStatus is the production state of a single stock unit.
type StockStatus string

const (
	StockIdle      StockStatus = "idle"
	StockWorking   StockStatus = "working"
	StockCompleted StockStatus = "completed"
)

// idle -> completed is the cashier "mark all complete" override.
// completed -> working and working -> idle are cashier reverts; a unit
// completed without a barista reverts straight to idle.
var validNext = map[StockStatus]map[StockStatus]bool{
	StockIdle:      {StockWorking: true, StockCompleted: true},
	StockWorking:   {StockCompleted: true, StockIdle: true},
	StockCompleted: {StockWorking: true, StockIdle: true},
}

func CanTransition(from, to StockStatus) bool {
	return validNext[from][to]
}

func (s StockStatus) Valid() bool {
	_, ok := validNext[s]
	return ok
}

// OrderStatus is the composite status derived from an order's stock units.
type OrderStatus string

const (
	OrderIdle      OrderStatus = "idle"
	OrderCompleted OrderStatus = "completed"
	OrderReceived  OrderStatus = "received"
)

type ShopStatus string

const (
	ShopActive        ShopStatus = "active"
	ShopPauseOrdering ShopStatus = "pause_ordering"
	ShopInactive      ShopStatus = "inactive"
)

func (s ShopStatus) Valid() bool {
	switch s {
	case ShopActive, ShopPauseOrdering, ShopInactive:
		return true
	}
	return false
}

type BaristaState string

const (
	BaristaActive   BaristaState = "active"
	BaristaInactive BaristaState = "inactive"
)
