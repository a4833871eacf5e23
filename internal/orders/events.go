package orders

import (
	"context"
	"encoding/json"
	"slices"
	"time"

	"github.com/google/uuid"
)

const (
	EventChangesCommitted = "ChangesCommitted"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // one of the consts above
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "shop-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // shop_id
	Payload       json.RawMessage `json:"payload"`
}

type Collection string

const (
	CollShops    Collection = "shops"
	CollProducts Collection = "products"
	CollOrders   Collection = "orders"
	CollStocks   Collection = "stocks"
)

type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// Change is one committed document mutation as seen by subscribers.
type Change struct {
	ID         string          `json:"id"`
	ShopID     string          `json:"shop_id"`
	Collection Collection      `json:"collection"`
	Type       ChangeType      `json:"type"`
	DocID      string          `json:"doc_id"`
	Data       json.RawMessage `json:"data,omitempty"`
	MutationID string          `json:"mutation_id,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Decode unmarshals the change's document into out.
func (c Change) Decode(out any) error {
	return json.Unmarshal(c.Data, out)
}

// ChangeBatch carries every change of one committed transaction.
// Subscribers apply a batch as a unit, so an order never shows up without
// its stock units.
type ChangeBatch struct {
	ID         string   `json:"id"`
	ShopID     string   `json:"shop_id"`
	MutationID string   `json:"mutation_id,omitempty"`
	Changes    []Change `json:"changes"`
}

// Batches groups committed changes per shop, keeping their order.
func Batches(changes []Change) []ChangeBatch {
	var out []ChangeBatch
	for _, ch := range changes {
		i := slices.IndexFunc(out, func(b ChangeBatch) bool { return b.ShopID == ch.ShopID })
		if i < 0 {
			out = append(out, ChangeBatch{ID: uuid.NewString(), ShopID: ch.ShopID, MutationID: ch.MutationID})
			i = len(out) - 1
		}
		out[i].Changes = append(out[i].Changes, ch)
	}
	return out
}

// Publisher receives changes after their transaction has committed.
type Publisher interface {
	Publish(ctx context.Context, changes []Change)
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, []Change) {}

// changeSet accumulates the changes of one transaction attempt.
type changeSet struct {
	shopID     string
	mutationID string
	changes    []Change
}

func newChangeSet(ctx context.Context, shopID string) *changeSet {
	return &changeSet{shopID: shopID, mutationID: MutationID(ctx)}
}

func (cs *changeSet) reset() { cs.changes = cs.changes[:0] }

func (cs *changeSet) add(coll Collection, typ ChangeType, docID string, doc any, at time.Time) {
	var data json.RawMessage
	if doc != nil {
		b, err := json.Marshal(doc)
		if err == nil {
			data = b
		}
	}
	cs.changes = append(cs.changes, Change{
		ID:         uuid.NewString(),
		ShopID:     cs.shopID,
		Collection: coll,
		Type:       typ,
		DocID:      docID,
		Data:       data,
		MutationID: cs.mutationID,
		UpdatedAt:  at,
	})
}

func (cs *changeSet) shop(typ ChangeType, s Shop) {
	cs.add(CollShops, typ, s.ID, s, s.UpdatedAt)
}

func (cs *changeSet) product(typ ChangeType, p Product) {
	cs.add(CollProducts, typ, p.ID, p, p.UpdatedAt)
}

func (cs *changeSet) order(typ ChangeType, o Order) {
	if typ == ChangeRemoved {
		cs.add(CollOrders, typ, o.ID, nil, o.UpdatedAt)
		return
	}
	cs.add(CollOrders, typ, o.ID, o, o.UpdatedAt)
}

func (cs *changeSet) stock(typ ChangeType, s Stock) {
	if typ == ChangeRemoved {
		cs.add(CollStocks, typ, s.ID, nil, s.UpdatedAt)
		return
	}
	cs.add(CollStocks, typ, s.ID, s, s.UpdatedAt)
}
