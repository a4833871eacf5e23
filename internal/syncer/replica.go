// Package syncer keeps a client-side replica of one shop's day in step with
// the server: a full snapshot followed by the live change feed.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ariefcatur/go-realtime-shop/internal/orders"
	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
)

// Source supplies snapshots and the live feed of one shop.
type Source interface {
	Snapshot(ctx context.Context) (orders.Snapshot, error)
	Subscribe(ctx context.Context) (<-chan orders.ChangeBatch, error)
}

var errFeedClosed = errors.New("change feed closed")

// State is an immutable view of the replica.
type State struct {
	Shop     orders.Shop
	Products Collection[orders.Product]
	Orders   Collection[orders.Order]
	Stocks   Collection[orders.Stock]
	Day      time.Time
	SyncedAt time.Time
}

func emptyState() State {
	return State{
		Products: NewCollection(func(p orders.Product) string { return p.ID }, func(p orders.Product) time.Time { return p.UpdatedAt }),
		Orders:   NewCollection(func(o orders.Order) string { return o.ID }, func(o orders.Order) time.Time { return o.UpdatedAt }),
		Stocks:   NewCollection(func(s orders.Stock) string { return s.ID }, func(s orders.Stock) time.Time { return s.UpdatedAt }),
	}
}

// Queue returns the unreceived orders in work order.
func (s State) Queue() []orders.Order { return orders.Queue(s.Orders.Items()) }

// OrderStocks returns the units of one order by seq.
func (s State) OrderStocks(orderID string) []orders.Stock {
	out := s.Stocks.Filter(func(st orders.Stock) bool { return st.OrderID == orderID }).Items()
	orders.SortStocks(out)
	return out
}

type Replica struct {
	src     Source
	pending *PendingWrites

	// RetryMin and RetryMax bound the resubscribe backoff.
	RetryMin time.Duration
	RetryMax time.Duration
	// OnUpdate, when set, is called with the new state after every snapshot
	// load and every applied change.
	OnUpdate func(State)

	mu    sync.RWMutex
	state State
}

func NewReplica(src Source) *Replica {
	return &Replica{
		src:      src,
		pending:  NewPendingWrites(),
		RetryMin: 200 * time.Millisecond,
		RetryMax: 10 * time.Second,
		state:    emptyState(),
	}
}

func (r *Replica) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *Replica) Pending() *PendingWrites { return r.pending }

// Run keeps the replica live until ctx ends. Every (re)subscription is
// followed by a full snapshot; the feed is never assumed continuous across
// a drop.
func (r *Replica) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.RetryMin
	b.MaxInterval = r.RetryMax

	for {
		synced, err := r.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if synced {
			b.Reset()
		}
		wait := b.NextBackOff()
		log.Printf("syncer: %v; resubscribing in %s", err, wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// session subscribes, loads a snapshot and applies the feed until it drops.
// synced reports whether the snapshot was loaded.
func (r *Replica) session(ctx context.Context) (synced bool, err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// subscribe first so nothing committed between snapshot and feed is lost
	feed, err := r.src.Subscribe(ctx)
	if err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}
	snap, err := r.src.Snapshot(ctx)
	if err != nil {
		return false, fmt.Errorf("snapshot: %w", err)
	}
	r.Load(snap)

	for b := range feed {
		r.Apply(b)
	}
	return true, errFeedClosed
}

// Load replaces the replica with a snapshot.
func (r *Replica) Load(snap orders.Snapshot) {
	st := emptyState()
	st.Shop = snap.Shop
	st.Products = NewCollection(st.Products.key, st.Products.stamp, snap.Products...)
	st.Orders = NewCollection(st.Orders.key, st.Orders.stamp, snap.Orders...)
	st.Stocks = NewCollection(st.Stocks.key, st.Stocks.stamp, snap.Stocks...)
	st.Day = snap.Day
	st.SyncedAt = snap.TakenAt

	r.mu.Lock()
	r.state = st
	r.mu.Unlock()
	r.notify(st)
}

// Apply reconciles one committed batch and notifies once. Batches of a
// pending local write are held until the write returns. Stale documents and
// documents of another shop or day are dropped.
func (r *Replica) Apply(b orders.ChangeBatch) bool {
	if r.pending.Hold(b) {
		return false
	}
	return r.apply(b)
}

func (r *Replica) apply(batches ...orders.ChangeBatch) bool {
	r.mu.Lock()
	st, changed := r.state, false
	for _, b := range batches {
		for _, ch := range b.Changes {
			var ok bool
			st, ok = reconcile(st, ch, false)
			changed = changed || ok
		}
	}
	if changed {
		r.state = st
	}
	r.mu.Unlock()
	if changed {
		r.notify(st)
	}
	return changed
}

// Mutate applies optimistic changes locally, then runs write with a fresh
// mutation id attached to ctx. Feed batches carrying that id are held while
// write runs and reconciled once it returns, so server-side effects of the
// write land on top of the optimistic state. On failure the touched
// documents are restored first.
func (r *Replica) Mutate(ctx context.Context, optimistic []orders.Change, write func(ctx context.Context) error) error {
	id := uuid.NewString()
	r.pending.Add(id)

	r.mu.Lock()
	undo := make([]orders.Change, 0, len(optimistic))
	st := r.state
	for _, ch := range optimistic {
		undo = append(undo, inverse(st, ch))
		st, _ = reconcile(st, ch, true)
	}
	r.state = st
	r.mu.Unlock()
	r.notify(st)

	err := write(orders.WithMutationID(ctx, id))
	held := r.pending.Done(id)
	if err != nil {
		r.mu.Lock()
		st = r.state
		for i := len(undo) - 1; i >= 0; i-- {
			st, _ = reconcile(st, undo[i], true)
		}
		r.state = st
		r.mu.Unlock()
		r.notify(st)
	}
	// a write can fail after its commit (lost ack); what the server
	// published still wins
	r.apply(held...)
	return err
}

func (r *Replica) notify(st State) {
	if r.OnUpdate != nil {
		r.OnUpdate(st)
	}
}

// Put builds an added/modified change for doc.
func Put(coll orders.Collection, id string, doc any, at time.Time) orders.Change {
	b, _ := json.Marshal(doc)
	return orders.Change{Collection: coll, Type: orders.ChangeModified, DocID: id, Data: b, UpdatedAt: at}
}

// Delete builds a removed change.
func Delete(coll orders.Collection, id string) orders.Change {
	return orders.Change{Collection: coll, Type: orders.ChangeRemoved, DocID: id}
}

// inverse returns the change that undoes ch against st.
func inverse(st State, ch orders.Change) orders.Change {
	var (
		doc   any
		found bool
	)
	switch ch.Collection {
	case orders.CollShops:
		doc, found = st.Shop, st.Shop.ID == ch.DocID
	case orders.CollProducts:
		doc, found = st.Products.Get(ch.DocID)
	case orders.CollOrders:
		doc, found = st.Orders.Get(ch.DocID)
	case orders.CollStocks:
		doc, found = st.Stocks.Get(ch.DocID)
	}
	if !found {
		return Delete(ch.Collection, ch.DocID)
	}
	return Put(ch.Collection, ch.DocID, doc, time.Time{})
}

func reconcile(st State, ch orders.Change, force bool) (State, bool) {
	if ch.ShopID != "" && st.Shop.ID != "" && ch.ShopID != st.Shop.ID {
		return st, false
	}
	switch ch.Collection {
	case orders.CollShops:
		if ch.Type == orders.ChangeRemoved {
			return st, false
		}
		var s orders.Shop
		if err := ch.Decode(&s); err != nil {
			return st, false
		}
		if !force && s.UpdatedAt.Before(st.Shop.UpdatedAt) {
			return st, false
		}
		st.Shop = s
		return st, true

	case orders.CollProducts:
		var ok bool
		st.Products, ok = reconcileColl(st.Products, ch, force, func(orders.Product) bool { return true })
		return st, ok

	case orders.CollOrders:
		var ok bool
		st.Orders, ok = reconcileColl(st.Orders, ch, force, func(o orders.Order) bool { return !o.CreatedAt.Before(st.Day) })
		return st, ok

	case orders.CollStocks:
		var ok bool
		st.Stocks, ok = reconcileColl(st.Stocks, ch, force, func(s orders.Stock) bool { return !s.CreatedAt.Before(st.Day) })
		return st, ok
	}
	return st, false
}

func reconcileColl[T any](c Collection[T], ch orders.Change, force bool, today func(T) bool) (Collection[T], bool) {
	if ch.Type == orders.ChangeRemoved {
		return c.Remove(ch.DocID)
	}
	var doc T
	if err := json.Unmarshal(ch.Data, &doc); err != nil {
		log.Printf("syncer: bad %s %s: %v", ch.Collection, ch.DocID, err)
		return c, false
	}
	if !force && !today(doc) {
		return c, false
	}
	return c.put(doc, force)
}
