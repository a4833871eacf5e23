package orders_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ariefcatur/go-realtime-shop/internal/memstore"
	"github.com/ariefcatur/go-realtime-shop/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type feed struct {
	mu      sync.Mutex
	changes []orders.Change
}

func (f *feed) Publish(_ context.Context, changes []orders.Change) {
	f.mu.Lock()
	f.changes = append(f.changes, changes...)
	f.mu.Unlock()
}

func (f *feed) all() []orders.Change {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.changes)
}

// flakyStore aborts the first n transactions like a serialization failure.
type flakyStore struct {
	orders.Store
	fails atomic.Int32
	err   error
}

func (s *flakyStore) RunTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	if s.fails.Add(-1) >= 0 {
		return s.err
	}
	return s.Store.RunTx(ctx, fn)
}

type env struct {
	svc   *orders.Service
	clock *clock
	feed  *feed
	store orders.Store
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWithStore(t, memstore.New())
}

func newEnvWithStore(t *testing.T, store orders.Store) *env {
	t.Helper()
	c := &clock{now: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)}
	f := &feed{}
	svc := orders.NewService(store, f)
	svc.Location = time.UTC
	svc.Now = c.Now
	svc.Retry = orders.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	svc.Policy = orders.CompletionPolicy{Mode: orders.CompleteParallel}

	ctx := context.Background()
	_, err := svc.CreateShop(ctx, orders.Shop{ID: "s1", Name: "Kopi"})
	require.NoError(t, err)
	_, err = svc.AddProduct(ctx, orders.Product{ShopID: "s1", ID: "P", Name: "Latte", Price: 300, SpanSeconds: 60})
	require.NoError(t, err)
	_, err = svc.AddProduct(ctx, orders.Product{ShopID: "s1", ID: "Q", Name: "Tea", Price: 100, SpanSeconds: 30})
	require.NoError(t, err)
	return &env{svc: svc, clock: c, feed: f, store: store}
}

func (e *env) stocks(t *testing.T, orderID string) []orders.Stock {
	t.Helper()
	v, err := e.svc.GetOrder(context.Background(), "s1", orderID)
	require.NoError(t, err)
	return v.Stocks
}

func TestSubmitFansOutUnits(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	o, err := e.svc.SubmitOrder(ctx, "s1", map[string]int{"P": 2, "Q": 3})
	require.NoError(t, err)
	assert.Equal(t, 1, o.Index)
	assert.Equal(t, 900, o.TotalPrice)

	v, err := e.svc.GetOrder(ctx, "s1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"P": 2, "Q": 3}, orders.CountUnits(v.Stocks))
	for _, s := range v.Stocks {
		assert.Equal(t, orders.StockIdle, s.Status)
	}

	var added int
	for _, ch := range e.feed.all() {
		if ch.Type == orders.ChangeAdded && (ch.Collection == orders.CollOrders || ch.Collection == orders.CollStocks) {
			added++
		}
	}
	assert.Equal(t, 6, added)
}

func TestSubmitRejectsBadInput(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.SubmitOrder(ctx, "s1", map[string]int{"P": -1})
	assert.ErrorIs(t, err, orders.ErrValidation)
	_, err = e.svc.SubmitOrder(ctx, "s1", map[string]int{"nope": 1})
	assert.ErrorIs(t, err, orders.ErrNotFound)
	_, err = e.svc.SubmitOrder(ctx, "missing", map[string]int{"P": 1})
	assert.ErrorIs(t, err, orders.ErrNotFound)

	var oe *orders.OpError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, "orders.SubmitOrder", oe.Op)

	// nothing was allocated by the failed submissions
	o, err := e.svc.SubmitOrder(ctx, "s1", map[string]int{"P": 1})
	require.NoError(t, err)
	assert.Equal(t, 1, o.Index)
}

func TestConcurrentSubmitsGetContiguousIndices(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	const n = 40
	idx := make([]int, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o, err := e.svc.SubmitOrder(ctx, "s1", map[string]int{"P": 1})
			assert.NoError(t, err)
			idx[i] = o.Index
		}()
	}
	wg.Wait()

	slices.Sort(idx)
	for i, v := range idx {
		assert.Equal(t, i+1, v)
	}
}

func TestIndexResetsOnNewDay(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	for range 3 {
		_, err := e.svc.SubmitOrder(ctx, "s1", map[string]int{"P": 1})
		require.NoError(t, err)
	}
	e.clock.Advance(24 * time.Hour)

	o, err := e.svc.SubmitOrder(ctx, "s1", map[string]int{"P": 1})
	require.NoError(t, err)
	assert.Equal(t, 1, o.Index)

	next, err := e.svc.AllocateIndex(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, next)
}

func TestFulfillmentScenario(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	o, err := e.svc.SubmitOrder(ctx, "s1", map[string]int{"P": 2})
	require.NoError(t, err)
	units := e.stocks(t, o.ID)
	require.Len(t, units, 2)

	st, err := e.svc.ClaimStock(ctx, "s1", units[0].ID, 7)
	require.NoError(t, err)
	assert.Equal(t, orders.StockWorking, st.Status)
	assert.Equal(t, 7, st.BaristaID)

	_, err = e.svc.ClaimStock(ctx, "s1", units[0].ID, 9)
	assert.ErrorIs(t, err, orders.ErrConflict)
	assert.NotErrorIs(t, err, orders.ErrTxConflict)

	_, err = e.svc.ReceiveOrder(ctx, "s1", o.ID)
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)

	_, err = e.svc.CompleteStock(ctx, "s1", units[0].ID)
	require.NoError(t, err)
	done, err := e.svc.CompleteOrder(ctx, "s1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.OrderCompleted, done.Status)
	assert.True(t, orders.IsFulfilled(e.stocks(t, o.ID)))

	got, err := e.svc.ReceiveOrder(ctx, "s1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.OrderReceived, got.Status)

	again, err := e.svc.ReceiveOrder(ctx, "s1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, got.UpdatedAt, again.UpdatedAt)

	q, err := e.svc.ListQueue(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, q)

	units = e.stocks(t, o.ID)
	assert.Equal(t, 7, units[0].BaristaID)
	assert.Zero(t, units[1].BaristaID)
}

func TestCompleteStockTwiceIsNoop(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o, err := e.svc.SubmitOrder(ctx, "s1", map[string]int{"P": 1})
	require.NoError(t, err)
	id := o.StockIDs[0]

	first, err := e.svc.CompleteStock(ctx, "s1", id)
	require.NoError(t, err)
	published := len(e.feed.all())

	e.clock.Advance(time.Minute)
	second, err := e.svc.CompleteStock(ctx, "s1", id)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, e.feed.all(), published)
}

func TestClaimRaceHasOneWinner(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o, err := e.svc.SubmitOrder(ctx, "s1", map[string]int{"P": 1})
	require.NoError(t, err)
	id := o.StockIDs[0]

	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	for b := 1; b <= 8; b++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.svc.ClaimStock(ctx, "s1", id, b)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, orders.ErrConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())
	assert.EqualValues(t, 7, conflicts.Load())
}

func TestClaimChecksRoster(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.svc.UpdateShop(ctx, "s1", orders.ShopUpdate{Baristas: map[int]orders.BaristaState{7: orders.BaristaActive, 8: orders.BaristaInactive}})
	require.NoError(t, err)
	o, err := e.svc.SubmitOrder(ctx, "s1", map[string]int{"P": 1})
	require.NoError(t, err)

	_, err = e.svc.ClaimStock(ctx, "s1", o.StockIDs[0], 8)
	assert.ErrorIs(t, err, orders.ErrValidation)
	_, err = e.svc.ClaimStock(ctx, "s1", o.StockIDs[0], 99)
	assert.ErrorIs(t, err, orders.ErrValidation)
	_, err = e.svc.ClaimStock(ctx, "s1", o.StockIDs[0], 7)
	assert.NoError(t, err)
}

func TestRevert(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o, err := e.svc.SubmitOrder(ctx, "s1", map[string]int{"P": 1})
	require.NoError(t, err)
	id := o.StockIDs[0]

	_, err = e.svc.RevertStock(ctx, "s1", id)
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)

	_, err = e.svc.ClaimStock(ctx, "s1", id, 7)
	require.NoError(t, err)
	_, err = e.svc.CompleteStock(ctx, "s1", id)
	require.NoError(t, err)

	v, err := e.svc.GetOrder(ctx, "s1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.OrderCompleted, v.Order.Status)

	st, err := e.svc.RevertStock(ctx, "s1", id)
	require.NoError(t, err)
	assert.Equal(t, orders.StockWorking, st.Status)
	v, err = e.svc.GetOrder(ctx, "s1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.OrderIdle, v.Order.Status)

	_, err = e.svc.CompleteStock(ctx, "s1", id)
	require.NoError(t, err)
	_, err = e.svc.ReceiveOrderLine(ctx, "s1", o.ID, "P")
	require.NoError(t, err)
	_, err = e.svc.RevertStock(ctx, "s1", id)
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)
}

func TestReceiveLines(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o, err := e.svc.SubmitOrder(ctx, "s1", map[string]int{"P": 1, "Q": 1})
	require.NoError(t, err)

	var teaUnit string
	for _, s := range e.stocks(t, o.ID) {
		if s.ProductID == "Q" {
			teaUnit = s.ID
		}
	}
	_, err = e.svc.ReceiveOrderLine(ctx, "s1", o.ID, "Q")
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)
	_, err = e.svc.ReceiveOrderLine(ctx, "s1", o.ID, "R")
	assert.ErrorIs(t, err, orders.ErrNotFound)

	_, err = e.svc.CompleteStock(ctx, "s1", teaUnit)
	require.NoError(t, err)
	got, err := e.svc.ReceiveOrderLine(ctx, "s1", o.ID, "Q")
	require.NoError(t, err)
	assert.Equal(t, []string{"Q"}, got.ReceivedProducts)
	assert.Equal(t, orders.OrderIdle, got.Status)

	_, err = e.svc.CompleteOrder(ctx, "s1", o.ID)
	require.NoError(t, err)
	got, err = e.svc.ReceiveOrderLine(ctx, "s1", o.ID, "P")
	require.NoError(t, err)
	assert.Equal(t, []string{"P", "Q"}, got.ReceivedProducts)
	assert.Equal(t, orders.OrderReceived, got.Status)

	got, err = e.svc.UnreceiveOrder(ctx, "s1", o.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ReceivedProducts)
	assert.Equal(t, orders.OrderCompleted, got.Status)
}

func TestPauseResumeDelaysOpenOrders(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	open, err := e.svc.SubmitOrder(ctx, "s1", map[string]int{"P": 1})
	require.NoError(t, err)
	handed, err := e.svc.SubmitOrder(ctx, "s1", map[string]int{"P": 1})
	require.NoError(t, err)
	_, err = e.svc.CompleteOrder(ctx, "s1", handed.ID)
	require.NoError(t, err)
	_, err = e.svc.ReceiveOrder(ctx, "s1", handed.ID)
	require.NoError(t, err)

	_, err = e.svc.PauseShop(ctx, "s1", "")
	assert.ErrorIs(t, err, orders.ErrValidation)
	shop, err := e.svc.PauseShop(ctx, "s1", "maintenance")
	require.NoError(t, err)
	assert.Equal(t, orders.ShopPauseOrdering, shop.Status)
	_, err = e.svc.PauseShop(ctx, "s1", "again")
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)

	_, err = e.svc.SubmitOrder(ctx, "s1", map[string]int{"P": 1})
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)

	e.clock.Advance(300 * time.Second)
	res, err := e.svc.ResumeShop(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 300, res.DelaySeconds)
	assert.Equal(t, 1, res.Delayed)
	assert.Equal(t, orders.ShopActive, res.Shop.Status)
	assert.Empty(t, res.Shop.EmergencyMessage)

	v, err := e.svc.GetOrder(ctx, "s1", open.ID)
	require.NoError(t, err)
	assert.Equal(t, 300, v.Order.DelaySeconds)
	v, err = e.svc.GetOrder(ctx, "s1", handed.ID)
	require.NoError(t, err)
	assert.Zero(t, v.Order.DelaySeconds)

	after, err := e.svc.SubmitOrder(ctx, "s1", map[string]int{"P": 1})
	require.NoError(t, err)
	assert.Zero(t, after.DelaySeconds)

	// resuming an active shop changes nothing
	res, err = e.svc.ResumeShop(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, res.Delayed)
	v, err = e.svc.GetOrder(ctx, "s1", open.ID)
	require.NoError(t, err)
	assert.Equal(t, 300, v.Order.DelaySeconds)

	status, err := e.svc.OrderStatus(ctx, "s1", open.ID)
	require.NoError(t, err)
	// 60s span, 300s pause, 300s already gone by
	assert.Equal(t, 60, status.WaitSeconds)
}

func TestResumeInactiveShop(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.svc.SetShopStatus(ctx, "s1", orders.ShopInactive)
	require.NoError(t, err)
	_, err = e.svc.ResumeShop(ctx, "s1")
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)
	_, err = e.svc.SetShopStatus(ctx, "s1", orders.ShopPauseOrdering)
	assert.ErrorIs(t, err, orders.ErrValidation)
}

func TestTransientErrorsAreRetried(t *testing.T) {
	store := &flakyStore{Store: memstore.New(), err: orders.ErrTxConflict}
	e := newEnvWithStore(t, store)

	store.fails.Store(2)
	o, err := e.svc.SubmitOrder(context.Background(), "s1", map[string]int{"P": 1})
	require.NoError(t, err)
	assert.Equal(t, 1, o.Index)
}

func TestRetryExhaustion(t *testing.T) {
	store := &flakyStore{Store: memstore.New(), err: orders.ErrTxConflict}
	e := newEnvWithStore(t, store)
	ctx := context.Background()

	store.fails.Store(100)
	_, err := e.svc.SubmitOrder(ctx, "s1", map[string]int{"P": 1})
	assert.ErrorIs(t, err, orders.ErrRetryExhausted)
	assert.ErrorIs(t, err, orders.ErrAllocationFailed)

	_, err = e.svc.AllocateIndex(ctx, "s1")
	assert.ErrorIs(t, err, orders.ErrAllocationFailed)

	_, err = e.svc.ResumeShop(ctx, "s1")
	assert.ErrorIs(t, err, orders.ErrRetryExhausted)

	store.fails.Store(0)
	o, err := e.svc.SubmitOrder(ctx, "s1", map[string]int{"P": 1})
	require.NoError(t, err)
	assert.Equal(t, 1, o.Index)
}

func TestPermanentErrorsAreNotRetried(t *testing.T) {
	store := &flakyStore{Store: memstore.New(), err: orders.ErrTxConflict}
	e := newEnvWithStore(t, store)

	var calls atomic.Int32
	counting := &countingStore{Store: store, calls: &calls}
	e.svc.Store = counting

	_, err := e.svc.SubmitOrder(context.Background(), "s1", map[string]int{"nope": 1})
	assert.ErrorIs(t, err, orders.ErrNotFound)
	assert.EqualValues(t, 1, calls.Load())
}

type countingStore struct {
	orders.Store
	calls *atomic.Int32
}

func (s *countingStore) RunTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	s.calls.Add(1)
	return s.Store.RunTx(ctx, fn)
}

func TestDeleteOrderCascades(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o, err := e.svc.SubmitOrder(ctx, "s1", map[string]int{"P": 2})
	require.NoError(t, err)

	require.NoError(t, e.svc.DeleteOrder(ctx, "s1", o.ID))
	_, err = e.svc.GetOrder(ctx, "s1", o.ID)
	assert.ErrorIs(t, err, orders.ErrNotFound)
	_, err = e.svc.CompleteStock(ctx, "s1", o.StockIDs[0])
	assert.ErrorIs(t, err, orders.ErrNotFound)

	snap, err := e.svc.Snapshot(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, snap.Orders)
	assert.Empty(t, snap.Stocks)

	var removed int
	for _, ch := range e.feed.all() {
		if ch.Type == orders.ChangeRemoved {
			removed++
		}
	}
	assert.Equal(t, 3, removed)
}

func TestSerialPolicyUsesRoster(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.svc.Policy = orders.CompletionPolicy{Mode: orders.CompleteSerial}
	_, err := e.svc.UpdateShop(ctx, "s1", orders.ShopUpdate{Baristas: map[int]orders.BaristaState{1: orders.BaristaActive, 2: orders.BaristaActive}})
	require.NoError(t, err)

	o, err := e.svc.SubmitOrder(ctx, "s1", map[string]int{"P": 3})
	require.NoError(t, err)
	// 3 x 60s over two baristas
	assert.Equal(t, e.clock.Now().Add(90*time.Second), o.CompleteAt)
}

func TestMutationIDTagsChanges(t *testing.T) {
	e := newEnv(t)
	ctx := orders.WithMutationID(context.Background(), "m-1")
	_, err := e.svc.PauseShop(ctx, "s1", "brb")
	require.NoError(t, err)

	all := e.feed.all()
	last := all[len(all)-1]
	assert.Equal(t, orders.CollShops, last.Collection)
	assert.Equal(t, "m-1", last.MutationID)
}

func TestServiceLiteralWithoutConstructor(t *testing.T) {
	ctx := context.Background()
	svc := &orders.Service{Store: memstore.New(), Location: time.UTC}

	_, err := svc.CreateShop(ctx, orders.Shop{ID: "s1", Name: "Kopi"})
	require.NoError(t, err)
	_, err = svc.AddProduct(ctx, orders.Product{ShopID: "s1", ID: "latte", Name: "Latte", Price: 300, SpanSeconds: 60})
	require.NoError(t, err)

	require.NotPanics(t, func() {
		o, err := svc.SubmitOrder(ctx, "s1", map[string]int{"latte": 1})
		require.NoError(t, err)
		_, err = svc.ClaimStock(ctx, "s1", o.StockIDs[0], 1)
		require.NoError(t, err)
		_, err = svc.ClaimStock(ctx, "s1", o.StockIDs[0], 2)
		assert.ErrorIs(t, err, orders.ErrConflict)
	})
}

// lockingStore records the locking reads of each transaction.
type lockingStore struct {
	orders.Store
	mu    sync.Mutex
	locks []string
}

type lockingTx struct {
	orders.Tx
	s *lockingStore
}

func (s *lockingStore) record(what string) {
	s.mu.Lock()
	s.locks = append(s.locks, what)
	s.mu.Unlock()
}

func (s *lockingStore) take() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.locks
	s.locks = nil
	return out
}

func (s *lockingStore) RunTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	return s.Store.RunTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		return fn(ctx, &lockingTx{Tx: tx, s: s})
	})
}

func (t *lockingTx) GetOrder(ctx context.Context, shopID, orderID string) (orders.Order, error) {
	t.s.record("order")
	return t.Tx.GetOrder(ctx, shopID, orderID)
}

func (t *lockingTx) GetStock(ctx context.Context, shopID, stockID string) (orders.Stock, error) {
	t.s.record("stock")
	return t.Tx.GetStock(ctx, shopID, stockID)
}

func (t *lockingTx) LockOrderStocks(ctx context.Context, shopID, orderID string) ([]orders.Stock, error) {
	t.s.record("stocks")
	return t.Tx.LockOrderStocks(ctx, shopID, orderID)
}

func TestStocksAreLockedBeforeTheirOrder(t *testing.T) {
	locking := &lockingStore{Store: memstore.New()}
	e := newEnvWithStore(t, locking)
	ctx := context.Background()

	o, err := e.svc.SubmitOrder(ctx, "s1", map[string]int{"P": 2})
	require.NoError(t, err)
	locking.take()

	_, err = e.svc.CompleteStock(ctx, "s1", o.StockIDs[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"stock", "order"}, locking.take())

	_, err = e.svc.CompleteOrder(ctx, "s1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"stocks", "order"}, locking.take())

	require.NoError(t, e.svc.DeleteOrder(ctx, "s1", o.ID))
	assert.Equal(t, []string{"stocks", "order"}, locking.take())
}
