package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-realtime-shop/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store maps the shop document collections onto tables. Point reads take
// row locks (FOR UPDATE) so read-modify-write sequences are serialized per
// document; aborts surface as orders.ErrTxConflict.
type Store struct{ DB *pgxpool.Pool }

var _ orders.Store = (*Store)(nil)

func (s *Store) RunTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return mapError(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &docTx{tx: tx}); err != nil {
		return mapError(err)
	}
	return mapError(tx.Commit(ctx))
}

// mapError translates driver errors into the store error taxonomy.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, orders.ErrNotFound) || errors.Is(err, orders.ErrConflict) ||
		errors.Is(err, orders.ErrValidation) || errors.Is(err, orders.ErrInvalidTransition) ||
		errors.Is(err, orders.ErrStoreUnavailable) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %s", orders.ErrTxConflict, pgErr.Message)
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", orders.ErrAlreadyExists, pgErr.Detail)
		case "57P01", "57P02", "57P03", "53300": // shutdown, too many connections
			return fmt.Errorf("%w: %s", orders.ErrStoreUnavailable, pgErr.Message)
		}
		return err
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %v", orders.ErrStoreUnavailable, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return fmt.Errorf("%w: %v", orders.ErrStoreUnavailable, err)
	}
	return err
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", orders.ErrNotFound, kind, id)
	}
	return err
}

func ts(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func fromTS(t pgtype.Timestamptz) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}

func affected(ct pgconn.CommandTag, kind, id string) error {
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s %s", orders.ErrNotFound, kind, id)
	}
	return nil
}

type docTx struct{ tx pgx.Tx }

const shopCols = `id, name, status, emergency_message, public_message, last_active_at, baristas, updated_at`

func scanShop(row pgx.Row) (orders.Shop, error) {
	var (
		s          orders.Shop
		lastActive pgtype.Timestamptz
	)
	err := row.Scan(&s.ID, &s.Name, &s.Status, &s.EmergencyMessage, &s.PublicMessage, &lastActive, &s.Baristas, &s.UpdatedAt)
	s.LastActiveAt = fromTS(lastActive)
	if s.Baristas == nil {
		s.Baristas = map[int]orders.BaristaState{}
	}
	return s, err
}

func (t *docTx) GetShop(ctx context.Context, shopID string) (orders.Shop, error) {
	s, err := scanShop(t.tx.QueryRow(ctx, `SELECT `+shopCols+` FROM shops WHERE id=$1 FOR UPDATE`, shopID))
	return s, notFound(err, "shop", shopID)
}

func (t *docTx) InsertShop(ctx context.Context, s orders.Shop) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO shops(`+shopCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		s.ID, s.Name, s.Status, s.EmergencyMessage, s.PublicMessage, ts(s.LastActiveAt), s.Baristas, s.UpdatedAt)
	return err
}

func (t *docTx) UpdateShop(ctx context.Context, s orders.Shop) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE shops SET name=$2, status=$3, emergency_message=$4, public_message=$5,
		       last_active_at=$6, baristas=$7, updated_at=$8
		WHERE id=$1`,
		s.ID, s.Name, s.Status, s.EmergencyMessage, s.PublicMessage, ts(s.LastActiveAt), s.Baristas, s.UpdatedAt)
	if err != nil {
		return err
	}
	return affected(ct, "shop", s.ID)
}

const productCols = `shop_id, id, name, short_name, price, span_seconds, thumbnail_url, stock, created_at, updated_at`

func scanProduct(row pgx.Row) (orders.Product, error) {
	var p orders.Product
	err := row.Scan(&p.ShopID, &p.ID, &p.Name, &p.ShortName, &p.Price, &p.SpanSeconds, &p.ThumbnailURL, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (t *docTx) GetProduct(ctx context.Context, shopID, productID string) (orders.Product, error) {
	p, err := scanProduct(t.tx.QueryRow(ctx,
		`SELECT `+productCols+` FROM products WHERE shop_id=$1 AND id=$2 FOR UPDATE`, shopID, productID))
	return p, notFound(err, "product", productID)
}

func (t *docTx) ListProducts(ctx context.Context, shopID string) ([]orders.Product, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+productCols+` FROM products WHERE shop_id=$1 ORDER BY id`, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]orders.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *docTx) InsertProduct(ctx context.Context, p orders.Product) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO products(`+productCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		p.ShopID, p.ID, p.Name, p.ShortName, p.Price, p.SpanSeconds, p.ThumbnailURL, p.Stock, p.CreatedAt, p.UpdatedAt)
	return err
}

func (t *docTx) UpdateProduct(ctx context.Context, p orders.Product) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE products SET name=$3, short_name=$4, price=$5, span_seconds=$6,
		       thumbnail_url=$7, stock=$8, updated_at=$9
		WHERE shop_id=$1 AND id=$2`,
		p.ShopID, p.ID, p.Name, p.ShortName, p.Price, p.SpanSeconds, p.ThumbnailURL, p.Stock, p.UpdatedAt)
	if err != nil {
		return err
	}
	return affected(ct, "product", p.ID)
}

// GetOrderInfo makes sure the counter row exists before locking it, so two
// first-ever allocations queue on the same row instead of both reading
// nothing.
func (t *docTx) GetOrderInfo(ctx context.Context, shopID string) (orders.OrderInfo, error) {
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO order_info(shop_id, last_order_index, reset_at)
		VALUES ($1, 0, 'epoch')
		ON CONFLICT (shop_id) DO NOTHING`, shopID); err != nil {
		return orders.OrderInfo{}, err
	}
	info := orders.OrderInfo{ShopID: shopID}
	err := t.tx.QueryRow(ctx,
		`SELECT last_order_index, reset_at FROM order_info WHERE shop_id=$1 FOR UPDATE`, shopID).
		Scan(&info.LastOrderIndex, &info.ResetAt)
	return info, notFound(err, "order info", shopID)
}

func (t *docTx) PutOrderInfo(ctx context.Context, info orders.OrderInfo) error {
	ct, err := t.tx.Exec(ctx,
		`UPDATE order_info SET last_order_index=$2, reset_at=$3 WHERE shop_id=$1`,
		info.ShopID, info.LastOrderIndex, info.ResetAt)
	if err != nil {
		return err
	}
	return affected(ct, "order info", info.ShopID)
}

const orderCols = `shop_id, id, idx, product_amount, created_at, complete_at, delay_seconds, status,
	stock_ids, received_products, total_price, updated_at`

func scanOrder(row pgx.Row) (orders.Order, error) {
	var o orders.Order
	err := row.Scan(&o.ShopID, &o.ID, &o.Index, &o.ProductAmount, &o.CreatedAt, &o.CompleteAt, &o.DelaySeconds,
		&o.Status, &o.StockIDs, &o.ReceivedProducts, &o.TotalPrice, &o.UpdatedAt)
	if o.ReceivedProducts == nil {
		o.ReceivedProducts = []string{}
	}
	return o, err
}

func (t *docTx) GetOrder(ctx context.Context, shopID, orderID string) (orders.Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx,
		`SELECT `+orderCols+` FROM orders WHERE shop_id=$1 AND id=$2 FOR UPDATE`, shopID, orderID))
	return o, notFound(err, "order", orderID)
}

func (t *docTx) InsertOrder(ctx context.Context, o orders.Order) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders(`+orderCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		o.ShopID, o.ID, o.Index, o.ProductAmount, o.CreatedAt, o.CompleteAt, o.DelaySeconds,
		o.Status, o.StockIDs, o.ReceivedProducts, o.TotalPrice, o.UpdatedAt)
	return err
}

func (t *docTx) UpdateOrder(ctx context.Context, o orders.Order) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE orders SET delay_seconds=$3, status=$4, received_products=$5, updated_at=$6
		WHERE shop_id=$1 AND id=$2`,
		o.ShopID, o.ID, o.DelaySeconds, o.Status, o.ReceivedProducts, o.UpdatedAt)
	if err != nil {
		return err
	}
	return affected(ct, "order", o.ID)
}

func (t *docTx) DeleteOrder(ctx context.Context, shopID, orderID string) error {
	ct, err := t.tx.Exec(ctx, `DELETE FROM orders WHERE shop_id=$1 AND id=$2`, shopID, orderID)
	if err != nil {
		return err
	}
	return affected(ct, "order", orderID)
}

func (t *docTx) queryOrders(ctx context.Context, sql string, args ...any) ([]orders.Order, error) {
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]orders.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (t *docTx) ListOrders(ctx context.Context, shopID string, since time.Time) ([]orders.Order, error) {
	return t.queryOrders(ctx, `SELECT `+orderCols+` FROM orders
		WHERE shop_id=$1 AND created_at >= $2 ORDER BY created_at, idx`, shopID, since)
}

func (t *docTx) ListOpenOrders(ctx context.Context, shopID string, since time.Time) ([]orders.Order, error) {
	return t.queryOrders(ctx, `SELECT `+orderCols+` FROM orders
		WHERE shop_id=$1 AND created_at >= $2 AND status <> $3
		ORDER BY created_at, idx FOR UPDATE`, shopID, since, orders.OrderReceived)
}

const stockCols = `shop_id, id, order_id, product_id, seq, status, barista_id, created_at, start_working_at, updated_at`

func scanStock(row pgx.Row) (orders.Stock, error) {
	var (
		s     orders.Stock
		start pgtype.Timestamptz
	)
	err := row.Scan(&s.ShopID, &s.ID, &s.OrderID, &s.ProductID, &s.Seq, &s.Status, &s.BaristaID, &s.CreatedAt, &start, &s.UpdatedAt)
	s.StartWorkingAt = fromTS(start)
	return s, err
}

func (t *docTx) GetStock(ctx context.Context, shopID, stockID string) (orders.Stock, error) {
	s, err := scanStock(t.tx.QueryRow(ctx,
		`SELECT `+stockCols+` FROM stocks WHERE shop_id=$1 AND id=$2 FOR UPDATE`, shopID, stockID))
	return s, notFound(err, "stock", stockID)
}

// InsertStocks writes every unit of an order in one round trip.
func (t *docTx) InsertStocks(ctx context.Context, stocks []orders.Stock) error {
	batch := &pgx.Batch{}
	for _, s := range stocks {
		batch.Queue(`INSERT INTO stocks(`+stockCols+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			s.ShopID, s.ID, s.OrderID, s.ProductID, s.Seq, s.Status, s.BaristaID, s.CreatedAt, ts(s.StartWorkingAt), s.UpdatedAt)
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func (t *docTx) UpdateStock(ctx context.Context, s orders.Stock) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE stocks SET status=$3, barista_id=$4, start_working_at=$5, updated_at=$6
		WHERE shop_id=$1 AND id=$2`,
		s.ShopID, s.ID, s.Status, s.BaristaID, ts(s.StartWorkingAt), s.UpdatedAt)
	if err != nil {
		return err
	}
	return affected(ct, "stock", s.ID)
}

func (t *docTx) queryStocks(ctx context.Context, sql string, args ...any) ([]orders.Stock, error) {
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]orders.Stock, 0)
	for rows.Next() {
		s, err := scanStock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (t *docTx) ListStocks(ctx context.Context, shopID string, since time.Time) ([]orders.Stock, error) {
	return t.queryStocks(ctx, `SELECT `+stockCols+` FROM stocks
		WHERE shop_id=$1 AND created_at >= $2 ORDER BY created_at, order_id, seq`, shopID, since)
}

func (t *docTx) ListOrderStocks(ctx context.Context, shopID, orderID string) ([]orders.Stock, error) {
	return t.queryStocks(ctx, `SELECT `+stockCols+` FROM stocks
		WHERE shop_id=$1 AND order_id=$2 ORDER BY seq`, shopID, orderID)
}

func (t *docTx) LockOrderStocks(ctx context.Context, shopID, orderID string) ([]orders.Stock, error) {
	return t.queryStocks(ctx, `SELECT `+stockCols+` FROM stocks
		WHERE shop_id=$1 AND order_id=$2 ORDER BY seq FOR UPDATE`, shopID, orderID)
}

func (t *docTx) DeleteOrderStocks(ctx context.Context, shopID, orderID string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM stocks WHERE shop_id=$1 AND order_id=$2`, shopID, orderID)
	return err
}
