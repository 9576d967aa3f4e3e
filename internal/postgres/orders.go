package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/shopbee/order-service/internal/orders"
)

type OrderRepo struct{ DB DBTX }

const orderColumns = `id, COALESCE(external_id, ''), user_id, status, total_price::text, created_at, updated_at`

// Create inserts the order row and its items; items keep request order
// through their position.
func (r *OrderRepo) Create(ctx context.Context, o *orders.Order) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO orders(tenant_id, id, external_id, user_id, status, total_price, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6::numeric, $7, $8)`,
		o.TenantID, o.ID, o.ExternalID, o.UserID, string(o.Status), o.TotalPrice.String(), o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for i, it := range o.Items {
		batch.Queue(`
			INSERT INTO order_items(tenant_id, order_id, position, product_id, quantity, price)
			VALUES ($1, $2, $3, $4, $5, $6::numeric)`,
			o.TenantID, o.ID, i, it.ProductID, it.Quantity, it.Price.String())
	}
	return sendBatch(ctx, r.DB, batch)
}

func (r *OrderRepo) Get(ctx context.Context, tenantID, orderID string) (*orders.Order, error) {
	return r.getOne(ctx, tenantID,
		`SELECT `+orderColumns+` FROM orders WHERE tenant_id=$1 AND id=$2`, orderID)
}

func (r *OrderRepo) GetForUpdate(ctx context.Context, tenantID, orderID string) (*orders.Order, error) {
	return r.getOne(ctx, tenantID,
		`SELECT `+orderColumns+` FROM orders WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, orderID)
}

func (r *OrderRepo) GetByExternalID(ctx context.Context, tenantID, externalID string) (*orders.Order, error) {
	return r.getOne(ctx, tenantID,
		`SELECT `+orderColumns+` FROM orders WHERE tenant_id=$1 AND external_id=$2`, externalID)
}

func (r *OrderRepo) ListByUser(ctx context.Context, tenantID, userID string, offset, limit int) ([]orders.Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE tenant_id=$1 AND user_id=$2
		ORDER BY created_at DESC, id
		OFFSET $3 LIMIT $4`,
		tenantID, userID, offset, limit)
	if err != nil {
		return nil, err
	}
	var (
		out []orders.Order
		ids []string
	)
	for rows.Next() {
		o, err := scanOrder(rows, tenantID)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, *o)
		ids = append(ids, o.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	items, err := r.items(ctx, tenantID, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
	}
	return out, nil
}

func (r *OrderRepo) UpdateStatus(ctx context.Context, tenantID, orderID string, status orders.Status, at time.Time) error {
	ct, err := r.DB.Exec(ctx,
		`UPDATE orders SET status=$3, updated_at=$4 WHERE tenant_id=$1 AND id=$2`,
		tenantID, orderID, string(status), at)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: [%s]", orders.ErrOrderNotFound, orderID)
	}
	return nil
}

func (r *OrderRepo) getOne(ctx context.Context, tenantID, query, arg string) (*orders.Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, query, tenantID, arg), tenantID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: [%s]", orders.ErrOrderNotFound, arg)
	}
	if err != nil {
		return nil, err
	}
	items, err := r.items(ctx, tenantID, []string{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	return o, nil
}

func (r *OrderRepo) items(ctx context.Context, tenantID string, orderIDs []string) (map[string][]orders.OrderItem, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT order_id, product_id, quantity, price::text
		FROM order_items
		WHERE tenant_id=$1 AND order_id = ANY($2)
		ORDER BY order_id, position`,
		tenantID, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]orders.OrderItem, len(orderIDs))
	for rows.Next() {
		var (
			orderID string
			it      orders.OrderItem
			price   string
		)
		if err := rows.Scan(&orderID, &it.ProductID, &it.Quantity, &price); err != nil {
			return nil, err
		}
		if it.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("order [%s] item price: %w", orderID, err)
		}
		out[orderID] = append(out[orderID], it)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row, tenantID string) (*orders.Order, error) {
	var (
		o      = orders.Order{TenantID: tenantID}
		status string
		total  string
	)
	if err := row.Scan(&o.ID, &o.ExternalID, &o.UserID, &status, &total, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(total)
	if err != nil {
		return nil, fmt.Errorf("order [%s] total: %w", o.ID, err)
	}
	o.Status = orders.Status(status)
	o.TotalPrice = d
	return &o, nil
}

// sendBatch runs the queued statements and reports the first failure.
func sendBatch(ctx context.Context, db DBTX, b *pgx.Batch) error {
	if b.Len() == 0 {
		return nil
	}
	br := db.SendBatch(ctx, b)
	for i := 0; i < b.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return err
		}
	}
	return br.Close()
}
