package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/shopbee/order-service/internal/inventory"
)

type ProductRepo struct{ DB DBTX }

const productColumns = `id, sku, name, price::text, stock_quantity, created_at, updated_at`

// LockStock holds the product row (FOR UPDATE) until the transaction ends,
// so concurrent reservations on one product are serialised.
func (r *ProductRepo) LockStock(ctx context.Context, tenantID, productID string) (int, error) {
	var stock int
	err := r.DB.QueryRow(ctx,
		`SELECT stock_quantity FROM products WHERE tenant_id=$1 AND id=$2 FOR UPDATE`,
		tenantID, productID).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: [%s]", inventory.ErrProductNotFound, productID)
	}
	return stock, err
}

func (r *ProductRepo) SetStock(ctx context.Context, tenantID, productID string, quantity int) error {
	ct, err := r.DB.Exec(ctx,
		`UPDATE products SET stock_quantity=$3, updated_at=now() WHERE tenant_id=$1 AND id=$2`,
		tenantID, productID, quantity)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: [%s]", inventory.ErrProductNotFound, productID)
	}
	return nil
}

func (r *ProductRepo) Get(ctx context.Context, tenantID, productID string) (*inventory.Product, error) {
	row := r.DB.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE tenant_id=$1 AND id=$2`,
		tenantID, productID)
	p, err := scanProduct(row, tenantID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: [%s]", inventory.ErrProductNotFound, productID)
	}
	return p, err
}

func (r *ProductRepo) List(ctx context.Context, tenantID string, offset, limit int) ([]inventory.Product, error) {
	rows, err := r.DB.Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE tenant_id=$1 ORDER BY sku OFFSET $2 LIMIT $3`,
		tenantID, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []inventory.Product
	for rows.Next() {
		p, err := scanProduct(rows, tenantID)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *ProductRepo) SKUTaken(ctx context.Context, tenantID, sku, exceptID string) (bool, error) {
	var taken bool
	err := r.DB.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM products WHERE tenant_id=$1 AND sku=$2 AND id<>$3)`,
		tenantID, sku, exceptID).Scan(&taken)
	return taken, err
}

func (r *ProductRepo) Create(ctx context.Context, p *inventory.Product) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO products(tenant_id, id, sku, name, price, stock_quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8)`,
		p.TenantID, p.ID, p.SKU, p.Name, p.Price.String(), p.StockQuantity, p.CreatedAt, p.UpdatedAt)
	return err
}

// Update writes sku, name and price. The stock column is left alone and
// read back into p.
func (r *ProductRepo) Update(ctx context.Context, p *inventory.Product) error {
	err := r.DB.QueryRow(ctx, `
		UPDATE products SET sku=$3, name=$4, price=$5::numeric, updated_at=$6
		WHERE tenant_id=$1 AND id=$2
		RETURNING stock_quantity`,
		p.TenantID, p.ID, p.SKU, p.Name, p.Price.String(), p.UpdatedAt).Scan(&p.StockQuantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: [%s]", inventory.ErrProductNotFound, p.ID)
	}
	return err
}

func (r *ProductRepo) Delete(ctx context.Context, tenantID, productID string) error {
	ct, err := r.DB.Exec(ctx, `DELETE FROM products WHERE tenant_id=$1 AND id=$2`, tenantID, productID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: [%s]", inventory.ErrProductNotFound, productID)
	}
	return nil
}

func scanProduct(row pgx.Row, tenantID string) (*inventory.Product, error) {
	var (
		p     = inventory.Product{TenantID: tenantID}
		price string
	)
	if err := row.Scan(&p.ID, &p.SKU, &p.Name, &price, &p.StockQuantity, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("product [%s] price: %w", p.ID, err)
	}
	p.Price = d
	return &p, nil
}
