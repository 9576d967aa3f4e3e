package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound  = errors.New("product not found")
	ErrSKUExists        = errors.New("sku already exists")
	ErrInvalidProduct   = errors.New("invalid product")
	ErrConcurrentUpdate = errors.New("concurrent update, retry the request")
)

type Product struct {
	TenantID      string
	ID            string
	SKU           string
	Name          string
	Price         decimal.Decimal
	StockQuantity int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// InsufficientStockError reports a line that cannot be covered by the
// current stock of its product.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough stock for product [%s]. Requested: %d, Available: %d",
		e.ProductID, e.Requested, e.Available)
}

// StockStore is the row-level access the Ledger needs. LockStock must hold
// the product row until the enclosing unit of work ends.
type StockStore interface {
	LockStock(ctx context.Context, tenantID, productID string) (int, error)
	SetStock(ctx context.Context, tenantID, productID string, quantity int) error
}

// Store is tenant-scoped product persistence. Update never touches the
// stock quantity.
type Store interface {
	StockStore
	Get(ctx context.Context, tenantID, productID string) (*Product, error)
	List(ctx context.Context, tenantID string, offset, limit int) ([]Product, error)
	SKUTaken(ctx context.Context, tenantID, sku, exceptID string) (bool, error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, tenantID, productID string) error
}

// UnitOfWork runs fn against a Store whose writes commit together.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, s Store) error) error
}
