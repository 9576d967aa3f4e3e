package inventory

import (
	"context"
	"fmt"
)

// Ledger is the only writer of product stock quantities.
type Ledger struct {
	stock StockStore
}

func NewLedger(stock StockStore) *Ledger {
	return &Ledger{stock: stock}
}

// Reserve takes quantity out of the product's stock. It fails with
// *InsufficientStockError and leaves the stock unchanged when the result
// would be negative.
func (l *Ledger) Reserve(ctx context.Context, tenantID, productID string, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: reserve quantity must be positive, got %d", ErrInvalidProduct, quantity)
	}
	current, err := l.stock.LockStock(ctx, tenantID, productID)
	if err != nil {
		return err
	}
	newStock := current - quantity
	if newStock < 0 {
		return &InsufficientStockError{ProductID: productID, Requested: quantity, Available: current}
	}
	return l.stock.SetStock(ctx, tenantID, productID, newStock)
}

// Release puts quantity back. Callers pair every release with an earlier
// successful Reserve of the same quantity; no upper bound is enforced here.
func (l *Ledger) Release(ctx context.Context, tenantID, productID string, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: release quantity must be positive, got %d", ErrInvalidProduct, quantity)
	}
	current, err := l.stock.LockStock(ctx, tenantID, productID)
	if err != nil {
		return err
	}
	return l.stock.SetStock(ctx, tenantID, productID, current+quantity)
}
