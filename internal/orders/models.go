package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopbee/order-service/internal/inventory"
	"github.com/shopbee/order-service/internal/users"
	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrForbidden      = errors.New("access to order is forbidden")
	ErrInvalidRequest = errors.New("invalid order request")
	ErrInvalidStatus  = errors.New("invalid order status")
)

// InvalidStateTransitionError is returned when an order cannot move from
// its current status to the requested one.
type InvalidStateTransitionError struct {
	OrderID string
	Current Status
	Target  Status
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("order [%s] cannot move from %s to %s", e.OrderID, e.Current, e.Target)
}

// Order owns its items; they are fixed at creation together with UserID
// and TotalPrice.
type Order struct {
	TenantID   string
	ID         string
	ExternalID string
	UserID     string
	Items      []OrderItem
	TotalPrice decimal.Decimal
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// OrderItem.Price is the unit price captured when the order was placed.
type OrderItem struct {
	ProductID string
	Quantity  int
	Price     decimal.Decimal
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func TotalOf(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// OwnedBy reports whether userID placed the order.
func (o *Order) OwnedBy(userID string) bool {
	return o.UserID == userID
}

// Cancel applies the guarded transition to CANCELLED. The caller is
// responsible for releasing the item quantities in the same unit of work.
func (o *Order) Cancel(at time.Time) error {
	if !CanTransition(o.Status, StatusCancelled) {
		return &InvalidStateTransitionError{OrderID: o.ID, Current: o.Status, Target: StatusCancelled}
	}
	o.Status = StatusCancelled
	o.UpdatedAt = at
	return nil
}

type ItemRequest struct {
	ProductID string
	Quantity  int
}

type CreateOrderRequest struct {
	// ExternalID is an optional client idempotency key.
	ExternalID string
	Items      []ItemRequest
}

func (r CreateOrderRequest) validate(userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	}
	if len(r.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrInvalidRequest)
	}
	for i, it := range r.Items {
		if it.ProductID == "" {
			return fmt.Errorf("%w: item %d has no product id", ErrInvalidRequest, i)
		}
		if it.Quantity <= 0 {
			return fmt.Errorf("%w: item %d quantity must be positive", ErrInvalidRequest, i)
		}
	}
	return nil
}

// Repository is tenant-scoped order persistence.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, tenantID, orderID string) (*Order, error)
	// GetForUpdate locks the order row until the unit of work ends.
	GetForUpdate(ctx context.Context, tenantID, orderID string) (*Order, error)
	GetByExternalID(ctx context.Context, tenantID, externalID string) (*Order, error)
	ListByUser(ctx context.Context, tenantID, userID string, offset, limit int) ([]Order, error)
	UpdateStatus(ctx context.Context, tenantID, orderID string, status Status, at time.Time) error
}

// Tx exposes the repositories that share one unit of work.
type Tx interface {
	Orders() Repository
	Products() inventory.Store
	Users() users.Store
}

type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Rollbacker is implemented by units of work that discard every write of a
// Do whose fn returns an error. The service skips its own compensating
// releases for them; inside an aborted transaction those would only fail.
type Rollbacker interface {
	RollsBack() bool
}

// Cache is a best-effort read cache. Implementations swallow their own
// failures. SetOrder keeps whichever snapshot has the later UpdatedAt, so a
// read racing a status change cannot put the older copy back.
type Cache interface {
	GetOrder(ctx context.Context, tenantID, orderID string) (*Order, bool)
	SetOrder(ctx context.Context, o *Order)
	LookupIdempotency(ctx context.Context, tenantID, externalID string) (string, bool)
	RememberIdempotency(ctx context.Context, tenantID, externalID, orderID string)
}

type noopCache struct{}

func (noopCache) GetOrder(context.Context, string, string) (*Order, bool) { return nil, false }
func (noopCache) SetOrder(context.Context, *Order) {}
func (noopCache) LookupIdempotency(context.Context, string, string) (string, bool) { return "", false }
func (noopCache) RememberIdempotency(context.Context, string, string, string) {}
