package orders

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// AdminService carries the operations reserved for back-office and system
// callers (payment callbacks, operators). Handlers serving end users only
// ever receive a *Service.
type AdminService struct {
	orders *Service
}

func NewAdminService(orders *Service) *AdminService {
	return &AdminService{orders: orders}
}

// Transition applies a guarded status change: the move must be an edge of
// the transition table, otherwise an *InvalidStateTransitionError is
// returned and nothing is written. A CANCELLED target goes through
// CancelOrder so stock is released.
func (a *AdminService) Transition(ctx context.Context, tenantID, orderID string, target Status) (*Order, error) {
	if target == StatusCancelled {
		return a.CancelOrder(ctx, tenantID, orderID)
	}
	return a.setStatus(ctx, "orders.TransitionOrder", tenantID, orderID, target, func(from Status) bool {
		return CanTransition(from, target)
	})
}

// UpdateStatus overwrites the order status without consulting the
// transition table. It is the operator override. Two moves stay refused
// because they would desync stock: entering CANCELLED (use CancelOrder,
// which releases stock) and leaving CANCELLED (the stock is already
// released).
func (a *AdminService) UpdateStatus(ctx context.Context, tenantID, orderID string, status Status) (*Order, error) {
	return a.setStatus(ctx, "orders.UpdateOrderStatus", tenantID, orderID, status, func(from Status) bool {
		return status != StatusCancelled && from != StatusCancelled
	})
}

// CancelOrder cancels on behalf of the system: same guard and stock
// release as Service.CancelOrder, without the ownership check.
func (a *AdminService) CancelOrder(ctx context.Context, tenantID, orderID string) (*Order, error) {
	return a.orders.cancel(ctx, tenantID, orderID, func(*Order) error { return nil })
}

func (a *AdminService) setStatus(ctx context.Context, spanName, tenantID, orderID string, status Status, allowed func(from Status) bool) (order *Order, err error) {
	s := a.orders
	ctx, span := s.tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("order.id", orderID),
		attribute.String("order.status", string(status)),
	))
	defer func() { endSpan(span, err) }()

	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	log := s.logger.With(
		zap.String("tenant_id", tenantID),
		zap.String("order_id", orderID),
		zap.String("status", string(status)))
	var previous Status
	err = s.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.Orders().GetForUpdate(ctx, tenantID, orderID)
		if err != nil {
			return err
		}
		previous = o.Status
		if o.Status == status && status != StatusCancelled {
			order = o
			return nil
		}
		if !allowed(o.Status) {
			return &InvalidStateTransitionError{OrderID: o.ID, Current: o.Status, Target: status}
		}
		o.Status = status
		o.UpdatedAt = s.now().UTC()
		if err := tx.Orders().UpdateStatus(ctx, tenantID, o.ID, o.Status, o.UpdatedAt); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		log.Warn("order status update failed", zap.Error(err))
		return nil, err
	}
	if previous == status {
		return order, nil
	}

	s.cache.SetOrder(ctx, order)
	s.publish(ctx, EventOrderStatusChanged, tenantID, orderID, OrderStatusChangedPayload{
		OrderID: orderID,
		From:    previous,
		To:      status,
	})
	log.Info("order status changed", zap.String("from", string(previous)))
	return order, nil
}
