package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/shopbee/order-service/internal/inventory"
	kafkax "github.com/shopbee/order-service/internal/kafka"
	"github.com/shopbee/order-service/internal/users"
)

const tracerName = "github.com/shopbee/order-service/internal/orders"

// Publisher is satisfied by *kafkax.Producer.
type Publisher interface {
	Publish(key, value []byte, headers ...kafka.Header)
}

type Option func(*Service)

func WithCache(c Cache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service places, reads and cancels orders on behalf of their owners.
type Service struct {
	uow      UnitOfWork
	events   Publisher
	cache    Cache
	logger   *zap.Logger
	tracer   trace.Tracer
	producer string
	now      func() time.Time

	// rollsBack is set when uow discards failed writes itself.
	rollsBack bool
}

func NewService(uow UnitOfWork, events Publisher, logger *zap.Logger, producer string, opts ...Option) *Service {
	s := &Service{
		uow:      uow,
		events:   events,
		cache:    noopCache{},
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
		producer: producer,
		now:      time.Now,
	}
	if rb, ok := uow.(Rollbacker); ok {
		s.rollsBack = rb.RollsBack()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder checks the buyer is an active user of the tenant, prices every
// line against current product data, reserves the stock and persists the
// order in CREATED status. existed is true when the
// request's ExternalID matched an order placed earlier, which is returned
// unchanged.
func (s *Service) CreateOrder(ctx context.Context, tenantID, userID string, req CreateOrderRequest) (order *Order, existed bool, err error) {
	ctx, span := s.tracer.Start(ctx, "orders.CreateOrder", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.Int("order.lines", len(req.Items)),
	))
	defer func() { endSpan(span, err) }()

	if err := req.validate(userID); err != nil {
		return nil, false, err
	}
	log := s.logger.With(zap.String("tenant_id", tenantID), zap.String("user_id", userID))
	log.Info("creating order", zap.Int("lines", len(req.Items)))

	if req.ExternalID != "" {
		if prev, err := s.replay(ctx, tenantID, userID, req.ExternalID); err != nil || prev != nil {
			return prev, prev != nil, err
		}
	}

	err = s.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
		if req.ExternalID != "" {
			prev, err := tx.Orders().GetByExternalID(ctx, tenantID, req.ExternalID)
			switch {
			case err == nil:
				if !prev.OwnedBy(userID) {
					return fmt.Errorf("%w: [%s]", ErrForbidden, prev.ID)
				}
				order, existed = prev, true
				return nil
			case !errors.Is(err, ErrOrderNotFound):
				return err
			}
		}

		if err := checkBuyer(ctx, tx.Users(), tenantID, userID); err != nil {
			return err
		}

		items, err := priceLines(ctx, tx.Products(), tenantID, req.Items)
		if err != nil {
			return err
		}

		ledger := inventory.NewLedger(tx.Products())
		if err := s.reserveAll(ctx, ledger, tenantID, items); err != nil {
			return err
		}

		now := s.now().UTC()
		o := &Order{
			TenantID:   tenantID,
			ID:         uuid.NewString(),
			ExternalID: req.ExternalID,
			UserID:     userID,
			Items:      items,
			TotalPrice: TotalOf(items),
			Status:     StatusCreated,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.Orders().Create(ctx, o); err != nil {
			s.compensate(ctx, ledger, tenantID, items)
			return fmt.Errorf("persist order: %w", err)
		}
		order = o
		return nil
	})
	if err != nil {
		log.Warn("order creation failed", zap.Error(err))
		return nil, false, err
	}
	if existed {
		log.Info("order replayed for idempotency key", zap.String("order_id", order.ID))
		return order, true, nil
	}

	span.SetAttributes(attribute.String("order.id", order.ID))
	if order.ExternalID != "" {
		s.cache.RememberIdempotency(ctx, tenantID, order.ExternalID, order.ID)
	}
	s.cache.SetOrder(ctx, order)
	s.publish(ctx, EventOrderCreated, tenantID, order.ID, createdPayload(order))

	log.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("total_price", order.TotalPrice.String()))
	return order, false, nil
}

// GetOrders lists the user's orders; offset is a page index.
func (s *Service) GetOrders(ctx context.Context, tenantID, userID string, offset, limit int) ([]Order, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	}
	page, size := inventory.Page(offset, limit)
	var out []Order
	err := s.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.Orders().ListByUser(ctx, tenantID, userID, page*size, size)
		return err
	})
	return out, err
}

// GetOrderByID distinguishes a missing order (ErrOrderNotFound) from one
// placed by another user (ErrForbidden).
func (s *Service) GetOrderByID(ctx context.Context, tenantID, userID, orderID string) (*Order, error) {
	o, cached := s.cache.GetOrder(ctx, tenantID, orderID)
	if !cached {
		err := s.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
			var err error
			o, err = tx.Orders().Get(ctx, tenantID, orderID)
			return err
		})
		if err != nil {
			return nil, err
		}
		s.cache.SetOrder(ctx, o)
	}
	if !o.OwnedBy(userID) {
		s.logger.Warn("order access denied",
			zap.String("tenant_id", tenantID),
			zap.String("order_id", orderID),
			zap.String("user_id", userID))
		return nil, fmt.Errorf("%w: [%s]", ErrForbidden, orderID)
	}
	return o, nil
}

// CancelOrder moves the user's order to CANCELLED and returns every item
// quantity to stock.
func (s *Service) CancelOrder(ctx context.Context, tenantID, userID, orderID string) (*Order, error) {
	return s.cancel(ctx, tenantID, orderID, func(o *Order) error {
		if !o.OwnedBy(userID) {
			return fmt.Errorf("%w: [%s]", ErrForbidden, o.ID)
		}
		return nil
	})
}

func (s *Service) cancel(ctx context.Context, tenantID, orderID string, authorize func(*Order) error) (order *Order, err error) {
	ctx, span := s.tracer.Start(ctx, "orders.CancelOrder", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("order.id", orderID),
	))
	defer func() { endSpan(span, err) }()

	log := s.logger.With(zap.String("tenant_id", tenantID), zap.String("order_id", orderID))
	var previous Status
	err = s.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.Orders().GetForUpdate(ctx, tenantID, orderID)
		if err != nil {
			return err
		}
		if err := authorize(o); err != nil {
			return err
		}
		previous = o.Status
		if err := o.Cancel(s.now().UTC()); err != nil {
			return err
		}
		if err := s.releaseAll(ctx, inventory.NewLedger(tx.Products()), tenantID, o.Items); err != nil {
			return err
		}
		if err := tx.Orders().UpdateStatus(ctx, tenantID, o.ID, o.Status, o.UpdatedAt); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		log.Warn("order cancellation failed", zap.Error(err))
		return nil, err
	}

	s.cache.SetOrder(ctx, order)
	s.publish(ctx, EventOrderCancelled, tenantID, orderID, OrderCancelledPayload{
		OrderID:  order.ID,
		UserID:   order.UserID,
		Previous: previous,
		Released: itemQtys(order.Items),
	})
	log.Info("order cancelled", zap.String("previous_status", string(previous)))
	return order, nil
}

// checkBuyer requires the user to exist in the tenant and be ACTIVE.
func checkBuyer(ctx context.Context, store users.Store, tenantID, userID string) error {
	u, err := store.GetUser(ctx, tenantID, userID)
	if err != nil {
		return err
	}
	if !u.Active() {
		return fmt.Errorf("%w: [%s] is %s", users.ErrUserInactive, userID, u.Status)
	}
	return nil
}

func priceLines(ctx context.Context, products inventory.Store, tenantID string, lines []ItemRequest) ([]OrderItem, error) {
	items := make([]OrderItem, 0, len(lines))
	for _, line := range lines {
		p, err := products.Get(ctx, tenantID, line.ProductID)
		if err != nil {
			return nil, err
		}
		if p.StockQuantity < line.Quantity {
			return nil, &inventory.InsufficientStockError{
				ProductID: p.ID,
				Requested: line.Quantity,
				Available: p.StockQuantity,
			}
		}
		items = append(items, OrderItem{ProductID: p.ID, Quantity: line.Quantity, Price: p.Price})
	}
	return items, nil
}

// reserveAll reserves the lines in request order. When a line fails, the
// lines reserved before it are released again before returning.
func (s *Service) reserveAll(ctx context.Context, ledger *inventory.Ledger, tenantID string, items []OrderItem) error {
	for i, it := range items {
		if err := ledger.Reserve(ctx, tenantID, it.ProductID, it.Quantity); err != nil {
			s.compensate(ctx, ledger, tenantID, items[:i])
			return err
		}
	}
	return nil
}

func (s *Service) compensate(ctx context.Context, ledger *inventory.Ledger, tenantID string, items []OrderItem) {
	if s.rollsBack {
		return
	}
	for _, it := range items {
		if err := ledger.Release(ctx, tenantID, it.ProductID, it.Quantity); err != nil {
			s.logger.Warn("compensating release failed",
				zap.String("tenant_id", tenantID),
				zap.String("product_id", it.ProductID),
				zap.Int("quantity", it.Quantity),
				zap.Error(err))
		}
	}
}

// releaseAll returns the order's quantities to stock. Products deleted
// since the order was placed have no stock to return to and are skipped.
func (s *Service) releaseAll(ctx context.Context, ledger *inventory.Ledger, tenantID string, items []OrderItem) error {
	for _, it := range items {
		err := ledger.Release(ctx, tenantID, it.ProductID, it.Quantity)
		switch {
		case errors.Is(err, inventory.ErrProductNotFound):
			s.logger.Warn("skipping release for deleted product",
				zap.String("tenant_id", tenantID),
				zap.String("product_id", it.ProductID),
				zap.Int("quantity", it.Quantity))
		case err != nil:
			return err
		}
	}
	return nil
}

func (s *Service) replay(ctx context.Context, tenantID, userID, externalID string) (*Order, error) {
	orderID, ok := s.cache.LookupIdempotency(ctx, tenantID, externalID)
	if !ok {
		return nil, nil
	}
	var o *Order
	err := s.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		o, err = tx.Orders().Get(ctx, tenantID, orderID)
		return err
	})
	switch {
	case errors.Is(err, ErrOrderNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	case !o.OwnedBy(userID):
		return nil, fmt.Errorf("%w: [%s]", ErrForbidden, o.ID)
	}
	return o, nil
}

func (s *Service) publish(ctx context.Context, eventType, tenantID, orderID string, payload any) {
	if s.events == nil {
		return
	}
	env := newEnvelope(eventType, s.producer, tenantID, orderID, kafkax.MustMarshal(payload))
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		env.TraceID = sc.TraceID().String()
	}
	headers := append([]kafka.Header{
		{Key: "x-event-type", Value: []byte(eventType)},
		{Key: "x-event-version", Value: []byte("1")},
		{Key: "x-tenant-id", Value: []byte(tenantID)},
	}, kafkax.TraceHeaders(ctx)...)
	s.events.Publish(PartitionKey(orderID), kafkax.MustMarshal(env), headers...)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
