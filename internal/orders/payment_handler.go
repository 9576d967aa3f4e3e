package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/shopbee/order-service/internal/kafka"
)

// Deduplicator remembers processed event ids.
type Deduplicator interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

// PaymentHandler applies payment events to orders. It is installed as the
// status worker's consumer handler.
type PaymentHandler struct {
	admin  *AdminService
	dedup  Deduplicator
	logger *zap.Logger
}

func NewPaymentHandler(admin *AdminService, dedup Deduplicator, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{admin: admin, dedup: dedup, logger: logger}
}

// HandleMessage returns nil when the offset may be committed. Events only
// move orders along the transition table, so a late or replayed event for
// an order already past its target is rejected, logged and acknowledged.
// Infrastructure errors are returned so the message is not committed.
func (h *PaymentHandler) HandleMessage(ctx context.Context, m kafka.Message) error {
	ctx = kafkax.ExtractTraceContext(ctx, m.Headers)

	var env Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		h.logger.Error("invalid payment envelope", zap.Error(err), zap.ByteString("key", m.Key))
		return nil
	}
	log := h.logger.With(
		zap.String("event_id", env.EventID),
		zap.String("event_type", env.EventType),
		zap.String("tenant_id", env.TenantID))

	seen, err := h.dedup.Seen(ctx, env.EventID)
	if err != nil {
		return fmt.Errorf("dedup lookup: %w", err)
	}
	if seen {
		log.Info("duplicate payment event skipped")
		return nil
	}

	p, err := kafkax.UnwrapPayload[PaymentPayload](env.Payload)
	if err != nil {
		log.Error("invalid payment payload", zap.Error(err))
		return nil
	}
	log = log.With(zap.String("order_id", p.OrderID))

	switch env.EventType {
	case EventPaymentRequested:
		_, err = h.admin.Transition(ctx, env.TenantID, p.OrderID, StatusPendingPayment)
	case EventPaymentAuthorized:
		_, err = h.admin.Transition(ctx, env.TenantID, p.OrderID, StatusPaid)
	case EventPaymentFailed:
		_, err = h.admin.Transition(ctx, env.TenantID, p.OrderID, StatusCancelled)
	default:
		log.Debug("ignoring event type")
		return nil
	}

	var transition *InvalidStateTransitionError
	switch {
	case errors.Is(err, ErrOrderNotFound), errors.As(err, &transition):
		log.Warn("payment event rejected", zap.Error(err))
	case err != nil:
		return err
	default:
		log.Info("payment event applied", zap.String("payment_ref", p.PaymentRef))
	}

	if err := h.dedup.Mark(ctx, env.EventID); err != nil {
		log.Warn("dedup mark failed", zap.Error(err))
	}
	return nil
}
