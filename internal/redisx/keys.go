package redisx

import (
	"fmt"
	"time"
)

const (
	// Idempotency create order: idem:order:create:{tenant_id}:{external_id} -> order_id
	keyIdemOrderCreate = "idem:order:create:%s:%s"

	// Cached order snapshot: order:{tenant_id}:{order_id} -> hash{v: updated_at micros, order: JSON}
	keyOrder = "order:%s:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	keyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLOrderCache  = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)

func IdemOrderCreateKey(tenantID, externalID string) string {
	return fmt.Sprintf(keyIdemOrderCreate, tenantID, externalID)
}

func OrderKey(tenantID, orderID string) string {
	return fmt.Sprintf(keyOrder, tenantID, orderID)
}

func DedupKey(service, eventID string) string {
	return fmt.Sprintf(keyDedup, service, eventID)
}
