package redisx

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shopbee/order-service/internal/orders"
)

// OrderCache keeps order snapshots and idempotency keys in Redis. Every
// failure is logged and treated as a miss; Postgres stays the source of
// truth.
//
// A snapshot is a hash of its version (UpdatedAt in microseconds) and the
// JSON order. Writes go through setIfNewer so a reader that loaded the order
// before a status change cannot overwrite the newer copy.
type OrderCache struct {
	rdb    redis.Cmdable
	logger *zap.Logger
}

func NewOrderCache(rdb redis.Cmdable, logger *zap.Logger) *OrderCache {
	return &OrderCache{rdb: rdb, logger: logger}
}

var setIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'v')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'v', ARGV[1], 'order', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

func (c *OrderCache) GetOrder(ctx context.Context, tenantID, orderID string) (*orders.Order, bool) {
	raw, err := c.rdb.HGet(ctx, OrderKey(tenantID, orderID), "order").Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("order cache read failed", zap.String("order_id", orderID), zap.Error(err))
		}
		return nil, false
	}
	var o orders.Order
	if err := json.Unmarshal(raw, &o); err != nil {
		c.logger.Warn("dropping undecodable cached order", zap.String("order_id", orderID), zap.Error(err))
		c.drop(ctx, tenantID, orderID)
		return nil, false
	}
	return &o, true
}

// SetOrder stores o unless the cached snapshot has a later UpdatedAt.
func (c *OrderCache) SetOrder(ctx context.Context, o *orders.Order) {
	raw, err := json.Marshal(o)
	if err != nil {
		c.logger.Warn("order cache encode failed", zap.String("order_id", o.ID), zap.Error(err))
		return
	}
	err = setIfNewer.Run(ctx, c.rdb,
		[]string{OrderKey(o.TenantID, o.ID)},
		o.UpdatedAt.UnixMicro(), raw, TTLOrderCache.Milliseconds(),
	).Err()
	if err != nil {
		c.logger.Warn("order cache write failed", zap.String("order_id", o.ID), zap.Error(err))
	}
}

func (c *OrderCache) drop(ctx context.Context, tenantID, orderID string) {
	if err := c.rdb.Del(ctx, OrderKey(tenantID, orderID)).Err(); err != nil {
		c.logger.Warn("order cache drop failed", zap.String("order_id", orderID), zap.Error(err))
	}
}

func (c *OrderCache) LookupIdempotency(ctx context.Context, tenantID, externalID string) (string, bool) {
	id, err := c.rdb.Get(ctx, IdemOrderCreateKey(tenantID, externalID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("idempotency lookup failed", zap.String("external_id", externalID), zap.Error(err))
		}
		return "", false
	}
	return id, true
}

func (c *OrderCache) RememberIdempotency(ctx context.Context, tenantID, externalID, orderID string) {
	if err := c.rdb.SetNX(ctx, IdemOrderCreateKey(tenantID, externalID), orderID, TTLIdempotency).Err(); err != nil {
		c.logger.Warn("idempotency write failed", zap.String("external_id", externalID), zap.Error(err))
	}
}

// Deduper records processed event ids for one consuming service.
type Deduper struct {
	rdb     redis.Cmdable
	service string
}

func NewDeduper(rdb redis.Cmdable, service string) *Deduper {
	return &Deduper{rdb: rdb, service: service}
}

func (d *Deduper) Seen(ctx context.Context, eventID string) (bool, error) {
	return Exists(ctx, d.rdb, DedupKey(d.service, eventID))
}

func (d *Deduper) Mark(ctx context.Context, eventID string) error {
	return d.rdb.Set(ctx, DedupKey(d.service, eventID), 1, TTLDedup).Err()
}
