package orders_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shopbee/order-service/internal/inventory"
	"github.com/shopbee/order-service/internal/memstore"
	"github.com/shopbee/order-service/internal/orders"
	"github.com/shopbee/order-service/internal/users"
)

const (
	tenantA = "tenant-a"
	alice   = "alice"
	bob     = "bob"
	carol   = "carol"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []orders.Envelope
}

func (p *recordingPublisher) Publish(_ []byte, value []byte, _ ...kafka.Header) {
	var env orders.Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		panic(err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, env)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType)
	}
	return out
}

type fixture struct {
	store    *memstore.Store
	products *inventory.Service
	orders   *orders.Service
	admin    *orders.AdminService
	events   *recordingPublisher
}

func newFixture(t *testing.T, opts ...orders.Option) *fixture {
	t.Helper()
	return newFixtureWith(t, nil, opts...)
}

// newFixtureWith lets a test intercept the unit of work handed to the
// order service.
func newFixtureWith(t *testing.T, wrap func(orders.UnitOfWork) orders.UnitOfWork, opts ...orders.Option) *fixture {
	t.Helper()
	store := memstore.New()
	uow := store.Orders()
	if wrap != nil {
		uow = wrap(uow)
	}
	seedUser(t, store, alice, users.StatusActive)
	seedUser(t, store, bob, users.StatusActive)
	seedUser(t, store, carol, users.StatusSuspended)
	events := &recordingPublisher{}
	svc := orders.NewService(uow, events, zap.NewNop(), "order-api-test", opts...)
	return &fixture{
		store:    store,
		products: inventory.NewService(store.Inventory(), zap.NewNop()),
		orders:   svc,
		admin:    orders.NewAdminService(svc),
		events:   events,
	}
}

// seedUser stores a user under a fixed id so tests can name buyers directly.
func seedUser(t *testing.T, store *memstore.Store, id string, status users.Status) {
	t.Helper()
	err := store.Users().Do(context.Background(), func(ctx context.Context, s users.Store) error {
		return s.CreateUser(ctx, &users.User{
			TenantID: tenantA,
			ID:       id,
			Username: id,
			Email:    id + "@example.com",
			Status:   status,
		})
	})
	require.NoError(t, err)
}

func (f *fixture) product(t *testing.T, sku, price string, stock int) *inventory.Product {
	t.Helper()
	p, err := f.products.CreateProduct(context.Background(), tenantA, inventory.CreateProductRequest{
		SKU:           sku,
		Name:          sku,
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) stock(t *testing.T, productID string) int {
	t.Helper()
	p, err := f.products.GetProduct(context.Background(), tenantA, productID)
	require.NoError(t, err)
	return p.StockQuantity
}

func (f *fixture) place(userID string, lines ...orders.ItemRequest) (*orders.Order, error) {
	o, _, err := f.orders.CreateOrder(context.Background(), tenantA, userID, orders.CreateOrderRequest{Items: lines})
	return o, err
}

// ticking returns a clock that moves one second per call.
func ticking() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func line(productID string, qty int) orders.ItemRequest {
	return orders.ItemRequest{ProductID: productID, Quantity: qty}
}

// wrappedUnit rewrites the Tx passed to every unit of work.
type wrappedUnit struct {
	inner orders.UnitOfWork
	wrap  func(orders.Tx) orders.Tx
}

func (w wrappedUnit) Do(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	return w.inner.Do(ctx, func(ctx context.Context, tx orders.Tx) error { return fn(ctx, w.wrap(tx)) })
}

type wrappedTx struct {
	orders.Tx
	products inventory.Store
	repo     orders.Repository
}

func (w wrappedTx) Products() inventory.Store {
	if w.products != nil {
		return w.products
	}
	return w.Tx.Products()
}

func (w wrappedTx) Orders() orders.Repository {
	if w.repo != nil {
		return w.repo
	}
	return w.Tx.Orders()
}

// drainedStore reports no stock left for one product once reservation
// starts, as if a concurrent order took it after the pre-check.
type drainedStore struct {
	inventory.Store
	productID string
}

func (d drainedStore) LockStock(ctx context.Context, tenantID, productID string) (int, error) {
	if productID == d.productID {
		return 0, nil
	}
	return d.Store.LockStock(ctx, tenantID, productID)
}

// countingStore counts stock writes.
type countingStore struct {
	inventory.Store
	sets *int
}

func (c countingStore) SetStock(ctx context.Context, tenantID, productID string, quantity int) error {
	*c.sets++
	return c.Store.SetStock(ctx, tenantID, productID, quantity)
}

// rollingBackUnit claims transactional rollback, as the Postgres unit does.
type rollingBackUnit struct{ wrappedUnit }

func (rollingBackUnit) RollsBack() bool { return true }

var errDiskFull = errors.New("disk full")

type failingCreate struct{ orders.Repository }

func (failingCreate) Create(context.Context, *orders.Order) error { return errDiskFull }

type memCache struct {
	mu     sync.Mutex
	orders map[string]orders.Order
	idem   map[string]string
}

func newMemCache() *memCache {
	return &memCache{orders: map[string]orders.Order{}, idem: map[string]string{}}
}

func (c *memCache) GetOrder(_ context.Context, tenantID, orderID string) (*orders.Order, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.orders[tenantID+"/"+orderID]
	if !ok {
		return nil, false
	}
	return &o, true
}

func (c *memCache) SetOrder(_ context.Context, o *orders.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := o.TenantID + "/" + o.ID
	if cur, ok := c.orders[key]; ok && cur.UpdatedAt.After(o.UpdatedAt) {
		return
	}
	c.orders[key] = *o
}

func (c *memCache) LookupIdempotency(_ context.Context, tenantID, externalID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.idem[tenantID+"/"+externalID]
	return id, ok
}

func (c *memCache) RememberIdempotency(_ context.Context, tenantID, externalID, orderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idem[tenantID+"/"+externalID] = orderID
}
