package orders_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/shopbee/order-service/internal/inventory"
	"github.com/shopbee/order-service/internal/orders"
	"github.com/shopbee/order-service/internal/users"
)

func TestOrderLifecycleScenario(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "SKU-P", "19.99", 5)

	first, err := f.place(alice, line(p.ID, 3))
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCreated, first.Status)
	assert.True(t, decimal.RequireFromString("59.97").Equal(first.TotalPrice), first.TotalPrice.String())
	assert.Equal(t, 2, f.stock(t, p.ID))

	_, err = f.place(alice, line(p.ID, 3))
	var insufficient *inventory.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 2, insufficient.Available)
	assert.Equal(t, 3, insufficient.Requested)
	assert.Equal(t, 2, f.stock(t, p.ID))

	cancelled, err := f.orders.CancelOrder(context.Background(), tenantA, alice, first.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, cancelled.Status)
	assert.Equal(t, 5, f.stock(t, p.ID))

	_, err = f.place(alice, line(p.ID, 3))
	require.NoError(t, err)
	assert.Equal(t, 2, f.stock(t, p.ID))

	assert.Equal(t, []string{
		orders.EventOrderCreated,
		orders.EventOrderCancelled,
		orders.EventOrderCreated,
	}, f.events.types())
}

func TestCreateOrderPricesEachLine(t *testing.T) {
	f := newFixture(t)
	mug := f.product(t, "MUG", "4.50", 10)
	tea := f.product(t, "TEA", "0.99", 10)

	o, err := f.place(alice, line(tea.ID, 3), line(mug.ID, 2))
	require.NoError(t, err)
	require.Len(t, o.Items, 2)
	assert.Equal(t, tea.ID, o.Items[0].ProductID, "items keep request order")
	assert.True(t, decimal.RequireFromString("0.99").Equal(o.Items[0].Price))
	assert.True(t, decimal.RequireFromString("11.97").Equal(o.TotalPrice), o.TotalPrice.String())

	name := "Big mug"
	price := decimal.RequireFromString("9.00")
	_, err = f.products.PatchProduct(context.Background(), tenantA, mug.ID, inventory.PatchProductRequest{Name: &name, Price: &price})
	require.NoError(t, err)

	got, err := f.orders.GetOrderByID(context.Background(), tenantA, alice, o.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("4.50").Equal(got.Items[1].Price), "item price is a snapshot")
}

func TestCreateOrderPreCheckLeavesStockUntouched(t *testing.T) {
	f := newFixture(t)
	a := f.product(t, "A", "1.00", 5)
	b := f.product(t, "B", "1.00", 1)

	_, err := f.place(alice, line(a.ID, 2), line(b.ID, 2))
	var insufficient *inventory.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, b.ID, insufficient.ProductID)
	assert.Equal(t, 5, f.stock(t, a.ID))
	assert.Equal(t, 1, f.stock(t, b.ID))

	_, err = f.place(alice, line(a.ID, 1), line("missing", 1))
	assert.ErrorIs(t, err, inventory.ErrProductNotFound)
	assert.Equal(t, 5, f.stock(t, a.ID))

	list, err := f.orders.GetOrders(context.Background(), tenantA, alice, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, f.events.types())
}

func TestCreateOrderCompensatesReservationFailure(t *testing.T) {
	var drained string
	f := newFixtureWith(t, func(u orders.UnitOfWork) orders.UnitOfWork {
		return wrappedUnit{inner: u, wrap: func(tx orders.Tx) orders.Tx {
			return wrappedTx{Tx: tx, products: drainedStore{Store: tx.Products(), productID: drained}}
		}}
	})
	a := f.product(t, "A", "1.00", 5)
	b := f.product(t, "B", "2.00", 5)
	c := f.product(t, "C", "3.00", 5)
	drained = c.ID

	_, err := f.place(alice, line(a.ID, 2), line(b.ID, 3), line(c.ID, 1))
	var insufficient *inventory.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, c.ID, insufficient.ProductID)
	assert.Equal(t, 0, insufficient.Available)

	assert.Equal(t, 5, f.stock(t, a.ID))
	assert.Equal(t, 5, f.stock(t, b.ID))
	assert.Equal(t, 5, f.stock(t, c.ID))

	list, err := f.orders.GetOrders(context.Background(), tenantA, alice, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateOrderReleasesStockWhenPersistFails(t *testing.T) {
	f := newFixtureWith(t, func(u orders.UnitOfWork) orders.UnitOfWork {
		return wrappedUnit{inner: u, wrap: func(tx orders.Tx) orders.Tx {
			return wrappedTx{Tx: tx, repo: failingCreate{tx.Orders()}}
		}}
	})
	a := f.product(t, "A", "1.00", 5)
	b := f.product(t, "B", "1.00", 5)

	_, err := f.place(alice, line(a.ID, 2), line(b.ID, 5))
	require.ErrorIs(t, err, errDiskFull)
	assert.Equal(t, 5, f.stock(t, a.ID))
	assert.Equal(t, 5, f.stock(t, b.ID))
	assert.Empty(t, f.events.types())
}

func TestCreateOrderRequiresActiveUser(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "P", "1.00", 5)

	_, err := f.place("mallory", line(p.ID, 1))
	assert.ErrorIs(t, err, users.ErrUserNotFound)

	_, err = f.place(carol, line(p.ID, 1))
	assert.ErrorIs(t, err, users.ErrUserInactive)

	_, _, err = f.orders.CreateOrder(context.Background(), "tenant-b", alice, orders.CreateOrderRequest{
		Items: []orders.ItemRequest{line(p.ID, 1)},
	})
	assert.ErrorIs(t, err, users.ErrUserNotFound, "users are tenant-scoped")

	assert.Equal(t, 5, f.stock(t, p.ID))
	assert.Empty(t, f.events.types())
}

func TestCreateOrderLeavesRollbackToUnit(t *testing.T) {
	var releases int
	count := func(tx orders.Tx) orders.Tx {
		return wrappedTx{
			Tx:       tx,
			products: countingStore{Store: tx.Products(), sets: &releases},
			repo:     failingCreate{tx.Orders()},
		}
	}

	f := newFixtureWith(t, func(u orders.UnitOfWork) orders.UnitOfWork {
		return rollingBackUnit{wrappedUnit{inner: u, wrap: count}}
	})
	p := f.product(t, "P", "1.00", 5)

	_, err := f.place(alice, line(p.ID, 2))
	require.ErrorIs(t, err, errDiskFull)
	assert.Equal(t, 1, releases, "only the reservation writes stock; the unit discards it")

	releases = 0
	f = newFixtureWith(t, func(u orders.UnitOfWork) orders.UnitOfWork {
		return wrappedUnit{inner: u, wrap: count}
	})
	p = f.product(t, "P", "1.00", 5)

	_, err = f.place(alice, line(p.ID, 2))
	require.ErrorIs(t, err, errDiskFull)
	assert.Equal(t, 2, releases, "reservation plus compensating release")
	assert.Equal(t, 5, f.stock(t, p.ID))
}

func TestGetOrderByIDOwnership(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "P", "1.00", 5)
	o, err := f.place(alice, line(p.ID, 1))
	require.NoError(t, err)

	_, err = f.orders.GetOrderByID(context.Background(), tenantA, bob, o.ID)
	assert.ErrorIs(t, err, orders.ErrForbidden)
	assert.False(t, errors.Is(err, orders.ErrOrderNotFound))

	_, err = f.orders.GetOrderByID(context.Background(), tenantA, alice, "missing")
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)

	_, err = f.orders.GetOrderByID(context.Background(), "tenant-b", alice, o.ID)
	assert.ErrorIs(t, err, orders.ErrOrderNotFound, "orders are invisible across tenants")
}

func TestGetOrderByIDOwnershipOnCachedOrder(t *testing.T) {
	cache := newMemCache()
	f := newFixture(t, orders.WithCache(cache), orders.WithClock(ticking()))
	p := f.product(t, "P", "1.00", 5)
	o, err := f.place(alice, line(p.ID, 1))
	require.NoError(t, err)

	_, cached := cache.GetOrder(context.Background(), tenantA, o.ID)
	require.True(t, cached)

	_, err = f.orders.GetOrderByID(context.Background(), tenantA, bob, o.ID)
	assert.ErrorIs(t, err, orders.ErrForbidden)

	_, err = f.orders.CancelOrder(context.Background(), tenantA, alice, o.ID)
	require.NoError(t, err)
	got, cached := cache.GetOrder(context.Background(), tenantA, o.ID)
	require.True(t, cached)
	assert.Equal(t, orders.StatusCancelled, got.Status, "cancel refreshes the cached order")
}

func TestStaleReadDoesNotResurrectCancelledOrder(t *testing.T) {
	cache := newMemCache()
	f := newFixture(t, orders.WithCache(cache), orders.WithClock(ticking()))
	p := f.product(t, "P", "1.00", 5)
	o, err := f.place(alice, line(p.ID, 1))
	require.NoError(t, err)

	// A reader loaded the CREATED row, then the cancel committed before the
	// reader wrote its copy back.
	stale := *o
	_, err = f.orders.CancelOrder(context.Background(), tenantA, alice, o.ID)
	require.NoError(t, err)
	cache.SetOrder(context.Background(), &stale)

	got, err := f.orders.GetOrderByID(context.Background(), tenantA, alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, got.Status)
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)
	a := f.product(t, "A", "1.00", 4)
	b := f.product(t, "B", "1.00", 4)
	o, err := f.place(alice, line(a.ID, 1), line(b.ID, 4))
	require.NoError(t, err)

	_, err = f.orders.CancelOrder(context.Background(), tenantA, bob, o.ID)
	assert.ErrorIs(t, err, orders.ErrForbidden)
	assert.Equal(t, 0, f.stock(t, b.ID), "forbidden cancel releases nothing")

	_, err = f.orders.CancelOrder(context.Background(), tenantA, alice, "missing")
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)

	_, err = f.orders.CancelOrder(context.Background(), tenantA, alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, f.stock(t, a.ID))
	assert.Equal(t, 4, f.stock(t, b.ID))

	_, err = f.orders.CancelOrder(context.Background(), tenantA, alice, o.ID)
	var transition *orders.InvalidStateTransitionError
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, orders.StatusCancelled, transition.Current)
	assert.Equal(t, 4, f.stock(t, a.ID), "second cancel must not release again")
	assert.Equal(t, 4, f.stock(t, b.ID))
}

func TestCancelOrderFromPendingPaymentOnly(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "P", "1.00", 3)
	ctx := context.Background()

	pending, err := f.place(alice, line(p.ID, 1))
	require.NoError(t, err)
	_, err = f.admin.UpdateStatus(ctx, tenantA, pending.ID, orders.StatusPendingPayment)
	require.NoError(t, err)
	_, err = f.orders.CancelOrder(ctx, tenantA, alice, pending.ID)
	require.NoError(t, err)

	paid, err := f.place(alice, line(p.ID, 2))
	require.NoError(t, err)
	_, err = f.admin.UpdateStatus(ctx, tenantA, paid.ID, orders.StatusPaid)
	require.NoError(t, err)
	_, err = f.orders.CancelOrder(ctx, tenantA, alice, paid.ID)
	var transition *orders.InvalidStateTransitionError
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, orders.StatusPaid, transition.Current)
	assert.Equal(t, 1, f.stock(t, p.ID))
}

func TestCancelSkipsDeletedProducts(t *testing.T) {
	f := newFixture(t)
	a := f.product(t, "A", "1.00", 2)
	b := f.product(t, "B", "1.00", 2)
	o, err := f.place(alice, line(a.ID, 1), line(b.ID, 1))
	require.NoError(t, err)
	require.NoError(t, f.products.DeleteProduct(context.Background(), tenantA, b.ID))

	_, err = f.orders.CancelOrder(context.Background(), tenantA, alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, f.stock(t, a.ID))
}

func TestCreateOrderIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "P", "2.00", 10)
	ctx := context.Background()
	req := orders.CreateOrderRequest{ExternalID: "checkout-42", Items: []orders.ItemRequest{line(p.ID, 2)}}

	first, existed, err := f.orders.CreateOrder(ctx, tenantA, alice, req)
	require.NoError(t, err)
	assert.False(t, existed)

	again, existed, err := f.orders.CreateOrder(ctx, tenantA, alice, req)
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 8, f.stock(t, p.ID), "replay must not reserve again")

	_, _, err = f.orders.CreateOrder(ctx, tenantA, bob, req)
	assert.ErrorIs(t, err, orders.ErrForbidden)

	assert.Equal(t, []string{orders.EventOrderCreated}, f.events.types())
}

func TestCreateOrderIdempotencyFromCache(t *testing.T) {
	cache := newMemCache()
	f := newFixture(t, orders.WithCache(cache))
	p := f.product(t, "P", "2.00", 10)
	req := orders.CreateOrderRequest{ExternalID: "checkout-7", Items: []orders.ItemRequest{line(p.ID, 1)}}

	first, _, err := f.orders.CreateOrder(context.Background(), tenantA, alice, req)
	require.NoError(t, err)
	id, ok := cache.LookupIdempotency(context.Background(), tenantA, "checkout-7")
	require.True(t, ok)
	assert.Equal(t, first.ID, id)

	again, existed, err := f.orders.CreateOrder(context.Background(), tenantA, alice, req)
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 9, f.stock(t, p.ID))
}

func TestGetOrdersNewestFirst(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "P", "1.00", 10)
	var ids []string
	for i := 0; i < 3; i++ {
		o, err := f.place(alice, line(p.ID, 1))
		require.NoError(t, err)
		ids = append(ids, o.ID)
	}
	_, err := f.place(bob, line(p.ID, 1))
	require.NoError(t, err)

	list, err := f.orders.GetOrders(context.Background(), tenantA, alice, 0, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, ids[2], list[0].ID)
	assert.Equal(t, ids[1], list[1].ID)

	list, err = f.orders.GetOrders(context.Background(), tenantA, alice, 1, 2)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, ids[0], list[0].ID)

	_, err = f.orders.GetOrders(context.Background(), tenantA, "", 0, 0)
	assert.ErrorIs(t, err, orders.ErrInvalidRequest)
}

func TestConcurrentOrdersNeverOversell(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t)
	p := f.product(t, "HOT", "5.00", 10)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		placed   int
		rejected int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.place(alice, line(p.ID, 1))
			mu.Lock()
			defer mu.Unlock()
			var insufficient *inventory.InsufficientStockError
			switch {
			case err == nil:
				placed++
			case errors.As(err, &insufficient):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, placed)
	assert.Equal(t, 15, rejected)
	assert.Equal(t, 0, f.stock(t, p.ID))
}
