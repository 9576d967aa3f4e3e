// Package memstore keeps products, orders, users and tenants in process
// memory.
// A unit of work holds the store lock for its whole duration, so stock
// updates are linearised, but nothing is rolled back when it fails: the
// order workflow's compensating releases keep stock consistent.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopbee/order-service/internal/inventory"
	"github.com/shopbee/order-service/internal/orders"
	"github.com/shopbee/order-service/internal/tenant"
	"github.com/shopbee/order-service/internal/users"
)

type key struct{ tenantID, id string }

type Store struct {
	mu       sync.Mutex
	products map[key]inventory.Product
	orders   map[key]orders.Order
	seq      map[key]int64
	external map[key]string
	tenants  map[string]tenant.Tenant
	users    map[key]users.User
	address  map[key]users.Address
	next     int64
}

func New() *Store {
	return &Store{
		products: map[key]inventory.Product{},
		orders:   map[key]orders.Order{},
		seq:      map[key]int64{},
		external: map[key]string{},
		tenants:  map[string]tenant.Tenant{},
		users:    map[key]users.User{},
		address:  map[key]users.Address{},
	}
}

func (s *Store) Orders() orders.UnitOfWork { return ordersUnit{s} }
func (s *Store) Inventory() inventory.UnitOfWork { return inventoryUnit{s} }
func (s *Store) Tenants() tenant.Store { return tenantStore{s} }
func (s *Store) Users() users.UnitOfWork { return usersUnit{s} }

type ordersUnit struct{ s *Store }

func (u ordersUnit) Do(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	return fn(ctx, scope{u.s})
}

type inventoryUnit struct{ s *Store }

func (u inventoryUnit) Do(ctx context.Context, fn func(ctx context.Context, s inventory.Store) error) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	return fn(ctx, productStore{u.s})
}

type usersUnit struct{ s *Store }

func (u usersUnit) Do(ctx context.Context, fn func(ctx context.Context, s users.Store) error) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	return fn(ctx, userStore{u.s})
}

type scope struct{ s *Store }

func (sc scope) Orders() orders.Repository { return orderStore{sc.s} }
func (sc scope) Products() inventory.Store { return productStore{sc.s} }
func (sc scope) Users() users.Store { return userStore{sc.s} }

// productStore, orderStore and userStore run with Store.mu already held.
type productStore struct{ s *Store }

func (p productStore) LockStock(_ context.Context, tenantID, productID string) (int, error) {
	prod, ok := p.s.products[key{tenantID, productID}]
	if !ok {
		return 0, fmt.Errorf("%w: [%s]", inventory.ErrProductNotFound, productID)
	}
	return prod.StockQuantity, nil
}

func (p productStore) SetStock(_ context.Context, tenantID, productID string, quantity int) error {
	k := key{tenantID, productID}
	prod, ok := p.s.products[k]
	if !ok {
		return fmt.Errorf("%w: [%s]", inventory.ErrProductNotFound, productID)
	}
	if quantity < 0 {
		return fmt.Errorf("stock of product [%s] would become negative", productID)
	}
	prod.StockQuantity = quantity
	prod.UpdatedAt = time.Now().UTC()
	p.s.products[k] = prod
	return nil
}

func (p productStore) Get(_ context.Context, tenantID, productID string) (*inventory.Product, error) {
	prod, ok := p.s.products[key{tenantID, productID}]
	if !ok {
		return nil, fmt.Errorf("%w: [%s]", inventory.ErrProductNotFound, productID)
	}
	return &prod, nil
}

func (p productStore) List(_ context.Context, tenantID string, offset, limit int) ([]inventory.Product, error) {
	var out []inventory.Product
	for k, prod := range p.s.products {
		if k.tenantID == tenantID {
			out = append(out, prod)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return window(out, offset, limit), nil
}

func (p productStore) SKUTaken(_ context.Context, tenantID, sku, exceptID string) (bool, error) {
	for k, prod := range p.s.products {
		if k.tenantID == tenantID && prod.SKU == sku && prod.ID != exceptID {
			return true, nil
		}
	}
	return false, nil
}

func (p productStore) Create(_ context.Context, prod *inventory.Product) error {
	k := key{prod.TenantID, prod.ID}
	if _, ok := p.s.products[k]; ok {
		return fmt.Errorf("product [%s] already stored", prod.ID)
	}
	p.s.products[k] = *prod
	return nil
}

func (p productStore) Update(_ context.Context, prod *inventory.Product) error {
	k := key{prod.TenantID, prod.ID}
	cur, ok := p.s.products[k]
	if !ok {
		return fmt.Errorf("%w: [%s]", inventory.ErrProductNotFound, prod.ID)
	}
	cur.SKU, cur.Name, cur.Price, cur.UpdatedAt = prod.SKU, prod.Name, prod.Price, prod.UpdatedAt
	p.s.products[k] = cur
	prod.StockQuantity = cur.StockQuantity
	return nil
}

func (p productStore) Delete(_ context.Context, tenantID, productID string) error {
	k := key{tenantID, productID}
	if _, ok := p.s.products[k]; !ok {
		return fmt.Errorf("%w: [%s]", inventory.ErrProductNotFound, productID)
	}
	delete(p.s.products, k)
	return nil
}

type orderStore struct{ s *Store }

func (o orderStore) Create(_ context.Context, ord *orders.Order) error {
	k := key{ord.TenantID, ord.ID}
	if _, ok := o.s.orders[k]; ok {
		return fmt.Errorf("order [%s] already stored", ord.ID)
	}
	if ord.ExternalID != "" {
		ek := key{ord.TenantID, ord.ExternalID}
		if _, ok := o.s.external[ek]; ok {
			return fmt.Errorf("external id [%s] already used", ord.ExternalID)
		}
		o.s.external[ek] = ord.ID
	}
	o.s.next++
	o.s.seq[k] = o.s.next
	o.s.orders[k] = copyOrder(*ord)
	return nil
}

func (o orderStore) Get(_ context.Context, tenantID, orderID string) (*orders.Order, error) {
	ord, ok := o.s.orders[key{tenantID, orderID}]
	if !ok {
		return nil, fmt.Errorf("%w: [%s]", orders.ErrOrderNotFound, orderID)
	}
	c := copyOrder(ord)
	return &c, nil
}

func (o orderStore) GetForUpdate(ctx context.Context, tenantID, orderID string) (*orders.Order, error) {
	return o.Get(ctx, tenantID, orderID)
}

func (o orderStore) GetByExternalID(ctx context.Context, tenantID, externalID string) (*orders.Order, error) {
	id, ok := o.s.external[key{tenantID, externalID}]
	if !ok {
		return nil, fmt.Errorf("%w: external id [%s]", orders.ErrOrderNotFound, externalID)
	}
	return o.Get(ctx, tenantID, id)
}

func (o orderStore) ListByUser(_ context.Context, tenantID, userID string, offset, limit int) ([]orders.Order, error) {
	var out []orders.Order
	for k, ord := range o.s.orders {
		if k.tenantID == tenantID && ord.UserID == userID {
			out = append(out, copyOrder(ord))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return o.s.seq[key{tenantID, out[i].ID}] > o.s.seq[key{tenantID, out[j].ID}]
	})
	return window(out, offset, limit), nil
}

func (o orderStore) UpdateStatus(_ context.Context, tenantID, orderID string, status orders.Status, at time.Time) error {
	k := key{tenantID, orderID}
	ord, ok := o.s.orders[k]
	if !ok {
		return fmt.Errorf("%w: [%s]", orders.ErrOrderNotFound, orderID)
	}
	ord.Status = status
	ord.UpdatedAt = at
	o.s.orders[k] = ord
	return nil
}

type userStore struct{ s *Store }

func (u userStore) GetUser(_ context.Context, tenantID, userID string) (*users.User, error) {
	usr, ok := u.s.users[key{tenantID, userID}]
	if !ok {
		return nil, fmt.Errorf("%w: [%s]", users.ErrUserNotFound, userID)
	}
	return copyUser(usr), nil
}

func (u userStore) ListUsers(_ context.Context, tenantID string, offset, limit int) ([]users.User, error) {
	var out []users.User
	for k, usr := range u.s.users {
		if k.tenantID == tenantID {
			out = append(out, *copyUser(usr))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return window(out, offset, limit), nil
}

func (u userStore) UsernameTaken(_ context.Context, tenantID, username, exceptID string) (bool, error) {
	return u.any(tenantID, exceptID, func(usr users.User) bool { return usr.Username == username }), nil
}

func (u userStore) EmailTaken(_ context.Context, tenantID, email, exceptID string) (bool, error) {
	return u.any(tenantID, exceptID, func(usr users.User) bool { return usr.Email == email }), nil
}

func (u userStore) PhoneTaken(_ context.Context, tenantID string, phone users.Phone, exceptID string) (bool, error) {
	return u.any(tenantID, exceptID, func(usr users.User) bool { return usr.Phone != nil && *usr.Phone == phone }), nil
}

func (u userStore) any(tenantID, exceptID string, match func(users.User) bool) bool {
	for k, usr := range u.s.users {
		if k.tenantID == tenantID && usr.ID != exceptID && match(usr) {
			return true
		}
	}
	return false
}

func (u userStore) CreateUser(_ context.Context, usr *users.User) error {
	k := key{usr.TenantID, usr.ID}
	if _, ok := u.s.users[k]; ok {
		return fmt.Errorf("user [%s] already stored", usr.ID)
	}
	u.s.users[k] = *copyUser(*usr)
	return nil
}

func (u userStore) UpdateUser(_ context.Context, usr *users.User) error {
	k := key{usr.TenantID, usr.ID}
	if _, ok := u.s.users[k]; !ok {
		return fmt.Errorf("%w: [%s]", users.ErrUserNotFound, usr.ID)
	}
	u.s.users[k] = *copyUser(*usr)
	return nil
}

func (u userStore) DeleteUser(_ context.Context, tenantID, userID string) error {
	k := key{tenantID, userID}
	if _, ok := u.s.users[k]; !ok {
		return fmt.Errorf("%w: [%s]", users.ErrUserNotFound, userID)
	}
	delete(u.s.users, k)
	for ak, a := range u.s.address {
		if ak.tenantID == tenantID && a.UserID == userID {
			delete(u.s.address, ak)
		}
	}
	return nil
}

func (u userStore) ListAddresses(_ context.Context, tenantID, userID string) ([]users.Address, error) {
	out := []users.Address{}
	for k, a := range u.s.address {
		if k.tenantID == tenantID && a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (u userStore) GetAddress(_ context.Context, tenantID, userID, addressID string) (*users.Address, error) {
	a, ok := u.s.address[key{tenantID, addressID}]
	if !ok || a.UserID != userID {
		return nil, fmt.Errorf("%w: [%s]", users.ErrAddressNotFound, addressID)
	}
	return &a, nil
}

func (u userStore) CreateAddress(_ context.Context, a *users.Address) error {
	if _, ok := u.s.users[key{a.TenantID, a.UserID}]; !ok {
		return fmt.Errorf("%w: [%s]", users.ErrUserNotFound, a.UserID)
	}
	u.s.address[key{a.TenantID, a.ID}] = *a
	return nil
}

func (u userStore) UpdateAddress(ctx context.Context, a *users.Address) error {
	if _, err := u.GetAddress(ctx, a.TenantID, a.UserID, a.ID); err != nil {
		return err
	}
	u.s.address[key{a.TenantID, a.ID}] = *a
	return nil
}

func (u userStore) DeleteAddress(ctx context.Context, tenantID, userID, addressID string) error {
	if _, err := u.GetAddress(ctx, tenantID, userID, addressID); err != nil {
		return err
	}
	delete(u.s.address, key{tenantID, addressID})
	return nil
}

type tenantStore struct{ s *Store }

func (t tenantStore) Get(_ context.Context, id string) (*tenant.Tenant, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	ten, ok := t.s.tenants[id]
	if !ok {
		return nil, fmt.Errorf("%w: [%s]", tenant.ErrTenantNotFound, id)
	}
	return &ten, nil
}

func (t tenantStore) Create(_ context.Context, ten *tenant.Tenant) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if _, ok := t.s.tenants[ten.ID]; ok {
		return fmt.Errorf("%w: [%s]", tenant.ErrTenantExists, ten.ID)
	}
	t.s.tenants[ten.ID] = *ten
	return nil
}

func copyUser(u users.User) *users.User {
	if u.Phone != nil {
		p := *u.Phone
		u.Phone = &p
	}
	if u.BirthDate != nil {
		d := *u.BirthDate
		u.BirthDate = &d
	}
	return &u
}

func copyOrder(o orders.Order) orders.Order {
	o.Items = append([]orders.OrderItem(nil), o.Items...)
	return o
}

func window[T any](in []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(in) || limit <= 0 {
		return nil
	}
	end := offset + limit
	if end > len(in) || end < offset {
		end = len(in)
	}
	return in[offset:end]
}
