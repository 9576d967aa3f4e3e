package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopbee/order-service/internal/inventory"
	"github.com/shopbee/order-service/internal/orders"
	"github.com/shopbee/order-service/internal/tenant"
	"github.com/shopbee/order-service/internal/users"
)

const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// UnitOfWork runs each Do in one pgx transaction: everything commits
// together or rolls back together.
type UnitOfWork struct{ DB *pgxpool.Pool }

func (u *UnitOfWork) Orders() orders.UnitOfWork { return ordersUnit{u} }
func (u *UnitOfWork) Inventory() inventory.UnitOfWork { return inventoryUnit{u} }
func (u *UnitOfWork) Tenants() tenant.Store { return &TenantRepo{DB: u.DB} }
func (u *UnitOfWork) Users() users.UnitOfWork { return usersUnit{u} }

func (u *UnitOfWork) withTx(ctx context.Context, fn func(q DBTX) error) error {
	tx, err := u.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return translate(err)
	}
	return translate(tx.Commit(ctx))
}

type ordersUnit struct{ u *UnitOfWork }

func (o ordersUnit) Do(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	return o.u.withTx(ctx, func(q DBTX) error { return fn(ctx, scope{q}) })
}

func (ordersUnit) RollsBack() bool { return true }

type inventoryUnit struct{ u *UnitOfWork }

func (i inventoryUnit) Do(ctx context.Context, fn func(ctx context.Context, s inventory.Store) error) error {
	return i.u.withTx(ctx, func(q DBTX) error { return fn(ctx, &ProductRepo{DB: q}) })
}

type usersUnit struct{ u *UnitOfWork }

func (uu usersUnit) Do(ctx context.Context, fn func(ctx context.Context, s users.Store) error) error {
	return uu.u.withTx(ctx, func(q DBTX) error { return fn(ctx, &UserRepo{DB: q}) })
}

type scope struct{ q DBTX }

func (s scope) Orders() orders.Repository { return &OrderRepo{DB: s.q} }
func (s scope) Products() inventory.Store { return &ProductRepo{DB: s.q} }
func (s scope) Users() users.Store { return &UserRepo{DB: s.q} }

// translate maps lock conflicts and late unique violations onto domain
// errors the HTTP layer reports as 409.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if err == nil || !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeDeadlockDetected, codeSerializationFailure:
		return fmt.Errorf("%w: %s", inventory.ErrConcurrentUpdate, pgErr.Message)
	case codeUniqueViolation:
		switch pgErr.ConstraintName {
		case "products_tenant_sku_uq":
			return fmt.Errorf("%w: %s", inventory.ErrSKUExists, pgErr.Detail)
		case "orders_external_id_uq":
			return fmt.Errorf("%w: %s", inventory.ErrConcurrentUpdate, pgErr.Detail)
		case "users_tenant_username_uq":
			return fmt.Errorf("%w: %s", users.ErrUsernameExists, pgErr.Detail)
		case "users_tenant_email_uq":
			return fmt.Errorf("%w: %s", users.ErrEmailExists, pgErr.Detail)
		case "users_tenant_phone_uq":
			return fmt.Errorf("%w: %s", users.ErrPhoneExists, pgErr.Detail)
		}
	}
	return err
}
