package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/shopbee/order-service/internal/tenant"
)

type TenantRepo struct{ DB DBTX }

func (r *TenantRepo) Get(ctx context.Context, id string) (*tenant.Tenant, error) {
	var (
		t      tenant.Tenant
		status string
	)
	err := r.DB.QueryRow(ctx,
		`SELECT id, realm, client_id, status, created_at FROM tenants WHERE id=$1`, id).
		Scan(&t.ID, &t.Realm, &t.ClientID, &status, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: [%s]", tenant.ErrTenantNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	t.Status = tenant.Status(status)
	return &t, nil
}

func (r *TenantRepo) Create(ctx context.Context, t *tenant.Tenant) error {
	ct, err := r.DB.Exec(ctx, `
		INSERT INTO tenants(id, realm, client_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		t.ID, t.Realm, t.ClientID, string(t.Status), t.CreatedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: [%s]", tenant.ErrTenantExists, t.ID)
	}
	return nil
}
