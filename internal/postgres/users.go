package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/shopbee/order-service/internal/users"
)

type UserRepo struct{ DB DBTX }

const userColumns = `id, username, email, first_name, last_name, gender, birth_date, status,
	phone_country_code, phone_number, created_at, updated_at`

const addressColumns = `id, user_id, type, street, ward, district, city, postal_code, created_at, updated_at`

func (r *UserRepo) GetUser(ctx context.Context, tenantID, userID string) (*users.User, error) {
	row := r.DB.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id=$1 AND id=$2`, tenantID, userID)
	u, err := scanUser(row, tenantID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: [%s]", users.ErrUserNotFound, userID)
	}
	return u, err
}

func (r *UserRepo) ListUsers(ctx context.Context, tenantID string, offset, limit int) ([]users.User, error) {
	rows, err := r.DB.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id=$1 ORDER BY username OFFSET $2 LIMIT $3`,
		tenantID, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []users.User
	for rows.Next() {
		u, err := scanUser(rows, tenantID)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func (r *UserRepo) UsernameTaken(ctx context.Context, tenantID, username, exceptID string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE tenant_id=$1 AND username=$2 AND id<>$3)`,
		tenantID, username, exceptID)
}

func (r *UserRepo) EmailTaken(ctx context.Context, tenantID, email, exceptID string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE tenant_id=$1 AND email=$2 AND id<>$3)`,
		tenantID, email, exceptID)
}

func (r *UserRepo) PhoneTaken(ctx context.Context, tenantID string, phone users.Phone, exceptID string) (bool, error) {
	return r.exists(ctx, `
		SELECT EXISTS (SELECT 1 FROM users
		WHERE tenant_id=$1 AND phone_country_code=$2 AND phone_number=$3 AND id<>$4)`,
		tenantID, phone.CountryCode, phone.Number, exceptID)
}

func (r *UserRepo) exists(ctx context.Context, sql string, args ...any) (bool, error) {
	var taken bool
	err := r.DB.QueryRow(ctx, sql, args...).Scan(&taken)
	return taken, err
}

func (r *UserRepo) CreateUser(ctx context.Context, u *users.User) error {
	cc, num := phoneColumns(u.Phone)
	_, err := r.DB.Exec(ctx, `
		INSERT INTO users(tenant_id, id, username, email, first_name, last_name, gender, birth_date,
			status, phone_country_code, phone_number, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		u.TenantID, u.ID, u.Username, u.Email, u.FirstName, u.LastName, string(u.Gender), u.BirthDate,
		string(u.Status), cc, num, u.CreatedAt, u.UpdatedAt)
	return err
}

func (r *UserRepo) UpdateUser(ctx context.Context, u *users.User) error {
	cc, num := phoneColumns(u.Phone)
	ct, err := r.DB.Exec(ctx, `
		UPDATE users SET email=$3, first_name=$4, last_name=$5, gender=$6, birth_date=$7,
			status=$8, phone_country_code=$9, phone_number=$10, updated_at=$11
		WHERE tenant_id=$1 AND id=$2`,
		u.TenantID, u.ID, u.Email, u.FirstName, u.LastName, string(u.Gender), u.BirthDate,
		string(u.Status), cc, num, u.UpdatedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: [%s]", users.ErrUserNotFound, u.ID)
	}
	return nil
}

// DeleteUser relies on the addresses foreign key cascade.
func (r *UserRepo) DeleteUser(ctx context.Context, tenantID, userID string) error {
	ct, err := r.DB.Exec(ctx, `DELETE FROM users WHERE tenant_id=$1 AND id=$2`, tenantID, userID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: [%s]", users.ErrUserNotFound, userID)
	}
	return nil
}

func (r *UserRepo) ListAddresses(ctx context.Context, tenantID, userID string) ([]users.Address, error) {
	rows, err := r.DB.Query(ctx,
		`SELECT `+addressColumns+` FROM addresses WHERE tenant_id=$1 AND user_id=$2 ORDER BY created_at, id`,
		tenantID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []users.Address{}
	for rows.Next() {
		a, err := scanAddress(rows, tenantID)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *UserRepo) GetAddress(ctx context.Context, tenantID, userID, addressID string) (*users.Address, error) {
	row := r.DB.QueryRow(ctx,
		`SELECT `+addressColumns+` FROM addresses WHERE tenant_id=$1 AND user_id=$2 AND id=$3`,
		tenantID, userID, addressID)
	a, err := scanAddress(row, tenantID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: [%s]", users.ErrAddressNotFound, addressID)
	}
	return a, err
}

func (r *UserRepo) CreateAddress(ctx context.Context, a *users.Address) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO addresses(tenant_id, id, user_id, type, street, ward, district, city, postal_code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.TenantID, a.ID, a.UserID, string(a.Type), a.Street, a.Ward, a.District, a.City, a.PostalCode,
		a.CreatedAt, a.UpdatedAt)
	return err
}

func (r *UserRepo) UpdateAddress(ctx context.Context, a *users.Address) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE addresses SET type=$4, street=$5, ward=$6, district=$7, city=$8, postal_code=$9, updated_at=$10
		WHERE tenant_id=$1 AND user_id=$2 AND id=$3`,
		a.TenantID, a.UserID, a.ID, string(a.Type), a.Street, a.Ward, a.District, a.City, a.PostalCode, a.UpdatedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: [%s]", users.ErrAddressNotFound, a.ID)
	}
	return nil
}

func (r *UserRepo) DeleteAddress(ctx context.Context, tenantID, userID, addressID string) error {
	ct, err := r.DB.Exec(ctx,
		`DELETE FROM addresses WHERE tenant_id=$1 AND user_id=$2 AND id=$3`, tenantID, userID, addressID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: [%s]", users.ErrAddressNotFound, addressID)
	}
	return nil
}

func phoneColumns(p *users.Phone) (cc, num *string) {
	if p == nil {
		return nil, nil
	}
	return &p.CountryCode, &p.Number
}

func scanUser(row pgx.Row, tenantID string) (*users.User, error) {
	var (
		u              users.User
		gender, status string
		cc, num        *string
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &gender, &u.BirthDate,
		&status, &cc, &num, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.TenantID = tenantID
	u.Gender = users.Gender(gender)
	u.Status = users.Status(status)
	if cc != nil && num != nil {
		u.Phone = &users.Phone{CountryCode: *cc, Number: *num}
	}
	return &u, nil
}

func scanAddress(row pgx.Row, tenantID string) (*users.Address, error) {
	var (
		a   users.Address
		typ string
	)
	err := row.Scan(&a.ID, &a.UserID, &typ, &a.Street, &a.Ward, &a.District, &a.City, &a.PostalCode,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.TenantID = tenantID
	a.Type = users.AddressType(typ)
	return &a, nil
}
