package users

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrAddressNotFound = errors.New("address not found")
	ErrUsernameExists  = errors.New("username already exists")
	ErrEmailExists     = errors.New("email already exists")
	ErrPhoneExists     = errors.New("phone number already exists")
	ErrInvalidUser     = errors.New("invalid user")
	ErrUserInactive    = errors.New("user is not active")
)

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusInactive  Status = "INACTIVE"
	StatusSuspended Status = "SUSPENDED"
)

type Gender string

const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
	GenderOther  Gender = "OTHER"
)

type AddressType string

const (
	AddressHome  AddressType = "HOME"
	AddressWork  AddressType = "WORK"
	AddressOther AddressType = "OTHER"
)

// Phone is unique per tenant as a (country code, number) pair.
type Phone struct {
	CountryCode string
	Number      string
}

type User struct {
	TenantID  string
	ID        string
	Username  string
	Email     string
	FirstName string
	LastName  string
	Gender    Gender
	BirthDate *time.Time
	Status    Status
	Phone     *Phone
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active reports whether the user may place orders.
func (u *User) Active() bool { return u.Status == StatusActive }

type Address struct {
	TenantID   string
	ID         string
	UserID     string
	Type       AddressType
	Street     string
	Ward       string
	District   string
	City       string
	PostalCode string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Store is tenant-scoped user and address persistence. The *Taken lookups
// ignore the user named by exceptID so an update can keep its own values.
type Store interface {
	GetUser(ctx context.Context, tenantID, userID string) (*User, error)
	ListUsers(ctx context.Context, tenantID string, offset, limit int) ([]User, error)
	UsernameTaken(ctx context.Context, tenantID, username, exceptID string) (bool, error)
	EmailTaken(ctx context.Context, tenantID, email, exceptID string) (bool, error)
	PhoneTaken(ctx context.Context, tenantID string, phone Phone, exceptID string) (bool, error)
	CreateUser(ctx context.Context, u *User) error
	UpdateUser(ctx context.Context, u *User) error
	// DeleteUser removes the user and its addresses.
	DeleteUser(ctx context.Context, tenantID, userID string) error

	ListAddresses(ctx context.Context, tenantID, userID string) ([]Address, error)
	GetAddress(ctx context.Context, tenantID, userID, addressID string) (*Address, error)
	CreateAddress(ctx context.Context, a *Address) error
	UpdateAddress(ctx context.Context, a *Address) error
	DeleteAddress(ctx context.Context, tenantID, userID, addressID string) error
}

// UnitOfWork runs fn against a Store whose writes commit together.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, s Store) error) error
}

func (s Status) valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended:
		return true
	}
	return false
}

func (g Gender) valid() bool {
	switch g {
	case "", GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

func (t AddressType) valid() bool {
	switch t {
	case AddressHome, AddressWork, AddressOther:
		return true
	}
	return false
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidUser)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: malformed email %q", ErrInvalidUser, email)
	}
	return email, nil
}

// normalizePhone accepts nil (no phone) or a complete pair.
func normalizePhone(p *Phone) (*Phone, error) {
	if p == nil {
		return nil, nil
	}
	out := &Phone{CountryCode: strings.TrimSpace(p.CountryCode), Number: strings.TrimSpace(p.Number)}
	if out.CountryCode == "" || out.Number == "" {
		return nil, fmt.Errorf("%w: phone needs both country code and number", ErrInvalidUser)
	}
	return out, nil
}
