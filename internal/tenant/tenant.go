package tenant

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	ErrTenantNotFound = errors.New("tenant not found")
	ErrTenantExists   = errors.New("tenant already exists")
	ErrTenantInactive = errors.New("tenant is inactive")
	ErrInvalidTenant  = errors.New("invalid tenant")
)

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

// Tenant maps a tenant id to its security realm.
type Tenant struct {
	ID        string
	Realm     string
	ClientID  string
	Status    Status
	CreatedAt time.Time
}

type Store interface {
	Get(ctx context.Context, id string) (*Tenant, error)
	Create(ctx context.Context, t *Tenant) error
}

type Service struct {
	store  Store
	logger *zap.Logger
}

func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Register stores a new tenant. Realm defaults to the tenant id and status
// to ACTIVE.
func (s *Service) Register(ctx context.Context, t Tenant) (*Tenant, error) {
	if err := ValidateID(t.ID); err != nil {
		return nil, err
	}
	if t.Realm == "" {
		t.Realm = t.ID
	}
	switch t.Status {
	case "":
		t.Status = StatusActive
	case StatusActive, StatusInactive:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTenant, t.Status)
	}
	t.CreatedAt = time.Now().UTC()

	if _, err := s.store.Get(ctx, t.ID); err == nil {
		return nil, fmt.Errorf("%w: [%s]", ErrTenantExists, t.ID)
	} else if !errors.Is(err, ErrTenantNotFound) {
		return nil, err
	}
	if err := s.store.Create(ctx, &t); err != nil {
		return nil, err
	}
	s.logger.Info("tenant registered", zap.String("tenant_id", t.ID), zap.String("realm", t.Realm))
	return &t, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Tenant, error) {
	return s.store.Get(ctx, id)
}

// Resolve turns the raw tenant header into an active tenant.
func (s *Service) Resolve(ctx context.Context, header string) (*Tenant, error) {
	id := strings.TrimSpace(header)
	if err := ValidateID(id); err != nil {
		s.logger.Warn("rejecting tenant header", zap.String("tenant_header", header))
		return nil, err
	}
	t, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			s.logger.Warn("tenant not found", zap.String("tenant_id", id))
		}
		return nil, err
	}
	if t.Status == StatusInactive {
		s.logger.Warn("tenant is inactive", zap.String("tenant_id", id))
		return nil, fmt.Errorf("%w: [%s]", ErrTenantInactive, id)
	}
	return t, nil
}

func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: missing tenant id", ErrInvalidTenant)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: malformed tenant id", ErrInvalidTenant)
	}
	return nil
}

type ctxKey struct{}

func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// IDFrom returns the tenant id placed in ctx by the HTTP middleware.
func IDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
