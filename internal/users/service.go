package users

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shopbee/order-service/internal/inventory"
)

type CreateUserRequest struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
	Gender    Gender
	BirthDate *time.Time
	Phone     *Phone
	Status    Status
}

// UpdateUserRequest replaces every mutable field. The username is fixed at
// creation; an empty Status keeps the current one.
type UpdateUserRequest struct {
	Email     string
	FirstName string
	LastName  string
	Gender    Gender
	BirthDate *time.Time
	Phone     *Phone
	Status    Status
}

// PatchUserRequest changes only the non-nil fields.
type PatchUserRequest struct {
	Email     *string
	FirstName *string
	LastName  *string
	Gender    *Gender
	BirthDate *time.Time
	Phone     *Phone
	Status    *Status
}

type AddressRequest struct {
	Type       AddressType
	Street     string
	Ward       string
	District   string
	City       string
	PostalCode string
}

// PatchAddressRequest changes only the non-nil fields.
type PatchAddressRequest struct {
	Type       *AddressType
	Street     *string
	Ward       *string
	District   *string
	City       *string
	PostalCode *string
}

// Service manages the tenant's users and their addresses. Username, email
// and phone are unique within a tenant.
type Service struct {
	uow    UnitOfWork
	logger *zap.Logger
	now    func() time.Time
}

func NewService(uow UnitOfWork, logger *zap.Logger) *Service {
	return &Service{uow: uow, logger: logger, now: time.Now}
}

func (s *Service) CreateUser(ctx context.Context, tenantID string, req CreateUserRequest) (*User, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidUser)
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	phone, err := normalizePhone(req.Phone)
	if err != nil {
		return nil, err
	}
	if req.Status == "" {
		req.Status = StatusActive
	}
	if err := checkEnums(req.Status, req.Gender); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	u := &User{
		TenantID:  tenantID,
		ID:        uuid.NewString(),
		Username:  username,
		Email:     email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Gender:    req.Gender,
		BirthDate: req.BirthDate,
		Status:    req.Status,
		Phone:     phone,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = s.uow.Do(ctx, func(ctx context.Context, store Store) error {
		if err := ensureUnique(ctx, store, u); err != nil {
			return err
		}
		return store.CreateUser(ctx, u)
	})
	if err != nil {
		s.logger.Warn("user creation failed", zap.String("tenant_id", tenantID), zap.String("username", username), zap.Error(err))
		return nil, err
	}
	s.logger.Info("user created", zap.String("tenant_id", tenantID), zap.String("user_id", u.ID))
	return u, nil
}

func (s *Service) GetUser(ctx context.Context, tenantID, userID string) (*User, error) {
	var u *User
	err := s.uow.Do(ctx, func(ctx context.Context, store Store) error {
		var err error
		u, err = store.GetUser(ctx, tenantID, userID)
		return err
	})
	return u, err
}

// ListUsers pages through the tenant's users; offset is a page index.
func (s *Service) ListUsers(ctx context.Context, tenantID string, offset, limit int) ([]User, error) {
	page, size := inventory.Page(offset, limit)
	var out []User
	err := s.uow.Do(ctx, func(ctx context.Context, store Store) error {
		var err error
		out, err = store.ListUsers(ctx, tenantID, page*size, size)
		return err
	})
	return out, err
}

func (s *Service) UpdateUser(ctx context.Context, tenantID, userID string, req UpdateUserRequest) (*User, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	phone, err := normalizePhone(req.Phone)
	if err != nil {
		return nil, err
	}
	status := req.Status
	if status == "" {
		status = StatusActive
	}
	if err := checkEnums(status, req.Gender); err != nil {
		return nil, err
	}
	return s.modifyUser(ctx, tenantID, userID, func(u *User) {
		u.Email = email
		u.FirstName = req.FirstName
		u.LastName = req.LastName
		u.Gender = req.Gender
		u.BirthDate = req.BirthDate
		u.Phone = phone
		if req.Status != "" {
			u.Status = req.Status
		}
	})
}

func (s *Service) PatchUser(ctx context.Context, tenantID, userID string, req PatchUserRequest) (*User, error) {
	var email string
	if req.Email != nil {
		var err error
		if email, err = normalizeEmail(*req.Email); err != nil {
			return nil, err
		}
	}
	phone, err := normalizePhone(req.Phone)
	if err != nil {
		return nil, err
	}
	if req.Status != nil && !req.Status.valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidUser, *req.Status)
	}
	if req.Gender != nil && !req.Gender.valid() {
		return nil, fmt.Errorf("%w: unknown gender %q", ErrInvalidUser, *req.Gender)
	}
	return s.modifyUser(ctx, tenantID, userID, func(u *User) {
		if req.Email != nil {
			u.Email = email
		}
		if req.FirstName != nil {
			u.FirstName = *req.FirstName
		}
		if req.LastName != nil {
			u.LastName = *req.LastName
		}
		if req.Gender != nil {
			u.Gender = *req.Gender
		}
		if req.BirthDate != nil {
			u.BirthDate = req.BirthDate
		}
		if phone != nil {
			u.Phone = phone
		}
		if req.Status != nil {
			u.Status = *req.Status
		}
	})
}

func (s *Service) DeleteUser(ctx context.Context, tenantID, userID string) error {
	s.logger.Info("deleting user", zap.String("tenant_id", tenantID), zap.String("user_id", userID))
	return s.uow.Do(ctx, func(ctx context.Context, store Store) error {
		if _, err := store.GetUser(ctx, tenantID, userID); err != nil {
			return err
		}
		return store.DeleteUser(ctx, tenantID, userID)
	})
}

func (s *Service) ListAddresses(ctx context.Context, tenantID, userID string) ([]Address, error) {
	var out []Address
	err := s.uow.Do(ctx, func(ctx context.Context, store Store) error {
		if _, err := store.GetUser(ctx, tenantID, userID); err != nil {
			return err
		}
		var err error
		out, err = store.ListAddresses(ctx, tenantID, userID)
		return err
	})
	return out, err
}

func (s *Service) GetAddress(ctx context.Context, tenantID, userID, addressID string) (*Address, error) {
	var a *Address
	err := s.uow.Do(ctx, func(ctx context.Context, store Store) error {
		var err error
		a, err = store.GetAddress(ctx, tenantID, userID, addressID)
		return err
	})
	return a, err
}

func (s *Service) CreateAddress(ctx context.Context, tenantID, userID string, req AddressRequest) (*Address, error) {
	req = trimAddress(req)
	if err := validateAddress(req); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	a := &Address{
		TenantID:   tenantID,
		ID:         uuid.NewString(),
		UserID:     userID,
		Type:       req.Type,
		Street:     req.Street,
		Ward:       req.Ward,
		District:   req.District,
		City:       req.City,
		PostalCode: req.PostalCode,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := s.uow.Do(ctx, func(ctx context.Context, store Store) error {
		if _, err := store.GetUser(ctx, tenantID, userID); err != nil {
			return err
		}
		return store.CreateAddress(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("address added",
		zap.String("tenant_id", tenantID),
		zap.String("user_id", userID),
		zap.String("address_id", a.ID))
	return a, nil
}

func (s *Service) UpdateAddress(ctx context.Context, tenantID, userID, addressID string, req AddressRequest) (*Address, error) {
	req = trimAddress(req)
	if err := validateAddress(req); err != nil {
		return nil, err
	}
	return s.modifyAddress(ctx, tenantID, userID, addressID, func(a *Address) {
		a.Type = req.Type
		a.Street = req.Street
		a.Ward = req.Ward
		a.District = req.District
		a.City = req.City
		a.PostalCode = req.PostalCode
	})
}

func (s *Service) PatchAddress(ctx context.Context, tenantID, userID, addressID string, req PatchAddressRequest) (*Address, error) {
	return s.modifyAddress(ctx, tenantID, userID, addressID, func(a *Address) {
		set := func(dst *string, v *string) {
			if v != nil {
				*dst = strings.TrimSpace(*v)
			}
		}
		if req.Type != nil {
			a.Type = *req.Type
		}
		set(&a.Street, req.Street)
		set(&a.Ward, req.Ward)
		set(&a.District, req.District)
		set(&a.City, req.City)
		set(&a.PostalCode, req.PostalCode)
	})
}

func (s *Service) DeleteAddress(ctx context.Context, tenantID, userID, addressID string) error {
	return s.uow.Do(ctx, func(ctx context.Context, store Store) error {
		if _, err := store.GetAddress(ctx, tenantID, userID, addressID); err != nil {
			return err
		}
		return store.DeleteAddress(ctx, tenantID, userID, addressID)
	})
}

func (s *Service) modifyUser(ctx context.Context, tenantID, userID string, apply func(*User)) (*User, error) {
	var u *User
	err := s.uow.Do(ctx, func(ctx context.Context, store Store) error {
		var err error
		u, err = store.GetUser(ctx, tenantID, userID)
		if err != nil {
			return err
		}
		apply(u)
		if err := ensureUnique(ctx, store, u); err != nil {
			return err
		}
		u.UpdatedAt = s.now().UTC()
		return store.UpdateUser(ctx, u)
	})
	if err != nil {
		s.logger.Warn("user update failed", zap.String("tenant_id", tenantID), zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	return u, nil
}

// modifyAddress validates the merged address so a patch cannot blank a
// required field.
func (s *Service) modifyAddress(ctx context.Context, tenantID, userID, addressID string, apply func(*Address)) (*Address, error) {
	var a *Address
	err := s.uow.Do(ctx, func(ctx context.Context, store Store) error {
		var err error
		a, err = store.GetAddress(ctx, tenantID, userID, addressID)
		if err != nil {
			return err
		}
		apply(a)
		if err := validateAddress(AddressRequest{Type: a.Type, Street: a.Street, City: a.City}); err != nil {
			return err
		}
		a.UpdatedAt = s.now().UTC()
		return store.UpdateAddress(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func ensureUnique(ctx context.Context, store Store, u *User) error {
	taken, err := store.UsernameTaken(ctx, u.TenantID, u.Username, u.ID)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("%w: [%s]", ErrUsernameExists, u.Username)
	}
	if taken, err = store.EmailTaken(ctx, u.TenantID, u.Email, u.ID); err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("%w: [%s]", ErrEmailExists, u.Email)
	}
	if u.Phone == nil {
		return nil
	}
	if taken, err = store.PhoneTaken(ctx, u.TenantID, *u.Phone, u.ID); err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("%w: [%s %s]", ErrPhoneExists, u.Phone.CountryCode, u.Phone.Number)
	}
	return nil
}

func checkEnums(status Status, gender Gender) error {
	if !status.valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidUser, status)
	}
	if !gender.valid() {
		return fmt.Errorf("%w: unknown gender %q", ErrInvalidUser, gender)
	}
	return nil
}

func trimAddress(req AddressRequest) AddressRequest {
	req.Street = strings.TrimSpace(req.Street)
	req.Ward = strings.TrimSpace(req.Ward)
	req.District = strings.TrimSpace(req.District)
	req.City = strings.TrimSpace(req.City)
	req.PostalCode = strings.TrimSpace(req.PostalCode)
	return req
}

func validateAddress(req AddressRequest) error {
	if !req.Type.valid() {
		return fmt.Errorf("%w: unknown address type %q", ErrInvalidUser, req.Type)
	}
	if req.Street == "" || req.City == "" {
		return fmt.Errorf("%w: street and city are required", ErrInvalidUser)
	}
	return nil
}
