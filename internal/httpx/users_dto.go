package httpx

import (
	"fmt"
	"time"

	"github.com/shopbee/order-service/internal/users"
)

const dateLayout = "2006-01-02"

type PhoneDTO struct {
	CountryCode string `json:"countryCode"`
	Number      string `json:"number"`
}

type UserReq struct {
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Gender    string    `json:"gender"`
	BirthDate string    `json:"birthDate"`
	Status    string    `json:"status"`
	Phone     *PhoneDTO `json:"phone"`
}

type UserPatchReq struct {
	Email     *string   `json:"email"`
	FirstName *string   `json:"firstName"`
	LastName  *string   `json:"lastName"`
	Gender    *string   `json:"gender"`
	BirthDate *string   `json:"birthDate"`
	Status    *string   `json:"status"`
	Phone     *PhoneDTO `json:"phone"`
}

type AddressReq struct {
	Type       string `json:"type"`
	Street     string `json:"street"`
	Ward       string `json:"ward"`
	District   string `json:"district"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
}

type AddressPatchReq struct {
	Type       *string `json:"type"`
	Street     *string `json:"street"`
	Ward       *string `json:"ward"`
	District   *string `json:"district"`
	City       *string `json:"city"`
	PostalCode *string `json:"postalCode"`
}

type UserResp struct {
	ID        string       `json:"id"`
	Username  string       `json:"username"`
	Email     string       `json:"email"`
	FirstName string       `json:"firstName"`
	LastName  string       `json:"lastName"`
	Gender    users.Gender `json:"gender,omitempty"`
	BirthDate string       `json:"birthDate,omitempty"`
	Status    users.Status `json:"status"`
	Phone     *PhoneDTO    `json:"phone,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

type AddressResp struct {
	ID         string            `json:"id"`
	UserID     string            `json:"userId"`
	Type       users.AddressType `json:"type"`
	Street     string            `json:"street"`
	Ward       string            `json:"ward,omitempty"`
	District   string            `json:"district,omitempty"`
	City       string            `json:"city"`
	PostalCode string            `json:"postalCode,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

func (r UserReq) toCreate() (users.CreateUserRequest, error) {
	birth, err := parseDate(r.BirthDate)
	if err != nil {
		return users.CreateUserRequest{}, err
	}
	return users.CreateUserRequest{
		Username:  r.Username,
		Email:     r.Email,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Gender:    users.Gender(r.Gender),
		BirthDate: birth,
		Phone:     r.Phone.toDomain(),
		Status:    users.Status(r.Status),
	}, nil
}

func (r UserReq) toUpdate() (users.UpdateUserRequest, error) {
	birth, err := parseDate(r.BirthDate)
	if err != nil {
		return users.UpdateUserRequest{}, err
	}
	return users.UpdateUserRequest{
		Email:     r.Email,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Gender:    users.Gender(r.Gender),
		BirthDate: birth,
		Phone:     r.Phone.toDomain(),
		Status:    users.Status(r.Status),
	}, nil
}

func (r UserPatchReq) toDomain() (users.PatchUserRequest, error) {
	out := users.PatchUserRequest{
		Email:     r.Email,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Phone:     r.Phone.toDomain(),
	}
	if r.BirthDate != nil {
		birth, err := parseDate(*r.BirthDate)
		if err != nil {
			return out, err
		}
		out.BirthDate = birth
	}
	if r.Gender != nil {
		g := users.Gender(*r.Gender)
		out.Gender = &g
	}
	if r.Status != nil {
		s := users.Status(*r.Status)
		out.Status = &s
	}
	return out, nil
}

func (p *PhoneDTO) toDomain() *users.Phone {
	if p == nil {
		return nil
	}
	return &users.Phone{CountryCode: p.CountryCode, Number: p.Number}
}

func (r AddressReq) toDomain() users.AddressRequest {
	return users.AddressRequest{
		Type:       users.AddressType(r.Type),
		Street:     r.Street,
		Ward:       r.Ward,
		District:   r.District,
		City:       r.City,
		PostalCode: r.PostalCode,
	}
}

func (r AddressPatchReq) toDomain() users.PatchAddressRequest {
	out := users.PatchAddressRequest{
		Street:     r.Street,
		Ward:       r.Ward,
		District:   r.District,
		City:       r.City,
		PostalCode: r.PostalCode,
	}
	if r.Type != nil {
		t := users.AddressType(*r.Type)
		out.Type = &t
	}
	return out
}

func parseDate(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	d, err := time.Parse(dateLayout, v)
	if err != nil {
		return nil, fmt.Errorf("%w: birthDate must be YYYY-MM-DD", errBadRequest)
	}
	return &d, nil
}

func toUserResp(u *users.User) UserResp {
	out := UserResp{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Gender:    u.Gender,
		Status:    u.Status,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
	if u.BirthDate != nil {
		out.BirthDate = u.BirthDate.Format(dateLayout)
	}
	if u.Phone != nil {
		out.Phone = &PhoneDTO{CountryCode: u.Phone.CountryCode, Number: u.Phone.Number}
	}
	return out
}

func toAddressResp(a *users.Address) AddressResp {
	return AddressResp{
		ID:         a.ID,
		UserID:     a.UserID,
		Type:       a.Type,
		Street:     a.Street,
		Ward:       a.Ward,
		District:   a.District,
		City:       a.City,
		PostalCode: a.PostalCode,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}
