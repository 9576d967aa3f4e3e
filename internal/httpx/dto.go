package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopbee/order-service/internal/inventory"
	"github.com/shopbee/order-service/internal/orders"
	"github.com/shopbee/order-service/internal/tenant"
)

var errBadRequest = errors.New("bad request")

type ProductReq struct {
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stockQuantity"`
}

type ProductPatchReq struct {
	SKU   *string          `json:"sku"`
	Name  *string          `json:"name"`
	Price *decimal.Decimal `json:"price"`
}

type RestockReq struct {
	Quantity int `json:"quantity"`
}

type ProductResp struct {
	ID            string          `json:"id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stockQuantity"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

func toProductResp(p *inventory.Product) ProductResp {
	return ProductResp{
		ID:            p.ID,
		SKU:           p.SKU,
		Name:          p.Name,
		Price:         p.Price,
		StockQuantity: p.StockQuantity,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

type OrderItemReq struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type CreateOrderReq struct {
	Items []OrderItemReq `json:"items"`
}

func (r CreateOrderReq) toDomain(externalID string) orders.CreateOrderRequest {
	out := orders.CreateOrderRequest{ExternalID: externalID, Items: make([]orders.ItemRequest, 0, len(r.Items))}
	for _, it := range r.Items {
		out.Items = append(out.Items, orders.ItemRequest{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}

type StatusReq struct {
	Status string `json:"status"`
}

type OrderItemResp struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type OrderResp struct {
	ID         string          `json:"id"`
	ExternalID string          `json:"externalId,omitempty"`
	UserID     string          `json:"userId"`
	Items      []OrderItemResp `json:"items"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	Status     orders.Status   `json:"status"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

func toOrderResp(o *orders.Order) OrderResp {
	items := make([]OrderItemResp, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemResp{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price})
	}
	return OrderResp{
		ID:         o.ID,
		ExternalID: o.ExternalID,
		UserID:     o.UserID,
		Items:      items,
		TotalPrice: o.TotalPrice,
		Status:     o.Status,
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
}

type TenantReq struct {
	TenantID string `json:"tenantId"`
	Realm    string `json:"realm"`
	ClientID string `json:"clientId"`
	Status   string `json:"status"`
}

type TenantResp struct {
	TenantID  string        `json:"tenantId"`
	Realm     string        `json:"realm"`
	ClientID  string        `json:"clientId"`
	Status    tenant.Status `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
}

func toTenantResp(t *tenant.Tenant) TenantResp {
	return TenantResp{TenantID: t.ID, Realm: t.Realm, ClientID: t.ClientID, Status: t.Status, CreatedAt: t.CreatedAt}
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid json: %v", errBadRequest, err)
	}
	return nil
}

// paging reads ?offset (page index) and ?limit; absent values are zero.
func paging(r *http.Request) (offset, limit int, err error) {
	q := r.URL.Query()
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil {
			return 0, 0, fmt.Errorf("%w: offset must be an integer", errBadRequest)
		}
		if offset < 0 || offset > inventory.MaxPageIndex {
			return 0, 0, fmt.Errorf("%w: offset must be between 0 and %d", errBadRequest, inventory.MaxPageIndex)
		}
	}
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			return 0, 0, fmt.Errorf("%w: limit must be an integer", errBadRequest)
		}
	}
	return offset, limit, nil
}
