package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shopbee/order-service/internal/inventory"
	"github.com/shopbee/order-service/internal/memstore"
	"github.com/shopbee/order-service/internal/orders"
	"github.com/shopbee/order-service/internal/tenant"
	"github.com/shopbee/order-service/internal/users"
)

type testServer struct {
	t      *testing.T
	router http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memstore.New()
	logger := zap.NewNop()
	orderSvc := orders.NewService(store.Orders(), nil, logger, "order-api-test")
	tenants := tenant.NewService(store.Tenants(), logger)
	_, err := tenants.Register(context.Background(), tenant.Tenant{ID: "acme"})
	require.NoError(t, err)
	_, err = tenants.Register(context.Background(), tenant.Tenant{ID: "dormant", Status: tenant.StatusInactive})
	require.NoError(t, err)
	err = store.Users().Do(context.Background(), func(ctx context.Context, us users.Store) error {
		for _, id := range []string{"alice", "bob"} {
			u := &users.User{TenantID: "acme", ID: id, Username: id, Email: id + "@example.com", Status: users.StatusActive}
			if err := us.CreateUser(ctx, u); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	return &testServer{t: t, router: NewRouter(Deps{
		Tenants:    tenants,
		Products:   inventory.NewService(store.Inventory(), logger),
		Users:      users.NewService(store.Users(), logger),
		Orders:     orderSvc,
		Admin:      orders.NewAdminService(orderSvc),
		AdminToken: adminToken,
		Logger:     logger,
		Timeout:    5 * time.Second,
	})}
}

const adminToken = "ops-token"

func asAdmin() map[string]string {
	return map[string]string{HeaderTenantID: "acme", HeaderAdminToken: adminToken}
}

func (s *testServer) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func as(user string) map[string]string {
	return map[string]string{HeaderTenantID: "acme", HeaderUserID: user}
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) createProduct(sku string, stock int) ProductResp {
	rec := s.do(http.MethodPost, "/products", ProductReq{
		SKU: sku, Name: sku, Price: decimal.RequireFromString("2.50"), StockQuantity: stock,
	}, as(""))
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[ProductResp](s.t, rec)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTenantHeaderRequired(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		name   string
		tenant string
	}{
		{name: "missing", tenant: ""},
		{name: "malformed", tenant: "ac me"},
		{name: "unknown", tenant: "ghost"},
		{name: "inactive", tenant: "dormant"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodGet, "/products", nil, map[string]string{HeaderTenantID: tt.tenant})
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.NotEmpty(t, decodeBody[errorBody](t, rec).Message)
		})
	}
}

func TestTenantEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/tenants", TenantReq{TenantID: "globex", ClientID: "web"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "/tenants/globex", rec.Header().Get("Location"))
	assert.Equal(t, "globex", decodeBody[TenantResp](t, rec).Realm)

	rec = s.do(http.MethodPost, "/tenants", TenantReq{TenantID: "globex"}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPost, "/tenants", TenantReq{TenantID: "bad id"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/tenants/globex", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(http.MethodGet, "/tenants/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProductEndpoints(t *testing.T) {
	s := newTestServer(t)
	p := s.createProduct("MUG", 4)

	rec := s.do(http.MethodPost, "/products", ProductReq{SKU: "MUG", Name: "dup"}, as(""))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPatch, "/products/"+p.ID, map[string]any{"name": "Big mug"}, as(""))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Big mug", decodeBody[ProductResp](t, rec).Name)

	rec = s.do(http.MethodPost, "/products/"+p.ID+"/restock", RestockReq{Quantity: 6}, as(""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, decodeBody[ProductResp](t, rec).StockQuantity)

	rec = s.do(http.MethodGet, "/products?offset=0&limit=10", nil, as(""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]ProductResp](t, rec), 1)

	rec = s.do(http.MethodGet, "/products?limit=many", nil, as(""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodDelete, "/products/"+p.ID, nil, as(""))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(http.MethodGet, "/products/"+p.ID, nil, as(""))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrderEndpoints(t *testing.T) {
	s := newTestServer(t)
	p := s.createProduct("P", 5)
	body := CreateOrderReq{Items: []OrderItemReq{{ProductID: p.ID, Quantity: 3}}}

	rec := s.do(http.MethodPost, "/orders", body, map[string]string{HeaderTenantID: "acme"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "user header is required")

	rec = s.do(http.MethodPost, "/orders", body, as("alice"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decodeBody[OrderResp](t, rec)
	assert.Equal(t, "/orders/"+order.ID, rec.Header().Get("Location"))
	assert.Equal(t, orders.StatusCreated, order.Status)
	assert.True(t, decimal.RequireFromString("7.50").Equal(order.TotalPrice))

	rec = s.do(http.MethodPost, "/orders", body, as("alice"))
	assert.Equal(t, http.StatusConflict, rec.Code, "insufficient stock")
	assert.Contains(t, decodeBody[errorBody](t, rec).Message, "not enough stock")

	rec = s.do(http.MethodGet, "/orders/"+order.ID, nil, as("bob"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = s.do(http.MethodGet, "/orders/missing", nil, as("alice"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/orders", nil, as("alice"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]OrderResp](t, rec), 1)

	rec = s.do(http.MethodPost, "/orders/"+order.ID+"/cancel", nil, as("alice"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, orders.StatusCancelled, decodeBody[OrderResp](t, rec).Status)

	rec = s.do(http.MethodPost, "/orders/"+order.ID+"/cancel", nil, as("alice"))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodGet, "/products/"+p.ID, nil, as(""))
	assert.Equal(t, 5, decodeBody[ProductResp](t, rec).StockQuantity)
}

func TestOrderIdempotencyKey(t *testing.T) {
	s := newTestServer(t)
	p := s.createProduct("P", 5)
	body := CreateOrderReq{Items: []OrderItemReq{{ProductID: p.ID, Quantity: 1}}}
	headers := as("alice")
	headers[HeaderIdempotencyKey] = "checkout-1"

	first := s.do(http.MethodPost, "/orders", body, headers)
	require.Equal(t, http.StatusCreated, first.Code)
	second := s.do(http.MethodPost, "/orders", body, headers)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, decodeBody[OrderResp](t, first).ID, decodeBody[OrderResp](t, second).ID)
}

func TestAdminStatusEndpoint(t *testing.T) {
	s := newTestServer(t)
	p := s.createProduct("P", 5)
	rec := s.do(http.MethodPost, "/orders", CreateOrderReq{Items: []OrderItemReq{{ProductID: p.ID, Quantity: 1}}}, as("alice"))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeBody[OrderResp](t, rec).ID

	rec = s.do(http.MethodPut, "/admin/orders/"+id+"/status", StatusReq{Status: "pending_payment"}, asAdmin())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, orders.StatusPendingPayment, decodeBody[OrderResp](t, rec).Status)

	rec = s.do(http.MethodPut, "/admin/orders/"+id+"/status", StatusReq{Status: "CANCELLED"}, asAdmin())
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPut, "/admin/orders/"+id+"/status", StatusReq{Status: "LOST"}, asAdmin())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)
	p := s.createProduct("P", 5)
	rec := s.do(http.MethodPost, "/orders", CreateOrderReq{Items: []OrderItemReq{{ProductID: p.ID, Quantity: 1}}}, as("alice"))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeBody[OrderResp](t, rec).ID
	path := "/admin/orders/" + id + "/status"

	rec = s.do(http.MethodPut, path, StatusReq{Status: "PAID"}, as("alice"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "an ordinary user has no admin token")

	wrong := as("alice")
	wrong[HeaderAdminToken] = "guess"
	rec = s.do(http.MethodPut, path, StatusReq{Status: "PAID"}, wrong)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodGet, "/orders/"+id, nil, as("alice"))
	assert.Equal(t, orders.StatusCreated, decodeBody[OrderResp](t, rec).Status, "rejected calls change nothing")
}

func TestAdminRoutesClosedWithoutConfiguredToken(t *testing.T) {
	store := memstore.New()
	logger := zap.NewNop()
	tenants := tenant.NewService(store.Tenants(), logger)
	_, err := tenants.Register(context.Background(), tenant.Tenant{ID: "acme"})
	require.NoError(t, err)
	orderSvc := orders.NewService(store.Orders(), nil, logger, "order-api-test")
	s := &testServer{t: t, router: NewRouter(Deps{
		Tenants: tenants,
		Orders:  orderSvc,
		Admin:   orders.NewAdminService(orderSvc),
		Logger:  logger,
	})}

	headers := map[string]string{HeaderTenantID: "acme", HeaderAdminToken: ""}
	rec := s.do(http.MethodPut, "/admin/orders/o-1/status", StatusReq{Status: "PAID"}, headers)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	headers[HeaderAdminToken] = "anything"
	rec = s.do(http.MethodPut, "/admin/orders/o-1/status", StatusReq{Status: "PAID"}, headers)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPagingRejectsOutOfRangeOffset(t *testing.T) {
	s := newTestServer(t)
	for _, q := range []string{"offset=-1", "offset=9223372036854775807", "offset=99999999"} {
		rec := s.do(http.MethodGet, "/products?"+q, nil, as(""))
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		rec = s.do(http.MethodGet, "/orders?"+q+"&limit=100", nil, as("alice"))
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
	rec := s.do(http.MethodGet, "/products?offset=21474836&limit=100", nil, as(""))
	require.Equal(t, http.StatusOK, rec.Code, "the last addressable page is allowed")
	assert.Empty(t, decodeBody[[]ProductResp](t, rec))
}

func TestUserEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/users", UserReq{
		Username:  "carol",
		Email:     "carol@example.com",
		BirthDate: "1990-04-01",
		Phone:     &PhoneDTO{CountryCode: "+84", Number: "911"},
	}, as(""))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	carol := decodeBody[UserResp](t, rec)
	assert.Equal(t, "/users/"+carol.ID, rec.Header().Get("Location"))
	assert.Equal(t, "1990-04-01", carol.BirthDate)
	assert.Equal(t, users.StatusActive, carol.Status)

	rec = s.do(http.MethodPost, "/users", UserReq{Username: "carol", Email: "c2@example.com"}, as(""))
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = s.do(http.MethodPost, "/users", UserReq{Username: "dave", Email: "carol@example.com"}, as(""))
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = s.do(http.MethodPost, "/users", UserReq{Username: "dave", Email: "d@example.com", Phone: &PhoneDTO{Number: "1"}}, as(""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(http.MethodPost, "/users", UserReq{Username: "dave", Email: "d@example.com", BirthDate: "01/04/1990"}, as(""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPatch, "/users/"+carol.ID, map[string]any{"phone": map[string]string{"countryCode": "+84", "number": "911"}}, as(""))
	require.Equal(t, http.StatusOK, rec.Code, "own phone is not a conflict")
	rec = s.do(http.MethodPatch, "/users/bob", map[string]any{"phone": map[string]string{"countryCode": "+84", "number": "911"}}, as(""))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodGet, "/users?limit=10", nil, as(""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]UserResp](t, rec), 3)

	rec = s.do(http.MethodPost, "/users/"+carol.ID+"/addresses", AddressReq{Type: "HOME", Street: "1 Main St", City: "Hue"}, as(""))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	addr := decodeBody[AddressResp](t, rec)
	assert.Equal(t, "/users/"+carol.ID+"/addresses/"+addr.ID, rec.Header().Get("Location"))

	rec = s.do(http.MethodPatch, "/users/"+carol.ID+"/addresses/"+addr.ID, map[string]any{"postalCode": "530000"}, as(""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "530000", decodeBody[AddressResp](t, rec).PostalCode)

	rec = s.do(http.MethodGet, "/users/bob/addresses/"+addr.ID, nil, as(""))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(http.MethodPost, "/users/ghost/addresses", AddressReq{Type: "HOME", Street: "s", City: "c"}, as(""))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/users/"+carol.ID+"/addresses", nil, as(""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]AddressResp](t, rec), 1)

	rec = s.do(http.MethodDelete, "/users/"+carol.ID, nil, as(""))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(http.MethodGet, "/users/"+carol.ID, nil, as(""))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrderForUnknownOrSuspendedUser(t *testing.T) {
	s := newTestServer(t)
	p := s.createProduct("P", 5)
	body := CreateOrderReq{Items: []OrderItemReq{{ProductID: p.ID, Quantity: 1}}}

	rec := s.do(http.MethodPost, "/orders", body, as("mallory"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodPatch, "/users/bob", map[string]any{"status": "SUSPENDED"}, as(""))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = s.do(http.MethodPost, "/orders", body, as("bob"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodGet, "/products/"+p.ID, nil, as(""))
	assert.Equal(t, 5, decodeBody[ProductResp](t, rec).StockQuantity)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusOf(&inventory.InsufficientStockError{}))
	assert.Equal(t, http.StatusConflict, statusOf(inventory.ErrConcurrentUpdate))
	assert.Equal(t, http.StatusNotFound, statusOf(inventory.ErrProductNotFound))
	assert.Equal(t, http.StatusNotFound, statusOf(users.ErrAddressNotFound))
	assert.Equal(t, http.StatusConflict, statusOf(users.ErrPhoneExists))
	assert.Equal(t, http.StatusForbidden, statusOf(users.ErrUserInactive))
	assert.Equal(t, http.StatusInternalServerError, statusOf(assert.AnError))
}
