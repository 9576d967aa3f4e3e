package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/shopbee/order-service/internal/inventory"
	"github.com/shopbee/order-service/internal/orders"
	"github.com/shopbee/order-service/internal/tenant"
	"github.com/shopbee/order-service/internal/users"
)

type errorBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorWriter struct {
	logger *zap.Logger
}

// write maps domain errors onto status codes. Unknown errors are logged and
// reported as 500 without their text.
func (e errorWriter) write(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		e.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		msg = "internal server error"
	}
	writeJSON(w, code, errorBody{Message: msg})
}

// tenant reports a header that does not name an active tenant as 401.
func (e errorWriter) tenant(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tenant.ErrInvalidTenant),
		errors.Is(err, tenant.ErrTenantNotFound),
		errors.Is(err, tenant.ErrTenantInactive):
		writeJSON(w, http.StatusUnauthorized, errorBody{Message: err.Error()})
	default:
		e.write(w, r, err)
	}
}

func statusOf(err error) int {
	var (
		insufficient *inventory.InsufficientStockError
		transition   *orders.InvalidStateTransitionError
	)
	switch {
	case errors.As(err, &insufficient),
		errors.As(err, &transition),
		errors.Is(err, inventory.ErrSKUExists),
		errors.Is(err, inventory.ErrConcurrentUpdate),
		errors.Is(err, tenant.ErrTenantExists),
		errors.Is(err, users.ErrUsernameExists),
		errors.Is(err, users.ErrEmailExists),
		errors.Is(err, users.ErrPhoneExists):
		return http.StatusConflict
	case errors.Is(err, inventory.ErrProductNotFound),
		errors.Is(err, orders.ErrOrderNotFound),
		errors.Is(err, tenant.ErrTenantNotFound),
		errors.Is(err, users.ErrUserNotFound),
		errors.Is(err, users.ErrAddressNotFound):
		return http.StatusNotFound
	case errors.Is(err, orders.ErrForbidden),
		errors.Is(err, users.ErrUserInactive):
		return http.StatusForbidden
	case errors.Is(err, orders.ErrInvalidRequest),
		errors.Is(err, orders.ErrInvalidStatus),
		errors.Is(err, inventory.ErrInvalidProduct),
		errors.Is(err, tenant.ErrInvalidTenant),
		errors.Is(err, users.ErrInvalidUser),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, tenant.ErrTenantInactive):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}
