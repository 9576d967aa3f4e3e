package httpx

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/shopbee/order-service/internal/orders"
	"github.com/shopbee/order-service/internal/tenant"
)

const (
	HeaderTenantID       = "tenantId"
	HeaderUserID         = "X-User-Id"
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderAdminToken     = "X-Admin-Token"
)

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("tenant_id", r.Header.Get(HeaderTenantID)))
		})
	}
}

// requireTenant resolves the tenant header to an active tenant and stores
// its id in the request context.
func requireTenant(tenants *tenant.Service, eh errorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t, err := tenants.Resolve(r.Context(), r.Header.Get(HeaderTenantID))
			if err != nil {
				eh.tenant(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(tenant.WithID(r.Context(), t.ID)))
		})
	}
}

// requireAdmin admits requests carrying the configured operator token. With
// no token configured every admin request is refused.
func requireAdmin(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(HeaderAdminToken)
			switch {
			case got == "":
				writeJSON(w, http.StatusUnauthorized, errorBody{Message: "missing " + HeaderAdminToken + " header"})
				return
			case token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1:
				writeJSON(w, http.StatusForbidden, errorBody{Message: "admin access denied"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type userKey struct{}

func requireUser(eh errorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(HeaderUserID))
			if id == "" {
				eh.write(w, r, fmt.Errorf("%w: missing %s header", orders.ErrInvalidRequest, HeaderUserID))
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, id)))
		})
	}
}

func userFrom(ctx context.Context) string {
	id, _ := ctx.Value(userKey{}).(string)
	return id
}
