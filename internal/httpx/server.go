package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/shopbee/order-service/internal/inventory"
	"github.com/shopbee/order-service/internal/orders"
	"github.com/shopbee/order-service/internal/tenant"
	"github.com/shopbee/order-service/internal/users"
)

// Deps are the services the router dispatches to. AdminToken guards the
// /admin routes; when empty they answer 403.
type Deps struct {
	Tenants    *tenant.Service
	Products   *inventory.Service
	Users      *users.Service
	Orders     *orders.Service
	Admin      *orders.AdminService
	AdminToken string
	Logger     *zap.Logger
	Timeout    time.Duration
}

func NewRouter(d Deps) *chi.Mux {
	if d.Timeout <= 0 {
		d.Timeout = 15 * time.Second
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(d.Logger), middleware.Recoverer)
	r.Use(middleware.Timeout(d.Timeout))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	eh := errorWriter{logger: d.Logger}
	(&TenantsHandler{Tenants: d.Tenants, errs: eh}).Register(r)

	r.Group(func(r chi.Router) {
		r.Use(requireTenant(d.Tenants, eh))
		(&ProductsHandler{Products: d.Products, errs: eh}).Register(r)
		(&UsersHandler{Users: d.Users, errs: eh}).Register(r)
		r.Group(func(r chi.Router) {
			r.Use(requireAdmin(d.AdminToken))
			(&AdminHandler{Admin: d.Admin, errs: eh}).Register(r)
		})
		r.Group(func(r chi.Router) {
			r.Use(requireUser(eh))
			(&OrdersHandler{Orders: d.Orders, errs: eh}).Register(r)
		})
	})
	return r
}
