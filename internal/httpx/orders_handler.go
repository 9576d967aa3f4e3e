package httpx

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/shopbee/order-service/internal/orders"
	"github.com/shopbee/order-service/internal/tenant"
)

type OrdersHandler struct {
	Orders *orders.Service
	errs   errorWriter
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{orderId}", h.getOrder)
	r.Post("/orders/{orderId}/cancel", h.cancelOrder)
}

// createOrder answers 201 for a new order and 200 when the Idempotency-Key
// matched an existing one.
func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := decode(r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}
	ctx := r.Context()
	key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
	o, existed, err := h.Orders.CreateOrder(ctx, tenant.IDFrom(ctx), userFrom(ctx), req.toDomain(key))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	w.Header().Set("Location", "/orders/"+o.ID)
	code := http.StatusCreated
	if existed {
		code = http.StatusOK
	}
	writeJSON(w, code, toOrderResp(o))
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := paging(r)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	ctx := r.Context()
	list, err := h.Orders.GetOrders(ctx, tenant.IDFrom(ctx), userFrom(ctx), offset, limit)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	out := make([]OrderResp, 0, len(list))
	for i := range list {
		out = append(out, toOrderResp(&list[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	o, err := h.Orders.GetOrderByID(ctx, tenant.IDFrom(ctx), userFrom(ctx), chi.URLParam(r, "orderId"))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	o, err := h.Orders.CancelOrder(ctx, tenant.IDFrom(ctx), userFrom(ctx), chi.URLParam(r, "orderId"))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

type AdminHandler struct {
	Admin *orders.AdminService
	errs  errorWriter
}

func (h *AdminHandler) Register(r chi.Router) {
	r.Put("/admin/orders/{orderId}/status", h.updateStatus)
}

func (h *AdminHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusReq
	if err := decode(r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}
	status, err := orders.ParseStatus(req.Status)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	ctx := r.Context()
	o, err := h.Admin.UpdateStatus(ctx, tenant.IDFrom(ctx), chi.URLParam(r, "orderId"), status)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResp(o))
}
