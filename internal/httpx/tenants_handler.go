package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shopbee/order-service/internal/tenant"
)

type TenantsHandler struct {
	Tenants *tenant.Service
	errs    errorWriter
}

func (h *TenantsHandler) Register(r chi.Router) {
	r.Post("/tenants", h.register)
	r.Get("/tenants/{tenantId}", h.get)
}

func (h *TenantsHandler) register(w http.ResponseWriter, r *http.Request) {
	var req TenantReq
	if err := decode(r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}
	t, err := h.Tenants.Register(r.Context(), tenant.Tenant{
		ID:       req.TenantID,
		Realm:    req.Realm,
		ClientID: req.ClientID,
		Status:   tenant.Status(req.Status),
	})
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	w.Header().Set("Location", "/tenants/"+t.ID)
	writeJSON(w, http.StatusCreated, toTenantResp(t))
}

func (h *TenantsHandler) get(w http.ResponseWriter, r *http.Request) {
	t, err := h.Tenants.Get(r.Context(), chi.URLParam(r, "tenantId"))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTenantResp(t))
}
