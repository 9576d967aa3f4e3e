package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shopbee/order-service/internal/inventory"
	"github.com/shopbee/order-service/internal/tenant"
)

type ProductsHandler struct {
	Products *inventory.Service
	errs     errorWriter
}

func (h *ProductsHandler) Register(r chi.Router) {
	r.Route("/products", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Put("/{id}", h.update)
		r.Patch("/{id}", h.patch)
		r.Delete("/{id}", h.delete)
		r.Post("/{id}/restock", h.restock)
	})
}

func (h *ProductsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req ProductReq
	if err := decode(r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}
	p, err := h.Products.CreateProduct(r.Context(), tenant.IDFrom(r.Context()), inventory.CreateProductRequest{
		SKU:           req.SKU,
		Name:          req.Name,
		Price:         req.Price,
		StockQuantity: req.StockQuantity,
	})
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	w.Header().Set("Location", "/products/"+p.ID)
	writeJSON(w, http.StatusCreated, toProductResp(p))
}

func (h *ProductsHandler) list(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := paging(r)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	ps, err := h.Products.ListProducts(r.Context(), tenant.IDFrom(r.Context()), offset, limit)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	out := make([]ProductResp, 0, len(ps))
	for i := range ps {
		out = append(out, toProductResp(&ps[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *ProductsHandler) get(w http.ResponseWriter, r *http.Request) {
	p, err := h.Products.GetProduct(r.Context(), tenant.IDFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResp(p))
}

func (h *ProductsHandler) update(w http.ResponseWriter, r *http.Request) {
	var req ProductReq
	if err := decode(r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}
	p, err := h.Products.UpdateProduct(r.Context(), tenant.IDFrom(r.Context()), chi.URLParam(r, "id"),
		inventory.UpdateProductRequest{SKU: req.SKU, Name: req.Name, Price: req.Price})
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResp(p))
}

func (h *ProductsHandler) patch(w http.ResponseWriter, r *http.Request) {
	var req ProductPatchReq
	if err := decode(r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}
	p, err := h.Products.PatchProduct(r.Context(), tenant.IDFrom(r.Context()), chi.URLParam(r, "id"),
		inventory.PatchProductRequest{SKU: req.SKU, Name: req.Name, Price: req.Price})
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResp(p))
}

func (h *ProductsHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Products.DeleteProduct(r.Context(), tenant.IDFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.errs.write(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProductsHandler) restock(w http.ResponseWriter, r *http.Request) {
	var req RestockReq
	if err := decode(r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}
	p, err := h.Products.Restock(r.Context(), tenant.IDFrom(r.Context()), chi.URLParam(r, "id"), req.Quantity)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResp(p))
}
