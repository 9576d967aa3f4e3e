package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shopbee/order-service/internal/tenant"
	"github.com/shopbee/order-service/internal/users"
)

type UsersHandler struct {
	Users *users.Service
	errs  errorWriter
}

func (h *UsersHandler) Register(r chi.Router) {
	r.Route("/users", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Route("/{userId}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Put("/", h.update)
			r.Patch("/", h.patch)
			r.Delete("/", h.delete)

			r.Get("/addresses", h.listAddresses)
			r.Post("/addresses", h.createAddress)
			r.Get("/addresses/{addressId}", h.getAddress)
			r.Put("/addresses/{addressId}", h.updateAddress)
			r.Patch("/addresses/{addressId}", h.patchAddress)
			r.Delete("/addresses/{addressId}", h.deleteAddress)
		})
	})
}

func (h *UsersHandler) create(w http.ResponseWriter, r *http.Request) {
	var req UserReq
	if err := decode(r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}
	in, err := req.toCreate()
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	u, err := h.Users.CreateUser(r.Context(), tenant.IDFrom(r.Context()), in)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	w.Header().Set("Location", "/users/"+u.ID)
	writeJSON(w, http.StatusCreated, toUserResp(u))
}

func (h *UsersHandler) list(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := paging(r)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	us, err := h.Users.ListUsers(r.Context(), tenant.IDFrom(r.Context()), offset, limit)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	out := make([]UserResp, 0, len(us))
	for i := range us {
		out = append(out, toUserResp(&us[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *UsersHandler) get(w http.ResponseWriter, r *http.Request) {
	u, err := h.Users.GetUser(r.Context(), tenant.IDFrom(r.Context()), chi.URLParam(r, "userId"))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResp(u))
}

func (h *UsersHandler) update(w http.ResponseWriter, r *http.Request) {
	var req UserReq
	if err := decode(r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}
	in, err := req.toUpdate()
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	u, err := h.Users.UpdateUser(r.Context(), tenant.IDFrom(r.Context()), chi.URLParam(r, "userId"), in)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResp(u))
}

func (h *UsersHandler) patch(w http.ResponseWriter, r *http.Request) {
	var req UserPatchReq
	if err := decode(r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}
	in, err := req.toDomain()
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	u, err := h.Users.PatchUser(r.Context(), tenant.IDFrom(r.Context()), chi.URLParam(r, "userId"), in)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResp(u))
}

func (h *UsersHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Users.DeleteUser(r.Context(), tenant.IDFrom(r.Context()), chi.URLParam(r, "userId")); err != nil {
		h.errs.write(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UsersHandler) listAddresses(w http.ResponseWriter, r *http.Request) {
	as, err := h.Users.ListAddresses(r.Context(), tenant.IDFrom(r.Context()), chi.URLParam(r, "userId"))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	out := make([]AddressResp, 0, len(as))
	for i := range as {
		out = append(out, toAddressResp(&as[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *UsersHandler) createAddress(w http.ResponseWriter, r *http.Request) {
	var req AddressReq
	if err := decode(r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}
	userID := chi.URLParam(r, "userId")
	a, err := h.Users.CreateAddress(r.Context(), tenant.IDFrom(r.Context()), userID, req.toDomain())
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	w.Header().Set("Location", "/users/"+userID+"/addresses/"+a.ID)
	writeJSON(w, http.StatusCreated, toAddressResp(a))
}

func (h *UsersHandler) getAddress(w http.ResponseWriter, r *http.Request) {
	a, err := h.Users.GetAddress(r.Context(), tenant.IDFrom(r.Context()),
		chi.URLParam(r, "userId"), chi.URLParam(r, "addressId"))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAddressResp(a))
}

func (h *UsersHandler) updateAddress(w http.ResponseWriter, r *http.Request) {
	var req AddressReq
	if err := decode(r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}
	a, err := h.Users.UpdateAddress(r.Context(), tenant.IDFrom(r.Context()),
		chi.URLParam(r, "userId"), chi.URLParam(r, "addressId"), req.toDomain())
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAddressResp(a))
}

func (h *UsersHandler) patchAddress(w http.ResponseWriter, r *http.Request) {
	var req AddressPatchReq
	if err := decode(r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}
	a, err := h.Users.PatchAddress(r.Context(), tenant.IDFrom(r.Context()),
		chi.URLParam(r, "userId"), chi.URLParam(r, "addressId"), req.toDomain())
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAddressResp(a))
}

func (h *UsersHandler) deleteAddress(w http.ResponseWriter, r *http.Request) {
	err := h.Users.DeleteAddress(r.Context(), tenant.IDFrom(r.Context()),
		chi.URLParam(r, "userId"), chi.URLParam(r, "addressId"))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
