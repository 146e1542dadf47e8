package catalog

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/db"
)

// Handler exposes read-only catalog endpoints scoped to the caller.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Product handles GET /api/v1/products/{id}.
func (h *Handler) Product(w http.ResponseWriter, r *http.Request) {
	owner, ok := common.UserUUID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	id, ok := common.ParseID(chi.URLParam(r, "id"))
	if !ok {
		common.WriteError(w, common.ValidationError("invalid product id"))
		return
	}
	idx, err := h.service.ScopeIndex(r.Context(), owner)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if !idx.Contains(db.ScopeTypeProduct, id) {
		common.WriteError(w, common.NotFoundError("product", id))
		return
	}
	product, err := h.service.Product(r.Context(), id)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, product)
}

// Branch handles GET /api/v1/branches/{id}.
func (h *Handler) Branch(w http.ResponseWriter, r *http.Request) {
	owner, ok := common.UserUUID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	id, ok := common.ParseID(chi.URLParam(r, "id"))
	if !ok {
		common.WriteError(w, common.ValidationError("invalid branch id"))
		return
	}
	branch, err := h.service.Branch(r.Context(), id)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if branch.OwnerID != owner {
		common.WriteError(w, common.NotFoundError("branch", id))
		return
	}
	common.Data(w, http.StatusOK, branch)
}
