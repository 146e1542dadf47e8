package promo

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/db"
)

// View is the JSON shape of a promo.
type View struct {
	ID               int64            `json:"id"`
	Name             string           `json:"name"`
	ScopeType        db.ScopeType     `json:"scopeType"`
	ScopeID          int64            `json:"scopeId"`
	StartDate        time.Time        `json:"startDate"`
	EndDate          time.Time        `json:"endDate"`
	PercentDiscount  *decimal.Decimal `json:"percentDiscount"`
	PriceDiscount    *decimal.Decimal `json:"priceDiscount"`
	UsageLimit       *int32           `json:"usageLimit"`
	UsedCount        int32            `json:"usedCount"`
	ImpactedProducts int32            `json:"impactedProducts"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

func NewView(p db.Promo) View {
	return View{
		ID:               p.ID,
		Name:             p.Name,
		ScopeType:        p.ScopeType,
		ScopeID:          p.ScopeID,
		StartDate:        p.StartDate,
		EndDate:          p.EndDate,
		PercentDiscount:  p.PercentDiscount,
		PriceDiscount:    p.PriceDiscount,
		UsageLimit:       p.UsageLimit,
		UsedCount:        p.UsedCount,
		ImpactedProducts: p.ImpactedProducts,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

// ActiveView is the response of the active promo lookup.
type ActiveView struct {
	ProductID       int64            `json:"productId"`
	At              time.Time        `json:"at"`
	Promo           *View            `json:"promo"`
	BasePrice       decimal.Decimal  `json:"basePrice"`
	PromoPrice      decimal.Decimal  `json:"promoPrice"`
	DiscountPercent *decimal.Decimal `json:"discountPercent"`
	DiscountPrice   *decimal.Decimal `json:"discountPrice"`
}

// HistoryView is one price-history row.
type HistoryView struct {
	ID         int64           `json:"id"`
	PromoID    int64           `json:"promoId"`
	ProductID  int64           `json:"productId"`
	BasePrice  decimal.Decimal `json:"basePrice"`
	PromoPrice decimal.Decimal `json:"promoPrice"`
	RecordedAt time.Time       `json:"recordedAt"`
}

// Handler exposes promo endpoints.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts the promo administration endpoints under /promos.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/price-history", h.PriceHistory)
	r.Get("/impacted", h.Impacted)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
}

func owner(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := common.UserUUID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
	}
	return id, ok
}

func decodeInput(r *http.Request) (Input, error) {
	var in Input
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		if errors.Is(err, io.EOF) {
			return in, common.ValidationError("request body is required")
		}
		return in, common.ValidationError("invalid request body: " + err.Error())
	}
	return in, nil
}

// Active handles GET /api/v1/products/{id}/promo.
func (h *Handler) Active(w http.ResponseWriter, r *http.Request) {
	user, ok := owner(w, r)
	if !ok {
		return
	}
	productID, ok := common.ParseID(chi.URLParam(r, "id"))
	if !ok {
		common.WriteError(w, common.ValidationError("invalid product id"))
		return
	}
	var at time.Time
	if raw := strings.TrimSpace(r.URL.Query().Get("at")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			common.WriteError(w, common.ValidationError("at must be an RFC3339 timestamp", common.FieldError{Field: "at", Message: "must be RFC3339"}))
			return
		}
		at = parsed
	}
	idx, err := h.service.catalog.ScopeIndex(r.Context(), user)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if !idx.Contains(db.ScopeTypeProduct, productID) {
		common.WriteError(w, common.NotFoundError("product", productID))
		return
	}
	res, err := h.service.ResolveActive(r.Context(), productID, at)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	view := ActiveView{
		ProductID:       res.ProductID,
		At:              res.At,
		BasePrice:       res.Price.Base,
		PromoPrice:      res.Price.Final,
		DiscountPercent: res.Price.PercentDiscount,
		DiscountPrice:   res.Price.PriceDiscount,
	}
	if res.Promo != nil {
		v := NewView(*res.Promo)
		view.Promo = &v
	}
	common.Data(w, http.StatusOK, view)
}

// Create handles POST /api/v1/promos.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := owner(w, r)
	if !ok {
		return
	}
	in, err := decodeInput(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	p, err := h.service.Create(r.Context(), user, in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, NewView(p))
}

// Update handles PUT /api/v1/promos/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := owner(w, r)
	if !ok {
		return
	}
	id, ok := common.ParseID(chi.URLParam(r, "id"))
	if !ok {
		common.WriteError(w, common.ValidationError("invalid promo id"))
		return
	}
	in, err := decodeInput(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	p, err := h.service.Update(r.Context(), user, id, in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, NewView(p))
}

// Get handles GET /api/v1/promos/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := owner(w, r)
	if !ok {
		return
	}
	id, ok := common.ParseID(chi.URLParam(r, "id"))
	if !ok {
		common.WriteError(w, common.ValidationError("invalid promo id"))
		return
	}
	p, err := h.service.Get(r.Context(), user, id)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, NewView(p))
}

// List handles GET /api/v1/promos.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := owner(w, r)
	if !ok {
		return
	}
	promos, err := h.service.List(r.Context(), user, common.AtoiDefault(r.URL.Query().Get("limit"), 0))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	views := make([]View, 0, len(promos))
	for _, p := range promos {
		views = append(views, NewView(p))
	}
	common.Data(w, http.StatusOK, views)
}

// PriceHistory handles GET /api/v1/promos/price-history.
func (h *Handler) PriceHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := owner(w, r)
	if !ok {
		return
	}
	rows, err := h.service.PriceHistory(r.Context(), user, common.AtoiDefault(r.URL.Query().Get("limit"), 0))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	views := make([]HistoryView, 0, len(rows))
	for _, row := range rows {
		views = append(views, HistoryView{
			ID:         row.ID,
			PromoID:    row.PromoID,
			ProductID:  row.ProductID,
			BasePrice:  row.BasePrice,
			PromoPrice: row.PromoPrice,
			RecordedAt: row.RecordedAt,
		})
	}
	common.Data(w, http.StatusOK, views)
}

// Impacted handles GET /api/v1/promos/impacted?ids=1,2.
func (h *Handler) Impacted(w http.ResponseWriter, r *http.Request) {
	user, ok := owner(w, r)
	if !ok {
		return
	}
	ids, ok := common.ParseIDList(r.URL.Query().Get("ids"))
	if !ok {
		common.WriteError(w, common.ValidationError("ids must be a comma separated list of promo ids"))
		return
	}
	count, err := h.service.ImpactedProducts(r.Context(), user, ids)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, map[string]any{"promoIds": ids, "impactedProducts": count})
}
