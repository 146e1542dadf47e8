package sale

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/db"
)

type ItemView struct {
	ID              int64            `json:"id"`
	ProductID       int64            `json:"productId"`
	ProductName     string           `json:"productName"`
	CategoryName    string           `json:"categoryName"`
	Price           decimal.Decimal  `json:"price"`
	Quantity        int32            `json:"quantity"`
	PromoID         *int64           `json:"promoId"`
	DiscountPercent *decimal.Decimal `json:"discountPercent"`
	DiscountPrice   *decimal.Decimal `json:"discountPrice"`
	LineTotal       decimal.Decimal  `json:"lineTotal"`
}

// View is the JSON shape of a committed sale.
type View struct {
	ID                int64            `json:"id"`
	TransactionNumber string           `json:"transactionNumber"`
	CustomerName      *string          `json:"customerName"`
	CustomerPhone     *string          `json:"customerPhone"`
	BranchID          int64            `json:"branchId"`
	UserID            uuid.UUID        `json:"userId"`
	DiscountType      *db.DiscountType `json:"discountType"`
	DiscountValue     *decimal.Decimal `json:"discountValue"`
	Subtotal          decimal.Decimal  `json:"subtotal"`
	TotalAmount       decimal.Decimal  `json:"totalAmount"`
	PaymentAmount     *decimal.Decimal `json:"paymentAmount"`
	ChangeAmount      *decimal.Decimal `json:"changeAmount"`
	CreatedAt         time.Time        `json:"createdAt"`
	Items             []ItemView       `json:"items"`
}

func NewView(s Sale) View {
	tx := s.Transaction
	v := View{
		ID:                tx.ID,
		TransactionNumber: tx.TransactionNumber,
		CustomerName:      tx.CustomerName,
		CustomerPhone:     tx.CustomerPhone,
		BranchID:          tx.BranchID,
		UserID:            tx.UserID,
		DiscountType:      tx.DiscountType,
		DiscountValue:     tx.DiscountValue,
		Subtotal:          tx.Subtotal,
		TotalAmount:       tx.TotalAmount,
		PaymentAmount:     tx.PaymentAmount,
		ChangeAmount:      tx.ChangeAmount,
		CreatedAt:         tx.CreatedAt,
		Items:             make([]ItemView, 0, len(s.Items)),
	}
	for _, it := range s.Items {
		v.Items = append(v.Items, ItemView{
			ID:              it.ID,
			ProductID:       it.ProductID,
			ProductName:     it.ProductName,
			CategoryName:    it.CategoryName,
			Price:           it.Price,
			Quantity:        it.Quantity,
			PromoID:         it.PromoID,
			DiscountPercent: it.DiscountPercent,
			DiscountPrice:   it.DiscountPrice,
			LineTotal:       it.LineTotal,
		})
	}
	return v
}

// Handler exposes the transaction endpoints.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts the transaction endpoints. create wraps only the POST, where
// rate limiting and idempotency replay belong.
func (h *Handler) Routes(r chi.Router, create ...func(http.Handler) http.Handler) {
	r.With(create...).Post("/", h.Create)
	r.Get("/{id}", h.Get)
}

func caller(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := common.UserUUID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
	}
	return id, ok
}

// Create handles POST /api/v1/transactions.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	var in Input
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		if errors.Is(err, io.EOF) {
			common.WriteError(w, common.ValidationError("request body is required"))
			return
		}
		common.WriteError(w, common.ValidationError("invalid request body: "+err.Error()))
		return
	}
	sale, err := h.service.Create(r.Context(), user, in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, NewView(sale))
}

// Get handles GET /api/v1/transactions/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := common.ParseID(chi.URLParam(r, "id"))
	if !ok {
		common.WriteError(w, common.ValidationError("invalid transaction id"))
		return
	}
	sale, err := h.service.Get(r.Context(), user, id)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, NewView(sale))
}
