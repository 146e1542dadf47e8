package sale_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/sale"
)

func newRouter(f *fixture, user *uuid.UUID) http.Handler {
	h := sale.NewHandler(f.service(nil))
	r := chi.NewRouter()
	if user != nil {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				next.ServeHTTP(w, r.WithContext(common.WithUserID(r.Context(), user.String())))
			})
		})
	}
	r.Route("/api/v1/transactions", func(r chi.Router) { h.Routes(r) })
	return r
}

func TestHandlersCreateAndGet(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f, &f.cashier)

	body := fmt.Sprintf(`{"branchId":%d,"customerName":"Budi","discountType":"percent","discountValue":"10","paymentAmount":"200000","items":[{"productId":%d,"quantity":1},{"productId":%d,"quantity":2}]}`,
		f.branch.ID, f.rice.ID, f.oil.ID)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/transactions", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Data sale.View `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.True(t, created.Data.TotalAmount.Equal(dec("180000")), created.Data.TotalAmount.String())
	require.Len(t, created.Data.Items, 2)
	require.Equal(t, "Budi", *created.Data.CustomerName)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/transactions/%d", created.Data.ID), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), created.Data.TransactionNumber)
}

func TestHandlersRejectBadPayloads(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f, &f.cashier)

	cases := map[string]string{
		"empty body":    ``,
		"unknown field": `{"branchId":1,"items":[],"tip":"5"}`,
		"no items":      fmt.Sprintf(`{"branchId":%d,"items":[]}`, f.branch.ID),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/transactions", strings.NewReader(body)))
			require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
			require.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
		})
	}
}

func TestHandlersRequireUser(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/transactions/1", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlersGetUnknownTransaction(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f, &f.cashier)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/transactions/42", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlersCreateAtForeignBranch(t *testing.T) {
	f := newFixture(t)
	stranger := uuid.New()
	router := newRouter(f, &stranger)

	body := fmt.Sprintf(`{"branchId":%d,"items":[{"productId":%d,"quantity":1}]}`, f.branch.ID, f.rice.ID)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/transactions", strings.NewReader(body)))
	require.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), "NOT_FOUND")
}
