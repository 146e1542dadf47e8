package promo_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/promo"
)

func newRouter(f *fixture, user uuid.UUID) http.Handler {
	h := promo.NewHandler(f.svc)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(common.WithUserID(r.Context(), user.String())))
		})
	})
	r.Get("/api/v1/products/{id}/promo", h.Active)
	r.Route("/api/v1/promos", h.Routes)
	return r
}

func TestHandlersCreateAndResolve(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f, f.owner)

	body := fmt.Sprintf(`{"name":"Diskon","scopeType":"product","scopeId":%d,"startDate":%q,"endDate":%q,"percentDiscount":"10","priceDiscount":"5000"}`,
		f.product.ID, now.Add(-time.Hour).Format(time.RFC3339), now.Add(time.Hour).Format(time.RFC3339))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/promos", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Data promo.View `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.EqualValues(t, 1, created.Data.ImpactedProducts)

	rec = httptest.NewRecorder()
	url := fmt.Sprintf("/api/v1/products/%d/promo?at=%s", f.product.ID, now.Format(time.RFC3339))
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var active struct {
		Data promo.ActiveView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &active))
	require.NotNil(t, active.Data.Promo)
	require.Equal(t, created.Data.ID, active.Data.Promo.ID)
	require.True(t, active.Data.PromoPrice.Equal(dec("85000")), active.Data.PromoPrice.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/promos/impacted?ids=%d", created.Data.ID), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), `"impactedProducts":1`)
}

func TestHandlersRejectInvalidBody(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f, f.owner)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/promos", strings.NewReader(`{"scopeType":"product"}`)))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
}

func TestHandlersHideForeignPromo(t *testing.T) {
	f := newFixture(t)
	created, err := f.svc.Create(context.Background(), f.owner, validInput(promo.ProductScope(f.product.ID)))
	require.NoError(t, err)

	router := newRouter(f, uuid.New())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/promos/%d", created.ID), nil))
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/products/%d/promo", f.product.ID), nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
