package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/app"
	"github.com/noah-isme/backend-kasir/internal/auth"
	"github.com/noah-isme/backend-kasir/internal/config"
	"github.com/noah-isme/backend-kasir/internal/ratelimit"
)

const testSecret = "router-test-secret"

func testRouter(t *testing.T, rate string) http.Handler {
	t.Helper()
	cfg := &config.Config{
		StoreDriver:      config.StoreDriverMemory,
		SaleNumberPrefix: "TRX",
		SaleMaxAttempts:  2,
		JWTSecret:        testSecret,
	}
	deps, err := app.Build(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close() })

	store, err := ratelimit.NewStore(nil, "test")
	require.NoError(t, err)
	lim, err := ratelimit.New(rate, store)
	require.NoError(t, err)

	return newRouter(routerConfig{
		Deps:        deps,
		Verifier:    auth.NewVerifier(testSecret, auth.TokenValidator{}),
		SaleLimiter: lim,
	})
}

func bearer(t *testing.T) string {
	t.Helper()
	tok, err := jwt.NewBuilder().
		Subject(uuid.NewString()).
		IssuedAt(time.Now()).
		Expiration(time.Now().Add(time.Hour)).
		Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte(testSecret)))
	require.NoError(t, err)
	return "Bearer " + string(signed)
}

func TestRouterHealth(t *testing.T) {
	r := testRouter(t, "60-M")

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestRouterRequiresBearer(t *testing.T) {
	r := testRouter(t, "60-M")
	for _, path := range []string{"/api/v1/products/1", "/api/v1/promos", "/api/v1/transactions/1"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusUnauthorized, rr.Code, path)
	}
}

func TestRouterAuthenticatedLookups(t *testing.T) {
	r := testRouter(t, "60-M")
	token := bearer(t)

	for _, path := range []string{"/api/v1/products/1", "/api/v1/branches/1", "/api/v1/transactions/1"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", token)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		require.Equal(t, http.StatusNotFound, rr.Code, path+": "+rr.Body.String())
	}
}

func TestRouterRateLimitsSales(t *testing.T) {
	r := testRouter(t, "1-M")
	token := bearer(t)

	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions", strings.NewReader(`{"items":[]}`))
		req.Header.Set("Authorization", token)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr
	}

	first := post()
	require.Equal(t, http.StatusUnprocessableEntity, first.Code, first.Body.String())
	require.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))

	second := post()
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	require.Contains(t, second.Body.String(), "RATE_LIMITED")
}
