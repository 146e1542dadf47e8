package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/backend-kasir/internal/app"
	"github.com/noah-isme/backend-kasir/internal/auth"
	"github.com/noah-isme/backend-kasir/internal/catalog"
	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/health"
	"github.com/noah-isme/backend-kasir/internal/obs"
	"github.com/noah-isme/backend-kasir/internal/promo"
	"github.com/noah-isme/backend-kasir/internal/ratelimit"
	"github.com/noah-isme/backend-kasir/internal/sale"
	"github.com/noah-isme/backend-kasir/internal/security"
)

type routerConfig struct {
	Deps        *app.Dependencies
	Verifier    *auth.Verifier
	SaleLimiter *limiter.Limiter
	Metrics     *obs.HTTPMetrics
	Tracing     bool
}

func newRouter(rc routerConfig) http.Handler {
	deps := rc.Deps
	cfg := deps.Config
	logger := deps.Logger

	authMiddleware := auth.Middleware{Verifier: rc.Verifier}
	idem := common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL}
	saleLimit := ratelimit.Handler{
		Limiter: rc.SaleLimiter,
		Key:     ratelimit.ByUser,
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate limit store unavailable") },
	}

	catalogHandler := catalog.NewHandler(deps.Catalog)
	promoHandler := promo.NewHandler(deps.Promo)
	saleHandler := sale.NewHandler(deps.Sales)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(security.Headers{}.Middleware)
	r.Use(security.BodyLimit{Max: security.DefaultMaxBody}.Middleware)
	r.Use(obs.RoutePatternMiddleware)
	if rc.Tracing {
		r.Use(obs.Tracing(cfg.TracingService))
	}
	if rc.Metrics != nil {
		r.Use(obs.HTTPObs{Metrics: rc.Metrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg.CORSAllowedOrigins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if rc.Metrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}

	healthHandler := health.Handler{Checker: health.Deps{Store: deps.Store, Redis: deps.Redis}}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(authMiddleware.RequireAuth)

		v.Get("/branches/{id}", catalogHandler.Branch)
		v.Get("/products/{id}", catalogHandler.Product)
		v.Get("/products/{id}/promo", promoHandler.Active)
		v.Route("/promos", promoHandler.Routes)
		v.Route("/transactions", func(t chi.Router) {
			saleHandler.Routes(t, saleLimit.Middleware, idem.Middleware)
		})
	})
	return r
}

func allowedOrigins(configured []string) []string {
	if len(configured) == 0 {
		return []string{"*"}
	}
	return configured
}
