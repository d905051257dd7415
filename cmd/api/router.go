package main

import (
	"crypto/subtle"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/autogift/internal/auth"
	"github.com/noah-isme/autogift/internal/common"
	"github.com/noah-isme/autogift/internal/discounts"
	"github.com/noah-isme/autogift/internal/health"
	"github.com/noah-isme/autogift/internal/obs"
	"github.com/noah-isme/autogift/internal/ratelimit"
	"github.com/noah-isme/autogift/internal/security"
	"github.com/noah-isme/autogift/internal/tenant"
)

// routerDeps carries everything the HTTP surface needs.
type routerDeps struct {
	Logger         zerolog.Logger
	Redis          *redis.Client
	Discounts      *discounts.Handler
	Tokens         *auth.Tokens
	Resolver       *tenant.Resolver
	Limiter        ratelimit.Limiter
	LimitStrategy  string
	Health         health.Handler
	HTTPMetrics    *obs.HTTPMetrics
	Tracing        bool
	Origins        []string
	MaxBodyBytes   int64
	IdempotencyTTL time.Duration
	Pprof          bool
	PprofUser      string
	PprofPass      string
}

func newRouter(d routerDeps) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if d.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if d.HTTPMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: d.HTTPMetrics}.Middleware)
	}
	r.Use(d.Resolver.Middleware)
	r.Use(obs.RequestLogger{Logger: d.Logger}.Middleware)
	r.Use(security.Headers{Enable: true}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(d.Origins),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", tenant.DefaultHeader},
		ExposedHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		MaxAge:         300,
	}))

	if d.HTTPMetrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}
	if d.Pprof {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), d.PprofUser, d.PprofPass))
	}

	r.Get("/health/live", d.Health.Live)
	r.Get("/health/ready", d.Health.Ready)

	limit := ratelimit.Handler{
		Limiter:  d.Limiter,
		Strategy: d.LimitStrategy,
		OnError: func(err error) {
			d.Logger.Warn().Err(err).Msg("rate limiter unavailable")
		},
	}
	idem := common.Idem{R: d.Redis, TTL: d.IdempotencyTTL, Scope: func(r *http.Request) string {
		shop, _ := tenant.ShopFrom(r.Context())
		return shop
	}}
	authMiddleware := auth.Middleware{Tokens: d.Tokens}

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(security.BodyLimit{Max: d.MaxBodyBytes}.Middleware)

		v.With(limit.Middleware).Post("/functions/{handle}/run", d.Discounts.RunFunction)
		v.With(tenant.RequireShop, limit.Middleware).Post("/discounts/{id}/evaluate", d.Discounts.Evaluate)

		v.Route("/admin/discounts", func(admin chi.Router) {
			admin.Use(tenant.RequireShop)
			admin.Use(authMiddleware.RequireAuth)
			admin.Use(postOnly(idem.Middleware))
			d.Discounts.AdminRoutes(admin)
		})
	})
	return r
}

// postOnly applies mw to POST requests and passes everything else straight through.
func postOnly(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		wrapped := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				wrapped.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
