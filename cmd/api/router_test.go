package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/autogift/internal/auth"
	"github.com/noah-isme/autogift/internal/discounts"
	"github.com/noah-isme/autogift/internal/health"
	"github.com/noah-isme/autogift/internal/ratelimit"
	"github.com/noah-isme/autogift/internal/store"
	"github.com/noah-isme/autogift/internal/tenant"
)

type emptyRepo struct{}

func (emptyRepo) Create(context.Context, store.Discount) (store.Discount, error) {
	return store.Discount{}, store.ErrConflict
}

func (emptyRepo) Get(context.Context, string, uuid.UUID) (store.Discount, error) {
	return store.Discount{}, store.ErrNotFound
}

func (emptyRepo) List(context.Context, string, int, int) ([]store.Discount, int, error) {
	return nil, 0, nil
}

func (emptyRepo) Update(context.Context, store.Discount) (store.Discount, error) {
	return store.Discount{}, store.ErrNotFound
}

func (emptyRepo) Delete(context.Context, string, uuid.UUID) error { return store.ErrNotFound }

type testServer struct {
	handler  http.Handler
	tokens   *auth.Tokens
	draining *atomic.Bool
}

func newTestServer(t *testing.T, limitMax int) testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	tokens, err := auth.NewTokens("test-secret", "autogift", "autogift-admin")
	require.NoError(t, err)

	svc := &discounts.Service{Repo: emptyRepo{}, Cache: store.NewCache(client, time.Minute), Logger: zerolog.Nop()}
	draining := &atomic.Bool{}
	r := newRouter(routerDeps{
		Logger:         zerolog.Nop(),
		Redis:          client,
		Discounts:      &discounts.Handler{Service: svc, Validate: discounts.NewValidator(), Logger: zerolog.Nop()},
		Tokens:         tokens,
		Resolver:       tenant.NewResolver("", "", ""),
		Limiter:        &ratelimit.SlidingWindow{Client: client, Prefix: "rl:", Window: time.Minute, Max: limitMax},
		LimitStrategy:  ratelimit.StrategySliding,
		Health:         health.Handler{Draining: draining},
		MaxBodyBytes:   1 << 20,
		IdempotencyTTL: time.Hour,
		Pprof:          true,
		PprofUser:      "ops",
		PprofPass:      "secret",
	})
	return testServer{handler: r, tokens: tokens, draining: draining}
}

func (s testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthRoutes(t *testing.T) {
	srv := newTestServer(t, 10)

	rec := srv.do(t, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = srv.do(t, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	srv.draining.Store(true)
	rec = srv.do(t, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestFunctionRunIsRateLimited(t *testing.T) {
	srv := newTestServer(t, 1)
	input, err := os.ReadFile("../../internal/function/testdata/auto_gift_input.json")
	require.NoError(t, err)
	want, err := os.ReadFile("../../internal/function/testdata/auto_gift_output.json")
	require.NoError(t, err)

	rec := srv.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/functions/auto-gift/run", bytes.NewReader(input)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.JSONEq(t, string(want), rec.Body.String())
	require.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))

	rec = srv.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/functions/auto-gift/run", bytes.NewReader(input)))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestEvaluateRequiresShop(t *testing.T) {
	srv := newTestServer(t, 10)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/discounts/"+uuid.NewString()+"/evaluate", bytes.NewBufferString(`{"lines":[]}`))
	rec := srv.do(t, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "SHOP_REQUIRED")
}

func TestAdminRoutesRequireToken(t *testing.T) {
	srv := newTestServer(t, 10)
	path := "/api/v1/admin/discounts/" + uuid.NewString()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set(tenant.DefaultHeader, "demo.myshopify.com")
	require.Equal(t, http.StatusUnauthorized, srv.do(t, req).Code)

	token, err := srv.tokens.Sign(auth.Claims{Subject: "ops", Shop: "demo"}, time.Hour)
	require.NoError(t, err)

	req = httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set(tenant.DefaultHeader, "demo.myshopify.com")
	req.Header.Set("Authorization", "Bearer "+token)
	require.Equal(t, http.StatusNotFound, srv.do(t, req).Code)

	req = httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set(tenant.DefaultHeader, "other.myshopify.com")
	req.Header.Set("Authorization", "Bearer "+token)
	require.Equal(t, http.StatusForbidden, srv.do(t, req).Code)
}

func TestAdminCreateIsIdempotent(t *testing.T) {
	srv := newTestServer(t, 10)
	token, err := srv.tokens.Sign(auth.Claims{Subject: "ops"}, time.Hour)
	require.NoError(t, err)

	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/discounts", bytes.NewBufferString(`{"title":""}`))
		req.Header.Set(tenant.DefaultHeader, "demo")
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Idempotency-Key", "abc")
		return srv.do(t, req)
	}
	require.Equal(t, http.StatusUnprocessableEntity, post().Code)
	rec := post()
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "IDEMPOTENT_REPLAY")
}

func TestPprofNeedsBasicAuth(t *testing.T) {
	srv := newTestServer(t, 10)
	rec := srv.do(t, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil)
	req.SetBasicAuth("ops", "secret")
	require.Equal(t, http.StatusOK, srv.do(t, req).Code)
}
