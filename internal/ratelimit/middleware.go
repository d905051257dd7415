package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/noah-isme/autogift/internal/common"
	"github.com/noah-isme/autogift/internal/obs"
	"github.com/noah-isme/autogift/internal/tenant"
)

// Handler enforces a Limiter before delegating to the next handler.
type Handler struct {
	Limiter  Limiter
	Strategy string
	// Key derives the counter key; KeyByShopAndIP when nil.
	Key     func(*http.Request) string
	OnError func(error)
}

// KeyByShopAndIP counts requests per shop and client address.
func KeyByShopAndIP(r *http.Request) string {
	shop, ok := tenant.ShopFrom(r.Context())
	if !ok {
		shop = "-"
	}
	return shop + ":" + common.ClientIP(r)
}

// Middleware implements the http middleware signature. Limiter failures let the request through.
func (h Handler) Middleware(next http.Handler) http.Handler {
	if h.Limiter == nil {
		return next
	}
	keyFn := h.Key
	if keyFn == nil {
		keyFn = KeyByShopAndIP
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, err := h.Limiter.Allow(r.Context(), keyFn(r))
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.Itoa(max(res.Limit, 0)))
		headers.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

		if !res.Allowed {
			retryAfter := max(int(time.Until(res.ResetAt).Seconds()), 0)
			headers.Set("Retry-After", strconv.Itoa(retryAfter))
			obs.ObserveRateLimited(h.Strategy)
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
