// Package tenant resolves the shop a request acts for.
package tenant

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/noah-isme/autogift/internal/common"
)

// DefaultHeader is the header the checkout platform uses to name the calling shop.
const DefaultHeader = "X-Shopify-Shop-Domain"

const platformSuffix = ".myshopify.com"

type contextKey string

const shopContextKey contextKey = "tenant.shop"

// Resolver resolves the shop from a header or from the request subdomain.
type Resolver struct {
	HeaderName  string
	RootDomain  string
	DefaultShop string
}

// NewResolver returns a resolver. An empty headerName falls back to DefaultHeader.
func NewResolver(headerName, rootDomain, defaultShop string) *Resolver {
	if strings.TrimSpace(headerName) == "" {
		headerName = DefaultHeader
	}
	return &Resolver{
		HeaderName:  headerName,
		RootDomain:  strings.ToLower(strings.TrimSpace(rootDomain)),
		DefaultShop: NormalizeShop(defaultShop),
	}
}

// Middleware stores the resolved shop in the request context.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	if r == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		shop := r.Resolve(req)
		if shop == "" {
			shop = r.DefaultShop
		}
		if shop != "" {
			req = req.WithContext(WithShop(req.Context(), shop))
		}
		next.ServeHTTP(w, req)
	})
}

// RequireShop rejects requests that reach it without a shop.
func RequireShop(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if _, ok := ShopFrom(req.Context()); !ok {
			common.JSONError(w, http.StatusBadRequest, "SHOP_REQUIRED", "shop could not be resolved", nil)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// Resolve returns the normalised shop named by the request, or "".
func (r *Resolver) Resolve(req *http.Request) string {
	if r == nil || req == nil {
		return ""
	}
	if shop := NormalizeShop(req.Header.Get(r.HeaderName)); shop != "" {
		return shop
	}
	host := hostWithoutPort(req.Host)
	if host == "" {
		return ""
	}
	return NormalizeShop(r.subdomainFromHost(host))
}

// NormalizeShop lower-cases a shop handle or domain and strips the platform suffix, so
// "Demo.myshopify.com" and "demo" name the same shop.
func NormalizeShop(raw string) string {
	shop := strings.ToLower(strings.TrimSpace(raw))
	shop = strings.TrimPrefix(shop, "https://")
	shop = strings.TrimSuffix(shop, "/")
	return strings.TrimSuffix(shop, platformSuffix)
}

func (r *Resolver) subdomainFromHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" || r.RootDomain == "" || host == r.RootDomain {
		return ""
	}
	suffix := "." + r.RootDomain
	if !strings.HasSuffix(host, suffix) {
		return ""
	}
	parts := strings.Split(strings.TrimSuffix(host, suffix), ".")
	return parts[len(parts)-1]
}

func hostWithoutPort(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if hostport == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		return strings.Trim(h, "[]")
	}
	return strings.Trim(hostport, "[]")
}

// WithShop stores the shop inside the context.
func WithShop(ctx context.Context, shop string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, shopContextKey, shop)
}

// ShopFrom extracts the shop from the context if available.
func ShopFrom(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	shop, ok := ctx.Value(shopContextKey).(string)
	if !ok {
		return "", false
	}
	shop = strings.TrimSpace(shop)
	return shop, shop != ""
}

// PrefixKey namespaces a cache key by shop.
func PrefixKey(shop, key string) string {
	if shop == "" {
		return key
	}
	return shop + ":" + key
}
