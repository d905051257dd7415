package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/noah-isme/autogift/internal/common"
	"github.com/noah-isme/autogift/internal/tenant"
)

// Middleware guards admin routes with bearer tokens.
type Middleware struct {
	Tokens *Tokens
}

// RequireAuth enforces a valid token. Tokens bound to a shop are only accepted for that shop.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Tokens == nil {
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "auth not configured", nil)
			return
		}
		token := bearerToken(r)
		if token == "" {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			return
		}
		claims, err := m.Tokens.Verify(token)
		if err != nil {
			var appErr *common.AppError
			if errors.As(err, &appErr) {
				common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, nil)
				return
			}
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			return
		}
		if claims.Shop != "" {
			if shop, ok := tenant.ShopFrom(r.Context()); !ok || shop != claims.Shop {
				common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "token not valid for this shop", nil)
				return
			}
		}
		next.ServeHTTP(w, r.WithContext(common.WithSubject(r.Context(), claims.Subject)))
	})
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
