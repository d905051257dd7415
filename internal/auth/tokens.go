package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/autogift/internal/common"
	"github.com/noah-isme/autogift/internal/tenant"
)

const shopClaim = "shop"

// Claims are the parts of an admin token the service relies on.
type Claims struct {
	Subject string
	// Shop restricts the token to one shop when set.
	Shop string
}

// Tokens signs and verifies HMAC admin tokens.
type Tokens struct {
	Secret    []byte
	Validator TokenValidator
	Now       func() time.Time
}

// NewTokens builds an HS256 token helper.
func NewTokens(secret, issuer, audience string) (*Tokens, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: secret is required")
	}
	return &Tokens{
		Secret: []byte(secret),
		Validator: TokenValidator{
			Issuer:    issuer,
			Audience:  audience,
			ClockSkew: 30 * time.Second,
			Algorithm: jwa.HS256,
		},
	}, nil
}

func (t *Tokens) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func (t *Tokens) algorithm() jwa.SignatureAlgorithm {
	if t.Validator.Algorithm != "" {
		return t.Validator.Algorithm
	}
	return jwa.HS256
}

// Sign issues a token for claims valid for ttl.
func (t *Tokens) Sign(claims Claims, ttl time.Duration) (string, error) {
	now := t.now()
	builder := jwt.NewBuilder().
		Subject(claims.Subject).
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(ttl))
	if t.Validator.Issuer != "" {
		builder = builder.Issuer(t.Validator.Issuer)
	}
	if t.Validator.Audience != "" {
		builder = builder.Audience([]string{t.Validator.Audience})
	}
	if claims.Shop != "" {
		builder = builder.Claim(shopClaim, tenant.NormalizeShop(claims.Shop))
	}
	token, err := builder.Build()
	if err != nil {
		return "", err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(t.algorithm(), t.Secret))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

// Verify checks the signature and registered claims of token.
func (t *Tokens) Verify(token string) (Claims, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return Claims{}, common.NewAppError("UNAUTHORIZED", "missing token", http.StatusUnauthorized, nil)
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return Claims{}, common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	if algorithm != t.algorithm() {
		return Claims{}, common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, t.Secret), jwt.WithValidate(false))
	if err != nil {
		return Claims{}, common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	if err := t.Validator.Validate(parsed, algorithm, t.now()); err != nil {
		return Claims{}, common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	claims := Claims{Subject: parsed.Subject()}
	if v, ok := parsed.Get(shopClaim); ok {
		if s, ok := v.(string); ok {
			claims.Shop = tenant.NormalizeShop(s)
		}
	}
	return claims, nil
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("auth: token missing protected headers")
		}
		alg := headers.Algorithm()
		if alg == "" {
			return "", errors.New("auth: token missing algorithm")
		}
		if alg == jwa.NoSignature {
			return "", errors.New("auth: token uses none algorithm")
		}
		if algorithm == "" {
			algorithm = alg
		} else if algorithm != alg {
			return "", errors.New("auth: mixed token algorithms detected")
		}
	}
	return algorithm, nil
}
