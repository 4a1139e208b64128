// Package auth resolves the owner of each API request from a bearer JWT or
// a static API key. With neither configured every request belongs to
// AnonymousOwner.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nikhilbhutani/audiobook/internal/config"
)

const AnonymousOwner = "anonymous"

type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type Authenticator struct {
	secret []byte
	keys   *APIKeys
}

func NewAuthenticator(cfg config.AuthConfig) (*Authenticator, error) {
	keys, err := ParseAPIKeys(cfg.APIKeyHeader, cfg.APIKeys)
	if err != nil {
		return nil, err
	}
	return &Authenticator{secret: []byte(cfg.JWTSecret), keys: keys}, nil
}

// Enabled reports whether requests must carry credentials.
func (a *Authenticator) Enabled() bool {
	return len(a.secret) > 0 || a.keys.Len() > 0
}

// Authenticate tries the API key header first, then the bearer token.
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), AnonymousOwner)))
			return
		}

		if owner, ok, err := a.keys.Lookup(r); ok || err != nil {
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid API key")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
			return
		}

		tokenStr := extractBearerToken(r)
		if tokenStr == "" || len(a.secret) == 0 {
			writeError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}

		claims, err := a.parse(tokenStr)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "token expired"
			}
			writeError(w, http.StatusUnauthorized, msg)
			return
		}
		if claims.Subject == "" {
			writeError(w, http.StatusUnauthorized, "token has no subject")
			return
		}

		ctx := WithOwner(r.Context(), claims.Subject)
		ctx = context.WithValue(ctx, claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

type ctxKey string

const (
	claimsKey ctxKey = "claims"
	ownerKey  ctxKey = "owner"
)

func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey, owner)
}

// OwnerFromContext returns the authenticated owner, or AnonymousOwner when
// the request never passed through Authenticate.
func OwnerFromContext(ctx context.Context) string {
	if o, _ := ctx.Value(ownerKey).(string); o != "" {
		return o
	}
	return AnonymousOwner
}

func ClaimsFromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey).(*Claims)
	return c
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
