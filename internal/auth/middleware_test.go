package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nikhilbhutani/audiobook/internal/config"
)

const secret = "test-secret"

func sign(t *testing.T, key string, claims Claims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func subject(sub string, exp time.Time) Claims {
	return Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: sub, ExpiresAt: jwt.NewNumericDate(exp)}}
}

// ownerEcho writes the resolved owner as the response body.
var ownerEcho = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(OwnerFromContext(r.Context())))
})

func TestAuthenticate(t *testing.T) {
	a, err := NewAuthenticator(config.AuthConfig{
		JWTSecret:    secret,
		APIKeyHeader: "X-API-Key",
		APIKeys:      []string{"svc-reader:key-123"},
	})
	if err != nil {
		t.Fatalf("NewAuthenticator() error = %v", err)
	}
	h := a.Authenticate(ownerEcho)
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name       string
		header     string
		value      string
		wantStatus int
		wantOwner  string
	}{
		{"valid token", "Authorization", "Bearer " + sign(t, secret, subject("user-7", future)), http.StatusOK, "user-7"},
		{"api key", "X-API-Key", "key-123", http.StatusOK, "svc-reader"},
		{"unknown api key", "X-API-Key", "nope", http.StatusUnauthorized, ""},
		{"missing credentials", "", "", http.StatusUnauthorized, ""},
		{"wrong secret", "Authorization", "Bearer " + sign(t, "other", subject("user-7", future)), http.StatusUnauthorized, ""},
		{"expired", "Authorization", "Bearer " + sign(t, secret, subject("user-7", time.Now().Add(-time.Minute))), http.StatusUnauthorized, ""},
		{"no subject", "Authorization", "Bearer " + sign(t, secret, subject("", future)), http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantOwner != "" && rec.Body.String() != tt.wantOwner {
				t.Errorf("owner = %q, want %q", rec.Body.String(), tt.wantOwner)
			}
		})
	}
}

func TestAuthenticateDisabled(t *testing.T) {
	a, err := NewAuthenticator(config.AuthConfig{})
	if err != nil {
		t.Fatalf("NewAuthenticator() error = %v", err)
	}
	if a.Enabled() {
		t.Fatal("expected auth to be disabled without secret or keys")
	}

	rec := httptest.NewRecorder()
	a.Authenticate(ownerEcho).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != AnonymousOwner {
		t.Errorf("expected anonymous access, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestParseAPIKeys(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		wantErr bool
	}{
		{"valid", []string{"a:1", " b : 2 "}, false},
		{"missing colon", []string{"abc"}, true},
		{"empty key", []string{"a:"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAPIKeys("", tt.pairs)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseAPIKeys() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
