package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
)

type oidcFixture struct {
	key      *rsa.PrivateKey
	server   *httptest.Server
	requests atomic.Int32
}

func newOIDCFixture(t *testing.T) *oidcFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	f := &oidcFixture{key: key}
	jwk := jose.JSONWebKey{Key: &key.PublicKey, KeyID: "k1", Algorithm: jwt.SigningMethodRS256.Alg(), Use: "sig"}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{jwk}})
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *oidcFixture) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "k1"
	signed, err := token.SignedString(f.key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestJWKSCacheReusesKeysUntilExpiry(t *testing.T) {
	f := newOIDCFixture(t)
	now := time.Unix(1_700_000_000, 0)
	cache := NewJWKSCache(f.server.URL, WithJWKSClock(func() time.Time { return now }))

	for i := 0; i < 3; i++ {
		if _, err := cache.Key(context.Background(), "k1"); err != nil {
			t.Fatalf("Key: %v", err)
		}
	}
	if got := f.requests.Load(); got != 1 {
		t.Fatalf("expected single fetch, got %d", got)
	}

	now = now.Add(2 * time.Hour)
	if _, err := cache.Key(context.Background(), "k1"); err != nil {
		t.Fatalf("Key after expiry: %v", err)
	}
	if got := f.requests.Load(); got != 2 {
		t.Fatalf("expected refetch after max-age, got %d", got)
	}

	if _, err := cache.Key(context.Background(), "missing"); err == nil {
		t.Fatalf("expected unknown kid to fail")
	}
}

func TestRequireOIDC(t *testing.T) {
	f := newOIDCFixture(t)
	validator := NewOIDCValidator(NewJWKSCache(f.server.URL), nil)
	const audience = "https://core.example.com"
	issuers := []string{"https://accounts.google.com"}

	exp := time.Now().Add(time.Hour).Unix()
	tests := []struct {
		name   string
		header string
		status int
	}{
		{name: "valid", header: "Bearer " + f.sign(t, jwt.MapClaims{"iss": issuers[0], "aud": audience, "sub": "svc", "email": "svc@example.com", "exp": exp}), status: http.StatusNoContent},
		{name: "missing", header: "", status: http.StatusUnauthorized},
		{name: "wrong audience", header: "Bearer " + f.sign(t, jwt.MapClaims{"iss": issuers[0], "aud": "other", "exp": exp}), status: http.StatusUnauthorized},
		{name: "wrong issuer", header: "Bearer " + f.sign(t, jwt.MapClaims{"iss": "https://evil.example.com", "aud": audience, "exp": exp}), status: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + f.sign(t, jwt.MapClaims{"iss": issuers[0], "aud": audience, "exp": time.Now().Add(-time.Hour).Unix()}), status: http.StatusUnauthorized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := validator.RequireOIDC(audience, issuers)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				identity, ok := ServiceIdentityFromContext(r.Context())
				if !ok || identity.Email != "svc@example.com" {
					t.Errorf("expected service identity, got %+v", identity)
				}
				w.WriteHeader(http.StatusNoContent)
			}))
			req := httptest.NewRequest(http.MethodPost, "/internal/reconcile", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestRequireOIDCWithoutAudienceIsUnavailable(t *testing.T) {
	validator := NewOIDCValidator(NewJWKSCache("http://127.0.0.1:0"), nil)
	handler := validator.RequireOIDC("", nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler must not run")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/internal/reconcile", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
