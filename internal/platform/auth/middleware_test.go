package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
	"golang.org/x/text/language"

	"github.com/campushub/api/internal/domain"
)

type stubTokenVerifier struct {
	token    *firebaseauth.Token
	err      error
	received string
}

func (s *stubTokenVerifier) VerifyIDToken(_ context.Context, idToken string) (*firebaseauth.Token, error) {
	s.received = idToken
	if s.err != nil {
		return nil, s.err
	}
	return s.token, nil
}

func TestRequireFirebaseAuthPopulatesIdentity(t *testing.T) {
	verifier := &stubTokenVerifier{token: &firebaseauth.Token{
		UID: "u-1",
		Claims: map[string]any{
			"role":   []any{"Admin", "user", "admin"},
			"email":  "helper@campus.example",
			"locale": "zh-CN",
		},
	}}

	var got *Identity
	handler := NewAuthenticator(verifier).RequireFirebaseAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if verifier.received != "abc" {
		t.Fatalf("expected token to be forwarded, got %q", verifier.received)
	}
	if got == nil || got.UID != "u-1" || got.Email != "helper@campus.example" {
		t.Fatalf("unexpected identity %+v", got)
	}
	if len(got.Roles) != 2 {
		t.Fatalf("expected deduplicated roles, got %v", got.Roles)
	}
	if got.Locale != language.MustParse("zh-CN") {
		t.Fatalf("unexpected locale %s", got.Locale)
	}
	if actor := got.Actor(); actor != (domain.Actor{ID: "u-1", Role: domain.ActorRoleAdmin}) {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestRequireFirebaseAuthDefaultsToUserRole(t *testing.T) {
	verifier := &stubTokenVerifier{token: &firebaseauth.Token{UID: "u-2", Claims: map[string]any{}}}
	handler := NewAuthenticator(verifier).RequireFirebaseAuth(RoleAdmin)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("plain users must not pass an admin guard")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestRequireFirebaseAuthRejects(t *testing.T) {
	tests := []struct {
		name   string
		header string
		err    error
	}{
		{name: "missing header"},
		{name: "wrong scheme", header: "Basic abc"},
		{name: "verifier error", header: "Bearer abc", err: errors.New("bad token")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			verifier := &stubTokenVerifier{err: tc.err, token: &firebaseauth.Token{UID: "u"}}
			handler := NewAuthenticator(verifier).RequireFirebaseAuth()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				t.Fatalf("handler must not run")
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
		})
	}
}
