package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/campushub/api/internal/platform/auth"
)

const testUserHeader = "X-Test-User"

// testIdentity stands in for Firebase auth: the caller uid comes from X-Test-User and a
// trailing "+admin" grants the admin role.
func testIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(testUserHeader)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		identity := &auth.Identity{UID: strings.TrimSuffix(raw, "+admin")}
		if strings.HasSuffix(raw, "+admin") {
			identity.Roles = []string{auth.RoleAdmin}
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
	})
}

func doJSON(t *testing.T, h http.Handler, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(testUserHeader, user)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	decodeBody(t, rec, &body)
	code, _ := body["error"].(string)
	return code
}

func TestRouterHealthEndpoints(t *testing.T) {
	router := NewRouter()

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := doJSON(t, router, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}

func TestRouterUnknownRoute(t *testing.T) {
	router := NewRouter()

	rec := doJSON(t, router, http.MethodGet, "/nope", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != errorNotFoundCode {
		t.Fatalf("expected %s, got %s", errorNotFoundCode, code)
	}
}

func TestRouterUnmountedGroupsReturnNotImplemented(t *testing.T) {
	router := NewRouter()

	for _, path := range []string{"/api/v1/reactions/toggle", "/api/v1/orders/", "/api/v1/internal/reconcile"} {
		rec := doJSON(t, router, http.MethodPost, path, "", "{}")
		if rec.Code != http.StatusNotImplemented {
			t.Fatalf("%s: expected 501, got %d", path, rec.Code)
		}
	}
}

func TestRouterAppliesGroupMiddlewaresInOrder(t *testing.T) {
	var order []string
	tag := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	internalHit := false

	router := NewRouter(
		WithAPIMiddlewares(tag("auth"), tag("idempotency")),
		WithInternalMiddlewares(tag("oidc")),
		WithOrderRoutes(func(r chi.Router) {
			r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
		}),
		WithInternalRoutes(func(r chi.Router) {
			r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
				internalHit = true
				w.WriteHeader(http.StatusNoContent)
			})
		}),
	)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/orders/ping", "", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if len(order) != 2 || order[0] != "auth" || order[1] != "idempotency" {
		t.Fatalf("unexpected middleware order %v", order)
	}

	order = nil
	rec = doJSON(t, router, http.MethodGet, "/api/v1/internal/ping", "", nil)
	if rec.Code != http.StatusNoContent || !internalHit {
		t.Fatalf("expected internal route to run, got %d", rec.Code)
	}
	if len(order) != 1 || order[0] != "oidc" {
		t.Fatalf("internal group must only run its own middlewares, got %v", order)
	}
}
