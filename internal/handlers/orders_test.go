package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/campushub/api/internal/platform/idempotency"
	"github.com/campushub/api/internal/repositories/memory"
	"github.com/campushub/api/internal/services"
)

type orderRouterFixture struct {
	router chi.Router
	now    time.Time
}

func newOrderRouter(t *testing.T, extra ...func(http.Handler) http.Handler) *orderRouterFixture {
	t.Helper()
	f := &orderRouterFixture{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	reg := memory.NewRegistry()
	seq := 0
	svc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:       reg.Orders(),
		Counters:     reg.Counters(),
		AcceptWindow: time.Hour,
		Clock:        func() time.Time { return f.now },
		IDGenerator: func() string {
			seq++
			return fmt.Sprintf("%04d", seq)
		},
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	mws := append([]func(http.Handler) http.Handler{testIdentity}, extra...)
	f.router = NewRouter(WithAPIMiddlewares(mws...), WithOrderRoutes(NewOrderHandlers(svc).Routes))
	return f
}

func (f *orderRouterFixture) create(t *testing.T, body map[string]any) orderPayload {
	t.Helper()
	rec := doJSON(t, f.router, http.MethodPost, "/api/v1/orders/", "cust", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp orderResponse
	decodeBody(t, rec, &resp)
	if loc := rec.Header().Get("Location"); loc != "/api/v1/orders/"+resp.Order.ID {
		t.Fatalf("unexpected Location %q", loc)
	}
	return resp.Order
}

func (f *orderRouterFixture) transition(t *testing.T, orderID, user, status string, want int) orderPayload {
	t.Helper()
	rec := doJSON(t, f.router, http.MethodPost, "/api/v1/orders/"+orderID+"/transition", user, map[string]string{"status": status})
	if rec.Code != want {
		t.Fatalf("transition to %s by %s: expected %d, got %d: %s", status, user, want, rec.Code, rec.Body.String())
	}
	var resp orderResponse
	if want == http.StatusOK {
		decodeBody(t, rec, &resp)
	}
	return resp.Order
}

var parcelOrder = map[string]any{
	"description": "two parcels at the north gate",
	"pickupCode":  "5-2-1104",
	"destination": "Dorm 7, room 402",
	"reward":      300,
}

func TestOrderHappyPath(t *testing.T) {
	f := newOrderRouter(t)
	order := f.create(t, parcelOrder)
	if order.Status != "pending" || order.CustomerID != "cust" || order.HelperID != "" {
		t.Fatalf("unexpected created order %+v", order)
	}
	if len(order.AllowedTransitions) != 2 || order.AllowedTransitions[0] != "accepted" {
		t.Fatalf("unexpected allowed transitions %v", order.AllowedTransitions)
	}
	if order.ExpiresAt != "2026-03-01T10:00:00Z" {
		t.Fatalf("expected default accept window, got %s", order.ExpiresAt)
	}

	// statuses match case-insensitively, as the service does
	accepted := f.transition(t, order.ID, "helper", "Accepted", http.StatusOK)
	if accepted.HelperID != "helper" || accepted.Status != "accepted" {
		t.Fatalf("expected helper to be assigned, got %+v", accepted)
	}
	f.transition(t, order.ID, "helper", " PICKED ", http.StatusOK)
	f.transition(t, order.ID, "helper", "delivered", http.StatusOK)
	done := f.transition(t, order.ID, "cust", "completed", http.StatusOK)
	if len(done.Timeline) != 4 {
		t.Fatalf("expected four timeline entries, got %+v", done.Timeline)
	}
	if done.Timeline[0].OperatorID != "helper" || done.Timeline[3].OperatorID != "cust" {
		t.Fatalf("unexpected operators %+v", done.Timeline)
	}
	if len(done.AllowedTransitions) != 0 {
		t.Fatalf("completed is terminal, got %v", done.AllowedTransitions)
	}

	rec := doJSON(t, f.router, http.MethodPost, "/api/v1/orders/"+order.ID+"/rate", "cust", map[string]any{"score": 5, "comment": "fast"})
	if rec.Code != http.StatusOK {
		t.Fatalf("rate: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var rated orderResponse
	decodeBody(t, rec, &rated)
	if rated.Order.Rating == nil || rated.Order.Rating.Score != 5 {
		t.Fatalf("expected rating, got %+v", rated.Order.Rating)
	}

	rec = doJSON(t, f.router, http.MethodPost, "/api/v1/orders/"+order.ID+"/rate", "cust", map[string]any{"score": 4})
	if rec.Code != http.StatusConflict || errorCode(t, rec) != "already_rated" {
		t.Fatalf("second rating: expected 409 already_rated, got %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, f.router, http.MethodPost, "/api/v1/orders/"+order.ID+"/payment", "cust", map[string]string{"status": "Paid"})
	if rec.Code != http.StatusOK {
		t.Fatalf("payment: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var paid orderResponse
	decodeBody(t, rec, &paid)
	if paid.Order.PaymentStatus != "paid" {
		t.Fatalf("expected normalised payment status, got %q", paid.Order.PaymentStatus)
	}
}

func TestOrderErrorMapping(t *testing.T) {
	f := newOrderRouter(t)
	order := f.create(t, parcelOrder)

	rec := doJSON(t, f.router, http.MethodGet, "/api/v1/orders/"+order.ID, "stranger", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("stranger get: expected 403, got %d", rec.Code)
	}
	if rec := doJSON(t, f.router, http.MethodGet, "/api/v1/orders/"+order.ID, "ops+admin", nil); rec.Code != http.StatusOK {
		t.Fatalf("admin get: expected 200, got %d", rec.Code)
	}
	if rec := doJSON(t, f.router, http.MethodGet, "/api/v1/orders/ord_missing", "cust", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing order: expected 404, got %d", rec.Code)
	}

	f.transition(t, order.ID, "cust", "accepted", http.StatusForbidden)
	f.transition(t, order.ID, "cust", "delivered", http.StatusConflict)
	f.transition(t, order.ID, "helper", "accepted", http.StatusOK)
	// the losing racer sees the order already taken
	f.transition(t, order.ID, "helper-2", "accepted", http.StatusConflict)
	f.transition(t, order.ID, "stranger", "picked", http.StatusForbidden)

	rec = doJSON(t, f.router, http.MethodPost, "/api/v1/orders/"+order.ID+"/rate", "cust", map[string]any{"score": 3})
	if rec.Code != http.StatusConflict || errorCode(t, rec) != "invalid_transition" {
		t.Fatalf("rating an open order: expected 409 invalid_transition, got %d %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, f.router, http.MethodPost, "/api/v1/orders/"+order.ID+"/payment", "helper", map[string]string{"status": "paid"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("helper payment: expected 403, got %d", rec.Code)
	}
}

func TestOrderAcceptAfterExpiry(t *testing.T) {
	f := newOrderRouter(t)
	order := f.create(t, map[string]any{
		"description":      "one parcel",
		"destination":      "Library",
		"expiresInMinutes": 5,
	})

	f.now = f.now.Add(5 * time.Minute)
	rec := doJSON(t, f.router, http.MethodPost, "/api/v1/orders/"+order.ID+"/transition", "helper", map[string]string{"status": "accepted"})
	if rec.Code != http.StatusGone || errorCode(t, rec) != "order_expired" {
		t.Fatalf("expected 410 order_expired, got %d %s", rec.Code, rec.Body.String())
	}
	f.transition(t, order.ID, "cust", "cancelled", http.StatusOK)
}

func TestOrderRequestValidation(t *testing.T) {
	f := newOrderRouter(t)
	order := f.create(t, parcelOrder)

	tests := []struct {
		name   string
		method string
		path   string
		user   string
		body   any
		status int
	}{
		{name: "create without destination", method: http.MethodPost, path: "/api/v1/orders/", user: "cust", body: map[string]any{"description": "x"}, status: http.StatusBadRequest},
		{name: "create negative reward", method: http.MethodPost, path: "/api/v1/orders/", user: "cust", body: map[string]any{"description": "x", "destination": "y", "reward": -1}, status: http.StatusBadRequest},
		{name: "create anonymous", method: http.MethodPost, path: "/api/v1/orders/", body: parcelOrder, status: http.StatusUnauthorized},
		{name: "unknown status", method: http.MethodPost, path: "/api/v1/orders/" + order.ID + "/transition", user: "helper", body: map[string]string{"status": "teleported"}, status: http.StatusBadRequest},
		{name: "score out of range", method: http.MethodPost, path: "/api/v1/orders/" + order.ID + "/rate", user: "cust", body: map[string]any{"score": 9}, status: http.StatusBadRequest},
		{name: "empty payment status", method: http.MethodPost, path: "/api/v1/orders/" + order.ID + "/payment", user: "cust", body: map[string]string{"status": ""}, status: http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, f.router, tc.method, tc.path, tc.user, tc.body)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestOrderCreateReplaysWithIdempotencyKey(t *testing.T) {
	store := idempotency.NewMemoryStore()
	f := newOrderRouter(t, idempotency.Middleware(store))
	body := `{"description":"two parcels","destination":"Dorm 7"}`

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/", bytes.NewReader([]byte(body)))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(testUserHeader, "cust")
		req.Header.Set(idempotency.DefaultHeader, "create-1")
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		return rec
	}

	first := send()
	if first.Code != http.StatusCreated {
		t.Fatalf("first create: expected 201, got %d: %s", first.Code, first.Body.String())
	}
	second := send()
	if second.Code != http.StatusCreated {
		t.Fatalf("replay: expected 201, got %d", second.Code)
	}
	var a, b orderResponse
	decodeBody(t, first, &a)
	decodeBody(t, second, &b)
	if a.Order.ID != b.Order.ID || a.Order.OrderNumber != b.Order.OrderNumber {
		t.Fatalf("replay must return the original order, got %s and %s", a.Order.ID, b.Order.ID)
	}
}
