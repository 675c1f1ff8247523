package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/campushub/api/internal/domain"
	"github.com/campushub/api/internal/repositories/memory"
	"github.com/campushub/api/internal/services"
)

func newReactionRouter(t *testing.T, opts ...ReactionOption) (chi.Router, *memory.Registry) {
	t.Helper()
	reg := memory.NewRegistry()
	reg.PutTarget(domain.ReactableTarget{Ref: domain.TargetRef{ID: "p1", Kind: domain.TargetKindPost}, OwnerID: "author"})
	svc, err := services.NewReactionService(services.ReactionServiceDeps{
		Reactions: reg.Reactions(),
		Targets:   reg.Targets(),
		Users:     reg.Users(),
	})
	if err != nil {
		t.Fatalf("NewReactionService: %v", err)
	}
	h := NewReactionHandlers(svc, opts...)
	return NewRouter(WithAPIMiddlewares(testIdentity), WithReactionRoutes(h.Routes)), reg
}

func TestToggleReactionLifecycle(t *testing.T) {
	router, reg := newReactionRouter(t)
	req := map[string]string{"targetId": "p1", "targetKind": "post", "type": "like"}

	rec := doJSON(t, router, http.MethodPost, "/api/v1/reactions/toggle", "u1", req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp toggleReactionResponse
	decodeBody(t, rec, &resp)
	if resp.Action != string(domain.ReactionActionLike) || resp.LikeDelta != 1 || resp.DislikeDelta != 0 || resp.Stats.Likes != 1 {
		t.Fatalf("unexpected like response %+v", resp)
	}
	if rep := reg.Reputation("author"); rep != 1 {
		t.Fatalf("expected owner reputation 1, got %d", rep)
	}

	req["type"] = "dislike"
	rec = doJSON(t, router, http.MethodPost, "/api/v1/reactions/toggle", "u1", req)
	decodeBody(t, rec, &resp)
	if resp.Action != string(domain.ReactionActionSwitchToDislike) || resp.LikeDelta != -1 || resp.DislikeDelta != 1 {
		t.Fatalf("unexpected switch response %+v", resp)
	}
	if resp.Stats.Likes != 0 || resp.Stats.Dislikes != 1 {
		t.Fatalf("unexpected stats after switch %+v", resp.Stats)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/reactions/post/p1", "u1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var view reactionViewResponse
	decodeBody(t, rec, &view)
	if view.MyReaction == nil || *view.MyReaction != "dislike" || view.Stats.Dislikes != 1 {
		t.Fatalf("unexpected view %+v", view)
	}
	if view.Owner == nil || view.Owner.UserID != "author" || view.Owner.Reputation != 1 {
		t.Fatalf("switching must keep the author's like reputation, got %+v", view.Owner)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/reactions/toggle", "u1", req)
	decodeBody(t, rec, &resp)
	if resp.Action != string(domain.ReactionActionCancelDislike) || resp.Stats.Dislikes != 0 {
		t.Fatalf("unexpected cancel response %+v", resp)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/reactions/post/p1", "u2", nil)
	decodeBody(t, rec, &view)
	if view.MyReaction != nil {
		t.Fatalf("u2 never reacted, got %q", *view.MyReaction)
	}
}

func TestToggleReactionAcceptsMixedCaseEnums(t *testing.T) {
	router, _ := newReactionRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/reactions/toggle", "u1",
		map[string]string{"targetId": " p1 ", "targetKind": "Post", "type": "LIKE"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp toggleReactionResponse
	decodeBody(t, rec, &resp)
	if resp.Action != string(domain.ReactionActionLike) || resp.Stats.Likes != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestToggleReactionErrors(t *testing.T) {
	router, _ := newReactionRouter(t)

	tests := []struct {
		name   string
		user   string
		body   any
		status int
		code   string
	}{
		{name: "anonymous", body: map[string]string{"targetId": "p1", "targetKind": "post", "type": "like"}, status: http.StatusUnauthorized, code: "unauthenticated"},
		{name: "bad kind", user: "u1", body: map[string]string{"targetId": "p1", "targetKind": "user", "type": "like"}, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "bad type", user: "u1", body: map[string]string{"targetId": "p1", "targetKind": "post", "type": "love"}, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "malformed json", user: "u1", body: "{", status: http.StatusBadRequest},
		{name: "slash in target id", user: "u1", body: map[string]string{"targetId": "posts/p1", "targetKind": "post", "type": "like"}, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "unknown target", user: "u1", body: map[string]string{"targetId": "missing", "targetKind": "comment", "type": "like"}, status: http.StatusNotFound, code: "not_found"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/api/v1/reactions/toggle", tc.user, tc.body)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			if tc.code != "" {
				if code := errorCode(t, rec); code != tc.code {
					t.Fatalf("expected code %s, got %s", tc.code, code)
				}
			}
		})
	}
}

func TestToggleReactionRateLimited(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	router, _ := newReactionRouter(t, WithToggleRateLimit(1, 1, func() time.Time { return now }))
	req := map[string]string{"targetId": "p1", "targetKind": "post", "type": "like"}

	if rec := doJSON(t, router, http.MethodPost, "/api/v1/reactions/toggle", "u1", req); rec.Code != http.StatusOK {
		t.Fatalf("first toggle: expected 200, got %d", rec.Code)
	}
	rec := doJSON(t, router, http.MethodPost, "/api/v1/reactions/toggle", "u1", req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second toggle: expected 429, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "rate_limited" {
		t.Fatalf("unexpected code %s", code)
	}
	if rec := doJSON(t, router, http.MethodPost, "/api/v1/reactions/toggle", "u2", req); rec.Code != http.StatusOK {
		t.Fatalf("other callers keep their own bucket, got %d", rec.Code)
	}

	now = now.Add(time.Minute)
	if rec := doJSON(t, router, http.MethodPost, "/api/v1/reactions/toggle", "u1", req); rec.Code != http.StatusOK {
		t.Fatalf("bucket should refill after a minute, got %d", rec.Code)
	}
}

func TestReactionViewUnknownKind(t *testing.T) {
	router, _ := newReactionRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/reactions/user/p1", "u1", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
