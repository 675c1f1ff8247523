package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/campushub/api/internal/platform/httpx"
	"github.com/campushub/api/internal/services"
)

const (
	defaultToggleBurst  = 10
	defaultTogglePerMin = 60
)

// ReactionHandlers exposes like/dislike endpoints.
type ReactionHandlers struct {
	reactions services.ReactionService
	limiter   rateLimiter
}

// ReactionOption customises ReactionHandlers.
type ReactionOption func(*ReactionHandlers)

// WithToggleRateLimit caps toggles per caller. A non-positive perMinute disables limiting.
func WithToggleRateLimit(perMinute, burst int, clock func() time.Time) ReactionOption {
	return func(h *ReactionHandlers) {
		h.limiter = newKeyedRateLimiter(perMinute, time.Minute, burst, clock)
	}
}

// NewReactionHandlers constructs the handlers.
func NewReactionHandlers(reactions services.ReactionService, opts ...ReactionOption) *ReactionHandlers {
	h := &ReactionHandlers{
		reactions: reactions,
		limiter:   newKeyedRateLimiter(defaultTogglePerMin, time.Minute, defaultToggleBurst, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /reactions endpoints.
func (h *ReactionHandlers) Routes(r chi.Router) {
	r.Post("/toggle", h.toggle)
	r.Get("/{kind}/{targetID}", h.get)
}

type toggleReactionRequest struct {
	TargetID   string `json:"targetId" validate:"required,max=128"`
	TargetKind string `json:"targetKind" validate:"required,oneof=post comment"`
	Type       string `json:"type" validate:"required,oneof=like dislike"`
}

func (r *toggleReactionRequest) normalize() {
	r.TargetID = strings.TrimSpace(r.TargetID)
	r.TargetKind = strings.ToLower(strings.TrimSpace(r.TargetKind))
	r.Type = strings.ToLower(strings.TrimSpace(r.Type))
}

type reactionStatsPayload struct {
	Likes    int64 `json:"likes"`
	Dislikes int64 `json:"dislikes"`
}

type toggleReactionResponse struct {
	Action       string               `json:"action"`
	LikeDelta    int64                `json:"likeDelta"`
	DislikeDelta int64                `json:"dislikeDelta"`
	Stats        reactionStatsPayload `json:"stats"`
}

type reactionViewResponse struct {
	TargetID   string                `json:"targetId"`
	TargetKind string                `json:"targetKind"`
	Stats      reactionStatsPayload  `json:"stats"`
	MyReaction *string               `json:"myReaction"`
	Owner      *reactionOwnerPayload `json:"owner,omitempty"`
}

type reactionOwnerPayload struct {
	UserID     string `json:"userId"`
	Reputation int64  `json:"reputation"`
}

func (h *ReactionHandlers) toggle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if h.limiter != nil && !h.limiter.Allow(actor.ID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many reactions, slow down", http.StatusTooManyRequests))
		return
	}

	var req toggleReactionRequest
	if !bindJSON(w, r, &req) {
		return
	}

	result, err := h.reactions.Toggle(ctx, services.ToggleReactionCommand{
		UserID:     actor.ID,
		TargetID:   strings.TrimSpace(req.TargetID),
		TargetKind: req.TargetKind,
		Type:       req.Type,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toggleReactionResponse{
		Action:       string(result.Action),
		LikeDelta:    result.Delta.Likes,
		DislikeDelta: result.Delta.Dislikes,
		Stats:        reactionStatsPayload{Likes: result.Stats.Likes, Dislikes: result.Stats.Dislikes},
	})
}

func (h *ReactionHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	view, err := h.reactions.Get(ctx, services.ReactionQuery{
		TargetID:   chi.URLParam(r, "targetID"),
		TargetKind: chi.URLParam(r, "kind"),
		ViewerID:   actor.ID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := reactionViewResponse{
		TargetID:   view.Target.ID,
		TargetKind: string(view.Target.Kind),
		Stats:      reactionStatsPayload{Likes: view.Stats.Likes, Dislikes: view.Stats.Dislikes},
	}
	if view.Reaction != nil {
		mine := string(*view.Reaction)
		resp.MyReaction = &mine
	}
	if view.Owner != nil {
		resp.Owner = &reactionOwnerPayload{UserID: view.Owner.UserID, Reputation: view.Owner.Reputation}
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}
