package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/campushub/api/internal/platform/httpx"
	"github.com/campushub/api/internal/platform/idempotency"
	"github.com/campushub/api/internal/services"
)

// InternalHandlers serves scheduler-triggered maintenance endpoints. The router guards the group
// with OIDC so only Cloud Scheduler service accounts reach it.
type InternalHandlers struct {
	reconcile     services.ReconciliationService
	idempotency   idempotency.Store
	purgeBatch    int
	defaultRepair bool
	clock         func() time.Time
}

// InternalOption customises InternalHandlers.
type InternalOption func(*InternalHandlers)

// WithIdempotencyPurge enables POST /internal/idempotency/purge.
func WithIdempotencyPurge(store idempotency.Store, batch int) InternalOption {
	return func(h *InternalHandlers) {
		h.idempotency = store
		h.purgeBatch = batch
	}
}

// WithDefaultRepair makes reconcile runs repair unless the request says otherwise.
func WithDefaultRepair(repair bool) InternalOption {
	return func(h *InternalHandlers) { h.defaultRepair = repair }
}

// WithInternalClock overrides the clock.
func WithInternalClock(clock func() time.Time) InternalOption {
	return func(h *InternalHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewInternalHandlers constructs the internal handlers.
func NewInternalHandlers(reconcile services.ReconciliationService, opts ...InternalOption) *InternalHandlers {
	h := &InternalHandlers{reconcile: reconcile, purgeBatch: 500, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	r.Post("/reconcile", h.runReconcile)
	if h.idempotency != nil {
		r.Post("/idempotency/purge", h.purgeIdempotency)
	}
}

type reconcileRequest struct {
	Repair    *bool `json:"repair"`
	Limit     int   `json:"limit" validate:"gte=0"`
	BatchSize int   `json:"batchSize" validate:"gte=0,max=1000"`
}

type driftPayload struct {
	TargetKind string               `json:"targetKind"`
	TargetID   string               `json:"targetId"`
	Stored     reactionStatsPayload `json:"stored"`
	Computed   reactionStatsPayload `json:"computed"`
}

type reconcileResponse struct {
	RunID       string         `json:"runId"`
	Scanned     int            `json:"scanned"`
	Drifted     []driftPayload `json:"drifted"`
	Repaired    int            `json:"repaired"`
	Skipped     int            `json:"skipped"`
	ReportURI   string         `json:"reportUri,omitempty"`
	StartedAt   string         `json:"startedAt"`
	CompletedAt string         `json:"completedAt"`
}

func (h *InternalHandlers) runReconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req reconcileRequest
	if r.ContentLength != 0 {
		if !bindJSON(w, r, &req) {
			return
		}
	}
	repair := h.defaultRepair
	if req.Repair != nil {
		repair = *req.Repair
	}

	report, err := h.reconcile.Run(ctx, services.ReconcileOptions{Repair: repair, Limit: req.Limit, BatchSize: req.BatchSize})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	resp := reconcileResponse{
		RunID:       report.RunID,
		Scanned:     report.Scanned,
		Drifted:     make([]driftPayload, 0, len(report.Drifted)),
		Repaired:    report.Repaired,
		Skipped:     report.Skipped,
		ReportURI:   report.ReportURI,
		StartedAt:   formatTime(report.StartedAt),
		CompletedAt: formatTime(report.CompletedAt),
	}
	for _, d := range report.Drifted {
		resp.Drifted = append(resp.Drifted, driftPayload{
			TargetKind: string(d.Target.Kind),
			TargetID:   d.Target.ID,
			Stored:     reactionStatsPayload{Likes: d.Stored.Likes, Dislikes: d.Stored.Dislikes},
			Computed:   reactionStatsPayload{Likes: d.Computed.Likes, Dislikes: d.Computed.Dislikes},
		})
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *InternalHandlers) purgeIdempotency(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	removed, err := h.idempotency.Purge(ctx, h.clock().UTC(), h.purgeBatch)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("purge_failed", "unable to purge idempotency keys", http.StatusServiceUnavailable))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"removed": removed})
}
