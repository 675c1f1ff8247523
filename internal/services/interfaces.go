package services

import (
	"context"
	"time"

	domain "github.com/campushub/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Order              = domain.Order
	OrderStatus        = domain.OrderStatus
	OrderRating        = domain.OrderRating
	TimelineEntry      = domain.TimelineEntry
	Actor              = domain.Actor
	Reaction           = domain.Reaction
	ReactionStats      = domain.ReactionStats
	ToggleResult       = domain.ToggleResult
	Notification       = domain.Notification
	ReconcileReport    = domain.ReconcileReport
	SystemHealthReport = domain.SystemHealthReport
)

// ReactionService applies like/dislike toggles and reads reaction state.
type ReactionService interface {
	Toggle(ctx context.Context, cmd ToggleReactionCommand) (ToggleResult, error)
	Get(ctx context.Context, query ReactionQuery) (ReactionView, error)
}

// OrderService drives the parcel order lifecycle.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	Get(ctx context.Context, orderID string, actor Actor) (Order, error)
	Transition(ctx context.Context, cmd TransitionOrderCommand) (Order, error)
	Rate(ctx context.Context, cmd RateOrderCommand) (Order, error)
	SetPaymentStatus(ctx context.Context, cmd SetPaymentStatusCommand) (Order, error)
}

// ReconciliationService recounts reactions and compares them with cached counters.
type ReconciliationService interface {
	Run(ctx context.Context, opts ReconcileOptions) (ReconcileReport, error)
}

// SystemService aggregates utility endpoints such as health checks.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// NotificationDispatcher delivers user-facing notifications. Callers treat failures as
// best-effort and never roll back committed state because of them.
type NotificationDispatcher interface {
	Notify(ctx context.Context, userID string, notification Notification) error
}

// NotificationDispatcherFunc adapts a function to NotificationDispatcher.
type NotificationDispatcherFunc func(ctx context.Context, userID string, notification Notification) error

// Notify calls f.
func (f NotificationDispatcherFunc) Notify(ctx context.Context, userID string, notification Notification) error {
	return f(ctx, userID, notification)
}

// ToggleReactionCommand requests a like or dislike on a target.
type ToggleReactionCommand struct {
	UserID     string
	TargetID   string
	TargetKind string
	Type       string
}

// ReactionQuery identifies a target and, optionally, the viewer whose reaction to include.
type ReactionQuery struct {
	TargetID   string
	TargetKind string
	ViewerID   string
}

// ReactionView is the reaction state of one target as seen by a viewer.
type ReactionView struct {
	Target   domain.TargetRef
	Stats    ReactionStats
	Reaction *domain.ReactionType
	// Owner is set when the target has an author and the service can read reputations.
	Owner *ReactionOwner
}

// ReactionOwner is the author of a target and the reputation their liked content earned.
type ReactionOwner struct {
	UserID     string
	Reputation int64
}

// CreateOrderCommand places a new pickup order.
type CreateOrderCommand struct {
	Customer    Actor
	Description string
	PickupCode  string
	Destination string
	Reward      int64
	// ExpiresIn overrides the default accept window when positive.
	ExpiresIn time.Duration
}

// TransitionOrderCommand moves an order to Status on behalf of Actor.
type TransitionOrderCommand struct {
	OrderID string
	Actor   Actor
	Status  string
	Note    string
}

// RateOrderCommand records the customer's rating of a completed order.
type RateOrderCommand struct {
	OrderID string
	Actor   Actor
	Score   int
	Comment string
}

// SetPaymentStatusCommand stores an opaque payment status on the order.
type SetPaymentStatusCommand struct {
	OrderID string
	Actor   Actor
	Status  string
}

// ReconcileOptions tunes a reconciliation pass.
type ReconcileOptions struct {
	// Repair overwrites drifted counters with the recount.
	Repair bool
	// Limit caps the number of targets scanned per kind; zero scans everything.
	Limit int
	// BatchSize is the page size used while scanning.
	BatchSize int
}
