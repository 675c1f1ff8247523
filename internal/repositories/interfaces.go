package repositories

import (
	"context"

	domain "github.com/campushub/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Reactions() ReactionRepository
	Targets() TargetRepository
	Orders() OrderRepository
	Counters() CounterRepository
	Users() UserRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ToggleDecider computes the outcome of a toggle from the current reaction (nil when absent)
// and the target it points at. Backends may call it more than once when they retry.
type ToggleDecider func(existing *domain.Reaction, target domain.ReactableTarget) (domain.ToggleOutcome, error)

// ReactionRepository owns reaction rows and is the only writer of target reaction counters.
type ReactionRepository interface {
	// Toggle reads the reaction identified by key and its target, asks decide for the outcome and
	// applies the row mutation together with the counter and reputation increments. A missing
	// target is reported as not found; a lost race on the row is reported as a conflict. Backends
	// that cannot apply row and counters atomically return the result together with
	// ErrCountersPending when the row landed but the increments did not.
	Toggle(ctx context.Context, key domain.ReactionKey, decide ToggleDecider) (domain.ToggleResult, error)
	Find(ctx context.Context, key domain.ReactionKey) (domain.Reaction, error)
	// CountByTarget recounts reaction rows for ref.
	CountByTarget(ctx context.Context, ref domain.TargetRef) (domain.ReactionStats, error)
}

// TargetRepository reads reactable targets and repairs their cached counters.
type TargetRepository interface {
	Get(ctx context.Context, ref domain.TargetRef) (domain.ReactableTarget, error)
	// Scan pages through targets of kind ordered by id. An empty returned cursor ends the scan.
	Scan(ctx context.Context, kind domain.TargetKind, cursor string, limit int) ([]domain.ReactableTarget, string, error)
	// RepairStats overwrites the stats of ref with next only while they still equal expected.
	RepairStats(ctx context.Context, ref domain.TargetRef, expected, next domain.ReactionStats) error
}

// OrderExpectation is the state a conditional order write was guarded against.
type OrderExpectation struct {
	Status   domain.OrderStatus
	Revision int64
}

// OrderRepository persists the order aggregate.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// Update replaces the stored order with order only if the stored status and revision still
	// match expect, and reports a conflict otherwise. order.Revision must be expect.Revision+1.
	Update(ctx context.Context, order domain.Order, expect OrderExpectation) error
}

// CounterRepository hands out monotonically increasing sequence values.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
}

// UserRepository reads the per-user side data the core maintains or consumes: the reputation
// counter adjusted by likes and the push device tokens used for notifications.
type UserRepository interface {
	Reputation(ctx context.Context, userID string) (int64, error)
	DeviceTokens(ctx context.Context, userID string) ([]string, error)
	RemoveDeviceTokens(ctx context.Context, userID string, tokens []string) error
}

// HealthRepository probes backing services for readiness reporting.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
