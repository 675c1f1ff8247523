// Package memory is a process-local backend used by tests and by API_STORE_DRIVER=memory.
// A single mutex serialises every operation, which makes each repository call atomic.
package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	domain "github.com/campushub/api/internal/domain"
	"github.com/campushub/api/internal/repositories"
)

// Error satisfies repositories.RepositoryError.
type Error struct {
	op       string
	notFound bool
	conflict bool
}

func (e *Error) Error() string {
	switch {
	case e.notFound:
		return e.op + ": not found"
	case e.conflict:
		return e.op + ": conflict"
	default:
		return e.op + ": failed"
	}
}

func (e *Error) IsNotFound() bool    { return e.notFound }
func (e *Error) IsConflict() bool    { return e.conflict }
func (e *Error) IsUnavailable() bool { return false }

func notFound(op string) error { return &Error{op: op, notFound: true} }
func conflict(op string) error { return &Error{op: op, conflict: true} }

type target struct {
	owner string
	stats domain.ReactionStats
}

// Registry implements repositories.Registry on in-process maps.
type Registry struct {
	mu         sync.Mutex
	targets    map[domain.TargetRef]*target
	reactions  map[domain.ReactionKey]domain.Reaction
	reputation map[string]int64
	orders     map[string]domain.Order
	counters   map[string]int64
	devices    map[string][]string
	health     repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry returns an empty store.
func NewRegistry() *Registry {
	r := &Registry{
		targets:    make(map[domain.TargetRef]*target),
		reactions:  make(map[domain.ReactionKey]domain.Reaction),
		reputation: make(map[string]int64),
		orders:     make(map[string]domain.Order),
		counters:   make(map[string]int64),
		devices:    make(map[string][]string),
	}
	r.health, _ = repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{{
		Name:  "memory",
		Check: func(context.Context) error { return nil },
	}})
	return r
}

// PutTarget creates or replaces a reactable target. Posts and comments are owned by other
// services, so this is how they appear in the memory backend.
func (r *Registry) PutTarget(t domain.ReactableTarget) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets[t.Ref] = &target{owner: t.OwnerID, stats: t.Stats}
}

// Reputation returns the accumulated reputation of userID.
func (r *Registry) Reputation(userID string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reputation[userID]
}

// PutDeviceTokens registers push tokens for userID.
func (r *Registry) PutDeviceTokens(userID string, tokens ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[userID] = append(r.devices[userID], tokens...)
}

func (r *Registry) Close(context.Context) error                { return nil }
func (r *Registry) Reactions() repositories.ReactionRepository { return reactionRepo{r} }
func (r *Registry) Targets() repositories.TargetRepository     { return targetRepo{r} }
func (r *Registry) Orders() repositories.OrderRepository       { return orderRepo{r} }
func (r *Registry) Counters() repositories.CounterRepository   { return counterRepo{r} }
func (r *Registry) Users() repositories.UserRepository         { return userRepo{r} }
func (r *Registry) Health() repositories.HealthRepository      { return r.health }

type reactionRepo struct{ r *Registry }

func (repo reactionRepo) Toggle(_ context.Context, key domain.ReactionKey, decide repositories.ToggleDecider) (domain.ToggleResult, error) {
	r := repo.r
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.targets[key.Target()]
	if !ok {
		return domain.ToggleResult{}, notFound("reactions.toggle")
	}
	var existing *domain.Reaction
	if current, ok := r.reactions[key]; ok {
		existing = &current
	}
	out, err := decide(existing, domain.ReactableTarget{Ref: key.Target(), OwnerID: t.owner, Stats: t.stats})
	if err != nil {
		return domain.ToggleResult{}, err
	}

	switch {
	case out.Mutation.Delete:
		delete(r.reactions, key)
	default:
		r.reactions[key] = out.Mutation.Next
	}
	t.stats = t.stats.Apply(out.Delta)
	if out.ReputationUserID != "" {
		r.reputation[out.ReputationUserID] += out.ReputationDelta
	}
	return domain.ToggleResult{Action: out.Action, Delta: out.Delta, Stats: t.stats}, nil
}

func (repo reactionRepo) Find(_ context.Context, key domain.ReactionKey) (domain.Reaction, error) {
	repo.r.mu.Lock()
	defer repo.r.mu.Unlock()
	reaction, ok := repo.r.reactions[key]
	if !ok {
		return domain.Reaction{}, notFound("reactions.find")
	}
	return reaction, nil
}

func (repo reactionRepo) CountByTarget(_ context.Context, ref domain.TargetRef) (domain.ReactionStats, error) {
	repo.r.mu.Lock()
	defer repo.r.mu.Unlock()
	var stats domain.ReactionStats
	for _, reaction := range repo.r.reactions {
		if reaction.TargetID != ref.ID || reaction.TargetKind != ref.Kind {
			continue
		}
		if reaction.Type == domain.ReactionLike {
			stats.Likes++
		} else {
			stats.Dislikes++
		}
	}
	return stats, nil
}

type targetRepo struct{ r *Registry }

func (repo targetRepo) Get(_ context.Context, ref domain.TargetRef) (domain.ReactableTarget, error) {
	repo.r.mu.Lock()
	defer repo.r.mu.Unlock()
	t, ok := repo.r.targets[ref]
	if !ok {
		return domain.ReactableTarget{}, notFound("targets.get")
	}
	return domain.ReactableTarget{Ref: ref, OwnerID: t.owner, Stats: t.stats}, nil
}

func (repo targetRepo) Scan(_ context.Context, kind domain.TargetKind, cursor string, limit int) ([]domain.ReactableTarget, string, error) {
	repo.r.mu.Lock()
	defer repo.r.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	ids := make([]string, 0, len(repo.r.targets))
	for ref := range repo.r.targets {
		if ref.Kind == kind && ref.ID > cursor {
			ids = append(ids, ref.ID)
		}
	}
	sort.Strings(ids)

	next := ""
	if len(ids) > limit {
		ids = ids[:limit]
		next = ids[limit-1]
	}
	out := make([]domain.ReactableTarget, 0, len(ids))
	for _, id := range ids {
		ref := domain.TargetRef{ID: id, Kind: kind}
		t := repo.r.targets[ref]
		out = append(out, domain.ReactableTarget{Ref: ref, OwnerID: t.owner, Stats: t.stats})
	}
	return out, next, nil
}

func (repo targetRepo) RepairStats(_ context.Context, ref domain.TargetRef, expected, next domain.ReactionStats) error {
	repo.r.mu.Lock()
	defer repo.r.mu.Unlock()
	t, ok := repo.r.targets[ref]
	if !ok {
		return notFound("targets.repair")
	}
	if t.stats != expected {
		return conflict("targets.repair")
	}
	t.stats = next
	return nil
}

type orderRepo struct{ r *Registry }

func (repo orderRepo) Insert(_ context.Context, order domain.Order) error {
	repo.r.mu.Lock()
	defer repo.r.mu.Unlock()
	if _, exists := repo.r.orders[order.ID]; exists {
		return conflict("orders.insert")
	}
	for _, existing := range repo.r.orders {
		if existing.OrderNumber == order.OrderNumber {
			return conflict("orders.insert")
		}
	}
	repo.r.orders[order.ID] = cloneOrder(order)
	return nil
}

func (repo orderRepo) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	repo.r.mu.Lock()
	defer repo.r.mu.Unlock()
	order, ok := repo.r.orders[orderID]
	if !ok {
		return domain.Order{}, notFound("orders.find")
	}
	return cloneOrder(order), nil
}

func (repo orderRepo) Update(_ context.Context, order domain.Order, expect repositories.OrderExpectation) error {
	repo.r.mu.Lock()
	defer repo.r.mu.Unlock()
	stored, ok := repo.r.orders[order.ID]
	if !ok {
		return notFound("orders.update")
	}
	if stored.Status != expect.Status || stored.Revision != expect.Revision {
		return conflict("orders.update")
	}
	if order.Revision != expect.Revision+1 {
		return fmt.Errorf("orders.update: revision must advance by one, got %d after %d", order.Revision, expect.Revision)
	}
	repo.r.orders[order.ID] = cloneOrder(order)
	return nil
}

func cloneOrder(order domain.Order) domain.Order {
	order.Timeline = slices.Clone(order.Timeline)
	if order.Rating != nil {
		rating := *order.Rating
		order.Rating = &rating
	}
	return order
}

type counterRepo struct{ r *Registry }

func (repo counterRepo) Next(_ context.Context, counterID string, step int64) (int64, error) {
	if counterID == "" || step <= 0 {
		return 0, errors.New("counters.next: counter id and positive step are required")
	}
	repo.r.mu.Lock()
	defer repo.r.mu.Unlock()
	repo.r.counters[counterID] += step
	return repo.r.counters[counterID], nil
}

type userRepo struct{ r *Registry }

func (repo userRepo) Reputation(_ context.Context, userID string) (int64, error) {
	return repo.r.Reputation(userID), nil
}

func (repo userRepo) DeviceTokens(_ context.Context, userID string) ([]string, error) {
	repo.r.mu.Lock()
	defer repo.r.mu.Unlock()
	return slices.Clone(repo.r.devices[userID]), nil
}

func (repo userRepo) RemoveDeviceTokens(_ context.Context, userID string, tokens []string) error {
	repo.r.mu.Lock()
	defer repo.r.mu.Unlock()
	repo.r.devices[userID] = slices.DeleteFunc(repo.r.devices[userID], func(token string) bool {
		return slices.Contains(tokens, token)
	})
	return nil
}
