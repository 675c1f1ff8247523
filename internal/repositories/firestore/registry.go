package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/campushub/api/internal/platform/firestore"
	"github.com/campushub/api/internal/repositories"
)

// Registry wires the Firestore repositories around one shared provider.
type Registry struct {
	provider  *pfirestore.Provider
	reactions *ReactionRepository
	targets   *TargetRepository
	orders    *OrderRepository
	counters  *CounterRepository
	users     *UserRepository
	health    repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds every repository. health may be nil, in which case readiness only pings
// Firestore.
func NewRegistry(provider *pfirestore.Provider, reactionAttempts int, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	reg := &Registry{provider: provider, health: health}
	var err error
	if reg.reactions, err = NewReactionRepository(provider, reactionAttempts); err != nil {
		return nil, err
	}
	if reg.targets, err = NewTargetRepository(provider); err != nil {
		return nil, err
	}
	if reg.orders, err = NewOrderRepository(provider); err != nil {
		return nil, err
	}
	if reg.counters, err = NewCounterRepository(provider); err != nil {
		return nil, err
	}
	if reg.users, err = NewUserRepository(provider); err != nil {
		return nil, err
	}
	if reg.health == nil {
		reg.health, err = repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{{
			Name:  "firestore",
			Check: provider.Ping,
		}})
		if err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (r *Registry) Close(ctx context.Context) error            { return r.provider.Close(ctx) }
func (r *Registry) Reactions() repositories.ReactionRepository { return r.reactions }
func (r *Registry) Targets() repositories.TargetRepository     { return r.targets }
func (r *Registry) Orders() repositories.OrderRepository       { return r.orders }
func (r *Registry) Counters() repositories.CounterRepository   { return r.counters }
func (r *Registry) Users() repositories.UserRepository         { return r.users }
func (r *Registry) Health() repositories.HealthRepository      { return r.health }
