package mongo

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/campushub/api/internal/repositories"
)

// Registry wires the MongoDB repositories around one client and database.
type Registry struct {
	client    *mongo.Client
	reactions *ReactionRepository
	targets   *TargetRepository
	orders    *OrderRepository
	counters  *CounterRepository
	users     *UserRepository
	health    repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds every repository on database. The caller hands ownership of client to the
// registry; Close disconnects it.
func NewRegistry(client *mongo.Client, database string, health repositories.HealthRepository) (*Registry, error) {
	if client == nil {
		return nil, errors.New("mongo registry requires client")
	}
	database = strings.TrimSpace(database)
	if database == "" {
		return nil, errors.New("mongo registry requires database name")
	}
	db := client.Database(database)
	reg := &Registry{client: client, health: health}
	var err error
	if reg.reactions, err = NewReactionRepository(db); err != nil {
		return nil, err
	}
	if reg.targets, err = NewTargetRepository(db); err != nil {
		return nil, err
	}
	if reg.orders, err = NewOrderRepository(db); err != nil {
		return nil, err
	}
	if reg.counters, err = NewCounterRepository(db); err != nil {
		return nil, err
	}
	if reg.users, err = NewUserRepository(db); err != nil {
		return nil, err
	}
	if reg.health == nil {
		reg.health, err = repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{{
			Name: "mongo",
			Check: func(ctx context.Context) error {
				return client.Ping(ctx, readpref.Primary())
			},
		}})
		if err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (r *Registry) Close(ctx context.Context) error            { return r.client.Disconnect(ctx) }
func (r *Registry) Reactions() repositories.ReactionRepository { return r.reactions }
func (r *Registry) Targets() repositories.TargetRepository     { return r.targets }
func (r *Registry) Orders() repositories.OrderRepository       { return r.orders }
func (r *Registry) Counters() repositories.CounterRepository   { return r.counters }
func (r *Registry) Users() repositories.UserRepository         { return r.users }
func (r *Registry) Health() repositories.HealthRepository      { return r.health }
