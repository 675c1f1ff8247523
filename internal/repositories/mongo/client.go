// Package mongo implements the repositories on MongoDB. Reaction rows carry a unique index on
// (userId, targetKind, targetId); counters and reputation move with $inc.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	domain "github.com/campushub/api/internal/domain"
	"github.com/campushub/api/internal/platform/config"
)

const (
	postsCollection     = "posts"
	commentsCollection  = "comments"
	reactionsCollection = "reactions"
	usersCollection     = "users"
	ordersCollection    = "orders"
	countersCollection  = "counters"
)

// Connect dials MongoDB with the stable API and verifies the primary is reachable.
func Connect(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongo: uri is required")
	}
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1)).
		SetRetryWrites(true).
		SetTimeout(cfg.Timeout)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}
	return client, nil
}

// EnsureIndexes creates the indexes the repositories rely on for uniqueness and recounts.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(reactionsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "targetKind", Value: 1}, {Key: "targetId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("reaction_unique"),
		},
		{
			Keys:    bson.D{{Key: "targetKind", Value: 1}, {Key: "targetId", Value: 1}, {Key: "type", Value: 1}},
			Options: options.Index().SetName("reaction_by_target"),
		},
	})
	if err != nil {
		return wrapError("indexes.reactions", err)
	}
	_, err = db.Collection(ordersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "orderNumber", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("order_number_unique"),
	})
	return wrapError("indexes.orders", err)
}

func targetCollection(db *mongo.Database, kind domain.TargetKind) *mongo.Collection {
	if kind == domain.TargetKindComment {
		return db.Collection(commentsCollection)
	}
	return db.Collection(postsCollection)
}
