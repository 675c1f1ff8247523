package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	domain "github.com/campushub/api/internal/domain"
)

const defaultScanLimit = 100

// TargetRepository reads posts and comments and repairs their counters.
type TargetRepository struct {
	db *mongo.Database
}

// NewTargetRepository constructs a MongoDB-backed target repository.
func NewTargetRepository(db *mongo.Database) (*TargetRepository, error) {
	if db == nil {
		return nil, errors.New("target repository requires mongo database")
	}
	return &TargetRepository{db: db}, nil
}

func (r *TargetRepository) Get(ctx context.Context, ref domain.TargetRef) (domain.ReactableTarget, error) {
	var doc targetDocument
	if err := targetCollection(r.db, ref.Kind).FindOne(ctx, bson.M{"_id": ref.ID}).Decode(&doc); err != nil {
		return domain.ReactableTarget{}, wrapError("targets.get", err)
	}
	return doc.toDomain(ref.Kind), nil
}

// Scan pages through targets of kind by _id. The cursor is the last id returned.
func (r *TargetRepository) Scan(ctx context.Context, kind domain.TargetKind, cursor string, limit int) ([]domain.ReactableTarget, string, error) {
	if limit <= 0 {
		limit = defaultScanLimit
	}
	filter := bson.M{}
	if cursor != "" {
		filter["_id"] = bson.M{"$gt": cursor}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"authorId": 1, "stats": 1})

	cur, err := targetCollection(r.db, kind).Find(ctx, filter, opts)
	if err != nil {
		return nil, "", wrapError("targets.scan", err)
	}
	var docs []targetDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, "", wrapError("targets.scan", err)
	}
	out := make([]domain.ReactableTarget, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.toDomain(kind))
	}
	next := ""
	if len(docs) == limit {
		next = docs[len(docs)-1].ID
	}
	return out, next, nil
}

// RepairStats sets the counters only when they still hold expected.
func (r *TargetRepository) RepairStats(ctx context.Context, ref domain.TargetRef, expected, next domain.ReactionStats) error {
	res, err := targetCollection(r.db, ref.Kind).UpdateOne(ctx,
		bson.M{"_id": ref.ID, "stats.likes": expected.Likes, "stats.dislikes": expected.Dislikes},
		bson.M{"$set": bson.M{"stats.likes": next.Likes, "stats.dislikes": next.Dislikes}},
	)
	if err != nil {
		return wrapError("targets.repair", err)
	}
	if res.MatchedCount == 0 {
		return conflictError("targets.repair", fmt.Errorf("stats of %s changed since recount", ref))
	}
	return nil
}
