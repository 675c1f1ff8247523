package mongo

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type counterDocument struct {
	ID        string    `bson:"_id"`
	Value     int64     `bson:"value"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// CounterRepository hands out sequence values with an atomic upserting $inc.
type CounterRepository struct {
	db  *mongo.Database
	now func() time.Time
}

// NewCounterRepository constructs a MongoDB-backed counter repository.
func NewCounterRepository(db *mongo.Database) (*CounterRepository, error) {
	if db == nil {
		return nil, errors.New("counter repository requires mongo database")
	}
	return &CounterRepository{db: db, now: time.Now}, nil
}

func (r *CounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	counterID = strings.TrimSpace(counterID)
	if counterID == "" || step <= 0 {
		return 0, errors.New("counters.next: counter id and positive step are required")
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var doc counterDocument
	err := r.db.Collection(countersCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": counterID},
		bson.M{"$inc": bson.M{"value": step}, "$set": bson.M{"updatedAt": r.now().UTC()}},
		opts,
	).Decode(&doc)
	if err != nil {
		return 0, wrapError("counters.next", err)
	}
	return doc.Value, nil
}
