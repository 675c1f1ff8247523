package idempotency

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoStore implements Store on a MongoDB collection. Expired documents are also reaped by a TTL
// index, so Purge only catches what the TTL monitor has not reached yet.
type MongoStore struct {
	coll *mongo.Collection
}

var _ Store = (*MongoStore)(nil)

// NewMongoStore constructs a store on db. An empty collection uses idempotency_keys.
func NewMongoStore(db *mongo.Database, collection string) (*MongoStore, error) {
	if db == nil {
		return nil, errors.New("idempotency: mongo database is required")
	}
	if collection == "" {
		collection = defaultCollection
	}
	return &MongoStore{coll: db.Collection(collection)}, nil
}

// EnsureIndexes creates the TTL index on expiresAt.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expiresAt", Value: 1}},
		Options: options.Index().SetName("idempotency_ttl").SetExpireAfterSeconds(0),
	})
	return err
}

type mongoEntry struct {
	ID          string              `bson:"_id"`
	Key         string              `bson:"key"`
	Fingerprint string              `bson:"fingerprint"`
	Finished    bool                `bson:"finished"`
	Status      int                 `bson:"status"`
	Header      map[string][]string `bson:"header,omitempty"`
	Body        []byte              `bson:"body,omitempty"`
	CreatedAt   time.Time           `bson:"createdAt"`
	ExpiresAt   time.Time           `bson:"expiresAt"`
}

func toMongoEntry(e Entry) mongoEntry {
	return mongoEntry{
		ID:          documentID(e.Key),
		Key:         e.Key,
		Fingerprint: e.Fingerprint,
		Finished:    e.Finished,
		Status:      e.Status,
		Header:      e.Header,
		Body:        e.Body,
		CreatedAt:   e.CreatedAt,
		ExpiresAt:   e.ExpiresAt,
	}
}

func (m mongoEntry) entry() Entry {
	return Entry{
		Key:         m.Key,
		Fingerprint: m.Fingerprint,
		Finished:    m.Finished,
		Status:      m.Status,
		Header:      m.Header,
		Body:        m.Body,
		CreatedAt:   m.CreatedAt.UTC(),
		ExpiresAt:   m.ExpiresAt.UTC(),
	}
}

// Claim implements Store. The unique _id decides the race: an upsert filtered on an expired
// expiresAt either replaces a stale entry or collides with a live one.
func (s *MongoStore) Claim(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Outcome, Entry, error) {
	now = now.UTC()
	claim := newClaim(key, fingerprint, now, ttl)
	doc := toMongoEntry(claim)

	filter := bson.D{{Key: "_id", Value: doc.ID}, {Key: "expiresAt", Value: bson.D{{Key: "$lte", Value: now}}}}
	_, err := s.coll.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	if err == nil {
		return OutcomeClaimed, claim, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return 0, Entry{}, err
	}

	var existing mongoEntry
	if err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: doc.ID}}).Decode(&existing); err != nil {
		return 0, Entry{}, err
	}
	entry := existing.entry()
	outcome, err := classify(entry, fingerprint)
	return outcome, entry, err
}

// Finish implements Store.
func (s *MongoStore) Finish(ctx context.Context, entry Entry) error {
	entry.Finished = true
	doc := toMongoEntry(entry)
	res, err := s.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: doc.ID}, {Key: "fingerprint", Value: entry.Fingerprint}}, doc)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrKeyReused
	}
	return nil
}

// Abandon implements Store.
func (s *MongoStore) Abandon(ctx context.Context, key string) error {
	_, err := s.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: documentID(key)}})
	return err
}

// Purge implements Store.
func (s *MongoStore) Purge(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	cursor, err := s.coll.Find(ctx,
		bson.D{{Key: "expiresAt", Value: bson.D{{Key: "$lte", Value: now.UTC()}}}},
		options.Find().SetLimit(int64(limit)).SetProjection(bson.D{{Key: "_id", Value: 1}}),
	)
	if err != nil {
		return 0, err
	}
	var ids []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &ids); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	in := make(bson.A, 0, len(ids))
	for _, id := range ids {
		in = append(in, id.ID)
	}
	res, err := s.coll.DeleteMany(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: in}}}})
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}
