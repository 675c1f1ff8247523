package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// UserRepository reads reputation and device tokens from the users collection.
type UserRepository struct {
	db *mongo.Database
}

// NewUserRepository constructs a MongoDB-backed user repository.
func NewUserRepository(db *mongo.Database) (*UserRepository, error) {
	if db == nil {
		return nil, errors.New("user repository requires mongo database")
	}
	return &UserRepository{db: db}, nil
}

func (r *UserRepository) load(ctx context.Context, userID string, fields ...string) (userDocument, bool, error) {
	projection := bson.M{}
	for _, f := range fields {
		projection[f] = 1
	}
	var doc userDocument
	err := r.db.Collection(usersCollection).
		FindOne(ctx, bson.M{"_id": userID}, options.FindOne().SetProjection(projection)).
		Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return userDocument{}, false, nil
	}
	if err != nil {
		return userDocument{}, false, wrapError("users.get", err)
	}
	return doc, true, nil
}

// Reputation returns zero for users that never received a like.
func (r *UserRepository) Reputation(ctx context.Context, userID string) (int64, error) {
	doc, _, err := r.load(ctx, userID, "reputation")
	return doc.Reputation, err
}

func (r *UserRepository) DeviceTokens(ctx context.Context, userID string) ([]string, error) {
	doc, _, err := r.load(ctx, userID, "fcmTokens")
	return doc.FCMTokens, err
}

func (r *UserRepository) RemoveDeviceTokens(ctx context.Context, userID string, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	_, err := r.db.Collection(usersCollection).UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$pullAll": bson.M{"fcmTokens": tokens}},
	)
	return wrapError("users.remove_tokens", err)
}
