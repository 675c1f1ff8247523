package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/campushub/api/internal/platform/firestore"
)

type userDocument struct {
	Reputation int64    `firestore:"reputation"`
	FCMTokens  []string `firestore:"fcmTokens"`
}

// UserRepository reads and trims the user fields the core touches. Profiles themselves are
// owned by the account service.
type UserRepository struct {
	provider *pfirestore.Provider
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	return &UserRepository{provider: provider}, nil
}

func (r *UserRepository) load(ctx context.Context, userID string) (userDocument, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return userDocument{}, err
	}
	snap, err := client.Collection(usersCollection).Doc(userID).Get(ctx)
	if err != nil {
		return userDocument{}, pfirestore.WrapError("users.get", err)
	}
	var doc userDocument
	if err := snap.DataTo(&doc); err != nil {
		return userDocument{}, fmt.Errorf("decode user %s: %w", userID, err)
	}
	return doc, nil
}

// Reputation returns the reputation counter; unknown users have zero.
func (r *UserRepository) Reputation(ctx context.Context, userID string) (int64, error) {
	doc, err := r.load(ctx, userID)
	if pfirestore.IsNotFound(err) {
		return 0, nil
	}
	return doc.Reputation, err
}

// DeviceTokens returns the FCM registration tokens of userID.
func (r *UserRepository) DeviceTokens(ctx context.Context, userID string) ([]string, error) {
	doc, err := r.load(ctx, userID)
	if pfirestore.IsNotFound(err) {
		return nil, nil
	}
	return doc.FCMTokens, err
}

// RemoveDeviceTokens drops tokens FCM reported as unregistered.
func (r *UserRepository) RemoveDeviceTokens(ctx context.Context, userID string, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	values := make([]any, len(tokens))
	for i, token := range tokens {
		values[i] = token
	}
	_, err = client.Collection(usersCollection).Doc(userID).Update(ctx, []firestore.Update{
		{Path: "fcmTokens", Value: firestore.ArrayRemove(values...)},
	})
	return pfirestore.WrapError("users.remove_tokens", err)
}
