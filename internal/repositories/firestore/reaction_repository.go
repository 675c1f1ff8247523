package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"

	domain "github.com/campushub/api/internal/domain"
	pfirestore "github.com/campushub/api/internal/platform/firestore"
	"github.com/campushub/api/internal/repositories"
)

// ReactionRepository stores one document per (user, kind, target) in the reactions collection,
// keyed by ReactionKey.DocumentID() so the document id is the uniqueness constraint.
type ReactionRepository struct {
	provider *pfirestore.Provider
	attempts int
}

// NewReactionRepository constructs a Firestore-backed reaction repository. attempts bounds the
// transaction retries Firestore performs on contention.
func NewReactionRepository(provider *pfirestore.Provider, attempts int) (*ReactionRepository, error) {
	if provider == nil {
		return nil, errors.New("reaction repository requires firestore provider")
	}
	return &ReactionRepository{provider: provider, attempts: attempts}, nil
}

// Toggle runs the whole read-decide-write sequence in one transaction: the reaction row, the
// target counters and the owner's reputation commit together or not at all.
func (r *ReactionRepository) Toggle(ctx context.Context, key domain.ReactionKey, decide repositories.ToggleDecider) (domain.ToggleResult, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.ToggleResult{}, err
	}
	targetRef := client.Collection(targetCollection(key.TargetKind)).Doc(key.TargetID)
	reactionRef := client.Collection(reactionsCollection).Doc(key.DocumentID())

	var result domain.ToggleResult
	err = pfirestore.RunTransaction(ctx, client, func(ctx context.Context, tx *firestore.Transaction) error {
		targetSnap, err := tx.Get(targetRef)
		if err != nil {
			if pfirestore.IsNotFound(pfirestore.WrapError("", err)) {
				return pfirestore.NotFoundError("reactions.toggle", fmt.Errorf("target %s not found", key.Target()))
			}
			return err
		}
		var target targetDocument
		if err := targetSnap.DataTo(&target); err != nil {
			return fmt.Errorf("decode target %s: %w", key.Target(), err)
		}

		var existing *domain.Reaction
		reactionSnap, err := tx.Get(reactionRef)
		switch {
		case err == nil:
			var doc reactionDocument
			if err := reactionSnap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode reaction %s: %w", key, err)
			}
			current := doc.toDomain()
			existing = &current
		case !pfirestore.IsNotFound(pfirestore.WrapError("", err)):
			return err
		}

		out, err := decide(existing, target.toDomain(key.Target()))
		if err != nil {
			return err
		}

		switch {
		case out.Mutation.Create:
			err = tx.Create(reactionRef, reactionToDocument(out.Mutation.Next))
		case out.Mutation.Delete:
			err = tx.Delete(reactionRef, firestore.Exists)
		default:
			err = tx.Set(reactionRef, reactionToDocument(out.Mutation.Next))
		}
		if err != nil {
			return err
		}

		var updates []firestore.Update
		if out.Delta.Likes != 0 {
			updates = append(updates, firestore.Update{Path: "stats.likes", Value: firestore.Increment(out.Delta.Likes)})
		}
		if out.Delta.Dislikes != 0 {
			updates = append(updates, firestore.Update{Path: "stats.dislikes", Value: firestore.Increment(out.Delta.Dislikes)})
		}
		if len(updates) > 0 {
			if err := tx.Update(targetRef, updates); err != nil {
				return err
			}
		}
		if out.ReputationUserID != "" {
			userRef := client.Collection(usersCollection).Doc(out.ReputationUserID)
			if err := tx.Set(userRef, map[string]any{"reputation": firestore.Increment(out.ReputationDelta)}, firestore.MergeAll); err != nil {
				return err
			}
		}

		before := target.toDomain(key.Target()).Stats
		result = domain.ToggleResult{Action: out.Action, Delta: out.Delta, Stats: before.Apply(out.Delta)}
		return nil
	}, pfirestore.WithTxAttempts(r.attempts))
	if err != nil {
		return domain.ToggleResult{}, pfirestore.WrapError("reactions.toggle", err)
	}
	return result, nil
}

// Find loads the reaction identified by key.
func (r *ReactionRepository) Find(ctx context.Context, key domain.ReactionKey) (domain.Reaction, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Reaction{}, err
	}
	snap, err := client.Collection(reactionsCollection).Doc(key.DocumentID()).Get(ctx)
	if err != nil {
		return domain.Reaction{}, pfirestore.WrapError("reactions.find", err)
	}
	var doc reactionDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Reaction{}, fmt.Errorf("decode reaction %s: %w", key, err)
	}
	return doc.toDomain(), nil
}

// CountByTarget recounts reaction rows for ref with one count aggregation per type.
func (r *ReactionRepository) CountByTarget(ctx context.Context, ref domain.TargetRef) (domain.ReactionStats, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.ReactionStats{}, err
	}
	base := client.Collection(reactionsCollection).
		Where("targetId", "==", ref.ID).
		Where("targetKind", "==", string(ref.Kind))

	var stats domain.ReactionStats
	for _, typ := range []domain.ReactionType{domain.ReactionLike, domain.ReactionDislike} {
		q := base.Where("type", "==", string(typ))
		res, err := q.NewAggregationQuery().WithCount("n").Get(ctx)
		if err != nil {
			return domain.ReactionStats{}, pfirestore.WrapError("reactions.count", err)
		}
		value, ok := res["n"].(*firestorepb.Value)
		if !ok {
			return domain.ReactionStats{}, fmt.Errorf("reactions.count: unexpected aggregation result %T", res["n"])
		}
		if typ == domain.ReactionLike {
			stats.Likes = value.GetIntegerValue()
		} else {
			stats.Dislikes = value.GetIntegerValue()
		}
	}
	return stats, nil
}
