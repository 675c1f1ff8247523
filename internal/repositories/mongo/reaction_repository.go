package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	domain "github.com/campushub/api/internal/domain"
	"github.com/campushub/api/internal/repositories"
)

// counterWriteBudget bounds the increments that follow a committed reaction row.
const counterWriteBudget = 5 * time.Second

// ReactionRepository keeps reactions in their own collection with _id set to ReactionKey.DocumentID.
//
// Writes are not wrapped in a multi-document transaction. The row change is conditional on the
// state the decision was made from and runs first; counters and reputation are incremented only
// after it succeeds. A losing writer sees a conflict and touches no counter. The increments are
// not idempotent, so they are not retried here beyond the driver's retryable writes, which the
// server deduplicates. Increments that still fail are reported with ErrCountersPending so the
// caller does not toggle again; that drift, like a crash between the two writes, is what
// reconciliation repairs.
type ReactionRepository struct {
	db *mongo.Database
}

// NewReactionRepository constructs a MongoDB-backed reaction repository.
func NewReactionRepository(db *mongo.Database) (*ReactionRepository, error) {
	if db == nil {
		return nil, errors.New("reaction repository requires mongo database")
	}
	return &ReactionRepository{db: db}, nil
}

func (r *ReactionRepository) Toggle(ctx context.Context, key domain.ReactionKey, decide repositories.ToggleDecider) (domain.ToggleResult, error) {
	targets := targetCollection(r.db, key.TargetKind)
	reactions := r.db.Collection(reactionsCollection)

	var target targetDocument
	if err := targets.FindOne(ctx, bson.M{"_id": key.TargetID}).Decode(&target); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.ToggleResult{}, notFoundError("reactions.toggle", fmt.Errorf("target %s not found", key.Target()))
		}
		return domain.ToggleResult{}, wrapError("reactions.toggle", err)
	}

	var existing *domain.Reaction
	var current reactionDocument
	switch err := reactions.FindOne(ctx, bson.M{"_id": key.DocumentID()}).Decode(&current); {
	case err == nil:
		reaction := current.toDomain()
		existing = &reaction
	case !errors.Is(err, mongo.ErrNoDocuments):
		return domain.ToggleResult{}, wrapError("reactions.toggle", err)
	}

	out, err := decide(existing, target.toDomain(key.TargetKind))
	if err != nil {
		return domain.ToggleResult{}, err
	}
	if err := applyMutation(ctx, reactions, key, existing, out.Mutation); err != nil {
		return domain.ToggleResult{}, err
	}

	inc := bson.M{}
	if out.Delta.Likes != 0 {
		inc["stats.likes"] = out.Delta.Likes
	}
	if out.Delta.Dislikes != 0 {
		inc["stats.dislikes"] = out.Delta.Dislikes
	}
	stats := target.toDomain(key.TargetKind).Stats.Apply(out.Delta)
	result := domain.ToggleResult{Action: out.Action, Delta: out.Delta, Stats: stats}

	// The row is committed, so the toggle has happened: the increments run on a context that
	// outlives the caller's cancellation.
	incCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), counterWriteBudget)
	defer cancel()

	if len(inc) > 0 {
		var updated targetDocument
		opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
		if err := targets.FindOneAndUpdate(incCtx, bson.M{"_id": key.TargetID}, bson.M{"$inc": inc}, opts).Decode(&updated); err != nil {
			return result, fmt.Errorf("reactions.toggle.stats: %w: %w", repositories.ErrCountersPending, err)
		}
		result.Stats = updated.toDomain(key.TargetKind).Stats
	}

	if out.ReputationUserID != "" {
		_, err := r.db.Collection(usersCollection).UpdateOne(incCtx,
			bson.M{"_id": out.ReputationUserID},
			bson.M{"$inc": bson.M{"reputation": out.ReputationDelta}},
			options.UpdateOne().SetUpsert(true),
		)
		if err != nil {
			return result, fmt.Errorf("reactions.toggle.reputation: %w: %w", repositories.ErrCountersPending, err)
		}
	}
	return result, nil
}

// applyMutation writes the reaction row guarded by the state it was decided from.
func applyMutation(ctx context.Context, coll *mongo.Collection, key domain.ReactionKey, existing *domain.Reaction, m domain.ReactionMutation) error {
	switch {
	case m.Create:
		_, err := coll.InsertOne(ctx, reactionToDocument(m.Next))
		if isDuplicateKey(err) {
			return conflictError("reactions.toggle", fmt.Errorf("reaction %s created concurrently", key))
		}
		return wrapError("reactions.toggle", err)
	case m.Delete:
		res, err := coll.DeleteOne(ctx, bson.M{"_id": key.DocumentID(), "type": string(existing.Type)})
		if err != nil {
			return wrapError("reactions.toggle", err)
		}
		if res.DeletedCount == 0 {
			return conflictError("reactions.toggle", fmt.Errorf("reaction %s changed concurrently", key))
		}
		return nil
	default:
		res, err := coll.UpdateOne(ctx,
			bson.M{"_id": key.DocumentID(), "type": string(existing.Type)},
			bson.M{"$set": bson.M{"type": string(m.Next.Type), "updatedAt": m.Next.UpdatedAt.UTC()}},
		)
		if err != nil {
			return wrapError("reactions.toggle", err)
		}
		if res.MatchedCount == 0 {
			return conflictError("reactions.toggle", fmt.Errorf("reaction %s changed concurrently", key))
		}
		return nil
	}
}

func (r *ReactionRepository) Find(ctx context.Context, key domain.ReactionKey) (domain.Reaction, error) {
	var doc reactionDocument
	if err := r.db.Collection(reactionsCollection).FindOne(ctx, bson.M{"_id": key.DocumentID()}).Decode(&doc); err != nil {
		return domain.Reaction{}, wrapError("reactions.find", err)
	}
	return doc.toDomain(), nil
}

func (r *ReactionRepository) CountByTarget(ctx context.Context, ref domain.TargetRef) (domain.ReactionStats, error) {
	coll := r.db.Collection(reactionsCollection)
	filter := func(typ domain.ReactionType) bson.M {
		return bson.M{"targetId": ref.ID, "targetKind": string(ref.Kind), "type": string(typ)}
	}
	likes, err := coll.CountDocuments(ctx, filter(domain.ReactionLike))
	if err != nil {
		return domain.ReactionStats{}, wrapError("reactions.count", err)
	}
	dislikes, err := coll.CountDocuments(ctx, filter(domain.ReactionDislike))
	if err != nil {
		return domain.ReactionStats{}, wrapError("reactions.count", err)
	}
	return domain.ReactionStats{Likes: likes, Dislikes: dislikes}, nil
}
