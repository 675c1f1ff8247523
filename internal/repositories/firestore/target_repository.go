package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"

	domain "github.com/campushub/api/internal/domain"
	pfirestore "github.com/campushub/api/internal/platform/firestore"
)

// TargetRepository reads posts and comments and repairs their cached counters.
type TargetRepository struct {
	provider *pfirestore.Provider
}

// NewTargetRepository constructs a Firestore-backed target repository.
func NewTargetRepository(provider *pfirestore.Provider) (*TargetRepository, error) {
	if provider == nil {
		return nil, errors.New("target repository requires firestore provider")
	}
	return &TargetRepository{provider: provider}, nil
}

// Get loads one target.
func (r *TargetRepository) Get(ctx context.Context, ref domain.TargetRef) (domain.ReactableTarget, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.ReactableTarget{}, err
	}
	snap, err := client.Collection(targetCollection(ref.Kind)).Doc(ref.ID).Get(ctx)
	if err != nil {
		return domain.ReactableTarget{}, pfirestore.WrapError("targets.get", err)
	}
	var doc targetDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.ReactableTarget{}, fmt.Errorf("decode target %s: %w", ref, err)
	}
	return doc.toDomain(ref), nil
}

// Scan pages through the collection of kind in document id order.
func (r *TargetRepository) Scan(ctx context.Context, kind domain.TargetKind, cursor string, limit int) ([]domain.ReactableTarget, string, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, "", err
	}
	snaps, next, err := pfirestore.ScanPage(ctx, client.Collection(targetCollection(kind)).Query, cursor, limit)
	if err != nil {
		return nil, "", err
	}
	out := make([]domain.ReactableTarget, 0, len(snaps))
	for _, snap := range snaps {
		var doc targetDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, "", fmt.Errorf("decode target %s/%s: %w", kind, snap.Ref.ID, err)
		}
		out = append(out, doc.toDomain(domain.TargetRef{ID: snap.Ref.ID, Kind: kind}))
	}
	return out, next, nil
}

// RepairStats overwrites the counters of ref inside a transaction that first checks they still
// hold expected, so a toggle committed after the recount is never clobbered.
func (r *TargetRepository) RepairStats(ctx context.Context, ref domain.TargetRef, expected, next domain.ReactionStats) error {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	docRef := client.Collection(targetCollection(ref.Kind)).Doc(ref.ID)
	err = pfirestore.RunTransaction(ctx, client, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(docRef)
		if err != nil {
			return err
		}
		var doc targetDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode target %s: %w", ref, err)
		}
		if doc.toDomain(ref).Stats != expected {
			return pfirestore.ConflictError("targets.repair", fmt.Errorf("stats of %s changed since recount", ref))
		}
		return tx.Update(docRef, []firestore.Update{
			{Path: "stats.likes", Value: next.Likes},
			{Path: "stats.dislikes", Value: next.Dislikes},
		})
	})
	return pfirestore.WrapError("targets.repair", err)
}
