package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"

	domain "github.com/campushub/api/internal/domain"
	pfirestore "github.com/campushub/api/internal/platform/firestore"
	"github.com/campushub/api/internal/repositories"
)

// OrderRepository persists orders as single documents with the timeline and rating embedded.
type OrderRepository struct {
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{provider: provider}, nil
}

// Insert creates the order document; an existing id is a conflict.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	_, err = client.Collection(ordersCollection).Doc(order.ID).Create(ctx, orderToDocument(order))
	return pfirestore.WrapError("orders.insert", err)
}

// FindByID loads one order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	snap, err := client.Collection(ordersCollection).Doc(orderID).Get(ctx)
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.find", err)
	}
	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Order{}, fmt.Errorf("decode order %s: %w", orderID, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// Update re-reads the order inside a transaction and writes only if status and revision are
// still the ones the caller's guards were evaluated against.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order, expect repositories.OrderExpectation) error {
	if order.Revision != expect.Revision+1 {
		return fmt.Errorf("orders.update: revision must advance by one, got %d after %d", order.Revision, expect.Revision)
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	ref := client.Collection(ordersCollection).Doc(order.ID)
	err = pfirestore.RunTransaction(ctx, client, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var stored orderDocument
		if err := snap.DataTo(&stored); err != nil {
			return fmt.Errorf("decode order %s: %w", order.ID, err)
		}
		if stored.Status != string(expect.Status) || stored.Revision != expect.Revision {
			return pfirestore.ConflictError("orders.update", fmt.Errorf("order %s moved to %s@%d", order.ID, stored.Status, stored.Revision))
		}
		return tx.Set(ref, orderToDocument(order))
	}, pfirestore.WithTxAttempts(1))
	return pfirestore.WrapError("orders.update", err)
}
