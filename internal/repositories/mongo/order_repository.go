package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	domain "github.com/campushub/api/internal/domain"
	"github.com/campushub/api/internal/repositories"
)

// OrderRepository stores orders as single documents; the unique index on orderNumber backs
// order number uniqueness.
type OrderRepository struct {
	db *mongo.Database
}

// NewOrderRepository constructs a MongoDB-backed order repository.
func NewOrderRepository(db *mongo.Database) (*OrderRepository, error) {
	if db == nil {
		return nil, errors.New("order repository requires mongo database")
	}
	return &OrderRepository{db: db}, nil
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	_, err := r.db.Collection(ordersCollection).InsertOne(ctx, orderToDocument(order))
	return wrapError("orders.insert", err)
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	var doc orderDocument
	if err := r.db.Collection(ordersCollection).FindOne(ctx, bson.M{"_id": orderID}).Decode(&doc); err != nil {
		return domain.Order{}, wrapError("orders.find", err)
	}
	return doc.toDomain(), nil
}

// Update replaces the document filtered on the expected status and revision. When nothing
// matches, the order is re-read to tell a missing order from a lost race.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order, expect repositories.OrderExpectation) error {
	if order.Revision != expect.Revision+1 {
		return fmt.Errorf("orders.update: revision must advance by one, got %d after %d", order.Revision, expect.Revision)
	}
	coll := r.db.Collection(ordersCollection)
	res, err := coll.ReplaceOne(ctx,
		bson.M{"_id": order.ID, "status": string(expect.Status), "revision": expect.Revision},
		orderToDocument(order),
	)
	if err != nil {
		return wrapError("orders.update", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	if _, err := r.FindByID(ctx, order.ID); err != nil {
		return err
	}
	return conflictError("orders.update", fmt.Errorf("order %s changed concurrently", order.ID))
}
