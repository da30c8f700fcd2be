package mongo

import (
	"context"

	"github.com/appetiteclub/kds/internal/kitchen"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type OrderRepo struct {
	client  *mongo.Client
	orders  *mongo.Collection
	entries *mongo.Collection
}

// Record inserts the order and its entries in one transaction. The order
// ID is the document key, so a redelivered order fails as a duplicate.
func (r *OrderRepo) Record(ctx context.Context, o *kitchen.Order, entries []kitchen.RoutingEntry) error {
	ref := o.ID.String()
	session, err := r.client.StartSession()
	if err != nil {
		return mapError("record order", ref, err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if _, err := r.orders.InsertOne(sc, o); err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			return nil, nil
		}
		docs := make([]interface{}, len(entries))
		for i := range entries {
			docs[i] = entries[i]
		}
		_, err := r.entries.InsertMany(sc, docs)
		return nil, err
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return kitchen.Errorf("record order", ref, kitchen.ErrConflict, "order already recorded: %v", err)
		}
		return mapError("record order", ref, err)
	}
	return nil
}

func (r *OrderRepo) FindByID(ctx context.Context, id kitchen.OrderID) (*kitchen.Order, error) {
	var o kitchen.Order
	if err := r.orders.FindOne(ctx, bson.M{"_id": id}).Decode(&o); err != nil {
		return nil, mapError("find order", id.String(), err)
	}
	return &o, nil
}
