package mongo

import (
	"context"

	"github.com/appetiteclub/kds/internal/kitchen"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type StationRepo struct {
	collection *mongo.Collection
}

func (r *StationRepo) Create(ctx context.Context, s *kitchen.Station) error {
	if _, err := r.collection.InsertOne(ctx, s); err != nil {
		return mapError("create station", s.ID.String(), err)
	}
	return nil
}

func (r *StationRepo) Update(ctx context.Context, s *kitchen.Station) error {
	res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": s.ID}, s)
	if err != nil {
		return mapError("update station", s.ID.String(), err)
	}
	if res.MatchedCount == 0 {
		return kitchen.NewError("update station", s.ID.String(), kitchen.ErrNotFound, nil)
	}
	return nil
}

func (r *StationRepo) FindByID(ctx context.Context, id kitchen.StationID) (*kitchen.Station, error) {
	var s kitchen.Station
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&s); err != nil {
		return nil, mapError("find station", id.String(), err)
	}
	return &s, nil
}

func (r *StationRepo) List(ctx context.Context) ([]kitchen.Station, error) {
	opts := options.Find().SetSort(bson.D{{Key: "position", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, mapError("list stations", "", err)
	}
	defer cursor.Close(ctx)

	result := make([]kitchen.Station, 0)
	if err := cursor.All(ctx, &result); err != nil {
		return nil, mapError("decode stations", "", err)
	}
	return result, nil
}
