package mongo

import (
	"context"

	"github.com/appetiteclub/kds/internal/kitchen"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type EntryRepo struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// Update replaces the entry only while the stored version still matches.
func (r *EntryRepo) Update(ctx context.Context, e *kitchen.RoutingEntry, expectedVersion int) error {
	return r.replace(ctx, e, expectedVersion)
}

// UpdateMany replaces every entry in one transaction. Any version
// mismatch aborts the whole batch.
func (r *EntryRepo) UpdateMany(ctx context.Context, entries []kitchen.RoutingEntry, expected map[kitchen.EntryID]int) error {
	session, err := r.client.StartSession()
	if err != nil {
		return mapError("update entries", "", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		for i := range entries {
			if err := r.replace(sc, &entries[i], expected[entries[i].ID]); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return mapError("update entries", "", err)
}

func (r *EntryRepo) replace(ctx context.Context, e *kitchen.RoutingEntry, expectedVersion int) error {
	ref := e.ID.String()
	res, err := r.collection.ReplaceOne(ctx, versionFilter(e.ID, expectedVersion), e)
	if err != nil {
		return mapError("update entry", ref, err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := r.collection.CountDocuments(ctx, bson.M{"_id": e.ID})
	if err != nil {
		return mapError("update entry", ref, err)
	}
	if n == 0 {
		return kitchen.NewError("update entry", ref, kitchen.ErrNotFound, nil)
	}
	return kitchen.Errorf("update entry", ref, kitchen.ErrConflict, "version changed, expected %d", expectedVersion)
}

func (r *EntryRepo) FindByID(ctx context.Context, id kitchen.EntryID) (*kitchen.RoutingEntry, error) {
	var e kitchen.RoutingEntry
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&e); err != nil {
		return nil, mapError("find entry", id.String(), err)
	}
	return &e, nil
}

// List returns entries in station display order. Display order depends
// on priority and recall state, so the limit is applied after sorting.
func (r *EntryRepo) List(ctx context.Context, filter kitchen.EntryFilter) ([]kitchen.RoutingEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "routed_at", Value: 1}})
	cursor, err := r.collection.Find(ctx, entryQuery(filter), opts)
	if err != nil {
		return nil, mapError("list entries", "", err)
	}
	defer cursor.Close(ctx)

	result := make([]kitchen.RoutingEntry, 0)
	if err := cursor.All(ctx, &result); err != nil {
		return nil, mapError("decode entries", "", err)
	}

	kitchen.SortForStation(result)
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func versionFilter(id kitchen.EntryID, version int) bson.M {
	return bson.M{"_id": id, "version": version}
}

// entryQuery translates an entry filter into a MongoDB query document.
func entryQuery(f kitchen.EntryFilter) bson.M {
	q := bson.M{}
	if f.StationID != nil {
		q["station_id"] = *f.StationID
	}
	if f.OrderID != nil {
		q["order_id"] = *f.OrderID
	}
	switch {
	case f.TableID != nil && len(f.TableIDs) > 0:
		q["$and"] = bson.A{
			bson.M{"table_id": *f.TableID},
			bson.M{"table_id": bson.M{"$in": tableIDs(f.TableIDs)}},
		}
	case f.TableID != nil:
		q["table_id"] = *f.TableID
	case len(f.TableIDs) > 0:
		q["table_id"] = bson.M{"$in": tableIDs(f.TableIDs)}
	}
	switch {
	case f.Ready && f.DoneSince != nil:
		q["completed_at"] = bson.M{"$ne": nil, "$gte": *f.DoneSince}
	case f.Ready:
		q["completed_at"] = bson.M{"$ne": nil}
	case f.Active && f.DoneSince != nil:
		q["$or"] = bson.A{
			bson.M{"completed_at": nil},
			bson.M{"completed_at": bson.M{"$gte": *f.DoneSince}},
		}
	case f.Active:
		q["completed_at"] = nil
	}
	return q
}

func tableIDs(ids []kitchen.TableID) bson.A {
	out := make(bson.A, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
