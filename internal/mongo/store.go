package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/appetiteclub/kds/internal/kitchen"
	"github.com/appetiteclub/kds/pkg/config"
	"github.com/appetiteclub/kds/pkg/logging"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	stationsCollection = "stations"
	ordersCollection   = "orders"
	entriesCollection  = "routing_entries"
)

// Store holds the MongoDB connection shared by the kitchen repositories.
// Recording orders and bumping tables use multi-document transactions,
// so the server must run as a replica set.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger logging.Logger
	config *config.Config
}

func NewStore(cfg *config.Config, logger logging.Logger) *Store {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Store{
		logger: logger.With("component", "mongo"),
		config: cfg,
	}
}

func (s *Store) Start(ctx context.Context) error {
	mongoURL, _ := s.config.GetString("db.mongo.url")
	connString := mongoURL
	if connString == "" {
		connString = "mongodb://localhost:27017/?replicaSet=rs0"
	}

	dbName, _ := s.config.GetString("db.mongo.name")
	if dbName == "" {
		dbName = "appetite_kds"
	}

	clientOptions := options.Client().ApplyURI(connString).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("cannot connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return fmt.Errorf("cannot ping MongoDB: %w", err)
	}

	s.client = client
	s.db = client.Database(dbName)

	if err := s.createIndexes(ctx); err != nil {
		return err
	}

	s.logger.Infof("Connected to MongoDB: %s, database: %s", connString, dbName)
	return nil
}

func (s *Store) Stop(ctx context.Context) error {
	if s.client != nil {
		if err := s.client.Disconnect(ctx); err != nil {
			return fmt.Errorf("cannot disconnect from MongoDB: %w", err)
		}
		s.logger.Info("Disconnected from MongoDB")
	}
	return nil
}

func (s *Store) createIndexes(ctx context.Context) error {
	entries := s.db.Collection(entriesCollection)
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "station_id", Value: 1}, {Key: "completed_at", Value: 1}}},
		{Keys: bson.D{{Key: "table_id", Value: 1}, {Key: "completed_at", Value: 1}}},
		{
			Keys:    bson.D{{Key: "order_id", Value: 1}, {Key: "station_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := entries.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("cannot create routing entry indexes: %w", err)
	}

	stations := s.db.Collection(stationsCollection)
	if _, err := stations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "position", Value: 1}},
	}); err != nil {
		return fmt.Errorf("cannot create station indexes: %w", err)
	}
	return nil
}

func (s *Store) Stations() *StationRepo {
	return &StationRepo{collection: s.db.Collection(stationsCollection)}
}

func (s *Store) Orders() *OrderRepo {
	return &OrderRepo{
		client:  s.client,
		orders:  s.db.Collection(ordersCollection),
		entries: s.db.Collection(entriesCollection),
	}
}

func (s *Store) Entries() *EntryRepo {
	return &EntryRepo{client: s.client, collection: s.db.Collection(entriesCollection)}
}

// Reset drops every kitchen collection and recreates the indexes.
func (s *Store) Reset(ctx context.Context) error {
	for _, name := range []string{stationsCollection, ordersCollection, entriesCollection} {
		if err := s.db.Collection(name).Drop(ctx); err != nil {
			return fmt.Errorf("cannot drop %s: %w", name, err)
		}
	}
	return s.createIndexes(ctx)
}

// mapError converts driver errors to kitchen error kinds.
func mapError(op, ref string, err error) error {
	if err == nil {
		return nil
	}
	var opErr *kitchen.OpError
	if errors.As(err, &opErr) {
		return err
	}
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return kitchen.NewError(op, ref, kitchen.ErrNotFound, err)
	case mongo.IsDuplicateKeyError(err):
		return kitchen.NewError(op, ref, kitchen.ErrConflict, err)
	default:
		return kitchen.NewError(op, ref, kitchen.ErrTransientIO, err)
	}
}
