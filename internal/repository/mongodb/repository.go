package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/mamadbah2/blockfarm/internal/domain/models"
)

const (
	blocksCollection   = "blocks"
	harvestsCollection = "harvests"
	sitesCollection    = "sites"
	tasksCollection    = "tasks"
)

// Store owns the MongoDB connection shared by the repositories.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

// Connect opens and pings a MongoDB connection.
func Connect(ctx context.Context, uri string, dbName string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &Store{
		client: client,
		db:     client.Database(dbName),
		logger: logger,
	}, nil
}

// EnsureIndexes creates the indexes the repositories rely on. The partial
// unique index on tasks backs CreateIfAbsent.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		blocksCollection: {
			{Keys: bson.D{{Key: "site_id", Value: 1}, {Key: "sequence_code", Value: 1}}},
		},
		harvestsCollection: {
			{Keys: bson.D{{Key: "site_id", Value: 1}, {Key: "date", Value: 1}}},
			{Keys: bson.D{{Key: "unit_id", Value: 1}, {Key: "date", Value: 1}}},
		},
		tasksCollection: {
			{
				Keys: bson.D{{Key: "unit_id", Value: 1}, {Key: "type", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"status": models.TaskOpen}),
			},
		},
	}

	for name, specs := range indexes {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, specs); err != nil {
			return fmt.Errorf("failed to create %s indexes: %w", name, err)
		}
	}
	return nil
}

// Units returns the block repository.
func (s *Store) Units() *UnitRepository {
	return &UnitRepository{
		coll:   s.db.Collection(blocksCollection),
		schema: BlockSchema(),
		logger: s.logger.Named("repo.units"),
	}
}

// Harvests returns the harvest ledger.
func (s *Store) Harvests() *HarvestRepository {
	return &HarvestRepository{coll: s.db.Collection(harvestsCollection)}
}

// Sites returns the site repository.
func (s *Store) Sites() *SiteRepository {
	return &SiteRepository{coll: s.db.Collection(sitesCollection)}
}

// Tasks returns the task repository.
func (s *Store) Tasks() *TaskRepository {
	return &TaskRepository{coll: s.db.Collection(tasksCollection)}
}

// Close closes the MongoDB connection.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// unavailable tags a driver failure as retryable while keeping its cause.
func unavailable(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return fmt.Errorf("failed to %s: %w: %w", op, models.ErrRepositoryUnavailable, err)
}
