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
	"github.com/mamadbah2/blockfarm/internal/repository"
)

// UnitRepository stores blocks in the blocks collection.
type UnitRepository struct {
	coll   *mongo.Collection
	schema *SchemaRegistry
	logger *zap.Logger
}

var _ repository.UnitRepository = (*UnitRepository)(nil)

// Create inserts a new block at the current schema version.
func (r *UnitRepository) Create(ctx context.Context, block *models.Block) error {
	doc, err := encodeBlock(block, r.schema.Current())
	if err != nil {
		return err
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("block %s already exists", block.ID)
		}
		return unavailable("insert block", err)
	}
	return nil
}

// Get loads and upgrades the block with id.
func (r *UnitRepository) Get(ctx context.Context, id string) (*models.Block, error) {
	var raw bson.M
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("block %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("find block", err)
	}
	return decodeBlock(r.schema, raw)
}

// ListBySite returns the site's blocks sorted by sequence code.
func (r *UnitRepository) ListBySite(ctx context.Context, siteID string) ([]*models.Block, error) {
	return r.find(ctx, bson.M{"site_id": siteID})
}

// ListAll returns every block.
func (r *UnitRepository) ListAll(ctx context.Context) ([]*models.Block, error) {
	return r.find(ctx, bson.M{})
}

func (r *UnitRepository) find(ctx context.Context, filter bson.M) ([]*models.Block, error) {
	opts := options.Find().SetSort(bson.D{{Key: "sequence_code", Value: 1}})
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, unavailable("find blocks", err)
	}
	defer cursor.Close(ctx)

	var blocks []*models.Block
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, fmt.Errorf("failed to decode block: %w", err)
		}
		blocks = append(blocks, decodeListed(r.schema, raw, r.logger))
	}
	if err := cursor.Err(); err != nil {
		return nil, unavailable("iterate blocks", err)
	}
	return blocks, nil
}

// SaveTransition replaces the stored block when its version still matches.
func (r *UnitRepository) SaveTransition(ctx context.Context, block *models.Block, change models.StatusChange, expectedVersion int64) (*models.Block, error) {
	saved, err := r.replace(ctx, block, expectedVersion)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("block transition stored",
		zap.String("unit_id", block.ID),
		zap.String("from", string(change.PreviousState)),
		zap.String("to", string(change.State)),
		zap.Int64("version", saved.Version),
	)
	return saved, nil
}

// UpdateKPI replaces the stored block when its version still matches.
func (r *UnitRepository) UpdateKPI(ctx context.Context, block *models.Block, expectedVersion int64) (*models.Block, error) {
	return r.replace(ctx, block, expectedVersion)
}

// replace rewrites the whole document so legacy layouts are upgraded on the
// first write after a read.
func (r *UnitRepository) replace(ctx context.Context, block *models.Block, expectedVersion int64) (*models.Block, error) {
	next := block.Clone()
	next.Version = expectedVersion + 1

	doc, err := encodeBlock(next, r.schema.Current())
	if err != nil {
		return nil, err
	}

	filter := bson.M{"_id": block.ID, "version": expectedVersion}
	res, err := r.coll.ReplaceOne(ctx, filter, doc)
	if err != nil {
		return nil, unavailable("replace block", err)
	}
	if res.MatchedCount == 0 {
		count, err := r.coll.CountDocuments(ctx, bson.M{"_id": block.ID})
		if err != nil {
			return nil, unavailable("count block", err)
		}
		if count == 0 {
			return nil, fmt.Errorf("block %s: %w", block.ID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("block %s moved past version %d: %w", block.ID, expectedVersion, models.ErrVersionConflict)
	}
	return next, nil
}

func encodeBlock(block *models.Block, version int) (bson.M, error) {
	if block == nil || block.ID == "" {
		return nil, fmt.Errorf("block id must not be empty")
	}
	data, err := bson.Marshal(block)
	if err != nil {
		return nil, fmt.Errorf("failed to encode block %s: %w", block.ID, err)
	}
	var doc bson.M
	if err := bson.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to encode block %s: %w", block.ID, err)
	}
	doc[schemaVersionField] = version
	return doc, nil
}

// decodeListed decodes one document of a listing. A document that cannot be
// decoded becomes an unknown-state placeholder so the rest of the site still
// aggregates.
func decodeListed(schema *SchemaRegistry, raw bson.M, logger *zap.Logger) *models.Block {
	block, err := decodeBlock(schema, raw)
	if err == nil {
		return block
	}
	logger.Warn("undecodable block listed as unknown", zap.Any("unit_id", raw["_id"]), zap.Error(err))
	siteID, _ := raw["site_id"].(string)
	sequence, _ := raw["sequence_code"].(string)
	return &models.Block{
		ID:           fmt.Sprint(raw["_id"]),
		SiteID:       siteID,
		SequenceCode: sequence,
		State:        models.StateUnknown,
		History:      []models.StatusChange{},
	}
}

func decodeBlock(schema *SchemaRegistry, raw bson.M) (*models.Block, error) {
	doc, err := schema.Upgrade(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade block %v: %w", raw["_id"], err)
	}
	data, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode block %v: %w", raw["_id"], err)
	}
	var block models.Block
	if err := bson.Unmarshal(data, &block); err != nil {
		return nil, fmt.Errorf("failed to decode block %v: %w", raw["_id"], err)
	}
	if block.History == nil {
		block.History = []models.StatusChange{}
	}
	return &block, nil
}
