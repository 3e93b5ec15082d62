package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mamadbah2/blockfarm/internal/domain/models"
	"github.com/mamadbah2/blockfarm/internal/repository"
)

// HarvestRepository appends harvest records to the harvests collection.
type HarvestRepository struct {
	coll *mongo.Collection
}

var _ repository.HarvestRepository = (*HarvestRepository)(nil)

// Append inserts a harvest record.
func (r *HarvestRepository) Append(ctx context.Context, record models.HarvestRecord) error {
	if _, err := r.coll.InsertOne(ctx, record); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("harvest %s: %w", record.ID, models.ErrDuplicateHarvest)
		}
		return unavailable("insert harvest", err)
	}
	return nil
}

// ListForUnit returns the unit's records dated within [start, end].
func (r *HarvestRepository) ListForUnit(ctx context.Context, unitID string, start, end time.Time) ([]models.HarvestRecord, error) {
	return r.find(ctx, dateFilter(bson.M{"unit_id": unitID}, start, end))
}

// ListForSite returns the site's records dated within [start, end].
func (r *HarvestRepository) ListForSite(ctx context.Context, siteID string, start, end time.Time) ([]models.HarvestRecord, error) {
	return r.find(ctx, dateFilter(bson.M{"site_id": siteID}, start, end))
}

func (r *HarvestRepository) find(ctx context.Context, filter bson.M) ([]models.HarvestRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}})
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, unavailable("find harvests", err)
	}
	defer cursor.Close(ctx)

	var records []models.HarvestRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, unavailable("decode harvests", err)
	}
	return records, nil
}

// dateFilter adds an inclusive date range; zero bounds are left open.
func dateFilter(filter bson.M, start, end time.Time) bson.M {
	rng := bson.M{}
	if !start.IsZero() {
		rng["$gte"] = start
	}
	if !end.IsZero() {
		rng["$lte"] = end
	}
	if len(rng) > 0 {
		filter["date"] = rng
	}
	return filter
}

// SiteRepository reads the sites collection.
type SiteRepository struct {
	coll *mongo.Collection
}

var _ repository.SiteRepository = (*SiteRepository)(nil)

// Get returns the site with id.
func (r *SiteRepository) Get(ctx context.Context, id string) (*models.Site, error) {
	var site models.Site
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&site)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("site %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("find site", err)
	}
	return &site, nil
}

// List returns every site sorted by code.
func (r *SiteRepository) List(ctx context.Context) ([]models.Site, error) {
	opts := options.Find().SetSort(bson.D{{Key: "code", Value: 1}})
	cursor, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, unavailable("find sites", err)
	}
	defer cursor.Close(ctx)

	var sites []models.Site
	if err := cursor.All(ctx, &sites); err != nil {
		return nil, unavailable("decode sites", err)
	}
	return sites, nil
}

// Upsert inserts or replaces a site definition.
func (r *SiteRepository) Upsert(ctx context.Context, site models.Site) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := r.coll.ReplaceOne(ctx, bson.M{"_id": site.ID}, site, opts); err != nil {
		return unavailable("upsert site", err)
	}
	return nil
}
