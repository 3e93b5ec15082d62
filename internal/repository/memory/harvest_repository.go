package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mamadbah2/blockfarm/internal/domain/models"
	"github.com/mamadbah2/blockfarm/internal/repository"
)

// HarvestRepository is an append-only slice of harvest records.
type HarvestRepository struct {
	mu      sync.RWMutex
	records []models.HarvestRecord
	ids     map[string]struct{}
}

// NewHarvestRepository creates an empty ledger.
func NewHarvestRepository() *HarvestRepository {
	return &HarvestRepository{ids: map[string]struct{}{}}
}

var _ repository.HarvestRepository = (*HarvestRepository)(nil)

// Append adds a record. Records are never updated, so a repeated id is rejected.
func (r *HarvestRepository) Append(_ context.Context, record models.HarvestRecord) error {
	if record.ID == "" {
		return fmt.Errorf("harvest id must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ids[record.ID]; exists {
		return fmt.Errorf("harvest %s: %w", record.ID, models.ErrDuplicateHarvest)
	}
	r.ids[record.ID] = struct{}{}
	r.records = append(r.records, record)
	return nil
}

// ListForUnit returns the unit's records dated within [start, end].
func (r *HarvestRepository) ListForUnit(_ context.Context, unitID string, start, end time.Time) ([]models.HarvestRecord, error) {
	return r.filter(func(rec models.HarvestRecord) bool { return rec.UnitID == unitID }, start, end), nil
}

// ListForSite returns the site's records dated within [start, end].
func (r *HarvestRepository) ListForSite(_ context.Context, siteID string, start, end time.Time) ([]models.HarvestRecord, error) {
	return r.filter(func(rec models.HarvestRecord) bool { return rec.SiteID == siteID }, start, end), nil
}

func (r *HarvestRepository) filter(match func(models.HarvestRecord) bool, start, end time.Time) []models.HarvestRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	window := models.Window{Start: start, End: end}
	var out []models.HarvestRecord
	for _, rec := range r.records {
		if match(rec) && window.Contains(rec.Date) {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
