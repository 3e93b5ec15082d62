// Package memory provides in-process repositories used by tests and by the
// memory storage driver.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mamadbah2/blockfarm/internal/domain/models"
	"github.com/mamadbah2/blockfarm/internal/repository"
)

// UnitRepository keeps blocks in a map guarded by a mutex.
type UnitRepository struct {
	mu     sync.RWMutex
	blocks map[string]*models.Block
}

// NewUnitRepository creates an empty in-memory unit repository.
func NewUnitRepository() *UnitRepository {
	return &UnitRepository{blocks: map[string]*models.Block{}}
}

var _ repository.UnitRepository = (*UnitRepository)(nil)

// Create stores a new block.
func (r *UnitRepository) Create(_ context.Context, block *models.Block) error {
	if block == nil || block.ID == "" {
		return fmt.Errorf("block id must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.blocks[block.ID]; exists {
		return fmt.Errorf("block %s already exists", block.ID)
	}
	r.blocks[block.ID] = block.Clone()
	return nil
}

// Get returns a copy of the block with id.
func (r *UnitRepository) Get(_ context.Context, id string) (*models.Block, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	block, ok := r.blocks[id]
	if !ok {
		return nil, fmt.Errorf("block %s: %w", id, models.ErrNotFound)
	}
	return block.Clone(), nil
}

// ListBySite returns copies of the site's blocks ordered by sequence code.
func (r *UnitRepository) ListBySite(_ context.Context, siteID string) ([]*models.Block, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Block
	for _, block := range r.blocks {
		if block.SiteID == siteID {
			out = append(out, block.Clone())
		}
	}
	sortBlocks(out)
	return out, nil
}

// ListAll returns copies of every block.
func (r *UnitRepository) ListAll(_ context.Context) ([]*models.Block, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Block, 0, len(r.blocks))
	for _, block := range r.blocks {
		out = append(out, block.Clone())
	}
	sortBlocks(out)
	return out, nil
}

// SaveTransition stores the transitioned block when the version still matches.
func (r *UnitRepository) SaveTransition(ctx context.Context, block *models.Block, _ models.StatusChange, expectedVersion int64) (*models.Block, error) {
	return r.swap(ctx, block, expectedVersion)
}

// UpdateKPI stores the block's KPI change when the version still matches.
func (r *UnitRepository) UpdateKPI(ctx context.Context, block *models.Block, expectedVersion int64) (*models.Block, error) {
	return r.swap(ctx, block, expectedVersion)
}

func (r *UnitRepository) swap(_ context.Context, block *models.Block, expectedVersion int64) (*models.Block, error) {
	if block == nil {
		return nil, fmt.Errorf("block must not be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.blocks[block.ID]
	if !ok {
		return nil, fmt.Errorf("block %s: %w", block.ID, models.ErrNotFound)
	}
	if current.Version != expectedVersion {
		return nil, fmt.Errorf("block %s at version %d, expected %d: %w", block.ID, current.Version, expectedVersion, models.ErrVersionConflict)
	}

	stored := block.Clone()
	stored.Version = expectedVersion + 1
	r.blocks[block.ID] = stored
	return stored.Clone(), nil
}

func sortBlocks(blocks []*models.Block) {
	sort.Slice(blocks, func(i, j int) bool {
		if blocks[i].SequenceCode == blocks[j].SequenceCode {
			return blocks[i].ID < blocks[j].ID
		}
		return blocks[i].SequenceCode < blocks[j].SequenceCode
	})
}
