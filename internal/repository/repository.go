// Package repository declares the storage ports consumed by the services.
// Implementations live in the memory and mongodb subpackages.
package repository

import (
	"context"
	"time"

	"github.com/mamadbah2/blockfarm/internal/domain/models"
)

// UnitRepository persists blocks. SaveTransition and UpdateKPI are
// compare-and-swap operations on Block.Version: they succeed only when the
// stored version equals expectedVersion, and store the block with
// expectedVersion+1. A lost race returns models.ErrVersionConflict.
type UnitRepository interface {
	Create(ctx context.Context, block *models.Block) error
	Get(ctx context.Context, id string) (*models.Block, error)
	ListBySite(ctx context.Context, siteID string) ([]*models.Block, error)
	ListAll(ctx context.Context) ([]*models.Block, error)
	SaveTransition(ctx context.Context, block *models.Block, change models.StatusChange, expectedVersion int64) (*models.Block, error)
	UpdateKPI(ctx context.Context, block *models.Block, expectedVersion int64) (*models.Block, error)
}

// HarvestRepository is the append-only harvest ledger.
type HarvestRepository interface {
	Append(ctx context.Context, record models.HarvestRecord) error
	ListForUnit(ctx context.Context, unitID string, start, end time.Time) ([]models.HarvestRecord, error)
	ListForSite(ctx context.Context, siteID string, start, end time.Time) ([]models.HarvestRecord, error)
}

// SiteRepository reads site definitions.
type SiteRepository interface {
	Get(ctx context.Context, id string) (*models.Site, error)
	List(ctx context.Context) ([]models.Site, error)
	Upsert(ctx context.Context, site models.Site) error
}

// TaskRepository stores generated tasks. CreateIfAbsent must not create a
// second open task of the same type for the same unit and reports whether
// it inserted one.
type TaskRepository interface {
	ListOpen(ctx context.Context, unitID string) ([]models.PendingTask, error)
	CreateIfAbsent(ctx context.Context, task models.PendingTask) (bool, error)
	Cancel(ctx context.Context, taskID string) error
}
