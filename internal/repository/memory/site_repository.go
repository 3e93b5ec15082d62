package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mamadbah2/blockfarm/internal/domain/models"
	"github.com/mamadbah2/blockfarm/internal/repository"
)

// SiteRepository holds site definitions in memory.
type SiteRepository struct {
	mu    sync.RWMutex
	sites map[string]models.Site
}

// NewSiteRepository creates a site repository seeded with sites.
func NewSiteRepository(sites ...models.Site) *SiteRepository {
	r := &SiteRepository{sites: map[string]models.Site{}}
	for _, site := range sites {
		r.sites[site.ID] = site
	}
	return r
}

var _ repository.SiteRepository = (*SiteRepository)(nil)

// Upsert inserts or replaces a site.
func (r *SiteRepository) Upsert(_ context.Context, site models.Site) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sites[site.ID] = site
	return nil
}

// Get returns the site with id.
func (r *SiteRepository) Get(_ context.Context, id string) (*models.Site, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	site, ok := r.sites[id]
	if !ok {
		return nil, fmt.Errorf("site %s: %w", id, models.ErrNotFound)
	}
	return &site, nil
}

// List returns every site ordered by code.
func (r *SiteRepository) List(_ context.Context) ([]models.Site, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Site, 0, len(r.sites))
	for _, site := range r.sites {
		out = append(out, site)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}
