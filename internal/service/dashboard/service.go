// Package dashboard assembles site and global dashboards from storage.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mamadbah2/blockfarm/internal/domain/models"
	"github.com/mamadbah2/blockfarm/internal/repository"
	"github.com/mamadbah2/blockfarm/internal/service/analytics"
	"github.com/mamadbah2/blockfarm/internal/telemetry"
)

const (
	defaultTimeout = 10 * time.Second
	fetchLimit     = 8
)

// Service fetches per-site data in parallel and runs the aggregators.
type Service struct {
	sites    repository.SiteRepository
	units    repository.UnitRepository
	harvests repository.HarvestRepository
	timeout  time.Duration
	metrics  *telemetry.Registry
	logger   *zap.Logger
	now      func() time.Time
}

// NewService wires a dashboard service. A non-positive timeout uses 10s.
func NewService(
	sites repository.SiteRepository,
	units repository.UnitRepository,
	harvests repository.HarvestRepository,
	timeout time.Duration,
	metrics *telemetry.Registry,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Service{
		sites:    sites,
		units:    units,
		harvests: harvests,
		timeout:  timeout,
		metrics:  metrics,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source, mainly for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Now exposes the service clock so callers resolve periods consistently.
func (s *Service) Now() time.Time {
	return s.now()
}

// SiteDashboard returns the site's metrics and every block's metrics.
func (s *Service) SiteDashboard(ctx context.Context, siteID string, window models.Window) (*models.SiteDashboard, error) {
	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	site, err := s.sites.Get(ctx, siteID)
	if err != nil {
		return nil, s.fail(ctx, "site", started, err)
	}

	blocks, harvests, err := s.fetchSite(ctx, site.ID, window)
	if err != nil {
		return nil, s.fail(ctx, "site", started, err)
	}

	now := s.now()
	out := &models.SiteDashboard{
		Site:  analytics.AggregateSite(*site, blocks, harvests, window).Rounded(),
		Units: make([]models.UnitMetrics, 0, len(blocks)),
	}
	for _, block := range blocks {
		out.Units = append(out.Units, analytics.Calculate(block, now))
	}
	if err := ctx.Err(); err != nil {
		return nil, s.fail(ctx, "site", started, err)
	}

	s.metrics.ObserveAggregation("site", "ok", time.Since(started))
	if len(out.Site.Warnings) > 0 {
		s.logger.Warn("site dashboard has data warnings", zap.String("site_id", siteID), zap.Int("warnings", len(out.Site.Warnings)))
	}
	return out, nil
}

// GlobalDashboard aggregates every site and recombines their sums.
func (s *Service) GlobalDashboard(ctx context.Context, window models.Window) (*models.GlobalMetrics, error) {
	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	sites, err := s.sites.List(ctx)
	if err != nil {
		return nil, s.fail(ctx, "global", started, err)
	}

	perSite, err := s.aggregateSites(ctx, sites, window)
	if err != nil {
		return nil, s.fail(ctx, "global", started, err)
	}

	global := analytics.AggregateGlobal(window, perSite)
	if err := ctx.Err(); err != nil {
		return nil, s.fail(ctx, "global", started, err)
	}

	s.metrics.ObserveAggregation("global", "ok", time.Since(started))
	return &global, nil
}

// SiteMetrics aggregates every site without building the global view. The
// digest and export jobs use it. Values are unrounded so callers can still
// combine them with AggregateGlobal.
func (s *Service) SiteMetrics(ctx context.Context, window models.Window) ([]models.SiteMetrics, error) {
	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	sites, err := s.sites.List(ctx)
	if err != nil {
		return nil, s.fail(ctx, "sites", started, err)
	}
	out, err := s.aggregateSites(ctx, sites, window)
	if err != nil {
		return nil, s.fail(ctx, "sites", started, err)
	}
	s.metrics.ObserveAggregation("sites", "ok", time.Since(started))
	return out, nil
}

func (s *Service) aggregateSites(ctx context.Context, sites []models.Site, window models.Window) ([]models.SiteMetrics, error) {
	out := make([]models.SiteMetrics, len(sites))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchLimit)
	for i, site := range sites {
		i, site := i, site
		g.Go(func() error {
			blocks, harvests, err := s.fetchSite(gctx, site.ID, window)
			if err != nil {
				return fmt.Errorf("site %s: %w", site.ID, err)
			}
			out[i] = analytics.AggregateSite(site, blocks, harvests, window)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// fetchSite loads a site's blocks and ledger slice concurrently.
func (s *Service) fetchSite(ctx context.Context, siteID string, window models.Window) ([]*models.Block, []models.HarvestRecord, error) {
	var (
		blocks   []*models.Block
		harvests []models.HarvestRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		blocks, err = s.units.ListBySite(gctx, siteID)
		if err != nil {
			return fmt.Errorf("list blocks: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		harvests, err = s.harvests.ListForSite(gctx, siteID, window.Start, window.End)
		if err != nil {
			return fmt.Errorf("list harvests: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return blocks, harvests, nil
}

// fail maps err onto the dashboard error classes and records the outcome.
// A dashboard is never returned partially.
func (s *Service) fail(ctx context.Context, scope string, started time.Time, err error) error {
	var mapped error
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		mapped = fmt.Errorf("%s dashboard exceeded %s: %w", scope, s.timeout, models.ErrAggregationTimeout)
	case errors.Is(err, context.Canceled):
		mapped = err
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrRepositoryUnavailable):
		mapped = err
	default:
		mapped = fmt.Errorf("%s dashboard: %w: %w", scope, models.ErrRepositoryUnavailable, err)
	}

	result := "error"
	if errors.Is(mapped, models.ErrAggregationTimeout) {
		result = "timeout"
	}
	s.metrics.ObserveAggregation(scope, result, time.Since(started))
	s.logger.Warn("dashboard failed", zap.String("scope", scope), zap.Error(mapped))
	return mapped
}
