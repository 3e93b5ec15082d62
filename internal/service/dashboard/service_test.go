package dashboard_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/blockfarm/internal/domain/models"
	"github.com/mamadbah2/blockfarm/internal/repository/memory"
	"github.com/mamadbah2/blockfarm/internal/service/dashboard"
)

var now = time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)

func harvestingBlock(id, siteID string, predicted, actual float64) *models.Block {
	block := models.NewBlock(id, siteID, id, 100, now.AddDate(0, -3, 0))
	block.State = models.StateHarvesting
	block.AssignedQuantity = 50
	block.KPI = models.NewKPI(predicted, actual)
	block.History = []models.StatusChange{{State: models.StateHarvesting, PreviousState: models.StateFruiting, Timestamp: now.AddDate(0, 0, -10), Cycle: 1}}
	return block
}

type seeded struct {
	sites    *memory.SiteRepository
	units    *memory.UnitRepository
	harvests *memory.HarvestRepository
}

func seed(t *testing.T) seeded {
	t.Helper()
	ctx := context.Background()
	s := seeded{
		sites: memory.NewSiteRepository(
			models.Site{ID: "s1", Code: "NORTH"},
			models.Site{ID: "s2", Code: "SOUTH"},
		),
		units:    memory.NewUnitRepository(),
		harvests: memory.NewHarvestRepository(),
	}
	require.NoError(t, s.units.Create(ctx, harvestingBlock("a1", "s1", 10, 20)))
	require.NoError(t, s.units.Create(ctx, harvestingBlock("b1", "s2", 1000, 500)))
	require.NoError(t, s.harvests.Append(ctx, models.HarvestRecord{ID: "h1", UnitID: "old", SiteID: "s1", Cycle: 1, Date: now.AddDate(0, 0, -5), Quantity: 7}))
	return s
}

func (s seeded) service(timeout time.Duration) *dashboard.Service {
	return dashboard.NewService(s.sites, s.units, s.harvests, timeout, nil, nil).WithClock(func() time.Time { return now })
}

func window(t *testing.T) models.Window {
	t.Helper()
	w, err := models.ResolvePeriod(models.Period30Days, now)
	require.NoError(t, err)
	return w
}

func TestSiteDashboard(t *testing.T) {
	// Arrange
	s := seed(t)

	// Act
	out, err := s.service(time.Second).SiteDashboard(context.Background(), "s1", window(t))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "NORTH", out.Site.SiteCode)
	assert.InDelta(t, 27, out.Site.TotalYield, 1e-9)
	assert.InDelta(t, 200, out.Site.WeightedEfficiencyPercent, 1e-9)
	require.Len(t, out.Units, 1)
	assert.Equal(t, "a1", out.Units[0].UnitID)
}

func TestSiteDashboard_UnknownSite(t *testing.T) {
	s := seed(t)

	_, err := s.service(time.Second).SiteDashboard(context.Background(), "nope", window(t))

	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestGlobalDashboard_ReweightsSites(t *testing.T) {
	s := seed(t)

	global, err := s.service(time.Second).GlobalDashboard(context.Background(), window(t))

	require.NoError(t, err)
	assert.Equal(t, 2, global.SiteCount)
	assert.InDelta(t, 527, global.TotalYield, 1e-9)
	assert.InDelta(t, 51.49, global.WeightedEfficiencyPercent, 1e-9)
}

// slowHarvests blocks until the request context ends.
type slowHarvests struct {
	*memory.HarvestRepository
}

func (slowHarvests) ListForSite(ctx context.Context, _ string, _, _ time.Time) ([]models.HarvestRecord, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestGlobalDashboard_Timeout(t *testing.T) {
	// Arrange
	s := seed(t)
	svc := dashboard.NewService(s.sites, s.units, slowHarvests{memory.NewHarvestRepository()}, 20*time.Millisecond, nil, nil)

	// Act
	global, err := svc.GlobalDashboard(context.Background(), window(t))

	// Assert
	assert.Nil(t, global)
	assert.ErrorIs(t, err, models.ErrAggregationTimeout)
}

// brokenUnits fails every listing.
type brokenUnits struct {
	*memory.UnitRepository
}

func (brokenUnits) ListBySite(context.Context, string) ([]*models.Block, error) {
	return nil, errors.New("connection reset")
}

func TestSiteDashboard_RepositoryFailureIsUnavailable(t *testing.T) {
	s := seed(t)
	svc := dashboard.NewService(s.sites, brokenUnits{memory.NewUnitRepository()}, s.harvests, time.Second, nil, nil)

	out, err := svc.SiteDashboard(context.Background(), "s1", window(t))

	assert.Nil(t, out)
	assert.ErrorIs(t, err, models.ErrRepositoryUnavailable)
}

func TestSiteMetrics_OnePerSite(t *testing.T) {
	s := seed(t)

	sites, err := s.service(time.Second).SiteMetrics(context.Background(), window(t))

	require.NoError(t, err)
	require.Len(t, sites, 2)
	assert.Equal(t, "s1", sites[0].SiteID)
	assert.Equal(t, "s2", sites[1].SiteID)
}
