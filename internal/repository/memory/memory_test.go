package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/blockfarm/internal/domain/models"
	"github.com/mamadbah2/blockfarm/internal/repository/memory"
)

var base = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func TestUnitRepository_GetReturnsCopy(t *testing.T) {
	// Arrange
	ctx := context.Background()
	repo := memory.NewUnitRepository()
	require.NoError(t, repo.Create(ctx, models.NewBlock("b1", "s1", "A-01", 100, base)))

	// Act
	got, err := repo.Get(ctx, "b1")
	require.NoError(t, err)
	got.State = models.StateAlert

	// Assert
	again, err := repo.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, models.StateEmpty, again.State)
}

func TestUnitRepository_GetMissing(t *testing.T) {
	_, err := memory.NewUnitRepository().Get(context.Background(), "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUnitRepository_CreateDuplicate(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewUnitRepository()
	require.NoError(t, repo.Create(ctx, models.NewBlock("b1", "s1", "A-01", 100, base)))

	assert.Error(t, repo.Create(ctx, models.NewBlock("b1", "s1", "A-01", 100, base)))
}

func TestUnitRepository_SaveTransitionCompareAndSwap(t *testing.T) {
	// Arrange
	ctx := context.Background()
	repo := memory.NewUnitRepository()
	require.NoError(t, repo.Create(ctx, models.NewBlock("b1", "s1", "A-01", 100, base)))
	block, err := repo.Get(ctx, "b1")
	require.NoError(t, err)
	block.State = models.StatePlanned

	// Act
	saved, err := repo.SaveTransition(ctx, block, models.StatusChange{State: models.StatePlanned}, 0)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.Version)

	_, err = repo.SaveTransition(ctx, block, models.StatusChange{State: models.StatePlanned}, 0)
	assert.ErrorIs(t, err, models.ErrVersionConflict)
}

func TestUnitRepository_ConcurrentWritersOneWins(t *testing.T) {
	// Arrange
	ctx := context.Background()
	repo := memory.NewUnitRepository()
	require.NoError(t, repo.Create(ctx, models.NewBlock("b1", "s1", "A-01", 100, base)))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)

	// Act
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			block, err := repo.Get(ctx, "b1")
			if err != nil {
				return
			}
			block.Version = 0
			_, err = repo.UpdateKPI(ctx, block, 0)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else {
				conflicts++
			}
		}()
	}
	wg.Wait()

	// Assert
	assert.Equal(t, 1, successes)
	assert.Equal(t, 7, conflicts)
}

func TestUnitRepository_ListBySiteOrdered(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewUnitRepository()
	require.NoError(t, repo.Create(ctx, models.NewBlock("b2", "s1", "A-02", 100, base)))
	require.NoError(t, repo.Create(ctx, models.NewBlock("b1", "s1", "A-01", 100, base)))
	require.NoError(t, repo.Create(ctx, models.NewBlock("b3", "s2", "B-01", 100, base)))

	blocks, err := repo.ListBySite(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, "b1", blocks[0].ID)
	assert.Equal(t, "b2", blocks[1].ID)

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestHarvestRepository_WindowAndScope(t *testing.T) {
	// Arrange
	ctx := context.Background()
	repo := memory.NewHarvestRepository()
	require.NoError(t, repo.Append(ctx, models.HarvestRecord{ID: "h1", UnitID: "b1", SiteID: "s1", Date: base, Quantity: 10}))
	require.NoError(t, repo.Append(ctx, models.HarvestRecord{ID: "h2", UnitID: "b1", SiteID: "s1", Date: base.AddDate(0, 0, 40), Quantity: 20}))
	require.NoError(t, repo.Append(ctx, models.HarvestRecord{ID: "h3", UnitID: "b9", SiteID: "s2", Date: base, Quantity: 30}))

	// Act
	site, err := repo.ListForSite(ctx, "s1", base, base.AddDate(0, 0, 30))
	require.NoError(t, err)
	unit, err := repo.ListForUnit(ctx, "b1", time.Time{}, time.Time{})
	require.NoError(t, err)

	// Assert
	require.Len(t, site, 1)
	assert.Equal(t, "h1", site[0].ID)
	assert.Len(t, unit, 2)
}

func TestHarvestRepository_RejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewHarvestRepository()
	require.NoError(t, repo.Append(ctx, models.HarvestRecord{ID: "h1", UnitID: "b1", Date: base}))

	assert.ErrorIs(t, repo.Append(ctx, models.HarvestRecord{ID: "h1", UnitID: "b1", Date: base}), models.ErrDuplicateHarvest)
}

func TestSiteRepository_GetAndList(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewSiteRepository(
		models.Site{ID: "s2", Code: "SITE-B"},
		models.Site{ID: "s1", Code: "SITE-A"},
	)

	site, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "SITE-A", site.Code)

	_, err = repo.Get(ctx, "s9")
	assert.ErrorIs(t, err, models.ErrNotFound)

	sites, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, sites, 2)
	assert.Equal(t, "s1", sites[0].ID)

	require.NoError(t, repo.Upsert(ctx, models.Site{ID: "s1", Code: "SITE-Z"}))
	sites, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s2", sites[0].ID)
}

func TestTaskRepository_CreateIfAbsentIsIdempotent(t *testing.T) {
	// Arrange
	ctx := context.Background()
	repo := memory.NewTaskRepository()
	task := models.PendingTask{ID: "t1", UnitID: "b1", Type: models.TaskCleaning, CreatedAt: base}

	// Act
	first, err := repo.CreateIfAbsent(ctx, task)
	require.NoError(t, err)
	task.ID = "t2"
	second, err := repo.CreateIfAbsent(ctx, task)
	require.NoError(t, err)

	// Assert
	assert.True(t, first)
	assert.False(t, second)
	open, err := repo.ListOpen(ctx, "b1")
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestTaskRepository_CancelFreesSlot(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewTaskRepository()
	_, err := repo.CreateIfAbsent(ctx, models.PendingTask{ID: "t1", UnitID: "b1", Type: models.TaskPlanting})
	require.NoError(t, err)

	require.NoError(t, repo.Cancel(ctx, "t1"))
	open, err := repo.ListOpen(ctx, "b1")
	require.NoError(t, err)
	assert.Empty(t, open)

	created, err := repo.CreateIfAbsent(ctx, models.PendingTask{ID: "t2", UnitID: "b1", Type: models.TaskPlanting})
	require.NoError(t, err)
	assert.True(t, created)

	assert.ErrorIs(t, repo.Cancel(ctx, "missing"), models.ErrNotFound)
}
