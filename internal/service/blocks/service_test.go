package blocks_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/blockfarm/internal/domain/lifecycle"
	"github.com/mamadbah2/blockfarm/internal/domain/models"
	"github.com/mamadbah2/blockfarm/internal/repository/memory"
	"github.com/mamadbah2/blockfarm/internal/service/blocks"
	"github.com/mamadbah2/blockfarm/internal/service/tasks"
	"github.com/mamadbah2/blockfarm/pkg/clients/crops"
)

var day1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func dayN(n int) *time.Time {
	d := day1.AddDate(0, 0, n-1)
	return &d
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

type fixture struct {
	svc      *blocks.Service
	units    *memory.UnitRepository
	harvests *memory.HarvestRepository
	tasks    *memory.TaskRepository
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	units := memory.NewUnitRepository()
	harvests := memory.NewHarvestRepository()
	taskRepo := memory.NewTaskRepository()
	catalog := crops.StaticCatalog{
		"tomato": {ID: "tomato", Name: "Tomato", PredictedYieldPerItem: 2.5, CycleDurationDays: 100},
	}
	clock := func() time.Time { return *dayN(1) }
	taskSvc := tasks.NewService(taskRepo, units, nil, nil).WithClock(clock)
	svc := blocks.NewService(units, harvests, catalog, taskSvc, nil, nil).WithClock(clock)
	return fixture{svc: svc, units: units, harvests: harvests, tasks: taskRepo}
}

func (f fixture) register(t *testing.T) string {
	t.Helper()
	unit, err := f.svc.Register(context.Background(), blocks.NewUnit{SiteID: "s1", SequenceCode: "A-01", Capacity: 100})
	require.NoError(t, err)
	return unit.Block.ID
}

func (f fixture) move(t *testing.T, id string, req lifecycle.TransitionRequest) *models.BlockWithMetrics {
	t.Helper()
	out, err := f.svc.Transition(context.Background(), id, req)
	require.NoError(t, err)
	return out
}

func TestService_FullCycle(t *testing.T) {
	// Arrange
	ctx := context.Background()
	f := newFixture(t)
	id := f.register(t)

	// Act
	f.move(t, id, lifecycle.TransitionRequest{Target: models.StatePlanned, CropID: strPtr("tomato"), Quantity: intPtr(40), EffectiveDate: dayN(1)})
	planted := f.move(t, id, lifecycle.TransitionRequest{Target: models.StatePlanted, EffectiveDate: dayN(8)})
	f.move(t, id, lifecycle.TransitionRequest{Target: models.StateGrowing, EffectiveDate: dayN(18)})

	_, err := f.svc.RecordHarvest(ctx, id, blocks.HarvestInput{Quantity: 5, Date: dayN(20)})
	assert.ErrorIs(t, err, models.ErrHarvestNotAllowed)

	f.move(t, id, lifecycle.TransitionRequest{Target: models.StateFruiting, EffectiveDate: dayN(53)})
	first, err := f.svc.RecordHarvest(ctx, id, blocks.HarvestInput{Quantity: 30, Grade: models.GradeB, Date: dayN(60)})
	require.NoError(t, err)
	f.move(t, id, lifecycle.TransitionRequest{Target: models.StateHarvesting, EffectiveDate: dayN(73)})
	second, err := f.svc.RecordHarvest(ctx, id, blocks.HarvestInput{Quantity: 50, Date: dayN(80)})
	require.NoError(t, err)
	openLedger, err := f.harvests.ListForUnit(ctx, id, time.Time{}, time.Time{})
	require.NoError(t, err)
	f.move(t, id, lifecycle.TransitionRequest{Target: models.StateCleaning, EffectiveDate: dayN(108)})
	closed := f.move(t, id, lifecycle.TransitionRequest{Target: models.StateEmpty, EffectiveDate: dayN(111)})

	// Assert
	assert.InDelta(t, 100, planted.Block.KPI.PredictedYield, 1e-9)
	assert.InDelta(t, 30, first.Unit.Block.KPI.ActualYield, 1e-9)
	assert.Equal(t, models.GradeB, first.Record.Grade)
	assert.InDelta(t, 80, second.Unit.Block.KPI.ActualYield, 1e-9)
	assert.InDelta(t, 80, second.Unit.Metrics.YieldEfficiencyPercent, 1e-9)

	assert.Equal(t, 2, closed.Block.Cycle)
	assert.Equal(t, models.StateEmpty, closed.Block.State)
	assert.Zero(t, closed.Block.KPI.ActualYield)
	assert.Len(t, closed.Block.History, 7)
	assert.Empty(t, closed.Block.PendingHarvests)
	assert.Empty(t, openLedger)
	require.Len(t, second.Unit.Block.PendingHarvests, 2)

	ledger, err := f.harvests.ListForUnit(ctx, id, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, ledger, 2)
	for _, rec := range ledger {
		assert.Equal(t, 1, rec.Cycle)
		assert.Equal(t, "s1", rec.SiteID)
	}
}

func TestService_TransitionRecordsOffset(t *testing.T) {
	f := newFixture(t)
	id := f.register(t)
	f.move(t, id, lifecycle.TransitionRequest{
		Target:               models.StatePlanned,
		CropID:               strPtr("tomato"),
		Quantity:             intPtr(10),
		ExpectedPlantingDate: dayN(5),
		EffectiveDate:        dayN(1),
	})

	planted := f.move(t, id, lifecycle.TransitionRequest{Target: models.StatePlanted, EffectiveDate: dayN(8)})

	entry := planted.Block.LastTransition()
	require.NotNil(t, entry.OffsetDays)
	assert.Equal(t, 3, *entry.OffsetDays)
	assert.Equal(t, models.OffsetLate, *entry.OffsetCategory)
}

func TestService_InvalidTransitionLeavesBlockUnchanged(t *testing.T) {
	// Arrange
	ctx := context.Background()
	f := newFixture(t)
	id := f.register(t)

	// Act
	_, err := f.svc.Transition(ctx, id, lifecycle.TransitionRequest{Target: models.StateHarvesting})

	// Assert
	require.ErrorIs(t, err, models.ErrInvalidTransition)
	stored, err := f.units.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StateEmpty, stored.State)
	assert.Empty(t, stored.History)
	assert.Equal(t, int64(0), stored.Version)
}

func TestService_UnknownCropIsMissingPrerequisite(t *testing.T) {
	f := newFixture(t)
	id := f.register(t)

	_, err := f.svc.Transition(context.Background(), id, lifecycle.TransitionRequest{Target: models.StatePlanned, CropID: strPtr("kale")})

	assert.ErrorIs(t, err, models.ErrMissingPrerequisite)
}

func TestService_TransitionUnknownUnit(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Transition(context.Background(), "ghost", lifecycle.TransitionRequest{Target: models.StatePlanned})

	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestService_TransitionSyncsTasks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.register(t)

	f.move(t, id, lifecycle.TransitionRequest{Target: models.StatePlanned, CropID: strPtr("tomato"), Quantity: intPtr(10)})

	open, err := f.tasks.ListOpen(ctx, id)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, models.TaskPlanting, open[0].Type)

	listed, err := f.svc.Tasks(ctx, id)
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestService_RecordHarvestValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.register(t)

	_, err := f.svc.RecordHarvest(ctx, id, blocks.HarvestInput{Quantity: -1})
	assert.ErrorIs(t, err, models.ErrInvalidQuantity)

	_, err = f.svc.RecordHarvest(ctx, id, blocks.HarvestInput{Quantity: 1, Grade: "premium"})
	assert.ErrorIs(t, err, models.ErrInvalidGrade)

	_, err = f.svc.RecordHarvest(ctx, id, blocks.HarvestInput{Quantity: 1})
	assert.ErrorIs(t, err, models.ErrHarvestNotAllowed)
}

func TestService_RegisterValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Register(context.Background(), blocks.NewUnit{SiteID: "s1"})
	assert.ErrorIs(t, err, models.ErrMissingPrerequisite)

	_, err = f.svc.Register(context.Background(), blocks.NewUnit{SiteID: "s1", SequenceCode: "A-01", Capacity: -5})
	assert.ErrorIs(t, err, models.ErrInvalidQuantity)
}

// flakyUnits loses the compare-and-swap a fixed number of times.
type flakyUnits struct {
	*memory.UnitRepository
	conflicts int
	calls     int
}

func (f *flakyUnits) SaveTransition(ctx context.Context, block *models.Block, change models.StatusChange, expectedVersion int64) (*models.Block, error) {
	f.calls++
	if f.calls <= f.conflicts {
		return nil, models.ErrVersionConflict
	}
	return f.UnitRepository.SaveTransition(ctx, block, change, expectedVersion)
}

func TestService_RetriesVersionConflict(t *testing.T) {
	tests := []struct {
		name      string
		conflicts int
		wantErr   bool
		wantCalls int
	}{
		{name: "recovers", conflicts: 2, wantCalls: 3},
		{name: "gives up", conflicts: 5, wantErr: true, wantCalls: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			ctx := context.Background()
			units := &flakyUnits{UnitRepository: memory.NewUnitRepository(), conflicts: tt.conflicts}
			require.NoError(t, units.Create(ctx, models.NewBlock("b1", "s1", "A-01", 100, day1)))
			svc := blocks.NewService(units, memory.NewHarvestRepository(), nil, nil, nil, nil)

			// Act
			_, err := svc.Transition(ctx, "b1", lifecycle.TransitionRequest{Target: models.StatePlanned})

			// Assert
			assert.Equal(t, tt.wantCalls, units.calls)
			if tt.wantErr {
				assert.ErrorIs(t, err, models.ErrVersionConflict)
				return
			}
			require.NoError(t, err)
		})
	}
}

func fruitingBlock(id string) *models.Block {
	block := models.NewBlock(id, "s1", "A-01", 100, day1)
	block.State = models.StateFruiting
	block.Cycle = 1
	block.AssignedQuantity = 40
	block.KPI = models.NewKPI(100, 0)
	return block
}

// failingUnits rejects KPI writes while fail is set.
type failingUnits struct {
	*memory.UnitRepository
	fail bool
}

func (f *failingUnits) UpdateKPI(ctx context.Context, block *models.Block, expectedVersion int64) (*models.Block, error) {
	if f.fail {
		return nil, errors.New("write concern timeout")
	}
	return f.UnitRepository.UpdateKPI(ctx, block, expectedVersion)
}

func TestService_RecordHarvestFailedWriteLeavesNoTrace(t *testing.T) {
	// Arrange
	ctx := context.Background()
	units := &failingUnits{UnitRepository: memory.NewUnitRepository(), fail: true}
	harvests := memory.NewHarvestRepository()
	require.NoError(t, units.Create(ctx, fruitingBlock("b1")))
	svc := blocks.NewService(units, harvests, nil, nil, nil, nil).WithClock(func() time.Time { return *dayN(60) })

	// Act
	_, err := svc.RecordHarvest(ctx, "b1", blocks.HarvestInput{Quantity: 30})

	// Assert
	require.Error(t, err)
	ledger, err := harvests.ListForUnit(ctx, "b1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, ledger)
	stored, err := units.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Zero(t, stored.KPI.ActualYield)
	assert.Empty(t, stored.PendingHarvests)

	// Act: the client retries once storage recovers.
	units.fail = false
	out, err := svc.RecordHarvest(ctx, "b1", blocks.HarvestInput{Quantity: 30})

	// Assert
	require.NoError(t, err)
	assert.InDelta(t, 30, out.Unit.Block.KPI.ActualYield, 1e-9)
	require.Len(t, out.Unit.Block.PendingHarvests, 1)
	assert.Equal(t, out.Record.ID, out.Unit.Block.PendingHarvests[0].ID)
}

// kpiConflicts loses the KPI compare-and-swap a fixed number of times.
type kpiConflicts struct {
	*memory.UnitRepository
	conflicts int
	calls     int
}

func (k *kpiConflicts) UpdateKPI(ctx context.Context, block *models.Block, expectedVersion int64) (*models.Block, error) {
	k.calls++
	if k.calls <= k.conflicts {
		return nil, models.ErrVersionConflict
	}
	return k.UnitRepository.UpdateKPI(ctx, block, expectedVersion)
}

func TestService_RecordHarvestRetriesConflictOnce(t *testing.T) {
	ctx := context.Background()
	units := &kpiConflicts{UnitRepository: memory.NewUnitRepository(), conflicts: 1}
	require.NoError(t, units.Create(ctx, fruitingBlock("b1")))
	svc := blocks.NewService(units, memory.NewHarvestRepository(), nil, nil, nil, nil)

	out, err := svc.RecordHarvest(ctx, "b1", blocks.HarvestInput{Quantity: 12.5})

	require.NoError(t, err)
	assert.Equal(t, 2, units.calls)
	assert.InDelta(t, 12.5, out.Unit.Block.KPI.ActualYield, 1e-9)
	assert.Len(t, out.Unit.Block.PendingHarvests, 1)
}

// downLedger rejects appends while down is set.
type downLedger struct {
	*memory.HarvestRepository
	down bool
}

func (d *downLedger) Append(ctx context.Context, record models.HarvestRecord) error {
	if d.down {
		return errors.New("ledger unavailable")
	}
	return d.HarvestRepository.Append(ctx, record)
}

func TestService_FlushLedgerAfterFailedCycleClose(t *testing.T) {
	// Arrange
	ctx := context.Background()
	units := memory.NewUnitRepository()
	ledger := &downLedger{HarvestRepository: memory.NewHarvestRepository()}
	block := fruitingBlock("b1")
	block.State = models.StateCleaning
	block.KPI = models.NewKPI(100, 77)
	block.PendingHarvests = []models.HarvestRecord{
		{ID: "h1", UnitID: "b1", SiteID: "s1", Cycle: 1, Date: *dayN(10), Quantity: 22, Grade: models.GradeA},
		{ID: "h2", UnitID: "b1", SiteID: "s1", Cycle: 1, Date: *dayN(12), Quantity: 55, Grade: models.GradeA},
	}
	require.NoError(t, units.Create(ctx, block))
	svc := blocks.NewService(units, ledger, nil, nil, nil, nil).WithClock(func() time.Time { return *dayN(20) })

	// Act: the cycle closes while the ledger is down.
	ledger.down = true
	closed, err := svc.Transition(ctx, "b1", lifecycle.TransitionRequest{Target: models.StateEmpty})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 2, closed.Block.Cycle)
	assert.Len(t, closed.Block.UnledgeredHarvests(), 2)
	assert.Empty(t, closed.Block.OpenCycleHarvests())

	// Act: the periodic flush runs after recovery.
	ledger.down = false
	moved, err := svc.FlushLedger(ctx)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 2, moved)
	records, err := ledger.ListForUnit(ctx, "b1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, records, 2)
	stored, err := units.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Empty(t, stored.PendingHarvests)

	again, err := svc.FlushLedger(ctx)
	require.NoError(t, err)
	assert.Zero(t, again)
}

func TestService_FlushLedgerSkipsRecordsAlreadyWritten(t *testing.T) {
	ctx := context.Background()
	units := memory.NewUnitRepository()
	harvests := memory.NewHarvestRepository()
	record := models.HarvestRecord{ID: "h1", UnitID: "b1", SiteID: "s1", Cycle: 1, Date: *dayN(10), Quantity: 22}
	require.NoError(t, harvests.Append(ctx, record))
	block := fruitingBlock("b1")
	block.State = models.StateEmpty
	block.Cycle = 2
	block.PendingHarvests = []models.HarvestRecord{record}
	require.NoError(t, units.Create(ctx, block))
	svc := blocks.NewService(units, harvests, nil, nil, nil, nil)

	moved, err := svc.FlushLedger(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, moved)
	records, err := harvests.ListForUnit(ctx, "b1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
