package analytics_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/blockfarm/internal/domain/models"
	"github.com/mamadbah2/blockfarm/internal/service/analytics"
)

var day1 = time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

func dayN(n int) time.Time { return day1.AddDate(0, 0, n-1) }

func plantedBlock() *models.Block {
	crop := "pepper"
	block := models.NewBlock("b1", "s1", "A-01", 200, day1)
	block.State = models.StatePlanted
	block.CropID = &crop
	block.AssignedQuantity = 100
	block.KPI = models.NewKPI(500, 0)
	block.ExpectedDates = map[models.State]time.Time{
		models.StateGrowing:    dayN(11),
		models.StateHarvesting: dayN(60),
		models.StateCleaning:   dayN(100),
	}
	block.History = []models.StatusChange{{State: models.StatePlanted, PreviousState: models.StateEmpty, Timestamp: dayN(1), Cycle: 1}}
	return block
}

func TestCalculate_CapacityPercentZeroCapacity(t *testing.T) {
	block := models.NewBlock("b1", "s1", "A-01", 0, day1)

	metrics := analytics.Calculate(block, dayN(2))

	assert.Zero(t, metrics.CapacityPercent)
}

func TestCalculate_CapacityPercentNeverNegative(t *testing.T) {
	for _, tc := range []struct{ assigned, capacity int }{{0, 0}, {0, 10}, {5, 10}, {10, 10}, {3, 0}, {-5, 10}, {-1, -1}} {
		block := models.NewBlock("b1", "s1", "A-01", tc.capacity, day1)
		block.AssignedQuantity = tc.assigned

		metrics := analytics.Calculate(block, dayN(2))

		assert.GreaterOrEqual(t, metrics.CapacityPercent, 0.0)
	}
}

func TestCalculate_NegativeAssignedQuantityWarns(t *testing.T) {
	// Arrange
	block := plantedBlock()
	block.AssignedQuantity = -5

	// Act
	metrics := analytics.Calculate(block, dayN(2))

	// Assert
	assert.Zero(t, metrics.CapacityPercent)
	require.NotEmpty(t, metrics.Warnings)
	assert.Equal(t, models.WarningNegativeValue, metrics.Warnings[0].Code)
}

func TestCalculate_MidCycleUnitIsPoorWithZeroProgress(t *testing.T) {
	block := plantedBlock()

	metrics := analytics.Calculate(block, dayN(5))

	assert.Zero(t, metrics.YieldProgress)
	assert.Equal(t, models.PerformancePoor, metrics.PerformanceCategory)
	assert.Equal(t, 50.0, metrics.CapacityPercent)
	assert.InDelta(t, 500.0, metrics.EstimatedFinalYield, 0.0001)
}

func TestCalculate_YieldProgressZeroPrediction(t *testing.T) {
	block := plantedBlock()
	block.KPI = models.NewKPI(0, 40)

	metrics := analytics.Calculate(block, dayN(5))

	assert.Zero(t, metrics.YieldProgress)
	assert.Zero(t, metrics.YieldEfficiencyPercent)
}

func TestCalculate_DelayAndDaysInState(t *testing.T) {
	block := plantedBlock()

	metrics := analytics.Calculate(block, dayN(14))

	require.NotNil(t, metrics.DaysInCurrentState)
	assert.Equal(t, 13, *metrics.DaysInCurrentState)
	require.NotNil(t, metrics.ExpectedNextState)
	assert.Equal(t, models.StateGrowing, *metrics.ExpectedNextState)
	require.NotNil(t, metrics.ExpectedNextTransitionDate)
	assert.Equal(t, dayN(11), *metrics.ExpectedNextTransitionDate)
	require.NotNil(t, metrics.DelayDays)
	assert.Equal(t, 3, *metrics.DelayDays)
	assert.True(t, metrics.IsDelayed)
	assert.Equal(t, "transition_to_growing", metrics.NextRecommendedAction)
}

func TestCalculate_NotYetDue(t *testing.T) {
	block := plantedBlock()

	metrics := analytics.Calculate(block, dayN(4))

	require.NotNil(t, metrics.DelayDays)
	assert.Equal(t, -7, *metrics.DelayDays)
	assert.False(t, metrics.IsDelayed)
	assert.Equal(t, "monitor_germination", metrics.NextRecommendedAction)
}

func TestCalculate_MissingExpectedDateDegrades(t *testing.T) {
	block := plantedBlock()
	block.ExpectedDates = nil

	metrics := analytics.Calculate(block, dayN(4))

	assert.Nil(t, metrics.ExpectedNextTransitionDate)
	assert.Nil(t, metrics.DelayDays)
	assert.False(t, metrics.IsDelayed)
	assert.Equal(t, analytics.ActionUnknown, metrics.NextRecommendedAction)
	require.Len(t, metrics.Warnings, 1)
	assert.Equal(t, models.WarningMissingExpectedDate, metrics.Warnings[0].Code)
}

func TestCalculate_UnknownStateDegrades(t *testing.T) {
	block := plantedBlock()
	block.State = "flooded"

	metrics := analytics.Calculate(block, dayN(4))

	assert.Equal(t, models.StateUnknown, metrics.State)
	assert.Equal(t, analytics.ActionUnknown, metrics.NextRecommendedAction)
	require.NotEmpty(t, metrics.Warnings)
	assert.Equal(t, models.WarningUnknownState, metrics.Warnings[0].Code)
}

func TestCalculate_NilBlock(t *testing.T) {
	metrics := analytics.Calculate(nil, dayN(4))

	assert.Equal(t, models.StateUnknown, metrics.State)
	assert.Equal(t, analytics.ActionUnknown, metrics.NextRecommendedAction)
}

func TestCalculate_EstimatedFinalYieldExtrapolatesHarvestWindow(t *testing.T) {
	block := plantedBlock()
	block.State = models.StateHarvesting
	block.KPI = models.NewKPI(500, 100)
	block.History = append(block.History, models.StatusChange{State: models.StateHarvesting, PreviousState: models.StateGrowing, Timestamp: dayN(60), Cycle: 1})

	// 10 of 40 harvest days elapsed.
	metrics := analytics.Calculate(block, dayN(70))

	assert.InDelta(t, 400.0, metrics.EstimatedFinalYield, 0.0001)
	assert.Equal(t, 20.0, metrics.YieldProgress)
	assert.Equal(t, "record_daily_harvest", metrics.NextRecommendedAction)
}

func TestCalculate_EstimatedFinalYieldFallsBackToPrediction(t *testing.T) {
	block := plantedBlock()
	block.State = models.StateHarvesting
	block.KPI = models.NewKPI(500, 100)
	block.History = append(block.History, models.StatusChange{State: models.StateHarvesting, Timestamp: dayN(60), Cycle: 1})

	metrics := analytics.Calculate(block, dayN(60))

	assert.InDelta(t, 500.0, metrics.EstimatedFinalYield, 0.0001)
}

func TestCalculate_AlertHasNoSuccessor(t *testing.T) {
	block := plantedBlock()
	block.State = models.StateAlert

	metrics := analytics.Calculate(block, dayN(4))

	assert.Nil(t, metrics.ExpectedNextState)
	assert.Equal(t, "resolve_alert", metrics.NextRecommendedAction)
}

func TestCategorizePerformance(t *testing.T) {
	testCases := []struct {
		efficiency float64
		expected   models.PerformanceCategory
	}{
		{250, models.PerformanceExceptional},
		{200, models.PerformanceExceptional},
		{199.99, models.PerformanceExceeding},
		{100, models.PerformanceExceeding},
		{99.9, models.PerformanceExcellent},
		{90, models.PerformanceExcellent},
		{89.99, models.PerformanceGood},
		{70, models.PerformanceGood},
		{69.99, models.PerformanceAcceptable},
		{50, models.PerformanceAcceptable},
		{49.99, models.PerformancePoor},
		{0, models.PerformancePoor},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, models.CategorizePerformance(tc.efficiency), "efficiency %.2f", tc.efficiency)
	}
}

func TestKPICategoryFollowsEfficiency(t *testing.T) {
	kpi := models.NewKPI(200, 190)

	assert.Equal(t, 95.0, kpi.YieldEfficiencyPercent)
	assert.Equal(t, models.CategorizePerformance(kpi.YieldEfficiencyPercent), kpi.PerformanceCategory)
}
