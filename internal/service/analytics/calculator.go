// Package analytics computes block, site and global yield metrics. Every
// function here is pure: callers fetch blocks and harvests first.
package analytics

import (
	"fmt"
	"math"
	"time"

	"github.com/mamadbah2/blockfarm/internal/domain/lifecycle"
	"github.com/mamadbah2/blockfarm/internal/domain/models"
)

// ActionUnknown is returned when the inputs are too incomplete to recommend anything.
const ActionUnknown = "unknown"

var holdActions = map[models.State]string{
	models.StateEmpty:      "plan_cycle",
	models.StatePlanned:    "prepare_planting",
	models.StatePlanted:    "monitor_germination",
	models.StateGrowing:    "monitor_growth",
	models.StateFruiting:   "monitor_fruiting",
	models.StateHarvesting: "record_daily_harvest",
	models.StateCleaning:   "complete_cleaning",
	models.StateAlert:      "resolve_alert",
}

// Calculate derives the metrics of one block at now. It never fails: missing
// or malformed inputs leave the affected fields nil and add a warning.
func Calculate(block *models.Block, now time.Time) models.UnitMetrics {
	if block == nil {
		return models.UnitMetrics{
			State:                 models.StateUnknown,
			PerformanceCategory:   models.PerformancePoor,
			NextRecommendedAction: ActionUnknown,
		}
	}

	m := models.UnitMetrics{
		UnitID:                 block.ID,
		State:                  block.State,
		CapacityPercent:        capacityPercent(block.AssignedQuantity, block.Capacity),
		YieldProgress:          percentOf(block.KPI.ActualYield, block.KPI.PredictedYield),
		YieldEfficiencyPercent: models.EfficiencyPercent(block.KPI.ActualYield, block.KPI.PredictedYield),
	}
	m.PerformanceCategory = models.CategorizePerformance(m.YieldEfficiencyPercent)
	m.EstimatedFinalYield = estimateFinalYield(block, now)
	if block.AssignedQuantity < 0 || block.Capacity < 0 {
		m.Warnings = append(m.Warnings, warn(block.ID, models.WarningNegativeValue, fmt.Sprintf("assigned %d of capacity %d", block.AssignedQuantity, block.Capacity)))
	}

	if !block.State.Valid() {
		m.State = models.StateUnknown
		m.NextRecommendedAction = ActionUnknown
		m.Warnings = append(m.Warnings, warn(block.ID, models.WarningUnknownState, fmt.Sprintf("state %q is not recognised", block.State)))
		return m
	}

	if last := block.LastTransition(); last != nil && !last.Timestamp.IsZero() {
		days := lifecycle.DaysBetween(now, last.Timestamp)
		m.DaysInCurrentState = &days
	} else if block.State != models.StateEmpty {
		m.Warnings = append(m.Warnings, warn(block.ID, models.WarningMissingHistory, "no transition history recorded"))
	}

	successor, hasSuccessor := lifecycle.Successor(block.State)
	if hasSuccessor {
		next := successor
		m.ExpectedNextState = &next
		if expected, ok := block.ExpectedDate(successor); ok {
			expectedCopy := expected
			delay := lifecycle.DaysBetween(now, expected)
			m.ExpectedNextTransitionDate = &expectedCopy
			m.DelayDays = &delay
			m.IsDelayed = delay > 0
		} else if block.State != models.StateEmpty {
			m.Warnings = append(m.Warnings, warn(block.ID, models.WarningMissingExpectedDate, fmt.Sprintf("no expected date for %s", successor)))
		}
	}

	m.NextRecommendedAction = recommendAction(block, m, successor, hasSuccessor, now)
	return m
}

func recommendAction(block *models.Block, m models.UnitMetrics, successor models.State, hasSuccessor bool, now time.Time) string {
	hold := holdActions[block.State]
	if !hasSuccessor {
		return hold
	}
	if m.ExpectedNextTransitionDate == nil {
		if block.State == models.StateEmpty {
			return hold
		}
		return ActionUnknown
	}
	if !now.Before(*m.ExpectedNextTransitionDate) {
		return "transition_to_" + string(successor)
	}
	return hold
}

// estimateFinalYield extrapolates realized yield over the elapsed share of the
// harvest window (harvesting entered -> expected cleaning).
func estimateFinalYield(block *models.Block, now time.Time) float64 {
	fraction := harvestElapsedFraction(block, now)
	if fraction > 0 {
		return round2(block.KPI.ActualYield / fraction)
	}
	return block.KPI.PredictedYield
}

func harvestElapsedFraction(block *models.Block, now time.Time) float64 {
	if block.State != models.StateHarvesting {
		return 0
	}
	started := block.LastEntered(models.StateHarvesting)
	if started == nil {
		return 0
	}
	end, ok := block.ExpectedDate(models.StateCleaning)
	if !ok || !end.After(started.Timestamp) {
		return 0
	}
	elapsed := now.Sub(started.Timestamp)
	if elapsed <= 0 {
		return 0
	}
	fraction := float64(elapsed) / float64(end.Sub(started.Timestamp))
	return math.Min(fraction, 1)
}

func capacityPercent(assigned, capacity int) float64 {
	if capacity <= 0 || assigned <= 0 {
		return 0
	}
	return round2(float64(assigned) / float64(capacity) * 100)
}

func percentOf(part, whole float64) float64 {
	if whole <= 0 {
		return 0
	}
	return round2(part / whole * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func warn(unitID string, code models.WarningCode, message string) models.DataIntegrityWarning {
	return models.DataIntegrityWarning{UnitID: unitID, Code: code, Message: message}
}
