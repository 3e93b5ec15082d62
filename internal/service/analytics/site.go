package analytics

import (
	"fmt"

	"github.com/mamadbah2/blockfarm/internal/domain/models"
)

// AggregateSite combines the site's blocks and ledger records into site metrics.
//
// Total yield is the current-cycle KPI yield plus every ledger record inside
// window. The block service keeps the two disjoint: open-cycle harvests live
// on the block until its cycle closes. Yield sums are left unrounded so that
// AggregateGlobal can recombine sites exactly. Efficiency and performance
// score only consider blocks with both realized and predicted yield; a block
// mid-cycle at 0% never drags the average down. Malformed blocks are bucketed as unknown
// and left out of every sum.
func AggregateSite(site models.Site, blocks []*models.Block, harvests []models.HarvestRecord, window models.Window) models.SiteMetrics {
	m := models.SiteMetrics{
		SiteID:       site.ID,
		SiteCode:     site.Code,
		Window:       window,
		StateCounts:  map[models.State]int{},
		ActiveAlerts: map[models.Severity]int{},
	}

	for _, block := range blocks {
		if block == nil {
			continue
		}
		m.UnitCount++

		if defect, ok := blockDefect(block); ok {
			m.StateCounts[models.StateUnknown]++
			m.Warnings = append(m.Warnings, defect)
			continue
		}

		m.StateCounts[block.State]++
		m.CurrentCycleYield += block.KPI.ActualYield
		m.PredictedYield += block.KPI.PredictedYield

		if block.State == models.StateAlert && block.ActiveAlert != nil {
			m.ActiveAlerts[block.ActiveAlert.Severity]++
		}

		if block.KPI.HasRealizedYield() {
			m.QualifyingUnits++
			m.QualifyingActualYield += block.KPI.ActualYield
			m.QualifyingPredictedYield += block.KPI.PredictedYield
			m.PerformanceScoreTotal += block.KPI.PerformanceCategory.Score()
		}
	}

	for _, record := range harvests {
		if record.SiteID != "" && site.ID != "" && record.SiteID != site.ID {
			continue
		}
		if !window.Contains(record.Date) {
			continue
		}
		if record.Quantity < 0 {
			m.Warnings = append(m.Warnings, warn(record.UnitID, models.WarningNegativeValue, fmt.Sprintf("harvest %s has negative quantity", record.ID)))
			continue
		}
		m.LedgerYield += record.Quantity
	}

	m.TotalYield = m.CurrentCycleYield + m.LedgerYield
	m.WeightedEfficiencyPercent = models.EfficiencyPercent(m.QualifyingActualYield, m.QualifyingPredictedYield)
	m.AveragePerformanceScore = averageScore(m.PerformanceScoreTotal, m.QualifyingUnits)
	m.PerformanceCategory = models.CategorizePerformance(m.WeightedEfficiencyPercent)

	return m
}

// blockDefect reports why a block cannot take part in aggregation.
func blockDefect(block *models.Block) (models.DataIntegrityWarning, bool) {
	switch {
	case !block.State.Valid():
		return warn(block.ID, models.WarningUnknownState, fmt.Sprintf("state %q is not recognised", block.State)), true
	case block.KPI.ActualYield < 0 || block.KPI.PredictedYield < 0 || block.AssignedQuantity < 0 || block.Capacity < 0:
		return warn(block.ID, models.WarningNegativeValue, "negative yield, quantity or capacity"), true
	case block.AssignedQuantity > block.Capacity:
		return warn(block.ID, models.WarningOverCapacity, fmt.Sprintf("assigned %d above capacity %d", block.AssignedQuantity, block.Capacity)), true
	default:
		return models.DataIntegrityWarning{}, false
	}
}

func averageScore(total, count int) float64 {
	if count == 0 {
		return 0
	}
	return round2(float64(total) / float64(count))
}
