package analytics

import "github.com/mamadbah2/blockfarm/internal/domain/models"

// AggregateGlobal folds unrounded site metrics into platform-wide metrics.
// Totals are plain sums, rounded once at the end. Efficiency is re-weighted
// from the summed qualifying yields so that small sites weigh no more than
// their blocks do.
func AggregateGlobal(window models.Window, sites []models.SiteMetrics) models.GlobalMetrics {
	g := models.GlobalMetrics{
		Window:       window,
		StateCounts:  map[models.State]int{},
		ActiveAlerts: map[models.Severity]int{},
	}

	scoreTotal := 0
	for _, site := range sites {
		g.SiteCount++
		g.UnitCount += site.UnitCount
		g.CurrentCycleYield += site.CurrentCycleYield
		g.LedgerYield += site.LedgerYield
		g.PredictedYield += site.PredictedYield
		g.QualifyingUnits += site.QualifyingUnits
		g.QualifyingActualYield += site.QualifyingActualYield
		g.QualifyingPredictedYield += site.QualifyingPredictedYield
		scoreTotal += site.PerformanceScoreTotal

		for state, count := range site.StateCounts {
			g.StateCounts[state] += count
		}
		for severity, count := range site.ActiveAlerts {
			g.ActiveAlerts[severity] += count
		}
		g.Warnings = append(g.Warnings, site.Warnings...)
	}

	g.TotalYield = round2(g.CurrentCycleYield + g.LedgerYield)
	g.CurrentCycleYield = round2(g.CurrentCycleYield)
	g.LedgerYield = round2(g.LedgerYield)
	g.PredictedYield = round2(g.PredictedYield)
	g.WeightedEfficiencyPercent = models.EfficiencyPercent(g.QualifyingActualYield, g.QualifyingPredictedYield)
	g.AveragePerformanceScore = averageScore(scoreTotal, g.QualifyingUnits)
	g.PerformanceCategory = models.CategorizePerformance(g.WeightedEfficiencyPercent)

	return g
}
