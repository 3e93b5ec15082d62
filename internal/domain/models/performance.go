package models

// PerformanceCategory is the tier label derived from a yield efficiency percentage.
type PerformanceCategory string

const (
	PerformanceExceptional PerformanceCategory = "exceptional"
	PerformanceExceeding   PerformanceCategory = "exceeding"
	PerformanceExcellent   PerformanceCategory = "excellent"
	PerformanceGood        PerformanceCategory = "good"
	PerformanceAcceptable  PerformanceCategory = "acceptable"
	PerformancePoor        PerformanceCategory = "poor"
)

// performanceTiers is ordered from the highest threshold down.
var performanceTiers = []struct {
	min      float64
	category PerformanceCategory
	score    int
}{
	{200, PerformanceExceptional, 6},
	{100, PerformanceExceeding, 5},
	{90, PerformanceExcellent, 4},
	{70, PerformanceGood, 3},
	{50, PerformanceAcceptable, 2},
}

// CategorizePerformance returns the tier for an efficiency percentage.
func CategorizePerformance(efficiencyPercent float64) PerformanceCategory {
	for _, tier := range performanceTiers {
		if efficiencyPercent >= tier.min {
			return tier.category
		}
	}
	return PerformancePoor
}

// Score returns the numeric rank of a category, poor=1 through exceptional=6.
func (c PerformanceCategory) Score() int {
	for _, tier := range performanceTiers {
		if tier.category == c {
			return tier.score
		}
	}
	return 1
}
