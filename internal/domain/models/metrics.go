package models

import (
	"math"
	"time"
)

// UnitMetrics are the derived, read-only figures for one block.
type UnitMetrics struct {
	UnitID                     string                 `json:"unit_id"`
	State                      State                  `json:"state"`
	DaysInCurrentState         *int                   `json:"days_in_current_state"`
	ExpectedNextState          *State                 `json:"expected_next_state"`
	ExpectedNextTransitionDate *time.Time             `json:"expected_next_transition_date"`
	DelayDays                  *int                   `json:"delay_days"`
	IsDelayed                  bool                   `json:"is_delayed"`
	CapacityPercent            float64                `json:"capacity_percent"`
	YieldProgress              float64                `json:"yield_progress"`
	EstimatedFinalYield        float64                `json:"estimated_final_yield"`
	YieldEfficiencyPercent     float64                `json:"yield_efficiency_percent"`
	PerformanceCategory        PerformanceCategory    `json:"performance_category"`
	NextRecommendedAction      string                 `json:"next_recommended_action"`
	Warnings                   []DataIntegrityWarning `json:"warnings,omitempty"`
}

// SiteMetrics are the aggregated figures for one site over a window.
type SiteMetrics struct {
	SiteID                     string                 `json:"site_id"`
	SiteCode                   string                 `json:"site_code"`
	Window                     Window                 `json:"window"`
	UnitCount                  int                    `json:"unit_count"`
	CurrentCycleYield          float64                `json:"current_cycle_yield"`
	LedgerYield                float64                `json:"ledger_yield"`
	TotalYield                 float64                `json:"total_yield"`
	PredictedYield             float64                `json:"predicted_yield"`
	QualifyingUnits            int                    `json:"qualifying_units"`
	QualifyingActualYield      float64                `json:"qualifying_actual_yield"`
	QualifyingPredictedYield   float64                `json:"qualifying_predicted_yield"`
	WeightedEfficiencyPercent  float64                `json:"weighted_efficiency_percent"`
	PerformanceScoreTotal      int                    `json:"performance_score_total"`
	AveragePerformanceScore    float64                `json:"average_performance_score"`
	PerformanceCategory        PerformanceCategory    `json:"performance_category"`
	StateCounts                map[State]int          `json:"state_counts"`
	ActiveAlerts               map[Severity]int       `json:"active_alerts"`
	Warnings                   []DataIntegrityWarning `json:"warnings,omitempty"`
}

// GlobalMetrics are the platform-wide figures recomputed from site totals.
type GlobalMetrics struct {
	Window                    Window                 `json:"window"`
	SiteCount                 int                    `json:"site_count"`
	UnitCount                 int                    `json:"unit_count"`
	CurrentCycleYield         float64                `json:"current_cycle_yield"`
	LedgerYield               float64                `json:"ledger_yield"`
	TotalYield                float64                `json:"total_yield"`
	PredictedYield            float64                `json:"predicted_yield"`
	QualifyingUnits           int                    `json:"qualifying_units"`
	QualifyingActualYield     float64                `json:"qualifying_actual_yield"`
	QualifyingPredictedYield  float64                `json:"qualifying_predicted_yield"`
	WeightedEfficiencyPercent float64                `json:"weighted_efficiency_percent"`
	AveragePerformanceScore   float64                `json:"average_performance_score"`
	PerformanceCategory       PerformanceCategory    `json:"performance_category"`
	StateCounts               map[State]int          `json:"state_counts"`
	ActiveAlerts              map[Severity]int       `json:"active_alerts"`
	Warnings                  []DataIntegrityWarning `json:"warnings,omitempty"`
}

// BlockWithMetrics pairs a stored block with its freshly computed metrics.
type BlockWithMetrics struct {
	Block   *Block      `json:"block"`
	Metrics UnitMetrics `json:"metrics"`
}

// SiteDashboard is the site metrics plus every block's metrics.
type SiteDashboard struct {
	Site  SiteMetrics   `json:"site"`
	Units []UnitMetrics `json:"units"`
}

// Rounded returns a copy with yield sums rounded to two decimals for display.
// Aggregation must use the unrounded values.
func (m SiteMetrics) Rounded() SiteMetrics {
	m.CurrentCycleYield = roundYield(m.CurrentCycleYield)
	m.LedgerYield = roundYield(m.LedgerYield)
	m.TotalYield = roundYield(m.TotalYield)
	m.PredictedYield = roundYield(m.PredictedYield)
	m.QualifyingActualYield = roundYield(m.QualifyingActualYield)
	m.QualifyingPredictedYield = roundYield(m.QualifyingPredictedYield)
	return m
}

func roundYield(v float64) float64 {
	return math.Round(v*100) / 100
}
