package models

import (
	"math"
	"time"
)

// Block is a bounded cultivation area tracked through the production lifecycle.
//
// PendingHarvests holds harvests not yet written to the ledger. Records of the
// current cycle are exactly what KPI.ActualYield sums; records of a closed
// cycle wait there until the ledger flush moves them out.
type Block struct {
	ID               string              `bson:"_id" json:"id"`
	SiteID           string              `bson:"site_id" json:"site_id"`
	SequenceCode     string              `bson:"sequence_code" json:"sequence_code"`
	State            State               `bson:"state" json:"state"`
	CropID           *string             `bson:"crop_id,omitempty" json:"crop_id,omitempty"`
	AssignedQuantity int                 `bson:"assigned_quantity" json:"assigned_quantity"`
	Capacity         int                 `bson:"capacity" json:"capacity"`
	ExpectedDates    map[State]time.Time `bson:"expected_dates,omitempty" json:"expected_dates,omitempty"`
	History          []StatusChange      `bson:"history" json:"history"`
	KPI              KPI                 `bson:"kpi" json:"kpi"`
	PendingHarvests  []HarvestRecord     `bson:"pending_harvests,omitempty" json:"pending_harvests,omitempty"`
	ActiveAlert      *Alert              `bson:"active_alert,omitempty" json:"active_alert,omitempty"`
	Cycle            int                 `bson:"cycle" json:"cycle"`
	Version          int64               `bson:"version" json:"version"`
	CreatedAt        time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time           `bson:"updated_at" json:"updated_at"`
}

// StatusChange is one append-only entry of a block's transition history.
type StatusChange struct {
	State          State           `bson:"state" json:"state"`
	PreviousState  State           `bson:"previous_state,omitempty" json:"previous_state,omitempty"`
	Timestamp      time.Time       `bson:"timestamp" json:"timestamp"`
	Actor          string          `bson:"actor" json:"actor"`
	Notes          string          `bson:"notes,omitempty" json:"notes,omitempty"`
	ExpectedDate   *time.Time      `bson:"expected_date,omitempty" json:"expected_date,omitempty"`
	OffsetDays     *int            `bson:"offset_days,omitempty" json:"offset_days,omitempty"`
	OffsetCategory *OffsetCategory `bson:"offset_category,omitempty" json:"offset_category,omitempty"`
	Cycle          int             `bson:"cycle" json:"cycle"`
}

// KPI is the current-cycle yield snapshot. Build it through NewKPI so the
// derived fields never drift from the yields.
type KPI struct {
	PredictedYield         float64             `bson:"predicted_yield" json:"predicted_yield"`
	ActualYield            float64             `bson:"actual_yield" json:"actual_yield"`
	YieldEfficiencyPercent float64             `bson:"yield_efficiency_percent" json:"yield_efficiency_percent"`
	PerformanceCategory    PerformanceCategory `bson:"performance_category" json:"performance_category"`
}

// Alert is raised when a block enters the alert state and cleared on resolution.
type Alert struct {
	Severity   Severity  `bson:"severity" json:"severity"`
	Reason     string    `bson:"reason,omitempty" json:"reason,omitempty"`
	RaisedAt   time.Time `bson:"raised_at" json:"raised_at"`
	RaisedFrom State     `bson:"raised_from" json:"raised_from"`
}

// NewKPI derives efficiency and category from the predicted and actual yields.
func NewKPI(predicted, actual float64) KPI {
	efficiency := EfficiencyPercent(actual, predicted)
	return KPI{
		PredictedYield:         predicted,
		ActualYield:            actual,
		YieldEfficiencyPercent: efficiency,
		PerformanceCategory:    CategorizePerformance(efficiency),
	}
}

// EfficiencyPercent returns 100*actual/predicted, or 0 when predicted is not positive.
func EfficiencyPercent(actual, predicted float64) float64 {
	if predicted <= 0 {
		return 0
	}
	return math.Round(actual/predicted*100*100) / 100
}

// HasRealizedYield reports whether the KPI may take part in efficiency averages.
func (k KPI) HasRealizedYield() bool {
	return k.ActualYield > 0 && k.PredictedYield > 0
}

// NewBlock creates a block in the empty state at the start of its first cycle.
func NewBlock(id, siteID, sequenceCode string, capacity int, now time.Time) *Block {
	return &Block{
		ID:           id,
		SiteID:       siteID,
		SequenceCode: sequenceCode,
		State:        StateEmpty,
		Capacity:     capacity,
		History:      []StatusChange{},
		KPI:          NewKPI(0, 0),
		Cycle:        1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// LastTransition returns the newest history entry, or nil for a block that never moved.
func (b *Block) LastTransition() *StatusChange {
	if b == nil || len(b.History) == 0 {
		return nil
	}
	return &b.History[len(b.History)-1]
}

// LastEntered returns the most recent entry into state within the current cycle.
func (b *Block) LastEntered(state State) *StatusChange {
	if b == nil {
		return nil
	}
	for i := len(b.History) - 1; i >= 0; i-- {
		entry := &b.History[i]
		if entry.Cycle != b.Cycle {
			return nil
		}
		if entry.State == state {
			return entry
		}
	}
	return nil
}

// ExpectedDate returns the expected date for state when one is known.
func (b *Block) ExpectedDate(state State) (time.Time, bool) {
	if b == nil || b.ExpectedDates == nil {
		return time.Time{}, false
	}
	date, ok := b.ExpectedDates[state]
	if !ok || date.IsZero() {
		return time.Time{}, false
	}
	return date, true
}

// Clone returns a deep copy so callers can mutate without touching the original.
func (b *Block) Clone() *Block {
	if b == nil {
		return nil
	}
	out := *b
	if b.CropID != nil {
		crop := *b.CropID
		out.CropID = &crop
	}
	if b.ExpectedDates != nil {
		out.ExpectedDates = make(map[State]time.Time, len(b.ExpectedDates))
		for state, date := range b.ExpectedDates {
			out.ExpectedDates[state] = date
		}
	}
	out.History = make([]StatusChange, len(b.History))
	for i, entry := range b.History {
		out.History[i] = entry.clone()
	}
	if b.ActiveAlert != nil {
		alert := *b.ActiveAlert
		out.ActiveAlert = &alert
	}
	if b.PendingHarvests != nil {
		out.PendingHarvests = append([]HarvestRecord(nil), b.PendingHarvests...)
	}
	return &out
}

// UnledgeredHarvests returns pending records of closed cycles, which belong
// in the ledger.
func (b *Block) UnledgeredHarvests() []HarvestRecord {
	return b.pending(func(cycle int) bool { return cycle < b.Cycle })
}

// OpenCycleHarvests returns pending records of the current cycle.
func (b *Block) OpenCycleHarvests() []HarvestRecord {
	return b.pending(func(cycle int) bool { return cycle >= b.Cycle })
}

func (b *Block) pending(keep func(cycle int) bool) []HarvestRecord {
	if b == nil {
		return nil
	}
	var out []HarvestRecord
	for _, record := range b.PendingHarvests {
		if keep(record.Cycle) {
			out = append(out, record)
		}
	}
	return out
}

func (c StatusChange) clone() StatusChange {
	out := c
	if c.ExpectedDate != nil {
		date := *c.ExpectedDate
		out.ExpectedDate = &date
	}
	if c.OffsetDays != nil {
		days := *c.OffsetDays
		out.OffsetDays = &days
	}
	if c.OffsetCategory != nil {
		category := *c.OffsetCategory
		out.OffsetCategory = &category
	}
	return out
}
