package models

import "time"

// QualityGrade grades a harvested lot.
type QualityGrade string

const (
	GradeA      QualityGrade = "A"
	GradeB      QualityGrade = "B"
	GradeC      QualityGrade = "C"
	GradeReject QualityGrade = "reject"
)

// Valid reports whether the grade is recognised.
func (g QualityGrade) Valid() bool {
	switch g {
	case GradeA, GradeB, GradeC, GradeReject:
		return true
	default:
		return false
	}
}

// HarvestRecord is an immutable ledger entry of realized yield.
type HarvestRecord struct {
	ID         string       `bson:"_id" json:"id"`
	UnitID     string       `bson:"unit_id" json:"unit_id"`
	SiteID     string       `bson:"site_id" json:"site_id"`
	Cycle      int          `bson:"cycle" json:"cycle"`
	Date       time.Time    `bson:"date" json:"date"`
	Quantity   float64      `bson:"quantity" json:"quantity"`
	Grade      QualityGrade `bson:"grade" json:"grade"`
	RecordedBy string       `bson:"recorded_by,omitempty" json:"recorded_by,omitempty"`
}

// HarvestCapable reports whether a block in state may record harvests.
func HarvestCapable(state State) bool {
	return state == StateHarvesting || state == StateFruiting
}

// Window is an inclusive time range. A zero Start means unbounded.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls within the window.
func (w Window) Contains(t time.Time) bool {
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && t.After(w.End) {
		return false
	}
	return true
}
