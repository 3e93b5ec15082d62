package models

// State enumerates the lifecycle states a block moves through.
type State string

const (
	StateEmpty      State = "empty"
	StatePlanned    State = "planned"
	StatePlanted    State = "planted"
	StateGrowing    State = "growing"
	StateFruiting   State = "fruiting"
	StateHarvesting State = "harvesting"
	StateCleaning   State = "cleaning"
	StateAlert      State = "alert"

	// StateUnknown is never stored; aggregators use it to bucket malformed blocks.
	StateUnknown State = "unknown"
)

// States lists every storable state in cycle order.
var States = []State{
	StateEmpty,
	StatePlanned,
	StatePlanted,
	StateGrowing,
	StateFruiting,
	StateHarvesting,
	StateCleaning,
	StateAlert,
}

// Valid reports whether s belongs to the closed state set.
func (s State) Valid() bool {
	for _, candidate := range States {
		if s == candidate {
			return true
		}
	}
	return false
}

// ParseState converts free text into a State, returning false when unknown.
func ParseState(value string) (State, bool) {
	s := State(value)
	return s, s.Valid()
}

// OffsetCategory classifies a transition against its expected date.
type OffsetCategory string

const (
	OffsetEarly  OffsetCategory = "early"
	OffsetOnTime OffsetCategory = "on_time"
	OffsetLate   OffsetCategory = "late"
)

// ClassifyOffset maps a signed day offset to its category.
func ClassifyOffset(days int) OffsetCategory {
	switch {
	case days < 0:
		return OffsetEarly
	case days > 0:
		return OffsetLate
	default:
		return OffsetOnTime
	}
}

// Severity describes how urgent an alert is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether the severity is one of the known levels.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}
