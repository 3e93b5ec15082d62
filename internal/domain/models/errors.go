package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition indicates the requested edge is not in the lifecycle graph.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrMissingPrerequisite indicates a crop or quantity is required but absent.
	ErrMissingPrerequisite = errors.New("missing prerequisite")
	// ErrCapacityExceeded indicates the requested quantity is above block capacity.
	ErrCapacityExceeded = errors.New("capacity exceeded")
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAggregationTimeout indicates a dashboard computation ran out of time.
	ErrAggregationTimeout = errors.New("aggregation timeout")
	// ErrVersionConflict indicates a concurrent update won the compare-and-swap.
	ErrVersionConflict = errors.New("version conflict")
	// ErrRepositoryUnavailable indicates storage could not be reached. Retryable.
	ErrRepositoryUnavailable = errors.New("repository unavailable")
	// ErrInvalidPeriod indicates an unsupported dashboard period.
	ErrInvalidPeriod = errors.New("invalid period")
	// ErrHarvestNotAllowed indicates a harvest was recorded outside a harvest-capable state.
	ErrHarvestNotAllowed = errors.New("harvest not allowed in current state")
	// ErrInvalidQuantity indicates a negative or otherwise unusable quantity.
	ErrInvalidQuantity = errors.New("invalid quantity")
	// ErrInvalidGrade indicates an unrecognised harvest quality grade.
	ErrInvalidGrade = errors.New("invalid quality grade")
	// ErrDuplicateHarvest indicates a ledger record with the same id already exists.
	ErrDuplicateHarvest = errors.New("harvest already recorded")
)

// TransitionError carries the rejected edge alongside the error class.
type TransitionError struct {
	Kind   error
	From   State
	To     State
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: %s -> %s", e.Kind, e.From, e.To)
	}
	return fmt.Sprintf("%s: %s -> %s: %s", e.Kind, e.From, e.To, e.Reason)
}

// Unwrap exposes the error class to errors.Is.
func (e *TransitionError) Unwrap() error {
	return e.Kind
}

// WarningCode classifies data defects found while computing metrics.
type WarningCode string

const (
	WarningMissingExpectedDate WarningCode = "missing_expected_date"
	WarningMissingHistory      WarningCode = "missing_history"
	WarningUnknownState        WarningCode = "unknown_state"
	WarningNegativeValue       WarningCode = "negative_value"
	WarningOverCapacity        WarningCode = "over_capacity"
)

// DataIntegrityWarning flags a defect that degrades a result without failing it.
type DataIntegrityWarning struct {
	UnitID  string      `json:"unit_id"`
	Code    WarningCode `json:"code"`
	Message string      `json:"message"`
}
