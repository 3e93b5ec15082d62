package lifecycle

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mamadbah2/blockfarm/internal/domain/models"
)

const systemActor = "system"

// TransitionRequest carries everything an operator supplies with a transition.
type TransitionRequest struct {
	Target        models.State
	Actor         string
	Notes         string
	EffectiveDate *time.Time

	// Optional assignment fields. Nil means "keep what the block already has".
	CropID               *string
	Quantity             *int
	ExpectedPlantingDate *time.Time

	// Alert fields, only read when Target is alert.
	Severity    models.Severity
	AlertReason string
}

// Engine validates and applies lifecycle transitions. It performs no I/O.
type Engine struct {
	now func() time.Time
}

// NewEngine builds an engine using now as its clock. A nil clock uses UTC wall time.
func NewEngine(now func() time.Time) *Engine {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{now: now}
}

// Apply validates req against block and returns the updated copy with the new
// history entry appended. block itself is never modified; on error nothing changes.
// profile is used to seed predicted yield and expected dates when it matches
// the block's crop; pass nil when no crop lookup was performed.
func (e *Engine) Apply(block *models.Block, req TransitionRequest, profile *models.CropProfile) (*models.Block, error) {
	if block == nil {
		return nil, errors.New("block is nil")
	}

	from, to := block.State, req.Target
	if !from.Valid() {
		return nil, &models.TransitionError{Kind: models.ErrInvalidTransition, From: from, To: to, Reason: "current state is unknown"}
	}
	if !CanTransition(from, to) {
		return nil, &models.TransitionError{Kind: models.ErrInvalidTransition, From: from, To: to}
	}

	now := e.now()
	at := now
	if req.EffectiveDate != nil && !req.EffectiveDate.IsZero() {
		at = *req.EffectiveDate
	}

	next := block.Clone()

	cropChanged := false
	if req.CropID != nil && strings.TrimSpace(*req.CropID) != "" {
		crop := strings.TrimSpace(*req.CropID)
		cropChanged = block.CropID == nil || *block.CropID != crop
		next.CropID = &crop
	}

	quantityChanged := false
	if req.Quantity != nil {
		if *req.Quantity < 0 {
			return nil, &models.TransitionError{Kind: models.ErrInvalidQuantity, From: from, To: to, Reason: fmt.Sprintf("quantity %d is negative", *req.Quantity)}
		}
		quantityChanged = *req.Quantity != block.AssignedQuantity
		next.AssignedQuantity = *req.Quantity
	}
	if next.AssignedQuantity > next.Capacity {
		return nil, &models.TransitionError{
			Kind:   models.ErrCapacityExceeded,
			From:   from,
			To:     to,
			Reason: fmt.Sprintf("quantity %d exceeds capacity %d", next.AssignedQuantity, next.Capacity),
		}
	}

	if to == models.StatePlanted {
		if next.CropID == nil || *next.CropID == "" {
			return nil, &models.TransitionError{Kind: models.ErrMissingPrerequisite, From: from, To: to, Reason: "crop assignment required"}
		}
		if next.AssignedQuantity <= 0 {
			return nil, &models.TransitionError{Kind: models.ErrMissingPrerequisite, From: from, To: to, Reason: "assigned quantity required"}
		}
	}

	if to == models.StateAlert {
		severity := req.Severity
		if severity == "" {
			severity = models.SeverityMedium
		}
		if !severity.Valid() {
			return nil, &models.TransitionError{Kind: models.ErrMissingPrerequisite, From: from, To: to, Reason: fmt.Sprintf("unknown severity %q", severity)}
		}
		next.ActiveAlert = &models.Alert{
			Severity:   severity,
			Reason:     strings.TrimSpace(req.AlertReason),
			RaisedAt:   at,
			RaisedFrom: from,
		}
	} else {
		next.ActiveAlert = nil
	}

	entry := models.StatusChange{
		State:         to,
		PreviousState: from,
		Timestamp:     at,
		Actor:         actorOrSystem(req.Actor),
		Notes:         strings.TrimSpace(req.Notes),
		Cycle:         block.Cycle,
	}

	// Offsets are measured against the schedule in force before this transition.
	if expected, ok := block.ExpectedDate(to); ok {
		offset := DaysBetween(at, expected)
		category := models.ClassifyOffset(offset)
		expectedCopy := expected
		entry.ExpectedDate = &expectedCopy
		entry.OffsetDays = &offset
		entry.OffsetCategory = &category
		entry.Notes = joinNotes(entry.Notes, OffsetNote(offset, expected))
	}

	e.seedSchedule(next, req, profile, at, cropChanged, quantityChanged)

	next.History = append(next.History, entry)
	next.State = to
	next.UpdatedAt = now

	// Every edge into empty ends the cycle: cleaning is the normal close,
	// planned, planted and alert abandon the crop.
	if to == models.StateEmpty {
		closeCycle(next)
	}

	return next, nil
}

// seedSchedule refreshes predicted yield and expected dates once a crop is known.
func (e *Engine) seedSchedule(next *models.Block, req TransitionRequest, profile *models.CropProfile, at time.Time, cropChanged, quantityChanged bool) {
	to := req.Target

	if to == models.StatePlanned && req.ExpectedPlantingDate != nil && !req.ExpectedPlantingDate.IsZero() {
		if next.ExpectedDates == nil {
			next.ExpectedDates = map[models.State]time.Time{}
		}
		next.ExpectedDates[models.StatePlanted] = *req.ExpectedPlantingDate
	}

	if profile == nil || next.CropID == nil || profile.ID != *next.CropID {
		return
	}

	var anchor time.Time
	switch to {
	case models.StatePlanned:
		anchor = at.AddDate(0, 0, DefaultPlanningLeadDays)
		if planted, ok := next.ExpectedDate(models.StatePlanted); ok {
			anchor = planted
		}
	case models.StatePlanted:
		// Re-entering planted from alert keeps the existing schedule unless the
		// assignment changed.
		if next.LastEntered(models.StatePlanted) != nil && !cropChanged && !quantityChanged && len(next.ExpectedDates) > 0 {
			return
		}
		anchor = at
	default:
		if !cropChanged && !quantityChanged && len(next.ExpectedDates) > 0 {
			return
		}
		anchor = at
		if planted := next.LastEntered(models.StatePlanted); planted != nil {
			anchor = planted.Timestamp
		}
	}

	next.ExpectedDates = ExpectedSchedule(*profile, anchor)
	predicted := float64(next.AssignedQuantity) * profile.PredictedYieldPerItem
	next.KPI = models.NewKPI(predicted, next.KPI.ActualYield)
}

// closeCycle archives the finished cycle. Its pending harvests stay on the
// block until they reach the ledger and are no longer represented by the KPI.
func closeCycle(block *models.Block) {
	block.Cycle++
	block.CropID = nil
	block.AssignedQuantity = 0
	block.ExpectedDates = nil
	block.KPI = models.NewKPI(0, 0)
	block.ActiveAlert = nil
}

// OffsetNote renders the human-readable summary appended to transition notes.
func OffsetNote(offset int, expected time.Time) string {
	date := expected.Format("2006-01-02")
	switch models.ClassifyOffset(offset) {
	case models.OffsetEarly:
		return fmt.Sprintf("%d day(s) early versus expected %s", -offset, date)
	case models.OffsetLate:
		return fmt.Sprintf("%d day(s) late versus expected %s", offset, date)
	default:
		return fmt.Sprintf("on time versus expected %s", date)
	}
}

func joinNotes(notes, generated string) string {
	if notes == "" {
		return generated
	}
	return notes + " | " + generated
}

func actorOrSystem(actor string) string {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return systemActor
	}
	return actor
}
