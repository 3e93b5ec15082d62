// Package blocks runs the write paths for a block: lifecycle transitions and
// harvest recording.
package blocks

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/blockfarm/internal/domain/lifecycle"
	"github.com/mamadbah2/blockfarm/internal/domain/models"
	"github.com/mamadbah2/blockfarm/internal/repository"
	"github.com/mamadbah2/blockfarm/internal/service/analytics"
	"github.com/mamadbah2/blockfarm/internal/telemetry"
)

// maxAttempts bounds the reload-and-retry loop on version conflicts.
const maxAttempts = 3

// CropCatalog resolves crop reference data.
type CropCatalog interface {
	GetCropProfile(ctx context.Context, cropID string) (*models.CropProfile, error)
}

// TaskSyncer reconciles tasks after a block changed.
type TaskSyncer interface {
	Sync(ctx context.Context, block *models.Block) ([]models.PendingTask, error)
}

// Service coordinates the engine with storage.
type Service struct {
	units    repository.UnitRepository
	harvests repository.HarvestRepository
	catalog  CropCatalog
	tasks    TaskSyncer
	engine   *lifecycle.Engine
	metrics  *telemetry.Registry
	logger   *zap.Logger
	now      func() time.Time
}

// NewService wires a block service. catalog, tasks and metrics may be nil.
func NewService(
	units repository.UnitRepository,
	harvests repository.HarvestRepository,
	catalog CropCatalog,
	tasks TaskSyncer,
	metrics *telemetry.Registry,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		units:    units,
		harvests: harvests,
		catalog:  catalog,
		tasks:    tasks,
		metrics:  metrics,
		logger:   logger,
	}
	return s.WithClock(func() time.Time { return time.Now().UTC() })
}

// WithClock overrides the time source for both the service and its engine.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.engine = lifecycle.NewEngine(now)
	return s
}

// NewUnit describes a block to register.
type NewUnit struct {
	SiteID       string
	SequenceCode string
	Capacity     int
}

// Register creates an empty block at the start of its first cycle.
func (s *Service) Register(ctx context.Context, in NewUnit) (*models.BlockWithMetrics, error) {
	if strings.TrimSpace(in.SiteID) == "" || strings.TrimSpace(in.SequenceCode) == "" {
		return nil, fmt.Errorf("site id and sequence code required: %w", models.ErrMissingPrerequisite)
	}
	if in.Capacity < 0 {
		return nil, fmt.Errorf("capacity %d: %w", in.Capacity, models.ErrInvalidQuantity)
	}

	block := models.NewBlock(uuid.NewString(), in.SiteID, in.SequenceCode, in.Capacity, s.now())
	if err := s.units.Create(ctx, block); err != nil {
		return nil, fmt.Errorf("create block: %w", err)
	}
	s.logger.Info("block registered",
		zap.String("unit_id", block.ID),
		zap.String("site_id", block.SiteID),
		zap.String("sequence_code", block.SequenceCode),
	)
	return s.withMetrics(block), nil
}

// Get returns the block with freshly computed metrics.
func (s *Service) Get(ctx context.Context, unitID string) (*models.BlockWithMetrics, error) {
	block, err := s.units.Get(ctx, unitID)
	if err != nil {
		return nil, err
	}
	return s.withMetrics(block), nil
}

// Tasks syncs and returns the block's open tasks.
func (s *Service) Tasks(ctx context.Context, unitID string) ([]models.PendingTask, error) {
	if s.tasks == nil {
		return nil, nil
	}
	block, err := s.units.Get(ctx, unitID)
	if err != nil {
		return nil, err
	}
	return s.tasks.Sync(ctx, block)
}

// Transition applies req to the block and stores it. A lost compare-and-swap
// reloads the block and re-validates, up to maxAttempts times.
func (s *Service) Transition(ctx context.Context, unitID string, req lifecycle.TransitionRequest) (*models.BlockWithMetrics, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		block, err := s.units.Get(ctx, unitID)
		if err != nil {
			return nil, err
		}

		profile, err := s.profileFor(ctx, block, req)
		if err != nil {
			s.metrics.RecordTransition(string(block.State), string(req.Target), "rejected")
			return nil, err
		}

		next, err := s.engine.Apply(block, req, profile)
		if err != nil {
			s.metrics.RecordTransition(string(block.State), string(req.Target), "rejected")
			s.logger.Info("transition rejected",
				zap.String("unit_id", unitID),
				zap.String("from", string(block.State)),
				zap.String("to", string(req.Target)),
				zap.Error(err),
			)
			return nil, err
		}

		saved, err := s.units.SaveTransition(ctx, next, *next.LastTransition(), block.Version)
		if errors.Is(err, models.ErrVersionConflict) {
			s.metrics.RecordTransition(string(block.State), string(req.Target), "conflict")
			s.logger.Debug("transition lost race, retrying", zap.String("unit_id", unitID), zap.Int("attempt", attempt))
			lastErr = err
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("save transition: %w", err)
		}

		s.metrics.RecordTransition(string(block.State), string(req.Target), "ok")
		entry := saved.LastTransition()
		fields := []zap.Field{
			zap.String("unit_id", unitID),
			zap.String("from", string(entry.PreviousState)),
			zap.String("to", string(entry.State)),
			zap.String("actor", entry.Actor),
			zap.Int("cycle", entry.Cycle),
		}
		if entry.OffsetDays != nil {
			fields = append(fields, zap.Int("offset_days", *entry.OffsetDays), zap.String("offset", string(*entry.OffsetCategory)))
		}
		s.logger.Info("block transitioned", fields...)

		if flushedBlock, _, err := s.flushLedger(ctx, saved); err != nil {
			s.logger.Warn("ledger flush after transition failed", zap.String("unit_id", unitID), zap.Error(err))
		} else {
			saved = flushedBlock
		}

		s.syncTasks(ctx, saved)
		return s.withMetrics(saved), nil
	}
	return nil, fmt.Errorf("transition %s after %d attempts: %w", unitID, maxAttempts, lastErr)
}

// profileFor looks up the crop the block will carry after req, if any.
func (s *Service) profileFor(ctx context.Context, block *models.Block, req lifecycle.TransitionRequest) (*models.CropProfile, error) {
	if s.catalog == nil || req.Target == models.StateEmpty || req.Target == models.StateAlert {
		return nil, nil
	}

	cropID := ""
	if req.CropID != nil {
		cropID = strings.TrimSpace(*req.CropID)
	}
	if cropID == "" && block.CropID != nil {
		cropID = *block.CropID
	}
	if cropID == "" {
		return nil, nil
	}

	profile, err := s.catalog.GetCropProfile(ctx, cropID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, &models.TransitionError{
			Kind:   models.ErrMissingPrerequisite,
			From:   block.State,
			To:     req.Target,
			Reason: fmt.Sprintf("unknown crop %q", cropID),
		}
	}
	if err != nil {
		return nil, fmt.Errorf("get crop profile: %w", err)
	}
	return profile, nil
}

// HarvestInput is one harvest to record against a block.
type HarvestInput struct {
	Quantity   float64
	Grade      models.QualityGrade
	Date       *time.Time
	RecordedBy string
}

// HarvestResult is the recorded harvest plus the block after its KPI update.
type HarvestResult struct {
	Record models.HarvestRecord     `json:"record"`
	Unit   *models.BlockWithMetrics `json:"unit"`
}

// RecordHarvest adds the quantity to the current-cycle KPI and parks the
// record on the block in the same write. The ledger receives it once the
// cycle closes, so a record is counted by the KPI or by the ledger, never both.
func (s *Service) RecordHarvest(ctx context.Context, unitID string, in HarvestInput) (*HarvestResult, error) {
	if in.Quantity < 0 || math.IsNaN(in.Quantity) || math.IsInf(in.Quantity, 0) {
		return nil, fmt.Errorf("harvest quantity %v: %w", in.Quantity, models.ErrInvalidQuantity)
	}
	if in.Grade == "" {
		in.Grade = models.GradeA
	}
	if !in.Grade.Valid() {
		return nil, fmt.Errorf("grade %q: %w", in.Grade, models.ErrInvalidGrade)
	}

	date := s.now()
	if in.Date != nil && !in.Date.IsZero() {
		date = *in.Date
	}
	record := models.HarvestRecord{
		ID:         uuid.NewString(),
		UnitID:     unitID,
		Date:       date,
		Quantity:   in.Quantity,
		Grade:      in.Grade,
		RecordedBy: strings.TrimSpace(in.RecordedBy),
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		block, err := s.units.Get(ctx, unitID)
		if err != nil {
			return nil, err
		}
		if !models.HarvestCapable(block.State) {
			return nil, fmt.Errorf("block %s is %s: %w", unitID, block.State, models.ErrHarvestNotAllowed)
		}

		record.SiteID = block.SiteID
		record.Cycle = block.Cycle

		next := block.Clone()
		next.KPI = models.NewKPI(block.KPI.PredictedYield, block.KPI.ActualYield+record.Quantity)
		next.PendingHarvests = append(next.PendingHarvests, record)
		next.UpdatedAt = s.now()

		saved, err := s.units.UpdateKPI(ctx, next, block.Version)
		if errors.Is(err, models.ErrVersionConflict) {
			s.logger.Debug("harvest lost race, retrying", zap.String("unit_id", unitID), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("update kpi: %w", err)
		}

		s.metrics.RecordHarvest(record.Quantity)
		s.logger.Info("harvest recorded",
			zap.String("unit_id", unitID),
			zap.String("harvest_id", record.ID),
			zap.Float64("quantity", record.Quantity),
			zap.String("grade", string(record.Grade)),
			zap.Int("cycle", record.Cycle),
		)
		return &HarvestResult{Record: record, Unit: s.withMetrics(saved)}, nil
	}
	return nil, fmt.Errorf("record harvest for %s after %d attempts: %w", unitID, maxAttempts, models.ErrVersionConflict)
}

// FlushLedger moves the harvests of closed cycles from every block into the
// ledger and reports how many records it wrote.
func (s *Service) FlushLedger(ctx context.Context) (int, error) {
	blocks, err := s.units.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("list blocks: %w", err)
	}

	var (
		total int
		errs  []error
	)
	for _, block := range blocks {
		_, n, err := s.flushLedger(ctx, block)
		total += n
		if err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", block.ID, err))
		}
	}
	if total > 0 {
		s.logger.Info("ledger flushed", zap.Int("records", total))
	}
	return total, errors.Join(errs...)
}

// flushLedger appends block's closed-cycle harvests to the ledger and then
// drops them from the block. Appends are idempotent on record id, so a flush
// interrupted between the two steps is safe to repeat.
func (s *Service) flushLedger(ctx context.Context, block *models.Block) (*models.Block, int, error) {
	records := block.UnledgeredHarvests()
	if len(records) == 0 {
		return block, 0, nil
	}

	flushed := make(map[string]struct{}, len(records))
	for _, record := range records {
		err := s.harvests.Append(ctx, record)
		if err != nil && !errors.Is(err, models.ErrDuplicateHarvest) {
			return block, 0, fmt.Errorf("append harvest: %w", err)
		}
		flushed[record.ID] = struct{}{}
	}

	current := block
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var remaining []models.HarvestRecord
		for _, record := range current.PendingHarvests {
			if _, ok := flushed[record.ID]; !ok {
				remaining = append(remaining, record)
			}
		}
		next := current.Clone()
		next.PendingHarvests = remaining

		saved, err := s.units.UpdateKPI(ctx, next, current.Version)
		if err == nil {
			s.logger.Debug("harvests moved to ledger", zap.String("unit_id", block.ID), zap.Int("records", len(flushed)))
			return saved, len(flushed), nil
		}
		if !errors.Is(err, models.ErrVersionConflict) {
			return block, 0, fmt.Errorf("clear pending harvests: %w", err)
		}

		current, err = s.units.Get(ctx, block.ID)
		if err != nil {
			return block, 0, err
		}
	}
	return block, 0, fmt.Errorf("clear pending harvests for %s after %d attempts: %w", block.ID, maxAttempts, models.ErrVersionConflict)
}

func (s *Service) syncTasks(ctx context.Context, block *models.Block) {
	if s.tasks == nil {
		return
	}
	if _, err := s.tasks.Sync(ctx, block); err != nil {
		s.logger.Warn("task sync after transition failed", zap.String("unit_id", block.ID), zap.Error(err))
	}
}

func (s *Service) withMetrics(block *models.Block) *models.BlockWithMetrics {
	return &models.BlockWithMetrics{Block: block, Metrics: analytics.Calculate(block, s.now())}
}
