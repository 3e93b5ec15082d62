package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/blockfarm/internal/domain/models"
	"github.com/mamadbah2/blockfarm/internal/repository"
	"github.com/mamadbah2/blockfarm/internal/telemetry"
)

// Service reconciles stored tasks with block state.
type Service struct {
	tasks   repository.TaskRepository
	units   repository.UnitRepository
	metrics *telemetry.Registry
	logger  *zap.Logger
	now     func() time.Time
}

// NewService wires a task service. metrics may be nil.
func NewService(tasks repository.TaskRepository, units repository.UnitRepository, metrics *telemetry.Registry, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		tasks:   tasks,
		units:   units,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source, mainly for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Sync cancels stale tasks, creates missing ones and returns the open list.
func (s *Service) Sync(ctx context.Context, block *models.Block) ([]models.PendingTask, error) {
	open, err := s.tasks.ListOpen(ctx, block.ID)
	if err != nil {
		return nil, fmt.Errorf("list open tasks: %w", err)
	}

	stale := Stale(block, open)
	cancelled := make(map[string]struct{}, len(stale))
	for _, task := range stale {
		if err := s.tasks.Cancel(ctx, task.ID); err != nil {
			return nil, fmt.Errorf("cancel task %s: %w", task.ID, err)
		}
		cancelled[task.ID] = struct{}{}
		s.metrics.RecordTaskCancelled(string(task.Type))
		s.logger.Info("stale task cancelled",
			zap.String("unit_id", block.ID),
			zap.String("task_id", task.ID),
			zap.String("type", string(task.Type)),
		)
	}

	remaining := make([]models.PendingTask, 0, len(open))
	for _, task := range open {
		if _, gone := cancelled[task.ID]; !gone {
			remaining = append(remaining, task)
		}
	}

	for _, task := range Generate(block, remaining, s.now()) {
		task.ID = uuid.NewString()
		created, err := s.tasks.CreateIfAbsent(ctx, task)
		if err != nil {
			return nil, fmt.Errorf("create %s task: %w", task.Type, err)
		}
		if !created {
			continue
		}
		remaining = append(remaining, task)
		s.metrics.RecordTaskCreated(string(task.Type))
		s.logger.Info("task created",
			zap.String("unit_id", block.ID),
			zap.String("task_id", task.ID),
			zap.String("type", string(task.Type)),
		)
	}

	return remaining, nil
}

// SyncAll reconciles tasks for every block. Failures are logged per block and
// counted; the first one is returned after all blocks were attempted.
func (s *Service) SyncAll(ctx context.Context) (int, error) {
	blocks, err := s.units.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("list blocks: %w", err)
	}

	var (
		firstErr error
		synced   int
	)
	for _, block := range blocks {
		if err := ctx.Err(); err != nil {
			return synced, err
		}
		// Unreadable blocks keep their tasks until the document is repaired.
		if !block.State.Valid() {
			s.logger.Warn("task sync skipped, unknown state", zap.String("unit_id", block.ID), zap.String("state", string(block.State)))
			continue
		}
		if _, err := s.Sync(ctx, block); err != nil {
			s.logger.Warn("task sync failed", zap.String("unit_id", block.ID), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		synced++
	}
	return synced, firstErr
}
