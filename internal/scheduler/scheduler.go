package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/blockfarm/internal/config"
	"github.com/mamadbah2/blockfarm/internal/domain/models"
)

const jobTimeout = 2 * time.Minute

// TaskSyncer reconciles pending tasks for every block.
type TaskSyncer interface {
	SyncAll(ctx context.Context) (int, error)
}

// LedgerFlusher moves harvests of closed cycles into the ledger.
type LedgerFlusher interface {
	FlushLedger(ctx context.Context) (int, error)
}

// DigestSender builds and ships the periodic digest.
type DigestSender interface {
	SendDigest(ctx context.Context, period models.Period) error
}

// Scheduler manages scheduled jobs.
type Scheduler struct {
	cron   *cron.Cron
	tasks  TaskSyncer
	ledger LedgerFlusher
	digest DigestSender
	cfg    config.ScheduleConfig
	logger *zap.Logger
}

// NewScheduler creates a scheduler running in the configured timezone.
// ledger and digest may be nil; digest is nil when no sink is configured.
func NewScheduler(cfg config.ScheduleConfig, loc *time.Location, tasks TaskSyncer, ledger LedgerFlusher, digest DigestSender, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}

	return &Scheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		tasks:  tasks,
		ledger: ledger,
		digest: digest,
		cfg:    cfg,
		logger: logger,
	}
}

// Start registers the jobs and starts the cron loop.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler",
		zap.String("task_sync", s.cfg.TaskSyncCron),
		zap.String("ledger_flush", s.cfg.LedgerFlushCron),
		zap.String("digest", s.cfg.DigestCron))

	if s.tasks != nil {
		if _, err := s.cron.AddFunc(s.cfg.TaskSyncCron, s.syncTasks); err != nil {
			return fmt.Errorf("schedule task sync: %w", err)
		}
	}
	if s.ledger != nil {
		if _, err := s.cron.AddFunc(s.cfg.LedgerFlushCron, s.flushLedger); err != nil {
			return fmt.Errorf("schedule ledger flush: %w", err)
		}
	}
	if s.digest != nil {
		if _, err := s.cron.AddFunc(s.cfg.DigestCron, s.sendDigest); err != nil {
			return fmt.Errorf("schedule digest: %w", err)
		}
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

// Entries returns the number of registered jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) syncTasks() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	synced, err := s.tasks.SyncAll(ctx)
	if err != nil {
		s.logger.Error("task sync failed", zap.Int("synced", synced), zap.Error(err))
		return
	}
	s.logger.Info("task sync finished", zap.Int("synced", synced))
}

func (s *Scheduler) flushLedger() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	moved, err := s.ledger.FlushLedger(ctx)
	if err != nil {
		s.logger.Error("ledger flush failed", zap.Int("moved", moved), zap.Error(err))
		return
	}
	if moved > 0 {
		s.logger.Info("ledger flush finished", zap.Int("moved", moved))
	}
}

func (s *Scheduler) sendDigest() {
	s.logger.Info("generating digest")
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if err := s.digest.SendDigest(ctx, models.Period30Days); err != nil {
		s.logger.Error("failed to send digest", zap.Error(err))
		return
	}
	s.logger.Info("digest sent successfully")
}
