package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"

	"github.com/mamadbah2/blockfarm/internal/config"
	"github.com/mamadbah2/blockfarm/internal/repository"
	"github.com/mamadbah2/blockfarm/internal/repository/memory"
	"github.com/mamadbah2/blockfarm/internal/repository/mongodb"
	"github.com/mamadbah2/blockfarm/internal/repository/sheets"
	"github.com/mamadbah2/blockfarm/internal/scheduler"
	"github.com/mamadbah2/blockfarm/internal/server/handlers"
	"github.com/mamadbah2/blockfarm/internal/server/router"
	blocksvc "github.com/mamadbah2/blockfarm/internal/service/blocks"
	dashboardsvc "github.com/mamadbah2/blockfarm/internal/service/dashboard"
	reportingsvc "github.com/mamadbah2/blockfarm/internal/service/reporting"
	tasksvc "github.com/mamadbah2/blockfarm/internal/service/tasks"
	"github.com/mamadbah2/blockfarm/internal/telemetry"
	"github.com/mamadbah2/blockfarm/pkg/clients/crops"
	whatsappclient "github.com/mamadbah2/blockfarm/pkg/clients/whatsapp"
	"github.com/mamadbah2/blockfarm/pkg/logger"
)

type stores struct {
	units    repository.UnitRepository
	harvests repository.HarvestRepository
	sites    repository.SiteRepository
	tasks    repository.TaskRepository
	close    func(ctx context.Context) error
}

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.Server.LogLevel))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	loc, err := cfg.Location()
	if err != nil {
		baseLogger.Fatal("invalid timezone", zap.Error(err))
	}

	metrics := telemetry.NewRegistry()

	st, err := openStores(context.Background(), cfg, baseLogger)
	if err != nil {
		baseLogger.Fatal("failed to init storage", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}
	defer func() {
		if err := st.close(context.Background()); err != nil {
			baseLogger.Error("failed to close storage", zap.Error(err))
		}
	}()

	var catalog blocksvc.CropCatalog
	if cfg.Catalog.BaseURL != "" {
		catalog = crops.NewClient(cfg.Catalog.BaseURL, cfg.Catalog.Timeout)
	} else {
		baseLogger.Warn("crop catalog url missing, predicted yields disabled")
	}

	taskSvc := tasksvc.NewService(st.tasks, st.units, metrics, baseLogger.Named("svc.tasks"))
	blockSvc := blocksvc.NewService(st.units, st.harvests, catalog, taskSvc, metrics, baseLogger.Named("svc.blocks"))
	dashboardSvc := dashboardsvc.NewService(st.sites, st.units, st.harvests, cfg.Dashboard.Timeout, metrics, baseLogger.Named("svc.dashboard"))

	var notifier reportingsvc.Notifier
	if cfg.WhatsApp.Enabled() {
		notifier = whatsappclient.NewNotifier(cfg.WhatsApp)
		baseLogger.Info("whatsapp digest delivery enabled")
	}

	var exporter reportingsvc.Exporter
	if cfg.Sheets.Enabled() {
		writer, err := sheets.NewGoogleSheetWriter(context.Background(), cfg.Sheets, baseLogger.Named("repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets writer", zap.Error(err))
		}
		exporter = sheets.NewSnapshotExporter(writer, baseLogger.Named("repo.sheets"))
	}

	opts := reportingsvc.DefaultRenderOptions()
	opts.Location = loc
	reportingSvc := reportingsvc.NewService(dashboardSvc, notifier, exporter, opts, baseLogger.Named("svc.reporting"))

	var digest scheduler.DigestSender
	if notifier != nil || exporter != nil {
		digest = reportingSvc
	}
	sched := scheduler.NewScheduler(cfg.Schedule, loc, taskSvc, blockSvc, digest, baseLogger.Named("scheduler"))
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	engine := router.New(router.Handlers{
		Units:     handlers.NewUnitHandler(blockSvc, baseLogger.Named("handlers.units")),
		Dashboard: handlers.NewDashboardHandler(dashboardSvc, baseLogger.Named("handlers.dashboard")),
		Sites:     handlers.NewSiteHandler(st.sites, baseLogger.Named("handlers.sites")),
		Metrics:   metrics.Handler(),
	}, baseLogger.Named("router"))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Dashboard.Timeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port), zap.String("storage", cfg.Storage.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func openStores(ctx context.Context, cfg *config.Config, log *zap.Logger) (*stores, error) {
	if cfg.Storage.Driver == config.StorageMemory {
		log.Warn("using in-memory storage, data is lost on restart")
		return &stores{
			units:    memory.NewUnitRepository(),
			harvests: memory.NewHarvestRepository(),
			sites:    memory.NewSiteRepository(),
			tasks:    memory.NewTaskRepository(),
			close:    func(context.Context) error { return nil },
		}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	store, err := mongodb.Connect(connectCtx, cfg.MongoDB.URI, cfg.MongoDB.DBName, log.Named("repo.mongodb"))
	if err != nil {
		return nil, err
	}
	if err := store.EnsureIndexes(connectCtx); err != nil {
		_ = store.Close(ctx)
		return nil, err
	}
	return &stores{
		units:    store.Units(),
		harvests: store.Harvests(),
		sites:    store.Sites(),
		tasks:    store.Tasks(),
		close:    store.Close,
	}, nil
}
