// Package reporting renders dashboards into text digests and ships them to
// the configured sinks.
package reporting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/blockfarm/internal/domain/models"
	"github.com/mamadbah2/blockfarm/internal/service/analytics"
)

// MetricsSource yields per-site metrics for a window.
type MetricsSource interface {
	SiteMetrics(ctx context.Context, window models.Window) ([]models.SiteMetrics, error)
	Now() time.Time
}

// Notifier delivers a rendered digest.
type Notifier interface {
	Notify(ctx context.Context, body string) ([]string, error)
}

// Exporter stores site snapshots.
type Exporter interface {
	ExportSites(ctx context.Context, at time.Time, sites []models.SiteMetrics) error
}

// Service builds digests. notifier and exporter are optional.
type Service struct {
	source   MetricsSource
	notifier Notifier
	exporter Exporter
	opts     RenderOptions
	logger   *zap.Logger
}

// NewService wires a reporting service instance.
func NewService(source MetricsSource, notifier Notifier, exporter Exporter, opts RenderOptions, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		source:   source,
		notifier: notifier,
		exporter: exporter,
		opts:     opts,
		logger:   logger,
	}
}

// BuildDigest renders the digest for period without sending it.
func (s *Service) BuildDigest(ctx context.Context, period models.Period) (string, []models.SiteMetrics, error) {
	now := s.source.Now()
	window, err := models.ResolvePeriod(period, now)
	if err != nil {
		return "", nil, err
	}

	sites, err := s.source.SiteMetrics(ctx, window)
	if err != nil {
		return "", nil, fmt.Errorf("load site metrics: %w", err)
	}

	global := analytics.AggregateGlobal(window, sites)
	rounded := make([]models.SiteMetrics, len(sites))
	for i, site := range sites {
		rounded[i] = site.Rounded()
	}
	return FormatGlobalDigest(global, rounded, s.opts), rounded, nil
}

// SendDigest builds the digest, delivers it and exports the snapshots. Sink
// failures are joined; a failing sink does not stop the other.
func (s *Service) SendDigest(ctx context.Context, period models.Period) error {
	digest, sites, err := s.BuildDigest(ctx, period)
	if err != nil {
		return err
	}

	var errs []error
	if s.notifier != nil {
		ids, err := s.notifier.Notify(ctx, digest)
		if err != nil {
			errs = append(errs, fmt.Errorf("deliver digest: %w", err))
		} else {
			s.logger.Info("digest delivered", zap.Int("messages", len(ids)))
		}
	}
	if s.exporter != nil {
		if err := s.exporter.ExportSites(ctx, s.source.Now(), sites); err != nil {
			errs = append(errs, err)
		}
	}
	if s.notifier == nil && s.exporter == nil {
		s.logger.Info("digest built with no sinks configured", zap.Int("sites", len(sites)))
	}

	return errors.Join(errs...)
}
