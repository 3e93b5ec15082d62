package sheets

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/mamadbah2/blockfarm/internal/config"
	"github.com/mamadbah2/blockfarm/internal/domain/models"
)

// DashboardRange is where site snapshots are appended, one row per site.
const DashboardRange = "Dashboard!A:J"

// RowAppender appends rows to a spreadsheet range.
type RowAppender interface {
	AppendRows(ctx context.Context, sheetRange string, rows [][]interface{}) error
}

// GoogleSheetWriter implements RowAppender using the official Google Sheets API.
type GoogleSheetWriter struct {
	service       *sheetsapi.Service
	spreadsheetID string
	logger        *zap.Logger
}

// NewGoogleSheetWriter builds a Google Sheets backed writer.
func NewGoogleSheetWriter(ctx context.Context, cfg config.SheetsConfig, logger *zap.Logger) (*GoogleSheetWriter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	service, err := sheetsapi.NewService(ctx, option.WithCredentialsFile(cfg.CredentialsPath), option.WithScopes(sheetsapi.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sheets client: %w", err)
	}

	return &GoogleSheetWriter{
		service:       service,
		spreadsheetID: cfg.SpreadsheetID,
		logger:        logger,
	}, nil
}

// AppendRows appends rows below the data already in sheetRange.
func (w *GoogleSheetWriter) AppendRows(ctx context.Context, sheetRange string, rows [][]interface{}) error {
	if sheetRange == "" {
		return fmt.Errorf("sheetRange must not be empty")
	}
	if len(rows) == 0 {
		return nil
	}

	payload := &sheetsapi.ValueRange{Values: rows}

	call := w.service.Spreadsheets.Values.Append(w.spreadsheetID, sheetRange, payload).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx)

	if _, err := call.Do(); err != nil {
		return fmt.Errorf("append rows into range %s: %w", sheetRange, err)
	}

	w.logger.Debug("rows appended to sheet", zap.String("range", sheetRange), zap.Int("rows", len(rows)))
	return nil
}

// SnapshotExporter writes site metrics to the dashboard sheet.
type SnapshotExporter struct {
	writer RowAppender
	logger *zap.Logger
}

// NewSnapshotExporter wraps writer.
func NewSnapshotExporter(writer RowAppender, logger *zap.Logger) *SnapshotExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotExporter{writer: writer, logger: logger}
}

// ExportSites appends one row per site stamped with at.
func (e *SnapshotExporter) ExportSites(ctx context.Context, at time.Time, sites []models.SiteMetrics) error {
	rows := make([][]interface{}, 0, len(sites))
	for _, site := range sites {
		rows = append(rows, SnapshotRow(at, site))
	}
	if err := e.writer.AppendRows(ctx, DashboardRange, rows); err != nil {
		return fmt.Errorf("export site snapshots: %w", err)
	}
	e.logger.Info("site snapshots exported", zap.Int("sites", len(sites)))
	return nil
}

// SnapshotRow lays out a site as: date, site code, units, current-cycle yield,
// ledger yield, total yield, predicted yield, weighted efficiency, average
// score, category.
func SnapshotRow(at time.Time, site models.SiteMetrics) []interface{} {
	return []interface{}{
		at.Format("2006-01-02"),
		site.SiteCode,
		site.UnitCount,
		site.CurrentCycleYield,
		site.LedgerYield,
		site.TotalYield,
		site.PredictedYield,
		site.WeightedEfficiencyPercent,
		site.AveragePerformanceScore,
		string(site.PerformanceCategory),
	}
}
