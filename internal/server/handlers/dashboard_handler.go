package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/blockfarm/internal/domain/models"
)

// DashboardService builds dashboards for a resolved window.
type DashboardService interface {
	SiteDashboard(ctx context.Context, siteID string, window models.Window) (*models.SiteDashboard, error)
	GlobalDashboard(ctx context.Context, window models.Window) (*models.GlobalMetrics, error)
	Now() time.Time
}

// DashboardHandler serves the dashboard routes.
type DashboardHandler struct {
	svc    DashboardService
	logger *zap.Logger
}

// NewDashboardHandler constructs the HTTP handler adapter.
func NewDashboardHandler(svc DashboardService, logger *zap.Logger) *DashboardHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardHandler{svc: svc, logger: logger}
}

// Site returns one site's dashboard for ?period=.
func (h *DashboardHandler) Site(c *gin.Context) {
	window, ok := h.window(c)
	if !ok {
		return
	}

	out, err := h.svc.SiteDashboard(c.Request.Context(), c.Param("id"), window)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// Global returns the platform dashboard for ?period=.
func (h *DashboardHandler) Global(c *gin.Context) {
	window, ok := h.window(c)
	if !ok {
		return
	}

	out, err := h.svc.GlobalDashboard(c.Request.Context(), window)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *DashboardHandler) window(c *gin.Context) (models.Window, bool) {
	period := models.Period(c.DefaultQuery("period", string(models.DefaultPeriod)))
	window, err := models.ResolvePeriod(period, h.svc.Now())
	if err != nil {
		writeError(c, h.logger, err)
		return models.Window{}, false
	}
	return window, true
}
