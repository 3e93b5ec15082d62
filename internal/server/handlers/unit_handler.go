package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/blockfarm/internal/domain/lifecycle"
	"github.com/mamadbah2/blockfarm/internal/domain/models"
	"github.com/mamadbah2/blockfarm/internal/service/blocks"
)

// UnitService is the block write and read surface used by UnitHandler.
type UnitService interface {
	Register(ctx context.Context, in blocks.NewUnit) (*models.BlockWithMetrics, error)
	Get(ctx context.Context, unitID string) (*models.BlockWithMetrics, error)
	Tasks(ctx context.Context, unitID string) ([]models.PendingTask, error)
	Transition(ctx context.Context, unitID string, req lifecycle.TransitionRequest) (*models.BlockWithMetrics, error)
	RecordHarvest(ctx context.Context, unitID string, in blocks.HarvestInput) (*blocks.HarvestResult, error)
}

// UnitHandler serves the /units routes.
type UnitHandler struct {
	svc    UnitService
	logger *zap.Logger
}

// NewUnitHandler constructs the HTTP handler adapter.
func NewUnitHandler(svc UnitService, logger *zap.Logger) *UnitHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UnitHandler{svc: svc, logger: logger}
}

type registerUnitRequest struct {
	SiteID       string `json:"site_id" binding:"required"`
	SequenceCode string `json:"sequence_code" binding:"required"`
	Capacity     int    `json:"capacity" binding:"min=0"`
}

type transitionRequest struct {
	Target               string     `json:"target" binding:"required"`
	Actor                string     `json:"actor"`
	Notes                string     `json:"notes" binding:"max=1000"`
	EffectiveDate        *time.Time `json:"effective_date"`
	CropID               *string    `json:"crop_id"`
	Quantity             *int       `json:"quantity"`
	ExpectedPlantingDate *time.Time `json:"expected_planting_date"`
	Severity             string     `json:"severity"`
	AlertReason          string     `json:"alert_reason"`
}

type harvestRequest struct {
	Quantity   *float64   `json:"quantity" binding:"required"`
	Grade      string     `json:"grade"`
	Date       *time.Time `json:"date"`
	RecordedBy string     `json:"recorded_by"`
}

// Register creates a new empty block.
func (h *UnitHandler) Register(c *gin.Context) {
	var req registerUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "invalid request body", err)
		return
	}

	unit, err := h.svc.Register(c.Request.Context(), blocks.NewUnit{
		SiteID:       req.SiteID,
		SequenceCode: req.SequenceCode,
		Capacity:     req.Capacity,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, unit)
}

// Get returns a block with its metrics.
func (h *UnitHandler) Get(c *gin.Context) {
	unit, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, unit)
}

// Tasks returns the block's open tasks after a sync.
func (h *UnitHandler) Tasks(c *gin.Context) {
	tasks, err := h.svc.Tasks(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if tasks == nil {
		tasks = []models.PendingTask{}
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// Transition moves a block to a new state.
func (h *UnitHandler) Transition(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "invalid request body", err)
		return
	}
	target, ok := models.ParseState(req.Target)
	if !ok {
		badRequest(c, h.logger, fmt.Sprintf("unknown target state %q", req.Target), nil)
		return
	}

	unit, err := h.svc.Transition(c.Request.Context(), c.Param("id"), lifecycle.TransitionRequest{
		Target:               target,
		Actor:                req.Actor,
		Notes:                req.Notes,
		EffectiveDate:        req.EffectiveDate,
		CropID:               req.CropID,
		Quantity:             req.Quantity,
		ExpectedPlantingDate: req.ExpectedPlantingDate,
		Severity:             models.Severity(req.Severity),
		AlertReason:          req.AlertReason,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, unit)
}

// RecordHarvest appends a harvest to the ledger.
func (h *UnitHandler) RecordHarvest(c *gin.Context) {
	var req harvestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "invalid request body", err)
		return
	}

	result, err := h.svc.RecordHarvest(c.Request.Context(), c.Param("id"), blocks.HarvestInput{
		Quantity:   *req.Quantity,
		Grade:      models.QualityGrade(req.Grade),
		Date:       req.Date,
		RecordedBy: req.RecordedBy,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}
