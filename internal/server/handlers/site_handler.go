package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/blockfarm/internal/domain/models"
)

// SiteStore persists site definitions.
type SiteStore interface {
	Upsert(ctx context.Context, site models.Site) error
}

// SiteHandler serves site administration routes.
type SiteHandler struct {
	store  SiteStore
	logger *zap.Logger
}

// NewSiteHandler constructs the HTTP handler adapter.
func NewSiteHandler(store SiteStore, logger *zap.Logger) *SiteHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SiteHandler{store: store, logger: logger}
}

type siteRequest struct {
	Code    string   `json:"code" binding:"required"`
	Name    string   `json:"name"`
	UnitIDs []string `json:"unit_ids"`
}

// Put creates or replaces the site at :id.
func (h *SiteHandler) Put(c *gin.Context) {
	var req siteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "invalid request body", err)
		return
	}

	site := models.Site{ID: c.Param("id"), Code: req.Code, Name: req.Name, UnitIDs: req.UnitIDs}
	if site.UnitIDs == nil {
		site.UnitIDs = []string{}
	}
	if err := h.store.Upsert(c.Request.Context(), site); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, site)
}
