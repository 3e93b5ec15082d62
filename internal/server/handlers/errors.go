package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/blockfarm/internal/domain/models"
)

var errorStatus = []struct {
	target error
	status int
	code   string
}{
	{models.ErrInvalidTransition, http.StatusUnprocessableEntity, "invalid_transition"},
	{models.ErrMissingPrerequisite, http.StatusUnprocessableEntity, "missing_prerequisite"},
	{models.ErrCapacityExceeded, http.StatusUnprocessableEntity, "capacity_exceeded"},
	{models.ErrHarvestNotAllowed, http.StatusUnprocessableEntity, "harvest_not_allowed"},
	{models.ErrInvalidQuantity, http.StatusUnprocessableEntity, "invalid_quantity"},
	{models.ErrInvalidGrade, http.StatusUnprocessableEntity, "invalid_grade"},
	{models.ErrNotFound, http.StatusNotFound, "not_found"},
	{models.ErrInvalidPeriod, http.StatusBadRequest, "invalid_period"},
	{models.ErrVersionConflict, http.StatusConflict, "version_conflict"},
	{models.ErrAggregationTimeout, http.StatusGatewayTimeout, "aggregation_timeout"},
	{models.ErrRepositoryUnavailable, http.StatusServiceUnavailable, "repository_unavailable"},
}

// statusFor maps a service error onto an HTTP status and a stable code.
func statusFor(err error) (int, string) {
	for _, candidate := range errorStatus {
		if errors.Is(err, candidate.target) {
			return candidate.status, candidate.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

func writeError(c *gin.Context, logger *zap.Logger, err error) {
	status, code := statusFor(err)
	body := gin.H{"error": err.Error(), "code": code}

	var transitionErr *models.TransitionError
	if errors.As(err, &transitionErr) {
		body["from"] = transitionErr.From
		body["to"] = transitionErr.To
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Int("status", status), zap.Error(err))
		if status == http.StatusInternalServerError {
			body["error"] = "internal error"
		}
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, logger *zap.Logger, message string, err error) {
	logger.Warn(message, zap.Error(err))
	c.JSON(http.StatusBadRequest, gin.H{"error": message, "code": "bad_request"})
}
