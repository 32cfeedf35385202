package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"neurosphere-backend/internal/services"
)

type StatusHandler struct {
	service *services.ScanService
	logger  *zap.Logger
}

func NewStatusHandler(service *services.ScanService, logger *zap.Logger) *StatusHandler {
	return &StatusHandler{
		service: service,
		logger:  logger,
	}
}

// GetStatus godoc
// @Summary     Get scan processing status
// @Description Returns status, stage, progress and estimated seconds remaining
// @Tags        scans
// @Produce     json
// @Security    Bearer
// @Param       id path string true "Scan ID"
// @Success     200 {object} models.StatusResponse
// @Failure     401 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /api/scans/{id}/status [get]
func (h *StatusHandler) GetStatus(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	scanID, ok := pathID(c, "id", "scan not found")
	if !ok {
		return
	}

	resp, err := h.service.Status(c.Request.Context(), p, scanID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
