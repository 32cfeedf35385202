package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"neurosphere-backend/internal/models"
	"neurosphere-backend/internal/services"
)

type VisualizationsHandler struct {
	service *services.ScanService
	logger  *zap.Logger
}

func NewVisualizationsHandler(service *services.ScanService, logger *zap.Logger) *VisualizationsHandler {
	return &VisualizationsHandler{
		service: service,
		logger:  logger,
	}
}

// Visualize godoc
// @Summary     Start 3D visualization
// @Description Starts generating an interactive 3D view of a completed scan
// @Tags        visualizations
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       id      path string                  true  "Scan ID"
// @Param       request body models.VisualizeRequest false "Visualization options"
// @Success     202 {object} models.VisualizeResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     401 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /api/scans/{id}/visualize [post]
func (h *VisualizationsHandler) Visualize(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	scanID, ok := pathID(c, "id", "scan not found")
	if !ok {
		return
	}

	// The body is optional.
	var req models.VisualizeRequest
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "invalid request",
				Message: err.Error(),
			})
			return
		}
	}

	resp, err := h.service.Visualize(c.Request.Context(), p, scanID, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusAccepted, resp)
}

// GetVisualization godoc
// @Summary     Get rendered visualization
// @Description Returns the interactive HTML page of a completed visualization
// @Tags        visualizations
// @Produce     html
// @Security    Bearer
// @Param       id path string true "Visualization ID"
// @Success     200 {string} string "HTML page"
// @Failure     401 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /api/visualizations/{id} [get]
func (h *VisualizationsHandler) GetVisualization(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	vizID, ok := pathID(c, "id", "visualization not found")
	if !ok {
		return
	}

	page, err := h.service.Visualization(c.Request.Context(), p, vizID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}
