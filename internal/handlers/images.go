package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"neurosphere-backend/internal/services"
)

type ImagesHandler struct {
	service *services.ScanService
	logger  *zap.Logger
}

func NewImagesHandler(service *services.ScanService, logger *zap.Logger) *ImagesHandler {
	return &ImagesHandler{
		service: service,
		logger:  logger,
	}
}

// GetThumbnail godoc
// @Summary     Get scan thumbnail
// @Tags        scans
// @Produce     jpeg
// @Security    Bearer
// @Param       id path string true "Scan ID"
// @Success     200 {file} binary
// @Failure     404 {object} models.ErrorResponse
// @Router      /api/scans/{id}/thumbnail [get]
func (h *ImagesHandler) GetThumbnail(c *gin.Context) {
	h.serve(c, services.ArtifactThumbnail)
}

// GetHeatmap godoc
// @Summary     Get scan heatmap
// @Tags        scans
// @Produce     png
// @Security    Bearer
// @Param       id path string true "Scan ID"
// @Success     200 {file} binary
// @Failure     404 {object} models.ErrorResponse
// @Router      /api/scans/{id}/heatmap [get]
func (h *ImagesHandler) GetHeatmap(c *gin.Context) {
	h.serve(c, services.ArtifactHeatmap)
}

func (h *ImagesHandler) serve(c *gin.Context, kind services.Artifact) {
	p, ok := principal(c)
	if !ok {
		return
	}
	scanID, ok := pathID(c, "id", "scan not found")
	if !ok {
		return
	}

	data, contentType, err := h.service.ScanArtifact(c.Request.Context(), p, scanID, kind)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Header("Cache-Control", "private, max-age=3600")
	c.Data(http.StatusOK, contentType, data)
}
