package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"neurosphere-backend/internal/services"
)

type MRIHandler struct {
	service *services.ScanService
	upload  *UploadHandler
	logger  *zap.Logger
}

func NewMRIHandler(service *services.ScanService, maxUploadBytes int64, logger *zap.Logger) *MRIHandler {
	return &MRIHandler{
		service: service,
		upload:  NewUploadHandler(service, maxUploadBytes, logger),
		logger:  logger,
	}
}

// Heatmap godoc
// @Summary     Classify an image and return its heatmap
// @Description Runs the classifier once on an uploaded image without creating a scan record
// @Tags        mri
// @Accept      multipart/form-data
// @Produce     json
// @Security    Bearer
// @Param       file formData file true "MRI image (.jpg, .jpeg, .png)"
// @Success     200 {object} models.HeatmapResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /api/mri/heatmap [post]
func (h *MRIHandler) Heatmap(c *gin.Context) {
	file, ok := h.upload.readFile(c)
	if !ok {
		return
	}

	resp, err := h.service.Heatmap(c.Request.Context(), file)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
