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

type UploadHandler struct {
	service        *services.ScanService
	maxUploadBytes int64
	logger         *zap.Logger
}

func NewUploadHandler(service *services.ScanService, maxUploadBytes int64, logger *zap.Logger) *UploadHandler {
	return &UploadHandler{
		service:        service,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// Upload godoc
// @Summary     Upload a scan
// @Description Stores an MRI image and starts asynchronous analysis
// @Tags        scans
// @Accept      multipart/form-data
// @Produce     json
// @Security    Bearer
// @Param       file     formData file   true  "Scan image (.jpg, .jpeg, .png, .dcm)"
// @Param       metadata formData string false "JSON object with patient metadata"
// @Success     202 {object} models.UploadResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     401 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /api/scans/upload [post]
func (h *UploadHandler) Upload(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	file, ok := h.readFile(c)
	if !ok {
		return
	}

	resp, err := h.service.Upload(c.Request.Context(), p, file, c.PostForm("metadata"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusAccepted, resp)
}

// readFile reads the "file" form part, capping the body at the configured
// limit plus room for the multipart envelope.
func (h *UploadHandler) readFile(c *gin.Context) (services.UploadFile, bool) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+1<<20)
	}

	header, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "file too large",
				Message: err.Error(),
			})
			return services.UploadFile{}, false
		}
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "file is required",
			Message: err.Error(),
		})
		return services.UploadFile{}, false
	}

	f, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "failed to open file",
			Message: err.Error(),
		})
		return services.UploadFile{}, false
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "failed to read file",
			Message: err.Error(),
		})
		return services.UploadFile{}, false
	}

	return services.UploadFile{Filename: header.Filename, Data: data}, true
}
