package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"neurosphere-backend/internal/models"
	"neurosphere-backend/internal/services"
)

type ScansHandler struct {
	service *services.ScanService
	logger  *zap.Logger
}

func NewScansHandler(service *services.ScanService, logger *zap.Logger) *ScansHandler {
	return &ScansHandler{
		service: service,
		logger:  logger,
	}
}

// ListScans godoc
// @Summary     List scans
// @Description Lists the caller's scans, newest first
// @Tags        scans
// @Produce     json
// @Security    Bearer
// @Param       status query string false "Filter by status" Enums(processing, completed, failed)
// @Param       page   query int    false "Page number" default(1)
// @Param       limit  query int    false "Page size" default(10)
// @Success     200 {object} models.ScanListResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     401 {object} models.ErrorResponse
// @Router      /api/scans [get]
func (h *ScansHandler) ListScans(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	page, ok := queryInt(c, "page")
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}

	resp, err := h.service.List(c.Request.Context(), p, services.ListParams{
		Status: c.Query("status"),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetScan godoc
// @Summary     Get scan details
// @Description Returns the full record of a scan including analysis results
// @Tags        scans
// @Produce     json
// @Security    Bearer
// @Param       id path string true "Scan ID"
// @Success     200 {object} models.ScanDetailsResponse
// @Failure     401 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /api/scans/{id} [get]
func (h *ScansHandler) GetScan(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	scanID, ok := pathID(c, "id", "scan not found")
	if !ok {
		return
	}

	resp, err := h.service.Details(c.Request.Context(), p, scanID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// queryInt reads an optional integer query parameter. Absent means zero.
func queryInt(c *gin.Context, key string) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid " + key,
			Message: err.Error(),
		})
		return 0, false
	}
	return n, true
}

// pathID parses a uuid path parameter. Malformed ids cannot name a record, so
// they answer 404.
func pathID(c *gin.Context, key, notFoundMsg string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(key))
	if err != nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: notFoundMsg})
		return uuid.Nil, false
	}
	return id, true
}
