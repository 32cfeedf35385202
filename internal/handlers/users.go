package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"neurosphere-backend/internal/services"
)

type UsersHandler struct {
	service *services.ScanService
	logger  *zap.Logger
}

func NewUsersHandler(service *services.ScanService, logger *zap.Logger) *UsersHandler {
	return &UsersHandler{
		service: service,
		logger:  logger,
	}
}

// GetStats godoc
// @Summary     Get user scan statistics
// @Tags        users
// @Produce     json
// @Security    Bearer
// @Success     200 {object} models.StatsResponse
// @Failure     401 {object} models.ErrorResponse
// @Router      /api/users/stats [get]
func (h *UsersHandler) GetStats(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	resp, err := h.service.Stats(c.Request.Context(), p)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
