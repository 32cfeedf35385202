package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"neurosphere-backend/internal/models"
)

// ValidateSession godoc
// @Summary     Validate session
// @Description Reports the identity behind the bearer credential
// @Tags        auth
// @Produce     json
// @Security    Bearer
// @Success     200 {object} models.AuthValidateResponse
// @Failure     401 {object} models.ErrorResponse
// @Router      /api/auth/validate [get]
func ValidateSession(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	permissions := p.Permissions
	if permissions == nil {
		permissions = []string{}
	}
	c.JSON(http.StatusOK, models.AuthValidateResponse{
		IsAuthenticated: true,
		UserID:          p.UserID,
		Permissions:     permissions,
	})
}
