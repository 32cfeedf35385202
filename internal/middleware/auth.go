package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"neurosphere-backend/internal/auth"
	"neurosphere-backend/internal/models"
)

const (
	UserIDKey    = "user_id"
	PrincipalKey = "principal"
)

// AuthMiddleware validates the bearer credential of every request. With
// required=false a missing Authorization header is handed to the validator as
// an empty credential, which only the none validator accepts.
func AuthMiddleware(validator auth.Validator, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" && required {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "missing authorization header"})
			return
		}

		var token string
		if authHeader != "" {
			// Extract token from "Bearer <token>"
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "invalid authorization header format"})
				return
			}
			token = strings.TrimSpace(parts[1])
		}

		principal, err := validator.Validate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Error:   "invalid token",
				Message: err.Error(),
			})
			return
		}

		c.Set(UserIDKey, principal.UserID)
		c.Set(PrincipalKey, principal)
		c.Request = c.Request.WithContext(auth.NewContext(c.Request.Context(), principal))
		c.Next()
	}
}

// PrincipalFrom returns the principal stored by AuthMiddleware.
func PrincipalFrom(c *gin.Context) (auth.Principal, bool) {
	val, exists := c.Get(PrincipalKey)
	if !exists {
		return auth.Principal{}, false
	}
	p, ok := val.(auth.Principal)
	return p, ok
}
