package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fitclass-api/internal/middleware"
	"github.com/noah-isme/fitclass-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	claims, ok := middleware.Claims(c)
	if !ok {
		return nil
	}
	return claims
}
