package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fitclass-api/internal/models"
	appErrors "github.com/noah-isme/fitclass-api/pkg/errors"
	"github.com/noah-isme/fitclass-api/pkg/response"
)

// RequireRoles lets the request through when the caller holds one of roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireSelfOrRoles admits callers whose user id equals the :param path value,
// or who hold one of roles. Trainers use it to read only their own schedule.
func RequireSelfOrRoles(param string, roles ...models.UserRole) gin.HandlerFunc {
	byRole := RequireRoles(roles...)
	return func(c *gin.Context) {
		claims, ok := Claims(c)
		if ok && claims.UserID != "" && claims.UserID == c.Param(param) {
			c.Next()
			return
		}
		byRole(c)
	}
}
