package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/scolara-dev/admission-api/internal/middleware"
	"github.com/scolara-dev/admission-api/internal/models"
	appErrors "github.com/scolara-dev/admission-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// sessionScope returns the school the caller's session lookups must stay
// within. Superadmins get an empty scope, meaning unrestricted.
func sessionScope(c *gin.Context) (string, error) {
	claims := claimsFromContext(c)
	if claims == nil {
		return "", appErrors.ErrUnauthorized
	}
	if claims.Role == models.RoleSuperAdmin {
		return "", nil
	}
	return claims.SchoolID, nil
}
