package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/student-records-api/internal/middleware"
	"github.com/noah-isme/student-records-api/internal/models"
)

// currentUserID returns the subject of the verified access token, if any.
func currentUserID(c *gin.Context) (string, bool) {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return "", false
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok || claims.UserID == "" {
		return "", false
	}
	return claims.UserID, true
}
