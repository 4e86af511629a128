package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/quillforge/proposal-api/internal/middleware"
	"github.com/quillforge/proposal-api/internal/models"
)

// claimsFromContext returns the authenticated claims, or nil on public
// routes and misconfigured chains.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, ok := c.Get(middleware.ContextUserKey)
	if !ok {
		return nil
	}
	claims, _ := value.(*models.JWTClaims)
	return claims
}

// actorID identifies who is acting, for ledger attribution.
func actorID(c *gin.Context) string {
	claims := claimsFromContext(c)
	if claims == nil {
		return ""
	}
	return claims.UserID
}
