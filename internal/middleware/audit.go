package middleware

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quillforge/proposal-api/internal/models"
	"github.com/quillforge/proposal-api/internal/repository"
)

type auditDetail struct {
	Path      string `json:"path"`
	Method    string `json:"method"`
	Status    int    `json:"status"`
	LatencyMS int64  `json:"latency"`
}

// Audit writes one audit row per successful request on the wrapped route.
// Requests that end in an error status leave no entry.
func Audit(repo *repository.UserRepository, action, resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		status := c.Writer.Status()
		if status >= 400 {
			return
		}

		entry := &models.AuditLog{
			Action:    action,
			Resource:  resource,
			IPAddress: c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
		}
		if claims, ok := c.Get(ContextUserKey); ok {
			if user, ok := claims.(*models.JWTClaims); ok {
				entry.UserID = &user.UserID
			}
		}
		if id := c.Param("id"); id != "" {
			entry.ResourceID = &id
		}
		entry.NewValues, _ = json.Marshal(auditDetail{
			Path:      c.FullPath(),
			Method:    c.Request.Method,
			Status:    status,
			LatencyMS: time.Since(start).Milliseconds(),
		})

		_ = repo.CreateAuditLog(c.Request.Context(), entry)
	}
}
