package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/quillforge/proposal-api/internal/service"
	appErrors "github.com/quillforge/proposal-api/pkg/errors"
	"github.com/quillforge/proposal-api/pkg/response"
)

// ContextUserKey is the gin context key under which validated claims live.
const ContextUserKey = "currentUser"

// JWT rejects requests that do not carry a valid bearer access token and
// stores the parsed claims for downstream handlers.
func JWT(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing or malformed authorization header"))
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(raw)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return token, true
}
