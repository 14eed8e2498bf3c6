package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/PratikDhanave/petcare-telemetry-service/internal/models"
)

// clientCtxKey is the Gin context key used to store the authenticated client name.
const clientCtxKey = "client_id"

// APIKeyMiddleware maps X-API-Key to a client name (the tablet, the firmware,
// the push relay). Browsers cannot set headers on websocket upgrades, so the
// key is also accepted as the api_key query parameter.
func APIKeyMiddleware(keys map[string]string) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := strings.TrimSpace(c.GetHeader("X-API-Key"))
		if apiKey == "" {
			apiKey = strings.TrimSpace(c.Query("api_key"))
		}
		client, ok := keys[apiKey]
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "unauthorized", Code: "unauthorized"})
			return
		}
		c.Set(clientCtxKey, client)
		c.Next()
	}
}

// ClientID returns the authenticated client name from the request context.
func ClientID(c *gin.Context) string {
	v, _ := c.Get(clientCtxKey)
	s, _ := v.(string)
	return s
}
