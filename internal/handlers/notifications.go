package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PratikDhanave/petcare-telemetry-service/internal/auth"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/models"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/service"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/stream"
)

// RegisterNotificationRoutes registers the push acknowledgement endpoint and,
// when hub is non-nil, the live websocket feed.
//
// POST /notifications/pushed  {"times": [...]}
// GET  /notifications/stream  websocket
func RegisterNotificationRoutes(r gin.IRoutes, svc *service.Service, hub *stream.Hub) {
	r.POST("/notifications/pushed", func(c *gin.Context) {
		var req models.PushAckRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid JSON payload")
			return
		}
		if req.Times == nil {
			badRequest(c, "times required")
			return
		}

		n, err := svc.AcknowledgeNotificationsPushed(c.Request.Context(), req.Times)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.PushAckResponse{Acknowledged: n})
	})

	if hub == nil {
		return
	}
	r.GET("/notifications/stream", func(c *gin.Context) {
		// Upgrade writes its own error response.
		if err := hub.ServeWS(c.Writer, c.Request, auth.ClientID(c)); err != nil {
			_ = c.Error(err)
		}
	})
}
