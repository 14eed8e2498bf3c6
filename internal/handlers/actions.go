package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/PratikDhanave/petcare-telemetry-service/internal/auth"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/models"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/service"
)

// RegisterActionRoutes registers POST /actions.
// The authenticated client is recorded in the actions audit log.
func RegisterActionRoutes(r gin.IRoutes, svc *service.Service) {
	r.POST("/actions", func(c *gin.Context) {
		var req models.ActionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid JSON payload")
			return
		}
		action := strings.TrimSpace(req.Action)
		if action == "" {
			badRequest(c, "action required")
			return
		}

		dash, err := svc.RecordAction(c.Request.Context(), action, auth.ClientID(c))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.ActionResponse{Action: action, Dashboard: dash})
	})
}
