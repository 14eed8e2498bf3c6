package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PratikDhanave/petcare-telemetry-service/internal/models"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/service"
)

// RegisterFeedingRoutes registers POST /feeding/schedule.
func RegisterFeedingRoutes(r gin.IRoutes, svc *service.Service) {
	r.POST("/feeding/schedule", func(c *gin.Context) {
		var req models.FeedingScheduleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid JSON payload")
			return
		}
		// Required fields per contract.
		if req.MealAmount == nil {
			badRequest(c, "mealAmount required")
			return
		}
		if req.Meal1Time == "" {
			badRequest(c, "meal1Time required")
			return
		}

		sc := service.Schedule{
			Meal1Time:  req.Meal1Time,
			Meal2Time:  req.Meal2Time,
			MealAmount: *req.MealAmount,
		}
		if req.Weight != nil {
			sc.Weight = *req.Weight
		}

		saved, err := svc.SaveFeedingSchedule(c.Request.Context(), sc)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, saved)
	})
}
