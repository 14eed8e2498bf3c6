package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/PratikDhanave/petcare-telemetry-service/internal/models"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/service"
)

// RegisterDocumentRoutes registers the generic document endpoints.
//
// GET    /documents        list names
// GET    /documents/*name  read
// PUT    /documents/*name  full replace
// PATCH  /documents/*name  shallow merge (POST is an alias used by the firmware)
// DELETE /documents/*name  remove
func RegisterDocumentRoutes(r gin.IRoutes, svc *service.Service) {
	r.GET("/documents", func(c *gin.Context) {
		names, err := svc.ListDocuments(c.Request.Context())
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.DocumentListResponse{Documents: names})
	})

	r.GET("/documents/*name", func(c *gin.Context) {
		v, err := svc.GetDocument(c.Request.Context(), documentName(c))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, v)
	})

	r.PUT("/documents/*name", func(c *gin.Context) {
		var body any
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "invalid JSON payload")
			return
		}
		v, err := svc.PutDocument(c.Request.Context(), documentName(c), body)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, v)
	})

	merge := func(c *gin.Context) {
		var body any
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "invalid JSON payload")
			return
		}
		v, err := svc.MergeDocument(c.Request.Context(), documentName(c), body)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, v)
	}
	r.PATCH("/documents/*name", merge)
	r.POST("/documents/*name", merge)

	r.DELETE("/documents/*name", func(c *gin.Context) {
		if err := svc.DeleteDocument(c.Request.Context(), documentName(c)); err != nil {
			abortWithError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}

// documentName strips the leading slash gin keeps on catch-all params.
func documentName(c *gin.Context) string {
	return strings.TrimPrefix(c.Param("name"), "/")
}
