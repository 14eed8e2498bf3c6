package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PratikDhanave/petcare-telemetry-service/internal/models"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/service"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/store"
)

// errorStatus maps a core error to its status class and stable code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrInvalidPath):
		return http.StatusBadRequest, "invalid_path"
	case errors.Is(err, store.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, service.ErrUnsupportedAction):
		return http.StatusBadRequest, "unsupported_action"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, store.ErrMalformedJSON):
		return http.StatusInternalServerError, "malformed_json"
	case errors.Is(err, store.ErrWriteFailure):
		return http.StatusInternalServerError, "write_failure"
	}
	return http.StatusInternalServerError, "internal"
}

// abortWithError writes the JSON error body for err.
func abortWithError(c *gin.Context, err error) {
	status, code := errorStatus(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, models.ErrorResponse{Error: err.Error(), Code: code})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{Error: msg, Code: "validation_error"})
}
