package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/PratikDhanave/petcare-telemetry-service/internal/auth"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/config"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/handlers"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/service"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/stream"
)

// Deps are the components the router serves.
type Deps struct {
	Service  *service.Service
	Hub      *stream.Hub         // optional; disables the live feed when nil
	Gatherer prometheus.Gatherer // defaults to prometheus.DefaultGatherer
	Logger   *slog.Logger
}

// NewRouter wires public endpoints and authenticated APIs.
// Public: /health, /ready, /metrics
// Authenticated: /api/...
func NewRouter(cfg config.Config, d Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger.With("component", "http")))

	// Liveness: confirms the process is running.
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Readiness: confirms the storage backend is reachable.
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		if err := d.Service.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// Auth group resolves the calling client via X-API-Key.
	api := r.Group("/api")
	api.Use(auth.APIKeyMiddleware(cfg.APIKeys))

	handlers.RegisterDocumentRoutes(api, d.Service)
	handlers.RegisterActionRoutes(api, d.Service)
	handlers.RegisterFeedingRoutes(api, d.Service)
	handlers.RegisterNotificationRoutes(api, d.Service, d.Hub)

	return r
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelDebug
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency", time.Since(start),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "error", c.Errors.Last().Err)
		}
		logger.Log(c.Request.Context(), level, "request", attrs...)
	}
}
