package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/PratikDhanave/petcare-telemetry-service/internal/analytics"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/config"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/eventlog"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/httpserver"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/ingest"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/metrics"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/notify"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/retention"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/service"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/store"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/stream"
)

// main boots the service: config → storage → components → HTTP server.
func main() {
	// Load runtime config from environment (DATA_DIR, DB_URL, API_KEYS, ...).
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      cfg.LogLevel,
		TimeFormat: time.DateTime,
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("service stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	tuning := cfg.Tuning

	hub := stream.NewHub(stream.WithLogger(logger), stream.WithMetrics(m))
	st := store.New(backend, store.WithLogger(logger), store.WithMetrics(m))
	logs := eventlog.New(st, eventlog.WithMetrics(m))
	center := notify.NewCenter(st, tuning.Notifications,
		notify.WithPublisher(hub), notify.WithLogger(logger), notify.WithMetrics(m))
	engine := analytics.New(st, logs, center, tuning.Analytics,
		analytics.WithLocation(cfg.Location), analytics.WithLogger(logger), analytics.WithMetrics(m))
	ingestor := ingest.New(st, logs, center, tuning.Ingest,
		ingest.WithAnalyzer(engine), ingest.WithLogger(logger), ingest.WithMetrics(m))
	svc := service.New(st, logs, center, tuning.Service,
		service.WithSnapshotter(ingestor), service.WithFoodAnalyzer(engine), service.WithLogger(logger))
	janitor := retention.New(st, tuning.Retention, retention.WithLogger(logger), retention.WithMetrics(m))

	router := httpserver.NewRouter(cfg, httpserver.Deps{
		Service:  svc,
		Hub:      hub,
		Gatherer: reg,
		Logger:   logger,
	})
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return janitor.Run(gctx) })
	g.Go(func() error {
		// Refresh analysis on boot so dashboards have data before the first event.
		engine.RecomputeAll(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("server started", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// openBackend picks Postgres when DB_URL is set and the data directory otherwise.
func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Backend, error) {
	if cfg.DBURL == "" {
		logger.Info("using file storage", "dir", cfg.DataDir)
		return store.NewFileBackend(cfg.DataDir)
	}

	// Connect to durable storage (Postgres) using a connection pool.
	db, err := store.NewPostgresBackend(cfg.DBURL)
	if err != nil {
		return nil, err
	}
	// Ensure the documents table exists on a fresh database.
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("using postgres storage")
	return db, nil
}
