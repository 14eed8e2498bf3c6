// Package service exposes the document, action, feeding and notification
// operations the HTTP layer calls.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/PratikDhanave/petcare-telemetry-service/internal/analytics"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/eventlog"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/ingest"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/notify"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/store"
)

// Snapshotter stores a partial environment-current update and dispatches the
// merged document to detectors; see ingest.Ingestor.
type Snapshotter interface {
	MergeSnapshot(ctx context.Context, partial map[string]any) (any, ingest.Report, error)
}

// FoodAnalyzer recomputes the food section after feeding changes.
type FoodAnalyzer interface {
	RecomputeFood(ctx context.Context) (analytics.FoodAnalysis, error)
}

type Config struct {
	// FoodPortion is the amount in grams one manual dispense adds.
	FoodPortion    float64         `yaml:"food_portion"`
	FeedingHistory eventlog.Policy `yaml:"feeding_history"`
	Actions        eventlog.Policy `yaml:"actions"`
}

func DefaultConfig() Config {
	const day = 24 * time.Hour
	return Config{
		FoodPortion:    20,
		FeedingHistory: eventlog.Policy{Window: 31 * day, MaxCount: 1000},
		Actions:        eventlog.Policy{Window: 31 * day, MaxCount: 500},
	}
}

type Service struct {
	store         *store.Store
	logs          *eventlog.Log
	notifications *notify.Center
	snapshots     Snapshotter
	food          FoodAnalyzer
	cfg           Config
	logger        *slog.Logger
}

type Option func(*Service)

func WithSnapshotter(s Snapshotter) Option {
	return func(svc *Service) { svc.snapshots = s }
}

func WithFoodAnalyzer(a FoodAnalyzer) Option {
	return func(svc *Service) { svc.food = a }
}

func WithLogger(l *slog.Logger) Option {
	return func(svc *Service) { svc.logger = l }
}

func New(s *store.Store, logs *eventlog.Log, center *notify.Center, cfg Config, opts ...Option) *Service {
	svc := &Service{
		store:         s,
		logs:          logs,
		notifications: center,
		cfg:           cfg,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	svc.logger = svc.logger.With("component", "service")
	return svc
}

// Ping reports whether the storage backend is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) GetDocument(ctx context.Context, name string) (any, error) {
	return s.store.Read(ctx, name)
}

// PutDocument fully replaces the named document.
func (s *Service) PutDocument(ctx context.Context, name string, value any) (any, error) {
	return s.store.Write(ctx, name, value)
}

// MergeDocument shallow-merges partial into the named document. A merge into
// the environment-current document is also ingested as a sensor snapshot;
// ingestion failures are logged and do not fail the merge.
func (s *Service) MergeDocument(ctx context.Context, name string, partial any) (any, error) {
	obj, ok := partial.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: merge body must be a JSON object", store.ErrValidation)
	}
	key, err := store.Resolve(name)
	if err != nil {
		return nil, err
	}
	if key != ingest.CurrentDocument || s.snapshots == nil {
		return s.store.Merge(ctx, name, obj)
	}

	merged, rep, err := s.snapshots.MergeSnapshot(ctx, obj)
	if err != nil {
		if !errors.Is(err, ingest.ErrDetector) {
			return nil, err
		}
		s.logger.Warn("snapshot ingested with errors", "error", err)
	}
	if len(rep.Notifications) > 0 {
		s.logger.Info("snapshot raised notifications", "notifications", rep.Notifications)
	}
	return merged, nil
}

func (s *Service) DeleteDocument(ctx context.Context, name string) error {
	return s.store.Remove(ctx, name)
}

func (s *Service) ListDocuments(ctx context.Context) ([]string, error) {
	names, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// AcknowledgeNotificationsPushed marks the notifications with the given
// times as pushed and returns how many changed.
func (s *Service) AcknowledgeNotificationsPushed(ctx context.Context, times []string) (int, error) {
	return s.notifications.AcknowledgePush(ctx, times)
}

func (s *Service) recomputeFood(ctx context.Context) {
	if s.food == nil {
		return
	}
	if _, err := s.food.RecomputeFood(ctx); err != nil {
		s.logger.Warn("food analysis failed", "error", err)
	}
}

// dashboard reads the dashboard document, treating a missing one as empty.
func (s *Service) dashboard(ctx context.Context) (map[string]any, error) {
	v, err := s.store.Read(ctx, ingest.DashboardDocument)
	if errors.Is(err, store.ErrNotFound) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}
	obj, _ := v.(map[string]any)
	if obj == nil {
		obj = map[string]any{}
	}
	return obj, nil
}
