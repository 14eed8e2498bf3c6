// Package ingest fans a sensor snapshot out to per-domain detectors that record
// events, raise notifications on state transitions and mirror readings into
// the dashboard document.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/PratikDhanave/petcare-telemetry-service/internal/analytics"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/eventlog"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/metrics"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/sensor"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/store"
)

// ErrDetector marks errors raised by detectors after the snapshot itself was
// stored.
var ErrDetector = errors.New("ingest: detector failed")

// Notifier records an alert; see notify.Center.
type Notifier interface {
	Notify(ctx context.Context, message, typ, pushType string) (bool, error)
}

// Analyzer recomputes derived summaries after relevant events.
type Analyzer interface {
	RecomputeWater(ctx context.Context) (analytics.WaterAnalysis, error)
	RecomputeFood(ctx context.Context) (analytics.FoodAnalysis, error)
}

// Report describes what one snapshot produced.
type Report struct {
	Events        []string `json:"events,omitempty"`
	Notifications []string `json:"notifications,omitempty"`
	Rejected      []string `json:"rejected,omitempty"`
}

// Ingestor owns the sensor state cache. MergeSnapshot and Ingest calls are
// serialized so concurrent uploads cannot lose or double count a transition.
type Ingestor struct {
	store    *store.Store
	logs     *eventlog.Log
	notifier Notifier
	analyzer Analyzer
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu    sync.Mutex
	cache sensor.Cache
}

type Option func(*Ingestor)

func WithAnalyzer(a Analyzer) Option {
	return func(i *Ingestor) { i.analyzer = a }
}

// WithCache seeds the previous-state cache.
func WithCache(c sensor.Cache) Option {
	return func(i *Ingestor) { i.cache = c.Clone() }
}

func WithLogger(l *slog.Logger) Option {
	return func(i *Ingestor) { i.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Ingestor) { i.metrics = m }
}

func New(s *store.Store, logs *eventlog.Log, n Notifier, cfg Config, opts ...Option) *Ingestor {
	i := &Ingestor{
		store:    s,
		logs:     logs,
		notifier: n,
		cfg:      cfg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.logger = i.logger.With("component", "ingest")
	return i
}

// State returns a copy of the previous-state cache.
func (i *Ingestor) State() sensor.Cache {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.cache.Clone()
}

// run carries the per-snapshot working state shared by the detectors.
type run struct {
	ctx       context.Context
	ingestor  *Ingestor
	snap      sensor.Snapshot
	dashboard map[string]any
	report    Report

	waterIntake bool
	feedingDone bool
}

func (r *run) appendEvent(log string, event map[string]any, p eventlog.Policy) error {
	if _, err := r.ingestor.logs.Append(r.ctx, log, event, p); err != nil {
		return err
	}
	r.report.Events = append(r.report.Events, log)
	return nil
}

func (r *run) appendSampled(log string, event map[string]any, p eventlog.Policy, s eventlog.Sampling) error {
	_, outcome, err := r.ingestor.logs.AppendSampled(r.ctx, log, event, p, s)
	if err != nil {
		return err
	}
	if outcome != eventlog.Skipped {
		r.report.Events = append(r.report.Events, log)
	}
	return nil
}

func (r *run) notify(message, typ, pushType string) error {
	if r.ingestor.notifier == nil {
		return nil
	}
	recorded, err := r.ingestor.notifier.Notify(r.ctx, message, typ, pushType)
	if err != nil {
		return err
	}
	if recorded {
		r.report.Notifications = append(r.report.Notifications, message)
	}
	return nil
}

type detector struct {
	name string
	fn   func(*run) error
}

// MergeSnapshot merges partial into the environment-current document and
// ingests the result while holding the ingest lock, so snapshots reach the
// detectors in the order they were stored. A store failure is returned as is
// with a nil document; detector failures wrap ErrDetector.
func (i *Ingestor) MergeSnapshot(ctx context.Context, partial map[string]any) (any, Report, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	merged, err := i.store.Merge(ctx, CurrentDocument, partial)
	if err != nil {
		return nil, Report{}, err
	}
	doc, _ := merged.(map[string]any)
	rep, err := i.ingest(ctx, doc)
	return merged, rep, err
}

// Ingest runs every detector against doc, the merged environment-current
// document. A failing detector is logged and does not stop the others; the
// joined detector errors are returned alongside the report.
func (i *Ingestor) Ingest(ctx context.Context, doc map[string]any) (Report, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.ingest(ctx, doc)
}

func (i *Ingestor) ingest(ctx context.Context, doc map[string]any) (Report, error) {
	snap, rejected := sensor.FromDocument(doc)
	r := &run{
		ctx:       ctx,
		ingestor:  i,
		snap:      snap,
		dashboard: make(map[string]any),
		report:    Report{Rejected: rejected},
	}
	if len(rejected) > 0 {
		i.logger.Warn("ignoring snapshot fields with unusable values", "fields", rejected)
	}

	detectors := []detector{
		{"water", i.detectWater},
		{"motion", i.detectMotion},
		{"bark", i.detectBark},
		{"feeder", i.detectFeeder},
		{"activity", i.detectActivity},
		{"air_quality", i.detectAirQuality},
		{"environment", i.detectEnvironment},
	}

	var errs []error
	for _, d := range detectors {
		if err := d.fn(r); err != nil {
			i.logger.Error("detector failed", "detector", d.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", d.name, err))
		}
	}

	if len(r.dashboard) > 0 {
		if _, err := i.store.Merge(ctx, DashboardDocument, r.dashboard); err != nil {
			i.logger.Error("dashboard mirror failed", "error", err)
			errs = append(errs, fmt.Errorf("dashboard: %w", err))
		}
	}

	if i.analyzer != nil {
		if r.waterIntake {
			if _, err := i.analyzer.RecomputeWater(ctx); err != nil {
				i.logger.Warn("water analysis failed", "error", err)
			}
		}
		if r.feedingDone {
			if _, err := i.analyzer.RecomputeFood(ctx); err != nil {
				i.logger.Warn("food analysis failed", "error", err)
			}
		}
	}

	i.metrics.SnapshotIngested()
	i.logger.Debug("snapshot ingested", "events", r.report.Events, "notifications", len(r.report.Notifications))
	if len(errs) > 0 {
		return r.report, fmt.Errorf("%w: %w", ErrDetector, errors.Join(errs...))
	}
	return r.report, nil
}
