// Package retention periodically purges stored entries older than a maximum age.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/PratikDhanave/petcare-telemetry-service/internal/eventlog"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/metrics"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/store"
)

type Config struct {
	MaxAge time.Duration `yaml:"max_age"`
	Period time.Duration `yaml:"period"`
}

func DefaultConfig() Config {
	return Config{
		MaxAge: 31 * 24 * time.Hour,
		Period: time.Hour,
	}
}

// SweepReport summarizes one pass over the store.
type SweepReport struct {
	Visited  int      `json:"visited"`
	Pruned   int      `json:"pruned"`
	Cleared  int      `json:"cleared"`
	Failures []string `json:"failures,omitempty"`
}

// Janitor sweeps every document. Its writes queue behind live traffic on the
// same per-key locks.
type Janitor struct {
	store   *store.Store
	cfg     Config
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Janitor)

func WithClock(now func() time.Time) Option {
	return func(j *Janitor) { j.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(j *Janitor) { j.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(j *Janitor) { j.metrics = m }
}

func New(s *store.Store, cfg Config, opts ...Option) *Janitor {
	j := &Janitor{
		store:  s,
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(j)
	}
	j.logger = j.logger.With("component", "retention")
	return j
}

// Run sweeps once per period until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) error {
	period := j.cfg.Period
	if period <= 0 {
		period = time.Hour
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	j.logger.Info("retention janitor started", "period", period, "max_age", j.cfg.MaxAge)
	// Sweep on start so frequent restarts still prune.
	j.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep prunes every document once. Failures on one document are logged and
// recorded in the report; the sweep always continues.
func (j *Janitor) Sweep(ctx context.Context) SweepReport {
	var rep SweepReport
	names, err := j.store.List(ctx)
	if err != nil {
		j.logger.Warn("listing documents failed", "error", err)
		return rep
	}

	cutoff := j.now().Add(-j.cfg.MaxAge)
	for _, name := range names {
		if ctx.Err() != nil {
			break
		}
		rep.Visited++
		pruned, cleared, err := j.sweepDocument(ctx, name, cutoff)
		if err != nil {
			j.logger.Warn("retention sweep failed", "document", name, "error", err)
			rep.Failures = append(rep.Failures, name)
			continue
		}
		rep.Pruned += pruned
		if cleared {
			rep.Cleared++
		}
	}

	j.metrics.Sweep(rep.Pruned)
	j.logger.Debug("retention sweep finished",
		"visited", rep.Visited, "pruned", rep.Pruned, "cleared", rep.Cleared, "failures", len(rep.Failures))
	return rep
}

func (j *Janitor) sweepDocument(ctx context.Context, name string, cutoff time.Time) (pruned int, cleared bool, err error) {
	_, err = j.store.Update(ctx, name, func(current any) (any, error) {
		switch v := current.(type) {
		case []any:
			kept, n := pruneEntries(v, cutoff)
			if n == 0 {
				return nil, store.ErrSkipWrite
			}
			pruned = n
			return kept, nil

		case map[string]any:
			if ts, ok := eventlog.Timestamp(v); ok {
				if !ts.Before(cutoff) {
					return nil, store.ErrSkipWrite
				}
				cleared = true
				return map[string]any{}, nil
			}
			out := make(map[string]any, len(v))
			for k, field := range v {
				out[k] = field
				if series, ok := field.([]any); ok {
					kept, n := pruneEntries(series, cutoff)
					if n > 0 {
						out[k] = kept
						pruned += n
					}
				}
			}
			if pruned == 0 {
				return nil, store.ErrSkipWrite
			}
			return out, nil
		}
		return nil, store.ErrSkipWrite
	})
	return pruned, cleared, err
}

// pruneEntries drops object entries dated before cutoff. Undated entries and
// non-object values are kept.
func pruneEntries(entries []any, cutoff time.Time) ([]any, int) {
	kept := make([]any, 0, len(entries))
	for _, e := range entries {
		if obj, ok := e.(map[string]any); ok {
			if ts, ok := eventlog.Timestamp(obj); ok && ts.Before(cutoff) {
				continue
			}
		}
		kept = append(kept, e)
	}
	return kept, len(entries) - len(kept)
}
