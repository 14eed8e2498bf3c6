// Package notify records deduplicated alerts in the "notifications" document.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/PratikDhanave/petcare-telemetry-service/internal/eventlog"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/metrics"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/store"
)

const DocumentName = "notifications"

// Notification types.
const (
	TypeInfo    = "info"
	TypeWarning = "warning"
	TypeAlert   = "alert"
)

// Push categories. Only these are eligible for mobile push delivery.
const (
	PushWaterLow        = "water_low"
	PushBark            = "bark"
	PushFeedingComplete = "feeding_complete"
	PushAirQuality      = "air_quality"
	PushWaterMissed     = "water_missed"
	PushFoodLow         = "food_low"
)

var pushAllowlist = map[string]bool{
	PushWaterLow:        true,
	PushBark:            true,
	PushFeedingComplete: true,
	PushAirQuality:      true,
	PushWaterMissed:     true,
	PushFoodLow:         true,
}

// PushEligible reports whether pushType belongs to a push category.
func PushEligible(pushType string) bool {
	return pushAllowlist[pushType]
}

// Notification is one entry of the notifications document. Message is its identity.
type Notification struct {
	Message  string `json:"message"`
	Type     string `json:"type"`
	Time     string `json:"time"`
	PushType string `json:"pushType,omitempty"`
	Pushed   bool   `json:"pushed"`
}

// Publisher receives notifications right after they are recorded.
type Publisher interface {
	Publish(n Notification)
}

type Config struct {
	// Suppression is how long an identical message stays deduplicated.
	Suppression time.Duration `yaml:"suppression"`
	MaxEntries  int           `yaml:"max_entries"`
}

func DefaultConfig() Config {
	return Config{Suppression: 6 * time.Hour, MaxEntries: 100}
}

type Center struct {
	store     *store.Store
	cfg       Config
	now       func() time.Time
	publisher Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Center)

func WithClock(now func() time.Time) Option {
	return func(c *Center) { c.now = now }
}

func WithPublisher(p Publisher) Option {
	return func(c *Center) { c.publisher = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Center) { c.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Center) { c.metrics = m }
}

func NewCenter(s *store.Store, cfg Config, opts ...Option) *Center {
	c := &Center{
		store:  s,
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "notify")
	return c
}

// Notify records message unless an identical one is younger than the
// suppression window. It reports whether a new entry was recorded.
func (c *Center) Notify(ctx context.Context, message, typ, pushType string) (bool, error) {
	now := c.now()
	fresh := Notification{
		Message: message,
		Type:    typ,
		Time:    eventlog.FormatTime(now),
	}
	if PushEligible(pushType) {
		fresh.PushType = pushType
	}

	recorded := false
	_, err := c.store.Update(ctx, DocumentName, func(current any) (any, error) {
		list := c.decode(current)

		kept := make([]Notification, 0, len(list)+1)
		kept = append(kept, fresh)
		for _, n := range list {
			if n.Message != message {
				kept = append(kept, n)
				continue
			}
			if ts, ok := eventlog.ParseTime(n.Time); ok && now.Sub(ts) < c.cfg.Suppression {
				return nil, store.ErrSkipWrite
			}
		}
		if c.cfg.MaxEntries > 0 && len(kept) > c.cfg.MaxEntries {
			kept = kept[:c.cfg.MaxEntries]
		}
		recorded = true
		return kept, nil
	})
	if err != nil {
		return false, fmt.Errorf("notify: %w", err)
	}

	c.metrics.Notification(recorded)
	if recorded {
		c.logger.Info("notification recorded", "message", message, "type", typ, "push_type", fresh.PushType)
		if c.publisher != nil {
			c.publisher.Publish(fresh)
		}
	}
	return recorded, nil
}

// AcknowledgePush marks entries with the given exact times as pushed and
// returns how many changed. Already-pushed entries are not counted.
func (c *Center) AcknowledgePush(ctx context.Context, times []string) (int, error) {
	if len(times) == 0 {
		return 0, nil
	}
	want := make(map[string]bool, len(times))
	for _, t := range times {
		want[t] = true
	}

	count := 0
	_, err := c.store.Update(ctx, DocumentName, func(current any) (any, error) {
		list := c.decode(current)
		for i := range list {
			if !list[i].Pushed && want[list[i].Time] {
				list[i].Pushed = true
				count++
			}
		}
		if count == 0 {
			return nil, store.ErrSkipWrite
		}
		return list, nil
	})
	if err != nil {
		return 0, fmt.Errorf("acknowledge push: %w", err)
	}
	return count, nil
}

// List returns the stored notifications, newest first.
func (c *Center) List(ctx context.Context) ([]Notification, error) {
	v, err := c.store.Read(ctx, DocumentName)
	if err != nil {
		return nil, err
	}
	return store.Decode[[]Notification](v)
}

func (c *Center) decode(current any) []Notification {
	if current == nil {
		return nil
	}
	list, err := store.Decode[[]Notification](current)
	if err != nil {
		c.logger.Warn("notifications document is not a list, starting over", "error", err)
		return nil
	}
	return list
}
