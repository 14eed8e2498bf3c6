// Package eventlog keeps append-only, time-windowed and size-capped record logs
// as array documents in the store.
package eventlog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/relvacode/iso8601"

	"github.com/PratikDhanave/petcare-telemetry-service/internal/metrics"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/store"
)

// TimeLayout is the timestamp format written into every entry.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Entry is one record of a log.
type Entry = map[string]any

// FormatTime renders t the way entries store it.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime accepts ISO-8601 strings and unix-millisecond numbers.
func ParseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		if t == "" {
			return time.Time{}, false
		}
		parsed, err := iso8601.ParseString(t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	case float64:
		if t <= 0 || math.IsNaN(t) || math.IsInf(t, 0) {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(t)), true
	case time.Time:
		return t, !t.IsZero()
	}
	return time.Time{}, false
}

// Timestamp reads the entry's "ts" field, falling back to "time".
func Timestamp(e map[string]any) (time.Time, bool) {
	if t, ok := ParseTime(e["ts"]); ok {
		return t, true
	}
	return ParseTime(e["time"])
}

// Policy bounds a log. Zero Window or MaxCount disables that bound.
type Policy struct {
	Window      time.Duration `yaml:"window"`
	MaxCount    int           `yaml:"max_count"`
	KeepUndated bool          `yaml:"keep_undated"`
}

// Bounded is a log held to its policy on every push: entries older than the
// window are evicted first, then the oldest entries beyond MaxCount.
type Bounded struct {
	policy  Policy
	now     time.Time
	entries []Entry
}

// NewBounded loads existing entries (non-object values are discarded) and
// applies the policy as of now.
func NewBounded(p Policy, now time.Time, existing any) *Bounded {
	b := &Bounded{policy: p, now: now}
	if arr, ok := existing.([]any); ok {
		for _, v := range arr {
			if e, ok := v.(map[string]any); ok {
				b.entries = append(b.entries, e)
			}
		}
	}
	b.evict()
	return b
}

func (b *Bounded) Push(e Entry) {
	b.entries = append(b.entries, e)
	b.evict()
}

func (b *Bounded) Last() (Entry, bool) {
	if len(b.entries) == 0 {
		return nil, false
	}
	return b.entries[len(b.entries)-1], true
}

func (b *Bounded) Len() int {
	return len(b.entries)
}

func (b *Bounded) Entries() []Entry {
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}

func (b *Bounded) evict() {
	if b.policy.Window > 0 {
		cutoff := b.now.Add(-b.policy.Window)
		kept := b.entries[:0]
		for _, e := range b.entries {
			ts, ok := Timestamp(e)
			if !ok {
				if b.policy.KeepUndated {
					kept = append(kept, e)
				}
				continue
			}
			if ts.Before(cutoff) {
				continue
			}
			kept = append(kept, e)
		}
		b.entries = kept
	}
	if b.policy.MaxCount > 0 && len(b.entries) > b.policy.MaxCount {
		b.entries = append([]Entry(nil), b.entries[len(b.entries)-b.policy.MaxCount:]...)
	}
}

func (b *Bounded) value() []any {
	out := make([]any, len(b.entries))
	for i, e := range b.entries {
		out[i] = e
	}
	return out
}

// SampleMode says what a sampled append does with a reading that is too close
// to the newest entry.
type SampleMode int

const (
	// SkipNear drops the new reading.
	SkipNear SampleMode = iota
	// MergeNear overwrites the newest entry's fields, keeping its timestamp.
	MergeNear
)

// Sampling throttles high-frequency uploads. A reading is near the newest
// entry when that entry is younger than MinInterval and every numeric field in
// Fields present in both differs by less than Epsilon.
type Sampling struct {
	MinInterval time.Duration
	Epsilon     float64
	Fields      []string
	Mode        SampleMode
}

// Outcome reports what a sampled append did.
type Outcome string

const (
	Appended Outcome = "appended"
	Skipped  Outcome = "skipped"
	Merged   Outcome = "merged"
)

type Log struct {
	store   *store.Store
	now     func() time.Time
	metrics *metrics.Metrics
}

type Option func(*Log)

func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Log) { l.metrics = m }
}

func New(s *store.Store, opts ...Option) *Log {
	l := &Log{store: s, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Now returns the log's clock reading.
func (l *Log) Now() time.Time {
	return l.now()
}

// Entries returns the stored log; a missing log is empty.
func (l *Log) Entries(ctx context.Context, name string) ([]Entry, error) {
	v, err := l.store.Read(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if _, ok := v.([]any); !ok {
		return nil, fmt.Errorf("%w: %s is not a log", store.ErrMalformedJSON, name)
	}
	return NewBounded(Policy{}, l.now(), v).Entries(), nil
}

// Append tags event with the current time, adds it to the named log and
// returns the log bounded by p.
func (l *Log) Append(ctx context.Context, name string, event map[string]any, p Policy) ([]Entry, error) {
	entries, _, err := l.append(ctx, name, event, p, nil)
	return entries, err
}

// AppendSampled is Append subject to s.
func (l *Log) AppendSampled(ctx context.Context, name string, event map[string]any, p Policy, s Sampling) ([]Entry, Outcome, error) {
	return l.append(ctx, name, event, p, &s)
}

func (l *Log) append(ctx context.Context, name string, event map[string]any, p Policy, s *Sampling) ([]Entry, Outcome, error) {
	now := l.now()
	entry := make(Entry, len(event)+1)
	for k, v := range event {
		entry[k] = v
	}
	entry["ts"] = FormatTime(now)

	var (
		result  []Entry
		outcome = Appended
	)
	_, err := l.store.Update(ctx, name, func(current any) (any, error) {
		b := NewBounded(p, now, current)
		if s != nil {
			if last, ok := b.Last(); ok && s.near(last, entry, now) {
				switch s.Mode {
				case SkipNear:
					outcome = Skipped
					result = b.Entries()
					return nil, store.ErrSkipWrite
				case MergeNear:
					outcome = Merged
					for k, v := range entry {
						if k != "ts" {
							last[k] = v
						}
					}
					result = b.Entries()
					return b.value(), nil
				}
			}
		}
		b.Push(entry)
		result = b.Entries()
		return b.value(), nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("append %s: %w", name, err)
	}
	if outcome == Appended {
		l.metrics.EventAppended(name)
	}
	return result, outcome, nil
}

func (s *Sampling) near(last, next Entry, now time.Time) bool {
	ts, ok := Timestamp(last)
	if !ok || now.Sub(ts) >= s.MinInterval {
		return false
	}
	shared := 0
	for _, f := range s.Fields {
		a, okA := Number(last[f])
		b, okB := Number(next[f])
		if !okA || !okB {
			continue
		}
		shared++
		if math.Abs(a-b) >= s.Epsilon {
			return false
		}
	}
	return shared > 0 || s.Mode == MergeNear
}

// Number converts JSON numbers (and Go numerics) to float64.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
