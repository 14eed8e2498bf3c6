// Package analytics derives the water and food summaries stored as sections of
// the "analysis" document. Each recomputation overwrites its section.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/PratikDhanave/petcare-telemetry-service/internal/eventlog"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/metrics"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/notify"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/store"
)

const (
	DocumentName       = "analysis"
	WaterEventsLog     = "water-events"
	FeedingHistoryLog  = "feeding-history"
	FeedingSchedule    = "feeding"
	StatusOK           = "ok"
	StatusInsufficient = "insufficient_data"

	waterMissedMessage = "No water intake recorded in the last 12 hours"
	foodLowMessage     = "Food intake today is below the expected amount"
)

// Notifier records an alert; see notify.Center.
type Notifier interface {
	Notify(ctx context.Context, message, typ, pushType string) (bool, error)
}

type Config struct {
	ClusterTolerance int           `yaml:"cluster_tolerance_minutes"`
	WaterStaleAfter  time.Duration `yaml:"water_stale_after"`
	DefaultMeals     int           `yaml:"default_meals"`
	DefaultMealSize  float64       `yaml:"default_meal_size"`
	FoodWarningRatio float64       `yaml:"food_warning_ratio"`
}

func DefaultConfig() Config {
	return Config{
		ClusterTolerance: 15,
		WaterStaleAfter:  12 * time.Hour,
		DefaultMeals:     2,
		DefaultMealSize:  200,
		FoodWarningRatio: 0.6,
	}
}

type WaterAnalysis struct {
	Status           string `json:"status"`
	MostFrequentTime string `json:"mostFrequentTime,omitempty"`
	ClusterSize      int    `json:"clusterSize"`
	EventCount       int    `json:"eventCount"`
	LastIntake       string `json:"lastIntake,omitempty"`
	Warning          bool   `json:"warning"`
	WarningMessage   string `json:"warningMessage,omitempty"`
	UpdatedAt        string `json:"updatedAt"`
}

type DaySummary struct {
	Date  string  `json:"date"`
	Total float64 `json:"total"`
	Mean  float64 `json:"mean"`
	Count int     `json:"count"`
}

type FoodAnalysis struct {
	Days             []DaySummary `json:"days"`
	TodayTotal       float64      `json:"todayTotal"`
	TodayAverage     float64      `json:"todayAverage"`
	YesterdayAverage *float64     `json:"yesterdayAverage"`
	ComparePastData  *float64     `json:"comparePastData"`
	ExpectedDaily    float64      `json:"expectedDaily"`
	FoodWarning      bool         `json:"foodWarning"`
	UpdatedAt        string       `json:"updatedAt"`
}

type Engine struct {
	store    *store.Store
	logs     *eventlog.Log
	notifier Notifier
	cfg      Config
	loc      *time.Location
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLocation sets the zone used for minute-of-day and calendar days.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) { e.loc = loc }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func New(s *store.Store, logs *eventlog.Log, n Notifier, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		logs:     logs,
		notifier: n,
		cfg:      cfg,
		loc:      time.Local,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "analytics")
	return e
}

// RecomputeAll refreshes every section. Failures are logged, not returned.
func (e *Engine) RecomputeAll(ctx context.Context) {
	if _, err := e.RecomputeWater(ctx); err != nil {
		e.logger.Warn("water analysis failed", "error", err)
	}
	if _, err := e.RecomputeFood(ctx); err != nil {
		e.logger.Warn("food analysis failed", "error", err)
	}
}

// RecomputeWater finds the time of day the pet most often drinks and warns
// when the newest intake is older than WaterStaleAfter.
func (e *Engine) RecomputeWater(ctx context.Context) (result WaterAnalysis, err error) {
	defer func() { e.metrics.Recompute("water", err) }()

	now := e.now()
	entries, err := e.logs.Entries(ctx, WaterEventsLog)
	if err != nil {
		return WaterAnalysis{}, err
	}

	var (
		minutes []int
		last    time.Time
	)
	for _, entry := range entries {
		ts, ok := eventlog.Timestamp(entry)
		if !ok {
			continue
		}
		minutes = append(minutes, MinuteOfDay(ts, e.loc))
		if ts.After(last) {
			last = ts
		}
	}

	result = WaterAnalysis{
		Status:     StatusInsufficient,
		EventCount: len(minutes),
		UpdatedAt:  eventlog.FormatTime(now),
	}
	if len(minutes) > 0 {
		cluster := ClusterMinutes(minutes, e.cfg.ClusterTolerance)
		result.Status = StatusOK
		result.ClusterSize = len(cluster)
		result.MostFrequentTime = FormatMinute(meanMinute(cluster))
		result.LastIntake = eventlog.FormatTime(last)
		if now.Sub(last) > e.cfg.WaterStaleAfter {
			result.Warning = true
			result.WarningMessage = waterMissedMessage
		}
	}

	if err := e.writeSection(ctx, "water", result); err != nil {
		return result, err
	}
	if result.Warning {
		e.alert(ctx, waterMissedMessage, notify.TypeWarning, notify.PushWaterMissed)
	}
	return result, nil
}

// RecomputeFood compares today's feeding against yesterday and the schedule.
func (e *Engine) RecomputeFood(ctx context.Context) (result FoodAnalysis, err error) {
	defer func() { e.metrics.Recompute("food", err) }()

	now := e.now()
	entries, err := e.logs.Entries(ctx, FeedingHistoryLog)
	if err != nil {
		return FoodAnalysis{}, err
	}
	schedule, err := e.schedule(ctx)
	if err != nil {
		return FoodAnalysis{}, err
	}

	days := SummarizeDays(entries, e.loc)
	byDate := make(map[string]DaySummary, len(days))
	for _, d := range days {
		byDate[d.Date] = d
	}
	today := byDate[now.In(e.loc).Format(time.DateOnly)]
	yesterday, hasYesterday := byDate[now.In(e.loc).AddDate(0, 0, -1).Format(time.DateOnly)]

	meals, mealSize := e.expectedMeals(schedule)
	result = FoodAnalysis{
		Days:          days,
		TodayTotal:    today.Total,
		TodayAverage:  today.Mean,
		ExpectedDaily: float64(meals) * mealSize,
		UpdatedAt:     eventlog.FormatTime(now),
	}
	if hasYesterday {
		mean := yesterday.Mean
		result.YesterdayAverage = &mean
		if mean != 0 {
			ratio := today.Mean/mean - 1
			result.ComparePastData = &ratio
		}
	}
	result.FoodWarning = result.TodayTotal < e.cfg.FoodWarningRatio*result.ExpectedDaily

	if err := e.writeSection(ctx, "food", result); err != nil {
		return result, err
	}
	if result.FoodWarning {
		e.alert(ctx, foodLowMessage, notify.TypeWarning, notify.PushFoodLow)
	}
	return result, nil
}

func (e *Engine) schedule(ctx context.Context) (map[string]any, error) {
	v, err := e.store.Read(ctx, FeedingSchedule)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	obj, _ := v.(map[string]any)
	return obj, nil
}

// expectedMeals reads the meal count and size from the feeding schedule,
// falling back to the configured defaults.
func (e *Engine) expectedMeals(schedule map[string]any) (int, float64) {
	meals := 0
	if n, ok := eventlog.Number(schedule["meals"]); ok && n > 0 {
		meals = int(n)
	} else {
		for _, key := range []string{"meal1Time", "meal2Time"} {
			if s, ok := schedule[key].(string); ok && s != "" {
				meals++
			}
		}
	}
	if meals == 0 {
		meals = e.cfg.DefaultMeals
	}

	size := e.cfg.DefaultMealSize
	if n, ok := eventlog.Number(schedule["mealAmount"]); ok && n > 0 {
		size = n
	}
	return meals, size
}

func (e *Engine) writeSection(ctx context.Context, section string, value any) error {
	_, err := e.store.Update(ctx, DocumentName, func(current any) (any, error) {
		return store.MergeObjects(current, map[string]any{section: value}), nil
	})
	if err != nil {
		return fmt.Errorf("write %s analysis: %w", section, err)
	}
	return nil
}

func (e *Engine) alert(ctx context.Context, message, typ, pushType string) {
	if e.notifier == nil {
		return
	}
	if _, err := e.notifier.Notify(ctx, message, typ, pushType); err != nil {
		e.logger.Warn("analysis notification failed", "message", message, "error", err)
	}
}

// MinuteOfDay returns minutes since local midnight.
func MinuteOfDay(t time.Time, loc *time.Location) int {
	lt := t.In(loc)
	return lt.Hour()*60 + lt.Minute()
}

// FormatMinute renders a minute of day as HH:MM.
func FormatMinute(m int) string {
	m = ((m % 1440) + 1440) % 1440
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// ClusterMinutes groups minutes greedily: each not yet grouped minute, in
// input order, seeds a cluster of every ungrouped minute within tolerance of
// it. The largest cluster wins; ties go to the earliest seed.
func ClusterMinutes(minutes []int, tolerance int) []int {
	grouped := make([]bool, len(minutes))
	var best []int
	for i, seed := range minutes {
		if grouped[i] {
			continue
		}
		var cluster []int
		for j := i; j < len(minutes); j++ {
			if grouped[j] {
				continue
			}
			if abs(minutes[j]-seed) <= tolerance {
				grouped[j] = true
				cluster = append(cluster, minutes[j])
			}
		}
		if len(cluster) > len(best) {
			best = cluster
		}
	}
	return best
}

func meanMinute(cluster []int) int {
	if len(cluster) == 0 {
		return 0
	}
	sum := 0
	for _, m := range cluster {
		sum += m
	}
	return int(math.Round(float64(sum) / float64(len(cluster))))
}

// SummarizeDays groups feeding entries by local calendar day, oldest first.
// Entries without a timestamp or a numeric amount are ignored.
func SummarizeDays(entries []eventlog.Entry, loc *time.Location) []DaySummary {
	byDate := make(map[string]*DaySummary)
	for _, entry := range entries {
		ts, ok := eventlog.Timestamp(entry)
		if !ok {
			continue
		}
		amount, ok := eventlog.Number(entry["amount"])
		if !ok {
			continue
		}
		date := ts.In(loc).Format(time.DateOnly)
		d := byDate[date]
		if d == nil {
			d = &DaySummary{Date: date}
			byDate[date] = d
		}
		d.Total += amount
		d.Count++
	}

	days := make([]DaySummary, 0, len(byDate))
	for _, d := range byDate {
		d.Mean = d.Total / float64(d.Count)
		days = append(days, *d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
