package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PratikDhanave/petcare-telemetry-service/internal/analytics"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/eventlog"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/ingest"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/notify"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/store"
)

type recordingSnapshotter struct {
	store *store.Store
	mu    sync.Mutex
	docs  []map[string]any
}

func (r *recordingSnapshotter) MergeSnapshot(ctx context.Context, partial map[string]any) (any, ingest.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	merged, err := r.store.Merge(ctx, ingest.CurrentDocument, partial)
	if err != nil {
		return nil, ingest.Report{}, err
	}
	doc, _ := merged.(map[string]any)
	r.docs = append(r.docs, doc)
	return merged, ingest.Report{}, nil
}

type countingAnalyzer struct{ calls int }

func (a *countingAnalyzer) RecomputeFood(context.Context) (analytics.FoodAnalysis, error) {
	a.calls++
	return analytics.FoodAnalysis{}, nil
}

type fixture struct {
	svc      *Service
	store    *store.Store
	logs     *eventlog.Log
	center   *notify.Center
	snaps    *recordingSnapshotter
	analyzer *countingAnalyzer
	now      *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b, err := store.NewFileBackend(t.TempDir())
	require.NoError(t, err)
	s := store.New(b)

	now := time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	logs := eventlog.New(s, eventlog.WithClock(clock))
	center := notify.NewCenter(s, notify.DefaultConfig(), notify.WithClock(clock))
	snaps := &recordingSnapshotter{store: s}
	a := &countingAnalyzer{}

	svc := New(s, logs, center, DefaultConfig(), WithSnapshotter(snaps), WithFoodAnalyzer(a))
	return &fixture{svc: svc, store: s, logs: logs, center: center, snaps: snaps, analyzer: a, now: &now}
}

func TestDispenseFoodThreeTimes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var dash map[string]any
	for i := 0; i < 3; i++ {
		var err error
		dash, err = f.svc.RecordAction(ctx, ActionDispenseFood, "kitchen-tablet")
		require.NoError(t, err)
		*f.now = f.now.Add(time.Second)
	}
	assert.Equal(t, 60.0, dash["lastMeal"])
	assert.Equal(t, 3, f.analyzer.calls)

	history, err := f.logs.Entries(ctx, analytics.FeedingHistoryLog)
	require.NoError(t, err)
	require.Len(t, history, 3)
	prev := time.Time{}
	for _, e := range history {
		assert.Equal(t, 20.0, e["amount"])
		ts, ok := eventlog.Timestamp(e)
		require.True(t, ok)
		assert.False(t, ts.Before(prev))
		prev = ts
	}

	audit, err := f.logs.Entries(ctx, ActionsLog)
	require.NoError(t, err)
	require.Len(t, audit, 3)
	assert.Equal(t, ActionDispenseFood, audit[0]["action"])
	assert.Equal(t, "kitchen-tablet", audit[0]["client"])
	assert.NotEmpty(t, audit[0]["id"])
}

func TestOtherActions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dash, err := f.svc.RecordAction(ctx, ActionToggleLight, "")
	require.NoError(t, err)
	assert.Equal(t, true, dash["lightOn"])

	dash, err = f.svc.RecordAction(ctx, ActionToggleLight, "")
	require.NoError(t, err)
	assert.Equal(t, false, dash["lightOn"])

	_, err = f.svc.RecordAction(ctx, ActionDispenseFood, "")
	require.NoError(t, err)
	dash, err = f.svc.RecordAction(ctx, ActionResetFoodCounter, "")
	require.NoError(t, err)
	assert.Equal(t, 0.0, dash["lastMeal"])

	dash, err = f.svc.RecordAction(ctx, ActionRefillWater, "")
	require.NoError(t, err)
	assert.Equal(t, 100.0, dash["waterLevel"])
	assert.Equal(t, eventlog.FormatTime(*f.now), dash["waterRefilledAt"])
}

func TestUnsupportedAction(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.RecordAction(context.Background(), "launch_rocket", "")
	assert.ErrorIs(t, err, ErrUnsupportedAction)

	names, err := f.svc.ListDocuments(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names, "nothing is written for unknown actions")
}

func TestMergeDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.MergeDocument(ctx, "settings", []any{1, 2})
	assert.ErrorIs(t, err, store.ErrValidation)

	_, err = f.svc.MergeDocument(ctx, "../escape", map[string]any{"a": 1})
	assert.ErrorIs(t, err, store.ErrInvalidPath)

	_, err = f.svc.MergeDocument(ctx, "settings", map[string]any{"theme": "dark"})
	require.NoError(t, err)
	assert.Empty(t, f.snaps.docs)

	_, err = f.svc.MergeDocument(ctx, ingest.CurrentDocument, map[string]any{"waterLevel": 80})
	require.NoError(t, err)
	got, err := f.svc.MergeDocument(ctx, "environment-current.json", map[string]any{"temperature": 21.5})
	require.NoError(t, err)

	require.Len(t, f.snaps.docs, 2)
	assert.Equal(t, map[string]any{"waterLevel": 80.0, "temperature": 21.5}, f.snaps.docs[1], "detectors see the merged document")
	assert.Equal(t, f.snaps.docs[1], got)
}

func TestMergeKeepsDocumentIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.PutDocument(ctx, "x.json.json", map[string]any{"a": 1})
	require.NoError(t, err)
	_, err = f.svc.MergeDocument(ctx, "x.json.json", map[string]any{"b": 2})
	require.NoError(t, err)

	got, err := f.svc.GetDocument(ctx, "x.json.json")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1.0, "b": 2.0}, got)

	names, err := f.svc.ListDocuments(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"x"}, names)

	listed, err := f.svc.GetDocument(ctx, names[0])
	require.NoError(t, err)
	assert.Equal(t, got, listed)
}

func TestDocumentCRUD(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.GetDocument(ctx, "settings")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.svc.PutDocument(ctx, "settings", map[string]any{"theme": "dark", "unused": nil})
	require.NoError(t, err)
	v, err := f.svc.GetDocument(ctx, "settings")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"theme": "dark"}, v)

	names, err := f.svc.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"settings"}, names)

	require.NoError(t, f.svc.DeleteDocument(ctx, "settings"))
	assert.ErrorIs(t, f.svc.DeleteDocument(ctx, "settings"), store.ErrNotFound)
}

func TestSaveFeedingSchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bad := []Schedule{
		{Meal1Time: "8:00", MealAmount: 100},
		{Meal1Time: "24:00", MealAmount: 100},
		{Meal1Time: "08:00", Meal2Time: "18:60", MealAmount: 100},
		{Meal1Time: "08:00", MealAmount: 0},
		{Meal1Time: "08:00", MealAmount: 100, Weight: -1},
	}
	for _, sc := range bad {
		_, err := f.svc.SaveFeedingSchedule(ctx, sc)
		assert.ErrorIs(t, err, store.ErrValidation, "%+v", sc)
	}

	saved, err := f.svc.SaveFeedingSchedule(ctx, Schedule{Weight: 12.5, Meal1Time: "08:00", Meal2Time: "18:30", MealAmount: 150})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.UpdatedAt)
	assert.Equal(t, 1, f.analyzer.calls)

	doc, err := f.svc.GetDocument(ctx, analytics.FeedingSchedule)
	require.NoError(t, err)
	assert.Equal(t, "18:30", doc.(map[string]any)["meal2Time"])

	dash, err := f.svc.GetDocument(ctx, ingest.DashboardDocument)
	require.NoError(t, err)
	assert.Equal(t, 12.5, dash.(map[string]any)["weight"])
	assert.Equal(t, 150.0, dash.(map[string]any)["mealAmount"])

	_, err = f.svc.SaveFeedingSchedule(ctx, Schedule{Meal1Time: "07:00", MealAmount: 150})
	require.NoError(t, err)
	dash, err = f.svc.GetDocument(ctx, ingest.DashboardDocument)
	require.NoError(t, err)
	assert.NotContains(t, dash.(map[string]any), "meal2Time")
}

func TestAcknowledgeNotificationsPushed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	n, err := f.svc.AcknowledgeNotificationsPushed(ctx, []string{"2026-07-01T08:00:00.000Z"})
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = f.center.Notify(ctx, "Water bowl is running low", notify.TypeWarning, notify.PushWaterLow)
	require.NoError(t, err)
	list, err := f.center.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	n, err = f.svc.AcknowledgeNotificationsPushed(ctx, []string{list[0].Time})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.svc.AcknowledgeNotificationsPushed(ctx, []string{list[0].Time})
	require.NoError(t, err)
	assert.Zero(t, n)
}
