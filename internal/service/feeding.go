package service

import (
	"context"
	"fmt"
	"regexp"

	"github.com/PratikDhanave/petcare-telemetry-service/internal/analytics"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/eventlog"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/ingest"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/store"
)

var clockTime = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// Schedule is the feeding configuration read by the food analysis.
type Schedule struct {
	Weight     float64 `json:"weight"`
	Meal1Time  string  `json:"meal1Time"`
	Meal2Time  string  `json:"meal2Time,omitempty"`
	MealAmount float64 `json:"mealAmount"`
	UpdatedAt  string  `json:"updatedAt,omitempty"`
}

func (sc Schedule) validate() error {
	if !clockTime.MatchString(sc.Meal1Time) {
		return fmt.Errorf("%w: meal1Time must be HH:MM", store.ErrValidation)
	}
	if sc.Meal2Time != "" && !clockTime.MatchString(sc.Meal2Time) {
		return fmt.Errorf("%w: meal2Time must be HH:MM", store.ErrValidation)
	}
	if sc.MealAmount <= 0 {
		return fmt.Errorf("%w: mealAmount must be positive", store.ErrValidation)
	}
	if sc.Weight < 0 {
		return fmt.Errorf("%w: weight must not be negative", store.ErrValidation)
	}
	return nil
}

// SaveFeedingSchedule stores the schedule, mirrors it into the dashboard and
// refreshes the food analysis.
func (s *Service) SaveFeedingSchedule(ctx context.Context, sc Schedule) (Schedule, error) {
	if err := sc.validate(); err != nil {
		return Schedule{}, err
	}
	sc.UpdatedAt = eventlog.FormatTime(s.logs.Now())

	if _, err := s.store.Write(ctx, analytics.FeedingSchedule, sc); err != nil {
		return Schedule{}, err
	}

	mirror := map[string]any{
		"weight":     sc.Weight,
		"meal1Time":  sc.Meal1Time,
		"meal2Time":  sc.Meal2Time,
		"mealAmount": sc.MealAmount,
	}
	if sc.Meal2Time == "" {
		// A nil value removes a previously mirrored second meal.
		mirror["meal2Time"] = nil
	}
	if _, err := s.store.Merge(ctx, ingest.DashboardDocument, mirror); err != nil {
		return Schedule{}, err
	}

	s.recomputeFood(ctx)
	return sc, nil
}
