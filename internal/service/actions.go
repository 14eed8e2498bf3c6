package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/PratikDhanave/petcare-telemetry-service/internal/analytics"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/eventlog"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/ingest"
)

var ErrUnsupportedAction = errors.New("unsupported action")

const (
	ActionToggleLight      = "toggle_light"
	ActionDispenseFood     = "dispense_food"
	ActionResetFoodCounter = "reset_food_counter"
	ActionRefillWater      = "refill_water"

	// ActionsLog is the audit trail of applied actions.
	ActionsLog = "actions"
)

// RecordAction applies one dashboard action on behalf of client and returns
// the updated dashboard.
func (s *Service) RecordAction(ctx context.Context, action, client string) (map[string]any, error) {
	var apply func(context.Context) error
	switch action {
	case ActionToggleLight:
		apply = s.toggleLight
	case ActionDispenseFood:
		apply = s.dispenseFood
	case ActionResetFoodCounter:
		apply = s.resetFoodCounter
	case ActionRefillWater:
		apply = s.refillWater
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAction, action)
	}

	if err := apply(ctx); err != nil {
		return nil, err
	}

	audit := map[string]any{"id": uuid.NewString(), "action": action}
	if client != "" {
		audit["client"] = client
	}
	if _, err := s.logs.Append(ctx, ActionsLog, audit, s.cfg.Actions); err != nil {
		s.logger.Warn("action audit failed", "action", action, "error", err)
	}
	s.logger.Info("action recorded", "action", action, "client", client)

	return s.dashboard(ctx)
}

func (s *Service) toggleLight(ctx context.Context) error {
	_, err := s.store.Update(ctx, ingest.DashboardDocument, func(current any) (any, error) {
		dash := dashboardObject(current)
		on, _ := dash["lightOn"].(bool)
		dash["lightOn"] = !on
		return dash, nil
	})
	return err
}

// dispenseFood adds one portion to the meal counter and records it in the
// feeding history that drives the food analysis.
func (s *Service) dispenseFood(ctx context.Context) error {
	portion := s.cfg.FoodPortion
	_, err := s.store.Update(ctx, ingest.DashboardDocument, func(current any) (any, error) {
		dash := dashboardObject(current)
		last, _ := eventlog.Number(dash["lastMeal"])
		dash["lastMeal"] = last + portion
		dash["lastMealAt"] = eventlog.FormatTime(s.logs.Now())
		return dash, nil
	})
	if err != nil {
		return err
	}

	event := map[string]any{"amount": portion, "source": "manual"}
	if _, err := s.logs.Append(ctx, analytics.FeedingHistoryLog, event, s.cfg.FeedingHistory); err != nil {
		return err
	}
	s.recomputeFood(ctx)
	return nil
}

func (s *Service) resetFoodCounter(ctx context.Context) error {
	_, err := s.store.Merge(ctx, ingest.DashboardDocument, map[string]any{"lastMeal": 0})
	return err
}

func (s *Service) refillWater(ctx context.Context) error {
	_, err := s.store.Merge(ctx, ingest.DashboardDocument, map[string]any{
		"waterLevel":      100,
		"waterRefilledAt": eventlog.FormatTime(s.logs.Now()),
	})
	return err
}

func dashboardObject(current any) map[string]any {
	if obj, ok := current.(map[string]any); ok {
		return obj
	}
	return map[string]any{}
}
