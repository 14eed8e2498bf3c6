package ingest

import (
	"errors"
	"strings"

	"github.com/PratikDhanave/petcare-telemetry-service/internal/eventlog"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/notify"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/sensor"
)

const (
	WaterLow  = "low"
	WaterHigh = "high"

	FeederFeeding = "feeding"
	FeederIdle    = "idle"
)

// Notification messages. The message text is a notification's identity.
const (
	MsgWaterLow        = "Water bowl is running low, please refill it"
	MsgMotion          = "Motion detected near the pet area, light switched on"
	MsgBark            = "Excessive barking detected"
	MsgFeederStarted   = "Feeder started dispensing food"
	MsgFeedingComplete = "Feeding complete"
	MsgFellAsleep      = "Your pet fell asleep"
	MsgWokeUp          = "Your pet woke up"
	MsgAirPoor         = "Air quality is poor, consider ventilating the room"
)

// Cache fields are committed only once the events and notifications for
// their transition are recorded, so a failed edge is retried by the next
// snapshot instead of being consumed.
func (i *Ingestor) detectWater(r *run) error {
	s := r.snap
	var errs []error

	if s.WaterLevel != nil {
		level := *s.WaterLevel
		r.dashboard["waterLevel"] = level
		var err error
		if prev := i.cache.WaterLevel; prev != nil && *prev-level >= i.cfg.WaterDropThreshold {
			err = r.appendEvent(WaterEventsLog, map[string]any{
				"type":          "drop",
				"delta":         *prev - level,
				"level":         level,
				"previousLevel": *prev,
			}, i.cfg.Logs.Water)
			r.waterIntake = r.waterIntake || err == nil
		}
		if err != nil {
			errs = append(errs, err)
		} else {
			i.cache.WaterLevel = &level
		}
	}

	state := i.waterState(s)
	if state == "" {
		return errors.Join(errs...)
	}
	prev := i.cache.WaterState
	r.dashboard["waterState"] = state

	if state == WaterLow && prev != WaterLow {
		if err := r.notify(MsgWaterLow, notify.TypeWarning, notify.PushWaterLow); err != nil {
			return errors.Join(append(errs, err)...)
		}
		if prev != "" {
			err := r.appendEvent(WaterEventsLog, map[string]any{
				"type":          "low",
				"previousState": prev,
			}, i.cfg.Logs.Water)
			if err != nil {
				return errors.Join(append(errs, err)...)
			}
			r.waterIntake = true
		}
	}
	i.cache.WaterState = state
	return errors.Join(errs...)
}

// waterState normalizes an explicit state string, a boolean (true means water
// present) or a numeric level. Levels between the thresholds keep the
// previous state.
func (i *Ingestor) waterState(s sensor.Snapshot) string {
	if ws := s.WaterState; ws != nil {
		switch {
		case ws.Flag != nil:
			if *ws.Flag {
				return WaterHigh
			}
			return WaterLow
		case ws.Number != nil:
			return i.levelState(*ws.Number)
		default:
			switch strings.ToLower(strings.TrimSpace(ws.Text)) {
			case "low", "empty":
				return WaterLow
			case "high", "full", "ok", "normal":
				return WaterHigh
			}
		}
	}
	if s.WaterLevel != nil {
		return i.levelState(*s.WaterLevel)
	}
	return ""
}

func (i *Ingestor) levelState(level float64) string {
	switch {
	case level <= i.cfg.WaterLowLevel:
		return WaterLow
	case level >= i.cfg.WaterHighLevel:
		return WaterHigh
	}
	return i.cache.WaterState
}

func (i *Ingestor) detectMotion(r *run) error {
	s := r.snap
	light := s.MotionLight != nil && *s.MotionLight
	near := s.Distance != nil && *s.Distance < i.cfg.ProximityThreshold

	var errs []error
	if light || near {
		event := map[string]any{"light": light}
		if s.Distance != nil {
			event["distance"] = *s.Distance
		}
		errs = append(errs, r.appendEvent(MotionEventsLog, event, i.cfg.Logs.Motion))
	}

	if s.MotionLight != nil {
		var err error
		if light && !i.cache.MotionLight {
			err = r.notify(MsgMotion, notify.TypeInfo, "")
		}
		if err != nil {
			errs = append(errs, err)
		} else {
			i.cache.MotionLight = light
		}
	}
	return errors.Join(errs...)
}

func (i *Ingestor) detectBark(r *run) error {
	s := r.snap
	var errs []error
	if s.BarkCount != nil && *s.BarkCount > 0 {
		errs = append(errs, r.appendEvent(BarkEventsLog, map[string]any{"count": *s.BarkCount}, i.cfg.Logs.Bark))
	}
	if s.BarkAlert != nil {
		var err error
		if *s.BarkAlert && !i.cache.BarkAlert {
			err = r.notify(MsgBark, notify.TypeAlert, notify.PushBark)
		}
		if err != nil {
			errs = append(errs, err)
		} else {
			i.cache.BarkAlert = *s.BarkAlert
		}
	}
	return errors.Join(errs...)
}

// feederState maps the feeder's status fields to feeding, idle or unknown ("").
func feederState(s sensor.Snapshot) string {
	if s.FeederStatus != nil {
		switch strings.ToLower(strings.TrimSpace(*s.FeederStatus)) {
		case "feeding", "dispensing", "running", "active":
			return FeederFeeding
		case "idle", "done", "complete", "completed", "stopped", "ready":
			return FeederIdle
		}
	}
	if s.FeederRunning != nil {
		if *s.FeederRunning {
			return FeederFeeding
		}
		return FeederIdle
	}
	return ""
}

func (i *Ingestor) detectFeeder(r *run) error {
	s := r.snap
	state := feederState(s)
	weight := s.FeederWeight

	stateChanged := state != "" && state != i.cache.FeederState
	weightChanged := weight != nil && (i.cache.FeederWeight == nil || *i.cache.FeederWeight != *weight)

	if state != "" {
		r.dashboard["feederState"] = state
	}
	if weight != nil {
		r.dashboard["feederWeight"] = *weight
	}
	if s.BowlWeight != nil {
		r.dashboard["bowlWeight"] = *s.BowlWeight
	}

	if stateChanged || weightChanged {
		event := map[string]any{}
		if state != "" {
			event["state"] = state
		}
		if weight != nil {
			event["weight"] = *weight
		}
		if s.BowlWeight != nil {
			event["bowlWeight"] = *s.BowlWeight
		}
		if err := r.appendEvent(FeederEventsLog, event, i.cfg.Logs.Feeder); err != nil {
			return err
		}
	}
	if weight != nil {
		w := *weight
		i.cache.FeederWeight = &w
	}

	if state != "" {
		prev := i.cache.FeederState
		var err error
		switch {
		case state == FeederFeeding && prev != FeederFeeding:
			err = r.notify(MsgFeederStarted, notify.TypeInfo, "")
		case state == FeederIdle && prev == FeederFeeding:
			err = r.notify(MsgFeedingComplete, notify.TypeInfo, notify.PushFeedingComplete)
		}
		if err != nil {
			return err
		}
		r.feedingDone = r.feedingDone || (state == FeederIdle && prev == FeederFeeding)
		i.cache.FeederState = state
	}
	return nil
}

func (i *Ingestor) detectActivity(r *run) error {
	s := r.snap
	var errs []error

	if s.Sleeping != nil || s.PetWeight != nil {
		event := map[string]any{}
		if s.Sleeping != nil {
			event["sleeping"] = *s.Sleeping
		}
		if s.PetWeight != nil {
			event["weight"] = *s.PetWeight
		}
		errs = append(errs, r.appendEvent(ActivityHistoryLog, event, i.cfg.Logs.Activity))
	}

	if s.Sleeping != nil {
		asleep := *s.Sleeping
		r.dashboard["sleeping"] = asleep
		var err error
		if prev := i.cache.Sleeping; prev != nil && *prev != asleep {
			msg := MsgWokeUp
			if asleep {
				msg = MsgFellAsleep
			}
			err = r.notify(msg, notify.TypeInfo, "")
		}
		if err != nil {
			errs = append(errs, err)
		} else {
			i.cache.Sleeping = &asleep
		}
	}

	if s.PetWeight != nil {
		w := *s.PetWeight
		errs = append(errs, r.appendSampled(WeightHistoryLog, map[string]any{"weight": w}, i.cfg.Logs.Weight, i.cfg.weightSampling()))
		r.dashboard["petWeight"] = w
	}
	return errors.Join(errs...)
}

func (i *Ingestor) detectAirQuality(r *run) error {
	s := r.snap
	if s.AQI != nil {
		switch {
		case s.AQI.Number != nil:
			r.dashboard["aqi"] = *s.AQI.Number
		case s.AQI.Flag != nil:
			r.dashboard["aqi"] = *s.AQI.Flag
		default:
			r.dashboard["aqi"] = s.AQI.Text
		}
	}
	if s.FanOn != nil {
		r.dashboard["fanOn"] = *s.FanOn
	}
	if s.MotionLight != nil {
		r.dashboard["motionLight"] = *s.MotionLight
	}
	if s.BarkCount != nil {
		r.dashboard["barkCount"] = *s.BarkCount
	}
	if s.BarkAlert != nil {
		r.dashboard["barkAlert"] = *s.BarkAlert
	}

	if s.AirQualityAlert == nil && s.AQI == nil {
		return nil
	}
	poor := (s.AirQualityAlert != nil && *s.AirQualityAlert) ||
		(s.AQI != nil && strings.EqualFold(strings.TrimSpace(s.AQI.Text), "poor"))
	r.dashboard["airQualityPoor"] = poor

	if poor && !i.cache.AirQualityAlert {
		if err := r.notify(MsgAirPoor, notify.TypeWarning, notify.PushAirQuality); err != nil {
			return err
		}
	}
	i.cache.AirQualityAlert = poor
	return nil
}

// detectEnvironment records numeric climate readings into the sampled
// history log and the per-metric chart document.
func (i *Ingestor) detectEnvironment(r *run) error {
	s := r.snap
	readings := map[string]any{}
	if s.Temperature != nil {
		readings["temperature"] = *s.Temperature
	}
	if s.Humidity != nil {
		readings["humidity"] = *s.Humidity
	}
	if s.AQI != nil && s.AQI.Number != nil {
		readings["aqi"] = *s.AQI.Number
	}
	if len(readings) == 0 {
		return nil
	}
	for k, v := range readings {
		r.dashboard[k] = v
	}

	var errs []error
	errs = append(errs, r.appendSampled(HistoryLog, readings, i.cfg.Logs.Environment, i.cfg.environmentSampling()))

	ts := eventlog.FormatTime(i.logs.Now())
	_, err := i.store.Update(r.ctx, ChartDocument, func(current any) (any, error) {
		charts, _ := current.(map[string]any)
		if charts == nil {
			charts = map[string]any{}
		}
		for metric, value := range readings {
			series, _ := charts[metric].([]any)
			series = append(series, map[string]any{"ts": ts, "value": value})
			if n := i.cfg.ChartPoints; n > 0 && len(series) > n {
				series = series[len(series)-n:]
			}
			charts[metric] = series
		}
		return charts, nil
	})
	if err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
