// Package sensor holds the typed view of a firmware snapshot and the cache of
// previously observed sensor state used for edge detection.
package sensor

import (
	"sort"
	"strconv"
	"strings"
)

// Reading is a field the firmware reports as a string, boolean or number
// depending on its build.
type Reading struct {
	Text   string
	Number *float64
	Flag   *bool
}

// Snapshot is one periodic upload. Nil fields were not reported.
type Snapshot struct {
	WaterLevel *float64
	WaterState *Reading

	MotionLight *bool
	Distance    *float64

	BarkCount *float64
	BarkAlert *bool

	FeederStatus  *string
	FeederRunning *bool
	FeederWeight  *float64
	BowlWeight    *float64

	Sleeping  *bool
	PetWeight *float64

	AQI             *Reading
	AirQualityAlert *bool
	FanOn           *bool

	Temperature *float64
	Humidity    *float64
}

// FromDocument decodes the known fields of a snapshot document. Unknown keys
// are ignored; known keys with an unusable type are reported in rejected.
func FromDocument(doc map[string]any) (s Snapshot, rejected []string) {
	reject := func(key string) { rejected = append(rejected, key) }

	num := func(key string) *float64 {
		v, ok := doc[key]
		if !ok || v == nil {
			return nil
		}
		if f, ok := toFloat(v); ok {
			return &f
		}
		reject(key)
		return nil
	}
	flag := func(key string) *bool {
		v, ok := doc[key]
		if !ok || v == nil {
			return nil
		}
		if b, ok := toBool(v); ok {
			return &b
		}
		reject(key)
		return nil
	}
	text := func(key string) *string {
		v, ok := doc[key]
		if !ok || v == nil {
			return nil
		}
		if str, ok := v.(string); ok {
			return &str
		}
		reject(key)
		return nil
	}
	reading := func(key string) *Reading {
		v, ok := doc[key]
		if !ok || v == nil {
			return nil
		}
		switch t := v.(type) {
		case string:
			return &Reading{Text: t}
		case bool:
			return &Reading{Flag: &t}
		case float64:
			return &Reading{Number: &t}
		}
		reject(key)
		return nil
	}

	s = Snapshot{
		WaterLevel:      num("waterLevel"),
		WaterState:      reading("waterState"),
		MotionLight:     flag("motionLight"),
		Distance:        num("distance"),
		BarkCount:       num("barkCount"),
		BarkAlert:       flag("barkAlert"),
		FeederStatus:    text("feederStatus"),
		FeederRunning:   flag("feederRunning"),
		FeederWeight:    num("feederWeight"),
		BowlWeight:      num("bowlWeight"),
		Sleeping:        flag("sleeping"),
		PetWeight:       num("petWeight"),
		AQI:             reading("aqi"),
		AirQualityAlert: flag("airQualityAlert"),
		FanOn:           flag("fanOn"),
		Temperature:     num("temperature"),
		Humidity:        num("humidity"),
	}
	sort.Strings(rejected)
	return s, rejected
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func toBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case float64:
		return t != 0, true
	case int:
		return t != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "on", "yes", "1":
			return true, true
		case "false", "off", "no", "0":
			return false, true
		}
	}
	return false, false
}
