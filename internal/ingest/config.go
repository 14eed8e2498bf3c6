package ingest

import (
	"time"

	"github.com/PratikDhanave/petcare-telemetry-service/internal/eventlog"
)

// Document and log names the ingestor reads and writes.
const (
	CurrentDocument   = "environment-current"
	HistoryLog        = "environment-history"
	ChartDocument     = "environment"
	DashboardDocument = "dashboard"

	WaterEventsLog     = "water-events"
	MotionEventsLog    = "motion-events"
	BarkEventsLog      = "bark-events"
	FeederEventsLog    = "feeder-events"
	ActivityHistoryLog = "activity-history"
	WeightHistoryLog   = "weight-history"
)

// Policies bounds every log the ingestor appends to.
type Policies struct {
	Water       eventlog.Policy `yaml:"water"`
	Motion      eventlog.Policy `yaml:"motion"`
	Bark        eventlog.Policy `yaml:"bark"`
	Feeder      eventlog.Policy `yaml:"feeder"`
	Activity    eventlog.Policy `yaml:"activity"`
	Weight      eventlog.Policy `yaml:"weight"`
	Environment eventlog.Policy `yaml:"environment"`
}

type Config struct {
	// WaterDropThreshold is the level drop between two readings that counts as drinking.
	WaterDropThreshold float64 `yaml:"water_drop_threshold"`
	WaterLowLevel      float64 `yaml:"water_low_level"`
	WaterHighLevel     float64 `yaml:"water_high_level"`
	// ProximityThreshold is the distance below which the pet counts as present.
	ProximityThreshold float64 `yaml:"proximity_threshold"`
	ChartPoints        int     `yaml:"chart_points"`

	WeightMinInterval      time.Duration `yaml:"weight_min_interval"`
	WeightEpsilon          float64       `yaml:"weight_epsilon"`
	EnvironmentMinInterval time.Duration `yaml:"environment_min_interval"`
	EnvironmentEpsilon     float64       `yaml:"environment_epsilon"`

	Logs Policies `yaml:"logs"`
}

func DefaultConfig() Config {
	const day = 24 * time.Hour
	return Config{
		WaterDropThreshold:     5,
		WaterLowLevel:          20,
		WaterHighLevel:         80,
		ProximityThreshold:     30,
		ChartPoints:            288,
		WeightMinInterval:      time.Hour,
		WeightEpsilon:          0.05,
		EnvironmentMinInterval: time.Minute,
		EnvironmentEpsilon:     0.5,
		Logs: Policies{
			Water:       eventlog.Policy{Window: 7 * day, MaxCount: 500},
			Motion:      eventlog.Policy{Window: day, MaxCount: 500},
			Bark:        eventlog.Policy{Window: 7 * day, MaxCount: 500},
			Feeder:      eventlog.Policy{Window: 7 * day, MaxCount: 500},
			Activity:    eventlog.Policy{Window: 7 * day, MaxCount: 1000},
			Weight:      eventlog.Policy{Window: 31 * day, MaxCount: 1000},
			Environment: eventlog.Policy{Window: 2 * day, MaxCount: 2880},
		},
	}
}

func (c Config) weightSampling() eventlog.Sampling {
	return eventlog.Sampling{
		MinInterval: c.WeightMinInterval,
		Epsilon:     c.WeightEpsilon,
		Fields:      []string{"weight"},
		Mode:        eventlog.SkipNear,
	}
}

func (c Config) environmentSampling() eventlog.Sampling {
	return eventlog.Sampling{
		MinInterval: c.EnvironmentMinInterval,
		Epsilon:     c.EnvironmentEpsilon,
		Fields:      []string{"temperature", "humidity", "aqi"},
		Mode:        eventlog.MergeNear,
	}
}
