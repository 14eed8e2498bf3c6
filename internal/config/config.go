package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/PratikDhanave/petcare-telemetry-service/internal/analytics"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/ingest"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/notify"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/retention"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/service"
)

// Config contains runtime configuration required by the service.
type Config struct {
	ListenAddr string
	DataDir    string
	DBURL      string            // optional; selects the Postgres backend
	APIKeys    map[string]string // apiKey -> client name
	Location   *time.Location
	LogLevel   slog.Level
	Tuning     Tuning
}

// Tuning holds the domain thresholds and log policies. Every field is
// optional in the YAML file; missing ones keep their defaults.
type Tuning struct {
	Ingest        ingest.Config    `yaml:"ingest"`
	Analytics     analytics.Config `yaml:"analytics"`
	Notifications notify.Config    `yaml:"notifications"`
	Retention     retention.Config `yaml:"retention"`
	Service       service.Config   `yaml:"service"`
}

func DefaultTuning() Tuning {
	return Tuning{
		Ingest:        ingest.DefaultConfig(),
		Analytics:     analytics.DefaultConfig(),
		Notifications: notify.DefaultConfig(),
		Retention:     retention.DefaultConfig(),
		Service:       service.DefaultConfig(),
	}
}

// Load reads values from environment variables.
// API_KEYS format: "client1:key1,client2:key2"
func Load() (Config, error) {
	cfg := Config{
		ListenAddr: envOr("LISTEN_ADDR", ":8080"),
		DataDir:    envOr("DATA_DIR", "./data"),
		DBURL:      strings.TrimSpace(os.Getenv("DB_URL")),
		Location:   time.Local,
		Tuning:     DefaultTuning(),
	}

	keys, err := parseAPIKeys(os.Getenv("API_KEYS"))
	if err != nil {
		return Config{}, err
	}
	// Local dev fallback so the service runs out-of-the-box.
	if len(keys) == 0 {
		keys["dev-key-123"] = "household"
	}
	cfg.APIKeys = keys

	if tz := strings.TrimSpace(os.Getenv("TIMEZONE")); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return Config{}, fmt.Errorf("TIMEZONE: %w", err)
		}
		cfg.Location = loc
	}

	if lvl := strings.TrimSpace(os.Getenv("LOG_LEVEL")); lvl != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(lvl)); err != nil {
			return Config{}, fmt.Errorf("LOG_LEVEL: %w", err)
		}
	}

	if path := strings.TrimSpace(os.Getenv("TUNING_FILE")); path != "" {
		if cfg.Tuning, err = LoadTuning(path); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

// LoadTuning overlays the YAML file at path on the defaults.
func LoadTuning(path string) (Tuning, error) {
	t := DefaultTuning()
	data, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("read tuning file: %w", err)
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("parse tuning file %s: %w", path, err)
	}
	return t, nil
}

func parseAPIKeys(raw string) (map[string]string, error) {
	keys := map[string]string{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return keys, nil
	}
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		parts := strings.SplitN(p, ":", 2)
		if len(parts) != 2 {
			return nil, errors.New(`API_KEYS must be "client:key,client:key"`)
		}
		client := strings.TrimSpace(parts[0])
		key := strings.TrimSpace(parts[1])
		if client == "" || key == "" {
			return nil, errors.New(`API_KEYS must be "client:key,client:key"`)
		}
		keys[key] = client
	}
	return keys, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
