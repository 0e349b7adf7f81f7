package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/evtrip/core/metrics"
	"github.com/kilianp07/evtrip/infra/mqtt"
)

type Config struct {
	Vehicles []VehicleConfig `json:"vehicles"`
	Planner  PlannerConfig   `json:"planner"`
	Storage  StorageConfig   `json:"storage"`
	Journal  JournalConfig   `json:"journal"`
	MQTT     mqtt.Config     `json:"mqtt"`
	HTTP     HTTPConfig      `json:"http"`
	Metrics  metrics.Config  `json:"metrics"`
	Sentry   SentryConfig    `json:"sentry"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults applies the defaults of every section.
func (c *Config) SetDefaults() {
	for i := range c.Vehicles {
		c.Vehicles[i].SetDefaults()
	}
	c.Planner.SetDefaults()
	c.Storage.SetDefaults()
	c.Journal.SetDefaults()
	c.HTTP.SetDefaults()
	if c.MQTT.BaseTopic == "" {
		c.MQTT.BaseTopic = "ev_trip_planner"
	}
	if c.MQTT.DiscoveryPrefix == "" {
		c.MQTT.DiscoveryPrefix = "homeassistant"
	}
}

// Validate checks every section and reports all problems at once.
func (c Config) Validate() error {
	var errs []error
	if len(c.Vehicles) == 0 {
		errs = append(errs, errors.New("at least one vehicle is required"))
	}
	seen := map[string]bool{}
	for i, v := range c.Vehicles {
		if err := v.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("vehicles[%d]: %w", i, err))
		}
		if seen[v.ID()] {
			errs = append(errs, fmt.Errorf("vehicles[%d]: duplicate vehicle %q", i, v.Name))
		}
		seen[v.ID()] = true
	}
	for name, err := range map[string]error{
		"planner": c.Planner.Validate(),
		"storage": c.Storage.Validate(),
		"journal": c.Journal.Validate(),
		"http":    c.HTTP.Validate(),
	} {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Vehicle returns the configuration of the vehicle with the given id.
func (c Config) Vehicle(id string) (VehicleConfig, bool) {
	for _, v := range c.Vehicles {
		if v.ID() == id {
			return v, true
		}
	}
	return VehicleConfig{}, false
}
