package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

//nolint:gocyclo
func TestLoad(t *testing.T) {
	path := writeConfig(t, "config.yaml", `vehicles:
  - name: "Family Car"
    battery_capacity_kwh: 60
    charging_power_kw: 7.4
    safety_margin_percent: 0
planner:
  timezone: "Europe/Madrid"
  horizon_days: 14
storage:
  backend: "file"
  dir: "/tmp/evtrip"
mqtt:
  broker: "tcp://localhost:1883"
  client_id: "cli"
  username: "user"
  password: "pass"
  use_tls: false
metrics:
  sinks:
    - type: "nop"
http:
  token: "secret"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"vehicle id", cfg.Vehicles[0].ID(), "family_car"},
		{"charging power", cfg.Vehicles[0].ChargingPowerKW, 7.4},
		{"kwh_per_km default", cfg.Vehicles[0].KWhPerKM, 0.15},
		{"explicit zero margin", *cfg.Vehicles[0].SafetyMarginPercent, 0},
		{"vehicle type default", cfg.Vehicles[0].VehicleType, VehicleEV},
		{"horizon", cfg.Planner.HorizonDays, 14},
		{"refresh default", cfg.Planner.RefreshInterval(), 30 * time.Second},
		{"storage backend", cfg.Storage.Backend, StorageFile},
		{"storage dir", cfg.Storage.Dir, "/tmp/evtrip"},
		{"broker", cfg.MQTT.Broker, "tcp://localhost:1883"},
		{"base topic", cfg.MQTT.BaseTopic, "ev_trip_planner"},
		{"discovery prefix", cfg.MQTT.DiscoveryPrefix, "homeassistant"},
		{"journal backend", cfg.Journal.Backend, "jsonl"},
		{"http address", cfg.HTTP.Address, ":8080"},
		{"http token", cfg.HTTP.Token, "secret"},
		{"metrics_sink", len(cfg.Metrics.Sinks) == 1 && cfg.Metrics.Sinks[0].Type == "nop", true},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: %v", c.name, c.got)
		}
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "config.json", `{"vehicles":[{"name":"van"}]}`)
	t.Setenv("K_PLANNER__HORIZON_DAYS", "21")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Planner.HorizonDays != 21 {
		t.Fatalf("env override ignored: %d", cfg.Planner.HorizonDays)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"no vehicles":   `planner: {}`,
		"power range":   "vehicles:\n  - name: a\n    charging_power_kw: 80\n",
		"duplicate":     "vehicles:\n  - name: a\n  - name: A\n",
		"bad zone":      "vehicles:\n  - name: a\nplanner:\n  timezone: Mars/Olympus\n",
		"bad storage":   "vehicles:\n  - name: a\nstorage:\n  backend: tape\n",
		"mongo uri":     "vehicles:\n  - name: a\nstorage:\n  backend: mongo\n",
		"control label": "vehicles:\n  - name: a\n    control_type: relay\n",
	}
	for name, data := range cases {
		if _, err := Load(writeConfig(t, "c.yaml", data)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	if _, err := Load(writeConfig(t, "c.toml", "")); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Errorf("expected unsupported format error, got %v", err)
	}
}

func TestEstimateEnergy(t *testing.T) {
	v := VehicleConfig{Name: "a"}
	v.SetDefaults()
	got := v.EstimateEnergy(100)
	if got < 16.4999 || got > 16.5001 {
		t.Fatalf("expected 16.5 got %v", got)
	}
}

func TestRefreshIntervalDisabled(t *testing.T) {
	if d := (PlannerConfig{RefreshIntervalSeconds: -1}).RefreshInterval(); d != 0 {
		t.Fatalf("expected disabled timer, got %v", d)
	}
	if d := (PlannerConfig{}).RefreshInterval(); d != 30*time.Second {
		t.Fatalf("zero must select the 30s default, got %v", d)
	}
	c := PlannerConfig{}
	c.SetDefaults()
	if c.RefreshIntervalSeconds != 30 {
		t.Fatalf("expected default 30 got %d", c.RefreshIntervalSeconds)
	}
}
