package config

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// PlannerConfig controls how occurrences are computed and refreshed.
type PlannerConfig struct {
	// Timezone is an IANA zone name. Empty means the process local zone.
	Timezone    string `json:"timezone"`
	HorizonDays int    `json:"horizon_days"`
	// RefreshIntervalSeconds is the fallback refresh period. Zero selects the
	// default, a negative value disables the timer.
	RefreshIntervalSeconds int `json:"refresh_interval_seconds"`
}

// SetDefaults applies sane defaults.
func (c *PlannerConfig) SetDefaults() {
	if c.HorizonDays == 0 {
		c.HorizonDays = 7
	}
	if c.RefreshIntervalSeconds == 0 {
		c.RefreshIntervalSeconds = 30
	}
}

// Validate checks the zone name and the horizon.
func (c PlannerConfig) Validate() error {
	if c.HorizonDays < 1 || c.HorizonDays > 366 {
		return fmt.Errorf("horizon_days must be within 1..366, got %d", c.HorizonDays)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone.
func (c PlannerConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// RefreshInterval returns the fallback refresh period, zero when disabled.
func (c PlannerConfig) RefreshInterval() time.Duration {
	if c.RefreshIntervalSeconds < 0 {
		return 0
	}
	if c.RefreshIntervalSeconds == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.RefreshIntervalSeconds) * time.Second
}
