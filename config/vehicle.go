package config

import (
	"fmt"
	"strings"
)

// Vehicle types.
const (
	VehicleEV   = "ev"
	VehiclePHEV = "phev"
)

// Control types. They are labels only; nothing acts on them.
const (
	ControlNone     = "none"
	ControlSwitch   = "switch"
	ControlService  = "service"
	ControlExternal = "external"
)

// VehicleConfig describes one vehicle whose trips are planned.
type VehicleConfig struct {
	Name                 string  `json:"name"`
	VehicleType          string  `json:"vehicle_type"`
	BatteryCapacityKWh   float64 `json:"battery_capacity_kwh"`
	ChargingPowerKW      float64 `json:"charging_power_kw"`
	KWhPerKM             float64 `json:"kwh_per_km"`
	SafetyMarginPercent  *int    `json:"safety_margin_percent"`
	ControlType          string  `json:"control_type"`
	SOCSensor            string  `json:"soc_sensor"`
	RangeSensor          string  `json:"range_sensor"`
	ChargingStatusSensor string  `json:"charging_status_sensor"`
}

// ID is the vehicle identifier derived from its name: lowercase with spaces
// replaced by underscores.
func (c VehicleConfig) ID() string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(c.Name)), " ", "_")
}

// SetDefaults applies sane defaults.
func (c *VehicleConfig) SetDefaults() {
	if c.VehicleType == "" {
		c.VehicleType = VehicleEV
	}
	if c.BatteryCapacityKWh == 0 {
		c.BatteryCapacityKWh = 50
	}
	if c.ChargingPowerKW == 0 {
		c.ChargingPowerKW = 3.6
	}
	if c.KWhPerKM == 0 {
		c.KWhPerKM = 0.15
	}
	if c.SafetyMarginPercent == nil {
		m := 10
		c.SafetyMarginPercent = &m
	}
	if c.ControlType == "" {
		c.ControlType = ControlNone
	}
}

// Validate checks mandatory fields and ranges.
func (c VehicleConfig) Validate() error {
	if c.ID() == "" {
		return fmt.Errorf("name is required")
	}
	if c.VehicleType != VehicleEV && c.VehicleType != VehiclePHEV {
		return fmt.Errorf("unknown vehicle_type %s", c.VehicleType)
	}
	if c.BatteryCapacityKWh < 1 || c.BatteryCapacityKWh > 200 {
		return fmt.Errorf("battery_capacity_kwh must be within 1..200, got %v", c.BatteryCapacityKWh)
	}
	if c.ChargingPowerKW < 1 || c.ChargingPowerKW > 50 {
		return fmt.Errorf("charging_power_kw must be within 1..50, got %v", c.ChargingPowerKW)
	}
	if c.KWhPerKM < 0.05 || c.KWhPerKM > 0.5 {
		return fmt.Errorf("kwh_per_km must be within 0.05..0.5, got %v", c.KWhPerKM)
	}
	if m := c.margin(); m < 0 || m > 50 {
		return fmt.Errorf("safety_margin_percent must be within 0..50, got %d", m)
	}
	switch c.ControlType {
	case ControlNone, ControlSwitch, ControlService, ControlExternal:
	default:
		return fmt.Errorf("unknown control_type %s", c.ControlType)
	}
	return nil
}

func (c VehicleConfig) margin() int {
	if c.SafetyMarginPercent == nil {
		return 10
	}
	return *c.SafetyMarginPercent
}

// EstimateEnergy returns the energy a trip of km kilometres needs, safety
// margin included.
func (c VehicleConfig) EstimateEnergy(km float64) float64 {
	return km * c.KWhPerKM * (1 + float64(c.margin())/100)
}
