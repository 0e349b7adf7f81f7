package logger

import corelogger "github.com/kilianp07/evtrip/core/logger"

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// NopLogger implements Logger with no-op methods.
type NopLogger = corelogger.Nop

// New returns a Logger for the given component. The output format is chosen
// from the APP_ENV variable.
func New(component string) Logger {
	return NewZerologLogger(component)
}

// ForVehicle returns a component logger whose lines also carry the vehicle.
func ForVehicle(component, vehicleID string) Logger {
	return newZerolog(component, map[string]string{"vehicle_id": vehicleID})
}
