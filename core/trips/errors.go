package trips

import "errors"

// ErrInvalidInput is returned when a trip cannot be created or edited because
// one of its fields is malformed. Callers get it wrapped with the detail.
var ErrInvalidInput = errors.New("invalid input")

// ErrUnknownVehicle is returned by the Registry for vehicles never registered.
var ErrUnknownVehicle = errors.New("unknown vehicle")

// ErrVehicleExists is returned when a vehicle is registered twice.
var ErrVehicleExists = errors.New("vehicle already registered")
