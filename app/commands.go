package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/evtrip/core/factory"
	"github.com/kilianp07/evtrip/core/journal"
	"github.com/kilianp07/evtrip/core/logger"
	coremetrics "github.com/kilianp07/evtrip/core/metrics"
	"github.com/kilianp07/evtrip/core/monitoring"
	"github.com/kilianp07/evtrip/core/trips"
)

// Command names accepted by Execute and used as journal entries.
const (
	CmdAddRecurring     = "add_recurring_trip"
	CmdAddPunctual      = "add_punctual_trip"
	CmdEditTrip         = "edit_trip"
	CmdDeleteTrip       = "delete_trip"
	CmdPauseRecurring   = "pause_recurring_trip"
	CmdResumeRecurring  = "resume_recurring_trip"
	CmdCompletePunctual = "complete_punctual_trip"
	CmdCancelPunctual   = "cancel_punctual_trip"
	CmdImportPattern    = "import_weekly_pattern"
)

// ErrUnknownCommand is returned by Execute for names it does not handle.
var ErrUnknownCommand = fmt.Errorf("%w: unknown command", trips.ErrInvalidInput)

// EnergyEstimator estimates the energy of a trip when the caller gave none.
type EnergyEstimator func(vehicleID string, km float64) float64

// RecurringInput holds the arguments of add_recurring_trip. A nil KWh is
// estimated from the distance.
type RecurringInput struct {
	Weekday     string   `json:"weekday"`
	Time        string   `json:"time"`
	KM          float64  `json:"km"`
	KWh         *float64 `json:"kwh"`
	Description string   `json:"description"`
}

// PunctualInput holds the arguments of add_punctual_trip.
type PunctualInput struct {
	Datetime    string   `json:"datetime"`
	KM          float64  `json:"km"`
	KWh         *float64 `json:"kwh"`
	Description string   `json:"description"`
}

// PatternInput holds the arguments of import_weekly_pattern.
type PatternInput struct {
	Pattern       trips.WeeklyPattern `json:"pattern"`
	ClearExisting *bool               `json:"clear_existing"`
}

// Clear reports whether existing recurring trips are removed. Defaults to true.
func (p PatternInput) Clear() bool { return p.ClearExisting == nil || *p.ClearExisting }

// TripResult is returned by commands creating a trip.
type TripResult struct {
	TripID string `json:"trip_id"`
}

// FoundResult is returned by commands addressing an existing trip.
type FoundResult struct {
	TripID string `json:"trip_id"`
	Found  bool   `json:"found"`
}

// Commands applies the trip commands to the registered vehicles. Every
// command is journaled and reported to the metrics recorder.
type Commands struct {
	registry *trips.Registry
	journal  journal.Store
	recorder coremetrics.CommandRecorder
	monitor  monitoring.Monitor
	log      logger.Logger
	now      func() time.Time
	estimate EnergyEstimator
}

// CommandOption configures Commands.
type CommandOption func(*Commands)

// WithJournal records every command in s.
func WithJournal(s journal.Store) CommandOption {
	return func(c *Commands) {
		if s != nil {
			c.journal = s
		}
	}
}

// WithRecorder reports command outcomes to r.
func WithRecorder(r coremetrics.CommandRecorder) CommandOption {
	return func(c *Commands) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithMonitor reports unexpected command failures to m.
func WithMonitor(m monitoring.Monitor) CommandOption {
	return func(c *Commands) {
		if m != nil {
			c.monitor = m
		}
	}
}

// WithLogger sets the command logger.
func WithLogger(l logger.Logger) CommandOption {
	return func(c *Commands) {
		if l != nil {
			c.log = l
		}
	}
}

// WithClock overrides the journal clock.
func WithClock(now func() time.Time) CommandOption {
	return func(c *Commands) {
		if now != nil {
			c.now = now
		}
	}
}

// WithEstimator fills in the energy of trips added without one.
func WithEstimator(e EnergyEstimator) CommandOption {
	return func(c *Commands) { c.estimate = e }
}

// NewCommands creates the command surface over reg.
func NewCommands(reg *trips.Registry, opts ...CommandOption) *Commands {
	c := &Commands{
		registry: reg,
		journal:  journal.NopStore{},
		recorder: coremetrics.NopSink{},
		monitor:  monitoring.NopMonitor{},
		log:      logger.Nop{},
		now:      time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Registry returns the vehicle registry the commands operate on.
func (c *Commands) Registry() *trips.Registry { return c.registry }

func (c *Commands) energy(vehicleID string, km float64, kwh *float64) float64 {
	if kwh != nil {
		return *kwh
	}
	if c.estimate == nil {
		return 0
	}
	return c.estimate(vehicleID, km)
}

// run resolves the vehicle, applies fn and records the outcome.
func (c *Commands) run(ctx context.Context, source, vehicleID, name, tripID string, args map[string]any, fn func(*trips.Manager) (string, bool, error)) (string, bool, error) {
	start := c.now()
	var (
		found bool
		err   error
	)
	m, err := c.registry.Get(vehicleID)
	if err == nil {
		tripID, found, err = fn(m)
	}

	rec := journal.Record{
		Timestamp: start,
		VehicleID: vehicleID,
		Command:   name,
		Source:    source,
		TripID:    tripID,
		Args:      args,
		Found:     found,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if jerr := c.journal.Append(ctx, rec); jerr != nil {
		c.log.Warnf("journal %s: %v", name, jerr)
	}
	_ = c.recorder.RecordCommand(coremetrics.CommandEvent{
		VehicleID: vehicleID,
		Command:   name,
		Source:    source,
		Found:     found,
		Err:       err,
		Duration:  c.now().Sub(start),
		Time:      start,
	})

	switch {
	case err == nil:
		c.log.Debugw("command applied", map[string]any{"vehicle_id": vehicleID, "command": name, "trip_id": tripID, "found": found})
	case errors.Is(err, trips.ErrInvalidInput), errors.Is(err, trips.ErrUnknownVehicle):
		c.log.Warnf("%s on %s rejected: %v", name, vehicleID, err)
	default:
		c.log.Errorf("%s on %s failed: %v", name, vehicleID, err)
		c.monitor.CaptureException(err, map[string]string{"vehicle_id": vehicleID, "command": name, "source": source})
	}
	return tripID, found, err
}

// AddRecurring adds a weekly trip and returns its id.
func (c *Commands) AddRecurring(ctx context.Context, source, vehicleID string, in RecurringInput) (string, error) {
	kwh := c.energy(vehicleID, in.KM, in.KWh)
	args := map[string]any{"weekday": in.Weekday, "time": in.Time, "km": in.KM, "kwh": kwh, "description": in.Description}
	id, _, err := c.run(ctx, source, vehicleID, CmdAddRecurring, "", args, func(m *trips.Manager) (string, bool, error) {
		id, err := m.AddRecurring(ctx, in.Weekday, in.Time, in.KM, kwh, in.Description)
		return id, err == nil, err
	})
	return id, err
}

// AddPunctual adds a one-off trip and returns its id.
func (c *Commands) AddPunctual(ctx context.Context, source, vehicleID string, in PunctualInput) (string, error) {
	kwh := c.energy(vehicleID, in.KM, in.KWh)
	args := map[string]any{"datetime": in.Datetime, "km": in.KM, "kwh": kwh, "description": in.Description}
	id, _, err := c.run(ctx, source, vehicleID, CmdAddPunctual, "", args, func(m *trips.Manager) (string, bool, error) {
		id, err := m.AddPunctual(ctx, in.Datetime, in.KM, kwh, in.Description)
		return id, err == nil, err
	})
	return id, err
}

// EditTrip merges fields into the trip.
func (c *Commands) EditTrip(ctx context.Context, source, vehicleID, tripID string, fields map[string]any) (bool, error) {
	_, found, err := c.run(ctx, source, vehicleID, CmdEditTrip, tripID, fields, func(m *trips.Manager) (string, bool, error) {
		upd, err := trips.DecodeUpdate(fields)
		if err != nil {
			return tripID, false, err
		}
		ok, err := m.Update(ctx, tripID, upd)
		return tripID, ok, err
	})
	return found, err
}

// DeleteTrip removes the trip.
func (c *Commands) DeleteTrip(ctx context.Context, source, vehicleID, tripID string) (bool, error) {
	return c.byID(ctx, source, vehicleID, CmdDeleteTrip, tripID, (*trips.Manager).Delete)
}

// PauseRecurring deactivates a recurring trip.
func (c *Commands) PauseRecurring(ctx context.Context, source, vehicleID, tripID string) (bool, error) {
	return c.byID(ctx, source, vehicleID, CmdPauseRecurring, tripID, (*trips.Manager).Pause)
}

// ResumeRecurring reactivates a recurring trip.
func (c *Commands) ResumeRecurring(ctx context.Context, source, vehicleID, tripID string) (bool, error) {
	return c.byID(ctx, source, vehicleID, CmdResumeRecurring, tripID, (*trips.Manager).Resume)
}

// CompletePunctual marks a punctual trip completed.
func (c *Commands) CompletePunctual(ctx context.Context, source, vehicleID, tripID string) (bool, error) {
	return c.byID(ctx, source, vehicleID, CmdCompletePunctual, tripID, (*trips.Manager).Complete)
}

// CancelPunctual marks a punctual trip cancelled.
func (c *Commands) CancelPunctual(ctx context.Context, source, vehicleID, tripID string) (bool, error) {
	return c.byID(ctx, source, vehicleID, CmdCancelPunctual, tripID, (*trips.Manager).Cancel)
}

func (c *Commands) byID(ctx context.Context, source, vehicleID, name, tripID string, op func(*trips.Manager, context.Context, string) (bool, error)) (bool, error) {
	_, found, err := c.run(ctx, source, vehicleID, name, tripID, nil, func(m *trips.Manager) (string, bool, error) {
		ok, err := op(m, ctx, tripID)
		return tripID, ok, err
	})
	return found, err
}

// ImportPattern replaces or extends the recurring trips with a weekly pattern.
func (c *Commands) ImportPattern(ctx context.Context, source, vehicleID string, in PatternInput) (trips.ImportResult, error) {
	var res trips.ImportResult
	args := map[string]any{"days": len(in.Pattern), "clear_existing": in.Clear()}
	_, _, err := c.run(ctx, source, vehicleID, CmdImportPattern, "", args, func(m *trips.Manager) (string, bool, error) {
		var err error
		res, err = m.ImportWeeklyPattern(ctx, in.Pattern, in.Clear())
		return "", err == nil, err
	})
	return res, err
}

// Execute decodes args for the named command and runs it. It backs the
// MQTT command topics.
func (c *Commands) Execute(ctx context.Context, source, vehicleID, name string, args map[string]any) (any, error) {
	switch name {
	case CmdAddRecurring:
		var in RecurringInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		id, err := c.AddRecurring(ctx, source, vehicleID, in)
		if err != nil {
			return nil, err
		}
		return TripResult{TripID: id}, nil
	case CmdAddPunctual:
		var in PunctualInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		id, err := c.AddPunctual(ctx, source, vehicleID, in)
		if err != nil {
			return nil, err
		}
		return TripResult{TripID: id}, nil
	case CmdEditTrip:
		id, rest, err := splitTripID(args)
		if err != nil {
			return nil, err
		}
		fields := rest
		if nested, ok := rest["updates"].(map[string]any); ok && len(rest) == 1 {
			fields = nested
		}
		found, err := c.EditTrip(ctx, source, vehicleID, id, fields)
		return FoundResult{TripID: id, Found: found}, err
	case CmdDeleteTrip, CmdPauseRecurring, CmdResumeRecurring, CmdCompletePunctual, CmdCancelPunctual:
		id, rest, err := splitTripID(args)
		if err != nil {
			return nil, err
		}
		if len(rest) > 0 {
			return nil, fmt.Errorf("%w: unexpected arguments for %s", trips.ErrInvalidInput, name)
		}
		ops := map[string]func(context.Context, string, string, string) (bool, error){
			CmdDeleteTrip:       c.DeleteTrip,
			CmdPauseRecurring:   c.PauseRecurring,
			CmdResumeRecurring:  c.ResumeRecurring,
			CmdCompletePunctual: c.CompletePunctual,
			CmdCancelPunctual:   c.CancelPunctual,
		}
		found, err := ops[name](ctx, source, vehicleID, id)
		return FoundResult{TripID: id, Found: found}, err
	case CmdImportPattern:
		var in PatternInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return c.ImportPattern(ctx, source, vehicleID, in)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownCommand, name)
	}
}

func decodeArgs(args map[string]any, out any) error {
	if err := factory.DecodeStrict(args, out); err != nil {
		return fmt.Errorf("%w: %v", trips.ErrInvalidInput, err)
	}
	return nil
}

func splitTripID(args map[string]any) (string, map[string]any, error) {
	id, _ := args["trip_id"].(string)
	if id == "" {
		return "", nil, fmt.Errorf("%w: trip_id is required", trips.ErrInvalidInput)
	}
	rest := make(map[string]any, len(args))
	for k, v := range args {
		if k != "trip_id" {
			rest[k] = v
		}
	}
	return id, rest, nil
}

