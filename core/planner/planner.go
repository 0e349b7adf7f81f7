// Package planner derives charging requirements from a vehicle's trips.
//
// Expand and the helpers in aggregate.go are pure. Planner reads the trip
// lists through a TripSource and applies them with a single "now" sample per
// call. Read operations never fail hard: on trouble they return a safe default
// together with a *DegradedError.
package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/evtrip/core/logger"
	"github.com/kilianp07/evtrip/core/model"
	"github.com/kilianp07/evtrip/core/monitoring"
)

// TripSource is the read side of the trip repository. List returns every
// trip of the vehicle in insertion order from a single read.
type TripSource interface {
	List(ctx context.Context) ([]model.Trip, error)
}

// Planner computes occurrences, the next trip and today's energy demand.
type Planner struct {
	src       TripSource
	vehicleID string
	loc       *time.Location
	now       func() time.Time
	horizon   int
	log       logger.Logger
	monitor   monitoring.Monitor
}

// Option customises a Planner.
type Option func(*Planner)

// WithLocation sets the zone occurrences are expressed in.
func WithLocation(loc *time.Location) Option {
	return func(p *Planner) {
		if loc != nil {
			p.loc = loc
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Planner) {
		if now != nil {
			p.now = now
		}
	}
}

// WithHorizon sets the default expansion window in days.
func WithHorizon(days int) Option {
	return func(p *Planner) {
		if days > 0 {
			p.horizon = days
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(p *Planner) {
		if l != nil {
			p.log = l
		}
	}
}

// WithMonitor reports degraded computations to m.
func WithMonitor(m monitoring.Monitor) Option {
	return func(p *Planner) {
		if m != nil {
			p.monitor = m
		}
	}
}

// WithVehicleID tags log lines and reports with the vehicle.
func WithVehicleID(id string) Option {
	return func(p *Planner) { p.vehicleID = id }
}

// New returns a Planner reading from src.
func New(src TripSource, opts ...Option) *Planner {
	p := &Planner{
		src:     src,
		loc:     time.Local,
		now:     time.Now,
		horizon: DefaultHorizonDays,
		log:     logger.Nop{},
		monitor: monitoring.NopMonitor{},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Location returns the zone the planner works in.
func (p *Planner) Location() *time.Location { return p.loc }

// Horizon returns the default expansion window in days.
func (p *Planner) Horizon() int { return p.horizon }

// Now returns the current time in the planner's zone.
func (p *Planner) Now() time.Time { return p.now().In(p.loc) }

type view struct {
	all       []model.Trip
	recurring []model.Trip
	punctual  []model.Trip
	occ       []model.Occurrence
	now       time.Time
}

// collect loads the trip list once, splits it by kind and expands it over
// days. A non-nil error means the view is partial or empty.
func (p *Planner) collect(ctx context.Context, op string, days int) (v view, err error) {
	v.now = p.Now()
	defer func() {
		if r := recover(); r != nil {
			v = view{now: v.now}
			err = p.degrade(op, fmt.Errorf("panic: %v", r))
		}
	}()
	all, err := p.src.List(ctx)
	if err != nil {
		return view{now: v.now}, p.degrade(op, err)
	}
	var rec, pun []model.Trip
	for _, t := range all {
		switch t.Kind {
		case model.KindRecurring:
			rec = append(rec, t)
		case model.KindPunctual:
			pun = append(pun, t)
		}
	}
	v.all, v.recurring, v.punctual = all, rec, pun
	expanded := Expand(rec, v.now, days, p.loc, p.log)
	punOcc, errs := PunctualOccurrences(pun, p.loc)
	v.occ = Merge(expanded, punOcc)
	if len(errs) > 0 {
		for _, e := range errs {
			p.log.Warnf("skipping punctual %v", e)
		}
		return v, p.degrade(op, fmt.Errorf("%d unreadable punctual trips: %w", len(errs), errs[0]))
	}
	return v, nil
}

func (p *Planner) degrade(op string, err error) error {
	d := &DegradedError{Op: op, Err: err}
	p.log.Errorf("%s for vehicle %s: %v", op, p.vehicleID, err)
	p.monitor.CaptureException(d, map[string]string{"vehicle_id": p.vehicleID, "op": op})
	return d
}

// ExpandAll returns every recurring occurrence within the horizon plus the
// pending punctual trips, sorted by time.
func (p *Planner) ExpandAll(ctx context.Context) ([]model.Occurrence, error) {
	return p.ExpandDays(ctx, p.horizon)
}

// ExpandDays is ExpandAll with an explicit horizon.
func (p *Planner) ExpandDays(ctx context.Context, days int) ([]model.Occurrence, error) {
	v, err := p.collect(ctx, "expand_all", days)
	if v.occ == nil {
		v.occ = []model.Occurrence{}
	}
	return v.occ, err
}

// NextTrip returns the first occurrence strictly after now, or nil.
func (p *Planner) NextTrip(ctx context.Context) (*model.Occurrence, error) {
	v, err := p.collect(ctx, "next_trip", p.horizon)
	return NextAfter(v.occ, v.now), err
}

// EnergyNeededToday sums the energy of today's occurrences.
func (p *Planner) EnergyNeededToday(ctx context.Context) (float64, error) {
	v, err := p.collect(ctx, "energy_needed_today", p.horizon)
	return EnergyOn(v.occ, v.now, p.loc), err
}

// HoursNeededToday converts today's energy into whole charging hours at
// powerKW.
func (p *Planner) HoursNeededToday(ctx context.Context, powerKW float64) (int, error) {
	kwh, err := p.EnergyNeededToday(ctx)
	h, herr := ChargingHours(kwh, powerKW)
	if herr != nil && err == nil {
		err = p.degrade("hours_needed_today", herr)
	}
	return h, err
}

// Snapshot is the derived read surface of one vehicle at one instant.
type Snapshot struct {
	VehicleID       string            `json:"vehicle_id"`
	RecurringCount  int               `json:"recurring_trips_count"`
	PunctualCount   int               `json:"punctual_trips_count"`
	TripsCount      int               `json:"trips_count"`
	Trips           []model.Trip      `json:"trips"`
	NextTrip        *model.Occurrence `json:"next_trip,omitempty"`
	EnergyTodayKWh  float64           `json:"kwh_today"`
	HoursToday      int               `json:"hours_today"`
	ChargingPowerKW float64           `json:"charging_power_kw"`
	Degraded        bool              `json:"degraded"`
	DegradedReason  string            `json:"degraded_reason,omitempty"`
	GeneratedAt     time.Time         `json:"generated_at"`
}

// NextDescription returns the description of the next trip or "".
func (s Snapshot) NextDescription() string {
	if s.NextTrip == nil {
		return ""
	}
	return s.NextTrip.Description
}

// Snapshot computes every derived value from one load of the trip list.
// Trips keeps the stored order.
func (p *Planner) Snapshot(ctx context.Context, powerKW float64) Snapshot {
	v, err := p.collect(ctx, "snapshot", p.horizon)
	trips := append([]model.Trip{}, v.all...)
	kwh := EnergyOn(v.occ, v.now, p.loc)
	hours, herr := ChargingHours(kwh, powerKW)
	if herr != nil && err == nil {
		err = p.degrade("snapshot", herr)
	}
	s := Snapshot{
		VehicleID:       p.vehicleID,
		RecurringCount:  len(v.recurring),
		PunctualCount:   len(v.punctual),
		TripsCount:      len(trips),
		Trips:           trips,
		NextTrip:        NextAfter(v.occ, v.now),
		EnergyTodayKWh:  kwh,
		HoursToday:      hours,
		ChargingPowerKW: powerKW,
		GeneratedAt:     v.now,
	}
	if err != nil {
		s.Degraded = true
		s.DegradedReason = err.Error()
	}
	return s
}
