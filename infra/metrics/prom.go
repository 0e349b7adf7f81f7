package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/evtrip/core/metrics"
	"github.com/kilianp07/evtrip/core/planner"
)

// PromSink exposes the derived values of each vehicle as Prometheus metrics.
type PromSink struct {
	recurring *prometheus.GaugeVec
	punctual  *prometheus.GaugeVec
	energy    *prometheus.GaugeVec
	hours     *prometheus.GaugeVec
	next      *prometheus.GaugeVec
	degraded  *prometheus.GaugeVec
	commands  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	mutations *prometheus.CounterVec
}

// NewPromSink registers the metrics on the default Prometheus registerer.
// The Prometheus server should be started separately using cfg.PrometheusPort.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered by a previous sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	vehicle := []string{"vehicle_id"}
	s := &PromSink{
		recurring: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "evtrip_recurring_trips",
			Help: "Number of recurring trips stored for the vehicle",
		}, vehicle),
		punctual: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "evtrip_punctual_trips",
			Help: "Number of punctual trips stored for the vehicle",
		}, vehicle),
		energy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "evtrip_energy_needed_today_kwh",
			Help: "Energy needed by today's trips",
		}, vehicle),
		hours: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "evtrip_charging_hours_today",
			Help: "Whole hours of charging needed today",
		}, vehicle),
		next: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "evtrip_next_trip_timestamp_seconds",
			Help: "Unix time of the next trip, 0 when there is none",
		}, vehicle),
		degraded: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "evtrip_snapshot_degraded",
			Help: "1 when the last snapshot fell back to defaults",
		}, vehicle),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evtrip_commands_total",
			Help: "Commands applied to trip lists",
		}, []string{"vehicle_id", "command", "source", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "evtrip_command_duration_seconds",
			Help:    "Time spent applying a command",
			Buckets: prometheus.DefBuckets,
		}, []string{"command"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evtrip_trip_mutations_total",
			Help: "Persisted trip list mutations",
		}, vehicle),
	}
	for _, g := range []**prometheus.GaugeVec{&s.recurring, &s.punctual, &s.energy, &s.hours, &s.next, &s.degraded} {
		if err := register(reg, g); err != nil {
			return nil, err
		}
	}
	for _, c := range []**prometheus.CounterVec{&s.commands, &s.mutations} {
		if err := register(reg, c); err != nil {
			return nil, err
		}
	}
	if err := register(reg, &s.latency); err != nil {
		return nil, err
	}
	return s, nil
}

// register adds *c to reg, replacing it with the existing collector when the
// same metric was registered before.
func register[C prometheus.Collector](reg prometheus.Registerer, c *C) error {
	if err := reg.Register(*c); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return err
		}
		existing, ok := are.ExistingCollector.(C)
		if !ok {
			return err
		}
		*c = existing
	}
	return nil
}

// RecordSnapshot sets the gauges of the snapshot's vehicle.
func (s *PromSink) RecordSnapshot(snap planner.Snapshot) error {
	id := snap.VehicleID
	s.recurring.WithLabelValues(id).Set(float64(snap.RecurringCount))
	s.punctual.WithLabelValues(id).Set(float64(snap.PunctualCount))
	s.energy.WithLabelValues(id).Set(snap.EnergyTodayKWh)
	s.hours.WithLabelValues(id).Set(float64(snap.HoursToday))
	next := 0.0
	if snap.NextTrip != nil {
		next = float64(snap.NextTrip.At.Unix())
	}
	s.next.WithLabelValues(id).Set(next)
	degraded := 0.0
	if snap.Degraded {
		degraded = 1
	}
	s.degraded.WithLabelValues(id).Set(degraded)
	return nil
}

// RecordCommand counts the command and observes its duration.
func (s *PromSink) RecordCommand(ev coremetrics.CommandEvent) error {
	result := "ok"
	switch {
	case ev.Err != nil:
		result = "error"
	case !ev.Found:
		result = "not_found"
	}
	s.commands.WithLabelValues(ev.VehicleID, ev.Command, ev.Source, result).Inc()
	s.latency.WithLabelValues(ev.Command).Observe(ev.Duration.Seconds())
	return nil
}

// RecordMutation counts a persisted mutation.
func (s *PromSink) RecordMutation(vehicleID string, _ time.Time) error {
	s.mutations.WithLabelValues(vehicleID).Inc()
	return nil
}
