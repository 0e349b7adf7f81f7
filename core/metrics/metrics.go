package metrics

import (
	"errors"
	"time"

	"github.com/kilianp07/evtrip/core/planner"
)

// SnapshotSink records the derived values of a vehicle after each refresh.
type SnapshotSink interface {
	RecordSnapshot(s planner.Snapshot) error
}

// CommandEvent describes one command applied to a vehicle's trips.
type CommandEvent struct {
	VehicleID string
	Command   string
	Source    string
	Found     bool
	Err       error
	Duration  time.Duration
	Time      time.Time
}

// CommandRecorder records command outcomes. Sinks implement it optionally.
type CommandRecorder interface {
	RecordCommand(ev CommandEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordSnapshot(planner.Snapshot) error { return nil }
func (NopSink) RecordCommand(CommandEvent) error      { return nil }

// MultiSink fans records out to several sinks.
type MultiSink struct {
	Sinks []SnapshotSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...SnapshotSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// Add appends a sink.
func (m *MultiSink) Add(s SnapshotSink) {
	if s != nil {
		m.Sinks = append(m.Sinks, s)
	}
}

// RecordSnapshot forwards the snapshot to every sink. One failing sink does
// not stop the others; all errors are joined.
func (m *MultiSink) RecordSnapshot(s planner.Snapshot) error {
	var errs []error
	for _, sink := range m.Sinks {
		if err := sink.RecordSnapshot(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordCommand forwards the event to the sinks that record commands.
func (m *MultiSink) RecordCommand(ev CommandEvent) error {
	var errs []error
	for _, sink := range m.Sinks {
		if rec, ok := sink.(CommandRecorder); ok {
			if err := rec.RecordCommand(ev); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// MutationRecorder records persisted trip mutations. Sinks implement it
// optionally.
type MutationRecorder interface {
	RecordMutation(vehicleID string, at time.Time) error
}

func (NopSink) RecordMutation(string, time.Time) error { return nil }

// RecordMutation forwards the mutation to the sinks that record them.
func (m *MultiSink) RecordMutation(vehicleID string, at time.Time) error {
	var errs []error
	for _, sink := range m.Sinks {
		if rec, ok := sink.(MutationRecorder); ok {
			if err := rec.RecordMutation(vehicleID, at); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
