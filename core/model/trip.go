package model

import "time"

// Kind discriminates the two trip variants stored for a vehicle.
type Kind string

const (
	KindRecurring Kind = "recurring"
	KindPunctual  Kind = "punctual"
)

// Status is the lifecycle state of a punctual trip.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is one of the known punctual trip states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// Trip is the stored record for one trip of a vehicle. Kind selects which of
// the variant fields are meaningful:
//   - recurring: Weekday, Time and Active
//   - punctual: DateTime and Status
//
// Time and DateTime keep the submitted text so that a record reads back
// exactly as it was written. They are parsed when the trip is expanded.
type Trip struct {
	ID          string    `json:"id" bson:"id"`
	Kind        Kind      `json:"type" bson:"type"`
	Weekday     Weekday   `json:"weekday,omitempty" bson:"weekday,omitempty"`
	Time        string    `json:"time,omitempty" bson:"time,omitempty"`
	DateTime    string    `json:"datetime,omitempty" bson:"datetime,omitempty"`
	DistanceKM  float64   `json:"km" bson:"km"`
	EnergyKWh   float64   `json:"kwh" bson:"kwh"`
	Description string    `json:"description" bson:"description"`
	Active      bool      `json:"active,omitempty" bson:"active,omitempty"`
	Status      Status    `json:"status,omitempty" bson:"status,omitempty"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
}

// IsRecurring reports whether the trip is a weekly template.
func (t Trip) IsRecurring() bool { return t.Kind == KindRecurring }

// IsPunctual reports whether the trip is a one-off journey.
func (t Trip) IsPunctual() bool { return t.Kind == KindPunctual }

// Source tells where an occurrence was derived from.
type Source string

const (
	SourceRecurring Source = "recurring"
	SourcePunctual  Source = "punctual"
)

// Occurrence is one dated instance of a trip. It is computed on demand and
// never persisted.
type Occurrence struct {
	TripID      string    `json:"trip_id"`
	Description string    `json:"description"`
	At          time.Time `json:"datetime"`
	EnergyKWh   float64   `json:"kwh"`
	Source      Source    `json:"source"`
}
