// Package journal records the commands applied to vehicles' trip lists.
package journal

import (
	"context"
	"time"
)

// Record captures one command and its outcome.
type Record struct {
	Timestamp time.Time      `json:"timestamp"`
	VehicleID string         `json:"vehicle_id"`
	Command   string         `json:"command"`
	Source    string         `json:"source,omitempty"`
	TripID    string         `json:"trip_id,omitempty"`
	Args      map[string]any `json:"args,omitempty"`
	Found     bool           `json:"found"`
	Error     string         `json:"error,omitempty"`
}

// Query defines filters for retrieving records. Zero fields match anything.
type Query struct {
	Start     time.Time
	End       time.Time
	VehicleID string
	Command   string
	Limit     int
}

// Match reports whether r passes the filters of q. Limit is not considered.
func (q Query) Match(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.VehicleID != "" && r.VehicleID != q.VehicleID {
		return false
	}
	if q.Command != "" && r.Command != q.Command {
		return false
	}
	return true
}

// Tail keeps the last Limit records of recs.
func (q Query) Tail(recs []Record) []Record {
	if q.Limit > 0 && len(recs) > q.Limit {
		return recs[len(recs)-q.Limit:]
	}
	return recs
}

// Store persists Records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// NopStore drops every record.
type NopStore struct{}

func (NopStore) Append(context.Context, Record) error          { return nil }
func (NopStore) Query(context.Context, Query) ([]Record, error) { return nil, nil }
func (NopStore) Close() error                                   { return nil }
