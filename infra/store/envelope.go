package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kilianp07/evtrip/core/model"
	"github.com/kilianp07/evtrip/core/trips"
)

// Envelope is the stored shape of a vehicle's trip list.
type Envelope struct {
	Version int          `json:"version" bson:"version"`
	Key     string       `json:"key" bson:"key"`
	Data    []model.Trip `json:"data" bson:"data"`
}

// NewEnvelope wraps the trip list of vehicleID at the current version.
func NewEnvelope(vehicleID string, list []model.Trip) Envelope {
	if list == nil {
		list = []model.Trip{}
	}
	return Envelope{Version: trips.StorageVersion, Key: trips.StorageKey(vehicleID), Data: list}
}

// Trips checks the version and returns the stored list.
func (e Envelope) Trips() ([]model.Trip, error) {
	if e.Version > trips.StorageVersion {
		return nil, fmt.Errorf("%s: stored version %d is newer than supported %d", e.Key, e.Version, trips.StorageVersion)
	}
	if e.Data == nil {
		return []model.Trip{}, nil
	}
	return e.Data, nil
}

func decodeList(raw []byte, version int) ([]model.Trip, error) {
	var list []model.Trip
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode trips: %w", err)
	}
	return Envelope{Version: version, Data: list}.Trips()
}

// Backend is a trip store that holds resources.
type Backend interface {
	trips.Store
	Close() error
}

type memoryBackend struct{ *trips.MemoryStore }

func (memoryBackend) Close() error { return nil }

// Ping checks a backend reachable when it supports it.
func Ping(ctx context.Context, b Backend) error {
	if p, ok := b.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}
