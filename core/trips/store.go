package trips

import (
	"context"
	"sync"

	"github.com/kilianp07/evtrip/core/model"
)

// StorageVersion is the version of the stored trip list shape.
const StorageVersion = 1

// StorageKey returns the key under which a vehicle's trip list is stored.
func StorageKey(vehicleID string) string {
	return "ev_trip_planner." + vehicleID + ".trips"
}

// Store persists the full trip list of a vehicle. Load reports found=false
// when nothing was ever saved for the vehicle.
type Store interface {
	Load(ctx context.Context, vehicleID string) (trips []model.Trip, found bool, err error)
	Save(ctx context.Context, vehicleID string, trips []model.Trip) error
}

// MutateFunc receives the stored list of a vehicle and whether one exists.
// It returns the list to write and whether anything changed. Stores may call
// it more than once when a concurrent writer wins the race.
type MutateFunc func(trips []model.Trip, found bool) ([]model.Trip, bool, error)

// Mutator is implemented by stores that run a whole load/modify/save span
// atomically against every writer of the same storage, including other
// processes. Mutate reports whether a list was written.
type Mutator interface {
	Mutate(ctx context.Context, vehicleID string, fn MutateFunc) (bool, error)
}

// Notifier is told after every persisted mutation. It must not block.
type Notifier interface {
	Notify(vehicleID string)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(vehicleID string)

func (f NotifierFunc) Notify(vehicleID string) { f(vehicleID) }

type nopNotifier struct{}

func (nopNotifier) Notify(string) {}

// MemoryStore keeps trip lists in memory. It is safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	data  map[string][]model.Trip
	saves map[string]int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string][]model.Trip{}, saves: map[string]int{}}
}

func (s *MemoryStore) Load(_ context.Context, vehicleID string) ([]model.Trip, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	trips, ok := s.data[vehicleID]
	if !ok {
		return nil, false, nil
	}
	return append([]model.Trip(nil), trips...), true, nil
}

func (s *MemoryStore) Save(_ context.Context, vehicleID string, trips []model.Trip) error {
	s.mu.Lock()
	s.data[vehicleID] = append([]model.Trip{}, trips...)
	s.saves[vehicleID]++
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Mutate(_ context.Context, vehicleID string, fn MutateFunc) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, found := s.data[vehicleID]
	next, changed, err := fn(append([]model.Trip(nil), cur...), found)
	if err != nil || !changed {
		return false, err
	}
	s.data[vehicleID] = append([]model.Trip{}, next...)
	s.saves[vehicleID]++
	return true, nil
}

// Saves returns how many times the list of vehicleID was written.
func (s *MemoryStore) Saves(vehicleID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves[vehicleID]
}
