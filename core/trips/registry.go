package trips

import (
	"fmt"
	"sync"
)

// Registry maps vehicle ids to their managers. It replaces a process-wide
// lookup table: callers resolve a vehicle through the registry they were
// handed.
type Registry struct {
	mu       sync.RWMutex
	store    Store
	opts     []Option
	managers map[string]*Manager
	order    []string
}

// NewRegistry returns a registry whose managers share store and opts.
func NewRegistry(store Store, opts ...Option) *Registry {
	return &Registry{store: store, opts: opts, managers: map[string]*Manager{}}
}

// Register creates the manager for vehicleID. Extra options are applied after
// the shared ones.
func (r *Registry) Register(vehicleID string, opts ...Option) (*Manager, error) {
	if vehicleID == "" {
		return nil, fmt.Errorf("%w: empty vehicle id", ErrInvalidInput)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.managers[vehicleID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrVehicleExists, vehicleID)
	}
	all := append(append([]Option{}, r.opts...), opts...)
	m := NewManager(vehicleID, r.store, all...)
	r.managers[vehicleID] = m
	r.order = append(r.order, vehicleID)
	return m, nil
}

// Get returns the manager of vehicleID.
func (r *Registry) Get(vehicleID string) (*Manager, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.managers[vehicleID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVehicle, vehicleID)
	}
	return m, nil
}

// Vehicles returns the registered ids in registration order.
func (r *Registry) Vehicles() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}
