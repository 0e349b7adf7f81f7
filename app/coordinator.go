package app

import (
	"context"
	"sync"
	"time"

	"github.com/kilianp07/evtrip/core/events"
	"github.com/kilianp07/evtrip/core/logger"
	coremetrics "github.com/kilianp07/evtrip/core/metrics"
	"github.com/kilianp07/evtrip/core/planner"
	"github.com/kilianp07/evtrip/internal/eventbus"
)

// CoordinatorConfig holds the collaborators of a Coordinator.
type CoordinatorConfig struct {
	VehicleID       string
	Planner         *planner.Planner
	Sink            coremetrics.SnapshotSink
	ChargingPowerKW float64
	// Interval of the fallback refresh. A zero Interval runs no timer; the
	// config layer maps a negative refresh_interval_seconds to zero.
	Interval  time.Duration
	Refreshed *eventbus.TypedBus[events.SnapshotRefreshed]
	Logger    logger.Logger
}

// Coordinator keeps the latest snapshot of one vehicle and pushes every
// refresh to the display sinks.
type Coordinator struct {
	cfg CoordinatorConfig
	log logger.Logger

	refreshMu sync.Mutex
	mu        sync.RWMutex
	latest    planner.Snapshot
	ok        bool
}

// NewCoordinator creates a coordinator. It does not refresh until Refresh
// or Run is called.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.Sink == nil {
		cfg.Sink = coremetrics.NopSink{}
	}
	if cfg.ChargingPowerKW <= 0 {
		cfg.ChargingPowerKW = planner.DefaultChargingPowerKW
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop{}
	}
	return &Coordinator{cfg: cfg, log: log}
}

// VehicleID returns the vehicle the coordinator serves.
func (c *Coordinator) VehicleID() string { return c.cfg.VehicleID }

// Planner returns the aggregator backing the snapshots.
func (c *Coordinator) Planner() *planner.Planner { return c.cfg.Planner }

// ChargingPowerKW returns the power used for hours_today.
func (c *Coordinator) ChargingPowerKW() float64 { return c.cfg.ChargingPowerKW }

// Refresh recomputes the snapshot, stores it and pushes it to the sink.
// Concurrent refreshes are serialized so the stored snapshot is the newest.
func (c *Coordinator) Refresh(ctx context.Context) planner.Snapshot {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	snap := c.cfg.Planner.Snapshot(ctx, c.cfg.ChargingPowerKW)
	c.mu.Lock()
	c.latest = snap
	c.ok = true
	c.mu.Unlock()

	if err := c.cfg.Sink.RecordSnapshot(snap); err != nil {
		c.log.Warnf("record snapshot for %s: %v", c.cfg.VehicleID, err)
	}
	if snap.Degraded {
		c.log.Warnf("snapshot for %s degraded: %s", c.cfg.VehicleID, snap.DegradedReason)
	}
	if c.cfg.Refreshed != nil {
		c.cfg.Refreshed.Publish(events.SnapshotRefreshed{VehicleID: c.cfg.VehicleID, Degraded: snap.Degraded, At: snap.GeneratedAt})
	}
	return snap
}

// Latest returns the last computed snapshot and whether one exists.
func (c *Coordinator) Latest() (planner.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest, c.ok
}

// Run refreshes once, then on every TripsUpdated event for the vehicle and
// on the fallback interval. It returns when ctx is done or updates closes.
func (c *Coordinator) Run(ctx context.Context, updates *eventbus.TypedBus[events.TripsUpdated]) {
	var sub <-chan events.TripsUpdated
	if updates != nil {
		sub = updates.Subscribe()
		defer updates.Unsubscribe(sub)
	}
	var tick <-chan time.Time
	if c.cfg.Interval > 0 {
		t := time.NewTicker(c.cfg.Interval)
		defer t.Stop()
		tick = t.C
	}
	c.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if ev.VehicleID == c.cfg.VehicleID {
				c.Refresh(ctx)
			}
		case <-tick:
			c.Refresh(ctx)
		}
	}
}
