package app

import (
	"time"

	"github.com/kilianp07/evtrip/core/events"
	"github.com/kilianp07/evtrip/internal/eventbus"
)

// BusNotifier publishes a TripsUpdated event for every persisted mutation.
// Publishing never blocks: a subscriber with a full buffer misses the event.
type BusNotifier struct {
	bus *eventbus.TypedBus[events.TripsUpdated]
	now func() time.Time
}

// NewBusNotifier creates a notifier publishing on bus.
func NewBusNotifier(bus *eventbus.TypedBus[events.TripsUpdated]) *BusNotifier {
	return &BusNotifier{bus: bus, now: time.Now}
}

// Notify implements trips.Notifier.
func (n *BusNotifier) Notify(vehicleID string) {
	n.bus.Publish(events.TripsUpdated{VehicleID: vehicleID, At: n.now()})
}
