package metrics

import (
	"context"

	"github.com/kilianp07/evtrip/core/events"
	coremetrics "github.com/kilianp07/evtrip/core/metrics"
	"github.com/kilianp07/evtrip/internal/eventbus"
)

// StartEventCollector subscribes to trip mutation events and forwards them
// to rec. It stops when the context is canceled or the bus is closed.
func StartEventCollector(ctx context.Context, bus *eventbus.TypedBus[events.TripsUpdated], rec coremetrics.MutationRecorder) {
	if bus == nil || rec == nil {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				_ = rec.RecordMutation(ev.VehicleID, ev.At)
			}
		}
	}()
}
