// Package events defines the events emitted on the event bus.
//
// Available event types:
//   - TripsUpdated: a vehicle's trip list was persisted
//   - SnapshotRefreshed: a coordinator recomputed a vehicle's derived values
package events
