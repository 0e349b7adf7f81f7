package events

import "time"

// TripsUpdated is published after every persisted trip mutation.
type TripsUpdated struct {
	VehicleID string
	At        time.Time
}

// SnapshotRefreshed is published when a coordinator finished a refresh.
type SnapshotRefreshed struct {
	VehicleID string
	Degraded  bool
	At        time.Time
}
