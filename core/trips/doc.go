// Package trips owns the persisted trip list of each vehicle.
//
// A Manager loads the whole list from its Store, mutates one entry and saves
// the whole list back. Every load/mutate/save span runs under the manager's
// mutex so concurrent callers for the same vehicle are serialized. After a
// successful save the Notifier is told that derived data is stale.
package trips
