// Package metrics defines the sinks that receive each vehicle's derived values
// after a refresh. Sinks like PromSink and InfluxSink live in infra/metrics
// and register themselves with the factory; NewSnapshotSink returns a
// MultiSink automatically when several sinks are configured.
package metrics
