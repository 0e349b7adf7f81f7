// Package infra holds the adapters behind the core contracts: trip storage,
// the command journal, MQTT, metrics sinks and Sentry.
package infra
