// Package metrics records gateway activity.
//
// Recorder is the interface shards and the cluster report to. Prometheus
// exports the series through a prometheus.Registerer; Noop discards them
// and is the default for library use.
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
package metrics
