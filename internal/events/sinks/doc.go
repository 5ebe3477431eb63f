// Package sinks implements consumers of run lifecycle events: structured
// logging, Prometheus job metrics, the run history store and completion
// notifications. Each sink satisfies events.Sink.
package sinks
