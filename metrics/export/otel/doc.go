// Package otel provides OpenTelemetry metric bindings for authcore
// counters.
//
// [NewExporter] registers an Int64ObservableCounter per authcore metric
// and reads a snapshot in a single callback per collection cycle. The
// MeterProvider stays with the caller.
package otel
