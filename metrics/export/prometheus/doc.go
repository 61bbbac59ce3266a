// Package prometheus renders authcore counters in Prometheus text
// exposition format.
//
// [NewExporter] accepts an [authcore.Service] and exposes an http.Handler
// that serves every counter under the authcore_*_total prefix. Nothing is
// registered in a global Prometheus registry; callers mount the Handler
// where they want it.
package prometheus
