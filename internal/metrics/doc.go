// Package metrics provides generation-pass and live-reload metrics.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics collection never needs nil checks at call sites.
// PrometheusRecorder is the real implementation, served by HTTPHandler.
package metrics
