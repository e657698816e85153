// Package metrics provides observability for the envelope protocol:
// leveled structured logging, security event counters, latency histograms,
// and a pluggable tracing interface with an optional OpenTelemetry adapter
// (build with the "otel" tag).
//
// Rejected messages are counted and logged per failure class so that replay
// storms, integrity violations, and clock skew show up as distinct signals
// rather than a single undifferentiated error rate.
package metrics
