// Package sinks implements progress consumers: structured logs, Prometheus
// collectors, append-only progress files and a topic publisher. Each sink
// satisfies progress.Sink and tolerates repeated Consume/Close cycles.
package sinks
