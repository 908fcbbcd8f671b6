// Package progress carries harvest telemetry. Samplers and dispatchers emit
// Events through a non-blocking Hub, which batches them on a background
// goroutine and fans them out to sinks (logs, Prometheus, progress files,
// Pub/Sub).
package progress
