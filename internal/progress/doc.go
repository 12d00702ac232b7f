// Package progress fans pipeline events out to pluggable sinks such as
// structured logs, Prometheus metrics or the run ledger. Events are batched on
// a background goroutine so the pipeline never blocks on a slow sink.
package progress
