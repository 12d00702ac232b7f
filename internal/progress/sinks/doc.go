// Package sinks implements concrete pipeline event consumers such as
// Prometheus, the run ledger and structured logging. Each sink satisfies the
// progress.Sink interface and is safe for repeated Consume/Close cycles.
package sinks
