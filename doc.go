// Package colstream streams line-delimited JSON (and kindred row formats)
// through adaptive schema inference, a configurable per-record processor
// chain, and columnar batch encoding into a Parquet or DuckDB sink, with
// failed records routed to a dead-letter queue.
//
// The package simplifies building such a pipeline by:
//   - Inferring a schema from a bounded warm-up prefix of the stream, or
//     accepting one pre-supplied by the caller
//   - Providing a fluent Builder API for wiring a Source, a Processor
//     chain, a Sink factory, and an optional DLQ into a Runner
//   - Encoding processed records into Apache Arrow batches one column
//     builder per field, with missing or type-incompatible values becoming
//     null
//   - Running the per-record Processor chain with bounded concurrency once
//     the schema is frozen
//   - Recovering from a Processor panic without aborting the run (the
//     record being processed is logged and dropped)
//
// # Quick Start
//
// Build and run a basic pipeline in a few lines:
//
//	package main
//
//	import (
//	    "context"
//	    "log"
//	    "os"
//
//	    "github.com/colstream/colstream"
//	    "github.com/colstream/colstream/dlq"
//	    "github.com/colstream/colstream/processors/pii"
//	    "github.com/colstream/colstream/sink"
//	    "github.com/colstream/colstream/source"
//	)
//
//	func main() {
//	    f, err := os.Open("events.ndjson")
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    src := source.NewNDJSONSource(f, nil)
//
//	    deadLetters, err := dlq.NewFileDLQ("dead.jsonl", false)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    r, err := colstream.NewBuilder(src, sink.ParquetFileFactory("events.parquet")).
//	        Processor(pii.New(pii.Mask)).
//	        DeadLetterQueue(deadLetters).
//	        Build()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    if err := r.Run(context.Background()); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
// # Architecture
//
// The package follows an interface-based design, defined in the pipeline
// package:
//
//   - Source: a lazy producer of records, signaling end-of-stream with
//     io.EOF
//   - Processor: a per-record transform plus a one-time UpdateSchema hook
//     run before the main phase begins
//   - Sink: accepts finished columnar batches and is closed exactly once
//   - DLQ: accepts (record, reason) pairs for records a Processor rejected
//
// Concrete Source, Sink, DLQ, and Processor implementations live in the
// source, sink, dlq, and processors packages respectively; callers can
// also implement any of these interfaces directly to plug in a custom
// transport or transform.
//
// # Run Lifecycle
//
// A Runner moves through four states: WARMUP (sequential, schema
// inference), MAIN (bounded-concurrency processing), DRAINING (flushing
// the final partial batch), and CLOSED. Run returns the first fatal error
// encountered; per-record Processor failures are routed to the DLQ and do
// not abort the run, but a DLQ write failure does (DLQ correctness is
// treated as a contract, not best-effort).
//
// # Configuration
//
// The config package loads a YAML pipeline definition — source, processor
// chain, sink, and DLQ — and builds a Runner from it via the same Builder
// this package exposes programmatically. The cmd/colstream CLI drives
// config-file or flag-specified runs.
//
// # Logging
//
// The package uses log/slog.Default() for all internal logging unless a
// *slog.Logger is supplied via Builder.Logger. Log records for soft
// (per-record) errors carry structured fields: error, reason, total_rows.
//
// # Context Cancellation
//
// Run accepts a context.Context and stops pulling new records once it is
// canceled; in-flight MAIN-phase tasks are allowed to finish and their
// results are drained. If the Source reports the cancellation as an
// error, Run returns that error without flushing the buffered rows or
// closing the Sink.
//
// # Memory Management
//
// Arrow batches use manual reference counting. The Runner calls
// batch.Batch.Release() as soon as Sink.WriteBatch returns, so a Sink must
// copy or flush the batch's data within WriteBatch, or Retain the record
// if it keeps the batch afterward.
package colstream
