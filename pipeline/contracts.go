// Package pipeline defines the Source, Processor, Sink, and DLQ contracts
// the Runner drives. Concrete implementations live in the source, sink,
// dlq, and processors packages; this package holds only the interfaces
// those implementations satisfy.
package pipeline

import (
	"context"

	"github.com/colstream/colstream/batch"
	"github.com/colstream/colstream/record"
	"github.com/colstream/colstream/schema"
)

// Source is a lazy producer of records. NextRecord returns io.EOF to signal
// a clean end-of-stream. Any other error is fatal: the Runner aborts the
// run without constructing (WARMUP) or after abandoning without close
// (MAIN) the Sink. Soft per-record decode failures (a malformed line, a
// corrupt message) must be handled internally — retried or skipped — so
// that NextRecord never returns a parse failure to the caller.
type Source interface {
	NextRecord(ctx context.Context) (*record.Value, error)
}

// Processor is a per-record transform plus a one-time schema-update hook.
//
// Process must be safe to call concurrently from multiple goroutines
// against the same Processor value, provided UpdateSchema has already
// completed — internal state written during UpdateSchema and read during
// Process needs no additional synchronization beyond that ordering, since
// the Runner calls UpdateSchema in declaration order before any Process
// call in the run.
//
// Process returns (nil, nil) to filter the record out of the output
// stream, (result, nil) to forward a (possibly modified) record, or
// (nil, err) for a soft per-record failure the Runner routes to the DLQ.
// A Processor signals a task-level failure only by panicking, whether
// inside UpdateSchema or inside Process — either is recovered by the
// Runner and reclassified per the error taxonomy. A panic inside
// UpdateSchema aborts the run before the Sink is constructed. A panic
// inside Process is logged and the record is dropped with no DLQ entry,
// distinct from an ordinary (nil, err) return from Process, which is a
// soft per-record failure the Runner routes to the DLQ.
type Processor interface {
	Process(ctx context.Context, rec record.Value) (*record.Value, error)
	UpdateSchema(s *schema.Schema) (*schema.Schema, error)
}

// Sink accepts columnar batches produced against its configured schema and
// is closed exactly once at the end of a successful run. The Runner
// serializes WriteBatch and Close: neither is ever called concurrently
// with the other, or with itself.
type Sink interface {
	WriteBatch(ctx context.Context, b *batch.Batch) error
	Close(ctx context.Context) error
}

// Factory constructs a Sink once the final post-processor schema S* is
// known — the Sink cannot exist before then, since most concrete Sinks
// (Parquet, DuckDB) need the schema to open their target file or table.
type Factory func(ctx context.Context, s *schema.Schema) (Sink, error)

// DLQ accepts (failed record, reason) pairs for records a Processor could
// not handle. Ordering between entries is not guaranteed. Implementations
// must tolerate high-rate writes; a DLQ write error is fatal to the run
// (DLQ correctness is a contract, not best-effort).
type DLQ interface {
	WriteDeadLetter(ctx context.Context, rec record.Value, reason string) error
}
