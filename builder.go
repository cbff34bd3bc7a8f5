// Package colstream assembles a streaming NDJSON-to-columnar pipeline from
// its constituent parts: a record Source, an ordered chain of Processors, a
// Sink factory, and an optional DLQ, wired together into a runner.Runner by
// the fluent Builder below.
package colstream

import (
	"fmt"
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/colstream/colstream/pipeline"
	"github.com/colstream/colstream/runner"
	"github.com/colstream/colstream/schema"
)

// Builder assembles a Runner using a fluent API. Not thread-safe - use
// only during initialization, then call Build once.
//
// Example:
//
//	r, err := colstream.NewBuilder(src, sinkFactory).
//	    Processor(pii.New(pii.Mask)).
//	    Processor(geonormalize.New("location")).
//	    DeadLetterQueue(deadLetters).
//	    BatchSize(50_000).
//	    Build()
type Builder struct {
	source     pipeline.Source
	processors []pipeline.Processor
	factory    pipeline.Factory
	dlq        pipeline.DLQ
	cfg        runner.Config
	err        error
}

// NewBuilder starts a Builder reading from source and writing batches via
// factory. Both are required; Build reports an error if either is nil.
func NewBuilder(source pipeline.Source, factory pipeline.Factory) *Builder {
	return &Builder{source: source, factory: factory}
}

// Processor appends p to the processing chain, run in the order added.
// Returns self for method chaining.
func (b *Builder) Processor(p pipeline.Processor) *Builder {
	b.processors = append(b.processors, p)
	return b
}

// DeadLetterQueue sets the destination for records a Processor rejects.
// If never called, rejected records are logged and dropped.
func (b *Builder) DeadLetterQueue(d pipeline.DLQ) *Builder {
	b.dlq = d
	return b
}

// Schema pre-supplies a frozen schema, skipping the Runner's own warm-up
// scan. Use this when the caller already ran infer.Scan, or knows the
// schema statically, ahead of time.
func (b *Builder) Schema(s *schema.Schema) *Builder {
	b.cfg.Schema = s
	return b
}

// BatchSize sets how many processed records accumulate before a batch is
// encoded and written to the sink.
func (b *Builder) BatchSize(n int) *Builder {
	if n <= 0 {
		b.err = fmt.Errorf("colstream: batch size must be positive, got %d", n)
		return b
	}
	b.cfg.BatchSize = n
	return b
}

// WarmupRows sets how many records the Runner buffers to infer a schema
// from, when no schema was pre-supplied via Schema.
func (b *Builder) WarmupRows(n int) *Builder {
	if n <= 0 {
		b.err = fmt.Errorf("colstream: warm-up row count must be positive, got %d", n)
		return b
	}
	b.cfg.WarmupRows = n
	return b
}

// Parallelism caps how many records are processed concurrently during the
// MAIN phase. Defaults to 2x NumCPU if never called.
func (b *Builder) Parallelism(n int) *Builder {
	if n <= 0 {
		b.err = fmt.Errorf("colstream: parallelism must be positive, got %d", n)
		return b
	}
	b.cfg.Parallelism = n
	return b
}

// Allocator sets the Arrow memory allocator used for every batch built
// during the run. Defaults to memory.DefaultAllocator.
func (b *Builder) Allocator(a memory.Allocator) *Builder {
	b.cfg.Allocator = a
	return b
}

// Logger sets the structured logger the Runner logs through. Processors
// are not given this logger. Defaults to slog.Default().
func (b *Builder) Logger(l *slog.Logger) *Builder {
	b.cfg.Logger = l
	return b
}

// Build validates the assembled configuration and returns a ready-to-run
// Runner. Build can be called only once per Builder.
func (b *Builder) Build() (*runner.Runner, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.source == nil {
		return nil, fmt.Errorf("colstream: source is required")
	}
	if b.factory == nil {
		return nil, fmt.Errorf("colstream: sink factory is required")
	}

	b.cfg.DLQ = b.dlq
	return runner.New(b.source, b.processors, b.factory, b.cfg), nil
}
