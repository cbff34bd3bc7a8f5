// Package runner drives the staged streaming execution described in
// SPEC_FULL.md §1: a warm-up phase that establishes the schema, a
// bounded-concurrency main phase that processes the rest of the stream,
// and a draining phase that flushes the tail and closes the Sink.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/uuid"

	"github.com/colstream/colstream/batch"
	"github.com/colstream/colstream/infer"
	"github.com/colstream/colstream/internal/recovery"
	"github.com/colstream/colstream/pipeline"
	"github.com/colstream/colstream/record"
	"github.com/colstream/colstream/schema"
)

// ErrNoWarmupRecords is returned when the Source is exhausted before a
// single record is obtained during warm-up.
var ErrNoWarmupRecords = errors.New("runner: source yielded no records during warm-up")

// Config configures a Runner. Zero values are replaced with the documented
// defaults by New.
type Config struct {
	// BatchSize is the maximum number of records per batch written to the
	// Sink during MAIN. Default 10,000.
	BatchSize int
	// WarmupRows is the prefix size used for schema inference when Schema
	// is nil. Default 100.
	WarmupRows int
	// Schema, if non-nil, skips WARMUP entirely and proceeds directly to
	// MAIN with this schema threaded through the processor chain.
	Schema *schema.Schema
	// DLQ receives (record, reason) pairs for per-record Processor
	// failures. If nil, failures are logged and dropped.
	DLQ pipeline.DLQ
	// Allocator is the Arrow memory allocator used for every batch built
	// during the run. Defaults to memory.DefaultAllocator.
	Allocator memory.Allocator
	// Logger receives structured log records. Defaults to slog.Default().
	Logger *slog.Logger
	// Parallelism overrides P, the bound on in-flight MAIN-phase records.
	// Defaults to 2 * runtime.NumCPU().
	Parallelism int
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 10_000
	}
	if c.WarmupRows <= 0 {
		c.WarmupRows = 100
	}
	if c.Allocator == nil {
		c.Allocator = memory.DefaultAllocator
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Parallelism <= 0 {
		c.Parallelism = 2 * runtime.NumCPU()
	}
	return c
}

// Runner owns a Source, an ordered Processor chain, a Sink factory, and an
// optional DLQ, and drives them through the WARMUP/MAIN/DRAINING state
// machine described in SPEC_FULL.md.
type Runner struct {
	RunID      string
	source     pipeline.Source
	processors []pipeline.Processor
	factory    pipeline.Factory
	cfg        Config
}

// New constructs a Runner. factory is called exactly once, after the final
// post-processor schema S* is known, to produce the Sink.
func New(source pipeline.Source, processors []pipeline.Processor, factory pipeline.Factory, cfg Config) *Runner {
	return &Runner{
		RunID:      uuid.NewString(),
		source:     source,
		processors: processors,
		factory:    factory,
		cfg:        cfg.withDefaults(),
	}
}

// Run executes the pipeline to completion or the first fatal error. Soft
// per-record errors never propagate here — they are routed to the DLQ (or
// logged and dropped) and the run continues.
func (r *Runner) Run(ctx context.Context) error {
	logger := r.cfg.Logger.With("run_id", r.RunID)

	if r.cfg.Schema != nil {
		final, sink, err := r.freezeSchema(ctx, r.cfg.Schema)
		if err != nil {
			return err
		}
		return r.runMain(ctx, logger, final, sink, 0)
	}

	return r.runWarmup(ctx, logger)
}

// runWarmup pulls the warm-up prefix sequentially, infers S0, threads it
// through UpdateSchema, constructs the Sink, processes the buffered
// records sequentially, writes the first batch, and hands off to MAIN.
func (r *Runner) runWarmup(ctx context.Context, logger *slog.Logger) error {
	logger.Info("starting warm-up phase", "warmup_rows", r.cfg.WarmupRows)

	var warmup []record.Value
	for len(warmup) < r.cfg.WarmupRows {
		rec, err := r.source.NextRecord(ctx)
		if err != nil {
			if isEOF(err) {
				break
			}
			logger.Error("source error during warm-up", "error", err)
			return fmt.Errorf("runner: warm-up source error: %w", err)
		}
		warmup = append(warmup, *rec)
	}

	if len(warmup) == 0 {
		return ErrNoWarmupRecords
	}

	s0, err := infer.Scan(warmup, 0)
	if err != nil {
		return fmt.Errorf("runner: schema inference: %w", err)
	}

	final, sink, err := r.freezeSchema(ctx, s0)
	if err != nil {
		return err
	}

	var processedWarmup []record.Value
	for _, rec := range warmup {
		out, err := r.processSequential(ctx, logger, rec)
		if err != nil {
			if recovery.IsPanic(err) {
				logger.Error("task panicked, dropping record", "error", err, "total_rows", 0)
				continue
			}
			if dlqErr := r.routeToDLQ(ctx, logger, rec, err); dlqErr != nil {
				return dlqErr
			}
			continue
		}
		if out != nil {
			processedWarmup = append(processedWarmup, *out)
		}
	}

	totalRows := 0
	if len(processedWarmup) > 0 {
		if err := r.writeBatch(ctx, sink, processedWarmup, final); err != nil {
			return err
		}
		totalRows = len(processedWarmup)
	}

	return r.runMain(ctx, logger, final, sink, totalRows)
}

// freezeSchema threads s through every Processor's UpdateSchema in
// declaration order and constructs the Sink against the result. A panic
// inside UpdateSchema is a fatal setup error: the Sink is never created.
func (r *Runner) freezeSchema(ctx context.Context, s *schema.Schema) (*schema.Schema, pipeline.Sink, error) {
	current := s
	for i, proc := range r.processors {
		next, err := recovery.RecoverToValue(r.cfg.Logger, "UpdateSchema", func() (*schema.Schema, error) {
			return proc.UpdateSchema(current)
		})
		if err != nil {
			return nil, nil, fmt.Errorf("runner: processor %d update_schema: %w", i, err)
		}
		current = next
	}

	sink, err := r.factory(ctx, current)
	if err != nil {
		return nil, nil, fmt.Errorf("runner: sink factory: %w", err)
	}
	return current, sink, nil
}

// taskResult is what a MAIN-phase worker goroutine reports back.
type taskResult struct {
	record *record.Value
	failed record.Value
	reason string
	err    error
}

// runMain fans records out across a bounded pool of goroutines, each
// running the full processor chain on one record, and drains completions
// in whatever order they finish (buffer_unordered semantics) into the row
// buffer, flushing batches of cfg.BatchSize to the Sink as they fill.
func (r *Runner) runMain(ctx context.Context, logger *slog.Logger, s *schema.Schema, sink pipeline.Sink, totalRows int) error {
	// A cancellable derivative of ctx lets us unblock the pull loop and any
	// in-flight sem.Acquire calls as soon as a fatal error is decided,
	// without leaving the producer goroutine blocked sending to results
	// forever (the taxonomy's "cancellation drops in-flight tasks").
	mainCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := semaphore.NewWeighted(int64(r.cfg.Parallelism))
	results := make(chan taskResult)

	var wg sync.WaitGroup
	var pullErr error

	go func() {
		defer close(results)
		for {
			rec, perr := r.source.NextRecord(mainCtx)
			if perr != nil {
				if !isEOF(perr) {
					pullErr = fmt.Errorf("runner: main source error: %w", perr)
				}
				break
			}
			if err := sem.Acquire(mainCtx, 1); err != nil {
				break
			}
			wg.Add(1)
			go func(rec record.Value) {
				defer wg.Done()
				defer sem.Release(1)
				results <- r.runTask(mainCtx, logger, rec)
			}(*rec)
		}
		wg.Wait()
	}()

	// firstErr is the first fatal error encountered while draining
	// results; once set, remaining results are drained (so the producer
	// above never blocks on a full send) but no further Sink or DLQ I/O is
	// attempted.
	var firstErr error
	var rowBuffer []record.Value
	for res := range results {
		if firstErr != nil {
			continue
		}
		if res.err != nil {
			if recovery.IsPanic(res.err) {
				logger.Error("task panicked, dropping record", "error", res.err, "total_rows", totalRows)
				continue
			}
			logger.Error("processing failed, sending to dead letter queue", "error", res.err, "total_rows", totalRows)
			if dlqErr := r.routeToDLQ(mainCtx, logger, res.failed, res.err); dlqErr != nil {
				firstErr = dlqErr
				cancel()
			}
			continue
		}
		if res.record == nil {
			continue
		}
		rowBuffer = append(rowBuffer, *res.record)
		if len(rowBuffer) >= r.cfg.BatchSize {
			if err := r.writeBatch(mainCtx, sink, rowBuffer, s); err != nil {
				firstErr = err
				cancel()
				continue
			}
			totalRows += len(rowBuffer)
			rowBuffer = rowBuffer[:0]
			logger.Debug("batch flushed to sink", "total_rows", totalRows)
		}
	}

	if firstErr != nil {
		return firstErr
	}
	if pullErr != nil {
		return pullErr
	}

	if len(rowBuffer) > 0 {
		if err := r.writeBatch(ctx, sink, rowBuffer, s); err != nil {
			return err
		}
		totalRows += len(rowBuffer)
	}

	if err := sink.Close(ctx); err != nil {
		return fmt.Errorf("runner: sink close: %w", err)
	}

	logger.Info("pipeline execution completed", "total_rows", totalRows)
	return nil
}

// runTask runs the full processor chain on one record inside a panic-safe
// wrapper. A Process panic surfaces here as a *recovery.PanicError distinct
// from an ordinary Processor-returned error: runMain's drain loop checks
// recovery.IsPanic and logs-and-drops a panicked task (the "task
// panicked/killed" branch of the error taxonomy) instead of routing it to
// the DLQ, which is reserved for a genuine soft error the Processor
// returned.
func (r *Runner) runTask(ctx context.Context, logger *slog.Logger, rec record.Value) taskResult {
	out, err := r.processSequential(ctx, logger, rec)
	if err != nil {
		return taskResult{failed: rec, reason: err.Error(), err: err}
	}
	return taskResult{record: out}
}

func (r *Runner) processSequential(ctx context.Context, logger *slog.Logger, rec record.Value) (*record.Value, error) {
	current := rec
	for _, proc := range r.processors {
		out, err := recovery.RecoverToValue(logger, "Process", func() (*record.Value, error) {
			return proc.Process(ctx, current)
		})
		if err != nil {
			return nil, err
		}
		if out == nil {
			return nil, nil
		}
		current = *out
	}
	return &current, nil
}

func (r *Runner) writeBatch(ctx context.Context, sink pipeline.Sink, rows []record.Value, s *schema.Schema) error {
	b, err := batch.Encode(rows, s, r.cfg.Allocator)
	if err != nil {
		return fmt.Errorf("runner: encode batch: %w", err)
	}
	defer b.Release()
	if err := sink.WriteBatch(ctx, b); err != nil {
		return fmt.Errorf("runner: sink write_batch: %w", err)
	}
	return nil
}

// routeToDLQ reports a soft per-record failure to the DLQ. A DLQ write
// error is itself fatal — DLQ correctness is a contract, not best-effort —
// so callers must check the returned error and abort the run on failure.
func (r *Runner) routeToDLQ(ctx context.Context, logger *slog.Logger, rec record.Value, cause error) error {
	if r.cfg.DLQ == nil {
		logger.Warn("record dropped, no dead letter queue configured", "reason", cause.Error())
		return nil
	}
	if err := r.cfg.DLQ.WriteDeadLetter(ctx, rec, cause.Error()); err != nil {
		return fmt.Errorf("runner: dead letter queue write: %w", err)
	}
	return nil
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF)
}
