package sink

import (
	"context"
	"sync"

	"github.com/colstream/colstream/batch"
	"github.com/colstream/colstream/pipeline"
	"github.com/colstream/colstream/schema"
)

// MemorySink accumulates every batch written to it in memory. Used by
// tests and by tools (e.g. a dry-run CLI flag) that want to inspect output
// without touching disk.
type MemorySink struct {
	mu      sync.Mutex
	Schema  *schema.Schema
	Batches []*batch.Batch
	Closed  bool
}

// MemoryFactory returns a pipeline.Factory producing a fresh MemorySink
// bound to the run's final schema.
func MemoryFactory() pipeline.Factory {
	return func(ctx context.Context, s *schema.Schema) (pipeline.Sink, error) {
		return &MemorySink{Schema: s}, nil
	}
}

// WriteBatch retains b's record and appends b to Batches, so the batch
// stays readable after the caller releases its own reference.
func (m *MemorySink) WriteBatch(ctx context.Context, b *batch.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.Record.Retain()
	m.Batches = append(m.Batches, b)
	return nil
}

// Close marks the sink closed. Batches remain valid (and owned by the
// caller) after Close — MemorySink does not release them, since tests
// typically want to assert against them afterward.
func (m *MemorySink) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// TotalRows sums NumRows across every batch written so far.
func (m *MemorySink) TotalRows() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, b := range m.Batches {
		n += b.NumRows()
	}
	return n
}
