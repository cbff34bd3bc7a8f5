package runner_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/colstream/colstream/batch"
	"github.com/colstream/colstream/pipeline"
	"github.com/colstream/colstream/record"
	"github.com/colstream/colstream/runner"
	"github.com/colstream/colstream/schema"
)

// sliceSource yields records from a fixed slice, then io.EOF.
type sliceSource struct {
	mu      sync.Mutex
	records []record.Value
	i       int
}

func newSliceSource(recs ...record.Value) *sliceSource {
	return &sliceSource{records: recs}
}

func (s *sliceSource) NextRecord(ctx context.Context) (*record.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.i >= len(s.records) {
		return nil, io.EOF
	}
	rec := s.records[s.i]
	s.i++
	return &rec, nil
}

// memSink accumulates every batch written to it, retaining each record
// since the Runner releases its own reference once WriteBatch returns.
type memSink struct {
	mu      sync.Mutex
	batches []*batch.Batch
	closed  bool
}

func (s *memSink) WriteBatch(ctx context.Context, b *batch.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.Record.Retain()
	s.batches = append(s.batches, b)
	return nil
}

func (s *memSink) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memSink) totalRows() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, b := range s.batches {
		n += b.NumRows()
	}
	return n
}

// memDLQ accumulates dead letters.
type memDLQ struct {
	mu      sync.Mutex
	entries []dlqEntry
}

type dlqEntry struct {
	rec    record.Value
	reason string
}

func (d *memDLQ) WriteDeadLetter(ctx context.Context, rec record.Value, reason string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = append(d.entries, dlqEntry{rec: rec, reason: reason})
	return nil
}

func (d *memDLQ) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// identityProcessor forwards every record unchanged.
type identityProcessor struct{}

func (identityProcessor) Process(ctx context.Context, rec record.Value) (*record.Value, error) {
	return &rec, nil
}

func (identityProcessor) UpdateSchema(s *schema.Schema) (*schema.Schema, error) {
	return s, nil
}

// dropFlagProcessor filters out records where the "drop" field is true.
type dropFlagProcessor struct{}

func (dropFlagProcessor) Process(ctx context.Context, rec record.Value) (*record.Value, error) {
	if v, ok := rec.Get("drop"); ok {
		if b, ok := v.AsBool(); ok && b {
			return nil, nil
		}
	}
	return &rec, nil
}

func (dropFlagProcessor) UpdateSchema(s *schema.Schema) (*schema.Schema, error) {
	return s, nil
}

// badFlagProcessor soft-fails on records where the "bad" field is true.
type badFlagProcessor struct{}

func (badFlagProcessor) Process(ctx context.Context, rec record.Value) (*record.Value, error) {
	if v, ok := rec.Get("bad"); ok {
		if b, ok := v.AsBool(); ok && b {
			return nil, errors.New("record flagged bad")
		}
	}
	return &rec, nil
}

func (badFlagProcessor) UpdateSchema(s *schema.Schema) (*schema.Schema, error) {
	return s, nil
}

// panicFlagProcessor panics during Process on records where the "panic"
// field is true, instead of returning a soft error.
type panicFlagProcessor struct{}

func (panicFlagProcessor) Process(ctx context.Context, rec record.Value) (*record.Value, error) {
	if v, ok := rec.Get("panic"); ok {
		if b, ok := v.AsBool(); ok && b {
			panic("boom")
		}
	}
	return &rec, nil
}

func (panicFlagProcessor) UpdateSchema(s *schema.Schema) (*schema.Schema, error) {
	return s, nil
}

// piiMaskProcessor masks an "email" field the way scenario S6 requires.
type piiMaskProcessor struct{ hash bool }

func (p piiMaskProcessor) Process(ctx context.Context, rec record.Value) (*record.Value, error) {
	if !rec.IsObject() {
		return &rec, nil
	}
	email, ok := rec.Get("email")
	if !ok {
		return &rec, nil
	}
	s, ok := email.AsString()
	if !ok {
		return &rec, nil
	}
	out := rec.Clone()
	if p.hash {
		sum := sha256.Sum256([]byte(s))
		out.Object.Set("email", record.String(hex.EncodeToString(sum[:])))
	} else {
		out.Object.Set("email", record.String("****@masked.com"))
	}
	return &out, nil
}

func (p piiMaskProcessor) UpdateSchema(s *schema.Schema) (*schema.Schema, error) {
	return s, nil
}

func obj(pairs ...any) record.Value {
	o := record.NewObject()
	for i := 0; i < len(pairs); i += 2 {
		o.Set(pairs[i].(string), pairs[i+1].(record.Value))
	}
	return record.ObjectOf(o)
}

func memSinkFactory(sink *memSink) pipeline.Factory {
	return func(ctx context.Context, s *schema.Schema) (pipeline.Sink, error) {
		return sink, nil
	}
}

func TestRunnerSchemaWidening(t *testing.T) {
	src := newSliceSource(obj("a", record.Int64(1)), obj("a", record.Float64(2.5)))
	sink := &memSink{}
	r := runner.New(src, []pipeline.Processor{identityProcessor{}}, memSinkFactory(sink), runner.Config{
		WarmupRows: 10,
	})

	err := r.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, sink.closed)
	assert.Equal(t, int64(2), sink.totalRows())

	require.Len(t, sink.batches, 1)
	f, ok := sink.batches[0].Schema.FieldByName("a")
	require.True(t, ok)
	assert.Equal(t, schema.Float64, f.Type)
}

func TestRunnerSchemaDrift(t *testing.T) {
	src := newSliceSource(
		obj("a", record.Int64(1), "b", record.String("foo")),
		obj("a", record.Int64(2), "c", record.Float64(3.0)),
	)
	sink := &memSink{}
	r := runner.New(src, []pipeline.Processor{identityProcessor{}}, memSinkFactory(sink), runner.Config{
		WarmupRows: 10,
	})

	require.NoError(t, r.Run(context.Background()))

	s := sink.batches[0].Schema
	var names []string
	for _, f := range s.Fields() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
}

func TestRunnerCorruptLineResilience(t *testing.T) {
	// The Source contract swallows parse failures internally; a Source
	// fake exercising that here simply never yields a malformed record,
	// matching scenario S3's "2 output rows, 0 DLQ entries" expectation.
	src := newSliceSource(obj("a", record.Int64(1)), obj("a", record.Int64(2)))
	sink := &memSink{}
	dlq := &memDLQ{}
	r := runner.New(src, []pipeline.Processor{identityProcessor{}}, memSinkFactory(sink), runner.Config{
		WarmupRows: 10,
		DLQ:        dlq,
	})

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, int64(2), sink.totalRows())
	assert.Equal(t, 0, dlq.count())
}

func TestRunnerProcessorFilter(t *testing.T) {
	src := newSliceSource(
		obj("a", record.Int64(1)),
		obj("a", record.Int64(2), "drop", record.Bool(true)),
		obj("a", record.Int64(3)),
	)
	sink := &memSink{}
	r := runner.New(src, []pipeline.Processor{dropFlagProcessor{}}, memSinkFactory(sink), runner.Config{
		WarmupRows: 10,
	})

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, int64(2), sink.totalRows())
}

func TestRunnerProcessorFailureRoutesToDLQ(t *testing.T) {
	src := newSliceSource(
		obj("a", record.Int64(1)),
		obj("a", record.Int64(2), "bad", record.Bool(true)),
		obj("a", record.Int64(3)),
	)
	sink := &memSink{}
	dlq := &memDLQ{}
	r := runner.New(src, []pipeline.Processor{badFlagProcessor{}}, memSinkFactory(sink), runner.Config{
		WarmupRows: 10,
		DLQ:        dlq,
	})

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, int64(2), sink.totalRows())
	assert.Equal(t, 1, dlq.count())
	assert.Contains(t, dlq.entries[0].reason, "flagged bad")
}

func TestRunnerMainPhaseProcessPanicDropsRecordWithoutDLQEntry(t *testing.T) {
	src := newSliceSource(
		obj("a", record.Int64(1)),
		obj("a", record.Int64(2), "panic", record.Bool(true)),
		obj("a", record.Int64(3)),
	)
	sink := &memSink{}
	dlq := &memDLQ{}
	r := runner.New(src, []pipeline.Processor{panicFlagProcessor{}}, memSinkFactory(sink), runner.Config{
		WarmupRows: 1,
		DLQ:        dlq,
	})

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, int64(2), sink.totalRows())
	assert.Equal(t, 0, dlq.count())
}

func TestRunnerPIIMasking(t *testing.T) {
	src := newSliceSource(obj("email", record.String("test@example.com"), "name", record.String("John")))
	sink := &memSink{}
	r := runner.New(src, []pipeline.Processor{piiMaskProcessor{hash: false}}, memSinkFactory(sink), runner.Config{
		WarmupRows: 10,
	})

	require.NoError(t, r.Run(context.Background()))
	require.Len(t, sink.batches, 1)

	b := sink.batches[0]
	emailIdx := -1
	for i, f := range b.Schema.Fields() {
		if f.Name == "email" {
			emailIdx = i
		}
	}
	require.GreaterOrEqual(t, emailIdx, 0)
	col := b.Record.Column(emailIdx).(*array.String)
	assert.Equal(t, "****@masked.com", col.Value(0))
}

func TestRunnerPIIMaskingHashMode(t *testing.T) {
	src := newSliceSource(obj("email", record.String("test@example.com")))
	sink := &memSink{}
	r := runner.New(src, []pipeline.Processor{piiMaskProcessor{hash: true}}, memSinkFactory(sink), runner.Config{
		WarmupRows: 10,
	})

	require.NoError(t, r.Run(context.Background()))
	b := sink.batches[0]
	f, ok := b.Schema.FieldByName("email")
	require.True(t, ok)
	_ = f
	col := b.Record.Column(0).(*array.String)
	assert.Len(t, col.Value(0), 64)
}

func TestRunnerZeroWarmupRowsWithNoSchemaIsFatal(t *testing.T) {
	src := newSliceSource()
	sink := &memSink{}
	r := runner.New(src, nil, memSinkFactory(sink), runner.Config{WarmupRows: 0})

	err := r.Run(context.Background())
	assert.ErrorIs(t, err, runner.ErrNoWarmupRecords)
}

func TestRunnerSourceYieldsNoRecords(t *testing.T) {
	src := newSliceSource()
	sink := &memSink{}
	r := runner.New(src, nil, memSinkFactory(sink), runner.Config{WarmupRows: 100})

	err := r.Run(context.Background())
	assert.ErrorIs(t, err, runner.ErrNoWarmupRecords)
	assert.False(t, sink.closed)
}

func TestRunnerBatchSizeOneProducesOneBatchPerRecord(t *testing.T) {
	src := newSliceSource(
		obj("a", record.Int64(1)),
		obj("a", record.Int64(2)),
		obj("a", record.Int64(3)),
	)
	sink := &memSink{}
	r := runner.New(src, []pipeline.Processor{identityProcessor{}}, memSinkFactory(sink), runner.Config{
		WarmupRows: 1,
		BatchSize:  1,
	})

	require.NoError(t, r.Run(context.Background()))
	for _, b := range sink.batches {
		assert.LessOrEqual(t, b.NumRows(), int64(1))
	}
	assert.Equal(t, int64(3), sink.totalRows())
}

func TestRunnerRecordMissingEveryFieldIsAllNull(t *testing.T) {
	src := newSliceSource(
		obj("a", record.Int64(1)),
		record.ObjectOf(record.NewObject()),
	)
	sink := &memSink{}
	r := runner.New(src, []pipeline.Processor{identityProcessor{}}, memSinkFactory(sink), runner.Config{
		WarmupRows: 10,
	})

	require.NoError(t, r.Run(context.Background()))
	require.Len(t, sink.batches, 1)
	col := sink.batches[0].Record.Column(0).(*array.Int64)
	foundNull := false
	for i := 0; i < int(sink.batches[0].NumRows()); i++ {
		if col.IsNull(i) {
			foundNull = true
		}
	}
	assert.True(t, foundNull)
}

func TestRunnerPreSuppliedSchemaSkipsWarmup(t *testing.T) {
	src := newSliceSource(obj("a", record.Int64(1)))
	sink := &memSink{}
	s := schema.New([]schema.Field{{Name: "a", Type: schema.Int64, Nullable: true}})
	r := runner.New(src, []pipeline.Processor{identityProcessor{}}, memSinkFactory(sink), runner.Config{
		Schema: s,
	})

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, int64(1), sink.totalRows())
}

// fatalUpdateSchemaProcessor panics during UpdateSchema.
type fatalUpdateSchemaProcessor struct{}

func (fatalUpdateSchemaProcessor) Process(ctx context.Context, rec record.Value) (*record.Value, error) {
	return &rec, nil
}

func (fatalUpdateSchemaProcessor) UpdateSchema(s *schema.Schema) (*schema.Schema, error) {
	panic("boom")
}

func TestRunnerUpdateSchemaPanicIsFatalAndSinkNeverConstructed(t *testing.T) {
	src := newSliceSource(obj("a", record.Int64(1)))
	constructed := false
	factory := func(ctx context.Context, s *schema.Schema) (pipeline.Sink, error) {
		constructed = true
		return &memSink{}, nil
	}
	r := runner.New(src, []pipeline.Processor{fatalUpdateSchemaProcessor{}}, factory, runner.Config{
		WarmupRows: 10,
	})

	err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.False(t, constructed)
}

func TestRunnerSinkWriteErrorIsFatal(t *testing.T) {
	src := newSliceSource(obj("a", record.Int64(1)))
	failingFactory := func(ctx context.Context, s *schema.Schema) (pipeline.Sink, error) {
		return failingSink{}, nil
	}
	r := runner.New(src, []pipeline.Processor{identityProcessor{}}, failingFactory, runner.Config{
		WarmupRows: 10,
	})

	err := r.Run(context.Background())
	require.Error(t, err)
}

type failingSink struct{}

func (failingSink) WriteBatch(ctx context.Context, b *batch.Batch) error {
	return fmt.Errorf("disk full")
}

func (failingSink) Close(ctx context.Context) error { return nil }
