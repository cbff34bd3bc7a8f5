// Package batch converts buffered semi-structured records into a columnar
// Arrow record batch conforming to a fixed schema, the row-to-batch
// encoder's responsibility.
package batch

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/colstream/colstream/record"
	"github.com/colstream/colstream/schema"
)

// Batch pairs an Arrow record with the Schema it was encoded against, so
// Sinks can assert the batch matches their configured schema without
// re-deriving it from the Arrow schema each time.
type Batch struct {
	Schema *schema.Schema
	Record arrow.Record
}

// Release releases the underlying Arrow record. The Runner calls this once
// Sink.WriteBatch has returned; a Sink that keeps the batch beyond that call
// must Retain the record first.
func (b *Batch) Release() {
	if b.Record != nil {
		b.Record.Release()
	}
}

// NumRows returns the row count of the underlying Arrow record.
func (b *Batch) NumRows() int64 {
	if b.Record == nil {
		return 0
	}
	return b.Record.NumRows()
}

// Encode allocates one Arrow builder per field in s, appends one row per
// record in rows (missing fields and type-incompatible values become
// null), and finalizes the result into a Batch.
//
// A record that is not a top-level object contributes a row of all nulls.
// Numeric widening is resolved entirely by the inferrer: an Int64 column
// never accepts a floating value here — by the time encoding happens, any
// field that ever presented a float has already been widened to Float64 in
// the schema.
func Encode(rows []record.Value, s *schema.Schema, mem memory.Allocator) (*Batch, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}

	arrowSchema := s.Arrow()
	builder := array.NewRecordBuilder(mem, arrowSchema)
	defer builder.Release()

	fields := s.Fields()
	for _, row := range rows {
		for i, f := range fields {
			v, ok := row.Get(f.Name)
			if !ok {
				builder.Field(i).AppendNull()
				continue
			}
			if err := appendValue(builder.Field(i), f.Type, v); err != nil {
				return nil, fmt.Errorf("batch: encode field %q: %w", f.Name, err)
			}
		}
	}

	rec := builder.NewRecord()
	return &Batch{Schema: s, Record: rec}, nil
}

func appendValue(fb array.Builder, t schema.Type, v record.Value) error {
	switch t {
	case schema.Int64:
		i, ok := v.AsInt64()
		if !ok {
			fb.AppendNull()
			return nil
		}
		fb.(*array.Int64Builder).Append(i)
	case schema.Float64:
		f, ok := v.AsFloat64()
		if !ok {
			fb.AppendNull()
			return nil
		}
		fb.(*array.Float64Builder).Append(f)
	case schema.Utf8:
		str, ok := v.AsString()
		if !ok {
			fb.AppendNull()
			return nil
		}
		fb.(*array.StringBuilder).Append(str)
	case schema.Boolean:
		b, ok := v.AsBool()
		if !ok {
			fb.AppendNull()
			return nil
		}
		fb.(*array.BooleanBuilder).Append(b)
	default:
		return fmt.Errorf("unknown column type %v", t)
	}
	return nil
}
