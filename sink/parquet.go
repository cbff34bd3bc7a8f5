// Package sink provides reference Sink implementations: Parquet (via
// arrow-go's pqarrow writer) and an embedded DuckDB table (via the DuckDB
// Appender API), plus an in-memory Sink used by tests.
package sink

import (
	"context"
	"fmt"
	"os"

	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/colstream/colstream/batch"
	"github.com/colstream/colstream/pipeline"
	"github.com/colstream/colstream/schema"
)

// ParquetSink writes every batch to a single Parquet file via pqarrow's
// buffered ArrowWriter, matching the original's ParquetSink wrapping
// parquet::arrow::ArrowWriter.
type ParquetSink struct {
	w    *pqarrow.FileWriter
	file *os.File
}

// NewParquetSink opens a pqarrow FileWriter over f, fixed to s's Arrow
// schema. f is closed by Close.
func NewParquetSink(f *os.File, s *schema.Schema) (*ParquetSink, error) {
	props := parquet.NewWriterProperties()
	arrowProps := pqarrow.DefaultWriterProps()

	fw, err := pqarrow.NewFileWriter(s.Arrow(), f, props, arrowProps)
	if err != nil {
		return nil, fmt.Errorf("sink: open parquet writer: %w", err)
	}
	return &ParquetSink{w: fw, file: f}, nil
}

// ParquetFileFactory returns a pipeline.Factory that creates/truncates path
// and opens a ParquetSink against it once the final schema is known — the
// Sink-factory pattern the Runner requires, since Parquet's schema must be
// fixed before the first row group is written.
func ParquetFileFactory(path string) pipeline.Factory {
	return func(ctx context.Context, s *schema.Schema) (pipeline.Sink, error) {
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("sink: create parquet file %q: %w", path, err)
		}
		sink, err := NewParquetSink(f, s)
		if err != nil {
			f.Close()
			return nil, err
		}
		return sink, nil
	}
}

// WriteBatch appends one record batch to the Parquet file.
func (s *ParquetSink) WriteBatch(ctx context.Context, b *batch.Batch) error {
	if err := s.w.WriteBuffered(b.Record); err != nil {
		return fmt.Errorf("sink: parquet write_batch: %w", err)
	}
	return nil
}

// Close finalizes the Parquet footer and releases the underlying file.
func (s *ParquetSink) Close(ctx context.Context) error {
	if err := s.w.Close(); err != nil {
		return fmt.Errorf("sink: parquet close: %w", err)
	}
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}
