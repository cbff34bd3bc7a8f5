package sink

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/array"
	duckdb "github.com/duckdb/duckdb-go/v2"

	"github.com/colstream/colstream/batch"
	"github.com/colstream/colstream/pipeline"
	"github.com/colstream/colstream/schema"
)

// DuckDBSink appends Arrow batches into an embedded DuckDB table via the
// Appender API — a second concrete Sink beside Parquet, mirroring the
// original's multiple OutputSink implementations.
type DuckDBSink struct {
	db    *sql.DB
	table string
	s     *schema.Schema
}

// DuckDBFileFactory returns a pipeline.Factory that opens (or creates) the
// DuckDB database at path, creates table (dropping and recreating it to
// match the final schema), and returns a Sink appending into it.
func DuckDBFileFactory(path, table string) pipeline.Factory {
	return func(ctx context.Context, s *schema.Schema) (pipeline.Sink, error) {
		db, err := sql.Open("duckdb", path)
		if err != nil {
			return nil, fmt.Errorf("sink: open duckdb %q: %w", path, err)
		}
		if err := createTable(db, table, s); err != nil {
			db.Close()
			return nil, err
		}
		return &DuckDBSink{db: db, table: table, s: s}, nil
	}
}

func createTable(db *sql.DB, table string, s *schema.Schema) error {
	if _, err := db.Exec(fmt.Sprintf(`DROP TABLE IF EXISTS "%s"`, table)); err != nil {
		return fmt.Errorf("sink: drop table %q: %w", table, err)
	}

	cols := make([]string, len(s.Fields()))
	for i, f := range s.Fields() {
		cols[i] = fmt.Sprintf(`"%s" %s`, f.Name, duckDBType(f.Type))
	}
	ddl := fmt.Sprintf(`CREATE TABLE "%s" (%s)`, table, strings.Join(cols, ", "))
	if _, err := db.Exec(ddl); err != nil {
		return fmt.Errorf("sink: create table %q: %w", table, err)
	}
	return nil
}

func duckDBType(t schema.Type) string {
	switch t {
	case schema.Int64:
		return "BIGINT"
	case schema.Float64:
		return "DOUBLE"
	case schema.Utf8:
		return "VARCHAR"
	case schema.Boolean:
		return "BOOLEAN"
	default:
		return "VARCHAR"
	}
}

// WriteBatch appends b row-by-row via a DuckDB Appender bound to the
// connection's driver-level handle.
func (s *DuckDBSink) WriteBatch(ctx context.Context, b *batch.Batch) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("sink: duckdb conn: %w", err)
	}
	defer conn.Close()

	return conn.Raw(func(driverConn any) error {
		appender, err := duckdb.NewAppenderFromConn(driverConn, "", s.table)
		if err != nil {
			return fmt.Errorf("sink: duckdb appender: %w", err)
		}
		defer appender.Close()

		rows := int(b.Record.NumRows())
		fields := s.s.Fields()
		for row := 0; row < rows; row++ {
			values := make([]any, len(fields))
			for col, f := range fields {
				values[col] = columnValue(b.Record.Column(col), f.Type, row)
			}
			if err := appender.AppendRow(values...); err != nil {
				return fmt.Errorf("sink: duckdb append row: %w", err)
			}
		}
		return nil
	})
}

func columnValue(col any, t schema.Type, row int) any {
	switch t {
	case schema.Int64:
		arr := col.(*array.Int64)
		if arr.IsNull(row) {
			return nil
		}
		return arr.Value(row)
	case schema.Float64:
		arr := col.(*array.Float64)
		if arr.IsNull(row) {
			return nil
		}
		return arr.Value(row)
	case schema.Utf8:
		arr := col.(*array.String)
		if arr.IsNull(row) {
			return nil
		}
		return arr.Value(row)
	case schema.Boolean:
		arr := col.(*array.Boolean)
		if arr.IsNull(row) {
			return nil
		}
		return arr.Value(row)
	default:
		return nil
	}
}

// Close closes the DuckDB connection pool. DuckDB has no separate
// finalization step beyond closing every connection to the database.
func (s *DuckDBSink) Close(ctx context.Context) error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("sink: duckdb close: %w", err)
	}
	return nil
}
