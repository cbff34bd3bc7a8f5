package batch_test

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colstream/colstream/batch"
	"github.com/colstream/colstream/record"
	"github.com/colstream/colstream/schema"
)

func obj(pairs ...any) record.Value {
	o := record.NewObject()
	for i := 0; i < len(pairs); i += 2 {
		o.Set(pairs[i].(string), pairs[i+1].(record.Value))
	}
	return record.ObjectOf(o)
}

func TestEncodeMissingFieldBecomesNull(t *testing.T) {
	s := schema.New([]schema.Field{
		{Name: "a", Type: schema.Int64, Nullable: true},
		{Name: "b", Type: schema.Utf8, Nullable: true},
	})
	rows := []record.Value{obj("a", record.Int64(1))}

	b, err := batch.Encode(rows, s, memory.DefaultAllocator)
	require.NoError(t, err)
	defer b.Release()

	assert.Equal(t, int64(1), b.NumRows())
	col := b.Record.Column(1).(*array.String)
	assert.True(t, col.IsNull(0))
}

func TestEncodeNonObjectRowIsAllNull(t *testing.T) {
	s := schema.New([]schema.Field{{Name: "a", Type: schema.Int64, Nullable: true}})
	rows := []record.Value{record.String("not an object")}

	b, err := batch.Encode(rows, s, memory.DefaultAllocator)
	require.NoError(t, err)
	defer b.Release()

	col := b.Record.Column(0).(*array.Int64)
	assert.True(t, col.IsNull(0))
}

func TestEncodeFloatColumnAcceptsIntWidening(t *testing.T) {
	s := schema.New([]schema.Field{{Name: "a", Type: schema.Float64, Nullable: true}})
	rows := []record.Value{obj("a", record.Int64(3))}

	b, err := batch.Encode(rows, s, memory.DefaultAllocator)
	require.NoError(t, err)
	defer b.Release()

	col := b.Record.Column(0).(*array.Float64)
	assert.Equal(t, 3.0, col.Value(0))
}

func TestEncodeIntColumnRejectsFloat(t *testing.T) {
	s := schema.New([]schema.Field{{Name: "a", Type: schema.Int64, Nullable: true}})
	rows := []record.Value{obj("a", record.Float64(1.5))}

	b, err := batch.Encode(rows, s, memory.DefaultAllocator)
	require.NoError(t, err)
	defer b.Release()

	col := b.Record.Column(0).(*array.Int64)
	assert.True(t, col.IsNull(0))
}

func TestEncodeRowCountMatchesInput(t *testing.T) {
	s := schema.New([]schema.Field{{Name: "a", Type: schema.Boolean, Nullable: true}})
	rows := []record.Value{
		obj("a", record.Bool(true)),
		obj("a", record.Bool(false)),
		obj(),
	}
	b, err := batch.Encode(rows, s, memory.DefaultAllocator)
	require.NoError(t, err)
	defer b.Release()
	assert.Equal(t, int64(3), b.NumRows())
}
