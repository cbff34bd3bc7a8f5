// Package infer derives a columnar schema from a bounded prefix of records,
// implementing the widening lattice and lexicographic field ordering the
// rest of the pipeline depends on.
package infer

import (
	"errors"
	"fmt"

	"github.com/colstream/colstream/record"
	"github.com/colstream/colstream/schema"
)

// ErrEmptyInput is returned when the scanned prefix contains zero records.
var ErrEmptyInput = errors.New("infer: empty input, cannot infer schema")

// Scan derives a Schema from the first min(limit, len(records)) records. A
// limit of zero or less means "no limit" (scan every record given).
//
// Each record that is a top-level object contributes its fields; the first
// observed primitive type for a field wins, with Int64 widening to Float64
// on a later Float64 observation for the same field. Nested objects/arrays
// and null observations fall back to Utf8. Non-object top-level records in
// the prefix do not themselves cause an error — they simply contribute no
// fields — but if every scanned record is a non-object, the resulting
// schema is empty, which callers should usually treat as a configuration
// mistake rather than silently proceeding.
func Scan(records []record.Value, limit int) (*schema.Schema, error) {
	if len(records) == 0 {
		return nil, ErrEmptyInput
	}

	n := len(records)
	if limit > 0 && limit < n {
		n = limit
	}

	types := make(map[string]schema.Type)
	var order []string

	for i := 0; i < n; i++ {
		rec := records[i]
		if !rec.IsObject() {
			continue
		}
		rec.Object.Range(func(key string, v record.Value) bool {
			observed := primitiveType(v)
			if existing, seen := types[key]; seen {
				types[key] = schema.Widen(existing, observed)
			} else {
				types[key] = observed
				order = append(order, key)
			}
			return true
		})
	}

	fields := make([]schema.Field, 0, len(order))
	for _, name := range order {
		fields = append(fields, schema.Field{
			Name:     name,
			Type:     types[name],
			Nullable: true,
		})
	}
	return schema.New(fields), nil
}

// primitiveType maps a record.Value to its inference-time column type.
// Nested values (array/object) and null map to Utf8 as a fallback, per the
// inference algorithm's fourth step.
func primitiveType(v record.Value) schema.Type {
	switch v.Kind {
	case record.KindInt64, record.KindUint64:
		return schema.Int64
	case record.KindFloat64:
		return schema.Float64
	case record.KindBool:
		return schema.Boolean
	case record.KindString:
		return schema.Utf8
	case record.KindNull, record.KindArray, record.KindObject:
		return schema.Utf8
	default:
		panic(fmt.Sprintf("infer: unknown record kind %v", v.Kind))
	}
}
