// Package schema defines the columnar schema that the inferrer derives and
// the batch encoder targets: an ordered, lexicographically-sorted list of
// named, typed fields.
package schema

import (
	"fmt"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
)

// Type is a column's inferred scalar type. It deliberately excludes Array
// and Object — nested values fall back to Utf8 during inference.
type Type uint8

const (
	// Int64 is a signed 64-bit integer column.
	Int64 Type = iota
	// Float64 is a floating-point column.
	Float64
	// Utf8 is a string column.
	Utf8
	// Boolean is a boolean column.
	Boolean
)

// String implements fmt.Stringer.
func (t Type) String() string {
	switch t {
	case Int64:
		return "Int64"
	case Float64:
		return "Float64"
	case Utf8:
		return "Utf8"
	case Boolean:
		return "Boolean"
	default:
		return "Unknown"
	}
}

// Widen returns the type that results from observing next after already having
// observed prev for the same field. Only Int64 ⊑ Float64 widens; every
// other pairing keeps prev (first-observed-type-wins).
func Widen(prev, next Type) Type {
	if prev == Int64 && next == Float64 {
		return Float64
	}
	return prev
}

// Field is one named, typed column. Nullable is always true in this
// implementation: the inferrer never derives a non-nullable field because
// any field can be absent from a given record.
type Field struct {
	Name     string
	Type     Type
	Nullable bool
}

// Schema is an ordered, lexicographically-sorted-by-name list of Fields.
// Once constructed it is treated as immutable; Processors derive new
// Schema values rather than mutating one in place.
type Schema struct {
	fields []Field
}

// New builds a Schema from the given fields, sorting them lexicographically
// by name. It does not deduplicate — callers (the inferrer, processor
// update_schema chains) are responsible for supplying distinct names.
func New(fields []Field) *Schema {
	sorted := append([]Field(nil), fields...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return &Schema{fields: sorted}
}

// Fields returns the fields in lexicographic order. Callers must not mutate
// the returned slice.
func (s *Schema) Fields() []Field {
	if s == nil {
		return nil
	}
	return s.fields
}

// Len returns the number of fields.
func (s *Schema) Len() int {
	if s == nil {
		return 0
	}
	return len(s.fields)
}

// FieldByName returns the field with the given name and whether it exists.
func (s *Schema) FieldByName(name string) (Field, bool) {
	if s == nil {
		return Field{}, false
	}
	for _, f := range s.fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Without returns a new Schema with the named field removed, if present.
// Used by processors (e.g. semantic column pruning) that derive a narrower
// schema in update_schema.
func (s *Schema) Without(name string) *Schema {
	if s == nil {
		return nil
	}
	out := make([]Field, 0, len(s.fields))
	for _, f := range s.fields {
		if f.Name != name {
			out = append(out, f)
		}
	}
	return New(out)
}

// Equal reports whether two schemas have identical fields in identical
// order — the property the testable-properties section requires of
// identical (field, type) observation sets.
func (s *Schema) Equal(other *Schema) bool {
	if s.Len() != other.Len() {
		return false
	}
	for i, f := range s.Fields() {
		g := other.Fields()[i]
		if f.Name != g.Name || f.Type != g.Type || f.Nullable != g.Nullable {
			return false
		}
	}
	return true
}

// Arrow converts the Schema to an *arrow.Schema for use by the batch
// encoder and Arrow-backed Sinks, in the same field order.
func (s *Schema) Arrow() *arrow.Schema {
	fields := make([]arrow.Field, len(s.Fields()))
	for i, f := range s.Fields() {
		fields[i] = arrow.Field{
			Name:     f.Name,
			Type:     arrowType(f.Type),
			Nullable: f.Nullable,
		}
	}
	return arrow.NewSchema(fields, nil)
}

func arrowType(t Type) arrow.DataType {
	switch t {
	case Int64:
		return arrow.PrimitiveTypes.Int64
	case Float64:
		return arrow.PrimitiveTypes.Float64
	case Utf8:
		return arrow.BinaryTypes.String
	case Boolean:
		return arrow.FixedWidthTypes.Boolean
	default:
		panic(fmt.Sprintf("schema: unknown type %v", t))
	}
}

// GoString aids debugging/test failure output.
func (s *Schema) GoString() string {
	return fmt.Sprintf("schema.Schema%v", s.Fields())
}
