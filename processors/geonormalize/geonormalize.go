// Package geonormalize provides a Processor that canonicalizes a configured
// string field holding WKT or GeoJSON geometry into normalized WKT, so a
// column free-formed by upstream producers lands in one consistent
// encoding. Grounded in the teacher's own geometry handling
// (catalog/geometry.go), which stores geometry as WKB for Arrow/DuckDB —
// here the target encoding is WKT text, since the field stays a Utf8
// schema column rather than becoming a binary extension type.
package geonormalize

import (
	"bytes"
	"context"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/geojson"
	"github.com/paulmach/orb/encoding/wkt"

	"github.com/colstream/colstream/record"
	"github.com/colstream/colstream/schema"
)

// Normalizer rewrites Field in every record to normalized WKT, accepting
// either WKT or GeoJSON as input. Records missing Field, or where Field is
// not a string, pass through unchanged.
type Normalizer struct {
	// Field is the name of the string column holding geometry text.
	Field string
}

// New returns a Normalizer targeting the given field.
func New(field string) *Normalizer {
	return &Normalizer{Field: field}
}

// UpdateSchema is the identity: normalization does not change the column's
// type (it stays Utf8) or presence.
func (n *Normalizer) UpdateSchema(s *schema.Schema) (*schema.Schema, error) {
	return s, nil
}

// Process rewrites rec[Field], if present and a string, to its normalized
// WKT form. A value that parses as neither WKT nor GeoJSON is a processing
// failure for that record, routed to the dead-letter queue by the Runner.
func (n *Normalizer) Process(ctx context.Context, rec record.Value) (*record.Value, error) {
	if !rec.IsObject() {
		return &rec, nil
	}
	raw, ok := rec.Get(n.Field)
	if !ok {
		return &rec, nil
	}
	text, ok := raw.AsString()
	if !ok {
		return &rec, nil
	}

	geom, err := parseGeometry(text)
	if err != nil {
		return nil, fmt.Errorf("geonormalize: field %q: %w", n.Field, err)
	}

	normalized := wkt.MarshalString(geom)
	out := rec.Object.Clone()
	out.Set(n.Field, record.String(normalized))
	result := record.ObjectOf(out)
	return &result, nil
}

// parseGeometry accepts either a GeoJSON geometry object or WKT text.
// GeoJSON is tried first since its syntax (a leading '{') can never be
// mistaken for WKT.
func parseGeometry(text string) (orb.Geometry, error) {
	trimmed := bytes.TrimSpace([]byte(text))
	if len(trimmed) > 0 && trimmed[0] == '{' {
		g, err := geojson.UnmarshalGeometry(trimmed)
		if err != nil {
			return nil, fmt.Errorf("invalid geojson geometry: %w", err)
		}
		return g.Geometry(), nil
	}

	geom, err := wkt.UnmarshalString(text)
	if err != nil {
		return nil, fmt.Errorf("invalid wkt geometry: %w", err)
	}
	return geom, nil
}
