// Package pii provides a reference Processor implementation masking email
// addresses found anywhere in a record — top-level strings, and recursively
// inside arrays and nested objects.
package pii

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"regexp"

	"github.com/colstream/colstream/record"
	"github.com/colstream/colstream/schema"
)

// Mode selects how a matched email is replaced.
type Mode int

const (
	// Mask replaces a string containing an email with the literal
	// "****@masked.com".
	Mask Mode = iota
	// Hash replaces a string containing an email with the lowercase hex
	// SHA-256 digest of that whole string.
	Hash
)

var emailPattern = regexp.MustCompile(`(?i)[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}`)

// Masker is a Processor that masks email addresses per Mode. It carries no
// per-run learned state, so UpdateSchema is the identity.
type Masker struct {
	Mode Mode
}

// New returns a Masker in the given mode.
func New(mode Mode) *Masker {
	return &Masker{Mode: mode}
}

// Process masks every string anywhere in rec that contains a match of the
// email pattern, recursing into arrays and objects. The whole string is
// replaced, not only the matched address. The original is never mutated; a
// (possibly) modified copy is returned.
func (m *Masker) Process(ctx context.Context, rec record.Value) (*record.Value, error) {
	out := m.maskValue(rec)
	return &out, nil
}

// UpdateSchema is the identity: masking a string column does not change
// its type or presence.
func (m *Masker) UpdateSchema(s *schema.Schema) (*schema.Schema, error) {
	return s, nil
}

func (m *Masker) maskValue(v record.Value) record.Value {
	switch v.Kind {
	case record.KindString:
		if emailPattern.MatchString(v.Str) {
			return record.String(m.mask(v.Str))
		}
		return v
	case record.KindArray:
		out := make([]record.Value, len(v.Array))
		for i, e := range v.Array {
			out[i] = m.maskValue(e)
		}
		return record.ArrayOf(out)
	case record.KindObject:
		if v.Object == nil {
			return v
		}
		out := record.NewObject()
		v.Object.Range(func(key string, val record.Value) bool {
			out.Set(key, m.maskValue(val))
			return true
		})
		return record.ObjectOf(out)
	default:
		return v
	}
}

func (m *Masker) mask(s string) string {
	if m.Mode == Hash {
		sum := sha256.Sum256([]byte(s))
		return hex.EncodeToString(sum[:])
	}
	return "****@masked.com"
}
