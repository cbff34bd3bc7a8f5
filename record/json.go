package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
)

// DecodeJSON parses a single JSON value (typically one NDJSON line) into a
// Value, preserving object field order and distinguishing integers from
// floats the way the schema inferrer needs.
//
// Field order is recovered by walking json.Decoder's token stream directly
// (Token() yields object keys in source order regardless of decode target)
// rather than decoding into map[string]any, which Go does not order.
func DecodeJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, fmt.Errorf("record: decode json: %w", err)
	}

	if _, err := dec.Token(); err != io.EOF {
		if err == nil {
			return Value{}, fmt.Errorf("record: decode json: trailing data after value")
		}
		return Value{}, fmt.Errorf("record: decode json: %w", err)
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	return valueFromToken(dec, tok)
}

func valueFromToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return decodeObject(dec)
		case '[':
			return decodeArray(dec)
		default:
			return Value{}, fmt.Errorf("record: unexpected delimiter %q", t)
		}
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return numberValue(t), nil
	case string:
		return String(t), nil
	default:
		return Value{}, fmt.Errorf("record: unexpected token %T", tok)
	}
}

func decodeObject(dec *json.Decoder) (Value, error) {
	obj := NewObject()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return Value{}, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return Value{}, fmt.Errorf("record: object key is not a string: %T", keyTok)
		}
		val, err := decodeValue(dec)
		if err != nil {
			return Value{}, err
		}
		obj.Set(key, val)
	}
	// consume closing '}'
	if _, err := dec.Token(); err != nil {
		return Value{}, err
	}
	return ObjectOf(obj), nil
}

func decodeArray(dec *json.Decoder) (Value, error) {
	var elems []Value
	for dec.More() {
		val, err := decodeValue(dec)
		if err != nil {
			return Value{}, err
		}
		elems = append(elems, val)
	}
	// consume closing ']'
	if _, err := dec.Token(); err != nil {
		return Value{}, err
	}
	return ArrayOf(elems), nil
}

func numberValue(n json.Number) Value {
	if i, err := n.Int64(); err == nil {
		return Int64(i)
	}
	if u, err := parseUint(string(n)); err == nil {
		return Uint64(u)
	}
	f, err := n.Float64()
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return Null()
	}
	return Float64(f)
}

// parseUint handles unsigned integers that overflow int64 (e.g. values
// above math.MaxInt64 but within uint64 range), which json.Number.Int64
// rejects outright.
func parseUint(s string) (uint64, error) {
	var u uint64
	if len(s) == 0 {
		return 0, fmt.Errorf("empty number")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("not an unsigned integer: %s", s)
		}
		u = u*10 + uint64(c-'0')
	}
	return u, nil
}

// FromMap converts a generic Go map (as produced by decoding MessagePack,
// which — unlike the JSON path above — has no token stream to recover
// field order from) into an object Value. Key order is therefore
// unspecified for MessagePack-sourced records; this only matters for
// re-serializing the record verbatim (the dead-letter envelope), not for
// schema inference or batching, which key off field name.
func FromMap(m map[string]any) Value {
	o := NewObject()
	for k, v := range m {
		o.Set(k, valueFromAny(v))
	}
	return ObjectOf(o)
}

// valueFromAny converts the dynamic types msgpack.Unmarshal (and the
// generic `any` it produces for nested maps/slices) can return into a
// Value, widening every integer width to int64/uint64 and every float
// width to float64.
func valueFromAny(v any) Value {
	switch t := v.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case int8:
		return Int64(int64(t))
	case int16:
		return Int64(int64(t))
	case int32:
		return Int64(int64(t))
	case int:
		return Int64(int64(t))
	case int64:
		return Int64(t)
	case uint8:
		return Int64(int64(t))
	case uint16:
		return Int64(int64(t))
	case uint32:
		return Int64(int64(t))
	case uint:
		return Uint64(uint64(t))
	case uint64:
		return Uint64(t)
	case float32:
		return Float64(float64(t))
	case float64:
		return Float64(t)
	case string:
		return String(t)
	case []byte:
		return String(string(t))
	case []any:
		elems := make([]Value, len(t))
		for i, e := range t {
			elems[i] = valueFromAny(e)
		}
		return ArrayOf(elems)
	case map[string]any:
		return FromMap(t)
	default:
		return Null()
	}
}

// EncodeJSON serializes a Value back to JSON text, preserving object field
// order. Used by the dead-letter sink to render the offending record
// alongside its failure reason.
func EncodeJSON(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, v); err != nil {
		return nil, fmt.Errorf("record: encode json: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, v Value) error {
	switch v.Kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		if v.Bool {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindInt64:
		b, err := json.Marshal(v.Int64)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindUint64:
		b, err := json.Marshal(v.Uint64)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindFloat64:
		b, err := json.Marshal(v.Float64)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindString:
		b, err := json.Marshal(v.Str)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindArray:
		buf.WriteByte('[')
		for i, e := range v.Array {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeValue(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		buf.WriteByte('{')
		first := true
		var rangeErr error
		v.Object.Range(func(key string, val Value) bool {
			if !first {
				buf.WriteByte(',')
			}
			first = false
			kb, err := json.Marshal(key)
			if err != nil {
				rangeErr = err
				return false
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := encodeValue(buf, val); err != nil {
				rangeErr = err
				return false
			}
			return true
		})
		if rangeErr != nil {
			return rangeErr
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("record: unknown kind %v", v.Kind)
	}
	return nil
}
