// Package msgpack provides MessagePack encoding/decoding for the MessagePack
// record source and dead-letter sink — a compact alternative to NDJSON for
// both reading input rows and writing failed ones.
package msgpack

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Decode deserializes MessagePack data into a Go value.
// The v parameter should be a pointer to the target structure.
//
// Example:
//
//	var row map[string]any
//	err := msgpack.Decode(frame, &row)
func Decode(data []byte, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("empty MessagePack data")
	}

	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode MessagePack: %w", err)
	}

	return nil
}

// Encode serializes a Go value into MessagePack format.
// Returns the serialized bytes or error.
//
// Example:
//
//	envelope := msgpackEnvelope{Error: "flagged bad", Record: row}
//	frame, err := msgpack.Encode(envelope)
func Encode(v any) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode MessagePack: %w", err)
	}

	return data, nil
}
