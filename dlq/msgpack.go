package dlq

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/colstream/colstream/internal/msgpack"
	"github.com/colstream/colstream/record"
)

// msgpackEnvelope is the MessagePack-encoded counterpart of the JSONL
// dead-letter envelope: the same (reason, record) pairing, compacted.
type msgpackEnvelope struct {
	Error  string         `msgpack:"error"`
	Record map[string]any `msgpack:"record"`
}

// MsgPackDLQ writes length-prefixed MessagePack envelopes, the compact
// alternative to FileDLQ's JSONL — useful when dead letters are themselves
// high-volume and re-ingested by another MessagePack-speaking consumer.
type MsgPackDLQ struct {
	mu   sync.Mutex
	file *os.File
}

// NewMsgPackDLQ opens (or truncates) path for dead-letter output.
func NewMsgPackDLQ(path string) (*MsgPackDLQ, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("dlq: create %q: %w", path, err)
	}
	return &MsgPackDLQ{file: f}, nil
}

// WriteDeadLetter appends one length-prefixed MessagePack frame for rec.
func (d *MsgPackDLQ) WriteDeadLetter(ctx context.Context, rec record.Value, reason string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	payload, err := msgpack.Encode(msgpackEnvelope{
		Error:  reason,
		Record: toPlainMap(rec),
	})
	if err != nil {
		return fmt.Errorf("dlq: encode envelope: %w", err)
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := d.file.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("dlq: write length prefix: %w", err)
	}
	if _, err := d.file.Write(payload); err != nil {
		return fmt.Errorf("dlq: write payload: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (d *MsgPackDLQ) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.file.Close()
}

// toPlainMap flattens a record.Value into a plain Go map for MessagePack
// encoding. Non-object top-level records encode under a single "value" key
// so the envelope shape stays uniform.
func toPlainMap(v record.Value) map[string]any {
	if !v.IsObject() {
		return map[string]any{"value": toPlainAny(v)}
	}
	m := make(map[string]any, v.Object.Len())
	v.Object.Range(func(key string, val record.Value) bool {
		m[key] = toPlainAny(val)
		return true
	})
	return m
}

func toPlainAny(v record.Value) any {
	switch v.Kind {
	case record.KindNull:
		return nil
	case record.KindBool:
		return v.Bool
	case record.KindInt64:
		return v.Int64
	case record.KindUint64:
		return v.Uint64
	case record.KindFloat64:
		return v.Float64
	case record.KindString:
		return v.Str
	case record.KindArray:
		out := make([]any, len(v.Array))
		for i, e := range v.Array {
			out[i] = toPlainAny(e)
		}
		return out
	case record.KindObject:
		return toPlainMap(v)
	default:
		return nil
	}
}
