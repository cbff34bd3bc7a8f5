// Package dlq provides reference DLQ implementations: a JSONL dead-letter
// file (optionally zstd-compressed) and a compact, uncompressed MessagePack
// variant.
package dlq

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/colstream/colstream/record"
)

// FileDLQ writes one JSON envelope per line: {"error": "...", "record": ...}.
// Writes are serialized with a mutex since the DLQ contract must tolerate
// high-rate concurrent calls from the Runner's MAIN-phase result drain.
//
// With compress enabled, every envelope is its own independently-framed
// zstd block: encoder.EncodeAll is called fresh per line rather than
// wrapping d.w in one continuous zstd.Writer stream, so a reader can
// decode (or skip) individual dead letters without holding the whole
// file's decompression state open. Concatenated zstd frames are valid
// zstd input, so the result still decodes as one stream with any
// standard zstd reader; it just also supports per-line random access.
type FileDLQ struct {
	mu      sync.Mutex
	w       *bufio.Writer
	file    *os.File
	encoder *zstd.Encoder
}

// NewFileDLQ opens (or truncates) path for dead-letter output. If
// compress is true, each envelope is zstd-compressed before being written.
func NewFileDLQ(path string, compress bool) (*FileDLQ, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("dlq: create %q: %w", path, err)
	}

	d := &FileDLQ{file: f, w: bufio.NewWriter(f)}
	if compress {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("dlq: open zstd encoder: %w", err)
		}
		d.encoder = enc
	}
	return d, nil
}

// WriteDeadLetter appends one JSONL envelope for rec.
func (d *FileDLQ) WriteDeadLetter(ctx context.Context, rec record.Value, reason string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	recJSON, err := record.EncodeJSON(rec)
	if err != nil {
		return fmt.Errorf("dlq: encode record: %w", err)
	}
	reasonJSON, err := record.EncodeJSON(record.String(reason))
	if err != nil {
		return fmt.Errorf("dlq: encode reason: %w", err)
	}

	line := []byte(fmt.Sprintf(`{"error":%s,"record":%s}`+"\n", reasonJSON, recJSON))
	if d.encoder != nil {
		// EncodeAll is safe for reuse across calls: it starts a fresh
		// frame per invocation rather than appending to a shared stream.
		line = d.encoder.EncodeAll(line, make([]byte, 0, len(line)))
	}

	if _, err := d.w.Write(line); err != nil {
		return fmt.Errorf("dlq: write: %w", err)
	}
	return nil
}

// Close flushes buffered output, releases the zstd encoder if any, and
// closes the underlying file.
func (d *FileDLQ) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.w.Flush(); err != nil {
		return fmt.Errorf("dlq: flush: %w", err)
	}
	if d.encoder != nil {
		if err := d.encoder.Close(); err != nil {
			return fmt.Errorf("dlq: close zstd encoder: %w", err)
		}
	}
	return d.file.Close()
}

var _ io.Closer = (*FileDLQ)(nil)
