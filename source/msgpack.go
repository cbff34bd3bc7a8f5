package source

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"

	"github.com/colstream/colstream/internal/msgpack"
	"github.com/colstream/colstream/record"
)

// MsgPackSource reads length-prefixed MessagePack records from an
// io.Reader: a 4-byte big-endian length followed by that many bytes of
// MessagePack-encoded map data, repeated to end-of-stream. It is the
// "kindred row format" alternative to NDJSON.
type MsgPackSource struct {
	r      io.Reader
	logger *slog.Logger
}

// NewMsgPackSource wraps r as a length-prefixed MessagePack Source.
func NewMsgPackSource(r io.Reader, logger *slog.Logger) *MsgPackSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &MsgPackSource{r: r, logger: logger}
}

// NextRecord reads the next length-prefixed frame, skipping any frame that
// fails to decode, or io.EOF at a clean frame boundary.
func (s *MsgPackSource) NextRecord(ctx context.Context) (*record.Value, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var lenBuf [4]byte
		if _, err := io.ReadFull(s.r, lenBuf[:]); err != nil {
			if err == io.ErrUnexpectedEOF {
				s.logger.Warn("truncated msgpack frame at end of stream")
				return nil, io.EOF
			}
			return nil, err
		}
		n := binary.BigEndian.Uint32(lenBuf[:])

		payload := make([]byte, n)
		if _, err := io.ReadFull(s.r, payload); err != nil {
			if err == io.ErrUnexpectedEOF || err == io.EOF {
				s.logger.Warn("truncated msgpack frame body")
				return nil, io.EOF
			}
			return nil, err
		}

		var m map[string]any
		if err := msgpack.Decode(payload, &m); err != nil {
			s.logger.Warn("skipping malformed msgpack frame", "error", err)
			continue
		}
		v := record.FromMap(m)
		return &v, nil
	}
}
