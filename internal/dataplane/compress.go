package dataplane

import (
	"fmt"

	"github.com/klauspost/compress/s2"
)

// Payloads below this size are sent uncompressed; the codec overhead
// outweighs any saving.
const minCompressSize = 128

// encodeFrame builds the wire frame for a payload, compressing only
// when the result is strictly smaller than the original.
func encodeFrame(payload []byte, compress bool) *Frame {
	f := &Frame{
		OriginalSize: uint32(len(payload)),
		Payload:      payload,
	}
	if !compress || len(payload) < minCompressSize {
		return f
	}

	compressed := s2.Encode(nil, payload)
	if len(compressed) >= len(payload) {
		return f
	}
	f.Compressed = true
	f.Payload = compressed
	return f
}

// decodeFrame recovers the original payload from a parsed frame
func decodeFrame(f *Frame) ([]byte, error) {
	if !f.Compressed {
		return f.Payload, nil
	}
	payload, err := s2.Decode(nil, f.Payload)
	if err != nil {
		return nil, fmt.Errorf("decompress payload: %w", err)
	}
	if uint32(len(payload)) != f.OriginalSize {
		return nil, fmt.Errorf("decompressed size %d does not match header %d", len(payload), f.OriginalSize)
	}
	return payload, nil
}
