package dataplane

import (
	"encoding/binary"
	"fmt"
)

// Wire frame layout: 1 byte flags, 4 bytes big-endian original size,
// 4 bytes big-endian payload size, payload.
const (
	frameHeaderSize = 9

	flagCompressed = 0x01
)

// Frame is the on-wire envelope for tunnel payloads
type Frame struct {
	Compressed   bool
	OriginalSize uint32
	Payload      []byte
}

// Marshal serializes the frame into its wire form
func (f *Frame) Marshal() []byte {
	buf := make([]byte, frameHeaderSize+len(f.Payload))
	if f.Compressed {
		buf[0] = flagCompressed
	}
	binary.BigEndian.PutUint32(buf[1:5], f.OriginalSize)
	binary.BigEndian.PutUint32(buf[5:9], uint32(len(f.Payload)))
	copy(buf[frameHeaderSize:], f.Payload)
	return buf
}

// UnmarshalFrame parses a wire frame. The payload slice references
// data, so callers that retain the frame must not reuse the buffer.
func UnmarshalFrame(data []byte) (*Frame, error) {
	if len(data) < frameHeaderSize {
		return nil, fmt.Errorf("frame too short: %d bytes", len(data))
	}
	payloadSize := binary.BigEndian.Uint32(data[5:9])
	if uint32(len(data)-frameHeaderSize) < payloadSize {
		return nil, fmt.Errorf("truncated frame: header claims %d payload bytes, got %d", payloadSize, len(data)-frameHeaderSize)
	}
	return &Frame{
		Compressed:   data[0]&flagCompressed != 0,
		OriginalSize: binary.BigEndian.Uint32(data[1:5]),
		Payload:      data[frameHeaderSize : frameHeaderSize+payloadSize],
	}, nil
}
