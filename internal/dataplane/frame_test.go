package dataplane

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	tests := []struct {
		name       string
		payload    []byte
		compressed bool
	}{
		{"empty payload", []byte{}, false},
		{"small payload", []byte("hello"), false},
		{"compressed flag set", bytes.Repeat([]byte("ab"), 300), true},
		{"binary payload", []byte{0x00, 0xff, 0x01, 0xfe}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := &Frame{
				Compressed:   tt.compressed,
				OriginalSize: uint32(len(tt.payload)),
				Payload:      tt.payload,
			}

			out, err := UnmarshalFrame(in.Marshal())
			require.NoError(t, err)
			assert.Equal(t, in.Compressed, out.Compressed)
			assert.Equal(t, in.OriginalSize, out.OriginalSize)
			assert.Equal(t, tt.payload, append([]byte{}, out.Payload...))
		})
	}
}

func TestUnmarshalFrameRejectsShortInput(t *testing.T) {
	for _, n := range []int{0, 1, 4, 8} {
		_, err := UnmarshalFrame(make([]byte, n))
		assert.Error(t, err, "length %d", n)
	}
}

func TestUnmarshalFrameRejectsTruncatedPayload(t *testing.T) {
	f := &Frame{OriginalSize: 10, Payload: bytes.Repeat([]byte{1}, 10)}
	wire := f.Marshal()

	_, err := UnmarshalFrame(wire[:len(wire)-3])
	assert.Error(t, err)
}

func TestEncodeFrameCompressesOnlyWhenSmaller(t *testing.T) {
	t.Run("compressible payload", func(t *testing.T) {
		payload := bytes.Repeat([]byte("abcd"), 200)
		f := encodeFrame(payload, true)
		assert.True(t, f.Compressed)
		assert.Less(t, len(f.Payload), len(payload))
		assert.Equal(t, uint32(len(payload)), f.OriginalSize)

		decoded, err := decodeFrame(f)
		require.NoError(t, err)
		assert.Equal(t, payload, decoded)
	})

	t.Run("below size floor stays uncompressed", func(t *testing.T) {
		payload := bytes.Repeat([]byte("a"), minCompressSize-1)
		f := encodeFrame(payload, true)
		assert.False(t, f.Compressed)
		assert.Equal(t, payload, f.Payload)
	})

	t.Run("incompressible payload stays uncompressed", func(t *testing.T) {
		r := rand.New(rand.NewSource(42))
		payload := make([]byte, 512)
		r.Read(payload)

		f := encodeFrame(payload, true)
		assert.False(t, f.Compressed)
		assert.Equal(t, payload, f.Payload)
	})

	t.Run("compression disabled", func(t *testing.T) {
		payload := bytes.Repeat([]byte("abcd"), 200)
		f := encodeFrame(payload, false)
		assert.False(t, f.Compressed)
		assert.Equal(t, payload, f.Payload)
	})
}

func TestDecodeFrameRejectsSizeMismatch(t *testing.T) {
	payload := bytes.Repeat([]byte("abcd"), 200)
	f := encodeFrame(payload, true)
	require.True(t, f.Compressed)

	f.OriginalSize++
	_, err := decodeFrame(f)
	assert.Error(t, err)
}

func TestDecodeFrameRejectsGarbageCompressedPayload(t *testing.T) {
	f := &Frame{Compressed: true, OriginalSize: 100, Payload: []byte{0xff, 0xfe, 0xfd}}
	_, err := decodeFrame(f)
	assert.Error(t, err)
}
