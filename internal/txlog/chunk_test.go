package txlog

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRecord_RoundTrips(t *testing.T) {
	payload := []byte("hello commit intent")

	frame := encodeRecord(payload)
	decoded, err := readRecord(bytes.NewReader(frame))
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

func TestEncodeRecord_LengthFieldIncludesOverhead(t *testing.T) {
	payload := []byte("abc")
	frame := encodeRecord(payload)

	length := uint32(frame[4]) | uint32(frame[5])<<8 | uint32(frame[6])<<16 | uint32(frame[7])<<24
	assert.EqualValues(t, len(payload)+lengthOverhead, length)
}

func TestEncodeRecord_PadsFrameToAlignment(t *testing.T) {
	for _, n := range []int{0, 1, 4, 7, 8, 15, 16} {
		payload := make([]byte, n)
		frame := encodeRecord(payload)
		assert.Zero(t, len(frame)%frameAlignment, "payload len %d produced unaligned frame len %d", n, len(frame))
	}
}

func TestReadRecord_DiscardsTrailingPadding(t *testing.T) {
	first := encodeRecord([]byte("a"))
	second := encodeRecord([]byte("bb"))

	r := bytes.NewReader(append(first, second...))

	got1, err := readRecord(r)
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), got1)

	got2, err := readRecord(r)
	require.NoError(t, err)
	assert.Equal(t, []byte("bb"), got2)
}
