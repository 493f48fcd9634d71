package framer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMinimalFrameStatusRecord(t *testing.T) {
	// version=2, tor=0x0002 (status), flags=0, one field
	// {tof=0x02,len=1,data=0x07}, crc=0xAABB. The field's length byte is
	// 0x01 (SOH), so on the wire it is DLE-escaped as 0x10 0x21.
	payload := []byte{0x02, 0x02, 0x00, 0x00, 0x00, 0x02, 0x01, 0x00, 0x07, 0xBB, 0xAA}
	raw := []byte{0x01, 0x02, 0x02, 0x00, 0x00, 0x00, 0x02, 0x10, 0x01 ^ 0x20, 0x00, 0x07, 0xBB, 0xAA, 0x04}
	fr := New(0, nil)
	frames := fr.Push(raw)
	assert.Len(t, frames, 1)
	assert.Equal(t, payload, frames[0])
}

func TestByteStuffingRoundTrip(t *testing.T) {
	// Payload bytes {0x01, 0x04, 0x10} escaped inside a frame.
	escaped := []byte{
		0x01,             // SOH
		0x10, 0x01 ^ 0x20, // escaped 0x01
		0x10, 0x04 ^ 0x20, // escaped 0x04
		0x10, 0x10 ^ 0x20, // escaped 0x10
		0x04, // EOT
	}
	fr := New(0, nil)
	frames := fr.Push(escaped)
	assert.Len(t, frames, 1)
	assert.Equal(t, []byte{0x01, 0x04, 0x10}, frames[0])
}

func TestDLEDLEDecodesToSingleByte(t *testing.T) {
	escaped := []byte{0x01, 0x10, 0x10, 0x04}
	fr := New(0, nil)
	frames := fr.Push(escaped)
	assert.Len(t, frames, 1)
	assert.Equal(t, []byte{0x30}, frames[0])
}

func TestSplitInvarianceByteAtATime(t *testing.T) {
	raw := []byte{
		0x01, 0x10, 0x01 ^ 0x20, 0x02, 0x03, 0x04,
		0x01, 0xAA, 0xBB, 0x04,
	}
	whole := New(0, nil).Push(raw)

	piecewise := New(0, nil)
	var gotFromPieces [][]byte
	for i := range raw {
		gotFromPieces = append(gotFromPieces, piecewise.Push(raw[i:i+1])...)
	}

	assert.Equal(t, whole, gotFromPieces)
}

func TestLoneDLEAtTailRetained(t *testing.T) {
	fr := New(0, nil)
	frames := fr.Push([]byte{0x01, 0xAA, 0x10})
	assert.Empty(t, frames)

	frames = fr.Push([]byte{0x01 ^ 0x20, 0x04})
	assert.Len(t, frames, 1)
	assert.Equal(t, []byte{0xAA, 0x01}, frames[0])
}

func TestEmbeddedSOHRestartsFraming(t *testing.T) {
	var diags []Diagnostic
	fr := New(0, func(d Diagnostic) { diags = append(diags, d) })

	// First SOH starts a frame that never closes; a second SOH appears
	// before any EOT, which must drop the first partial and restart.
	input := []byte{0x01, 0xAA, 0xBB, 0x01, 0xCC, 0x04}
	frames := fr.Push(input)
	assert.Len(t, frames, 1)
	assert.Equal(t, []byte{0xCC}, frames[0])

	var sawResync bool
	for _, d := range diags {
		if d.Kind == DiagResync {
			sawResync = true
		}
	}
	assert.True(t, sawResync)
}

func TestOversizeFrameTriggersResync(t *testing.T) {
	var diags []Diagnostic
	fr := New(8, func(d Diagnostic) { diags = append(diags, d) })

	input := append([]byte{0x01}, make([]byte, 20)...)
	input = append(input, 0x01, 0xEE, 0x04) // next valid frame after the oversized one
	frames := fr.Push(input)
	assert.Len(t, frames, 1)
	assert.Equal(t, []byte{0xEE}, frames[0])

	var sawOversize bool
	for _, d := range diags {
		if d.Kind == DiagOversize {
			sawOversize = true
		}
	}
	assert.True(t, sawOversize)
}

func TestResyncDiscardsLeadingNoise(t *testing.T) {
	fr := New(0, nil)
	// The noise bytes precede the real SOH; framing must resync onto it.
	raw := []byte{0xFF, 0xFE, 0x01, 0xAB, 0x04}
	frames := fr.Push(raw)
	assert.Len(t, frames, 1)
	assert.Equal(t, []byte{0xAB}, frames[0])
}

func TestZeroFieldPayloadFramesIntact(t *testing.T) {
	// version(1) + tor(2) + flags(2) + crc(2) = 7-byte minimal payload,
	// chosen with no bytes colliding with SOH/EOT/DLE so no escaping is
	// needed at the framing layer.
	payload := []byte{0x02, 0x02, 0x00, 0x00, 0x00, 0xAB, 0xCD}
	raw := append([]byte{0x01}, payload...)
	raw = append(raw, 0x04)
	fr := New(0, nil)
	frames := fr.Push(raw)
	assert.Len(t, frames, 1)
	assert.Equal(t, payload, frames[0])
}
