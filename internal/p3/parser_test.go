package p3

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdale511/p3-bridge/internal/wire"
)

// buildPayload assembles version+tor+flags+body and appends a correct
// trailing CRC16 over the whole thing, matching what the framer hands
// ParsePayload (minus SOH/EOT, which the framer already stripped).
func buildPayload(version uint8, tor, flags uint16, body []byte) []byte {
	head := []byte{version, byte(tor), byte(tor >> 8), byte(flags), byte(flags >> 8)}
	p := append(head, body...)
	crc := wire.CRC16(p)
	p = append(p, byte(crc), byte(crc>>8))
	return p
}

func tlv(tof uint8, data []byte) []byte {
	out := []byte{tof, byte(len(data)), byte(len(data) >> 8)}
	return append(out, data...)
}

func TestParsePayloadTooShort(t *testing.T) {
	_, err := ParsePayload([]byte{0x02, 0x00}, time.Now())
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ReasonTooShort, perr.Reason)
}

func TestParsePayloadMinimalZeroFields(t *testing.T) {
	payload := buildPayload(2, TORStatus, 0, nil)
	rec, err := ParsePayload(payload, time.Now())
	require.NoError(t, err)
	assert.Empty(t, rec.Fields)
	assert.True(t, rec.CRC.Ok)
	assert.Equal(t, "status", rec.TORName)
}

func TestParsePayloadKnownFieldsDecodeAndFlatten(t *testing.T) {
	body := append(tlv(0x01, []byte{0xDE, 0xAD, 0xBE, 0xEF}), tlv(0x03, []byte{0x07})...)
	payload := buildPayload(2, TORPassing, 0, body)
	rec, err := ParsePayload(payload, time.Now())
	require.NoError(t, err)
	require.Len(t, rec.Fields, 2)

	assert.Equal(t, "transponderId", rec.Fields[0].TOFName)
	assert.Equal(t, "hex", rec.Fields[0].TypeTag)
	assert.Equal(t, "deadbeef", rec.Fields[0].DecodedValue)

	assert.Equal(t, "loopId", rec.Fields[1].TOFName)
	assert.Equal(t, uint8(0x07), rec.Fields[1].DecodedValue)

	assert.Equal(t, "deadbeef", rec.Decoded["transponderId"])
	assert.Equal(t, uint8(0x07), rec.Decoded["loopId"])
}

func TestParsePayloadZeroLengthField(t *testing.T) {
	body := tlv(0x01, nil) // known string-typed field, zero length
	payload := buildPayload(2, TORVersion, 0, body)
	rec, err := ParsePayload(payload, time.Now())
	require.NoError(t, err)
	require.Len(t, rec.Fields, 1)
	assert.Equal(t, "firmwareVersion", rec.Fields[0].TOFName)
	assert.Equal(t, "", rec.Fields[0].DecodedValue)
}

func TestParsePayloadUnmatchedPrintableFallsBackToString(t *testing.T) {
	body := tlv(0xF0, []byte("hello"))
	payload := buildPayload(2, TORVersion, 0, body)
	rec, err := ParsePayload(payload, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "string", rec.Fields[0].TypeTag)
	assert.Equal(t, "hello", rec.Fields[0].DecodedValue)
}

func TestParsePayloadUnmatchedBinaryFallsBackToHex(t *testing.T) {
	body := tlv(0xF0, []byte{0x00, 0x01, 0x02, 0xFF, 0xFE, 0x80})
	payload := buildPayload(2, TORVersion, 0, body)
	rec, err := ParsePayload(payload, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "bytes", rec.Fields[0].TypeTag)
	assert.Equal(t, "000102fffe80", rec.Fields[0].DecodedValue)
}

func TestParsePayloadBadCRCStillProducesRecord(t *testing.T) {
	payload := buildPayload(2, TORStatus, 0, tlv(0x02, []byte{0x34, 0x12}))
	payload[len(payload)-1] ^= 0xFF // corrupt the trailing CRC byte

	rec, err := ParsePayload(payload, time.Now())
	require.NoError(t, err)
	assert.False(t, rec.CRC.Ok)
	assert.NotEqual(t, rec.CRC.Received, rec.CRC.Computed)
	require.Len(t, rec.Fields, 1)
	assert.Equal(t, "voltageMv", rec.Fields[0].TOFName)
}

func TestParsePayloadTruncatedFieldReportsPartial(t *testing.T) {
	head := []byte{2, byte(TORPassing), byte(TORPassing >> 8), 0, 0}
	body := tlv(0x03, []byte{0x07}) // one good field
	body = append(body, 0x04, 0x10, 0x00)  // declares a 16-byte field with nothing after
	p := append(head, body...)
	p = append(p, 0xAA, 0xBB) // crc value is irrelevant, error wins first

	_, err := ParsePayload(p, time.Now())
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ReasonTruncatedField, perr.Reason)
	require.Len(t, perr.PartialFields, 1)
	assert.Equal(t, "loopId", perr.PartialFields[0].TOFName)
}

func TestParsePayloadDuplicateFieldNameWidensToArray(t *testing.T) {
	body := append(tlv(0x03, []byte{0x01}), tlv(0x03, []byte{0x02})...)
	body = append(body, tlv(0x03, []byte{0x03})...)
	payload := buildPayload(2, TORPassing, 0, body)

	rec, err := ParsePayload(payload, time.Now())
	require.NoError(t, err)
	require.Len(t, rec.Fields, 3)

	widened, ok := rec.Decoded["loopId"].([]interface{})
	require.True(t, ok)
	assert.Equal(t, []interface{}{uint8(1), uint8(2), uint8(3)}, widened)
}
