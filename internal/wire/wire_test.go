package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestU16LittleEndian(t *testing.T) {
	assert.Equal(t, uint16(0x0201), U16([]byte{0x01, 0x02}))
}

func TestU16ZeroExtendsShortInput(t *testing.T) {
	assert.Equal(t, uint16(0x01), U16([]byte{0x01}))
}

func TestU32LittleEndian(t *testing.T) {
	assert.Equal(t, uint32(0x04030201), U32([]byte{0x01, 0x02, 0x03, 0x04}))
}

func TestU64LittleEndian(t *testing.T) {
	b := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	assert.Equal(t, uint64(0x0807060504030201), U64(b))
}

func TestCRC16KnownVector(t *testing.T) {
	// "123456789" is the standard CRC-16/CCITT-FALSE check vector: 0x29B1.
	assert.Equal(t, uint16(0x29B1), CRC16([]byte("123456789")))
}

func TestVerifyMatchesTrailingCRC(t *testing.T) {
	body := []byte{0x04, 0x01, 0x00, 0x00, 0x00, 0x01, 0x04, 0x00, 0x00, 0x01, 0x00}
	crc := CRC16(body)
	p := make([]byte, len(body)+2)
	copy(p, body)
	PutU16(p[len(body):], crc)

	ok, received, computed := Verify(p)
	assert.True(t, ok)
	assert.Equal(t, crc, received)
	assert.Equal(t, crc, computed)
}

func TestVerifyDetectsMismatch(t *testing.T) {
	p := []byte{0x04, 0x01, 0x00, 0x00, 0x00, 0x01, 0x04, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00}
	ok, received, computed := Verify(p)
	assert.False(t, ok)
	assert.Equal(t, uint16(0), received)
	assert.NotEqual(t, uint16(0), computed)
}
