// Package wire provides the little-endian integer decoding and CRC16
// primitives the P3 wire format is built on.
package wire

// U8 reads a single byte.
func U8(b []byte) uint8 {
	return b[0]
}

// U16 reads a little-endian uint16. Inputs shorter than 2 bytes are
// zero-extended from the MSB side.
func U16(b []byte) uint16 {
	var v uint16
	for i := 0; i < 2 && i < len(b); i++ {
		v |= uint16(b[i]) << (8 * uint(i))
	}
	return v
}

// U32 reads a little-endian uint32, zero-extended if b is short.
func U32(b []byte) uint32 {
	var v uint32
	for i := 0; i < 4 && i < len(b); i++ {
		v |= uint32(b[i]) << (8 * uint(i))
	}
	return v
}

// U64 reads a little-endian uint64, zero-extended if b is short.
func U64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8 && i < len(b); i++ {
		v |= uint64(b[i]) << (8 * uint(i))
	}
	return v
}

// I16 reads a little-endian int16.
func I16(b []byte) int16 {
	return int16(U16(b))
}

// I32 reads a little-endian int32.
func I32(b []byte) int32 {
	return int32(U32(b))
}

// PutU16 writes v as little-endian into b, which must have length >= 2.
func PutU16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

const (
	crc16Poly = 0x1021
	crc16Init = 0xFFFF
)

var crc16Table [256]uint16

func init() {
	for i := 0; i < 256; i++ {
		crc := uint16(i) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ crc16Poly
			} else {
				crc <<= 1
			}
		}
		crc16Table[i] = crc
	}
}

// CRC16 computes CRC-16/CCITT-FALSE (poly 0x1021, init 0xFFFF, no
// reflection, no final XOR) over b.
func CRC16(b []byte) uint16 {
	crc := uint16(crc16Init)
	for _, c := range b {
		crc = (crc << 8) ^ crc16Table[byte(crc>>8)^c]
	}
	return crc
}

// Verify computes CRC16 over p[:len(p)-2] and compares it to the
// little-endian uint16 trailing p. It returns both the received and
// computed values along with the match result.
func Verify(p []byte) (ok bool, received uint16, computed uint16) {
	if len(p) < 2 {
		return false, 0, 0
	}
	body := p[:len(p)-2]
	computed = CRC16(body)
	received = U16(p[len(p)-2:])
	return received == computed, received, computed
}
