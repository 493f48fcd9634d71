package p3

import "fmt"

// Known Type-Of-Record values.
const (
	TORPassing uint16 = 0x0001
	TORStatus  uint16 = 0x0002
	TORVersion uint16 = 0x0003
	TORError   uint16 = 0xFFFF
)

var torNames = map[uint16]string{
	TORPassing: "passing",
	TORStatus:  "status",
	TORVersion: "version",
	TORError:   "error",
}

// torName resolves a TOR to its canonical name, synthesising tor_0xXXXX
// for anything the static table doesn't know about.
func torName(tor uint16) string {
	if name, ok := torNames[tor]; ok {
		return name
	}
	return fmt.Sprintf("tor_0x%04x", tor)
}

// generalTOFTable covers transport-level fields that can appear under any
// TOR, regardless of record type.
var generalTOFTable = map[uint8]FieldDesc{
	0x81: {Name: "decoderId", Type: TypeU32},
	0x83: {Name: "controllerId", Type: TypeU32},
	0x85: {Name: "requestId", Type: TypeU64},
}

// perTORTOFTable holds field descriptors specific to one TOR. A lookup
// here takes precedence over generalTOFTable.
var perTORTOFTable = map[uint16]map[uint8]FieldDesc{
	TORPassing: {
		0x01: {Name: "transponderId", Type: TypeHex},
		0x02: {Name: "passingNumber", Type: TypeU32},
		0x03: {Name: "loopId", Type: TypeU8},
		0x04: {Name: "rtcTimeUs", Type: TypeU64},
		0x05: {Name: "signalStrength", Type: TypeU16},
		0x06: {Name: "hits", Type: TypeU16},
		0x07: {Name: "passingFlags", Type: TypeU8},
	},
	TORStatus: {
		0x01: {Name: "temperatureC", Type: TypeI16},
		0x02: {Name: "voltageMv", Type: TypeU16},
		0x03: {Name: "gpsFixQuality", Type: TypeU8},
		0x04: {Name: "uptimeSeconds", Type: TypeU32},
	},
	TORVersion: {
		0x01: {Name: "firmwareVersion", Type: TypeString},
		0x02: {Name: "hardwareId", Type: TypeHex},
	},
	TORError: {
		0x01: {Name: "errorCode", Type: TypeU16},
		0x02: {Name: "errorMessage", Type: TypeString},
	},
}

// lookupField resolves a (tor, tof) pair to a field descriptor. The
// per-TOR table takes precedence over the general fallback; ok is false
// when neither table has an entry.
func lookupField(tor uint16, tof uint8) (FieldDesc, bool) {
	if specific, ok := perTORTOFTable[tor]; ok {
		if desc, ok := specific[tof]; ok {
			return desc, true
		}
	}
	if desc, ok := generalTOFTable[tof]; ok {
		return desc, true
	}
	return FieldDesc{}, false
}

// tofName resolves a TOF within a TOR to its canonical name, synthesising
// tof_0xXX for anything unknown.
func tofName(tor uint16, tof uint8) string {
	if desc, ok := lookupField(tor, tof); ok {
		return desc.Name
	}
	return fmt.Sprintf("tof_0x%02x", tof)
}
