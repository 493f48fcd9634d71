package p3

import (
	"encoding/hex"
	"time"

	"github.com/sdale511/p3-bridge/internal/wire"
)

// minPayloadLen is version(1) + tor(2) + flags(2) + crc(2); a frame
// shorter than this has no complete header.
const minPayloadLen = 7

// ParsePayload decodes one unescaped P3 frame payload (the bytes the
// framer hands back, still carrying the trailing CRC) into a Record.
// receivedAt is stamped onto the Record as-is; it is the event-loop's
// notion of "now" at the moment the frame completed, not wall-clock time
// read from inside this function.
//
// A bad CRC does not suppress the record: CRCInfo.Ok is set false and
// parsing continues, since a corrupt record is still useful signal to a
// downstream consumer. ParsePayload only returns an error when the
// payload is too malformed to describe as a record at all, in which case
// the returned *ParseError carries whatever fields were decoded before
// the malformation was hit, for diagnostic logging.
func ParsePayload(payload []byte, receivedAt time.Time) (*Record, error) {
	if len(payload) < minPayloadLen {
		return nil, &ParseError{Reason: ReasonTooShort, Detail: "payload shorter than 7-byte header"}
	}

	version := payload[0]
	tor := wire.U16(payload[1:3])
	flags := wire.U16(payload[3:5])

	ok, received, computed := wire.Verify(payload)

	body := payload[5 : len(payload)-2]
	fields, perr := parseFields(tor, body)
	if perr != nil {
		perr.Version = version
		perr.TOR = tor
		perr.Flags = flags
		perr.PartialFields = fields
		return nil, perr
	}

	rec := &Record{
		Version: version,
		TOR:     tor,
		TORName: torName(tor),
		Flags:   flags,
		Fields:  fields,
		CRC: CRCInfo{
			Ok:       ok,
			Received: received,
			Computed: computed,
		},
		ReceivedAt: receivedAt,
		Decoded:    make(map[string]interface{}, len(fields)),
	}
	for _, f := range fields {
		addDecoded(rec.Decoded, f.TOFName, f.DecodedValue)
	}
	return rec, nil
}

// parseFields walks the TLV body, returning every field decoded before
// either the body is exhausted cleanly or a declared length runs past
// what remains (a truncated_field error).
func parseFields(tor uint16, body []byte) ([]Field, *ParseError) {
	var fields []Field
	pos := 0
	for pos < len(body) {
		if pos+3 > len(body) {
			return fields, &ParseError{Reason: ReasonTruncatedField, Detail: "not enough bytes for a tof+length header"}
		}
		tof := body[pos]
		length := wire.U16(body[pos+1 : pos+3])
		dataStart := pos + 3
		dataEnd := dataStart + int(length)
		if dataEnd > len(body) {
			return fields, &ParseError{Reason: ReasonTruncatedField, Detail: "declared field length runs past body"}
		}

		raw := body[dataStart:dataEnd]
		fields = append(fields, decodeField(tor, tof, length, raw))
		pos = dataEnd
	}
	return fields, nil
}

// decodeField resolves one TLV entry's type and decoded value. A (tor,
// tof) pair present in the static tables is decoded per its declared
// type; anything unmatched falls back to the printable-ratio heuristic.
func decodeField(tor uint16, tof uint8, length uint16, raw []byte) Field {
	f := Field{
		TOF:      tof,
		TOFName:  tofName(tor, tof),
		Length:   length,
		RawBytes: raw,
	}

	if desc, ok := lookupField(tor, tof); ok {
		f.TypeTag = desc.Type.String()
		f.DecodedValue = decodeTyped(desc.Type, raw)
		return f
	}

	if len(raw) == 0 {
		f.TypeTag = "string"
		f.DecodedValue = ""
		return f
	}
	if printableRatio(raw) >= PrintableThreshold {
		f.TypeTag = "string"
		f.DecodedValue = string(raw)
	} else {
		f.TypeTag = "bytes"
		f.DecodedValue = hex.EncodeToString(raw)
	}
	return f
}

// decodeTyped renders raw bytes per a statically-known FieldType. Numeric
// decoders zero-extend short fields (the wire package's decoders already
// do this) and simply ignore any bytes beyond their natural width for an
// over-long declared field.
func decodeTyped(t FieldType, raw []byte) interface{} {
	switch t {
	case TypeU8:
		if len(raw) == 0 {
			return uint8(0)
		}
		return raw[0]
	case TypeU16:
		return wire.U16(raw)
	case TypeU32:
		return wire.U32(raw)
	case TypeU64:
		return wire.U64(raw)
	case TypeI16:
		return wire.I16(raw)
	case TypeI32:
		return wire.I32(raw)
	case TypeString:
		return string(raw)
	case TypeHex, TypeBytes:
		return hex.EncodeToString(raw)
	default:
		return hex.EncodeToString(raw)
	}
}

// addDecoded inserts one field's value into the flattened decoded map.
// A first occurrence of a name is stored as a scalar; a second widens the
// slot into a slice, and further occurrences append to it.
func addDecoded(decoded map[string]interface{}, name string, value interface{}) {
	existing, present := decoded[name]
	if !present {
		decoded[name] = value
		return
	}
	if list, ok := existing.([]interface{}); ok {
		decoded[name] = append(list, value)
		return
	}
	decoded[name] = []interface{}{existing, value}
}
