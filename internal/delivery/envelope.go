package delivery

import (
	"encoding/hex"
	"time"

	"github.com/sdale511/p3-bridge/internal/p3"
)

// Envelope is the HTTP-out wire shape (§6), distinct from p3.Record's
// internal snake_case JSON: the wire envelope uses camelCase and a
// per-field dataHex/dataAscii split the internal Record doesn't carry.
type Envelope struct {
	ReceivedAt time.Time              `json:"receivedAt"`
	Version    uint8                  `json:"version"`
	TOR        uint16                 `json:"tor"`
	TORName    string                 `json:"torName"`
	Flags      uint16                 `json:"flags"`
	CrcOk      bool                   `json:"crcOk"`
	Decoded    map[string]interface{} `json:"decoded"`
	Fields     []EnvelopeField        `json:"fields"`
}

// EnvelopeField is one field entry in the wire envelope's fields array.
type EnvelopeField struct {
	TOF       uint8       `json:"tof"`
	TOFName   string      `json:"tofName"`
	Length    uint16      `json:"length"`
	Type      string      `json:"type"`
	Value     interface{} `json:"value"`
	ValueType string      `json:"valueType"`
	DataHex   string      `json:"dataHex"`
	DataAscii string      `json:"dataAscii"`
}

// BuildEnvelope translates a parsed Record into the §6 HTTP wire shape.
func BuildEnvelope(rec *p3.Record) Envelope {
	fields := make([]EnvelopeField, 0, len(rec.Fields))
	for _, f := range rec.Fields {
		fields = append(fields, EnvelopeField{
			TOF:       f.TOF,
			TOFName:   f.TOFName,
			Length:    f.Length,
			Type:      f.TypeTag,
			Value:     f.DecodedValue,
			ValueType: f.TypeTag,
			DataHex:   hex.EncodeToString(f.RawBytes),
			DataAscii: asciiRender(f.RawBytes),
		})
	}
	return Envelope{
		ReceivedAt: rec.ReceivedAt,
		Version:    rec.Version,
		TOR:        rec.TOR,
		TORName:    rec.TORName,
		Flags:      rec.Flags,
		CrcOk:      rec.CRC.Ok,
		Decoded:    rec.Decoded,
		Fields:     fields,
	}
}

// asciiRender renders raw bytes as a best-effort ASCII string, substituting
// '.' for anything outside the printable range — a debugging aid for the
// dataAscii envelope field, not a classification (see internal/p3's
// printable-ratio heuristic for that).
func asciiRender(raw []byte) string {
	out := make([]byte, len(raw))
	for i, b := range raw {
		if b >= 0x20 && b <= 0x7E {
			out[i] = b
		} else {
			out[i] = '.'
		}
	}
	return string(out)
}
