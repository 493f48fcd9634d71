// Package framer finds P3 frame boundaries in an arbitrary byte stream,
// reversing DLE byte-stuffing and surfacing completed, unescaped frame
// payloads. It never blocks and never allocates goroutines: it is a pure
// transformation driven entirely by Push, matching the single-writer event
// loop the rest of the bridge runs under.
package framer

const (
	// SOH marks the start of a frame.
	SOH = 0x01
	// EOT marks the end of a frame.
	EOT = 0x04
	// DLE escapes an SOH/EOT/DLE byte appearing inside a frame's payload.
	DLE = 0x10

	escapeXOR = 0x20

	// DefaultMaxFrame is the rolling buffer cap: a candidate frame that
	// grows past this without a closing EOT is dropped and framing
	// resyncs.
	DefaultMaxFrame = 64 * 1024
)

// DiagnosticKind classifies a non-fatal framing event.
type DiagnosticKind string

const (
	DiagResync       DiagnosticKind = "resync"
	DiagOversize     DiagnosticKind = "frame_oversize"
	DiagDLEAtEOF     DiagnosticKind = "dle_at_eof"
)

// Diagnostic describes a non-fatal framing event. Framing errors never
// abort the stream; they are reported here and framing continues.
type Diagnostic struct {
	Kind   DiagnosticKind
	Detail string
}

// Framer accumulates bytes across pushes and yields completed, unescaped
// frame payloads. It owns a single rolling input buffer; it is not safe
// for concurrent use (the bridge's single-writer event loop owns it).
type Framer struct {
	buf        []byte
	maxFrame   int
	onDiag     func(Diagnostic)
}

// New creates a Framer. maxFrame <= 0 uses DefaultMaxFrame. onDiag may be
// nil (diagnostics are then dropped).
func New(maxFrame int, onDiag func(Diagnostic)) *Framer {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrame
	}
	return &Framer{maxFrame: maxFrame, onDiag: onDiag}
}

func (f *Framer) diag(kind DiagnosticKind, detail string) {
	if f.onDiag != nil {
		f.onDiag(Diagnostic{Kind: kind, Detail: detail})
	}
}

// Push appends new bytes and returns every frame payload (unescaped, with
// SOH/EOT stripped and the trailing CRC bytes still included — the caller
// validates CRC) that becomes complete as a result. It may return zero, one, or many frames
// from a single call.
func (f *Framer) Push(data []byte) [][]byte {
	f.buf = append(f.buf, data...)

	var frames [][]byte
	for {
		payload, status := f.tryExtractOne()
		switch status {
		case statusFrame:
			frames = append(frames, payload)
			continue
		case statusResync:
			continue
		case statusIncomplete:
			return frames
		}
	}
}

type extractStatus int

const (
	statusIncomplete extractStatus = iota
	statusFrame
	statusResync
)

// tryExtractOne attempts to pull one complete frame out of f.buf, updating
// f.buf to reflect whatever progress was made. It returns statusFrame with
// the unescaped payload on success, statusResync if it discarded bytes and
// more progress might be possible without new input, or statusIncomplete
// if nothing more can be done until Push is called again.
func (f *Framer) tryExtractOne() ([]byte, extractStatus) {
	start, pendingFrom := scanForSOH(f.buf)
	if start < 0 {
		if pendingFrom >= 0 {
			// A lone DLE sits at the buffer tail; it cannot yet be
			// classified as garbage or an escape lead-in. Keep it.
			if pendingFrom > 0 {
				f.diag(DiagDLEAtEOF, "dangling DLE at buffer tail, awaiting more data")
			}
			f.buf = f.buf[pendingFrom:]
			return nil, statusIncomplete
		}
		// No SOH anywhere in the buffer: all of it is noise.
		if len(f.buf) > 0 {
			f.diag(DiagResync, "no SOH found, discarding buffered noise")
		}
		f.buf = f.buf[:0]
		return nil, statusIncomplete
	}

	if start > 0 {
		f.diag(DiagResync, "discarding bytes preceding next SOH")
	}

	out := make([]byte, 0, len(f.buf)-start)
	j := start + 1
	for j < len(f.buf) {
		b := f.buf[j]
		switch {
		case b == DLE:
			if j+1 >= len(f.buf) {
				// Lone DLE at the tail: retained, not consumed.
				f.buf = f.buf[start:]
				return nil, statusIncomplete
			}
			out = append(out, f.buf[j+1]^escapeXOR)
			j += 2
		case b == EOT:
			f.buf = f.buf[j+1:]
			return out, statusFrame
		case b == SOH:
			// An unescaped SOH inside what looked like a frame restarts
			// framing from here; the partial frame is dropped.
			f.diag(DiagResync, "unescaped SOH inside frame, dropping partial frame")
			f.buf = f.buf[j:]
			return nil, statusResync
		default:
			out = append(out, b)
			j++
		}

		if j-start > f.maxFrame {
			f.diag(DiagOversize, "candidate frame exceeded max size without EOT")
			next := indexOfSOH(f.buf[start+1:])
			if next < 0 {
				f.buf = f.buf[:0]
			} else {
				f.buf = f.buf[start+1+next:]
			}
			return nil, statusResync
		}
	}

	// Reached the end of the buffer without a closing EOT: incomplete,
	// keep everything from the SOH onward for the next push.
	f.buf = f.buf[start:]
	return nil, statusIncomplete
}

// scanForSOH finds the first SOH not preceded by an (unconsumed) DLE
// escape. It returns (idx, -1) when found, (-1, -1) when the buffer is
// pure noise with no SOH at all, and (-1, tailIdx) when the scan ran into
// a lone DLE at the very end of the buffer and must wait for more data
// before it can tell whether that DLE starts an escape or is itself noise.
func scanForSOH(buf []byte) (idx int, pendingFrom int) {
	i := 0
	for i < len(buf) {
		c := buf[i]
		if c == DLE {
			if i+1 >= len(buf) {
				return -1, i
			}
			i += 2
			continue
		}
		if c == SOH {
			return i, -1
		}
		i++
	}
	return -1, -1
}

func indexOfSOH(buf []byte) int {
	for i, c := range buf {
		if c == SOH {
			return i
		}
	}
	return -1
}
