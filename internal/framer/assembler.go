// Package framer reassembles fragmented BLE GATT notifications into
// complete, checksum-verified response segments.
//
// The Assembler is a pure function over its own buffer state: Feed returns a Result
// describing what happened (and, on a complete frame, the decoded
// Response plus Record) and a list of Actions the caller should log.
// The Assembler itself never logs and never calls out — it only owns
// the rolling buffer.
package framer

import (
	"github.com/lowvolt/jkble/internal/jkbinary"
	"github.com/lowvolt/jkble/internal/protocol"
)

// ActionKind names a side effect the caller should perform after Feed
// returns. The Assembler never performs these itself.
type ActionKind uint8

const (
	// ActionWarnOrphanFragment: a fragment arrived before any segment
	// header was seen; it was dropped.
	ActionWarnOrphanFragment ActionKind = iota
	// ActionWarnOverLength: a segment grew past its declared length
	// before the checksum byte was reached.
	ActionWarnOverLength
	// ActionChecksumFailed: integrity check failed; buffer was discarded.
	ActionChecksumFailed
	// ActionDecodeFailed: the Response Decoder rejected the buffer.
	ActionDecodeFailed
)

// Action is a single side effect to execute, carrying enough context to
// format a log line without the Assembler importing a logger.
type Action struct {
	Kind ActionKind
	Err  error
}

// Result is returned by every call to Feed.
type Result struct {
	// Emitted is true iff a complete, checksum-valid frame was decoded.
	Emitted bool
	// Response and Record are populated iff Emitted is true.
	Response *protocol.Response
	Record   protocol.Record
	// Actions lists side effects for the caller to execute (logging).
	Actions []Action
}

// Assembler owns one rolling response buffer and reassembles fragments
// per the design document §4.3.
type Assembler struct {
	header  []byte
	decoder *protocol.Decoder
	spec    *protocol.Specification

	buf []byte
}

// New creates an Assembler bound to spec's segment header and using dec
// to decode completed frames.
func New(spec *protocol.Specification, dec *protocol.Decoder) *Assembler {
	return &Assembler{
		header:  spec.SegmentHeader,
		decoder: dec,
		spec:    spec,
	}
}

// Reset discards any partially-accumulated buffer. Called by the Device
// Session on disconnect so no stale fragment bleeds into the next
// connection.
func (a *Assembler) Reset() {
	a.buf = nil
}

// Feed accepts one inbound notification fragment and advances the
// assembler's state machine per §4.3 steps 1-8.
func (a *Assembler) Feed(fragment []byte) Result {
	switch {
	case a.startsWithHeader(fragment):
		a.buf = append([]byte(nil), fragment...)
	case a.startsWithHeader(a.buf):
		a.buf = append(a.buf, fragment...)
	default:
		return Result{Actions: []Action{{Kind: ActionWarnOrphanFragment}}}
	}

	return a.tryEmit()
}

// tryEmit checks whether the current buffer forms a complete,
// checksum-valid frame and, if so, decodes and flushes it.
func (a *Assembler) tryEmit() Result {
	if len(a.buf) <= len(a.header) {
		return Result{}
	}

	sigByte := a.buf[len(a.header)]
	resp, ok := a.spec.ResponseBySignature([]byte{sigByte})
	if !ok {
		// Not yet (or never) a recognized signature; keep accumulating
		// until a future header resets the buffer.
		return Result{}
	}

	if len(a.buf) < resp.Length {
		return Result{}
	}

	var actions []Action
	if len(a.buf) > resp.Length {
		actions = append(actions, Action{Kind: ActionWarnOverLength})
	}

	if !validChecksum(a.buf) {
		a.buf = nil
		return Result{Actions: append(actions, Action{Kind: ActionChecksumFailed})}
	}

	record, err := a.decoder.DecodeBuffer(resp, a.buf)
	a.buf = nil // §4.3 step 8: flush whether decode succeeds or fails.
	if err != nil {
		return Result{Actions: append(actions, Action{Kind: ActionDecodeFailed, Err: err})}
	}

	return Result{
		Emitted:  true,
		Response: &resp,
		Record:   record,
		Actions:  actions,
	}
}

// validChecksum reports whether frame's last byte equals the 8-bit
// additive checksum of the preceding bytes.
func validChecksum(frame []byte) bool {
	if len(frame) == 0 {
		return false
	}
	want := frame[len(frame)-1]
	got := jkbinary.Checksum8(frame[:len(frame)-1])
	return got == want
}

func (a *Assembler) startsWithHeader(buf []byte) bool {
	if len(a.header) == 0 || len(buf) < len(a.header) {
		return false
	}
	for i, b := range a.header {
		if buf[i] != b {
			return false
		}
	}
	return true
}
