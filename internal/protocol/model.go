package protocol

import (
	"time"

	"github.com/lowvolt/jkble/internal/jkbinary"
)

// ItemKind discriminates the variant of an Item descriptor (§3 of the
// design document: raw, text, numeric, boolean). Re-architected as a
// tagged sum type rather than a runtime string switch — an unrecognized
// kind is rejected at Unpack time, never at Decode time.
type ItemKind uint8

const (
	// ItemRaw yields the raw byte slice, optionally transformed by a Getter.
	ItemRaw ItemKind = iota
	// ItemText decodes the slice as hex, UTF-8, or ASCII per TextEncoding.
	ItemText
	// ItemNumeric decodes the slice as a signed/unsigned integer or float.
	ItemNumeric
	// ItemBoolean is true iff any byte in the slice is non-zero.
	ItemBoolean
)

// String implements fmt.Stringer.
func (k ItemKind) String() string {
	switch k {
	case ItemRaw:
		return "raw"
	case ItemText:
		return "text"
	case ItemNumeric:
		return "numeric"
	case ItemBoolean:
		return "boolean"
	default:
		return "unknown"
	}
}

// TextEncoding selects how an ItemText value is rendered.
type TextEncoding uint8

const (
	// TextHex renders the slice as a space-separated uppercase hex string.
	TextHex TextEncoding = iota
	// TextUTF8 decodes the slice as UTF-8, stripping NUL code points.
	TextUTF8
	// TextASCII decodes the slice as ASCII, stripping NUL code points.
	TextASCII
)

// String implements fmt.Stringer.
func (e TextEncoding) String() string {
	switch e {
	case TextHex:
		return "hex"
	case TextUTF8:
		return "utf-8"
	case TextASCII:
		return "ascii"
	default:
		return "unknown"
	}
}

// NumberType selects the numeric interpretation of an ItemNumeric value.
type NumberType uint8

const (
	NumberInt8 NumberType = iota
	NumberUint8
	NumberInt16
	NumberUint16
	NumberInt32
	NumberUint32
	NumberFloat32
	NumberFloat64
)

// String implements fmt.Stringer.
func (n NumberType) String() string {
	switch n {
	case NumberInt8:
		return "int8"
	case NumberUint8:
		return "uint8"
	case NumberInt16:
		return "int16"
	case NumberUint16:
		return "uint16"
	case NumberInt32:
		return "int32"
	case NumberUint32:
		return "uint32"
	case NumberFloat32:
		return "float32"
	case NumberFloat64:
		return "float64"
	default:
		return "unknown"
	}
}

// byteWidth returns the wire width in bytes of n.
func (n NumberType) byteWidth() int {
	switch n {
	case NumberInt8, NumberUint8:
		return 1
	case NumberInt16, NumberUint16:
		return 2
	case NumberInt32, NumberUint32, NumberFloat32:
		return 4
	case NumberFloat64:
		return 8
	default:
		return 0
	}
}

// Getter transforms a raw item slice into a value. Arguments mirror §3:
// the item's own slice, its byte length, its offset, and the full
// response buffer it was extracted from (for getters that need context
// beyond their own field).
type Getter func(item []byte, byteLength, offset int, whole []byte) any

// Item is a single resolved field descriptor within a Response.
//
// Offset is always unpacker-assigned (the running prefix sum of
// preceding ByteLengths in declaration order) and is never author
// supplied — see Definition in unpack.go for the pre-resolution shape.
type Item struct {
	Key        string
	Offset     int
	ByteLength int
	Repeatable bool
	Kind       ItemKind

	// Raw-only.
	Getter Getter

	// Text-only.
	TextEncoding TextEncoding

	// Numeric-only.
	NumberType  NumberType
	Endianness  jkbinary.Endianness
	Multiplier  float64
	Precision   int
	HasPrecision bool
}

// Command is a resolved command definition.
type Command struct {
	Name         string
	Code         []byte
	Timeout      time.Duration
	PostSendWait time.Duration
}

// Response is a resolved response definition.
type Response struct {
	Name      string
	Kind      string
	Signature []byte
	Length    int
	Items     []Item
}

// SignatureByte returns the discriminating first byte of the response
// signature. Response.Signature is always non-empty on a validated
// Specification.
func (r Response) SignatureByte() byte {
	return r.Signature[0]
}

// Specification is the fully-resolved protocol description produced by
// Unpack. It satisfies the invariants enumerated in the design document:
// response byte-length sums match declared lengths, item offsets are
// the strict prefix sum of byte lengths, and signatures are pairwise
// distinct in their first byte.
type Specification struct {
	ServiceUUID          string
	CharacteristicUUID   string
	SegmentHeader        []byte
	CommandHeader        []byte
	CommandLength        int
	InactivityTimeout    time.Duration
	ConnectPreviousTimeout time.Duration

	Commands  map[string]Command
	responses map[byte]Response
}

// CommandByName returns the command definition registered under name.
func (s *Specification) CommandByName(name string) (Command, bool) {
	c, ok := s.Commands[name]
	return c, ok
}

// ResponseBySignature returns the response definition whose signature's
// first byte matches sig[0]. Returns (Response{}, false) if sig is empty
// or no response claims that first byte.
func (s *Specification) ResponseBySignature(sig []byte) (Response, bool) {
	if len(sig) == 0 {
		return Response{}, false
	}
	r, ok := s.responses[sig[0]]
	return r, ok
}

// Responses returns all resolved response definitions in an unspecified
// order. Primarily useful for diagnostics and tests.
func (s *Specification) Responses() []Response {
	out := make([]Response, 0, len(s.responses))
	for _, r := range s.responses {
		out = append(out, r)
	}
	return out
}
