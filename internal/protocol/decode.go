package protocol

import (
	"fmt"
	"strings"

	"github.com/lowvolt/jkble/internal/jkbinary"
)

// Value is a decoded item value. Repeatable items accumulate into a
// []Value under their key (see Record); non-repeatable items store a
// single Value directly.
type Value = any

// Record is a decoded response: a mapping from item key to value. If an
// item's Repeatable flag is set, its value is always a []Value — even
// when only one occurrence was present — so callers never have to
// special-case singleton-vs-sequence. Non-repeatable items store their
// single Value directly.
type Record map[string]Value

// Decoder validates a Specification at construction and decodes
// response buffers into Records.
type Decoder struct {
	spec *Specification
}

// NewDecoder validates spec and returns a Decoder. Callers are expected
// to have produced spec via Unpack, which already guarantees the
// invariants, but NewDecoder re-checks the length and repeated-key
// invariants defensively since a Specification can in principle be
// hand-built (e.g. in tests), and a Decoder over an invalid spec must
// never be allowed to silently misbehave.
func NewDecoder(spec *Specification) (*Decoder, error) {
	if issues := validateSpec(spec); len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}
	return &Decoder{spec: spec}, nil
}

// validateSpec re-checks the §3 invariants against an already-resolved
// Specification, for defense against hand-built specs bypassing Unpack.
func validateSpec(spec *Specification) []ValidationIssue {
	var issues []ValidationIssue
	for _, resp := range spec.responses {
		total := 0
		seen := make(map[string]bool, len(resp.Items))
		for _, item := range resp.Items {
			total += item.ByteLength
			if seen[item.Key] && !item.Repeatable {
				issues = append(issues, ValidationIssue{
					Response: resp.Name, Key: item.Key,
					Reason: "non-repeatable key appears more than once",
				})
			}
			seen[item.Key] = true
		}
		if total != resp.Length {
			issues = append(issues, ValidationIssue{
				Response: resp.Name,
				Reason:   fmt.Sprintf("sum of item byte lengths %d does not match declared length %d", total, resp.Length),
			})
		}
	}
	return issues
}

// Decode resolves sig to a Response definition and decodes buffer into
// a Record by walking its Item descriptors in declaration order.
//
// Decode never mutates buffer. On a short buffer or unrecognized
// numeric type it returns a *DecodeError wrapping ErrDecodeFailure;
// partially decoded state is discarded (the caller receives a nil
// Record, not a partial one).
func (d *Decoder) Decode(sig []byte, buffer []byte) (*Response, Record, error) {
	resp, ok := d.spec.ResponseBySignature(sig)
	if !ok {
		return nil, nil, fmt.Errorf("signature %s: %w", jkbinary.BytesToHex(sig), ErrUnknownSignature)
	}

	return d.decodeResponse(resp, buffer)
}

// decodeResponse is split out so tests (and DecodeBuffer below) can
// decode a known Response directly without a signature lookup.
func (d *Decoder) decodeResponse(resp Response, buffer []byte) (*Response, Record, error) {
	record := make(Record, len(resp.Items))

	for _, item := range resp.Items {
		end := item.Offset + item.ByteLength
		if end > len(buffer) {
			return nil, nil, &DecodeError{
				ResponseName: resp.Name, Key: item.Key, Offset: item.Offset,
				Err: jkbinary.ErrShortBuffer,
			}
		}

		slice := buffer[item.Offset:end]
		val, err := decodeItem(item, slice, buffer)
		if err != nil {
			return nil, nil, &DecodeError{
				ResponseName: resp.Name, Key: item.Key, Offset: item.Offset, Err: err,
			}
		}

		if item.Repeatable {
			seq, _ := record[item.Key].([]Value)
			record[item.Key] = append(seq, val)
			continue
		}
		record[item.Key] = val
	}

	return &resp, record, nil
}

// DecodeBuffer decodes buffer against an already-resolved Response,
// bypassing signature lookup. Used by the frame assembler, which has
// already resolved the Response while checking completeness.
func (d *Decoder) DecodeBuffer(resp Response, buffer []byte) (Record, error) {
	_, record, err := d.decodeResponse(resp, buffer)
	return record, err
}

func decodeItem(item Item, slice []byte, whole []byte) (any, error) {
	switch item.Kind {
	case ItemRaw:
		if item.Getter != nil {
			return item.Getter(slice, item.ByteLength, item.Offset, whole), nil
		}
		out := make([]byte, len(slice))
		copy(out, slice)
		return out, nil

	case ItemText:
		return decodeText(item, slice), nil

	case ItemBoolean:
		for _, b := range slice {
			if b != 0 {
				return true, nil
			}
		}
		return false, nil

	case ItemNumeric:
		return decodeNumeric(item, slice)

	default:
		return nil, fmt.Errorf("item %q: unknown kind %v", item.Key, item.Kind)
	}
}

func decodeText(item Item, slice []byte) string {
	switch item.TextEncoding {
	case TextHex:
		return jkbinary.BytesToHex(slice)
	default: // TextUTF8, TextASCII — both strip NUL code points.
		return stripNUL(string(slice))
	}
}

func stripNUL(s string) string {
	return strings.Map(func(r rune) rune {
		if r == 0 {
			return -1
		}
		return r
	}, s)
}

func decodeNumeric(item Item, slice []byte) (any, error) {
	width := item.NumberType.byteWidth()
	if width == 0 {
		return nil, fmt.Errorf("item %q: %w", item.Key, fmt.Errorf("unrecognized number type %v", item.NumberType))
	}
	if len(slice) < width {
		return nil, fmt.Errorf("item %q: %w", item.Key, jkbinary.ErrShortBuffer)
	}

	var raw float64
	switch item.NumberType {
	case NumberInt8, NumberInt16, NumberInt32:
		v, err := jkbinary.ReadInt(slice, width, item.Endianness)
		if err != nil {
			return nil, err
		}
		raw = float64(v)
	case NumberUint8, NumberUint16, NumberUint32:
		v, err := jkbinary.ReadUint(slice, width, item.Endianness)
		if err != nil {
			return nil, err
		}
		raw = float64(v)
	case NumberFloat32:
		v, err := jkbinary.ReadFloat32(slice, item.Endianness)
		if err != nil {
			return nil, err
		}
		raw = float64(v)
	case NumberFloat64:
		v, err := jkbinary.ReadFloat64(slice, item.Endianness)
		if err != nil {
			return nil, err
		}
		raw = v
	}

	// Multiplier applies before precision rounding (§4.2 step 3).
	raw *= item.Multiplier
	if item.HasPrecision {
		raw = jkbinary.RoundToPrecision(raw, item.Precision)
	}
	return raw, nil
}
