package protocol

import (
	"fmt"
	"time"

	"github.com/lowvolt/jkble/internal/jkbinary"
)

// -------------------------------------------------------------------------
// Definition — the compact, author-facing shape parsed directly from a
// protocol YAML document via gopkg.in/yaml.v3 (see the design document's
// Ambient Stack section: this is a distinct concern from the daemon's
// koanf-layered runtime configuration).
// -------------------------------------------------------------------------

// Definition is the unresolved protocol description: byte offsets are
// not yet computed, and defaults (e.g. little-endian) are not yet
// filled in. Unpack turns a Definition into a validated Specification.
type Definition struct {
	ServiceUUID            string           `yaml:"service_uuid"`
	CharacteristicUUID      string           `yaml:"characteristic_uuid"`
	SegmentHeader           []byte           `yaml:"segment_header"`
	CommandHeader            []byte          `yaml:"command_header"`
	CommandLength            int             `yaml:"command_length"`
	InactivityTimeout        time.Duration   `yaml:"inactivity_timeout"`
	ConnectPreviousTimeout   time.Duration   `yaml:"connect_previous_timeout"`
	Commands                 []CommandDef    `yaml:"commands"`
	Responses                []ResponseDef   `yaml:"responses"`
}

// CommandDef is the author-facing command description.
type CommandDef struct {
	Name         string        `yaml:"name"`
	Code         []byte        `yaml:"code"`
	Timeout      time.Duration `yaml:"timeout"`
	PostSendWait time.Duration `yaml:"post_send_wait"`
}

// ResponseDef is the author-facing response description. Length is the
// declared total length; Items lists fields in wire order without
// offsets, which Unpack computes as the running prefix sum.
type ResponseDef struct {
	Name      string    `yaml:"name"`
	Kind      string    `yaml:"kind"`
	Signature []byte    `yaml:"signature"`
	Length    int       `yaml:"length"`
	Items     []ItemDef `yaml:"items"`
}

// ItemDef is the author-facing item description. Offset is never set
// here; Unpack computes and assigns it.
type ItemDef struct {
	Key        string  `yaml:"key"`
	ByteLength int     `yaml:"byte_length"`
	Repeatable bool    `yaml:"repeatable"`
	Kind       string  `yaml:"kind"` // "raw", "text", "numeric", "boolean"
	Getter     Getter  `yaml:"-"`

	// Text-only.
	TextEncoding string `yaml:"text_encoding"` // "hex", "utf-8", "ascii"

	// Numeric-only.
	NumberType string   `yaml:"number_type"` // "int8", "uint8", ...
	Endianness string   `yaml:"endianness"`  // "little", "big"; default little
	Multiplier *float64 `yaml:"multiplier"`
	Precision  *int     `yaml:"precision"`
}

// Unpack resolves a Definition into a validated Specification. It
// assigns item offsets, fills defaults, and validates every invariant
// named in the design document §3. On any violation it returns a
// *ValidationError wrapping ErrProtocolInvalid that names every
// offending response in one pass — it never silently repairs a
// malformed definition.
func Unpack(def Definition) (*Specification, error) {
	spec := &Specification{
		ServiceUUID:            def.ServiceUUID,
		CharacteristicUUID:     def.CharacteristicUUID,
		SegmentHeader:          def.SegmentHeader,
		CommandHeader:          def.CommandHeader,
		CommandLength:          def.CommandLength,
		InactivityTimeout:      def.InactivityTimeout,
		ConnectPreviousTimeout: def.ConnectPreviousTimeout,
		Commands:               make(map[string]Command, len(def.Commands)),
		responses:              make(map[byte]Response, len(def.Responses)),
	}

	var issues []ValidationIssue

	for _, cd := range def.Commands {
		spec.Commands[cd.Name] = Command{
			Name:         cd.Name,
			Code:         cd.Code,
			Timeout:      cd.Timeout,
			PostSendWait: cd.PostSendWait,
		}
	}

	seenSigByte := make(map[byte]string, len(def.Responses))

	for _, rd := range def.Responses {
		resp, respIssues := unpackResponse(rd)
		issues = append(issues, respIssues...)

		if len(rd.Signature) == 0 {
			continue
		}
		sigByte := rd.Signature[0]
		if existing, dup := seenSigByte[sigByte]; dup {
			issues = append(issues, ValidationIssue{
				Response: rd.Name,
				Reason:   fmt.Sprintf("signature byte %#02x collides with response %q", sigByte, existing),
			})
			continue
		}
		seenSigByte[sigByte] = rd.Name
		spec.responses[sigByte] = resp
	}

	if len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}

	return spec, nil
}

// unpackResponse resolves a single ResponseDef: assigns offsets as the
// running prefix sum of byte lengths, fills numeric defaults, and
// checks that the declared length matches the sum of item byte lengths
// and that non-repeatable keys do not repeat.
func unpackResponse(rd ResponseDef) (Response, []ValidationIssue) {
	var issues []ValidationIssue

	resp := Response{
		Name:      rd.Name,
		Kind:      rd.Kind,
		Signature: rd.Signature,
		Length:    rd.Length,
		Items:     make([]Item, 0, len(rd.Items)),
	}

	seenKeys := make(map[string]bool, len(rd.Items))
	offset := 0
	total := 0

	for _, id := range rd.Items {
		item, err := resolveItem(id, offset)
		if err != nil {
			issues = append(issues, ValidationIssue{Response: rd.Name, Key: id.Key, Reason: err.Error()})
			offset += id.ByteLength
			total += id.ByteLength
			continue
		}

		if seenKeys[id.Key] && !id.Repeatable {
			issues = append(issues, ValidationIssue{
				Response: rd.Name,
				Key:      id.Key,
				Reason:   "non-repeatable key appears more than once",
			})
		}
		seenKeys[id.Key] = true

		resp.Items = append(resp.Items, item)
		offset += item.ByteLength
		total += item.ByteLength
	}

	if total != rd.Length {
		issues = append(issues, ValidationIssue{
			Response: rd.Name,
			Reason:   fmt.Sprintf("sum of item byte lengths %d does not match declared length %d", total, rd.Length),
		})
	}

	if len(rd.Signature) == 0 {
		issues = append(issues, ValidationIssue{Response: rd.Name, Reason: "signature must be non-empty"})
	}

	return resp, issues
}

// resolveItem turns an ItemDef into an Item, assigning its offset and
// filling kind-specific defaults (little-endian for multi-byte numeric
// items absent an explicit endianness).
func resolveItem(id ItemDef, offset int) (Item, error) {
	item := Item{
		Key:        id.Key,
		Offset:     offset,
		ByteLength: id.ByteLength,
		Repeatable: id.Repeatable,
		Getter:     id.Getter,
	}

	switch id.Kind {
	case "raw", "":
		item.Kind = ItemRaw
	case "text":
		item.Kind = ItemText
		switch id.TextEncoding {
		case "utf-8", "utf8":
			item.TextEncoding = TextUTF8
		case "ascii":
			item.TextEncoding = TextASCII
		case "hex", "":
			item.TextEncoding = TextHex
		default:
			return Item{}, fmt.Errorf("unknown text_encoding %q", id.TextEncoding)
		}
	case "numeric":
		item.Kind = ItemNumeric
		nt, err := parseNumberType(id.NumberType)
		if err != nil {
			return Item{}, err
		}
		item.NumberType = nt
		item.Endianness = jkbinary.LittleEndian
		if id.Endianness == "big" {
			item.Endianness = jkbinary.BigEndian
		}
		if id.Multiplier != nil {
			item.Multiplier = *id.Multiplier
		} else {
			item.Multiplier = 1
		}
		if id.Precision != nil {
			item.Precision = *id.Precision
			item.HasPrecision = true
		}
	case "boolean":
		item.Kind = ItemBoolean
	default:
		return Item{}, fmt.Errorf("unknown item kind %q", id.Kind)
	}

	return item, nil
}

func parseNumberType(s string) (NumberType, error) {
	switch s {
	case "int8":
		return NumberInt8, nil
	case "uint8":
		return NumberUint8, nil
	case "int16":
		return NumberInt16, nil
	case "uint16":
		return NumberUint16, nil
	case "int32":
		return NumberInt32, nil
	case "uint32":
		return NumberUint32, nil
	case "float32":
		return NumberFloat32, nil
	case "float64":
		return NumberFloat64, nil
	default:
		return 0, fmt.Errorf("unknown number_type %q", s)
	}
}
