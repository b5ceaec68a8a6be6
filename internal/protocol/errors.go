package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the protocol package. Callers should match with
// errors.Is; wrapped instances carry the offending name/key/offset via
// fmt.Errorf("...: %w", ...).
var (
	// ErrProtocolInvalid indicates the unpacked protocol failed validation:
	// a response's items don't sum to its declared length, two responses
	// share a signature first byte, or a non-repeatable key repeats.
	// Fatal at construction time.
	ErrProtocolInvalid = errors.New("protocol: invalid definition")

	// ErrUnknownCommand indicates SendCommand was called with a name not
	// present in the specification's command table.
	ErrUnknownCommand = errors.New("protocol: unknown command")

	// ErrUnknownSignature indicates a frame's signature matched no
	// registered response definition.
	ErrUnknownSignature = errors.New("protocol: unknown response signature")

	// ErrDecodeFailure indicates an item could not be extracted from the
	// response buffer — typically a short buffer or unknown number type.
	ErrDecodeFailure = errors.New("protocol: decode failure")

	// ErrCommandOverflow indicates a constructed command payload exceeds
	// protocol.CommandLength.
	ErrCommandOverflow = errors.New("protocol: command payload overflow")
)

// ValidationIssue names one offending response (and, where applicable,
// item key) found during Unpack.
type ValidationIssue struct {
	Response string
	Key      string
	Reason   string
}

func (i ValidationIssue) String() string {
	if i.Key == "" {
		return fmt.Sprintf("%s: %s", i.Response, i.Reason)
	}
	return fmt.Sprintf("%s[%s]: %s", i.Response, i.Key, i.Reason)
}

// ValidationError wraps ErrProtocolInvalid and collects every offending
// response found in a single Unpack pass, rather than failing at the
// first issue. This is the typed, structured replacement for the source
// implementation's unreachable error-accumulation catch clause — see the
// design document's resolved Open Question.
type ValidationError struct {
	Issues []ValidationIssue
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.String()
	}
	return fmt.Sprintf("protocol invalid: %s", strings.Join(parts, "; "))
}

// Unwrap allows errors.Is(err, ErrProtocolInvalid) to succeed.
func (e *ValidationError) Unwrap() error {
	return ErrProtocolInvalid
}

// DecodeError names the item and offset at which decoding failed.
type DecodeError struct {
	ResponseName string
	Key          string
	Offset       int
	Err          error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s[%s] at offset %d: %v", e.ResponseName, e.Key, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return errors.Join(ErrDecodeFailure, e.Err)
}
