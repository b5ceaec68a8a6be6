package commands

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lowvolt/jkble/internal/framer"
	"github.com/lowvolt/jkble/internal/jkprotocol"
	"github.com/lowvolt/jkble/internal/protocol"
)

// errIncompleteFrame is returned when the supplied bytes do not form a
// single complete, checksum-valid frame under the given protocol
// definition.
var errIncompleteFrame = errors.New("decode: input does not form a complete frame")

func decodeCmd() *cobra.Command {
	var protocolFile string

	cmd := &cobra.Command{
		Use:   "decode <hex-frame>",
		Short: "Decode a captured frame against a protocol definition",
		Long:  "Decode feeds a hex-encoded byte string (e.g. captured from a BLE sniffer) through the frame assembler and prints the resulting record. Spaces in the hex string are ignored.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			spec, err := loadSpec(protocolFile)
			if err != nil {
				return err
			}

			raw, err := hex.DecodeString(strings.ReplaceAll(args[0], " ", ""))
			if err != nil {
				return fmt.Errorf("decode hex input: %w", err)
			}

			resp, record, err := decodeFrame(spec, raw)
			if err != nil {
				return err
			}

			out, err := formatRecord(resp, record, outputFormat)
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}

	cmd.Flags().StringVar(&protocolFile, "protocol", "", "path to a protocol definition YAML file (defaults to the built-in JK BMS definition)")
	return cmd
}

// loadSpec resolves the protocol definition either from the given file
// path or, when empty, the definition jkbled ships by default.
func loadSpec(path string) (*protocol.Specification, error) {
	if path == "" {
		return jkprotocol.Embedded()
	}
	return jkprotocol.LoadFile(path)
}

// decodeFrame feeds raw through a fresh Assembler in a single Feed
// call. A CLI invocation always supplies one already-complete capture,
// so unlike the Device Session there is no fragmentation to reassemble
// across multiple calls.
func decodeFrame(spec *protocol.Specification, raw []byte) (*protocol.Response, protocol.Record, error) {
	dec, err := protocol.NewDecoder(spec)
	if err != nil {
		return nil, nil, fmt.Errorf("build decoder: %w", err)
	}

	asm := framer.New(spec, dec)
	result := asm.Feed(raw)

	for _, action := range result.Actions {
		switch action.Kind {
		case framer.ActionChecksumFailed:
			return nil, nil, fmt.Errorf("%w: checksum mismatch", errIncompleteFrame)
		case framer.ActionDecodeFailed:
			return nil, nil, fmt.Errorf("%w: %w", errIncompleteFrame, action.Err)
		}
	}

	if !result.Emitted {
		return nil, nil, errIncompleteFrame
	}

	return result.Response, result.Record, nil
}
