// Package jkprotocol ships the concrete JK BMS BLE UART protocol
// description consumed by internal/protocol. Where internal/protocol is
// the generic declarative engine (any binary notification protocol
// describable as headers, checksums, and typed offsets), this package
// is the one JK-specific data file: cell voltages, pack current, the
// two NTC temperature channels, state of charge, protection
// thresholds, and charge/discharge switches, plus the four command
// codes a consumer issues to fetch or change them.
//
// Parse and LoadFile decode a protocol document with gopkg.in/yaml.v3
// directly into protocol.Definition (unlike internal/config, which
// layers daemon configuration with koanf), then protocol.Unpack
// resolves and validates it.
// Embedded returns the description bundled into the binary so jkblectl
// can decode sample frames without a device or a config file on disk.
package jkprotocol

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lowvolt/jkble/internal/protocol"
)

//go:embed testdata/jk-bms.yaml
var embeddedDefinition []byte

// Embedded returns the built-in JK BMS protocol Specification.
func Embedded() (*protocol.Specification, error) {
	return Parse(embeddedDefinition)
}

// Parse resolves raw YAML bytes into a validated Specification.
func Parse(raw []byte) (*protocol.Specification, error) {
	var def protocol.Definition
	if err := yaml.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("parse protocol definition: %w", err)
	}

	spec, err := protocol.Unpack(def)
	if err != nil {
		return nil, fmt.Errorf("unpack protocol definition: %w", err)
	}
	return spec, nil
}

// LoadFile reads and resolves the protocol document at path, matching
// the internal/config.DeviceConfig.ProtocolFile field consumed by
// jkbled.
func LoadFile(path string) (*protocol.Specification, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read protocol file %s: %w", path, err)
	}
	spec, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("protocol file %s: %w", path, err)
	}
	return spec, nil
}
