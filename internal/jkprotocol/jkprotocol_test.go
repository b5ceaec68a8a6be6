package jkprotocol_test

import (
	"testing"

	"github.com/lowvolt/jkble/internal/jkprotocol"
	"github.com/lowvolt/jkble/internal/protocol"
)

func TestEmbeddedResolves(t *testing.T) {
	spec, err := jkprotocol.Embedded()
	if err != nil {
		t.Fatalf("Embedded: %v", err)
	}

	if spec.CommandLength != 20 {
		t.Errorf("CommandLength = %d, want 20", spec.CommandLength)
	}
	if _, ok := spec.CommandByName("GET_SETTINGS"); !ok {
		t.Errorf("expected GET_SETTINGS command to be defined")
	}

	for _, sig := range [][]byte{{0x01}, {0x02}, {0x03}} {
		if _, ok := spec.ResponseBySignature(sig); !ok {
			t.Errorf("expected response for signature %v", sig)
		}
	}
}

func TestEmbeddedDecodesCellData(t *testing.T) {
	spec, err := jkprotocol.Embedded()
	if err != nil {
		t.Fatalf("Embedded: %v", err)
	}
	dec, err := protocol.NewDecoder(spec)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}

	resp, ok := spec.ResponseBySignature([]byte{0x01})
	if !ok {
		t.Fatalf("expected cell_data response")
	}

	buf := make([]byte, resp.Length)
	copy(buf, []byte{0x55, 0xAA, 0xEB, 0x90, 0x01})
	// Four cell voltages at 3.300V (0x0CE4 mV).
	for i := 0; i < 4; i++ {
		off := 5 + i*2
		buf[off] = 0xE4
		buf[off+1] = 0x0C
	}

	rec, err := dec.DecodeBuffer(resp, buf)
	if err != nil {
		t.Fatalf("DecodeBuffer: %v", err)
	}

	voltages, ok := rec["cellVoltage"].([]protocol.Value)
	if !ok {
		t.Fatalf("cellVoltage = %T, want []protocol.Value", rec["cellVoltage"])
	}
	if len(voltages) != 4 {
		t.Fatalf("len(cellVoltage) = %d, want 4", len(voltages))
	}
	if voltages[0] != 3.3 {
		t.Errorf("cellVoltage[0] = %v, want 3.3", voltages[0])
	}
}

func TestParseRejectsInvalidDefinition(t *testing.T) {
	_, err := jkprotocol.Parse([]byte("command_length: not-a-number"))
	if err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := jkprotocol.LoadFile("/nonexistent/jk-bms.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
