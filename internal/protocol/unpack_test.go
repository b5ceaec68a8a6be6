package protocol_test

import (
	"errors"
	"testing"
	"time"

	"github.com/lowvolt/jkble/internal/protocol"
)

func basicDefinition() protocol.Definition {
	return protocol.Definition{
		ServiceUUID:          "0000ffe0-0000-1000-8000-00805f9b34fb",
		CharacteristicUUID:   "0000ffe1-0000-1000-8000-00805f9b34fb",
		SegmentHeader:        []byte{0x55, 0xAA, 0xEB, 0x90},
		CommandHeader:        []byte{0xAA, 0x55, 0x90, 0xEB},
		CommandLength:        20,
		InactivityTimeout:    30 * time.Second,
		ConnectPreviousTimeout: 5 * time.Second,
		Commands: []protocol.CommandDef{
			{Name: "GET_SETTINGS", Code: []byte{0x00, 0x00, 0x00, 0x01}, Timeout: 2 * time.Second},
			{Name: "GET_DEVICE_INFO", Code: []byte{0x00, 0x00, 0x00, 0x02}, Timeout: 2 * time.Second},
		},
		Responses: []protocol.ResponseDef{
			{
				Name:      "settings",
				Kind:      "settings",
				Signature: []byte{0x01},
				Length:    4,
				Items: []protocol.ItemDef{
					{Key: "flag", ByteLength: 1, Kind: "boolean"},
					{Key: "voltage", ByteLength: 2, Kind: "numeric", NumberType: "uint16"},
					{Key: "checksum", ByteLength: 1, Kind: "raw"},
				},
			},
			{
				Name:      "device_info",
				Kind:      "device_info",
				Signature: []byte{0x02},
				Length:    3,
				Items: []protocol.ItemDef{
					{Key: "model", ByteLength: 2, Kind: "text", TextEncoding: "ascii"},
					{Key: "checksum", ByteLength: 1, Kind: "raw"},
				},
			},
		},
	}
}

func TestUnpackAssignsPrefixSumOffsets(t *testing.T) {
	spec, err := protocol.Unpack(basicDefinition())
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	resp, ok := spec.ResponseBySignature([]byte{0x01})
	if !ok {
		t.Fatal("expected response for signature 0x01")
	}
	wantOffsets := []int{0, 1, 3}
	for i, item := range resp.Items {
		if item.Offset != wantOffsets[i] {
			t.Errorf("item %d offset = %d, want %d", i, item.Offset, wantOffsets[i])
		}
	}
}

func TestUnpackRejectsLengthMismatch(t *testing.T) {
	def := basicDefinition()
	def.Responses[0].Length = 99
	_, err := protocol.Unpack(def)
	if !errors.Is(err, protocol.ErrProtocolInvalid) {
		t.Fatalf("expected ErrProtocolInvalid, got %v", err)
	}
}

func TestUnpackRejectsDuplicateSignatureByte(t *testing.T) {
	def := basicDefinition()
	def.Responses[1].Signature = []byte{0x01}
	_, err := protocol.Unpack(def)
	if !errors.Is(err, protocol.ErrProtocolInvalid) {
		t.Fatalf("expected ErrProtocolInvalid, got %v", err)
	}
}

func TestUnpackRejectsIllegalRepeat(t *testing.T) {
	def := basicDefinition()
	def.Responses[0].Items = append(def.Responses[0].Items, protocol.ItemDef{
		Key: "flag", ByteLength: 0, Kind: "boolean",
	})
	// Keep the length invariant satisfied so only the repeat issue fires.
	def.Responses[0].Length = 4
	_, err := protocol.Unpack(def)
	if !errors.Is(err, protocol.ErrProtocolInvalid) {
		t.Fatalf("expected ErrProtocolInvalid for illegal repeat, got %v", err)
	}
}

func TestUnpackAllowsRepeatableKey(t *testing.T) {
	def := protocol.Definition{
		CommandLength: 20,
		Responses: []protocol.ResponseDef{
			{
				Name:      "cells",
				Signature: []byte{0x03},
				Length:    6,
				Items: []protocol.ItemDef{
					{Key: "voltages", ByteLength: 2, Kind: "numeric", NumberType: "uint16", Repeatable: true},
					{Key: "voltages", ByteLength: 2, Kind: "numeric", NumberType: "uint16", Repeatable: true},
					{Key: "voltages", ByteLength: 2, Kind: "numeric", NumberType: "uint16", Repeatable: true},
				},
			},
		},
	}
	if _, err := protocol.Unpack(def); err != nil {
		t.Fatalf("Unpack: %v", err)
	}
}

func TestUnpackDefaultsEndiannessToLittle(t *testing.T) {
	spec, err := protocol.Unpack(basicDefinition())
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	resp, _ := spec.ResponseBySignature([]byte{0x01})
	for _, item := range resp.Items {
		if item.Kind == protocol.ItemNumeric && item.Endianness != 0 {
			t.Errorf("item %q endianness = %v, want LittleEndian (0)", item.Key, item.Endianness)
		}
	}
}

func TestCommandByName(t *testing.T) {
	spec, err := protocol.Unpack(basicDefinition())
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if _, ok := spec.CommandByName("GET_SETTINGS"); !ok {
		t.Error("expected GET_SETTINGS to be registered")
	}
	if _, ok := spec.CommandByName("NOPE"); ok {
		t.Error("expected NOPE to be absent")
	}
}
