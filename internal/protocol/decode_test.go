package protocol_test

import (
	"errors"
	"testing"

	"github.com/lowvolt/jkble/internal/protocol"
)

func TestDecodeBasicRecord(t *testing.T) {
	spec, err := protocol.Unpack(basicDefinition())
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	dec, err := protocol.NewDecoder(spec)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}

	// flag=1 (true), voltage=0x0102 little-endian = 258, checksum byte.
	buf := []byte{0x01, 0x02, 0x01, 0xFF}
	_, rec, err := dec.Decode([]byte{0x01}, buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if rec["flag"] != true {
		t.Errorf("flag = %v, want true", rec["flag"])
	}
	if rec["voltage"] != float64(258) {
		t.Errorf("voltage = %v, want 258", rec["voltage"])
	}
}

func TestDecodeUnknownSignature(t *testing.T) {
	spec, _ := protocol.Unpack(basicDefinition())
	dec, _ := protocol.NewDecoder(spec)
	_, _, err := dec.Decode([]byte{0xEE}, []byte{0xEE, 0x00})
	if !errors.Is(err, protocol.ErrUnknownSignature) {
		t.Fatalf("expected ErrUnknownSignature, got %v", err)
	}
}

func TestDecodeShortBufferFails(t *testing.T) {
	spec, _ := protocol.Unpack(basicDefinition())
	dec, _ := protocol.NewDecoder(spec)
	resp, _ := spec.ResponseBySignature([]byte{0x01})
	_, err := dec.DecodeBuffer(resp, []byte{0x01, 0x02})
	if !errors.Is(err, protocol.ErrDecodeFailure) {
		t.Fatalf("expected ErrDecodeFailure, got %v", err)
	}
}

func TestDecodeRepeatedKeyCoalesces(t *testing.T) {
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
	spec, err := protocol.Unpack(def)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	dec, err := protocol.NewDecoder(spec)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	resp, _ := spec.ResponseBySignature([]byte{0x03})

	buf := []byte{0x01, 0x00, 0x02, 0x00, 0x03, 0x00}
	rec, err := dec.DecodeBuffer(resp, buf)
	if err != nil {
		t.Fatalf("DecodeBuffer: %v", err)
	}

	seq, ok := rec["voltages"].([]protocol.Value)
	if !ok {
		t.Fatalf("voltages = %T, want []protocol.Value", rec["voltages"])
	}
	if len(seq) != 3 {
		t.Fatalf("len(voltages) = %d, want 3", len(seq))
	}
	want := []float64{1, 2, 3}
	for i, v := range seq {
		if v != want[i] {
			t.Errorf("voltages[%d] = %v, want %v", i, v, want[i])
		}
	}
}

func TestDecodeMultiplierAndPrecision(t *testing.T) {
	mult := 0.01
	prec := 2
	def := protocol.Definition{
		CommandLength: 20,
		Responses: []protocol.ResponseDef{
			{
				Name:      "reading",
				Signature: []byte{0x04},
				Length:    2,
				Items: []protocol.ItemDef{
					{
						Key: "temp", ByteLength: 2, Kind: "numeric",
						NumberType: "uint16", Multiplier: &mult, Precision: &prec,
					},
				},
			},
		},
	}
	spec, err := protocol.Unpack(def)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	dec, _ := protocol.NewDecoder(spec)
	resp, _ := spec.ResponseBySignature([]byte{0x04})

	// 12345 raw * 0.01 = 123.45
	buf := []byte{0x39, 0x30}
	rec, err := dec.DecodeBuffer(resp, buf)
	if err != nil {
		t.Fatalf("DecodeBuffer: %v", err)
	}
	if rec["temp"] != 123.45 {
		t.Errorf("temp = %v, want 123.45", rec["temp"])
	}
}
