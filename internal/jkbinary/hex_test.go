package jkbinary_test

import (
	"testing"

	"github.com/lowvolt/jkble/internal/jkbinary"
)

func TestBytesToHex(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"empty", nil, ""},
		{"single", []byte{0x0B}, "0B"},
		{"multi", []byte{0xEB, 0x90, 0x01}, "EB 90 01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := jkbinary.BytesToHex(tt.in); got != tt.want {
				t.Errorf("BytesToHex(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestIntToHex(t *testing.T) {
	if got := jkbinary.IntToHex(11); got != "0B" {
		t.Errorf("IntToHex(11) = %q, want 0B", got)
	}
}

func TestReadUintLittleEndian(t *testing.T) {
	buf := []byte{0x01, 0x02}
	got, err := jkbinary.ReadUint(buf, 2, jkbinary.LittleEndian)
	if err != nil {
		t.Fatalf("ReadUint: %v", err)
	}
	if got != 0x0201 {
		t.Errorf("ReadUint = %#x, want 0x0201", got)
	}
}

func TestReadUintBigEndian(t *testing.T) {
	buf := []byte{0x01, 0x02}
	got, err := jkbinary.ReadUint(buf, 2, jkbinary.BigEndian)
	if err != nil {
		t.Fatalf("ReadUint: %v", err)
	}
	if got != 0x0102 {
		t.Errorf("ReadUint = %#x, want 0x0102", got)
	}
}

func TestReadUintShortBuffer(t *testing.T) {
	_, err := jkbinary.ReadUint([]byte{0x01}, 2, jkbinary.LittleEndian)
	if err == nil {
		t.Fatal("expected error for short buffer")
	}
}

func TestReadIntUnsupportedWidth(t *testing.T) {
	_, err := jkbinary.ReadInt([]byte{0x01, 0x02, 0x03}, 3, jkbinary.LittleEndian)
	if err == nil {
		t.Fatal("expected error for unsupported width")
	}
}

func TestChecksum8Wraps(t *testing.T) {
	buf := []byte{0xFF, 0xFF, 0x02}
	got := jkbinary.Checksum8(buf)
	want := byte((0xFF + 0xFF + 0x02) & 0xFF)
	if got != want {
		t.Errorf("Checksum8 = %#x, want %#x", got, want)
	}
}

func TestRoundToPrecision(t *testing.T) {
	got := jkbinary.RoundToPrecision(3.14159, 2)
	if got != 3.14 {
		t.Errorf("RoundToPrecision = %v, want 3.14", got)
	}
}
