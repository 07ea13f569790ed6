package zcl

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		typeID uint8
		val    interface{}
		want   []byte
	}{
		{"bool true", TypeBool, true, []byte{0x01}},
		{"bool false", TypeBool, false, []byte{0x00}},
		{"uint8", TypeUint8, uint8(0x42), []byte{0x42}},
		{"enum8", TypeEnum8, uint8(0xFF), []byte{0xFF}},
		{"uint16", TypeUint16, uint16(0x1234), []byte{0x34, 0x12}},
		{"bitmap16", TypeBitmap16, uint16(0x0011), []byte{0x11, 0x00}},
		{"uint32", TypeUint32, uint32(1000000), []byte{0x40, 0x42, 0x0F, 0x00}},
		{"int8 negative", TypeInt8, int8(-10), []byte{0xF6}},
		{"int16 negative", TypeInt16, int16(-100), []byte{0x9C, 0xFF}},
		{"string", TypeCharStr, "Hello", []byte{5, 'H', 'e', 'l', 'l', 'o'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := EncodeValue(tt.typeID, tt.val)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			if !bytes.Equal(encoded, tt.want) {
				t.Fatalf("encoded % X, want % X", encoded, tt.want)
			}

			decoded, n, err := DecodeValue(tt.typeID, encoded)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if n != len(encoded) {
				t.Errorf("consumed %d, want %d", n, len(encoded))
			}
			if decoded != tt.val {
				t.Errorf("decoded %v (%T), want %v (%T)", decoded, decoded, tt.val, tt.val)
			}
		})
	}
}

func TestDecodeNotEnoughData(t *testing.T) {
	if _, _, err := DecodeValue(TypeUint16, []byte{0x01}); err == nil {
		t.Error("expected error for short uint16")
	}
	if _, _, err := DecodeValue(TypeCharStr, nil); err == nil {
		t.Error("expected error for missing length byte")
	}
	if _, _, err := DecodeValue(TypeCharStr, []byte{5, 'H', 'i'}); err == nil {
		t.Error("expected error for truncated string")
	}
}

func TestDecodeInvalidStringMarker(t *testing.T) {
	val, n, err := DecodeValue(TypeCharStr, []byte{0xFF})
	if err != nil {
		t.Fatal(err)
	}
	if val != nil {
		t.Errorf("invalid marker should decode to nil, got %v", val)
	}
	if n != 1 {
		t.Errorf("consumed %d, want 1", n)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		typeID uint8
		in     interface{}
		want   interface{}
	}{
		{"json float to uint8", TypeUint8, float64(200), uint8(200)},
		{"int to uint16", TypeUint16, 370, uint16(370)},
		{"lua int64 to uint8", TypeUint8, int64(42), uint8(42)},
		{"bool passthrough", TypeBool, true, true},
		{"string ON to bool", TypeBool, "ON", true},
		{"string OFF to bool", TypeBool, "OFF", false},
		{"number to bool", TypeBool, float64(1), true},
		{"uint8 widened to uint16", TypeUint16, uint8(254), uint16(254)},
		{"enum8 from int", TypeEnum8, 0xFF, uint8(0xFF)},
		{"string passthrough", TypeCharStr, "lamp", "lamp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.typeID, tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Normalize() = %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}
}

func TestNormalizeRejects(t *testing.T) {
	tests := []struct {
		name   string
		typeID uint8
		in     interface{}
	}{
		{"uint8 overflow", TypeUint8, 300},
		{"uint16 overflow", TypeUint16, 70000},
		{"negative to uint8", TypeUint8, -1},
		{"fractional to uint8", TypeUint8, float64(1.5)},
		{"string to uint8", TypeUint8, "fast"},
		{"garbage string to bool", TypeBool, "MAYBE"},
		{"int8 overflow", TypeInt8, 200},
		{"unsupported type", uint8(0xF0), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Normalize(tt.typeID, tt.in); err == nil {
				t.Errorf("Normalize(0x%02X, %v) succeeded, want error", tt.typeID, tt.in)
			}
		})
	}
}

func TestTypeSize(t *testing.T) {
	if s := TypeSize(TypeBool); s != 1 {
		t.Errorf("bool size = %d, want 1", s)
	}
	if s := TypeSize(TypeUint16); s != 2 {
		t.Errorf("uint16 size = %d, want 2", s)
	}
	if s := TypeSize(TypeUint32); s != 4 {
		t.Errorf("uint32 size = %d, want 4", s)
	}
	if s := TypeSize(TypeCharStr); s != -1 {
		t.Errorf("string size = %d, want -1", s)
	}
}

func TestTypeName(t *testing.T) {
	if n := TypeName(TypeEnum8); n != "enum8" {
		t.Errorf("TypeName(enum8) = %q", n)
	}
	if n := TypeName(0xF0); n != "0xF0" {
		t.Errorf("TypeName(unknown) = %q", n)
	}
}
