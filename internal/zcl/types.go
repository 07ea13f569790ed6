package zcl

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// ZCL data type IDs used by the lamp's clusters, plus a few generic
// scalar types accepted on the raw attribute API.
const (
	TypeNoData   uint8 = 0x00
	TypeBool     uint8 = 0x10
	TypeBitmap8  uint8 = 0x18
	TypeBitmap16 uint8 = 0x19
	TypeUint8    uint8 = 0x20
	TypeUint16   uint8 = 0x21
	TypeUint32   uint8 = 0x23
	TypeInt8     uint8 = 0x28
	TypeInt16    uint8 = 0x29
	TypeEnum8    uint8 = 0x30
	TypeEnum16   uint8 = 0x31
	TypeCharStr  uint8 = 0x42
)

// TypeSize returns the fixed size in bytes of a ZCL type, or -1 for
// variable-length types.
func TypeSize(typeID uint8) int {
	switch typeID {
	case TypeNoData:
		return 0
	case TypeBool, TypeUint8, TypeInt8, TypeEnum8, TypeBitmap8:
		return 1
	case TypeUint16, TypeInt16, TypeEnum16, TypeBitmap16:
		return 2
	case TypeUint32:
		return 4
	case TypeCharStr:
		return -1 // 1-byte length prefix
	default:
		return -1
	}
}

// TypeName returns a human-readable name for a ZCL type.
func TypeName(typeID uint8) string {
	switch typeID {
	case TypeNoData:
		return "nodata"
	case TypeBool:
		return "bool"
	case TypeBitmap8:
		return "map8"
	case TypeBitmap16:
		return "map16"
	case TypeUint8:
		return "uint8"
	case TypeUint16:
		return "uint16"
	case TypeUint32:
		return "uint32"
	case TypeInt8:
		return "int8"
	case TypeInt16:
		return "int16"
	case TypeEnum8:
		return "enum8"
	case TypeEnum16:
		return "enum16"
	case TypeCharStr:
		return "string"
	default:
		return fmt.Sprintf("0x%02X", typeID)
	}
}

// Normalize coerces a value into the canonical Go representation for a
// ZCL type: bool, uint8, uint16, uint32, int8, int16 or string. Inputs
// may come from JSON decoding (float64, bool, string), Lua (int64,
// float64) or native Go code. Normalized values of the same type are
// comparable with ==, which is what attribute change detection relies
// on.
func Normalize(typeID uint8, val interface{}) (interface{}, error) {
	switch typeID {
	case TypeBool:
		v, ok := toBool(val)
		if !ok {
			return nil, fmt.Errorf("zcl: cannot convert %T to bool", val)
		}
		return v, nil

	case TypeUint8, TypeEnum8, TypeBitmap8:
		v, ok := toUint64(val)
		if !ok || v > math.MaxUint8 {
			return nil, fmt.Errorf("zcl: %v does not fit uint8", val)
		}
		return uint8(v), nil

	case TypeUint16, TypeEnum16, TypeBitmap16:
		v, ok := toUint64(val)
		if !ok || v > math.MaxUint16 {
			return nil, fmt.Errorf("zcl: %v does not fit uint16", val)
		}
		return uint16(v), nil

	case TypeUint32:
		v, ok := toUint64(val)
		if !ok || v > math.MaxUint32 {
			return nil, fmt.Errorf("zcl: %v does not fit uint32", val)
		}
		return uint32(v), nil

	case TypeInt8:
		v, ok := toInt64(val)
		if !ok || v < math.MinInt8 || v > math.MaxInt8 {
			return nil, fmt.Errorf("zcl: %v does not fit int8", val)
		}
		return int8(v), nil

	case TypeInt16:
		v, ok := toInt64(val)
		if !ok || v < math.MinInt16 || v > math.MaxInt16 {
			return nil, fmt.Errorf("zcl: %v does not fit int16", val)
		}
		return int16(v), nil

	case TypeCharStr:
		s, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("zcl: cannot convert %T to string", val)
		}
		if len(s) > 254 {
			return nil, fmt.Errorf("zcl: string too long: %d (max 254)", len(s))
		}
		return s, nil
	}

	return nil, fmt.Errorf("zcl: unsupported type 0x%02X", typeID)
}

// EncodeValue encodes a Go value into ZCL wire format (little-endian),
// used for persisting attribute values.
func EncodeValue(typeID uint8, val interface{}) ([]byte, error) {
	norm, err := Normalize(typeID, val)
	if err != nil {
		return nil, err
	}

	switch v := norm.(type) {
	case bool:
		if v {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case uint8:
		return []byte{v}, nil
	case uint16:
		buf := make([]byte, 2)
		binary.LittleEndian.PutUint16(buf, v)
		return buf, nil
	case uint32:
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, v)
		return buf, nil
	case int8:
		return []byte{byte(v)}, nil
	case int16:
		buf := make([]byte, 2)
		binary.LittleEndian.PutUint16(buf, uint16(v))
		return buf, nil
	case string:
		buf := make([]byte, 1+len(v))
		buf[0] = uint8(len(v))
		copy(buf[1:], v)
		return buf, nil
	}

	return nil, fmt.Errorf("zcl: encode not implemented for type 0x%02X", typeID)
}

// DecodeValue decodes a ZCL typed value from raw bytes, returning the
// canonical Go value and the number of bytes consumed.
func DecodeValue(typeID uint8, data []byte) (interface{}, int, error) {
	size := TypeSize(typeID)
	if size == 0 {
		return nil, 0, nil
	}

	if typeID == TypeCharStr {
		if len(data) < 1 {
			return nil, 0, fmt.Errorf("zcl: no length byte for string type")
		}
		length := int(data[0])
		if length == 0xFF {
			return nil, 1, nil // invalid marker
		}
		if len(data) < 1+length {
			return nil, 0, fmt.Errorf("zcl: string truncated: need %d, have %d", length, len(data)-1)
		}
		return string(data[1 : 1+length]), 1 + length, nil
	}

	if size < 0 {
		return nil, 0, fmt.Errorf("zcl: unsupported type 0x%02X", typeID)
	}
	if len(data) < size {
		return nil, 0, fmt.Errorf("zcl: not enough data for type 0x%02X: need %d, have %d", typeID, size, len(data))
	}

	switch typeID {
	case TypeBool:
		return data[0] != 0, 1, nil
	case TypeUint8, TypeEnum8, TypeBitmap8:
		return data[0], 1, nil
	case TypeUint16, TypeEnum16, TypeBitmap16:
		return binary.LittleEndian.Uint16(data[:2]), 2, nil
	case TypeUint32:
		return binary.LittleEndian.Uint32(data[:4]), 4, nil
	case TypeInt8:
		return int8(data[0]), 1, nil
	case TypeInt16:
		return int16(binary.LittleEndian.Uint16(data[:2])), 2, nil
	}

	return nil, 0, fmt.Errorf("zcl: decode not implemented for type 0x%02X", typeID)
}

func toBool(v interface{}) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case float64:
		return val != 0, true
	case int:
		return val != 0, true
	case int64:
		return val != 0, true
	case uint8:
		return val != 0, true
	case string:
		switch strings.ToUpper(val) {
		case "ON", "TRUE", "1":
			return true, true
		case "OFF", "FALSE", "0":
			return false, true
		}
	}
	return false, false
}

func toUint64(v interface{}) (uint64, bool) {
	switch val := v.(type) {
	case uint8:
		return uint64(val), true
	case uint16:
		return uint64(val), true
	case uint32:
		return uint64(val), true
	case uint64:
		return val, true
	case int:
		if val < 0 {
			return 0, false
		}
		return uint64(val), true
	case int64:
		if val < 0 {
			return 0, false
		}
		return uint64(val), true
	case float64:
		if val < 0 || val != math.Trunc(val) {
			return 0, false
		}
		return uint64(val), true
	}
	return 0, false
}

func toInt64(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case int8:
		return int64(val), true
	case int16:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case int:
		return int64(val), true
	case uint8:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint32:
		return int64(val), true
	case float64:
		if val != math.Trunc(val) {
			return 0, false
		}
		return int64(val), true
	}
	return 0, false
}
