package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Type tags the encoded form of a preference value. The tag is the first byte
// of every encoded value.
type Type byte

const (
	TypeInvalid Type = iota
	TypeBool
	TypeInt32
	TypeInt64
	TypeFloat32
	TypeString
)

func (t Type) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeInt32:
		return "int32"
	case TypeInt64:
		return "int64"
	case TypeFloat32:
		return "float32"
	case TypeString:
		return "string"
	default:
		return "invalid"
	}
}

// ParseType converts a type name (as printed by Type.String) into a Type.
func ParseType(name string) (Type, error) {
	switch strings.ToLower(name) {
	case "bool", "boolean":
		return TypeBool, nil
	case "int32", "int":
		return TypeInt32, nil
	case "int64", "long":
		return TypeInt64, nil
	case "float32", "float":
		return TypeFloat32, nil
	case "string":
		return TypeString, nil
	default:
		return TypeInvalid, fmt.Errorf("unknown value type %q (expected one of bool, int32, int64, float32, string)", name)
	}
}

var (
	// ErrTypeMismatch is returned when a value is decoded as a different type than it was encoded with.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrCorrupt is returned for values whose payload does not match their tag.
	ErrCorrupt = errors.New("corrupt value")
)

// payload sizes for the fixed width types
const (
	sizeBool    = 1
	sizeInt32   = 4
	sizeInt64   = 8
	sizeFloat32 = 4
)

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

func EncodeBool(v bool) []byte {
	b := []byte{byte(TypeBool), 0}
	if v {
		b[1] = 1
	}
	return b
}

func EncodeInt32(v int32) []byte {
	b := make([]byte, 1+sizeInt32)
	b[0] = byte(TypeInt32)
	binary.BigEndian.PutUint32(b[1:], uint32(v))
	return b
}

func EncodeInt64(v int64) []byte {
	b := make([]byte, 1+sizeInt64)
	b[0] = byte(TypeInt64)
	binary.BigEndian.PutUint64(b[1:], uint64(v))
	return b
}

func EncodeFloat32(v float32) []byte {
	b := make([]byte, 1+sizeFloat32)
	b[0] = byte(TypeFloat32)
	binary.BigEndian.PutUint32(b[1:], math.Float32bits(v))
	return b
}

func EncodeString(v string) []byte {
	b := make([]byte, 1+len(v))
	b[0] = byte(TypeString)
	copy(b[1:], v)
	return b
}

// --------------------------------------------------------------------------
// Decoding
// --------------------------------------------------------------------------

// TypeOf returns the tag of an encoded value without decoding it.
func TypeOf(b []byte) Type {
	if len(b) == 0 {
		return TypeInvalid
	}
	return Type(b[0])
}

// payload checks the tag and the payload length and returns the payload.
// size < 0 accepts any length.
func payload(b []byte, want Type, size int) ([]byte, error) {
	if got := TypeOf(b); got != want {
		return nil, fmt.Errorf("%w: stored %s, requested %s", ErrTypeMismatch, got, want)
	}
	if size >= 0 && len(b)-1 != size {
		return nil, fmt.Errorf("%w: %s payload has %d bytes", ErrCorrupt, want, len(b)-1)
	}
	return b[1:], nil
}

func DecodeBool(b []byte) (bool, error) {
	p, err := payload(b, TypeBool, sizeBool)
	if err != nil {
		return false, err
	}
	return p[0] != 0, nil
}

func DecodeInt32(b []byte) (int32, error) {
	p, err := payload(b, TypeInt32, sizeInt32)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(p)), nil
}

func DecodeInt64(b []byte) (int64, error) {
	p, err := payload(b, TypeInt64, sizeInt64)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(p)), nil
}

func DecodeFloat32(b []byte) (float32, error) {
	p, err := payload(b, TypeFloat32, sizeFloat32)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.BigEndian.Uint32(p)), nil
}

func DecodeString(b []byte) (string, error) {
	p, err := payload(b, TypeString, -1)
	if err != nil {
		return "", err
	}
	return string(p), nil
}

// --------------------------------------------------------------------------
// Text form (used by the command line)
// --------------------------------------------------------------------------

// Parse converts the text form of a value into its encoded form.
func Parse(t Type, text string) ([]byte, error) {
	switch t {
	case TypeBool:
		v, err := strconv.ParseBool(text)
		if err != nil {
			return nil, err
		}
		return EncodeBool(v), nil
	case TypeInt32:
		v, err := strconv.ParseInt(text, 10, 32)
		if err != nil {
			return nil, err
		}
		return EncodeInt32(int32(v)), nil
	case TypeInt64:
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, err
		}
		return EncodeInt64(v), nil
	case TypeFloat32:
		v, err := strconv.ParseFloat(text, 32)
		if err != nil {
			return nil, err
		}
		return EncodeFloat32(float32(v)), nil
	case TypeString:
		return EncodeString(text), nil
	default:
		return nil, fmt.Errorf("cannot parse value of type %s", t)
	}
}

// Format returns the text form of an encoded value.
func Format(b []byte) (string, error) {
	switch TypeOf(b) {
	case TypeBool:
		v, err := DecodeBool(b)
		return strconv.FormatBool(v), err
	case TypeInt32:
		v, err := DecodeInt32(b)
		return strconv.FormatInt(int64(v), 10), err
	case TypeInt64:
		v, err := DecodeInt64(b)
		return strconv.FormatInt(v, 10), err
	case TypeFloat32:
		v, err := DecodeFloat32(b)
		return strconv.FormatFloat(float64(v), 'g', -1, 32), err
	case TypeString:
		return DecodeString(b)
	default:
		return "", fmt.Errorf("%w: unknown tag %d", ErrCorrupt, TypeOf(b))
	}
}
