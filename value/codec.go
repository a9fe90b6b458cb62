package value

import (
	"encoding/binary"
	"fmt"
	"math"
)

// AppendBytes appends the big-endian wire encoding of v to b and returns the extended buffer.
// Invalid values append nothing.
func (v Value) AppendBytes(b []byte) []byte {
	switch v.typ {
	case TypeBool, TypeInt8, TypeUint8:
		return append(b, byte(v.num))
	case TypeInt16, TypeUint16:
		return binary.BigEndian.AppendUint16(b, uint16(v.num))
	case TypeInt32, TypeUint32:
		return binary.BigEndian.AppendUint32(b, uint32(v.num))
	case TypeInt64, TypeUint64, TypeDouble:
		return binary.BigEndian.AppendUint64(b, v.num)
	case TypeVector3d:
		for i := 0; i < 3; i++ {
			b = binary.BigEndian.AppendUint64(b, v.vec[i])
		}
	case TypeVector6d:
		for i := 0; i < 6; i++ {
			b = binary.BigEndian.AppendUint64(b, v.vec[i])
		}
	case TypeVector6Int32, TypeVector6Uint32:
		for i := 0; i < 6; i++ {
			b = binary.BigEndian.AppendUint32(b, uint32(v.vec[i]))
		}
	}

	return b
}

// Decode decodes a value of type t from the head of b. It returns the value and the number of bytes consumed.
func Decode(t Type, b []byte) (Value, int, error) {
	size := t.Size()
	if size == 0 {
		return Value{}, 0, fmt.Errorf("%w: tag %d", ErrUnknownType, uint8(t))
	}
	if len(b) < size {
		return Value{}, 0, fmt.Errorf("%w: %s needs %d bytes, got %d", ErrShortBuffer, t, size, len(b))
	}

	v := Value{typ: t}
	switch t {
	case TypeBool:
		if b[0] != 0 {
			v.num = 1
		}
	case TypeInt8:
		v.num = uint64(int64(int8(b[0])))
	case TypeUint8:
		v.num = uint64(b[0])
	case TypeInt16:
		v.num = uint64(int64(int16(binary.BigEndian.Uint16(b))))
	case TypeUint16:
		v.num = uint64(binary.BigEndian.Uint16(b))
	case TypeInt32:
		v.num = uint64(int64(int32(binary.BigEndian.Uint32(b))))
	case TypeUint32:
		v.num = uint64(binary.BigEndian.Uint32(b))
	case TypeInt64, TypeUint64, TypeDouble:
		v.num = binary.BigEndian.Uint64(b)
	case TypeVector3d, TypeVector6d:
		for i := 0; i < size/8; i++ {
			v.vec[i] = binary.BigEndian.Uint64(b[i*8:])
		}
	case TypeVector6Int32:
		for i := 0; i < 6; i++ {
			v.vec[i] = uint64(int64(int32(binary.BigEndian.Uint32(b[i*4:]))))
		}
	case TypeVector6Uint32:
		for i := 0; i < 6; i++ {
			v.vec[i] = uint64(binary.BigEndian.Uint32(b[i*4:]))
		}
	}

	return v, size, nil
}

// Float64 returns v as a double when its tag is any numeric scalar type. Vectors and booleans fail.
// It is a display helper; protocol code should use As with the exact type.
func (v Value) Float64() (float64, error) {
	switch v.typ {
	case TypeDouble:
		return math.Float64frombits(v.num), nil
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64:
		return float64(int64(v.num)), nil
	case TypeUint8, TypeUint16, TypeUint32, TypeUint64:
		return float64(v.num), nil
	}

	return 0, fmt.Errorf("%w: %s is not a numeric scalar", ErrTypeMismatch, v.typ)
}
