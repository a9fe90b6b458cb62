// Package value implements the typed values exchanged over the robot wire protocols.
//
// A Value is a tagged union over booleans, signed and unsigned integers of 8 to 64 bits, doubles and the
// fixed-size 3 and 6 element vectors. The tag is recorded once, when a variable is bound to a wire field, and
// every access is checked against it: reading a value with a different Go type fails with ErrTypeMismatch
// instead of coercing.
//
// Values are plain structs without pointers, so copying one never allocates:
//
//	v := value.Of(value.Vector6d{0, -1.57, 0, -1.57, 0, 0})
//	q, err := value.As[value.Vector6d](v)
package value

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Vector3d is a 3 element double vector, such as a payload centre of gravity or elbow position.
type Vector3d = mgl64.Vec3

// Vector6d is a 6 element double vector: joint positions, speeds, TCP poses and wrenches.
type Vector6d [6]float64

// Vector6Int32 is a 6 element signed 32-bit vector.
type Vector6Int32 [6]int32

// Vector6Uint32 is a 6 element unsigned 32-bit vector.
type Vector6Uint32 [6]uint32

// Kind is the set of Go types that can be stored in a Value.
type Kind interface {
	bool | int8 | uint8 | int16 | uint16 | int32 | uint32 | int64 | uint64 | float64 |
		Vector3d | Vector6d | Vector6Int32 | Vector6Uint32
}

// Value is a tagged wire value. The zero Value has TypeInvalid.
type Value struct {
	typ Type
	// num holds scalars: bool as 0/1, integers sign-extended into 64 bits, doubles as IEEE-754 bits.
	num uint64
	// vec holds vector elements using the same encoding as num.
	vec [6]uint64
}

// TypeOf returns the wire type tag for the Go type T.
func TypeOf[T Kind]() Type {
	var zero T
	switch any(zero).(type) {
	case bool:
		return TypeBool
	case int8:
		return TypeInt8
	case uint8:
		return TypeUint8
	case int16:
		return TypeInt16
	case uint16:
		return TypeUint16
	case int32:
		return TypeInt32
	case uint32:
		return TypeUint32
	case int64:
		return TypeInt64
	case uint64:
		return TypeUint64
	case float64:
		return TypeDouble
	case Vector3d:
		return TypeVector3d
	case Vector6d:
		return TypeVector6d
	case Vector6Int32:
		return TypeVector6Int32
	case Vector6Uint32:
		return TypeVector6Uint32
	}

	return TypeInvalid
}

// Zero returns the zero value tagged with t.
func Zero(t Type) Value {
	return Value{typ: t}
}

// Of creates a Value holding x, tagged with the type matching T.
func Of[T Kind](x T) Value {
	v := Value{typ: TypeOf[T]()}
	switch x := any(x).(type) {
	case bool:
		if x {
			v.num = 1
		}
	case int8:
		v.num = uint64(int64(x))
	case uint8:
		v.num = uint64(x)
	case int16:
		v.num = uint64(int64(x))
	case uint16:
		v.num = uint64(x)
	case int32:
		v.num = uint64(int64(x))
	case uint32:
		v.num = uint64(x)
	case int64:
		v.num = uint64(x)
	case uint64:
		v.num = x
	case float64:
		v.num = math.Float64bits(x)
	case Vector3d:
		for i := range x {
			v.vec[i] = math.Float64bits(x[i])
		}
	case Vector6d:
		for i := range x {
			v.vec[i] = math.Float64bits(x[i])
		}
	case Vector6Int32:
		for i := range x {
			v.vec[i] = uint64(int64(x[i]))
		}
	case Vector6Uint32:
		for i := range x {
			v.vec[i] = uint64(x[i])
		}
	}

	return v
}

// As returns the content of v as T. It fails with ErrTypeMismatch when T does not match the tag of v.
func As[T Kind](v Value) (T, error) {
	var out T
	if want := TypeOf[T](); v.typ != want {
		return out, fmt.Errorf("%w: value is %s, requested %s", ErrTypeMismatch, v.typ, want)
	}

	switch p := any(&out).(type) {
	case *bool:
		*p = v.num != 0
	case *int8:
		*p = int8(v.num)
	case *uint8:
		*p = uint8(v.num)
	case *int16:
		*p = int16(v.num)
	case *uint16:
		*p = uint16(v.num)
	case *int32:
		*p = int32(v.num)
	case *uint32:
		*p = uint32(v.num)
	case *int64:
		*p = int64(v.num)
	case *uint64:
		*p = v.num
	case *float64:
		*p = math.Float64frombits(v.num)
	case *Vector3d:
		for i := range p {
			p[i] = math.Float64frombits(v.vec[i])
		}
	case *Vector6d:
		for i := range p {
			p[i] = math.Float64frombits(v.vec[i])
		}
	case *Vector6Int32:
		for i := range p {
			p[i] = int32(v.vec[i])
		}
	case *Vector6Uint32:
		for i := range p {
			p[i] = uint32(v.vec[i])
		}
	}

	return out, nil
}

// MustAs is like As but panics on a type mismatch. It is intended for values whose tag was
// checked by the caller.
func MustAs[T Kind](v Value) T {
	out, err := As[T](v)
	if err != nil {
		panic(err)
	}

	return out
}

// Type returns the tag of v.
func (v Value) Type() Type { return v.typ }

// IsValid reports whether v carries a known tag.
func (v Value) IsValid() bool { return v.typ.IsValid() }

// Interface returns the content of v as the matching Go type, or nil for an invalid value.
func (v Value) Interface() any {
	switch v.typ {
	case TypeBool:
		return MustAs[bool](v)
	case TypeInt8:
		return MustAs[int8](v)
	case TypeUint8:
		return MustAs[uint8](v)
	case TypeInt16:
		return MustAs[int16](v)
	case TypeUint16:
		return MustAs[uint16](v)
	case TypeInt32:
		return MustAs[int32](v)
	case TypeUint32:
		return MustAs[uint32](v)
	case TypeInt64:
		return MustAs[int64](v)
	case TypeUint64:
		return MustAs[uint64](v)
	case TypeDouble:
		return MustAs[float64](v)
	case TypeVector3d:
		return MustAs[Vector3d](v)
	case TypeVector6d:
		return MustAs[Vector6d](v)
	case TypeVector6Int32:
		return MustAs[Vector6Int32](v)
	case TypeVector6Uint32:
		return MustAs[Vector6Uint32](v)
	}

	return nil
}

// String returns a human readable form of v, e.g. "DOUBLE(0.5)".
func (v Value) String() string {
	return fmt.Sprintf("%s(%v)", v.typ, v.Interface())
}
