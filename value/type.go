package value

import (
	"fmt"
	"strings"
)

// Type is the wire type tag of a Value. The tag of a variable is fixed when its name is bound to a
// recipe field and never changes afterwards.
type Type uint8

const (
	// TypeInvalid is the zero Type; it never appears on the wire.
	TypeInvalid Type = iota
	TypeBool
	TypeInt8
	TypeUint8
	TypeInt16
	TypeUint16
	TypeInt32
	TypeUint32
	TypeInt64
	TypeUint64
	TypeDouble
	TypeVector3d
	TypeVector6d
	TypeVector6Int32
	TypeVector6Uint32
)

type typeInfo struct {
	name string
	size int
}

var typeMap = map[Type]typeInfo{
	TypeBool:          {"BOOL", 1},
	TypeInt8:          {"INT8", 1},
	TypeUint8:         {"UINT8", 1},
	TypeInt16:         {"INT16", 2},
	TypeUint16:        {"UINT16", 2},
	TypeInt32:         {"INT32", 4},
	TypeUint32:        {"UINT32", 4},
	TypeInt64:         {"INT64", 8},
	TypeUint64:        {"UINT64", 8},
	TypeDouble:        {"DOUBLE", 8},
	TypeVector3d:      {"VECTOR3D", 24},
	TypeVector6d:      {"VECTOR6D", 48},
	TypeVector6Int32:  {"VECTOR6INT32", 24},
	TypeVector6Uint32: {"VECTOR6UINT32", 24},
}

var nameMap = func() map[string]Type {
	m := make(map[string]Type, len(typeMap))
	for t, info := range typeMap {
		m[info.name] = t
	}
	return m
}()

// String returns the wire name of the type, e.g. "VECTOR6D".
func (t Type) String() string {
	if info, ok := typeMap[t]; ok {
		return info.name
	}

	return fmt.Sprintf("Type(%d)", uint8(t))
}

// Size returns the encoded byte width of the type, or 0 for an invalid type.
func (t Type) Size() int {
	return typeMap[t].size
}

// IsValid reports whether t is a known wire type.
func (t Type) IsValid() bool {
	_, ok := typeMap[t]
	return ok
}

// IsVector reports whether t is one of the fixed-size vector types.
func (t Type) IsVector() bool {
	return t >= TypeVector3d && t <= TypeVector6Uint32
}

// ParseType parses a wire type name as sent by the controller during recipe setup.
func ParseType(name string) (Type, error) {
	if t, ok := nameMap[strings.ToUpper(strings.TrimSpace(name))]; ok {
		return t, nil
	}

	return TypeInvalid, fmt.Errorf("%w: %q", ErrUnknownType, name)
}
