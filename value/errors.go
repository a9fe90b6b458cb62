package value

import "errors"

var (
	// ErrTypeMismatch indicates that a value was accessed or assigned with a type other than its tag.
	ErrTypeMismatch = errors.New("value type mismatch")

	// ErrUnknownType indicates an unknown wire type name or tag.
	ErrUnknownType = errors.New("unknown value type")

	// ErrShortBuffer indicates that a buffer is too short to decode the requested type.
	ErrShortBuffer = errors.New("buffer too short for value type")
)
