package primary

import "errors"

var (
	// ErrNotConnected indicates an operation on a client without an open connection.
	ErrNotConnected = errors.New("primary port not connected")
	// ErrAlreadyConnected indicates Connect on a connected client.
	ErrAlreadyConnected = errors.New("primary port already connected")
	// ErrPackageTimeout indicates that no sub-package of the requested type arrived in time.
	ErrPackageTimeout = errors.New("primary package timeout")
	// ErrMalformedFrame indicates a frame or sub-package that cannot be decoded.
	ErrMalformedFrame = errors.New("malformed primary frame")
	// ErrClientConfigNil indicates that a nil ClientConfig was provided.
	ErrClientConfigNil = errors.New("primary client config is nil")
)
