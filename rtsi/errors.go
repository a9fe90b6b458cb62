package rtsi

import (
	"errors"
	"fmt"
	"net"
)

// Error categories. Every error returned by this package matches exactly one of them with errors.Is.
var (
	// ErrConnection covers refused, timed out and unexpectedly closed connections.
	ErrConnection = errors.New("rtsi connection error")
	// ErrProtocol covers version mismatches, unknown variables, malformed frames and recipe id mismatches.
	ErrProtocol = errors.New("rtsi protocol error")
	// ErrTimeout indicates that no reply or frame arrived within the deadline.
	ErrTimeout = errors.New("rtsi timeout")
)

var (
	// ErrNotConnected indicates an operation on a client without an open connection.
	ErrNotConnected = fmt.Errorf("%w: not connected", ErrConnection)
	// ErrAlreadyConnected indicates Connect on a client that is already connected.
	ErrAlreadyConnected = fmt.Errorf("%w: already connected", ErrConnection)
	// ErrConnClosed indicates that the controller closed the connection.
	ErrConnClosed = fmt.Errorf("%w: connection closed", ErrConnection)
)

var (
	// ErrVersionRejected indicates that the controller does not support the requested protocol version.
	// The connection stays usable and a lower version can be requested.
	ErrVersionRejected = fmt.Errorf("%w: protocol version rejected", ErrProtocol)
	// ErrUnknownVariable indicates a recipe variable name the controller does not know.
	ErrUnknownVariable = fmt.Errorf("%w: unknown variable", ErrProtocol)
	// ErrVariableInUse indicates an input variable already owned by another client.
	ErrVariableInUse = fmt.Errorf("%w: variable in use", ErrProtocol)
	// ErrSetupFailed indicates that the controller refused a recipe setup.
	ErrSetupFailed = fmt.Errorf("%w: recipe setup failed", ErrProtocol)
	// ErrMalformedFrame indicates a frame that cannot be decoded.
	ErrMalformedFrame = fmt.Errorf("%w: malformed frame", ErrProtocol)
	// ErrRecipeIDMismatch indicates a data frame whose recipe id matches none of the given recipes.
	ErrRecipeIDMismatch = fmt.Errorf("%w: recipe id mismatch", ErrProtocol)
	// ErrRecipeNotRegistered indicates sending a recipe that was not set up as input on this connection.
	ErrRecipeNotRegistered = fmt.Errorf("%w: recipe not registered", ErrProtocol)
	// ErrRequestRejected indicates that the controller answered a start or pause request with failure.
	ErrRequestRejected = fmt.Errorf("%w: request rejected", ErrProtocol)
	// ErrControllerVersion indicates a controller outside the accepted version constraint.
	ErrControllerVersion = fmt.Errorf("%w: unsupported controller version", ErrProtocol)
)

var (
	// ErrReplyTimeout indicates that a handshake reply did not arrive in time.
	ErrReplyTimeout = fmt.Errorf("%w: no reply", ErrTimeout)
	// ErrReceiveTimeout indicates that no data frame arrived in time.
	ErrReceiveTimeout = fmt.Errorf("%w: no data", ErrTimeout)
)

// ErrClientConfigNil indicates that a nil ClientConfig was provided.
var ErrClientConfigNil = errors.New("rtsi client config is nil")

// ProtocolError describes a protocol violation observed while handling a packet.
type ProtocolError struct {
	// Packet is the packet type being handled.
	Packet PacketType
	// Detail is a human readable description.
	Detail string
	// Err is the sentinel describing the violation.
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%v (packet %s): %s", e.Err, e.Packet, e.Detail)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func newProtocolError(pt PacketType, sentinel error, format string, args ...any) error {
	return &ProtocolError{Packet: pt, Detail: fmt.Sprintf(format, args...), Err: sentinel}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
