// Package primary implements a client for the robot's primary port, the broadcast stream that carries the
// robot configuration, robot state and robot messages.
//
// Consumers read sub-packages by implementing Package and calling Client.GetPackage. Errors and script
// runtime exceptions reported by the controller are pushed to the callback registered with
// Client.RegisterRobotExceptionCallback.
package primary

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/arloliu/go-elite/value"
)

const (
	// DefaultPort is the primary port of the controller.
	DefaultPort = 30001

	// HeaderSize is the frame header: int32 total length followed by the message type byte.
	HeaderSize = 5
	// SubHeaderSize is the sub-package header: int32 length followed by the sub-package type byte.
	SubHeaderSize = 5
)

// Message types of primary port frames.
const (
	MessageRobotState   uint8 = 16
	MessageRobotMessage uint8 = 20
)

// Sub-package types carried in robot state frames.
const (
	SubPackageCartesianInfo  uint8 = 4
	SubPackageKinematicsInfo uint8 = 5
)

// Package is a primary port sub-package decoder. Type returns the sub-package type tag; Parse receives
// the whole sub-package, header included, and stores the decoded fields in the receiver.
type Package interface {
	Type() uint8
	Parse(b []byte) error
}

// KinematicsInfo holds the Denavit-Hartenberg parameters of the robot.
type KinematicsInfo struct {
	DHA     value.Vector6d
	DHD     value.Vector6d
	DHAlpha value.Vector6d
}

var _ Package = (*KinematicsInfo)(nil)

// Type implements Package.
func (*KinematicsInfo) Type() uint8 { return SubPackageKinematicsInfo }

// Parse implements Package.
func (k *KinematicsInfo) Parse(b []byte) error {
	body, err := subPackageBody(b, SubPackageKinematicsInfo, 3*6*8)
	if err != nil {
		return err
	}
	k.DHA = readVector6d(body[0:])
	k.DHD = readVector6d(body[48:])
	k.DHAlpha = readVector6d(body[96:])

	return nil
}

// CartesianInfo holds the TCP pose and TCP offset.
type CartesianInfo struct {
	TCPPose   value.Vector6d
	TCPOffset value.Vector6d
}

var _ Package = (*CartesianInfo)(nil)

// Type implements Package.
func (*CartesianInfo) Type() uint8 { return SubPackageCartesianInfo }

// Parse implements Package.
func (c *CartesianInfo) Parse(b []byte) error {
	body, err := subPackageBody(b, SubPackageCartesianInfo, 2*6*8)
	if err != nil {
		return err
	}
	c.TCPPose = readVector6d(body[0:])
	c.TCPOffset = readVector6d(body[48:])

	return nil
}

// subPackageBody validates the sub-package header and returns the body, which must hold at least
// minBody bytes.
func subPackageBody(b []byte, typ uint8, minBody int) ([]byte, error) {
	if len(b) < SubHeaderSize {
		return nil, fmt.Errorf("%w: sub-package shorter than header", ErrMalformedFrame)
	}
	if b[4] != typ {
		return nil, fmt.Errorf("%w: sub-package type %d, want %d", ErrMalformedFrame, b[4], typ)
	}
	body := b[SubHeaderSize:]
	if len(body) < minBody {
		return nil, fmt.Errorf("%w: sub-package %d has %d bytes, want %d", ErrMalformedFrame, typ, len(body), minBody)
	}

	return body, nil
}

func readVector6d(b []byte) value.Vector6d {
	var v value.Vector6d
	for i := range v {
		v[i] = math.Float64frombits(binary.BigEndian.Uint64(b[i*8:]))
	}

	return v
}

// AppendSubPackage appends a sub-package with header to b. It is the inverse of the framing read by Parse.
func AppendSubPackage(b []byte, typ uint8, body []byte) []byte {
	b = binary.BigEndian.AppendUint32(b, uint32(SubHeaderSize+len(body)))
	b = append(b, typ)

	return append(b, body...)
}

// AppendFrame appends a primary port frame with header to b.
func AppendFrame(b []byte, msgType uint8, body []byte) []byte {
	b = binary.BigEndian.AppendUint32(b, uint32(HeaderSize+len(body)))
	b = append(b, msgType)

	return append(b, body...)
}

// AppendVector6d appends v as six big-endian doubles.
func AppendVector6d(b []byte, v value.Vector6d) []byte {
	for _, x := range v {
		b = binary.BigEndian.AppendUint64(b, math.Float64bits(x))
	}

	return b
}

// splitSubPackages walks the sub-packages of a robot state body and calls fn with each one, header
// included. A truncated or zero length sub-package ends the walk with an error.
func splitSubPackages(body []byte, fn func(typ uint8, sub []byte)) error {
	for len(body) > 0 {
		if len(body) < SubHeaderSize {
			return fmt.Errorf("%w: %d trailing bytes", ErrMalformedFrame, len(body))
		}
		n := int(binary.BigEndian.Uint32(body))
		if n < SubHeaderSize || n > len(body) {
			return fmt.Errorf("%w: sub-package length %d of %d", ErrMalformedFrame, n, len(body))
		}
		fn(body[4], body[:n])
		body = body[n:]
	}

	return nil
}
