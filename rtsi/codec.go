package rtsi

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/arloliu/go-elite/value"
	"github.com/arloliu/go-elite/version"
)

// PacketType is the type byte of an RTSI packet.
type PacketType uint8

const (
	PacketRequestProtocolVersion PacketType = 'V'
	PacketGetControllerVersion   PacketType = 'v'
	PacketSetupOutputs           PacketType = 'O'
	PacketSetupInputs            PacketType = 'I'
	PacketStart                  PacketType = 'S'
	PacketPause                  PacketType = 'P'
	PacketDataPackage            PacketType = 'U'
	PacketTextMessage            PacketType = 'M'
)

func (t PacketType) String() string {
	switch t {
	case PacketRequestProtocolVersion:
		return "request_protocol_version"
	case PacketGetControllerVersion:
		return "get_controller_version"
	case PacketSetupOutputs:
		return "setup_outputs"
	case PacketSetupInputs:
		return "setup_inputs"
	case PacketStart:
		return "start"
	case PacketPause:
		return "pause"
	case PacketDataPackage:
		return "data_package"
	case PacketTextMessage:
		return "text_message"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

const (
	// HeaderSize is the packet header: uint16 total size followed by the type byte.
	HeaderSize = 3
	// MaxPacketSize is the largest packet the 16-bit size field can describe.
	MaxPacketSize = math.MaxUint16

	typeNotFound = "NOT_FOUND"
	typeInUse    = "IN_USE"
)

// AppendPacket appends a complete packet with header to b.
func AppendPacket(b []byte, t PacketType, payload []byte) ([]byte, error) {
	size := HeaderSize + len(payload)
	if size > MaxPacketSize {
		return b, newProtocolError(t, ErrMalformedFrame, "packet size %d exceeds %d", size, MaxPacketSize)
	}
	b = binary.BigEndian.AppendUint16(b, uint16(size))
	b = append(b, byte(t))

	return append(b, payload...), nil
}

// AppendDataPackage appends a data package packet carrying the current values of r.
func AppendDataPackage(b []byte, r *Recipe) ([]byte, error) {
	size := HeaderSize + 1 + r.PayloadSize()
	if size > MaxPacketSize {
		return b, newProtocolError(PacketDataPackage, ErrMalformedFrame, "recipe %d payload too large", r.id)
	}
	b = binary.BigEndian.AppendUint16(b, uint16(size))
	b = append(b, byte(PacketDataPackage), r.id)
	for _, v := range r.values {
		b = v.AppendBytes(b)
	}

	return b, nil
}

// DecodeDataPackage decodes a data package payload (recipe id followed by fields) into r. The fields are
// decoded strictly in recipe order; the payload length must match the recipe layout exactly.
func DecodeDataPackage(payload []byte, r *Recipe) error {
	if len(payload) < 1 {
		return newProtocolError(PacketDataPackage, ErrMalformedFrame, "empty data package")
	}
	if payload[0] != r.id {
		return newProtocolError(PacketDataPackage, ErrRecipeIDMismatch, "frame id %d, recipe id %d", payload[0], r.id)
	}
	if want := 1 + r.PayloadSize(); len(payload) != want {
		return newProtocolError(PacketDataPackage, ErrMalformedFrame,
			"recipe %d expects %d bytes, got %d", r.id, want, len(payload))
	}

	off := 1
	for i, t := range r.types {
		v, n, err := value.Decode(t, payload[off:])
		if err != nil {
			return newProtocolError(PacketDataPackage, ErrMalformedFrame, "field %q: %v", r.names[i], err)
		}
		r.values[i] = v
		off += n
	}

	return nil
}

// frameSize returns the total packet size from a header, validating the lower bound.
func frameSize(header []byte) (int, error) {
	size := int(binary.BigEndian.Uint16(header))
	if size < HeaderSize {
		return 0, newProtocolError(PacketType(header[2]), ErrMalformedFrame, "packet size %d below header size", size)
	}

	return size, nil
}

// readPacket reads one packet without ever consuming a partial frame: the header and the body are peeked
// first and discarded only once complete, so a read deadline never leaves the stream misaligned.
// The returned payload is a copy owned by the caller.
func readPacket(r *bufio.Reader) (PacketType, []byte, error) {
	header, err := r.Peek(HeaderSize)
	if err != nil {
		return 0, nil, err
	}
	size, err := frameSize(header)
	if err != nil {
		return 0, nil, err
	}
	pt := PacketType(header[2])

	frame, err := r.Peek(size)
	if err != nil {
		return 0, nil, err
	}
	payload := make([]byte, size-HeaderSize)
	copy(payload, frame[HeaderSize:])
	_, _ = r.Discard(size)

	return pt, payload, nil
}

// bufferedFrame reports whether a complete packet is already buffered in r.
func bufferedFrame(r *bufio.Reader) bool {
	n := r.Buffered()
	if n < HeaderSize {
		return false
	}
	header, err := r.Peek(HeaderSize)
	if err != nil {
		return false
	}
	size := int(binary.BigEndian.Uint16(header))

	return n >= size
}

func encodeVersionRequest(v uint16) []byte {
	return binary.BigEndian.AppendUint16(nil, v)
}

func encodeOutputSetup(names []string, frequency float64) []byte {
	b := binary.BigEndian.AppendUint64(nil, math.Float64bits(frequency))
	return append(b, strings.Join(names, ",")...)
}

func encodeInputSetup(names []string) []byte {
	return []byte(strings.Join(names, ","))
}

func parseAccepted(pt PacketType, payload []byte) (bool, error) {
	if len(payload) < 1 {
		return false, newProtocolError(pt, ErrMalformedFrame, "empty reply")
	}

	return payload[0] != 0, nil
}

func parseControllerVersion(payload []byte) (version.Info, error) {
	if len(payload) < 16 {
		return version.Info{}, newProtocolError(PacketGetControllerVersion, ErrMalformedFrame,
			"controller version needs 16 bytes, got %d", len(payload))
	}

	return version.New(
		binary.BigEndian.Uint32(payload[0:]),
		binary.BigEndian.Uint32(payload[4:]),
		binary.BigEndian.Uint32(payload[8:]),
		binary.BigEndian.Uint32(payload[12:]),
	), nil
}

// parseSetupReply decodes "[uint8 recipe id][comma separated type names]" and checks it against the
// requested names, keeping the request order.
func parseSetupReply(pt PacketType, payload []byte, names []string) (uint8, []value.Type, error) {
	if len(payload) < 1 {
		return 0, nil, newProtocolError(pt, ErrMalformedFrame, "empty setup reply")
	}
	id := payload[0]
	typeNames := strings.Split(string(payload[1:]), ",")
	if len(typeNames) != len(names) {
		return 0, nil, newProtocolError(pt, ErrMalformedFrame,
			"requested %d variables, reply has %d types", len(names), len(typeNames))
	}

	var unknown, inUse []string
	types := make([]value.Type, len(names))
	for i, tn := range typeNames {
		switch tn {
		case typeNotFound:
			unknown = append(unknown, names[i])
			continue
		case typeInUse:
			inUse = append(inUse, names[i])
			continue
		}
		t, err := value.ParseType(tn)
		if err != nil {
			return 0, nil, newProtocolError(pt, ErrMalformedFrame, "variable %q: %v", names[i], err)
		}
		types[i] = t
	}

	if len(unknown) > 0 {
		return 0, nil, newProtocolError(pt, ErrUnknownVariable, "%s", strings.Join(unknown, ","))
	}
	if len(inUse) > 0 {
		return 0, nil, newProtocolError(pt, ErrVariableInUse, "%s", strings.Join(inUse, ","))
	}
	if id == 0 {
		return 0, nil, newProtocolError(pt, ErrSetupFailed, "controller returned recipe id 0")
	}

	return id, types, nil
}

// TextMessage is an informational message pushed by the controller.
type TextMessage struct {
	Message string
	Source  string
	Level   uint8
}

func parseTextMessage(payload []byte) (TextMessage, error) {
	var msg TextMessage
	readStr := func() (string, bool) {
		if len(payload) < 1 || len(payload) < 1+int(payload[0]) {
			return "", false
		}
		n := int(payload[0])
		s := string(payload[1 : 1+n])
		payload = payload[1+n:]
		return s, true
	}

	var ok bool
	if msg.Message, ok = readStr(); !ok {
		return msg, newProtocolError(PacketTextMessage, ErrMalformedFrame, "truncated message")
	}
	if msg.Source, ok = readStr(); !ok {
		return msg, newProtocolError(PacketTextMessage, ErrMalformedFrame, "truncated source")
	}
	if len(payload) < 1 {
		return msg, newProtocolError(PacketTextMessage, ErrMalformedFrame, "missing level")
	}
	msg.Level = payload[0]

	return msg, nil
}
