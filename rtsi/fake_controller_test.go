package rtsi

import (
	"bufio"
	"encoding/binary"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-elite/value"
)

// fakeController is a minimal RTSI server for a single connection.
type fakeController struct {
	t  *testing.T
	ln net.Listener

	mu       sync.Mutex
	conn     net.Conn
	writeMu  sync.Mutex
	nextID   uint8
	rejected map[uint16]bool
	silent   map[PacketType]bool
	inUse    map[string]bool
	types    map[string]string
	preReply map[PacketType][][]byte
	outputs  map[uint8]*Recipe
	inputs   map[uint8]*Recipe

	received chan []byte
	done     chan struct{}
}

var testVariableTypes = map[string]string{
	VarTimestamp:                 "DOUBLE",
	VarPayloadMass:               "DOUBLE",
	VarPayloadCog:                "VECTOR3D",
	VarActualJointPositions:      "VECTOR6D",
	VarActualTCPPose:             "VECTOR6D",
	VarRobotMode:                 "INT32",
	VarJointMode:                 "VECTOR6INT32",
	VarSafetyStatus:              "INT32",
	VarDigitalInputBits:          "UINT64",
	VarRuntimeState:              "UINT32",
	VarSpeedScaling:              "DOUBLE",
	VarSpeedSliderMask:           "UINT32",
	VarSpeedSliderFraction:       "DOUBLE",
	VarStandardDigitalOutput:     "UINT8",
	VarStandardDigitalOutputMask: "UINT8",
	VarExternalForceTorque:       "VECTOR6D",
	InputIntRegister(0):          "INT32",
	OutputIntRegister(0):         "INT32",
	OutputBitRegister(64):        "BOOL",
}

func newFakeController(t *testing.T) *fakeController {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	fc := &fakeController{
		t:        t,
		ln:       ln,
		nextID:   1,
		rejected: map[uint16]bool{},
		silent:   map[PacketType]bool{},
		inUse:    map[string]bool{},
		types:    testVariableTypes,
		preReply: map[PacketType][][]byte{},
		outputs:  map[uint8]*Recipe{},
		inputs:   map[uint8]*Recipe{},
		received: make(chan []byte, 64),
		done:     make(chan struct{}),
	}
	go fc.serve()
	t.Cleanup(fc.close)

	return fc
}

func (fc *fakeController) port() int {
	return fc.ln.Addr().(*net.TCPAddr).Port
}

func (fc *fakeController) close() {
	_ = fc.ln.Close()
	fc.closeConn()
	<-fc.done
}

// configure runs fn with the controller state locked.
func (fc *fakeController) configure(fn func()) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fn()
}

func (fc *fakeController) closeConn() {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.conn != nil {
		_ = fc.conn.Close()
	}
}

func (fc *fakeController) serve() {
	defer close(fc.done)

	conn, err := fc.ln.Accept()
	if err != nil {
		return
	}
	fc.mu.Lock()
	fc.conn = conn
	fc.mu.Unlock()

	r := bufio.NewReader(conn)
	for {
		pt, payload, err := readPacket(r)
		if err != nil {
			return
		}
		fc.handle(pt, payload)
	}
}

func (fc *fakeController) handle(pt PacketType, payload []byte) {
	fc.mu.Lock()
	silent := fc.silent[pt]
	pre := fc.preReply[pt]
	delete(fc.preReply, pt)
	fc.mu.Unlock()

	for _, frame := range pre {
		fc.writeRaw(frame)
	}
	if silent {
		return
	}

	switch pt {
	case PacketRequestProtocolVersion:
		v := binary.BigEndian.Uint16(payload)
		fc.mu.Lock()
		ok := !fc.rejected[v]
		fc.mu.Unlock()
		fc.reply(pt, boolByte(ok))
	case PacketGetControllerVersion:
		b := binary.BigEndian.AppendUint32(nil, 2)
		b = binary.BigEndian.AppendUint32(b, 14)
		b = binary.BigEndian.AppendUint32(b, 0)
		b = binary.BigEndian.AppendUint32(b, 123)
		fc.reply(pt, b)
	case PacketSetupOutputs:
		fc.reply(pt, fc.setup(Output, strings.Split(string(payload[8:]), ",")))
	case PacketSetupInputs:
		fc.reply(pt, fc.setup(Input, strings.Split(string(payload), ",")))
	case PacketStart, PacketPause:
		fc.reply(pt, []byte{1})
	case PacketDataPackage:
		fc.received <- payload
	}
}

func (fc *fakeController) setup(dir Direction, names []string) []byte {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	typeNames := make([]string, len(names))
	types := make([]value.Type, len(names))
	failed := false
	for i, name := range names {
		tn, ok := fc.types[name]
		switch {
		case !ok:
			typeNames[i] = typeNotFound
			failed = true
		case dir == Input && fc.inUse[name]:
			typeNames[i] = typeInUse
			failed = true
		default:
			typeNames[i] = tn
			types[i], _ = value.ParseType(tn)
		}
	}

	id := uint8(0)
	if !failed {
		id = fc.nextID
		fc.nextID++
		r, err := NewRecipe(id, dir, names, types)
		require.NoError(fc.t, err)
		if dir == Output {
			fc.outputs[id] = r
		} else {
			fc.inputs[id] = r
		}
	}

	return append([]byte{id}, strings.Join(typeNames, ",")...)
}

func (fc *fakeController) reply(pt PacketType, payload []byte) {
	b, err := AppendPacket(nil, pt, payload)
	require.NoError(fc.t, err)
	fc.writeRaw(b)
}

func (fc *fakeController) writeRaw(b []byte) {
	fc.mu.Lock()
	conn := fc.conn
	fc.mu.Unlock()
	if conn == nil {
		return
	}

	fc.writeMu.Lock()
	defer fc.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
	_, _ = conn.Write(b)
}

// outputRecipe returns the server side copy of output recipe id.
func (fc *fakeController) outputRecipe(id uint8) *Recipe {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	return fc.outputs[id]
}

// inputRecipe returns the server side copy of input recipe id.
func (fc *fakeController) inputRecipe(id uint8) *Recipe {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	return fc.inputs[id]
}

// dataFrames encodes one data package per timestamp for output recipe id, which must contain only
// the timestamp variable.
func (fc *fakeController) dataFrames(id uint8, timestamps ...float64) []byte {
	r := fc.outputRecipe(id)
	require.NotNil(fc.t, r)

	var b []byte
	for _, ts := range timestamps {
		require.NoError(fc.t, Set(r, VarTimestamp, ts))
		var err error
		b, err = AppendDataPackage(b, r)
		require.NoError(fc.t, err)
	}

	return b
}

func textMessageFrame(msg, source string, level uint8) []byte {
	payload := append([]byte{byte(len(msg))}, msg...)
	payload = append(payload, byte(len(source)))
	payload = append(payload, source...)
	payload = append(payload, level)
	b, _ := AppendPacket(nil, PacketTextMessage, payload)

	return b
}

func boolByte(ok bool) []byte {
	if ok {
		return []byte{1}
	}

	return []byte{0}
}
