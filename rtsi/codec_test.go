package rtsi

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-elite/value"
)

func TestRecipe_New(t *testing.T) {
	tests := []struct {
		description string
		names       []string
		types       []value.Type
		wantErr     bool
	}{
		{description: "valid", names: []string{"a", "b"}, types: []value.Type{value.TypeBool, value.TypeDouble}},
		{description: "empty", wantErr: true},
		{description: "length mismatch", names: []string{"a"}, types: []value.Type{value.TypeBool, value.TypeBool}, wantErr: true},
		{description: "duplicate", names: []string{"a", "a"}, types: []value.Type{value.TypeBool, value.TypeBool}, wantErr: true},
		{description: "invalid type", names: []string{"a"}, types: []value.Type{value.TypeInvalid}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			r, err := NewRecipe(3, Output, tt.names, tt.types)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.names, r.Names())
			for i, name := range tt.names {
				v, ok := r.Value(name)
				require.True(t, ok)
				require.Equal(t, tt.types[i], v.Type())
			}
		})
	}
}

func TestRecipe_SetRequiresExactType(t *testing.T) {
	require := require.New(t)

	r, err := NewRecipe(1, Input, []string{"mask", "fraction"}, []value.Type{value.TypeUint32, value.TypeDouble})
	require.NoError(err)

	require.NoError(Set(r, "mask", uint32(3)))
	require.ErrorIs(Set(r, "mask", int32(3)), value.ErrTypeMismatch)
	require.ErrorIs(Set(r, "fraction", uint64(1)), value.ErrTypeMismatch)
	require.Error(Set(r, "missing", 1.0))

	_, err = Get[float64](r, "mask")
	require.ErrorIs(err, value.ErrTypeMismatch)

	mask, err := Get[uint32](r, "mask")
	require.NoError(err)
	require.Equal(uint32(3), mask)

	typ, ok := r.TypeOf("fraction")
	require.True(ok)
	require.Equal(value.TypeDouble, typ)
	require.True(r.Has("mask"))
	require.False(r.Has("missing"))
}

func TestDataPackage_FieldOrder(t *testing.T) {
	require := require.New(t)

	r, err := NewRecipe(5, Input,
		[]string{"flag", "count", "pose"},
		[]value.Type{value.TypeBool, value.TypeInt32, value.TypeVector6d})
	require.NoError(err)

	require.NoError(Set(r, "flag", true))
	require.NoError(Set(r, "count", int32(-2)))
	require.NoError(Set(r, "pose", value.Vector6d{1, 2, 3, 4, 5, 6}))

	b, err := AppendDataPackage(nil, r)
	require.NoError(err)

	require.Len(b, HeaderSize+1+1+4+48)
	require.Equal(uint16(len(b)), binary.BigEndian.Uint16(b))
	require.Equal(byte(PacketDataPackage), b[2])
	require.Equal(byte(5), b[3])
	require.Equal(byte(1), b[4])
	require.Equal(uint32(0xfffffffe), binary.BigEndian.Uint32(b[5:]))

	// decoding into a recipe with the same layout restores every field
	mirror, err := NewRecipe(5, Output, r.Names(), r.Types())
	require.NoError(err)
	require.NoError(DecodeDataPackage(b[HeaderSize:], mirror))
	require.Equal(r.Values(), mirror.Values())
}

func TestDecodeDataPackage_Errors(t *testing.T) {
	r, err := NewRecipe(2, Output, []string{"ts"}, []value.Type{value.TypeDouble})
	require.NoError(t, err)

	tests := []struct {
		description string
		payload     []byte
		wantErr     error
	}{
		{description: "empty", payload: nil, wantErr: ErrMalformedFrame},
		{description: "wrong id", payload: append([]byte{3}, make([]byte, 8)...), wantErr: ErrRecipeIDMismatch},
		{description: "short", payload: append([]byte{2}, make([]byte, 7)...), wantErr: ErrMalformedFrame},
		{description: "long", payload: append([]byte{2}, make([]byte, 9)...), wantErr: ErrMalformedFrame},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			err := DecodeDataPackage(tt.payload, r)
			require.ErrorIs(t, err, tt.wantErr)
			require.ErrorIs(t, err, ErrProtocol)
		})
	}
}

func TestReadPacket(t *testing.T) {
	require := require.New(t)

	var stream []byte
	stream, _ = AppendPacket(stream, PacketStart, []byte{1})
	stream, _ = AppendPacket(stream, PacketTextMessage, nil)

	r := bufio.NewReader(bytes.NewReader(stream))
	require.True(bufferedFrameAfterFill(r))

	pt, payload, err := readPacket(r)
	require.NoError(err)
	require.Equal(PacketStart, pt)
	require.Equal([]byte{1}, payload)

	pt, payload, err = readPacket(r)
	require.NoError(err)
	require.Equal(PacketTextMessage, pt)
	require.Empty(payload)

	_, _, err = readPacket(r)
	require.Error(err)
}

func bufferedFrameAfterFill(r *bufio.Reader) bool {
	_, _ = r.Peek(1)
	return bufferedFrame(r)
}

func TestReadPacket_InvalidSize(t *testing.T) {
	r := bufio.NewReader(bytes.NewReader([]byte{0, 2, 'U'}))
	_, _, err := readPacket(r)
	require.ErrorIs(t, err, ErrMalformedFrame)
}

func TestAppendPacket_TooLarge(t *testing.T) {
	_, err := AppendPacket(nil, PacketSetupInputs, make([]byte, MaxPacketSize))
	require.ErrorIs(t, err, ErrMalformedFrame)
}

func TestParseSetupReply(t *testing.T) {
	names := []string{"a", "b"}

	tests := []struct {
		description string
		payload     []byte
		wantErr     error
		wantTypes   []value.Type
	}{
		{description: "ok", payload: append([]byte{4}, "DOUBLE,VECTOR6D"...), wantTypes: []value.Type{value.TypeDouble, value.TypeVector6d}},
		{description: "not found", payload: append([]byte{0}, "DOUBLE,NOT_FOUND"...), wantErr: ErrUnknownVariable},
		{description: "in use", payload: append([]byte{0}, "IN_USE,DOUBLE"...), wantErr: ErrVariableInUse},
		{description: "id zero", payload: append([]byte{0}, "DOUBLE,DOUBLE"...), wantErr: ErrSetupFailed},
		{description: "count mismatch", payload: append([]byte{1}, "DOUBLE"...), wantErr: ErrMalformedFrame},
		{description: "unknown type name", payload: append([]byte{1}, "DOUBLE,FLOAT"...), wantErr: ErrMalformedFrame},
		{description: "empty", payload: nil, wantErr: ErrMalformedFrame},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			id, types, err := parseSetupReply(PacketSetupOutputs, tt.payload, names)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, uint8(4), id)
			require.Equal(t, tt.wantTypes, types)
		})
	}
}

func TestParseTextMessage(t *testing.T) {
	require := require.New(t)

	frame := textMessageFrame("joint 3 limit", "safety", 1)
	msg, err := parseTextMessage(frame[HeaderSize:])
	require.NoError(err)
	require.Equal(TextMessage{Message: "joint 3 limit", Source: "safety", Level: 1}, msg)

	_, err = parseTextMessage([]byte{5, 'a'})
	require.ErrorIs(err, ErrMalformedFrame)
}

func TestLoadRecipeFile(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()

	path := filepath.Join(dir, "output.txt")
	require.NoError(os.WriteFile(path, []byte("# outputs\ntimestamp\n\n  actual_joint_positions \n"), 0o600))
	names, err := LoadRecipeFile(path)
	require.NoError(err)
	require.Equal([]string{"timestamp", "actual_joint_positions"}, names)

	dup := filepath.Join(dir, "dup.txt")
	require.NoError(os.WriteFile(dup, []byte("timestamp\ntimestamp\n"), 0o600))
	_, err = LoadRecipeFile(dup)
	require.Error(err)

	empty := filepath.Join(dir, "empty.txt")
	require.NoError(os.WriteFile(empty, []byte("# nothing\n"), 0o600))
	_, err = LoadRecipeFile(empty)
	require.Error(err)

	_, err = LoadRecipeFile(filepath.Join(dir, "missing.txt"))
	require.Error(err)
}

func TestRobotStateStrings(t *testing.T) {
	require := require.New(t)

	require.Equal("RUNNING", RobotModeRunning.String())
	require.Equal("UNKNOWN", RobotModeUnknown.String())
	require.Equal("data_package", PacketDataPackage.String())
	require.Equal("input", Input.String())
	require.Equal("output", Output.String())
}
