package primary

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// ExceptionType identifies the RobotException variant.
type ExceptionType uint8

const (
	ExceptionRobotDisconnected ExceptionType = iota
	ExceptionRobotError
	ExceptionScriptRuntime
)

func (t ExceptionType) String() string {
	switch t {
	case ExceptionRobotDisconnected:
		return "ROBOT_DISCONNECTED"
	case ExceptionRobotError:
		return "ROBOT_ERROR"
	case ExceptionScriptRuntime:
		return "SCRIPT_RUNTIME"
	default:
		return fmt.Sprintf("ExceptionType(%d)", uint8(t))
	}
}

// RobotException is an asynchronous exception observed on the primary port. Values are immutable.
type RobotException interface {
	error
	// Type returns the variant.
	Type() ExceptionType
	// Timestamp returns the controller timestamp of the message, or the local time for exceptions raised
	// by the client itself.
	Timestamp() time.Time
}

// ErrorSource is the controller module that reported a RobotError.
type ErrorSource uint8

const (
	SourceSafety     ErrorSource = 99
	SourceGUI        ErrorSource = 103
	SourceController ErrorSource = 104
	SourceRTSI       ErrorSource = 105
	SourceJoint      ErrorSource = 120
	SourceTool       ErrorSource = 121
	SourceTP         ErrorSource = 122
	SourceJointFPGA  ErrorSource = 200
	SourceToolFPGA   ErrorSource = 201
)

var errorSourceNames = map[ErrorSource]string{
	SourceSafety:     "SAFETY",
	SourceGUI:        "GUI",
	SourceController: "CONTROLLER",
	SourceRTSI:       "RTSI",
	SourceJoint:      "JOINT",
	SourceTool:       "TOOL",
	SourceTP:         "TP",
	SourceJointFPGA:  "JOINT_FPGA",
	SourceToolFPGA:   "TOOL_FPGA",
}

func (s ErrorSource) String() string {
	if name, ok := errorSourceNames[s]; ok {
		return name
	}

	return fmt.Sprintf("ErrorSource(%d)", uint8(s))
}

// ErrorLevel is the severity of a RobotError.
type ErrorLevel int32

const (
	LevelInfo ErrorLevel = iota
	LevelWarning
	LevelError
	LevelFatal
)

func (l ErrorLevel) String() string {
	switch l {
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return fmt.Sprintf("ErrorLevel(%d)", int32(l))
	}
}

// ErrorDataType describes the additional data of a RobotError.
type ErrorDataType uint32

const (
	DataNone ErrorDataType = iota
	DataUnsigned
	DataSigned
	DataFloat
	DataHex
	DataString
	DataJoint
)

// DisconnectedException reports that the primary port connection was lost.
type DisconnectedException struct {
	at  time.Time
	Err error
}

func (e *DisconnectedException) Type() ExceptionType  { return ExceptionRobotDisconnected }
func (e *DisconnectedException) Timestamp() time.Time { return e.at }
func (e *DisconnectedException) Unwrap() error        { return e.Err }

func (e *DisconnectedException) Error() string {
	if e.Err == nil {
		return "robot disconnected"
	}

	return "robot disconnected: " + e.Err.Error()
}

// RobotError is an error code reported by the controller or a hardware module.
type RobotError struct {
	at       time.Time
	Code     int32
	SubCode  int32
	Source   ErrorSource
	Level    ErrorLevel
	DataType ErrorDataType
	// Data holds uint32 for DataNone, DataUnsigned and DataHex, int32 for DataSigned and DataJoint,
	// float32 for DataFloat and string for DataString.
	Data any
}

func (e *RobotError) Type() ExceptionType  { return ExceptionRobotError }
func (e *RobotError) Timestamp() time.Time { return e.at }

func (e *RobotError) Error() string {
	return fmt.Sprintf("robot error C%dA%d from %s (%s): %v", e.Code, e.SubCode, e.Source, e.Level, e.Data)
}

// RuntimeException is a script runtime exception, such as calling an undefined function.
type RuntimeException struct {
	at      time.Time
	Line    int32
	Column  int32
	Message string
}

func (e *RuntimeException) Type() ExceptionType  { return ExceptionScriptRuntime }
func (e *RuntimeException) Timestamp() time.Time { return e.at }

func (e *RuntimeException) Error() string {
	return fmt.Sprintf("script runtime exception at %d:%d: %s", e.Line, e.Column, e.Message)
}

// Robot message types carried in MessageRobotMessage frames.
const (
	robotMessageErrorCode        uint8 = 6
	robotMessageRuntimeException uint8 = 10

	robotMessageHeaderSize = 8 + 1 + 1
)

// parseRobotMessage decodes a robot message body. It returns nil without error for message types that
// carry no exception.
func parseRobotMessage(body []byte) (RobotException, error) {
	if len(body) < robotMessageHeaderSize {
		return nil, fmt.Errorf("%w: robot message of %d bytes", ErrMalformedFrame, len(body))
	}

	ts := binary.BigEndian.Uint64(body)
	at := time.UnixMilli(int64(ts))
	source := ErrorSource(body[8])
	msgType := body[9]
	body = body[robotMessageHeaderSize:]

	switch msgType {
	case robotMessageErrorCode:
		if len(body) < 16 {
			return nil, fmt.Errorf("%w: error code message of %d bytes", ErrMalformedFrame, len(body))
		}
		e := &RobotError{
			at:       at,
			Code:     int32(binary.BigEndian.Uint32(body[0:])),
			SubCode:  int32(binary.BigEndian.Uint32(body[4:])),
			Source:   source,
			Level:    ErrorLevel(int32(binary.BigEndian.Uint32(body[8:]))),
			DataType: ErrorDataType(binary.BigEndian.Uint32(body[12:])),
		}
		data := body[16:]
		if e.DataType == DataString {
			e.Data = string(data)
			return e, nil
		}
		if len(data) < 4 {
			return nil, fmt.Errorf("%w: error code data missing", ErrMalformedFrame)
		}
		raw := binary.BigEndian.Uint32(data)
		switch e.DataType {
		case DataSigned, DataJoint:
			e.Data = int32(raw)
		case DataFloat:
			e.Data = math.Float32frombits(raw)
		default:
			e.Data = raw
		}

		return e, nil

	case robotMessageRuntimeException:
		if len(body) < 8 {
			return nil, fmt.Errorf("%w: runtime exception message of %d bytes", ErrMalformedFrame, len(body))
		}

		return &RuntimeException{
			at:      at,
			Line:    int32(binary.BigEndian.Uint32(body[0:])),
			Column:  int32(binary.BigEndian.Uint32(body[4:])),
			Message: string(body[8:]),
		}, nil
	}

	return nil, nil
}
