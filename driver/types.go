package driver

import "fmt"

// ControlMode is the mode field of a reverse port frame, telling the robot script how to interpret it.
type ControlMode int32

const (
	ModeStopped     ControlMode = -2
	ModeIdle        ControlMode = 0
	ModeServoj      ControlMode = 1
	ModeSpeedj      ControlMode = 2
	ModeTrajectory  ControlMode = 3
	ModeSpeedl      ControlMode = 4
	ModePose        ControlMode = 5
	ModeFreedrive   ControlMode = 6
	ModeServojQueue ControlMode = 7
)

var controlModeNames = map[ControlMode]string{
	ModeStopped:     "STOPPED",
	ModeIdle:        "IDLE",
	ModeServoj:      "SERVOJ",
	ModeSpeedj:      "SPEEDJ",
	ModeTrajectory:  "TRAJECTORY",
	ModeSpeedl:      "SPEEDL",
	ModePose:        "POSE",
	ModeFreedrive:   "FREEDRIVE",
	ModeServojQueue: "SERVOJ_QUEUE",
}

func (m ControlMode) String() string {
	if s, ok := controlModeNames[m]; ok {
		return s
	}

	return fmt.Sprintf("ControlMode(%d)", int32(m))
}

// TrajectoryControlAction controls trajectory forwarding.
type TrajectoryControlAction int32

const (
	TrajectoryCancel TrajectoryControlAction = -1
	TrajectoryNoop   TrajectoryControlAction = 0
	TrajectoryStart  TrajectoryControlAction = 1
)

func (a TrajectoryControlAction) String() string {
	switch a {
	case TrajectoryCancel:
		return "CANCEL"
	case TrajectoryNoop:
		return "NOOP"
	case TrajectoryStart:
		return "START"
	default:
		return fmt.Sprintf("TrajectoryControlAction(%d)", int32(a))
	}
}

// FreedriveAction controls freedrive mode.
type FreedriveAction int32

const (
	FreedriveEnd   FreedriveAction = -1
	FreedriveNoop  FreedriveAction = 0
	FreedriveStart FreedriveAction = 1
)

func (a FreedriveAction) String() string {
	switch a {
	case FreedriveEnd:
		return "END"
	case FreedriveNoop:
		return "NOOP"
	case FreedriveStart:
		return "START"
	default:
		return fmt.Sprintf("FreedriveAction(%d)", int32(a))
	}
}

// TrajectoryMotionResult is the outcome of a forwarded trajectory.
type TrajectoryMotionResult int32

const (
	TrajectorySuccess  TrajectoryMotionResult = 0
	TrajectoryCanceled TrajectoryMotionResult = 1
	TrajectoryFailure  TrajectoryMotionResult = 2
)

func (r TrajectoryMotionResult) String() string {
	switch r {
	case TrajectorySuccess:
		return "SUCCESS"
	case TrajectoryCanceled:
		return "CANCELED"
	case TrajectoryFailure:
		return "FAILURE"
	default:
		return fmt.Sprintf("TrajectoryMotionResult(%d)", int32(r))
	}
}

// ToolVoltage is the tool flange supply voltage.
type ToolVoltage int32

const (
	ToolVoltageOff ToolVoltage = 0
	ToolVoltage12V ToolVoltage = 12
	ToolVoltage24V ToolVoltage = 24
)

// IsValid reports whether v is a supported voltage.
func (v ToolVoltage) IsValid() bool {
	return v == ToolVoltageOff || v == ToolVoltage12V || v == ToolVoltage24V
}

// ForceMode selects how the force frame is interpreted in force mode.
type ForceMode int32

const (
	// ForceModeFix uses the force frame as given.
	ForceModeFix ForceMode = iota
	// ForceModePoint points the y axis of the force frame from the TCP towards the frame origin.
	ForceModePoint
	// ForceModeMotion aligns the x axis of the force frame with the TCP motion direction.
	ForceModeMotion
	// ForceModeTCP uses the force frame relative to the TCP.
	ForceModeTCP
)

// IsValid reports whether m is a known force mode.
func (m ForceMode) IsValid() bool { return m >= ForceModeFix && m <= ForceModeTCP }

// ScriptCommand is the command field of a script command port frame.
type ScriptCommand int32

const (
	CommandZeroFTSensor   ScriptCommand = 0
	CommandSetPayload     ScriptCommand = 1
	CommandSetToolVoltage ScriptCommand = 2
	CommandStartForceMode ScriptCommand = 3
	CommandEndForceMode   ScriptCommand = 4
)
