package driver

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/arloliu/go-elite/value"
)

// PosZoomRatio is the fixed-point scale of every float sent to the robot script.
const PosZoomRatio = 1000000.0

// MaxScaledValue is the largest magnitude a float can have and still fit an int32 word after scaling.
const MaxScaledValue = math.MaxInt32 / PosZoomRatio

// Frame sizes in int32 words.
const (
	ReverseFrameWords       = 8
	TrajectoryFrameWords    = 9
	ScriptCommandFrameWords = 26
)

// Channel is the socket a ControlPacket travels on.
type Channel uint8

const (
	ChannelReverse Channel = iota
	ChannelTrajectory
	ChannelScriptCommand
)

func (c Channel) String() string {
	switch c {
	case ChannelReverse:
		return "reverse"
	case ChannelTrajectory:
		return "trajectory"
	case ChannelScriptCommand:
		return "script_command"
	default:
		return fmt.Sprintf("Channel(%d)", uint8(c))
	}
}

// ControlPacket is one command sent to the robot script. Each variant encodes to exactly one frame on
// its channel.
type ControlPacket interface {
	Channel() Channel
	// Validate reports ErrInvalidArgument when a field cannot be encoded or is out of range.
	Validate() error
	// AppendFrame appends the encoded frame to b. timeout is only used by reverse port packets.
	// The packet must have passed Validate.
	AppendFrame(b []byte, timeout time.Duration) []byte
}

// checkScaled rejects values that are not finite or overflow the fixed-point word.
func checkScaled(field string, xs ...float64) error {
	for i, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) || math.Abs(x) > MaxScaledValue {
			if len(xs) == 1 {
				return fmt.Errorf("%w: %s %v out of range", ErrInvalidArgument, field, x)
			}
			return fmt.Errorf("%w: %s[%d] %v out of range", ErrInvalidArgument, field, i, x)
		}
	}

	return nil
}

func scale(x float64) int32 { return int32(math.Round(x * PosZoomRatio)) }

func appendInt32(b []byte, v int32) []byte { return binary.BigEndian.AppendUint32(b, uint32(v)) }

func appendScaled(b []byte, xs ...float64) []byte {
	for _, x := range xs {
		b = appendInt32(b, scale(x))
	}

	return b
}

func timeoutMillis(d time.Duration) int32 {
	ms := d.Milliseconds()
	if ms > math.MaxInt32 {
		return math.MaxInt32
	}

	return int32(ms)
}

// appendReverse appends "[timeout_ms, d0..d5, mode]".
func appendReverse(b []byte, timeout time.Duration, data [6]int32, mode ControlMode) []byte {
	b = appendInt32(b, timeoutMillis(timeout))
	for _, d := range data {
		b = appendInt32(b, d)
	}

	return appendInt32(b, int32(mode))
}

func scaled6(v value.Vector6d) [6]int32 {
	var out [6]int32
	for i, x := range v {
		out[i] = scale(x)
	}

	return out
}

// Servo is a servoj target. Cartesian targets are TCP poses, otherwise joint positions. Queue selects
// queue mode, where the robot buffers points and consumes them at its own rate.
type Servo struct {
	Positions value.Vector6d
	Cartesian bool
	Queue     bool
}

func (Servo) Channel() Channel { return ChannelReverse }

func (p Servo) Validate() error {
	if p.Cartesian && p.Queue {
		return fmt.Errorf("%w: queue mode does not accept cartesian targets", ErrInvalidArgument)
	}

	return checkScaled("positions", p.Positions[:]...)
}

func (p Servo) mode() ControlMode {
	switch {
	case p.Queue:
		return ModeServojQueue
	case p.Cartesian:
		return ModePose
	default:
		return ModeServoj
	}
}

func (p Servo) AppendFrame(b []byte, timeout time.Duration) []byte {
	return appendReverse(b, timeout, scaled6(p.Positions), p.mode())
}

// Speed is a speedl (Linear) or speedj velocity command.
type Speed struct {
	Velocities value.Vector6d
	Linear     bool
}

func (Speed) Channel() Channel { return ChannelReverse }

func (p Speed) Validate() error { return checkScaled("velocities", p.Velocities[:]...) }

func (p Speed) AppendFrame(b []byte, timeout time.Duration) []byte {
	mode := ModeSpeedj
	if p.Linear {
		mode = ModeSpeedl
	}

	return appendReverse(b, timeout, scaled6(p.Velocities), mode)
}

// TrajectoryControl starts, keeps alive or cancels a forwarded trajectory.
type TrajectoryControl struct {
	Action     TrajectoryControlAction
	PointCount int32
}

func (TrajectoryControl) Channel() Channel { return ChannelReverse }

func (p TrajectoryControl) Validate() error {
	if p.Action < TrajectoryCancel || p.Action > TrajectoryStart {
		return fmt.Errorf("%w: trajectory action %v", ErrInvalidArgument, p.Action)
	}
	if p.PointCount < 0 {
		return fmt.Errorf("%w: point count %d", ErrInvalidArgument, p.PointCount)
	}

	return nil
}

func (p TrajectoryControl) AppendFrame(b []byte, timeout time.Duration) []byte {
	return appendReverse(b, timeout, [6]int32{int32(p.Action), p.PointCount}, ModeTrajectory)
}

// Idle keeps the script alive without motion.
type Idle struct{}

func (Idle) Channel() Channel { return ChannelReverse }

func (Idle) Validate() error { return nil }

func (Idle) AppendFrame(b []byte, timeout time.Duration) []byte {
	return appendReverse(b, timeout, [6]int32{}, ModeIdle)
}

// Stop tells the robot script to stop listening and exit.
type Stop struct{}

func (Stop) Channel() Channel { return ChannelReverse }

func (Stop) Validate() error { return nil }

func (Stop) AppendFrame(b []byte, _ time.Duration) []byte {
	return appendReverse(b, 0, [6]int32{}, ModeStopped)
}

// Freedrive starts, keeps alive or ends freedrive mode.
type Freedrive struct {
	Action FreedriveAction
}

func (Freedrive) Channel() Channel { return ChannelReverse }

func (p Freedrive) Validate() error {
	if p.Action < FreedriveEnd || p.Action > FreedriveStart {
		return fmt.Errorf("%w: freedrive action %v", ErrInvalidArgument, p.Action)
	}

	return nil
}

func (p Freedrive) AppendFrame(b []byte, timeout time.Duration) []byte {
	return appendReverse(b, timeout, [6]int32{int32(p.Action)}, ModeFreedrive)
}

// TrajectoryPoint is one point of a forwarded trajectory: reach Positions in Time seconds, blending
// with BlendRadius metres into the next point.
type TrajectoryPoint struct {
	Positions   value.Vector6d
	Time        float64
	BlendRadius float64
	Cartesian   bool
}

func (TrajectoryPoint) Channel() Channel { return ChannelTrajectory }

func (p TrajectoryPoint) Validate() error {
	if p.Time < 0 || p.BlendRadius < 0 {
		return fmt.Errorf("%w: point time and blend radius must not be negative", ErrInvalidArgument)
	}
	if err := checkScaled("positions", p.Positions[:]...); err != nil {
		return err
	}
	if err := checkScaled("point time", p.Time); err != nil {
		return err
	}

	return checkScaled("blend radius", p.BlendRadius)
}

func (p TrajectoryPoint) AppendFrame(b []byte, _ time.Duration) []byte {
	b = appendScaled(b, p.Positions[:]...)
	b = appendScaled(b, p.Time, p.BlendRadius)
	if p.Cartesian {
		return appendInt32(b, 1)
	}

	return appendInt32(b, 0)
}

// appendCommand appends a script command frame padded to ScriptCommandFrameWords.
func appendCommand(b []byte, cmd ScriptCommand, args ...int32) []byte {
	b = appendInt32(b, int32(cmd))
	for _, a := range args {
		b = appendInt32(b, a)
	}
	for i := 1 + len(args); i < ScriptCommandFrameWords; i++ {
		b = appendInt32(b, 0)
	}

	return b
}

// ZeroFTSensor tares the force/torque sensor.
type ZeroFTSensor struct{}

func (ZeroFTSensor) Channel() Channel { return ChannelScriptCommand }

func (ZeroFTSensor) Validate() error { return nil }

func (ZeroFTSensor) AppendFrame(b []byte, _ time.Duration) []byte {
	return appendCommand(b, CommandZeroFTSensor)
}

// SetPayload sets the payload mass in kg and its centre of gravity relative to the flange in m.
type SetPayload struct {
	Mass float64
	CoG  value.Vector3d
}

func (SetPayload) Channel() Channel { return ChannelScriptCommand }

func (p SetPayload) Validate() error {
	if p.Mass < 0 {
		return fmt.Errorf("%w: negative payload mass", ErrInvalidArgument)
	}
	if err := checkScaled("mass", p.Mass); err != nil {
		return err
	}

	return checkScaled("centre of gravity", p.CoG[:]...)
}

func (p SetPayload) AppendFrame(b []byte, _ time.Duration) []byte {
	return appendCommand(b, CommandSetPayload, scale(p.Mass), scale(p.CoG.X()), scale(p.CoG.Y()), scale(p.CoG.Z()))
}

// SetToolVoltage sets the tool supply voltage.
type SetToolVoltage struct {
	Voltage ToolVoltage
}

func (SetToolVoltage) Channel() Channel { return ChannelScriptCommand }

func (p SetToolVoltage) Validate() error {
	if !p.Voltage.IsValid() {
		return fmt.Errorf("%w: tool voltage %d", ErrInvalidArgument, p.Voltage)
	}

	return nil
}

func (p SetToolVoltage) AppendFrame(b []byte, _ time.Duration) []byte {
	return appendCommand(b, CommandSetToolVoltage, scale(float64(p.Voltage)))
}

// ForceModeStart enables force mode. Only axes set in Selection are compliant; the other axes ignore
// their Wrench and Limits entries and keep following the programmed trajectory.
type ForceModeStart struct {
	Frame     value.Vector6d
	Selection [6]bool
	Wrench    value.Vector6d
	Mode      ForceMode
	Limits    value.Vector6d
}

func (ForceModeStart) Channel() Channel { return ChannelScriptCommand }

func (p ForceModeStart) Validate() error {
	if !p.Mode.IsValid() {
		return fmt.Errorf("%w: force mode %d", ErrInvalidArgument, p.Mode)
	}
	if err := checkScaled("frame", p.Frame[:]...); err != nil {
		return err
	}
	if err := checkScaled("wrench", p.Wrench[:]...); err != nil {
		return err
	}

	return checkScaled("limits", p.Limits[:]...)
}

func (p ForceModeStart) AppendFrame(b []byte, _ time.Duration) []byte {
	args := make([]int32, 0, ScriptCommandFrameWords-1)
	for _, x := range p.Frame {
		args = append(args, scale(x))
	}
	for _, sel := range p.Selection {
		if sel {
			args = append(args, 1)
		} else {
			args = append(args, 0)
		}
	}
	for _, x := range p.Wrench {
		args = append(args, scale(x))
	}
	args = append(args, int32(p.Mode))
	for _, x := range p.Limits {
		args = append(args, scale(x))
	}

	return appendCommand(b, CommandStartForceMode, args...)
}

// ForceModeEnd disables force mode.
type ForceModeEnd struct{}

func (ForceModeEnd) Channel() Channel { return ChannelScriptCommand }

func (ForceModeEnd) Validate() error { return nil }

func (ForceModeEnd) AppendFrame(b []byte, _ time.Duration) []byte {
	return appendCommand(b, CommandEndForceMode)
}

// DecodeFrame splits a frame into its int32 words.
func DecodeFrame(b []byte) ([]int32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("frame length %d is not a multiple of 4", len(b))
	}
	words := make([]int32, len(b)/4)
	for i := range words {
		words[i] = int32(binary.BigEndian.Uint32(b[i*4:]))
	}

	return words, nil
}

// Unscale converts a fixed-point word back to a float.
func Unscale(w int32) float64 { return float64(w) / PosZoomRatio }
