package rtsi

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-elite/internal/task"
	"github.com/arloliu/go-elite/logger"
	"github.com/arloliu/go-elite/value"
	"github.com/arloliu/go-elite/version"
)

// Sample is an immutable snapshot of the output recipe taken after a data package was decoded.
type Sample struct {
	// Seq increases by one for every published sample.
	Seq uint64
	// Received is the local receive time.
	Received time.Time

	names  []string
	values []value.Value
	index  map[string]int
}

// NewSample builds a sample from parallel name and value slices. It panics when their lengths differ.
func NewSample(seq uint64, received time.Time, names []string, values []value.Value) Sample {
	if len(names) != len(values) {
		panic("rtsi: sample names and values differ in length")
	}
	index := make(map[string]int, len(names))
	for i, name := range names {
		index[name] = i
	}

	return Sample{Seq: seq, Received: received, names: names, values: values, index: index}
}

// Names returns the variable names in wire order.
func (s Sample) Names() []string { return s.names }

// Values returns the values in wire order. The slice must not be modified.
func (s Sample) Values() []value.Value { return s.values }

// Value returns the value of name.
func (s Sample) Value(name string) (value.Value, bool) {
	i, ok := s.index[name]
	if !ok {
		return value.Value{}, false
	}

	return s.values[i], true
}

// SampleValue returns the value of name in s as T.
func SampleValue[T value.Kind](s Sample, name string) (T, error) {
	v, ok := s.Value(name)
	if !ok {
		var zero T
		return zero, fmt.Errorf("variable %q not in output recipe", name)
	}

	return value.As[T](v)
}

// IOOption configures an IOInterface.
type IOOption func(*IOInterface)

// WithClientOptions passes options to the underlying Client.
func WithClientOptions(opts ...ClientOption) IOOption {
	return func(io *IOInterface) { io.clientOpts = append(io.clientOpts, opts...) }
}

// WithPort overrides the RTSI port.
func WithPort(port int) IOOption {
	return func(io *IOInterface) { io.port = port }
}

// WithProtocolVersion overrides the requested protocol version.
func WithProtocolVersion(v uint16) IOOption {
	return func(io *IOInterface) { io.protocolVersion = v }
}

// WithControllerConstraint rejects controllers whose version does not satisfy the semver constraint,
// e.g. ">= 2.14".
func WithControllerConstraint(constraint string) IOOption {
	return func(io *IOInterface) { io.constraint = constraint }
}

// WithSampleHandler registers a function called on the reader goroutine after every published sample.
func WithSampleHandler(fn func(Sample)) IOOption {
	return func(io *IOInterface) { io.onSample = fn }
}

// IOInterface is a convenience layer over Client: it negotiates, sets up one output and one input recipe,
// runs a background reader that keeps the newest output sample, and offers typed accessors.
type IOInterface struct {
	outputNames     []string
	inputNames      []string
	frequency       float64
	port            int
	protocolVersion uint16
	constraint      string
	clientOpts      []ClientOption
	onSample        func(Sample)

	client  *Client
	logger  logger.Logger
	taskMgr *task.Manager

	output *Recipe

	inputMu sync.Mutex
	input   *Recipe

	latest     atomic.Pointer[Sample]
	seq        atomic.Uint64
	ctlVersion atomic.Pointer[version.Info]
}

// NewIOInterface creates an interface for the given output and input variables. inputNames may be empty.
func NewIOInterface(outputNames, inputNames []string, frequency float64, opts ...IOOption) (*IOInterface, error) {
	if len(outputNames) == 0 {
		return nil, errors.New("io interface needs output variables")
	}
	if frequency <= 0 {
		frequency = DefaultFrequency
	}

	io := &IOInterface{
		outputNames:     append([]string(nil), outputNames...),
		inputNames:      append([]string(nil), inputNames...),
		frequency:       frequency,
		port:            DefaultPort,
		protocolVersion: DefaultProtocolVersion,
	}
	for _, opt := range opts {
		opt(io)
	}

	client, err := NewClient(io.clientOpts...)
	if err != nil {
		return nil, err
	}
	io.client = client
	io.logger = client.logger.With("layer", "io")
	io.taskMgr = task.NewManager(context.Background(), io.logger)

	return io, nil
}

// NewIOInterfaceFromFiles is NewIOInterface with variable names read by LoadRecipeFile. An empty
// inputFile means no input recipe.
func NewIOInterfaceFromFiles(outputFile, inputFile string, frequency float64, opts ...IOOption) (*IOInterface, error) {
	outputs, err := LoadRecipeFile(outputFile)
	if err != nil {
		return nil, err
	}

	var inputs []string
	if inputFile != "" {
		if inputs, err = LoadRecipeFile(inputFile); err != nil {
			return nil, err
		}
	}

	return NewIOInterface(outputs, inputs, frequency, opts...)
}

// Client returns the underlying client.
func (io *IOInterface) Client() *Client { return io.client }

// Connect connects to host, negotiates, sets up the recipes, starts synchronization and the reader.
// On any failure the connection is closed again.
func (io *IOInterface) Connect(ctx context.Context, host string) (err error) {
	if err := io.client.Connect(ctx, host, io.port); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = io.client.Disconnect()
		}
	}()

	if err := io.client.NegotiateProtocolVersion(io.protocolVersion); err != nil {
		return err
	}

	ver, err := io.client.GetControllerVersion()
	if err != nil {
		return err
	}
	io.ctlVersion.Store(&ver)

	if io.constraint != "" {
		ok, err := ver.Satisfies(io.constraint)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s does not satisfy %q", ErrControllerVersion, ver, io.constraint)
		}
	}

	if io.output, err = io.client.SetupOutputRecipe(io.outputNames, io.frequency); err != nil {
		return err
	}

	if len(io.inputNames) > 0 {
		in, err := io.client.SetupInputRecipe(io.inputNames)
		if err != nil {
			return err
		}
		io.inputMu.Lock()
		io.input = in
		io.inputMu.Unlock()
	}

	if err := io.client.Start(); err != nil {
		return err
	}

	io.logger.Info("rtsi io interface started", "controller", ver.String(), "frequency", io.frequency)

	return io.taskMgr.Start("rtsi-io-reader", io.readTask)
}

// Disconnect stops the reader, closes the connection and waits for the reader goroutine to exit.
func (io *IOInterface) Disconnect() {
	io.taskMgr.Stop()
	_ = io.client.Disconnect()
	io.taskMgr.Wait()
}

// IsConnected reports whether the connection is open.
func (io *IOInterface) IsConnected() bool { return io.client.IsConnected() }

// ControllerVersion returns the controller version read during Connect.
func (io *IOInterface) ControllerVersion() version.Info {
	if v := io.ctlVersion.Load(); v != nil {
		return *v
	}

	return version.Info{}
}

// Latest returns the newest sample. ok is false before the first sample.
func (io *IOInterface) Latest() (Sample, bool) {
	s := io.latest.Load()
	if s == nil {
		return Sample{}, false
	}

	return *s, true
}

func (io *IOInterface) readTask() bool {
	_, err := io.client.ReceiveData([]*Recipe{io.output}, true)
	switch {
	case err == nil:
		io.publish()
		return true
	case errors.Is(err, ErrTimeout):
		return true
	case errors.Is(err, ErrConnection):
		io.logger.Warn("rtsi reader stopped", "error", err)
		return false
	default:
		io.logger.Warn("rtsi receive failed", "error", err)
		return true
	}
}

func (io *IOInterface) publish() {
	s := &Sample{
		Seq:      io.seq.Add(1),
		Received: time.Now(),
		names:    io.output.names,
		values:   io.output.Values(),
		index:    io.output.index,
	}
	io.latest.Store(s)

	if io.onSample != nil {
		io.onSample(*s)
	}
}

// OutputValue returns output variable name of the latest sample as T.
func OutputValue[T value.Kind](io *IOInterface, name string) (T, error) {
	s, ok := io.Latest()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: no sample yet", ErrReceiveTimeout)
	}

	return SampleValue[T](s, name)
}

func outputOrZero[T value.Kind](io *IOInterface, name string) T {
	v, _ := OutputValue[T](io, name)
	return v
}

// outputUint reads an unsigned bit field regardless of its integer width.
func (io *IOInterface) outputUint(name string) uint64 {
	s, ok := io.Latest()
	if !ok {
		return 0
	}
	v, ok := s.Value(name)
	if !ok {
		return 0
	}

	switch x := v.Interface().(type) {
	case uint8:
		return uint64(x)
	case uint16:
		return uint64(x)
	case uint32:
		return uint64(x)
	case uint64:
		return x
	case int32:
		return uint64(uint32(x))
	default:
		return 0
	}
}

// The getters below return the zero value when the variable is not part of the output recipe or no sample
// has been received yet. Use Output for an explicit error.

func (io *IOInterface) Timestamp() float64   { return outputOrZero[float64](io, VarTimestamp) }
func (io *IOInterface) PayloadMass() float64 { return outputOrZero[float64](io, VarPayloadMass) }
func (io *IOInterface) PayloadCog() value.Vector3d {
	return outputOrZero[value.Vector3d](io, VarPayloadCog)
}
func (io *IOInterface) ScriptControlLine() uint32 { return uint32(io.outputUint(VarScriptControlLine)) }

func (io *IOInterface) TargetJointPositions() value.Vector6d {
	return outputOrZero[value.Vector6d](io, VarTargetJointPositions)
}

func (io *IOInterface) TargetJointVelocity() value.Vector6d {
	return outputOrZero[value.Vector6d](io, VarTargetJointSpeeds)
}

func (io *IOInterface) ActualJointPositions() value.Vector6d {
	return outputOrZero[value.Vector6d](io, VarActualJointPositions)
}

func (io *IOInterface) ActualJointTorques() value.Vector6d {
	return outputOrZero[value.Vector6d](io, VarActualJointTorques)
}

func (io *IOInterface) ActualJointVelocity() value.Vector6d {
	return outputOrZero[value.Vector6d](io, VarActualJointSpeeds)
}

func (io *IOInterface) ActualJointCurrent() value.Vector6d {
	return outputOrZero[value.Vector6d](io, VarActualJointCurrent)
}

func (io *IOInterface) ActualJointTemperatures() value.Vector6d {
	return outputOrZero[value.Vector6d](io, VarJointTemperatures)
}

func (io *IOInterface) ActualTCPPose() value.Vector6d {
	return outputOrZero[value.Vector6d](io, VarActualTCPPose)
}

func (io *IOInterface) ActualTCPVelocity() value.Vector6d {
	return outputOrZero[value.Vector6d](io, VarActualTCPSpeed)
}

func (io *IOInterface) ActualTCPForce() value.Vector6d {
	return outputOrZero[value.Vector6d](io, VarActualTCPForce)
}

func (io *IOInterface) TargetTCPPose() value.Vector6d {
	return outputOrZero[value.Vector6d](io, VarTargetTCPPose)
}

func (io *IOInterface) TargetTCPVelocity() value.Vector6d {
	return outputOrZero[value.Vector6d](io, VarTargetTCPSpeed)
}

func (io *IOInterface) DigitalInputBits() uint64  { return io.outputUint(VarDigitalInputBits) }
func (io *IOInterface) DigitalOutputBits() uint64 { return io.outputUint(VarDigitalOutputBits) }

func (io *IOInterface) RobotMode() RobotMode {
	if _, ok := io.Latest(); !ok {
		return RobotModeUnknown
	}

	return RobotMode(outputOrZero[int32](io, VarRobotMode))
}

func (io *IOInterface) JointMode() [6]JointMode {
	var out [6]JointMode
	for i, m := range outputOrZero[value.Vector6Int32](io, VarJointMode) {
		out[i] = JointMode(m)
	}

	return out
}

func (io *IOInterface) SafetyStatus() SafetyMode {
	return SafetyMode(outputOrZero[int32](io, VarSafetyStatus))
}

func (io *IOInterface) ActualSpeedScaling() float64 {
	return outputOrZero[float64](io, VarSpeedScaling)
}
func (io *IOInterface) TargetSpeedScaling() float64 {
	return outputOrZero[float64](io, VarTargetSpeedFraction)
}
func (io *IOInterface) RobotVoltage() float64    { return outputOrZero[float64](io, VarRobotVoltage) }
func (io *IOInterface) RobotCurrent() float64    { return outputOrZero[float64](io, VarRobotCurrent) }
func (io *IOInterface) RuntimeState() TaskStatus { return TaskStatus(io.outputUint(VarRuntimeState)) }
func (io *IOInterface) ElbowPosition() value.Vector3d {
	return outputOrZero[value.Vector3d](io, VarElbowPosition)
}
func (io *IOInterface) ElbowVelocity() value.Vector3d {
	return outputOrZero[value.Vector3d](io, VarElbowVelocity)
}
func (io *IOInterface) RobotStatus() uint32      { return uint32(io.outputUint(VarRobotStatusBits)) }
func (io *IOInterface) SafetyStatusBits() uint32 { return uint32(io.outputUint(VarSafetyStatusBits)) }
func (io *IOInterface) IOCurrent() float64       { return outputOrZero[float64](io, VarIOCurrent) }

func (io *IOInterface) AnalogInput(index int) float64 {
	return outputOrZero[float64](io, StandardAnalogInput(index))
}

func (io *IOInterface) AnalogOutput(index int) float64 {
	return outputOrZero[float64](io, StandardAnalogOutput(index))
}

func (io *IOInterface) OutBoolRegisters0To31() uint32 {
	return uint32(io.outputUint(VarOutputBitRegisters0To31))
}

func (io *IOInterface) OutBoolRegisters32To63() uint32 {
	return uint32(io.outputUint(VarOutputBitRegisters32To63))
}

func (io *IOInterface) InBoolRegisters0To31() uint32 {
	return uint32(io.outputUint(VarInputBitRegisters0To31))
}

func (io *IOInterface) InBoolRegisters32To63() uint32 {
	return uint32(io.outputUint(VarInputBitRegisters32To63))
}

func (io *IOInterface) OutIntRegister(index int) int32 {
	return outputOrZero[int32](io, OutputIntRegister(index))
}

func (io *IOInterface) OutDoubleRegister(index int) float64 {
	return outputOrZero[float64](io, OutputDoubleRegister(index))
}

func (io *IOInterface) OutBoolRegister(index int) bool {
	return outputOrZero[bool](io, OutputBitRegister(index))
}

// setInputs assigns the given variables of the input recipe and sends it. All variables must be present.
func (io *IOInterface) setInputs(assign func(r *Recipe) error) error {
	io.inputMu.Lock()
	defer io.inputMu.Unlock()

	if io.input == nil {
		return fmt.Errorf("%w: no input recipe", ErrRecipeNotRegistered)
	}
	if err := assign(io.input); err != nil {
		return err
	}

	return io.client.Send(io.input)
}

// SetInput assigns one input variable and sends the input recipe.
func SetInput[T value.Kind](io *IOInterface, name string, x T) error {
	return io.setInputs(func(r *Recipe) error { return Set(r, name, x) })
}

// SetSpeedScaling sets the speed slider fraction, in [0, 1].
func (io *IOInterface) SetSpeedScaling(scaling float64) error {
	if scaling < 0 || scaling > 1 {
		return fmt.Errorf("speed scaling %v out of range [0, 1]", scaling)
	}

	return io.setInputs(func(r *Recipe) error {
		if err := Set(r, VarSpeedSliderMask, uint32(1)); err != nil {
			return err
		}
		return Set(r, VarSpeedSliderFraction, scaling)
	})
}

func (io *IOInterface) setMaskedBit(maskName, valueName string, index int, level bool) error {
	if index < 0 || index > 7 {
		return fmt.Errorf("digital output index %d out of range [0, 7]", index)
	}

	return io.setInputs(func(r *Recipe) error {
		bit := uint8(1) << uint(index)
		var levels uint8
		if level {
			levels = bit
		}
		if err := Set(r, maskName, bit); err != nil {
			return err
		}
		return Set(r, valueName, levels)
	})
}

// SetStandardDigital sets standard digital output index (0..7).
func (io *IOInterface) SetStandardDigital(index int, level bool) error {
	return io.setMaskedBit(VarStandardDigitalOutputMask, VarStandardDigitalOutput, index, level)
}

// SetConfigureDigital sets configurable digital output index (0..7).
func (io *IOInterface) SetConfigureDigital(index int, level bool) error {
	return io.setMaskedBit(VarConfigurableDigitalOutputMask, VarConfigurableDigitalOutput, index, level)
}

// SetToolDigitalOutput sets tool digital output index (0..7).
func (io *IOInterface) SetToolDigitalOutput(index int, level bool) error {
	return io.setMaskedBit(VarToolDigitalOutputMask, VarToolDigitalOutput, index, level)
}

func (io *IOInterface) setAnalogOutput(index int, current bool, v float64) error {
	if index < 0 || index > 1 {
		return fmt.Errorf("analog output index %d out of range [0, 1]", index)
	}

	return io.setInputs(func(r *Recipe) error {
		bit := uint8(1) << uint(index)
		var typ uint8
		if current {
			typ = bit
		}
		name := VarStandardAnalogOutput0
		if index == 1 {
			name = VarStandardAnalogOutput1
		}
		if err := Set(r, VarStandardAnalogOutputMask, bit); err != nil {
			return err
		}
		if err := Set(r, VarStandardAnalogOutputType, typ); err != nil {
			return err
		}
		return Set(r, name, v)
	})
}

// SetAnalogOutputVoltage sets standard analog output index (0..1) in voltage mode, as a ratio in [0, 1].
func (io *IOInterface) SetAnalogOutputVoltage(index int, v float64) error {
	return io.setAnalogOutput(index, false, v)
}

// SetAnalogOutputCurrent sets standard analog output index (0..1) in current mode, as a ratio in [0, 1].
func (io *IOInterface) SetAnalogOutputCurrent(index int, v float64) error {
	return io.setAnalogOutput(index, true, v)
}

// SetExternalForceTorque feeds external force sensor data.
func (io *IOInterface) SetExternalForceTorque(wrench value.Vector6d) error {
	return SetInput(io, VarExternalForceTorque, wrench)
}

// SetInIntRegister sets input integer register index.
func (io *IOInterface) SetInIntRegister(index int, v int32) error {
	return SetInput(io, InputIntRegister(index), v)
}

// SetInDoubleRegister sets input double register index.
func (io *IOInterface) SetInDoubleRegister(index int, v float64) error {
	return SetInput(io, InputDoubleRegister(index), v)
}

// SetInBoolRegister sets input bit register index.
func (io *IOInterface) SetInBoolRegister(index int, v bool) error {
	return SetInput(io, InputBitRegister(index), v)
}
