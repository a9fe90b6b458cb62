package driver

import "errors"

var (
	// ErrRobotNotConnected indicates a write while the robot script is not connected to the port.
	ErrRobotNotConnected = errors.New("robot not connected")
	// ErrStopTimeout indicates that the robot did not disconnect within the StopControl wait.
	ErrStopTimeout = errors.New("timeout waiting for robot to stop control")
	// ErrInvalidTransition indicates a control state transition that is not allowed from the current state.
	ErrInvalidTransition = errors.New("invalid control state transition")
	// ErrInvalidArgument indicates an out of range command argument.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrPrimaryNotConnected indicates an operation needing the primary port while it is not connected.
	ErrPrimaryNotConnected = errors.New("primary port not connected")
	// ErrDriverClosed indicates an operation on a closed driver.
	ErrDriverClosed = errors.New("driver closed")
	// ErrConfigNil indicates that a nil Config was provided.
	ErrConfigNil = errors.New("driver config is nil")
)
