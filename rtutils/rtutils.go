// Package rtutils applies real-time scheduling settings to the calling thread.
//
// The settings are per OS thread, so every function locks the calling goroutine to its thread with
// runtime.LockOSThread and leaves it locked. When the goroutine exits without calling
// runtime.UnlockOSThread, the Go runtime terminates the thread and the setting does not leak to other
// goroutines. Run the time-critical loop on a dedicated goroutine and call these functions from it.
package rtutils

import "errors"

var (
	// ErrNotSupported indicates that the platform has no real-time scheduling support.
	ErrNotSupported = errors.New("real-time scheduling not supported on this platform")
	// ErrInvalidPriority indicates a FIFO priority outside [1, GetThreadFIFOMaxPriority()].
	ErrInvalidPriority = errors.New("invalid FIFO priority")
	// ErrInvalidCPU indicates a negative CPU index or one the process may not run on.
	ErrInvalidCPU = errors.New("invalid cpu")
)
