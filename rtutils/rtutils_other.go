//go:build !linux

package rtutils

// GetThreadFIFOMaxPriority returns ErrNotSupported.
func GetThreadFIFOMaxPriority() (int, error) { return 0, ErrNotSupported }

// SetCurrentThreadFIFOScheduling returns ErrNotSupported.
func SetCurrentThreadFIFOScheduling(int) error { return ErrNotSupported }

// CurrentThreadScheduling returns ErrNotSupported.
func CurrentThreadScheduling() (int, int, error) { return 0, 0, ErrNotSupported }

// BindCurrentThreadToCPU returns ErrNotSupported.
func BindCurrentThreadToCPU(int) error { return ErrNotSupported }

// CurrentThreadCPUs returns ErrNotSupported.
func CurrentThreadCPUs() ([]int, error) { return nil, ErrNotSupported }
