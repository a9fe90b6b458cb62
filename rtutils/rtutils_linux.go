//go:build linux

package rtutils

import (
	"fmt"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// maxCPUs is the number of CPUs a unix.CPUSet can address.
const maxCPUs = int(unsafe.Sizeof(unix.CPUSet{})) * 8

// GetThreadFIFOMaxPriority returns the highest priority of the FIFO scheduling class.
func GetThreadFIFOMaxPriority() (int, error) {
	r, _, errno := unix.RawSyscall(unix.SYS_SCHED_GET_PRIORITY_MAX, uintptr(unix.SCHED_FIFO), 0, 0)
	if errno != 0 {
		return 0, fmt.Errorf("sched_get_priority_max: %w", errno)
	}

	return int(r), nil
}

// SetCurrentThreadFIFOScheduling switches the calling thread to the FIFO scheduling class with priority.
// It usually needs CAP_SYS_NICE or an rtprio limit.
func SetCurrentThreadFIFOScheduling(priority int) error {
	maxPriority, err := GetThreadFIFOMaxPriority()
	if err != nil {
		return err
	}
	if priority < 1 || priority > maxPriority {
		return fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidPriority, priority, maxPriority)
	}

	runtime.LockOSThread()

	attr := unix.SchedAttr{
		Policy:   unix.SCHED_FIFO,
		Priority: uint32(priority),
	}
	if err := unix.SchedSetAttr(0, &attr, 0); err != nil {
		return fmt.Errorf("sched_setattr: %w", err)
	}

	return nil
}

// CurrentThreadScheduling returns the scheduling policy and priority of the calling thread.
func CurrentThreadScheduling() (policy int, priority int, err error) {
	attr, err := unix.SchedGetAttr(0, 0)
	if err != nil {
		return 0, 0, fmt.Errorf("sched_getattr: %w", err)
	}

	return int(attr.Policy), int(attr.Priority), nil
}

// BindCurrentThreadToCPU pins the calling thread to cpu.
func BindCurrentThreadToCPU(cpu int) error {
	if cpu < 0 || cpu >= maxCPUs {
		return fmt.Errorf("%w: %d", ErrInvalidCPU, cpu)
	}

	runtime.LockOSThread()

	var set unix.CPUSet
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		if err == unix.EINVAL {
			return fmt.Errorf("%w: %d", ErrInvalidCPU, cpu)
		}
		return fmt.Errorf("sched_setaffinity: %w", err)
	}

	return nil
}

// CurrentThreadCPUs returns the CPUs the calling thread may run on.
func CurrentThreadCPUs() ([]int, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil, fmt.Errorf("sched_getaffinity: %w", err)
	}

	cpus := make([]int, 0, set.Count())
	for cpu := 0; cpu < maxCPUs && len(cpus) < cap(cpus); cpu++ {
		if set.IsSet(cpu) {
			cpus = append(cpus, cpu)
		}
	}

	return cpus, nil
}
