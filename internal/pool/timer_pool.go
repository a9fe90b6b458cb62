// Package pool provides pooled timers and frame buffers for the per-cycle protocol paths.
package pool

import (
	"sync"
	"time"
)

// Pooled timers are always stopped. Since go1.23 Stop and Reset discard a pending expiry, so a reused
// timer never delivers a stale tick.
var timerPool = sync.Pool{
	New: func() any {
		t := time.NewTimer(time.Hour)
		t.Stop()

		return t
	},
}

// GetTimer returns a running timer that fires after d. Release it with PutTimer.
func GetTimer(d time.Duration) *time.Timer {
	t, _ := timerPool.Get().(*time.Timer)
	t.Reset(d)

	return t
}

// PutTimer stops t and returns it to the pool. t must not be used afterwards.
func PutTimer(t *time.Timer) {
	if t == nil {
		return
	}
	t.Stop()
	timerPool.Put(t)
}
