package driver

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-elite/logger"
)

// ControlState is the state of a control session.
type ControlState uint32

const (
	// StateIdle indicates that no control session is running.
	StateIdle ControlState = iota
	// StateWaitingForRobotConnection indicates that the servers are listening and the robot script has not
	// connected to the reverse port yet.
	StateWaitingForRobotConnection
	// StateActive indicates that the robot script is connected and consuming commands.
	StateActive
	// StateStopping indicates that a stop was sent and the robot has not disconnected yet.
	StateStopping
)

func (s ControlState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaitingForRobotConnection:
		return "waiting-for-robot-connection"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// StateChangeHandler is invoked on every transition, synchronously, with the state lock held.
// It must not call back into the StateMgr.
type StateChangeHandler func(prev ControlState, next ControlState)

// StateMgr manages the control session state.
//
// Allowed transitions:
//
//	Idle -> WaitingForRobotConnection -> Active -> Stopping -> Idle
//	Idle -> Active                (robot connects without an announced script)
//	Active -> WaitingForRobotConnection (robot disconnects without a stop)
//	Stopping -> Idle                    (robot disconnects after a stop)
//	any -> Idle
type StateMgr struct {
	mu       sync.Mutex
	cond     *sync.Cond
	state    atomic.Uint32
	logger   logger.Logger
	handlers []StateChangeHandler
}

// NewStateMgr creates a StateMgr in StateIdle.
func NewStateMgr(l logger.Logger, handlers ...StateChangeHandler) *StateMgr {
	if l == nil {
		l = logger.GetLogger()
	}
	sm := &StateMgr{logger: l, handlers: handlers}
	sm.cond = sync.NewCond(&sm.mu)

	return sm
}

// State returns the current state.
func (sm *StateMgr) State() ControlState {
	return ControlState(sm.state.Load())
}

// AddHandler adds state change handlers.
func (sm *StateMgr) AddHandler(handlers ...StateChangeHandler) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.handlers = append(sm.handlers, handlers...)
}

// WaitState blocks until the state is one of states or ctx is done.
func (sm *StateMgr) WaitState(ctx context.Context, states ...ControlState) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	match := func() bool {
		cur := sm.State()
		for _, s := range states {
			if cur == s {
				return true
			}
		}
		return false
	}
	if match() {
		return nil
	}

	stop := context.AfterFunc(ctx, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		sm.cond.Broadcast()
	})
	defer stop()

	for !match() {
		if err := ctx.Err(); err != nil {
			sm.logger.Debug("wait control state cancelled", "cur_state", sm.State(), "desired", states)
			return err
		}
		sm.cond.Wait()
	}

	return nil
}

// ToIdle transitions to StateIdle from any state.
func (sm *StateMgr) ToIdle() {
	_, _ = sm.transition(func(ControlState) (ControlState, bool) { return StateIdle, true })
}

// ToWaitingForRobotConnection transitions from Idle or Active.
func (sm *StateMgr) ToWaitingForRobotConnection() error {
	_, err := sm.transition(func(cur ControlState) (ControlState, bool) {
		return StateWaitingForRobotConnection, cur == StateIdle || cur == StateActive
	})

	return err
}

// ToActive transitions from Idle or WaitingForRobotConnection.
func (sm *StateMgr) ToActive() error {
	_, err := sm.transition(func(cur ControlState) (ControlState, bool) {
		return StateActive, cur == StateIdle || cur == StateWaitingForRobotConnection
	})

	return err
}

// ToStopping transitions from Active.
func (sm *StateMgr) ToStopping() error {
	_, err := sm.transition(func(cur ControlState) (ControlState, bool) {
		return StateStopping, cur == StateActive
	})

	return err
}

// ToRobotDisconnected records that the robot script went away: a stopping session becomes Idle and an
// active one goes back to waiting for the robot. Other states are kept. It returns the resulting state.
func (sm *StateMgr) ToRobotDisconnected() ControlState {
	next, _ := sm.transition(func(cur ControlState) (ControlState, bool) {
		switch cur {
		case StateStopping:
			return StateIdle, true
		case StateActive:
			return StateWaitingForRobotConnection, true
		default:
			return cur, true
		}
	})

	return next
}

// transition computes the next state from the current one under the lock. Moving to the current state is
// a no-op.
func (sm *StateMgr) transition(next func(cur ControlState) (ControlState, bool)) (ControlState, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	cur := sm.State()
	to, ok := next(cur)
	if to == cur {
		return cur, nil
	}
	if !ok {
		return cur, ErrInvalidTransition
	}

	sm.state.Store(uint32(to))
	sm.cond.Broadcast()
	sm.logger.Debug("control state changed", "prev", cur, "next", to)

	for _, h := range sm.handlers {
		if h != nil {
			h(cur, to)
		}
	}

	return to, nil
}
