package driver

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStateMgr_Transitions(t *testing.T) {
	require := require.New(t)

	var changes atomic.Int32
	sm := NewStateMgr(nil, func(prev, next ControlState) { changes.Add(1) })
	require.Equal(StateIdle, sm.State())

	require.ErrorIs(sm.ToStopping(), ErrInvalidTransition)
	require.NoError(sm.ToWaitingForRobotConnection())
	require.NoError(sm.ToActive())
	require.NoError(sm.ToActive())
	require.NoError(sm.ToStopping())
	require.ErrorIs(sm.ToWaitingForRobotConnection(), ErrInvalidTransition)
	require.ErrorIs(sm.ToActive(), ErrInvalidTransition)

	require.Equal(StateIdle, sm.ToRobotDisconnected())
	require.NoError(sm.ToActive())
	require.Equal(StateWaitingForRobotConnection, sm.ToRobotDisconnected())
	require.Equal(StateWaitingForRobotConnection, sm.ToRobotDisconnected())

	sm.ToIdle()
	require.Equal(StateIdle, sm.State())
	require.Equal(int32(7), changes.Load())
}

func TestStateMgr_WaitState(t *testing.T) {
	require := require.New(t)

	sm := NewStateMgr(nil)
	require.NoError(sm.WaitState(context.Background(), StateIdle))

	require.NoError(sm.ToActive())
	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = sm.ToStopping()
		sm.ToRobotDisconnected()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(sm.WaitState(ctx, StateIdle))

	require.NoError(sm.ToActive())
	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(sm.WaitState(ctx, StateIdle), context.DeadlineExceeded)
}

func TestControlState_String(t *testing.T) {
	require.Equal(t, "waiting-for-robot-connection", StateWaitingForRobotConnection.String())
	require.Equal(t, "unknown", ControlState(99).String())
}
