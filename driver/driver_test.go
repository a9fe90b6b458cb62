package driver

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"math"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-elite/logger"
	"github.com/arloliu/go-elite/value"
)

// fakePrimary accepts primary port connections and records every byte received.
type fakePrimary struct {
	ln  net.Listener
	mu  sync.Mutex
	buf bytes.Buffer
}

func newFakePrimary(t *testing.T) *fakePrimary {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	fp := &fakePrimary{ln: ln}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				b := make([]byte, 4096)
				for {
					n, err := conn.Read(b)
					fp.mu.Lock()
					fp.buf.Write(b[:n])
					fp.mu.Unlock()
					if err != nil {
						return
					}
				}
			}()
		}
	}()
	t.Cleanup(func() { _ = ln.Close() })

	return fp
}

func (fp *fakePrimary) port() int { return fp.ln.Addr().(*net.TCPAddr).Port }

func (fp *fakePrimary) received() string {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	return fp.buf.String()
}

// closedPort returns a local port nothing listens on.
func closedPort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	return port
}

func newTestDriver(t *testing.T, primaryPort int, opts ...Option) *Driver {
	t.Helper()

	base := []Option{
		WithLocalIP("127.0.0.1"),
		WithReversePort(0),
		WithTrajectoryPort(0),
		WithScriptCommandPort(0),
		WithScriptSenderPort(0),
		WithPrimaryPort(primaryPort),
		WithWriteTimeout(time.Second),
	}
	cfg, err := NewConfig("127.0.0.1", append(base, opts...)...)
	require.NoError(t, err)

	d, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	return d
}

// fakeScript plays the robot side of the control script sockets.
type fakeScript struct {
	reverse    net.Conn
	trajectory net.Conn
	command    net.Conn
}

func dialPort(t *testing.T, port int) net.Conn {
	t.Helper()

	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func connectScript(t *testing.T, d *Driver) *fakeScript {
	t.Helper()

	reverse, trajectory, command, _ := d.Ports()
	fs := &fakeScript{
		reverse:    dialPort(t, reverse),
		trajectory: dialPort(t, trajectory),
		command:    dialPort(t, command),
	}
	require.Eventually(t, func() bool {
		return d.IsRobotConnected() && d.State() == StateActive
	}, time.Second, time.Millisecond)

	return fs
}

func readWords(t *testing.T, conn net.Conn, n int) []int32 {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	b := make([]byte, n*4)
	_, err := io.ReadFull(conn, b)
	require.NoError(t, err)

	words, err := DecodeFrame(b)
	require.NoError(t, err)

	return words
}

func writeInt32(t *testing.T, conn net.Conn, v int32) {
	t.Helper()

	_, err := conn.Write(binary.BigEndian.AppendUint32(nil, uint32(v)))
	require.NoError(t, err)
}

func TestDriver_WritesFailWhenRobotNotConnected(t *testing.T) {
	require := require.New(t)

	d := newTestDriver(t, newFakePrimary(t).port())
	require.Equal(StateWaitingForRobotConnection, d.State())
	require.False(d.IsRobotConnected())

	require.ErrorIs(d.WriteServoj(value.Vector6d{}, 100*time.Millisecond, false, false), ErrRobotNotConnected)
	require.ErrorIs(d.WriteTrajectoryPoint(value.Vector6d{}, time.Second, 0, false), ErrRobotNotConnected)
	require.ErrorIs(d.ZeroFTSensor(), ErrRobotNotConnected)
	require.Equal(uint64(3), d.Metrics().WriteErrCount.Load())
}

func TestDriver_ServojFrames(t *testing.T) {
	require := require.New(t)

	d := newTestDriver(t, newFakePrimary(t).port())
	fs := connectScript(t, d)

	pos := value.Vector6d{0.1, -0.2, 0.3, -0.4, 0.5, -1.57}
	require.NoError(d.WriteServoj(pos, 100*time.Millisecond, false, false))
	words := readWords(t, fs.reverse, ReverseFrameWords)
	require.Equal([]int32{100, 100000, -200000, 300000, -400000, 500000, -1570000, int32(ModeServoj)}, words)

	require.NoError(d.WriteServoj(pos, 20*time.Millisecond, true, false))
	words = readWords(t, fs.reverse, ReverseFrameWords)
	require.Equal(int32(20), words[0])
	require.Equal(int32(ModePose), words[7])

	require.ErrorIs(d.WriteServoj(pos, 0, true, true), ErrInvalidArgument)
	require.ErrorIs(d.WriteServoj(pos, -time.Millisecond, false, false), ErrInvalidArgument)
	require.Equal(uint64(2), d.Metrics().ReverseSendCount.Load())
}

func TestDriver_ServojQueuePreservesOrder(t *testing.T) {
	require := require.New(t)

	d := newTestDriver(t, newFakePrimary(t).port())
	fs := connectScript(t, d)

	// the robot reads nothing until all points are written
	for i := 1; i <= 5; i++ {
		x := float64(i) / 10
		require.NoError(d.WriteServoj(value.Vector6d{x, x, x, x, x, x}, 50*time.Millisecond, false, true))
	}

	for i := 1; i <= 5; i++ {
		words := readWords(t, fs.reverse, ReverseFrameWords)
		require.Equal(int32(ModeServojQueue), words[7])
		require.InDelta(float64(i)/10, Unscale(words[1]), 1e-9, "point %d", i)
	}
}

func TestDriver_SpeedIdleFreedriveFrames(t *testing.T) {
	require := require.New(t)

	d := newTestDriver(t, newFakePrimary(t).port())
	fs := connectScript(t, d)

	tests := []struct {
		description string
		write       func() error
		timeoutMs   int32
		d0          int32
		mode        ControlMode
	}{
		{"speedl", func() error { return d.WriteSpeedl(value.Vector6d{0.05}, 200*time.Millisecond) }, 200, 50000, ModeSpeedl},
		{"speedj", func() error { return d.WriteSpeedj(value.Vector6d{-0.5}, 10*time.Millisecond) }, 10, -500000, ModeSpeedj},
		{"idle", func() error { return d.WriteIdle(0) }, 0, 0, ModeIdle},
		{"freedrive start", func() error { return d.WriteFreedrive(FreedriveStart, 100*time.Millisecond) }, 100, 1, ModeFreedrive},
		{"freedrive end", func() error { return d.WriteFreedrive(FreedriveEnd, 100*time.Millisecond) }, 100, -1, ModeFreedrive},
	}

	for _, tt := range tests {
		require.NoError(tt.write(), tt.description)
		words := readWords(t, fs.reverse, ReverseFrameWords)
		require.Equal(tt.timeoutMs, words[0], tt.description)
		require.Equal(tt.d0, words[1], tt.description)
		require.Equal(int32(tt.mode), words[7], tt.description)
	}

	require.ErrorIs(d.WriteFreedrive(FreedriveAction(2), 0), ErrInvalidArgument)
}

func TestDriver_AcksCounted(t *testing.T) {
	require := require.New(t)

	d := newTestDriver(t, newFakePrimary(t).port())
	fs := connectScript(t, d)

	writeInt32(t, fs.reverse, int32(ModeIdle))
	writeInt32(t, fs.reverse, int32(ModeServoj))
	require.Eventually(func() bool { return d.Metrics().AckCount.Load() == 2 }, time.Second, time.Millisecond)
	require.NotZero(d.Metrics().LastAckNanos.Load())
}

func TestDriver_TrajectorySuccess(t *testing.T) {
	require := require.New(t)

	d := newTestDriver(t, newFakePrimary(t).port())
	fs := connectScript(t, d)

	results := make(chan TrajectoryMotionResult, 1)
	d.SetTrajectoryResultCallback(func(r TrajectoryMotionResult) { results <- r })

	points := []value.Vector6d{{0, 0, 0, 0, 0, 0}, {0.1, 0, 0, 0, 0, 0}, {0.2, 0, 0, -1.57, 0, 0}}
	require.NoError(d.WriteTrajectoryControlAction(TrajectoryStart, len(points), 200*time.Millisecond))
	for _, p := range points {
		require.NoError(d.WriteTrajectoryPoint(p, 3*time.Second, 0.01, false))
	}
	require.NoError(d.WriteTrajectoryControlAction(TrajectoryNoop, 0, 200*time.Millisecond))

	words := readWords(t, fs.reverse, ReverseFrameWords)
	require.Equal([]int32{200, int32(TrajectoryStart), 3, 0, 0, 0, 0, int32(ModeTrajectory)}, words)
	words = readWords(t, fs.reverse, ReverseFrameWords)
	require.Equal(int32(TrajectoryNoop), words[1])

	for _, p := range points {
		words := readWords(t, fs.trajectory, TrajectoryFrameWords)
		require.InDelta(p[0], Unscale(words[0]), 1e-9)
		require.InDelta(p[3], Unscale(words[3]), 1e-9)
		require.Equal(int32(3000000), words[6])
		require.Equal(int32(10000), words[7])
		require.Equal(int32(0), words[8])
	}

	writeInt32(t, fs.trajectory, int32(TrajectorySuccess))

	select {
	case r := <-results:
		require.Equal(TrajectorySuccess, r)
	case <-time.After(2 * time.Second):
		require.Fail("no trajectory result")
	}
	require.Equal(uint64(3), d.Metrics().TrajectoryPointCount.Load())
	require.Equal(uint64(1), d.Metrics().TrajectoryResultCount.Load())
}

func TestDriver_TrajectoryCancel(t *testing.T) {
	require := require.New(t)

	d := newTestDriver(t, newFakePrimary(t).port())
	fs := connectScript(t, d)

	results := make(chan TrajectoryMotionResult, 1)
	d.SetTrajectoryResultCallback(func(r TrajectoryMotionResult) { results <- r })

	require.NoError(d.WriteTrajectoryControlAction(TrajectoryStart, 5, 200*time.Millisecond))
	require.NoError(d.WriteTrajectoryPoint(value.Vector6d{0.1}, time.Second, 0, true))
	require.NoError(d.WriteTrajectoryControlAction(TrajectoryCancel, 0, 200*time.Millisecond))

	readWords(t, fs.reverse, ReverseFrameWords)
	words := readWords(t, fs.reverse, ReverseFrameWords)
	require.Equal(int32(TrajectoryCancel), words[1])
	words = readWords(t, fs.trajectory, TrajectoryFrameWords)
	require.Equal(int32(1), words[8])

	writeInt32(t, fs.trajectory, int32(TrajectoryCanceled))

	select {
	case r := <-results:
		require.Equal(TrajectoryCanceled, r)
	case <-time.After(2 * time.Second):
		require.Fail("no trajectory result")
	}

	require.ErrorIs(d.WriteTrajectoryControlAction(TrajectoryStart, -1, 0), ErrInvalidArgument)
	require.ErrorIs(d.WriteTrajectoryControlAction(TrajectoryControlAction(5), 1, 0), ErrInvalidArgument)
}

func TestDriver_ScriptCommands(t *testing.T) {
	require := require.New(t)

	d := newTestDriver(t, newFakePrimary(t).port())
	fs := connectScript(t, d)

	require.NoError(d.ZeroFTSensor())
	words := readWords(t, fs.command, ScriptCommandFrameWords)
	require.Equal(int32(CommandZeroFTSensor), words[0])
	require.Equal(make([]int32, ScriptCommandFrameWords-1), words[1:])

	require.NoError(d.SetPayload(1.5, mgl64.Vec3{0.1, 0.2, 0.3}))
	words = readWords(t, fs.command, ScriptCommandFrameWords)
	require.Equal([]int32{int32(CommandSetPayload), 1500000, 100000, 200000, 300000, 0}, words[:6])

	require.NoError(d.SetToolVoltage(ToolVoltage24V))
	words = readWords(t, fs.command, ScriptCommandFrameWords)
	require.Equal([]int32{int32(CommandSetToolVoltage), 24000000}, words[:2])

	frame := value.Vector6d{0, 0, 0, 0, 0, 0}
	wrench := value.Vector6d{0, 0, -10, 0, 0, 0}
	limits := value.Vector6d{0.1, 0.1, 0.15, 0.3, 0.3, 0.3}
	require.NoError(d.StartForceMode(frame, [6]bool{false, false, true}, wrench, ForceModeTCP, limits))
	words = readWords(t, fs.command, ScriptCommandFrameWords)
	require.Equal(int32(CommandStartForceMode), words[0])
	require.Equal([]int32{0, 0, 1, 0, 0, 0}, words[7:13])
	require.Equal(int32(-10000000), words[15])
	require.Equal(int32(ForceModeTCP), words[19])
	require.Equal(int32(150000), words[22])

	require.NoError(d.EndForceMode())
	words = readWords(t, fs.command, ScriptCommandFrameWords)
	require.Equal(int32(CommandEndForceMode), words[0])

	require.ErrorIs(d.SetToolVoltage(ToolVoltage(5)), ErrInvalidArgument)
	require.ErrorIs(d.SetPayload(-1, mgl64.Vec3{}), ErrInvalidArgument)
	require.ErrorIs(d.StartForceMode(frame, [6]bool{}, wrench, ForceMode(9), limits), ErrInvalidArgument)
	require.Equal(uint64(5), d.Metrics().ScriptCommandCount.Load())
}

func TestDriver_StopControlTimeout(t *testing.T) {
	require := require.New(t)

	ml := logger.NewMockLogger().AllowAll()
	d := newTestDriver(t, newFakePrimary(t).port(), WithLogger(ml))
	fs := connectScript(t, d)

	start := time.Now()
	err := d.StopControl(time.Millisecond)
	require.ErrorIs(err, ErrStopTimeout)
	require.Less(time.Since(start), time.Second)
	require.GreaterOrEqual(time.Since(start), MinStopWait)
	require.Equal(StateStopping, d.State())
	ml.AssertCalled(t, "Warn", "stop wait below minimum, clamped", mock.Anything)
	ml.AssertCalled(t, "Warn", "robot did not stop in time", mock.Anything)

	words := readWords(t, fs.reverse, ReverseFrameWords)
	require.Equal(int32(ModeStopped), words[7])

	require.NoError(fs.reverse.Close())
	require.Eventually(func() bool { return d.State() == StateIdle }, time.Second, time.Millisecond)
}

func TestDriver_StopControl(t *testing.T) {
	require := require.New(t)

	d := newTestDriver(t, newFakePrimary(t).port())
	fs := connectScript(t, d)

	stopped := make(chan []int32, 1)
	go func() {
		b := make([]byte, ReverseFrameWords*4)
		_ = fs.reverse.SetReadDeadline(time.Now().Add(2 * time.Second))
		if _, err := io.ReadFull(fs.reverse, b); err == nil {
			words, _ := DecodeFrame(b)
			stopped <- words
		}
		_ = fs.reverse.Close()
	}()

	require.NoError(d.StopControl(2 * time.Second))
	require.Equal(StateIdle, d.State())
	require.False(d.IsRobotConnected())
	require.Equal(int32(ModeStopped), (<-stopped)[7])

	// nothing to stop anymore
	require.NoError(d.StopControl(10 * time.Millisecond))

	// a new script run is accepted again
	connectScript(t, d)
}

func TestDriver_RobotDisconnectDetected(t *testing.T) {
	require := require.New(t)

	d := newTestDriver(t, newFakePrimary(t).port())
	fs := connectScript(t, d)

	require.NoError(fs.reverse.Close())
	require.Eventually(func() bool { return !d.IsRobotConnected() }, time.Second, time.Millisecond)
	require.Equal(StateWaitingForRobotConnection, d.State())
	require.ErrorIs(d.WriteIdle(0), ErrRobotNotConnected)
	require.Equal(uint64(1), d.Metrics().RobotDisconnectCount.Load())
}

func TestDriver_ScriptSender(t *testing.T) {
	require := require.New(t)

	d := newTestDriver(t, newFakePrimary(t).port())
	expected, err := d.ExternalControlScript()
	require.NoError(err)

	reverse, trajectory, _, sender := d.Ports()
	require.Contains(expected, `global SERVER_IP = "127.0.0.1"`)
	require.Contains(expected, "global REVERSE_PORT = "+strconv.Itoa(reverse))
	require.Contains(expected, "global TRAJECTORY_PORT = "+strconv.Itoa(trajectory))
	require.NotContains(expected, "{{")

	conn := dialPort(t, sender)
	_, err = conn.Write([]byte(RequestProgram + "\n"))
	require.NoError(err)

	require.NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	got := make([]byte, len(expected))
	_, err = io.ReadFull(conn, got)
	require.NoError(err)
	require.Equal(expected, string(got))
	require.Equal(uint64(1), d.Metrics().ScriptRequestCount.Load())
}

func TestDriver_Headless(t *testing.T) {
	require := require.New(t)

	fp := newFakePrimary(t)
	d := newTestDriver(t, fp.port(), WithHeadless(true))

	expected, err := d.ExternalControlScript()
	require.NoError(err)
	require.Eventually(func() bool { return strings.Contains(fp.received(), expected) }, 2*time.Second, 5*time.Millisecond)

	require.NoError(d.SendScript("textmsg(\"hello\")"))
	require.Eventually(func() bool { return strings.Contains(fp.received(), "textmsg(\"hello\")\n") }, 2*time.Second, 5*time.Millisecond)
}

func TestDriver_HeadlessRequiresPrimary(t *testing.T) {
	cfg, err := NewConfig("127.0.0.1",
		WithLocalIP("127.0.0.1"),
		WithReversePort(0),
		WithTrajectoryPort(0),
		WithScriptCommandPort(0),
		WithScriptSenderPort(0),
		WithPrimaryPort(closedPort(t)),
		WithHeadless(true),
	)
	require.NoError(t, err)

	_, err = New(context.Background(), cfg)
	require.Error(t, err)
}

func TestDriver_PrimaryNotConnected(t *testing.T) {
	require := require.New(t)

	d := newTestDriver(t, closedPort(t))
	require.ErrorIs(d.SendScript("textmsg(1)"), ErrPrimaryNotConnected)
	require.ErrorIs(d.SendExternalControlScript(), ErrPrimaryNotConnected)

	// the configured local ip is enough to generate the script
	_, err := d.ExternalControlScript()
	require.NoError(err)
}

func TestDriver_Close(t *testing.T) {
	require := require.New(t)

	d := newTestDriver(t, newFakePrimary(t).port())
	connectScript(t, d)

	require.NoError(d.Close())
	require.NoError(d.Close())
	require.Equal(StateIdle, d.State())
	require.False(d.IsRobotConnected())
	require.ErrorIs(d.WriteIdle(0), ErrDriverClosed)
	require.ErrorIs(d.PrimaryReconnect(context.Background()), ErrDriverClosed)
}

func TestDriver_NewNilConfig(t *testing.T) {
	_, err := New(context.Background(), nil)
	require.ErrorIs(t, err, ErrConfigNil)
}

func TestDriver_RejectsUnencodableValues(t *testing.T) {
	require := require.New(t)

	d := newTestDriver(t, newFakePrimary(t).port())
	fs := connectScript(t, d)

	require.ErrorIs(d.WriteTrajectoryPoint(value.Vector6d{}, 50*time.Minute, 0, false), ErrInvalidArgument)
	require.ErrorIs(d.WriteServoj(value.Vector6d{math.NaN()}, 0, false, false), ErrInvalidArgument)
	require.ErrorIs(d.WriteSpeedl(value.Vector6d{math.Inf(1)}, 0), ErrInvalidArgument)
	require.ErrorIs(d.StartForceMode(value.Vector6d{}, [6]bool{}, value.Vector6d{5000}, ForceModeFix, value.Vector6d{}), ErrInvalidArgument)
	require.ErrorIs(d.SetPayload(1, mgl64.Vec3{3000, 0, 0}), ErrInvalidArgument)

	require.Zero(d.Metrics().TrajectoryPointCount.Load())
	require.Zero(d.Metrics().ReverseSendCount.Load())
	require.Zero(d.Metrics().ScriptCommandCount.Load())
	require.Zero(d.Metrics().WriteErrCount.Load())
	require.True(d.IsRobotConnected())

	// the next valid point still goes through
	require.NoError(d.WriteTrajectoryPoint(value.Vector6d{0.1}, 30*time.Minute, 0, false))
	words := readWords(t, fs.trajectory, TrajectoryFrameWords)
	require.Equal(int32(1800000000), words[6])
}
