// Package driver implements the reverse control channel of an Elite robot.
//
// The driver listens on four ports. The robot fetches the generated control script from the script sender
// port (or receives it over the primary port in headless mode); the running script then connects back to
// the reverse port for cyclic motion commands, the trajectory port for trajectory forwarding and the script
// command port for one-shot commands such as force mode.
//
// Writes fail fast with ErrRobotNotConnected until the script has connected. A failed write drops the
// connection, so IsRobotConnected turns false as soon as the socket is dead. The driver never reconnects
// on its own.
package driver

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-elite/internal/pool"
	"github.com/arloliu/go-elite/internal/queue"
	"github.com/arloliu/go-elite/internal/task"
	"github.com/arloliu/go-elite/internal/tcpserver"
	"github.com/arloliu/go-elite/logger"
	"github.com/arloliu/go-elite/primary"
	"github.com/arloliu/go-elite/value"
)

// Driver is the reverse control channel of one robot.
type Driver struct {
	cfg      *Config
	logger   logger.Logger
	metrics  Metrics
	stateMgr *StateMgr
	taskMgr  *task.Manager
	closed   atomic.Bool

	scriptTemplate string

	reverse       *tcpserver.Server
	trajectory    *tcpserver.Server
	scriptCommand *tcpserver.Server
	scriptSender  *tcpserver.Server

	primary     *primary.Client
	trajResults *queue.Dispatcher[TrajectoryMotionResult]
}

// New starts the driver servers and connects the primary port.
//
// A primary port connection failure is fatal only in headless mode, where the control script is pushed
// over it; otherwise it is logged and can be retried with PrimaryReconnect.
func New(ctx context.Context, cfg *Config) (*Driver, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}

	tmpl, err := loadScriptTemplate(cfg.scriptFilePath)
	if err != nil {
		return nil, err
	}

	l := cfg.logger.With("component", "driver", "robot", cfg.robotIP)

	primaryClient, err := primary.NewClient(primary.WithLogger(cfg.logger))
	if err != nil {
		return nil, err
	}

	d := &Driver{
		cfg:            cfg,
		logger:         l,
		stateMgr:       NewStateMgr(l),
		taskMgr:        task.NewManager(ctx, l),
		scriptTemplate: tmpl,
		primary:        primaryClient,
		trajResults:    queue.NewDispatcher[TrajectoryMotionResult](nil),
	}

	sender := &scriptSender{
		script:       d.ExternalControlScript,
		writeTimeout: cfg.writeTimeout,
		logger:       l,
		metrics:      &d.metrics,
	}

	common := []tcpserver.Option{tcpserver.WithWriteTimeout(cfg.writeTimeout), tcpserver.WithLogger(l)}
	d.reverse = tcpserver.New(ctx, "reverse", cfg.localIP, cfg.reversePort, append(common,
		tcpserver.WithReadFunc(d.readAck),
		tcpserver.WithConnHandler(d.robotConnected),
		tcpserver.WithDisconnectHandler(d.robotDisconnected),
	)...)
	d.trajectory = tcpserver.New(ctx, "trajectory", cfg.localIP, cfg.trajectoryPort, append(common,
		tcpserver.WithReadFunc(d.readTrajectoryResult),
	)...)
	d.scriptCommand = tcpserver.New(ctx, "script-command", cfg.localIP, cfg.scriptCommandPort, common...)
	d.scriptSender = tcpserver.New(ctx, "script-sender", cfg.localIP, cfg.scriptSenderPort, append(common,
		tcpserver.WithReadFunc(sender.read),
	)...)

	for _, srv := range d.servers() {
		if err := srv.Start(); err != nil {
			d.closeServers()
			return nil, err
		}
	}

	if err := d.taskMgr.Start("driver-trajectory-result", func() bool {
		d.trajResults.Run(d.taskMgr.Context())
		return false
	}); err != nil {
		d.closeServers()
		return nil, err
	}

	_ = d.stateMgr.ToWaitingForRobotConnection()

	if err := d.primary.Connect(ctx, cfg.robotIP, cfg.primaryPort); err != nil {
		if cfg.headless {
			_ = d.Close()
			return nil, fmt.Errorf("connect primary port: %w", err)
		}
		d.logger.Warn("failed to connect primary port", "error", err)
	}

	if cfg.headless {
		if err := d.SendExternalControlScript(); err != nil {
			_ = d.Close()
			return nil, err
		}
	}

	d.logger.Info("driver started",
		"reverse_port", d.reverse.Port(),
		"trajectory_port", d.trajectory.Port(),
		"script_command_port", d.scriptCommand.Port(),
		"script_sender_port", d.scriptSender.Port(),
		"headless", cfg.headless,
	)

	return d, nil
}

func (d *Driver) servers() []*tcpserver.Server {
	return []*tcpserver.Server{d.reverse, d.trajectory, d.scriptCommand, d.scriptSender}
}

func (d *Driver) closeServers() {
	for _, srv := range d.servers() {
		_ = srv.Close()
	}
}

// Config returns the driver configuration.
func (d *Driver) Config() *Config { return d.cfg }

// Metrics returns the driver counters.
func (d *Driver) Metrics() *Metrics { return &d.metrics }

// State returns the control session state.
func (d *Driver) State() ControlState { return d.stateMgr.State() }

// Ports returns the bound reverse, trajectory, script command and script sender ports.
func (d *Driver) Ports() (reverse, trajectory, scriptCommand, scriptSender int) {
	return d.reverse.Port(), d.trajectory.Port(), d.scriptCommand.Port(), d.scriptSender.Port()
}

// IsRobotConnected reports whether the control script is connected to the reverse, trajectory and script
// command ports.
func (d *Driver) IsRobotConnected() bool {
	return d.reverse.IsConnected() && d.trajectory.IsConnected() && d.scriptCommand.IsConnected()
}

// SetTrajectoryResultCallback sets the callback receiving trajectory results, replacing any previous one.
// It runs on a dedicated goroutine and may call back into the driver.
func (d *Driver) SetTrajectoryResultCallback(cb func(TrajectoryMotionResult)) {
	d.trajResults.SetHandler(cb)
}

func (d *Driver) server(ch Channel) *tcpserver.Server {
	switch ch {
	case ChannelTrajectory:
		return d.trajectory
	case ChannelScriptCommand:
		return d.scriptCommand
	default:
		return d.reverse
	}
}

// Write sends one control packet. timeout is the read timeout the robot applies to the next reverse port
// frame; zero makes the robot wait indefinitely. The other channels ignore it.
func (d *Driver) Write(pkt ControlPacket, timeout time.Duration) error {
	if d.closed.Load() {
		return ErrDriverClosed
	}
	if timeout < 0 {
		return fmt.Errorf("%w: negative timeout %v", ErrInvalidArgument, timeout)
	}
	if err := pkt.Validate(); err != nil {
		return err
	}

	ch := pkt.Channel()

	buf := pool.GetBuffer()
	*buf = pkt.AppendFrame(*buf, timeout)
	err := d.server(ch).Write(*buf)
	pool.PutBuffer(buf)

	if err != nil {
		d.metrics.incWriteErrCount()
		if errors.Is(err, tcpserver.ErrNoClient) {
			return fmt.Errorf("%s port: %w", ch, ErrRobotNotConnected)
		}
		return err
	}

	switch ch {
	case ChannelReverse:
		d.metrics.incReverseSendCount()
	case ChannelTrajectory:
		d.metrics.incTrajectoryPointCount()
	case ChannelScriptCommand:
		d.metrics.incScriptCommandCount()
	}

	if d.logger.Level() == logger.DebugLevel {
		d.logger.Debug("control packet sent", "channel", ch, "packet", fmt.Sprintf("%T", pkt))
	}

	return nil
}

// WriteServoj sends a servo target. In queue mode the robot buffers the points and consumes them in order at
// its own rate; queue mode only takes joint positions.
func (d *Driver) WriteServoj(pos value.Vector6d, timeout time.Duration, cartesian bool, queueMode bool) error {
	return d.Write(Servo{Positions: pos, Cartesian: cartesian, Queue: queueMode}, timeout)
}

// WriteSpeedl sends a TCP velocity. The robot decelerates to a stop when no command follows within timeout.
func (d *Driver) WriteSpeedl(vel value.Vector6d, timeout time.Duration) error {
	return d.Write(Speed{Velocities: vel, Linear: true}, timeout)
}

// WriteSpeedj sends joint velocities. The robot decelerates to a stop when no command follows within timeout.
func (d *Driver) WriteSpeedj(vel value.Vector6d, timeout time.Duration) error {
	return d.Write(Speed{Velocities: vel}, timeout)
}

// WriteTrajectoryPoint sends one point of the trajectory opened by WriteTrajectoryControlAction.
func (d *Driver) WriteTrajectoryPoint(pos value.Vector6d, pointTime time.Duration, blendRadius float64, cartesian bool) error {
	return d.Write(TrajectoryPoint{
		Positions:   pos,
		Time:        pointTime.Seconds(),
		BlendRadius: blendRadius,
		Cartesian:   cartesian,
	}, 0)
}

// WriteTrajectoryControlAction starts a trajectory of pointCount points, keeps it alive or cancels it.
// The outcome is reported to the trajectory result callback.
func (d *Driver) WriteTrajectoryControlAction(action TrajectoryControlAction, pointCount int, timeout time.Duration) error {
	if pointCount < 0 || pointCount > math.MaxInt32 {
		return fmt.Errorf("%w: point count %d", ErrInvalidArgument, pointCount)
	}

	return d.Write(TrajectoryControl{Action: action, PointCount: int32(pointCount)}, timeout)
}

// WriteIdle keeps the control script alive without motion.
func (d *Driver) WriteIdle(timeout time.Duration) error {
	return d.Write(Idle{}, timeout)
}

// WriteFreedrive starts, keeps alive or ends freedrive mode.
func (d *Driver) WriteFreedrive(action FreedriveAction, timeout time.Duration) error {
	return d.Write(Freedrive{Action: action}, timeout)
}

// ZeroFTSensor tares the force/torque sensor.
func (d *Driver) ZeroFTSensor() error {
	return d.Write(ZeroFTSensor{}, 0)
}

// SetPayload sets the payload mass in kg and its centre of gravity in m.
func (d *Driver) SetPayload(mass float64, cog value.Vector3d) error {
	return d.Write(SetPayload{Mass: mass, CoG: cog}, 0)
}

// SetToolVoltage sets the tool supply voltage.
func (d *Driver) SetToolVoltage(v ToolVoltage) error {
	return d.Write(SetToolVoltage{Voltage: v}, 0)
}

// StartForceMode enables force mode. selection marks the compliant axes of frame; wrench and limits are
// ignored on the other axes.
func (d *Driver) StartForceMode(frame value.Vector6d, selection [6]bool, wrench value.Vector6d, mode ForceMode, limits value.Vector6d) error {
	return d.Write(ForceModeStart{Frame: frame, Selection: selection, Wrench: wrench, Mode: mode, Limits: limits}, 0)
}

// EndForceMode disables force mode.
func (d *Driver) EndForceMode() error {
	return d.Write(ForceModeEnd{}, 0)
}

// StopControl tells the control script to stop and waits up to wait for the robot to disconnect.
// A wait shorter than MinStopWait is raised to MinStopWait. It returns ErrStopTimeout when the robot is
// still connected after wait.
func (d *Driver) StopControl(wait time.Duration) error {
	if wait < MinStopWait {
		d.logger.Warn("stop wait below minimum, clamped", "wait", wait, "min", MinStopWait)
		wait = MinStopWait
	}

	if err := d.stateMgr.ToStopping(); err != nil {
		if !d.reverse.IsConnected() {
			return nil
		}
		return err
	}

	if err := d.Write(Stop{}, 0); err != nil {
		if errors.Is(err, ErrRobotNotConnected) {
			return nil
		}
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()

	if err := d.stateMgr.WaitState(ctx, StateIdle); err != nil {
		d.logger.Warn("robot did not stop in time", "wait", wait)
		return fmt.Errorf("%w after %v", ErrStopTimeout, wait)
	}

	return nil
}

// ExternalControlScript returns the control script generated for the current configuration. Without a
// configured local IP, the primary port connection must be up to learn the address the robot reaches.
func (d *Driver) ExternalControlScript() (string, error) {
	ip := d.cfg.localIP
	if ip == "" {
		ip = d.primary.LocalIP()
	}
	if ip == "" {
		return "", fmt.Errorf("resolve local ip for control script: %w", ErrPrimaryNotConnected)
	}

	return GenerateScript(d.scriptTemplate, ScriptParams{
		ServerIP:            ip,
		ReversePort:         d.reverse.Port(),
		TrajectoryPort:      d.trajectory.Port(),
		ScriptCommandPort:   d.scriptCommand.Port(),
		ServojTime:          d.cfg.servojTime,
		ServojLookaheadTime: d.cfg.servojLookaheadTime,
		ServojGain:          d.cfg.servojGain,
		StopjAcc:            d.cfg.stopjAcc,
		QueuePreRecvSize:    d.cfg.servojQueuePreRecvSize,
		QueuePreRecvTimeout: d.cfg.servojQueuePreRecvTimeout,
	}), nil
}

// SendScript sends a script program over the primary port.
func (d *Driver) SendScript(script string) error {
	if err := d.primary.SendScript(script); err != nil {
		if errors.Is(err, primary.ErrNotConnected) {
			return ErrPrimaryNotConnected
		}
		return err
	}

	return nil
}

// SendExternalControlScript sends the generated control script over the primary port.
func (d *Driver) SendExternalControlScript() error {
	script, err := d.ExternalControlScript()
	if err != nil {
		return err
	}

	return d.SendScript(script)
}

// GetPrimaryPackage waits up to timeout for the next primary port sub-package of pkg's type.
func (d *Driver) GetPrimaryPackage(pkg primary.Package, timeout time.Duration) error {
	err := d.primary.GetPackage(pkg, timeout)
	if errors.Is(err, primary.ErrNotConnected) {
		return ErrPrimaryNotConnected
	}

	return err
}

// PrimaryReconnect drops and re-establishes the primary port connection.
func (d *Driver) PrimaryReconnect(ctx context.Context) error {
	if d.closed.Load() {
		return ErrDriverClosed
	}

	_ = d.primary.Disconnect()

	return d.primary.Connect(ctx, d.cfg.robotIP, d.cfg.primaryPort)
}

// RegisterRobotExceptionCallback forwards primary port robot exceptions to cb.
func (d *Driver) RegisterRobotExceptionCallback(cb func(primary.RobotException)) {
	d.primary.RegisterRobotExceptionCallback(cb)
}

// Close closes every server and the primary port, then waits for all goroutines. Once it returns the
// trajectory result callback is not called again. It does not send a stop; call StopControl first for an
// orderly shutdown.
func (d *Driver) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}

	d.taskMgr.Stop()
	d.closeServers()
	err := d.primary.Disconnect()
	d.taskMgr.Wait()
	d.trajResults.Discard()
	d.stateMgr.ToIdle()

	d.logger.Info("driver closed")

	return err
}

func readInt32(conn net.Conn) (int32, error) {
	var b [4]byte
	if _, err := io.ReadFull(conn, b[:]); err != nil {
		return 0, err
	}

	return int32(binary.BigEndian.Uint32(b[:])), nil
}

// readAck consumes the acknowledgements of the reverse port.
func (d *Driver) readAck(conn net.Conn) error {
	mode, err := readInt32(conn)
	if err != nil {
		return err
	}
	d.metrics.ack(time.Now().UnixNano())

	if d.logger.Level() == logger.DebugLevel {
		d.logger.Debug("reverse ack", "mode", ControlMode(mode))
	}

	return nil
}

// readTrajectoryResult forwards trajectory results to the result callback.
func (d *Driver) readTrajectoryResult(conn net.Conn) error {
	v, err := readInt32(conn)
	if err != nil {
		return err
	}

	result := TrajectoryMotionResult(v)
	d.metrics.incTrajectoryResultCount()
	d.logger.Info("trajectory finished", "result", result)
	d.trajResults.Post(result)

	return nil
}

func (d *Driver) robotConnected(conn net.Conn) {
	d.metrics.incRobotConnectCount()
	if err := d.stateMgr.ToActive(); err != nil {
		d.logger.Warn("robot connected while stopping", "remote", conn.RemoteAddr())
	}
}

func (d *Driver) robotDisconnected(conn net.Conn, reason error) {
	d.metrics.incRobotDisconnectCount()
	state := d.stateMgr.ToRobotDisconnected()
	d.logger.Info("robot disconnected", "remote", conn.RemoteAddr(), "reason", reason, "state", state)
}
