package driver

import (
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v2"

	"github.com/arloliu/go-elite/logger"
	"github.com/arloliu/go-elite/primary"
)

// Default ports and timing of the external control script.
const (
	DefaultReversePort       = 50001
	DefaultScriptSenderPort  = 50002
	DefaultTrajectoryPort    = 50003
	DefaultScriptCommandPort = 50004

	DefaultServojTime          = 8 * time.Millisecond
	DefaultServojLookaheadTime = 80 * time.Millisecond
	DefaultServojGain          = 300
	DefaultStopjAcc            = 8.0

	DefaultServojQueuePreRecvSize    = 10
	DefaultServojQueuePreRecvTimeout = 40 * time.Millisecond

	// MinStopWait is the shortest wait StopControl accepts.
	MinStopWait = 5 * time.Millisecond
	// DefaultStopWait is the StopControl wait used by Close.
	DefaultStopWait = 10 * time.Second
)

// Config holds the configuration of a Driver.
type Config struct {
	// robotIP is the address of the robot controller.
	robotIP string

	// localIP is the address the driver servers bind to and the robot script connects back to. Empty binds
	// every interface and tells the script the local address of the primary port connection.
	localIP string

	// headless pushes the control script over the primary port on start instead of waiting for the
	// robot to request it from the script sender port.
	headless bool

	// scriptFilePath is a control script template on disk. Empty selects the built-in template.
	scriptFilePath string

	reversePort       int
	scriptSenderPort  int
	trajectoryPort    int
	scriptCommandPort int
	primaryPort       int

	// servojTime is the servoj blocking time per cycle. Defaults to 8ms.
	servojTime time.Duration
	// servojLookaheadTime smooths servoj trajectories. It should be between 30ms and 200ms. Defaults to 80ms.
	servojLookaheadTime time.Duration
	// servojGain is the servoj proportional gain. It should be between 100 and 2000. Defaults to 300.
	servojGain int
	// stopjAcc is the joint deceleration in rad/s^2 used when the script stops. Defaults to 8.
	stopjAcc float64

	// servojQueuePreRecvSize is how many queue mode points the robot buffers before moving. Defaults to 10.
	servojQueuePreRecvSize int
	// servojQueuePreRecvTimeout bounds the wait for the queue pre-receive. Defaults to 40ms.
	servojQueuePreRecvTimeout time.Duration

	// writeTimeout bounds every socket write to the robot script. Defaults to 100ms.
	writeTimeout time.Duration

	logger logger.Logger
}

// NewConfig creates a driver configuration for the robot at robotIP with defaults, then applies opts in order.
func NewConfig(robotIP string, opts ...Option) (*Config, error) {
	cfg := &Config{
		reversePort:               DefaultReversePort,
		scriptSenderPort:          DefaultScriptSenderPort,
		trajectoryPort:            DefaultTrajectoryPort,
		scriptCommandPort:         DefaultScriptCommandPort,
		primaryPort:               primary.DefaultPort,
		servojTime:                DefaultServojTime,
		servojLookaheadTime:       DefaultServojLookaheadTime,
		servojGain:                DefaultServojGain,
		stopjAcc:                  DefaultStopjAcc,
		servojQueuePreRecvSize:    DefaultServojQueuePreRecvSize,
		servojQueuePreRecvTimeout: DefaultServojQueuePreRecvTimeout,
		writeTimeout:              100 * time.Millisecond,
		logger:                    logger.GetLogger(),
	}

	if err := withRobotIP(robotIP).apply(cfg); err != nil {
		return cfg, err
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

func (cfg *Config) RobotIP() string                          { return cfg.robotIP }
func (cfg *Config) LocalIP() string                          { return cfg.localIP }
func (cfg *Config) Headless() bool                           { return cfg.headless }
func (cfg *Config) ScriptFilePath() string                   { return cfg.scriptFilePath }
func (cfg *Config) ReversePort() int                         { return cfg.reversePort }
func (cfg *Config) ScriptSenderPort() int                    { return cfg.scriptSenderPort }
func (cfg *Config) TrajectoryPort() int                      { return cfg.trajectoryPort }
func (cfg *Config) ScriptCommandPort() int                   { return cfg.scriptCommandPort }
func (cfg *Config) PrimaryPort() int                         { return cfg.primaryPort }
func (cfg *Config) ServojTime() time.Duration                { return cfg.servojTime }
func (cfg *Config) ServojLookaheadTime() time.Duration       { return cfg.servojLookaheadTime }
func (cfg *Config) ServojGain() int                          { return cfg.servojGain }
func (cfg *Config) StopjAcc() float64                        { return cfg.stopjAcc }
func (cfg *Config) ServojQueuePreRecvSize() int              { return cfg.servojQueuePreRecvSize }
func (cfg *Config) ServojQueuePreRecvTimeout() time.Duration { return cfg.servojQueuePreRecvTimeout }
func (cfg *Config) WriteTimeout() time.Duration              { return cfg.writeTimeout }

// Option represents a functional option for configuring a Config.
type Option interface {
	apply(*Config) error
}

type optFunc struct {
	name      string
	applyFunc func(*Config) error
}

func (o *optFunc) apply(cfg *Config) error {
	if cfg == nil {
		return ErrConfigNil
	}

	return o.applyFunc(cfg)
}

func newOptFunc(name string, f func(*Config) error) *optFunc {
	return &optFunc{name: name, applyFunc: f}
}

func validHost(host string) bool {
	if net.ParseIP(host) != nil {
		return true
	}
	host = strings.Trim(host, ".")
	if host == "" {
		return false
	}
	for _, r := range host {
		if !(r == '-' || r == '.' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}

	return true
}

func withRobotIP(host string) Option {
	return newOptFunc("withRobotIP", func(cfg *Config) error {
		if !validHost(host) {
			return fmt.Errorf("invalid robot ip %q", host)
		}
		cfg.robotIP = host

		return nil
	})
}

func portOption(name string, port int, set func(*Config, int)) Option {
	return newOptFunc(name, func(cfg *Config) error {
		if port < 0 || port > 65535 {
			return fmt.Errorf("%s: port %d is out of range [0, 65535]", name, port)
		}
		set(cfg, port)

		return nil
	})
}

// WithLocalIP sets the address the driver servers bind to and the robot script connects back to.
// By default the servers bind every interface and the script uses the local address of the primary port
// connection.
func WithLocalIP(ip string) Option {
	return newOptFunc("WithLocalIP", func(cfg *Config) error {
		if ip != "" && net.ParseIP(ip) == nil {
			return fmt.Errorf("invalid local ip %q", ip)
		}
		cfg.localIP = ip

		return nil
	})
}

// WithHeadless enables headless mode: the control script is sent over the primary port on start.
func WithHeadless(val bool) Option {
	return newOptFunc("WithHeadless", func(cfg *Config) error {
		cfg.headless = val
		return nil
	})
}

// WithScriptFile sets the control script template path. The file must exist.
func WithScriptFile(path string) Option {
	return newOptFunc("WithScriptFile", func(cfg *Config) error {
		if path != "" {
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("script file: %w", err)
			}
		}
		cfg.scriptFilePath = path

		return nil
	})
}

// WithReversePort sets the reverse port. Zero picks a free port.
func WithReversePort(port int) Option {
	return portOption("WithReversePort", port, func(cfg *Config, p int) { cfg.reversePort = p })
}

// WithScriptSenderPort sets the script sender port. Zero picks a free port.
func WithScriptSenderPort(port int) Option {
	return portOption("WithScriptSenderPort", port, func(cfg *Config, p int) { cfg.scriptSenderPort = p })
}

// WithTrajectoryPort sets the trajectory forwarding port. Zero picks a free port.
func WithTrajectoryPort(port int) Option {
	return portOption("WithTrajectoryPort", port, func(cfg *Config, p int) { cfg.trajectoryPort = p })
}

// WithScriptCommandPort sets the script command port. Zero picks a free port.
func WithScriptCommandPort(port int) Option {
	return portOption("WithScriptCommandPort", port, func(cfg *Config, p int) { cfg.scriptCommandPort = p })
}

// WithPrimaryPort sets the robot primary port.
func WithPrimaryPort(port int) Option {
	return portOption("WithPrimaryPort", port, func(cfg *Config, p int) { cfg.primaryPort = p })
}

// WithServojTime sets the servoj blocking time. It should be between 1ms and 1s.
func WithServojTime(d time.Duration) Option {
	return newOptFunc("WithServojTime", func(cfg *Config) error {
		if d < time.Millisecond || d > time.Second {
			return errors.New("servoj time out of range [1ms, 1s]")
		}
		cfg.servojTime = d

		return nil
	})
}

// WithServojLookaheadTime sets the servoj lookahead time. It should be between 30ms and 200ms.
func WithServojLookaheadTime(d time.Duration) Option {
	return newOptFunc("WithServojLookaheadTime", func(cfg *Config) error {
		if d < 30*time.Millisecond || d > 200*time.Millisecond {
			return errors.New("servoj lookahead time out of range [30ms, 200ms]")
		}
		cfg.servojLookaheadTime = d

		return nil
	})
}

// WithServojGain sets the servoj gain. It should be between 100 and 2000.
func WithServojGain(gain int) Option {
	return newOptFunc("WithServojGain", func(cfg *Config) error {
		if gain < 100 || gain > 2000 {
			return errors.New("servoj gain out of range [100, 2000]")
		}
		cfg.servojGain = gain

		return nil
	})
}

// WithStopjAcc sets the stop deceleration in rad/s^2. It must be positive.
func WithStopjAcc(acc float64) Option {
	return newOptFunc("WithStopjAcc", func(cfg *Config) error {
		if acc <= 0 {
			return errors.New("stopj acceleration must be positive")
		}
		cfg.stopjAcc = acc

		return nil
	})
}

// WithServojQueue sets the queue mode pre-receive size and timeout. size must be positive and timeout
// at least 1ms.
func WithServojQueue(size int, timeout time.Duration) Option {
	return newOptFunc("WithServojQueue", func(cfg *Config) error {
		if size <= 0 {
			return errors.New("servoj queue pre-receive size must be positive")
		}
		if timeout < time.Millisecond {
			return errors.New("servoj queue pre-receive timeout must be at least 1ms")
		}
		cfg.servojQueuePreRecvSize = size
		cfg.servojQueuePreRecvTimeout = timeout

		return nil
	})
}

// WithWriteTimeout bounds every socket write. It should be between 1ms and 10 seconds.
func WithWriteTimeout(d time.Duration) Option {
	return newOptFunc("WithWriteTimeout", func(cfg *Config) error {
		if d < time.Millisecond || d > 10*time.Second {
			return errors.New("write timeout out of range [1ms, 10s]")
		}
		cfg.writeTimeout = d

		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return newOptFunc("WithLogger", func(cfg *Config) error {
		if l == nil {
			return errors.New("logger is nil")
		}
		cfg.logger = l

		return nil
	})
}

// FileConfig is the on-disk form of a driver configuration. Durations are in seconds.
type FileConfig struct {
	RobotIP                   string  `yaml:"robot_ip" env:"ELITE_ROBOT_IP"`
	LocalIP                   string  `yaml:"local_ip" env:"ELITE_LOCAL_IP"`
	Headless                  bool    `yaml:"headless" env:"ELITE_HEADLESS"`
	ScriptFilePath            string  `yaml:"script_file_path" env:"ELITE_SCRIPT_FILE_PATH"`
	ReversePort               int     `yaml:"reverse_port" env:"ELITE_REVERSE_PORT"`
	ScriptSenderPort          int     `yaml:"script_sender_port" env:"ELITE_SCRIPT_SENDER_PORT"`
	TrajectoryPort            int     `yaml:"trajectory_port" env:"ELITE_TRAJECTORY_PORT"`
	ScriptCommandPort         int     `yaml:"script_command_port" env:"ELITE_SCRIPT_COMMAND_PORT"`
	PrimaryPort               int     `yaml:"primary_port" env:"ELITE_PRIMARY_PORT"`
	ServojTime                float64 `yaml:"servoj_time" env:"ELITE_SERVOJ_TIME"`
	ServojLookaheadTime       float64 `yaml:"servoj_lookahead_time" env:"ELITE_SERVOJ_LOOKAHEAD_TIME"`
	ServojGain                int     `yaml:"servoj_gain" env:"ELITE_SERVOJ_GAIN"`
	StopjAcc                  float64 `yaml:"stopj_acc" env:"ELITE_STOPJ_ACC"`
	ServojQueuePreRecvSize    int     `yaml:"servoj_queue_pre_recv_size" env:"ELITE_SERVOJ_QUEUE_PRE_RECV_SIZE"`
	ServojQueuePreRecvTimeout float64 `yaml:"servoj_queue_pre_recv_timeout" env:"ELITE_SERVOJ_QUEUE_PRE_RECV_TIMEOUT"`
}

// DefaultFileConfig returns a FileConfig holding the defaults.
func DefaultFileConfig() FileConfig {
	return FileConfig{
		ReversePort:               DefaultReversePort,
		ScriptSenderPort:          DefaultScriptSenderPort,
		TrajectoryPort:            DefaultTrajectoryPort,
		ScriptCommandPort:         DefaultScriptCommandPort,
		PrimaryPort:               primary.DefaultPort,
		ServojTime:                DefaultServojTime.Seconds(),
		ServojLookaheadTime:       DefaultServojLookaheadTime.Seconds(),
		ServojGain:                DefaultServojGain,
		StopjAcc:                  DefaultStopjAcc,
		ServojQueuePreRecvSize:    DefaultServojQueuePreRecvSize,
		ServojQueuePreRecvTimeout: DefaultServojQueuePreRecvTimeout.Seconds(),
	}
}

// LoadConfigFile reads a YAML driver configuration. Keys missing from the file keep their defaults.
func LoadConfigFile(path string) (FileConfig, error) {
	fc := DefaultFileConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("read driver config: %w", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("unmarshal driver config %s: %w", path, err)
	}

	return fc, nil
}

// ApplyEnv overrides fc with the ELITE_* environment variables that are set.
func ApplyEnv(fc *FileConfig) error {
	if err := env.Parse(fc); err != nil {
		return fmt.Errorf("parse driver environment: %w", err)
	}

	return nil
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

// Options converts fc to driver options.
func (fc FileConfig) Options() []Option {
	return []Option{
		WithLocalIP(fc.LocalIP),
		WithHeadless(fc.Headless),
		WithScriptFile(fc.ScriptFilePath),
		WithReversePort(fc.ReversePort),
		WithScriptSenderPort(fc.ScriptSenderPort),
		WithTrajectoryPort(fc.TrajectoryPort),
		WithScriptCommandPort(fc.ScriptCommandPort),
		WithPrimaryPort(fc.PrimaryPort),
		WithServojTime(seconds(fc.ServojTime)),
		WithServojLookaheadTime(seconds(fc.ServojLookaheadTime)),
		WithServojGain(fc.ServojGain),
		WithStopjAcc(fc.StopjAcc),
		WithServojQueue(fc.ServojQueuePreRecvSize, seconds(fc.ServojQueuePreRecvTimeout)),
	}
}

// Config builds a validated Config from fc. extra options are applied after the file options.
func (fc FileConfig) Config(extra ...Option) (*Config, error) {
	return NewConfig(fc.RobotIP, append(fc.Options(), extra...)...)
}
