package rtsi

import (
	"errors"
	"time"

	"github.com/arloliu/go-elite/logger"
)

const (
	// DefaultPort is the RTSI server port of the controller.
	DefaultPort = 30004
	// DefaultProtocolVersion is the protocol version requested by NegotiateProtocolVersion callers that
	// have no other preference.
	DefaultProtocolVersion uint16 = 1
	// DefaultFrequency is the default output recipe frequency in Hz.
	DefaultFrequency = 250.0
)

// ClientConfig holds the timing and logging configuration of a Client.
type ClientConfig struct {
	// connectTimeout bounds the TCP handshake. Defaults to 3 seconds.
	connectTimeout time.Duration
	// replyTimeout bounds each handshake request (version, setup, start, pause). Defaults to 5 seconds.
	replyTimeout time.Duration
	// receiveTimeout bounds ReceiveData waiting for a data frame. Defaults to 1 second.
	receiveTimeout time.Duration
	// writeTimeout bounds every packet write. Defaults to 1 second.
	writeTimeout time.Duration
	// maxDrainFrames caps how many buffered frames a read-newest ReceiveData call consumes. Defaults to 256.
	maxDrainFrames int
	// maxPendingFrames caps the data frames stashed while waiting for a handshake reply. Defaults to 1024.
	maxPendingFrames int

	logger logger.Logger
}

// NewClientConfig creates a configuration with defaults and applies opts in order.
func NewClientConfig(opts ...ClientOption) (*ClientConfig, error) {
	cfg := &ClientConfig{
		connectTimeout:   3 * time.Second,
		replyTimeout:     5 * time.Second,
		receiveTimeout:   time.Second,
		writeTimeout:     time.Second,
		maxDrainFrames:   256,
		maxPendingFrames: 1024,
		logger:           logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

// ConnectTimeout returns the TCP connect timeout.
func (cfg *ClientConfig) ConnectTimeout() time.Duration { return cfg.connectTimeout }

// ReplyTimeout returns the handshake reply timeout.
func (cfg *ClientConfig) ReplyTimeout() time.Duration { return cfg.replyTimeout }

// ReceiveTimeout returns the data frame receive timeout.
func (cfg *ClientConfig) ReceiveTimeout() time.Duration { return cfg.receiveTimeout }

// MaxDrainFrames returns the read-newest drain cap.
func (cfg *ClientConfig) MaxDrainFrames() int { return cfg.maxDrainFrames }

// ClientOption represents a functional option for configuring a ClientConfig.
type ClientOption interface {
	apply(*ClientConfig) error
}

type clientOptFunc struct {
	name      string
	applyFunc func(*ClientConfig) error
}

func (o *clientOptFunc) apply(cfg *ClientConfig) error {
	if cfg == nil {
		return ErrClientConfigNil
	}

	return o.applyFunc(cfg)
}

func newClientOptFunc(name string, f func(*ClientConfig) error) *clientOptFunc {
	return &clientOptFunc{name: name, applyFunc: f}
}

func durationInRange(d, lower, upper time.Duration, name string) error {
	if d < lower || d > upper {
		return errors.New(name + " out of range [" + lower.String() + ", " + upper.String() + "]")
	}

	return nil
}

// WithConnectTimeout sets the TCP connect timeout. It should be between 10ms and 60 seconds.
func WithConnectTimeout(d time.Duration) ClientOption {
	return newClientOptFunc("WithConnectTimeout", func(cfg *ClientConfig) error {
		if err := durationInRange(d, 10*time.Millisecond, time.Minute, "connect timeout"); err != nil {
			return err
		}
		cfg.connectTimeout = d

		return nil
	})
}

// WithReplyTimeout sets the handshake reply timeout. It should be between 10ms and 60 seconds.
func WithReplyTimeout(d time.Duration) ClientOption {
	return newClientOptFunc("WithReplyTimeout", func(cfg *ClientConfig) error {
		if err := durationInRange(d, 10*time.Millisecond, time.Minute, "reply timeout"); err != nil {
			return err
		}
		cfg.replyTimeout = d

		return nil
	})
}

// WithReceiveTimeout sets the data frame receive timeout. It should be between 1ms and 60 seconds.
func WithReceiveTimeout(d time.Duration) ClientOption {
	return newClientOptFunc("WithReceiveTimeout", func(cfg *ClientConfig) error {
		if err := durationInRange(d, time.Millisecond, time.Minute, "receive timeout"); err != nil {
			return err
		}
		cfg.receiveTimeout = d

		return nil
	})
}

// WithWriteTimeout sets the packet write timeout. It should be between 1ms and 60 seconds.
func WithWriteTimeout(d time.Duration) ClientOption {
	return newClientOptFunc("WithWriteTimeout", func(cfg *ClientConfig) error {
		if err := durationInRange(d, time.Millisecond, time.Minute, "write timeout"); err != nil {
			return err
		}
		cfg.writeTimeout = d

		return nil
	})
}

// WithMaxDrainFrames caps how many frames a read-newest receive consumes in one call. It must be at least 1.
func WithMaxDrainFrames(n int) ClientOption {
	return newClientOptFunc("WithMaxDrainFrames", func(cfg *ClientConfig) error {
		if n < 1 {
			return errors.New("max drain frames must be at least 1")
		}
		cfg.maxDrainFrames = n

		return nil
	})
}

// WithMaxPendingFrames caps the data frames buffered while a handshake reply is awaited. When exceeded, the
// oldest stashed frame is dropped. It must be at least 1.
func WithMaxPendingFrames(n int) ClientOption {
	return newClientOptFunc("WithMaxPendingFrames", func(cfg *ClientConfig) error {
		if n < 1 {
			return errors.New("max pending frames must be at least 1")
		}
		cfg.maxPendingFrames = n

		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) ClientOption {
	return newClientOptFunc("WithLogger", func(cfg *ClientConfig) error {
		if l == nil {
			return errors.New("logger is nil")
		}
		cfg.logger = l

		return nil
	})
}
