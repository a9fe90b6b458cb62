package primary

import (
	"errors"
	"time"

	"github.com/arloliu/go-elite/logger"
)

// ClientConfig holds the configuration of a Client.
type ClientConfig struct {
	// connectTimeout bounds the TCP handshake. Defaults to 3 seconds.
	connectTimeout time.Duration
	// writeTimeout bounds SendScript. Defaults to 1 second.
	writeTimeout time.Duration
	// maxFrameSize rejects frames with a larger length field. Defaults to 1 MiB.
	maxFrameSize int

	logger logger.Logger
}

// NewClientConfig creates a configuration with defaults and applies opts in order.
func NewClientConfig(opts ...ClientOption) (*ClientConfig, error) {
	cfg := &ClientConfig{
		connectTimeout: 3 * time.Second,
		writeTimeout:   time.Second,
		maxFrameSize:   1 << 20,
		logger:         logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

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

// WithConnectTimeout sets the TCP connect timeout. It should be between 10ms and 60 seconds.
func WithConnectTimeout(d time.Duration) ClientOption {
	return newClientOptFunc("WithConnectTimeout", func(cfg *ClientConfig) error {
		if d < 10*time.Millisecond || d > time.Minute {
			return errors.New("connect timeout out of range [10ms, 1m]")
		}
		cfg.connectTimeout = d

		return nil
	})
}

// WithWriteTimeout sets the script write timeout. It should be between 1ms and 60 seconds.
func WithWriteTimeout(d time.Duration) ClientOption {
	return newClientOptFunc("WithWriteTimeout", func(cfg *ClientConfig) error {
		if d < time.Millisecond || d > time.Minute {
			return errors.New("write timeout out of range [1ms, 1m]")
		}
		cfg.writeTimeout = d

		return nil
	})
}

// WithMaxFrameSize sets the largest accepted frame. It must be at least the header size.
func WithMaxFrameSize(n int) ClientOption {
	return newClientOptFunc("WithMaxFrameSize", func(cfg *ClientConfig) error {
		if n < HeaderSize {
			return errors.New("max frame size below header size")
		}
		cfg.maxFrameSize = n

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
