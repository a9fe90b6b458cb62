package primary

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-elite/internal/pool"
	"github.com/arloliu/go-elite/internal/queue"
	"github.com/arloliu/go-elite/internal/task"
	"github.com/arloliu/go-elite/logger"
)

// waiter is a pending GetPackage call. Whoever claims it first, the reader or the timeout, completes it.
type waiter struct {
	pkg     Package
	claimed atomic.Bool
	done    chan error
}

// Client reads the primary port stream on a background goroutine.
//
// Robot exceptions are delivered on a separate dispatcher goroutine so that a slow callback never stalls
// the reader. Disconnect joins both goroutines; once it returns, no callback runs. The callback must not
// call Disconnect itself.
type Client struct {
	cfg     *ClientConfig
	logger  logger.Logger
	metrics ClientMetrics

	connMu  sync.RWMutex
	conn    net.Conn
	writeMu sync.Mutex
	closing atomic.Bool

	taskMgr    *task.Manager
	waiters    *xsync.MapOf[uint8, []*waiter]
	dispatcher *queue.Dispatcher[RobotException]
}

// NewClient creates a disconnected client.
func NewClient(opts ...ClientOption) (*Client, error) {
	cfg, err := NewClientConfig(opts...)
	if err != nil {
		return nil, err
	}

	l := cfg.logger.With("component", "primary")

	return &Client{
		cfg:        cfg,
		logger:     l,
		taskMgr:    task.NewManager(context.Background(), l),
		waiters:    xsync.NewMapOf[uint8, []*waiter](),
		dispatcher: queue.NewDispatcher[RobotException](nil),
	}, nil
}

// Metrics returns the client counters.
func (c *Client) Metrics() *ClientMetrics { return &c.metrics }

// Connect connects to host:port and starts the reader. There is no retry.
func (c *Client) Connect(ctx context.Context, host string, port int) error {
	if c.IsConnected() {
		return ErrAlreadyConnected
	}

	// join the goroutines of a previous session that ended without Disconnect
	c.taskMgr.Stop()
	c.taskMgr.Wait()

	address := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := net.Dialer{Timeout: c.cfg.connectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("dial primary port %s: %w", address, err)
	}

	c.connMu.Lock()
	if c.conn != nil {
		c.connMu.Unlock()
		_ = conn.Close()
		return ErrAlreadyConnected
	}
	c.conn = conn
	c.connMu.Unlock()
	c.closing.Store(false)

	err = c.taskMgr.Start("primary-dispatcher", func() bool {
		c.dispatcher.Run(c.taskMgr.Context())
		return false
	})
	if err == nil {
		var readErr error
		err = c.taskMgr.StartReceiver("primary-reader",
			c.readerTask(bufio.NewReader(conn), &readErr),
			func() { c.readerExited(conn, readErr) },
		)
	}
	if err != nil {
		_ = c.Disconnect()
		return err
	}

	c.logger.Info("connected", "address", address)

	return nil
}

// Disconnect closes the connection and waits for the reader and the dispatcher to exit. Exceptions already
// queued are delivered before it returns. Pending GetPackage calls fail with ErrNotConnected.
func (c *Client) Disconnect() error {
	c.closing.Store(true)

	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()

	c.taskMgr.Stop()
	var err error
	if conn != nil {
		err = conn.Close()
	}
	c.taskMgr.Wait()
	c.failWaiters(ErrNotConnected)
	// exceptions read after the dispatcher stopped belong to the closed session
	c.dispatcher.Discard()

	if conn != nil {
		c.logger.Info("disconnected")
	}

	return err
}

// IsConnected reports whether the connection is open.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()

	return c.conn != nil
}

// LocalIP returns the local address of the connection, which is the address the robot can reach this host
// on. It returns an empty string when not connected.
func (c *Client) LocalIP() string {
	c.connMu.RLock()
	defer c.connMu.RUnlock()

	if c.conn == nil {
		return ""
	}
	if addr, ok := c.conn.LocalAddr().(*net.TCPAddr); ok {
		return addr.IP.String()
	}

	return ""
}

// RegisterRobotExceptionCallback sets the exception callback, replacing any previous one. A nil cb
// unregisters it; exceptions observed without a callback are dropped.
func (c *Client) RegisterRobotExceptionCallback(cb func(RobotException)) {
	c.dispatcher.SetHandler(cb)
}

// SendScript sends a script program to the robot for execution.
func (c *Client) SendScript(script string) error {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	if !strings.HasSuffix(script, "\n") {
		script += "\n"
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.writeTimeout))
	if _, err := io.WriteString(conn, script); err != nil {
		return fmt.Errorf("send script: %w", err)
	}
	c.metrics.incScriptSendCount()

	return nil
}

// GetPackage blocks until the next sub-package of pkg's type arrives and decodes it into pkg, or until
// timeout elapses.
func (c *Client) GetPackage(pkg Package, timeout time.Duration) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	typ := pkg.Type()
	w := &waiter{pkg: pkg, done: make(chan error, 1)}
	c.waiters.Compute(typ, func(old []*waiter, _ bool) ([]*waiter, bool) {
		return append(old, w), false
	})

	// the reader may have exited between the check above and the registration
	if !c.IsConnected() && w.claimed.CompareAndSwap(false, true) {
		c.removeWaiter(typ, w)
		return ErrNotConnected
	}

	timer := pool.GetTimer(timeout)
	defer pool.PutTimer(timer)

	select {
	case err := <-w.done:
		return err
	case <-timer.C:
		if w.claimed.CompareAndSwap(false, true) {
			c.removeWaiter(typ, w)
			return fmt.Errorf("%w: sub-package %d after %v", ErrPackageTimeout, typ, timeout)
		}
		// the reader claimed it first and is delivering
		return <-w.done
	}
}

func (c *Client) removeWaiter(typ uint8, w *waiter) {
	c.waiters.Compute(typ, func(old []*waiter, loaded bool) ([]*waiter, bool) {
		if !loaded {
			return nil, true
		}
		kept := old[:0:0]
		for _, o := range old {
			if o != w {
				kept = append(kept, o)
			}
		}
		return kept, len(kept) == 0
	})
}

func (c *Client) failWaiters(err error) {
	c.waiters.Range(func(typ uint8, _ []*waiter) bool {
		ws, _ := c.waiters.LoadAndDelete(typ)
		for _, w := range ws {
			if w.claimed.CompareAndSwap(false, true) {
				w.done <- err
			}
		}
		return true
	})
}

// deliver completes every waiter registered for typ with sub.
func (c *Client) deliver(typ uint8, sub []byte) {
	ws, ok := c.waiters.LoadAndDelete(typ)
	if !ok {
		return
	}

	for _, w := range ws {
		if !w.claimed.CompareAndSwap(false, true) {
			continue
		}
		err := w.pkg.Parse(sub)
		if err != nil {
			c.metrics.incMalformedCount()
		} else {
			c.metrics.incPackageCount()
		}
		w.done <- err
	}
}

func (c *Client) readerTask(r *bufio.Reader, readErr *error) task.Func {
	return func() bool {
		msgType, body, err := c.readFrame(r)
		if err != nil {
			*readErr = err
			return false
		}
		c.metrics.incFrameCount()
		c.handleFrame(msgType, body)

		return true
	}
}

func (c *Client) readFrame(r *bufio.Reader) (uint8, []byte, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}

	n := int(binary.BigEndian.Uint32(header[:]))
	if n < HeaderSize || n > c.cfg.maxFrameSize {
		c.metrics.incMalformedCount()
		return 0, nil, fmt.Errorf("%w: frame length %d", ErrMalformedFrame, n)
	}

	body := make([]byte, n-HeaderSize)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}

	return header[4], body, nil
}

func (c *Client) handleFrame(msgType uint8, body []byte) {
	switch msgType {
	case MessageRobotState:
		if err := splitSubPackages(body, c.deliver); err != nil {
			c.metrics.incMalformedCount()
			c.logger.Warn("invalid robot state frame", "error", err)
		}

	case MessageRobotMessage:
		ex, err := parseRobotMessage(body)
		if err != nil {
			c.metrics.incMalformedCount()
			c.logger.Warn("invalid robot message", "error", err)
			return
		}
		if ex != nil {
			c.logger.Debug("robot exception", "type", ex.Type(), "error", ex)
			c.post(ex)
		}
	}
}

func (c *Client) post(ex RobotException) {
	c.metrics.incExceptionCount()
	c.dispatcher.Post(ex)
}

// readerExited runs on the reader goroutine when it stops for any reason.
func (c *Client) readerExited(conn net.Conn, err error) {
	c.connMu.Lock()
	current := c.conn == conn
	if current {
		c.conn = nil
	}
	c.connMu.Unlock()
	_ = conn.Close()

	c.failWaiters(ErrNotConnected)

	if c.closing.Load() || !current {
		return
	}
	if errors.Is(err, io.EOF) {
		err = nil
	}
	c.logger.Warn("primary port connection lost", "error", err)
	c.post(&DisconnectedException{at: time.Now(), Err: err})
}
