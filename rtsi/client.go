package rtsi

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-elite/internal/pool"
	"github.com/arloliu/go-elite/logger"
	"github.com/arloliu/go-elite/version"
)

// errDrained is returned internally when a read-newest drain finds no further frame available.
var errDrained = errors.New("no buffered frame")

// Client is an RTSI protocol client.
//
// All operations are synchronous and run on the caller's goroutine. Handshake requests and ReceiveData are
// serialized with each other; Send only contends with other writers, so one goroutine may receive while
// another sends input recipes.
//
// Data frames that arrive while a handshake reply is awaited (for example the frames already in flight when
// Pause is requested) are kept and delivered by later ReceiveData calls, in arrival order.
type Client struct {
	cfg     *ClientConfig
	logger  logger.Logger
	metrics ClientMetrics

	connMu sync.RWMutex
	conn   net.Conn
	reader *bufio.Reader

	readMu       sync.Mutex // serializes reads, protects pending
	writeMu      sync.Mutex
	pending      [][]byte
	pendingCount atomic.Int32

	started         atomic.Bool
	protocolVersion atomic.Uint32

	outputs *xsync.MapOf[uint8, *Recipe]
	inputs  *xsync.MapOf[uint8, *Recipe]
}

// NewClient creates a disconnected client.
func NewClient(opts ...ClientOption) (*Client, error) {
	cfg, err := NewClientConfig(opts...)
	if err != nil {
		return nil, err
	}

	return &Client{
		cfg:     cfg,
		logger:  cfg.logger.With("component", "rtsi"),
		outputs: xsync.NewMapOf[uint8, *Recipe](),
		inputs:  xsync.NewMapOf[uint8, *Recipe](),
	}, nil
}

// Config returns the client configuration.
func (c *Client) Config() *ClientConfig { return c.cfg }

// Metrics returns the client counters.
func (c *Client) Metrics() *ClientMetrics { return &c.metrics }

// Connect opens the TCP connection to host:port. Failures are returned as is; there is no retry.
func (c *Client) Connect(ctx context.Context, host string, port int) error {
	c.readMu.Lock()
	c.pending = nil
	c.pendingCount.Store(0)
	c.readMu.Unlock()

	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		return ErrAlreadyConnected
	}

	address := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := net.Dialer{Timeout: c.cfg.connectTimeout}

	c.logger.Debug("connect", "address", address)
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %w", ErrConnection, address, err)
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}

	c.conn = conn
	c.reader = bufio.NewReaderSize(conn, MaxPacketSize+1)
	c.logger.Info("connected", "address", address)

	return nil
}

// Disconnect closes the connection. All recipes set up on it become invalid.
func (c *Client) Disconnect() error {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()

	if conn == nil {
		return nil
	}

	err := c.teardown(conn)

	c.readMu.Lock()
	c.pending = nil
	c.pendingCount.Store(0)
	c.readMu.Unlock()

	c.logger.Info("disconnected")

	return err
}

// IsConnected reports whether the connection is open.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()

	return c.conn != nil
}

// IsStarted reports whether data synchronization is running.
func (c *Client) IsStarted() bool {
	return c.started.Load()
}

// ProtocolVersion returns the last accepted protocol version, or 0 before negotiation.
func (c *Client) ProtocolVersion() uint16 {
	return uint16(c.protocolVersion.Load())
}

// IsReadAvailable reports, without blocking, whether a data frame can be read. It returns true when frames
// are stashed, a frame is buffered, or the socket has unread bytes.
func (c *Client) IsReadAvailable() bool {
	conn, r, err := c.session()
	if err != nil {
		return false
	}

	if c.readMu.TryLock() {
		defer c.readMu.Unlock()
		return c.readAvailable(conn, r)
	}

	// a read is in progress; the buffered reader belongs to it
	return c.pendingCount.Load() > 0 || socketReadable(conn)
}

// NegotiateProtocolVersion requests protocol version v. When the controller rejects it, ErrVersionRejected is
// returned and the connection remains usable for a retry with a lower version.
func (c *Client) NegotiateProtocolVersion(v uint16) error {
	reply, err := c.request(PacketRequestProtocolVersion, encodeVersionRequest(v))
	if err != nil {
		return err
	}

	accepted, err := parseAccepted(PacketRequestProtocolVersion, reply)
	if err != nil {
		return err
	}
	if !accepted {
		c.logger.Warn("protocol version rejected", "version", v)
		return newProtocolError(PacketRequestProtocolVersion, ErrVersionRejected, "version %d", v)
	}

	c.protocolVersion.Store(uint32(v))
	c.logger.Debug("protocol version accepted", "version", v)

	return nil
}

// GetControllerVersion queries the controller software version.
func (c *Client) GetControllerVersion() (version.Info, error) {
	reply, err := c.request(PacketGetControllerVersion, nil)
	if err != nil {
		return version.Info{}, err
	}

	return parseControllerVersion(reply)
}

// SetupOutputRecipe subscribes to the named output variables at frequency Hz. The controller may round the
// frequency to a rate it can serve. The returned recipe keeps the order of names.
func (c *Client) SetupOutputRecipe(names []string, frequency float64) (*Recipe, error) {
	if len(names) == 0 {
		return nil, errors.New("output recipe needs at least one variable")
	}
	if frequency <= 0 {
		return nil, fmt.Errorf("invalid output frequency %v", frequency)
	}

	reply, err := c.request(PacketSetupOutputs, encodeOutputSetup(names, frequency))
	if err != nil {
		return nil, err
	}

	id, types, err := parseSetupReply(PacketSetupOutputs, reply, names)
	if err != nil {
		return nil, err
	}

	r, err := NewRecipe(id, Output, names, types)
	if err != nil {
		return nil, err
	}
	r.frequency = frequency
	c.outputs.Store(id, r)

	c.logger.Debug("output recipe ready", "id", id, "variables", len(names), "frequency", frequency)

	return r, nil
}

// SetupInputRecipe registers the named input variables. Values are written with Send.
func (c *Client) SetupInputRecipe(names []string) (*Recipe, error) {
	if len(names) == 0 {
		return nil, errors.New("input recipe needs at least one variable")
	}

	reply, err := c.request(PacketSetupInputs, encodeInputSetup(names))
	if err != nil {
		return nil, err
	}

	id, types, err := parseSetupReply(PacketSetupInputs, reply, names)
	if err != nil {
		return nil, err
	}

	r, err := NewRecipe(id, Input, names, types)
	if err != nil {
		return nil, err
	}
	c.inputs.Store(id, r)

	c.logger.Debug("input recipe ready", "id", id, "variables", len(names))

	return r, nil
}

// Start asks the controller to begin data synchronization.
func (c *Client) Start() error {
	if err := c.toggle(PacketStart); err != nil {
		return err
	}
	c.started.Store(true)

	return nil
}

// Pause asks the controller to stop data synchronization. Frames already received stay readable.
func (c *Client) Pause() error {
	if err := c.toggle(PacketPause); err != nil {
		return err
	}
	c.started.Store(false)

	return nil
}

func (c *Client) toggle(pt PacketType) error {
	reply, err := c.request(pt, nil)
	if err != nil {
		return err
	}

	accepted, err := parseAccepted(pt, reply)
	if err != nil {
		return err
	}
	if !accepted {
		return newProtocolError(pt, ErrRequestRejected, "controller refused %s", pt)
	}

	return nil
}

// Send writes the current values of the input recipe r as one data package.
func (c *Client) Send(r *Recipe) error {
	conn, _, err := c.session()
	if err != nil {
		return err
	}

	if r == nil || r.dir != Input {
		return newProtocolError(PacketDataPackage, ErrRecipeNotRegistered, "not an input recipe")
	}
	if registered, ok := c.inputs.Load(r.id); !ok || registered != r {
		return newProtocolError(PacketDataPackage, ErrRecipeNotRegistered, "recipe %d", r.id)
	}

	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	*buf, err = AppendDataPackage(*buf, r)
	if err != nil {
		return err
	}
	if err := c.writePacket(conn, *buf); err != nil {
		return err
	}
	c.metrics.incDataSendCount()

	return nil
}

// ReceiveData reads a data package, decodes it into the recipe among recipes whose id it carries, and returns
// that id. It blocks up to the receive timeout.
//
// With readNewest false every frame is delivered exactly once and in order. With readNewest true, after the
// first frame every further frame that is available without blocking is consumed too, up to MaxDrainFrames
// frames per call; each is decoded into its recipe in arrival order, so every recipe ends holding its newest
// sample, and the id of the last decoded frame is returned. Superseded frames are counted in
// ClientMetrics.DataDroppedCount.
func (c *Client) ReceiveData(recipes []*Recipe, readNewest bool) (uint8, error) {
	conn, r, err := c.session()
	if err != nil {
		return 0, err
	}

	c.readMu.Lock()
	defer c.readMu.Unlock()

	payload, err := c.nextData(conn, r, time.Now().Add(c.cfg.receiveTimeout), false)
	if err != nil {
		return 0, err
	}

	id, err := c.decodeInto(recipes, payload)
	if err != nil || !readNewest {
		return id, err
	}

	for n := 1; n < c.cfg.maxDrainFrames; n++ {
		payload, err = c.nextData(conn, r, time.Now().Add(c.cfg.receiveTimeout), true)
		if errors.Is(err, errDrained) || errors.Is(err, ErrTimeout) {
			break
		}
		if err != nil {
			return id, err
		}

		next, err := c.decodeInto(recipes, payload)
		if err != nil {
			return id, err
		}
		c.metrics.incDataDroppedCount()
		id = next
	}

	return id, nil
}

// ReceiveRecipe is ReceiveData for a single recipe.
func (c *Client) ReceiveRecipe(recipe *Recipe, readNewest bool) error {
	_, err := c.ReceiveData([]*Recipe{recipe}, readNewest)
	return err
}

func (c *Client) decodeInto(recipes []*Recipe, payload []byte) (uint8, error) {
	if len(payload) < 1 {
		c.metrics.incDataErrCount()
		return 0, newProtocolError(PacketDataPackage, ErrMalformedFrame, "empty data package")
	}

	id := payload[0]
	for _, rc := range recipes {
		if rc == nil || rc.id != id || rc.dir != Output {
			continue
		}
		if err := DecodeDataPackage(payload, rc); err != nil {
			c.metrics.incDataErrCount()
			return 0, err
		}
		c.metrics.incDataRecvCount()

		return id, nil
	}

	c.metrics.incDataErrCount()

	return 0, newProtocolError(PacketDataPackage, ErrRecipeIDMismatch, "frame recipe id %d not requested", id)
}

// nextData returns the next data package payload. Stashed frames come first. With drain set, it returns
// errDrained instead of blocking when nothing is available. Caller holds readMu.
func (c *Client) nextData(conn net.Conn, r *bufio.Reader, deadline time.Time, drain bool) ([]byte, error) {
	for {
		if len(c.pending) > 0 {
			p := c.pending[0]
			c.pending[0] = nil
			c.pending = c.pending[1:]
			c.pendingCount.Add(-1)
			return p, nil
		}
		if drain && !c.readAvailable(conn, r) {
			return nil, errDrained
		}

		pt, payload, err := c.readFrame(conn, r, deadline)
		if err != nil {
			if isTimeout(err) {
				return nil, ErrReceiveTimeout
			}
			return nil, err
		}

		switch pt {
		case PacketDataPackage:
			return payload, nil
		case PacketTextMessage:
			c.handleTextMessage(payload)
		default:
			c.metrics.incUnexpectedPacketCount()
			c.logger.Warn("unexpected packet while receiving data", "packet", pt)
		}
	}
}

// request sends a handshake packet and waits for the reply of the same type.
func (c *Client) request(pt PacketType, payload []byte) ([]byte, error) {
	conn, r, err := c.session()
	if err != nil {
		return nil, err
	}

	c.readMu.Lock()
	defer c.readMu.Unlock()

	buf := pool.GetBuffer()
	*buf, err = AppendPacket(*buf, pt, payload)
	if err == nil {
		err = c.writePacket(conn, *buf)
	}
	pool.PutBuffer(buf)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(c.cfg.replyTimeout)
	for {
		rpt, reply, err := c.readFrame(conn, r, deadline)
		if err != nil {
			if isTimeout(err) {
				return nil, fmt.Errorf("%w: %s after %v", ErrReplyTimeout, pt, c.cfg.replyTimeout)
			}
			return nil, err
		}

		switch rpt {
		case pt:
			return reply, nil
		case PacketDataPackage:
			c.stash(reply)
		case PacketTextMessage:
			c.handleTextMessage(reply)
		default:
			c.metrics.incUnexpectedPacketCount()
			c.logger.Warn("unexpected packet while waiting for reply", "expected", pt, "got", rpt)
		}
	}
}

// stash keeps a data frame received during a handshake. Caller holds readMu.
func (c *Client) stash(payload []byte) {
	if len(c.pending) >= c.cfg.maxPendingFrames {
		c.pending[0] = nil
		c.pending = c.pending[1:]
		c.pendingCount.Add(-1)
		c.metrics.incDataDroppedCount()
	}
	c.pending = append(c.pending, payload)
	c.pendingCount.Add(1)
}

// readAvailable reports whether a frame can be obtained without waiting. Caller holds readMu.
func (c *Client) readAvailable(conn net.Conn, r *bufio.Reader) bool {
	return len(c.pending) > 0 || bufferedFrame(r) || socketReadable(conn)
}

func (c *Client) handleTextMessage(payload []byte) {
	c.metrics.incTextMessageCount()

	msg, err := parseTextMessage(payload)
	if err != nil {
		c.logger.Warn("invalid text message", "error", err)
		return
	}

	switch msg.Level {
	case 0, 1:
		c.logger.Error("controller message", "source", msg.Source, "message", msg.Message)
	case 2:
		c.logger.Warn("controller message", "source", msg.Source, "message", msg.Message)
	default:
		c.logger.Info("controller message", "source", msg.Source, "message", msg.Message)
	}
}

func (c *Client) session() (net.Conn, *bufio.Reader, error) {
	c.connMu.RLock()
	defer c.connMu.RUnlock()

	if c.conn == nil {
		return nil, nil, ErrNotConnected
	}

	return c.conn, c.reader, nil
}

func (c *Client) writePacket(conn net.Conn, pkt []byte) error {
	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.writeTimeout))
	_, err := conn.Write(pkt)
	c.writeMu.Unlock()

	if err != nil {
		c.logger.Error("write failed", "error", err)
		_ = c.teardown(conn)
		return fmt.Errorf("%w: write: %w", ErrConnClosed, err)
	}

	return nil
}

// readFrame reads one packet before deadline. Any failure other than a timeout leaves the stream unusable and
// closes the connection. Caller holds readMu.
func (c *Client) readFrame(conn net.Conn, r *bufio.Reader, deadline time.Time) (PacketType, []byte, error) {
	_ = conn.SetReadDeadline(deadline)

	pt, payload, err := readPacket(r)
	if err == nil {
		return pt, payload, nil
	}
	if isTimeout(err) {
		return 0, nil, err
	}

	c.logger.Error("read failed, close connection", "error", err)
	_ = c.teardown(conn)
	c.pending = nil
	c.pendingCount.Store(0)

	var protoErr *ProtocolError
	if errors.As(err, &protoErr) {
		return 0, nil, err
	}

	return 0, nil, fmt.Errorf("%w: read: %w", ErrConnClosed, err)
}

// teardown closes conn and, if it is still the active connection, resets the session state.
func (c *Client) teardown(conn net.Conn) error {
	c.connMu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.reader = nil
		c.started.Store(false)
		c.protocolVersion.Store(0)
		c.outputs.Clear()
		c.inputs.Clear()
	}
	c.connMu.Unlock()

	return conn.Close()
}
