// Package tcpserver implements the single-client TCP listeners the robot connects back to.
//
// A Server accepts at most one client at a time. When the robot reconnects while a previous connection is
// still open, the old connection is closed and replaced. Each accepted client gets a reader goroutine that
// calls the configured ReadFunc until it returns an error, at which point the client is dropped and the
// disconnect handler is notified.
package tcpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-elite/internal/task"
	"github.com/arloliu/go-elite/logger"
)

var (
	// ErrNoClient indicates that no client is connected.
	ErrNoClient = errors.New("no client connected")

	// ErrServerClosed indicates that the server has been closed.
	ErrServerClosed = errors.New("server closed")
)

// ReadFunc reads from the connected client. It is called in a loop on the reader goroutine; returning an error
// drops the client.
type ReadFunc func(conn net.Conn) error

// ConnHandler is notified when a client connects.
type ConnHandler func(conn net.Conn)

// DisconnectHandler is notified when a client is dropped. err is the reason, or nil when the client was
// closed locally.
type DisconnectHandler func(conn net.Conn, err error)

// Option configures a Server.
type Option func(*Server)

// WithReadFunc sets the per-client read function. Without one, inbound bytes are discarded.
func WithReadFunc(fn ReadFunc) Option { return func(s *Server) { s.readFunc = fn } }

// WithConnHandler sets the connect notification.
func WithConnHandler(fn ConnHandler) Option { return func(s *Server) { s.onConnect = fn } }

// WithDisconnectHandler sets the disconnect notification.
func WithDisconnectHandler(fn DisconnectHandler) Option {
	return func(s *Server) { s.onDisconnect = fn }
}

// WithWriteTimeout bounds every Write. Zero disables the deadline.
func WithWriteTimeout(d time.Duration) Option { return func(s *Server) { s.writeTimeout = d } }

// WithAcceptTimeout sets the accept poll interval used to observe shutdown.
func WithAcceptTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.acceptTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// Server is a single-client TCP server.
type Server struct {
	name          string
	address       string
	logger        logger.Logger
	readFunc      ReadFunc
	onConnect     ConnHandler
	onDisconnect  DisconnectHandler
	writeTimeout  time.Duration
	acceptTimeout time.Duration

	taskMgr  *task.Manager
	listener *net.TCPListener
	shutdown atomic.Bool

	connMu  sync.RWMutex
	conn    net.Conn
	writeMu sync.Mutex
	connSeq atomic.Uint64
}

// New creates a server named name that will listen on host:port. A zero port picks a free port.
func New(ctx context.Context, name string, host string, port int, opts ...Option) *Server {
	s := &Server{
		name:          name,
		address:       net.JoinHostPort(host, strconv.Itoa(port)),
		logger:        logger.GetLogger(),
		acceptTimeout: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("server", name)
	s.taskMgr = task.NewManager(ctx, s.logger)

	return s
}

// Start listens and starts the accept loop.
func (s *Server) Start() error {
	if s.shutdown.Load() {
		return ErrServerClosed
	}

	var lc net.ListenConfig
	l, err := lc.Listen(s.taskMgr.Context(), "tcp", s.address)
	if err != nil {
		s.logger.Error("failed to listen", "address", s.address, "error", err)
		return fmt.Errorf("%s: listen on %s: %w", s.name, s.address, err)
	}
	tcpListener, ok := l.(*net.TCPListener)
	if !ok {
		_ = l.Close()
		return fmt.Errorf("%s: listener is not a TCP listener", s.name)
	}
	s.listener = tcpListener

	s.logger.Debug("listen success", "address", tcpListener.Addr())

	return s.taskMgr.Start(s.name+"-accept", s.acceptConn)
}

// Port returns the bound port, or 0 before Start.
func (s *Server) Port() int {
	if s.listener == nil {
		return 0
	}
	if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}

	return 0
}

// IsConnected reports whether a client is connected.
func (s *Server) IsConnected() bool {
	s.connMu.RLock()
	defer s.connMu.RUnlock()

	return s.conn != nil
}

// Write writes b to the connected client. Concurrent writes are serialized. A failed write drops the client
// so that later writes fail fast.
func (s *Server) Write(b []byte) error {
	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()

	if conn == nil {
		return ErrNoClient
	}

	s.writeMu.Lock()
	if s.writeTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	_, err := conn.Write(b)
	s.writeMu.Unlock()

	if err != nil {
		s.logger.Warn("write failed, drop client", "remote", conn.RemoteAddr(), "error", err)
		s.dropConn(conn, err)
		return fmt.Errorf("%s: write: %w", s.name, err)
	}

	return nil
}

// CloseClient closes the current client connection, if any.
func (s *Server) CloseClient() {
	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()

	if conn != nil {
		s.dropConn(conn, nil)
	}
}

// Close stops accepting, closes the client and joins all goroutines.
func (s *Server) Close() error {
	if !s.shutdown.CompareAndSwap(false, true) {
		return nil
	}

	s.taskMgr.Stop()

	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.CloseClient()
	s.taskMgr.Wait()

	s.logger.Debug("server closed")

	return err
}

func (s *Server) acceptConn() bool {
	if s.shutdown.Load() {
		return false
	}

	_ = s.listener.SetDeadline(time.Now().Add(s.acceptTimeout))
	conn, err := s.listener.Accept()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			select {
			case <-s.taskMgr.Context().Done():
				return false
			default:
				return true
			}
		}
		if !s.shutdown.Load() {
			s.logger.Error("failed to accept connection", "error", err)
		}

		return false
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}

	s.logger.Info("client connected", "remote", conn.RemoteAddr())

	s.connMu.Lock()
	prev := s.conn
	s.conn = conn
	s.connMu.Unlock()

	if prev != nil {
		s.logger.Info("replace previous client", "remote", prev.RemoteAddr())
		_ = prev.Close()
	}

	if s.onConnect != nil {
		s.onConnect(conn)
	}

	seq := s.connSeq.Add(1)
	if err := s.taskMgr.Start(fmt.Sprintf("%s-reader-%d", s.name, seq), s.readerTask(conn)); err != nil {
		s.dropConn(conn, err)
	}

	return true
}

func (s *Server) readerTask(conn net.Conn) task.Func {
	discard := make([]byte, 256)

	return func() bool {
		var err error
		if s.readFunc != nil {
			err = s.readFunc(conn)
		} else {
			_, err = conn.Read(discard)
		}
		if err != nil {
			s.dropConn(conn, err)
			return false
		}

		return true
	}
}

// dropConn closes conn and, if it is still the current client, clears it and notifies the disconnect handler.
func (s *Server) dropConn(conn net.Conn, reason error) {
	s.connMu.Lock()
	current := s.conn == conn
	if current {
		s.conn = nil
	}
	s.connMu.Unlock()

	_ = conn.Close()

	if !current {
		return
	}

	s.logger.Info("client disconnected", "remote", conn.RemoteAddr(), "reason", reason)
	if s.onDisconnect != nil {
		s.onDisconnect(conn, reason)
	}
}
