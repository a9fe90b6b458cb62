// Package bridge serves the latest RTSI sample over HTTP and WebSocket.
//
// Routes:
//
//	GET /api/v1/status  connection state and controller version
//	GET /api/v1/sample  the latest sample as JSON
//	GET /ws             streams every new sample as a JSON text message
package bridge

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/gorilla/websocket"

	"github.com/arloliu/go-elite/logger"
	"github.com/arloliu/go-elite/rtsi"
	"github.com/arloliu/go-elite/version"
)

// SampleSource provides the samples served by the bridge. rtsi.IOInterface implements it.
type SampleSource interface {
	Latest() (rtsi.Sample, bool)
	IsConnected() bool
	ControllerVersion() version.Info
}

// Option configures a Server.
type Option func(*Server)

// WithStreamInterval sets how often /ws checks for a new sample. Defaults to 20ms.
func WithStreamInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.interval = d
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

// Server is the telemetry HTTP server.
type Server struct {
	src      SampleSource
	interval time.Duration
	logger   logger.Logger
	upgrader websocket.Upgrader
	router   chi.Router
}

// New creates a server reading from src.
func New(src SampleSource, opts ...Option) *Server {
	s := &Server{
		src:      src,
		interval: 20 * time.Millisecond,
		logger:   logger.GetLogger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "bridge")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Get("/status", s.handleStatus)
		r.Get("/sample", s.handleSample)
	})
	r.Get("/ws", s.handleStream)
	s.router = r

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("bridge listening", "address", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
