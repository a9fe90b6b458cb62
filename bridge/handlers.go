package bridge

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/render"
	"github.com/gorilla/websocket"

	"github.com/arloliu/go-elite/internal/task"
	"github.com/arloliu/go-elite/rtsi"
	"github.com/arloliu/go-elite/version"
)

var errNoSample = errors.New("no sample received yet")

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Connected         bool         `json:"connected"`
	ControllerVersion version.Info `json:"controller_version"`
	LastSeq           uint64       `json:"last_seq"`
	LastReceived      *time.Time   `json:"last_received,omitempty"`
}

// SampleResponse is the JSON form of one sample.
type SampleResponse struct {
	Seq      uint64         `json:"seq"`
	Received time.Time      `json:"received"`
	Values   map[string]any `json:"values"`
}

func newSampleResponse(s rtsi.Sample) *SampleResponse {
	values := make(map[string]any, len(s.Names()))
	for i, name := range s.Names() {
		values[name] = s.Values()[i].Interface()
	}

	return &SampleResponse{Seq: s.Seq, Received: s.Received, Values: values}
}

// Render implements render.Renderer.
func (*SampleResponse) Render(http.ResponseWriter, *http.Request) error { return nil }

// ErrResponse is the JSON error body.
type ErrResponse struct {
	Err            error  `json:"-"`
	HTTPStatusCode int    `json:"-"`
	StatusText     string `json:"status"`
	ErrorText      string `json:"error,omitempty"`
}

// Render implements render.Renderer.
func (e *ErrResponse) Render(_ http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func errUnavailable(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusServiceUnavailable,
		StatusText:     "unavailable",
		ErrorText:      err.Error(),
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Connected:         s.src.IsConnected(),
		ControllerVersion: s.src.ControllerVersion(),
	}
	if sample, ok := s.src.Latest(); ok {
		resp.LastSeq = sample.Seq
		resp.LastReceived = &sample.Received
	}

	render.JSON(w, r, resp)
}

func (s *Server) handleSample(w http.ResponseWriter, r *http.Request) {
	sample, ok := s.src.Latest()
	if !ok {
		_ = render.Render(w, r, errUnavailable(errNoSample))
		return
	}

	_ = render.Render(w, r, newSampleResponse(sample))
}

// handleStream pushes every sample newer than the last one sent until the client goes away. Each
// connection runs a reader task, which only observes the close handshake, and an interval push task.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	mgr := task.NewManager(r.Context(), s.logger)
	done := mgr.Context().Done()

	read := func() bool {
		_, _, err := conn.ReadMessage()
		return err == nil
	}

	var lastSeq uint64
	push := func() bool {
		sample, ok := s.src.Latest()
		if !ok || sample.Seq == lastSeq {
			return true
		}
		lastSeq = sample.Seq

		_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
		if err := conn.WriteJSON(newSampleResponse(sample)); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket write failed", "error", err)
			}
			mgr.Stop()

			return false
		}

		return true
	}

	if err := mgr.StartReceiver("bridge-ws-reader", read, mgr.Stop); err != nil {
		s.logger.Warn("failed to start websocket reader", "error", err)
		mgr.Stop()
	} else if err := mgr.StartInterval("bridge-ws-push", push, s.interval, false); err != nil {
		s.logger.Warn("failed to start websocket stream", "error", err)
		mgr.Stop()
	}

	<-done
	_ = conn.Close()
	mgr.Wait()
}
