package bridge

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-elite/rtsi"
	"github.com/arloliu/go-elite/value"
	"github.com/arloliu/go-elite/version"
)

type fakeSource struct {
	latest    atomic.Pointer[rtsi.Sample]
	connected atomic.Bool
}

func (f *fakeSource) Latest() (rtsi.Sample, bool) {
	s := f.latest.Load()
	if s == nil {
		return rtsi.Sample{}, false
	}

	return *s, true
}

func (f *fakeSource) IsConnected() bool { return f.connected.Load() }

func (f *fakeSource) ControllerVersion() version.Info {
	return version.Info{Major: 2, Minor: 14, Bugfix: 0, Build: 123}
}

func (f *fakeSource) publish(seq uint64, ts float64) {
	s := rtsi.NewSample(seq, time.Now(),
		[]string{rtsi.VarTimestamp, rtsi.VarActualJointPositions},
		[]value.Value{value.Of(ts), value.Of(value.Vector6d{1, 2, 3, 4, 5, 6})},
	)
	f.latest.Store(&s)
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "application/json", strings.Split(resp.Header.Get("Content-Type"), ";")[0])
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))

	return resp.StatusCode
}

func TestServer_Status(t *testing.T) {
	require := require.New(t)

	src := &fakeSource{}
	ts := httptest.NewServer(New(src).Handler())
	defer ts.Close()

	var status map[string]any
	require.Equal(http.StatusOK, getJSON(t, ts.URL+"/api/v1/status", &status))
	require.Equal(false, status["connected"])
	require.Equal("2.14.0.123", status["controller_version"])
	require.NotContains(status, "last_received")

	src.connected.Store(true)
	src.publish(7, 1.5)
	require.Equal(http.StatusOK, getJSON(t, ts.URL+"/api/v1/status", &status))
	require.Equal(true, status["connected"])
	require.InDelta(7, status["last_seq"], 0)
	require.Contains(status, "last_received")
}

func TestServer_Sample(t *testing.T) {
	require := require.New(t)

	src := &fakeSource{}
	ts := httptest.NewServer(New(src).Handler())
	defer ts.Close()

	var errBody map[string]any
	require.Equal(http.StatusServiceUnavailable, getJSON(t, ts.URL+"/api/v1/sample", &errBody))
	require.Equal("unavailable", errBody["status"])

	src.publish(1, 12.25)

	var sample SampleResponse
	require.Equal(http.StatusOK, getJSON(t, ts.URL+"/api/v1/sample", &sample))
	require.Equal(uint64(1), sample.Seq)
	require.InDelta(12.25, sample.Values[rtsi.VarTimestamp], 1e-12)
	require.Equal([]any{1.0, 2.0, 3.0, 4.0, 5.0, 6.0}, sample.Values[rtsi.VarActualJointPositions])
}

func TestServer_Stream(t *testing.T) {
	require := require.New(t)

	src := &fakeSource{}
	ts := httptest.NewServer(New(src, WithStreamInterval(time.Millisecond)).Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(err)
	defer conn.Close()

	src.publish(1, 0.004)

	var first SampleResponse
	require.NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	require.NoError(conn.ReadJSON(&first))
	require.Equal(uint64(1), first.Seq)

	src.publish(2, 0.008)

	var second SampleResponse
	require.NoError(conn.ReadJSON(&second))
	require.Equal(uint64(2), second.Seq)
	require.InDelta(0.008, second.Values[rtsi.VarTimestamp], 1e-12)

	require.NoError(conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
}

func TestServer_ListenAndServe(t *testing.T) {
	require := require.New(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(err)
	addr := ln.Addr().String()
	require.NoError(ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(&fakeSource{}).ListenAndServe(ctx, addr) }()

	require.Eventually(func() bool {
		resp, err := http.Get("http://" + addr + "/api/v1/status")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(err)
	case <-time.After(5 * time.Second):
		require.Fail("server did not shut down")
	}
}

func TestServer_StreamEndsWithClient(t *testing.T) {
	require := require.New(t)

	src := &fakeSource{}
	src.publish(7, 0.028)

	s := New(src, WithStreamInterval(time.Millisecond))
	finished := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.handleStream(w, r)
		close(finished)
	}))
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(err)

	var got SampleResponse
	require.NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	require.NoError(conn.ReadJSON(&got))
	require.Equal(uint64(7), got.Seq)

	// an unchanged sample is not pushed again
	require.NoError(conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond)))
	_, _, err = conn.ReadMessage()
	require.Error(err)

	require.NoError(conn.Close())
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		require.Fail("stream handler did not return after the client left")
	}
}
