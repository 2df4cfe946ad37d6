package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/evoflow/api"
	"github.com/BaSui01/evoflow/observer"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newStreamServer(t *testing.T, hub *observer.Hub) *httptest.Server {
	t.Helper()
	h := NewStreamHandler(hub, StreamConfig{Buffer: 8, WriteTimeout: time.Second}, zaptest.NewLogger(t))
	srv := httptest.NewServer(NewRouter(RouterConfig{Stream: h}))
	t.Cleanup(srv.Close)
	return srv
}

func dialStream(t *testing.T, srv *httptest.Server, runID string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/runs/" + runID + "/stream"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) observer.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var ev observer.Event
	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	return ev
}

func TestStreamHandler_ReplaysThenStreams(t *testing.T) {
	hub := observer.NewHub(16, time.Minute, nil)
	defer hub.Close()
	sink := hub.Sink("run-1")
	sink.Emit(observer.NewEvent(observer.EventAgentStart, "plan"))

	srv := newStreamServer(t, hub)
	conn := dialStream(t, srv, "run-1")

	first := readEvent(t, conn)
	assert.Equal(t, observer.EventAgentStart, first.Type)
	assert.Equal(t, "plan", first.NodeID)

	sink.Emit(observer.NewEvent(observer.EventAgentEnd, "plan"))
	second := readEvent(t, conn)
	assert.Equal(t, observer.EventAgentEnd, second.Type)
}

func TestStreamHandler_ClosesWhenSinkCloses(t *testing.T) {
	hub := observer.NewHub(16, time.Minute, nil)
	defer hub.Close()
	sink := hub.Sink("run-2")

	srv := newStreamServer(t, hub)
	conn := dialStream(t, srv, "run-2")

	sink.Emit(observer.NewEvent(observer.EventAgentError, "act"))
	readEvent(t, conn)
	sink.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}

func TestStreamHandler_UnknownRun(t *testing.T) {
	hub := observer.NewHub(16, time.Minute, nil)
	defer hub.Close()
	srv := newStreamServer(t, hub)

	resp, err := http.Get(srv.URL + "/runs/ghost/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStreamHandler_Snapshot(t *testing.T) {
	hub := observer.NewHub(16, time.Minute, nil)
	defer hub.Close()
	sink := hub.Sink("run-3")
	sink.Emit(observer.NewEvent(observer.EventAgentToolStart, "search"))
	sink.Emit(observer.NewEvent(observer.EventAgentToolEnd, "search"))

	h := NewStreamHandler(hub, StreamConfig{}, nil)
	mux := NewRouter(RouterConfig{Stream: h})

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs/run-3/events", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var snap api.EventSnapshot
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &snap))
	assert.Equal(t, "run-3", snap.RunID)
	require.Len(t, snap.Events, 2)
	assert.Equal(t, observer.EventAgentToolStart, snap.Events[0].Type)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs/other/events", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNewStreamHandler_Defaults(t *testing.T) {
	h := NewStreamHandler(observer.NewHub(1, time.Second, nil), StreamConfig{}, nil)
	assert.Equal(t, DefaultStreamConfig().Buffer, h.config.Buffer)
	assert.Equal(t, DefaultStreamConfig().WriteTimeout, h.config.WriteTimeout)
}
