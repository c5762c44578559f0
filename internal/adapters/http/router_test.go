package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/dialin/internal/app"
	"github.com/dkeye/dialin/internal/app/orch"
	"github.com/dkeye/dialin/internal/config"
	"github.com/dkeye/dialin/internal/core/coretest"
	"github.com/dkeye/dialin/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type testServer struct {
	*httptest.Server
	orch    *orch.Orchestrator
	rooms   *coretest.Provisioner
	workers *coretest.Spawner
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{Mode: "test"}
	}
	rooms := &coretest.Provisioner{}
	workers := &coretest.Spawner{}
	o := orch.New(app.NewRegistry(), rooms, workers, orch.Options{StopGrace: 50 * time.Millisecond})
	srv := httptest.NewServer(SetupRouter(cfg, o))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = o.Shutdown(ctx)
		srv.Close()
	})
	return &testServer{Server: srv, orch: o, rooms: rooms, workers: workers}
}

func (s *testServer) post(t *testing.T, body string) (*http.Response, map[string]any) {
	t.Helper()
	res, err := http.Post(s.URL+"/daily_start_bot", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return res, decode(t, res)
}

func (s *testServer) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	res, err := http.Get(s.URL + path)
	require.NoError(t, err)
	return res, decode(t, res)
}

func (s *testServer) start(t *testing.T, callID string) (domain.RoomURL, *coretest.Process) {
	t.Helper()
	res, body := s.post(t, `{"callId":"`+callID+`","callDomain":"example.com"}`)
	require.Equal(t, http.StatusOK, res.StatusCode, body)
	return domain.RoomURL(body["room_url"].(string)), s.workers.Proc(s.workers.Calls() - 1)
}

func decode(t *testing.T, res *http.Response) map[string]any {
	t.Helper()
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	if len(raw) == 0 {
		return nil
	}
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return out
}

func TestStartBotTestPayload(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	res, body := s.post(t, `{"test": true}`)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, map[string]any{"test": true}, body)

	rooms, tokens := s.rooms.Calls()
	assert.Zero(t, rooms)
	assert.Zero(t, tokens)
	assert.Zero(t, s.workers.Calls())
}

func TestStartBotValidation(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	for _, body := range []string{`{"callDomain":"x"}`, `{"callId":""}`, `{"callId":42}`, `not json`, `[1,2]`, `null`} {
		res, out := s.post(t, body)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode, body)
		assert.NotEmpty(t, out["detail"], body)
	}
	assert.Zero(t, s.workers.Calls())
}

func TestStartBotSuccess(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	res, body := s.post(t, `{"callId":"call-1","callDomain":"example.com"}`)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, map[string]any{
		"room_url": "https://test.daily.co/room-1",
		"sipUri":   "room-1@sip.daily.co",
	}, body)
	assert.NotEmpty(t, res.Header.Get(requestIDHeader))

	require.Equal(t, 1, s.workers.Calls())
	assert.Equal(t, "call-1", s.workers.Specs[0].CallID)
	assert.Equal(t, "example.com", s.workers.Specs[0].CallDomain)
}

func TestStartBotFailures(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)
	s.rooms.RoomErr = errors.New("daily down")
	res, body := s.post(t, `{"callId":"call-1"}`)
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.Contains(t, body["detail"], "failed to get room")

	s2 := newTestServer(t, nil)
	s2.workers.Err = errors.New("no python")
	res, body = s2.post(t, `{"callId":"call-1"}`)
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.Contains(t, body["detail"], "no python")
	assert.Equal(t, 0, s2.orch.Registry.Len())
}

func TestQueriesUnknownRoom(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	for _, path := range []string{
		"/bot_output/https://test.daily.co/missing",
		"/bot_variable/https://test.daily.co/missing/score",
		"/bot_variable/",
		"/transcript/https://test.daily.co/missing",
		"/ws/bot_output/https://test.daily.co/missing",
	} {
		res, body := s.get(t, path)
		assert.Equal(t, http.StatusNotFound, res.StatusCode, path)
		assert.NotEmpty(t, body["detail"], path)
	}
}

func TestTranscriptAndVariables(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)
	room, proc := s.start(t, "call-1")

	res, body := s.get(t, "/transcript/"+string(room))
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, map[string]any{"room_url": string(room), "transcript": ""}, body)

	res, _ = s.get(t, "/bot_variable/"+string(room)+"/score")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	proc.Out("VARIABLE_UPDATE:score:42", "TRANSCRIPT_UPDATE:hello world")
	require.Eventually(t, func() bool {
		res, body := s.get(t, "/transcript/"+string(room))
		return res.StatusCode == http.StatusOK && body["transcript"] == "hello world"
	}, time.Second, 5*time.Millisecond)

	res, body = s.get(t, "/bot_variable/"+string(room)+"/score")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, map[string]any{"variable_name": "score", "value": "42"}, body)

	// Escaped room URLs resolve to the same room.
	res, _ = s.get(t, "/transcript/"+strings.ReplaceAll(string(room), "/", "%2F"))
	assert.Equal(t, http.StatusOK, res.StatusCode)

	proc.Exit()
	require.Eventually(t, func() bool {
		res, _ := s.get(t, "/transcript/"+string(room))
		return res.StatusCode == http.StatusNotFound
	}, time.Second, 5*time.Millisecond)
}

func TestBotOutputStreamsUntilExit(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)
	room, proc := s.start(t, "call-1")

	res, err := http.Get(s.URL + "/bot_output/" + string(room))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, res.Header.Get("Content-Type"), "text/plain")

	go func() {
		proc.Out("hello", "TRANSCRIPT_UPDATE:hi")
		proc.Err("bad thing")
		proc.Exit()
	}()

	var lines, stdout []string
	sc := bufio.NewScanner(res.Body)
	for sc.Scan() {
		lines = append(lines, sc.Text())
		if !strings.HasPrefix(sc.Text(), "ERROR: ") {
			stdout = append(stdout, sc.Text())
		}
	}
	// Streams are read concurrently; only per-stream order is fixed.
	assert.Equal(t, []string{"hello", "Transcript updated: hi", "TRANSCRIPT_UPDATE:hi"}, stdout)
	assert.Contains(t, lines, "ERROR: bad thing")
	assert.Len(t, lines, 4)
}

func TestBotOutputWebSocket(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)
	room, proc := s.start(t, "call-1")

	wsURL := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws/bot_output/" + string(room)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	go func() {
		proc.Out("one", "two")
		proc.Exit()
	}()

	for _, want := range []string{"one", "two"} {
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, want, string(msg))
	}
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestSessionsAndStop(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)
	room, proc := s.start(t, "call-1")

	res, body := s.get(t, "/sessions")
	require.Equal(t, http.StatusOK, res.StatusCode)
	sessions := body["sessions"].([]any)
	require.Len(t, sessions, 1)
	assert.Equal(t, string(room), sessions[0].(map[string]any)["room_url"])
	assert.Equal(t, "call-1", sessions[0].(map[string]any)["call_id"])

	req, err := http.NewRequest(http.MethodDelete, s.URL+"/bot/"+string(room), nil)
	require.NoError(t, err)
	res, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.EqualValues(t, 1, proc.Stops.Load())

	require.Eventually(t, func() bool { return s.orch.Registry.Len() == 0 }, time.Second, 5*time.Millisecond)

	res, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestStartBotRateLimit(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, &config.Config{
		Mode:      "test",
		RateLimit: config.RateLimitConfig{StartRequests: 2, Window: time.Minute},
	})

	for range 2 {
		res, _ := s.post(t, `{"test": true}`)
		assert.Equal(t, http.StatusOK, res.StatusCode)
	}
	res, body := s.post(t, `{"test": true}`)
	assert.Equal(t, http.StatusTooManyRequests, res.StatusCode)
	assert.Equal(t, "too many requests", body["detail"])
}

func TestSplitVariablePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in       string
		room     domain.RoomURL
		name     string
		wantFine bool
	}{
		{in: "/https://a.daily.co/r1/score", room: "https://a.daily.co/r1", name: "score", wantFine: true},
		{in: "/room/var", room: "room", name: "var", wantFine: true},
		{in: "/room/", wantFine: false},
		{in: "/room", wantFine: false},
		{in: "/", wantFine: false},
	}
	for _, tt := range tests {
		room, name, ok := splitVariablePath(tt.in)
		assert.Equal(t, tt.wantFine, ok, tt.in)
		assert.Equal(t, tt.room, room, tt.in)
		assert.Equal(t, tt.name, name, tt.in)
	}
}
