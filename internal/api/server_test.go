package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/planet-harvest/internal/config"
	"github.com/talgya/planet-harvest/internal/engine"
	"github.com/talgya/planet-harvest/internal/persistence"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.World.Width, cfg.World.Height = 10, 10
	cfg.World.Seed = 7
	cfg.World.Crystal, cfg.World.Metal, cfg.World.Structure = 4, 3, 2
	cfg.Engine.TickIntervalMs = 0

	sim, err := engine.NewSimulation(cfg)
	require.NoError(t, err)
	s := &Server{
		Sim:            sim,
		Eng:            engine.NewEngine(sim, cfg.Engine),
		AdminKey:       "secret",
		AdminPerMinute: 100,
	}
	t.Cleanup(s.Close)
	return s
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func post(t *testing.T, h http.Handler, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatusReportsWorldAndEngine(t *testing.T) {
	s := newTestServer(t)
	rec := get(t, s.Handler(), "/api/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 7, body["seed"])
	assert.EqualValues(t, 10, body["width"])
	assert.EqualValues(t, 8, body["agents"])
	assert.EqualValues(t, 9, body["resources"])
	assert.EqualValues(t, 1, body["speed"])
	assert.Equal(t, false, body["running"])
}

func TestGridAndAgents(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	var grid engine.GridView
	require.NoError(t, json.Unmarshal(get(t, h, "/api/v1/grid").Body.Bytes(), &grid))
	assert.Len(t, grid.Resources, 9)
	assert.Len(t, grid.Agents, 8)

	var all []engine.AgentView
	require.NoError(t, json.Unmarshal(get(t, h, "/api/v1/agents").Body.Bytes(), &all))
	require.Len(t, all, 8)
	assert.Equal(t, "reactive", all[0].Kind)

	var coop []engine.AgentView
	require.NoError(t, json.Unmarshal(get(t, h, "/api/v1/agents?kind=cooperative").Body.Bytes(), &coop))
	assert.Len(t, coop, 2)
	for _, v := range coop {
		assert.Equal(t, "cooperative", v.Kind)
	}
}

func TestAgentDetail(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()
	id := s.Sim.Agents[0].ID

	rec := get(t, h, fmt.Sprintf("/api/v1/agent/%d", id))
	require.Equal(t, http.StatusOK, rec.Code)
	var v engine.AgentView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, id, v.ID)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/agent/abc").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/agent/99999").Code)
}

func TestLedgerAndEventsFollowTicks(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()
	for i := 0; i < 300; i++ {
		s.Eng.StepOnce()
	}

	var ledger ledgerResponse
	require.NoError(t, json.Unmarshal(get(t, h, "/api/v1/ledger").Body.Bytes(), &ledger))
	assert.InDelta(t, s.Sim.Status().Stats.DeliveredUtility, ledger.Total, 1e-9)
	assert.Len(t, ledger.Deliveries, s.Sim.Status().Stats.Delivered)

	var events []engine.Event
	require.NoError(t, json.Unmarshal(get(t, h, "/api/v1/events?limit=5").Body.Bytes(), &events))
	assert.LessOrEqual(t, len(events), 5)

	var deliveries []engine.Event
	require.NoError(t, json.Unmarshal(get(t, h, "/api/v1/events?category=delivery&limit=500").Body.Bytes(), &deliveries))
	for _, e := range deliveries {
		assert.Equal(t, "delivery", e.Category)
	}

	rec := get(t, h, "/api/v1/coordinator")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminEndpointsNeedToken(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	assert.Equal(t, http.StatusUnauthorized, post(t, h, "/api/v1/speed", `{"speed":2}`, "").Code)
	assert.Equal(t, http.StatusUnauthorized, post(t, h, "/api/v1/speed", `{"speed":2}`, "wrong").Code)

	rec := post(t, h, "/api/v1/speed", `{"speed":2}`, "secret")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, s.Eng.Speed())

	assert.Equal(t, http.StatusBadRequest, post(t, h, "/api/v1/speed", `{"speed":5000}`, "secret").Code)
	assert.Equal(t, http.StatusBadRequest, post(t, h, "/api/v1/speed", `nope`, "secret").Code)

	s.AdminKey = ""
	assert.Equal(t, http.StatusForbidden, post(t, h, "/api/v1/speed", `{"speed":1}`, "secret").Code)
}

func TestStepAdvancesOneTick(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rec := post(t, h, "/api/v1/step", "", "secret")
	require.Equal(t, http.StatusOK, rec.Code)
	var f engine.TickFrame
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &f))
	assert.EqualValues(t, 1, f.Tick)
	assert.EqualValues(t, 1, s.Sim.CurrentTick())

	assert.Equal(t, http.StatusMethodNotAllowed, get(t, h, "/api/v1/step").Code)
}

func TestAdminRateLimit(t *testing.T) {
	s := newTestServer(t)
	s.AdminPerMinute = 2
	h := s.Handler()

	assert.Equal(t, http.StatusOK, post(t, h, "/api/v1/speed", `{"speed":1}`, "secret").Code)
	assert.Equal(t, http.StatusOK, post(t, h, "/api/v1/speed", `{"speed":1}`, "secret").Code)
	rec := post(t, h, "/api/v1/speed", `{"speed":1}`, "secret")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRunsNeedsArchive(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), "/api/v1/runs").Code)

	db, err := persistence.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer db.Close()
	_, err = db.BeginRun(s.Sim.Status(), map[string]int{"seed": 7})
	require.NoError(t, err)

	s.DB = db
	rec := get(t, s.Handler(), "/api/v1/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []persistence.RunRow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.EqualValues(t, 7, runs[0].Seed)
}

func TestCORSAllowsLocalhost(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/status", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func dialStream(t *testing.T, srv *httptest.Server) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/stream"
	return websocket.DefaultDialer.Dial(url, nil)
}

func readStream(t *testing.T, conn *websocket.Conn) StreamMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, b, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg StreamMessage
	require.NoError(t, json.Unmarshal(b, &msg))
	return msg
}

func TestStreamPushesTickFrames(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _, err := dialStream(t, srv)
	require.NoError(t, err)
	defer conn.Close()

	hello := readStream(t, conn)
	assert.Equal(t, "hello", hello.Type)
	require.NotNil(t, hello.Status)
	assert.EqualValues(t, 7, hello.Status.Seed)

	s.Eng.StepOnce()
	s.Eng.StepOnce()

	first := readStream(t, conn)
	assert.Equal(t, "tick", first.Type)
	require.NotNil(t, first.Frame)
	assert.EqualValues(t, 1, first.Frame.Tick)
	assert.Len(t, first.Frame.Agents, 8)

	second := readStream(t, conn)
	require.NotNil(t, second.Frame)
	assert.EqualValues(t, 2, second.Frame.Tick)
}

func TestStreamConnectionCap(t *testing.T) {
	s := newTestServer(t)
	s.MaxStreamClients = 1
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _, err := dialStream(t, srv)
	require.NoError(t, err)
	defer conn.Close()
	readStream(t, conn)

	_, resp, err := dialStream(t, srv)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:4321"
	assert.Equal(t, "10.0.0.5", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientIP(req))
}
