// Package api serves the simulation over HTTP.
// GET endpoints are public and read-only.
// POST endpoints require a bearer token and only pace the engine.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/talgya/planet-harvest/internal/engine"
	"github.com/talgya/planet-harvest/internal/persistence"
	"github.com/talgya/planet-harvest/internal/world"
)

// Server serves the simulation state over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	DB       *persistence.DB // nil disables /api/v1/runs
	RunID    string
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	MaxStreamClients int
	AdminPerMinute   int

	streamConns atomic.Int32
	limiter     *RateLimiter
}

// Handler builds the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	if s.limiter == nil {
		perMinute := s.AdminPerMinute
		if perMinute <= 0 {
			perMinute = 60
		}
		s.limiter = NewRateLimiter(perMinute, time.Minute)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/grid", s.handleGrid)
	mux.HandleFunc("/api/v1/agents", s.handleAgents)
	mux.HandleFunc("/api/v1/agent/", s.handleAgent)
	mux.HandleFunc("/api/v1/coordinator", s.handleCoordinator)
	mux.HandleFunc("/api/v1/ledger", s.handleLedger)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/runs", s.handleRuns)
	mux.HandleFunc("/api/v1/stream", s.handleStream)

	mux.HandleFunc("/api/v1/speed", s.adminOnly(RateLimitMiddleware(s.limiter, s.handleSpeed)))
	mux.HandleFunc("/api/v1/step", s.adminOnly(RateLimitMiddleware(s.limiter, s.handleStep)))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() *http.Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", srv.Addr, "admin_auth", s.AdminKey != "", "run_id", s.RunID)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	return srv
}

// Close releases the rate limiter's sweeper.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Close()
	}
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS to a comma-separated list of extra origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly requires bearer token auth on POST requests. GET passes through.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no PLANETSIM_ADMIN_KEY set)", http.StatusForbidden)
				return
			}
			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

type statusResponse struct {
	engine.Status
	RunID   string  `json:"run_id,omitempty"`
	Speed   float64 `json:"speed"`
	Running bool    `json:"running"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Status: s.Sim.Status(), RunID: s.RunID}
	if s.Eng != nil {
		resp.Speed = s.Eng.Speed()
		resp.Running = s.Eng.Running()
	}
	writeJSON(w, resp)
}

func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.GridView())
}

// handleAgents lists agents, optionally filtered by ?kind= and ?state=.
func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	state := r.URL.Query().Get("state")

	views := s.Sim.AgentViews()
	out := views[:0]
	for _, v := range views {
		if kind != "" && v.Kind != kind {
			continue
		}
		if state != "" && v.State != state {
			continue
		}
		out = append(out, v)
	}
	writeJSON(w, out)
}

// handleAgent serves GET /api/v1/agent/{id}.
func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(r.URL.Path, "/api/v1/agent/")
	id, err := strconv.ParseUint(strings.Trim(raw, "/"), 10, 64)
	if err != nil {
		http.Error(w, "invalid agent id", http.StatusBadRequest)
		return
	}
	v, ok := s.Sim.AgentView(world.AgentID(id))
	if !ok {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}
	writeJSON(w, v)
}

func (s *Server) handleCoordinator(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.CoordinatorView())
}

type ledgerResponse struct {
	Total      float64          `json:"total"`
	Deliveries []world.Delivery `json:"deliveries"`
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	ledger := s.Sim.Ledger()
	resp := ledgerResponse{Deliveries: ledger}
	for _, d := range ledger {
		resp.Total += d.Utility
	}
	writeJSON(w, resp)
}

// handleEvents returns the newest events; ?limit= (1-500, default 50) and
// ?category= narrow the result.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	events := s.Sim.RecentEvents(0)
	if category := r.URL.Query().Get("category"); category != "" {
		var filtered []engine.Event
		for _, e := range events {
			if e.Category == category {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	start := 0
	if len(events) > limit {
		start = len(events) - limit
	}
	out := events[start:]
	if out == nil {
		out = []engine.Event{}
	}
	writeJSON(w, out)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "run archive disabled", http.StatusNotFound)
		return
	}
	runs, err := s.DB.Runs(20)
	if err != nil {
		slog.Error("list runs", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, runs)
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if s.Eng == nil {
		http.Error(w, "no engine", http.StatusServiceUnavailable)
		return
	}
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

// handleStep advances one tick. Only allowed while the engine is paused or
// not running, so manual steps never race the loop's callbacks.
func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.Eng == nil {
		http.Error(w, "no engine", http.StatusServiceUnavailable)
		return
	}
	if s.Eng.Running() && s.Eng.Speed() > 0 {
		http.Error(w, "engine is running; set speed 0 first", http.StatusConflict)
		return
	}
	frame := s.Eng.StepOnce()
	writeJSON(w, frame)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		slog.Debug("write response", "error", err)
	}
}
