package web

import (
	"embed"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"github.com/meridianfi/sve/internal/logger"
	"github.com/meridianfi/sve/internal/rebalance"
	"github.com/meridianfi/sve/internal/state"
	"github.com/meridianfi/sve/internal/timelock"
	"github.com/meridianfi/sve/internal/types"
)

var webLogger = logger.GetForComponent("web_server")

//go:embed static/*
var staticFiles embed.FS

//go:embed static/index.html
var dashboardHTML []byte

// WebServer handles HTTP requests for strategy data visualization
type WebServer struct {
	router   *mux.Router
	port     string
	strategy common.Address
	engine   *rebalance.Engine
	locks    *timelock.Timelock
}

// NewWebServer creates a new web server instance
func NewWebServer(port string, strategy common.Address, engine *rebalance.Engine, locks *timelock.Timelock) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:   mux.NewRouter(),
		port:     port,
		strategy: strategy,
		engine:   engine,
		locks:    locks,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Static files
	staticHandler := http.FileServer(http.FS(staticFiles))
	ws.router.PathPrefix("/static/").Handler(http.StripPrefix("/", staticHandler))

	// Dashboard routes
	ws.router.HandleFunc("/", ws.handleDashboard).Methods("GET")
	ws.router.HandleFunc("/dashboard", ws.handleDashboard).Methods("GET")

	// Health endpoint (direct route)
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/plans/latest", ws.handleGetLatestPlan).Methods("GET")
	api.HandleFunc("/plans/{id}", ws.handleGetPlan).Methods("GET")
	api.HandleFunc("/params", ws.handleGetParams).Methods("GET")
	api.HandleFunc("/timelock", ws.handleGetTimelock).Methods("GET")
	api.HandleFunc("/timelock/params", ws.handleProposeParams).Methods("POST")
	api.HandleFunc("/timelock/restructure", ws.handleProposeRestructure).Methods("POST")
	api.HandleFunc("/timelock/{kind}", ws.handleCancelTimelock).Methods("DELETE")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

func (ws *WebServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(dashboardHTML)
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	health := map[string]interface{}{
		"status":      "ok",
		"timestamp":   time.Now().UTC(),
		"strategy":    ws.strategy.Hex(),
		"goroutines":  runtime.NumGoroutine(),
		"mem_alloc":   memStats.Alloc,
		"db_healthy":  state.TestDBConnection() == nil,
	}

	ws.writeJSON(w, http.StatusOK, health)
}

func (ws *WebServer) handleGetLatestPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := state.GetLatestTradePlan(ws.strategy)
	if err != nil {
		ws.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if plan == nil {
		ws.writeError(w, http.StatusNotFound, "no plans recorded yet")
		return
	}
	ws.writeJSON(w, http.StatusOK, plan)
}

func (ws *WebServer) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	planID := mux.Vars(r)["id"]
	plan, err := state.GetTradePlan(planID)
	if err != nil {
		ws.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if plan == nil {
		ws.writeError(w, http.StatusNotFound, "plan not found")
		return
	}
	ws.writeJSON(w, http.StatusOK, plan)
}

func (ws *WebServer) handleGetParams(w http.ResponseWriter, r *http.Request) {
	ws.writeJSON(w, http.StatusOK, ws.engine.Params())
}

func (ws *WebServer) handleGetTimelock(w http.ResponseWriter, r *http.Request) {
	pending := map[string]interface{}{}
	if change, ok := ws.locks.Pending(ws.strategy, timelock.KindRestructure); ok {
		pending["restructure"] = change
	}
	if change, ok := ws.locks.Pending(ws.strategy, timelock.KindParams); ok {
		pending["params"] = change
	}
	ws.writeJSON(w, http.StatusOK, pending)
}

// handleProposeParams queues a parameter update behind the timelock.
func (ws *WebServer) handleProposeParams(w http.ResponseWriter, r *http.Request) {
	var params types.RebalanceParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		ws.writeError(w, http.StatusBadRequest, "invalid params payload: "+err.Error())
		return
	}

	change, err := ws.locks.ProposeParams(ws.strategy, params)
	if err != nil {
		if errors.Is(err, timelock.ErrChangePending) {
			ws.writeError(w, http.StatusConflict, err.Error())
			return
		}
		ws.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	ws.persistProposal(change)
	ws.writeJSON(w, http.StatusAccepted, change)
}

// handleProposeRestructure queues a replacement item set behind the
// timelock.
func (ws *WebServer) handleProposeRestructure(w http.ResponseWriter, r *http.Request) {
	var items []types.Item
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		ws.writeError(w, http.StatusBadRequest, "invalid items payload: "+err.Error())
		return
	}

	change, err := ws.locks.ProposeRestructure(ws.strategy, items)
	if err != nil {
		if errors.Is(err, timelock.ErrChangePending) {
			ws.writeError(w, http.StatusConflict, err.Error())
			return
		}
		ws.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	ws.persistProposal(change)
	ws.writeJSON(w, http.StatusAccepted, change)
}

// handleCancelTimelock discards the pending change of a kind.
func (ws *WebServer) handleCancelTimelock(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseChangeKind(mux.Vars(r)["kind"])
	if !ok {
		ws.writeError(w, http.StatusBadRequest, "unknown timelock kind")
		return
	}

	change, pending := ws.locks.Pending(ws.strategy, kind)
	if !pending {
		ws.writeError(w, http.StatusNotFound, "no pending change of this kind")
		return
	}
	if err := ws.locks.Cancel(ws.strategy, kind); err != nil {
		ws.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err := state.MarkTimelockCancelled(change); err != nil {
		webLogger.Warn().Err(err).Str("kind", string(kind)).Msg("Failed to persist timelock cancellation")
	}
	ws.writeJSON(w, http.StatusOK, map[string]string{"cancelled": string(kind)})
}

// persistProposal records a proposal so it survives a restart. A storage
// failure never rejects the proposal itself; the change is already live in
// memory.
func (ws *WebServer) persistProposal(change timelock.PendingChange) {
	if err := state.SaveTimelockChange(change); err != nil {
		webLogger.Warn().Err(err).Str("kind", string(change.Kind)).Msg("Failed to persist timelock proposal")
	}
}

func parseChangeKind(s string) (timelock.ChangeKind, bool) {
	switch strings.ToLower(s) {
	case "params":
		return timelock.KindParams, true
	case "restructure":
		return timelock.KindRestructure, true
	}
	return "", false
}

func (ws *WebServer) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (ws *WebServer) writeError(w http.ResponseWriter, status int, message string) {
	ws.writeJSON(w, status, map[string]string{"error": message})
}

// corsMiddleware adds CORS headers for dashboard access
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs each request
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		webLogger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}
