package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/wricardo/knights-trail/game/archive"
	"github.com/wricardo/knights-trail/game/config"
	"github.com/wricardo/knights-trail/game/engine"
	"github.com/wricardo/knights-trail/game/orchestrator"
	"github.com/wricardo/knights-trail/game/service"
	"github.com/wricardo/knights-trail/metrics"
	"github.com/wricardo/knights-trail/transport/websocket"
	"go.uber.org/zap"
)

// Events pushed to websocket clients for changes that are not rounds
const (
	EventIntentSubmitted = "intent_submitted"
	EventSessionReset    = "session_reset"
	EventSessionDeleted  = "session_deleted"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Server represents the REST API server
type Server struct {
	service service.GameService
	hub     *websocket.Hub
	metrics *metrics.Collector
	logger  *zap.Logger
	router  *mux.Router
}

// NewServer creates a new API server. hub and collector are optional; without
// them /ws answers 503 and /metrics is not routed.
func NewServer(gameService service.GameService, hub *websocket.Hub, collector *metrics.Collector, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		service: gameService,
		hub:     hub,
		metrics: collector,
		logger:  logger,
		router:  mux.NewRouter(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.Use(s.logRequests)

	api := s.router.PathPrefix("/api").Subrouter()

	// Session management
	api.HandleFunc("/sessions", s.handleCreateSession).Methods("POST")
	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	// Fixed paths must be registered before the {id} pattern
	api.HandleFunc("/sessions/unified", s.handleUnifiedSessions).Methods("GET")
	api.HandleFunc("/sessions/import", s.handleImportSession).Methods("POST")
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods("DELETE")

	// Game operations
	api.HandleFunc("/sessions/{id}/state", s.handleGetGameState).Methods("GET")
	api.HandleFunc("/sessions/{id}/moves", s.handleMove).Methods("POST")
	api.HandleFunc("/sessions/{id}/legal-moves", s.handleLegalMoves).Methods("GET")
	api.HandleFunc("/sessions/{id}/step", s.handleStep).Methods("POST")
	api.HandleFunc("/sessions/{id}/autoplay", s.handleAutoplay).Methods("POST")
	api.HandleFunc("/sessions/{id}/reset", s.handleReset).Methods("POST")
	api.HandleFunc("/sessions/{id}/history", s.handleGetHistory).Methods("GET")
	api.HandleFunc("/sessions/{id}/export", s.handleExport).Methods("GET")
	api.HandleFunc("/replay/verify", s.handleVerifyReplay).Methods("POST")

	// Configuration
	api.HandleFunc("/configs", s.handleListConfigs).Methods("GET")
	api.HandleFunc("/configs", s.handleCreateConfig).Methods("POST")
	api.HandleFunc("/configs/{name}", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/strategies", s.handleListStrategies).Methods("GET")

	// Archive
	api.HandleFunc("/leaderboard", s.handleLeaderboard).Methods("GET")
	api.HandleFunc("/games/recent", s.handleRecentGames).Methods("GET")
	api.HandleFunc("/games/{id}", s.handleGetArchivedGame).Methods("GET")

	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}

	// WebSocket
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps domain errors onto HTTP status codes
func respondServiceError(w http.ResponseWriter, err error) {
	respondError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, config.ErrConfigNotFound),
		errors.Is(err, archive.ErrGameNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrSessionAlreadyExists),
		errors.Is(err, engine.ErrGameOver),
		errors.Is(err, orchestrator.ErrAwaitingHumans),
		errors.Is(err, orchestrator.ErrClosed):
		return http.StatusConflict
	case errors.Is(err, engine.ErrUnknownPlayer),
		errors.Is(err, engine.ErrPlayerNotAlive),
		errors.Is(err, orchestrator.ErrNotHuman),
		errors.Is(err, engine.ErrInvalidRuleset),
		errors.Is(err, config.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, archive.ErrArchiveUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// queryLimit reads ?limit=, defaulting to defaultListLimit and capping at
// maxListLimit
func queryLimit(r *http.Request) int {
	limit := defaultListLimit
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = l
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit
}

// Session Handlers

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConfigID   string `json:"config_id,omitempty"`
		ConfigName string `json:"config_name,omitempty"` // Deprecated, use config_id
		Seed       *int64 `json:"seed,omitempty"`
	}

	// An empty body creates a session from the default preset
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// Support both parameter names, but prefer config_id
	configID := req.ConfigID
	if configID == "" && req.ConfigName != "" {
		configID = req.ConfigName
	}

	session, err := s.service.CreateSession(r.Context(), configID, req.Seed)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, session)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.service.ListSessions(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	// Parse query parameters
	query := r.URL.Query()
	sortBy := query.Get("sort")    // "created", "accessed" (default)
	order := query.Get("order")    // "asc", "desc" (default: "desc")
	limitStr := query.Get("limit") // number of sessions to return

	if sortBy != "created" {
		sortBy = "accessed"
	}
	if order != "asc" {
		order = "desc"
	}

	sort.Slice(sessions, func(i, j int) bool {
		var ti, tj time.Time
		if sortBy == "created" {
			ti, tj = sessions[i].CreatedAt, sessions[j].CreatedAt
		} else {
			ti, tj = sessions[i].LastAccessedAt, sessions[j].LastAccessedAt
		}

		if order == "asc" {
			return ti.Before(tj)
		}
		return ti.After(tj)
	})

	total := len(sessions)
	if limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l < len(sessions) {
			sessions = sessions[:l]
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"count":    len(sessions),
		"total":    total,
		"sessions": sessions,
		"sort":     sortBy,
		"order":    order,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	session, err := s.service.GetSession(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, session)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	if err := s.service.DeleteSession(r.Context(), sessionID); err != nil {
		respondServiceError(w, err)
		return
	}

	if s.hub != nil {
		s.hub.BroadcastEvent(sessionID, EventSessionDeleted, nil)
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Session %s deleted", sessionID),
	})
}

// handleUnifiedSessions returns several sessions at once for dashboards.
// Sessions can be picked by ?sessionIds=a,b or by ?configName=.
func (s *Server) handleUnifiedSessions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var sessions []*service.SessionInfo
	if sessionIDs := query.Get("sessionIds"); sessionIDs != "" {
		for _, id := range strings.Split(sessionIDs, ",") {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if session, err := s.service.GetSession(r.Context(), id); err == nil {
				sessions = append(sessions, session)
			}
		}
	} else {
		all, err := s.service.ListSessions(r.Context())
		if err != nil {
			respondServiceError(w, err)
			return
		}
		configName := query.Get("configName")
		for _, session := range all {
			if configName == "" || session.ConfigName == configName {
				sessions = append(sessions, session)
			}
		}
	}

	summaries := make([]map[string]any, 0, len(sessions))
	running := 0
	for _, session := range sessions {
		over := session.GameState.Phase == engine.PhaseGameOver
		if !over {
			running++
		}
		summaries = append(summaries, map[string]any{
			"session_id":      session.ID,
			"config_name":     session.ConfigName,
			"turn":            session.GameState.Turn,
			"phase":           session.GameState.Phase,
			"game_over":       over,
			"winners":         session.Winners,
			"pending_players": session.Pending,
			"game_state":      session.GameState,
			"created_at":      session.CreatedAt,
			"last_accessed":   session.LastAccessedAt,
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"total":    len(summaries),
		"running":  running,
		"sessions": summaries,
	})
}

func (s *Server) handleImportSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConfigName string           `json:"config_name"`
		Snapshot   *engine.Snapshot `json:"snapshot"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Snapshot == nil {
		respondError(w, http.StatusBadRequest, "snapshot is required")
		return
	}

	session, err := s.service.ImportSession(r.Context(), req.ConfigName, *req.Snapshot)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, session)
}

// Game Operation Handlers

func (s *Server) handleGetGameState(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	state, err := s.service.GetGameState(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, state)
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req struct {
		PlayerID *int            `json:"player_id"`
		To       *engine.Position `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.PlayerID == nil || req.To == nil {
		respondError(w, http.StatusBadRequest, "player_id and to are required")
		return
	}

	result, err := s.service.SubmitMove(r.Context(), sessionID, *req.PlayerID, *req.To)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	// Resolved rounds reach websocket clients through the round listener
	if s.hub != nil && !result.RoundPlayed {
		s.hub.BroadcastEvent(sessionID, EventIntentSubmitted, map[string]any{
			"player_id":       *req.PlayerID,
			"pending_players": result.Pending,
		})
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleLegalMoves(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	playerID, err := strconv.Atoi(r.URL.Query().Get("player"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "player query parameter must be a player id")
		return
	}

	moves, err := s.service.LegalMoves(r.Context(), sessionID, playerID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"player_id": playerID,
		"moves":     moves,
	})
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	result, err := s.service.Step(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleAutoplay(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	result, err := s.service.Autoplay(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	s.logger.Info("autoplay",
		zap.String("session_id", sessionID),
		zap.Int("rounds", result.RoundsPlayed),
		zap.String("stopped_reason", result.StoppedReason),
		zap.Ints("winners", result.Winners))

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	session, err := s.service.ResetSession(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	if s.hub != nil {
		s.hub.BroadcastSnapshot(sessionID, session.GameState)
		s.hub.BroadcastEvent(sessionID, EventSessionReset, nil)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"message": "Game reset successfully",
		"session": session,
	})
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	opts := service.HistoryOptions{
		Page:  1,
		Limit: 20,
		Order: "desc",
	}

	query := r.URL.Query()
	if p, err := strconv.Atoi(query.Get("page")); err == nil && p > 0 {
		opts.Page = p
	}
	if l, err := strconv.Atoi(query.Get("limit")); err == nil && l > 0 {
		opts.Limit = l
	}
	if order := query.Get("order"); order == "asc" || order == "desc" {
		opts.Order = order
	}

	history, err := s.service.GetMoveHistory(r.Context(), sessionID, opts)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, history)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	snap, err := s.service.ExportSession(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", sessionID+".json"))
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleVerifyReplay(w http.ResponseWriter, r *http.Request) {
	var snap engine.Snapshot
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := s.service.VerifyReplay(r.Context(), snap)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	status := http.StatusOK
	if !result.Verified {
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, result)
}

// Configuration Handlers

func (s *Server) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := s.service.ListConfigs(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, configs)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	configName := strings.TrimSuffix(mux.Vars(r)["name"], ".json")

	rules, err := s.service.LoadConfig(r.Context(), configName)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, rules)
}

func (s *Server) handleCreateConfig(w http.ResponseWriter, r *http.Request) {
	var rules engine.Ruleset
	if err := json.NewDecoder(r.Body).Decode(&rules); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if rules.Name == "" {
		respondError(w, http.StatusBadRequest, "Config name is required")
		return
	}

	if err := s.service.SaveConfig(r.Context(), rules.Name, &rules); err != nil {
		respondError(w, statusFor(err), fmt.Sprintf("Failed to save config: %v", err))
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"message":   "Configuration saved successfully",
		"config_id": rules.Name,
	})
}

func (s *Server) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"strategies": s.service.ListStrategies(r.Context()),
		"default":    engine.DefaultStrategyID,
	})
}

// Archive Handlers

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	standings, err := s.service.Leaderboard(r.Context(), queryLimit(r))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"count":     len(standings),
		"standings": standings,
	})
}

func (s *Server) handleRecentGames(w http.ResponseWriter, r *http.Request) {
	games, err := s.service.RecentGames(r.Context(), queryLimit(r))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"count": len(games),
		"games": games,
	})
}

func (s *Server) handleGetArchivedGame(w http.ResponseWriter, r *http.Request) {
	game, err := s.service.GetArchivedGame(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, game)
}

// WebSocket Handler

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		respondError(w, http.StatusServiceUnavailable, "websocket updates are disabled")
		return
	}

	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "session parameter required")
		return
	}

	session, err := s.service.GetSession(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	s.hub.ServeWS(w, r, sessionID, &websocket.Message{
		SessionID: sessionID,
		Event:     websocket.EventState,
		GameState: &session.GameState,
	})
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// statusRecorder captures the response status for request logging. It
// forwards Hijack so websocket upgrades keep working behind the middleware.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (rec *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rec.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	rec.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		}
		if id, ok := mux.Vars(r)["id"]; ok {
			fields = append(fields, zap.String("session_id", id))
		}
		if rec.status >= http.StatusInternalServerError {
			s.logger.Error("request failed", fields...)
			return
		}
		s.logger.Debug("request", fields...)
	})
}
