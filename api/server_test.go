package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/wricardo/knights-trail/game/archive"
	"github.com/wricardo/knights-trail/game/config"
	"github.com/wricardo/knights-trail/game/engine"
	"github.com/wricardo/knights-trail/game/orchestrator"
	"github.com/wricardo/knights-trail/game/service"
	"github.com/wricardo/knights-trail/game/session"
	"github.com/wricardo/knights-trail/game/strategy"
	"github.com/wricardo/knights-trail/metrics"
	"github.com/wricardo/knights-trail/transport/websocket"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// MockGameService implements service.GameService for testing
type MockGameService struct {
	CreateSessionFunc func(ctx context.Context, configName string, seed *int64) (*service.SessionInfo, error)
	GetSessionFunc    func(ctx context.Context, sessionID string) (*service.SessionInfo, error)
	ListSessionsFunc  func(ctx context.Context) ([]*service.SessionInfo, error)
	DeleteSessionFunc func(ctx context.Context, sessionID string) error
	ResetSessionFunc  func(ctx context.Context, sessionID string) (*service.SessionInfo, error)

	SubmitMoveFunc func(ctx context.Context, sessionID string, playerID int, to engine.Position) (*service.MoveResult, error)
	StepFunc       func(ctx context.Context, sessionID string) (*service.RoundsResult, error)
	AutoplayFunc   func(ctx context.Context, sessionID string) (*service.RoundsResult, error)
	LegalMovesFunc func(ctx context.Context, sessionID string, playerID int) ([]engine.Position, error)

	GetGameStateFunc   func(ctx context.Context, sessionID string) (*engine.Snapshot, error)
	GetMoveHistoryFunc func(ctx context.Context, sessionID string, opts service.HistoryOptions) (*service.HistoryResponse, error)
	ExportSessionFunc  func(ctx context.Context, sessionID string) (*engine.Snapshot, error)
	ImportSessionFunc  func(ctx context.Context, configName string, snap engine.Snapshot) (*service.SessionInfo, error)
	VerifyReplayFunc   func(ctx context.Context, snap engine.Snapshot) (*service.ReplayResult, error)

	ListConfigsFunc func(ctx context.Context) ([]*service.ConfigInfo, error)
	LoadConfigFunc  func(ctx context.Context, configName string) (*engine.Ruleset, error)
	SaveConfigFunc  func(ctx context.Context, configName string, rules *engine.Ruleset) error

	LeaderboardFunc     func(ctx context.Context, limit int) ([]archive.Standing, error)
	RecentGamesFunc     func(ctx context.Context, limit int) ([]archive.Game, error)
	GetArchivedGameFunc func(ctx context.Context, sessionID string) (*archive.Game, error)
}

// Session Management
func (m *MockGameService) CreateSession(ctx context.Context, configName string, seed *int64) (*service.SessionInfo, error) {
	if m.CreateSessionFunc != nil {
		return m.CreateSessionFunc(ctx, configName, seed)
	}
	return &service.SessionInfo{ID: "test-session", ConfigName: configName, CreatedAt: time.Now()}, nil
}

func (m *MockGameService) GetSession(ctx context.Context, sessionID string) (*service.SessionInfo, error) {
	if m.GetSessionFunc != nil {
		return m.GetSessionFunc(ctx, sessionID)
	}
	return &service.SessionInfo{ID: sessionID, ConfigName: "test-config", CreatedAt: time.Now()}, nil
}

func (m *MockGameService) ListSessions(ctx context.Context) ([]*service.SessionInfo, error) {
	if m.ListSessionsFunc != nil {
		return m.ListSessionsFunc(ctx)
	}
	return []*service.SessionInfo{}, nil
}

func (m *MockGameService) DeleteSession(ctx context.Context, sessionID string) error {
	if m.DeleteSessionFunc != nil {
		return m.DeleteSessionFunc(ctx, sessionID)
	}
	return nil
}

func (m *MockGameService) ResetSession(ctx context.Context, sessionID string) (*service.SessionInfo, error) {
	if m.ResetSessionFunc != nil {
		return m.ResetSessionFunc(ctx, sessionID)
	}
	return &service.SessionInfo{ID: sessionID}, nil
}

// Game Operations
func (m *MockGameService) SubmitMove(ctx context.Context, sessionID string, playerID int, to engine.Position) (*service.MoveResult, error) {
	if m.SubmitMoveFunc != nil {
		return m.SubmitMoveFunc(ctx, sessionID, playerID, to)
	}
	return &service.MoveResult{Accepted: true, Pending: []int{}}, nil
}

func (m *MockGameService) Step(ctx context.Context, sessionID string) (*service.RoundsResult, error) {
	if m.StepFunc != nil {
		return m.StepFunc(ctx, sessionID)
	}
	return &service.RoundsResult{Rounds: []orchestrator.RoundResult{}}, nil
}

func (m *MockGameService) Autoplay(ctx context.Context, sessionID string) (*service.RoundsResult, error) {
	if m.AutoplayFunc != nil {
		return m.AutoplayFunc(ctx, sessionID)
	}
	return &service.RoundsResult{Rounds: []orchestrator.RoundResult{}}, nil
}

func (m *MockGameService) LegalMoves(ctx context.Context, sessionID string, playerID int) ([]engine.Position, error) {
	if m.LegalMovesFunc != nil {
		return m.LegalMovesFunc(ctx, sessionID, playerID)
	}
	return []engine.Position{}, nil
}

// Game State
func (m *MockGameService) GetGameState(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
	if m.GetGameStateFunc != nil {
		return m.GetGameStateFunc(ctx, sessionID)
	}
	return &engine.Snapshot{}, nil
}

func (m *MockGameService) GetMoveHistory(ctx context.Context, sessionID string, opts service.HistoryOptions) (*service.HistoryResponse, error) {
	if m.GetMoveHistoryFunc != nil {
		return m.GetMoveHistoryFunc(ctx, sessionID, opts)
	}
	return &service.HistoryResponse{
		Turns:      []engine.TurnRecord{},
		Page:       opts.Page,
		PageSize:   opts.Limit,
		TotalPages: 1,
	}, nil
}

func (m *MockGameService) ExportSession(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
	if m.ExportSessionFunc != nil {
		return m.ExportSessionFunc(ctx, sessionID)
	}
	return &engine.Snapshot{}, nil
}

func (m *MockGameService) ImportSession(ctx context.Context, configName string, snap engine.Snapshot) (*service.SessionInfo, error) {
	if m.ImportSessionFunc != nil {
		return m.ImportSessionFunc(ctx, configName, snap)
	}
	return &service.SessionInfo{ID: "imported", ConfigName: configName, GameState: snap}, nil
}

func (m *MockGameService) VerifyReplay(ctx context.Context, snap engine.Snapshot) (*service.ReplayResult, error) {
	if m.VerifyReplayFunc != nil {
		return m.VerifyReplayFunc(ctx, snap)
	}
	return &service.ReplayResult{Verified: true, Turn: snap.Turn, Phase: snap.Phase}, nil
}

// Configuration
func (m *MockGameService) ListConfigs(ctx context.Context) ([]*service.ConfigInfo, error) {
	if m.ListConfigsFunc != nil {
		return m.ListConfigsFunc(ctx)
	}
	return []*service.ConfigInfo{}, nil
}

func (m *MockGameService) LoadConfig(ctx context.Context, configName string) (*engine.Ruleset, error) {
	if m.LoadConfigFunc != nil {
		return m.LoadConfigFunc(ctx, configName)
	}
	return &engine.Ruleset{Name: configName, Description: "Test config", BoardSize: 8, PlayerCount: 2}, nil
}

func (m *MockGameService) SaveConfig(ctx context.Context, configName string, rules *engine.Ruleset) error {
	if m.SaveConfigFunc != nil {
		return m.SaveConfigFunc(ctx, configName, rules)
	}
	return nil
}

func (m *MockGameService) ListStrategies(ctx context.Context) []string {
	return []string{"mobility", "aggressor", "balanced"}
}

// Archive
func (m *MockGameService) Leaderboard(ctx context.Context, limit int) ([]archive.Standing, error) {
	if m.LeaderboardFunc != nil {
		return m.LeaderboardFunc(ctx, limit)
	}
	return []archive.Standing{}, nil
}

func (m *MockGameService) RecentGames(ctx context.Context, limit int) ([]archive.Game, error) {
	if m.RecentGamesFunc != nil {
		return m.RecentGamesFunc(ctx, limit)
	}
	return []archive.Game{}, nil
}

func (m *MockGameService) GetArchivedGame(ctx context.Context, sessionID string) (*archive.Game, error) {
	if m.GetArchivedGameFunc != nil {
		return m.GetArchivedGameFunc(ctx, sessionID)
	}
	return nil, archive.ErrGameNotFound
}

func (m *MockGameService) HandleRound(sessionID string, r orchestrator.RoundResult) {}

// Test helpers
func setupTestServer(t *testing.T, mockService *MockGameService) *Server {
	t.Helper()
	// Websocket goroutines can outlive the test, so nothing here logs to t
	hub := websocket.NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return NewServer(mockService, hub, metrics.New(), zap.NewNop())
}

func makeRequest(method, path string, body any) *http.Request {
	var bodyBytes []byte
	if body != nil {
		bodyBytes, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewBuffer(bodyBytes))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), target); err != nil {
		t.Fatalf("Failed to parse response: %v (body %s)", err, w.Body.String())
	}
}

func serve(t *testing.T, server *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	return w
}

func intPtr(v int) *int { return &v }

// Session Management Tests

func TestCreateSession(t *testing.T) {
	tests := []struct {
		name           string
		requestBody    any
		setupMock      func(*testing.T, *MockGameService)
		expectedStatus int
		validateResp   func(*testing.T, *httptest.ResponseRecorder)
	}{
		{
			name:        "Create session with default config",
			requestBody: nil,
			setupMock: func(t *testing.T, m *MockGameService) {
				m.CreateSessionFunc = func(ctx context.Context, configName string, seed *int64) (*service.SessionInfo, error) {
					if configName != "" || seed != nil {
						t.Errorf("Expected defaults, got config %q seed %v", configName, seed)
					}
					return &service.SessionInfo{ID: "sess-123", ConfigName: "classic"}, nil
				}
			},
			expectedStatus: http.StatusCreated,
			validateResp: func(t *testing.T, w *httptest.ResponseRecorder) {
				var resp service.SessionInfo
				parseResponse(t, w, &resp)
				if resp.ID != "sess-123" {
					t.Errorf("Expected session ID sess-123, got %s", resp.ID)
				}
			},
		},
		{
			name:        "Create session with config and seed",
			requestBody: map[string]any{"config_id": "duel", "seed": 99},
			setupMock: func(t *testing.T, m *MockGameService) {
				m.CreateSessionFunc = func(ctx context.Context, configName string, seed *int64) (*service.SessionInfo, error) {
					if configName != "duel" {
						t.Errorf("Expected config 'duel', got %s", configName)
					}
					if seed == nil || *seed != 99 {
						t.Errorf("Expected seed 99, got %v", seed)
					}
					return &service.SessionInfo{ID: "sess-456", ConfigName: configName}, nil
				}
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:        "Deprecated config_name is accepted",
			requestBody: map[string]string{"config_name": "arena"},
			setupMock: func(t *testing.T, m *MockGameService) {
				m.CreateSessionFunc = func(ctx context.Context, configName string, seed *int64) (*service.SessionInfo, error) {
					if configName != "arena" {
						t.Errorf("Expected config 'arena', got %s", configName)
					}
					return &service.SessionInfo{ID: "sess-789", ConfigName: configName}, nil
				}
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:        "Unknown config",
			requestBody: map[string]string{"config_id": "nope"},
			setupMock: func(t *testing.T, m *MockGameService) {
				m.CreateSessionFunc = func(ctx context.Context, configName string, seed *int64) (*service.SessionInfo, error) {
					return nil, fmt.Errorf("config 'nope' not found: %w", config.ErrConfigNotFound)
				}
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:        "Handle service error",
			requestBody: nil,
			setupMock: func(t *testing.T, m *MockGameService) {
				m.CreateSessionFunc = func(ctx context.Context, configName string, seed *int64) (*service.SessionInfo, error) {
					return nil, fmt.Errorf("service error")
				}
			},
			expectedStatus: http.StatusInternalServerError,
			validateResp: func(t *testing.T, w *httptest.ResponseRecorder) {
				var resp map[string]string
				parseResponse(t, w, &resp)
				if resp["error"] != "service error" {
					t.Errorf("Expected error message 'service error', got %s", resp["error"])
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockGameService{}
			if tt.setupMock != nil {
				tt.setupMock(t, mockService)
			}

			server := setupTestServer(t, mockService)
			w := serve(t, server, makeRequest("POST", "/api/sessions", tt.requestBody))

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d (%s)", tt.expectedStatus, w.Code, w.Body.String())
			}
			if tt.validateResp != nil {
				tt.validateResp(t, w)
			}
		})
	}

	t.Run("Malformed body", func(t *testing.T) {
		server := setupTestServer(t, &MockGameService{})
		req := httptest.NewRequest("POST", "/api/sessions", strings.NewReader("{"))
		w := serve(t, server, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})
}

func TestListSessions(t *testing.T) {
	now := time.Now()
	mockService := &MockGameService{
		ListSessionsFunc: func(ctx context.Context) ([]*service.SessionInfo, error) {
			return []*service.SessionInfo{
				{ID: "old", CreatedAt: now.Add(-2 * time.Hour), LastAccessedAt: now},
				{ID: "mid", CreatedAt: now.Add(-time.Hour), LastAccessedAt: now.Add(-time.Hour)},
				{ID: "new", CreatedAt: now, LastAccessedAt: now.Add(-2 * time.Hour)},
			}, nil
		},
	}
	server := setupTestServer(t, mockService)

	tests := []struct {
		query     string
		wantOrder []string
		wantSort  string
	}{
		{"", []string{"old", "mid", "new"}, "accessed"},
		{"?sort=created", []string{"new", "mid", "old"}, "created"},
		{"?sort=created&order=asc", []string{"old", "mid", "new"}, "created"},
		{"?sort=created&limit=2", []string{"new", "mid"}, "created"},
		{"?sort=bogus&limit=0", []string{"old", "mid", "new"}, "accessed"},
	}

	for _, tt := range tests {
		t.Run("query"+tt.query, func(t *testing.T) {
			w := serve(t, server, makeRequest("GET", "/api/sessions"+tt.query, nil))
			if w.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d", w.Code)
			}

			var resp struct {
				Count    int                    `json:"count"`
				Total    int                    `json:"total"`
				Sort     string                 `json:"sort"`
				Sessions []*service.SessionInfo `json:"sessions"`
			}
			parseResponse(t, w, &resp)

			if resp.Total != 3 {
				t.Errorf("Expected total 3, got %d", resp.Total)
			}
			if resp.Sort != tt.wantSort {
				t.Errorf("Expected sort %q, got %q", tt.wantSort, resp.Sort)
			}
			if resp.Count != len(tt.wantOrder) {
				t.Fatalf("Expected %d sessions, got %d", len(tt.wantOrder), resp.Count)
			}
			for i, id := range tt.wantOrder {
				if resp.Sessions[i].ID != id {
					t.Errorf("Position %d: expected %s, got %s", i, id, resp.Sessions[i].ID)
				}
			}
		})
	}
}

func TestGetAndDeleteSession(t *testing.T) {
	mockService := &MockGameService{
		GetSessionFunc: func(ctx context.Context, sessionID string) (*service.SessionInfo, error) {
			if sessionID == "missing" {
				return nil, service.ErrSessionNotFound
			}
			return &service.SessionInfo{ID: sessionID, ConfigName: "classic"}, nil
		},
		DeleteSessionFunc: func(ctx context.Context, sessionID string) error {
			if sessionID == "missing" {
				return fmt.Errorf("failed to delete session: %w", service.ErrSessionNotFound)
			}
			return nil
		},
	}
	server := setupTestServer(t, mockService)

	t.Run("get existing", func(t *testing.T) {
		w := serve(t, server, makeRequest("GET", "/api/sessions/abc123", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}
		var resp service.SessionInfo
		parseResponse(t, w, &resp)
		if resp.ID != "abc123" {
			t.Errorf("Expected ID abc123, got %s", resp.ID)
		}
	})

	t.Run("get missing", func(t *testing.T) {
		w := serve(t, server, makeRequest("GET", "/api/sessions/missing", nil))
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected status 404, got %d", w.Code)
		}
	})

	t.Run("delete existing", func(t *testing.T) {
		w := serve(t, server, makeRequest("DELETE", "/api/sessions/abc123", nil))
		if w.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", w.Code)
		}
	})

	t.Run("delete missing", func(t *testing.T) {
		w := serve(t, server, makeRequest("DELETE", "/api/sessions/missing", nil))
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected status 404, got %d", w.Code)
		}
	})
}

// Game Operation Tests

func TestMove(t *testing.T) {
	tests := []struct {
		name           string
		body           any
		err            error
		expectedStatus int
	}{
		{"valid intent", map[string]any{"player_id": 0, "to": map[string]int{"row": 3, "col": 2}}, nil, http.StatusOK},
		{"player zero is not missing", map[string]any{"player_id": 0, "to": map[string]int{"row": 0, "col": 0}}, nil, http.StatusOK},
		{"missing target", map[string]any{"player_id": 0}, nil, http.StatusBadRequest},
		{"missing player", map[string]any{"to": map[string]int{"row": 3, "col": 2}}, nil, http.StatusBadRequest},
		{"unknown player", map[string]any{"player_id": 9, "to": map[string]int{"row": 3, "col": 2}}, engine.ErrUnknownPlayer, http.StatusBadRequest},
		{"computer seat", map[string]any{"player_id": 1, "to": map[string]int{"row": 3, "col": 2}}, orchestrator.ErrNotHuman, http.StatusBadRequest},
		{"eliminated player", map[string]any{"player_id": 0, "to": map[string]int{"row": 3, "col": 2}}, engine.ErrPlayerNotAlive, http.StatusBadRequest},
		{"finished game", map[string]any{"player_id": 0, "to": map[string]int{"row": 3, "col": 2}}, engine.ErrGameOver, http.StatusConflict},
		{"missing session", map[string]any{"player_id": 0, "to": map[string]int{"row": 3, "col": 2}}, service.ErrSessionNotFound, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPlayer int
			var gotTo engine.Position
			mockService := &MockGameService{
				SubmitMoveFunc: func(ctx context.Context, sessionID string, playerID int, to engine.Position) (*service.MoveResult, error) {
					gotPlayer, gotTo = playerID, to
					if tt.err != nil {
						return nil, tt.err
					}
					return &service.MoveResult{Accepted: true, Pending: []int{1}}, nil
				},
			}
			server := setupTestServer(t, mockService)

			w := serve(t, server, makeRequest("POST", "/api/sessions/s1/moves", tt.body))
			if w.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d (%s)", tt.expectedStatus, w.Code, w.Body.String())
			}
			if w.Code == http.StatusOK {
				body := tt.body.(map[string]any)
				to := body["to"].(map[string]int)
				if gotPlayer != body["player_id"] || gotTo != (engine.Position{Row: to["row"], Col: to["col"]}) {
					t.Errorf("Service received player %d to %+v", gotPlayer, gotTo)
				}
				var resp service.MoveResult
				parseResponse(t, w, &resp)
				if !resp.Accepted {
					t.Error("Expected accepted intent")
				}
			}
		})
	}
}

func TestLegalMoves(t *testing.T) {
	mockService := &MockGameService{
		LegalMovesFunc: func(ctx context.Context, sessionID string, playerID int) ([]engine.Position, error) {
			if playerID != 1 {
				return nil, engine.ErrUnknownPlayer
			}
			return []engine.Position{{Row: 0, Col: 1}, {Row: 2, Col: 3}}, nil
		},
	}
	server := setupTestServer(t, mockService)

	w := serve(t, server, makeRequest("GET", "/api/sessions/s1/legal-moves?player=1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp struct {
		PlayerID int               `json:"player_id"`
		Moves    []engine.Position `json:"moves"`
	}
	parseResponse(t, w, &resp)
	if resp.PlayerID != 1 || len(resp.Moves) != 2 {
		t.Errorf("Unexpected response: %+v", resp)
	}

	if w := serve(t, server, makeRequest("GET", "/api/sessions/s1/legal-moves?player=x", nil)); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for non-numeric player, got %d", w.Code)
	}
	if w := serve(t, server, makeRequest("GET", "/api/sessions/s1/legal-moves?player=7", nil)); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown player, got %d", w.Code)
	}
}

func TestStepAndAutoplay(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		result         *service.RoundsResult
		err            error
		expectedStatus int
	}{
		{
			name:           "step plays a round",
			path:           "/api/sessions/s1/step",
			result:         &service.RoundsResult{Rounds: []orchestrator.RoundResult{{Turn: 1}}, RoundsPlayed: 1},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "step while humans pending",
			path:           "/api/sessions/s1/step",
			err:            orchestrator.ErrAwaitingHumans,
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "step after game over",
			path:           "/api/sessions/s1/step",
			err:            engine.ErrGameOver,
			expectedStatus: http.StatusConflict,
		},
		{
			name: "autoplay to the end",
			path: "/api/sessions/s1/autoplay",
			result: &service.RoundsResult{
				RoundsPlayed:  4,
				GameOver:      true,
				Winners:       []int{1},
				StoppedReason: service.StopGameOver,
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "autoplay on missing session",
			path:           "/api/sessions/s1/autoplay",
			err:            service.ErrSessionNotFound,
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn := func(ctx context.Context, sessionID string) (*service.RoundsResult, error) {
				return tt.result, tt.err
			}
			server := setupTestServer(t, &MockGameService{StepFunc: fn, AutoplayFunc: fn})

			w := serve(t, server, makeRequest("POST", tt.path, nil))
			if w.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if tt.result != nil {
				var resp service.RoundsResult
				parseResponse(t, w, &resp)
				if resp.RoundsPlayed != tt.result.RoundsPlayed || resp.StoppedReason != tt.result.StoppedReason {
					t.Errorf("Unexpected response: %+v", resp)
				}
			}
		})
	}
}

func TestReset(t *testing.T) {
	mockService := &MockGameService{
		ResetSessionFunc: func(ctx context.Context, sessionID string) (*service.SessionInfo, error) {
			if sessionID != "s1" {
				return nil, service.ErrSessionNotFound
			}
			return &service.SessionInfo{ID: sessionID, GameState: engine.Snapshot{Turn: 0, Seed: 42}}, nil
		},
	}
	server := setupTestServer(t, mockService)

	w := serve(t, server, makeRequest("POST", "/api/sessions/s1/reset", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp struct {
		Message string              `json:"message"`
		Session service.SessionInfo `json:"session"`
	}
	parseResponse(t, w, &resp)
	if resp.Session.GameState.Seed != 42 {
		t.Errorf("Expected seed to be kept, got %d", resp.Session.GameState.Seed)
	}

	if w := serve(t, server, makeRequest("POST", "/api/sessions/other/reset", nil)); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestGetHistory(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		wantOpts service.HistoryOptions
	}{
		{"defaults", "", service.HistoryOptions{Page: 1, Limit: 20, Order: "desc"}},
		{"explicit", "?page=3&limit=5&order=asc", service.HistoryOptions{Page: 3, Limit: 5, Order: "asc"}},
		{"invalid values fall back", "?page=-1&limit=abc&order=sideways", service.HistoryOptions{Page: 1, Limit: 20, Order: "desc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got service.HistoryOptions
			mockService := &MockGameService{
				GetMoveHistoryFunc: func(ctx context.Context, sessionID string, opts service.HistoryOptions) (*service.HistoryResponse, error) {
					got = opts
					return &service.HistoryResponse{Turns: []engine.TurnRecord{{Turn: 1}}, TotalTurns: 1, Page: opts.Page}, nil
				},
			}
			server := setupTestServer(t, mockService)

			w := serve(t, server, makeRequest("GET", "/api/sessions/s1/history"+tt.query, nil))
			if w.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d", w.Code)
			}
			if got != tt.wantOpts {
				t.Errorf("Expected options %+v, got %+v", tt.wantOpts, got)
			}
		})
	}
}

func TestGetGameStateAndExport(t *testing.T) {
	snap := &engine.Snapshot{BoardSize: 8, Seed: 7, Turn: 3, Phase: engine.PhaseSelect}
	mockService := &MockGameService{
		GetGameStateFunc: func(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
			return snap, nil
		},
		ExportSessionFunc: func(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
			return snap, nil
		},
	}
	server := setupTestServer(t, mockService)

	for _, path := range []string{"/api/sessions/s1/state", "/api/sessions/s1/export"} {
		w := serve(t, server, makeRequest("GET", path, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected status 200, got %d", path, w.Code)
		}
		var got engine.Snapshot
		parseResponse(t, w, &got)
		if got.Seed != 7 || got.Turn != 3 || got.Phase != engine.PhaseSelect {
			t.Errorf("%s: unexpected snapshot %+v", path, got)
		}
	}

	w := serve(t, server, makeRequest("GET", "/api/sessions/s1/export", nil))
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "s1.json") {
		t.Errorf("Expected attachment filename, got %q", cd)
	}
}

func TestImportAndVerify(t *testing.T) {
	mockService := &MockGameService{
		VerifyReplayFunc: func(ctx context.Context, snap engine.Snapshot) (*service.ReplayResult, error) {
			if snap.Turn == 99 {
				return &service.ReplayResult{Verified: false, Mismatch: "turn differs"}, nil
			}
			return &service.ReplayResult{Verified: true, Turn: snap.Turn}, nil
		},
	}
	server := setupTestServer(t, mockService)

	t.Run("import", func(t *testing.T) {
		body := map[string]any{"config_name": "classic", "snapshot": engine.Snapshot{BoardSize: 8, Turn: 2}}
		w := serve(t, server, makeRequest("POST", "/api/sessions/import", body))
		if w.Code != http.StatusCreated {
			t.Fatalf("Expected status 201, got %d (%s)", w.Code, w.Body.String())
		}
		var resp service.SessionInfo
		parseResponse(t, w, &resp)
		if resp.ConfigName != "classic" || resp.GameState.Turn != 2 {
			t.Errorf("Unexpected session: %+v", resp)
		}
	})

	t.Run("import without snapshot", func(t *testing.T) {
		w := serve(t, server, makeRequest("POST", "/api/sessions/import", map[string]string{"config_name": "classic"}))
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})

	t.Run("verified replay", func(t *testing.T) {
		w := serve(t, server, makeRequest("POST", "/api/replay/verify", engine.Snapshot{Turn: 4}))
		if w.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", w.Code)
		}
	})

	t.Run("mismatched replay", func(t *testing.T) {
		w := serve(t, server, makeRequest("POST", "/api/replay/verify", engine.Snapshot{Turn: 99}))
		if w.Code != http.StatusUnprocessableEntity {
			t.Errorf("Expected status 422, got %d", w.Code)
		}
		var resp service.ReplayResult
		parseResponse(t, w, &resp)
		if resp.Mismatch == "" {
			t.Error("Expected mismatch description")
		}
	})
}

// Configuration Tests

func TestConfigs(t *testing.T) {
	var saved *engine.Ruleset
	mockService := &MockGameService{
		ListConfigsFunc: func(ctx context.Context) ([]*service.ConfigInfo, error) {
			return []*service.ConfigInfo{{ConfigID: "classic", BoardSize: 8}, {ConfigID: "duel", BoardSize: 10}}, nil
		},
		LoadConfigFunc: func(ctx context.Context, configName string) (*engine.Ruleset, error) {
			if configName != "classic" {
				return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, configName)
			}
			return &engine.Ruleset{Name: "Classic", BoardSize: 8, PlayerCount: 2, CPUCount: 1}, nil
		},
		SaveConfigFunc: func(ctx context.Context, configName string, rules *engine.Ruleset) error {
			if rules.BoardSize > engine.MaxBoardSize {
				return fmt.Errorf("%w: board too large", engine.ErrInvalidRuleset)
			}
			saved = rules
			return nil
		},
	}
	server := setupTestServer(t, mockService)

	t.Run("list", func(t *testing.T) {
		w := serve(t, server, makeRequest("GET", "/api/configs", nil))
		var resp []*service.ConfigInfo
		parseResponse(t, w, &resp)
		if len(resp) != 2 {
			t.Errorf("Expected 2 configs, got %d", len(resp))
		}
	})

	t.Run("get strips extension", func(t *testing.T) {
		w := serve(t, server, makeRequest("GET", "/api/configs/classic.json", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}
		var resp engine.Ruleset
		parseResponse(t, w, &resp)
		if resp.BoardSize != 8 || resp.CPUCount != 1 {
			t.Errorf("Unexpected ruleset: %+v", resp)
		}
	})

	t.Run("get missing", func(t *testing.T) {
		w := serve(t, server, makeRequest("GET", "/api/configs/nope", nil))
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected status 404, got %d", w.Code)
		}
	})

	t.Run("create", func(t *testing.T) {
		body := engine.Ruleset{Name: "custom", BoardSize: 9, PlayerCount: 3, CPUCount: 2}
		w := serve(t, server, makeRequest("POST", "/api/configs", body))
		if w.Code != http.StatusCreated {
			t.Fatalf("Expected status 201, got %d", w.Code)
		}
		if saved == nil || saved.PlayerCount != 3 {
			t.Errorf("Ruleset not passed to service: %+v", saved)
		}
	})

	t.Run("create without name", func(t *testing.T) {
		w := serve(t, server, makeRequest("POST", "/api/configs", engine.Ruleset{BoardSize: 9}))
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})

	t.Run("create invalid", func(t *testing.T) {
		w := serve(t, server, makeRequest("POST", "/api/configs", engine.Ruleset{Name: "huge", BoardSize: 99}))
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})

	t.Run("strategies", func(t *testing.T) {
		w := serve(t, server, makeRequest("GET", "/api/strategies", nil))
		var resp struct {
			Strategies []string `json:"strategies"`
			Default    string   `json:"default"`
		}
		parseResponse(t, w, &resp)
		if len(resp.Strategies) != 3 || resp.Default != engine.DefaultStrategyID {
			t.Errorf("Unexpected strategies response: %+v", resp)
		}
	})
}

// Archive Tests

func TestArchiveEndpoints(t *testing.T) {
	var gotLimit int
	mockService := &MockGameService{
		LeaderboardFunc: func(ctx context.Context, limit int) ([]archive.Standing, error) {
			gotLimit = limit
			return []archive.Standing{{Label: "mobility", Games: 2, Wins: 1, WinRate: 0.5}}, nil
		},
		RecentGamesFunc: func(ctx context.Context, limit int) ([]archive.Game, error) {
			gotLimit = limit
			return nil, archive.ErrArchiveUnavailable
		},
		GetArchivedGameFunc: func(ctx context.Context, sessionID string) (*archive.Game, error) {
			if sessionID != "done" {
				return nil, archive.ErrGameNotFound
			}
			return &archive.Game{SessionID: "done", Turns: 12}, nil
		},
	}
	server := setupTestServer(t, mockService)

	w := serve(t, server, makeRequest("GET", "/api/leaderboard?limit=500", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if gotLimit != maxListLimit {
		t.Errorf("Expected limit capped at %d, got %d", maxListLimit, gotLimit)
	}

	w = serve(t, server, makeRequest("GET", "/api/games/recent", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503 without archive, got %d", w.Code)
	}
	if gotLimit != defaultListLimit {
		t.Errorf("Expected default limit %d, got %d", defaultListLimit, gotLimit)
	}

	w = serve(t, server, makeRequest("GET", "/api/games/done", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	w = serve(t, server, makeRequest("GET", "/api/games/other", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestUnifiedSessions(t *testing.T) {
	mockService := &MockGameService{
		ListSessionsFunc: func(ctx context.Context) ([]*service.SessionInfo, error) {
			return []*service.SessionInfo{
				{ID: "a", ConfigName: "classic", GameState: engine.Snapshot{Phase: engine.PhaseSelect}},
				{ID: "b", ConfigName: "duel", GameState: engine.Snapshot{Phase: engine.PhaseGameOver}},
				{ID: "c", ConfigName: "classic", GameState: engine.Snapshot{Phase: engine.PhaseGameOver}},
			}, nil
		},
		GetSessionFunc: func(ctx context.Context, sessionID string) (*service.SessionInfo, error) {
			if sessionID == "gone" {
				return nil, service.ErrSessionNotFound
			}
			return &service.SessionInfo{ID: sessionID, GameState: engine.Snapshot{Phase: engine.PhaseSelect}}, nil
		},
	}
	server := setupTestServer(t, mockService)

	tests := []struct {
		query       string
		wantTotal   int
		wantRunning int
	}{
		{"", 3, 1},
		{"?configName=classic", 2, 1},
		{"?sessionIds=x,gone,y", 2, 2},
	}
	for _, tt := range tests {
		w := serve(t, server, makeRequest("GET", "/api/sessions/unified"+tt.query, nil))
		var resp struct {
			Total   int `json:"total"`
			Running int `json:"running"`
		}
		parseResponse(t, w, &resp)
		if resp.Total != tt.wantTotal || resp.Running != tt.wantRunning {
			t.Errorf("query %q: got total=%d running=%d", tt.query, resp.Total, resp.Running)
		}
	}
}

func TestHealthAndMetrics(t *testing.T) {
	server := setupTestServer(t, &MockGameService{})

	w := serve(t, server, makeRequest("GET", "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected health 200, got %d", w.Code)
	}

	w = serve(t, server, makeRequest("GET", "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected metrics 200, got %d", w.Code)
	}

	bare := NewServer(&MockGameService{}, nil, nil, nil)
	if w := serve(t, bare, makeRequest("GET", "/metrics", nil)); w.Code != http.StatusNotFound {
		t.Errorf("Expected /metrics to be unrouted without a collector, got %d", w.Code)
	}
	if w := serve(t, bare, makeRequest("GET", "/ws?session=a", nil)); w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected /ws 503 without a hub, got %d", w.Code)
	}
}

func TestWebSocket(t *testing.T) {
	mockService := &MockGameService{
		GetSessionFunc: func(ctx context.Context, sessionID string) (*service.SessionInfo, error) {
			if sessionID != "live" {
				return nil, service.ErrSessionNotFound
			}
			return &service.SessionInfo{ID: sessionID, GameState: engine.Snapshot{BoardSize: 8, Turn: 5}}, nil
		},
	}
	server := httptest.NewServer(setupTestServer(t, mockService))
	defer server.Close()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"

	t.Run("missing session parameter", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/ws")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", resp.StatusCode)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		_, resp, err := gorillaws.DefaultDialer.Dial(wsURL+"?session=nope", nil)
		if err == nil {
			t.Fatal("Expected dial to fail")
		}
		if resp == nil || resp.StatusCode != http.StatusNotFound {
			t.Errorf("Expected 404 response, got %v", resp)
		}
	})

	t.Run("initial state", func(t *testing.T) {
		conn, _, err := gorillaws.DefaultDialer.Dial(wsURL+"?session=live", nil)
		if err != nil {
			t.Fatalf("Failed to connect: %v", err)
		}
		defer conn.Close()

		conn.SetReadDeadline(time.Now().Add(time.Second))
		var msg websocket.Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("Failed to read initial message: %v", err)
		}
		if msg.Event != websocket.EventState || msg.GameState == nil || msg.GameState.Turn != 5 {
			t.Errorf("Unexpected initial message: %+v", msg)
		}
	})
}

// TestServerEndToEnd drives a real service through the HTTP surface: a
// human plays a round against the computer, then a computer-only game is
// autoplayed into the archive.
func TestServerEndToEnd(t *testing.T) {
	logger := zaptest.NewLogger(t)
	registry := strategy.NewDefaultRegistry(logger)
	sessions := session.NewManager(registry, logger, orchestrator.WithTimeout(0), orchestrator.WithThinkDelay(0))
	t.Cleanup(sessions.Close)
	configs, err := config.NewManager("../configs")
	if err != nil {
		t.Fatalf("Failed to load presets: %v", err)
	}
	arch := archive.NewMemory()
	svc := service.NewGameService(sessions, configs, registry, arch, logger)
	sessions.OnRound(svc.HandleRound)

	collector := metrics.New()
	sessions.OnRound(func(_ string, r orchestrator.RoundResult) { collector.ObserveRound(r) })
	server := NewServer(svc, nil, collector, logger)

	// Human against computer
	w := serve(t, server, makeRequest("POST", "/api/sessions", map[string]any{"config_id": "classic", "seed": 11}))
	if w.Code != http.StatusCreated {
		t.Fatalf("Create failed: %d %s", w.Code, w.Body.String())
	}
	var created service.SessionInfo
	parseResponse(t, w, &created)
	if created.GameState.Seed != 11 || len(created.Pending) != 1 || created.Pending[0] != 0 {
		t.Fatalf("Unexpected new session: seed=%d pending=%v", created.GameState.Seed, created.Pending)
	}

	w = serve(t, server, makeRequest("POST", "/api/sessions/"+created.ID+"/step", nil))
	if w.Code != http.StatusConflict {
		t.Errorf("Expected step to wait for the human, got %d", w.Code)
	}

	w = serve(t, server, makeRequest("GET", "/api/sessions/"+created.ID+"/legal-moves?player=0", nil))
	var legal struct {
		Moves []engine.Position `json:"moves"`
	}
	parseResponse(t, w, &legal)
	if len(legal.Moves) == 0 {
		t.Fatal("Expected the human to have a legal opening move")
	}

	w = serve(t, server, makeRequest("POST", "/api/sessions/"+created.ID+"/moves", map[string]any{
		"player_id": intPtr(0), "to": legal.Moves[0],
	}))
	if w.Code != http.StatusOK {
		t.Fatalf("Move failed: %d %s", w.Code, w.Body.String())
	}
	var move service.MoveResult
	parseResponse(t, w, &move)
	if !move.RoundPlayed || move.GameState.Turn != 1 {
		t.Errorf("Expected the round to resolve, got played=%v turn=%d", move.RoundPlayed, move.GameState.Turn)
	}
	if human := move.GameState.Players[0]; human.Pos() != legal.Moves[0] {
		t.Errorf("Expected human at %+v, got %+v", legal.Moves[0], human.Pos())
	}

	w = serve(t, server, makeRequest("POST", "/api/sessions/"+created.ID+"/moves", map[string]any{
		"player_id": 1, "to": legal.Moves[0],
	}))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected computer seat to be rejected, got %d", w.Code)
	}

	w = serve(t, server, makeRequest("GET", "/api/sessions/"+created.ID+"/export", nil))
	var exported engine.Snapshot
	parseResponse(t, w, &exported)
	w = serve(t, server, makeRequest("POST", "/api/replay/verify", exported))
	if w.Code != http.StatusOK {
		t.Errorf("Expected exported game to replay, got %d %s", w.Code, w.Body.String())
	}

	// Computer against computer
	w = serve(t, server, makeRequest("POST", "/api/sessions", map[string]string{"config_id": "tiny"}))
	var bots service.SessionInfo
	parseResponse(t, w, &bots)

	w = serve(t, server, makeRequest("POST", "/api/sessions/"+bots.ID+"/autoplay", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Autoplay failed: %d %s", w.Code, w.Body.String())
	}
	var played service.RoundsResult
	parseResponse(t, w, &played)
	if played.RoundsPlayed == 0 {
		t.Fatal("Expected autoplay to play rounds")
	}
	if !played.GameOver {
		t.Skipf("autoplay stopped early: %s", played.StoppedReason)
	}

	w = serve(t, server, makeRequest("GET", "/api/games/"+bots.ID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected archived game, got %d", w.Code)
	}
	var game archive.Game
	parseResponse(t, w, &game)
	if game.Turns != played.GameState.Turn || len(game.Seats) != 2 {
		t.Errorf("Unexpected archived game: turns=%d seats=%d", game.Turns, len(game.Seats))
	}

	w = serve(t, server, makeRequest("GET", "/api/leaderboard", nil))
	var board struct {
		Count int `json:"count"`
	}
	parseResponse(t, w, &board)
	if board.Count != 2 {
		t.Errorf("Expected both strategies on the leaderboard, got %d", board.Count)
	}

	w = serve(t, server, makeRequest("POST", "/api/sessions/"+bots.ID+"/step", nil))
	if w.Code != http.StatusConflict {
		t.Errorf("Expected step on a finished game to conflict, got %d", w.Code)
	}
}
