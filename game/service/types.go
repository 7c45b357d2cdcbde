package service

import (
	"time"

	"github.com/wricardo/knights-trail/game/engine"
	"github.com/wricardo/knights-trail/game/orchestrator"
)

// Stop reasons reported by Autoplay
const (
	StopGameOver       = "game_over"
	StopAwaitingHumans = "awaiting_humans"
	// StopStalemate is a game over adjudicated after too many rounds
	// without a move.
	StopStalemate = "stalemate"
)

// SessionInfo provides information about a game session
type SessionInfo struct {
	ID             string          `json:"id"`
	ConfigName     string          `json:"config_name"`
	CreatedAt      time.Time       `json:"created_at"`
	LastAccessedAt time.Time       `json:"last_accessed_at"`
	GameState      engine.Snapshot `json:"game_state"`
	Pending        []int           `json:"pending_players"`
	Winners        []int           `json:"winners,omitempty"`
}

// MoveResult contains the result of a submitted intent
type MoveResult struct {
	Accepted    bool                      `json:"accepted"`
	RoundPlayed bool                      `json:"round_played"`
	Round       *orchestrator.RoundResult `json:"round,omitempty"`
	Pending     []int                     `json:"pending_players"`
	GameState   engine.Snapshot           `json:"game_state"`
	Message     string                    `json:"message"`
}

// RoundsResult contains the rounds played by Step or Autoplay
type RoundsResult struct {
	Rounds        []orchestrator.RoundResult `json:"rounds"`
	RoundsPlayed  int                        `json:"rounds_played"`
	GameOver      bool                       `json:"game_over"`
	Winners       []int                      `json:"winners,omitempty"`
	StoppedReason string                     `json:"stopped_reason,omitempty"`
	Pending       []int                      `json:"pending_players"`
	GameState     engine.Snapshot            `json:"game_state"`
}

// HistoryOptions configures turn history retrieval
type HistoryOptions struct {
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
	Order string `json:"order"` // "asc" or "desc"
}

// HistoryResponse contains paginated turn history
type HistoryResponse struct {
	Turns       []engine.TurnRecord `json:"turns"`
	TotalTurns  int                 `json:"total_turns"`
	Page        int                 `json:"page"`
	PageSize    int                 `json:"page_size"`
	TotalPages  int                 `json:"total_pages"`
	HasNext     bool                `json:"has_next"`
	HasPrevious bool                `json:"has_previous"`
}

// ReplayResult reports whether a snapshot's history reproduces it
type ReplayResult struct {
	Verified bool         `json:"verified"`
	Turn     int          `json:"turn"`
	Phase    engine.Phase `json:"phase"`
	Winners  []int        `json:"winners,omitempty"`
	Mismatch string       `json:"mismatch,omitempty"`
}

// ConfigInfo provides information about a ruleset preset
type ConfigInfo struct {
	Filename      string `json:"filename"`
	ConfigID      string `json:"config_id"` // The identifier to use for session creation
	Name          string `json:"name"`      // Display name
	Description   string `json:"description"`
	BoardSize     int    `json:"board_size"`
	PlayerCount   int    `json:"player_count"`
	CPUCount      int    `json:"cpu_count"`
	ObstacleCount int    `json:"obstacle_count"`
	TimerSeconds  int    `json:"timer_seconds"`
}
