package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wricardo/knights-trail/game/archive"
	"github.com/wricardo/knights-trail/game/engine"
	"github.com/wricardo/knights-trail/game/orchestrator"
)

var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionAlreadyExists = errors.New("session already exists")
)

// GameService defines all game-related operations
type GameService interface {
	// Session Management
	CreateSession(ctx context.Context, configName string, seed *int64) (*SessionInfo, error)
	GetSession(ctx context.Context, sessionID string) (*SessionInfo, error)
	ListSessions(ctx context.Context) ([]*SessionInfo, error)
	DeleteSession(ctx context.Context, sessionID string) error
	ResetSession(ctx context.Context, sessionID string) (*SessionInfo, error)

	// Game Operations
	SubmitMove(ctx context.Context, sessionID string, playerID int, to engine.Position) (*MoveResult, error)
	Step(ctx context.Context, sessionID string) (*RoundsResult, error)
	Autoplay(ctx context.Context, sessionID string) (*RoundsResult, error)
	LegalMoves(ctx context.Context, sessionID string, playerID int) ([]engine.Position, error)

	// Game State
	GetGameState(ctx context.Context, sessionID string) (*engine.Snapshot, error)
	GetMoveHistory(ctx context.Context, sessionID string, opts HistoryOptions) (*HistoryResponse, error)
	ExportSession(ctx context.Context, sessionID string) (*engine.Snapshot, error)
	ImportSession(ctx context.Context, configName string, snap engine.Snapshot) (*SessionInfo, error)
	VerifyReplay(ctx context.Context, snap engine.Snapshot) (*ReplayResult, error)

	// Configuration
	ListConfigs(ctx context.Context) ([]*ConfigInfo, error)
	LoadConfig(ctx context.Context, configName string) (*engine.Ruleset, error)
	SaveConfig(ctx context.Context, configName string, config *engine.Ruleset) error
	ListStrategies(ctx context.Context) []string

	// Archive
	Leaderboard(ctx context.Context, limit int) ([]archive.Standing, error)
	RecentGames(ctx context.Context, limit int) ([]archive.Game, error)
	GetArchivedGame(ctx context.Context, sessionID string) (*archive.Game, error)

	// HandleRound archives the game of sessionID when r ends it.
	HandleRound(sessionID string, r orchestrator.RoundResult)
}

// SessionManager defines session storage operations
type SessionManager interface {
	Create(id, configName string, rules engine.Ruleset) (*Session, error)
	Restore(id, configName string, snap engine.Snapshot) (*Session, error)
	Get(id string) (*Session, error)
	List() []*Session
	Delete(id string) error
	UpdateLastAccessed(id string) error
	Save(id string) error
}

// ConfigManager handles ruleset preset loading
type ConfigManager interface {
	LoadConfig(name string) (*engine.Ruleset, error)
	ListConfigs() ([]*ConfigInfo, error)
	GetDefault() *engine.Ruleset
	SaveConfig(name string, config *engine.Ruleset) error
	Resolve(name string, seed *int64) (*engine.Ruleset, error)
}

// Session represents an active game session. Requests touch it
// concurrently, so the access time is only reached through its methods.
type Session struct {
	ID         string
	ConfigName string
	Game       *orchestrator.Orchestrator
	CreatedAt  time.Time

	mu             sync.Mutex
	lastAccessedAt time.Time
}

// NewSession wraps a running game.
func NewSession(id, configName string, game *orchestrator.Orchestrator, createdAt, lastAccessedAt time.Time) *Session {
	return &Session{
		ID:             id,
		ConfigName:     configName,
		Game:           game,
		CreatedAt:      createdAt,
		lastAccessedAt: lastAccessedAt,
	}
}

// LastAccessed returns when the session was last used.
func (s *Session) LastAccessed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccessedAt
}

// SetLastAccessed records t as the last use of the session.
func (s *Session) SetLastAccessed(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAccessedAt = t
}

// Touch marks the session as used now.
func (s *Session) Touch() {
	s.SetLastAccessed(time.Now())
}
