package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wricardo/knights-trail/game/archive"
	"github.com/wricardo/knights-trail/game/engine"
	"github.com/wricardo/knights-trail/game/orchestrator"
	"github.com/wricardo/knights-trail/game/strategy"
	"go.uber.org/zap"
)

// archiveTimeout bounds recording a finished game.
const archiveTimeout = 5 * time.Second

// gameServiceImpl implements the GameService interface
type gameServiceImpl struct {
	sessions SessionManager
	configs  ConfigManager
	registry *strategy.Registry
	archive  archive.Archive
	logger   *zap.Logger

	// mu serializes session lifecycle changes; game operations rely on the
	// orchestrator's own locking.
	mu sync.Mutex
}

// NewGameService creates a new game service instance. archive may be nil, in
// which case archive queries fail with archive.ErrArchiveUnavailable.
func NewGameService(sessions SessionManager, configs ConfigManager, registry *strategy.Registry, arch archive.Archive, logger *zap.Logger) GameService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = strategy.NewDefaultRegistry(logger)
	}
	return &gameServiceImpl{
		sessions: sessions,
		configs:  configs,
		registry: registry,
		archive:  arch,
		logger:   logger,
	}
}

// getConfigID returns the config_id for a display name, used for consistent API responses
func (s *gameServiceImpl) getConfigID(configName string) string {
	availableConfigs, err := s.configs.ListConfigs()
	if err == nil {
		for _, cfg := range availableConfigs {
			if cfg.Name == configName || cfg.ConfigID == configName {
				return cfg.ConfigID
			}
		}
	}
	if configName == "" {
		return "default"
	}
	return configName
}

// CreateSession creates a new game session from a preset. seed overrides the
// preset's seed when non-nil.
func (s *gameServiceImpl) CreateSession(ctx context.Context, configName string, seed *int64) (*SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rules, err := s.configs.Resolve(configName, seed)
	if err != nil {
		return nil, s.configError(configName, err)
	}

	configID := configName
	if configID == "" {
		configID = s.getConfigID(rules.Name)
	}

	sess, err := s.sessions.Create("", configID, *rules)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Info("session created",
		zap.String("session_id", sess.ID),
		zap.String("config", configID),
		zap.Int64("seed", *rules.Seed))

	return s.info(sess), nil
}

// configError adds the available preset ids to a not-found error
func (s *gameServiceImpl) configError(configName string, err error) error {
	if strings.Contains(err.Error(), "configuration not found") {
		availableConfigs, listErr := s.configs.ListConfigs()
		if listErr == nil && len(availableConfigs) > 0 {
			ids := make([]string, 0, len(availableConfigs))
			for _, cfg := range availableConfigs {
				ids = append(ids, cfg.ConfigID)
			}
			return fmt.Errorf("config '%s' not found. Available configs: %v: %w", configName, ids, err)
		}
		return fmt.Errorf("config '%s' not found. Use /api/configs to list available configurations: %w", configName, err)
	}
	return fmt.Errorf("failed to load config %s: %w", configName, err)
}

// GetSession retrieves session information
func (s *gameServiceImpl) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	return s.info(sess), nil
}

// ListSessions returns all active sessions, oldest first
func (s *gameServiceImpl) ListSessions(ctx context.Context) ([]*SessionInfo, error) {
	sessions := s.sessions.List()
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})

	result := make([]*SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		result = append(result, s.info(sess))
	}
	return result, nil
}

// DeleteSession removes a session
func (s *gameServiceImpl) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sessions.Delete(sessionID); err != nil {
		return err
	}
	s.logger.Info("session deleted", zap.String("session_id", sessionID))
	return nil
}

// ResetSession restarts a session's game from its initial state. The seed
// is kept, so the board is the same.
func (s *gameServiceImpl) ResetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	state := sess.Game.State()
	rules := state.Ruleset.WithSeed(state.Seed)

	if err := s.sessions.Delete(sess.ID); err != nil {
		return nil, err
	}
	reset, err := s.sessions.Create(sess.ID, sess.ConfigName, rules)
	if err != nil {
		return nil, fmt.Errorf("failed to recreate session: %w", err)
	}

	s.logger.Info("session reset", zap.String("session_id", sess.ID))
	return s.info(reset), nil
}

// SubmitMove records a human intent; the round is played once every
// living human has one.
func (s *gameServiceImpl) SubmitMove(ctx context.Context, sessionID string, playerID int, to engine.Position) (*MoveResult, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	round, err := sess.Game.Submit(ctx, playerID, to)
	if err != nil && round == nil {
		return nil, err
	}

	state := sess.Game.State()
	result := &MoveResult{
		Accepted:    true,
		RoundPlayed: round != nil,
		Round:       round,
		Pending:     nonNil(sess.Game.Pending()),
		GameState:   state.Snapshot(),
	}
	switch {
	case round != nil && round.Stalemate():
		result.Message = "No knight moved for too many rounds. " + winnersMessage(state)
	case state.IsOver():
		result.Message = winnersMessage(state)
	case round != nil:
		result.Message = fmt.Sprintf("Turn %d resolved", round.Turn)
	default:
		result.Message = fmt.Sprintf("Intent recorded, waiting for players %v", result.Pending)
	}

	s.save(sessionID)
	return result, nil
}

// Step plays a single round
func (s *gameServiceImpl) Step(ctx context.Context, sessionID string) (*RoundsResult, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	round, err := sess.Game.Step(ctx)
	if round == nil {
		return nil, err
	}
	result := s.roundsResult(sess, []orchestrator.RoundResult{*round})
	s.save(sessionID)
	return result, nil
}

// Autoplay plays rounds until the game ends or needs human input
func (s *gameServiceImpl) Autoplay(ctx context.Context, sessionID string) (*RoundsResult, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	rounds, err := sess.Game.Autoplay(ctx)
	result := s.roundsResult(sess, rounds)
	switch {
	case err == nil:
	case errors.Is(err, orchestrator.ErrAwaitingHumans):
		result.StoppedReason = StopAwaitingHumans
	case errors.Is(err, engine.ErrGameOver) && len(rounds) == 0:
		result.StoppedReason = StopGameOver
	default:
		if len(rounds) > 0 {
			s.save(sessionID)
		}
		return nil, err
	}

	s.logger.Debug("autoplay finished",
		zap.String("session_id", sessionID),
		zap.Int("rounds", len(rounds)),
		zap.String("stopped_reason", result.StoppedReason))

	if len(rounds) > 0 {
		s.save(sessionID)
	}
	return result, nil
}

func (s *gameServiceImpl) roundsResult(sess *Session, rounds []orchestrator.RoundResult) *RoundsResult {
	state := sess.Game.State()
	if rounds == nil {
		rounds = []orchestrator.RoundResult{}
	}
	result := &RoundsResult{
		Rounds:       rounds,
		RoundsPlayed: len(rounds),
		GameOver:     state.IsOver(),
		Winners:      winnerIDs(state),
		Pending:      nonNil(sess.Game.Pending()),
		GameState:    state.Snapshot(),
	}
	switch {
	case len(rounds) > 0 && rounds[len(rounds)-1].Stalemate():
		result.StoppedReason = StopStalemate
	case result.GameOver:
		result.StoppedReason = StopGameOver
	}
	return result
}

// LegalMoves returns the legal destinations of a player
func (s *gameServiceImpl) LegalMoves(ctx context.Context, sessionID string, playerID int) ([]engine.Position, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	state := sess.Game.State()
	if _, ok := state.Player(playerID); !ok {
		return nil, engine.ErrUnknownPlayer
	}
	moves := sess.Game.LegalMoves(playerID)
	if moves == nil {
		moves = []engine.Position{}
	}
	return moves, nil
}

// GetGameState retrieves the current game snapshot
func (s *gameServiceImpl) GetGameState(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	snap := sess.Game.State().Snapshot()
	return &snap, nil
}

// GetMoveHistory returns paginated turn history
func (s *gameServiceImpl) GetMoveHistory(ctx context.Context, sessionID string, opts HistoryOptions) (*HistoryResponse, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	history := sess.Game.State().History
	total := len(history)

	// Apply defaults
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Limit > 100 {
		opts.Limit = 100
	}
	if opts.Order != "asc" {
		opts.Order = "desc"
	}

	// Calculate pagination
	totalPages := (total + opts.Limit - 1) / opts.Limit
	if totalPages == 0 {
		totalPages = 1
	}

	start := (opts.Page - 1) * opts.Limit
	end := start + opts.Limit
	if end > total {
		end = total
	}

	turns := []engine.TurnRecord{}
	if opts.Order == "desc" {
		// Most recent first
		for i := total - 1 - start; i >= 0 && i >= total-end; i-- {
			turns = append(turns, history[i])
		}
	} else if start < total {
		turns = append(turns, history[start:end]...)
	}

	return &HistoryResponse{
		Turns:       turns,
		TotalTurns:  total,
		Page:        opts.Page,
		PageSize:    opts.Limit,
		TotalPages:  totalPages,
		HasNext:     opts.Page < totalPages,
		HasPrevious: opts.Page > 1,
	}, nil
}

// ExportSession returns the session's snapshot for saving or replay
func (s *gameServiceImpl) ExportSession(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
	return s.GetGameState(ctx, sessionID)
}

// ImportSession starts a new session that resumes snap
func (s *gameServiceImpl) ImportSession(ctx context.Context, configName string, snap engine.Snapshot) (*SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if configName == "" {
		configName = s.getConfigID(snap.Ruleset.Name)
	}
	sess, err := s.sessions.Restore("", configName, snap)
	if err != nil {
		return nil, fmt.Errorf("failed to import session: %w", err)
	}

	s.logger.Info("session imported",
		zap.String("session_id", sess.ID),
		zap.Int("turn", snap.Turn))
	return s.info(sess), nil
}

// VerifyReplay replays a snapshot's history from its seed and compares the
// outcome. A mismatch is reported in the result, not as an error.
func (s *gameServiceImpl) VerifyReplay(ctx context.Context, snap engine.Snapshot) (*ReplayResult, error) {
	replayed, err := engine.VerifyReplay(snap)
	if err != nil && !errors.Is(err, engine.ErrReplayMismatch) {
		return nil, err
	}

	result := &ReplayResult{Verified: err == nil}
	if replayed != nil {
		result.Turn = replayed.Turn
		result.Phase = replayed.Phase
		result.Winners = winnerIDs(replayed)
	}
	if err != nil {
		result.Mismatch = err.Error()
	}
	return result, nil
}

// ListConfigs returns available ruleset presets
func (s *gameServiceImpl) ListConfigs(ctx context.Context) ([]*ConfigInfo, error) {
	return s.configs.ListConfigs()
}

// LoadConfig loads a specific ruleset preset
func (s *gameServiceImpl) LoadConfig(ctx context.Context, configName string) (*engine.Ruleset, error) {
	return s.configs.LoadConfig(configName)
}

// SaveConfig saves a ruleset preset to disk
func (s *gameServiceImpl) SaveConfig(ctx context.Context, configName string, config *engine.Ruleset) error {
	return s.configs.SaveConfig(configName, config)
}

// ListStrategies returns the registered strategy names
func (s *gameServiceImpl) ListStrategies(ctx context.Context) []string {
	return s.registry.Names()
}

// Leaderboard ranks strategies and humans by wins in archived games
func (s *gameServiceImpl) Leaderboard(ctx context.Context, limit int) ([]archive.Standing, error) {
	if s.archive == nil {
		return nil, archive.ErrArchiveUnavailable
	}
	return s.archive.Leaderboard(ctx, limit)
}

// RecentGames lists the most recently finished games
func (s *gameServiceImpl) RecentGames(ctx context.Context, limit int) ([]archive.Game, error) {
	if s.archive == nil {
		return nil, archive.ErrArchiveUnavailable
	}
	return s.archive.Recent(ctx, limit)
}

// GetArchivedGame returns the archived game of a session
func (s *gameServiceImpl) GetArchivedGame(ctx context.Context, sessionID string) (*archive.Game, error) {
	if s.archive == nil {
		return nil, archive.ErrArchiveUnavailable
	}
	return s.archive.Get(ctx, sessionID)
}

// HandleRound records finished games in the archive. It runs inside the
// orchestrator's round listener.
func (s *gameServiceImpl) HandleRound(sessionID string, r orchestrator.RoundResult) {
	if s.archive == nil || r.State == nil || !r.State.IsOver() {
		return
	}

	configName := ""
	if sess, err := s.sessions.Get(sessionID); err == nil {
		configName = sess.ConfigName
	}

	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	game := archive.FromState(sessionID, configName, r.State, time.Now())
	if err := s.archive.Record(ctx, game); err != nil {
		s.logger.Error("failed to archive finished game",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return
	}
	s.logger.Info("game archived",
		zap.String("session_id", sessionID),
		zap.Int("turns", game.Turns),
		zap.Ints("winners", winnerIDs(r.State)))
}

func (s *gameServiceImpl) session(sessionID string) (*Session, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrSessionNotFound, err)
	}
	if err := s.sessions.UpdateLastAccessed(sessionID); err != nil {
		s.logger.Warn("failed to update last access", zap.String("session_id", sessionID), zap.Error(err))
	}
	return sess, nil
}

func (s *gameServiceImpl) save(sessionID string) {
	if err := s.sessions.Save(sessionID); err != nil {
		s.logger.Warn("failed to persist session", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (s *gameServiceImpl) info(sess *Session) *SessionInfo {
	state := sess.Game.State()
	return &SessionInfo{
		ID:             sess.ID,
		ConfigName:     sess.ConfigName,
		CreatedAt:      sess.CreatedAt,
		LastAccessedAt: sess.LastAccessed(),
		GameState:      state.Snapshot(),
		Pending:        nonNil(sess.Game.Pending()),
		Winners:        winnerIDs(state),
	}
}

func winnerIDs(s *engine.GameState) []int {
	var ids []int
	for _, p := range s.Winners() {
		ids = append(ids, p.ID)
	}
	return ids
}

func winnersMessage(s *engine.GameState) string {
	ids := winnerIDs(s)
	switch len(ids) {
	case 0:
		return "Game over"
	case 1:
		return fmt.Sprintf("Game over: player %d wins", ids[0])
	default:
		return fmt.Sprintf("Game over: players %v tie", ids)
	}
}

func nonNil(ids []int) []int {
	if ids == nil {
		return []int{}
	}
	return ids
}
