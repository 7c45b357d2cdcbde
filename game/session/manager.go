package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wricardo/knights-trail/game/engine"
	"github.com/wricardo/knights-trail/game/orchestrator"
	"github.com/wricardo/knights-trail/game/service"
	"github.com/wricardo/knights-trail/game/strategy"
	"go.uber.org/zap"
)

var (
	ErrSessionNotFound      = service.ErrSessionNotFound
	ErrSessionAlreadyExists = service.ErrSessionAlreadyExists
	ErrInvalidSessionID     = errors.New("invalid session ID")
)

// idLength is the number of hex characters in generated session ids.
const idLength = 8

// RoundListener receives every round played in any session.
type RoundListener func(sessionID string, r orchestrator.RoundResult)

// Manager handles game session lifecycle
type Manager struct {
	sessions    map[string]*service.Session
	persistence SessionPersistence
	registry    *strategy.Registry
	logger      *zap.Logger
	gameOpts    []orchestrator.Option
	mu          sync.RWMutex

	listeners []RoundListener
	lmu       sync.RWMutex
}

// NewManager creates a new in-memory session manager
func NewManager(registry *strategy.Registry, logger *zap.Logger, opts ...orchestrator.Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = strategy.NewDefaultRegistry(logger)
	}
	return &Manager{
		sessions: make(map[string]*service.Session),
		registry: registry,
		logger:   logger,
		gameOpts: opts,
	}
}

// NewManagerWithPersistence creates a new session manager that saves every
// session on creation, access and after every round
func NewManagerWithPersistence(persistence SessionPersistence, registry *strategy.Registry, logger *zap.Logger, opts ...orchestrator.Option) *Manager {
	m := NewManager(registry, logger, opts...)
	m.persistence = persistence
	return m
}

// OnRound registers a listener for rounds of every session, including
// sessions created earlier
func (m *Manager) OnRound(l RoundListener) {
	m.lmu.Lock()
	defer m.lmu.Unlock()
	m.listeners = append(m.listeners, l)
}

// dispatch returns the orchestrator listener of session id. It runs under
// the orchestrator's lock, so it never takes mu for writing.
func (m *Manager) dispatch(id string) orchestrator.Listener {
	return func(r orchestrator.RoundResult) {
		m.persistRound(id, r)

		m.lmu.RLock()
		listeners := m.listeners
		m.lmu.RUnlock()
		for _, l := range listeners {
			l(id, r)
		}
	}
}

func (m *Manager) persistRound(id string, r orchestrator.RoundResult) {
	if m.persistence == nil {
		return
	}
	m.mu.RLock()
	sess, exists := m.sessions[strings.ToLower(id)]
	var data *PersistedSessionData
	if exists {
		data = recordOf(sess, r.State.Snapshot())
	}
	m.mu.RUnlock()
	if !exists {
		return
	}
	if err := m.persistence.Save(data); err != nil {
		m.logger.Warn("failed to persist session after round",
			zap.String("session_id", id),
			zap.Int("turn", r.Turn),
			zap.Error(err))
	}
}

// Create starts a new game from rules, which must carry a seed. An empty id
// generates one.
func (m *Manager) Create(id, configName string, rules engine.Ruleset) (*service.Session, error) {
	state, err := engine.NewGame(rules)
	if err != nil {
		return nil, fmt.Errorf("failed to create game: %w", err)
	}
	return m.start(id, configName, state, time.Now(), time.Now())
}

// Restore starts a session that resumes snap. An empty id generates one.
func (m *Manager) Restore(id, configName string, snap engine.Snapshot) (*service.Session, error) {
	state, err := engine.Restore(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to restore game: %w", err)
	}
	return m.start(id, configName, state, time.Now(), time.Now())
}

func (m *Manager) start(id, configName string, state *engine.GameState, created, accessed time.Time) (*service.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id == "" {
		id = m.generateSessionID()
	} else if !validID(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}

	if m.sessionExists(id) {
		return nil, ErrSessionAlreadyExists
	}

	session := m.open(id, configName, state, created, accessed)
	m.sessions[strings.ToLower(id)] = session

	// Auto-save if persistence is enabled
	if m.persistence != nil {
		if err := m.persistence.Save(recordOf(session, state.Snapshot())); err != nil {
			// Log error but don't fail the creation
			m.logger.Warn("failed to persist session", zap.String("session_id", id), zap.Error(err))
		}
	}

	return session, nil
}

// open builds the orchestrator of a session. Callers hold mu.
func (m *Manager) open(id, configName string, state *engine.GameState, created, accessed time.Time) *service.Session {
	opts := append([]orchestrator.Option{}, m.gameOpts...)
	opts = append(opts, orchestrator.WithListener(m.dispatch(id)))
	logger := m.logger.With(zap.String("session_id", id))

	game := orchestrator.New(state, m.registry, logger, opts...)
	return service.NewSession(id, configName, game, created, accessed)
}

// load rebuilds a persisted session. Callers hold mu.
func (m *Manager) load(id string) (*service.Session, error) {
	data, err := m.persistence.Load(id)
	if err != nil {
		return nil, err
	}
	state, err := engine.Restore(data.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to restore game: %w", err)
	}
	return m.open(data.ID, data.ConfigName, state, data.CreatedAt, data.LastAccessedAt), nil
}

// Get retrieves a session by ID (case-insensitive), loading it from
// persistence when it is not in memory
func (m *Manager) Get(id string) (*service.Session, error) {
	m.mu.RLock()
	session, exists := m.sessions[strings.ToLower(id)]
	m.mu.RUnlock()

	if exists {
		return session, nil
	}

	if m.persistence == nil || !m.persistence.Exists(id) {
		return nil, ErrSessionNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if session, exists := m.sessions[strings.ToLower(id)]; exists {
		return session, nil
	}

	session, err := m.load(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load persisted session: %w", err)
	}
	m.sessions[strings.ToLower(id)] = session
	return session, nil
}

// List returns all active sessions
func (m *Manager) List() []*service.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*service.Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		result = append(result, session)
	}

	return result
}

// Delete removes a session from memory and persistence and stops its game
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	session, inMemory := m.sessions[strings.ToLower(id)]
	if inMemory {
		delete(m.sessions, strings.ToLower(id))
	}
	m.mu.Unlock()

	if inMemory {
		session.Game.Close()
	}

	// Delete from persistence if it exists
	if m.persistence != nil && m.persistence.Exists(id) {
		if err := m.persistence.Delete(id); err != nil {
			return fmt.Errorf("failed to delete persisted session: %w", err)
		}
		return nil
	}

	if !inMemory {
		return ErrSessionNotFound
	}

	return nil
}

// DeleteFromMemory stops a session and drops it from memory only
func (m *Manager) DeleteFromMemory(id string) error {
	m.mu.Lock()
	session, exists := m.sessions[strings.ToLower(id)]
	if exists {
		delete(m.sessions, strings.ToLower(id))
	}
	m.mu.Unlock()

	if !exists {
		return ErrSessionNotFound
	}
	session.Game.Close()
	return nil
}

// UpdateLastAccessed updates the last accessed time for a session
func (m *Manager) UpdateLastAccessed(id string) error {
	m.mu.RLock()
	session, exists := m.sessions[strings.ToLower(id)]
	m.mu.RUnlock()
	if !exists {
		return ErrSessionNotFound
	}

	session.Touch()
	return nil
}

// Save saves a specific session to persistence
func (m *Manager) Save(id string) error {
	if m.persistence == nil {
		return nil // No persistence configured
	}

	m.mu.RLock()
	session, exists := m.sessions[strings.ToLower(id)]
	var data *PersistedSessionData
	if exists {
		data = recordOf(session, session.Game.State().Snapshot())
	}
	m.mu.RUnlock()

	if !exists {
		return ErrSessionNotFound
	}
	return m.persistence.Save(data)
}

// CleanupExpiredSessions stops and drops sessions that haven't been accessed
// in the given duration. Persisted copies are kept.
func (m *Manager) CleanupExpiredSessions(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	var expired []*service.Session

	m.mu.Lock()
	for id, session := range m.sessions {
		if session.LastAccessed().Before(cutoff) {
			delete(m.sessions, id)
			expired = append(expired, session)
		}
	}
	m.mu.Unlock()

	for _, session := range expired {
		session.Game.Close()
	}
	if len(expired) > 0 {
		m.logger.Info("expired sessions removed", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// Count returns the number of active sessions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// generateSessionID returns a short random id not in use. Callers hold mu.
func (m *Manager) generateSessionID() string {
	for {
		id := strings.ReplaceAll(uuid.NewString(), "-", "")[:idLength]
		if !m.sessionExists(id) {
			return id
		}
	}
}

// sessionExists checks if a session exists (case-insensitive)
func (m *Manager) sessionExists(id string) bool {
	_, exists := m.sessions[strings.ToLower(id)]
	return exists
}

// validID accepts ids usable as file names and Redis key suffixes
func validID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// LoadPersistedSessions loads all persisted sessions into memory
func (m *Manager) LoadPersistedSessions() error {
	if m.persistence == nil {
		return nil // No persistence configured
	}

	sessionIDs, err := m.persistence.ListAll()
	if err != nil {
		return fmt.Errorf("failed to list persisted sessions: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	loadedCount := 0
	for _, id := range sessionIDs {
		// Skip if already loaded in memory
		if m.sessionExists(id) {
			continue
		}

		session, err := m.load(id)
		if err != nil {
			m.logger.Warn("failed to load persisted session", zap.String("session_id", id), zap.Error(err))
			continue
		}

		m.sessions[strings.ToLower(id)] = session
		loadedCount++
	}

	if loadedCount > 0 {
		m.logger.Info("loaded persisted sessions", zap.Int("count", loadedCount))
	}

	return nil
}

// SaveAllSessions saves all in-memory sessions to persistence
func (m *Manager) SaveAllSessions() error {
	if m.persistence == nil {
		return nil // No persistence configured
	}

	m.mu.RLock()
	records := make([]*PersistedSessionData, 0, len(m.sessions))
	for _, session := range m.sessions {
		records = append(records, recordOf(session, session.Game.State().Snapshot()))
	}
	m.mu.RUnlock()

	errorCount := 0
	for _, data := range records {
		if err := m.persistence.Save(data); err != nil {
			m.logger.Warn("failed to save session", zap.String("session_id", data.ID), zap.Error(err))
			errorCount++
		}
	}

	if errorCount > 0 {
		return fmt.Errorf("failed to save %d sessions", errorCount)
	}

	return nil
}

// Close stops every session's game
func (m *Manager) Close() {
	m.mu.RLock()
	sessions := make([]*service.Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.mu.RUnlock()

	for _, session := range sessions {
		session.Game.Close()
	}
}
