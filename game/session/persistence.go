package session

import (
	"time"

	"github.com/wricardo/knights-trail/game/engine"
	"github.com/wricardo/knights-trail/game/service"
)

// SessionPersistence defines the interface for persisting sessions
type SessionPersistence interface {
	// Save persists a session record to storage
	Save(data *PersistedSessionData) error

	// Load retrieves a session record from storage by ID
	Load(id string) (*PersistedSessionData, error)

	// Delete removes a session from storage
	Delete(id string) error

	// ListAll returns all persisted session IDs
	ListAll() ([]string, error)

	// Exists checks if a session exists in storage
	Exists(id string) bool
}

// PersistedSessionData is the stored form of a session. The snapshot carries
// the generator position, so a loaded game continues exactly where it stopped.
type PersistedSessionData struct {
	ID             string          `json:"id" msgpack:"id"`
	ConfigName     string          `json:"config_name" msgpack:"config_name"`
	CreatedAt      time.Time       `json:"created_at" msgpack:"created_at"`
	LastAccessedAt time.Time       `json:"last_accessed_at" msgpack:"last_accessed_at"`
	Snapshot       engine.Snapshot `json:"game_state" msgpack:"game_state"`
}

// recordOf builds the stored form of a live session
func recordOf(s *service.Session, snap engine.Snapshot) *PersistedSessionData {
	return &PersistedSessionData{
		ID:             s.ID,
		ConfigName:     s.ConfigName,
		CreatedAt:      s.CreatedAt,
		LastAccessedAt: s.LastAccessed(),
		Snapshot:       snap,
	}
}
