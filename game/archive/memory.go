package archive

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Archive.
type Memory struct {
	mu    sync.RWMutex
	games map[string]Game
}

// NewMemory returns an empty in-memory archive.
func NewMemory() *Memory {
	return &Memory{games: make(map[string]Game)}
}

func (m *Memory) Record(ctx context.Context, g Game) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g.Seats = append([]Seat(nil), g.Seats...)
	m.games[g.SessionID] = g
	return nil
}

func (m *Memory) Get(ctx context.Context, sessionID string) (*Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[sessionID]
	if !ok {
		return nil, ErrGameNotFound
	}
	return &g, nil
}

// Recent returns up to limit games, most recently finished first.
func (m *Memory) Recent(ctx context.Context, limit int) ([]Game, error) {
	m.mu.RLock()
	games := make([]Game, 0, len(m.games))
	for _, g := range m.games {
		games = append(games, g)
	}
	m.mu.RUnlock()

	sort.Slice(games, func(i, j int) bool {
		if !games[i].FinishedAt.Equal(games[j].FinishedAt) {
			return games[i].FinishedAt.After(games[j].FinishedAt)
		}
		return games[i].SessionID < games[j].SessionID
	})
	if limit > 0 && len(games) > limit {
		games = games[:limit]
	}
	return games, nil
}

func (m *Memory) Leaderboard(ctx context.Context, limit int) ([]Standing, error) {
	m.mu.RLock()
	byLabel := make(map[string]*Standing)
	for _, g := range m.games {
		for _, seat := range g.Seats {
			st, ok := byLabel[seat.Label]
			if !ok {
				st = &Standing{Label: seat.Label}
				byLabel[seat.Label] = st
			}
			st.Games++
			if seat.Winner {
				st.Wins++
			}
			if seat.Score > st.BestScore {
				st.BestScore = seat.Score
			}
		}
	}
	m.mu.RUnlock()

	standings := make([]Standing, 0, len(byLabel))
	for _, st := range byLabel {
		standings = append(standings, *st)
	}
	return rank(standings, limit), nil
}

func (m *Memory) Close() {}
