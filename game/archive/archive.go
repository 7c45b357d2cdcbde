package archive

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/wricardo/knights-trail/game/engine"
)

var (
	ErrArchiveUnavailable = errors.New("archive unavailable")
	ErrGameNotFound       = errors.New("archived game not found")
)

// HumanLabel is the leaderboard label of human seats.
const HumanLabel = "human"

// Seat is one player's outcome in a finished game.
type Seat struct {
	PlayerID int    `json:"player_id"`
	Label    string `json:"label"`
	Score    int    `json:"score"`
	Winner   bool   `json:"winner"`
}

// Game is an archived finished game.
type Game struct {
	SessionID  string          `json:"session_id"`
	ConfigName string          `json:"config_name"`
	Seed       int64           `json:"seed"`
	BoardSize  int             `json:"board_size"`
	Turns      int             `json:"turns"`
	Seats      []Seat          `json:"seats"`
	FinishedAt time.Time       `json:"finished_at"`
	Snapshot   engine.Snapshot `json:"snapshot"`
}

// Standing aggregates the results of one label.
type Standing struct {
	Label     string  `json:"label"`
	Games     int     `json:"games"`
	Wins      int     `json:"wins"`
	WinRate   float64 `json:"win_rate"`
	BestScore int     `json:"best_score"`
}

// Archive persists finished games.
type Archive interface {
	Record(ctx context.Context, g Game) error
	Get(ctx context.Context, sessionID string) (*Game, error)
	Recent(ctx context.Context, limit int) ([]Game, error)
	Leaderboard(ctx context.Context, limit int) ([]Standing, error)
	Close()
}

// FromState builds the archive entry of a finished game.
func FromState(sessionID, configName string, s *engine.GameState, finishedAt time.Time) Game {
	seats := make([]Seat, len(s.Players))
	for i, p := range s.Players {
		seats[i] = Seat{
			PlayerID: p.ID,
			Label:    SeatLabel(p),
			Score:    p.Score,
			Winner:   p.Status == engine.StatusWinner,
		}
	}
	return Game{
		SessionID:  sessionID,
		ConfigName: configName,
		Seed:       s.Seed,
		BoardSize:  s.BoardSize,
		Turns:      s.Turn,
		Seats:      seats,
		FinishedAt: finishedAt.UTC(),
		Snapshot:   s.Snapshot(),
	}
}

// SeatLabel returns the leaderboard label of p.
func SeatLabel(p engine.PlayerState) string {
	if p.IsHuman || p.Strategy == "" {
		return HumanLabel
	}
	return p.Strategy
}

// rank sorts standings by wins, then win rate, then best score, then label.
func rank(standings []Standing, limit int) []Standing {
	for i := range standings {
		if standings[i].Games > 0 {
			standings[i].WinRate = float64(standings[i].Wins) / float64(standings[i].Games)
		}
	}
	sort.Slice(standings, func(i, j int) bool {
		a, b := standings[i], standings[j]
		if a.Wins != b.Wins {
			return a.Wins > b.Wins
		}
		if a.WinRate != b.WinRate {
			return a.WinRate > b.WinRate
		}
		if a.BestScore != b.BestScore {
			return a.BestScore > b.BestScore
		}
		return a.Label < b.Label
	})
	if limit > 0 && len(standings) > limit {
		standings = standings[:limit]
	}
	return standings
}
