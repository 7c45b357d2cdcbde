package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// buildState places one player per start cell on an otherwise empty board.
func buildState(size int, starts ...Position) *GameState {
	grid := NewGrid(size)
	players := make([]PlayerState, len(starts))
	for i, p := range starts {
		players[i] = PlayerState{ID: i, IsHuman: true, Status: StatusAlive, Row: p.Row, Col: p.Col, Score: 1}
		grid[p.Row][p.Col] = OwnedBy(i)
	}
	return &GameState{
		BoardSize:      size,
		Seed:           1,
		Phase:          PhaseSelect,
		Grid:           grid,
		Players:        players,
		PendingIntents: make(map[int]Position),
		Obstacles:      []Position{},
		History:        []TurnRecord{},
		Ruleset:        Ruleset{BoardSize: size, PlayerCount: len(starts)}.WithSeed(1),
		rng:            NewGenerator(1),
	}
}

// firstFreeIntents submits, for every living player in id order, its first
// legal destination not already taken by a lower id. The first player with a
// move always gets it, so every round consumes at least one cell.
func firstFreeIntents(t *testing.T, s *GameState) *GameState {
	t.Helper()
	claimed := make(map[Position]bool)
	for _, p := range s.LivingPlayers() {
		for _, m := range s.LegalMovesFor(p.ID) {
			if claimed[m] {
				continue
			}
			claimed[m] = true
			var err error
			s, err = SubmitIntent(s, p.ID, m)
			require.NoError(t, err)
			break
		}
	}
	return s
}

type playedGame struct {
	final  *GameState
	events []Event
	rounds int
}

func playOut(t *testing.T, r Ruleset, seed int64) playedGame {
	t.Helper()
	state := mustNewGame(t, r, seed)
	var all []Event
	limit := r.BoardSize * r.BoardSize
	rounds := 0
	for !state.IsOver() {
		require.Less(t, rounds, limit, "game did not terminate")
		state = firstFreeIntents(t, state)
		var events []Event
		state, events = Resolve(state)
		all = append(all, events...)
		state, events = Conclude(state)
		all = append(all, events...)
		rounds++
	}
	return playedGame{final: state, events: all, rounds: rounds}
}
