package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCellOwner(t *testing.T) {
	id, ok := OwnedBy(3).Owner()
	assert.True(t, ok)
	assert.Equal(t, 3, id)

	_, ok = Empty.Owner()
	assert.False(t, ok)
	_, ok = Obstacle.Owner()
	assert.False(t, ok)
}

func TestClone_IsDeep(t *testing.T) {
	state := mustNewGame(t, Ruleset{BoardSize: 8, PlayerCount: 2, CPUCount: 1, Strategies: []string{"", "aggressor"}}, 11)
	state = firstFreeIntents(t, state)
	state, _ = Resolve(state)
	state.PendingIntents[0] = Position{Row: 2, Col: 3}

	c := state.Clone()
	c.Grid[0][0] = Obstacle
	c.Players[0].Score = 40
	c.PendingIntents[0] = Position{Row: 5, Col: 5}
	c.History[0].Moves[0].To = Position{Row: 7, Col: 7}
	c.Ruleset.Strategies[1] = "balanced"
	*c.Ruleset.Seed = 1

	assert.Equal(t, Empty, state.Grid[0][0])
	assert.NotEqual(t, 40, state.Players[0].Score)
	assert.Equal(t, Position{Row: 2, Col: 3}, state.PendingIntents[0])
	assert.NotEqual(t, Position{Row: 7, Col: 7}, state.History[0].Moves[0].To)
	assert.Equal(t, "aggressor", state.Ruleset.Strategies[1])
	assert.Equal(t, int64(11), *state.Ruleset.Seed)
}

func TestClone_GeneratorIsIndependent(t *testing.T) {
	state := mustNewGame(t, Ruleset{BoardSize: 8, PlayerCount: 2}, 11)
	before := state.RNG().State()

	c := state.Clone()
	c.RNG().Float64()

	assert.Equal(t, before, state.RNG().State())
	assert.NotEqual(t, before, c.RNG().State())
}

func TestGameState_Queries(t *testing.T) {
	s := buildState(8, Position{Row: 1, Col: 1}, Position{Row: 6, Col: 6}, Position{Row: 1, Col: 6})
	s.Players[1].Status = StatusEliminated
	s.Players[2].Status = StatusWinner

	living := s.LivingPlayers()
	assert.Len(t, living, 1)
	assert.Equal(t, 0, living[0].ID)
	assert.Equal(t, []PlayerState{s.Players[2]}, s.Winners())

	_, ok := s.Player(3)
	assert.False(t, ok)
	assert.Equal(t, []Position{{Row: 0, Col: 3}, {Row: 2, Col: 3}, {Row: 3, Col: 0}, {Row: 3, Col: 2}}, s.LegalMovesFor(0))
	assert.Nil(t, s.LegalMovesFor(9))
}

func TestDensity(t *testing.T) {
	s := buildState(4, Position{Row: 0, Col: 0}, Position{Row: 3, Col: 3})
	s.Grid[1][1] = Obstacle
	assert.Equal(t, 3, CountOccupied(s.Grid))
	assert.InDelta(t, 3.0/16.0, Density(s.Grid), 1e-9)
	assert.Equal(t, 1, MaxScore(s.Players))
}
