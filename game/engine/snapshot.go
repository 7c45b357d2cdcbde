package engine

import (
	"errors"
	"fmt"
	"reflect"
)

var ErrReplayMismatch = errors.New("replay does not reproduce snapshot")

// Snapshot is the JSON-safe export of a GameState used for persistence,
// replay and inspection.
type Snapshot struct {
	BoardSize      int              `json:"boardSize" msgpack:"boardSize"`
	Seed           int64            `json:"seed" msgpack:"seed"`
	Turn           int              `json:"turn" msgpack:"turn"`
	Phase          Phase            `json:"phase" msgpack:"phase"`
	Players        []PlayerState    `json:"players" msgpack:"players"`
	Grid           Grid             `json:"grid" msgpack:"grid"`
	Obstacles      []Position       `json:"obstacles" msgpack:"obstacles"`
	Ruleset        Ruleset          `json:"ruleset" msgpack:"ruleset"`
	History        []TurnRecord     `json:"history" msgpack:"history"`
	PendingIntents map[int]Position `json:"pendingIntents,omitempty" msgpack:"pendingIntents,omitempty"`
	RNGState       uint32           `json:"rngState" msgpack:"rngState"`
}

// Snapshot exports a deep copy of the state.
func (s *GameState) Snapshot() Snapshot {
	c := s.Clone()
	snap := Snapshot{
		BoardSize: c.BoardSize,
		Seed:      c.Seed,
		Turn:      c.Turn,
		Phase:     c.Phase,
		Players:   c.Players,
		Grid:      c.Grid,
		Obstacles: c.Obstacles,
		Ruleset:   c.Ruleset,
		History:   c.History,
	}
	if len(c.PendingIntents) > 0 {
		snap.PendingIntents = c.PendingIntents
	}
	if c.rng != nil {
		snap.RNGState = c.rng.State()
	}
	if snap.History == nil {
		snap.History = []TurnRecord{}
	}
	return snap
}

// Restore rebuilds a live state from a snapshot, resuming the generator where
// the snapshot left it.
func Restore(snap Snapshot) (*GameState, error) {
	if snap.BoardSize < MinBoardSize || len(snap.Grid) != snap.BoardSize {
		return nil, fmt.Errorf("%w: grid has %d rows for board size %d", ErrInvalidRuleset, len(snap.Grid), snap.BoardSize)
	}
	for i, row := range snap.Grid {
		if len(row) != snap.BoardSize {
			return nil, fmt.Errorf("%w: grid row %d has %d cells for board size %d", ErrInvalidRuleset, i, len(row), snap.BoardSize)
		}
	}
	if !snap.Phase.Resumable() {
		return nil, fmt.Errorf("%w: phase %q cannot be resumed", ErrInvalidRuleset, snap.Phase)
	}
	for i, p := range snap.Players {
		if p.ID != i {
			return nil, fmt.Errorf("%w: player at index %d has id %d", ErrInvalidRuleset, i, p.ID)
		}
	}

	state := &GameState{
		BoardSize:      snap.BoardSize,
		Seed:           snap.Seed,
		Turn:           snap.Turn,
		Phase:          snap.Phase,
		Grid:           snap.Grid,
		Players:        snap.Players,
		PendingIntents: snap.PendingIntents,
		Obstacles:      snap.Obstacles,
		History:        snap.History,
		Ruleset:        snap.Ruleset,
		rng:            restoreGenerator(snap.RNGState),
	}
	if state.PendingIntents == nil {
		state.PendingIntents = make(map[int]Position)
	}
	return state.Clone(), nil
}

// Replay re-initializes the game described by snap and replays its history
// in order. The returned state has the same board, players, turn and phase as
// the game that produced snap; the generator position may differ because AI
// draws are not replayed.
func Replay(snap Snapshot) (*GameState, error) {
	state, err := NewGame(snap.Ruleset.WithSeed(snap.Seed))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize replay: %w", err)
	}
	for i, p := range snap.Players {
		if i < len(state.Players) && p.Strategy != "" {
			state.Players[i].Strategy = p.Strategy
		}
	}

	for i, rec := range snap.History {
		for _, m := range rec.Moves {
			state, err = SubmitIntent(state, m.PlayerID, m.To)
			if err != nil {
				return nil, fmt.Errorf("%w: turn %d player %d: %v", ErrReplayMismatch, rec.Turn, m.PlayerID, err)
			}
		}

		var events []Event
		state, events = Resolve(state)
		moved := 0
		for _, ev := range events {
			if ev.Type == EventMove {
				moved++
			}
		}
		if moved != len(rec.Moves) {
			return nil, fmt.Errorf("%w: turn %d executed %d of %d recorded moves", ErrReplayMismatch, rec.Turn, moved, len(rec.Moves))
		}

		last := i == len(snap.History)-1
		if last && snap.Phase == PhaseEvaluate {
			break
		}
		state, _ = Conclude(state)
	}
	return state, nil
}

type terminalView struct {
	Turn    int
	Phase   Phase
	Grid    Grid
	Players []PlayerState
	History []TurnRecord
}

func viewOf(s *GameState) terminalView {
	players := make([]PlayerState, len(s.Players))
	for i, p := range s.Players {
		p.Strategy = ""
		players[i] = p
	}
	history := make([]TurnRecord, len(s.History))
	for i, rec := range s.History {
		history[i] = TurnRecord{Turn: rec.Turn}
		if len(rec.Moves) > 0 {
			history[i].Moves = rec.Moves
		}
	}
	return terminalView{Turn: s.Turn, Phase: s.Phase, Grid: s.Grid, Players: players, History: history}
}

// VerifyReplay replays snap and checks that it reproduces the snapshot's
// board, players, turn, phase and history.
func VerifyReplay(snap Snapshot) (*GameState, error) {
	replayed, err := Replay(snap)
	if err != nil {
		return nil, err
	}
	original, err := Restore(snap)
	if err != nil {
		return nil, err
	}

	got, want := viewOf(replayed), viewOf(original)
	switch {
	case got.Turn != want.Turn:
		return replayed, fmt.Errorf("%w: turn %d, want %d", ErrReplayMismatch, got.Turn, want.Turn)
	case got.Phase != want.Phase:
		return replayed, fmt.Errorf("%w: phase %s, want %s", ErrReplayMismatch, got.Phase, want.Phase)
	case !reflect.DeepEqual(got.Players, want.Players):
		return replayed, fmt.Errorf("%w: players differ", ErrReplayMismatch)
	case !reflect.DeepEqual(got.Grid, want.Grid):
		return replayed, fmt.Errorf("%w: grid differs", ErrReplayMismatch)
	case !reflect.DeepEqual(got.History, want.History):
		return replayed, fmt.Errorf("%w: history differs", ErrReplayMismatch)
	}
	return replayed, nil
}
