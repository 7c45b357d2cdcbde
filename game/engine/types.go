package engine

// Cell is a grid marker. Non-negative values are player ids owning the cell.
type Cell int

const (
	Empty    Cell = -1
	Obstacle Cell = -2

	// Validation constants
	MinBoardSize      = 3
	MaxBoardSize      = 32
	MinPlayers        = 2
	MaxPlayers        = 4
	MaxObstacleDraws  = 2000
	DefaultBoardSize  = 8
	DefaultStrategyID = "mobility"

	// NoPlayer marks events that are not about a single player.
	NoPlayer = -1
)

// Owner returns the owning player id and whether the cell is owned at all.
func (c Cell) Owner() (int, bool) {
	if c >= 0 {
		return int(c), true
	}
	return NoPlayer, false
}

// OwnedBy returns the marker for a cell owned by player id.
func OwnedBy(id int) Cell {
	return Cell(id)
}

// Phase is a step of the turn state machine. RESOLVE only exists while
// Resolve runs; no state carries it.
type Phase string

const (
	PhaseSelect   Phase = "SELECT"
	PhaseResolve  Phase = "RESOLVE"
	PhaseEvaluate Phase = "EVALUATE"
	PhaseGameOver Phase = "GAMEOVER"
)

// Resumable reports whether a state may rest in phase p.
func (p Phase) Resumable() bool {
	switch p {
	case PhaseSelect, PhaseEvaluate, PhaseGameOver:
		return true
	}
	return false
}

// Status is a player's lifecycle status. It only moves forward.
type Status string

const (
	StatusAlive      Status = "ALIVE"
	StatusEliminated Status = "ELIMINATED"
	StatusWinner     Status = "WINNER"
)

// Position represents row,col coordinates
type Position struct {
	Row int `json:"row" msgpack:"row"`
	Col int `json:"col" msgpack:"col"`
}

// PlayerState is one seat at the table.
type PlayerState struct {
	ID       int    `json:"id" msgpack:"id"`
	IsHuman  bool   `json:"isHuman" msgpack:"isHuman"`
	Status   Status `json:"status" msgpack:"status"`
	Row      int    `json:"row" msgpack:"row"`
	Col      int    `json:"col" msgpack:"col"`
	Score    int    `json:"score" msgpack:"score"`
	Strategy string `json:"aiStrategy,omitempty" msgpack:"aiStrategy,omitempty"`
}

// Pos returns the cell the player currently occupies.
func (p PlayerState) Pos() Position {
	return Position{Row: p.Row, Col: p.Col}
}

// Alive reports whether the player still takes part in rounds.
func (p PlayerState) Alive() bool {
	return p.Status == StatusAlive
}

// MoveRecord is one executed move inside a turn record.
type MoveRecord struct {
	PlayerID int      `json:"playerId" msgpack:"playerId"`
	From     Position `json:"from" msgpack:"from"`
	To       Position `json:"to" msgpack:"to"`
}

// TurnRecord captures every move executed in one resolution. Turn counts
// rounds from 1 and equals the state's Turn once the round is resolved.
type TurnRecord struct {
	Turn  int          `json:"turn" msgpack:"turn"`
	Moves []MoveRecord `json:"moves" msgpack:"moves"`
}

// EventType names the events surfaced to presentation layers.
type EventType string

const (
	EventMove        EventType = "move"
	EventCollision   EventType = "collision"
	EventBlocked     EventType = "blocked"
	EventElimination EventType = "elimination"
	EventWinner      EventType = "winner"
	EventStalemate   EventType = "stalemate"
)

// Event is emitted by Resolve and Evaluate. PlayerID is NoPlayer for
// collisions, whose participants are listed in Players.
type Event struct {
	Type     EventType `json:"type"`
	PlayerID int       `json:"playerId"`
	From     *Position `json:"from,omitempty"`
	To       *Position `json:"to,omitempty"`
	Square   *Position `json:"square,omitempty"`
	Players  []int     `json:"players,omitempty"`
	Score    int       `json:"score,omitempty"`
}

// Ruleset describes how a game is set up. It is loaded from JSON presets.
type Ruleset struct {
	Name            string   `json:"name,omitempty" msgpack:"name,omitempty"`
	Description     string   `json:"description,omitempty" msgpack:"description,omitempty"`
	BoardSize       int      `json:"board_size" msgpack:"board_size"`
	Seed            *int64   `json:"seed,omitempty" msgpack:"seed,omitempty"`
	PlayerCount     int      `json:"player_count" msgpack:"player_count"`
	CPUCount        int      `json:"cpu_count" msgpack:"cpu_count"`
	ObstacleCount   int      `json:"obstacle_count" msgpack:"obstacle_count"`
	TimerSeconds    int      `json:"timer_seconds" msgpack:"timer_seconds"`
	ThinkDelayMs    int      `json:"think_delay_ms,omitempty" msgpack:"think_delay_ms,omitempty"`
	DefaultStrategy string   `json:"default_strategy,omitempty" msgpack:"default_strategy,omitempty"`
	Strategies      []string `json:"strategies,omitempty" msgpack:"strategies,omitempty"`
}

// HumanCount returns the number of human seats. Humans take the lowest ids.
func (r Ruleset) HumanCount() int {
	return r.PlayerCount - r.CPUCount
}

// WithSeed returns a copy of the ruleset carrying seed.
func (r Ruleset) WithSeed(seed int64) Ruleset {
	r.Seed = &seed
	return r
}

// GameState represents the complete game state. Values are replaced, not
// mutated, across transitions; see SubmitIntent, Resolve and Evaluate.
type GameState struct {
	BoardSize      int
	Seed           int64
	Turn           int
	Phase          Phase
	Grid           Grid
	Players        []PlayerState
	PendingIntents map[int]Position
	Obstacles      []Position
	History        []TurnRecord
	Ruleset        Ruleset

	// rng is shared by every state of one game lineage so the stream continues
	// across transitions. Clone gives the copy its own stream.
	rng *Generator
}

// RNG returns the live generator of this game.
func (s *GameState) RNG() *Generator {
	return s.rng
}

// Player returns the player with id, if present.
func (s *GameState) Player(id int) (PlayerState, bool) {
	if id < 0 || id >= len(s.Players) {
		return PlayerState{}, false
	}
	return s.Players[id], true
}

// LivingPlayers returns the players still ALIVE, in id order.
func (s *GameState) LivingPlayers() []PlayerState {
	var alive []PlayerState
	for _, p := range s.Players {
		if p.Alive() {
			alive = append(alive, p)
		}
	}
	return alive
}

// Winners returns the players marked WINNER, in id order.
func (s *GameState) Winners() []PlayerState {
	var winners []PlayerState
	for _, p := range s.Players {
		if p.Status == StatusWinner {
			winners = append(winners, p)
		}
	}
	return winners
}

// IsOver reports whether the game reached GAMEOVER.
func (s *GameState) IsOver() bool {
	return s.Phase == PhaseGameOver
}

// Clone performs a deep copy of the game state, including an independent
// generator positioned where this one is.
func (s *GameState) Clone() *GameState {
	if s == nil {
		return nil
	}
	out := *s
	out.Grid = s.Grid.Clone()
	out.Players = append([]PlayerState(nil), s.Players...)
	out.PendingIntents = make(map[int]Position, len(s.PendingIntents))
	for id, to := range s.PendingIntents {
		out.PendingIntents[id] = to
	}
	out.Obstacles = append([]Position(nil), s.Obstacles...)
	out.History = cloneHistory(s.History)
	out.Ruleset = cloneRuleset(s.Ruleset)
	out.rng = s.rng.clone()
	return &out
}

// with returns a shallow copy; callers replace the fields they change.
func (s *GameState) with() *GameState {
	out := *s
	return &out
}

func cloneHistory(h []TurnRecord) []TurnRecord {
	if h == nil {
		return nil
	}
	out := make([]TurnRecord, len(h))
	for i, rec := range h {
		out[i] = TurnRecord{Turn: rec.Turn}
		if rec.Moves != nil {
			out[i].Moves = make([]MoveRecord, len(rec.Moves))
			copy(out[i].Moves, rec.Moves)
		}
	}
	return out
}

func cloneRuleset(r Ruleset) Ruleset {
	if r.Seed != nil {
		seed := *r.Seed
		r.Seed = &seed
	}
	r.Strategies = append([]string(nil), r.Strategies...)
	return r
}
