package engine

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRuleset = errors.New("invalid ruleset")
	ErrUnknownPlayer  = errors.New("unknown player")
	ErrPlayerNotAlive = errors.New("player is not alive")
	ErrGameOver       = errors.New("game is over")
)

// ValidateRuleset checks that a ruleset describes a game that can be set up.
// It does not reject boards where players start without a legal move; such
// games proceed to an immediate elimination.
func ValidateRuleset(r Ruleset) error {
	if r.BoardSize < MinBoardSize || r.BoardSize > MaxBoardSize {
		return fmt.Errorf("%w: board_size must be between %d and %d, got %d",
			ErrInvalidRuleset, MinBoardSize, MaxBoardSize, r.BoardSize)
	}
	if r.PlayerCount < MinPlayers || r.PlayerCount > MaxPlayers {
		return fmt.Errorf("%w: player_count must be between %d and %d, got %d",
			ErrInvalidRuleset, MinPlayers, MaxPlayers, r.PlayerCount)
	}
	if r.CPUCount < 0 || r.CPUCount > r.PlayerCount {
		return fmt.Errorf("%w: cpu_count must be between 0 and player_count (%d), got %d",
			ErrInvalidRuleset, r.PlayerCount, r.CPUCount)
	}
	if r.ObstacleCount < 0 {
		return fmt.Errorf("%w: obstacle_count must not be negative, got %d", ErrInvalidRuleset, r.ObstacleCount)
	}
	if r.TimerSeconds < 0 {
		return fmt.Errorf("%w: timer_seconds must not be negative, got %d", ErrInvalidRuleset, r.TimerSeconds)
	}
	if r.ThinkDelayMs < 0 {
		return fmt.Errorf("%w: think_delay_ms must not be negative, got %d", ErrInvalidRuleset, r.ThinkDelayMs)
	}
	if len(r.Strategies) > r.PlayerCount {
		return fmt.Errorf("%w: %d strategy overrides given for %d players",
			ErrInvalidRuleset, len(r.Strategies), r.PlayerCount)
	}
	return nil
}

// StartPositions returns the corner-biased start cells for playerCount
// players, taken in a fixed order from the four padded corners.
func StartPositions(size, playerCount int) []Position {
	pad := size / 5
	far := size - 1 - pad
	corners := []Position{
		{Row: pad, Col: pad},
		{Row: far, Col: far},
		{Row: pad, Col: far},
		{Row: far, Col: pad},
	}
	if playerCount > len(corners) {
		playerCount = len(corners)
	}
	return corners[:playerCount]
}

// PlaceObstacles draws up to count obstacle cells by rejection sampling. Start
// cells and every cell a knight move away from a start are never chosen. At
// most MaxObstacleDraws cells are drawn; when the budget runs out fewer
// obstacles than requested are returned.
func PlaceObstacles(size int, starts []Position, count int, rng *Generator) []Position {
	forbidden := make(map[Position]bool)
	for _, s := range starts {
		forbidden[s] = true
		for _, off := range KnightOffsets {
			r, c := s.Row+off.DR, s.Col+off.DC
			if InBounds(r, c, size) {
				forbidden[Position{Row: r, Col: c}] = true
			}
		}
	}

	chosen := make(map[Position]bool)
	obstacles := []Position{}
	draws := 0
	for len(obstacles) < count && draws < MaxObstacleDraws {
		p := Position{Row: rng.Intn(size), Col: rng.Intn(size)}
		draws++
		if forbidden[p] || chosen[p] {
			continue
		}
		chosen[p] = true
		obstacles = append(obstacles, p)
	}
	return obstacles
}

// NewGame creates the initial state of a game. The ruleset must carry a seed;
// choosing a random one is the caller's business.
func NewGame(r Ruleset) (*GameState, error) {
	if err := ValidateRuleset(r); err != nil {
		return nil, err
	}
	if r.Seed == nil {
		return nil, fmt.Errorf("%w: seed is required", ErrInvalidRuleset)
	}

	seed := *r.Seed
	rng := NewGenerator(seed)
	size := r.BoardSize
	grid := NewGrid(size)

	starts := StartPositions(size, r.PlayerCount)
	humans := r.HumanCount()
	players := make([]PlayerState, len(starts))
	for i, start := range starts {
		p := PlayerState{
			ID:      i,
			IsHuman: i < humans,
			Status:  StatusAlive,
			Row:     start.Row,
			Col:     start.Col,
			Score:   1,
		}
		if !p.IsHuman {
			p.Strategy = r.strategyFor(i)
		}
		players[i] = p
		grid[start.Row][start.Col] = OwnedBy(i)
	}

	obstacles := PlaceObstacles(size, starts, r.ObstacleCount, rng)
	for _, o := range obstacles {
		grid[o.Row][o.Col] = Obstacle
	}

	return &GameState{
		BoardSize:      size,
		Seed:           seed,
		Turn:           0,
		Phase:          PhaseSelect,
		Grid:           grid,
		Players:        players,
		PendingIntents: make(map[int]Position),
		Obstacles:      obstacles,
		History:        []TurnRecord{},
		Ruleset:        cloneRuleset(r),
		rng:            rng,
	}, nil
}

// strategyFor returns the configured strategy name for CPU seat id.
func (r Ruleset) strategyFor(id int) string {
	if id < len(r.Strategies) && r.Strategies[id] != "" {
		return r.Strategies[id]
	}
	if r.DefaultStrategy != "" {
		return r.DefaultStrategy
	}
	return DefaultStrategyID
}
