package strategy

import "github.com/wricardo/knights-trail/game/engine"

// maxMobility is the mobility of an unobstructed knight.
const maxMobility = 8

// MobilityStrategy picks the destination that leaves the player the most
// onward moves. Exact ties are settled by one coin flip each.
func MobilityStrategy(s *engine.GameState, p engine.PlayerState, moves []engine.Position) engine.Position {
	rng := s.RNG()
	best, bestScore := moves[0], -1
	for _, m := range moves {
		var score int
		s.Grid.Simulate(m, engine.OwnedBy(p.ID), func() {
			score = engine.Mobility(m.Row, m.Col, s.BoardSize, s.Grid)
		})
		if score > bestScore {
			best, bestScore = m, score
		} else if score == bestScore && rng.Float64() > 0.5 {
			best = m
		}
	}
	return best
}

// AggressorStrategy picks the destination that takes the most moves away from
// living opponents, counting its own mobility once against every opponent
// reduction counted twice. Without opponents it plays like MobilityStrategy.
func AggressorStrategy(s *engine.GameState, p engine.PlayerState, moves []engine.Position) engine.Position {
	opponents := livingOpponents(s, p.ID)
	if len(opponents) == 0 {
		return MobilityStrategy(s, p, moves)
	}

	rng := s.RNG()
	best, bestScore := moves[0], -1
	for _, m := range moves {
		var score int
		s.Grid.Simulate(m, engine.OwnedBy(p.ID), func() {
			own := engine.Mobility(m.Row, m.Col, s.BoardSize, s.Grid)
			score = 2*reduction(s, opponents) + own
		})
		if score > bestScore {
			best, bestScore = m, score
		} else if score == bestScore && rng.Float64() > 0.5 {
			best = m
		}
	}
	return best
}

// BalancedStrategy weighs own mobility against opponent reduction, shifting
// toward aggression as the board fills. Each candidate gets one draw of noise
// scaled by 0.2.
func BalancedStrategy(s *engine.GameState, p engine.PlayerState, moves []engine.Position) engine.Position {
	density := engine.Density(s.Grid)
	aggressWeight := 2 * density
	mobilityWeight := 1 - 0.5*density
	opponents := livingOpponents(s, p.ID)

	rng := s.RNG()
	var best engine.Position
	bestScore := -1.0
	for i, m := range moves {
		var score float64
		s.Grid.Simulate(m, engine.OwnedBy(p.ID), func() {
			own := engine.Mobility(m.Row, m.Col, s.BoardSize, s.Grid)
			score = mobilityWeight*float64(own) + aggressWeight*float64(reduction(s, opponents))
			score += rng.Float64() * 0.2
		})
		if i == 0 || score > bestScore {
			best, bestScore = m, score
		}
	}
	return best
}

func livingOpponents(s *engine.GameState, id int) []engine.PlayerState {
	var out []engine.PlayerState
	for _, o := range s.Players {
		if o.ID != id && o.Alive() {
			out = append(out, o)
		}
	}
	return out
}

// reduction sums 8 minus each opponent's mobility under the current grid.
func reduction(s *engine.GameState, opponents []engine.PlayerState) int {
	total := 0
	for _, o := range opponents {
		total += maxMobility - engine.Mobility(o.Row, o.Col, s.BoardSize, s.Grid)
	}
	return total
}
