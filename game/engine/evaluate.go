package engine

// Evaluate eliminates every living player left without a legal move, then
// decides whether the game is over.
//
// One survivor wins. If nobody survives, every player holding the maximum
// score wins. Otherwise the next round starts in SELECT.
func Evaluate(s *GameState) (*GameState, []Event) {
	if s.IsOver() {
		return s, nil
	}

	next := s.with()
	next.Players = append([]PlayerState(nil), s.Players...)
	events := []Event{}

	for i := range next.Players {
		p := &next.Players[i]
		if !p.Alive() {
			continue
		}
		if Mobility(p.Row, p.Col, s.BoardSize, s.Grid) == 0 {
			p.Status = StatusEliminated
			events = append(events, Event{Type: EventElimination, PlayerID: p.ID, Score: p.Score})
		}
	}

	var survivors []int
	for _, p := range next.Players {
		if p.Alive() {
			survivors = append(survivors, p.ID)
		}
	}

	switch len(survivors) {
	case 0:
		events = crownTopScorers(next, events)
	case 1:
		p := &next.Players[survivors[0]]
		p.Status = StatusWinner
		events = append(events, Event{Type: EventWinner, PlayerID: p.ID, Score: p.Score})
		next.Phase = PhaseGameOver
	default:
		next.Phase = PhaseSelect
	}

	return next, events
}

// crownTopScorers marks every player holding the maximum score as a winner
// and ends the game.
func crownTopScorers(next *GameState, events []Event) []Event {
	best := MaxScore(next.Players)
	for i := range next.Players {
		p := &next.Players[i]
		if p.Score == best {
			p.Status = StatusWinner
			events = append(events, Event{Type: EventWinner, PlayerID: p.ID, Score: p.Score})
		}
	}
	next.Phase = PhaseGameOver
	return events
}

// StallLimit is the number of consecutive rounds without a move after which
// a game on a board of size is adjudicated.
func StallLimit(size int) int {
	return size * size
}

// IdleRounds counts the most recent history records in which no knight moved.
func IdleRounds(s *GameState) int {
	n := 0
	for i := len(s.History) - 1; i >= 0 && len(s.History[i].Moves) == 0; i-- {
		n++
	}
	return n
}

// Adjudicate ends a game in SELECT whose last StallLimit rounds moved no
// knight. Every survivor is eliminated and the game is scored as if nobody
// had survived: the players holding the maximum score win. Any other state
// is returned unchanged.
//
// The rule depends only on the history, so Replay reproduces it.
func Adjudicate(s *GameState) (*GameState, []Event) {
	if s.Phase != PhaseSelect || IdleRounds(s) < StallLimit(s.BoardSize) {
		return s, nil
	}

	next := s.with()
	next.Players = append([]PlayerState(nil), s.Players...)
	events := []Event{{Type: EventStalemate, PlayerID: NoPlayer}}

	for i := range next.Players {
		p := &next.Players[i]
		if p.Alive() {
			p.Status = StatusEliminated
			events = append(events, Event{Type: EventElimination, PlayerID: p.ID, Score: p.Score})
		}
	}
	return next, crownTopScorers(next, events)
}

// Conclude runs Evaluate followed by Adjudicate on a resolved state.
func Conclude(s *GameState) (*GameState, []Event) {
	next, events := Evaluate(s)
	next, stall := Adjudicate(next)
	return next, append(events, stall...)
}
