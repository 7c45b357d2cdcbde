package engine

// SubmitIntent records a pending destination for a living player, replacing
// any destination it already submitted this round. Legality is not checked
// here; it is judged at resolution against the pre-resolution grid.
func SubmitIntent(s *GameState, playerID int, to Position) (*GameState, error) {
	if s.IsOver() {
		return s, ErrGameOver
	}
	p, ok := s.Player(playerID)
	if !ok {
		return s, ErrUnknownPlayer
	}
	if !p.Alive() {
		return s, ErrPlayerNotAlive
	}

	next := s.with()
	next.PendingIntents = make(map[int]Position, len(s.PendingIntents)+1)
	for id, dest := range s.PendingIntents {
		next.PendingIntents[id] = dest
	}
	next.PendingIntents[playerID] = to
	return next, nil
}

type intent struct {
	playerID int
	to       Position
}

// Resolve applies every pending intent of the living players at once.
//
// Intents that are not legal from the player's cell on the frozen grid are
// dropped and the player passes. Destinations targeted by more than one player
// produce a single collision event and none of those players move. Remaining
// intents are processed in player-id order; a destination that is no longer
// empty when its turn comes is reported as blocked. The outcome of such
// same-round conflicts therefore depends on id order.
func Resolve(s *GameState) (*GameState, []Event) {
	if s.IsOver() {
		return s, nil
	}

	var intents []intent
	for _, p := range s.Players {
		if !p.Alive() {
			continue
		}
		to, ok := s.PendingIntents[p.ID]
		if !ok {
			continue
		}
		if !IsLegal(p.Pos(), to, s.BoardSize, s.Grid) {
			continue
		}
		intents = append(intents, intent{playerID: p.ID, to: to})
	}

	targets := make(map[Position][]int)
	for _, in := range intents {
		targets[in.to] = append(targets[in.to], in.playerID)
	}

	next := s.with()
	next.Grid = s.Grid.Clone()
	next.Players = append([]PlayerState(nil), s.Players...)

	events := []Event{}
	reported := make(map[Position]bool)
	record := TurnRecord{Turn: s.Turn + 1, Moves: []MoveRecord{}}

	for _, in := range intents {
		square := in.to
		if ids := targets[square]; len(ids) > 1 {
			if !reported[square] {
				reported[square] = true
				events = append(events, Event{
					Type:     EventCollision,
					PlayerID: NoPlayer,
					Square:   &square,
					Players:  append([]int(nil), ids...),
				})
			}
			continue
		}

		if next.Grid.At(square) != Empty {
			events = append(events, Event{Type: EventBlocked, PlayerID: in.playerID, Square: &square})
			continue
		}

		p := &next.Players[in.playerID]
		from := p.Pos()
		next.Grid[square.Row][square.Col] = OwnedBy(in.playerID)
		p.Row, p.Col = square.Row, square.Col
		p.Score++

		events = append(events, Event{Type: EventMove, PlayerID: in.playerID, From: &from, To: &square})
		record.Moves = append(record.Moves, MoveRecord{PlayerID: in.playerID, From: from, To: square})
	}

	next.History = append(s.History[:len(s.History):len(s.History)], record)
	next.PendingIntents = make(map[int]Position)
	next.Turn = s.Turn + 1
	next.Phase = PhaseEvaluate
	return next, events
}
