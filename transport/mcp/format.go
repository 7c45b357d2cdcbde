package mcp

import (
	"fmt"
	"strings"

	"github.com/wricardo/knights-trail/game/engine"
	"github.com/wricardo/knights-trail/game/orchestrator"
	"github.com/wricardo/knights-trail/game/service"
)

// Formatting helpers

func formatSessionInfo(session *service.SessionInfo) string {
	return fmt.Sprintf("Session: %s\nConfig: %s\nCreated: %s\n\n%s",
		session.ID, session.ConfigName,
		session.CreatedAt.Format("2006-01-02 15:04:05"),
		formatGameState(&session.GameState, session.Pending))
}

func knightChar(id int) string {
	return string(rune('A' + id))
}

func trailChar(id int) string {
	return string(rune('a' + id))
}

// cellChar renders one square of the board legend
func cellChar(state *engine.Snapshot, row, col int) string {
	for _, p := range state.Players {
		if p.Row == row && p.Col == col && p.Status != engine.StatusEliminated {
			return knightChar(p.ID)
		}
	}
	cell := state.Grid[row][col]
	if owner, ok := cell.Owner(); ok {
		for _, p := range state.Players {
			if p.ID == owner && p.Row == row && p.Col == col {
				return knightChar(owner)
			}
		}
		return trailChar(owner)
	}
	if cell == engine.Obstacle {
		return "#"
	}
	return "."
}

func renderBoard(state *engine.Snapshot) string {
	var b strings.Builder
	size := len(state.Grid)

	b.WriteString("   ")
	for col := 0; col < size; col++ {
		fmt.Fprintf(&b, "%2d", col)
	}
	b.WriteString("\n")
	for row := 0; row < size; row++ {
		fmt.Fprintf(&b, "%2d ", row)
		for col := 0; col < size; col++ {
			b.WriteString(" " + cellChar(state, row, col))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func playerKind(p engine.PlayerState) string {
	if p.IsHuman {
		return "human"
	}
	if p.Strategy != "" {
		return "cpu:" + p.Strategy
	}
	return "cpu"
}

func formatGameState(state *engine.Snapshot, pending []int) string {
	if state == nil || len(state.Grid) == 0 {
		return "No game state available"
	}

	var result strings.Builder
	fmt.Fprintf(&result, "Turn: %d | Phase: %s | Board: %dx%d | Seed: %d\n\n",
		state.Turn, state.Phase, state.BoardSize, state.BoardSize, state.Seed)

	for _, p := range state.Players {
		fmt.Fprintf(&result, "%s  player %d (%s) at (%d,%d) score %d %s\n",
			knightChar(p.ID), p.ID, playerKind(p), p.Row, p.Col, p.Score, p.Status)
	}
	result.WriteString("\n")
	result.WriteString(renderBoard(state))

	if len(pending) > 0 {
		fmt.Fprintf(&result, "\nWaiting for human players: %v\n", pending)
	}

	if state.Phase == engine.PhaseGameOver {
		var winners []string
		for _, p := range state.Players {
			if p.Status == engine.StatusWinner {
				winners = append(winners, fmt.Sprintf("player %d (score %d)", p.ID, p.Score))
			}
		}
		fmt.Fprintf(&result, "\n🏁 GAME OVER - winner: %s\n", strings.Join(winners, ", "))
	}

	return result.String()
}

func formatPositions(moves []engine.Position) string {
	parts := make([]string, len(moves))
	for i, m := range moves {
		parts[i] = fmt.Sprintf("(%d,%d)", m.Row, m.Col)
	}
	return strings.Join(parts, " ")
}

func formatEvent(ev engine.Event) string {
	switch ev.Type {
	case engine.EventMove:
		return fmt.Sprintf("player %d moved (%d,%d)→(%d,%d)", ev.PlayerID, ev.From.Row, ev.From.Col, ev.To.Row, ev.To.Col)
	case engine.EventCollision:
		return fmt.Sprintf("players %v collided at (%d,%d) and stayed put", ev.Players, ev.Square.Row, ev.Square.Col)
	case engine.EventBlocked:
		return fmt.Sprintf("player %d was blocked", ev.PlayerID)
	case engine.EventElimination:
		return fmt.Sprintf("player %d eliminated with score %d", ev.PlayerID, ev.Score)
	case engine.EventWinner:
		return fmt.Sprintf("player %d wins with score %d", ev.PlayerID, ev.Score)
	case engine.EventStalemate:
		return "stalemate: no knight moved for too many rounds"
	}
	return string(ev.Type)
}

func formatRound(r orchestrator.RoundResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Turn %d", r.Turn)
	if r.TimedOut {
		b.WriteString(" (timer expired)")
	}
	b.WriteString(":\n")
	for _, ev := range r.Events {
		b.WriteString("  • " + formatEvent(ev) + "\n")
	}
	return b.String()
}

func formatMoveResult(result *service.MoveResult) string {
	var response strings.Builder
	if result.Accepted {
		response.WriteString("✓ Move accepted\n")
	} else {
		response.WriteString("✗ Move rejected\n")
	}
	if result.Message != "" {
		response.WriteString(result.Message + "\n")
	}
	if result.Round != nil {
		response.WriteString("\n" + formatRound(*result.Round))
	}
	response.WriteString("\n" + formatGameState(&result.GameState, result.Pending))
	return response.String()
}

func formatRoundsResult(result *service.RoundsResult) string {
	var response strings.Builder
	fmt.Fprintf(&response, "Rounds played: %d\n", result.RoundsPlayed)

	// Long autoplays only show the tail
	rounds := result.Rounds
	const shown = 10
	if len(rounds) > shown {
		fmt.Fprintf(&response, "(showing last %d rounds)\n", shown)
		rounds = rounds[len(rounds)-shown:]
	}
	for _, r := range rounds {
		response.WriteString(formatRound(r))
	}

	switch result.StoppedReason {
	case service.StopAwaitingHumans:
		fmt.Fprintf(&response, "\nStopped: waiting for human players %v\n", result.Pending)
	case service.StopStalemate:
		response.WriteString("\nStopped: no knight moved for too many rounds, so the game was adjudicated\n")
	}

	response.WriteString("\n" + formatGameState(&result.GameState, result.Pending))
	return response.String()
}

func formatHistory(history *service.HistoryResponse) string {
	var result strings.Builder
	fmt.Fprintf(&result, "Turn History (Page %d/%d, Total: %d turns):\n\n",
		history.Page, history.TotalPages, history.TotalTurns)

	for _, rec := range history.Turns {
		if len(rec.Moves) == 0 {
			fmt.Fprintf(&result, "Turn %d: no knight moved\n", rec.Turn)
			continue
		}
		moves := make([]string, len(rec.Moves))
		for i, m := range rec.Moves {
			moves[i] = fmt.Sprintf("P%d (%d,%d)→(%d,%d)", m.PlayerID, m.From.Row, m.From.Col, m.To.Row, m.To.Col)
		}
		fmt.Fprintf(&result, "Turn %d: %s\n", rec.Turn, strings.Join(moves, ", "))
	}

	if history.HasNext {
		result.WriteString("\n(more turns on the next page)")
	}
	return result.String()
}

func formatTimer(seconds int) string {
	if seconds == 0 {
		return "none"
	}
	return fmt.Sprintf("%ds", seconds)
}

func describeCell(state *engine.Snapshot, row, col int) string {
	size := len(state.Grid)
	if !engine.InBounds(row, col, size) {
		return fmt.Sprintf("Coordinates (%d, %d) are out of bounds. Board size is %dx%d (0-%d for both row and col)",
			row, col, size, size, size-1)
	}

	char := cellChar(state, row, col)
	cell := state.Grid[row][col]

	var description string
	switch {
	case cell == engine.Obstacle:
		description = "Obstacle. No knight can ever land here."
	case cell == engine.Empty:
		description = "Empty square. A knight can land here."
	default:
		owner, _ := cell.Owner()
		if char == knightChar(owner) {
			description = fmt.Sprintf("Player %d's knight is standing here.", owner)
		} else {
			description = fmt.Sprintf("Trail square claimed by player %d. Blocked for the rest of the game.", owner)
		}
	}

	exits := engine.Mobility(row, col, size, state.Grid)
	return fmt.Sprintf("Square (%d, %d)\nCharacter: %s\n%s\nKnight moves out of this square onto empty squares: %d",
		row, col, char, description, exits)
}
