// Package strategy turns a game position into a move for computer players.
//
// A strategy is a Func that receives the current state, the player to move and
// that player's legal destinations in enumeration order, and returns one of
// them. Strategies may mark cells on the shared grid to look ahead but must do
// so through engine.Grid.Simulate so every mark is undone before they return.
//
// Strategies are kept in a Registry created once at startup and handed to the
// orchestrator. Names are resolved when a game is configured:
//
//	reg := strategy.NewDefaultRegistry(logger)
//	players := reg.ResolvePlayers(state.Players)
//	move := reg.ComputeMove(state, 1)
//
// Built-ins:
//   - mobility: maximize own mobility after the move
//   - aggressor: minimize opponent mobility, own mobility as a tie-breaker
//   - balanced: blend of both weighted by board density, with seeded noise
//
// Every random choice draws from the game's generator, so a seeded game
// replays identically.
package strategy
