// Package engine provides the deterministic core of the Knight's Trail game.
//
// The engine package implements the game mechanics including:
//   - Knight-move legality and mobility queries on a square grid
//   - A seeded xorshift32 generator that drives every randomized outcome
//   - Game initialization (start cells, obstacle placement)
//   - Simultaneous move resolution with collision detection
//   - Elimination and winner evaluation
//   - Snapshot export, restore and replay
//
// Core Types:
//
// GameState is the single source of truth for one game. Transitions
// (SubmitIntent, Resolve, Evaluate) never mutate the state they receive; each
// returns a new value that shares every field it did not change. Ruleset
// describes how a game is set up and is usually loaded from JSON presets.
//
// Usage:
//
//	seed := int64(42)
//	state, err := engine.NewGame(engine.Ruleset{
//		BoardSize:   8,
//		Seed:        &seed,
//		PlayerCount: 2,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	state, _ = engine.SubmitIntent(state, 0, engine.Position{Row: 3, Col: 2})
//	state, _ = engine.SubmitIntent(state, 1, engine.Position{Row: 4, Col: 5})
//	state, moveEvents := engine.Resolve(state)
//	state, endEvents := engine.Evaluate(state)
//
// Game Rules:
//
// Every round all living players privately pick a knight-move destination,
// then all moves resolve at once. Visited cells stay owned forever. Players
// targeting the same cell collide and stay put. A player left without a legal
// destination is eliminated; the last survivor wins, and if everyone is
// eliminated together the highest scorers share the win.
//
// The engine never reads the clock or any entropy source. Two games created
// from the same Ruleset and fed the same intents produce identical states.
package engine
