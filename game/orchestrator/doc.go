// Package orchestrator sequences the rounds of one game.
//
// An Orchestrator owns the current engine state and drives the phase cycle
// SELECT -> RESOLVE -> EVALUATE -> SELECT|GAMEOVER. Human players act through
// Submit; once every living human has an intent (or has no legal move) the
// computer players choose theirs through the strategy registry, the round is
// resolved and evaluated, and listeners receive a RoundResult.
//
// Optional pacing:
//   - timeout: if humans have not acted within the timeout, their first legal
//     move is submitted for them and the round plays out
//   - think delay: a pause before computer players choose, for presentation
//
// Neither affects outcomes. Every round is concluded with engine.Conclude, so
// a game in which no knight moves for engine.StallLimit rounds is adjudicated
// and ends like any other.
//
// Readers such as HTTP handlers call State at any time and always see a
// complete pre-round or post-round state.
package orchestrator
