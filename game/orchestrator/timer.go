package orchestrator

import (
	"context"
	"time"

	"github.com/wricardo/knights-trail/game/engine"
	"go.uber.org/zap"
)

// armTimer starts the human timeout for the current round. Callers hold mu.
func (o *Orchestrator) armTimer() {
	o.stopTimer()
	if o.timeout <= 0 || o.closed || o.state.Phase != engine.PhaseSelect {
		return
	}
	if len(o.pending()) == 0 {
		return
	}
	gen := o.gen
	o.timer = time.AfterFunc(o.timeout, func() { o.expire(gen) })
}

// stopTimer cancels the armed timeout and invalidates any callback already
// in flight. Callers hold mu.
func (o *Orchestrator) stopTimer() {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.gen++
}

// expire submits the first legal move of every human still pending and plays
// the round.
func (o *Orchestrator) expire(gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if gen != o.gen || o.usable() != nil {
		return
	}
	for _, id := range o.pending() {
		moves := o.state.LegalMovesFor(id)
		if len(moves) == 0 {
			continue
		}
		next, err := engine.SubmitIntent(o.state, id, moves[0])
		if err != nil {
			o.logger.Error("failed to submit timeout intent", zap.Int("player_id", id), zap.Error(err))
			continue
		}
		o.state = next
		o.logger.Info("human timed out, first legal move submitted",
			zap.Int("turn", o.state.Turn),
			zap.Int("player_id", id))
	}

	if _, err := o.playRound(context.Background(), true); err != nil {
		o.logger.Error("failed to play timed out round", zap.Error(err))
	}
}
