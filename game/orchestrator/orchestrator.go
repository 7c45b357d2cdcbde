package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wricardo/knights-trail/game/engine"
	"github.com/wricardo/knights-trail/game/strategy"
	"go.uber.org/zap"
)

var (
	ErrAwaitingHumans = errors.New("waiting for human players")
	ErrNotHuman       = errors.New("player is not human")
	ErrClosed         = errors.New("orchestrator is closed")
)

// RoundResult is the outcome of one resolved and evaluated round. Turn is the
// round's number, counted from 1, which is also State.Turn. State is shared
// between listeners and must not be modified.
type RoundResult struct {
	Turn     int               `json:"turn"`
	Events   []engine.Event    `json:"events"`
	State    *engine.GameState `json:"-"`
	TimedOut bool              `json:"timedOut,omitempty"`
}

// Stalemate reports whether the round ended the game by adjudication after
// too many rounds without a move.
func (r RoundResult) Stalemate() bool {
	for _, ev := range r.Events {
		if ev.Type == engine.EventStalemate {
			return true
		}
	}
	return false
}

// Listener is called after every round, in round order, while the
// orchestrator is locked. Listeners must not call back into it except for
// State and LegalMoves.
type Listener func(RoundResult)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTimeout overrides the ruleset's per-round human timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// WithThinkDelay overrides the ruleset's pause before computer players move.
func WithThinkDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.thinkDelay = d }
}

// WithListener registers l before the first round can run.
func WithListener(l Listener) Option {
	return func(o *Orchestrator) { o.listeners = append(o.listeners, l) }
}

// Orchestrator runs one game. It is safe for concurrent use.
type Orchestrator struct {
	mu         sync.Mutex
	state      *engine.GameState
	published  atomic.Pointer[engine.GameState]
	registry   *strategy.Registry
	logger     *zap.Logger
	listeners  []Listener
	timeout    time.Duration
	thinkDelay time.Duration

	timer *time.Timer
	// gen invalidates timer callbacks that fire after their round ended.
	gen uint64

	closed bool
}

// New takes over state and prepares its first round. Computer players'
// strategy names are resolved against reg once, here. A state restored in
// EVALUATE is evaluated immediately, and a restored game that has gone
// engine.StallLimit rounds without a move is adjudicated.
func New(state *engine.GameState, reg *strategy.Registry, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = strategy.NewDefaultRegistry(logger)
	}

	s := state.Clone()
	s.Players = reg.ResolvePlayers(s.Players)

	o := &Orchestrator{
		state:      s,
		registry:   reg,
		logger:     logger,
		timeout:    time.Duration(s.Ruleset.TimerSeconds) * time.Second,
		thinkDelay: time.Duration(s.Ruleset.ThinkDelayMs) * time.Millisecond,
	}
	for _, opt := range opts {
		opt(o)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	restored := o.state.Phase
	var events []engine.Event
	if restored == engine.PhaseEvaluate {
		o.state, events = engine.Conclude(o.state)
	} else {
		o.state, events = engine.Adjudicate(o.state)
	}
	if len(events) > 0 {
		o.logger.Info("concluded restored round",
			zap.Int("turn", o.state.Turn),
			zap.Int("events", len(events)),
			zap.String("restored_phase", string(restored)),
			zap.String("phase", string(o.state.Phase)))
	}
	o.publish()
	o.armTimer()
	return o
}

// OnRound registers a listener for subsequent rounds.
func (o *Orchestrator) OnRound(l Listener) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, l)
}

// State returns a copy of the latest complete state.
func (o *Orchestrator) State() *engine.GameState {
	return o.published.Load().Clone()
}

// LegalMoves returns the legal destinations of player id in the latest state.
func (o *Orchestrator) LegalMoves(id int) []engine.Position {
	return o.published.Load().LegalMovesFor(id)
}

// Pending returns the ids of living humans the current round is waiting for.
func (o *Orchestrator) Pending() []int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pending()
}

// Submit records a human intent. When it was the last one the round is played
// and its result returned; otherwise the result is nil.
func (o *Orchestrator) Submit(ctx context.Context, id int, to engine.Position) (*RoundResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.usable(); err != nil {
		return nil, err
	}
	p, ok := o.state.Player(id)
	if !ok {
		return nil, engine.ErrUnknownPlayer
	}
	if !p.IsHuman {
		return nil, ErrNotHuman
	}
	next, err := engine.SubmitIntent(o.state, id, to)
	if err != nil {
		return nil, err
	}
	o.state = next
	o.publish()
	o.logger.Debug("intent submitted",
		zap.Int("turn", o.state.Turn),
		zap.Int("player_id", id),
		zap.Int("row", to.Row),
		zap.Int("col", to.Col))

	if len(o.pending()) > 0 {
		return nil, nil
	}
	return o.playRound(ctx, false)
}

// Step plays one round. It fails with ErrAwaitingHumans while a living human
// still has to act.
func (o *Orchestrator) Step(ctx context.Context) (*RoundResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.usable(); err != nil {
		return nil, err
	}
	if len(o.pending()) > 0 {
		return nil, ErrAwaitingHumans
	}
	return o.playRound(ctx, false)
}

// Autoplay plays rounds until the game is over. It stops early with
// ErrAwaitingHumans or the context's error.
func (o *Orchestrator) Autoplay(ctx context.Context) ([]RoundResult, error) {
	var results []RoundResult
	for {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := o.Step(ctx)
		if res != nil {
			results = append(results, *res)
		}
		if err != nil {
			return results, err
		}
		if res.State.IsOver() {
			return results, nil
		}
	}
}

// Close cancels any pending timeout. Later calls that change the game fail
// with ErrClosed.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	o.stopTimer()
}

func (o *Orchestrator) usable() error {
	switch {
	case o.closed:
		return ErrClosed
	case o.state.IsOver():
		return engine.ErrGameOver
	}
	return nil
}

// pending lists living humans without an intent. Humans with no legal move
// have nothing to choose and are not waited for.
func (o *Orchestrator) pending() []int {
	var ids []int
	for _, p := range o.state.LivingPlayers() {
		if !p.IsHuman {
			continue
		}
		if _, ok := o.state.PendingIntents[p.ID]; ok {
			continue
		}
		if len(o.state.LegalMovesFor(p.ID)) == 0 {
			continue
		}
		ids = append(ids, p.ID)
	}
	return ids
}

func (o *Orchestrator) publish() *engine.GameState {
	snap := o.state.Clone()
	o.published.Store(snap)
	return snap
}

// playRound computes computer intents, resolves and evaluates. Callers hold mu.
func (o *Orchestrator) playRound(ctx context.Context, timedOut bool) (*RoundResult, error) {
	o.stopTimer()
	if err := o.think(ctx); err != nil {
		o.armTimer()
		return nil, err
	}

	for _, p := range o.state.LivingPlayers() {
		if p.IsHuman {
			continue
		}
		move := o.registry.ComputeMove(o.state, p.ID)
		if move == nil {
			continue
		}
		next, err := engine.SubmitIntent(o.state, p.ID, *move)
		if err != nil {
			o.logger.Error("failed to submit computer intent", zap.Int("player_id", p.ID), zap.Error(err))
			continue
		}
		o.state = next
	}

	resolved, events := engine.Resolve(o.state)
	concluded, outcome := engine.Conclude(resolved)
	events = append(events, outcome...)
	o.state = concluded
	turn := o.state.Turn

	moved := 0
	for _, ev := range events {
		if ev.Type == engine.EventMove {
			moved++
		}
	}

	o.logger.Debug("round played",
		zap.Int("turn", turn),
		zap.Int("moves", moved),
		zap.Int("events", len(events)),
		zap.Bool("timed_out", timedOut),
		zap.String("phase", string(o.state.Phase)))

	result := RoundResult{Turn: turn, Events: events, State: o.publish(), TimedOut: timedOut}
	for _, l := range o.listeners {
		l(result)
	}

	if o.state.IsOver() {
		winners := make([]int, 0, len(o.state.Players))
		for _, w := range o.state.Winners() {
			winners = append(winners, w.ID)
		}
		if result.Stalemate() {
			o.logger.Warn("game adjudicated after rounds without a move",
				zap.Int("turn", turn),
				zap.Int("idle_rounds", engine.IdleRounds(o.state)))
		}
		o.logger.Info("game over", zap.Int("turn", turn), zap.Ints("winners", winners))
		return &result, nil
	}

	o.armTimer()
	return &result, nil
}

func (o *Orchestrator) think(ctx context.Context) error {
	if o.thinkDelay <= 0 {
		return nil
	}
	cpu := false
	for _, p := range o.state.LivingPlayers() {
		if !p.IsHuman {
			cpu = true
			break
		}
	}
	if !cpu {
		return nil
	}

	t := time.NewTimer(o.thinkDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
