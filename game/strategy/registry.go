package strategy

import (
	"fmt"
	"sync"

	"github.com/wricardo/knights-trail/game/engine"
	"go.uber.org/zap"
)

// Func chooses one of moves for player. moves always holds at least two
// destinations when called through ComputeMove.
type Func func(s *engine.GameState, player engine.PlayerState, moves []engine.Position) engine.Position

// ID names a strategy.
type ID string

const (
	Mobility  ID = "mobility"
	Aggressor ID = "aggressor"
	Balanced  ID = "balanced"

	Default = Mobility
)

// BuiltIns lists the strategies every default registry carries, in
// registration order.
var BuiltIns = []ID{Mobility, Aggressor, Balanced}

// Registry maps strategy names to functions. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	funcs  map[ID]Func
	order  []ID
	logger *zap.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		funcs:  make(map[ID]Func),
		logger: logger,
	}
}

// NewDefaultRegistry returns a registry holding the built-in strategies.
func NewDefaultRegistry(logger *zap.Logger) *Registry {
	r := NewRegistry(logger)
	r.Register(Mobility, MobilityStrategy)
	r.Register(Aggressor, AggressorStrategy)
	r.Register(Balanced, BalancedStrategy)
	return r
}

// Register adds fn under name. Registering an existing name replaces its
// function and keeps its position in Names.
func (r *Registry) Register(name ID, fn Func) {
	if fn == nil {
		panic(fmt.Sprintf("strategy: nil func registered as %q", name))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.funcs[name]; !exists {
		r.order = append(r.order, name)
	} else {
		r.logger.Debug("strategy replaced", zap.String("strategy", string(name)))
	}
	r.funcs[name] = fn
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	for i, id := range r.order {
		names[i] = string(id)
	}
	return names
}

// Lookup returns the function registered under name.
func (r *Registry) Lookup(name ID) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Resolve maps a configured strategy name to a registered one. Empty and
// unknown names fall back to Default; unknown names are logged.
func (r *Registry) Resolve(name string) ID {
	if name == "" {
		return Default
	}
	if _, ok := r.Lookup(ID(name)); ok {
		return ID(name)
	}
	r.logger.Warn("unknown strategy, falling back to default",
		zap.String("strategy", name),
		zap.String("default", string(Default)))
	return Default
}

// ResolvePlayers returns a copy of players where every computer player's
// strategy is a registered name. Humans are left without one.
func (r *Registry) ResolvePlayers(players []engine.PlayerState) []engine.PlayerState {
	out := make([]engine.PlayerState, len(players))
	for i, p := range players {
		if p.IsHuman {
			p.Strategy = ""
		} else {
			p.Strategy = string(r.Resolve(p.Strategy))
		}
		out[i] = p
	}
	return out
}

// ComputeMove returns the destination player id wants this round. It returns
// nil when the player is absent, not alive or has no legal move. A single
// legal move is returned without consulting the strategy.
func (r *Registry) ComputeMove(s *engine.GameState, id int) *engine.Position {
	p, ok := s.Player(id)
	if !ok || !p.Alive() {
		return nil
	}
	moves := s.LegalMovesFor(id)
	switch len(moves) {
	case 0:
		return nil
	case 1:
		return &moves[0]
	}

	fn, ok := r.Lookup(ID(p.Strategy))
	if !ok {
		fn, ok = r.Lookup(r.Resolve(p.Strategy))
		if !ok {
			fn = MobilityStrategy
		}
	}
	move := fn(s, p, moves)
	return &move
}
