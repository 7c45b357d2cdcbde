// Package validate checks ruleset preset files before they are served. It
// checks:
//   - JSON structure, with unknown fields rejected
//   - the ruleset limits enforced when a game starts
//   - that every named strategy is registered
//   - that the requested obstacles fit outside the start cells and their knight moves
//   - that every player starts with at least one legal move
//
// Presets with a pinned seed are also set up once, and the obstacles actually
// placed are reported.
package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/wricardo/knights-trail/game/engine"
)

// Result captures the outcome of validating a single file. Errors explain
// why a file is invalid; Info lists facts about a valid one.
type Result struct {
	File   string
	Valid  bool
	Errors []string
	Info   []string
}

func (r *Result) fail(format string, args ...any) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) note(format string, args ...any) {
	r.Info = append(r.Info, fmt.Sprintf(format, args...))
}

// File loads and validates one preset. strategies lists the registered
// strategy names.
func File(path string, strategies []string) Result {
	result := Result{
		File:   filepath.Base(path),
		Valid:  true,
		Errors: []string{},
		Info:   []string{},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		result.fail("Failed to read file: %v", err)
		return result
	}

	var rules engine.Ruleset
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rules); err != nil {
		result.fail("Invalid JSON: %v", err)
		return result
	}

	Ruleset(&result, rules, strategies)
	return result
}

// Ruleset validates rules into result.
func Ruleset(result *Result, rules engine.Ruleset, strategies []string) {
	if err := engine.ValidateRuleset(rules); err != nil {
		result.fail("%v", err)
		return
	}

	known := make(map[string]bool, len(strategies))
	for _, name := range strategies {
		known[name] = true
	}
	if rules.DefaultStrategy != "" && !known[rules.DefaultStrategy] {
		result.fail("Unknown default_strategy %q", rules.DefaultStrategy)
	}
	humans := rules.HumanCount()
	for id, name := range rules.Strategies {
		if name == "" {
			continue
		}
		if !known[name] {
			result.fail("Unknown strategy %q for player %d", name, id)
		}
		if id < humans {
			result.note("Strategy %q for player %d is ignored (human seat)", name, id)
		}
	}

	starts := engine.StartPositions(rules.BoardSize, rules.PlayerCount)
	available := rules.BoardSize*rules.BoardSize - len(ForbiddenCells(rules.BoardSize, starts))
	if rules.ObstacleCount > available {
		result.fail("obstacle_count %d exceeds the %d cells available for obstacles", rules.ObstacleCount, available)
	}

	grid := engine.NewGrid(rules.BoardSize)
	for id, s := range starts {
		grid[s.Row][s.Col] = engine.OwnedBy(id)
	}
	for id, s := range starts {
		if engine.Mobility(s.Row, s.Col, rules.BoardSize, grid) == 0 {
			result.fail("Player %d starts at (%d,%d) with no legal move", id, s.Row, s.Col)
		}
	}

	if !result.Valid {
		return
	}

	if rules.Seed != nil {
		state, err := engine.NewGame(rules)
		if err != nil {
			result.fail("Failed to set up game: %v", err)
			return
		}
		if placed := len(state.Obstacles); placed < rules.ObstacleCount {
			result.note("Only %d of %d obstacles placed with seed %d", placed, rules.ObstacleCount, *rules.Seed)
		}
	}

	result.note("✓ Name: %s", rules.Name)
	result.note("✓ Board: %dx%d", rules.BoardSize, rules.BoardSize)
	result.note("✓ Players: %d (%d human, %d cpu)", rules.PlayerCount, humans, rules.CPUCount)
	result.note("✓ Obstacles: %d of %d available cells", rules.ObstacleCount, available)
	if rules.TimerSeconds > 0 {
		result.note("✓ Timer: %ds", rules.TimerSeconds)
	} else {
		result.note("✓ Timer: none")
	}
	if rules.Seed != nil {
		result.note("✓ Seed: %d", *rules.Seed)
	} else {
		result.note("✓ Seed: random per game")
	}
}

// ForbiddenCells returns the cells that never receive an obstacle: the start
// cells and every cell a knight move away from one.
func ForbiddenCells(size int, starts []engine.Position) map[engine.Position]bool {
	forbidden := make(map[engine.Position]bool)
	for _, s := range starts {
		forbidden[s] = true
		for _, off := range engine.KnightOffsets {
			r, c := s.Row+off.DR, s.Col+off.DC
			if engine.InBounds(r, c, size) {
				forbidden[engine.Position{Row: r, Col: c}] = true
			}
		}
	}
	return forbidden
}

// Dir validates every *.json preset in dir, in file name order.
func Dir(dir string, strategies []string) ([]Result, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list presets: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no presets found in %s", dir)
	}
	sort.Strings(files)

	results := make([]Result, 0, len(files))
	for _, file := range files {
		results = append(results, File(file, strategies))
	}
	return results, nil
}
