// Command analyze prints quick, human-readable facts about the ruleset presets
// in the configs directory: start cells, the cells kept free of obstacles,
// obstacles placed against those requested and each knight's opening mobility.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/urfave/cli/v3"
	"github.com/wricardo/knights-trail/game/engine"
	"github.com/wricardo/knights-trail/validate"
)

// Analysis is the opening of one preset.
type Analysis struct {
	File         string
	Name         string
	Seed         int64
	PinnedSeed   bool
	Rules        engine.Ruleset
	Starts       []engine.Position
	Forbidden    int
	Requested    int
	Placed       int
	Mobility     []int
	StartDensity float64
}

func main() {
	cmd := &cli.Command{
		Name:  "analyze",
		Usage: "print opening analysis for ruleset presets",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Value: "configs", Usage: "preset directory"},
			&cli.Int64Flag{Name: "seed", Value: 1, Usage: "seed for presets without a pinned one"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return analyzeDir(cmd.Root().Writer, cmd.String("dir"), cmd.Int64("seed"))
		},
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func analyzeDir(w io.Writer, dir string, seed int64) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no presets found in %s", dir)
	}
	sort.Strings(files)

	for _, file := range files {
		fmt.Fprintf(w, "\n=== Analyzing %s ===\n", filepath.Base(file))
		a, err := analyzePreset(file, seed)
		if err != nil {
			fmt.Fprintf(w, "Error: %v\n", err)
			continue
		}
		printAnalysis(w, a)
	}
	return nil
}

func analyzePreset(path string, seed int64) (*Analysis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}

	var rules engine.Ruleset
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("error parsing JSON: %w", err)
	}

	a := &Analysis{File: filepath.Base(path), Name: rules.Name, Rules: rules, Seed: seed, Requested: rules.ObstacleCount}
	if rules.Seed != nil {
		a.Seed = *rules.Seed
		a.PinnedSeed = true
	}

	state, err := engine.NewGame(rules.WithSeed(a.Seed))
	if err != nil {
		return nil, err
	}

	for _, p := range state.Players {
		a.Starts = append(a.Starts, p.Pos())
		a.Mobility = append(a.Mobility, engine.Mobility(p.Row, p.Col, state.BoardSize, state.Grid))
	}
	a.Forbidden = len(validate.ForbiddenCells(state.BoardSize, a.Starts))
	a.Placed = len(state.Obstacles)
	a.StartDensity = engine.Density(state.Grid)
	return a, nil
}

func printAnalysis(w io.Writer, a *Analysis) {
	r := a.Rules
	cells := r.BoardSize * r.BoardSize

	fmt.Fprintf(w, "Name: %s\n", a.Name)
	fmt.Fprintf(w, "Board: %d x %d\n", r.BoardSize, r.BoardSize)
	fmt.Fprintf(w, "Players: %d (%d human, %d cpu)\n", r.PlayerCount, r.HumanCount(), r.CPUCount)

	starts := make([]string, len(a.Starts))
	for i, s := range a.Starts {
		starts[i] = fmt.Sprintf("P%d (%d,%d)", i, s.Row, s.Col)
	}
	fmt.Fprintf(w, "Start cells: %s\n", strings.Join(starts, ", "))
	fmt.Fprintf(w, "Cells kept free of obstacles: %d of %d\n", a.Forbidden, cells)

	seedNote := "flag"
	if a.PinnedSeed {
		seedNote = "pinned"
	}
	fmt.Fprintf(w, "Obstacles: %d placed of %d requested (seed %d, %s)\n", a.Placed, a.Requested, a.Seed, seedNote)
	fmt.Fprintf(w, "Occupied at start: %.1f%%\n", a.StartDensity*100)

	mobility := make([]string, len(a.Mobility))
	for i, m := range a.Mobility {
		mobility[i] = fmt.Sprintf("P%d %d", i, m)
	}
	fmt.Fprintf(w, "Opening mobility: %s\n", strings.Join(mobility, ", "))

	if a.Placed < a.Requested {
		fmt.Fprintf(w, "⚠️  WARNING: only %d of %d obstacles fit within the draw budget\n", a.Placed, a.Requested)
	}
	if diff := spread(a.Mobility); diff > 0 {
		fmt.Fprintf(w, "⚠️  WARNING: opening mobility differs by %d between knights\n", diff)
	} else {
		fmt.Fprintf(w, "✅ Every knight opens with the same mobility\n")
	}
}

// spread returns max(values) - min(values).
func spread(values []int) int {
	if len(values) == 0 {
		return 0
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return hi - lo
}
