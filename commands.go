package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"github.com/wricardo/knights-trail/game/config"
	"github.com/wricardo/knights-trail/game/engine"
	"github.com/wricardo/knights-trail/game/orchestrator"
	"github.com/wricardo/knights-trail/game/strategy"
	"github.com/wricardo/knights-trail/validate"
	"go.uber.org/zap"
)

func simulateCommand() *cli.Command {
	return &cli.Command{
		Name:      "simulate",
		Usage:     "play a preset with every seat controlled by its strategy",
		ArgsUsage: "[preset]",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "seed", Aliases: []string{"s"}, Usage: "seed (default: the preset's, else random)"},
			&cli.StringFlag{Name: "strategy", Usage: "strategy for every seat, replacing the preset's"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "write the final snapshot as JSON to this file"},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "print only the result"},
		},
		Action: simulateAction,
	}
}

func simulateAction(ctx context.Context, cmd *cli.Command) error {
	st, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	logger, err := st.Logger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	configs, err := config.NewManager(st.RulesetDir)
	if err != nil {
		return fmt.Errorf("failed to create config manager: %w", err)
	}

	var seed *int64
	if cmd.IsSet("seed") {
		s := cmd.Int64("seed")
		seed = &s
	}
	rules, err := configs.Resolve(cmd.Args().First(), seed)
	if err != nil {
		return err
	}
	rules.CPUCount = rules.PlayerCount
	if cmd.IsSet("strategy") {
		rules.DefaultStrategy = cmd.String("strategy")
		rules.Strategies = nil
	}

	state, err := engine.NewGame(*rules)
	if err != nil {
		return err
	}

	registry := strategy.NewDefaultRegistry(logger.Named("strategy"))
	game := orchestrator.New(state, registry, logger.Named("orchestrator"),
		orchestrator.WithTimeout(0),
		orchestrator.WithThinkDelay(0))
	defer game.Close()

	w := cmd.Root().Writer
	writeSetup(w, game.State())

	rounds, err := game.Autoplay(ctx)
	if err != nil {
		return fmt.Errorf("simulation stopped: %w", err)
	}

	if !cmd.Bool("quiet") {
		for _, r := range rounds {
			fmt.Fprintln(w, roundLine(r))
		}
	}
	final := game.State()
	stalemate := len(rounds) > 0 && rounds[len(rounds)-1].Stalemate()
	writeOutcome(w, final, stalemate)

	if out := cmd.String("out"); out != "" {
		if err := writeSnapshot(out, final.Snapshot()); err != nil {
			return err
		}
		fmt.Fprintf(w, "Snapshot written to %s\n", out)
	}
	return nil
}

func writeSetup(w io.Writer, s *engine.GameState) {
	name := s.Ruleset.Name
	if name == "" {
		name = "custom"
	}
	fmt.Fprintf(w, "%s | Board %dx%d | Seed %d | Obstacles %d/%d\n",
		name, s.BoardSize, s.BoardSize, s.Seed, len(s.Obstacles), s.Ruleset.ObstacleCount)
	for _, p := range s.Players {
		fmt.Fprintf(w, "  P%d %-10s start (%d,%d)\n", p.ID, p.Strategy, p.Row, p.Col)
	}
}

// roundLine renders one round on a single line.
func roundLine(r orchestrator.RoundResult) string {
	parts := make([]string, 0, len(r.Events))
	for _, ev := range r.Events {
		switch ev.Type {
		case engine.EventMove:
			parts = append(parts, fmt.Sprintf("P%d (%d,%d)→(%d,%d)", ev.PlayerID, ev.From.Row, ev.From.Col, ev.To.Row, ev.To.Col))
		case engine.EventCollision:
			parts = append(parts, fmt.Sprintf("collision %v at (%d,%d)", ev.Players, ev.Square.Row, ev.Square.Col))
		case engine.EventBlocked:
			parts = append(parts, fmt.Sprintf("P%d blocked", ev.PlayerID))
		case engine.EventElimination:
			parts = append(parts, fmt.Sprintf("P%d out", ev.PlayerID))
		case engine.EventWinner:
			parts = append(parts, fmt.Sprintf("P%d wins", ev.PlayerID))
		case engine.EventStalemate:
			parts = append(parts, "stalemate")
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "no knight moved")
	}
	return fmt.Sprintf("Turn %3d: %s", r.Turn, strings.Join(parts, ", "))
}

func writeOutcome(w io.Writer, s *engine.GameState, stalemate bool) {
	if stalemate {
		fmt.Fprintf(w, "Stalemate after %d turns without a move\n", engine.IdleRounds(s))
	}
	switch {
	case s.IsOver():
		winners := s.Winners()
		if len(winners) == 0 {
			fmt.Fprintf(w, "Result: no winner after %d turns\n", s.Turn)
			break
		}
		ids := make([]string, len(winners))
		for i, p := range winners {
			ids[i] = fmt.Sprintf("P%d", p.ID)
		}
		fmt.Fprintf(w, "Result: %s won after %d turns\n", strings.Join(ids, ", "), s.Turn)
	default:
		fmt.Fprintf(w, "Result: unfinished at turn %d\n", s.Turn)
	}
	for _, p := range s.Players {
		fmt.Fprintf(w, "  P%d %-10s score %3d %s\n", p.ID, p.Strategy, p.Score, p.Status)
	}
}

func writeSnapshot(path string, snap engine.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

func replayCommand() *cli.Command {
	return &cli.Command{
		Name:      "replay",
		Usage:     "check that a snapshot's history reproduces it from its seed",
		ArgsUsage: "<snapshot.json | ->",
		Action:    replayAction,
	}
}

func replayAction(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return fmt.Errorf("a snapshot file is required")
	}

	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.Root().Reader)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap engine.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to parse snapshot: %w", err)
	}

	replayed, err := engine.VerifyReplay(snap)
	if err != nil {
		return err
	}

	w := cmd.Root().Writer
	fmt.Fprintf(w, "✓ Replay verified: seed %d, turn %d, phase %s\n", snap.Seed, replayed.Turn, replayed.Phase)
	for _, p := range replayed.Winners() {
		fmt.Fprintf(w, "  winner P%d score %d\n", p.ID, p.Score)
	}
	return nil
}

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:   "validate",
		Usage:  "check the ruleset presets",
		Action: validateAction,
	}
}

func validateAction(ctx context.Context, cmd *cli.Command) error {
	st, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	results, err := validate.Dir(st.RulesetDir, strategy.NewDefaultRegistry(zap.NewNop()).Names())
	if err != nil {
		return err
	}

	w := cmd.Root().Writer
	invalid := 0
	for _, result := range results {
		fmt.Fprintf(w, "\n%s %s\n", strings.Repeat("=", 20), result.File)
		if result.Valid {
			fmt.Fprintln(w, "✅ VALID")
			for _, info := range result.Info {
				fmt.Fprintln(w, "  "+info)
			}
			continue
		}
		invalid++
		fmt.Fprintln(w, "❌ INVALID")
		for _, msg := range result.Errors {
			fmt.Fprintln(w, "  ❌ "+msg)
		}
	}

	fmt.Fprintf(w, "\n%s\n", strings.Repeat("=", 40))
	if invalid > 0 {
		return fmt.Errorf("%d of %d presets have errors", invalid, len(results))
	}
	fmt.Fprintln(w, "✅ All presets are valid!")
	return nil
}

func strategiesCommand() *cli.Command {
	return &cli.Command{
		Name:  "strategies",
		Usage: "list the computer strategies",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			w := cmd.Root().Writer
			for _, name := range strategy.NewDefaultRegistry(zap.NewNop()).Names() {
				if name == string(strategy.Default) {
					fmt.Fprintf(w, "%s (default)\n", name)
					continue
				}
				fmt.Fprintln(w, name)
			}
			return nil
		},
	}
}
