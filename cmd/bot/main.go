// Command bot plays a human seat of a game server session over the REST API,
// choosing every move with one of the built-in computer strategies.
//
// It resumes the session saved in .session when there is one, otherwise it
// creates a session from a preset. Each game after the first starts with a
// reset, so every game replays the same seed against the same opponents.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"github.com/wricardo/knights-trail/game/engine"
	"github.com/wricardo/knights-trail/game/strategy"
	"github.com/wricardo/knights-trail/settings"
	"go.uber.org/zap"
)

const sessionFile = ".session"

var (
	ErrNoMove    = errors.New("no move available")
	ErrSeatTaken = errors.New("seat is not a human seat")
)

// Bot plays one seat.
type Bot struct {
	client   *Client
	registry *strategy.Registry
	strategy string
	seat     int
	delay    time.Duration
	poll     time.Duration
	logger   *zap.Logger
}

// Outcome summarizes one finished game from the seat's point of view.
type Outcome struct {
	Turns   int
	Moves   int
	Score   int
	Status  engine.Status
	Winners []int
}

// Won reports whether the seat is among the winners.
func (o Outcome) Won() bool {
	return o.Status == engine.StatusWinner
}

// PlayGame plays until the game ends. It submits the seat's move whenever the
// round waits for it, lets the server play rounds that wait for nobody and
// polls while other humans think.
func (b *Bot) PlayGame(ctx context.Context) (*Outcome, error) {
	moves := 0
	for {
		info, err := b.client.GetSession(ctx)
		if err != nil {
			return nil, err
		}
		snap := info.GameState

		if snap.Phase == engine.PhaseGameOver {
			return outcomeOf(snap, b.seat, moves), nil
		}
		if b.seat < 0 || b.seat >= len(snap.Players) || !snap.Players[b.seat].IsHuman {
			return nil, fmt.Errorf("%w: %d", ErrSeatTaken, b.seat)
		}

		switch {
		case slices.Contains(info.Pending, b.seat):
			if err := b.move(ctx, snap); err != nil {
				return nil, err
			}
			moves++
		case len(info.Pending) == 0:
			result, err := b.client.Autoplay(ctx)
			if err != nil {
				return nil, err
			}
			b.logger.Debug("server played rounds", zap.Int("rounds", result.RoundsPlayed))
		default:
			b.logger.Debug("waiting for other players", zap.Ints("pending", info.Pending))
			if err := sleep(ctx, b.poll); err != nil {
				return nil, err
			}
		}
	}
}

// move computes and submits the seat's intent for the current round.
func (b *Bot) move(ctx context.Context, snap engine.Snapshot) error {
	state, err := engine.Restore(snap)
	if err != nil {
		return fmt.Errorf("failed to restore snapshot: %w", err)
	}
	state.Players[b.seat].Strategy = b.strategy

	to := b.registry.ComputeMove(state, b.seat)
	if to == nil {
		return ErrNoMove
	}

	if err := sleep(ctx, b.delay); err != nil {
		return err
	}

	result, err := b.client.SubmitMove(ctx, b.seat, *to)
	if err != nil {
		return err
	}

	from := state.Players[b.seat].Pos()
	b.logger.Info("move submitted",
		zap.Int("turn", snap.Turn),
		zap.String("move", fmt.Sprintf("(%d,%d)→(%d,%d)", from.Row, from.Col, to.Row, to.Col)),
		zap.Bool("round_played", result.RoundPlayed),
		zap.String("message", result.Message))
	return nil
}

func outcomeOf(snap engine.Snapshot, seat, moves int) *Outcome {
	o := &Outcome{Turns: snap.Turn, Moves: moves}
	for _, p := range snap.Players {
		if p.Status == engine.StatusWinner {
			o.Winners = append(o.Winners, p.ID)
		}
		if p.ID == seat {
			o.Score = p.Score
			o.Status = p.Status
		}
	}
	return o
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func main() {
	cmd := &cli.Command{
		Name:  "bot",
		Usage: "play a human seat with a computer strategy",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "http://localhost:8080", Usage: "game server URL"},
			&cli.StringFlag{Name: "config", Value: "classic", Usage: "preset for new sessions"},
			&cli.Int64Flag{Name: "seed", Usage: "seed for new sessions"},
			&cli.StringFlag{Name: "continue", Usage: "resume playing an existing session by ID"},
			&cli.IntFlag{Name: "seat", Value: 0, Usage: "player id to play"},
			&cli.StringFlag{Name: "strategy", Value: string(strategy.Balanced), Usage: "strategy choosing the moves"},
			&cli.IntFlag{Name: "games", Value: 1, Usage: "games to play, resetting the session in between"},
			&cli.DurationFlag{Name: "delay", Usage: "pause before each move"},
			&cli.DurationFlag{Name: "poll", Value: 500 * time.Millisecond, Usage: "poll interval while other humans think"},
			&cli.BoolFlag{Name: "v", Usage: "verbose output"},
		},
		Action: run,
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	level := "info"
	if cmd.Bool("v") {
		level = "debug"
	}
	logger, err := settings.NewLogger(level, "console")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := strategy.NewDefaultRegistry(logger)
	name := cmd.String("strategy")
	if _, ok := registry.Lookup(strategy.ID(name)); !ok {
		return fmt.Errorf("unknown strategy %q (available: %s)", name, strings.Join(registry.Names(), ", "))
	}

	client := NewClient(cmd.String("url"))
	logger.Info("connecting to game server", zap.String("url", cmd.String("url")))

	if err := openSession(ctx, cmd, client, logger); err != nil {
		return err
	}

	bot := &Bot{
		client:   client,
		registry: registry,
		strategy: name,
		seat:     cmd.Int("seat"),
		delay:    cmd.Duration("delay"),
		poll:     cmd.Duration("poll"),
		logger:   logger,
	}

	games := cmd.Int("games")
	wins := 0
	for game := 1; game <= games; game++ {
		if game > 1 {
			if _, err := client.Reset(ctx); err != nil {
				return err
			}
		}

		outcome, err := bot.PlayGame(ctx)
		if err != nil {
			return fmt.Errorf("game %d: %w", game, err)
		}
		if outcome.Won() {
			wins++
		}
		logger.Info("game finished",
			zap.Int("game", game),
			zap.Int("turns", outcome.Turns),
			zap.Int("moves", outcome.Moves),
			zap.Int("score", outcome.Score),
			zap.String("status", string(outcome.Status)),
			zap.Ints("winners", outcome.Winners))
	}

	logger.Info("done",
		zap.String("session_id", client.SessionID()),
		zap.Int("games", games),
		zap.Int("wins", wins))
	return nil
}

// openSession joins the session named by --continue or saved in .session,
// and creates one when neither is usable.
func openSession(ctx context.Context, cmd *cli.Command, client *Client, logger *zap.Logger) error {
	saved := cmd.String("continue")
	if saved == "" {
		if data, err := os.ReadFile(sessionFile); err == nil {
			saved = string(bytes.TrimSpace(data))
		}
	}

	if saved != "" {
		client.Join(saved)
		_, err := client.GetSession(ctx)
		if err == nil {
			logger.Info("resuming session", zap.String("session_id", saved))
			return nil
		}
		logger.Warn("failed to resume session, creating a new one", zap.String("session_id", saved), zap.Error(err))
	}

	var seed *int64
	if cmd.IsSet("seed") {
		s := cmd.Int64("seed")
		seed = &s
	}
	info, err := client.CreateSession(ctx, cmd.String("config"), seed)
	if err != nil {
		return err
	}
	logger.Info("session created",
		zap.String("session_id", info.ID),
		zap.String("config", info.ConfigName),
		zap.Int64("seed", info.GameState.Seed))

	if err := os.WriteFile(sessionFile, []byte(info.ID), 0644); err != nil {
		logger.Warn("failed to save session ID", zap.Error(err))
	}
	return nil
}
