package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the tables used by Postgres. It is safe to apply repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS finished_games (
	session_id  TEXT PRIMARY KEY,
	config_name TEXT NOT NULL,
	seed        BIGINT NOT NULL,
	board_size  INT NOT NULL,
	turns       INT NOT NULL,
	snapshot    JSONB NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS game_seats (
	session_id TEXT NOT NULL REFERENCES finished_games(session_id) ON DELETE CASCADE,
	player_id  INT NOT NULL,
	label      TEXT NOT NULL,
	score      INT NOT NULL,
	winner     BOOLEAN NOT NULL,
	PRIMARY KEY (session_id, player_id)
);

CREATE INDEX IF NOT EXISTS game_seats_label_idx ON game_seats(label);
`

// Postgres is an Archive backed by PostgreSQL.
type Postgres struct {
	db *pgxpool.Pool
}

// Connect opens a pool for dsn, checks it and applies Schema.
func Connect(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create pool: %v", ErrArchiveUnavailable, err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to ping database: %v", ErrArchiveUnavailable, err)
	}
	if _, err := db.Exec(ctx, Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply archive schema: %w", err)
	}
	return &Postgres{db: db}, nil
}

// NewPostgres wraps an existing pool. The schema must already exist.
func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Record(ctx context.Context, g Game) error {
	snapshot, err := json.Marshal(g.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	return pgx.BeginFunc(ctx, p.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO finished_games (session_id, config_name, seed, board_size, turns, snapshot, finished_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (session_id) DO UPDATE SET
				config_name = EXCLUDED.config_name,
				seed = EXCLUDED.seed,
				board_size = EXCLUDED.board_size,
				turns = EXCLUDED.turns,
				snapshot = EXCLUDED.snapshot,
				finished_at = EXCLUDED.finished_at`,
			g.SessionID, g.ConfigName, g.Seed, g.BoardSize, g.Turns, snapshot, g.FinishedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert game: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM game_seats WHERE session_id = $1`, g.SessionID); err != nil {
			return fmt.Errorf("failed to clear seats: %w", err)
		}
		batch := &pgx.Batch{}
		for _, s := range g.Seats {
			batch.Queue(
				`INSERT INTO game_seats (session_id, player_id, label, score, winner) VALUES ($1, $2, $3, $4, $5)`,
				g.SessionID, s.PlayerID, s.Label, s.Score, s.Winner,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert seats: %w", err)
		}
		return nil
	})
}

func (p *Postgres) Get(ctx context.Context, sessionID string) (*Game, error) {
	rows, err := p.db.Query(ctx,
		`SELECT session_id, config_name, seed, board_size, turns, snapshot, finished_at
		 FROM finished_games WHERE session_id = $1`, sessionID)
	if err != nil {
		return nil, err
	}
	games, err := p.scanGames(ctx, rows)
	if err != nil {
		return nil, err
	}
	if len(games) == 0 {
		return nil, ErrGameNotFound
	}
	return &games[0], nil
}

func (p *Postgres) Recent(ctx context.Context, limit int) ([]Game, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.Query(ctx,
		`SELECT session_id, config_name, seed, board_size, turns, snapshot, finished_at
		 FROM finished_games
		 ORDER BY finished_at DESC, session_id
		 LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return p.scanGames(ctx, rows)
}

func (p *Postgres) Leaderboard(ctx context.Context, limit int) ([]Standing, error) {
	rows, err := p.db.Query(ctx,
		`SELECT label,
			COUNT(*) AS games,
			COUNT(*) FILTER (WHERE winner) AS wins,
			COALESCE(MAX(score), 0) AS best_score
		 FROM game_seats
		 GROUP BY label`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var standings []Standing
	for rows.Next() {
		var s Standing
		if err := rows.Scan(&s.Label, &s.Games, &s.Wins, &s.BestScore); err != nil {
			return nil, err
		}
		standings = append(standings, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rank(standings, limit), nil
}

func (p *Postgres) Close() {
	p.db.Close()
}

func (p *Postgres) scanGames(ctx context.Context, rows pgx.Rows) ([]Game, error) {
	var games []Game
	for rows.Next() {
		var g Game
		var snapshot []byte
		if err := rows.Scan(&g.SessionID, &g.ConfigName, &g.Seed, &g.BoardSize, &g.Turns, &snapshot, &g.FinishedAt); err != nil {
			rows.Close()
			return nil, err
		}
		if err := json.Unmarshal(snapshot, &g.Snapshot); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to decode snapshot of %s: %w", g.SessionID, err)
		}
		games = append(games, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range games {
		seats, err := p.seats(ctx, games[i].SessionID)
		if err != nil {
			return nil, err
		}
		games[i].Seats = seats
	}
	return games, nil
}

func (p *Postgres) seats(ctx context.Context, sessionID string) ([]Seat, error) {
	rows, err := p.db.Query(ctx,
		`SELECT player_id, label, score, winner FROM game_seats WHERE session_id = $1 ORDER BY player_id`,
		sessionID)
	if err != nil {
		return nil, err
	}
	seats, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Seat, error) {
		var s Seat
		err := row.Scan(&s.PlayerID, &s.Label, &s.Score, &s.Winner)
		return s, err
	})
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return seats, nil
}
