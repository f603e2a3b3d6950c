package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/dark-chess/internal/engine"
)

const schema = `CREATE TABLE IF NOT EXISTS dark_games (
	game_id     TEXT PRIMARY KEY,
	white_token TEXT NOT NULL,
	white_name  TEXT NOT NULL,
	black_token TEXT NOT NULL,
	black_name  TEXT NOT NULL,
	setup       TEXT NOT NULL DEFAULT '',
	time_control TEXT NOT NULL DEFAULT '',
	outcome     TEXT NOT NULL,
	reason      TEXT NOT NULL,
	moves       JSONB NOT NULL,
	pgn         TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	ended_at    TIMESTAMPTZ NOT NULL,
	duration_ms BIGINT NOT NULL
)`

type PostgresRepository struct {
	db *sql.DB
}

// OpenPostgres connects to databaseURL and makes sure the table exists.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	r := NewPostgresRepository(db)
	if err := r.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository { return &PostgresRepository{db: db} }

func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate dark_games: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Save upserts the archived game keyed by its id.
func (r *PostgresRepository) Save(ctx context.Context, g *Game) error {
	if g == nil {
		return fmt.Errorf("nil archived game")
	}
	moves, err := json.Marshal(g.Moves)
	if err != nil {
		return fmt.Errorf("marshal moves: %w", err)
	}
	duration := g.EndedAt.Sub(g.StartedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	const q = `INSERT INTO dark_games (
		game_id, white_token, white_name, black_token, black_name,
		setup, time_control, outcome, reason, moves, pgn,
		started_at, ended_at, duration_ms
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	ON CONFLICT (game_id) DO UPDATE SET
		outcome=EXCLUDED.outcome,
		reason=EXCLUDED.reason,
		moves=EXCLUDED.moves,
		pgn=EXCLUDED.pgn,
		ended_at=EXCLUDED.ended_at,
		duration_ms=EXCLUDED.duration_ms`

	_, err = r.db.ExecContext(ctx, q,
		g.ID,
		g.WhiteToken, g.WhiteName,
		g.BlackToken, g.BlackName,
		g.Setup, g.TimeControl, string(g.Outcome), string(g.Reason),
		string(moves), BuildPGN(g),
		g.StartedAt, g.EndedAt, duration,
	)
	if err != nil {
		return fmt.Errorf("save archived game: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Game, error) {
	const q = `SELECT game_id, white_token, white_name, black_token, black_name,
		setup, time_control, outcome, reason, moves, started_at, ended_at
		FROM dark_games WHERE game_id = $1`
	var (
		g     Game
		moves []byte
		out   string
		rsn   string
	)
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&g.ID, &g.WhiteToken, &g.WhiteName, &g.BlackToken, &g.BlackName,
		&g.Setup, &g.TimeControl, &out, &rsn, &moves, &g.StartedAt, &g.EndedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load archived game: %w", err)
	}
	if err := json.Unmarshal(moves, &g.Moves); err != nil {
		return nil, fmt.Errorf("decode moves: %w", err)
	}
	g.Outcome = engine.Outcome(out)
	g.Reason = engine.Reason(rsn)
	return &g, nil
}
