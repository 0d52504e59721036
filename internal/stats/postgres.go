package stats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	upsertStatsSQL = `
INSERT INTO player_stats (name, games_played, wins, losses)
VALUES ($1, 1, $2, $3)
ON CONFLICT (name) DO UPDATE SET
	games_played = player_stats.games_played + 1,
	wins         = player_stats.wins + EXCLUDED.wins,
	losses       = player_stats.losses + EXCLUDED.losses,
	updated_at   = now()
RETURNING games_played, wins, losses`

	getStatsSQL = `SELECT games_played, wins, losses FROM player_stats WHERE name = $1`

	summarySQL = `SELECT COUNT(*), COALESCE(SUM(wins), 0) FROM player_stats`
)

// PostgresStore 以單一 upsert 語句更新戰績，併發 Record 由資料列鎖序列化
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore 使用既有連接池（Close 會一併關閉）
func NewPostgresStore(pool *pgxpool.Pool, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// OpenPostgres 建立連接池並確認可連線
func OpenPostgres(ctx context.Context, dsn string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns > 0 {
		cfg.MinConns = minConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

func (s *PostgresStore) Get(ctx context.Context, name string) (Stats, error) {
	key, err := NormalizeName(name)
	if err != nil {
		return Stats{}, err
	}

	var games, wins, losses int
	err = s.pool.QueryRow(ctx, getStatsSQL, key).Scan(&games, &wins, &losses)
	if errors.Is(err, pgx.ErrNoRows) {
		return newStats(key, 0, 0, 0), nil
	}
	if err != nil {
		s.logger.Error("postgres get stats failed", "player", key, "error", err)
		return Stats{}, unavailable(err)
	}
	return newStats(key, games, wins, losses), nil
}

func (s *PostgresStore) Record(ctx context.Context, name string, won bool) (Stats, error) {
	key, err := NormalizeName(name)
	if err != nil {
		return Stats{}, err
	}

	win, loss := 0, 1
	if won {
		win, loss = 1, 0
	}

	var games, wins, losses int
	if err := s.pool.QueryRow(ctx, upsertStatsSQL, key, win, loss).Scan(&games, &wins, &losses); err != nil {
		s.logger.Error("postgres record stats failed", "player", key, "won", won, "error", err)
		return Stats{}, unavailable(err)
	}
	return newStats(key, games, wins, losses), nil
}

func (s *PostgresStore) Summary(ctx context.Context) (Summary, error) {
	var sum Summary
	if err := s.pool.QueryRow(ctx, summarySQL).Scan(&sum.TotalPlayers, &sum.TotalGames); err != nil {
		return Summary{}, unavailable(err)
	}
	return sum, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
