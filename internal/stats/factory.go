package stats

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/koopa0/durak/internal/config"
)

// Open 依 stats.backend 建立後端
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, error) {
	switch cfg.Stats.Backend {
	case config.BackendMemory, "":
		logger.Info("使用記憶體戰績後端")
		return NewMemoryStore(), nil

	case config.BackendPostgres:
		pool, err := OpenPostgres(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.Postgres.MinConns)
		if err != nil {
			return nil, err
		}
		logger.Info("使用 PostgreSQL 戰績後端",
			"max_conns", cfg.Postgres.MaxConns,
			"cache_size", cfg.Stats.CacheSize)
		return NewCachedStore(NewPostgresStore(pool, logger), cfg.Stats.CacheSize), nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		logger.Info("使用 Redis 戰績後端",
			"addr", cfg.Redis.Addr,
			"cache_size", cfg.Stats.CacheSize)
		return NewCachedStore(NewRedisStore(client, cfg.Redis.KeyPrefix, logger), cfg.Stats.CacheSize), nil

	default:
		return nil, fmt.Errorf("unknown stats backend: %q", cfg.Stats.Backend)
	}
}
