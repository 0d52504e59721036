package stats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const (
	fieldGames  = "games_played"
	fieldWins   = "wins"
	fieldLosses = "losses"
)

// RedisStore 每位玩家一個 hash，更新在 MULTI/EXEC 中完成
//
// 鍵：
//   - <prefix>:stats:<name>  hash{games_played, wins, losses}
//   - <prefix>:players       set，所有記錄過的玩家
//   - <prefix>:games         有勝負的對局數
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisStore 建立 Redis 後端（Close 會關閉 client）
func NewRedisStore(client *redis.Client, prefix string, logger *slog.Logger) *RedisStore {
	if prefix == "" {
		prefix = "durak"
	}
	return &RedisStore{client: client, prefix: prefix, logger: logger}
}

func (s *RedisStore) statsKey(name string) string { return fmt.Sprintf("%s:stats:%s", s.prefix, name) }
func (s *RedisStore) playersKey() string          { return s.prefix + ":players" }
func (s *RedisStore) gamesKey() string            { return s.prefix + ":games" }

func (s *RedisStore) Get(ctx context.Context, name string) (Stats, error) {
	key, err := NormalizeName(name)
	if err != nil {
		return Stats{}, err
	}

	fields, err := s.client.HGetAll(ctx, s.statsKey(key)).Result()
	if err != nil {
		s.logger.Error("redis get stats failed", "player", key, "error", err)
		return Stats{}, unavailable(err)
	}
	return newStats(key, atoi(fields[fieldGames]), atoi(fields[fieldWins]), atoi(fields[fieldLosses])), nil
}

func (s *RedisStore) Record(ctx context.Context, name string, won bool) (Stats, error) {
	key, err := NormalizeName(name)
	if err != nil {
		return Stats{}, err
	}

	var win, loss int64 = 0, 1
	if won {
		win, loss = 1, 0
	}

	var games, wins, losses *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		k := s.statsKey(key)
		games = pipe.HIncrBy(ctx, k, fieldGames, 1)
		wins = pipe.HIncrBy(ctx, k, fieldWins, win)
		losses = pipe.HIncrBy(ctx, k, fieldLosses, loss)
		pipe.SAdd(ctx, s.playersKey(), key)
		if won {
			pipe.Incr(ctx, s.gamesKey())
		}
		return nil
	})
	if err != nil {
		s.logger.Error("redis record stats failed", "player", key, "won", won, "error", err)
		return Stats{}, unavailable(err)
	}
	return newStats(key, int(games.Val()), int(wins.Val()), int(losses.Val())), nil
}

func (s *RedisStore) Summary(ctx context.Context) (Summary, error) {
	players, err := s.client.SCard(ctx, s.playersKey()).Result()
	if err != nil {
		return Summary{}, unavailable(err)
	}

	games, err := s.client.Get(ctx, s.gamesKey()).Int()
	if errors.Is(err, redis.Nil) {
		games = 0
	} else if err != nil {
		return Summary{}, unavailable(err)
	}

	return Summary{TotalPlayers: int(players), TotalGames: games}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
