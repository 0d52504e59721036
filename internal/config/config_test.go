package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/koopa0/durak/internal/config"
	"github.com/koopa0/durak/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// clearEnv 清空會覆蓋配置的環境變數
func clearEnv(t *testing.T) {
	for _, key := range []string{"PORT", "DATABASE_URL", "REDIS_ADDR", "NATS_URL", "JWT_SECRET", "STATS_BACKEND"} {
		t.Setenv(key, "")
	}
}

// TestConfig_DefaultValues 測試配置的預設值
func TestConfig_DefaultValues(t *testing.T) {
	clearEnv(t)
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 20, cfg.Server.MessageBurst)
	assert.Equal(t, 10.0, cfg.Server.MessageRate)
	assert.Equal(t, ":3000", cfg.Addr())
	assert.Equal(t, 5*time.Second, cfg.Game.DisconnectGrace)
	assert.Equal(t, game.DrawFirstPlayer, cfg.DrawPolicy())
	assert.Equal(t, config.BackendMemory, cfg.Stats.Backend)
	assert.True(t, cfg.Auth.AllowGuests)
	assert.Empty(t, cfg.NATS.URL)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestConfig_LoadYAML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
server:
  port: 8080
  allowed_origins: ["http://localhost:5173"]
game:
  disconnect_grace: 2s
  idle_timeout: 30m
  draw_policy: no_winner
stats:
  backend: redis
redis:
  addr: redis:6379
  key_prefix: test
auth:
  jwt_secret: s3cret
  allow_guests: false
log:
  level: debug
  format: json
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 2*time.Second, cfg.Game.DisconnectGrace)
	assert.Equal(t, 30*time.Minute, cfg.Game.IdleTimeout)
	// 未出現在檔案中的欄位保留預設值
	assert.Equal(t, time.Minute, cfg.Game.CleanupInterval)
	assert.Equal(t, game.DrawNoWinner, cfg.DrawPolicy())
	assert.Equal(t, config.BackendRedis, cfg.Stats.Backend)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.False(t, cfg.Auth.AllowGuests)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestConfig_EnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "server:\n  port: 8080\n")

	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/durak?sslmode=disable")
	t.Setenv("STATS_BACKEND", "postgres")
	t.Setenv("NATS_URL", "nats://nats:4222")
	t.Setenv("JWT_SECRET", "from-env")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, config.BackendPostgres, cfg.Stats.Backend)
	assert.Equal(t, "postgres://u:p@db:5432/durak?sslmode=disable", cfg.Postgres.DSN)
	assert.Equal(t, "nats://nats:4222", cfg.NATS.URL)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr string
	}{
		{"預設值合法", func(c *config.Config) {}, ""},
		{"port 超出範圍", func(c *config.Config) { c.Server.Port = 70000 }, "server.port"},
		{"grace 為 0", func(c *config.Config) { c.Game.DisconnectGrace = 0 }, "disconnect_grace"},
		{"未知平手策略", func(c *config.Config) { c.Game.DrawPolicy = "coin" }, "draw_policy"},
		{"postgres 缺 dsn", func(c *config.Config) { c.Stats.Backend = config.BackendPostgres }, "postgres.dsn"},
		{"未知後端", func(c *config.Config) { c.Stats.Backend = "file" }, "stats.backend"},
		{"關閉訪客但沒有密鑰", func(c *config.Config) { c.Auth.AllowGuests = false }, "jwt_secret"},
		{"負的訊息速率", func(c *config.Config) { c.Server.MessageRate = -1 }, "message_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_LoadErrors(t *testing.T) {
	clearEnv(t)

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = config.Load(writeFile(t, "server: [not a map"))
	assert.Error(t, err)

	t.Setenv("PORT", "abc")
	_, err = config.Load("")
	assert.Error(t, err)
}

// 範例配置檔必須能被載入
func TestConfig_ExampleFile(t *testing.T) {
	clearEnv(t)
	cfg, err := config.Load("../../config.example.yaml")
	require.NoError(t, err)

	def := config.Default()
	assert.Equal(t, def.Server.Port, cfg.Server.Port)
	assert.Equal(t, def.Game, cfg.Game)
	assert.Equal(t, def.Stats, cfg.Stats)
	assert.Equal(t, 10*time.Minute, cfg.Game.IdleTimeout)
}
