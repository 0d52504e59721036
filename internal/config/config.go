// Package config 載入服務設定：預設值 → YAML 檔 → 環境變數
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/koopa0/durak/internal/game"
)

// 統計後端
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config 整個應用的配置
type Config struct {
	Server struct {
		Port           int           `yaml:"port"`
		ReadTimeout    time.Duration `yaml:"read_timeout"`
		WriteTimeout   time.Duration `yaml:"write_timeout"`
		IdleTimeout    time.Duration `yaml:"idle_timeout"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
		MessageBurst   int           `yaml:"message_burst"`
		MessageRate    float64       `yaml:"message_rate"` // 每秒
	} `yaml:"server"`

	Game struct {
		DisconnectGrace time.Duration `yaml:"disconnect_grace"`
		IdleTimeout     time.Duration `yaml:"idle_timeout"`
		CleanupInterval time.Duration `yaml:"cleanup_interval"`
		DrawPolicy      string        `yaml:"draw_policy"` // "first_player" 或 "no_winner"
	} `yaml:"game"`

	Stats struct {
		Backend   string `yaml:"backend"`    // memory、postgres、redis
		CacheSize int    `yaml:"cache_size"` // 遠端後端前的 LRU 容量，0 表示不快取
	} `yaml:"stats"`

	Postgres struct {
		DSN      string `yaml:"dsn"`
		MaxConns int32  `yaml:"max_conns"`
		MinConns int32  `yaml:"min_conns"`
	} `yaml:"postgres"`

	Redis struct {
		Addr      string `yaml:"addr"`
		Password  string `yaml:"password"`
		DB        int    `yaml:"db"`
		KeyPrefix string `yaml:"key_prefix"`
	} `yaml:"redis"`

	NATS struct {
		URL           string `yaml:"url"` // 空字串表示不發布事件
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`

	Auth struct {
		JWTSecret   string        `yaml:"jwt_secret"`
		TokenTTL    time.Duration `yaml:"token_ttl"`
		AllowGuests bool          `yaml:"allow_guests"`
	} `yaml:"auth"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default 回傳預設配置
func Default() *Config {
	cfg := &Config{}

	cfg.Server.Port = 3000
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 15 * time.Second
	cfg.Server.IdleTimeout = 60 * time.Second
	cfg.Server.MessageBurst = 20
	cfg.Server.MessageRate = 10

	cfg.Game.DisconnectGrace = 5 * time.Second
	cfg.Game.IdleTimeout = 10 * time.Minute
	cfg.Game.CleanupInterval = time.Minute
	cfg.Game.DrawPolicy = string(game.DrawFirstPlayer)

	cfg.Stats.Backend = BackendMemory
	cfg.Stats.CacheSize = 1024

	cfg.Postgres.MaxConns = 10
	cfg.Postgres.MinConns = 2

	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.KeyPrefix = "durak"

	cfg.NATS.SubjectPrefix = "durak"

	cfg.Auth.TokenTTL = 24 * time.Hour
	cfg.Auth.AllowGuests = true

	cfg.Log.Level = "info"
	cfg.Log.Format = "text"

	return cfg
}

// Load 讀取配置檔並套用環境變數；path 為空時只使用預設值與環境變數
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("讀取配置檔失敗: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置檔失敗: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv 支援環境變數覆蓋（生產環境常用）
func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT 不是數字: %q", v)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.NATS.URL = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("STATS_BACKEND"); v != "" {
		c.Stats.Backend = v
	}
	return nil
}

// Validate 檢查配置
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port 超出範圍: %d", c.Server.Port))
	}
	if c.Server.MessageBurst < 0 || c.Server.MessageRate < 0 {
		errs = append(errs, errors.New("server.message_burst 與 server.message_rate 不可為負"))
	}
	if c.Game.DisconnectGrace <= 0 {
		errs = append(errs, errors.New("game.disconnect_grace 必須大於 0"))
	}
	if c.Game.IdleTimeout <= 0 {
		errs = append(errs, errors.New("game.idle_timeout 必須大於 0"))
	}
	if c.Game.CleanupInterval <= 0 {
		errs = append(errs, errors.New("game.cleanup_interval 必須大於 0"))
	}
	if _, err := game.ParseDrawPolicy(c.Game.DrawPolicy); err != nil {
		errs = append(errs, fmt.Errorf("game.draw_policy: %w", err))
	}

	switch c.Stats.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("stats.backend=postgres 需要 postgres.dsn 或 DATABASE_URL"))
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("stats.backend=redis 需要 redis.addr"))
		}
	default:
		errs = append(errs, fmt.Errorf("未知的 stats.backend: %q", c.Stats.Backend))
	}

	if !c.Auth.AllowGuests && c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("關閉訪客模式時必須設定 auth.jwt_secret"))
	}

	return errors.Join(errs...)
}

// DrawPolicy 解析後的平手策略（Validate 通過後不會失敗）
func (c *Config) DrawPolicy() game.DrawPolicy {
	p, err := game.ParseDrawPolicy(c.Game.DrawPolicy)
	if err != nil {
		return game.DrawFirstPlayer
	}
	return p
}

// Addr HTTP 監聽位址
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
