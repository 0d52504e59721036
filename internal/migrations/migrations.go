// Package migrations 管理 player_stats 的 PostgreSQL schema
//
// SQL 檔以 go:embed 打包進執行檔，透過 golang-migrate 的 iofs 來源執行。
package migrations

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed sql/*.sql
var sqlFiles embed.FS

// ErrDirty 上次遷移中途失敗，需要先人工確認後 Force
var ErrDirty = errors.New("migrations: database is dirty, inspect and run force")

// Status 目前 schema 狀態
type Status struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
	// Empty 尚未套用任何遷移
	Empty bool `json:"empty"`
}

// Migrator 包裝 golang-migrate
type Migrator struct {
	m      *migrate.Migrate
	logger *slog.Logger
}

// New 建立 Migrator，databaseURL 需為 postgres:// 格式
func New(databaseURL string, logger *slog.Logger) (*Migrator, error) {
	src, err := iofs.New(sqlFiles, "sql")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("init migrate: %w", err)
	}
	return &Migrator{m: m, logger: logger}, nil
}

// Status 回傳目前版本
func (mg *Migrator) Status() (Status, error) {
	v, dirty, err := mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return Status{Empty: true}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("read version: %w", err)
	}
	return Status{Version: v, Dirty: dirty}, nil
}

// Up 套用所有尚未執行的遷移；已是最新版本時不是錯誤
func (mg *Migrator) Up() error {
	return mg.run("up", mg.m.Up)
}

// Down 回滾最近一個遷移
func (mg *Migrator) Down() error {
	return mg.Steps(-1)
}

// Steps 前進（n > 0）或回滾（n < 0）n 個版本
func (mg *Migrator) Steps(n int) error {
	if n == 0 {
		return nil
	}
	return mg.run(fmt.Sprintf("steps %d", n), func() error { return mg.m.Steps(n) })
}

// Force 把版本標記為 version 並清除 dirty，不會執行任何 SQL
func (mg *Migrator) Force(version int) error {
	if err := mg.m.Force(version); err != nil {
		return fmt.Errorf("force version %d: %w", version, err)
	}
	mg.logger.Warn("遷移版本已強制設定", "version", version)
	return nil
}

// run 執行前拒絕 dirty 狀態，並把 ErrNoChange 視為成功
func (mg *Migrator) run(op string, fn func() error) error {
	before, err := mg.Status()
	if err != nil {
		return err
	}
	if before.Dirty {
		return fmt.Errorf("%s at version %d: %w", op, before.Version, ErrDirty)
	}

	if err := fn(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			mg.logger.Info("schema 無需變更", "op", op, "version", before.Version)
			return nil
		}
		return fmt.Errorf("migrate %s: %w", op, err)
	}

	after, err := mg.Status()
	if err != nil {
		return err
	}
	mg.logger.Info("遷移完成", "op", op, "from", before.Version, "to", after.Version)
	return nil
}

// Close 釋放來源與資料庫連線
func (mg *Migrator) Close() error {
	srcErr, dbErr := mg.m.Close()
	return errors.Join(srcErr, dbErr)
}
