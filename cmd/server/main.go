// Command server 啟動 Durak 對戰伺服器
//
//	server serve --config config.yaml
//	server migrate up
//	server token --sub user-1 --name alice
//	server stats alice bob
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/koopa0/durak/internal/config"
	"github.com/koopa0/durak/pkg/logger"
)

var cfgFile string

func main() {
	// .env 不存在時忽略
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "server",
		Short:         "Two-player Durak game server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml)")

	root.AddCommand(newServeCmd(), newMigrateCmd(), newTokenCmd(), newStatsCmd())
	return root
}

// loadConfig 讀取配置並建立 logger
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	slog.SetDefault(log)
	return cfg, log, nil
}
