package main

import (
	"errors"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/koopa0/durak/internal/migrations"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema for player stats",
	}

	withMigrator := func(fn func(*cobra.Command, []string, *migrations.Migrator) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Postgres.DSN == "" {
				return errors.New("postgres.dsn (or DATABASE_URL) is required")
			}
			m, err := migrations.New(cfg.Postgres.DSN, log)
			if err != nil {
				return err
			}
			defer m.Close()
			return fn(cmd, args, m)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(_ *cobra.Command, _ []string, m *migrations.Migrator) error {
				return m.Up()
			}),
		},
		&cobra.Command{
			Use:   "down [n]",
			Short: "Roll back the latest n migrations (default 1)",
			Args:  cobra.MaximumNArgs(1),
			RunE: withMigrator(func(_ *cobra.Command, args []string, m *migrations.Migrator) error {
				n := 1
				if len(args) == 1 {
					v, err := strconv.Atoi(args[0])
					if err != nil || v <= 0 {
						return errors.New("n must be a positive integer")
					}
					n = v
				}
				return m.Steps(-n)
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(cmd *cobra.Command, _ []string, m *migrations.Migrator) error {
				st, err := m.Status()
				if err != nil {
					return err
				}
				if st.Empty {
					cmd.Println("no migrations applied")
					return nil
				}
				cmd.Printf("version=%d dirty=%t\n", st.Version, st.Dirty)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Mark the schema as <version> and clear the dirty flag",
			Args:  cobra.ExactArgs(1),
			RunE: withMigrator(func(_ *cobra.Command, args []string, m *migrations.Migrator) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return err
				}
				return m.Force(v)
			}),
		},
	)
	return cmd
}
