package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/koopa0/durak/internal/stats"
)

// newStatsCmd 直接讀取戰績後端，以表格輸出
func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats [name...]",
		Short: "Print the stats summary and per-player records",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			store, err := stats.Open(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer store.Close()

			out, err := renderStats(ctx, store, args)
			if err != nil {
				return err
			}
			cmd.Print(out)
			return nil
		},
	}
}

func renderStats(ctx context.Context, store stats.Store, names []string) (string, error) {
	sum, err := store.Summary(ctx)
	if err != nil {
		return "", err
	}

	data := pterm.TableData{{"Players", "Games"}, {strconv.Itoa(sum.TotalPlayers), strconv.Itoa(sum.TotalGames)}}
	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return "", err
	}
	out += "\n"

	if len(names) == 0 {
		return out, nil
	}

	rows := pterm.TableData{{"Name", "Games", "Wins", "Losses", "Win rate"}}
	for _, name := range names {
		st, err := store.Get(ctx, name)
		if err != nil {
			return "", fmt.Errorf("stats for %q: %w", name, err)
		}
		rows = append(rows, []string{
			st.Name,
			strconv.Itoa(st.GamesPlayed),
			strconv.Itoa(st.Wins),
			strconv.Itoa(st.Losses),
			fmt.Sprintf("%.1f%%", st.WinRate),
		})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(rows).Srender()
	if err != nil {
		return "", err
	}
	return out + table + "\n", nil
}
