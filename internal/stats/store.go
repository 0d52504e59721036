// Package stats 保存玩家戰績
//
// 鍵一律經過 NormalizeName（去除前後空白、轉小寫）；同一時間只會啟用一種後端。
package stats

import (
	"context"
	"math"
	"strings"

	apperrors "github.com/koopa0/durak/pkg/errors"
)

// Stats 單一玩家的戰績
type Stats struct {
	Name        string  `json:"name"`
	GamesPlayed int     `json:"gamesPlayed"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	WinRate     float64 `json:"winRate"` // 百分比，四捨五入到小數一位
}

// Summary 全站統計
type Summary struct {
	TotalPlayers int `json:"totalPlayers"`
	// TotalGames 有勝負的對局數（每局恰好記一次勝）
	TotalGames int `json:"totalGames"`
}

// Store 戰績儲存介面，所有實作都必須可以安全地並發呼叫
type Store interface {
	// Get 取得戰績，從未記錄過的玩家回傳全為 0 的戰績
	Get(ctx context.Context, name string) (Stats, error)
	// Record 記錄一局結果並回傳更新後的戰績
	Record(ctx context.Context, name string, won bool) (Stats, error)
	Summary(ctx context.Context) (Summary, error)
	Close() error
}

// NormalizeName 產生戰績的鍵
func NormalizeName(name string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return "", apperrors.ErrInvalidName.WithDetails("name is empty")
	}
	return key, nil
}

// WinRate 勝率百分比（小數一位），沒有對局時為 0
func WinRate(wins, games int) float64 {
	if games <= 0 {
		return 0
	}
	return math.Round(float64(wins)/float64(games)*1000) / 10
}

func newStats(key string, games, wins, losses int) Stats {
	return Stats{
		Name:        key,
		GamesPlayed: games,
		Wins:        wins,
		Losses:      losses,
		WinRate:     WinRate(wins, games),
	}
}

func unavailable(err error) error {
	return apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "stats store unavailable")
}
