package game

import (
	"fmt"

	"github.com/koopa0/durak/internal/card"
)

// CanDefend 判斷防守牌能否壓過進攻牌
//
// 規則：
//   - 同花色：防守牌牌值必須嚴格大於進攻牌
//   - 不同花色：防守牌必須是王牌，且進攻牌不是王牌
//
// 王牌對王牌只能走同花色比大小（王牌只有一種花色）。
func CanDefend(attack, defense card.Card, trump card.Suit) bool {
	if attack.Suit == defense.Suit {
		return defense.Value > attack.Value
	}
	return defense.Suit == trump && attack.Suit != trump
}

// DrawPolicy 雙方同時出完牌（牌堆也空）時的處理方式
type DrawPolicy string

const (
	// DrawFirstPlayer 座位 0 的玩家視為勝者（與舊版行為一致）
	DrawFirstPlayer DrawPolicy = "first_player"
	// DrawNoWinner 平手，不產生勝者
	DrawNoWinner DrawPolicy = "no_winner"
)

// ParseDrawPolicy 解析設定檔中的平手策略，空字串使用預設值
func ParseDrawPolicy(s string) (DrawPolicy, error) {
	switch DrawPolicy(s) {
	case "", DrawFirstPlayer:
		return DrawFirstPlayer, nil
	case DrawNoWinner:
		return DrawNoWinner, nil
	default:
		return "", fmt.Errorf("unknown draw policy: %q", s)
	}
}

// rankOnTable 檢查桌面上（進攻或防守）是否已有該點數
func rankOnTable(table []TablePair, r card.Rank) bool {
	for _, pair := range table {
		if pair.Attack.Rank == r {
			return true
		}
		if pair.Defense != nil && pair.Defense.Rank == r {
			return true
		}
	}
	return false
}

// allDefended 所有進攻都已被防守（空桌面視為成立）
func allDefended(table []TablePair) bool {
	for _, pair := range table {
		if pair.Defense == nil {
			return false
		}
	}
	return true
}

func indexOfCard(hand []card.Card, c card.Card) int {
	for i, h := range hand {
		if h.Same(c) {
			return i
		}
	}
	return -1
}

func removeAt(hand []card.Card, i int) []card.Card {
	return append(hand[:i], hand[i+1:]...)
}
