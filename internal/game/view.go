package game

import "github.com/koopa0/durak/internal/card"

// PlayerSummary 對外公開的玩家資訊（不含手牌內容）
type PlayerSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	HandSize  int    `json:"handSize"`
	Connected bool   `json:"isConnected"`
}

// View 針對單一玩家的對局快照
//
// 只有呼叫者自己的手牌會出現在 Hand；對手只露出張數。
type View struct {
	GameID        string          `json:"gameId"`
	Players       []PlayerSummary `json:"players"`
	YourIndex     int             `json:"yourIndex"`
	Hand          []card.Card     `json:"playerHand"`
	Table         []TablePair     `json:"table"`
	TrumpSuit     card.Suit       `json:"trumpSuit"`
	TrumpCard     *card.Card      `json:"trumpCard,omitempty"`
	DeckSize      int             `json:"deckSize"`
	DiscardSize   int             `json:"discardSize"`
	AttackerIndex int             `json:"currentAttacker"`
	DefenderIndex int             `json:"currentDefender"`
	Started       bool            `json:"gameStarted"`
	Ended         bool            `json:"gameEnded"`
	WinnerID      string          `json:"winner,omitempty"`
	EndReason     EndReason       `json:"endReason,omitempty"`
	IsYourTurn    bool            `json:"isYourTurn"`
}

// View 建立 playerID 視角的快照，非本局玩家只會看到公開資訊（YourIndex 為 -1）
func (s *Session) View(playerID string) View {
	v := View{
		GameID:        s.ID,
		Players:       make([]PlayerSummary, len(s.players)),
		YourIndex:     s.indexOf(playerID),
		Hand:          []card.Card{},
		Table:         make([]TablePair, len(s.table)),
		TrumpSuit:     s.trump,
		DeckSize:      s.deck.Len(),
		DiscardSize:   len(s.discard),
		AttackerIndex: s.attacker,
		DefenderIndex: s.defender,
		Started:       s.started,
		Ended:         s.ended,
		WinnerID:      s.winnerID,
		EndReason:     s.reason,
	}

	for i, p := range s.players {
		v.Players[i] = PlayerSummary{
			ID:        p.ID,
			Name:      p.Name,
			HandSize:  len(p.Hand),
			Connected: p.Connected,
		}
	}

	for i, pair := range s.table {
		v.Table[i] = TablePair{Attack: pair.Attack}
		if pair.Defense != nil {
			d := *pair.Defense
			v.Table[i].Defense = &d
		}
	}

	if s.started {
		if bottom, ok := s.deck.Bottom(); ok {
			v.TrumpCard = &bottom
		}
	}

	if v.YourIndex >= 0 {
		v.Hand = append(v.Hand, s.players[v.YourIndex].Hand...)
		v.IsYourTurn = s.isTurnOf(v.YourIndex)
	}
	return v
}

// isTurnOf 進攻方隨時可以出牌或結束回合；防守方只在有未防守的進攻時輪到
func (s *Session) isTurnOf(idx int) bool {
	if !s.started || s.ended {
		return false
	}
	if idx == s.attacker {
		return true
	}
	return idx == s.defender && !allDefended(s.table)
}
