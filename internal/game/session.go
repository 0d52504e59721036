// Package game 實作兩人 Durak 對局的狀態機
//
// Session 本身不做任何同步；呼叫端（lobby.Match）負責以互斥鎖序列化所有操作。
// 所有非法操作都回傳哨兵錯誤，且保證狀態完全不變。
package game

import (
	"math/rand/v2"

	"github.com/koopa0/durak/internal/card"
)

const (
	// HandSize 每回合補牌的目標手牌數
	HandSize = 6
	// MaxPlayers 每局玩家數
	MaxPlayers = 2
)

// Status 對局狀態
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in_progress"
	StatusEnded      Status = "ended"
)

// EndReason 結束原因
type EndReason string

const (
	ReasonNormal      EndReason = "normal"
	ReasonDisconnect  EndReason = "opponent_disconnected"
	ReasonIdleTimeout EndReason = "idle_timeout"
)

// Player 座位上的玩家
type Player struct {
	ID        string
	Name      string
	Hand      []card.Card
	Connected bool
}

// TablePair 桌面上的一組攻防，Defense 為 nil 表示尚未防守
type TablePair struct {
	Attack  card.Card  `json:"attack"`
	Defense *card.Card `json:"defense"`
}

// Result 對局結果，平手（DrawNoWinner）或閒置結束時 WinnerID 為空
type Result struct {
	SessionID  string
	WinnerID   string
	WinnerName string
	LoserID    string
	LoserName  string
	Reason     EndReason
}

// HasWinner 是否產生勝者
func (r *Result) HasWinner() bool {
	return r.WinnerID != ""
}

// Session 一局對戰
type Session struct {
	ID string

	players  []*Player
	deck     *card.Deck
	trump    card.Suit
	table    []TablePair
	discard  []card.Card
	total    int
	attacker int
	defender int

	started  bool
	ended    bool
	winnerID string
	reason   EndReason
	policy   DrawPolicy
}

// Option 設定 Session 的選項
type Option func(*Session)

// WithRand 使用指定的亂數源洗牌
func WithRand(rng *rand.Rand) Option {
	return func(s *Session) {
		s.deck = card.NewDeck(rng)
	}
}

// WithDeck 使用預先排好的牌堆（最後一張為頂端）
func WithDeck(d *card.Deck) Option {
	return func(s *Session) {
		s.deck = d
	}
}

// WithDrawPolicy 設定平手策略
func WithDrawPolicy(p DrawPolicy) Option {
	return func(s *Session) {
		s.policy = p
	}
}

// NewSession 建立等待玩家的新對局，牌堆於建立時洗好
func NewSession(id string, opts ...Option) *Session {
	s := &Session{
		ID:       id,
		players:  make([]*Player, 0, MaxPlayers),
		attacker: 0,
		defender: 1,
		policy:   DrawFirstPlayer,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.deck == nil {
		s.deck = card.NewDeck(nil)
	}
	return s
}

// AddPlayer 加入玩家，座位依加入順序決定
func (s *Session) AddPlayer(id, name string) error {
	if len(s.players) >= MaxPlayers {
		return ErrSessionFull
	}
	if s.indexOf(id) >= 0 {
		return ErrDuplicatePlayer
	}
	s.players = append(s.players, &Player{ID: id, Name: name, Connected: true})
	return nil
}

// Start 發牌並決定王牌
//
// 兩人輪流各從頂端抽 6 張；王牌花色取自發完牌後的底牌，底牌仍留在牌堆中。
func (s *Session) Start() error {
	if s.started {
		return ErrAlreadyStarted
	}
	if len(s.players) != MaxPlayers {
		return ErrNotEnoughPlayers
	}

	s.total = s.deck.Len()
	var last card.Card
	for i := 0; i < HandSize; i++ {
		for _, p := range s.players {
			c, ok := s.deck.Draw()
			if !ok {
				break
			}
			p.Hand = append(p.Hand, c)
			last = c
		}
	}

	if bottom, ok := s.deck.Bottom(); ok {
		s.trump = bottom.Suit
	} else {
		// 牌不夠發完（只會出現在自訂牌堆）
		s.trump = last.Suit
	}

	s.attacker, s.defender = 0, 1
	s.started = true
	return nil
}

// Attack 進攻方出牌
func (s *Session) Attack(playerID string, c card.Card) error {
	idx, err := s.actor(playerID)
	if err != nil {
		return err
	}
	if !c.Valid() {
		return ErrInvalidCard
	}
	c = c.Normalize()

	if idx != s.attacker {
		return ErrNotYourTurn
	}
	if len(s.table) > 0 && !rankOnTable(s.table, c.Rank) {
		return ErrRankMismatch
	}

	p := s.players[idx]
	pos := indexOfCard(p.Hand, c)
	if pos < 0 {
		return ErrCardNotOwned
	}

	p.Hand = removeAt(p.Hand, pos)
	s.table = append(s.table, TablePair{Attack: c})
	return nil
}

// Defend 防守方以一張牌壓住指定位置的進攻
func (s *Session) Defend(playerID string, attackIndex int, c card.Card) error {
	idx, err := s.actor(playerID)
	if err != nil {
		return err
	}
	if !c.Valid() {
		return ErrInvalidCard
	}
	c = c.Normalize()

	if idx != s.defender {
		return ErrNotYourTurn
	}
	if attackIndex < 0 || attackIndex >= len(s.table) {
		return ErrInvalidAttackIndex
	}
	pair := &s.table[attackIndex]
	if pair.Defense != nil {
		return ErrAlreadyDefended
	}

	p := s.players[idx]
	pos := indexOfCard(p.Hand, c)
	if pos < 0 {
		return ErrCardNotOwned
	}
	if !CanDefend(pair.Attack, c, s.trump) {
		return ErrCannotBeat
	}

	p.Hand = removeAt(p.Hand, pos)
	pair.Defense = &c
	return nil
}

// EndTurn 結束回合
//
// 任一座位上的玩家都可以呼叫。走哪個分支只看桌面是否全部防守完畢：
//   - 全部防守（含空桌面）：桌上的牌移入棄牌堆
//   - 否則：防守方收走桌上所有牌
//
// 兩種情況都會交換攻守，接著補牌（進攻方先）並檢查是否結束。
func (s *Session) EndTurn(playerID string) error {
	if _, err := s.actor(playerID); err != nil {
		return err
	}

	if allDefended(s.table) {
		for _, pair := range s.table {
			s.discard = append(s.discard, pair.Attack, *pair.Defense)
		}
	} else {
		d := s.players[s.defender]
		for _, pair := range s.table {
			d.Hand = append(d.Hand, pair.Attack)
			if pair.Defense != nil {
				d.Hand = append(d.Hand, *pair.Defense)
			}
		}
	}
	s.table = nil
	s.attacker, s.defender = s.defender, s.attacker

	s.replenish()
	s.checkEnd()
	return nil
}

// Forfeit 玩家離線認輸，對手獲勝
func (s *Session) Forfeit(playerID string) error {
	idx := s.indexOf(playerID)
	if idx < 0 {
		return ErrUnknownPlayer
	}
	if s.ended {
		return ErrGameOver
	}

	s.players[idx].Connected = false
	s.ended = true
	s.reason = ReasonDisconnect
	if other := s.opponent(idx); other != nil {
		s.winnerID = other.ID
	}
	return nil
}

// Abandon 結束無人操作的對局，不產生勝者
func (s *Session) Abandon() bool {
	if s.ended {
		return false
	}
	s.ended = true
	s.reason = ReasonIdleTimeout
	s.winnerID = ""
	return true
}

// replenish 先補進攻方，再補防守方，直到 6 張或牌堆抽完
func (s *Session) replenish() {
	for _, i := range []int{s.attacker, s.defender} {
		p := s.players[i]
		for len(p.Hand) < HandSize {
			c, ok := s.deck.Draw()
			if !ok {
				return
			}
			p.Hand = append(p.Hand, c)
		}
	}
}

// checkEnd 牌堆空時檢查勝負
//
// 依座位順序第一位手牌為空的玩家獲勝；兩人同時為空時依平手策略處理。
func (s *Session) checkEnd() {
	if s.deck.Len() != 0 {
		return
	}

	first := -1
	holding := 0
	for i, p := range s.players {
		if len(p.Hand) == 0 {
			if first < 0 {
				first = i
			}
		} else {
			holding++
		}
	}
	if first < 0 {
		return
	}

	s.ended = true
	s.reason = ReasonNormal
	if holding == 0 && s.policy == DrawNoWinner {
		s.winnerID = ""
		return
	}
	s.winnerID = s.players[first].ID
}

// actor 驗證玩家可以對進行中的對局操作，回傳座位
func (s *Session) actor(playerID string) (int, error) {
	if !s.started {
		return -1, ErrNotStarted
	}
	if s.ended {
		return -1, ErrGameOver
	}
	idx := s.indexOf(playerID)
	if idx < 0 {
		return -1, ErrUnknownPlayer
	}
	return idx, nil
}

func (s *Session) indexOf(playerID string) int {
	for i, p := range s.players {
		if p.ID == playerID {
			return i
		}
	}
	return -1
}

func (s *Session) opponent(idx int) *Player {
	for i, p := range s.players {
		if i != idx {
			return p
		}
	}
	return nil
}

// Status 目前狀態
func (s *Session) Status() Status {
	switch {
	case s.ended:
		return StatusEnded
	case s.started:
		return StatusInProgress
	default:
		return StatusWaiting
	}
}

// Ended 對局是否已結束
func (s *Session) Ended() bool { return s.ended }

// Trump 王牌花色，發牌前為空
func (s *Session) Trump() card.Suit { return s.trump }

// DeckSize 牌堆剩餘張數
func (s *Session) DeckSize() int { return s.deck.Len() }

// DiscardSize 棄牌堆張數
func (s *Session) DiscardSize() int { return len(s.discard) }

// TotalCards 開局時的總牌數（牌堆 + 手牌 + 桌面 + 棄牌堆 恆等於此值）
func (s *Session) TotalCards() int { return s.total }

// Roles 回傳 (進攻方, 防守方) 座位
func (s *Session) Roles() (attacker, defender int) { return s.attacker, s.defender }

// Player 依 id 取得玩家副本
func (s *Session) Player(playerID string) (Player, bool) {
	idx := s.indexOf(playerID)
	if idx < 0 {
		return Player{}, false
	}
	p := *s.players[idx]
	p.Hand = append([]card.Card(nil), p.Hand...)
	return p, true
}

// PlayerIDs 依座位順序回傳玩家 id
func (s *Session) PlayerIDs() []string {
	ids := make([]string, len(s.players))
	for i, p := range s.players {
		ids[i] = p.ID
	}
	return ids
}

// Result 對局結果，尚未結束時回傳 nil
func (s *Session) Result() *Result {
	if !s.ended {
		return nil
	}
	r := &Result{SessionID: s.ID, Reason: s.reason}
	if s.winnerID == "" {
		return r
	}
	idx := s.indexOf(s.winnerID)
	r.WinnerID = s.winnerID
	r.WinnerName = s.players[idx].Name
	if loser := s.opponent(idx); loser != nil {
		r.LoserID = loser.ID
		r.LoserName = loser.Name
	}
	return r
}
