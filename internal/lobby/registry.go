// Package lobby 管理配對佇列與進行中的對局
//
// 鎖的順序固定為 queueMu → mu；Registry.mu 與 Match.mu 不會同時持有。
package lobby

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/koopa0/durak/internal/card"
	"github.com/koopa0/durak/internal/game"
)

var (
	ErrAlreadyQueued = errors.New("lobby: participant already queued")
	ErrAlreadyInGame = errors.New("lobby: participant already in a game")
	ErrNotInGame     = errors.New("lobby: participant not in a game")
)

// 系統設計問題：
//   多條連線同時排隊、同時出牌時，如何保證配對不重複、每局的狀態變化有唯一順序？
//
// 核心挑戰：
//   1. 配對原子性：同一位玩家不能被配進兩局
//   2. 單局序列化：同一局的操作與推送依序發生，客戶端不會收到倒序的快照
//   3. 斷線判負：判負後保留對局一段寬限時間再回收
//   4. 資源回收：長時間無人操作的對局由背景清理
//
// 設計方案：
//   ✅ queueMu - 排隊與配對在同一把鎖內完成
//   ✅ Match.mu - 每局一把鎖，操作與 Notify 推送都在鎖內
//   ✅ 雙索引 - sessionID -> Match、participantID -> sessionID，查詢 O(1)
//   ✅ time.AfterFunc + cleanupLoop - 寬限回收與閒置清理
//
// 鎖順序：queueMu → mu；mu 與 Match.mu 不同時持有。

// Participant 已通過身分驗證、等待或正在對局的玩家
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Pairing Enqueue 的結果，Matched 為 false 表示仍在等待對手
type Pairing struct {
	Matched      bool
	Participants [2]Participant
	Outcome
}

// DisconnectResult 斷線處理結果
type DisconnectResult struct {
	// WasQueued 玩家原本在佇列中，已移除
	WasQueued bool
	// Forfeited 玩家在進行中的對局斷線並判負
	Forfeited   bool
	Participant Participant
	Opponent    Participant
	Outcome
}

// Config 對局生命週期設定
type Config struct {
	DisconnectGrace time.Duration
	IdleTimeout     time.Duration
	CleanupInterval time.Duration
	DrawPolicy      game.DrawPolicy
}

// DefaultConfig 預設設定
func DefaultConfig() Config {
	return Config{
		DisconnectGrace: 5 * time.Second,
		IdleTimeout:     10 * time.Minute,
		CleanupInterval: time.Minute,
		DrawPolicy:      game.DrawFirstPlayer,
	}
}

// Notify 在持有對局鎖時收到操作結果
//
// 同一局的 Notify 依操作順序執行，推送給玩家的快照因此不會倒序。
// 只可做非阻塞的推送，不可再呼叫 Registry。
type Notify func(Outcome)

// Option Registry 選項
type Option func(*Registry)

// WithDeckFactory 指定每局使用的牌堆（測試用）
func WithDeckFactory(fn func() *card.Deck) Option {
	return func(r *Registry) {
		r.newDeck = fn
	}
}

// WithExpiredHandler 閒置對局被清理時的通知
func WithExpiredHandler(fn func(Outcome)) Option {
	return func(r *Registry) {
		r.onExpired = fn
	}
}

// Registry 配對佇列與對局索引
type Registry struct {
	cfg    Config
	logger *slog.Logger

	queueMu sync.Mutex
	queue   []Participant
	queued  map[string]struct{}

	mu            sync.RWMutex
	sessions      map[string]*Match // sessionID -> Match
	byParticipant map[string]string // participantID -> sessionID

	newDeck   func() *card.Deck
	onExpired func(Outcome)

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRegistry 建立 Registry 並啟動清理 goroutine
func NewRegistry(cfg Config, logger *slog.Logger, opts ...Option) *Registry {
	def := DefaultConfig()
	if cfg.DisconnectGrace <= 0 {
		cfg.DisconnectGrace = def.DisconnectGrace
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if cfg.DrawPolicy == "" {
		cfg.DrawPolicy = def.DrawPolicy
	}

	r := &Registry{
		cfg:           cfg,
		logger:        logger,
		queued:        make(map[string]struct{}),
		sessions:      make(map[string]*Match),
		byParticipant: make(map[string]string),
		stopCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.wg.Add(1)
	go r.cleanupLoop()

	return r
}

// Enqueue 加入配對佇列；佇列中有兩人時立即建立並開始對局
//
// 整個配對過程都在 queueMu 內完成，同一位玩家不可能被配進兩局。
// 配對成功時 notify 在對局鎖內收到開局快照。
func (r *Registry) Enqueue(p Participant, notify ...Notify) (Pairing, error) {
	r.queueMu.Lock()
	defer r.queueMu.Unlock()

	if _, ok := r.queued[p.ID]; ok {
		return Pairing{}, ErrAlreadyQueued
	}

	r.mu.RLock()
	sid, inGame := r.byParticipant[p.ID]
	existing := r.sessions[sid]
	r.mu.RUnlock()

	if inGame && existing != nil {
		if !existing.Ended() {
			return Pairing{}, ErrAlreadyInGame
		}
		// 已結束、等待回收的對局不再佔用玩家
		r.mu.Lock()
		if r.byParticipant[p.ID] == sid {
			delete(r.byParticipant, p.ID)
		}
		r.mu.Unlock()
	}

	r.queue = append(r.queue, p)
	r.queued[p.ID] = struct{}{}

	if len(r.queue) < game.MaxPlayers {
		r.logger.Debug("玩家等待配對", "participant_id", p.ID, "queue_len", len(r.queue))
		return Pairing{}, nil
	}

	a, b := r.queue[0], r.queue[1]
	r.queue = r.queue[2:]
	delete(r.queued, a.ID)
	delete(r.queued, b.ID)

	m, err := r.startMatch(a, b)
	if err != nil {
		return Pairing{}, err
	}

	r.mu.Lock()
	r.sessions[m.ID()] = m
	r.byParticipant[a.ID] = m.ID()
	r.byParticipant[b.ID] = m.ID()
	r.mu.Unlock()

	// 已建立索引，快照必須在鎖內取得並推送，之後的操作才會排在開局之後
	m.mu.Lock()
	out := m.outcomeLocked()
	for _, fn := range notify {
		fn(out)
	}
	m.mu.Unlock()

	r.logger.Info("對局開始",
		"session_id", m.ID(),
		"player_a", a.ID,
		"player_b", b.ID)

	return Pairing{
		Matched:      true,
		Participants: [2]Participant{a, b},
		Outcome:      out,
	}, nil
}

func (r *Registry) startMatch(a, b Participant) (*Match, error) {
	opts := []game.Option{game.WithDrawPolicy(r.cfg.DrawPolicy)}
	if r.newDeck != nil {
		opts = append(opts, game.WithDeck(r.newDeck()))
	}

	s := game.NewSession(uuid.NewString(), opts...)
	if err := s.AddPlayer(a.ID, a.Name); err != nil {
		return nil, err
	}
	if err := s.AddPlayer(b.ID, b.Name); err != nil {
		return nil, err
	}
	if err := s.Start(); err != nil {
		return nil, err
	}
	return newMatch(s, time.Now()), nil
}

// Lookup 以玩家 id 找到所在對局
func (r *Registry) Lookup(participantID string) (*Match, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sid, ok := r.byParticipant[participantID]
	if !ok {
		return nil, false
	}
	m, ok := r.sessions[sid]
	return m, ok
}

// Session 以對局 id 查詢
func (r *Registry) Session(sessionID string) (*Match, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.sessions[sessionID]
	return m, ok
}

// RemoveFromQueue 從佇列移除玩家，回傳是否原本在佇列中
func (r *Registry) RemoveFromQueue(participantID string) bool {
	r.queueMu.Lock()
	defer r.queueMu.Unlock()

	if _, ok := r.queued[participantID]; !ok {
		return false
	}
	delete(r.queued, participantID)
	for i, p := range r.queue {
		if p.ID == participantID {
			r.queue = append(r.queue[:i], r.queue[i+1:]...)
			break
		}
	}
	return true
}

// Disconnect 處理玩家斷線
//
// 在佇列中只會被移除；在進行中的對局則判負，並在寬限時間後回收對局。
func (r *Registry) Disconnect(participantID string) DisconnectResult {
	if r.RemoveFromQueue(participantID) {
		r.logger.Debug("玩家離開佇列", "participant_id", participantID)
		return DisconnectResult{WasQueued: true, Participant: Participant{ID: participantID}}
	}

	m, ok := r.Lookup(participantID)
	if !ok {
		return DisconnectResult{Participant: Participant{ID: participantID}}
	}

	m.mu.Lock()
	if err := m.session.Forfeit(participantID); err != nil {
		m.mu.Unlock()
		return DisconnectResult{Participant: Participant{ID: participantID}}
	}
	m.endedAt = time.Now()
	out := m.outcomeLocked()
	m.mu.Unlock()

	r.scheduleEviction(m)

	res := DisconnectResult{
		Forfeited:   true,
		Participant: Participant{ID: out.Result.LoserID, Name: out.Result.LoserName},
		Opponent:    Participant{ID: out.Result.WinnerID, Name: out.Result.WinnerName},
		Outcome:     out,
	}
	if res.Participant.ID == "" {
		res.Participant.ID = participantID
	}

	r.logger.Info("玩家斷線判負",
		"session_id", m.ID(),
		"participant_id", participantID,
		"winner_id", out.Result.WinnerID)

	return res
}

// Attack 進攻
func (r *Registry) Attack(participantID string, c card.Card, notify ...Notify) (Outcome, error) {
	return r.act(participantID, notify, func(s *game.Session) error {
		return s.Attack(participantID, c)
	})
}

// Defend 防守
func (r *Registry) Defend(participantID string, attackIndex int, c card.Card, notify ...Notify) (Outcome, error) {
	return r.act(participantID, notify, func(s *game.Session) error {
		return s.Defend(participantID, attackIndex, c)
	})
}

// EndTurn 結束回合；正常結束的對局立即從索引移除
func (r *Registry) EndTurn(participantID string, notify ...Notify) (Outcome, error) {
	return r.act(participantID, notify, func(s *game.Session) error {
		return s.EndTurn(participantID)
	})
}

// act 在對局鎖內執行操作；成功時 notify 也在同一把鎖內執行
func (r *Registry) act(participantID string, notify []Notify, fn func(*game.Session) error) (Outcome, error) {
	m, ok := r.Lookup(participantID)
	if !ok {
		return Outcome{}, ErrNotInGame
	}

	m.mu.Lock()
	if err := fn(m.session); err != nil {
		m.mu.Unlock()
		return Outcome{}, err
	}
	now := time.Now()
	m.lastActivity = now
	out := m.outcomeLocked()
	if out.Ended() {
		m.endedAt = now
	}
	for _, fn := range notify {
		fn(out)
	}
	m.mu.Unlock()

	if out.Ended() {
		r.removeSession(m.ID())
		r.logger.Info("對局結束",
			"session_id", m.ID(),
			"winner_id", out.Result.WinnerID,
			"reason", out.Result.Reason)
	}
	return out, nil
}

func (r *Registry) scheduleEviction(m *Match) {
	id := m.ID()
	t := time.AfterFunc(r.cfg.DisconnectGrace, func() {
		r.removeSession(id)
	})

	m.mu.Lock()
	if m.evictTimer != nil {
		m.evictTimer.Stop()
	}
	m.evictTimer = t
	m.mu.Unlock()
}

// removeSession 移除對局與玩家索引，只刪除仍指向此對局的索引
func (r *Registry) removeSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	for _, pid := range m.players {
		if r.byParticipant[pid] == sessionID {
			delete(r.byParticipant, pid)
		}
	}
	delete(r.sessions, sessionID)

	r.logger.Debug("對局已移除", "session_id", sessionID)
}

// cleanupLoop 定期清理閒置與逾期未回收的對局
func (r *Registry) cleanupLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Cleanup()
		case <-r.stopCh:
			return
		}
	}
}

// Cleanup 執行一次清理（公開方法供測試使用）
func (r *Registry) Cleanup() {
	now := time.Now()

	r.mu.RLock()
	matches := make([]*Match, 0, len(r.sessions))
	for _, m := range r.sessions {
		matches = append(matches, m)
	}
	r.mu.RUnlock()

	var expired []Outcome
	var toRemove []string
	for _, m := range matches {
		m.mu.Lock()
		switch {
		case m.session.Ended():
			// 寬限計時器遺失時的保險
			if !m.endedAt.IsZero() && now.Sub(m.endedAt) >= r.cfg.DisconnectGrace {
				toRemove = append(toRemove, m.ID())
			}
		case now.Sub(m.lastActivity) >= r.cfg.IdleTimeout:
			m.session.Abandon()
			m.endedAt = now
			expired = append(expired, m.outcomeLocked())
			toRemove = append(toRemove, m.ID())
		}
		m.mu.Unlock()
	}

	for _, id := range toRemove {
		r.removeSession(id)
	}
	for _, out := range expired {
		r.logger.Info("對局閒置逾時", "session_id", out.SessionID)
		if r.onExpired != nil {
			r.onExpired(out)
		}
	}
}

// Snapshot 目前的統計
type Snapshot struct {
	ActiveSessions int `json:"activeSessions"`
	EndedSessions  int `json:"endedSessions"`
	PlayersInGame  int `json:"playersInGame"`
	WaitingPlayers int `json:"waitingPlayers"`
}

// Stats 取得統計資訊
func (r *Registry) Stats() Snapshot {
	r.queueMu.Lock()
	waiting := len(r.queue)
	r.queueMu.Unlock()

	r.mu.RLock()
	matches := make([]*Match, 0, len(r.sessions))
	for _, m := range r.sessions {
		matches = append(matches, m)
	}
	r.mu.RUnlock()

	snap := Snapshot{WaitingPlayers: waiting}
	for _, m := range matches {
		if m.Ended() {
			snap.EndedSessions++
			continue
		}
		snap.ActiveSessions++
		snap.PlayersInGame += game.MaxPlayers
	}
	return snap
}

// Stop 停止清理 goroutine 並取消所有待回收計時器
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	r.wg.Wait()

	r.mu.RLock()
	matches := make([]*Match, 0, len(r.sessions))
	for _, m := range r.sessions {
		matches = append(matches, m)
	}
	r.mu.RUnlock()

	for _, m := range matches {
		m.mu.Lock()
		if m.evictTimer != nil {
			m.evictTimer.Stop()
		}
		m.mu.Unlock()
	}

	r.logger.Info("對局管理器已停止")
}
