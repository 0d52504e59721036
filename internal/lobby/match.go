package lobby

import (
	"sync"
	"time"

	"github.com/koopa0/durak/internal/game"
)

// Match 包裝一局 game.Session 與它的互斥鎖
//
// 所有對 session 的讀寫都必須持有 mu；持有 mu 時不可再取得 Registry.mu。
type Match struct {
	mu sync.Mutex

	session *game.Session
	// players 開局後不變，讀取不需加鎖
	players      []string
	createdAt    time.Time
	lastActivity time.Time
	endedAt      time.Time
	evictTimer   *time.Timer
}

func newMatch(s *game.Session, now time.Time) *Match {
	return &Match{
		session:      s,
		players:      s.PlayerIDs(),
		createdAt:    now,
		lastActivity: now,
	}
}

// ID 對局 id（建立後不變，不需加鎖）
func (m *Match) ID() string {
	return m.session.ID
}

// View 取得指定玩家視角的快照
func (m *Match) View(participantID string) game.View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.View(participantID)
}

// ParticipantIDs 依座位順序回傳兩位玩家 id
func (m *Match) ParticipantIDs() []string {
	return append([]string(nil), m.players...)
}

// Participant 取得玩家名稱
func (m *Match) Participant(participantID string) (Participant, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.session.Player(participantID)
	if !ok {
		return Participant{}, false
	}
	return Participant{ID: p.ID, Name: p.Name}, true
}

// Ended 對局是否已結束
func (m *Match) Ended() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Ended()
}

// outcomeLocked 產生兩位玩家的快照，呼叫端需持有 mu
func (m *Match) outcomeLocked() Outcome {
	ids := m.session.PlayerIDs()
	out := Outcome{
		SessionID:    m.session.ID,
		Participants: ids,
		Views:        make(map[string]game.View, len(ids)),
		Result:       m.session.Result(),
	}
	for _, id := range ids {
		out.Views[id] = m.session.View(id)
	}
	return out
}

// Outcome 一次成功操作後的結果
type Outcome struct {
	SessionID string
	// Participants 依座位順序
	Participants []string
	// Views 以玩家 id 為鍵的個人視角
	Views map[string]game.View
	// Result 對局結束時非 nil
	Result *game.Result
}

// Ended 此次操作是否讓對局結束
func (o Outcome) Ended() bool {
	return o.Result != nil
}

// ParticipantIDs 依座位順序的玩家 id
func (o Outcome) ParticipantIDs() []string {
	return append([]string(nil), o.Participants...)
}
