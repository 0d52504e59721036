package server_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/durak/internal/card"
	"github.com/koopa0/durak/internal/events"
	"github.com/koopa0/durak/internal/game"
	"github.com/koopa0/durak/internal/lobby"
	"github.com/koopa0/durak/internal/server"
	"github.com/koopa0/durak/internal/stats"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

type message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// fakeSender 依玩家記錄送出的訊息
type fakeSender struct {
	mu   sync.Mutex
	sent map[string][]message
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: make(map[string][]message)}
}

func (s *fakeSender) Send(participantID string, msg []byte) bool {
	var m message
	if err := json.Unmarshal(msg, &m); err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent[participantID] = append(s.sent[participantID], m)
	return true
}

// take 取出並清空某玩家收到的訊息
func (s *fakeSender) take(participantID string) []message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.sent[participantID]
	delete(s.sent, participantID)
	return out
}

func eventsOf(msgs []message) []string {
	names := make([]string, len(msgs))
	for i, m := range msgs {
		names[i] = m.Event
	}
	return names
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *fakePublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	registry  *lobby.Registry
	store     *stats.MemoryStore
	sender    *fakeSender
	publisher *fakePublisher
	d         *server.Dispatcher
}

func newFixture(t *testing.T, opts ...lobby.Option) *fixture {
	t.Helper()
	f := &fixture{
		store:     stats.NewMemoryStore(),
		sender:    newFakeSender(),
		publisher: &fakePublisher{},
	}
	f.registry = lobby.NewRegistry(lobby.DefaultConfig(), testLogger(), opts...)
	t.Cleanup(f.registry.Stop)
	f.d = server.NewDispatcher(f.registry, f.store, f.publisher, f.sender, testLogger())
	return f
}

var (
	alice = lobby.Participant{ID: "alice"}
	bob   = lobby.Participant{ID: "bob"}
)

func (f *fixture) msg(p lobby.Participant, v map[string]any) {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	f.d.HandleMessage(context.Background(), p, raw)
}

// start 讓 alice 與 bob 配對並清空訊息
func (f *fixture) start(t *testing.T) {
	t.Helper()
	f.msg(alice, map[string]any{"type": "joinGame", "name": "Alice"})
	f.msg(bob, map[string]any{"type": "joinGame", "name": "Bob"})
	_, ok := f.registry.Lookup(alice.ID)
	require.True(t, ok)
	f.sender.take(alice.ID)
	f.sender.take(bob.ID)
}

func decode[T any](t *testing.T, m message) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(m.Data, &v))
	return v
}

// tieDeck 12 張牌、無牌堆（王牌紅心），照 playTie 的順序雙方同時出完
func tieDeck() *card.Deck {
	a := []card.Card{
		card.New(card.Hearts, card.Six), card.New(card.Diamonds, card.Six), card.New(card.Clubs, card.Six),
		card.New(card.Spades, card.Six), card.New(card.Diamonds, card.Seven), card.New(card.Hearts, card.King),
	}
	b := []card.Card{
		card.New(card.Hearts, card.Seven), card.New(card.Diamonds, card.Eight), card.New(card.Clubs, card.Nine),
		card.New(card.Spades, card.Nine), card.New(card.Diamonds, card.Ten), card.New(card.Hearts, card.Queen),
	}
	cards := make([]card.Card, 0, 12)
	for i := len(a) - 1; i >= 0; i-- {
		cards = append(cards, b[i], a[i])
	}
	return card.NewDeckFrom(cards)
}

func (f *fixture) playTie() {
	attack := func(p lobby.Participant, c card.Card) {
		f.msg(p, map[string]any{"type": "attack", "card": c})
	}
	defend := func(p lobby.Participant, idx int, c card.Card) {
		f.msg(p, map[string]any{"type": "defend", "attackIndex": idx, "card": c})
	}
	attack(alice, card.New(card.Hearts, card.Six))
	defend(bob, 0, card.New(card.Hearts, card.Seven))
	attack(alice, card.New(card.Diamonds, card.Six))
	defend(bob, 1, card.New(card.Diamonds, card.Eight))
	attack(alice, card.New(card.Clubs, card.Six))
	defend(bob, 2, card.New(card.Clubs, card.Nine))
	attack(alice, card.New(card.Spades, card.Six))
	defend(bob, 3, card.New(card.Spades, card.Nine))
	attack(alice, card.New(card.Diamonds, card.Seven))
	defend(bob, 4, card.New(card.Diamonds, card.Ten))
	f.msg(bob, map[string]any{"type": "endTurn"})
	attack(bob, card.New(card.Hearts, card.Queen))
	defend(alice, 0, card.New(card.Hearts, card.King))
}

func TestDispatcher_Join(t *testing.T) {
	f := newFixture(t)

	f.msg(alice, map[string]any{"type": "joinGame", "name": "  Alice  "})
	got := f.sender.take(alice.ID)
	require.Equal(t, []string{server.EventWaitingForPlayer}, eventsOf(got))

	// 重複排隊只回錯誤給自己
	f.msg(alice, map[string]any{"type": "joinGame", "name": "Alice"})
	got = f.sender.take(alice.ID)
	require.Equal(t, []string{server.EventError}, eventsOf(got))
	assert.Equal(t, "CONFLICT", decode[server.ErrorPayload](t, got[0]).Code)

	f.msg(bob, map[string]any{"type": "joinGame"})
	for _, p := range []lobby.Participant{alice, bob} {
		got := f.sender.take(p.ID)
		require.Equal(t, []string{server.EventGameStarted}, eventsOf(got), p.ID)
		view := decode[game.View](t, got[0])
		assert.True(t, view.Started)
		assert.Len(t, view.Hand, game.HandSize)
		require.Len(t, view.Players, 2)
		assert.Equal(t, "Alice", view.Players[0].Name)
		assert.Equal(t, "Player", view.Players[1].Name)
	}
	assert.Equal(t, []events.Type{events.GameStarted}, f.publisher.types())
}

func TestDispatcher_AttackAndDefend(t *testing.T) {
	f := newFixture(t, lobby.WithDeckFactory(tieDeck))
	f.start(t)

	six := card.New(card.Hearts, card.Six)
	f.msg(alice, map[string]any{"type": "attack", "card": six})
	for _, p := range []lobby.Participant{alice, bob} {
		got := f.sender.take(p.ID)
		require.Equal(t, []string{server.EventGameUpdate, server.EventGameState}, eventsOf(got), p.ID)
		update := decode[server.GameUpdatePayload](t, got[0])
		assert.Equal(t, alice.ID, update.PlayerID)
		assert.Equal(t, "attack", update.Action)
		assert.True(t, update.Card.Same(six))
		view := decode[game.View](t, got[1])
		assert.Len(t, view.Table, 1)
	}

	// 違規操作：沒有任何推送
	f.msg(bob, map[string]any{"type": "attack", "card": card.New(card.Hearts, card.Seven)})
	f.msg(bob, map[string]any{"type": "defend", "attackIndex": 0, "card": card.New(card.Clubs, card.Nine)})
	f.msg(bob, map[string]any{"type": "defend", "card": card.New(card.Hearts, card.Seven)})
	f.msg(alice, map[string]any{"type": "attack"})
	f.d.HandleMessage(context.Background(), alice, []byte("not json"))
	assert.Empty(t, f.sender.take(alice.ID))
	assert.Empty(t, f.sender.take(bob.ID))

	f.msg(bob, map[string]any{"type": "defend", "attackIndex": 0, "card": card.New(card.Hearts, card.Seven)})
	got := f.sender.take(alice.ID)
	require.Equal(t, []string{server.EventGameUpdate, server.EventGameState}, eventsOf(got))
	update := decode[server.GameUpdatePayload](t, got[0])
	assert.Equal(t, "defend", update.Action)
	require.NotNil(t, update.AttackIndex)
	assert.Equal(t, 0, *update.AttackIndex)
}

func TestDispatcher_GameEnd(t *testing.T) {
	f := newFixture(t, lobby.WithDeckFactory(tieDeck))
	f.start(t)
	f.playTie()
	f.sender.take(alice.ID)
	f.sender.take(bob.ID)

	f.msg(alice, map[string]any{"type": "endTurn"})
	for _, p := range []lobby.Participant{alice, bob} {
		got := f.sender.take(p.ID)
		require.Equal(t, []string{server.EventGameState, server.EventGameEnded}, eventsOf(got), p.ID)
		ended := decode[server.GameEndedPayload](t, got[1])
		assert.Equal(t, alice.ID, ended.Winner)
		assert.Equal(t, "Alice", ended.WinnerName)
		assert.Equal(t, string(game.ReasonNormal), ended.Reason)
		require.NotNil(t, ended.WinnerStats)
		require.NotNil(t, ended.LoserStats)
		assert.Equal(t, 1, ended.WinnerStats.Wins)
		assert.Equal(t, 1, ended.LoserStats.Losses)
	}

	st, err := f.store.Get(context.Background(), "Bob")
	require.NoError(t, err)
	assert.Equal(t, 1, st.GamesPlayed)
	assert.Equal(t, 0, st.Wins)
	assert.Equal(t, []events.Type{events.GameStarted, events.GameEnded}, f.publisher.types())
}

func TestDispatcher_Disconnect(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	f.d.HandleDisconnect(context.Background(), bob.ID)

	got := f.sender.take(alice.ID)
	require.Equal(t, []string{server.EventPlayerDisconnected, server.EventGameEnded}, eventsOf(got))
	dc := decode[server.PlayerDisconnectedPayload](t, got[0])
	assert.Equal(t, bob.ID, dc.PlayerID)
	assert.Equal(t, "Bob", dc.PlayerName)
	ended := decode[server.GameEndedPayload](t, got[1])
	assert.Equal(t, alice.ID, ended.Winner)
	assert.Equal(t, string(game.ReasonDisconnect), ended.Reason)
	require.NotNil(t, ended.WinnerStats)
	assert.Equal(t, 1, ended.WinnerStats.Wins)
	assert.Empty(t, f.sender.take(bob.ID))

	// 已經不在對局（或從未加入）的斷線沒有任何輸出
	f.d.HandleDisconnect(context.Background(), "ghost")
	assert.Empty(t, f.sender.take(alice.ID))
}

func TestDispatcher_DisconnectWhileQueued(t *testing.T) {
	f := newFixture(t)
	f.msg(alice, map[string]any{"type": "joinGame", "name": "Alice"})
	f.sender.take(alice.ID)

	f.d.HandleDisconnect(context.Background(), alice.ID)
	assert.Equal(t, 0, f.registry.Stats().WaitingPlayers)

	f.msg(bob, map[string]any{"type": "joinGame", "name": "Bob"})
	assert.Equal(t, []string{server.EventWaitingForPlayer}, eventsOf(f.sender.take(bob.ID)))
}

func TestDispatcher_Chat(t *testing.T) {
	f := newFixture(t)

	// 不在對局中：忽略
	f.msg(alice, map[string]any{"type": "chatMessage", "message": "hi"})
	assert.Empty(t, f.sender.take(alice.ID))

	f.start(t)
	f.msg(alice, map[string]any{"type": "chatMessage", "message": " 你好 "})

	own := f.sender.take(alice.ID)
	require.Equal(t, []string{server.EventChatMessage}, eventsOf(own))
	assert.Equal(t, server.ChatPayload{PlayerName: "Alice", Message: "你好", IsOwnMessage: true},
		decode[server.ChatPayload](t, own[0]))

	other := f.sender.take(bob.ID)
	require.Len(t, other, 1)
	assert.Equal(t, server.ChatPayload{PlayerName: "Alice", Message: "你好", IsOwnMessage: false},
		decode[server.ChatPayload](t, other[0]))

	// 空白訊息不送出
	f.msg(bob, map[string]any{"type": "chatMessage", "text": "   "})
	assert.Empty(t, f.sender.take(alice.ID))
}

func TestDispatcher_PlayerStatsAndPing(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.Record(context.Background(), "Alice", true)
	require.NoError(t, err)

	f.msg(bob, map[string]any{"type": "getPlayerStats", "name": "alice"})
	got := f.sender.take(bob.ID)
	require.Equal(t, []string{server.EventPlayerStats}, eventsOf(got))
	st := decode[stats.Stats](t, got[0])
	assert.Equal(t, 1, st.Wins)
	assert.Equal(t, 100.0, st.WinRate)

	// 沒有名稱也不在對局：名稱無效
	f.msg(bob, map[string]any{"type": "getPlayerStats"})
	got = f.sender.take(bob.ID)
	require.Equal(t, []string{server.EventError}, eventsOf(got))
	assert.Equal(t, "INVALID_INPUT", decode[server.ErrorPayload](t, got[0]).Code)

	f.msg(bob, map[string]any{"type": "ping"})
	assert.Equal(t, []string{server.EventPong}, eventsOf(f.sender.take(bob.ID)))

	f.msg(bob, map[string]any{"type": "dance"})
	assert.Empty(t, f.sender.take(bob.ID))
}

// TestDispatcher_ConnectDoesNotResume 連線只會收到 connected，不會補送對局狀態
func TestDispatcher_ConnectDoesNotResume(t *testing.T) {
	f := newFixture(t)

	f.d.HandleConnect(context.Background(), alice, true)
	got := f.sender.take(alice.ID)
	require.Equal(t, []string{server.EventConnected}, eventsOf(got))
	assert.Equal(t, server.ConnectedPayload{ParticipantID: alice.ID, Guest: true},
		decode[server.ConnectedPayload](t, got[0]))

	f.start(t)
	f.d.HandleConnect(context.Background(), alice, true)
	got = f.sender.take(alice.ID)
	assert.Equal(t, []string{server.EventConnected}, eventsOf(got))
}

// TestDispatcher_IdleExpired 閒置清掃結束的對局通知雙方，不記錄戰績
func TestDispatcher_IdleExpired(t *testing.T) {
	cfg := lobby.DefaultConfig()
	cfg.IdleTimeout = 100 * time.Millisecond

	f := &fixture{
		store:     stats.NewMemoryStore(),
		sender:    newFakeSender(),
		publisher: &fakePublisher{},
	}
	f.registry = lobby.NewRegistry(cfg, testLogger(), lobby.WithExpiredHandler(func(out lobby.Outcome) {
		f.d.HandleExpired(out)
	}))
	t.Cleanup(f.registry.Stop)
	f.d = server.NewDispatcher(f.registry, f.store, f.publisher, f.sender, testLogger())
	f.start(t)

	time.Sleep(200 * time.Millisecond)
	f.registry.Cleanup()

	for _, p := range []lobby.Participant{alice, bob} {
		got := f.sender.take(p.ID)
		require.Equal(t, []string{server.EventGameEnded}, eventsOf(got), p.ID)
		ended := decode[server.GameEndedPayload](t, got[0])
		assert.Empty(t, ended.Winner)
		assert.Equal(t, string(game.ReasonIdleTimeout), ended.Reason)
		assert.Nil(t, ended.WinnerStats)
	}

	summary, err := f.store.Summary(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.TotalGames)
	assert.Equal(t, []events.Type{events.GameStarted, events.GameEnded}, f.publisher.types())
}

// gatedSender 第一次送 gameUpdate 給 holdFor 時暫停，直到 release 關閉
type gatedSender struct {
	*fakeSender
	holdFor string
	once    sync.Once
	paused  chan struct{}
	release chan struct{}
}

func (s *gatedSender) Send(participantID string, msg []byte) bool {
	var m message
	if err := json.Unmarshal(msg, &m); err != nil {
		panic(err)
	}
	if participantID == s.holdFor && m.Event == server.EventGameUpdate {
		s.once.Do(func() {
			close(s.paused)
			<-s.release
		})
	}
	return s.fakeSender.Send(participantID, msg)
}

// TestDispatcher_StateDeliveredInOrder 推送未完成前，同一局的下一個操作必須等待，
// 玩家最後收到的 gameState 永遠是最新狀態
func TestDispatcher_StateDeliveredInOrder(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	gate := &gatedSender{
		fakeSender: f.sender,
		holdFor:    bob.ID,
		paused:     make(chan struct{}),
		release:    make(chan struct{}),
	}
	d := server.NewDispatcher(f.registry, f.store, f.publisher, gate, testLogger())
	m, ok := f.registry.Lookup(alice.ID)
	require.True(t, ok)
	atk := m.View(alice.ID).Hand[0]

	attacked := make(chan struct{})
	go func() {
		defer close(attacked)
		raw, _ := json.Marshal(map[string]any{"type": "attack", "card": atk})
		d.HandleMessage(context.Background(), alice, raw)
	}()
	<-gate.paused

	took := make(chan struct{})
	go func() {
		defer close(took)
		d.HandleMessage(context.Background(), bob, []byte(`{"type":"endTurn"}`))
	}()

	// 沒有排序保證時，bob 的 endTurn 推送會在這段時間內先送出
	time.Sleep(50 * time.Millisecond)
	select {
	case <-took:
		t.Fatal("endTurn 不應在前一次推送完成前執行")
	default:
	}
	close(gate.release)
	<-attacked
	<-took

	got := f.sender.take(bob.ID)
	require.Equal(t, []string{server.EventGameUpdate, server.EventGameState, server.EventGameState}, eventsOf(got))

	final := decode[game.View](t, got[len(got)-1])
	current := m.View(bob.ID)
	assert.Empty(t, final.Table)
	assert.Len(t, final.Hand, game.HandSize+1)
	assert.Equal(t, current.AttackerIndex, final.AttackerIndex)
	assert.Equal(t, 1, final.AttackerIndex)
	assert.Equal(t, len(current.Hand), len(final.Hand))
}
