package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/koopa0/durak/internal/events"
	"github.com/koopa0/durak/internal/game"
	"github.com/koopa0/durak/internal/lobby"
	"github.com/koopa0/durak/internal/stats"
	apperrors "github.com/koopa0/durak/pkg/errors"
	"github.com/koopa0/durak/pkg/logger"
)

// defaultPlayerName 未提供名稱時使用
const defaultPlayerName = "Player"

// storeTimeout 寫入戰績的逾時
const storeTimeout = 3 * time.Second

// Sender 將已編碼的訊息送到指定玩家的連線
type Sender interface {
	Send(participantID string, msg []byte) bool
}

// Dispatcher 把客戶端訊息轉成對 Registry 的操作，再把結果推送給相關玩家
//
// 對局狀態的推送在對局鎖內完成（lobby.Notify），送進各連線緩衝區的順序與操作順序一致；
// 戰績寫入與事件發布在鎖外進行。
type Dispatcher struct {
	registry  *lobby.Registry
	store     stats.Store
	publisher events.Publisher
	sender    Sender
	logger    *slog.Logger
}

// NewDispatcher 建立 Dispatcher；publisher 為 nil 時不發布事件
func NewDispatcher(registry *lobby.Registry, store stats.Store, publisher events.Publisher, sender Sender, logger *slog.Logger) *Dispatcher {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Dispatcher{
		registry:  registry,
		store:     store,
		publisher: publisher,
		sender:    sender,
		logger:    logger,
	}
}

// HandleConnect 新連線建立時告知身分
func (d *Dispatcher) HandleConnect(ctx context.Context, p lobby.Participant, guest bool) {
	d.logger.DebugContext(ctx, "玩家連線", "guest", guest)
	d.send(p.ID, EventConnected, ConnectedPayload{
		ParticipantID: p.ID,
		Name:          p.Name,
		Guest:         guest,
	})
}

// HandleMessage 處理一則客戶端訊息
//
// 同一條連線的訊息依序呼叫；被拒絕的操作只記錄 debug，不通知任何人。
func (d *Dispatcher) HandleMessage(ctx context.Context, p lobby.Participant, raw []byte) {
	var msg Inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		d.logger.DebugContext(ctx, "無效的訊息格式", "error", err)
		return
	}

	switch msg.Type {
	case TypeJoinGame:
		d.join(ctx, p, msg.Name)
	case TypeAttack:
		if msg.Card == nil {
			d.logger.DebugContext(ctx, "進攻缺少卡牌")
			return
		}
		update := GameUpdatePayload{
			PlayerID: p.ID,
			Action:   TypeAttack,
			Card:     msg.Card.Normalize(),
		}
		if _, err := d.registry.Attack(p.ID, *msg.Card, d.pushUpdate(update)); err != nil {
			d.rejected(ctx, msg.Type, err)
		}
	case TypeDefend:
		if msg.Card == nil || msg.AttackIndex == nil {
			d.logger.DebugContext(ctx, "防守缺少卡牌或位置")
			return
		}
		update := GameUpdatePayload{
			PlayerID:    p.ID,
			Action:      TypeDefend,
			Card:        msg.Card.Normalize(),
			AttackIndex: msg.AttackIndex,
		}
		if _, err := d.registry.Defend(p.ID, *msg.AttackIndex, *msg.Card, d.pushUpdate(update)); err != nil {
			d.rejected(ctx, msg.Type, err)
		}
	case TypeEndTurn:
		out, err := d.registry.EndTurn(p.ID, d.pushState)
		if err != nil {
			d.rejected(ctx, msg.Type, err)
			return
		}
		if out.Ended() {
			d.finish(ctx, out, out.ParticipantIDs())
		}
	case TypeChatMessage:
		text := msg.Message
		if text == "" {
			text = msg.Text
		}
		d.chat(ctx, p, text)
	case TypeGetPlayerStats:
		d.playerStats(ctx, p, msg.Name)
	case TypePing:
		d.send(p.ID, EventPong, map[string]int64{"timestamp": time.Now().UnixMilli()})
	default:
		d.logger.DebugContext(ctx, "未知的訊息類型", "type", msg.Type)
	}
}

// HandleDisconnect 連線關閉時呼叫
func (d *Dispatcher) HandleDisconnect(ctx context.Context, participantID string) {
	res := d.registry.Disconnect(participantID)
	if !res.Forfeited {
		return
	}

	d.send(res.Opponent.ID, EventPlayerDisconnected, PlayerDisconnectedPayload{
		PlayerID:   res.Participant.ID,
		PlayerName: res.Participant.Name,
	})
	d.finish(ctx, res.Outcome, []string{res.Opponent.ID})
}

// HandleExpired 閒置逾時的對局被回收後呼叫
func (d *Dispatcher) HandleExpired(out lobby.Outcome) {
	d.finish(context.Background(), out, out.ParticipantIDs())
}

func (d *Dispatcher) join(ctx context.Context, p lobby.Participant, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = p.Name
	}
	if name == "" {
		name = defaultPlayerName
	}

	pairing, err := d.registry.Enqueue(lobby.Participant{ID: p.ID, Name: name}, func(out lobby.Outcome) {
		d.broadcastViews(out, EventGameStarted)
	})
	if err != nil {
		d.logger.DebugContext(ctx, "加入對局失敗", "error", err)
		d.sendError(p.ID, apperrors.Wrap(err, apperrors.ErrCodeConflict, "無法加入對局"))
		return
	}
	if !pairing.Matched {
		d.send(p.ID, EventWaitingForPlayer, map[string]string{"name": name})
		return
	}

	out := pairing.Outcome
	d.publish(ctx, events.Event{
		Type:      events.GameStarted,
		SessionID: out.SessionID,
		Players:   out.ParticipantIDs(),
	})
}

func (d *Dispatcher) chat(ctx context.Context, p lobby.Participant, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if utf8.RuneCountInString(text) > maxChatLength {
		text = string([]rune(text)[:maxChatLength])
	}

	m, ok := d.registry.Lookup(p.ID)
	if !ok {
		d.logger.DebugContext(ctx, "不在對局中，忽略聊天")
		return
	}
	self, ok := m.Participant(p.ID)
	if !ok {
		return
	}

	for _, id := range m.ParticipantIDs() {
		d.send(id, EventChatMessage, ChatPayload{
			PlayerName:   self.Name,
			Message:      text,
			IsOwnMessage: id == p.ID,
		})
	}
}

func (d *Dispatcher) playerStats(ctx context.Context, p lobby.Participant, name string) {
	if strings.TrimSpace(name) == "" {
		name = p.Name
		if m, ok := d.registry.Lookup(p.ID); ok {
			if self, ok := m.Participant(p.ID); ok {
				name = self.Name
			}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	st, err := d.store.Get(ctx, name)
	if err != nil {
		d.logger.WarnContext(ctx, "讀取戰績失敗", "name", name, "error", err)
		d.sendError(p.ID, err)
		return
	}
	d.send(p.ID, EventPlayerStats, st)
}

// finish 記錄戰績、通知玩家並發布結束事件
func (d *Dispatcher) finish(ctx context.Context, out lobby.Outcome, notify []string) {
	res := out.Result
	if res == nil {
		return
	}
	ctx = logger.WithSessionID(ctx, out.SessionID)

	payload := GameEndedPayload{
		SessionID:  out.SessionID,
		Winner:     res.WinnerID,
		WinnerName: res.WinnerName,
		Reason:     string(res.Reason),
	}
	if res.HasWinner() {
		payload.WinnerStats = d.record(ctx, res.WinnerName, true)
		payload.LoserStats = d.record(ctx, res.LoserName, false)
	}

	for _, id := range notify {
		d.send(id, EventGameEnded, payload)
	}

	d.publish(ctx, events.Event{
		Type:      events.GameEnded,
		SessionID: out.SessionID,
		Players:   out.ParticipantIDs(),
		WinnerID:  res.WinnerID,
		Reason:    string(res.Reason),
	})

	d.logger.InfoContext(ctx, "對局結算",
		"winner_id", res.WinnerID,
		"reason", res.Reason)
}

func (d *Dispatcher) record(ctx context.Context, name string, won bool) *stats.Stats {
	if name == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	st, err := d.store.Record(ctx, name, won)
	if err != nil {
		d.logger.ErrorContext(ctx, "記錄戰績失敗", "name", name, "won", won, "error", err)
		return nil
	}
	return &st
}

func (d *Dispatcher) publish(ctx context.Context, e events.Event) {
	e.OccurredAt = time.Now().UTC()
	if err := d.publisher.Publish(ctx, e); err != nil {
		d.logger.WarnContext(ctx, "發布事件失敗", "type", e.Type, "error", err)
	}
}

func (d *Dispatcher) rejected(ctx context.Context, action string, err error) {
	level := slog.LevelDebug
	if !isRuleError(err) {
		level = slog.LevelWarn
	}
	d.logger.Log(ctx, level, "操作被拒絕", "action", action, "error", err)
}

// pushState 各自送出 gameState
func (d *Dispatcher) pushState(out lobby.Outcome) {
	d.broadcastViews(out, EventGameState)
}

// pushUpdate 先廣播 gameUpdate，再各自送出 gameState
func (d *Dispatcher) pushUpdate(update GameUpdatePayload) lobby.Notify {
	return func(out lobby.Outcome) {
		d.broadcast(out, EventGameUpdate, update)
		d.pushState(out)
	}
}

func (d *Dispatcher) broadcastViews(out lobby.Outcome, event string) {
	for _, id := range out.ParticipantIDs() {
		d.send(id, event, out.Views[id])
	}
}

func (d *Dispatcher) broadcast(out lobby.Outcome, event string, data any) {
	msg, err := encode(event, data)
	if err != nil {
		d.logger.Error("編碼訊息失敗", "event", event, "error", err)
		return
	}
	for _, id := range out.ParticipantIDs() {
		d.sender.Send(id, msg)
	}
}

func (d *Dispatcher) send(participantID, event string, data any) {
	if participantID == "" {
		return
	}
	msg, err := encode(event, data)
	if err != nil {
		d.logger.Error("編碼訊息失敗", "event", event, "error", err)
		return
	}
	d.sender.Send(participantID, msg)
}

func (d *Dispatcher) sendError(participantID string, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.Wrap(err, apperrors.ErrCodeInternal, "內部錯誤")
	}
	d.send(participantID, EventError, ErrorPayload{Code: appErr.Code, Message: appErr.Message})
}

// isRuleError 是否為玩家操作違規（而非系統錯誤）
func isRuleError(err error) bool {
	for _, target := range []error{
		lobby.ErrNotInGame,
		game.ErrNotStarted,
		game.ErrGameOver,
		game.ErrUnknownPlayer,
		game.ErrInvalidCard,
		game.ErrNotYourTurn,
		game.ErrRankMismatch,
		game.ErrCardNotOwned,
		game.ErrInvalidAttackIndex,
		game.ErrAlreadyDefended,
		game.ErrCannotBeat,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
