package server

import (
	"encoding/json"

	"github.com/koopa0/durak/internal/card"
	"github.com/koopa0/durak/internal/stats"
)

// 客戶端 → 伺服器
const (
	TypeJoinGame       = "joinGame"
	TypeAttack         = "attack"
	TypeDefend         = "defend"
	TypeEndTurn        = "endTurn"
	TypeChatMessage    = "chatMessage"
	TypeGetPlayerStats = "getPlayerStats"
	TypePing           = "ping"
)

// 伺服器 → 客戶端
const (
	EventConnected          = "connected"
	EventWaitingForPlayer   = "waitingForPlayer"
	EventGameStarted        = "gameStarted"
	EventGameState          = "gameState"
	EventGameUpdate         = "gameUpdate"
	EventGameEnded          = "gameEnded"
	EventPlayerDisconnected = "playerDisconnected"
	EventChatMessage        = "chatMessage"
	EventPlayerStats        = "playerStats"
	EventPong               = "pong"
	EventError              = "error"
)

// maxChatLength 聊天訊息上限（rune）
const maxChatLength = 500

// Inbound 客戶端訊息：{"type": "...", ...}
type Inbound struct {
	Type        string     `json:"type"`
	Name        string     `json:"name,omitempty"`
	Card        *card.Card `json:"card,omitempty"`
	AttackIndex *int       `json:"attackIndex,omitempty"`
	Message     string     `json:"message,omitempty"`
	Text        string     `json:"text,omitempty"`
}

// Outbound 伺服器訊息：{"event": "...", "data": ...}
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// ConnectedPayload 連線建立後告知客戶端自己的身分
type ConnectedPayload struct {
	ParticipantID string `json:"participantId"`
	Name          string `json:"name,omitempty"`
	Guest         bool   `json:"guest"`
}

// GameUpdatePayload 成功出牌的廣播
type GameUpdatePayload struct {
	PlayerID    string    `json:"playerId"`
	Action      string    `json:"action"`
	Card        card.Card `json:"card"`
	AttackIndex *int      `json:"attackIndex,omitempty"`
}

// GameEndedPayload 對局結束
type GameEndedPayload struct {
	SessionID   string       `json:"gameId"`
	Winner      string       `json:"winner"`
	WinnerName  string       `json:"winnerName,omitempty"`
	Reason      string       `json:"reason"`
	WinnerStats *stats.Stats `json:"winnerStats"`
	LoserStats  *stats.Stats `json:"loserStats"`
}

// PlayerDisconnectedPayload 對手斷線
type PlayerDisconnectedPayload struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
}

// ChatPayload 聊天訊息
type ChatPayload struct {
	PlayerName   string `json:"playerName"`
	Message      string `json:"message"`
	IsOwnMessage bool   `json:"isOwnMessage"`
}

// ErrorPayload 只送給發出請求的客戶端
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func encode(event string, data any) ([]byte, error) {
	return json.Marshal(Outbound{Event: event, Data: data})
}
