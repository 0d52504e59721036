// Package server 處理 WebSocket 連線與遊戲訊息
package server

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/koopa0/durak/internal/auth"
	"github.com/koopa0/durak/internal/lobby"
	"github.com/koopa0/durak/internal/ratelimit"
	apperrors "github.com/koopa0/durak/pkg/errors"
	"github.com/koopa0/durak/pkg/logger"
)

// 系統設計問題：
//   如何把兩人對局的狀態即時推送給雙方，同時不讓慢的客戶端拖住對局？
//
// 核心挑戰：
//   1. 身分：握手時驗證 JWT，沒有 token 的連線以訪客身分加入
//   2. 單一連線：同一身分只保留一條連線，新連線取代舊連線時舊對局判負
//   3. 心跳機制：檢測死連接（網絡異常、客戶端崩潰）
//   4. 流量控制：每條連線的訊息頻率有上限
//
// 設計方案：
//   ✅ Hub 模式 - map[participantID]*Connection 集中管理
//   ✅ Ping/Pong 心跳 - 54s/60s
//   ✅ 緩衝 channel - Send 非阻塞，緩衝滿就丟棄並記錄
//   ✅ 令牌桶 - 超量的訊息直接丟棄

// 心跳：54s 送 Ping，60s 內沒收到任何東西就斷線
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
	sendBufferSize = 256
)

// Handler 處理連線生命週期與訊息
type Handler interface {
	HandleConnect(ctx context.Context, p lobby.Participant, guest bool)
	HandleMessage(ctx context.Context, p lobby.Participant, raw []byte)
	HandleDisconnect(ctx context.Context, participantID string)
}

// HubConfig 連線層設定
type HubConfig struct {
	// AllowedOrigins 為空時接受所有來源
	AllowedOrigins []string
	// AllowGuests 允許沒有 token 的連線，以隨機 id 作為訪客
	AllowGuests bool
	// MessageBurst、MessageRate 每條連線的訊息令牌桶；0 表示不限制
	MessageBurst int
	MessageRate  float64
}

// Hub WebSocket 連接中心
//
// 以 participant id 索引連線。同一身分建立新連線時舊連線會被關閉，
// 並立即以斷線處理（對局中即判負）；新連線不會接續舊的對局。
type Hub struct {
	handler     Handler
	verifier    *auth.Verifier
	cfg         HubConfig
	logger      *slog.Logger
	upgrader    websocket.Upgrader
	connections map[string]*Connection
	mu          sync.RWMutex
}

// Connection 單一 WebSocket 連接
type Connection struct {
	Participant lobby.Participant
	Guest       bool
	Conn        *websocket.Conn
	Send        chan []byte
	Hub         *Hub
	LastPing    time.Time
	limiter     *ratelimit.Bucket
	mu          sync.Mutex
	closeOnce   sync.Once
}

// NewHub 建立 Hub；handler 可稍後以 Attach 設定
func NewHub(verifier *auth.Verifier, cfg HubConfig, logger *slog.Logger) *Hub {
	hub := &Hub{
		verifier:    verifier,
		cfg:         cfg,
		logger:      logger,
		connections: make(map[string]*Connection),
	}
	hub.upgrader = websocket.Upgrader{
		CheckOrigin:     hub.checkOrigin,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	return hub
}

// Attach 設定訊息處理者，必須在開始接受連線前呼叫
func (hub *Hub) Attach(h Handler) {
	hub.handler = h
}

func (hub *Hub) checkOrigin(r *http.Request) bool {
	if len(hub.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || slices.Contains(hub.cfg.AllowedOrigins, origin)
}

// authenticate 握手時決定連線身分
func (hub *Hub) authenticate(r *http.Request) (lobby.Participant, bool, error) {
	token := auth.BearerToken(r)
	if token == "" {
		if !hub.cfg.AllowGuests {
			return lobby.Participant{}, false, apperrors.ErrMissingToken
		}
		return lobby.Participant{ID: "guest-" + uuid.NewString()}, true, nil
	}

	id, err := hub.verifier.Verify(token)
	if err != nil {
		return lobby.Participant{}, false, err
	}
	return lobby.Participant{ID: id.SubjectID, Name: id.Username}, false, nil
}

// ServeWS 處理 WebSocket 連接
func (hub *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	p, guest, err := hub.authenticate(r)
	if err != nil {
		hub.logger.Debug("WebSocket 驗證失敗", "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}

	c := &Connection{
		Participant: p,
		Guest:       guest,
		Conn:        conn,
		Send:        make(chan []byte, sendBufferSize),
		Hub:         hub,
		LastPing:    time.Now(),
		limiter:     ratelimit.NewBucket(hub.cfg.MessageBurst, hub.cfg.MessageRate),
	}
	replaced := hub.register(c)

	go c.writePump()

	hub.logger.Info("WebSocket 連接建立",
		"participant_id", p.ID,
		"guest", guest)

	if hub.handler != nil {
		// 被取代的舊連線不會再觸發斷線，由這裡代為處理
		if replaced {
			hub.logger.Info("同一身分重複連線，舊連線視為斷線", "participant_id", p.ID)
			hub.handler.HandleDisconnect(c.context(), p.ID)
		}
		// connected 必須是新連線收到的第一個事件
		hub.handler.HandleConnect(c.context(), p, guest)
	}
	go c.readPump()
}

// register 註冊連接並關閉同身分的舊連接，回傳是否取代了舊連接
func (hub *Hub) register(c *Connection) bool {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	old, exists := hub.connections[c.Participant.ID]
	if exists {
		old.closeSend()
		old.Conn.Close()
	}
	hub.connections[c.Participant.ID] = c
	return exists
}

// unregister 取消註冊；回傳 c 是否仍是該身分目前的連接
func (hub *Hub) unregister(c *Connection) bool {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	current, exists := hub.connections[c.Participant.ID]
	if !exists || current != c {
		return false
	}
	delete(hub.connections, c.Participant.ID)
	c.closeSend()
	return true
}

// Send 非阻塞地把訊息放進玩家的發送緩衝區
func (hub *Hub) Send(participantID string, msg []byte) bool {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	c, ok := hub.connections[participantID]
	if !ok {
		return false
	}
	select {
	case c.Send <- msg:
		return true
	default:
		hub.logger.Warn("連接緩衝區滿", "participant_id", participantID)
		return false
	}
}

// ConnectionCount 目前連線數
func (hub *Hub) ConnectionCount() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.connections)
}

// Stop 關閉所有連接
func (hub *Hub) Stop() {
	hub.mu.Lock()
	for _, c := range hub.connections {
		c.closeSend()
		c.Conn.Close()
	}
	hub.connections = make(map[string]*Connection)
	hub.mu.Unlock()

	hub.logger.Info("WebSocket Hub 已停止")
}

func (c *Connection) closeSend() {
	c.closeOnce.Do(func() {
		close(c.Send)
	})
}

func (c *Connection) context() context.Context {
	return logger.WithParticipantID(context.Background(), c.Participant.ID)
}

// readPump 讀取客戶端消息，同一連線的訊息依序交給 handler
func (c *Connection) readPump() {
	ctx := c.context()
	defer func() {
		current := c.Hub.unregister(c)
		c.Conn.Close()
		if current && c.Hub.handler != nil {
			c.Hub.handler.HandleDisconnect(ctx, c.Participant.ID)
		}
		c.Hub.logger.Info("WebSocket 連接關閉",
			"participant_id", c.Participant.ID,
			"replaced", !current)
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	if err := c.Conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.Hub.logger.Error("設置讀取期限失敗", "error", err)
	}
	c.Conn.SetPongHandler(func(string) error {
		if err := c.Conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.Hub.logger.Error("設置讀取期限失敗", "error", err)
		}
		c.mu.Lock()
		c.LastPing = time.Now()
		c.mu.Unlock()
		return nil
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("WebSocket 讀取錯誤",
					"error", err,
					"participant_id", c.Participant.ID)
			}
			return
		}
		if messageType != websocket.TextMessage || c.Hub.handler == nil {
			continue
		}
		if !c.limiter.Allow() {
			c.Hub.logger.Warn("訊息過於頻繁，丟棄", "participant_id", c.Participant.ID)
			continue
		}
		c.Hub.handler.HandleMessage(ctx, c.Participant, message)
	}
}

// writePump 寫入消息並定期送出 Ping
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.Hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if !ok {
				// Hub 關閉了通道
				_ = c.Conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// 把佇列中的訊息一起送出
			n := len(c.Send)
			for i := 0; i < n; i++ {
				if err := c.Conn.WriteMessage(websocket.TextMessage, <-c.Send); err != nil {
					c.Hub.logger.Error("發送消息失敗", "error", err)
					return
				}
			}

		case <-ticker.C:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.Hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
