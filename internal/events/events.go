// Package events 發布對局生命週期事件
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Type 事件類型
type Type string

const (
	GameStarted Type = "game.started"
	GameEnded   Type = "game.ended"
)

// Event 對局事件
type Event struct {
	Type       Type      `json:"type"`
	SessionID  string    `json:"sessionId"`
	Players    []string  `json:"players"`
	WinnerID   string    `json:"winnerId,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Publisher 事件發布者
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop 不做任何事（未設定 NATS 時）
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Conn NATSPublisher 需要的連線能力，*nats.Conn 即滿足
type Conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher 以 core NATS publish 發布（只寫入客戶端緩衝，不等待伺服器）
type NATSPublisher struct {
	conn   Conn
	prefix string
	logger *slog.Logger
}

// NewNATSPublisher 使用既有連線
func NewNATSPublisher(conn Conn, prefix string, logger *slog.Logger) *NATSPublisher {
	if prefix == "" {
		prefix = "durak"
	}
	return &NATSPublisher{conn: conn, prefix: prefix, logger: logger}
}

// Connect 連接 NATS Server
//
//   - MaxReconnects(-1)：無限重連
//   - ReconnectWait(1s)：重連間隔
//   - PingInterval(20s)：心跳檢測
func Connect(url, prefix string, logger *slog.Logger) (*NATSPublisher, error) {
	conn, err := nats.Connect(
		url,
		nats.Name("durak-server"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.PingInterval(20*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS 連線中斷", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS 已重新連線", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("連接 NATS 失敗: %w", err)
	}
	return NewNATSPublisher(conn, prefix, logger), nil
}

// Subject 事件對應的主題：<prefix>.<type>
func (p *NATSPublisher) Subject(t Type) string {
	return p.prefix + "." + string(t)
}

func (p *NATSPublisher) Publish(_ context.Context, e Event) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.conn.Publish(p.Subject(e.Type), data); err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	p.logger.Debug("事件已發布", "type", e.Type, "session_id", e.SessionID)
	return nil
}

// Close 送出緩衝中的訊息後關閉連線
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
