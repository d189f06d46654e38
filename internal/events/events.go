// Package events 發佈房間與比賽的生命週期事件
//
// 系統設計問題：
//   排行榜、監控面板、配對服務想知道「哪裡開了房、誰贏了」，
//   但對戰伺服器不應該等待它們，更不能因為它們掛掉而卡住 tick。
//
// 設計方案：
//   ✅ NATS Core Publish：fire-and-forget，沒有訂閱者時直接丟棄
//   ✅ 發佈在鎖外、非同步進行，失敗只記錄日誌
//   ✅ 未設定 NATS 時使用 Nop
//
// 為何不用 JetStream？
//   這些事件只是通知，不需要持久化與重送；遺失一筆不影響比賽正確性。
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// 事件類型（同時是 subject 的最後一段）
const (
	TypeRoomCreated   = "room.created"
	TypeRoomClosed    = "room.closed"
	TypeMatchStarted  = "match.started"
	TypeMatchFinished = "match.finished"
)

// Event 生命週期事件
type Event struct {
	Type      string    `json:"type"`
	RoomCode  string    `json:"room_code"`
	Instance  string    `json:"instance,omitempty"`
	Winner    string    `json:"winner,omitempty"`
	Left      int       `json:"score_left"`
	Right     int       `json:"score_right"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher 事件發佈者
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close()
}

// Nop 不發佈任何事件
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close()                               {}

// NATS 以 NATS Core 發佈事件
type NATS struct {
	conn     *nats.Conn
	prefix   string
	instance string
}

// Connect 連接 NATS
//
// 與訊息佇列服務相同的連線選項：無限重連、1 秒重連間隔、20 秒心跳。
func Connect(url, prefix, instance string) (*NATS, error) {
	conn, err := nats.Connect(
		url,
		nats.Name("neon-pong"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.PingInterval(20*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("連接 NATS 失敗: %w", err)
	}
	return NewNATS(conn, prefix, instance), nil
}

// NewNATS 使用既有連線
func NewNATS(conn *nats.Conn, prefix, instance string) *NATS {
	if prefix == "" {
		prefix = "pong"
	}
	return &NATS{conn: conn, prefix: prefix, instance: instance}
}

// Subject 事件對應的 subject，例如 pong.match.finished
func (p *NATS) Subject(eventType string) string {
	return p.prefix + "." + eventType
}

// Publish 發佈事件
func (p *NATS) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.Instance == "" {
		e.Instance = p.instance
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("序列化事件失敗: %w", err)
	}

	if err := p.conn.Publish(p.Subject(e.Type), data); err != nil {
		return fmt.Errorf("發佈事件失敗: %w", err)
	}
	return nil
}

// Close 送出緩衝中的訊息後關閉連線
func (p *NATS) Close() {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
