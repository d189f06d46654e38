package transport

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/koopa0/neon-pong/internal/frame"
	"github.com/koopa0/neon-pong/internal/metrics"
	"github.com/koopa0/neon-pong/internal/room"
)

// 系統設計問題：
//   每秒 60 次的狀態廣播要送到兩個玩家手上，
//   任何一端網路變慢都不能拖慢房間的 tick。
//
// 核心挑戰：
//   1. 寫入解耦：房間在持有鎖時發送，不能被網路 I/O 阻塞
//   2. 心跳機制：檢測死連接（網絡異常、客戶端崩潰）
//   3. 生命週期：連線結束時必須先解除房間綁定，再釋放資源
//
// 設計方案：
//   ✅ 每條連線一個緩衝 channel + writePump，滿了就丟
//   ✅ Ping/Pong 心跳（54s/60s）
//   ✅ readPump 結束時呼叫 Session.Close，房間在連線銷毀前得知
//   ✅ Hub 只負責追蹤連線，房間歸 Registry 管

// Hub 連接中心：追蹤所有開啟中的連線
type Hub struct {
	registry *room.Registry
	metrics  *metrics.Metrics
	logger   *slog.Logger
	opts     Options
	upgrader websocket.Upgrader

	conns map[string]room.Conn
	mu    sync.RWMutex
}

// NewHub 創建 Hub
func NewHub(registry *room.Registry, m *metrics.Metrics, logger *slog.Logger, opts Options) *Hub {
	opts = opts.withDefaults()

	hub := &Hub{
		registry: registry,
		metrics:  m,
		logger:   logger,
		opts:     opts,
		conns:    make(map[string]room.Conn),
	}
	hub.upgrader = websocket.Upgrader{
		CheckOrigin:     hub.checkOrigin,
		ReadBufferSize:  opts.ReadBufferSize,
		WriteBufferSize: opts.WriteBufferSize,
	}
	return hub
}

// Handler 依名稱取得升級處理器；未知名稱使用 gorilla
func (hub *Hub) Handler(kind string) http.HandlerFunc {
	if kind == KindRaw {
		return hub.ServeRaw
	}
	return hub.ServeWS
}

func (hub *Hub) checkOrigin(r *http.Request) bool {
	if len(hub.opts.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(hub.opts.AllowedOrigins, r.Header.Get("Origin"))
}

// ServeWS 以 gorilla/websocket 處理升級
//
// 缺少 Sec-WebSocket-Key 時與 ServeRaw 一樣直接關閉 socket，不交給 Upgrade 回覆 400。
func (hub *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	if _, err := frame.ClientKey(r.Header); err != nil {
		hub.dropHandshake(w, r, err)
		return
	}

	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 已回覆錯誤狀態碼
		hub.metrics.ProtocolError("handshake")
		hub.logger.Warn("升級 WebSocket 失敗", "error", err, "remote", r.RemoteAddr)
		return
	}
	conn.SetReadLimit(hub.opts.MaxMessageSize)

	c := &Connection{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, hub.opts.SendQueue),
		done: make(chan struct{}),
		hub:  hub,
	}
	// 請求結束後連線仍在使用，不能沿用會被取消的 context
	c.session = room.NewSession(context.WithoutCancel(r.Context()), c, hub.registry)

	hub.register(c, KindGorilla)

	go c.writePump()
	go c.readPump()

	hub.logger.Info("WebSocket 連接建立", "conn_id", c.id, "transport", KindGorilla, "remote", r.RemoteAddr)
}

// dropHandshake 劫持後直接關閉，不寫任何回應
func (hub *Hub) dropHandshake(w http.ResponseWriter, r *http.Request, reason error) {
	hub.metrics.ProtocolError("handshake")
	hub.logger.Warn("拒絕握手", "error", reason, "remote", r.RemoteAddr)

	hj, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "hijacking not supported", http.StatusInternalServerError)
		return
	}
	netConn, _, err := hj.Hijack()
	if err != nil {
		hub.logger.Error("劫持連線失敗", "error", err)
		return
	}
	netConn.Close()
}

// register 註冊連接
func (hub *Hub) register(c room.Conn, kind string) {
	hub.mu.Lock()
	hub.conns[c.ID()] = c
	hub.mu.Unlock()

	hub.metrics.ConnectionOpened(kind)
}

// unregister 取消註冊連接；重複呼叫不做任何事
func (hub *Hub) unregister(c room.Conn, kind string) {
	hub.mu.Lock()
	_, ok := hub.conns[c.ID()]
	delete(hub.conns, c.ID())
	hub.mu.Unlock()

	if ok {
		hub.metrics.ConnectionClosed(kind)
		hub.logger.Info("WebSocket 連接關閉", "conn_id", c.ID(), "transport", kind)
	}
}

// Count 連接數
func (hub *Hub) Count() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.conns)
}

// Stop 關閉所有連接
func (hub *Hub) Stop() {
	hub.mu.RLock()
	conns := make([]room.Conn, 0, len(hub.conns))
	for _, c := range hub.conns {
		conns = append(conns, c)
	}
	hub.mu.RUnlock()

	for _, c := range conns {
		c.Close()
	}

	hub.logger.Info("WebSocket Hub 已停止", "closed", len(conns))
}

// Connection gorilla/websocket 連接
type Connection struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	hub     *Hub
	session *room.Session

	closeOnce sync.Once
}

// ID 連線 ID
func (c *Connection) ID() string {
	return c.id
}

// Send 放入發送佇列；佇列滿或連線已關閉時回傳 false
func (c *Connection) Send(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Close 通知 writePump 送出 close 幀並關閉連線
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// readPump 讀取客戶端消息
//
// 60 秒內沒有收到任何消息（包括 Pong）就關閉連接。
// 結束時先解除房間綁定，對手立即收到 opponent_left。
func (c *Connection) readPump() {
	defer func() {
		c.session.Close()
		c.hub.unregister(c, KindGorilla)
		c.Close()
		c.conn.Close()
	}()

	pongWait := c.hub.opts.PongWait
	c.extendDeadline(pongWait)
	c.conn.SetPongHandler(func(string) error {
		c.extendDeadline(pongWait)
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.metrics.ProtocolError("read")
				c.hub.logger.Warn("WebSocket 讀取錯誤", "conn_id", c.id, "error", err)
			}
			return
		}
		c.extendDeadline(pongWait)

		if messageType == websocket.TextMessage {
			c.session.Handle(message)
		}
	}
}

func (c *Connection) extendDeadline(d time.Duration) {
	if err := c.conn.SetReadDeadline(time.Now().Add(d)); err != nil {
		c.hub.logger.Debug("設置讀取期限失敗", "conn_id", c.id, "error", err)
	}
}

// writePump 寫入消息到客戶端
//
// 定時送出 Ping；佇列中累積的消息一次寫完。
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.hub.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	writeWait := c.hub.opts.WriteWait

	for {
		select {
		case message := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// 批量發送隊列中的消息
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					c.hub.logger.Debug("發送消息失敗", "conn_id", c.id, "error", err)
					return
				}
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			// 嘗試發送關閉消息，忽略錯誤（連接可能已關閉）
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		}
	}
}
