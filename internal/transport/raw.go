package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/koopa0/neon-pong/internal/frame"
	"github.com/koopa0/neon-pong/internal/room"
)

// ServeRaw 劫持 HTTP 連線，自行完成握手與分幀
//
// 缺少 Sec-WebSocket-Key 的握手直接關閉 socket，不回覆任何內容。
func (hub *Hub) ServeRaw(w http.ResponseWriter, r *http.Request) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "hijacking not supported", http.StatusInternalServerError)
		return
	}

	netConn, rw, err := hj.Hijack()
	if err != nil {
		hub.logger.Error("劫持連線失敗", "error", err)
		return
	}

	key, err := frame.ClientKey(r.Header)
	if err != nil || !hub.checkOrigin(r) {
		hub.metrics.ProtocolError("handshake")
		hub.logger.Warn("拒絕握手", "error", err, "remote", r.RemoteAddr)
		netConn.Close()
		return
	}

	_ = netConn.SetWriteDeadline(time.Now().Add(hub.opts.WriteWait))
	if _, err := netConn.Write(frame.HandshakeResponse(key)); err != nil {
		hub.logger.Warn("寫入握手回應失敗", "error", err)
		netConn.Close()
		return
	}

	c := &rawConn{
		id:      uuid.NewString(),
		netConn: netConn,
		reader:  rw.Reader,
		decoder: frame.NewDecoder(int(hub.opts.MaxMessageSize)),
		send:    make(chan []byte, hub.opts.SendQueue),
		done:    make(chan struct{}),
		hub:     hub,
	}
	c.session = room.NewSession(context.WithoutCancel(r.Context()), c, hub.registry)

	hub.register(c, KindRaw)

	go c.writeLoop()
	go c.readLoop()

	hub.logger.Info("WebSocket 連接建立", "conn_id", c.id, "transport", KindRaw, "remote", r.RemoteAddr)
}

// rawConn 以 internal/frame 實作的連線
//
// send 佇列放的是已編碼的幀，文字訊息與控制幀共用同一個寫入 goroutine。
type rawConn struct {
	id      string
	netConn net.Conn
	reader  *bufio.Reader
	decoder *frame.Decoder
	send    chan []byte
	done    chan struct{}
	hub     *Hub
	session *room.Session

	closeOnce sync.Once
	closeCode uint16
}

func (c *rawConn) ID() string {
	return c.id
}

// Send 編碼成文字幀並放入佇列
func (c *rawConn) Send(msg []byte) bool {
	return c.enqueue(frame.Encode(frame.OpText, msg))
}

func (c *rawConn) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close 以 1000 正常關閉
func (c *rawConn) Close() {
	c.closeWith(1000)
}

func (c *rawConn) closeWith(code uint16) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		close(c.done)
	})
}

// readLoop 讀取 socket 並餵給解碼器
//
// 任何協定錯誤都直接結束連線。
func (c *rawConn) readLoop() {
	defer func() {
		c.session.Close()
		c.hub.unregister(c, KindRaw)
		c.Close()
	}()

	buf := make([]byte, 4096)
	for {
		if err := c.netConn.SetReadDeadline(time.Now().Add(c.hub.opts.PongWait)); err != nil {
			return
		}

		n, err := c.reader.Read(buf)
		if n > 0 {
			msgs, ferr := c.decoder.Feed(buf[:n])
			for _, msg := range msgs {
				switch msg.Opcode {
				case frame.OpText:
					c.session.Handle(msg.Payload)
				case frame.OpPing:
					c.enqueue(frame.Encode(frame.OpPong, msg.Payload))
				case frame.OpClose:
					return
				}
			}
			if ferr != nil {
				c.hub.metrics.ProtocolError("frame")
				c.hub.logger.Warn("協定錯誤，關閉連線", "conn_id", c.id, "error", ferr)
				c.closeWith(1002)
				return
			}
		}

		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				c.hub.logger.Debug("讀取失敗", "conn_id", c.id, "error", err)
			}
			return
		}
	}
}

// writeLoop 寫入佇列中的幀並定時送出 ping
func (c *rawConn) writeLoop() {
	ticker := time.NewTicker(c.hub.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.netConn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			if err := c.write(data); err != nil {
				return
			}
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.write(<-c.send); err != nil {
					return
				}
			}

		case <-ticker.C:
			if err := c.write(frame.Encode(frame.OpPing, nil)); err != nil {
				return
			}

		case <-c.done:
			_ = c.netConn.SetWriteDeadline(time.Now().Add(time.Second))
			_, _ = c.netConn.Write(frame.EncodeClose(c.closeCode, ""))
			return
		}
	}
}

func (c *rawConn) write(data []byte) error {
	if err := c.netConn.SetWriteDeadline(time.Now().Add(c.hub.opts.WriteWait)); err != nil {
		return err
	}
	_, err := c.netConn.Write(data)
	return err
}
