// Package transport WebSocket 傳輸層
//
// 兩種實作共用同一個 Hub：
//   - gorilla：github.com/gorilla/websocket（預設）
//   - raw：劫持 HTTP 連線後以 internal/frame 自行處理握手與分幀
//
// 兩者都把每則文字訊息交給 room.Session，並以 room.Conn 的身分被房間持有。
package transport

import "time"

// 傳輸實作名稱
const (
	KindGorilla = "gorilla"
	KindRaw     = "raw"
)

// Options 連線參數
type Options struct {
	// PingInterval 伺服器送出 ping 的間隔，必須小於 PongWait
	PingInterval time.Duration
	// PongWait 多久沒收到任何資料（包含 pong）就關閉連線
	PongWait time.Duration
	// WriteWait 單次寫入的期限
	WriteWait time.Duration

	// SendQueue 每條連線的發送佇列長度，滿了就丟棄
	SendQueue int
	// MaxMessageSize 單則訊息上限（位元組）
	MaxMessageSize int64

	ReadBufferSize  int
	WriteBufferSize int

	// AllowedOrigins 允許的 Origin；空白表示全部允許
	AllowedOrigins []string
}

// DefaultOptions 預設參數（54s ping / 60s 超時）
func DefaultOptions() Options {
	return Options{
		PingInterval:    54 * time.Second,
		PongWait:        60 * time.Second,
		WriteWait:       10 * time.Second,
		SendQueue:       256,
		MaxMessageSize:  64 * 1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.PingInterval <= 0 {
		o.PingInterval = d.PingInterval
	}
	if o.PongWait <= 0 {
		o.PongWait = d.PongWait
	}
	if o.WriteWait <= 0 {
		o.WriteWait = d.WriteWait
	}
	if o.SendQueue <= 0 {
		o.SendQueue = d.SendQueue
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = d.MaxMessageSize
	}
	if o.ReadBufferSize <= 0 {
		o.ReadBufferSize = d.ReadBufferSize
	}
	if o.WriteBufferSize <= 0 {
		o.WriteBufferSize = d.WriteBufferSize
	}
	return o
}
