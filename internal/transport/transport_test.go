package transport_test

import (
	"bufio"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/neon-pong/internal/frame"
	"github.com/koopa0/neon-pong/internal/metrics"
	"github.com/koopa0/neon-pong/internal/room"
	"github.com/koopa0/neon-pong/internal/transport"
	"github.com/koopa0/neon-pong/pkg/logger"
)

type testServer struct {
	*httptest.Server
	registry *room.Registry
	hub      *transport.Hub
}

func newTestServer(t *testing.T, kind string) *testServer {
	t.Helper()

	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)
	log := logger.Discard()

	reg := room.NewRegistry(room.Options{Logger: log, Metrics: m})
	hub := transport.NewHub(reg, m, log, transport.Options{})
	router := transport.NewRouter(hub, reg, transport.RouterOptions{
		Transport: kind,
		Gatherer:  promReg,
		Logger:    log,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		reg.Stop()
		hub.Stop()
	})

	return &testServer{Server: srv, registry: reg, hub: hub}
}

func (s *testServer) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + path
}

func dial(t *testing.T, s *testServer) *websocket.Conn {
	t.Helper()

	conn, resp, err := websocket.DefaultDialer.Dial(s.wsURL("/ws"), nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendJSON(t *testing.T, conn *websocket.Conn, msg string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
}

// readUntil 讀到指定類型的訊息為止（略過中間的 state 等）
func readUntil(t *testing.T, conn *websocket.Conn, typ string) map[string]any {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", typ)

		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))
		if m["type"] == typ {
			return m
		}
	}
}

// TestMatchFlow 兩種傳輸實作的端對端流程：建立、加入、開始、收到 state、斷線
func TestMatchFlow(t *testing.T) {
	for _, kind := range []string{transport.KindGorilla, transport.KindRaw} {
		t.Run(kind, func(t *testing.T) {
			srv := newTestServer(t, kind)

			a := dial(t, srv)
			sendJSON(t, a, `{"type":"create"}`)
			created := readUntil(t, a, "created")
			code := created["code"].(string)
			require.Len(t, code, 4)

			b := dial(t, srv)
			sendJSON(t, b, `{"type":"join","code":"`+strings.ToLower(code)+`"}`)

			assert.Equal(t, code, readUntil(t, a, "joined")["code"])
			assert.Equal(t, "left", readUntil(t, a, "start")["role"])
			assert.Equal(t, code, readUntil(t, b, "joined")["code"])
			assert.Equal(t, "right", readUntil(t, b, "start")["role"])

			state := readUntil(t, b, "state")["state"].(map[string]any)
			assert.Contains(t, state, "ball")
			assert.Contains(t, state, "paddles")
			assert.Contains(t, state, "score")
			assert.Contains(t, state, "serveTimer")

			sendJSON(t, b, `{"type":"input","y":200}`)

			require.NoError(t, b.Close())
			readUntil(t, a, "opponent_left")

			assert.Eventually(t, func() bool { return srv.hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

			require.NoError(t, a.Close())
			assert.Eventually(t, func() bool {
				_, ok := srv.registry.Lookup(code)
				return !ok && srv.hub.Count() == 0
			}, 2*time.Second, 10*time.Millisecond)
		})
	}
}

// TestJoinUnknownRoom 應用層錯誤不會中斷連線
func TestJoinUnknownRoom(t *testing.T) {
	srv := newTestServer(t, transport.KindGorilla)

	c := dial(t, srv)
	sendJSON(t, c, `{"type":"join","code":"ZZZZ"}`)
	assert.Equal(t, "room not found", readUntil(t, c, "error")["message"])

	// 格式錯誤的訊息被丟棄，連線仍可使用
	sendJSON(t, c, `garbage`)
	sendJSON(t, c, `{"type":"create"}`)
	readUntil(t, c, "created")
}

// TestRawHandshake 以 internal/frame 當客戶端：握手回應與遮罩幀
func TestRawHandshake(t *testing.T) {
	srv := newTestServer(t, transport.KindRaw)

	conn, err := net.Dial("tcp", srv.Listener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	const key = "dGhlIHNhbXBsZSBub25jZQ=="
	_, err = io.WriteString(conn, "GET /ws HTTP/1.1\r\n"+
		"Host: localhost\r\n"+
		"Upgrade: websocket\r\n"+
		"Connection: Upgrade\r\n"+
		"Sec-WebSocket-Key: "+key+"\r\n"+
		"Sec-WebSocket-Version: 13\r\n\r\n")
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	reader := bufio.NewReader(conn)
	resp, err := http.ReadResponse(reader, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", resp.Header.Get("Sec-WebSocket-Accept"))

	_, err = conn.Write(frame.EncodeMasked(frame.OpText, []byte(`{"type":"create"}`), [4]byte{1, 2, 3, 4}))
	require.NoError(t, err)

	// ping 也要得到 pong
	_, err = conn.Write(frame.EncodeMasked(frame.OpPing, []byte("hi"), [4]byte{9, 8, 7, 6}))
	require.NoError(t, err)

	dec := frame.NewDecoder(0)
	var (
		gotCreated bool
		buf        = make([]byte, 1024)
		raw        []byte
	)
	for !gotCreated {
		n, err := reader.Read(buf)
		require.NoError(t, err)
		raw = append(raw, buf[:n]...)

		msgs, err := dec.Feed(buf[:n])
		require.NoError(t, err)
		for _, m := range msgs {
			if m.Opcode == frame.OpText && strings.Contains(string(m.Payload), `"created"`) {
				gotCreated = true
			}
		}
	}
	assert.Equal(t, byte(0x80|byte(frame.OpText)), raw[0])
}

// TestMissingKey 缺少金鑰的握手直接關閉 socket，兩種傳輸層都一樣
func TestMissingKey(t *testing.T) {
	for _, kind := range []string{transport.KindGorilla, transport.KindRaw} {
		t.Run(kind, func(t *testing.T) {
			srv := newTestServer(t, kind)

			conn, err := net.Dial("tcp", srv.Listener.Addr().String())
			require.NoError(t, err)
			defer conn.Close()

			_, err = io.WriteString(conn, "GET /ws HTTP/1.1\r\n"+
				"Host: localhost\r\n"+
				"Upgrade: websocket\r\n"+
				"Connection: Upgrade\r\n"+
				"Sec-WebSocket-Version: 13\r\n\r\n")
			require.NoError(t, err)

			require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
			data, err := io.ReadAll(conn)
			assert.NoError(t, err)
			assert.Empty(t, data)
			assert.Zero(t, srv.hub.Count())
		})
	}
}

// TestRawProtocolError 非法 UTF-8 的文字幀關閉連線
func TestRawProtocolError(t *testing.T) {
	srv := newTestServer(t, transport.KindRaw)

	c := dial(t, srv)
	require.Eventually(t, func() bool { return srv.hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte{0xff, 0xfe}))

	require.NoError(t, c.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err := c.ReadMessage()
	require.Error(t, err)
	assert.Eventually(t, func() bool { return srv.hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

// TestStrayUpgrade 其他路徑的升級請求被關閉
func TestStrayUpgrade(t *testing.T) {
	srv := newTestServer(t, transport.KindGorilla)

	_, resp, err := websocket.DefaultDialer.Dial(srv.wsURL("/elsewhere"), nil)
	require.Error(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	assert.Zero(t, srv.hub.Count())
}

// TestHTTPEndpoints 健康檢查、統計與指標
func TestHTTPEndpoints(t *testing.T) {
	srv := newTestServer(t, transport.KindGorilla)

	c := dial(t, srv)
	sendJSON(t, c, `{"type":"create"}`)
	readUntil(t, c, "created")

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var stats map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, float64(1), stats["total_rooms"])
	assert.Equal(t, float64(1), stats["connections"])

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "neon_pong_rooms_created_total 1")
	assert.Contains(t, string(body), `neon_pong_connections_active{transport="gorilla"} 1`)

	resp, err = http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// TestHubStop 關閉所有連線
func TestHubStop(t *testing.T) {
	srv := newTestServer(t, transport.KindGorilla)

	c := dial(t, srv)
	require.Eventually(t, func() bool { return srv.hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	srv.hub.Stop()

	require.NoError(t, c.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err := c.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}
