package room_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/koopa0/neon-pong/internal/events"
	"github.com/koopa0/neon-pong/internal/room"
	"github.com/koopa0/neon-pong/pkg/logger"
)

var connSeq atomic.Int64

// fakeConn 記錄收到的訊息
type fakeConn struct {
	id string

	mu     sync.Mutex
	msgs   [][]byte
	full   bool
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{id: fmt.Sprintf("conn-%d", connSeq.Add(1))}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full || c.closed {
		return false
	}
	c.msgs = append(c.msgs, msg)
	return true
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) setFull(full bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.full = full
}

// messages 取出並清空已收到的訊息
func (c *fakeConn) messages(t *testing.T) []map[string]any {
	t.Helper()

	c.mu.Lock()
	raw := c.msgs
	c.msgs = nil
	c.mu.Unlock()

	out := make([]map[string]any, 0, len(raw))
	for _, data := range raw {
		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))
		out = append(out, m)
	}
	return out
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func types(msgs []map[string]any) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m["type"].(string))
	}
	return out
}

func findType(msgs []map[string]any, typ string) map[string]any {
	for _, m := range msgs {
		if m["type"] == typ {
			return m
		}
	}
	return nil
}

// fakePublisher 記錄發佈的事件
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

func (p *fakePublisher) Close() {}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func (p *fakePublisher) has(typ string) bool {
	for _, t := range p.types() {
		if t == typ {
			return true
		}
	}
	return false
}

// fakeDirectory 可設定拒絕次數與錯誤
type fakeDirectory struct {
	mu        sync.Mutex
	rejects   int
	err       error
	reserved  map[string]bool
	released  []string
	refreshed []string
	attempts  int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{reserved: make(map[string]bool)}
}

func (d *fakeDirectory) Reserve(_ context.Context, code string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts++
	if d.err != nil {
		return false, d.err
	}
	if d.rejects > 0 {
		d.rejects--
		return false, nil
	}
	d.reserved[code] = true
	return true, nil
}

func (d *fakeDirectory) Refresh(_ context.Context, code string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refreshed = append(d.refreshed, code)
	return nil
}

func (d *fakeDirectory) Release(_ context.Context, code string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.reserved, code)
	d.released = append(d.released, code)
	return nil
}

// newTestRegistry 驅動器間隔設為一小時，tick 由測試以 TickForTest 手動推進
func newTestRegistry(t *testing.T, opts room.Options) *room.Registry {
	t.Helper()

	if opts.TickInterval == 0 {
		opts.TickInterval = time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	reg := room.NewRegistry(opts)
	t.Cleanup(reg.Stop)
	return reg
}

type player struct {
	conn    *fakeConn
	session *room.Session
}

func newPlayer(reg *room.Registry) *player {
	c := newFakeConn()
	return &player{conn: c, session: room.NewSession(context.Background(), c, reg)}
}

func (p *player) send(t *testing.T, msg string) {
	t.Helper()
	p.session.Handle([]byte(msg))
}

// startMatch 建立房間並讓第二位玩家加入，回傳房間與雙方（訊息已清空）
func startMatch(t *testing.T, reg *room.Registry) (*room.Room, *player, *player) {
	t.Helper()

	a := newPlayer(reg)
	a.send(t, `{"type":"create"}`)
	created := findType(a.conn.messages(t), "created")
	require.NotNil(t, created)
	code := created["code"].(string)

	b := newPlayer(reg)
	b.send(t, fmt.Sprintf(`{"type":"join","code":%q}`, code))

	r, ok := reg.Lookup(code)
	require.True(t, ok)
	require.Equal(t, room.StatusActive, r.Status())

	a.conn.messages(t)
	b.conn.messages(t)
	return r, a, b
}
