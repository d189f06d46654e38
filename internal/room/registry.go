// Package room 房間註冊表、比賽狀態機與每個連線的訊息分派
package room

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/koopa0/neon-pong/internal/directory"
	"github.com/koopa0/neon-pong/internal/events"
	"github.com/koopa0/neon-pong/internal/game"
	"github.com/koopa0/neon-pong/internal/metrics"
	"github.com/koopa0/neon-pong/internal/protocol"
	apperrors "github.com/koopa0/neon-pong/pkg/errors"
)

// maxCodeAttempts 產生房間碼的重試上限
//
// 32^4 ≈ 一百萬種組合，即使有上萬個房間，連續 16 次碰撞的機率也可以忽略。
const maxCodeAttempts = 16

// Options Registry 設定
type Options struct {
	Params       game.Params
	TickInterval time.Duration // 預設 1s / Params.TickRate

	// KeepaliveInterval 續約房間碼保留的間隔，應小於保留的 TTL
	KeepaliveInterval time.Duration

	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Publisher events.Publisher
	Directory directory.Directory
}

// Registry 房間註冊表：房間碼 → 房間
//
// 是「房間是否存在」的唯一依據。
// 鎖順序：Registry 絕不在持有自己的鎖時呼叫房間的方法，
// 房間也只在釋放自己的鎖之後才呼叫 Remove。
type Registry struct {
	opts      Options
	logger    *slog.Logger
	metrics   *metrics.Metrics
	publisher events.Publisher
	directory directory.Directory

	rooms map[string]*Room
	mu    sync.RWMutex

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRegistry 創建房間註冊表
func NewRegistry(opts Options) *Registry {
	if opts.Params == (game.Params{}) {
		opts.Params = game.DefaultParams()
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second / time.Duration(opts.Params.TickRate)
	}
	if opts.KeepaliveInterval <= 0 {
		opts.KeepaliveInterval = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}
	if opts.Directory == nil {
		opts.Directory = directory.Nop{}
	}

	g := &Registry{
		opts:      opts,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		publisher: opts.Publisher,
		directory: opts.Directory,
		rooms:     make(map[string]*Room),
		stopCh:    make(chan struct{}),
	}

	g.wg.Add(1)
	go g.keepaliveLoop()

	return g
}

// Params 模擬參數
func (g *Registry) Params() game.Params {
	return g.opts.Params
}

// Create 產生未使用的房間碼，建立者綁定在左側
//
// 本機已有或房間目錄保留失敗（其他實例正在使用）時重新產生。
// 房間放進表之前建立者已經綁定並收到 created，表裡不會出現空房間。
func (g *Registry) Create(ctx context.Context, creator Conn) (*Room, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := GenerateCode()
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "internal error")
		}

		g.mu.RLock()
		_, taken := g.rooms[code]
		g.mu.RUnlock()
		if taken {
			continue
		}

		reserved, err := g.directory.Reserve(ctx, code)
		if err != nil {
			g.logger.Error("保留房間碼失敗", "room_code", code, "error", err)
			return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, apperrors.ErrDirectoryUnavailable.Message)
		}
		if !reserved {
			g.logger.Debug("房間碼已被其他實例使用", "room_code", code)
			continue
		}

		g.mu.Lock()
		if _, taken := g.rooms[code]; taken {
			g.mu.Unlock()
			continue
		}
		room := newRoom(code, g)
		room.left = creator
		room.send(creator, protocol.NewCreated(code))
		g.rooms[code] = room
		g.mu.Unlock()

		g.metrics.RoomCreated()
		g.publish(events.Event{Type: events.TypeRoomCreated, RoomCode: code})
		g.logger.Info("房間已創建", "room_code", code, "attempts", attempt+1)

		return room, nil
	}

	return nil, apperrors.New(apperrors.ErrCodeUnavailable, "no room code available").
		WithDetails(fmt.Sprintf("%d attempts", maxCodeAttempts))
}

// Lookup 依房間碼取得房間（不分大小寫）
func (g *Registry) Lookup(code string) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	room, ok := g.rooms[NormalizeCode(code)]
	return room, ok
}

// Remove 移除房間；不存在時不做任何事
func (g *Registry) Remove(code string) {
	g.mu.Lock()
	_, ok := g.rooms[code]
	delete(g.rooms, code)
	g.mu.Unlock()

	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := g.directory.Release(ctx, code); err != nil {
		g.logger.Warn("釋放房間碼失敗", "room_code", code, "error", err)
	}

	g.metrics.RoomClosed()
	g.publish(events.Event{Type: events.TypeRoomClosed, RoomCode: code})
	g.logger.Info("房間已移除", "room_code", code)
}

// Len 房間數
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

// Stats 統計資訊
func (g *Registry) Stats() map[string]any {
	rooms := g.snapshot()

	statusCount := make(map[Status]int)
	totalPlayers := 0
	for _, room := range rooms {
		statusCount[room.Status()]++
		totalPlayers += room.PlayerCount()
	}

	return map[string]any{
		"total_rooms":   len(rooms),
		"total_players": totalPlayers,
		"by_status":     statusCount,
	}
}

// Stop 停止續約並關閉所有房間
func (g *Registry) Stop() {
	g.stopOnce.Do(func() {
		close(g.stopCh)
	})
	g.wg.Wait()

	for _, room := range g.snapshot() {
		room.Shutdown()
		g.Remove(room.Code())
	}

	g.logger.Info("房間註冊表已停止")
}

// snapshot 在鎖內複製房間列表，呼叫端在鎖外操作房間
func (g *Registry) snapshot() []*Room {
	g.mu.RLock()
	defer g.mu.RUnlock()

	rooms := make([]*Room, 0, len(g.rooms))
	for _, room := range g.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// keepaliveLoop 定期續約房間碼保留
func (g *Registry) keepaliveLoop() {
	defer g.wg.Done()

	ticker := time.NewTicker(g.opts.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.Keepalive()
		case <-g.stopCh:
			return
		}
	}
}

// Keepalive 續約所有房間碼（公開方法供測試使用）
func (g *Registry) Keepalive() {
	for _, room := range g.snapshot() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := g.directory.Refresh(ctx, room.Code()); err != nil {
			g.logger.Warn("續約房間碼失敗", "room_code", room.Code(), "error", err)
		}
		cancel()
	}
}

// publish 非同步發佈事件，不阻塞呼叫端（可能持有房間鎖）
func (g *Registry) publish(e events.Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := g.publisher.Publish(ctx, e); err != nil {
			g.logger.Warn("發佈事件失敗", "type", e.Type, "room_code", e.RoomCode, "error", err)
		}
	}()
}
