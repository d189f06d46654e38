package room

import (
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/koopa0/neon-pong/internal/events"
	"github.com/koopa0/neon-pong/internal/game"
	"github.com/koopa0/neon-pong/internal/protocol"
	apperrors "github.com/koopa0/neon-pong/pkg/errors"
)

// 系統設計問題：
//   一場比賽同時有三個執行緒在碰同一份狀態：兩個玩家的讀取 goroutine 與 tick 驅動器。
//   玩家隨時可能加入、離開、斷線，tick 卻必須準時，而且不能在房間空了之後還在跑。
//
// 核心挑戰：
//   1. 狀態管理：empty → waiting → active → finished → active（再戰）
//   2. 並發控制：輸入、加入、離開與 tick 必須互相序列化
//   3. 計時器生命週期：驅動器只能被取消一次，取消後不能再執行 tick
//   4. 資源回收：兩個位置都空了就從 Registry 移除
//
// 設計方案：
//   ✅ 每個房間一把 Mutex：tick 與訊息處理嚴格序列化
//   ✅ 驅動器世代檢查：tick 拿到鎖後確認自己仍是目前的驅動器，否則直接返回
//   ✅ 發送不阻塞：Conn.Send 滿了就丟，慢客戶端拖不垮房間
//   ✅ 鎖外回收：房間清空後先釋放自己的鎖，再通知 Registry 移除

// Status 房間狀態
//
// 有限狀態機：
//
//	empty → waiting → active → finished
//	          ↑ ↓       ↑________↓ 雙方都準備好
//	         任一方離開
//
// 狀態轉換規則：
//   - empty → waiting：第一位玩家綁定
//   - waiting → active：第二位玩家綁定，比賽開始，驅動器啟動
//   - active → finished：任一方達到分數上限，驅動器停止
//   - finished → active：雙方都送出 ready
//   - active/finished → waiting：任一方離開，驅動器停止
//   - waiting → closed：最後一位玩家離開，從 Registry 移除
type Status string

const (
	StatusEmpty    Status = "empty"    // 剛建立，尚未綁定
	StatusWaiting  Status = "waiting"  // 一個位置有人
	StatusActive   Status = "active"   // 比賽進行中
	StatusFinished Status = "finished" // 已分出勝負，等待再戰
	StatusClosed   Status = "closed"   // 已從 Registry 移除
)

// Room 一場比賽
type Room struct {
	code     string
	registry *Registry
	params   game.Params
	interval time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	left     Conn
	right    Conn
	inputs   game.Inputs
	ready    protocol.ReadyFlags
	state    game.State
	rng      *rand.Rand
	driver   *driver
	lastTick time.Time
	closed   bool
}

// driver 固定頻率的 tick 驅動器
//
// 每次啟動都是新的 driver；房間以指標比對判斷 tick 是否來自目前的驅動器。
type driver struct {
	stop chan struct{}
	once sync.Once
}

func (d *driver) cancel() {
	d.once.Do(func() {
		close(d.stop)
	})
}

func newRoom(code string, reg *Registry) *Room {
	r := &Room{
		code:     code,
		registry: reg,
		params:   reg.opts.Params,
		interval: reg.opts.TickInterval,
		logger:   reg.logger.With("room_code", code),
		inputs:   game.CenterInputs(reg.opts.Params),
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	r.state = game.NewState(r.params, r.rng)
	return r
}

// Code 房間碼
func (r *Room) Code() string {
	return r.code
}

// Status 目前狀態
func (r *Room) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusLocked()
}

func (r *Room) statusLocked() Status {
	switch {
	case r.closed:
		return StatusClosed
	case r.left == nil && r.right == nil:
		return StatusEmpty
	case r.left == nil || r.right == nil:
		return StatusWaiting
	case r.state.Winner != game.NoSide:
		return StatusFinished
	default:
		return StatusActive
	}
}

// PlayerCount 已綁定的位置數
func (r *Room) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	if r.left != nil {
		n++
	}
	if r.right != nil {
		n++
	}
	return n
}

// Join 綁定到空位置（左邊優先）
//
// 綁定後兩邊都有人時：雙方收到 joined，比賽開始。
// 已關閉的房間視為不存在；兩邊都有人時回傳 ErrRoomFull。
func (r *Room) Join(c Conn) (game.Side, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return game.NoSide, apperrors.ErrRoomNotFound
	}
	if side := r.sideOf(c); side != game.NoSide {
		return side, nil
	}

	var side game.Side
	switch {
	case r.left == nil:
		r.left = c
		side = game.Left
	case r.right == nil:
		r.right = c
		side = game.Right
	default:
		return game.NoSide, apperrors.ErrRoomFull
	}

	r.logger.Info("玩家加入房間", "conn_id", c.ID(), "side", side)

	other := r.conn(side.Opponent())
	if other == nil {
		return side, nil
	}

	r.broadcast(protocol.NewJoined(r.code))
	r.startLocked()
	return side, nil
}

// Leave 解除綁定
//
// 冪等：未綁定的連線直接返回。
// 另一邊還有人時通知 opponent_left；驅動器停止，模擬凍結。
// 兩邊都空了就關閉房間並從 Registry 移除。
func (r *Room) Leave(c Conn) {
	r.mu.Lock()

	side := r.sideOf(c)
	if side == game.NoSide {
		r.mu.Unlock()
		return
	}

	if side == game.Left {
		r.left = nil
	} else {
		r.right = nil
	}
	r.ready = protocol.ReadyFlags{}
	r.stopDriverLocked()

	r.logger.Info("玩家離開房間", "conn_id", c.ID(), "side", side)

	empty := r.left == nil && r.right == nil
	if empty {
		r.closed = true
	} else {
		r.broadcast(protocol.NewOpponentLeft())
	}
	r.mu.Unlock()

	// 鎖外通知 Registry，避免房間鎖與 Registry 鎖交錯
	if empty {
		r.registry.Remove(r.code)
	}
}

// Input 記錄目標位置；下一個 tick 才會生效
func (r *Room) Input(c Conn, y float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	side := r.sideOf(c)
	if side == game.NoSide {
		return
	}
	r.inputs.Set(side, r.params.ClampPaddle(y))
}

// Ready 再戰準備
//
// 只在 finished 狀態有效。每次變更都廣播雙方的準備狀態；
// 兩邊都準備好時重新開始比賽。
func (r *Room) Ready(c Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	side := r.sideOf(c)
	if side == game.NoSide {
		return apperrors.ErrNotInRoom
	}
	if r.statusLocked() != StatusFinished {
		return apperrors.ErrMatchNotFinished
	}

	if side == game.Left {
		r.ready.Left = true
	} else {
		r.ready.Right = true
	}
	r.broadcast(protocol.NewReadyState(r.ready, side))

	if r.ready.Left && r.ready.Right {
		r.logger.Info("雙方準備完成，重新開始")
		r.startLocked()
	}
	return nil
}

// Shutdown 伺服器關閉時使用：停止驅動器、解除綁定並關閉雙方連線
func (r *Room) Shutdown() {
	r.mu.Lock()
	r.closed = true
	r.stopDriverLocked()
	conns := []Conn{r.left, r.right}
	r.left, r.right = nil, nil
	r.mu.Unlock()

	for _, c := range conns {
		if c != nil {
			c.Close()
		}
	}
}

// startLocked 重設模擬並啟動驅動器（需要持有鎖，且兩邊都有人）
func (r *Room) startLocked() {
	r.state = game.NewState(r.params, r.rng)
	r.inputs = game.CenterInputs(r.params)
	r.ready = protocol.ReadyFlags{}

	r.send(r.left, protocol.NewStart(game.Left, r.params.ScoreLimit, r.code))
	r.send(r.right, protocol.NewStart(game.Right, r.params.ScoreLimit, r.code))

	r.lastTick = time.Now()
	if r.driver == nil {
		d := &driver{stop: make(chan struct{})}
		r.driver = d
		go r.run(d)
	}

	r.registry.metrics.MatchStarted()
	r.registry.publish(events.Event{Type: events.TypeMatchStarted, RoomCode: r.code})
	r.logger.Info("比賽開始", "score_limit", r.params.ScoreLimit)
}

// stopDriverLocked 取消驅動器（需要持有鎖）
func (r *Room) stopDriverLocked() {
	if r.driver != nil {
		r.driver.cancel()
		r.driver = nil
	}
}

// run 驅動器 goroutine
func (r *Room) run(d *driver) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stop:
			return
		case now := <-ticker.C:
			r.tick(d, now)
		}
	}
}

// tick 執行一次模擬並廣播
func (r *Room) tick(d *driver, now time.Time) {
	start := time.Now()

	r.mu.Lock()
	// 已被取消的驅動器在等鎖期間輸掉了競爭
	if r.driver != d {
		r.mu.Unlock()
		return
	}

	dt := now.Sub(r.lastTick).Seconds()
	r.lastTick = now
	r.stepLocked(dt)
	r.mu.Unlock()

	r.registry.metrics.TickObserved(time.Since(start).Seconds())
}

// stepLocked 推進模擬一步並廣播結果（需要持有鎖）
//
// 廣播順序：事件 → gameover（若本步結束）→ state。
// 結束後驅動器停止，不再有 state。
func (r *Room) stepLocked(dt float64) {
	if r.state.Winner != game.NoSide {
		r.stopDriverLocked()
		return
	}

	res := game.Step(&r.state, r.inputs, dt, r.rng, r.params)

	for _, e := range res.Events {
		r.broadcast(protocol.NewEvent(e))
	}
	if res.Scorer != game.NoSide {
		r.registry.metrics.PointScored(string(res.Scorer))
	}

	if res.Winner != game.NoSide {
		r.broadcast(protocol.NewGameOver(res.Winner))
		r.stopDriverLocked()

		r.registry.metrics.MatchFinished(string(res.Winner))
		r.registry.publish(events.Event{
			Type:     events.TypeMatchFinished,
			RoomCode: r.code,
			Winner:   string(res.Winner),
			Left:     r.state.Score.Left,
			Right:    r.state.Score.Right,
		})
		r.logger.Info("比賽結束",
			"winner", res.Winner,
			"score_left", r.state.Score.Left,
			"score_right", r.state.Score.Right)
	}

	r.broadcast(protocol.NewState(&r.state))
}

func (r *Room) sideOf(c Conn) game.Side {
	switch {
	case c == nil:
		return game.NoSide
	case r.left == c:
		return game.Left
	case r.right == c:
		return game.Right
	}
	return game.NoSide
}

func (r *Room) conn(side game.Side) Conn {
	switch side {
	case game.Left:
		return r.left
	case game.Right:
		return r.right
	}
	return nil
}

// broadcast 編碼一次，送給兩邊（需要持有鎖）
func (r *Room) broadcast(msg any) {
	data, err := protocol.Encode(msg)
	if err != nil {
		r.logger.Error("序列化訊息失敗", "error", err)
		return
	}
	r.deliver(r.left, data)
	r.deliver(r.right, data)
}

// send 單播（需要持有鎖）
func (r *Room) send(c Conn, msg any) {
	if c == nil {
		return
	}
	data, err := protocol.Encode(msg)
	if err != nil {
		r.logger.Error("序列化訊息失敗", "error", err)
		return
	}
	r.deliver(c, data)
}

func (r *Room) deliver(c Conn, data []byte) {
	if c == nil {
		return
	}
	if !c.Send(data) {
		r.registry.metrics.MessageDropped()
		r.logger.Warn("連接緩衝區滿，丟棄訊息", "conn_id", c.ID())
	}
}
