// Package game 是與網路無關的權威物理模擬
//
// 系統設計問題：
//   兩個延遲各不相同的客戶端要看到同一場比賽，誰說了算？
//
// 設計方案：
//   ✅ 伺服器權威：客戶端只回報球拍目標位置，球與比分只在伺服器計算
//   ✅ 純函數：Step 只依賴傳入的狀態、輸入、dt 與隨機來源，方便單元測試
//   ✅ 球拍指數平滑：每個 tick 固定比例靠近目標，隱藏輸入延遲
//   ✅ dt 截斷：排程抖動不會讓球穿過球拍
//
// 隨機性只出現在發球角度與開局方向；注入相同的隨機值時，
// 反彈、得分與結束條件完全可重現。
package game

import "math"

// 事件名稱與色調
const (
	EventWall  = "wall"
	EventHit   = "hit"
	EventScore = "score"

	TintCyan  = "cyan"
	TintPink  = "pink"
	TintScore = "score"
)

// 客戶端粒子數量提示
const (
	wallParticles  = 10
	hitParticles   = 16
	scoreParticles = 28
)

// Event 一次性的視覺/音效提示，不承載狀態
type Event struct {
	Name  string
	X     float64
	Y     float64
	Tint  string
	Count int
}

// Result 單步的結果
type Result struct {
	Events []Event
	Scorer Side // 本步得分的一方
	Winner Side // 本步決定的勝方；比賽在這一步結束時才會設定
}

// Step 以經過時間 dt 推進一步
//
// 順序：
//  1. 球拍向目標位置平滑移動並限制範圍，vy = Δy/dt
//  2. 發球倒數中：扣除 dt，歸零時從中央發球，這一步不再做其他物理
//  3. 否則積分球的位置
//  4. 上下牆反彈
//  5. 只檢查球正在飛向的那一側球拍
//  6. 出界得分：達到上限則決定勝方，否則往得分方發球
//
// 已有勝方時不做任何事。
func Step(s *State, in Inputs, dt float64, rng Rand, p Params) Result {
	var res Result
	if s.Winner != NoSide {
		return res
	}

	dt = p.ClampDT(dt)

	movePaddle(&s.Paddles.Left, in.Left, dt, p)
	movePaddle(&s.Paddles.Right, in.Right, dt, p)

	if s.ServeTimer > 0 {
		s.ServeTimer -= dt
		if s.ServeTimer <= 0 {
			launch(s, rng, p)
		}
		return res
	}

	b := &s.Ball
	b.X += b.VX * dt
	b.Y += b.VY * dt

	r := p.BallRadius
	if b.Y-r <= 0 {
		b.Y = r
		b.VY = math.Abs(b.VY)
		res.Events = append(res.Events, Event{Name: EventWall, X: b.X, Y: b.Y, Tint: TintCyan, Count: wallParticles})
	} else if b.Y+r >= p.Height {
		b.Y = p.Height - r
		b.VY = -math.Abs(b.VY)
		res.Events = append(res.Events, Event{Name: EventWall, X: b.X, Y: b.Y, Tint: TintPink, Count: wallParticles})
	}

	// 往左飛的球不可能打到右拍
	target := Right
	if b.VX < 0 {
		target = Left
	}
	if collide(s, target, p) {
		tint := TintPink
		if target == Left {
			tint = TintCyan
		}
		res.Events = append(res.Events, Event{Name: EventHit, X: b.X, Y: b.Y, Tint: tint, Count: hitParticles})
	}

	switch {
	case b.X < -p.ScoreMargin:
		award(s, Right, p, &res)
	case b.X > p.Width+p.ScoreMargin:
		award(s, Left, p, &res)
	}

	return res
}

func movePaddle(pad *Paddle, target, dt float64, p Params) {
	prev := pad.Y
	pad.Y = p.ClampPaddle(pad.Y + (target-pad.Y)*p.Smoothing)
	pad.VY = (pad.Y - prev) / dt
}

// launch 從中央發球
func launch(s *State, rng Rand, p Params) {
	angle := -p.ServeAngle + rng.Float64()*2*p.ServeAngle
	s.ServeTimer = 0
	s.Ball = Ball{
		X:  p.Width / 2,
		Y:  p.Height / 2,
		VX: math.Cos(angle) * p.BallSpeed * float64(s.ServeDirection),
		VY: math.Sin(angle) * p.BallSpeed,
	}
}

// collide 球（以外接正方形近似）與球拍的 AABB 重疊檢查
//
// 反彈角與擊中位置相對球拍中心的偏移成線性關係，邊緣為 ±MaxBounceAngle；
// 速度每次增加 SpeedIncrement 直到 BallMaxSpeed；球被推到球拍外側防止穿透。
func collide(s *State, side Side, p Params) bool {
	pad := s.Paddles.Get(side)
	b := &s.Ball
	r := p.BallRadius
	px := p.PaddleX(side)
	halfW, halfH := p.PaddleWidth/2, p.PaddleHeight/2

	if b.X+r < px-halfW || b.X-r > px+halfW || b.Y+r < pad.Y-halfH || b.Y-r > pad.Y+halfH {
		return false
	}

	dir := 1.0
	if side == Right {
		dir = -1
	}

	offset := clamp((b.Y-pad.Y)/halfH, -1, 1)
	angle := offset * p.MaxBounceAngle
	speed := math.Min(p.BallMaxSpeed, math.Hypot(b.VX, b.VY)+p.SpeedIncrement)

	b.VX = math.Cos(angle) * speed * dir
	b.VY = math.Sin(angle)*speed + pad.VY*p.Spin
	b.X = px + (halfW+r+2)*dir
	return true
}

// award 給 scorer 一分
func award(s *State, scorer Side, p Params, res *Result) {
	if scorer == Right {
		s.Score.Right++
	} else {
		s.Score.Left++
	}
	res.Scorer = scorer
	res.Events = append(res.Events, Event{
		Name:  EventScore,
		X:     p.Width / 2,
		Y:     p.Height / 2,
		Tint:  TintScore,
		Count: scoreParticles,
	})

	if s.Score.Get(scorer) >= p.ScoreLimit {
		s.Winner = scorer
		s.ServeTimer = 0
		res.Winner = scorer
		return
	}

	// 往得分方發球
	dir := -1
	if scorer == Right {
		dir = 1
	}
	s.startServe(p, dir)
}
