package game

// Side 球場的一側，也是玩家的角色
type Side string

const (
	NoSide Side = ""
	Left   Side = "left"
	Right  Side = "right"
)

// Opponent 另一側
func (s Side) Opponent() Side {
	switch s {
	case Left:
		return Right
	case Right:
		return Left
	}
	return NoSide
}

// Valid 是否為 left 或 right
func (s Side) Valid() bool {
	return s == Left || s == Right
}

// Paddle 球拍（只能垂直移動）
type Paddle struct {
	Y  float64 `json:"y"`
	VY float64 `json:"vy"`
}

// Paddles 左右球拍
type Paddles struct {
	Left  Paddle `json:"left"`
	Right Paddle `json:"right"`
}

// Get 取得指定一側的球拍
func (p *Paddles) Get(side Side) *Paddle {
	if side == Right {
		return &p.Right
	}
	return &p.Left
}

// Ball 球
type Ball struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	VX float64 `json:"vx"`
	VY float64 `json:"vy"`
}

// Score 比分
type Score struct {
	Left  int `json:"left"`
	Right int `json:"right"`
}

// Get 取得指定一側的分數
func (s Score) Get(side Side) int {
	if side == Right {
		return s.Right
	}
	return s.Left
}

// State 權威的模擬狀態
//
// 任一時刻恰好成立以下其中之一：
//   - ServeTimer > 0：球停在中央等待發球
//   - Winner 已決定：模擬凍結
//   - 球在自由飛行
type State struct {
	Paddles        Paddles `json:"paddles"`
	Ball           Ball    `json:"ball"`
	Score          Score   `json:"score"`
	ServeTimer     float64 `json:"serveTimer"`
	ServeDirection int     `json:"-"` // +1 往右、-1 往左
	Winner         Side    `json:"-"`
}

// Inputs 兩側最後回報的目標位置
type Inputs struct {
	Left  float64
	Right float64
}

// Get 取得指定一側的目標位置
func (in Inputs) Get(side Side) float64 {
	if side == Right {
		return in.Right
	}
	return in.Left
}

// Set 設定指定一側的目標位置
func (in *Inputs) Set(side Side, y float64) {
	if side == Right {
		in.Right = y
		return
	}
	in.Left = y
}

// CenterInputs 兩側都在垂直中央
func CenterInputs(p Params) Inputs {
	return Inputs{Left: p.Height / 2, Right: p.Height / 2}
}

// Rand 隨機來源；*math/rand/v2.Rand 滿足此介面，測試可以注入固定值
type Rand interface {
	Float64() float64
}

// NewState 新比賽的初始狀態：球拍置中，球在中央等待發球，方向隨機
func NewState(p Params, rng Rand) State {
	dir := -1
	if rng.Float64() > 0.5 {
		dir = 1
	}

	s := State{
		Paddles: Paddles{
			Left:  Paddle{Y: p.Height / 2},
			Right: Paddle{Y: p.Height / 2},
		},
	}
	s.startServe(p, dir)
	return s
}

// Phase 目前所處的階段
func (s *State) Phase() Phase {
	switch {
	case s.Winner != NoSide:
		return PhaseFinished
	case s.ServeTimer > 0:
		return PhaseServing
	default:
		return PhaseInPlay
	}
}

// Phase 模擬階段
type Phase int

const (
	PhaseServing Phase = iota
	PhaseInPlay
	PhaseFinished
)

func (ph Phase) String() string {
	switch ph {
	case PhaseServing:
		return "serving"
	case PhaseInPlay:
		return "in_play"
	case PhaseFinished:
		return "finished"
	}
	return "unknown"
}

func (s *State) startServe(p Params, dir int) {
	s.ServeTimer = p.ServeDelay
	s.ServeDirection = dir
	s.Ball = Ball{X: p.Width / 2, Y: p.Height / 2}
}
