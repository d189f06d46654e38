package game

import (
	"fmt"
	"math"
)

// Params 模擬參數
//
// 所有長度單位為像素（以 1280×720 的邏輯畫面為基準），時間單位為秒。
// 客戶端只會從 start 訊息得知 ScoreLimit，其餘數值兩端各自寫死，
// 修改時需要同步更新客戶端。
type Params struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`

	PaddleWidth  float64 `yaml:"paddle_width"`
	PaddleHeight float64 `yaml:"paddle_height"`
	PaddleInset  float64 `yaml:"paddle_inset"`  // 球拍中心距離左右邊界
	PaddleMargin float64 `yaml:"paddle_margin"` // 球拍與上下邊界的最小距離
	Smoothing    float64 `yaml:"smoothing"`     // 每個 tick 向目標位置靠近的比例

	BallRadius     float64 `yaml:"ball_radius"`
	BallSpeed      float64 `yaml:"ball_speed"`
	BallMaxSpeed   float64 `yaml:"ball_max_speed"`
	SpeedIncrement float64 `yaml:"speed_increment"`
	Spin           float64 `yaml:"spin"`             // 球拍垂直速度傳遞給球的比例
	MaxBounceAngle float64 `yaml:"max_bounce_angle"` // 打在球拍邊緣時的反彈角（弧度）

	ServeDelay  float64 `yaml:"serve_delay"`
	ServeAngle  float64 `yaml:"serve_angle"`  // 發球角度在 [-ServeAngle, ServeAngle] 均勻取樣
	ScoreMargin float64 `yaml:"score_margin"` // 球超出左右邊界多遠才算得分

	ScoreLimit int `yaml:"score_limit"`
	TickRate   int `yaml:"tick_rate"`

	MaxStep      float64 `yaml:"max_step"`      // 單一 tick 的 dt 上限
	FallbackStep float64 `yaml:"fallback_step"` // dt 異常時使用的值
}

// DefaultParams 預設參數
func DefaultParams() Params {
	return Params{
		Width:          1280,
		Height:         720,
		PaddleWidth:    18,
		PaddleHeight:   130,
		PaddleInset:    88,
		PaddleMargin:   18,
		Smoothing:      0.45,
		BallRadius:     10,
		BallSpeed:      520,
		BallMaxSpeed:   980,
		SpeedIncrement: 35,
		Spin:           0.35,
		MaxBounceAngle: math.Pi / 3,
		ServeDelay:     1.1,
		ServeAngle:     0.4,
		ScoreMargin:    60,
		ScoreLimit:     9,
		TickRate:       60,
		MaxStep:        0.033,
		FallbackStep:   0.016,
	}
}

// Validate 驗證參數
func (p Params) Validate() error {
	switch {
	case p.Width <= 0 || p.Height <= 0:
		return fmt.Errorf("場地尺寸必須為正數: %vx%v", p.Width, p.Height)
	case p.PaddleHeight+2*p.PaddleMargin >= p.Height:
		return fmt.Errorf("球拍高度 %v 超出場地", p.PaddleHeight)
	case p.BallRadius <= 0:
		return fmt.Errorf("球半徑必須為正數: %v", p.BallRadius)
	case p.BallSpeed <= 0 || p.BallMaxSpeed < p.BallSpeed:
		return fmt.Errorf("球速設定無效: speed=%v max=%v", p.BallSpeed, p.BallMaxSpeed)
	case p.Smoothing <= 0 || p.Smoothing > 1:
		return fmt.Errorf("smoothing 必須在 (0, 1] 之間: %v", p.Smoothing)
	case p.ScoreLimit < 1:
		return fmt.Errorf("score_limit 必須至少為 1: %d", p.ScoreLimit)
	case p.TickRate < 1:
		return fmt.Errorf("tick_rate 必須至少為 1: %d", p.TickRate)
	case p.MaxStep <= 0 || p.FallbackStep <= 0:
		return fmt.Errorf("max_step/fallback_step 必須為正數")
	}
	return nil
}

// PaddleMinY 球拍中心的最小 y
func (p Params) PaddleMinY() float64 {
	return p.PaddleHeight/2 + p.PaddleMargin
}

// PaddleMaxY 球拍中心的最大 y
func (p Params) PaddleMaxY() float64 {
	return p.Height - p.PaddleHeight/2 - p.PaddleMargin
}

// ClampPaddle 把目標位置限制在合法範圍內
func (p Params) ClampPaddle(y float64) float64 {
	return clamp(y, p.PaddleMinY(), p.PaddleMaxY())
}

// PaddleX 球拍中心的 x
func (p Params) PaddleX(side Side) float64 {
	if side == Right {
		return p.Width - p.PaddleInset
	}
	return p.PaddleInset
}

// ClampDT 限制單步時間
//
// 排程延遲造成的大 dt 會被截斷為 MaxStep；零、負數、NaN、Inf 一律改用 FallbackStep。
func (p Params) ClampDT(dt float64) float64 {
	if math.IsNaN(dt) || math.IsInf(dt, 0) || dt <= 0 {
		return p.FallbackStep
	}
	return math.Min(dt, p.MaxStep)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
