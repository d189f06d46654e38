// Package protocol 定義客戶端與伺服器之間的 JSON 訊息
//
// 每個訊息都是帶 type 欄位的物件。伺服器一律使用絕對座標，
// 左右鏡像是客戶端的渲染問題。
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/koopa0/neon-pong/internal/game"
)

// Type 訊息類型
type Type string

// 客戶端 → 伺服器
const (
	TypeCreate  Type = "create"
	TypeJoin    Type = "join"
	TypeInput   Type = "input"
	TypeReady   Type = "ready"
	TypeRestart Type = "restart" // 等同 ready
	TypeLeave   Type = "leave"
)

// 伺服器 → 客戶端
const (
	TypeCreated      Type = "created"
	TypeJoined       Type = "joined"
	TypeStart        Type = "start"
	TypeState        Type = "state"
	TypeEvent        Type = "event"
	TypeGameOver     Type = "gameover"
	TypeOpponentLeft Type = "opponent_left"
	TypeError        Type = "error"
	TypeReadyState   Type = "ready"
)

// 解析錯誤
var (
	ErrMalformed   = errors.New("protocol: malformed message")
	ErrMissingType = errors.New("protocol: missing type")
)

// Inbound 客戶端送來的訊息
//
// Y 保留原始 JSON，數字或數字字串都接受。
type Inbound struct {
	Type Type            `json:"type"`
	Code string          `json:"code,omitempty"`
	Y    json.RawMessage `json:"y,omitempty"`
}

// Parse 解析客戶端訊息
func Parse(data []byte) (Inbound, error) {
	var msg Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if msg.Type == "" {
		return Inbound{}, ErrMissingType
	}
	return msg, nil
}

// Target input 訊息的目標位置；缺少、無法解析或非有限值時回傳 false
func (m Inbound) Target() (float64, bool) {
	if len(m.Y) == 0 || string(m.Y) == "null" {
		return 0, false
	}

	var y float64
	if err := json.Unmarshal(m.Y, &y); err != nil {
		var s string
		if err := json.Unmarshal(m.Y, &s); err != nil {
			return 0, false
		}
		y, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false
		}
	}

	if math.IsNaN(y) || math.IsInf(y, 0) {
		return 0, false
	}
	return y, true
}

// Created 房間已建立
type Created struct {
	Type Type   `json:"type"`
	Code string `json:"code"`
}

func NewCreated(code string) Created {
	return Created{Type: TypeCreated, Code: code}
}

// Joined 第二位玩家已加入（兩邊都會收到）
type Joined struct {
	Type Type   `json:"type"`
	Code string `json:"code"`
}

func NewJoined(code string) Joined {
	return Joined{Type: TypeJoined, Code: code}
}

// Start 比賽開始，告知角色與分數上限
type Start struct {
	Type       Type      `json:"type"`
	Role       game.Side `json:"role"`
	ScoreLimit int       `json:"scoreLimit"`
	Code       string    `json:"code"`
}

func NewStart(role game.Side, scoreLimit int, code string) Start {
	return Start{Type: TypeStart, Role: role, ScoreLimit: scoreLimit, Code: code}
}

// Snapshot 每個 tick 廣播的狀態
type Snapshot struct {
	Ball       game.Ball    `json:"ball"`
	Paddles    game.Paddles `json:"paddles"`
	Score      game.Score   `json:"score"`
	ServeTimer float64      `json:"serveTimer"`
}

// State 狀態訊息
type State struct {
	Type  Type     `json:"type"`
	State Snapshot `json:"state"`
}

func NewState(s *game.State) State {
	return State{
		Type: TypeState,
		State: Snapshot{
			Ball:       s.Ball,
			Paddles:    s.Paddles,
			Score:      s.Score,
			ServeTimer: s.ServeTimer,
		},
	}
}

// Event 視覺/音效提示
type Event struct {
	Type  Type    `json:"type"`
	Name  string  `json:"name"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Tint  string  `json:"tint"`
	Count int     `json:"count,omitempty"`
}

func NewEvent(e game.Event) Event {
	return Event{Type: TypeEvent, Name: e.Name, X: e.X, Y: e.Y, Tint: e.Tint, Count: e.Count}
}

// GameOver 比賽結束
type GameOver struct {
	Type   Type      `json:"type"`
	Winner game.Side `json:"winner"`
}

func NewGameOver(winner game.Side) GameOver {
	return GameOver{Type: TypeGameOver, Winner: winner}
}

// OpponentLeft 對手離開
type OpponentLeft struct {
	Type Type `json:"type"`
}

func NewOpponentLeft() OpponentLeft {
	return OpponentLeft{Type: TypeOpponentLeft}
}

// Error 應用層錯誤；連線仍可繼續使用
type Error struct {
	Type    Type   `json:"type"`
	Message string `json:"message"`
}

func NewError(message string) Error {
	return Error{Type: TypeError, Message: message}
}

// ReadyFlags 兩側的再戰準備狀態
type ReadyFlags struct {
	Left  bool `json:"left"`
	Right bool `json:"right"`
}

// ReadyState 再戰準備狀態變更
type ReadyState struct {
	Type  Type       `json:"type"`
	Ready ReadyFlags `json:"ready"`
	From  game.Side  `json:"from"`
}

func NewReadyState(flags ReadyFlags, from game.Side) ReadyState {
	return ReadyState{Type: TypeReadyState, Ready: flags, From: from}
}

// Encode 序列化伺服器訊息
func Encode(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", msg, err)
	}
	return data, nil
}
