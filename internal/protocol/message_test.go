package protocol_test

import (
	"encoding/json"
	"testing"

	"github.com/koopa0/neon-pong/internal/game"
	"github.com/koopa0/neon-pong/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParse 測試客戶端訊息解析
func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantType protocol.Type
		wantErr  error
	}{
		{"create", `{"type":"create"}`, protocol.TypeCreate, nil},
		{"join", `{"type":"join","code":"abcd"}`, protocol.TypeJoin, nil},
		{"unknown type still parses", `{"type":"dance"}`, protocol.Type("dance"), nil},
		{"not json", `hello`, "", protocol.ErrMalformed},
		{"array", `[1,2]`, "", protocol.ErrMalformed},
		{"missing type", `{"code":"ABCD"}`, "", protocol.ErrMissingType},
		{"null", `null`, "", protocol.ErrMissingType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := protocol.Parse([]byte(tt.input))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, msg.Type)
		})
	}
}

// TestInbound_Target 測試 input 的 y 解析
func TestInbound_Target(t *testing.T) {
	tests := []struct {
		input  string
		want   float64
		wantOK bool
	}{
		{`{"type":"input","y":360}`, 360, true},
		{`{"type":"input","y":-12.5}`, -12.5, true},
		{`{"type":"input","y":"200"}`, 200, true},
		{`{"type":"input","y":"abc"}`, 0, false},
		{`{"type":"input","y":"NaN"}`, 0, false},
		{`{"type":"input","y":"Inf"}`, 0, false},
		{`{"type":"input","y":null}`, 0, false},
		{`{"type":"input","y":true}`, 0, false},
		{`{"type":"input"}`, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			msg, err := protocol.Parse([]byte(tt.input))
			require.NoError(t, err)

			y, ok := msg.Target()
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, y)
		})
	}
}

// TestEncode 伺服器訊息的 JSON 形狀
func TestEncode(t *testing.T) {
	state := game.State{
		Paddles:    game.Paddles{Left: game.Paddle{Y: 100, VY: 2}, Right: game.Paddle{Y: 200}},
		Ball:       game.Ball{X: 1, Y: 2, VX: 3, VY: 4},
		Score:      game.Score{Left: 5, Right: 6},
		ServeTimer: 0.5,
		Winner:     game.Left,
	}

	tests := []struct {
		name string
		msg  any
		want string
	}{
		{"created", protocol.NewCreated("ABCD"), `{"type":"created","code":"ABCD"}`},
		{"joined", protocol.NewJoined("ABCD"), `{"type":"joined","code":"ABCD"}`},
		{
			"start",
			protocol.NewStart(game.Right, 9, "ABCD"),
			`{"type":"start","role":"right","scoreLimit":9,"code":"ABCD"}`,
		},
		{
			"state",
			protocol.NewState(&state),
			`{"type":"state","state":{"ball":{"x":1,"y":2,"vx":3,"vy":4},` +
				`"paddles":{"left":{"y":100,"vy":2},"right":{"y":200,"vy":0}},` +
				`"score":{"left":5,"right":6},"serveTimer":0.5}}`,
		},
		{
			"event",
			protocol.NewEvent(game.Event{Name: "hit", X: 109, Y: 360, Tint: "cyan", Count: 16}),
			`{"type":"event","name":"hit","x":109,"y":360,"tint":"cyan","count":16}`,
		},
		{
			"event without count",
			protocol.NewEvent(game.Event{Name: "wall", X: 1, Y: 10, Tint: "pink"}),
			`{"type":"event","name":"wall","x":1,"y":10,"tint":"pink"}`,
		},
		{"gameover", protocol.NewGameOver(game.Left), `{"type":"gameover","winner":"left"}`},
		{"opponent_left", protocol.NewOpponentLeft(), `{"type":"opponent_left"}`},
		{"error", protocol.NewError("room not found"), `{"type":"error","message":"room not found"}`},
		{
			"ready",
			protocol.NewReadyState(protocol.ReadyFlags{Left: true}, game.Left),
			`{"type":"ready","ready":{"left":true,"right":false},"from":"left"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := protocol.Encode(tt.msg)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}

// TestEncode_Unsupported 無法序列化的值回傳錯誤
func TestEncode_Unsupported(t *testing.T) {
	_, err := protocol.Encode(map[string]any{"ch": make(chan int)})
	assert.Error(t, err)

	var typeErr *json.UnsupportedTypeError
	assert.ErrorAs(t, err, &typeErr)
}
