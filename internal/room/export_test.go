package room

import "github.com/koopa0/neon-pong/internal/game"

// TickForTest 以指定 dt 同步執行一次 tick，不經過驅動器
func (r *Room) TickForTest(dt float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stepLocked(dt)
}

// MutateStateForTest 直接修改模擬狀態
func (r *Room) MutateStateForTest(fn func(s *game.State)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.state)
}

// StateForTest 模擬狀態副本
func (r *Room) StateForTest() game.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// InputsForTest 輸入副本
func (r *Room) InputsForTest() game.Inputs {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inputs
}

// DriverActiveForTest 驅動器是否在執行
func (r *Room) DriverActiveForTest() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.driver != nil
}
