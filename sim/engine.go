// sim/engine.go
package sim

import (
	"github.com/wfunc/swarmserver/models"
)

// ActionType 提交给模拟引擎的动作类型
type ActionType string

const (
	ActionTick  ActionType = "tick"
	ActionInput ActionType = "input"
	ActionMove  ActionType = "move"
	ActionShoot ActionType = "shoot"
)

// Action 一次模拟输入。Tick 动作不带玩家字段。
type Action struct {
	Type      ActionType
	PlayerID  string
	Held      models.InputState
	Direction string
}

// Event 引擎产出的事件，按名字广播给所有连接
type Event struct {
	Name string
	Data map[string]interface{}
}

// 会话层识别并做出反应的事件名
const (
	EventWaveComplete = "wave_complete"
	EventPhaseChange  = "phase_change"
	EventGameOver     = "game_over"
	EventPlayerHit    = "player_hit"
	EventAlienKilled  = "alien_killed"
)

// 对局结果
const (
	ResultVictory = "victory"
	ResultDefeat  = "defeat"
)

// Result 一次 Step 的产出
type Result struct {
	Events  []Event
	Persist bool
}

// Engine 模拟引擎边界: 纯状态转移，(state, action) -> (state', events, persist)。
// 实现必须确定性地原地修改 state，不做任何 IO。
type Engine interface {
	Step(state *models.RoomState, action Action) Result
}
