// room/wake.go
package room

import (
	"fmt"
	"time"

	"github.com/wfunc/swarmserver/models"
	"github.com/wfunc/swarmserver/network"
	"github.com/wfunc/swarmserver/sim"
)

// wake 处理一次到期的延迟唤醒。房间从不持有常驻定时器，
// 需要继续推进时在处理末尾重新安排下一次唤醒。
func (r *Room) wake() {
	if r.state == nil {
		r.manager.forget(r.code)
		r.halt()
		return
	}

	if r.state.Status == models.StatusCountdown {
		r.countdownWake()
		return
	}

	if models.ActiveStatus(r.state.Status) {
		r.tickWake()
		return
	}

	// 非活跃阶段: 空房拆除，否则不续约
	if r.state.PlayerCount() == 0 {
		r.teardown()
	}
}

func (r *Room) countdownWake() {
	r.state.Countdown--
	if r.state.Countdown <= 0 {
		r.beginRound()
		return
	}
	r.broadcast(network.NewEvent("countdown", map[string]interface{}{
		"count": r.state.Countdown,
	}))
	r.persist()
	r.manager.sched.Arm(r.code, r.manager.cfg.CountdownStep)
}

// tickWake 一个模拟节拍: 先按到达顺序耗尽缓冲输入，
// 再喂一个 tick 动作，期间对引擎事件做出反应，最后同步全量状态。
func (r *Room) tickWake() {
	start := time.Now()

	actions := r.pending
	r.pending = nil
	for _, a := range actions {
		if !models.ActiveStatus(r.state.Status) {
			break
		}
		r.applyEngine(a)
	}

	if models.ActiveStatus(r.state.Status) {
		r.applyEngine(sim.Action{Type: sim.ActionTick})
	}

	// 即使没有别的变化，也定期向注册表推送心跳
	heartbeat := int64(time.Minute / r.manager.cfg.TickInterval)
	if r.state.Tick-r.heartbeatTick >= heartbeat {
		r.heartbeatTick = r.state.Tick
		r.notifyRegistry()
	}

	r.broadcast(network.NewSync(r.state))
	if models.ActiveStatus(r.state.Status) {
		r.manager.sched.Arm(r.code, r.manager.cfg.TickInterval)
	}

	r.manager.monitor.ObserveTickDuration(time.Since(start))
}

func (r *Room) applyEngine(action sim.Action) {
	result := r.manager.engine.Step(r.state, action)
	for _, ev := range result.Events {
		r.handleEngineEvent(ev)
	}
	if result.Persist {
		r.persist()
	}
}

func (r *Room) handleEngineEvent(ev sim.Event) {
	switch ev.Name {
	case sim.EventWaveComplete:
		r.broadcast(network.NewEvent(ev.Name, ev.Data))
		r.waveClear()
	case sim.EventPhaseChange:
		r.phaseChange(ev)
	case sim.EventGameOver:
		result, _ := ev.Data["result"].(string)
		if result == "" {
			result = sim.ResultDefeat
		}
		r.endRound(result)
	default:
		r.broadcast(network.NewEvent(ev.Name, ev.Data))
	}
}

// waveClear 清场转换: 剥除瞬态实体（弹药、被击落的敌机），
// 静态掩体原样保留，波次推进，进入退场停顿。
func (r *Room) waveClear() {
	if !r.transition(models.StatusStageExit) {
		return
	}
	kept := r.state.Entities[:0]
	for _, ent := range r.state.Entities {
		if ent.Kind == models.EntityObstacle {
			kept = append(kept, ent)
		}
	}
	r.state.Entities = kept
	r.state.Wave++
	r.state.WipeWave = r.state.Wave
	r.state.WipeTicks = r.state.Config.StageExitTicks
	r.persist()
}

// phaseChange 引擎内部倒计时驱动的阶段推进。
// 进入入场阶段这一刻由会话负责布置敌机编队并标记为入场中。
func (r *Room) phaseChange(ev sim.Event) {
	to, _ := ev.Data["to"].(string)
	if !r.transition(to) {
		return
	}
	switch to {
	case models.StatusStageHold:
		r.state.WipeTicks = r.state.Config.StageHoldTicks
	case models.StatusStageReveal:
		r.state.WipeTicks = r.manager.cfg.StageRevealTicks
		r.spawnFormation()
	}
	r.broadcast(network.NewEvent(sim.EventPhaseChange, map[string]interface{}{
		"to": to,
	}))
}

// spawnFormation 按人数定密度生成敌机编队，全部标记为入场中
func (r *Room) spawnFormation() {
	cfg := r.state.Config
	cols := cfg.AlienCols + (r.state.PlayerCount()-1)*2
	if cols < cfg.AlienCols {
		cols = cfg.AlienCols
	}
	for row := 0; row < cfg.AlienRows; row++ {
		for col := 0; col < cols; col++ {
			r.state.Entities = append(r.state.Entities, models.Entity{
				Kind:     models.EntityAlien,
				ID:       fmt.Sprintf("al-w%d-r%dc%d", r.state.Wave, row, col),
				X:        float64(cfg.Width) * float64(col+1) / float64(cols+1),
				Y:        -40,
				Row:      row,
				Col:      col,
				HP:       1,
				Entering: true,
			})
		}
	}
}
