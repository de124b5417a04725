// sim/swarm.go
package sim

import (
	"fmt"

	"github.com/wfunc/swarmserver/models"
)

const (
	playerSpeed  = 6.0
	moveStep     = 24.0
	bulletSpeed  = 12.0
	alienStepX   = 1.5
	alienStepY   = 0.2
	hitRadius    = 16.0
	revealTicks  = 60
	playerLineY  = 40.0
)

// SwarmEngine 自带的参考引擎实现。会话层只依赖 Engine 接口，
// 部署方可以替换成自己的模拟实现。
type SwarmEngine struct{}

func NewSwarmEngine() *SwarmEngine {
	return &SwarmEngine{}
}

func (e *SwarmEngine) Step(state *models.RoomState, action Action) Result {
	switch action.Type {
	case ActionInput:
		return e.stepInput(state, action)
	case ActionMove:
		return e.stepMove(state, action)
	case ActionShoot:
		return e.stepShoot(state, action)
	case ActionTick:
		return e.stepTick(state)
	}
	return Result{}
}

func (e *SwarmEngine) stepInput(state *models.RoomState, action Action) Result {
	if p, ok := state.Players[action.PlayerID]; ok {
		p.Input = action.Held
	}
	return Result{}
}

func (e *SwarmEngine) stepMove(state *models.RoomState, action Action) Result {
	p, ok := state.Players[action.PlayerID]
	if !ok || !p.Alive {
		return Result{}
	}
	if action.Direction == "left" {
		p.X -= moveStep
	} else {
		p.X += moveStep
	}
	clampX(p, state.Config.Width)
	return Result{}
}

func (e *SwarmEngine) stepShoot(state *models.RoomState, action Action) Result {
	if state.Status != models.StatusPlaying {
		return Result{}
	}
	p, ok := state.Players[action.PlayerID]
	if !ok || !p.Alive {
		return Result{}
	}
	if state.Tick-p.LastShotTick < int64(state.Config.ShotCooldown) {
		return Result{}
	}
	p.LastShotTick = state.Tick
	state.Entities = append(state.Entities, models.Entity{
		Kind:    models.EntityBullet,
		ID:      fmt.Sprintf("b-%s-%d", p.ID, state.Tick),
		X:       p.X,
		Y:       float64(state.Config.Height) - playerLineY,
		VY:      -bulletSpeed,
		OwnerID: p.ID,
	})
	return Result{}
}

func (e *SwarmEngine) stepTick(state *models.RoomState) Result {
	state.Tick++

	switch state.Status {
	case models.StatusStageHold:
		return e.tickWipe(state, models.StatusStageReveal)
	case models.StatusStageExit:
		return e.tickWipe(state, models.StatusStageHold)
	case models.StatusStageReveal:
		return e.tickReveal(state)
	case models.StatusPlaying:
		return e.tickPlaying(state)
	}
	return Result{}
}

// tickWipe 消耗停顿阶段的内部倒计时，归零时请求切换阶段
func (e *SwarmEngine) tickWipe(state *models.RoomState, next string) Result {
	if state.WipeTicks > 0 {
		state.WipeTicks--
	}
	if state.WipeTicks > 0 {
		return Result{}
	}
	return Result{Events: []Event{{
		Name: EventPhaseChange,
		Data: map[string]interface{}{"to": next},
	}}}
}

// tickReveal 入场阶段: 编队从场外降到目标行
func (e *SwarmEngine) tickReveal(state *models.RoomState) Result {
	if state.WipeTicks > 0 {
		state.WipeTicks--
	}
	progress := 1.0 - float64(state.WipeTicks)/float64(revealTicks)
	for i := range state.Entities {
		ent := &state.Entities[i]
		if ent.Kind != models.EntityAlien || !ent.Entering {
			continue
		}
		target := alienRowY(ent.Row)
		ent.Y = -40 + (target+40)*progress
		if state.WipeTicks == 0 {
			ent.Y = target
			ent.Entering = false
		}
	}
	if state.WipeTicks > 0 {
		return Result{}
	}
	return Result{Events: []Event{{
		Name: EventPhaseChange,
		Data: map[string]interface{}{"to": models.StatusPlaying},
	}}}
}

func (e *SwarmEngine) tickPlaying(state *models.RoomState) Result {
	var events []Event
	persist := false

	// 按持续输入移动玩家，处理复活
	for _, p := range state.Players {
		if !p.Alive {
			if p.RespawnAtTick != nil && state.Tick >= *p.RespawnAtTick {
				p.Alive = true
				p.RespawnAtTick = nil
				p.X = float64(state.Config.Width) / 2
			}
			continue
		}
		if p.Input.Left {
			p.X -= playerSpeed
		}
		if p.Input.Right {
			p.X += playerSpeed
		}
		clampX(p, state.Config.Width)
	}

	// 子弹前进，出界移除
	kept := state.Entities[:0]
	for _, ent := range state.Entities {
		if ent.Kind == models.EntityBullet {
			ent.Y += ent.VY
			if ent.Y < 0 {
				continue
			}
		}
		kept = append(kept, ent)
	}
	state.Entities = kept

	// 编队横向往返、缓慢下压
	dir := 1.0
	if (state.Tick/120)%2 == 1 {
		dir = -1.0
	}
	for i := range state.Entities {
		ent := &state.Entities[i]
		if ent.Kind != models.EntityAlien {
			continue
		}
		ent.X += alienStepX * dir
		ent.Y += alienStepY
	}

	// 子弹命中
	events, persist = e.resolveHits(state, events, persist)

	// 编队压到底线判负
	for _, ent := range state.Entities {
		if ent.Kind == models.EntityAlien && ent.Y >= float64(state.Config.Height)-playerLineY {
			return Result{
				Events: append(events, Event{
					Name: EventGameOver,
					Data: map[string]interface{}{"result": ResultDefeat},
				}),
				Persist: true,
			}
		}
	}

	// 清场
	if len(state.EntitiesOfKind(models.EntityAlien)) == 0 {
		events = append(events, Event{Name: EventWaveComplete})
		persist = true
	}

	return Result{Events: events, Persist: persist}
}

func (e *SwarmEngine) resolveHits(state *models.RoomState, events []Event, persist bool) ([]Event, bool) {
	type hit struct{ bullet, alien int }
	var hits []hit
	for bi, b := range state.Entities {
		if b.Kind != models.EntityBullet {
			continue
		}
		for ai, a := range state.Entities {
			if a.Kind != models.EntityAlien || a.Entering {
				continue
			}
			dx, dy := b.X-a.X, b.Y-a.Y
			if dx*dx+dy*dy <= hitRadius*hitRadius {
				hits = append(hits, hit{bullet: bi, alien: ai})
				break
			}
		}
	}
	if len(hits) == 0 {
		return events, persist
	}

	dead := make(map[int]bool)
	for _, h := range hits {
		if dead[h.bullet] || dead[h.alien] {
			continue
		}
		dead[h.bullet] = true
		dead[h.alien] = true
		alien := state.Entities[h.alien]
		if owner, ok := state.Players[state.Entities[h.bullet].OwnerID]; ok {
			owner.Kills++
		}
		events = append(events, Event{
			Name: EventAlienKilled,
			Data: map[string]interface{}{"id": alien.ID},
		})
	}

	kept := state.Entities[:0]
	for i, ent := range state.Entities {
		if !dead[i] {
			kept = append(kept, ent)
		}
	}
	state.Entities = kept
	return events, true
}

func clampX(p *models.Player, width int) {
	if p.X < 0 {
		p.X = 0
	}
	if p.X > float64(width) {
		p.X = float64(width)
	}
}

func alienRowY(row int) float64 {
	return 60 + float64(row)*40
}
