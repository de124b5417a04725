// room/phase.go
package room

import (
	"github.com/wfunc/swarmserver/logger"
	"github.com/wfunc/swarmserver/models"
)

// 阶段转换表。阶段以字符串形式随状态行持久化，
// 驱逐后重建时直接从行里恢复，所以转换作用在数据上而不是状态对象上。
var phaseTransitions = map[string][]string{
	models.StatusWaiting:     {models.StatusCountdown, models.StatusStageHold},
	models.StatusCountdown:   {models.StatusWaiting, models.StatusStageHold},
	models.StatusStageHold:   {models.StatusStageReveal, models.StatusGameOver},
	models.StatusStageReveal: {models.StatusPlaying, models.StatusGameOver},
	models.StatusPlaying:     {models.StatusStageExit, models.StatusGameOver},
	models.StatusStageExit:   {models.StatusStageHold, models.StatusGameOver},
	models.StatusGameOver:    {models.StatusCountdown},
}

func canTransition(from, to string) bool {
	for _, next := range phaseTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// transition 尝试切换阶段，非法转换记日志并保持原状态
func (r *Room) transition(to string) bool {
	from := r.state.Status
	if !canTransition(from, to) {
		logger.Log.Warnf("room %s: illegal transition %s -> %s", r.code, from, to)
		return false
	}
	r.state.Status = to
	return true
}
