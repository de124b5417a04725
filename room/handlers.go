// room/handlers.go
package room

import (
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/swarmserver/logger"
	"github.com/wfunc/swarmserver/models"
	"github.com/wfunc/swarmserver/network"
	"github.com/wfunc/swarmserver/session"
	"github.com/wfunc/swarmserver/sim"
)

// handleMessage 入站消息管线: 解码 → 限流 → 按判别值派发。
// 解码失败只回错误给发送方；未识别的类型静默忽略。
func (r *Room) handleMessage(sess *session.Session, data []byte) {
	if r.state == nil {
		return
	}
	r.ensureSession(sess)

	msg, err := network.DecodeClientMessage(data)
	if err != nil {
		r.sendError(sess, network.ErrCodeInvalidMessage, "unparsable payload")
		return
	}

	r.manager.monitor.IncMessagesReceived()

	ok, notify := sess.Limiter().Allow(time.Now())
	if !ok {
		r.manager.monitor.IncMessagesDropped()
		if notify {
			r.sendError(sess, network.ErrCodeRateLimited, "too many messages")
		}
		return
	}

	switch msg.Kind {
	case network.KindJoin:
		r.handleJoin(sess, msg.Name)
	case network.KindStartSolo:
		r.handleStartSolo(sess)
	case network.KindForfeit:
		r.handleForfeit(sess)
	case network.KindReady:
		r.handleReady(sess)
	case network.KindUnready:
		r.handleUnready(sess)
	case network.KindInput:
		r.handleInput(sess, msg.Held)
	case network.KindMove:
		r.handleMove(sess, msg.Direction)
	case network.KindShoot:
		r.handleShoot(sess)
	case network.KindPing:
		_ = sess.Send(network.NewPong(time.Now().UnixMilli()))
	case network.KindUnknown:
		// 合法的空操作变体
	}
}

func (r *Room) sendError(sess *session.Session, code, message string) {
	if err := sess.Send(network.NewError(code, message)); err != nil {
		logger.Log.Warnf("room %s: error reply to %s failed: %v", r.code, sess.ID, err)
	}
}

func (r *Room) handleJoin(sess *session.Session, rawName interface{}) {
	if sess.Attachment() != nil {
		r.sendError(sess, network.ErrCodeAlreadyJoined, "already joined")
		return
	}
	if r.state.Status == models.StatusCountdown {
		r.sendError(sess, network.ErrCodeCountdownInProgress, "countdown in progress")
		return
	}
	if r.state.PlayerCount() >= r.state.Config.MaxPlayers {
		r.sendError(sess, network.ErrCodeRoomFull, "room is full")
		return
	}

	slot := r.state.LowestFreeSlot(r.state.Config.MaxPlayers)
	player := &models.Player{
		ID:    uuid.New().String(),
		Name:  models.TruncateName(rawName, r.manager.cfg.NameMaxLen),
		Slot:  slot,
		Color: models.ColorForSlot(slot),
		Alive: true,
		Lives: 3,
	}
	r.state.Players[player.ID] = player
	r.state.RecomputeMode()

	// 人数变了，所有人的出生位置按新间距重算
	count := r.state.PlayerCount()
	for _, p := range r.state.Players {
		p.X = models.SpawnX(p.Slot, count, r.state.Config.Width)
	}

	att := &models.SessionAttachment{
		ConnID:   sess.ID,
		RoomCode: r.code,
		PlayerID: player.ID,
	}
	sess.Attach(att)
	if err := r.manager.db.SaveAttachment(att); err != nil {
		logger.Log.Errorf("room %s: save attachment: %v", r.code, err)
	}

	// 加入者收到带自身ID和固定配置的单播，其余人收到事件加全量状态
	cfg := r.state.Config
	_ = sess.Send(network.NewJoinSync(r.state, player.ID, &cfg))
	r.broadcast(network.NewEvent("player_joined", map[string]interface{}{
		"playerId": player.ID,
		"name":     player.Name,
		"slot":     player.Slot,
		"color":    player.Color,
	}))
	r.broadcast(network.NewSync(r.state))

	r.persist()
	r.notifyRegistry()
	logger.Log.Infof("room %s: %s joined as slot %d", r.code, player.Name, slot)
}

func (r *Room) handleStartSolo(sess *session.Session) {
	if sess.PlayerID() == "" || r.state.PlayerCount() != 1 {
		return
	}
	// 先验证转换再改状态，被拒绝的操作不留下任何痕迹
	if !canTransition(r.state.Status, models.StatusStageHold) {
		return
	}
	r.state.Mode = models.ModeSolo
	r.beginRound()
}

func (r *Room) handleForfeit(sess *session.Session) {
	if sess.PlayerID() == "" || !models.ActiveStatus(r.state.Status) {
		return
	}
	r.endRound(sim.ResultDefeat)
}

func (r *Room) handleReady(sess *session.Session) {
	id := sess.PlayerID()
	if id == "" || r.state.IsReady(id) {
		return
	}
	if _, ok := r.state.Players[id]; !ok {
		return
	}
	r.state.AddReady(id)
	r.broadcast(network.NewEvent("player_ready", map[string]interface{}{
		"playerId": id,
	}))
	r.checkStartCondition()
}

func (r *Room) handleUnready(sess *session.Session) {
	id := sess.PlayerID()
	if id == "" || !r.state.IsReady(id) {
		return
	}
	r.state.RemoveReady(id)
	r.broadcast(network.NewEvent("player_unready", map[string]interface{}{
		"playerId": id,
	}))
	if r.state.Status == models.StatusCountdown {
		r.cancelCountdown()
	} else {
		r.persist()
	}
}

func (r *Room) handleInput(sess *session.Session, held *models.InputState) {
	if sess.PlayerID() == "" || held == nil {
		return
	}
	r.pending = append(r.pending, sim.Action{
		Type:     sim.ActionInput,
		PlayerID: sess.PlayerID(),
		Held:     *held,
	})
}

func (r *Room) handleMove(sess *session.Session, direction string) {
	if sess.PlayerID() == "" || direction == "" {
		return
	}
	switch r.state.Status {
	case models.StatusPlaying, models.StatusCountdown:
	default:
		return
	}
	r.pending = append(r.pending, sim.Action{
		Type:      sim.ActionMove,
		PlayerID:  sess.PlayerID(),
		Direction: direction,
	})
}

func (r *Room) handleShoot(sess *session.Session) {
	if sess.PlayerID() == "" || r.state.Status != models.StatusPlaying {
		return
	}
	r.pending = append(r.pending, sim.Action{
		Type:     sim.ActionShoot,
		PlayerID: sess.PlayerID(),
	})
}

// checkStartCondition 人数≥2 且全员准备时开始倒计时
func (r *Room) checkStartCondition() {
	count := r.state.PlayerCount()
	if count < 2 || len(r.state.Ready) != count {
		return
	}
	r.startCountdown()
}

func (r *Room) startCountdown() {
	if !r.transition(models.StatusCountdown) {
		return
	}
	r.state.Countdown = r.manager.cfg.CountdownTicks
	r.persist()
	r.notifyRegistry()
	r.broadcast(network.NewEvent("countdown", map[string]interface{}{
		"count": r.state.Countdown,
	}))
	r.manager.sched.Arm(r.code, r.manager.cfg.CountdownStep)
}

// cancelCountdown 回到等待，取消已安排的唤醒
func (r *Room) cancelCountdown() {
	if !r.transition(models.StatusWaiting) {
		return
	}
	r.state.Countdown = 0
	r.manager.sched.Cancel(r.code)
	r.broadcast(network.NewEvent("countdown_cancelled", nil))
	r.persist()
}

// beginRound 倒计时走完（或单人开局）进入首个停顿阶段。
// 按人数定共享命数，重置计数器，只铺静态掩体，不出敌机。
func (r *Room) beginRound() {
	if !r.transition(models.StatusStageHold) {
		return
	}
	count := r.state.PlayerCount()
	r.state.Lives = 2 + count
	if r.state.Mode == models.ModeSolo {
		r.state.Lives = 3
	}
	r.state.Tick = 0
	r.state.Wave = 1
	r.state.WipeWave = 0
	r.state.Countdown = 0
	r.state.Ready = []string{}
	r.state.WipeTicks = r.state.Config.StageHoldTicks
	r.state.Entities = seedObstacles(r.state.Config)
	r.heartbeatTick = 0

	for _, p := range r.state.Players {
		p.Alive = true
		p.Kills = 0
		p.RespawnAtTick = nil
		p.Input = models.InputState{}
		p.LastShotTick = -int64(r.state.Config.ShotCooldown)
		p.X = models.SpawnX(p.Slot, count, r.state.Config.Width)
	}

	r.persist()
	r.notifyRegistry()
	r.broadcast(network.NewEvent("round_start", map[string]interface{}{
		"mode":  r.state.Mode,
		"lives": r.state.Lives,
	}))
	r.broadcast(network.NewSync(r.state))
	r.manager.sched.Arm(r.code, r.manager.cfg.TickInterval)
}

// endRound 任一活跃阶段或倒计时之外的终局入口
func (r *Room) endRound(result string) {
	if !r.transition(models.StatusGameOver) {
		return
	}
	r.state.Countdown = 0
	r.pending = nil

	r.broadcast(network.NewEvent("game_over", map[string]interface{}{
		"result": result,
	}))

	players := make(map[string]interface{}, len(r.state.Players))
	for id, p := range r.state.Players {
		players[id] = map[string]interface{}{
			"name":  p.Name,
			"slot":  p.Slot,
			"kills": p.Kills,
		}
	}
	record := &models.GameRecord{
		RoomCode:  r.code,
		Mode:      r.state.Mode,
		Wave:      r.state.Wave,
		Result:    result,
		Players:   players,
		CreatedAt: time.Now(),
	}
	if err := r.manager.db.SaveGameRecord(record); err != nil {
		logger.Log.Errorf("room %s: save game record: %v", r.code, err)
	}

	r.persist()
	r.notifyRegistry()
	r.manager.sched.Arm(r.code, r.manager.cfg.TeardownGrace)
	logger.Log.Infof("room %s: round over (%s) at wave %d", r.code, result, r.state.Wave)
}

// seedObstacles 均匀铺设静态掩体
func seedObstacles(cfg models.RoomConfig) []models.Entity {
	entities := make([]models.Entity, 0, cfg.ObstacleCount)
	for i := 0; i < cfg.ObstacleCount; i++ {
		entities = append(entities, models.Entity{
			Kind: models.EntityObstacle,
			ID:   obstacleID(i),
			X:    float64(cfg.Width) * float64(i+1) / float64(cfg.ObstacleCount+1),
			Y:    float64(cfg.Height) - 120,
			HP:   4,
		})
	}
	return entities
}

func obstacleID(i int) string {
	return "ob-" + string(rune('a'+i))
}
