// room/room.go
package room

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/wfunc/swarmserver/broadcast"
	"github.com/wfunc/swarmserver/logger"
	"github.com/wfunc/swarmserver/models"
	"github.com/wfunc/swarmserver/network"
	"github.com/wfunc/swarmserver/persistence"
	"github.com/wfunc/swarmserver/session"
	"github.com/wfunc/swarmserver/sim"
)

// Room 是单个房间的 actor。所有入站调用（连接事件、消息、唤醒）
// 经由邮箱在一个 goroutine 上严格串行执行，权威状态不加锁。
// 进程间隙可能整体驱逐，只有持久化行和至多一个已安排的唤醒存活，
// 因此一切控制状态要么入行，要么可从行重推。
type Room struct {
	code    string
	manager *Manager

	mailbox chan func()
	quit    chan struct{}
	stopMu  sync.Mutex
	stopped bool

	// 以下仅在邮箱 goroutine 上访问
	state         *models.RoomState
	sessions      map[string]*session.Session
	pending       []sim.Action
	heartbeatTick int64
}

// newRoom 创建 actor 并把激活闭包放在邮箱最前面。
// 邮箱单消费 FIFO，装载完成前不会处理任何外部调用。
func newRoom(code string, m *Manager) *Room {
	r := &Room{
		code:     code,
		manager:  m,
		mailbox:  make(chan func(), 64),
		quit:     make(chan struct{}),
		sessions: make(map[string]*session.Session),
	}
	r.mailbox <- r.activate
	go r.run()
	return r
}

func (r *Room) run() {
	for {
		select {
		case fn := <-r.mailbox:
			fn()
		case <-r.quit:
			// 已接收的调用仍然各执行一次，然后退出
			for {
				select {
				case fn := <-r.mailbox:
					fn()
				default:
					return
				}
			}
		}
	}
}

// do 投递一个调用并等待其执行完。actor 已停止时返回 false，
// 被接收的调用保证恰好执行一次。
func (r *Room) do(fn func()) bool {
	r.stopMu.Lock()
	if r.stopped {
		r.stopMu.Unlock()
		return false
	}
	done := make(chan struct{})
	r.mailbox <- func() {
		fn()
		close(done)
	}
	r.stopMu.Unlock()
	<-done
	return true
}

// halt 停掉 actor goroutine，不做任何状态清理（驱逐语义）
func (r *Room) halt() {
	r.stopMu.Lock()
	if r.stopped {
		r.stopMu.Unlock()
		return
	}
	r.stopped = true
	r.stopMu.Unlock()
	close(r.quit)
}

// activate 首次激活装载：读持久化行并做前向兼容补全。
// 没有行则保持未初始化。
func (r *Room) activate() {
	data, err := r.manager.db.LoadRoomState(r.code)
	if err == persistence.ErrRecordNotFound {
		return
	}
	if err != nil {
		logger.Log.Errorf("room %s: load failed: %v", r.code, err)
		return
	}

	state := &models.RoomState{}
	if err := json.Unmarshal(data, state); err != nil {
		logger.Log.Errorf("room %s: corrupt state row: %v", r.code, err)
		return
	}
	models.ApplyDefaults(state, r.defaultConfig())
	r.state = state
	logger.Log.Infof("room %s: activated in status %s with %d player(s)",
		r.code, state.Status, state.PlayerCount())
}

func (r *Room) defaultConfig() models.RoomConfig {
	cfg := r.manager.cfg
	return models.DefaultRoomConfig(
		cfg.FieldWidth, cfg.FieldHeight, cfg.MaxPlayers,
		cfg.StageHoldTicks, cfg.StageExitTicks)
}

// init 一次性创建房间状态，第二次调用被拒绝
func (r *Room) init() error {
	if r.state != nil {
		return ErrAlreadyInitialized
	}
	r.state = &models.RoomState{
		RoomID:    r.code,
		Status:    models.StatusWaiting,
		Mode:      models.ModeCoop,
		Config:    r.defaultConfig(),
		Players:   make(map[string]*models.Player),
		Ready:     []string{},
		Entities:  []models.Entity{},
		CreatedAt: time.Now(),
	}
	r.persist()
	r.notifyRegistry()
	logger.Log.Infof("room %s: initialized", r.code)
	return nil
}

func (r *Room) info() (Info, error) {
	if r.state == nil {
		return Info{}, ErrRoomNotFound
	}
	return Info{
		RoomCode:    r.code,
		PlayerCount: r.state.PlayerCount(),
		Status:      r.state.Status,
		Wave:        r.state.Wave,
	}, nil
}

// connect 接受一条连接。未初始化、游戏进行中（无重连标记）、
// 满员分别拒绝。
func (r *Room) connect(sess *session.Session, rejoin bool) error {
	if r.state == nil {
		return ErrInvalidRoom
	}
	if r.state.Status == models.StatusPlaying && !rejoin {
		return ErrGameInProgress
	}
	if r.state.PlayerCount() >= r.state.Config.MaxPlayers {
		return ErrRoomFull
	}

	// 恢复上来的身份绑定若已不对应在场玩家，当场作废
	if att := sess.Attachment(); att != nil {
		if _, ok := r.state.Players[att.PlayerID]; !ok {
			sess.Detach()
			if err := r.manager.db.DeleteAttachment(sess.ID); err != nil {
				logger.Log.Errorf("room %s: delete stale attachment: %v", r.code, err)
			}
		}
	}

	sess.RoomCode = r.code
	r.sessions[sess.ID] = sess
	logger.Log.Infof("room %s: connection %s attached (%d total)",
		r.code, sess.ID, len(r.sessions))
	return nil
}

// ensureSession 把连接补回会话表。actor 被驱逐重建后，存活连接
// 凭自身携带的身份继续工作，不依赖进程内的旧映射。
func (r *Room) ensureSession(sess *session.Session) {
	if _, ok := r.sessions[sess.ID]; !ok {
		r.sessions[sess.ID] = sess
	}
}

// disconnect 关闭与出错走同一条路径，reason 仅用于日志
func (r *Room) disconnect(sess *session.Session, reason string) {
	delete(r.sessions, sess.ID)

	// 拆除后连接关闭会再派发到这里并重建出无状态 actor，
	// 没有行可装载的空 actor 立即退场，不留在内存映射里
	if r.state == nil {
		if len(r.sessions) == 0 {
			r.manager.forget(r.code)
			r.halt()
		}
		return
	}

	att := sess.Attachment()
	if att == nil {
		return
	}
	player, ok := r.state.Players[att.PlayerID]
	if !ok {
		return
	}

	logger.Log.Infof("room %s: player %s left (%s)", r.code, player.ID, reason)

	delete(r.state.Players, player.ID)
	r.state.RemoveReady(player.ID)
	sess.Detach()
	if err := r.manager.db.DeleteAttachment(sess.ID); err != nil {
		logger.Log.Errorf("room %s: delete attachment: %v", r.code, err)
	}

	if r.state.Status == models.StatusCountdown {
		r.cancelCountdown()
	}
	if r.state.PlayerCount() == 1 {
		r.state.RecomputeMode()
	}

	if r.state.PlayerCount() == 0 {
		if models.ActiveStatus(r.state.Status) {
			r.endRound(sim.ResultDefeat)
		} else {
			r.manager.sched.Arm(r.code, r.manager.cfg.TeardownGrace)
		}
	}

	r.broadcast(network.NewEvent("player_left", map[string]interface{}{
		"playerId": player.ID,
		"slot":     player.Slot,
	}))
	r.persist()
	r.notifyRegistry()
}

// broadcast 向所有已接入连接扇出，失败互相隔离
func (r *Room) broadcast(v interface{}) {
	targets := make([]broadcast.Sender, 0, len(r.sessions))
	for _, sess := range r.sessions {
		targets = append(targets, sess)
	}
	broadcast.Fanout(targets, v)
}

// persist 把整个状态序列化写入存储。写失败对触发调用视为失败，
// 这里不做重试。
func (r *Room) persist() {
	if r.state == nil {
		return
	}
	data, err := json.Marshal(r.state)
	if err != nil {
		logger.Log.Errorf("room %s: marshal state: %v", r.code, err)
		return
	}
	if err := r.manager.db.SaveRoomState(r.code, r.state.Status, data); err != nil {
		logger.Log.Errorf("room %s: persist failed: %v", r.code, err)
	}
}

// notifyRegistry 尽力而为地向注册表推送概要，失败不回滚会话状态
func (r *Room) notifyRegistry() {
	if r.state == nil {
		return
	}
	err := r.manager.notifier.NotifyRegister(r.code, r.state.PlayerCount(), r.state.Status)
	if err != nil {
		logger.Log.Warnf("room %s: registry notify failed: %v", r.code, err)
	}
}

// teardown 注销、取消唤醒、删行、清空内存，房间码即可复用
func (r *Room) teardown() {
	logger.Log.Infof("room %s: tearing down", r.code)
	if err := r.manager.notifier.NotifyUnregister(r.code); err != nil {
		logger.Log.Warnf("room %s: registry unregister failed: %v", r.code, err)
	}
	r.manager.sched.Cancel(r.code)
	if err := r.manager.db.DeleteRoomState(r.code); err != nil {
		logger.Log.Errorf("room %s: delete state row: %v", r.code, err)
	}
	r.state = nil
	r.pending = nil
	for _, sess := range r.sessions {
		_ = sess.Close()
	}
	r.sessions = make(map[string]*session.Session)
	r.manager.forget(r.code)
	r.halt()
}
