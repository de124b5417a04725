// room/manager.go
package room

import (
	"fmt"
	"sync"

	"github.com/wfunc/swarmserver/config"
	"github.com/wfunc/swarmserver/monitor"
	"github.com/wfunc/swarmserver/persistence"
	"github.com/wfunc/swarmserver/scheduler"
	"github.com/wfunc/swarmserver/session"
	"github.com/wfunc/swarmserver/sim"
)

// 错误定义
var (
	ErrAlreadyInitialized = fmt.Errorf("room already initialized")
	ErrRoomNotFound       = fmt.Errorf("room not found")
	ErrInvalidRoom        = fmt.Errorf("invalid_room")
	ErrGameInProgress     = fmt.Errorf("game_in_progress")
	ErrRoomFull           = fmt.Errorf("room_full")
)

// Notifier 会话向注册表的异步通知面。调用尽力而为：
// 失败不回滚会话自身的状态变更。
type Notifier interface {
	NotifyRegister(roomCode string, playerCount int, status string) error
	NotifyUnregister(roomCode string) error
}

// Info 对外查询结果
type Info struct {
	RoomCode    string `json:"roomCode"`
	PlayerCount int    `json:"playerCount"`
	Status      string `json:"status"`
	Wave        int    `json:"wave"`
}

// Manager 按房间码把调用派发到对应的房间 actor。
// actor 可被驱逐出内存，下一次派发（包括唤醒）会从持久化行重建它。
type Manager struct {
	rooms    map[string]*Room
	mutex    sync.Mutex
	db       persistence.Database
	engine   sim.Engine
	cfg      config.GameConfig
	sched    *scheduler.Scheduler
	notifier Notifier
	monitor  *monitor.Monitor
}

// NewManager 创建房间管理器并启动唤醒调度
func NewManager(db persistence.Database, engine sim.Engine, cfg config.GameConfig, notifier Notifier, mon *monitor.Monitor) *Manager {
	m := &Manager{
		rooms:    make(map[string]*Room),
		db:       db,
		engine:   engine,
		cfg:      cfg,
		notifier: notifier,
		monitor:  mon,
	}
	m.sched = scheduler.NewScheduler(m.onWake)
	return m
}

// room 返回房间 actor，不在内存时激活一个。
// 激活闭包最先进入邮箱，任何外部调用都排在装载之后。
func (m *Manager) room(code string) *Room {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if r, ok := m.rooms[code]; ok {
		return r
	}
	r := newRoom(code, m)
	m.rooms[code] = r
	m.monitor.SetActiveRooms(len(m.rooms))
	return r
}

// forget 把房间从内存映射中移除
func (m *Manager) forget(code string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.rooms, code)
	m.monitor.SetActiveRooms(len(m.rooms))
}

// do 在房间 actor 上串行执行 fn。actor 恰好在派发间隙被驱逐时重试。
func (m *Manager) do(code string, fn func(r *Room)) {
	for {
		r := m.room(code)
		if r.do(func() { fn(r) }) {
			return
		}
	}
}

func (m *Manager) onWake(code string) {
	m.do(code, func(r *Room) { r.wake() })
}

// Init 一次性创建房间状态，已存在则返回 ErrAlreadyInitialized
func (m *Manager) Init(code string) error {
	var err error
	m.do(code, func(r *Room) { err = r.init() })
	return err
}

// Info 查询房间概要
func (m *Manager) Info(code string) (Info, error) {
	var info Info
	var err error
	m.do(code, func(r *Room) { info, err = r.info() })
	return info, err
}

// Connect 接入一条连接
func (m *Manager) Connect(code string, sess *session.Session, rejoin bool) error {
	var err error
	m.do(code, func(r *Room) { err = r.connect(sess, rejoin) })
	return err
}

// HandleMessage 处理一条入站消息
func (m *Manager) HandleMessage(code string, sess *session.Session, data []byte) {
	m.do(code, func(r *Room) { r.handleMessage(sess, data) })
}

// Disconnect 处理连接关闭；错误按关闭处理，由调用方传入原因
func (m *Manager) Disconnect(code string, sess *session.Session, reason string) {
	m.do(code, func(r *Room) { r.disconnect(sess, reason) })
}

// Evict 把房间 actor 整体逐出内存。状态行和已安排的唤醒保留，
// 下一次调用或唤醒从行中重建。
func (m *Manager) Evict(code string) {
	m.mutex.Lock()
	r, ok := m.rooms[code]
	if ok {
		delete(m.rooms, code)
	}
	m.monitor.SetActiveRooms(len(m.rooms))
	m.mutex.Unlock()

	if ok {
		r.halt()
	}
}

// Shutdown 停止调度并逐出全部房间
func (m *Manager) Shutdown() {
	m.sched.Stop()
	m.mutex.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for code, r := range m.rooms {
		rooms = append(rooms, r)
		delete(m.rooms, code)
	}
	m.mutex.Unlock()
	for _, r := range rooms {
		r.halt()
	}
}
