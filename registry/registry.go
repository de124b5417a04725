// registry/registry.go
package registry

import (
	"sync"
	"time"

	"github.com/wfunc/swarmserver/logger"
	"github.com/wfunc/swarmserver/models"
	"github.com/wfunc/swarmserver/persistence"
)

// WellKnownName 单例注册表的固定名字
const WellKnownName = "match-registry"

// Registry 匹配注册表单例 actor。维护 roomCode -> entry 映射，
// 外加一个随每次变更增量维护的可发现集合，只在装载时整体重建。
// 所有调用经由邮箱串行执行。
type Registry struct {
	db        persistence.Database
	staleness time.Duration

	mailbox chan func()
	quit    chan struct{}
	stopOne sync.Once

	// 仅在邮箱 goroutine 上访问
	entries map[string]*models.RegistryEntry
	open    map[string]struct{}
	now     func() time.Time
}

// NewRegistry 创建注册表并在处理任何调用之前完成装载
func NewRegistry(db persistence.Database, staleness time.Duration) *Registry {
	g := &Registry{
		db:        db,
		staleness: staleness,
		mailbox:   make(chan func(), 64),
		quit:      make(chan struct{}),
		entries:   make(map[string]*models.RegistryEntry),
		open:      make(map[string]struct{}),
		now:       time.Now,
	}
	g.mailbox <- g.load
	go g.run()
	return g
}

func (g *Registry) run() {
	for {
		select {
		case fn := <-g.mailbox:
			fn()
		case <-g.quit:
			return
		}
	}
}

func (g *Registry) do(fn func()) {
	done := make(chan struct{})
	select {
	case g.mailbox <- func() {
		fn()
		close(done)
	}:
	case <-g.quit:
		return
	}
	select {
	case <-done:
	case <-g.quit:
	}
}

// Stop 停止注册表 goroutine
func (g *Registry) Stop() {
	g.stopOne.Do(func() { close(g.quit) })
}

func (g *Registry) load() {
	rows, err := g.db.LoadRegistryEntries()
	if err != nil {
		logger.Log.Errorf("registry: load failed: %v", err)
		return
	}
	for i := range rows {
		entry := rows[i]
		g.entries[entry.RoomCode] = &entry
		if entry.Open() {
			g.open[entry.RoomCode] = struct{}{}
		}
	}
	logger.Log.Infof("registry: loaded %d entries (%d open)", len(g.entries), len(g.open))
}

// Register 更新或创建一条记录并刷新时间戳
func (g *Registry) Register(roomCode string, playerCount int, status string) error {
	var err error
	g.do(func() {
		entry := &models.RegistryEntry{
			RoomCode:    roomCode,
			PlayerCount: playerCount,
			Status:      status,
			UpdatedAt:   g.now(),
		}
		g.entries[roomCode] = entry
		if entry.Open() {
			g.open[roomCode] = struct{}{}
		} else {
			delete(g.open, roomCode)
		}
		err = g.db.SaveRegistryEntry(entry)
	})
	return err
}

// Unregister 删除记录，记录不存在不算错误
func (g *Registry) Unregister(roomCode string) error {
	var err error
	g.do(func() {
		delete(g.entries, roomCode)
		delete(g.open, roomCode)
		err = g.db.DeleteRegistryEntry(roomCode)
	})
	return err
}

// Find 返回一个可加入的房间码。扫描时顺手剔除孤儿和过期记录，
// 剔除在返回前落盘，因此不需要后台清扫。
func (g *Registry) Find() (string, bool) {
	var found string
	var ok bool
	g.do(func() {
		for code := range g.open {
			entry, exists := g.entries[code]
			if !exists {
				delete(g.open, code)
				continue
			}
			if g.now().Sub(entry.UpdatedAt) > g.staleness {
				delete(g.entries, code)
				delete(g.open, code)
				if err := g.db.DeleteRegistryEntry(code); err != nil {
					logger.Log.Errorf("registry: evict %s: %v", code, err)
				}
				continue
			}
			found = code
			ok = true
			return
		}
	})
	return found, ok
}

// Info 原样返回记录
func (g *Registry) Info(roomCode string) (models.RegistryEntry, bool) {
	var entry models.RegistryEntry
	var ok bool
	g.do(func() {
		if e, exists := g.entries[roomCode]; exists {
			entry = *e
			ok = true
		}
	})
	return entry, ok
}

// --- room.Notifier ---

// NotifyRegister 会话侧的注册通知
func (g *Registry) NotifyRegister(roomCode string, playerCount int, status string) error {
	return g.Register(roomCode, playerCount, status)
}

// NotifyUnregister 会话侧的注销通知
func (g *Registry) NotifyUnregister(roomCode string) error {
	return g.Unregister(roomCode)
}
