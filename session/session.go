// session/session.go
package session

import (
	"sync"
	"time"

	"github.com/wfunc/swarmserver/models"
	"github.com/wfunc/swarmserver/network"
)

// Session 一条持久连接的会话。身份不放在进程内的临时映射里，
// 而是作为 Attachment 挂在会话上并写入存储，宿主进程重建后可恢复。
type Session struct {
	ID         string
	Conn       network.Connection
	RoomCode   string
	CreatedAt  time.Time
	LastActive time.Time

	attachment *models.SessionAttachment
	limiter    *Limiter
	mutex      sync.RWMutex
}

func NewSession(id string, conn network.Connection, limit int, window time.Duration) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		LastActive: now,
		limiter:    NewLimiter(limit, window),
	}
}

// Attach 绑定玩家身份
func (s *Session) Attach(att *models.SessionAttachment) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.attachment = att
}

// Detach 解除身份绑定
func (s *Session) Detach() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.attachment = nil
}

// Attachment 返回绑定的身份记录，未识别连接返回 nil
func (s *Session) Attachment() *models.SessionAttachment {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.attachment
}

// PlayerID 已识别连接的玩家ID，未识别返回空串
func (s *Session) PlayerID() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.attachment == nil {
		return ""
	}
	return s.attachment.PlayerID
}

// Limiter 本连接的限流状态
func (s *Session) Limiter() *Limiter {
	return s.limiter
}

func (s *Session) Send(v interface{}) error {
	s.LastActive = time.Now()
	return s.Conn.SendJSON(v)
}

func (s *Session) GetID() string {
	return s.ID
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

// Session管理器
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}
