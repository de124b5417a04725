// persistence/memory.go
package persistence

import (
	"sync"

	"github.com/wfunc/swarmserver/models"
)

// Memory 纯内存实现，供测试和无数据库的本地运行使用
type Memory struct {
	mu          sync.Mutex
	roomStates  map[string][]byte
	roomStatus  map[string]string
	registry    map[string]models.RegistryEntry
	attachments map[string]models.SessionAttachment
	records     []models.GameRecord
}

// NewMemory 创建内存数据库
func NewMemory() *Memory {
	return &Memory{
		roomStates:  make(map[string][]byte),
		roomStatus:  make(map[string]string),
		registry:    make(map[string]models.RegistryEntry),
		attachments: make(map[string]models.SessionAttachment),
	}
}

func (m *Memory) SaveRoomState(roomCode, status string, state []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(state))
	copy(cp, state)
	m.roomStates[roomCode] = cp
	m.roomStatus[roomCode] = status
	return nil
}

func (m *Memory) LoadRoomState(roomCode string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.roomStates[roomCode]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := make([]byte, len(state))
	copy(cp, state)
	return cp, nil
}

func (m *Memory) DeleteRoomState(roomCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.roomStates, roomCode)
	delete(m.roomStatus, roomCode)
	return nil
}

func (m *Memory) SaveRegistryEntry(entry *models.RegistryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registry[entry.RoomCode] = *entry
	return nil
}

func (m *Memory) LoadRegistryEntries() ([]models.RegistryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := make([]models.RegistryEntry, 0, len(m.registry))
	for _, e := range m.registry {
		entries = append(entries, e)
	}
	return entries, nil
}

func (m *Memory) DeleteRegistryEntry(roomCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.registry, roomCode)
	return nil
}

func (m *Memory) SaveAttachment(att *models.SessionAttachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attachments[att.ConnID] = *att
	return nil
}

func (m *Memory) LoadAttachment(connID string) (*models.SessionAttachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	att, ok := m.attachments[connID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := att
	return &cp, nil
}

func (m *Memory) DeleteAttachment(connID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.attachments, connID)
	return nil
}

func (m *Memory) SaveGameRecord(record *models.GameRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, *record)
	return nil
}

// GameRecords 返回已保存的存档副本，测试用
func (m *Memory) GameRecords() []models.GameRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.GameRecord, len(m.records))
	copy(out, m.records)
	return out
}

// RoomStatus 返回某房间最近持久化的状态名，测试用
func (m *Memory) RoomStatus(roomCode string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.roomStatus[roomCode]
	return s, ok
}

func (m *Memory) Close() error { return nil }
