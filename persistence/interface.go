// persistence/interface.go
package persistence

import (
	"fmt"

	"github.com/wfunc/swarmserver/models"
)

// Database 数据库接口。房间状态整体序列化存取，
// 注册表与连接绑定按行存取。
type Database interface {
	SaveRoomState(roomCode, status string, state []byte) error
	LoadRoomState(roomCode string) ([]byte, error)
	DeleteRoomState(roomCode string) error

	SaveRegistryEntry(entry *models.RegistryEntry) error
	LoadRegistryEntries() ([]models.RegistryEntry, error)
	DeleteRegistryEntry(roomCode string) error

	SaveAttachment(att *models.SessionAttachment) error
	LoadAttachment(connID string) (*models.SessionAttachment, error)
	DeleteAttachment(connID string) error

	SaveGameRecord(record *models.GameRecord) error

	Close() error
}

// 错误定义
var (
	ErrRecordNotFound = fmt.Errorf("record not found")
)
