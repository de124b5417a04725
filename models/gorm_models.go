// models/gorm_models.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// GormRoomState 房间状态行，State 为整个 RoomState 的 jsonb 快照
type GormRoomState struct {
	gorm.Model
	RoomCode string `gorm:"uniqueIndex;not null"`
	Status   string `gorm:"not null"`
	State    []byte `gorm:"type:jsonb;not null"`
}

// GormRegistryEntry 注册表行
type GormRegistryEntry struct {
	ID          uint   `gorm:"primaryKey"`
	RoomCode    string `gorm:"uniqueIndex;not null"`
	PlayerCount int    `gorm:"not null"`
	Status      string `gorm:"not null"`
	UpdatedAt   time.Time
}

// GormAttachment 连接身份绑定行
type GormAttachment struct {
	gorm.Model
	ConnID   string `gorm:"uniqueIndex;not null"`
	RoomCode string `gorm:"index;not null"`
	PlayerID string `gorm:"not null"`
}

// GormGameRecord 对局存档行
type GormGameRecord struct {
	gorm.Model
	RoomCode string `gorm:"index;not null"`
	Mode     string `gorm:"not null"`
	Wave     int    `gorm:"default:0"`
	Result   string `gorm:"not null"`
	Players  []byte `gorm:"type:jsonb"`
}
