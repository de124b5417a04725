// persistence/gorm_postgresql.go
package persistence

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wfunc/swarmserver/models"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormPostgreSQL, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	// 配置GORM日志
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// 自动迁移表结构
	if err := autoMigrate(db); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.GormRoomState{},
		&models.GormRegistryEntry{},
		&models.GormAttachment{},
		&models.GormGameRecord{},
	)
}

// SaveRoomState 保存房间状态快照（存在则更新）
func (p *GormPostgreSQL) SaveRoomState(roomCode, status string, state []byte) error {
	var row models.GormRoomState
	result := p.db.Where("room_code = ?", roomCode).First(&row)

	if result.Error == gorm.ErrRecordNotFound {
		row = models.GormRoomState{
			RoomCode: roomCode,
			Status:   status,
			State:    state,
		}
		return p.db.Create(&row).Error
	} else if result.Error != nil {
		return result.Error
	}

	row.Status = status
	row.State = state
	return p.db.Save(&row).Error
}

// LoadRoomState 加载房间状态快照
func (p *GormPostgreSQL) LoadRoomState(roomCode string) ([]byte, error) {
	var row models.GormRoomState
	if err := p.db.Where("room_code = ?", roomCode).First(&row).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return row.State, nil
}

// DeleteRoomState 删除房间行，行不存在不算错误
func (p *GormPostgreSQL) DeleteRoomState(roomCode string) error {
	return p.db.Unscoped().Where("room_code = ?", roomCode).Delete(&models.GormRoomState{}).Error
}

// SaveRegistryEntry 保存注册表行
func (p *GormPostgreSQL) SaveRegistryEntry(entry *models.RegistryEntry) error {
	var row models.GormRegistryEntry
	result := p.db.Where("room_code = ?", entry.RoomCode).First(&row)

	if result.Error == gorm.ErrRecordNotFound {
		row = models.GormRegistryEntry{
			RoomCode:    entry.RoomCode,
			PlayerCount: entry.PlayerCount,
			Status:      entry.Status,
			UpdatedAt:   entry.UpdatedAt,
		}
		return p.db.Create(&row).Error
	} else if result.Error != nil {
		return result.Error
	}

	row.PlayerCount = entry.PlayerCount
	row.Status = entry.Status
	row.UpdatedAt = entry.UpdatedAt
	return p.db.Save(&row).Error
}

// LoadRegistryEntries 加载全部注册表行
func (p *GormPostgreSQL) LoadRegistryEntries() ([]models.RegistryEntry, error) {
	var rows []models.GormRegistryEntry
	if err := p.db.Find(&rows).Error; err != nil {
		return nil, err
	}

	entries := make([]models.RegistryEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, models.RegistryEntry{
			RoomCode:    row.RoomCode,
			PlayerCount: row.PlayerCount,
			Status:      row.Status,
			UpdatedAt:   row.UpdatedAt,
		})
	}
	return entries, nil
}

// DeleteRegistryEntry 删除注册表行
func (p *GormPostgreSQL) DeleteRegistryEntry(roomCode string) error {
	return p.db.Where("room_code = ?", roomCode).Delete(&models.GormRegistryEntry{}).Error
}

// SaveAttachment 保存连接身份绑定
func (p *GormPostgreSQL) SaveAttachment(att *models.SessionAttachment) error {
	var row models.GormAttachment
	result := p.db.Where("conn_id = ?", att.ConnID).First(&row)

	if result.Error == gorm.ErrRecordNotFound {
		row = models.GormAttachment{
			ConnID:   att.ConnID,
			RoomCode: att.RoomCode,
			PlayerID: att.PlayerID,
		}
		return p.db.Create(&row).Error
	} else if result.Error != nil {
		return result.Error
	}

	row.RoomCode = att.RoomCode
	row.PlayerID = att.PlayerID
	return p.db.Save(&row).Error
}

// LoadAttachment 按连接加载身份绑定
func (p *GormPostgreSQL) LoadAttachment(connID string) (*models.SessionAttachment, error) {
	var row models.GormAttachment
	if err := p.db.Where("conn_id = ?", connID).First(&row).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &models.SessionAttachment{
		ConnID:   row.ConnID,
		RoomCode: row.RoomCode,
		PlayerID: row.PlayerID,
	}, nil
}

// DeleteAttachment 删除身份绑定
func (p *GormPostgreSQL) DeleteAttachment(connID string) error {
	return p.db.Unscoped().Where("conn_id = ?", connID).Delete(&models.GormAttachment{}).Error
}

// SaveGameRecord 保存对局存档
func (p *GormPostgreSQL) SaveGameRecord(record *models.GameRecord) error {
	players, err := json.Marshal(record.Players)
	if err != nil {
		return err
	}

	row := models.GormGameRecord{
		RoomCode: record.RoomCode,
		Mode:     record.Mode,
		Wave:     record.Wave,
		Result:   record.Result,
		Players:  players,
	}
	return p.db.Create(&row).Error
}

// Close 关闭数据库连接
func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
