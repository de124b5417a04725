// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	// PostgreSQL 驱动
	_ "github.com/lib/pq"

	"github.com/wfunc/swarmserver/models"
)

// PostgreSQL 不经 ORM 的原生 SQL 实现
type PostgreSQL struct {
	db *sql.DB
}

// NewPostgreSQL 创建 PostgreSQL 数据库连接
func NewPostgreSQL(host string, port int, user, password, dbname string) (*PostgreSQL, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(100)
	db.SetConnMaxLifetime(time.Hour)

	p := &PostgreSQL{db: db}
	if err := p.ensureSchema(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PostgreSQL) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS room_states (
			room_code TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			state JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS registry_entries (
			room_code TEXT PRIMARY KEY,
			player_count INT NOT NULL,
			status TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS attachments (
			conn_id TEXT PRIMARY KEY,
			room_code TEXT NOT NULL,
			player_id TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS game_records (
			id SERIAL PRIMARY KEY,
			room_code TEXT NOT NULL,
			mode TEXT NOT NULL,
			wave INT NOT NULL DEFAULT 0,
			result TEXT NOT NULL,
			players JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := p.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveRoomState 保存房间状态快照
func (p *PostgreSQL) SaveRoomState(roomCode, status string, state []byte) error {
	_, err := p.db.Exec(`
		INSERT INTO room_states (room_code, status, state, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (room_code)
		DO UPDATE SET status = $2, state = $3, updated_at = now()`,
		roomCode, status, state)
	return err
}

// LoadRoomState 加载房间状态快照
func (p *PostgreSQL) LoadRoomState(roomCode string) ([]byte, error) {
	var state []byte
	err := p.db.QueryRow(
		`SELECT state FROM room_states WHERE room_code = $1`, roomCode,
	).Scan(&state)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return state, nil
}

// DeleteRoomState 删除房间行
func (p *PostgreSQL) DeleteRoomState(roomCode string) error {
	_, err := p.db.Exec(`DELETE FROM room_states WHERE room_code = $1`, roomCode)
	return err
}

// SaveRegistryEntry 保存注册表行
func (p *PostgreSQL) SaveRegistryEntry(entry *models.RegistryEntry) error {
	_, err := p.db.Exec(`
		INSERT INTO registry_entries (room_code, player_count, status, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (room_code)
		DO UPDATE SET player_count = $2, status = $3, updated_at = $4`,
		entry.RoomCode, entry.PlayerCount, entry.Status, entry.UpdatedAt)
	return err
}

// LoadRegistryEntries 加载全部注册表行
func (p *PostgreSQL) LoadRegistryEntries() ([]models.RegistryEntry, error) {
	rows, err := p.db.Query(
		`SELECT room_code, player_count, status, updated_at FROM registry_entries`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.RegistryEntry
	for rows.Next() {
		var e models.RegistryEntry
		if err := rows.Scan(&e.RoomCode, &e.PlayerCount, &e.Status, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteRegistryEntry 删除注册表行
func (p *PostgreSQL) DeleteRegistryEntry(roomCode string) error {
	_, err := p.db.Exec(`DELETE FROM registry_entries WHERE room_code = $1`, roomCode)
	return err
}

// SaveAttachment 保存连接身份绑定
func (p *PostgreSQL) SaveAttachment(att *models.SessionAttachment) error {
	_, err := p.db.Exec(`
		INSERT INTO attachments (conn_id, room_code, player_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (conn_id)
		DO UPDATE SET room_code = $2, player_id = $3`,
		att.ConnID, att.RoomCode, att.PlayerID)
	return err
}

// LoadAttachment 按连接加载身份绑定
func (p *PostgreSQL) LoadAttachment(connID string) (*models.SessionAttachment, error) {
	att := &models.SessionAttachment{}
	err := p.db.QueryRow(
		`SELECT conn_id, room_code, player_id FROM attachments WHERE conn_id = $1`, connID,
	).Scan(&att.ConnID, &att.RoomCode, &att.PlayerID)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return att, nil
}

// DeleteAttachment 删除身份绑定
func (p *PostgreSQL) DeleteAttachment(connID string) error {
	_, err := p.db.Exec(`DELETE FROM attachments WHERE conn_id = $1`, connID)
	return err
}

// SaveGameRecord 保存对局存档
func (p *PostgreSQL) SaveGameRecord(record *models.GameRecord) error {
	players, err := json.Marshal(record.Players)
	if err != nil {
		return err
	}
	_, err = p.db.Exec(`
		INSERT INTO game_records (room_code, mode, wave, result, players)
		VALUES ($1, $2, $3, $4, $5)`,
		record.RoomCode, record.Mode, record.Wave, record.Result, players)
	return err
}

// Close 关闭数据库连接
func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
