// models/defaults.go
package models

import (
	"time"
	"unicode/utf8"
)

// ApplyDefaults 对加载出来的历史状态做前向兼容补全。
// 旧版本持久化的行可能缺少后来新增的字段，这里逐项补默认值，
// 使任何旧行加载后都满足当前的结构约束。
func ApplyDefaults(s *RoomState, def RoomConfig) {
	if s.Status == "" {
		s.Status = StatusWaiting
	}
	if s.Mode == "" {
		s.Mode = ModeCoop
	}
	if s.Players == nil {
		s.Players = make(map[string]*Player)
	}
	if s.Ready == nil {
		s.Ready = []string{}
	}
	if s.Entities == nil {
		s.Entities = []Entity{}
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}

	applyConfigDefaults(&s.Config, def)

	for id, p := range s.Players {
		if p == nil {
			delete(s.Players, id)
			continue
		}
		if p.ID == "" {
			p.ID = id
		}
		if p.Name == "" {
			p.Name = "Player"
		}
		if p.Color == "" {
			p.Color = ColorForSlot(p.Slot)
		}
		if p.Lives < 0 {
			p.Lives = 0
		}
	}

	// 准备列表只保留仍在场的玩家
	ready := s.Ready[:0]
	for _, id := range s.Ready {
		if _, ok := s.Players[id]; ok {
			ready = append(ready, id)
		}
	}
	s.Ready = ready

	s.RecomputeMode()
	if len(s.Players) == 0 {
		s.Mode = ModeCoop
	}
}

func applyConfigDefaults(c *RoomConfig, def RoomConfig) {
	if c.Width == 0 {
		c.Width = def.Width
	}
	if c.Height == 0 {
		c.Height = def.Height
	}
	if c.MaxPlayers == 0 {
		c.MaxPlayers = def.MaxPlayers
	}
	if c.AlienRows == 0 {
		c.AlienRows = def.AlienRows
	}
	if c.AlienCols == 0 {
		c.AlienCols = def.AlienCols
	}
	if c.ShotCooldown == 0 {
		c.ShotCooldown = def.ShotCooldown
	}
	if c.RespawnDelay == 0 {
		c.RespawnDelay = def.RespawnDelay
	}
	if c.ObstacleCount == 0 {
		c.ObstacleCount = def.ObstacleCount
	}
	if c.StageHoldTicks == 0 {
		c.StageHoldTicks = def.StageHoldTicks
	}
	if c.StageExitTicks == 0 {
		c.StageExitTicks = def.StageExitTicks
	}
}

// DefaultRoomConfig 新房间的默认固定参数
func DefaultRoomConfig(width, height, maxPlayers, holdTicks, exitTicks int) RoomConfig {
	return RoomConfig{
		Width:          width,
		Height:         height,
		MaxPlayers:     maxPlayers,
		AlienRows:      3,
		AlienCols:      8,
		ShotCooldown:   10,
		RespawnDelay:   90,
		ObstacleCount:  4,
		StageHoldTicks: holdTicks,
		StageExitTicks: exitTicks,
	}
}

// TruncateName 名称约束: 非法或缺失取默认名，超长截断。
// 长度按字符数计，截断落在字符边界上。
func TruncateName(raw interface{}, maxLen int) string {
	name, ok := raw.(string)
	if !ok || name == "" {
		return "Player"
	}
	if utf8.RuneCountInString(name) <= maxLen {
		return name
	}
	return string([]rune(name)[:maxLen])
}
