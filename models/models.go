// models/models.go
package models

import (
	"time"
)

// 房间状态枚举
const (
	StatusWaiting     = "waiting"
	StatusCountdown   = "countdown"
	StatusStageHold   = "stage_hold"
	StatusStageReveal = "stage_reveal"
	StatusPlaying     = "playing"
	StatusStageExit   = "stage_exit"
	StatusGameOver    = "game_over"
)

// 游戏模式
const (
	ModeSolo = "solo"
	ModeCoop = "coop"
)

// 实体类型标签
const (
	EntityAlien    = "alien"
	EntityBullet   = "bullet"
	EntityObstacle = "obstacle"
)

// ActiveStatus reports whether the status is one of the in-round phases
// driven by the simulation tick.
func ActiveStatus(status string) bool {
	switch status {
	case StatusStageHold, StatusStageReveal, StatusPlaying, StatusStageExit:
		return true
	}
	return false
}

// InputState 玩家持续输入状态
type InputState struct {
	Left  bool `json:"left"`
	Right bool `json:"right"`
}

// Player 房间内的单个玩家
type Player struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Slot          int        `json:"slot"`
	Color         string     `json:"color"`
	X             float64    `json:"x"`
	Alive         bool       `json:"alive"`
	Lives         int        `json:"lives"`
	RespawnAtTick *int64     `json:"respawnAtTick,omitempty"`
	Kills         int        `json:"kills"`
	Input         InputState `json:"input"`
	LastShotTick  int64      `json:"lastShotTick"`
}

// Entity 是模拟对象的标签变体: kind 区分外形，各字段按 kind 取用。
// 用单一结构体而不是接口，使整个列表能原样通过 jsonb 状态快照往返。
type Entity struct {
	Kind     string  `json:"kind"`
	ID       string  `json:"id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	VX       float64 `json:"vx,omitempty"`
	VY       float64 `json:"vy,omitempty"`
	Row      int     `json:"row,omitempty"`
	Col      int     `json:"col,omitempty"`
	HP       int     `json:"hp,omitempty"`
	OwnerID  string  `json:"ownerId,omitempty"`
	Entering bool    `json:"entering,omitempty"`
}

// RoomConfig 每个房间创建时固定下来的参数，之后不再变化
type RoomConfig struct {
	Width          int `json:"width"`
	Height         int `json:"height"`
	MaxPlayers     int `json:"maxPlayers"`
	AlienRows      int `json:"alienRows"`
	AlienCols      int `json:"alienCols"`
	ShotCooldown   int `json:"shotCooldown"`
	RespawnDelay   int `json:"respawnDelay"`
	ObstacleCount  int `json:"obstacleCount"`
	StageHoldTicks int `json:"stageHoldTicks"`
	StageExitTicks int `json:"stageExitTicks"`
}

// RoomState 房间的权威状态，整体序列化为持久化行
type RoomState struct {
	RoomID    string             `json:"roomId"`
	Status    string             `json:"status"`
	Mode      string             `json:"mode"`
	Tick      int64              `json:"tick"`
	Wave      int                `json:"wave"`
	Lives     int                `json:"lives"`
	Countdown int                `json:"countdown"`
	WipeTicks int                `json:"wipeTicks"`
	WipeWave  int                `json:"wipeWave"`
	Config    RoomConfig         `json:"config"`
	Players   map[string]*Player `json:"players"`
	Ready     []string           `json:"ready"`
	Entities  []Entity           `json:"entities"`
	CreatedAt time.Time          `json:"createdAt"`
}

// PlayerCount 当前玩家数
func (s *RoomState) PlayerCount() int {
	return len(s.Players)
}

// LowestFreeSlot 返回 1..max 中未被占用的最小槽位，满员返回 0
func (s *RoomState) LowestFreeSlot(max int) int {
	for slot := 1; slot <= max; slot++ {
		taken := false
		for _, p := range s.Players {
			if p.Slot == slot {
				taken = true
				break
			}
		}
		if !taken {
			return slot
		}
	}
	return 0
}

// RecomputeMode 按人数重算模式: 1 人 solo，其余 coop
func (s *RoomState) RecomputeMode() {
	if len(s.Players) == 1 {
		s.Mode = ModeSolo
	} else {
		s.Mode = ModeCoop
	}
}

// IsReady 玩家是否在准备列表中
func (s *RoomState) IsReady(playerID string) bool {
	for _, id := range s.Ready {
		if id == playerID {
			return true
		}
	}
	return false
}

// AddReady 追加到准备列表（保持唯一）
func (s *RoomState) AddReady(playerID string) {
	if !s.IsReady(playerID) {
		s.Ready = append(s.Ready, playerID)
	}
}

// RemoveReady 从准备列表移除
func (s *RoomState) RemoveReady(playerID string) {
	out := s.Ready[:0]
	for _, id := range s.Ready {
		if id != playerID {
			out = append(out, id)
		}
	}
	s.Ready = out
}

// EntitiesOfKind 按标签筛选实体
func (s *RoomState) EntitiesOfKind(kind string) []Entity {
	var out []Entity
	for _, e := range s.Entities {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// SpawnX 按槽位和场宽计算出生位置
func SpawnX(slot, playerCount, width int) float64 {
	if playerCount < 1 {
		playerCount = 1
	}
	return float64(width) * float64(slot) / float64(playerCount+1)
}

// 固定 4 色调色板，按槽位取色
var slotColors = [4]string{"#4fc3f7", "#ff8a65", "#aed581", "#ba68c8"}

// ColorForSlot 槽位到颜色的纯映射
func ColorForSlot(slot int) string {
	if slot < 1 || slot > len(slotColors) {
		return slotColors[0]
	}
	return slotColors[slot-1]
}

// RegistryEntry 注册表中的一条可发现房间记录
type RegistryEntry struct {
	RoomCode    string    `json:"roomCode"`
	PlayerCount int       `json:"playerCount"`
	Status      string    `json:"status"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Open 房间可被发现的判定: 等待中且未满员
func (e *RegistryEntry) Open() bool {
	return e.Status == StatusWaiting && e.PlayerCount < 4
}

// SessionAttachment 绑定在连接上的小型持久身份记录，
// 进程重启后仍可按连接恢复
type SessionAttachment struct {
	ConnID   string `json:"connId"`
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
}

// GameRecord 一局结束后的存档记录
type GameRecord struct {
	RoomCode  string                 `json:"roomCode"`
	Mode      string                 `json:"mode"`
	Wave      int                    `json:"wave"`
	Result    string                 `json:"result"`
	Players   map[string]interface{} `json:"players"`
	CreatedAt time.Time              `json:"createdAt"`
}
