// network/protocol.go
package network

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/wfunc/swarmserver/models"
)

// 入站消息类型
const (
	KindJoin      = "join"
	KindStartSolo = "start_solo"
	KindForfeit   = "forfeit"
	KindReady     = "ready"
	KindUnready   = "unready"
	KindInput     = "input"
	KindMove      = "move"
	KindShoot     = "shoot"
	KindPing      = "ping"

	// KindUnknown 未识别的消息类型，作为合法的空操作变体处理
	KindUnknown = "unknown"
)

// 错误码
const (
	ErrCodeInvalidMessage      = "invalid_message"
	ErrCodeRateLimited         = "rate_limited"
	ErrCodeAlreadyJoined       = "already_joined"
	ErrCodeCountdownInProgress = "countdown_in_progress"
	ErrCodeRoomFull            = "room_full"
	ErrCodeGameInProgress      = "game_in_progress"
	ErrCodeInvalidRoom         = "invalid_room"
)

// ErrMalformed 载荷不可解析或缺少字符串 type 字段
var ErrMalformed = fmt.Errorf("malformed client message")

// ClientMessage 解码后的入站消息。
// Held 为 nil 或 Direction 为空表示该 kind 的载荷校验失败，
// 按协议静默丢弃而不是报错。
type ClientMessage struct {
	Kind      string
	Name      interface{}
	Held      *models.InputState
	Direction string
}

// DecodeClientMessage 在边界处做判别式解码。
// 解析失败或缺少字符串判别字段返回 ErrMalformed；
// 未识别的判别值映射为 KindUnknown，不是解析错误。
func DecodeClientMessage(data []byte) (*ClientMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, ErrMalformed
	}

	rawKind, ok := fields["type"]
	if !ok {
		return nil, ErrMalformed
	}
	var kind string
	if err := json.Unmarshal(rawKind, &kind); err != nil {
		return nil, ErrMalformed
	}

	msg := &ClientMessage{Kind: kind}
	switch kind {
	case KindJoin:
		if raw, ok := fields["name"]; ok {
			var name interface{}
			_ = json.Unmarshal(raw, &name)
			msg.Name = name
		}
	case KindInput:
		msg.Held = decodeHeld(fields["held"])
	case KindMove:
		msg.Direction = decodeDirection(fields["direction"])
	case KindStartSolo, KindForfeit, KindReady, KindUnready, KindShoot, KindPing:
		// 无载荷
	default:
		msg.Kind = KindUnknown
	}
	return msg, nil
}

// decodeHeld 严格校验 input 载荷恰好是 {left:bool,right:bool}
func decodeHeld(raw json.RawMessage) *models.InputState {
	if raw == nil {
		return nil
	}
	var held struct {
		Left  *bool `json:"left"`
		Right *bool `json:"right"`
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&held); err != nil {
		return nil
	}
	if held.Left == nil || held.Right == nil {
		return nil
	}
	return &models.InputState{Left: *held.Left, Right: *held.Right}
}

// decodeDirection 方向只允许 left/right，其余视为无效
func decodeDirection(raw json.RawMessage) string {
	if raw == nil {
		return ""
	}
	var dir string
	if err := json.Unmarshal(raw, &dir); err != nil {
		return ""
	}
	if dir != "left" && dir != "right" {
		return ""
	}
	return dir
}

// --- 出站消息 ---

// SyncMessage 全量状态同步；PlayerID 与 Config 仅在给加入者的单播中携带
type SyncMessage struct {
	Type     string             `json:"type"`
	State    *models.RoomState  `json:"state"`
	PlayerID string             `json:"playerId,omitempty"`
	Config   *models.RoomConfig `json:"config,omitempty"`
}

// EventMessage 广播事件
type EventMessage struct {
	Type string                 `json:"type"`
	Name string                 `json:"name"`
	Data map[string]interface{} `json:"data,omitempty"`
}

// ErrorMessage 仅发给肇事连接的错误
type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMessage ping 的应答
type PongMessage struct {
	Type       string `json:"type"`
	ServerTime int64  `json:"serverTime"`
}

func NewSync(state *models.RoomState) *SyncMessage {
	return &SyncMessage{Type: "sync", State: state}
}

func NewJoinSync(state *models.RoomState, playerID string, cfg *models.RoomConfig) *SyncMessage {
	return &SyncMessage{Type: "sync", State: state, PlayerID: playerID, Config: cfg}
}

func NewEvent(name string, data map[string]interface{}) *EventMessage {
	return &EventMessage{Type: "event", Name: name, Data: data}
}

func NewError(code, message string) *ErrorMessage {
	return &ErrorMessage{Type: "error", Code: code, Message: message}
}

func NewPong(serverTime int64) *PongMessage {
	return &PongMessage{Type: "pong", ServerTime: serverTime}
}
