// broadcast/broadcast.go
package broadcast

import (
	"github.com/wfunc/swarmserver/logger"
)

// Sender 一条可发送消息的连接
type Sender interface {
	Send(v interface{}) error
	GetID() string
}

// Fanout 向所有连接扇出同一条消息。
// 单个连接发送失败只记录日志，不影响其余连接，也不中断扇出。
func Fanout(targets []Sender, v interface{}) {
	for _, t := range targets {
		if err := t.Send(v); err != nil {
			logger.Log.Warnf("broadcast to %s failed: %v", t.GetID(), err)
			continue
		}
	}
}
