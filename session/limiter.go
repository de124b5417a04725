// session/limiter.go
package session

import "time"

// Limiter 固定窗口计数限流。每条连接一个，连接关闭即丢弃。
// 同一窗口内第一次超限要求通知发送方，其后静默丢弃，
// 所以 Allow 同时返回是否需要通知。
type Limiter struct {
	max         int
	window      time.Duration
	count       int
	windowStart time.Time
	notified    bool
}

func NewLimiter(max int, window time.Duration) *Limiter {
	return &Limiter{max: max, window: window}
}

// Allow 记一次消息。返回 (是否放行, 是否发送一次性超限通知)。
func (l *Limiter) Allow(now time.Time) (ok bool, notify bool) {
	if l.windowStart.IsZero() || now.Sub(l.windowStart) >= l.window {
		l.windowStart = now
		l.count = 0
		l.notified = false
	}
	l.count++
	if l.count <= l.max {
		return true, false
	}
	if !l.notified {
		l.notified = true
		return false, true
	}
	return false, false
}
