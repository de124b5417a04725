// scheduler/scheduler.go
package scheduler

import (
	"container/heap"
	"sync"
	"time"
)

// Wake 一次待触发的延迟唤醒
type Wake struct {
	Key     string
	Execute time.Time
	index   int
}

type wakeQueue []*Wake

func (q wakeQueue) Len() int { return len(q) }

func (q wakeQueue) Less(i, j int) bool {
	return q[i].Execute.Before(q[j].Execute)
}

func (q wakeQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *wakeQueue) Push(x interface{}) {
	n := len(*q)
	wake := x.(*Wake)
	wake.index = n
	*q = append(*q, wake)
}

func (q *wakeQueue) Pop() interface{} {
	old := *q
	n := len(old)
	wake := old[n-1]
	wake.index = -1
	*q = old[0 : n-1]
	return wake
}

// Scheduler 按 key 管理一次性延迟唤醒。
// 每个 key 最多只有一个待触发唤醒：重复 Arm 取代之前的，
// Cancel 清空。没有常驻的每房间定时器。
type Scheduler struct {
	queue wakeQueue
	slots map[string]*Wake
	mutex sync.Mutex
	fire  func(key string)
	stop  chan struct{}
	once  sync.Once
}

// NewScheduler 创建调度器，fire 在唤醒到期时被调用
func NewScheduler(fire func(key string)) *Scheduler {
	s := &Scheduler{
		queue: make(wakeQueue, 0),
		slots: make(map[string]*Wake),
		fire:  fire,
		stop:  make(chan struct{}),
	}
	heap.Init(&s.queue)
	go s.process()
	return s
}

// Arm 在 now+delay 安排一次唤醒，覆盖该 key 之前的唤醒
func (s *Scheduler) Arm(key string, delay time.Duration) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	execute := time.Now().Add(delay)
	if existing, ok := s.slots[key]; ok {
		existing.Execute = execute
		heap.Fix(&s.queue, existing.index)
		return
	}

	wake := &Wake{Key: key, Execute: execute}
	s.slots[key] = wake
	heap.Push(&s.queue, wake)
}

// Cancel 取消该 key 的待触发唤醒，没有则为空操作
func (s *Scheduler) Cancel(key string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if wake, ok := s.slots[key]; ok {
		heap.Remove(&s.queue, wake.index)
		delete(s.slots, key)
	}
}

// Pending 该 key 是否有待触发唤醒
func (s *Scheduler) Pending(key string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	_, ok := s.slots[key]
	return ok
}

// Stop 停止调度循环
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stop) })
}

func (s *Scheduler) process() {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mutex.Lock()
			now := time.Now()
			var due []string
			for s.queue.Len() > 0 {
				wake := s.queue[0]
				if wake.Execute.After(now) {
					break
				}
				heap.Pop(&s.queue)
				delete(s.slots, wake.Key)
				due = append(due, wake.Key)
			}
			s.mutex.Unlock()

			for _, key := range due {
				go s.fire(key)
			}

		case <-s.stop:
			return
		}
	}
}
