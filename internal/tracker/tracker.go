package tracker

import (
	"sync"
	"time"

	"nhpbrowser/internal/logger"
)

// Entry 在途操作条目
type Entry[T any] struct {
	Key       string
	StartTime time.Time
	Data      T
}

// Tracker 追踪尚未完成的异步操作；完成时条目已被取消或过期的结果视为过时
type Tracker[T any] struct {
	pool     sync.Map
	timeout  time.Duration
	interval time.Duration
	log      logger.Logger
	done     chan struct{}
	once     sync.Once
}

// New 创建追踪器，timeout 为条目最长存活时间
func New[T any](timeout time.Duration, l logger.Logger) *Tracker[T] {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if l == nil {
		l = logger.NewNop()
	}
	interval := 30 * time.Second
	if timeout < interval {
		interval = timeout
	}
	t := &Tracker[T]{
		timeout:  timeout,
		interval: interval,
		log:      l,
		done:     make(chan struct{}),
	}
	go t.cleanupLoop()
	return t
}

// Begin 登记在途操作
func (t *Tracker[T]) Begin(key string, data T) {
	t.pool.Store(key, &Entry[T]{Key: key, StartTime: time.Now(), Data: data})
}

// Complete 取出并移除在途操作，返回 false 表示操作已被取消或过期
func (t *Tracker[T]) Complete(key string) (T, bool) {
	val, ok := t.pool.LoadAndDelete(key)
	if !ok {
		var zero T
		return zero, false
	}
	return val.(*Entry[T]).Data, true
}

// Peek 仅读取不移除
func (t *Tracker[T]) Peek(key string) (T, bool) {
	val, ok := t.pool.Load(key)
	if !ok {
		var zero T
		return zero, false
	}
	return val.(*Entry[T]).Data, true
}

// Cancel 取消单个操作
func (t *Tracker[T]) Cancel(key string) {
	t.pool.Delete(key)
}

// CancelWhere 取消所有满足条件的操作，返回取消数量
func (t *Tracker[T]) CancelWhere(match func(T) bool) int {
	n := 0
	t.pool.Range(func(key, value any) bool {
		if match(value.(*Entry[T]).Data) {
			t.pool.Delete(key)
			n++
		}
		return true
	})
	return n
}

// Reset 取消全部操作
func (t *Tracker[T]) Reset() int {
	return t.CancelWhere(func(T) bool { return true })
}

// Len 在途操作数量
func (t *Tracker[T]) Len() int {
	n := 0
	t.pool.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Stop 停止追踪器，可重复调用
func (t *Tracker[T]) Stop() {
	t.once.Do(func() { close(t.done) })
}

// cleanupLoop 定期清理过期条目
func (t *Tracker[T]) cleanupLoop() {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			now := time.Now()
			t.pool.Range(func(key, value any) bool {
				entry := value.(*Entry[T])
				if now.Sub(entry.StartTime) > t.timeout {
					t.pool.Delete(key)
					t.log.Debug("清理过期在途操作", "key", key, "startTime", entry.StartTime)
				}
				return true
			})
		}
	}
}
