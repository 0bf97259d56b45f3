// Package loop 提供界面状态的串行执行线程。
//
// 所有标签页、账本、安全指示与扫码阶段的修改都必须通过 Post 提交到同一个 Loop，
// 后台任务只通过投递完成消息回到这里，不直接修改界面状态。
package loop

import (
	"context"
	"fmt"
	"sync"

	"nhpbrowser/internal/logger"
)

// Loop 串行执行器
type Loop struct {
	inline bool
	queue  chan func()
	log    logger.Logger

	stopped chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

// New 创建串行执行器，buf 为投递队列容量
func New(buf int, log logger.Logger) *Loop {
	if buf <= 0 {
		buf = 256
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Loop{
		queue:   make(chan func(), buf),
		log:     log,
		stopped: make(chan struct{}),
	}
}

// NewInline 创建同步执行器，Post 在调用方协程内立即执行（可重入），调用方自行保证单线程
func NewInline() *Loop {
	return &Loop{inline: true, log: logger.NewNop(), stopped: make(chan struct{})}
}

// Start 启动执行协程
func (l *Loop) Start(ctx context.Context) {
	if l.inline {
		return
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for {
			select {
			case <-ctx.Done():
				l.once.Do(func() { close(l.stopped) })
				return
			case <-l.stopped:
				return
			case fn := <-l.queue:
				l.exec(fn)
			}
		}
	}()
}

// Stop 停止执行协程，未执行的投递被丢弃
func (l *Loop) Stop() {
	l.once.Do(func() { close(l.stopped) })
	l.wg.Wait()
}

// Post 投递一个函数到执行线程，执行器已停止时返回 false
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.stopped:
		return false
	default:
	}

	if l.inline {
		l.exec(fn)
		return true
	}

	select {
	case l.queue <- fn:
		return true
	case <-l.stopped:
		return false
	}
}

// Do 投递并等待执行完成；不能在执行线程内部调用
func (l *Loop) Do(ctx context.Context, fn func()) error {
	if l.inline {
		if !l.Post(fn) {
			return context.Canceled
		}
		return nil
	}

	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		fn()
	}) {
		return context.Canceled
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("界面线程任务异常", "panic", fmt.Sprint(r))
		}
	}()
	fn()
}
