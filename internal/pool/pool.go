package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"nhpbrowser/internal/logger"
)

// task 带名称的后台任务，名称用于日志
type task struct {
	name string
	run  func()
}

// Stats 工作池统计
type Stats struct {
	QueueLen  int   `json:"queueLen"`
	QueueCap  int   `json:"queueCap"`
	Submitted int64 `json:"submitted"`
	Dropped   int64 `json:"dropped"`
	Panicked  int64 `json:"panicked"`
}

// Pool 内核调用工作池，固定数量 worker 从有界队列取任务，队列满时丢弃
type Pool struct {
	size     int
	queue    chan task
	queueCap int
	log      logger.Logger

	mu        sync.Mutex
	submitted int64
	dropped   int64
	panicked  int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New 创建工作池
// size: worker 数量，<=0 时每个任务直接起协程执行；queueCap: 队列容量（<=0 时为 size * 8）
func New(size, queueCap int, log logger.Logger) *Pool {
	if log == nil {
		log = logger.NewNop()
	}
	if size <= 0 {
		return &Pool{log: log}
	}
	if queueCap <= 0 {
		queueCap = size * 8
	}
	return &Pool{
		size:     size,
		queue:    make(chan task, queueCap),
		queueCap: queueCap,
		log:      log,
	}
}

// Start 启动 worker 与状态监控
func (p *Pool) Start(ctx context.Context) {
	if p.queue == nil {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.wg.Add(1)
	go p.monitor(ctx)
}

// Stop 停止 worker 并等待其退出，队列中未执行的任务被放弃
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// monitor 定期输出队列使用情况
func (p *Pool) monitor(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := p.Stats()
			if s.Submitted == 0 {
				continue
			}
			usage := float64(s.QueueLen) / float64(s.QueueCap) * 100
			p.log.Info("工作池状态监控", "queueLen", s.QueueLen, "queueCap", s.QueueCap,
				"usage", fmt.Sprintf("%.1f%%", usage), "submitted", s.Submitted, "dropped", s.Dropped, "panicked", s.Panicked)
		}
	}
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-p.queue:
			p.run(t)
		}
	}
}

// run 执行任务，任务 panic 不会带走 worker
func (p *Pool) run(t task) {
	defer func() {
		if r := recover(); r != nil {
			p.mu.Lock()
			p.panicked++
			p.mu.Unlock()
			p.log.Error("后台任务异常", "task", t.name, "panic", fmt.Sprint(r))
		}
	}()
	t.run()
}

// Submit 提交后台任务，队列已满时返回 false
func (p *Pool) Submit(name string, fn func()) bool {
	p.mu.Lock()
	p.submitted++
	p.mu.Unlock()

	t := task{name: name, run: fn}
	if p.queue == nil {
		go p.run(t)
		return true
	}

	select {
	case p.queue <- t:
		return true
	default:
		p.mu.Lock()
		p.dropped++
		dropped := p.dropped
		p.mu.Unlock()
		p.log.Warn("工作池队列已满，任务被丢弃", "task", name, "queueCap", p.queueCap, "dropped", dropped)
		return false
	}
}

// Stats 返回统计信息
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		QueueLen:  len(p.queue),
		QueueCap:  p.queueCap,
		Submitted: p.submitted,
		Dropped:   p.dropped,
		Panicked:  p.panicked,
	}
}

// Bounded 是否限制并发
func (p *Pool) Bounded() bool {
	return p.queue != nil
}
