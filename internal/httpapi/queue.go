package httpapi

import (
	"sync"

	"nhpbrowser/internal/browserctl"
	"nhpbrowser/pkg/domain"
	"nhpbrowser/pkg/errx"
)

// 渲染指令事件，由外壳执行
const (
	EventRenderLoad    = "render.load"
	EventRenderStop    = "render.stop"
	EventRenderBack    = "render.back"
	EventRenderForward = "render.forward"
	EventRenderReload  = "render.reload"
)

// Event 推送给外壳的事件
type Event struct {
	Seq  uint64 `json:"seq"`
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Queue 有界事件队列，既是控制器的 Listener 也是 Renderer，外壳通过 events.poll 拉取
type Queue struct {
	mu       sync.Mutex
	events   []Event
	next     uint64
	capacity int
	notify   chan struct{}
}

var (
	_ browserctl.Listener = (*Queue)(nil)
	_ browserctl.Renderer = (*Queue)(nil)
)

// NewQueue 创建事件队列，超出容量时丢弃最旧的事件
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 512
	}
	return &Queue{capacity: capacity, next: 1, notify: make(chan struct{})}
}

func (q *Queue) push(typ string, data any) {
	q.mu.Lock()
	q.events = append(q.events, Event{Seq: q.next, Type: typ, Data: data})
	q.next++
	if len(q.events) > q.capacity {
		q.events = q.events[len(q.events)-q.capacity:]
	}
	close(q.notify)
	q.notify = make(chan struct{})
	q.mu.Unlock()
}

// Since 返回序号大于 seq 的事件，以及有新事件时会被关闭的通道
func (q *Queue) Since(seq uint64) ([]Event, <-chan struct{}) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Event, 0)
	for _, ev := range q.events {
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out, q.notify
}

// LastSeq 最新事件序号
func (q *Queue) LastSeq() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.next - 1
}

func (q *Queue) OnNavigationDecision(d domain.NavigationDecision) {
	q.push(browserctl.EventNavDecision, d)
}

func (q *Queue) OnTabsChanged(tabs domain.TabsSnapshot) {
	q.push(browserctl.EventTabsChanged, tabs)
}

func (q *Queue) OnSecurityStateChanged(s domain.SecurityState) {
	q.push(browserctl.EventSecurityChanged, s)
}

func (q *Queue) OnQRPhaseChanged(s domain.QRState) {
	q.push(browserctl.EventQRPhaseChanged, s)
}

func (q *Queue) OnKnockStatus(pending bool, host, message string) {
	q.push(browserctl.EventKnockStatus, browserctl.KnockStatus{Pending: pending, Host: host, Message: message})
}

func (q *Queue) OnError(code errx.Code, message string) {
	q.push(browserctl.EventAppError, browserctl.AppError{Code: string(code), Message: message})
}

// loadCommand 加载指令参数
type loadCommand struct {
	URL string `json:"url"`
}

func (q *Queue) Load(url string) error {
	q.push(EventRenderLoad, loadCommand{URL: url})
	return nil
}

func (q *Queue) StopLoading() error {
	q.push(EventRenderStop, nil)
	return nil
}

func (q *Queue) GoBack() error {
	q.push(EventRenderBack, nil)
	return nil
}

func (q *Queue) GoForward() error {
	q.push(EventRenderForward, nil)
	return nil
}

func (q *Queue) Reload() error {
	q.push(EventRenderReload, nil)
	return nil
}
