// Package renderer 通过 Chrome DevTools Protocol 驱动单个 Chromium 页面，
// 实现 browserctl.Renderer，并把页面主动发起的顶层导航交给导航守卫裁决。
package renderer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"nhpbrowser/internal/logger"
	"nhpbrowser/pkg/domain"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/emulation"
	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/mafredri/cdp/protocol/page"
	"github.com/mafredri/cdp/rpcc"
)

const commandTimeout = 5 * time.Second

// Hooks 页面事件回调，全部在界面线程中调用
type Hooks interface {
	BeforeNavigate(url string) domain.NavigationDecision
	PageStarted(url string)
	PageFinished(title, url string)
	PageFailed(url string)
}

// UI 界面线程
type UI interface {
	Post(fn func()) bool
	Do(ctx context.Context, fn func()) error
}

// Runner 后台执行器
type Runner interface {
	Submit(name string, fn func()) bool
}

// Options 渲染器配置
type Options struct {
	UI              UI
	Runner          Runner
	Logger          logger.Logger
	UserAgentSuffix string
}

// Renderer CDP 渲染器
type Renderer struct {
	opts  Options
	log   logger.Logger
	gate  *gate
	hooks Hooks

	mu        sync.RWMutex
	conn      *rpcc.Conn
	client    *cdp.Client
	ctx       context.Context
	cancel    context.CancelFunc
	mainFrame page.FrameID
}

// New 创建未连接的渲染器
func New(opts Options) *Renderer {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	return &Renderer{
		opts: opts,
		log:  opts.Logger,
		gate: newGate(),
	}
}

// Bind 设置页面事件回调，须在 Attach 之前调用
func (r *Renderer) Bind(h Hooks) { r.hooks = h }

// Attach 连接到浏览器的第一个页面目标
func (r *Renderer) Attach(ctx context.Context, devtoolsURL, baseUserAgent string) error {
	if r.hooks == nil || r.opts.UI == nil {
		return errors.New("renderer: hooks or ui not bound")
	}
	r.Detach()

	sessionCtx, cancel := context.WithCancel(ctx)
	target, err := selectPage(sessionCtx, devtoolsURL)
	if err != nil {
		cancel()
		return err
	}

	conn, err := rpcc.DialContext(sessionCtx, target.WebSocketDebuggerURL, rpcc.WithCompression())
	if err != nil {
		cancel()
		r.log.Err(err, "连接浏览器 DevTools 失败")
		return err
	}
	client := cdp.NewClient(conn)

	mainFrame, err := r.prepare(sessionCtx, client, baseUserAgent)
	if err != nil {
		cancel()
		_ = conn.Close()
		return err
	}

	r.mu.Lock()
	r.conn, r.client, r.ctx, r.cancel, r.mainFrame = conn, client, sessionCtx, cancel, mainFrame
	r.mu.Unlock()

	go r.consumePaused(sessionCtx, client)
	go r.consumeNavigated(sessionCtx, client)
	go r.consumeLoaded(sessionCtx, client)

	r.log.Info("已附加页面目标", "target", string(target.ID), "url", target.URL)
	return nil
}

// prepare 启用所需的 CDP 域并返回主框架 ID
func (r *Renderer) prepare(ctx context.Context, client *cdp.Client, baseUserAgent string) (page.FrameID, error) {
	if err := client.Page.Enable(ctx); err != nil {
		return "", err
	}
	tree, err := client.Page.GetFrameTree(ctx)
	if err != nil {
		return "", err
	}

	if r.opts.UserAgentSuffix != "" && baseUserAgent != "" {
		ua := baseUserAgent + r.opts.UserAgentSuffix
		if err := client.Emulation.SetUserAgentOverride(ctx, emulation.NewSetUserAgentOverrideArgs(ua)); err != nil {
			r.log.Warn("设置 UserAgent 失败", "error", err)
		}
	}

	p := "*"
	doc := network.ResourceTypeDocument
	patterns := []fetch.RequestPattern{
		{URLPattern: &p, ResourceType: &doc, RequestStage: fetch.RequestStageRequest},
	}
	if err := client.Fetch.Enable(ctx, &fetch.EnableArgs{Patterns: patterns}); err != nil {
		return "", err
	}
	return tree.FrameTree.Frame.ID, nil
}

// Detach 断开连接
func (r *Renderer) Detach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
	if r.conn != nil {
		_ = r.conn.Close()
	}
	r.conn, r.client, r.ctx, r.cancel = nil, nil, nil, nil
	r.gate.reset()
}

// Attached 是否已连接
func (r *Renderer) Attached() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.client != nil
}

// Load 加载 URL，不经过导航守卫
func (r *Renderer) Load(url string) error {
	client, ctx := r.session()
	if client == nil {
		return domain.ErrRendererDetached
	}
	r.gate.expect(url)
	go func() {
		cctx, cancel := context.WithTimeout(ctx, commandTimeout)
		defer cancel()
		reply, err := client.Page.Navigate(cctx, page.NewNavigateArgs(url))
		switch {
		case err != nil:
			r.log.Err(err, "页面加载失败", "url", url)
			r.post(func() { r.hooks.PageFailed(url) })
		case reply.ErrorText != nil && *reply.ErrorText != "":
			r.log.Warn("页面加载失败", "url", url, "error", *reply.ErrorText)
			r.post(func() { r.hooks.PageFailed(url) })
		}
	}()
	return nil
}

// StopLoading 停止当前加载
func (r *Renderer) StopLoading() error {
	client, ctx := r.session()
	if client == nil {
		return nil
	}
	cctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	return client.Page.StopLoading(cctx)
}

// GoBack 后退
func (r *Renderer) GoBack() error { return r.history(-1) }

// GoForward 前进
func (r *Renderer) GoForward() error { return r.history(1) }

// Reload 刷新
func (r *Renderer) Reload() error {
	client, ctx := r.session()
	if client == nil {
		return domain.ErrRendererDetached
	}
	r.gate.allowNext()
	cctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	return client.Page.Reload(cctx, page.NewReloadArgs())
}

// ClearData 清除浏览器缓存与 Cookie
func (r *Renderer) ClearData() error {
	client, ctx := r.session()
	if client == nil {
		return nil
	}
	cctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	if err := client.Network.ClearBrowserCache(cctx); err != nil {
		return err
	}
	return client.Network.ClearBrowserCookies(cctx)
}

func (r *Renderer) history(delta int) error {
	client, ctx := r.session()
	if client == nil {
		return domain.ErrRendererDetached
	}
	cctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	h, err := client.Page.GetNavigationHistory(cctx)
	if err != nil {
		return err
	}
	idx := h.CurrentIndex + delta
	if idx < 0 || idx >= len(h.Entries) {
		return nil
	}
	r.gate.allowNext()
	return client.Page.NavigateToHistoryEntry(cctx, page.NewNavigateToHistoryEntryArgs(h.Entries[idx].ID))
}

func (r *Renderer) session() (*cdp.Client, context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.client, r.ctx
}

func (r *Renderer) isMainFrame(id page.FrameID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return id == r.mainFrame
}

func (r *Renderer) post(fn func()) {
	if r.opts.UI == nil || !r.opts.UI.Post(fn) {
		r.log.Warn("界面线程不可用，丢弃页面事件")
	}
}

// consumePaused 消费被暂停的文档请求
func (r *Renderer) consumePaused(ctx context.Context, client *cdp.Client) {
	rp, err := client.Fetch.RequestPaused(ctx)
	if err != nil {
		r.log.Err(err, "订阅拦截事件流失败")
		return
	}
	defer rp.Close()

	for {
		ev, err := rp.Recv()
		if err != nil {
			if ctx.Err() == nil {
				r.log.Err(err, "接收拦截事件失败")
			}
			return
		}
		r.dispatchPaused(ctx, client, ev)
	}
}

// dispatchPaused 交给后台执行器处理，队列已满时直接放行
func (r *Renderer) dispatchPaused(ctx context.Context, client *cdp.Client, ev *fetch.RequestPausedReply) {
	if r.opts.Runner == nil {
		go r.handlePaused(ctx, client, ev)
		return
	}
	if !r.opts.Runner.Submit("render.paused", func() { r.handlePaused(ctx, client, ev) }) {
		r.log.Warn("执行器队列已满，直接放行", "url", ev.Request.URL)
		r.resume(ctx, client, ev.RequestID, true)
	}
}

func (r *Renderer) handlePaused(ctx context.Context, client *cdp.Client, ev *fetch.RequestPausedReply) {
	url := ev.Request.URL
	if !r.isMainFrame(ev.FrameID) || r.gate.take(url) {
		r.resume(ctx, client, ev.RequestID, true)
		return
	}

	result := make(chan domain.NavigationDecision, 1)
	dctx, cancel := context.WithTimeout(ctx, commandTimeout)
	err := r.opts.UI.Do(dctx, func() { result <- r.hooks.BeforeNavigate(url) })
	cancel()

	decision := domain.Allow(url)
	select {
	case decision = <-result:
	default:
		r.log.Err(err, "导航裁决超时，放行请求", "url", url)
	}
	r.resume(ctx, client, ev.RequestID, decision.Allowed())
}

func (r *Renderer) resume(ctx context.Context, client *cdp.Client, id fetch.RequestID, allow bool) {
	cctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	var err error
	if allow {
		err = client.Fetch.ContinueRequest(cctx, fetch.NewContinueRequestArgs(id))
	} else {
		err = client.Fetch.FailRequest(cctx, fetch.NewFailRequestArgs(id, network.ErrorReasonAborted))
	}
	if err != nil && ctx.Err() == nil {
		r.log.Warn("恢复请求失败", "requestID", string(id), "allow", allow, "error", err)
	}
}

func (r *Renderer) consumeNavigated(ctx context.Context, client *cdp.Client) {
	stream, err := client.Page.FrameNavigated(ctx)
	if err != nil {
		r.log.Err(err, "订阅页面导航事件失败")
		return
	}
	defer stream.Close()

	for {
		ev, err := stream.Recv()
		if err != nil {
			return
		}
		if ev.Frame.ParentID != nil {
			continue
		}
		url := ev.Frame.URL
		if ev.Frame.URLFragment != nil {
			url += *ev.Frame.URLFragment
		}
		r.post(func() { r.hooks.PageStarted(url) })
	}
}

func (r *Renderer) consumeLoaded(ctx context.Context, client *cdp.Client) {
	stream, err := client.Page.LoadEventFired(ctx)
	if err != nil {
		r.log.Err(err, "订阅页面加载事件失败")
		return
	}
	defer stream.Close()

	for {
		if _, err := stream.Recv(); err != nil {
			return
		}
		cctx, cancel := context.WithTimeout(ctx, commandTimeout)
		h, err := client.Page.GetNavigationHistory(cctx)
		cancel()
		if err != nil || h.CurrentIndex < 0 || h.CurrentIndex >= len(h.Entries) {
			continue
		}
		entry := h.Entries[h.CurrentIndex]
		r.post(func() { r.hooks.PageFinished(entry.Title, entry.URL) })
	}
}

// selectPage 选择第一个 page 类型的目标
func selectPage(ctx context.Context, devtoolsURL string) (*devtool.Target, error) {
	if devtoolsURL == "" {
		return nil, errors.New("renderer: devtools url empty")
	}
	targets, err := devtool.New(devtoolsURL).List(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range targets {
		if t != nil && t.Type == devtool.Page {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: no page target", domain.ErrBrowserNotRunning)
}
