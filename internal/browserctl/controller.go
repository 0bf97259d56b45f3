// Package browserctl 是平台无关的浏览器控制器。
//
// 它组合域名分类、敲门解析、导航守卫、标签页会话、受保护 URL 账本与扫码登录状态机，
// 各平台外壳只需实现 Renderer 并监听 Listener。除 New 以外的所有方法都必须在界面线程中调用。
package browserctl

import (
	"errors"
	"net/url"
	"strings"

	"nhpbrowser/internal/classifier"
	"nhpbrowser/internal/core"
	"nhpbrowser/internal/knock"
	"nhpbrowser/internal/ledger"
	"nhpbrowser/internal/logger"
	"nhpbrowser/internal/loop"
	"nhpbrowser/internal/navigation"
	"nhpbrowser/internal/qrlogin"
	"nhpbrowser/internal/tabs"
	"nhpbrowser/pkg/domain"
	"nhpbrowser/pkg/errx"
)

// Options 控制器依赖与配置
type Options struct {
	Core     core.Core
	Renderer Renderer
	Runner   navigation.Runner
	UI       navigation.Poster
	Listener Listener
	Recorder KnockRecorder
	Logger   logger.Logger

	HomeURL        string
	SearchURL      string
	ReservedSuffix string
	Coalesce       bool

	QRScheme            string
	QRDefaultAppID      string
	QRDefaultResourceID string
	QRFallbackServer    string
	DeviceInfo          string
}

// Controller 浏览器控制器
type Controller struct {
	opts       Options
	log        logger.Logger
	listener   Listener
	renderer   Renderer
	classifier *classifier.Classifier
	session    *tabs.Session
	guard      *navigation.Guard
	qr         *qrlogin.Controller
}

// New 创建控制器
func New(opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Listener == nil {
		opts.Listener = NopListener{}
	}
	if opts.Renderer == nil {
		opts.Renderer = detached{}
	}
	if opts.ReservedSuffix == "" {
		opts.ReservedSuffix = ".nhp"
	}
	if opts.Core == nil {
		opts.Core = core.NewBridge(core.Linked())
	}
	// 未提供执行器时整体以同步方式运行
	if opts.UI == nil {
		opts.UI = loop.NewInline()
	}
	if opts.Runner == nil {
		opts.Runner = syncRunner{}
	}

	c := &Controller{
		opts:     opts,
		log:      opts.Logger,
		listener: opts.Listener,
		renderer: opts.Renderer,
	}
	s := &sink{c: c}

	c.classifier = classifier.New(opts.Core, opts.ReservedSuffix, opts.Logger.With("module", "classifier"))
	c.session = tabs.New(ledger.New(), opts.HomeURL, opts.Renderer, opts.Logger.With("module", "tabs"))
	c.guard = navigation.New(navigation.Options{
		Session:    c.session,
		Classifier: c.classifier,
		Resolver:   knock.New(opts.Core, opts.Logger.With("module", "knock"), knock.WithCoalesce(opts.Coalesce)),
		Runner:     opts.Runner,
		UI:         opts.UI,
		Loader:     opts.Renderer,
		Sink:       s,
		Logger:     opts.Logger.With("module", "navigation"),
	})
	c.qr = qrlogin.New(qrlogin.Options{
		Core:              opts.Core,
		Runner:            opts.Runner,
		UI:                opts.UI,
		Sink:              s,
		Logger:            opts.Logger.With("module", "qrlogin"),
		Scheme:            opts.QRScheme,
		DefaultAppID:      opts.QRDefaultAppID,
		DefaultResourceID: opts.QRDefaultResourceID,
		FallbackServer:    opts.QRFallbackServer,
		DeviceInfo:        opts.DeviceInfo,
	})
	return c
}

// Close 释放后台资源
func (c *Controller) Close() {
	c.guard.Close()
}

// ---------- 导航 ----------

// Navigate 处理地址栏输入：规范化后交给导航守卫，放行时由控制器加载
func (c *Controller) Navigate(input string) (domain.NavigationDecision, error) {
	target := NormalizeInput(input, c.opts.SearchURL)
	if target == "" {
		return domain.NavigationDecision{}, nil
	}
	d := c.guard.BeforeNavigate(target)
	c.emitSecurity()
	if d.Allowed() {
		if err := c.renderer.Load(d.URL); err != nil {
			c.fail("", err)
			return d, err
		}
	}
	return d, nil
}

// BeforeNavigate 渲染器发起的导航（点击链接等）；放行时由渲染器自行继续
func (c *Controller) BeforeNavigate(rawURL string) domain.NavigationDecision {
	d := c.guard.BeforeNavigate(rawURL)
	c.emitSecurity()
	return d
}

// Home 回到主页
func (c *Controller) Home() (domain.NavigationDecision, error) {
	c.session.SetProtected(false)
	return c.Navigate(c.session.HomeURL())
}

// SetHomeURL 修改主页地址
func (c *Controller) SetHomeURL(u string) { c.session.SetHomeURL(u) }

// SetSearchURL 修改搜索地址
func (c *Controller) SetSearchURL(u string) {
	if u != "" {
		c.opts.SearchURL = u
	}
}

// GoBack 后退，保护状态在 PageStarted 中由账本恢复
func (c *Controller) GoBack() error { return c.renderer.GoBack() }

// GoForward 前进
func (c *Controller) GoForward() error { return c.renderer.GoForward() }

// Reload 刷新
func (c *Controller) Reload() error { return c.renderer.Reload() }

// PageStarted 渲染器开始加载页面（含前进后退），保护状态只由账本决定
func (c *Controller) PageStarted(rawURL string) {
	c.session.SetCurrentURL(rawURL)
	c.session.SetProtected(c.session.Ledger().Contains(rawURL))
	c.emitSecurity()
}

// PageFinished 页面加载完成，快照写入活动标签页
func (c *Controller) PageFinished(title, rawURL string) {
	c.session.SaveActiveTabState(title, rawURL, c.session.Protected())
	c.emitSecurity()
	c.emitTabs()
}

// PageFailed 主框架加载失败，隐藏保护指示
func (c *Controller) PageFailed(rawURL string) {
	c.log.Debug("页面加载失败", "url", rawURL)
	c.session.SetProtected(false)
	c.emitSecurity()
}

// Security 当前安全状态
func (c *Controller) Security() domain.SecurityState {
	_, u, protected := c.session.Current()
	return domain.SecurityState{Protected: protected, Level: SecurityLevelOf(u, protected), URL: u}
}

// IsProtectedHost 域名是否受保护
func (c *Controller) IsProtectedHost(host string) bool {
	return c.classifier.IsProtected(host)
}

// ---------- 标签页 ----------

// Tabs 标签页快照
func (c *Controller) Tabs() domain.TabsSnapshot { return c.session.Snapshot() }

// NewTab 新建标签页
func (c *Controller) NewTab(activate bool) domain.Tab {
	prev := c.session.Active().ID
	t := c.session.CreateTab(activate)
	if activate {
		c.guard.Abandon(prev)
		c.emitSecurity()
	}
	c.emitTabs()
	return t
}

// SwitchTab 按下标切换，返回是否发生切换
func (c *Controller) SwitchTab(index int) bool {
	prev := c.session.Active().ID
	if !c.session.SwitchTo(index) {
		return false
	}
	c.guard.Abandon(prev)
	c.emitSecurity()
	c.emitTabs()
	return true
}

// SwitchTabByID 按ID切换
func (c *Controller) SwitchTabByID(id domain.TabID) error {
	idx := c.session.IndexOf(id)
	if idx < 0 {
		return domain.ErrTabNotFound
	}
	c.SwitchTab(idx)
	return nil
}

// CloseActiveTab 关闭活动标签页，仅剩一个时拒绝且不改变状态
func (c *Controller) CloseActiveTab() error {
	closed := c.session.Active().ID
	if err := c.session.CloseActive(); err != nil {
		c.fail(errx.CodeInvariantViolation, err)
		return err
	}
	c.guard.Abandon(closed)
	c.emitSecurity()
	c.emitTabs()
	return nil
}

// CloseTab 按ID关闭标签页
func (c *Controller) CloseTab(id domain.TabID) error {
	if c.session.IndexOf(id) == c.session.ActiveIndex() {
		return c.CloseActiveTab()
	}
	if err := c.session.Close(id); err != nil {
		if !errors.Is(err, domain.ErrTabNotFound) {
			c.fail(errx.CodeInvariantViolation, err)
		}
		return err
	}
	c.guard.Abandon(id)
	c.emitTabs()
	return nil
}

// ClearBrowsingData 清除浏览数据：账本、在途敲门与全部标签页
func (c *Controller) ClearBrowsingData() domain.Tab {
	c.guard.Reset()
	t := c.session.ClearAll()
	c.log.Info("已清除浏览数据", "tabId", t.ID)
	c.emitSecurity()
	c.emitTabs()
	return t
}

// ---------- 扫码登录 ----------

// ScanQR 处理扫码文本
func (c *Controller) ScanQR(raw string) error {
	if err := c.qr.Scan(raw); err != nil {
		c.fail(errx.CodeOf(err), err)
		return err
	}
	return nil
}

// ConfirmQR 确认登录
func (c *Controller) ConfirmQR() error { return c.qr.Confirm() }

// CancelQR 取消登录
func (c *Controller) CancelQR() error { return c.qr.Cancel() }

// DismissQR 关闭登录结果
func (c *Controller) DismissQR() error { return c.qr.Dismiss() }

// QRState 扫码状态
func (c *Controller) QRState() domain.QRState { return c.qr.State() }

// SetDeviceInfo 设置校验设备描述
func (c *Controller) SetDeviceInfo(info string) { c.qr.SetDeviceInfo(info) }

// ---------- 通知 ----------

func (c *Controller) emitTabs() {
	c.listener.OnTabsChanged(c.session.Snapshot())
}

func (c *Controller) emitSecurity() {
	c.listener.OnSecurityStateChanged(c.Security())
}

func (c *Controller) fail(code errx.Code, err error) {
	if code == "" {
		code = errx.CodeOf(err)
	}
	c.listener.OnError(code, errx.MessageOf(err))
}

// sink 接收守卫与扫码控制器的输出并转为 Listener 通知
type sink struct{ c *Controller }

func (s *sink) NavigationDecided(d domain.NavigationDecision) {
	s.c.listener.OnNavigationDecision(d)
}

func (s *sink) KnockStarted(_ domain.TabID, host string) {
	s.c.listener.OnKnockStatus(true, host, "")
}

func (s *sink) KnockFinished(ev domain.KnockEvent, msg string) {
	s.c.listener.OnKnockStatus(false, ev.Host, msg)
	if !ev.Success {
		s.c.listener.OnError(errx.CodeKnockFailed, msg)
	}
	if s.c.opts.Recorder != nil {
		s.c.opts.Recorder.Record(ev)
	}
	s.c.emitSecurity()
	s.c.emitTabs()
}

func (s *sink) QRPhaseChanged(state domain.QRState) {
	s.c.listener.OnQRPhaseChanged(state)
}

// ---------- 工具 ----------

// NormalizeInput 地址栏输入规范化：不含点或含空格时搜索，缺少协议时补 https://
func NormalizeInput(input, searchURL string) string {
	input = strings.TrimSpace(input)
	if input == "" {
		return ""
	}
	lower := strings.ToLower(input)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return input
	}
	if !strings.Contains(input, ".") || strings.Contains(input, " ") {
		return searchURL + url.QueryEscape(input)
	}
	return "https://" + input
}

// SecurityLevelOf 地址栏安全图标
func SecurityLevelOf(rawURL string, protected bool) domain.SecurityLevel {
	switch {
	case protected:
		return domain.SecurityNHP
	case strings.HasPrefix(strings.ToLower(rawURL), "https://"):
		return domain.SecuritySecure
	default:
		return domain.SecurityInsecure
	}
}

// detached 未连接渲染器时的占位
type detached struct{}

func (detached) Load(string) error  { return domain.ErrRendererDetached }
func (detached) StopLoading() error { return nil }
func (detached) GoBack() error      { return domain.ErrRendererDetached }
func (detached) GoForward() error   { return domain.ErrRendererDetached }
func (detached) Reload() error      { return domain.ErrRendererDetached }

// syncRunner 在调用方协程内直接执行任务
type syncRunner struct{}

func (syncRunner) Submit(_ string, fn func()) bool {
	fn()
	return true
}
