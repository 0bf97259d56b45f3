// Package navigation 拦截导航请求，对受保护主机先敲门再放行
package navigation

import (
	"time"

	"nhpbrowser/internal/ledger"
	"nhpbrowser/internal/logger"
	"nhpbrowser/internal/tabs"
	"nhpbrowser/internal/tracker"
	"nhpbrowser/pkg/domain"

	"github.com/google/uuid"
)

// Classifier 域名分类
type Classifier interface {
	IsProtected(host string) bool
}

// Resolver 敲门解析，阻塞调用
type Resolver interface {
	Resolve(host string) domain.KnockOutcome
}

// Runner 后台任务执行
type Runner interface {
	Submit(name string, fn func()) bool
}

// Poster 界面线程投递
type Poster interface {
	Post(fn func()) bool
}

// Sink 导航守卫的输出
type Sink interface {
	NavigationDecided(d domain.NavigationDecision)
	KnockStarted(tab domain.TabID, host string)
	KnockFinished(ev domain.KnockEvent, userMessage string)
}

// pendingKnock 在途敲门及其发起时的导航身份
type pendingKnock struct {
	Tab  domain.TabID
	Seq  uint64
	Host string
	URL  string
}

// Guard 导航守卫，除 Resolve 外所有方法都在界面线程中调用
type Guard struct {
	session    *tabs.Session
	classifier Classifier
	resolver   Resolver
	runner     Runner
	ui         Poster
	loader     tabs.Loader
	sink       Sink
	log        logger.Logger

	pending *tracker.Tracker[pendingKnock]
	seq     map[domain.TabID]uint64
}

// Options 守卫依赖
type Options struct {
	Session    *tabs.Session
	Classifier Classifier
	Resolver   Resolver
	Runner     Runner
	UI         Poster
	Loader     tabs.Loader
	Sink       Sink
	Logger     logger.Logger

	// PendingTimeout 在途敲门最长保留时间，超时后结果被丢弃
	PendingTimeout time.Duration
}

// New 创建导航守卫
func New(opts Options) *Guard {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.PendingTimeout <= 0 {
		opts.PendingTimeout = 2 * time.Minute
	}
	return &Guard{
		session:    opts.Session,
		classifier: opts.Classifier,
		resolver:   opts.Resolver,
		runner:     opts.Runner,
		ui:         opts.UI,
		loader:     opts.Loader,
		sink:       opts.Sink,
		log:        opts.Logger,
		pending:    tracker.New[pendingKnock](opts.PendingTimeout, opts.Logger),
		seq:        make(map[domain.TabID]uint64),
	}
}

// Close 释放后台资源
func (g *Guard) Close() {
	g.pending.Stop()
}

// BeforeNavigate 对导航请求作出决策；受保护主机立即返回 Intercepted 并在后台敲门
func (g *Guard) BeforeNavigate(requestedURL string) domain.NavigationDecision {
	tab := g.session.Active().ID
	seq := g.begin(tab)

	// 新导航开始时立即隐藏保护指示
	g.session.SetProtected(false)

	host := HostOf(requestedURL)
	if host == "" || !g.classifier.IsProtected(host) {
		d := domain.Allow(requestedURL)
		g.emit(d)
		return d
	}

	d := domain.Intercepted(requestedURL, host)
	g.emit(d)

	token := uuid.NewString()
	g.pending.Begin(token, pendingKnock{Tab: tab, Seq: seq, Host: host, URL: requestedURL})
	if g.sink != nil {
		g.sink.KnockStarted(tab, host)
	}
	g.log.Debug("拦截受保护导航，开始敲门", "tabId", tab, "host", host, "token", token)

	submitted := g.runner.Submit("knock", func() {
		outcome := g.resolver.Resolve(host)
		if !g.ui.Post(func() { g.complete(token, outcome) }) {
			g.log.Warn("界面线程已停止，丢弃敲门结果", "host", host)
		}
	})
	if !submitted {
		g.complete(token, domain.KnockOutcome{ErrorCode: "BUSY", ErrorMessage: "too many pending requests"})
	}
	return d
}

// begin 推进标签页的导航序号并作废其在途敲门
func (g *Guard) begin(tab domain.TabID) uint64 {
	g.seq[tab]++
	if n := g.pending.CancelWhere(func(p pendingKnock) bool { return p.Tab == tab }); n > 0 {
		g.log.Debug("新导航作废在途敲门", "tabId", tab, "count", n)
	}
	return g.seq[tab]
}

// Abandon 作废某标签页的在途敲门（切换或关闭标签页时调用）
func (g *Guard) Abandon(tab domain.TabID) {
	g.seq[tab]++
	g.pending.CancelWhere(func(p pendingKnock) bool { return p.Tab == tab })
}

// Reset 作废全部在途敲门
func (g *Guard) Reset() {
	g.pending.Reset()
	g.seq = make(map[domain.TabID]uint64)
}

// Pending 在途敲门数量
func (g *Guard) Pending() int { return g.pending.Len() }

// complete 在界面线程中应用敲门结果，过时结果直接丢弃
func (g *Guard) complete(token string, outcome domain.KnockOutcome) {
	p, ok := g.pending.Complete(token)
	if !ok {
		g.log.Debug("丢弃过时的敲门结果", "token", token)
		return
	}
	if g.session.Active().ID != p.Tab || g.seq[p.Tab] != p.Seq {
		g.log.Debug("标签页已变化，丢弃敲门结果", "tabId", p.Tab, "host", p.Host)
		return
	}

	ev := domain.KnockEvent{
		TabID:        p.Tab,
		Host:         p.Host,
		URL:          p.URL,
		ErrorCode:    outcome.ErrorCode,
		ErrorMessage: outcome.ErrorMessage,
		Timestamp:    time.Now().UnixMilli(),
	}

	if outcome.Success {
		processed, err := RewriteHost(p.URL, outcome.ResolvedHost)
		if err == nil {
			processed = ledger.Canonical(processed)
			g.session.Ledger().Add(processed)
			g.session.SetProtected(true)
			ev.Success = true
			ev.ResolvedHost = outcome.ResolvedHost
			ev.URL = processed
			if g.sink != nil {
				g.sink.KnockFinished(ev, "")
				g.sink.NavigationDecided(domain.Allow(processed))
			}
			g.log.Info("敲门成功，加载改写后的地址", "tabId", p.Tab, "host", p.Host, "url", processed)
			if g.loader != nil {
				if err := g.loader.Load(processed); err != nil {
					g.log.Err(err, "加载改写后的地址失败", "url", processed)
				}
			}
			return
		}
		g.log.Err(err, "改写地址失败", "url", p.URL, "resolvedHost", outcome.ResolvedHost)
		outcome = domain.KnockOutcome{ErrorCode: "REWRITE_FAILED", ErrorMessage: err.Error()}
		ev.ErrorCode, ev.ErrorMessage = outcome.ErrorCode, outcome.ErrorMessage
	}

	g.session.SetProtected(false)
	if g.sink != nil {
		g.sink.KnockFinished(ev, outcome.UserMessage())
	}
}

func (g *Guard) emit(d domain.NavigationDecision) {
	if g.sink != nil {
		g.sink.NavigationDecided(d)
	}
}
