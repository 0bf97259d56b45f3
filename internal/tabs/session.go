// Package tabs 维护有序的标签页集合及当前活动页
package tabs

import (
	"nhpbrowser/internal/ledger"
	"nhpbrowser/internal/logger"
	"nhpbrowser/pkg/domain"
	"nhpbrowser/pkg/errx"
)

// Loader 渲染器的页面加载能力
type Loader interface {
	Load(url string) error
	StopLoading() error
}

// view 渲染器当前展示的页面
type view struct {
	title     string
	url       string
	protected bool
}

// Session 标签页会话，只能在界面线程中访问
type Session struct {
	tabs    []domain.Tab
	active  int
	lastID  domain.TabID
	ledger  *ledger.Ledger
	homeURL string
	loader  Loader
	log     logger.Logger
	cur     view
}

// New 创建会话并打开一个默认标签页（不触发加载）
func New(l *ledger.Ledger, homeURL string, loader Loader, log logger.Logger) *Session {
	if log == nil {
		log = logger.NewNop()
	}
	if l == nil {
		l = ledger.New()
	}
	s := &Session{ledger: l, homeURL: homeURL, loader: loader, log: log}
	t := s.newTab()
	s.tabs = append(s.tabs, t)
	s.cur = view{title: t.Title, url: t.URL}
	return s
}

func (s *Session) newTab() domain.Tab {
	s.lastID++
	return domain.Tab{ID: s.lastID, Title: domain.DefaultTabTitle, URL: s.homeURL}
}

// HomeURL 主页地址
func (s *Session) HomeURL() string { return s.homeURL }

// SetHomeURL 修改主页，只影响之后新建的标签页
func (s *Session) SetHomeURL(url string) {
	if url != "" {
		s.homeURL = url
	}
}

// Ledger 会话持有的账本
func (s *Session) Ledger() *ledger.Ledger { return s.ledger }

// CreateTab 新建标签页；activate 为 false 时当前页保持不变
func (s *Session) CreateTab(activate bool) domain.Tab {
	t := s.newTab()
	s.tabs = append(s.tabs, t)
	if !activate {
		s.log.Debug("后台新建标签页", "tabId", t.ID)
		return t
	}

	s.saveCurrent()
	s.active = len(s.tabs) - 1
	s.show(t)
	return t
}

// SaveActiveTabState 将渲染器当前标题/URL/保护状态写入活动标签页
func (s *Session) SaveActiveTabState(title, url string, protected bool) {
	s.cur = view{title: title, url: url, protected: protected}
	s.saveCurrent()
}

func (s *Session) saveCurrent() {
	t := &s.tabs[s.active]
	if s.cur.title != "" {
		t.Title = s.cur.title
	}
	if s.cur.url != "" {
		t.URL = s.cur.url
	}
	t.Protected = s.cur.protected
}

// SwitchTo 切换到指定下标，返回是否发生切换
func (s *Session) SwitchTo(index int) bool {
	if index == s.active || index < 0 || index >= len(s.tabs) {
		return false
	}
	s.saveCurrent()
	s.active = index
	s.show(s.tabs[index])
	return true
}

// CloseActive 关闭活动标签页，仅剩一个时拒绝
func (s *Session) CloseActive() error {
	if len(s.tabs) <= 1 {
		return errx.Wrap(errx.CodeInvariantViolation, domain.ErrLastTab, "cannot close the last tab")
	}
	closed := s.tabs[s.active].ID
	s.tabs = append(s.tabs[:s.active], s.tabs[s.active+1:]...)
	if s.active >= len(s.tabs) {
		s.active = len(s.tabs) - 1
	}
	s.log.Debug("关闭标签页", "tabId", closed, "active", s.active)
	s.show(s.tabs[s.active])
	return nil
}

// Close 按ID关闭标签页，非活动页直接移除
func (s *Session) Close(id domain.TabID) error {
	idx := s.IndexOf(id)
	if idx < 0 {
		return domain.ErrTabNotFound
	}
	if idx == s.active {
		return s.CloseActive()
	}
	if len(s.tabs) <= 1 {
		return errx.Wrap(errx.CodeInvariantViolation, domain.ErrLastTab, "cannot close the last tab")
	}
	s.tabs = append(s.tabs[:idx], s.tabs[idx+1:]...)
	if idx < s.active {
		s.active--
	}
	return nil
}

// ClearAll 清空账本与全部标签页，只保留一个回到主页的新标签页
func (s *Session) ClearAll() domain.Tab {
	s.ledger.Clear()
	s.cur.protected = false
	t := s.newTab()
	s.tabs = []domain.Tab{t}
	s.active = 0
	s.show(t)
	return t
}

// show 停止当前加载并载入目标标签页，保护状态由标签页记录与账本共同决定
func (s *Session) show(t domain.Tab) {
	target := t.URL
	if target == "" || target == "about:blank" {
		target = s.homeURL
	}
	s.cur = view{
		title:     t.Title,
		url:       target,
		protected: t.Protected || s.ledger.Contains(target),
	}
	if s.loader == nil {
		return
	}
	if err := s.loader.StopLoading(); err != nil {
		s.log.Err(err, "停止页面加载失败", "tabId", t.ID)
	}
	if err := s.loader.Load(target); err != nil {
		s.log.Err(err, "加载标签页失败", "tabId", t.ID, "url", target)
	}
}

// SetProtected 设置当前页与活动标签页的保护状态
func (s *Session) SetProtected(protected bool) {
	s.cur.protected = protected
	s.tabs[s.active].Protected = protected
}

// Protected 当前页是否受保护
func (s *Session) Protected() bool { return s.cur.protected }

// SetCurrentURL 记录渲染器当前 URL
func (s *Session) SetCurrentURL(url string) { s.cur.url = url }

// Current 当前页的标题、URL 与保护状态
func (s *Session) Current() (title, url string, protected bool) {
	return s.cur.title, s.cur.url, s.cur.protected
}

// Active 活动标签页
func (s *Session) Active() domain.Tab { return s.tabs[s.active] }

// ActiveIndex 活动下标
func (s *Session) ActiveIndex() int { return s.active }

// Len 标签页数量
func (s *Session) Len() int { return len(s.tabs) }

// IndexOf 返回标签页下标，不存在时为 -1
func (s *Session) IndexOf(id domain.TabID) int {
	for i, t := range s.tabs {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// Snapshot 返回标签页列表副本
func (s *Session) Snapshot() domain.TabsSnapshot {
	out := make([]domain.Tab, len(s.tabs))
	copy(out, s.tabs)
	return domain.TabsSnapshot{Tabs: out, Active: s.active}
}
