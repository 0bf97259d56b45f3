package gui

import (
	"context"
	"sync"
	"testing"

	"nhpbrowser/internal/browserctl"
	"nhpbrowser/internal/config"
	"nhpbrowser/internal/core"
	"nhpbrowser/internal/core/coretest"
	"nhpbrowser/internal/logger"
	"nhpbrowser/internal/loop"
	"nhpbrowser/internal/storage/db"
	"nhpbrowser/internal/storage/repo"
	"nhpbrowser/pkg/domain"
)

type inlineRunner struct{}

func (inlineRunner) Submit(_ string, fn func()) bool {
	fn()
	return true
}

type fakeView struct {
	mu    sync.Mutex
	loads []string
}

func (v *fakeView) Load(url string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.loads = append(v.loads, url)
	return nil
}

func (v *fakeView) StopLoading() error { return nil }
func (v *fakeView) GoBack() error      { return nil }
func (v *fakeView) GoForward() error   { return nil }
func (v *fakeView) Reload() error      { return nil }

func (v *fakeView) last() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.loads) == 0 {
		return ""
	}
	return v.loads[len(v.loads)-1]
}

type emitted struct {
	mu     sync.Mutex
	events map[string][]any
}

func (e *emitted) emit(event string, data any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events[event] = append(e.events[event], data)
}

func (e *emitted) count(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.events[event])
}

type harness struct {
	app  *App
	core *coretest.Fake
	view *fakeView
	out  *emitted
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fake := coretest.New()
	fake.Protected["portal.nhp"] = true
	fake.Knocks["portal"] = coretest.Success("10.0.0.8")
	fake.QR = core.QRParseResult{Success: true, Token: "tok", OTPSeed: "SEED", ServerURL: "https://auth.example", SessionID: "s1"}

	rt := core.NewRuntime(fake, logger.NewNop())
	if err := rt.Init("", 0, "{}"); err != nil {
		t.Fatalf("内核初始化失败: %v", err)
	}

	cfg := config.NewConfig()
	a := NewApp(Options{Config: cfg, Logger: logger.NewNop(), Core: rt})
	a.ui = loop.NewInline()
	a.runner = inlineRunner{}
	out := &emitted{events: map[string][]any{}}
	a.emit = out.emit

	view := &fakeView{}
	a.start(context.Background(), db.Options{Name: db.MemoryPath}, view)
	t.Cleanup(func() { a.Shutdown(context.Background()) })

	return &harness{app: a, core: fake, view: view, out: out}
}

func TestApp_NavigateProtectedHost(t *testing.T) {
	h := newHarness(t)

	resp := h.app.Navigate("https://portal.nhp/login?x=1")
	if !resp.Success {
		t.Fatalf("导航失败: %s %s", resp.Code, resp.Message)
	}
	if resp.Data.Decision.Kind != domain.DecisionIntercepted {
		t.Errorf("受保护域名应被拦截，实际 %s", resp.Data.Decision.Kind)
	}
	if got := h.view.last(); got != "https://10.0.0.8/login?x=1" {
		t.Errorf("应加载改写后的地址，实际 %q", got)
	}

	sec := h.app.GetSecurityState()
	if !sec.Data.Security.Protected || sec.Data.Security.Level != domain.SecurityNHP {
		t.Errorf("敲门成功后应显示受保护状态: %+v", sec.Data.Security)
	}
	if h.out.count(browserctl.EventKnockStatus) == 0 {
		t.Error("未推送敲门状态事件")
	}
	if h.out.count(browserctl.EventNavDecision) < 2 {
		t.Errorf("应推送拦截与放行两个决策，实际 %d", h.out.count(browserctl.EventNavDecision))
	}

	h.app.historyRepo.Stop()
	hist := h.app.QueryKnockHistory("portal", "success", 0, 0, 0, 10)
	if !hist.Success || hist.Data.Total != 1 {
		t.Errorf("敲门历史应有 1 条成功记录: %+v", hist)
	}
}

func TestApp_KnockFailureSurfacesMessage(t *testing.T) {
	h := newHarness(t)
	h.core.Knocks["portal"] = core.KnockResult{ErrCode: "51", ErrMsg: "server refused"}

	resp := h.app.Navigate("https://portal.nhp/")
	if !resp.Success {
		t.Fatalf("导航调用本身不应失败: %+v", resp)
	}
	if h.view.last() != "" {
		t.Errorf("敲门失败不应加载任何地址，实际 %q", h.view.last())
	}
	if h.app.GetSecurityState().Data.Security.Protected {
		t.Error("敲门失败后不应显示受保护状态")
	}
}

func TestApp_CloseLastTab(t *testing.T) {
	h := newHarness(t)

	resp := h.app.CloseActiveTab()
	if resp.Success || resp.Code != CodeLastTab {
		t.Errorf("关闭最后一个标签应返回 %s，实际 %+v", CodeLastTab, resp)
	}

	tabs := h.app.NewTab()
	if len(tabs.Data.Tabs.Tabs) != 2 || tabs.Data.Tabs.Active != 1 {
		t.Fatalf("新建标签后应有两个标签且激活第二个: %+v", tabs.Data.Tabs)
	}
	if r := h.app.SwitchTab(1); !r.Success || r.Data.Tabs.Active != 1 {
		t.Errorf("切换到当前标签应为空操作并返回成功: %+v", r)
	}
	if r := h.app.SwitchTab(5); r.Success || r.Code != CodeTabNotFound {
		t.Errorf("越界切换应返回 %s，实际 %+v", CodeTabNotFound, r)
	}
	closed := h.app.CloseActiveTab()
	if !closed.Success || len(closed.Data.Tabs.Tabs) != 1 {
		t.Errorf("关闭标签失败: %+v", closed)
	}
}

func TestApp_ClearBrowsingData(t *testing.T) {
	h := newHarness(t)
	h.app.NewTab()
	h.app.Navigate("https://portal.nhp/")

	resp := h.app.ClearBrowsingData()
	if !resp.Success {
		t.Fatalf("清除浏览数据失败: %+v", resp)
	}
	tabs := h.app.ListTabs().Data.Tabs
	if len(tabs.Tabs) != 1 {
		t.Errorf("清除后应只剩一个标签，实际 %d", len(tabs.Tabs))
	}
	if h.app.GetSecurityState().Data.Security.Protected {
		t.Error("清除后不应保留受保护状态")
	}
}

func TestApp_QRLogin(t *testing.T) {
	h := newHarness(t)

	scan := h.app.StartQRLogin("nhp://scan?server=https://auth.example&sid=s1")
	if !scan.Success {
		t.Fatalf("扫码失败: %+v", scan)
	}
	if scan.Data.State.Phase != domain.QRAwaitingConfirmation {
		t.Fatalf("扫码后应等待确认，实际 %s", scan.Data.State.Phase)
	}

	confirm := h.app.ConfirmQRLogin()
	if !confirm.Success || confirm.Data.State.Phase != domain.QRSuccess {
		t.Fatalf("确认登录应成功: %+v", confirm)
	}
	if h.core.LastVerify().Token != "tok" {
		t.Errorf("校验请求未携带令牌: %+v", h.core.LastVerify())
	}
	if h.out.count(browserctl.EventQRPhaseChanged) == 0 {
		t.Error("未推送扫码阶段事件")
	}

	bad := h.app.StartQRLogin("garbage")
	if bad.Success {
		t.Error("无效二维码应失败")
	}
}

func TestApp_SettingsApplyHome(t *testing.T) {
	h := newHarness(t)

	s := repo.Settings{HomeURL: "https://start.example/", SearchURL: "https://s.example/?q=", Language: "en", Theme: "dark"}
	if resp := h.app.SaveSettings(s); !resp.Success {
		t.Fatalf("保存设置失败: %+v", resp)
	}
	if got := h.app.GetSettings().Data.Settings; got != s {
		t.Errorf("读取设置不一致: %+v", got)
	}

	h.app.GoHome()
	if got := h.view.last(); got != "https://start.example/" {
		t.Errorf("回到主页应加载新主页，实际 %q", got)
	}

	h.app.Navigate("hello world")
	if got := h.view.last(); got != "https://s.example/?q=hello+world" {
		t.Errorf("搜索应使用新的搜索前缀，实际 %q", got)
	}

	if resp := h.app.SaveSettings(repo.Settings{}); resp.Success {
		t.Error("空主页不应保存成功")
	}
}

func TestApp_Bookmarks(t *testing.T) {
	h := newHarness(t)

	add := h.app.AddBookmark("门户", "https://portal.nhp/")
	if !add.Success {
		t.Fatalf("添加书签失败: %+v", add)
	}
	dup := h.app.AddBookmark("门户", "https://portal.nhp/")
	if dup.Success || dup.Code != CodeBookmarkExists {
		t.Errorf("重复书签应返回 %s，实际 %+v", CodeBookmarkExists, dup)
	}
	list := h.app.ListBookmarks()
	if len(list.Data.Bookmarks) != 1 {
		t.Errorf("应有 1 个书签，实际 %d", len(list.Data.Bookmarks))
	}
	if del := h.app.DeleteBookmark(add.Data.Bookmark.ID); !del.Success {
		t.Errorf("删除书签失败: %+v", del)
	}
}

func TestApp_CoreStatus(t *testing.T) {
	h := newHarness(t)
	if got := h.app.GetCoreStatus().Data.State; got != string(core.StateReady) {
		t.Errorf("内核状态应为 ready，实际 %s", got)
	}
}

func TestApp_NotStarted(t *testing.T) {
	a := NewApp(Options{})
	resp := a.Navigate("https://a.example/")
	if resp.Success || resp.Code != CodeUIUnavailable {
		t.Errorf("未启动时应返回 %s，实际 %+v", CodeUIUnavailable, resp)
	}
	if r := a.ListBookmarks(); r.Code != CodeDatabaseError {
		t.Errorf("未初始化数据库时应返回 %s，实际 %+v", CodeDatabaseError, r)
	}
}
