package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nhpbrowser/internal/browserctl"
	"nhpbrowser/internal/core"
	"nhpbrowser/internal/core/coretest"
	"nhpbrowser/internal/logger"
	"nhpbrowser/internal/loop"
	"nhpbrowser/pkg/domain"
)

type rawResponse struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *ErrorObject    `json:"error"`
}

type testEnv struct {
	srv   *httptest.Server
	core  *coretest.Fake
	queue *Queue
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fake := coretest.New()
	fake.Protected["portal.nhp"] = true
	fake.Knocks["portal"] = coretest.Success("10.0.0.8")
	fake.QR = core.QRParseResult{Success: true, Token: "tok", OTPSeed: "SEED", ServerURL: "https://auth.example", SessionID: "s1"}

	q := NewQueue(16)
	ui := loop.NewInline()
	ctl := browserctl.New(browserctl.Options{
		Core:     fake,
		Renderer: q,
		Listener: q,
		UI:       ui,
		HomeURL:  "https://home.example/",
	})
	t.Cleanup(ctl.Close)

	srv := httptest.NewServer(NewServer(ctl, ui, q, logger.NewNop()))
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, core: fake, queue: q}
}

func (e *testEnv) call(t *testing.T, method string, params any) rawResponse {
	t.Helper()
	body := map[string]any{"method": method, "id": "1"}
	if params != nil {
		body["params"] = params
	}
	buf, _ := json.Marshal(body)
	resp, err := http.Post(e.srv.URL, "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("请求失败: %v", err)
	}
	defer resp.Body.Close()
	var out rawResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	return out
}

func (e *testEnv) poll(t *testing.T, since uint64) pollResult {
	t.Helper()
	res := e.call(t, "events.poll", map[string]any{"since": since})
	if res.Error != nil {
		t.Fatalf("拉取事件失败: %+v", res.Error)
	}
	var out pollResult
	var raw struct {
		Events []struct {
			Seq  uint64          `json:"seq"`
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		} `json:"events"`
		Last uint64 `json:"last"`
	}
	if err := json.Unmarshal(res.Result, &raw); err != nil {
		t.Fatalf("解析事件失败: %v", err)
	}
	out.Last = raw.Last
	for _, ev := range raw.Events {
		out.Events = append(out.Events, Event{Seq: ev.Seq, Type: ev.Type, Data: ev.Data})
	}
	return out
}

func loadsOf(events []Event) []string {
	var urls []string
	for _, ev := range events {
		if ev.Type != EventRenderLoad {
			continue
		}
		var cmd loadCommand
		if raw, ok := ev.Data.(json.RawMessage); ok && json.Unmarshal(raw, &cmd) == nil {
			urls = append(urls, cmd.URL)
		}
	}
	return urls
}

func TestServer_MethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET 应返回 405，实际 %d", resp.StatusCode)
	}
}

func TestServer_UnknownMethod(t *testing.T) {
	env := newTestEnv(t)
	res := env.call(t, "nope", nil)
	if res.Error == nil || res.Error.Code != ErrMethodNotFound.Code {
		t.Errorf("未知方法应返回 %s，实际 %+v", ErrMethodNotFound.Code, res.Error)
	}
	if res.ID != "1" {
		t.Errorf("响应应回传请求ID，实际 %q", res.ID)
	}
}

func TestServer_NavigateProtectedHost(t *testing.T) {
	env := newTestEnv(t)

	res := env.call(t, "navigate", map[string]any{"input": "https://portal.nhp/login"})
	if res.Error != nil {
		t.Fatalf("导航失败: %+v", res.Error)
	}
	var d domain.NavigationDecision
	if err := json.Unmarshal(res.Result, &d); err != nil {
		t.Fatal(err)
	}
	if d.Kind != domain.DecisionIntercepted {
		t.Errorf("受保护域名应被拦截，实际 %s", d.Kind)
	}

	polled := env.poll(t, 0)
	loads := loadsOf(polled.Events)
	if len(loads) != 1 || loads[0] != "https://10.0.0.8/login" {
		t.Errorf("应下发改写后的加载指令，实际 %v", loads)
	}
	if polled.Last == 0 {
		t.Error("最新序号不应为 0")
	}

	after := env.poll(t, polled.Last)
	if len(after.Events) != 0 {
		t.Errorf("已拉取的事件不应重复返回: %+v", after.Events)
	}
}

func TestServer_BeforeNavigateAndPageEvents(t *testing.T) {
	env := newTestEnv(t)

	res := env.call(t, "beforeNavigate", map[string]any{"url": "https://public.example/"})
	var d domain.NavigationDecision
	if err := json.Unmarshal(res.Result, &d); err != nil {
		t.Fatal(err)
	}
	if !d.Allowed() || d.URL != "https://public.example/" {
		t.Errorf("普通域名应放行: %+v", d)
	}

	res = env.call(t, "pageStarted", map[string]any{"url": "https://public.example/"})
	var sec domain.SecurityState
	if err := json.Unmarshal(res.Result, &sec); err != nil {
		t.Fatal(err)
	}
	if sec.Protected || sec.Level != domain.SecuritySecure {
		t.Errorf("普通 https 页面应为 secure: %+v", sec)
	}

	if res := env.call(t, "beforeNavigate", nil); res.Error == nil || res.Error.Code != ErrInvalidParams.Code {
		t.Errorf("缺少 url 应返回参数错误: %+v", res.Error)
	}
}

func TestServer_Tabs(t *testing.T) {
	env := newTestEnv(t)

	if res := env.call(t, "tab.close", nil); res.Error == nil || res.Error.Code != "last_tab" {
		t.Errorf("关闭最后一个标签应返回 last_tab: %+v", res.Error)
	}

	res := env.call(t, "tab.new", nil)
	var snap domain.TabsSnapshot
	if err := json.Unmarshal(res.Result, &snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Tabs) != 2 || snap.Active != 1 {
		t.Fatalf("新建后应有两个标签并激活第二个: %+v", snap)
	}

	if res := env.call(t, "tab.switch", map[string]any{"index": 1}); res.Error != nil {
		t.Errorf("切换到当前标签应为空操作: %+v", res.Error)
	}
	if res := env.call(t, "tab.switch", map[string]any{"index": 9}); res.Error == nil || res.Error.Code != "tab_not_found" {
		t.Errorf("越界切换应返回 tab_not_found: %+v", res.Error)
	}

	res = env.call(t, "tab.close", map[string]any{"id": int64(snap.Tabs[0].ID)})
	if res.Error != nil {
		t.Fatalf("按ID关闭失败: %+v", res.Error)
	}
	if err := json.Unmarshal(res.Result, &snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Tabs) != 1 || snap.Active != 0 {
		t.Errorf("关闭后应剩一个标签: %+v", snap)
	}
}

func TestServer_QRFlow(t *testing.T) {
	env := newTestEnv(t)

	res := env.call(t, "qr.scan", map[string]any{"raw": "nhp://scan?sid=s1"})
	var st domain.QRState
	if err := json.Unmarshal(res.Result, &st); err != nil {
		t.Fatal(err)
	}
	if st.Phase != domain.QRAwaitingConfirmation {
		t.Fatalf("扫码后应等待确认，实际 %s", st.Phase)
	}

	res = env.call(t, "qr.confirm", nil)
	if err := json.Unmarshal(res.Result, &st); err != nil {
		t.Fatal(err)
	}
	if st.Phase != domain.QRSuccess {
		t.Errorf("确认后应成功，实际 %s", st.Phase)
	}
	if env.core.LastVerify().Token != "tok" {
		t.Errorf("校验请求未携带令牌: %+v", env.core.LastVerify())
	}

	if res := env.call(t, "qr.confirm", nil); res.Error == nil || res.Error.Code != "qr_no_pending_scan" {
		t.Errorf("无待确认扫码时应返回 qr_no_pending_scan: %+v", res.Error)
	}
}

func TestServer_PollWaitsForEvent(t *testing.T) {
	env := newTestEnv(t)
	last := env.queue.LastSeq()

	go func() {
		time.Sleep(50 * time.Millisecond)
		env.queue.Reload()
	}()

	res := env.call(t, "events.poll", map[string]any{"since": last, "waitMs": 2000})
	var out struct {
		Events []Event `json:"events"`
	}
	if err := json.Unmarshal(res.Result, &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Events) != 1 || out.Events[0].Type != EventRenderReload {
		t.Errorf("长轮询应返回新事件: %+v", out.Events)
	}
}

type failingUI struct{}

func (failingUI) Do(context.Context, func()) error { return errors.New("loop stopped") }

func TestServer_UIUnavailable(t *testing.T) {
	srv := NewServer(browserctl.New(browserctl.Options{}), failingUI{}, nil, nil)
	res := srv.dispatch(context.Background(), &Request{Method: "tab.list"})
	if res.Error == nil || res.Error.Code != ErrUnavailable.Code {
		t.Errorf("界面线程不可用时应返回 %s: %+v", ErrUnavailable.Code, res.Error)
	}
}

func TestQueue_DropsOldest(t *testing.T) {
	q := NewQueue(2)
	q.Reload()
	q.GoBack()
	q.GoForward()

	events, _ := q.Since(0)
	if len(events) != 2 || events[0].Type != EventRenderBack {
		t.Errorf("超出容量应丢弃最旧事件: %+v", events)
	}
	if q.LastSeq() != 3 {
		t.Errorf("最新序号应为 3，实际 %d", q.LastSeq())
	}
}
