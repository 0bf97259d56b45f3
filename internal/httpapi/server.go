// Package httpapi 为轻量平台外壳（如移动端 WebView 包装）提供 POST-only 的
// JSON-RPC 风格接口，外壳上报页面事件并通过 events.poll 拉取渲染指令与通知。
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"nhpbrowser/internal/logger"
	"nhpbrowser/pkg/domain"
	"nhpbrowser/pkg/errx"
)

// Controller 外壳可调用的控制器操作
type Controller interface {
	Navigate(input string) (domain.NavigationDecision, error)
	BeforeNavigate(rawURL string) domain.NavigationDecision
	Home() (domain.NavigationDecision, error)
	GoBack() error
	GoForward() error
	Reload() error
	PageStarted(rawURL string)
	PageFinished(title, rawURL string)
	PageFailed(rawURL string)
	Security() domain.SecurityState

	Tabs() domain.TabsSnapshot
	NewTab(activate bool) domain.Tab
	SwitchTab(index int) bool
	CloseActiveTab() error
	CloseTab(id domain.TabID) error
	ClearBrowsingData() domain.Tab

	ScanQR(raw string) error
	ConfirmQR() error
	CancelQR() error
	DismissQR() error
	QRState() domain.QRState
}

// UI 界面线程，控制器方法都在其中执行
type UI interface {
	Do(ctx context.Context, fn func()) error
}

// maxPollWait 长轮询最长等待时间
const maxPollWait = 25 * time.Second

// Server 提供给外壳的 HTTP 接口入口
type Server struct {
	ctl    Controller
	ui     UI
	events *Queue
	log    logger.Logger
}

// NewServer 创建 HTTP 接口服务
func NewServer(ctl Controller, ui UI, events *Queue, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	if events == nil {
		events = NewQueue(0)
	}
	return &Server{ctl: ctl, ui: ui, events: events, log: log}
}

// ServeHTTP 处理所有外壳请求
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ErrInvalidRequest.withError(err))
		return
	}
	res := s.dispatch(r.Context(), &req)
	writeResponse(w, res)
}

// Request 表示通用请求结构
type Request struct {
	Method string          `json:"method"`
	ID     string          `json:"id,omitempty"`
	Params json.RawMessage `json:"params"`
}

// Response 表示通用响应结构
type Response struct {
	ID     string       `json:"id,omitempty"`
	Result any          `json:"result,omitempty"`
	Error  *ErrorObject `json:"error,omitempty"`
}

// ErrorObject 表示错误信息
type ErrorObject struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ApiError 表示内部错误类型
type ApiError struct {
	Code string
	Err  error
}

func (e ApiError) withError(err error) ApiError {
	return ApiError{Code: e.Code, Err: err}
}

var (
	// ErrInvalidRequest 无效请求
	ErrInvalidRequest = ApiError{Code: "invalid_request"}
	// ErrMethodNotFound 方法不存在
	ErrMethodNotFound = ApiError{Code: "method_not_found"}
	// ErrInvalidParams 参数错误
	ErrInvalidParams = ApiError{Code: "invalid_params"}
	// ErrUnavailable 界面线程不可用
	ErrUnavailable = ApiError{Code: "unavailable"}
	// ErrInternal 内部错误
	ErrInternal = ApiError{Code: "internal"}
)

type urlParams struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

type inputParams struct {
	Input string `json:"input"`
}

type tabNewParams struct {
	Activate *bool `json:"activate,omitempty"`
}

type tabSwitchParams struct {
	Index int `json:"index"`
}

type tabCloseParams struct {
	ID *int64 `json:"id,omitempty"`
}

type qrScanParams struct {
	Raw string `json:"raw"`
}

type pollParams struct {
	Since  uint64 `json:"since"`
	WaitMS int    `json:"waitMs"`
}

type pollResult struct {
	Events []Event `json:"events"`
	Last   uint64  `json:"last"`
}

// dispatch 根据 method 分发请求
func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	var (
		result any
		err    *ErrorObject
	)
	switch req.Method {
	case "navigate":
		result, err = s.handleNavigate(ctx, req.Params)
	case "beforeNavigate":
		result, err = s.handleBeforeNavigate(ctx, req.Params)
	case "home":
		result, err = s.call(ctx, func() (any, error) { return s.ctl.Home() })
	case "goBack":
		result, err = s.call(ctx, func() (any, error) { return nil, s.ctl.GoBack() })
	case "goForward":
		result, err = s.call(ctx, func() (any, error) { return nil, s.ctl.GoForward() })
	case "reload":
		result, err = s.call(ctx, func() (any, error) { return nil, s.ctl.Reload() })
	case "pageStarted", "pageFinished", "pageFailed":
		result, err = s.handlePageEvent(ctx, req.Method, req.Params)
	case "security":
		result, err = s.call(ctx, func() (any, error) { return s.ctl.Security(), nil })
	case "tab.new":
		result, err = s.handleTabNew(ctx, req.Params)
	case "tab.switch":
		result, err = s.handleTabSwitch(ctx, req.Params)
	case "tab.close":
		result, err = s.handleTabClose(ctx, req.Params)
	case "tab.list":
		result, err = s.call(ctx, func() (any, error) { return s.ctl.Tabs(), nil })
	case "clear":
		result, err = s.call(ctx, func() (any, error) { return s.ctl.ClearBrowsingData(), nil })
	case "qr.scan":
		result, err = s.handleQRScan(ctx, req.Params)
	case "qr.confirm":
		result, err = s.qrCall(ctx, s.ctl.ConfirmQR)
	case "qr.cancel":
		result, err = s.qrCall(ctx, s.ctl.CancelQR)
	case "qr.dismiss":
		result, err = s.qrCall(ctx, s.ctl.DismissQR)
	case "qr.state":
		result, err = s.call(ctx, func() (any, error) { return s.ctl.QRState(), nil })
	case "events.poll":
		result, err = s.handlePoll(ctx, req.Params)
	default:
		err = toErrorObject(ErrMethodNotFound)
	}
	return &Response{ID: req.ID, Result: result, Error: err}
}

// call 在界面线程中执行控制器操作
func (s *Server) call(ctx context.Context, fn func() (any, error)) (any, *ErrorObject) {
	var (
		out any
		err error
	)
	if derr := s.ui.Do(ctx, func() { out, err = fn() }); derr != nil {
		return nil, toErrorObject(ErrUnavailable.withError(derr))
	}
	if err != nil {
		return nil, s.fromError(err)
	}
	return out, nil
}

func (s *Server) qrCall(ctx context.Context, fn func() error) (any, *ErrorObject) {
	return s.call(ctx, func() (any, error) {
		err := fn()
		return s.ctl.QRState(), err
	})
}

// sentinelCodes 外壳需要区分处理的业务错误
var sentinelCodes = []struct {
	err  error
	code string
}{
	{domain.ErrLastTab, "last_tab"},
	{domain.ErrTabNotFound, "tab_not_found"},
	{domain.ErrHandshakeBusy, "qr_busy"},
	{domain.ErrNoPendingScan, "qr_no_pending_scan"},
}

// fromError 业务错误转换为带错误码的响应
func (s *Server) fromError(err error) *ErrorObject {
	for _, m := range sentinelCodes {
		if errors.Is(err, m.err) {
			return &ErrorObject{Code: m.code, Message: errx.MessageOf(err)}
		}
	}
	if code := errx.CodeOf(err); code != "" {
		return &ErrorObject{Code: string(code), Message: errx.MessageOf(err)}
	}
	s.log.Err(err, "外壳请求处理失败")
	return toErrorObject(ErrInternal.withError(err))
}

// writeResponse 写出统一响应
func writeResponse(w http.ResponseWriter, res *Response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(res)
}

// writeError 写出错误响应
func writeError(w http.ResponseWriter, apiErr ApiError) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(&Response{Error: toErrorObject(apiErr)})
}

// toErrorObject 转换错误为响应错误对象
func toErrorObject(e ApiError) *ErrorObject {
	msg := e.Code
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return &ErrorObject{Code: e.Code, Message: msg}
}

// decode 解析参数，params 为空时保持零值
func decode(params json.RawMessage, v any) *ErrorObject {
	if len(params) == 0 || string(params) == "null" {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return toErrorObject(ErrInvalidParams.withError(err))
	}
	return nil
}

func (s *Server) handleNavigate(ctx context.Context, params json.RawMessage) (any, *ErrorObject) {
	var p inputParams
	if e := decode(params, &p); e != nil {
		return nil, e
	}
	if p.Input == "" {
		return nil, toErrorObject(ErrInvalidParams.withError(errors.New("input is required")))
	}
	return s.call(ctx, func() (any, error) { return s.ctl.Navigate(p.Input) })
}

// handleBeforeNavigate 外壳在页面发起导航前询问是否放行
func (s *Server) handleBeforeNavigate(ctx context.Context, params json.RawMessage) (any, *ErrorObject) {
	var p urlParams
	if e := decode(params, &p); e != nil {
		return nil, e
	}
	if p.URL == "" {
		return nil, toErrorObject(ErrInvalidParams.withError(errors.New("url is required")))
	}
	return s.call(ctx, func() (any, error) { return s.ctl.BeforeNavigate(p.URL), nil })
}

func (s *Server) handlePageEvent(ctx context.Context, method string, params json.RawMessage) (any, *ErrorObject) {
	var p urlParams
	if e := decode(params, &p); e != nil {
		return nil, e
	}
	return s.call(ctx, func() (any, error) {
		switch method {
		case "pageStarted":
			s.ctl.PageStarted(p.URL)
		case "pageFinished":
			s.ctl.PageFinished(p.Title, p.URL)
		default:
			s.ctl.PageFailed(p.URL)
		}
		return s.ctl.Security(), nil
	})
}

func (s *Server) handleTabNew(ctx context.Context, params json.RawMessage) (any, *ErrorObject) {
	p := tabNewParams{}
	if e := decode(params, &p); e != nil {
		return nil, e
	}
	activate := p.Activate == nil || *p.Activate
	return s.call(ctx, func() (any, error) {
		s.ctl.NewTab(activate)
		return s.ctl.Tabs(), nil
	})
}

func (s *Server) handleTabSwitch(ctx context.Context, params json.RawMessage) (any, *ErrorObject) {
	var p tabSwitchParams
	if e := decode(params, &p); e != nil {
		return nil, e
	}
	return s.call(ctx, func() (any, error) {
		if p.Index < 0 || p.Index >= len(s.ctl.Tabs().Tabs) {
			return nil, domain.ErrTabNotFound
		}
		s.ctl.SwitchTab(p.Index)
		return s.ctl.Tabs(), nil
	})
}

// handleTabClose 未指定 id 时关闭当前标签
func (s *Server) handleTabClose(ctx context.Context, params json.RawMessage) (any, *ErrorObject) {
	var p tabCloseParams
	if e := decode(params, &p); e != nil {
		return nil, e
	}
	return s.call(ctx, func() (any, error) {
		var err error
		if p.ID == nil {
			err = s.ctl.CloseActiveTab()
		} else {
			err = s.ctl.CloseTab(domain.TabID(*p.ID))
		}
		if err != nil {
			return nil, err
		}
		return s.ctl.Tabs(), nil
	})
}

func (s *Server) handleQRScan(ctx context.Context, params json.RawMessage) (any, *ErrorObject) {
	var p qrScanParams
	if e := decode(params, &p); e != nil {
		return nil, e
	}
	return s.qrCall(ctx, func() error { return s.ctl.ScanQR(p.Raw) })
}

// handlePoll 返回 since 之后的事件，没有新事件时最多等待 waitMs 毫秒
func (s *Server) handlePoll(ctx context.Context, params json.RawMessage) (any, *ErrorObject) {
	var p pollParams
	if e := decode(params, &p); e != nil {
		return nil, e
	}
	wait := time.Duration(p.WaitMS) * time.Millisecond
	if wait > maxPollWait {
		wait = maxPollWait
	}

	events, changed := s.events.Since(p.Since)
	if len(events) == 0 && wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-changed:
			events, _ = s.events.Since(p.Since)
		case <-timer.C:
		case <-ctx.Done():
		}
	}
	return pollResult{Events: events, Last: s.events.LastSeq()}, nil
}
