package browserctl

import (
	"nhpbrowser/pkg/domain"
	"nhpbrowser/pkg/errx"
)

// 推送给外壳的事件名
const (
	EventNavDecision     = "nav-decision"
	EventTabsChanged     = "tabs-changed"
	EventSecurityChanged = "security-changed"
	EventQRPhaseChanged  = "qr-phase-changed"
	EventKnockStatus     = "knock-status"
	EventAppError        = "app-error"
)

// KnockStatus 敲门指示器状态
type KnockStatus struct {
	Pending bool   `json:"pending"`
	Host    string `json:"host"`
	Message string `json:"message,omitempty"`
}

// AppError 推送给外壳的错误
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Listener 控制器向界面层推送的通知，均在界面线程中调用
type Listener interface {
	OnNavigationDecision(d domain.NavigationDecision)
	OnTabsChanged(tabs domain.TabsSnapshot)
	OnSecurityStateChanged(s domain.SecurityState)
	OnQRPhaseChanged(s domain.QRState)
	// OnKnockStatus pending 为 true 时显示“敲门中”指示
	OnKnockStatus(pending bool, host, message string)
	OnError(code errx.Code, message string)
}

// Renderer 页面渲染器（WebView / Chromium 标签页）
type Renderer interface {
	Load(url string) error
	StopLoading() error
	GoBack() error
	GoForward() error
	Reload() error
}

// KnockRecorder 敲门历史记录
type KnockRecorder interface {
	Record(ev domain.KnockEvent)
}

// NopListener 忽略所有通知
type NopListener struct{}

func (NopListener) OnNavigationDecision(domain.NavigationDecision) {}
func (NopListener) OnTabsChanged(domain.TabsSnapshot)              {}
func (NopListener) OnSecurityStateChanged(domain.SecurityState)    {}
func (NopListener) OnQRPhaseChanged(domain.QRState)                {}
func (NopListener) OnKnockStatus(bool, string, string)             {}
func (NopListener) OnError(errx.Code, string)                      {}

// Listeners 将通知分发给多个监听者
type Listeners []Listener

func (ls Listeners) OnNavigationDecision(d domain.NavigationDecision) {
	for _, l := range ls {
		l.OnNavigationDecision(d)
	}
}

func (ls Listeners) OnTabsChanged(tabs domain.TabsSnapshot) {
	for _, l := range ls {
		l.OnTabsChanged(tabs)
	}
}

func (ls Listeners) OnSecurityStateChanged(s domain.SecurityState) {
	for _, l := range ls {
		l.OnSecurityStateChanged(s)
	}
}

func (ls Listeners) OnQRPhaseChanged(s domain.QRState) {
	for _, l := range ls {
		l.OnQRPhaseChanged(s)
	}
}

func (ls Listeners) OnKnockStatus(pending bool, host, message string) {
	for _, l := range ls {
		l.OnKnockStatus(pending, host, message)
	}
}

func (ls Listeners) OnError(code errx.Code, message string) {
	for _, l := range ls {
		l.OnError(code, message)
	}
}
