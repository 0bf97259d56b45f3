package gui

import (
	"nhpbrowser/internal/browserctl"
	"nhpbrowser/pkg/domain"
	"nhpbrowser/pkg/errx"
)

var _ browserctl.Listener = (*App)(nil)

func (a *App) emitEvent(event string, data any) {
	if a.emit != nil {
		a.emit(event, data)
	}
}

// OnNavigationDecision 推送导航决策
func (a *App) OnNavigationDecision(d domain.NavigationDecision) {
	a.emitEvent(browserctl.EventNavDecision, d)
}

// OnTabsChanged 推送标签页列表
func (a *App) OnTabsChanged(tabs domain.TabsSnapshot) {
	a.emitEvent(browserctl.EventTabsChanged, tabs)
}

// OnSecurityStateChanged 推送地址栏安全状态
func (a *App) OnSecurityStateChanged(s domain.SecurityState) {
	a.emitEvent(browserctl.EventSecurityChanged, s)
}

// OnQRPhaseChanged 推送扫码登录阶段
func (a *App) OnQRPhaseChanged(s domain.QRState) {
	a.emitEvent(browserctl.EventQRPhaseChanged, s)
}

// OnKnockStatus 推送敲门指示器状态
func (a *App) OnKnockStatus(pending bool, host, message string) {
	a.emitEvent(browserctl.EventKnockStatus, browserctl.KnockStatus{Pending: pending, Host: host, Message: message})
}

// OnError 推送错误提示
func (a *App) OnError(code errx.Code, message string) {
	a.emitEvent(browserctl.EventAppError, browserctl.AppError{Code: string(code), Message: message})
}
