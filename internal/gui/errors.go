package gui

import (
	"errors"
	"strings"

	"nhpbrowser/pkg/domain"
	"nhpbrowser/pkg/errx"
)

// 错误码常量
const (
	CodeLastTab            = "LAST_TAB"
	CodeTabNotFound        = "TAB_NOT_FOUND"
	CodeInvalidURL         = "INVALID_URL"
	CodeHandshakeBusy      = "QR_HANDSHAKE_BUSY"
	CodeNoPendingScan      = "QR_NO_PENDING_SCAN"
	CodeCoreNotReady       = "CORE_NOT_READY"
	CodeBookmarkExists     = "BOOKMARK_EXISTS"
	CodeRecordNotFound     = "RECORD_NOT_FOUND"
	CodeRendererDetached   = "RENDERER_DETACHED"
	CodeBrowserNotRunning  = "BROWSER_NOT_RUNNING"
	CodeBrowserStartFailed = "BROWSER_START_FAILED"
	CodeInvalidConfig      = "INVALID_CONFIG"
	CodeDatabaseError      = "DATABASE_ERROR"
	CodeNetworkError       = "NETWORK_ERROR"
	CodeUIUnavailable      = "UI_UNAVAILABLE"
	CodeUnknown            = "UNKNOWN_ERROR"
)

// 错误映射表（仅返回错误码，前端根据错误码进行国际化）
var errorMappings = []struct {
	err  error
	code string
}{
	{domain.ErrLastTab, CodeLastTab},
	{domain.ErrTabNotFound, CodeTabNotFound},
	{domain.ErrInvalidURL, CodeInvalidURL},
	{domain.ErrHandshakeBusy, CodeHandshakeBusy},
	{domain.ErrNoPendingScan, CodeNoPendingScan},
	{domain.ErrCoreNotReady, CodeCoreNotReady},
	{domain.ErrBookmarkExists, CodeBookmarkExists},
	{domain.ErrRecordNotFound, CodeRecordNotFound},
	{domain.ErrRendererDetached, CodeRendererDetached},
	{domain.ErrBrowserNotRunning, CodeBrowserNotRunning},
	{domain.ErrBrowserStartFailed, CodeBrowserStartFailed},
	{domain.ErrInvalidConfig, CodeInvalidConfig},
	{domain.ErrConfigNotFound, CodeInvalidConfig},
	{domain.ErrDatabaseNotInitialized, CodeDatabaseError},
	{errNotStarted, CodeUIUnavailable},
}

// translateError 将错误转换为错误码，带用户提示的业务错误同时返回提示文本
func (a *App) translateError(err error) (code, message string) {
	if err == nil {
		return "", ""
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			a.log.Warn("业务错误", "code", m.code, "error", err)
			return m.code, ""
		}
	}

	// 状态机类错误带有面向用户的提示
	if c := errx.CodeOf(err); c != "" {
		a.log.Warn("业务错误", "code", string(c), "error", err)
		return string(c), errx.MessageOf(err)
	}

	errStr := err.Error()
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "dial tcp") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") {
		a.log.Err(err, "网络错误")
		return CodeNetworkError, ""
	}

	a.log.Err(err, "未知错误")
	return CodeUnknown, errStr
}
