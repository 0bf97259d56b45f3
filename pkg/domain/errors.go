package domain

import "errors"

// 内核相关错误
var (
	ErrCoreNotReady     = errors.New("protocol core not ready")
	ErrCoreNotLinked    = errors.New("protocol core not linked")
	ErrCorePanic        = errors.New("protocol core panicked")
	ErrCoreInitFailed   = errors.New("protocol core init failed")
	ErrInvalidCoreReply = errors.New("invalid protocol core reply")
)

// 导航相关错误
var (
	ErrClassificationDegraded = errors.New("domain classification degraded")
	ErrKnockFailed            = errors.New("knock failed")
	ErrInvalidURL             = errors.New("invalid url")
)

// 标签页相关错误
var (
	ErrLastTab     = errors.New("at least one tab required")
	ErrTabNotFound = errors.New("tab not found")
)

// 扫码登录相关错误
var (
	ErrQRParseFailed  = errors.New("invalid QR code")
	ErrNotifyFailed   = errors.New("scan notification failed")
	ErrTOTPFailed     = errors.New("failed to generate OTP code")
	ErrVerifyFailed   = errors.New("authentication failed")
	ErrHandshakeBusy  = errors.New("qr handshake busy")
	ErrNoPendingScan  = errors.New("no pending scan")
	ErrStaleQRSession = errors.New("stale qr session")
)

// 配置相关错误
var (
	ErrInvalidConfig  = errors.New("invalid config")
	ErrConfigNotFound = errors.New("config not found")
)

// 浏览器相关错误
var (
	ErrBrowserNotRunning  = errors.New("browser not running")
	ErrBrowserStartFailed = errors.New("browser start failed")
	ErrRendererDetached   = errors.New("renderer detached")
)

// 数据库相关错误
var (
	ErrDatabaseNotInitialized = errors.New("database not initialized")
	ErrRecordNotFound         = errors.New("record not found")
	ErrBookmarkExists         = errors.New("bookmark already exists")
)
