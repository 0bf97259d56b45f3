package domain

import "fmt"

// TabID 标签页ID，会话内单调递增且不复用
type TabID int64

// DefaultTabTitle 新建标签页的默认标题
const DefaultTabTitle = "New Tab"

// SuccessCode 敲门成功的错误码
const SuccessCode = "0"

// Tab 浏览标签页
type Tab struct {
	ID        TabID  `json:"id"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	Protected bool   `json:"protected"` // 当前页面是否经敲门访问
}

// TabsSnapshot 标签页列表快照
type TabsSnapshot struct {
	Tabs   []Tab `json:"tabs"`
	Active int   `json:"active"`
}

// DecisionKind 导航决策类型
type DecisionKind string

const (
	DecisionAllow       DecisionKind = "allow"
	DecisionIntercepted DecisionKind = "intercepted"
)

// NavigationDecision 导航守卫的决策结果
type NavigationDecision struct {
	Kind DecisionKind `json:"kind"`
	URL  string       `json:"url"`
	Host string       `json:"host,omitempty"`
}

// Allow 放行决策，URL 原样返回
func Allow(url string) NavigationDecision {
	return NavigationDecision{Kind: DecisionAllow, URL: url}
}

// Intercepted 拦截决策，等待敲门结果
func Intercepted(url, host string) NavigationDecision {
	return NavigationDecision{Kind: DecisionIntercepted, URL: url, Host: host}
}

// Allowed 是否放行
func (d NavigationDecision) Allowed() bool { return d.Kind == DecisionAllow }

// KnockOutcome 单次敲门的结果，只服务于一次导航
type KnockOutcome struct {
	Success      bool   `json:"success"`
	ResolvedHost string `json:"resolvedHost"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
	OpenTime     int    `json:"openTime"`
}

// UserMessage 面向用户的失败提示
func (o KnockOutcome) UserMessage() string {
	if o.ErrorMessage != "" {
		return "knock failed: " + o.ErrorMessage
	}
	return fmt.Sprintf("knock failed (code: %s)", o.ErrorCode)
}

// KnockEvent 敲门事件，供历史记录与前端展示
type KnockEvent struct {
	TabID        TabID  `json:"tabId"`
	Host         string `json:"host"`
	ResolvedHost string `json:"resolvedHost"`
	URL          string `json:"url"` // 改写后的 URL，失败时为原始 URL
	Success      bool   `json:"success"`
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	Timestamp    int64  `json:"timestamp"`
}

// SecurityLevel 地址栏安全图标等级
type SecurityLevel string

const (
	SecurityNHP      SecurityLevel = "nhp"
	SecuritySecure   SecurityLevel = "secure"
	SecurityInsecure SecurityLevel = "insecure"
)

// SecurityState 当前页面安全状态
type SecurityState struct {
	Protected bool          `json:"protected"`
	Level     SecurityLevel `json:"level"`
	URL       string        `json:"url"`
}

// QRPhase 扫码登录阶段
type QRPhase string

const (
	QRIdle                 QRPhase = "idle"
	QRDecoded              QRPhase = "decoded"
	QRNotified             QRPhase = "notified"
	QRAwaitingConfirmation QRPhase = "awaiting_confirmation"
	QRVerifying            QRPhase = "verifying"
	QRSuccess              QRPhase = "success"
	QRFailed               QRPhase = "failed"
	QRCancelled            QRPhase = "cancelled"
)

// QRPayload 二维码解析出的登录字段
type QRPayload struct {
	Token      string `json:"token"`
	OTPSeed    string `json:"-"`
	ServerURL  string `json:"serverUrl"`
	AppID      string `json:"appId"`
	ResourceID string `json:"resourceId"`
	SessionID  string `json:"sessionId"`
}

// QRState 扫码登录状态快照
type QRState struct {
	Phase      QRPhase    `json:"phase"`
	ScanID     string     `json:"scanId,omitempty"` // 本地扫码会话ID
	Payload    *QRPayload `json:"payload,omitempty"`
	Message    string     `json:"message,omitempty"`
	VerifyURL  string     `json:"verifyUrl,omitempty"`
	CanConfirm bool       `json:"canConfirm"`
	CanCancel  bool       `json:"canCancel"`
	CanDismiss bool       `json:"canDismiss"`
}
