// Package core 封装外部协议内核（敲门、TOTP、二维码解析与校验）。
//
// 内核本体由原生库实现，这里只定义浏览器控制器所需的契约：
// Binding 是原生库导出的 JSON 字符串接口，Bridge 将其转换为类型化的 Core，
// Runtime 负责一次性初始化与生命周期守护。
package core

// HostEntry 敲门结果中的一条资源到主机映射
type HostEntry struct {
	Name string
	Host string
}

// KnockResult 内核敲门原始结果，ResolvedHosts 保持内核返回的顺序
type KnockResult struct {
	ErrCode       string
	ErrMsg        string
	ResolvedHosts []HostEntry
	OpenTime      int
}

// QRParseResult 二维码解析结果
type QRParseResult struct {
	Success    bool
	ErrMsg     string
	Token      string
	OTPSeed    string
	ServerURL  string
	AppID      string
	ResourceID string
	SessionID  string
}

// TOTPResult 一次性验证码生成结果
type TOTPResult struct {
	Success bool
	Code    string
	ErrMsg  string
}

// Ack 通知/校验类调用的应答
type Ack struct {
	Success bool
	ErrMsg  string
}

// VerifyRequest 扫码登录校验请求
type VerifyRequest struct {
	ServerURL  string
	Token      string
	OTPCode    string
	DeviceInfo string
	AppID      string
	ResourceID string
}

// Core 协议内核的类型化契约
type Core interface {
	Init(workDir string, logLevel int, configJSON string) error
	IsProtectedDomain(host string) (bool, error)
	DeriveResourceID(host string) (string, error)
	Knock(resourceID string) (KnockResult, error)
	ParseQRPayload(raw string) (QRParseResult, error)
	GenerateTOTP(seed string) (TOTPResult, error)
	NotifyScan(serverURL, sessionID, appID, resourceID string) (Ack, error)
	Verify(req VerifyRequest) (Ack, error)
	IsInitialized() bool
	Shutdown()
}
