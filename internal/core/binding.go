package core

import (
	"sync"

	"nhpbrowser/pkg/domain"
)

// Binding 原生内核导出的接口，参数与返回值均为字符串/JSON，与移动端绑定保持一致
type Binding interface {
	InitializeWithConfig(workDir string, logLevel int, configJSON string) error
	IsNHPDomain(domain string) bool
	ExtractResourceID(domain string) string
	GetKnockResultJSON(resourceID string) string
	ParseQRCodeData(qrContent string) string
	GenerateTOTP(secret string) string
	NotifyQRScan(serverURL, sessionID, aspID, resID string) string
	VerifyQRAuth(serverURL, encryptedData, otpCode, deviceInfo, aspID, resID string) string
	IsInitialized() bool
	Cleanup()
}

var (
	linkedMu sync.RWMutex
	linked   Binding
)

// Register 注册原生内核绑定，通常由带构建标签的文件在 init 中调用，后注册的覆盖先注册的
func Register(b Binding) {
	linkedMu.Lock()
	linked = b
	linkedMu.Unlock()
}

// Linked 返回已注册的绑定，未注册时返回 Unlinked
func Linked() Binding {
	linkedMu.RLock()
	defer linkedMu.RUnlock()
	if linked == nil {
		return Unlinked()
	}
	return linked
}

// Funcs 以函数表形式适配原生库导出的包级函数，例如
//
//	core.Register(core.Funcs{InitializeWithConfigFunc: nhpcore.InitializeWithConfig, ...})
//
// 未提供的函数按未链接处理。
type Funcs struct {
	InitializeWithConfigFunc func(workDir string, logLevel int, configJSON string) error
	IsNHPDomainFunc          func(domain string) bool
	ExtractResourceIDFunc    func(domain string) string
	GetKnockResultJSONFunc   func(resourceID string) string
	ParseQRCodeDataFunc      func(qrContent string) string
	GenerateTOTPFunc         func(secret string) string
	NotifyQRScanFunc         func(serverURL, sessionID, aspID, resID string) string
	VerifyQRAuthFunc         func(serverURL, encryptedData, otpCode, deviceInfo, aspID, resID string) string
	IsInitializedFunc        func() bool
	CleanupFunc              func()
}

var _ Binding = Funcs{}

func (f Funcs) InitializeWithConfig(workDir string, logLevel int, configJSON string) error {
	if f.InitializeWithConfigFunc == nil {
		return unlinked{}.InitializeWithConfig(workDir, logLevel, configJSON)
	}
	return f.InitializeWithConfigFunc(workDir, logLevel, configJSON)
}

func (f Funcs) IsNHPDomain(d string) bool {
	if f.IsNHPDomainFunc == nil {
		return unlinked{}.IsNHPDomain(d)
	}
	return f.IsNHPDomainFunc(d)
}

func (f Funcs) ExtractResourceID(d string) string {
	if f.ExtractResourceIDFunc == nil {
		return unlinked{}.ExtractResourceID(d)
	}
	return f.ExtractResourceIDFunc(d)
}

func (f Funcs) GetKnockResultJSON(resourceID string) string {
	if f.GetKnockResultJSONFunc == nil {
		return unlinked{}.GetKnockResultJSON(resourceID)
	}
	return f.GetKnockResultJSONFunc(resourceID)
}

func (f Funcs) ParseQRCodeData(qrContent string) string {
	if f.ParseQRCodeDataFunc == nil {
		return unlinked{}.ParseQRCodeData(qrContent)
	}
	return f.ParseQRCodeDataFunc(qrContent)
}

func (f Funcs) GenerateTOTP(secret string) string {
	if f.GenerateTOTPFunc == nil {
		return unlinked{}.GenerateTOTP(secret)
	}
	return f.GenerateTOTPFunc(secret)
}

func (f Funcs) NotifyQRScan(serverURL, sessionID, aspID, resID string) string {
	if f.NotifyQRScanFunc == nil {
		return unlinked{}.NotifyQRScan(serverURL, sessionID, aspID, resID)
	}
	return f.NotifyQRScanFunc(serverURL, sessionID, aspID, resID)
}

func (f Funcs) VerifyQRAuth(serverURL, encryptedData, otpCode, deviceInfo, aspID, resID string) string {
	if f.VerifyQRAuthFunc == nil {
		return unlinked{}.VerifyQRAuth(serverURL, encryptedData, otpCode, deviceInfo, aspID, resID)
	}
	return f.VerifyQRAuthFunc(serverURL, encryptedData, otpCode, deviceInfo, aspID, resID)
}

func (f Funcs) IsInitialized() bool {
	if f.IsInitializedFunc == nil {
		return false
	}
	return f.IsInitializedFunc()
}

func (f Funcs) Cleanup() {
	if f.CleanupFunc != nil {
		f.CleanupFunc()
	}
}

// Unlinked 返回未链接原生库时使用的绑定，所有调用都报告内核不可用
func Unlinked() Binding { return unlinked{} }

type unlinked struct{}

func (unlinked) InitializeWithConfig(string, int, string) error { return domain.ErrCoreNotLinked }

func (unlinked) IsNHPDomain(string) bool { panic(domain.ErrCoreNotLinked) }

func (unlinked) ExtractResourceID(string) string { panic(domain.ErrCoreNotLinked) }

func (unlinked) GetKnockResultJSON(string) string {
	return `{"errCode":"CORE_NOT_LINKED","errMsg":"protocol core not linked","resHost":null}`
}

func (unlinked) ParseQRCodeData(string) string {
	return `{"success":false,"errMsg":"protocol core not linked"}`
}

func (unlinked) GenerateTOTP(string) string {
	return `{"success":false,"code":"","errMsg":"protocol core not linked"}`
}

func (unlinked) NotifyQRScan(string, string, string, string) string {
	return `{"success":false,"errMsg":"protocol core not linked"}`
}

func (unlinked) VerifyQRAuth(string, string, string, string, string, string) string {
	return `{"success":false,"errMsg":"protocol core not linked"}`
}

func (unlinked) IsInitialized() bool { return false }

func (unlinked) Cleanup() {}
