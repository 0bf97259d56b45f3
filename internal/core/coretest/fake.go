// Package coretest 提供测试用的可编程协议内核
package coretest

import (
	"strings"
	"sync"

	"nhpbrowser/internal/core"
)

// Fake 可编程内核，字段在使用前设置，调用计数并发安全
type Fake struct {
	Protected map[string]bool
	DomainErr error

	Knocks    map[string]core.KnockResult // 按资源ID
	KnockErr  error
	KnockGate chan struct{} // 非空时敲门阻塞直到关闭或收到信号

	QR        core.QRParseResult
	QRErr     error
	TOTP      core.TOTPResult
	TOTPErr   error
	NotifyAck core.Ack
	NotifyErr error

	VerifyAck  core.Ack
	VerifyErr  error
	VerifyGate chan struct{}

	mu         sync.Mutex
	calls      map[string]int
	lastVerify core.VerifyRequest
}

var _ core.Core = (*Fake)(nil)

// New 创建默认全部成功的内核
func New() *Fake {
	return &Fake{
		Protected: map[string]bool{},
		Knocks:    map[string]core.KnockResult{},
		TOTP:      core.TOTPResult{Success: true, Code: "123456"},
		NotifyAck: core.Ack{Success: true},
		VerifyAck: core.Ack{Success: true},
	}
}

func (f *Fake) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[op]++
}

// Calls 返回某操作的调用次数
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// LastVerify 返回最近一次校验请求
func (f *Fake) LastVerify() core.VerifyRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastVerify
}

func (f *Fake) Init(string, int, string) error {
	f.record("init")
	return nil
}

func (f *Fake) IsProtectedDomain(host string) (bool, error) {
	f.record("isProtectedDomain")
	if f.DomainErr != nil {
		return false, f.DomainErr
	}
	return f.Protected[host], nil
}

func (f *Fake) DeriveResourceID(host string) (string, error) {
	f.record("deriveResourceId")
	return strings.TrimSuffix(strings.ToLower(host), ".nhp"), nil
}

func (f *Fake) Knock(resourceID string) (core.KnockResult, error) {
	f.record("knock")
	if f.KnockGate != nil {
		<-f.KnockGate
	}
	if f.KnockErr != nil {
		return core.KnockResult{}, f.KnockErr
	}
	return f.Knocks[resourceID], nil
}

func (f *Fake) ParseQRPayload(string) (core.QRParseResult, error) {
	f.record("parseQrPayload")
	return f.QR, f.QRErr
}

func (f *Fake) GenerateTOTP(string) (core.TOTPResult, error) {
	f.record("generateTotp")
	return f.TOTP, f.TOTPErr
}

func (f *Fake) NotifyScan(string, string, string, string) (core.Ack, error) {
	f.record("notifyScan")
	return f.NotifyAck, f.NotifyErr
}

func (f *Fake) Verify(req core.VerifyRequest) (core.Ack, error) {
	f.record("verify")
	f.mu.Lock()
	f.lastVerify = req
	f.mu.Unlock()
	if f.VerifyGate != nil {
		<-f.VerifyGate
	}
	return f.VerifyAck, f.VerifyErr
}

func (f *Fake) IsInitialized() bool { return true }

func (f *Fake) Shutdown() { f.record("shutdown") }

// Success 构造成功的敲门结果
func Success(hosts ...string) core.KnockResult {
	res := core.KnockResult{ErrCode: "0"}
	for i, h := range hosts {
		res.ResolvedHosts = append(res.ResolvedHosts, core.HostEntry{Name: "r" + string(rune('1'+i)), Host: h})
	}
	return res
}
