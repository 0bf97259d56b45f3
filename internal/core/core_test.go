package core_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"nhpbrowser/internal/core"
	"nhpbrowser/pkg/domain"
)

// fakeBinding 可编程的原生绑定
type fakeBinding struct {
	initErr    error
	initDelay  time.Duration
	initCalls  atomic.Int32
	knockJSON  string
	qrJSON     string
	totpJSON   string
	ackJSON    string
	panicOn    string
	lastVerify []string
}

func (f *fakeBinding) InitializeWithConfig(string, int, string) error {
	f.initCalls.Add(1)
	time.Sleep(f.initDelay)
	return f.initErr
}

func (f *fakeBinding) IsNHPDomain(d string) bool {
	if f.panicOn == "domain" {
		panic("native crash")
	}
	return d == "secure.nhp"
}

func (f *fakeBinding) ExtractResourceID(d string) string { return "secure" }

func (f *fakeBinding) GetKnockResultJSON(string) string {
	if f.panicOn == "knock" {
		panic(errors.New("segv"))
	}
	return f.knockJSON
}

func (f *fakeBinding) ParseQRCodeData(string) string { return f.qrJSON }
func (f *fakeBinding) GenerateTOTP(string) string    { return f.totpJSON }

func (f *fakeBinding) NotifyQRScan(string, string, string, string) string { return f.ackJSON }

func (f *fakeBinding) VerifyQRAuth(server, token, otp, device, asp, res string) string {
	f.lastVerify = []string{server, token, otp, device, asp, res}
	return f.ackJSON
}

func (f *fakeBinding) IsInitialized() bool { return true }
func (f *fakeBinding) Cleanup()            {}

func TestBridge_KnockKeepsDocumentOrder(t *testing.T) {
	b := &fakeBinding{knockJSON: `{"errCode":"0","errMsg":"","resHost":{"zz":"203.0.113.9","aa":"203.0.113.5"},"opnTime":120}`}
	res, err := core.NewBridge(b).Knock("secure")
	if err != nil {
		t.Fatalf("Knock() error = %v", err)
	}
	if len(res.ResolvedHosts) != 2 {
		t.Fatalf("got %d hosts, want 2", len(res.ResolvedHosts))
	}
	if res.ResolvedHosts[0].Host != "203.0.113.9" {
		t.Errorf("首条应为文档中第一项, got %+v", res.ResolvedHosts[0])
	}
	if res.ErrCode != "0" || res.OpenTime != 120 {
		t.Errorf("got %+v", res)
	}
}

func TestBridge_KnockNullHosts(t *testing.T) {
	b := &fakeBinding{knockJSON: `{"errCode":"7","errMsg":"expired","resHost":null}`}
	res, err := core.NewBridge(b).Knock("secure")
	if err != nil {
		t.Fatalf("Knock() error = %v", err)
	}
	if len(res.ResolvedHosts) != 0 || res.ErrMsg != "expired" {
		t.Errorf("got %+v", res)
	}
}

func TestBridge_InvalidReply(t *testing.T) {
	b := &fakeBinding{knockJSON: `not json`}
	_, err := core.NewBridge(b).Knock("secure")
	if !errors.Is(err, domain.ErrInvalidCoreReply) {
		t.Errorf("got %v, want ErrInvalidCoreReply", err)
	}
}

func TestBridge_PanicBecomesError(t *testing.T) {
	tests := []struct {
		name    string
		panicOn string
		call    func(c *core.Bridge) error
	}{
		{"domain", "domain", func(c *core.Bridge) error { _, err := c.IsProtectedDomain("x"); return err }},
		{"knock", "knock", func(c *core.Bridge) error { _, err := c.Knock("x"); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := core.NewBridge(&fakeBinding{panicOn: tt.panicOn})
			if err := tt.call(c); !errors.Is(err, domain.ErrCorePanic) {
				t.Errorf("got %v, want ErrCorePanic", err)
			}
		})
	}
}

func TestBridge_QRAndVerify(t *testing.T) {
	b := &fakeBinding{
		qrJSON:   `{"success":true,"sessionId":"abc123","token":"tok","otpSecret":"SEED","aspId":"","resId":"","server":"https://auth.example"}`,
		totpJSON: `{"success":true,"code":"123456"}`,
		ackJSON:  `{"success":false,"errMsg":"denied"}`,
	}
	c := core.NewBridge(b)

	qr, err := c.ParseQRPayload("nhp://scan?x")
	if err != nil || !qr.Success || qr.SessionID != "abc123" || qr.OTPSeed != "SEED" || qr.ServerURL != "https://auth.example" {
		t.Fatalf("ParseQRPayload() = %+v, %v", qr, err)
	}

	totp, err := c.GenerateTOTP("SEED")
	if err != nil || totp.Code != "123456" {
		t.Fatalf("GenerateTOTP() = %+v, %v", totp, err)
	}

	ack, err := c.Verify(core.VerifyRequest{ServerURL: "s", Token: "t", OTPCode: "o", DeviceInfo: "d", AppID: "a", ResourceID: "r"})
	if err != nil || ack.Success || ack.ErrMsg != "denied" {
		t.Fatalf("Verify() = %+v, %v", ack, err)
	}
	want := []string{"s", "t", "o", "d", "a", "r"}
	for i := range want {
		if b.lastVerify[i] != want[i] {
			t.Errorf("参数 %d: got %q, want %q", i, b.lastVerify[i], want[i])
		}
	}
}

func TestUnlinked(t *testing.T) {
	c := core.NewBridge(core.Unlinked())
	if err := c.Init("", 0, "{}"); !errors.Is(err, domain.ErrCoreNotLinked) {
		t.Errorf("Init() got %v", err)
	}
	if _, err := c.IsProtectedDomain("a.nhp"); !errors.Is(err, domain.ErrCorePanic) {
		t.Errorf("IsProtectedDomain() got %v", err)
	}
	res, err := c.Knock("a")
	if err != nil || res.ErrCode == "" {
		t.Errorf("Knock() = %+v, %v", res, err)
	}
	if c.IsInitialized() {
		t.Error("未链接内核不应报告已初始化")
	}
}

func TestRuntime_NotReadyFailsFast(t *testing.T) {
	rt := core.NewRuntime(core.NewBridge(&fakeBinding{}), nil)
	if rt.State() != core.StateUninitialized {
		t.Fatalf("got state %s", rt.State())
	}
	if _, err := rt.IsProtectedDomain("secure.nhp"); !errors.Is(err, domain.ErrCoreNotReady) {
		t.Errorf("got %v, want ErrCoreNotReady", err)
	}
	if err := rt.Wait(context.Background()); !errors.Is(err, domain.ErrCoreNotReady) {
		t.Errorf("Wait() got %v", err)
	}
}

func TestRuntime_InitOnce(t *testing.T) {
	b := &fakeBinding{initDelay: 20 * time.Millisecond}
	rt := core.NewRuntime(core.NewBridge(b), nil)

	rt.Start("", 4, "{}")
	rt.Start("", 4, "{}")
	if err := rt.Init("", 4, "{}"); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rt.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if !rt.Ready() || !rt.IsInitialized() {
		t.Fatalf("got state %s", rt.State())
	}
	// 后台 Start 可能晚于 Init 调度，但就绪后不会再次初始化
	time.Sleep(30 * time.Millisecond)
	if n := b.initCalls.Load(); n < 1 || n > 2 {
		t.Errorf("init 调用次数 %d", n)
	}
	_ = rt.Init("", 4, "{}")
	before := b.initCalls.Load()
	_ = rt.Init("", 4, "{}")
	if b.initCalls.Load() != before {
		t.Error("就绪后不应重复初始化")
	}

	ok, err := rt.IsProtectedDomain("secure.nhp")
	if err != nil || !ok {
		t.Errorf("IsProtectedDomain() = %v, %v", ok, err)
	}
}

func TestRuntime_FailedThenRetry(t *testing.T) {
	b := &fakeBinding{initErr: errors.New("bad key")}
	rt := core.NewRuntime(core.NewBridge(b), nil)

	err := rt.Init("", 4, "{}")
	if !errors.Is(err, domain.ErrCoreInitFailed) {
		t.Fatalf("got %v, want ErrCoreInitFailed", err)
	}
	if rt.State() != core.StateFailed {
		t.Fatalf("got state %s", rt.State())
	}
	if _, err := rt.Knock("x"); !errors.Is(err, domain.ErrCoreNotReady) {
		t.Errorf("失败后调用应返回 ErrCoreNotReady, got %v", err)
	}

	b.initErr = nil
	if err := rt.Init("", 4, "{}"); err != nil {
		t.Fatalf("重试 Init() error = %v", err)
	}
	if !rt.Ready() {
		t.Error("重试成功后应就绪")
	}

	rt.Shutdown()
	if rt.State() != core.StateUninitialized {
		t.Errorf("Shutdown 后状态 %s", rt.State())
	}
}

func TestRegisterLinkedBinding(t *testing.T) {
	t.Cleanup(func() { core.Register(nil) })

	if _, ok := core.Linked().(core.Funcs); ok {
		t.Fatal("未注册时不应返回函数表绑定")
	}

	var initCalls int
	core.Register(core.Funcs{
		InitializeWithConfigFunc: func(string, int, string) error {
			initCalls++
			return nil
		},
		IsNHPDomainFunc:        func(d string) bool { return d == "secure.nhp" },
		ExtractResourceIDFunc:  func(string) string { return "secure" },
		GetKnockResultJSONFunc: func(string) string { return `{"errCode":"0","resHost":{"secure":"203.0.113.5"}}` },
		IsInitializedFunc:      func() bool { return initCalls > 0 },
	})

	c := core.NewBridge(nil)
	if err := c.Init("", 0, "{}"); err != nil || initCalls != 1 {
		t.Fatalf("Init() = %v, calls = %d", err, initCalls)
	}
	if ok, err := c.IsProtectedDomain("secure.nhp"); err != nil || !ok {
		t.Errorf("IsProtectedDomain() = %v, %v", ok, err)
	}
	res, err := c.Knock("secure")
	if err != nil || res.ErrCode != "0" {
		t.Errorf("Knock() = %+v, %v", res, err)
	}
	if !c.IsInitialized() {
		t.Error("注册的绑定应报告已初始化")
	}

	// 未提供的函数按未链接处理
	qr, err := c.ParseQRPayload("nhp://scan?x")
	if err != nil || qr.Success {
		t.Errorf("ParseQRPayload() = %+v, %v", qr, err)
	}
}
