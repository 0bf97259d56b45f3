package qrlogin

import (
	"testing"

	"nhpbrowser/internal/core"
	"nhpbrowser/internal/core/coretest"
	"nhpbrowser/internal/loop"
	"nhpbrowser/pkg/domain"
)

type syncRunner struct{}

func (syncRunner) Submit(_ string, fn func()) bool {
	fn()
	return true
}

func TestScan_InvalidPrefixDiscardsPendingScan(t *testing.T) {
	fake := coretest.New()
	fake.QR = core.QRParseResult{Success: true, Token: "tok", OTPSeed: "SEED", ServerURL: "https://auth.example", SessionID: "abc123"}
	c := New(Options{Core: fake, Runner: syncRunner{}, UI: loop.NewInline()})

	if err := c.Scan("nhp://scan?server=https://auth.example&sessionId=abc123"); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if c.State().Phase != domain.QRAwaitingConfirmation || c.raw == "" {
		t.Fatalf("有效二维码应进入待确认, state = %+v", c.State())
	}

	if err := c.Scan("https://not-a-login-code"); err == nil {
		t.Fatal("前缀不符应返回错误")
	}
	if c.raw != "" {
		t.Errorf("丢弃的扫码会话不应保留原始文本, raw = %q", c.raw)
	}
	if s := c.State(); s.Phase != domain.QRIdle || s.Payload != nil || s.ScanID != "" {
		t.Errorf("state = %+v", s)
	}
	if err := c.Confirm(); err != domain.ErrNoPendingScan {
		t.Errorf("Confirm() = %v, want ErrNoPendingScan", err)
	}
}
