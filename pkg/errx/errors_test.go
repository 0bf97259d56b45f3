package errx_test

import (
	"errors"
	"fmt"
	"testing"

	"nhpbrowser/pkg/domain"
	"nhpbrowser/pkg/errx"
)

func TestWrap_IsAndUnwrap(t *testing.T) {
	err := errx.Wrap(errx.CodeKnockFailed, domain.ErrKnockFailed, "knock failed: expired")

	if !errx.Is(err, errx.CodeKnockFailed) {
		t.Error("错误码匹配失败")
	}
	if errx.Is(err, errx.CodeVerifyFailed) {
		t.Error("不应匹配其他错误码")
	}
	if !errors.Is(err, domain.ErrKnockFailed) {
		t.Error("errors.Is 应能穿透到哨兵错误")
	}
}

func TestCodeOf_ThroughFmtWrap(t *testing.T) {
	inner := errx.New(errx.CodeInvariantViolation, "at least one tab required")
	outer := fmt.Errorf("close tab: %w", inner)

	if got := errx.CodeOf(outer); got != errx.CodeInvariantViolation {
		t.Errorf("got %s, want %s", got, errx.CodeInvariantViolation)
	}
	if got := errx.CodeOf(errors.New("plain")); got != "" {
		t.Errorf("普通错误不应有错误码, got %s", got)
	}
}

func TestMessageOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"coded", errx.New(errx.CodeTOTPFailed, "failed to generate OTP code"), "failed to generate OTP code"},
		{"plain", errors.New("boom"), "boom"},
		{"coded without msg", errx.Wrap(errx.CodeVerifyFailed, errors.New("io"), ""), "VERIFY_FAILED: : io"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errx.MessageOf(tt.err); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
