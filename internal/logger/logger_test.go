package logger_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"nhpbrowser/internal/logger"
)

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(logger.Options{Level: "warn", Output: &buf})

	l.Debug("调试")
	l.Info("信息")
	if buf.Len() != 0 {
		t.Fatalf("warn 级别不应输出 debug/info, got %q", buf.String())
	}

	l.Warn("警告", "host", "demo.nhp")
	out := buf.String()
	if !strings.Contains(out, `"message":"警告"`) {
		t.Errorf("缺少消息: %q", out)
	}
	if !strings.Contains(out, `"host":"demo.nhp"`) {
		t.Errorf("缺少字段: %q", out)
	}
}

func TestWith_CarriesFields(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(logger.Options{Level: "debug", Output: &buf}).With("module", "knock")

	l.Err(errors.New("boom"), "敲门失败")
	out := buf.String()
	if !strings.Contains(out, `"module":"knock"`) {
		t.Errorf("子日志器缺少固定字段: %q", out)
	}
	if !strings.Contains(out, `"error":"boom"`) {
		t.Errorf("缺少错误字段: %q", out)
	}
}

func TestNewNop_Silent(t *testing.T) {
	l := logger.NewNop()
	l.Info("noop")
	l.With("k", "v").Error("noop")
}

func TestNewZeroLogger_NilConfig(t *testing.T) {
	if logger.NewZeroLogger(nil) == nil {
		t.Fatal("nil 配置应返回空日志器")
	}
}
