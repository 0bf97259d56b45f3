package browser

import (
	"net"
	"strings"
	"testing"
)

func TestBuildLaunchArgs(t *testing.T) {
	dir := t.TempDir()
	args, err := buildLaunchArgs(9333, Options{UserDataDir: dir, Headless: true, StartURL: "https://portal.nhp/", Args: []string{"--lang=zh-CN"}})
	if err != nil {
		t.Fatalf("构建启动参数失败: %v", err)
	}
	joined := strings.Join(args, " ")
	for _, want := range []string{"--remote-debugging-port=9333", "--user-data-dir=" + dir, "--headless=new", "--lang=zh-CN"} {
		if !strings.Contains(joined, want) {
			t.Errorf("启动参数缺少 %s: %v", want, args)
		}
	}
	if args[len(args)-1] != "https://portal.nhp/" {
		t.Errorf("初始页面应为最后一个参数，实际 %s", args[len(args)-1])
	}
}

func TestBuildLaunchArgsDefaultStartURL(t *testing.T) {
	args, err := buildLaunchArgs(9333, Options{UserDataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("构建启动参数失败: %v", err)
	}
	if args[len(args)-1] != "about:blank" {
		t.Errorf("默认初始页面应为 about:blank，实际 %s", args[len(args)-1])
	}
	for _, a := range args {
		if strings.HasPrefix(a, "--headless") {
			t.Errorf("非无头模式不应包含 %s", a)
		}
	}
}

func TestPickPortFallsBackWhenBusy(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("无法监听端口: %v", err)
	}
	defer l.Close()
	busy := l.Addr().(*net.TCPAddr).Port

	port, err := pickPort(busy)
	if err != nil {
		t.Fatalf("选择端口失败: %v", err)
	}
	if port == busy || port == 0 {
		t.Errorf("端口被占用时应选择其他端口，实际 %d", port)
	}
}
