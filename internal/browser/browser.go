package browser

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"nhpbrowser/internal/logger"
	"nhpbrowser/pkg/domain"

	"github.com/mafredri/cdp/devtool"
)

// Options 浏览器启动选项
type Options struct {
	ExecPath            string   // 浏览器可执行文件路径，空时自动查找
	UserDataDir         string   // 用户数据目录，空时使用应用数据目录下的 profile
	RemoteDebuggingPort int      // CDP 端口，0 表示优先 9222
	Headless            bool     // 是否以无头模式启动
	StartURL            string   // 初始页面
	Args                []string // 额外启动参数
	Logger              logger.Logger
}

// Browser 已启动的浏览器进程句柄
type Browser struct {
	cmd         *exec.Cmd
	DevToolsURL string
	UserAgent   string
	port        int
	log         logger.Logger
}

// Start 启动 Chromium 并等待 DevTools 可用
func Start(ctx context.Context, opts Options) (*Browser, error) {
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}

	exe := opts.ExecPath
	if exe == "" {
		exe = defaultChromePath()
	}
	if exe == "" {
		return nil, fmt.Errorf("%w: chromium executable not found", domain.ErrBrowserStartFailed)
	}

	preferred := opts.RemoteDebuggingPort
	if preferred == 0 {
		preferred = 9222
	}
	port, err := pickPort(preferred)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBrowserStartFailed, err)
	}

	args, err := buildLaunchArgs(port, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBrowserStartFailed, err)
	}
	cmd := exec.CommandContext(ctx, exe, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBrowserStartFailed, err)
	}

	b := &Browser{
		cmd:         cmd,
		DevToolsURL: fmt.Sprintf("http://127.0.0.1:%d", port),
		port:        port,
		log:         log,
	}
	log.Info("浏览器进程已启动", "exec", exe, "port", port, "pid", cmd.Process.Pid)

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	ua, err := waitDevToolsReady(waitCtx, b.DevToolsURL)
	if err != nil {
		_ = b.Stop(2 * time.Second)
		return nil, fmt.Errorf("%w: %v", domain.ErrBrowserStartFailed, err)
	}
	b.UserAgent = ua

	return b, nil
}

// Stop 关闭浏览器进程
func (b *Browser) Stop(timeout time.Duration) error {
	if b == nil || b.cmd == nil || b.cmd.Process == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- b.cmd.Wait() }()
	// Windows 上直接 Kill 以避免悬挂
	_ = b.cmd.Process.Kill()
	select {
	case <-time.After(timeout):
		return errors.New("browser stop timeout")
	case <-done:
		b.log.Info("浏览器进程已退出", "port", b.port)
		return nil
	}
}

// defaultChromePath 返回常见的 Chromium 可执行路径
func defaultChromePath() string {
	for _, p := range chromePaths() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, name := range []string{"chrome", "google-chrome", "chromium", "chromium-browser", "msedge"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	return ""
}

func chromePaths() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{
			filepath.Join(os.Getenv("ProgramFiles"), "Google", "Chrome", "Application", "chrome.exe"),
			filepath.Join(os.Getenv("ProgramFiles(x86)"), "Google", "Chrome", "Application", "chrome.exe"),
			filepath.Join(os.Getenv("LOCALAPPDATA"), "Google", "Chrome", "Application", "chrome.exe"),
			filepath.Join(os.Getenv("ProgramFiles(x86)"), "Microsoft", "Edge", "Application", "msedge.exe"),
		}
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}
	case "linux":
		return []string{
			"/usr/bin/google-chrome",
			"/usr/bin/google-chrome-stable",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
			"/snap/bin/chromium",
		}
	default:
		return nil
	}
}

// pickPort 优先使用指定端口，被占用时选择随机空闲端口
func pickPort(preferred int) (int, error) {
	if preferred > 0 {
		l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", preferred))
		if err == nil {
			_ = l.Close()
			return preferred, nil
		}
	}
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("failed to find free port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// buildLaunchArgs 构建启动参数，只保留单个页面目标
func buildLaunchArgs(port int, opts Options) ([]string, error) {
	args := []string{
		fmt.Sprintf("--remote-debugging-port=%d", port),
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-background-networking",
		"--disable-breakpad",
		"--disable-default-apps",
		"--disable-extensions",
		"--disable-sync",
		"--disable-translate",
		"--disable-features=Translate,OptimizationHints",
	}
	if runtime.GOOS == "linux" {
		args = append(args, "--disable-dev-shm-usage")
	}

	dir := opts.UserDataDir
	if dir == "" {
		base, err := logger.GetDataDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(base, "profile")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	args = append(args, "--user-data-dir="+dir)

	if opts.Headless {
		args = append(args, "--headless=new", "--disable-gpu")
	}
	args = append(args, opts.Args...)

	start := opts.StartURL
	if start == "" {
		start = "about:blank"
	}
	return append(args, start), nil
}

// waitDevToolsReady 轮询 DevTools 版本接口，返回浏览器默认 UA
func waitDevToolsReady(ctx context.Context, base string) (string, error) {
	dt := devtool.New(base)
	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("devtools not ready after timeout: %w", ctx.Err())
		case <-ticker.C:
			v, err := dt.Version(ctx)
			if err == nil {
				return v.UserAgent, nil
			}
		}
	}
}
