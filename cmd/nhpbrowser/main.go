package main

import (
	"context"
	"embed"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nhpbrowser/internal/browserctl"
	"nhpbrowser/internal/config"
	"nhpbrowser/internal/core"
	"nhpbrowser/internal/deviceinfo"
	"nhpbrowser/internal/gui"
	"nhpbrowser/internal/httpapi"
	"nhpbrowser/internal/logger"
	"nhpbrowser/internal/loop"
	"nhpbrowser/internal/pool"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
)

//go:embed all:frontend
var assets embed.FS

func main() {
	cfgPath := flag.String("config", "config.yaml", "配置文件路径")
	shell := flag.String("shell", "gui", "外壳类型: gui|http")
	listen := flag.String("listen", "127.0.0.1:8765", "http 外壳监听地址")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "加载配置失败:", err)
		os.Exit(1)
	}
	log := logger.NewZeroLogger(cfg)

	ci := coreInit(cfg, log)
	rt := core.NewRuntime(core.NewBridge(core.Linked()), log.With("module", "core"))
	rt.Start(ci.WorkDir, ci.LogLevel, ci.Payload)

	switch *shell {
	case "gui":
		err = runGUI(cfg, log, rt, ci)
	case "http":
		err = runHTTP(cfg, log, rt, *listen)
	default:
		err = fmt.Errorf("unknown shell %q", *shell)
	}
	if err != nil {
		log.Err(err, "程序异常退出")
		os.Exit(1)
	}
}

// coreInit 读取内核配置文档，失败时以空配置初始化并由内核报告错误
func coreInit(cfg *config.Config, log logger.Logger) gui.CoreInit {
	ci := gui.CoreInit{WorkDir: cfg.Core.WorkDir, LogLevel: cfg.Core.LogLevel, Payload: "{}"}
	cc, err := config.LoadCoreConfig(cfg.Core.ConfigFile)
	if err != nil {
		log.Warn("读取内核配置失败", "file", cfg.Core.ConfigFile, "error", err)
		return ci
	}
	payload, err := cc.BuildInitPayload()
	if err != nil {
		log.Err(err, "生成内核初始化参数失败")
		return ci
	}
	ci.Payload = payload
	return ci
}

func runGUI(cfg *config.Config, log logger.Logger, rt *core.Runtime, ci gui.CoreInit) error {
	app := gui.NewApp(gui.Options{Config: cfg, Logger: log, Core: rt, CoreInit: ci})
	return wails.Run(&options.App{
		Title:     "NHP Browser",
		Width:     1024,
		Height:    720,
		MinWidth:  640,
		MinHeight: 480,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		BackgroundColour: &options.RGBA{R: 255, G: 255, B: 255, A: 1},
		OnStartup:        app.Startup,
		OnShutdown:       app.Shutdown,
		Bind: []interface{}{
			app,
		},
	})
}

// runHTTP 以 HTTP 接口驱动控制器，渲染由外部外壳完成
func runHTTP(cfg *config.Config, log logger.Logger, rt *core.Runtime, addr string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ui := loop.New(256, log.With("module", "ui"))
	ui.Start(ctx)
	defer ui.Stop()

	workers := pool.New(cfg.Workers.Size, cfg.Workers.Queue, log.With("module", "pool"))
	workers.Start(ctx)
	defer workers.Stop()

	events := httpapi.NewQueue(0)
	ctl := browserctl.New(browserctl.Options{
		Core:                rt,
		Renderer:            events,
		Runner:              workers,
		UI:                  ui,
		Listener:            events,
		Logger:              log.With("module", "browserctl"),
		HomeURL:             cfg.Browser.HomeURL,
		SearchURL:           cfg.Browser.SearchURL,
		ReservedSuffix:      cfg.Core.ReservedSuffix,
		Coalesce:            cfg.Knock.Coalesce,
		QRScheme:            cfg.QR.Scheme,
		QRDefaultAppID:      cfg.QR.DefaultAppID,
		QRDefaultResourceID: cfg.QR.DefaultResourceID,
		QRFallbackServer:    cfg.QR.FallbackServer,
		DeviceInfo:          deviceinfo.String(),
	})
	defer ctl.Close()
	defer rt.Shutdown()

	srv := &http.Server{
		Addr:              addr,
		Handler:           httpapi.NewServer(ctl, ui, events, log.With("module", "httpapi")),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("HTTP 外壳已启动", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
