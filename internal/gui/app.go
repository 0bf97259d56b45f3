package gui

import (
	"context"
	"errors"
	"os/exec"
	goruntime "runtime"
	"sync"
	"time"

	"nhpbrowser/internal/browser"
	"nhpbrowser/internal/browserctl"
	"nhpbrowser/internal/config"
	"nhpbrowser/internal/core"
	"nhpbrowser/internal/deviceinfo"
	"nhpbrowser/internal/logger"
	"nhpbrowser/internal/loop"
	"nhpbrowser/internal/navigation"
	"nhpbrowser/internal/pool"
	"nhpbrowser/internal/renderer"
	"nhpbrowser/internal/storage/db"
	"nhpbrowser/internal/storage/model"
	"nhpbrowser/internal/storage/repo"
	"nhpbrowser/pkg/api"
	"nhpbrowser/pkg/domain"

	"github.com/wailsapp/wails/v2/pkg/runtime"
	"gorm.io/gorm"
	gl "gorm.io/gorm/logger"
)

var errNotStarted = errors.New("app not started")

// CoreInit 协议内核初始化参数，重试时复用
type CoreInit struct {
	WorkDir  string
	LogLevel int
	Payload  string
}

// Options 桌面应用依赖
type Options struct {
	Config   *config.Config
	Logger   logger.Logger
	Core     *core.Runtime
	CoreInit CoreInit
}

// App 桌面外壳，负责组装控制器、渲染器与持久化层，供前端调用。
// 控制器方法一律投递到界面线程执行。
type App struct {
	ctx      context.Context
	cfg      *config.Config
	log      logger.Logger
	rt       *core.Runtime
	coreInit CoreInit
	emit     func(event string, data any)

	ui     *loop.Loop
	runner navigation.Runner
	pool   *pool.Pool
	ctl    *browserctl.Controller
	cdp    *renderer.Renderer
	view   browserctl.Renderer

	browserMu sync.Mutex
	browser   *browser.Browser

	gdb          *gorm.DB
	settingsRepo *repo.SettingsRepo
	bookmarkRepo *repo.BookmarkRepo
	historyRepo  *repo.KnockHistoryRepo
}

// NewApp 创建并返回一个新的 App 实例。
func NewApp(opts Options) *App {
	if opts.Config == nil {
		opts.Config = config.NewConfig()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Core == nil {
		opts.Core = core.NewRuntime(core.NewBridge(core.Linked()), opts.Logger)
	}
	return &App{
		cfg:      opts.Config,
		log:      opts.Logger,
		rt:       opts.Core,
		coreInit: opts.CoreInit,
	}
}

// Startup 初始化数据库、控制器并启动浏览器。
func (a *App) Startup(ctx context.Context) {
	a.emit = func(event string, data any) { runtime.EventsEmit(ctx, event, data) }
	a.log.Info("应用启动", "version", a.cfg.Version)

	a.start(ctx, db.Options{
		Name:   a.cfg.Sqlite.Db,
		Prefix: a.cfg.Sqlite.Prefix,
		Logger: db.NewLogger(a.log).LogMode(gl.Warn),
	}, nil)

	go func() {
		if err := a.launchBrowser(); err != nil {
			code, msg := a.translateError(err)
			a.emitEvent(browserctl.EventAppError, browserctl.AppError{Code: code, Message: msg})
		}
	}()
}

// start 打开存储并组装控制器；view 为空时使用 CDP 渲染器
func (a *App) start(ctx context.Context, dbOpts db.Options, view browserctl.Renderer) {
	a.ctx = ctx
	a.openStorage(dbOpts)

	if a.ui == nil {
		a.ui = loop.New(256, a.log.With("module", "ui"))
	}
	a.ui.Start(ctx)
	if a.runner == nil {
		a.pool = pool.New(a.cfg.Workers.Size, a.cfg.Workers.Queue, a.log.With("module", "pool"))
		a.pool.Start(ctx)
		a.runner = a.pool
	}
	if view == nil {
		a.cdp = renderer.New(renderer.Options{
			UI:              a.ui,
			Runner:          a.runner,
			Logger:          a.log.With("module", "renderer"),
			UserAgentSuffix: a.cfg.Browser.UserAgentSuffix,
		})
		view = a.cdp
	}
	a.view = view

	home, search := a.cfg.Browser.HomeURL, a.cfg.Browser.SearchURL
	if a.settingsRepo != nil {
		if s, err := a.settingsRepo.Load(ctx); err == nil {
			home, search = s.HomeURL, s.SearchURL
		} else {
			a.log.Err(err, "读取用户设置失败，使用默认值")
		}
	}

	opts := browserctl.Options{
		Core:                a.rt,
		Renderer:            view,
		Runner:              a.runner,
		UI:                  a.ui,
		Listener:            a,
		Logger:              a.log.With("module", "browserctl"),
		HomeURL:             home,
		SearchURL:           search,
		ReservedSuffix:      a.cfg.Core.ReservedSuffix,
		Coalesce:            a.cfg.Knock.Coalesce,
		QRScheme:            a.cfg.QR.Scheme,
		QRDefaultAppID:      a.cfg.QR.DefaultAppID,
		QRDefaultResourceID: a.cfg.QR.DefaultResourceID,
		QRFallbackServer:    a.cfg.QR.FallbackServer,
		DeviceInfo:          deviceinfo.String(),
	}
	if a.historyRepo != nil {
		opts.Recorder = a.historyRepo
	}
	a.ctl = browserctl.New(opts)
	if a.cdp != nil {
		a.cdp.Bind(a.ctl)
	}
}

func (a *App) openStorage(opts db.Options) {
	gdb, err := db.New(opts)
	if err != nil {
		a.log.Err(err, "数据库初始化失败")
		return
	}
	if err := db.Migrate(gdb, model.All()...); err != nil {
		a.log.Err(err, "数据库迁移失败")
		return
	}

	a.gdb = gdb
	a.settingsRepo = repo.NewSettingsRepo(gdb).WithDefaults(config.DefaultSettings{
		Language:    config.GetDefaultSettings().Language,
		Theme:       config.GetDefaultSettings().Theme,
		HomeURL:     a.cfg.Browser.HomeURL,
		SearchURL:   a.cfg.Browser.SearchURL,
		DesktopMode: config.GetDefaultSettings().DesktopMode,
	})
	a.bookmarkRepo = repo.NewBookmarkRepo(gdb)
	a.historyRepo = repo.NewKnockHistoryRepo(gdb, a.log, repo.KnockHistoryOptions{})
	a.log.Debug("数据持久化层初始化完成")
}

// Shutdown 负责清理资源。
func (a *App) Shutdown(ctx context.Context) {
	a.log.Info("应用关闭中...")

	if a.cdp != nil {
		a.cdp.Detach()
	}
	a.browserMu.Lock()
	if a.browser != nil {
		_ = a.browser.Stop(2 * time.Second)
		a.browser = nil
	}
	a.browserMu.Unlock()

	if a.ctl != nil {
		a.ctl.Close()
	}
	if a.pool != nil {
		a.pool.Stop()
	}
	if a.ui != nil {
		a.ui.Stop()
	}
	a.rt.Shutdown()

	if a.historyRepo != nil {
		a.historyRepo.Stop()
	}
	if a.gdb != nil {
		if sqlDB, err := a.gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	a.log.Info("应用已关闭")
}

// onUI 在界面线程中执行并等待结果
func (a *App) onUI(fn func() error) error {
	if a.ui == nil || a.ctl == nil {
		return errNotStarted
	}
	var err error
	if derr := a.ui.Do(a.ctx, func() { err = fn() }); derr != nil {
		return errors.Join(errNotStarted, derr)
	}
	return err
}

// respond 在界面线程中执行并包装为统一响应
func respond[T any](a *App, fn func() (T, error)) api.Response[T] {
	var out T
	err := a.onUI(func() error {
		v, err := fn()
		out = v
		return err
	})
	if err != nil {
		code, msg := a.translateError(err)
		return api.Fail[T](code, msg)
	}
	return api.OK(out)
}

func (a *App) done(err error) api.Response[api.EmptyData] {
	if err != nil {
		code, msg := a.translateError(err)
		return api.Fail[api.EmptyData](code, msg)
	}
	return api.Done()
}

// ---------- 导航 ----------

// Navigate 处理地址栏输入。
func (a *App) Navigate(input string) api.Response[NavigationData] {
	return respond(a, func() (NavigationData, error) {
		d, err := a.ctl.Navigate(input)
		return NavigationData{Decision: d}, err
	})
}

// GoHome 回到主页。
func (a *App) GoHome() api.Response[NavigationData] {
	return respond(a, func() (NavigationData, error) {
		d, err := a.ctl.Home()
		return NavigationData{Decision: d}, err
	})
}

// GoBack 后退。
func (a *App) GoBack() api.Response[api.EmptyData] {
	return a.done(a.onUI(func() error { return a.ctl.GoBack() }))
}

// GoForward 前进。
func (a *App) GoForward() api.Response[api.EmptyData] {
	return a.done(a.onUI(func() error { return a.ctl.GoForward() }))
}

// Reload 刷新当前页面。
func (a *App) Reload() api.Response[api.EmptyData] {
	return a.done(a.onUI(func() error { return a.ctl.Reload() }))
}

// GetSecurityState 获取地址栏安全状态。
func (a *App) GetSecurityState() api.Response[SecurityData] {
	return respond(a, func() (SecurityData, error) {
		return SecurityData{Security: a.ctl.Security()}, nil
	})
}

// ---------- 标签页 ----------

// ListTabs 列出标签页。
func (a *App) ListTabs() api.Response[TabsData] {
	return respond(a, func() (TabsData, error) {
		return TabsData{Tabs: a.ctl.Tabs()}, nil
	})
}

// NewTab 新建并切换到标签页。
func (a *App) NewTab() api.Response[TabsData] {
	return respond(a, func() (TabsData, error) {
		a.ctl.NewTab(true)
		return TabsData{Tabs: a.ctl.Tabs()}, nil
	})
}

// SwitchTab 按位置切换标签页。
func (a *App) SwitchTab(index int) api.Response[TabsData] {
	return respond(a, func() (TabsData, error) {
		if index < 0 || index >= len(a.ctl.Tabs().Tabs) {
			return TabsData{}, domain.ErrTabNotFound
		}
		// 切换到当前标签为空操作
		a.ctl.SwitchTab(index)
		return TabsData{Tabs: a.ctl.Tabs()}, nil
	})
}

// CloseTab 关闭指定标签页。
func (a *App) CloseTab(id int64) api.Response[TabsData] {
	return respond(a, func() (TabsData, error) {
		if err := a.ctl.CloseTab(domain.TabID(id)); err != nil {
			return TabsData{}, err
		}
		return TabsData{Tabs: a.ctl.Tabs()}, nil
	})
}

// CloseActiveTab 关闭当前标签页。
func (a *App) CloseActiveTab() api.Response[TabsData] {
	return respond(a, func() (TabsData, error) {
		if err := a.ctl.CloseActiveTab(); err != nil {
			return TabsData{}, err
		}
		return TabsData{Tabs: a.ctl.Tabs()}, nil
	})
}

// ClearBrowsingData 清除浏览数据并回到单个主页标签。
func (a *App) ClearBrowsingData() api.Response[TabData] {
	resp := respond(a, func() (TabData, error) {
		return TabData{Tab: a.ctl.ClearBrowsingData()}, nil
	})
	if resp.Success && a.cdp != nil {
		if err := a.cdp.ClearData(); err != nil {
			a.log.Warn("清除浏览器缓存失败", "error", err)
		}
	}
	return resp
}

// ---------- 扫码登录 ----------

// StartQRLogin 处理扫码文本。
func (a *App) StartQRLogin(raw string) api.Response[QRData] {
	return respond(a, func() (QRData, error) {
		err := a.ctl.ScanQR(raw)
		return QRData{State: a.ctl.QRState()}, err
	})
}

// ConfirmQRLogin 确认登录。
func (a *App) ConfirmQRLogin() api.Response[QRData] {
	return respond(a, func() (QRData, error) {
		err := a.ctl.ConfirmQR()
		return QRData{State: a.ctl.QRState()}, err
	})
}

// CancelQRLogin 取消登录。
func (a *App) CancelQRLogin() api.Response[QRData] {
	return respond(a, func() (QRData, error) {
		err := a.ctl.CancelQR()
		return QRData{State: a.ctl.QRState()}, err
	})
}

// DismissQRLogin 关闭登录结果。
func (a *App) DismissQRLogin() api.Response[QRData] {
	return respond(a, func() (QRData, error) {
		err := a.ctl.DismissQR()
		return QRData{State: a.ctl.QRState()}, err
	})
}

// GetQRState 获取扫码登录状态。
func (a *App) GetQRState() api.Response[QRData] {
	return respond(a, func() (QRData, error) {
		return QRData{State: a.ctl.QRState()}, nil
	})
}

// ---------- 书签 ----------

// AddBookmark 添加书签。
func (a *App) AddBookmark(title, url string) api.Response[BookmarkData] {
	if a.bookmarkRepo == nil {
		code, msg := a.translateError(domain.ErrDatabaseNotInitialized)
		return api.Fail[BookmarkData](code, msg)
	}
	b, err := a.bookmarkRepo.Add(a.ctx, title, url)
	if err != nil {
		code, msg := a.translateError(err)
		return api.Fail[BookmarkData](code, msg)
	}
	return api.OK(BookmarkData{Bookmark: b})
}

// ListBookmarks 列出书签。
func (a *App) ListBookmarks() api.Response[BookmarkListData] {
	if a.bookmarkRepo == nil {
		code, msg := a.translateError(domain.ErrDatabaseNotInitialized)
		return api.Fail[BookmarkListData](code, msg)
	}
	list, err := a.bookmarkRepo.List(a.ctx)
	if err != nil {
		code, msg := a.translateError(err)
		return api.Fail[BookmarkListData](code, msg)
	}
	return api.OK(BookmarkListData{Bookmarks: list})
}

// DeleteBookmark 删除书签。
func (a *App) DeleteBookmark(id uint) api.Response[api.EmptyData] {
	if a.bookmarkRepo == nil {
		return a.done(domain.ErrDatabaseNotInitialized)
	}
	return a.done(a.bookmarkRepo.Remove(a.ctx, id))
}

// ClearBookmarks 清空书签。
func (a *App) ClearBookmarks() api.Response[api.EmptyData] {
	if a.bookmarkRepo == nil {
		return a.done(domain.ErrDatabaseNotInitialized)
	}
	return a.done(a.bookmarkRepo.Clear(a.ctx))
}

// ---------- 设置 ----------

// GetSettings 获取设置（带默认值）。
func (a *App) GetSettings() api.Response[SettingsData] {
	if a.settingsRepo == nil {
		code, msg := a.translateError(domain.ErrDatabaseNotInitialized)
		return api.Fail[SettingsData](code, msg)
	}
	s, err := a.settingsRepo.Load(a.ctx)
	if err != nil {
		code, msg := a.translateError(err)
		return api.Fail[SettingsData](code, msg)
	}
	return api.OK(SettingsData{Settings: s})
}

// SaveSettings 保存设置并应用主页与搜索引擎。
func (a *App) SaveSettings(s repo.Settings) api.Response[SettingsData] {
	if a.settingsRepo == nil {
		code, msg := a.translateError(domain.ErrDatabaseNotInitialized)
		return api.Fail[SettingsData](code, msg)
	}
	if s.HomeURL == "" || s.SearchURL == "" {
		code, msg := a.translateError(domain.ErrInvalidURL)
		return api.Fail[SettingsData](code, msg)
	}
	if err := a.settingsRepo.Save(a.ctx, s); err != nil {
		code, msg := a.translateError(err)
		return api.Fail[SettingsData](code, msg)
	}
	if err := a.applySettings(s); err != nil {
		code, msg := a.translateError(err)
		return api.Fail[SettingsData](code, msg)
	}
	return api.OK(SettingsData{Settings: s})
}

// ResetSettings 恢复默认设置。
func (a *App) ResetSettings() api.Response[SettingsData] {
	if a.settingsRepo == nil {
		code, msg := a.translateError(domain.ErrDatabaseNotInitialized)
		return api.Fail[SettingsData](code, msg)
	}
	d := config.GetDefaultSettings()
	return a.SaveSettings(repo.Settings{
		HomeURL:   a.cfg.Browser.HomeURL,
		SearchURL: a.cfg.Browser.SearchURL,
		Language:  d.Language,
		Theme:     d.Theme,
	})
}

func (a *App) applySettings(s repo.Settings) error {
	return a.onUI(func() error {
		a.ctl.SetHomeURL(s.HomeURL)
		a.ctl.SetSearchURL(s.SearchURL)
		return nil
	})
}

// ---------- 敲门历史 ----------

// QueryKnockHistory 查询敲门历史，status 取 success / failed / 空。
func (a *App) QueryKnockHistory(host, status string, startTime, endTime int64, offset, limit int) api.Response[KnockHistoryData] {
	if a.historyRepo == nil {
		code, msg := a.translateError(domain.ErrDatabaseNotInitialized)
		return api.Fail[KnockHistoryData](code, msg)
	}
	q := repo.KnockQuery{
		Host:      host,
		StartTime: startTime,
		EndTime:   endTime,
		Offset:    offset,
		Limit:     limit,
	}
	switch status {
	case "success":
		ok := true
		q.Success = &ok
	case "failed":
		ok := false
		q.Success = &ok
	}

	events, total, err := a.historyRepo.Query(a.ctx, q)
	if err != nil {
		code, msg := a.translateError(err)
		return api.Fail[KnockHistoryData](code, msg)
	}
	return api.OK(KnockHistoryData{Events: events, Total: total})
}

// CleanupKnockHistory 清理指定天数之前的敲门历史。
func (a *App) CleanupKnockHistory(retentionDays int) api.Response[CleanupData] {
	if a.historyRepo == nil {
		code, msg := a.translateError(domain.ErrDatabaseNotInitialized)
		return api.Fail[CleanupData](code, msg)
	}
	deleted, err := a.historyRepo.Cleanup(a.ctx, retentionDays)
	if err != nil {
		code, msg := a.translateError(err)
		return api.Fail[CleanupData](code, msg)
	}
	a.log.Info("已清理敲门历史", "retentionDays", retentionDays, "deletedCount", deleted)
	return api.OK(CleanupData{Deleted: deleted})
}

// ClearKnockHistory 清空敲门历史。
func (a *App) ClearKnockHistory() api.Response[api.EmptyData] {
	if a.historyRepo == nil {
		return a.done(domain.ErrDatabaseNotInitialized)
	}
	return a.done(a.historyRepo.ClearAll(a.ctx))
}

// ---------- 内核与浏览器 ----------

// GetCoreStatus 获取协议内核状态。
func (a *App) GetCoreStatus() api.Response[CoreStatusData] {
	data := CoreStatusData{State: string(a.rt.State())}
	if err := a.rt.Err(); err != nil {
		data.Error = err.Error()
	}
	return api.OK(data)
}

// RetryCoreInit 内核初始化失败后重试。
func (a *App) RetryCoreInit() api.Response[CoreStatusData] {
	if a.rt.State() == core.StateFailed || a.rt.State() == core.StateUninitialized {
		a.rt.Start(a.coreInit.WorkDir, a.coreInit.LogLevel, a.coreInit.Payload)
	}
	return a.GetCoreStatus()
}

// LaunchBrowser 启动浏览器并附加渲染器，已有实例时先关闭。
func (a *App) LaunchBrowser() api.Response[BrowserData] {
	if err := a.launchBrowser(); err != nil {
		code, msg := a.translateError(err)
		return api.Fail[BrowserData](code, msg)
	}
	return a.GetBrowserStatus()
}

func (a *App) launchBrowser() error {
	if a.cdp == nil {
		return domain.ErrRendererDetached
	}
	a.browserMu.Lock()
	defer a.browserMu.Unlock()

	if a.browser != nil {
		a.cdp.Detach()
		if err := a.browser.Stop(2 * time.Second); err != nil {
			a.log.Warn("关闭旧浏览器实例失败", "error", err)
		}
		a.browser = nil
	}

	b, err := browser.Start(a.ctx, browser.Options{
		ExecPath: a.cfg.Browser.ExecPath,
		Headless: a.cfg.Browser.Headless,
		Logger:   a.log.With("module", "browser"),
	})
	if err != nil {
		return err
	}
	if err := a.cdp.Attach(a.ctx, b.DevToolsURL, b.UserAgent); err != nil {
		_ = b.Stop(2 * time.Second)
		return err
	}
	a.browser = b
	a.log.Info("浏览器启动成功", "devToolsURL", b.DevToolsURL)

	// 打开当前标签页
	return a.onUI(func() error {
		snap := a.ctl.Tabs()
		target := snap.Tabs[snap.Active].URL
		if target == "" {
			_, err := a.ctl.Home()
			return err
		}
		_, err := a.ctl.Navigate(target)
		return err
	})
}

// CloseBrowser 关闭浏览器实例。
func (a *App) CloseBrowser() api.Response[api.EmptyData] {
	a.browserMu.Lock()
	defer a.browserMu.Unlock()
	if a.browser == nil {
		return a.done(domain.ErrBrowserNotRunning)
	}
	if a.cdp != nil {
		a.cdp.Detach()
	}
	err := a.browser.Stop(2 * time.Second)
	a.browser = nil
	return a.done(err)
}

// GetBrowserStatus 获取浏览器运行状态。
func (a *App) GetBrowserStatus() api.Response[BrowserData] {
	a.browserMu.Lock()
	defer a.browserMu.Unlock()
	if a.browser == nil {
		return api.OK(BrowserData{})
	}
	return api.OK(BrowserData{Running: true, DevToolsURL: a.browser.DevToolsURL})
}

// ---------- 其他 ----------

// GetVersion 获取应用版本号
func (a *App) GetVersion() api.Response[VersionData] {
	return api.OK(VersionData{Version: a.cfg.Version})
}

// GetDataDirectory 获取数据目录路径
func (a *App) GetDataDirectory() api.Response[SettingData] {
	dir, err := logger.GetDataDir()
	if err != nil {
		return api.Fail[SettingData]("GET_DATA_DIR_FAILED", "")
	}
	return api.OK(SettingData{Value: dir})
}

// GetLogDirectory 获取日志目录路径
func (a *App) GetLogDirectory() api.Response[SettingData] {
	dir, err := logger.GetLogDir()
	if err != nil {
		return api.Fail[SettingData]("GET_LOG_DIR_FAILED", "")
	}
	return api.OK(SettingData{Value: dir})
}

// OpenDirectory 用系统文件管理器打开目录
func (a *App) OpenDirectory(path string) api.Response[api.EmptyData] {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "windows":
		cmd = exec.Command("explorer", path)
	case "darwin":
		cmd = exec.Command("open", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	if err := cmd.Start(); err != nil {
		return api.Fail[api.EmptyData]("OPEN_DIRECTORY_FAILED", "")
	}
	return api.Done()
}
