package core

import (
	"context"
	"fmt"
	"sync"

	"nhpbrowser/internal/logger"
	"nhpbrowser/pkg/domain"
)

// State 内核生命周期状态
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateReady         State = "ready"
	StateFailed        State = "failed"
)

// Runtime 协议内核的单例守护：一次性初始化，未就绪时所有调用快速失败
type Runtime struct {
	core Core
	log  logger.Logger

	mu    sync.Mutex
	state State
	err   error
	done  chan struct{} // 当前初始化尝试结束时关闭
}

var _ Core = (*Runtime)(nil)

// NewRuntime 创建内核运行时
func NewRuntime(c Core, log logger.Logger) *Runtime {
	if log == nil {
		log = logger.NewNop()
	}
	return &Runtime{core: c, log: log, state: StateUninitialized}
}

// State 返回当前生命周期状态
func (r *Runtime) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Err 返回最近一次初始化失败的原因
func (r *Runtime) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Ready 内核是否可用
func (r *Runtime) Ready() bool { return r.State() == StateReady }

// Start 在后台执行初始化，立即返回
func (r *Runtime) Start(workDir string, logLevel int, configJSON string) {
	go func() {
		_ = r.Init(workDir, logLevel, configJSON)
	}()
}

// Init 同步初始化；已就绪时直接返回，初始化进行中时等待其结束，失败后允许重试
func (r *Runtime) Init(workDir string, logLevel int, configJSON string) error {
	r.mu.Lock()
	switch r.state {
	case StateReady:
		r.mu.Unlock()
		return nil
	case StateInitializing:
		done := r.done
		r.mu.Unlock()
		<-done
		return r.Err()
	}
	r.state = StateInitializing
	r.err = nil
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()

	r.log.Info("开始初始化协议内核", "workDir", workDir, "logLevel", logLevel)
	err := r.core.Init(workDir, logLevel, configJSON)

	r.mu.Lock()
	if err != nil {
		r.state = StateFailed
		r.err = fmt.Errorf("%w: %w", domain.ErrCoreInitFailed, err)
		err = r.err
	} else {
		r.state = StateReady
	}
	close(done)
	r.mu.Unlock()

	if err != nil {
		r.log.Err(err, "协议内核初始化失败，导航将降级运行")
		return err
	}
	r.log.Info("协议内核初始化完成")
	return nil
}

// Wait 等待当前初始化尝试结束
func (r *Runtime) Wait(ctx context.Context) error {
	r.mu.Lock()
	state, done := r.state, r.done
	r.mu.Unlock()

	switch state {
	case StateReady:
		return nil
	case StateUninitialized:
		return domain.ErrCoreNotReady
	case StateFailed:
		return r.Err()
	}

	select {
	case <-done:
		return r.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ready 检查内核是否就绪
func (r *Runtime) ready() error {
	if r.State() != StateReady {
		return domain.ErrCoreNotReady
	}
	return nil
}

func (r *Runtime) IsProtectedDomain(host string) (bool, error) {
	if err := r.ready(); err != nil {
		return false, err
	}
	return r.core.IsProtectedDomain(host)
}

func (r *Runtime) DeriveResourceID(host string) (string, error) {
	if err := r.ready(); err != nil {
		return "", err
	}
	return r.core.DeriveResourceID(host)
}

func (r *Runtime) Knock(resourceID string) (KnockResult, error) {
	if err := r.ready(); err != nil {
		return KnockResult{}, err
	}
	return r.core.Knock(resourceID)
}

func (r *Runtime) ParseQRPayload(raw string) (QRParseResult, error) {
	if err := r.ready(); err != nil {
		return QRParseResult{}, err
	}
	return r.core.ParseQRPayload(raw)
}

func (r *Runtime) GenerateTOTP(seed string) (TOTPResult, error) {
	if err := r.ready(); err != nil {
		return TOTPResult{}, err
	}
	return r.core.GenerateTOTP(seed)
}

func (r *Runtime) NotifyScan(serverURL, sessionID, appID, resourceID string) (Ack, error) {
	if err := r.ready(); err != nil {
		return Ack{}, err
	}
	return r.core.NotifyScan(serverURL, sessionID, appID, resourceID)
}

func (r *Runtime) Verify(req VerifyRequest) (Ack, error) {
	if err := r.ready(); err != nil {
		return Ack{}, err
	}
	return r.core.Verify(req)
}

// IsInitialized 仅在运行时就绪且内核自身报告已初始化时为真
func (r *Runtime) IsInitialized() bool {
	return r.Ready() && r.core.IsInitialized()
}

// Shutdown 释放内核，状态回到未初始化
func (r *Runtime) Shutdown() {
	r.mu.Lock()
	wasReady := r.state == StateReady
	r.state = StateUninitialized
	r.err = nil
	r.mu.Unlock()

	if wasReady {
		r.core.Shutdown()
		r.log.Info("协议内核已关闭")
	}
}
