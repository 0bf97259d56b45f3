// Package qrlogin 实现扫码登录握手：解析 → 通知 → 确认 → 生成一次性验证码 → 校验
package qrlogin

import (
	"fmt"
	"net/url"
	"strings"

	"nhpbrowser/internal/core"
	"nhpbrowser/internal/logger"
	"nhpbrowser/pkg/domain"
	"nhpbrowser/pkg/errx"

	"github.com/google/uuid"
)

// 提示文本
const (
	MsgInvalidQR    = "invalid QR code"
	MsgTOTPFailed   = "failed to generate OTP code"
	MsgVerifyFailed = "authentication failed"
	MsgLoggedIn     = "login successful"
)

// Core 握手所需的内核能力
type Core interface {
	ParseQRPayload(raw string) (core.QRParseResult, error)
	GenerateTOTP(seed string) (core.TOTPResult, error)
	NotifyScan(serverURL, sessionID, appID, resourceID string) (core.Ack, error)
	Verify(req core.VerifyRequest) (core.Ack, error)
}

// Runner 后台任务执行
type Runner interface {
	Submit(name string, fn func()) bool
}

// Poster 界面线程投递
type Poster interface {
	Post(fn func()) bool
}

// Sink 阶段变化输出
type Sink interface {
	QRPhaseChanged(state domain.QRState)
}

// Options 控制器配置
type Options struct {
	Core   Core
	Runner Runner
	UI     Poster
	Sink   Sink
	Logger logger.Logger

	Scheme            string // 二维码前缀，如 "nhp://scan?"
	DefaultAppID      string
	DefaultResourceID string
	FallbackServer    string
	DeviceInfo        string
}

// Controller 扫码登录状态机，除后台任务外所有方法都在界面线程中调用
type Controller struct {
	opts  Options
	log   logger.Logger
	state domain.QRState
	raw   string // 原始二维码文本，校验时重新解析
}

// New 创建控制器
func New(opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Scheme == "" {
		opts.Scheme = "nhp://scan?"
	}
	if opts.DefaultAppID == "" {
		opts.DefaultAppID = "example"
	}
	if opts.DefaultResourceID == "" {
		opts.DefaultResourceID = "demo"
	}
	return &Controller{
		opts:  opts,
		log:   opts.Logger,
		state: domain.QRState{Phase: domain.QRIdle},
	}
}

// State 当前状态快照
func (c *Controller) State() domain.QRState {
	s := c.state
	if s.Payload != nil {
		p := *s.Payload
		s.Payload = &p
	}
	return s
}

// SetDeviceInfo 设置校验时上报的设备描述
func (c *Controller) SetDeviceInfo(info string) { c.opts.DeviceInfo = info }

// Scan 处理扫码结果，前缀不符时保持空闲并返回解析错误
func (c *Controller) Scan(raw string) error {
	raw = strings.TrimSpace(raw)
	if c.state.Phase == domain.QRVerifying {
		return errx.Wrap(errx.CodeInvariantViolation, domain.ErrHandshakeBusy, "verification in progress")
	}
	if !strings.HasPrefix(raw, c.opts.Scheme) {
		c.log.Warn("二维码格式不符", "prefix", c.opts.Scheme)
		c.reset(domain.QRState{Phase: domain.QRIdle, Message: MsgInvalidQR})
		return errx.Wrap(errx.CodeParseFailed, domain.ErrQRParseFailed, MsgInvalidQR)
	}

	scanID := uuid.NewString()
	c.raw = raw
	c.transition(domain.QRState{Phase: domain.QRIdle, ScanID: scanID, CanCancel: true})
	c.log.Info("开始解析二维码", "scanId", scanID)

	c.background(scanID, "qr.parse", func() func() {
		payload, err := c.decode(raw)
		return func() { c.onDecoded(scanID, payload, err) }
	})
	return nil
}

// decode 通过内核解析并补齐默认值，后台调用
func (c *Controller) decode(raw string) (*domain.QRPayload, error) {
	res, err := c.opts.Core.ParseQRPayload(raw)
	if err != nil {
		return nil, errx.Wrap(errx.CodeParseFailed, fmt.Errorf("%w: %w", domain.ErrQRParseFailed, err), MsgInvalidQR)
	}
	if !res.Success {
		msg := res.ErrMsg
		if msg == "" {
			msg = MsgInvalidQR
		}
		return nil, errx.Wrap(errx.CodeParseFailed, domain.ErrQRParseFailed, msg)
	}

	p := &domain.QRPayload{
		Token:      res.Token,
		OTPSeed:    res.OTPSeed,
		ServerURL:  res.ServerURL,
		AppID:      res.AppID,
		ResourceID: res.ResourceID,
		SessionID:  res.SessionID,
	}
	if p.ServerURL == "" {
		p.ServerURL = ExtractServerURL(raw, c.opts.Scheme)
	}
	if p.ServerURL == "" {
		p.ServerURL = c.opts.FallbackServer
	}
	if p.AppID == "" {
		p.AppID = c.opts.DefaultAppID
	}
	if p.ResourceID == "" {
		p.ResourceID = c.opts.DefaultResourceID
	}
	return p, nil
}

func (c *Controller) onDecoded(scanID string, p *domain.QRPayload, err error) {
	if !c.current(scanID) {
		return
	}
	if err != nil {
		c.log.Err(err, "二维码解析失败", "scanId", scanID)
		c.reset(domain.QRState{Phase: domain.QRIdle, Message: errx.MessageOf(err)})
		return
	}

	c.transition(domain.QRState{Phase: domain.QRDecoded, ScanID: scanID, Payload: p, CanCancel: true})

	if p.ServerURL == "" || p.SessionID == "" {
		c.onNotified(scanID, nil)
		return
	}
	c.background(scanID, "qr.notify", func() func() {
		ack, err := c.opts.Core.NotifyScan(p.ServerURL, p.SessionID, p.AppID, p.ResourceID)
		if err == nil && !ack.Success {
			err = fmt.Errorf("%w: %s", domain.ErrNotifyFailed, ack.ErrMsg)
		}
		return func() { c.onNotified(scanID, err) }
	})
}

// onNotified 通知失败只记录日志，握手照常继续
func (c *Controller) onNotified(scanID string, err error) {
	if !c.current(scanID) {
		return
	}
	if err != nil {
		c.log.Warn("扫码通知失败，继续登录流程", "scanId", scanID, "error", err.Error())
	}
	p := c.state.Payload
	c.transition(domain.QRState{Phase: domain.QRNotified, ScanID: scanID, Payload: p, CanCancel: true})
	c.transition(domain.QRState{Phase: domain.QRAwaitingConfirmation, ScanID: scanID, Payload: p, CanConfirm: true, CanCancel: true})
}

// Confirm 用户确认登录；校验进行中时为空操作
func (c *Controller) Confirm() error {
	switch c.state.Phase {
	case domain.QRVerifying:
		c.log.Debug("校验进行中，忽略重复确认", "scanId", c.state.ScanID)
		return nil
	case domain.QRAwaitingConfirmation, domain.QRFailed:
	default:
		return domain.ErrNoPendingScan
	}
	if c.state.Payload == nil || c.raw == "" {
		return domain.ErrNoPendingScan
	}

	scanID := c.state.ScanID
	raw := c.raw
	device := c.opts.DeviceInfo
	verifyURL := VerifyURL(c.state.Payload.ServerURL, c.state.Payload.AppID, c.state.Payload.ResourceID)
	c.transition(domain.QRState{Phase: domain.QRVerifying, ScanID: scanID, Payload: c.state.Payload, VerifyURL: verifyURL})

	c.background(scanID, "qr.verify", func() func() {
		err := c.verify(raw, device)
		return func() { c.onVerified(scanID, err) }
	})
	return nil
}

// verify 重新解析原始文本、生成验证码并提交校验，后台调用
func (c *Controller) verify(raw, device string) error {
	p, err := c.decode(raw)
	if err != nil {
		return err
	}

	totp, err := c.opts.Core.GenerateTOTP(p.OTPSeed)
	if err != nil {
		return errx.Wrap(errx.CodeTOTPFailed, fmt.Errorf("%w: %w", domain.ErrTOTPFailed, err), MsgTOTPFailed)
	}
	if !totp.Success || totp.Code == "" {
		return errx.Wrap(errx.CodeTOTPFailed, domain.ErrTOTPFailed, MsgTOTPFailed)
	}

	c.log.Info("提交扫码登录校验", "url", VerifyURL(p.ServerURL, p.AppID, p.ResourceID), "device", device)
	ack, err := c.opts.Core.Verify(core.VerifyRequest{
		ServerURL:  p.ServerURL,
		Token:      p.Token,
		OTPCode:    totp.Code,
		DeviceInfo: device,
		AppID:      p.AppID,
		ResourceID: p.ResourceID,
	})
	if err != nil {
		return errx.Wrap(errx.CodeVerifyFailed, fmt.Errorf("%w: %w", domain.ErrVerifyFailed, err), MsgVerifyFailed)
	}
	if !ack.Success {
		msg := ack.ErrMsg
		if msg == "" {
			msg = MsgVerifyFailed
		}
		return errx.Wrap(errx.CodeVerifyFailed, domain.ErrVerifyFailed, msg)
	}
	return nil
}

func (c *Controller) onVerified(scanID string, err error) {
	if !c.current(scanID) {
		return
	}
	p := c.state.Payload
	verifyURL := c.state.VerifyURL
	if err != nil {
		c.log.Err(err, "扫码登录校验失败", "scanId", scanID)
		c.transition(domain.QRState{
			Phase:      domain.QRFailed,
			ScanID:     scanID,
			Payload:    p,
			Message:    errx.MessageOf(err),
			VerifyURL:  verifyURL,
			CanConfirm: true,
			CanCancel:  true,
		})
		return
	}
	c.log.Info("扫码登录成功", "scanId", scanID)
	c.transition(domain.QRState{
		Phase:      domain.QRSuccess,
		ScanID:     scanID,
		Payload:    p,
		Message:    MsgLoggedIn,
		VerifyURL:  verifyURL,
		CanDismiss: true,
	})
}

// Cancel 取消握手回到空闲；校验开始后不可取消
func (c *Controller) Cancel() error {
	switch c.state.Phase {
	case domain.QRVerifying:
		return errx.Wrap(errx.CodeInvariantViolation, domain.ErrHandshakeBusy, "verification cannot be cancelled")
	case domain.QRIdle:
		if c.state.ScanID == "" {
			return nil
		}
	case domain.QRSuccess, domain.QRCancelled:
		return c.Dismiss()
	}
	c.log.Info("取消扫码登录", "scanId", c.state.ScanID)
	c.transition(domain.QRState{Phase: domain.QRCancelled, ScanID: c.state.ScanID})
	c.reset(domain.QRState{Phase: domain.QRIdle})
	return nil
}

// Dismiss 关闭终态界面回到空闲
func (c *Controller) Dismiss() error {
	if c.state.Phase == domain.QRVerifying {
		return errx.Wrap(errx.CodeInvariantViolation, domain.ErrHandshakeBusy, "verification in progress")
	}
	c.reset(domain.QRState{Phase: domain.QRIdle})
	return nil
}

// reset 丢弃扫码会话
func (c *Controller) reset(s domain.QRState) {
	c.raw = ""
	c.transition(s)
}

func (c *Controller) transition(s domain.QRState) {
	c.state = s
	if c.opts.Sink != nil {
		c.opts.Sink.QRPhaseChanged(c.State())
	}
}

// current 结果是否仍属于当前扫码会话
func (c *Controller) current(scanID string) bool {
	if c.state.ScanID != scanID {
		c.log.Debug("丢弃过时的扫码结果", "scanId", scanID, "current", c.state.ScanID)
		return false
	}
	return true
}

// background 在后台执行 work，其返回的函数投递回界面线程
func (c *Controller) background(scanID, name string, work func() func()) {
	ok := c.opts.Runner.Submit(name, func() {
		apply := work()
		c.opts.UI.Post(apply)
	})
	if !ok {
		c.log.Warn("后台任务提交失败", "task", name, "scanId", scanID)
		c.reset(domain.QRState{Phase: domain.QRIdle, Message: "too many pending requests"})
	}
}

// VerifyURL 校验地址：<server>/plugins/<appId>?resid=<resourceId>&action=verify
func VerifyURL(server, appID, resourceID string) string {
	return fmt.Sprintf("%s/plugins/%s?resid=%s&action=verify",
		strings.TrimSuffix(server, "/"), url.PathEscape(appID), url.QueryEscape(resourceID))
}

// ExtractServerURL 内核结果缺少服务器地址时，从原始文本的查询串中恢复
func ExtractServerURL(raw, scheme string) string {
	query := raw
	if strings.HasPrefix(raw, scheme) {
		query = strings.TrimPrefix(raw, scheme)
	} else if _, q, ok := strings.Cut(raw, "?"); ok {
		query = q
	}

	values, _ := url.ParseQuery(query)
	if s := values.Get("server"); s != "" {
		return s
	}
	// 无法解码的参数按原文返回
	for _, pair := range strings.Split(query, "&") {
		if k, v, ok := strings.Cut(pair, "="); ok && k == "server" {
			return v
		}
	}
	return ""
}
