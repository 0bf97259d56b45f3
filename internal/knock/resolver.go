// Package knock 通过协议内核执行敲门并解析替换主机
package knock

import (
	"errors"
	"fmt"

	"nhpbrowser/internal/core"
	"nhpbrowser/internal/logger"
	"nhpbrowser/pkg/domain"

	"golang.org/x/sync/singleflight"
)

// 合成的错误码
const (
	CodeCoreError    = "CORE_ERROR"
	CodeCoreNotReady = "CORE_NOT_READY"
	CodeEmptyHost    = "EMPTY_RESOLVED_HOST"
)

// Core 敲门所需的内核能力
type Core interface {
	DeriveResourceID(host string) (string, error)
	Knock(resourceID string) (core.KnockResult, error)
}

// Resolver 敲门解析器，不缓存结果，不自动重试
type Resolver struct {
	core     Core
	log      logger.Logger
	coalesce bool
	group    singleflight.Group
}

// Option 解析器选项
type Option func(*Resolver)

// WithCoalesce 合并同一主机的并发敲门
func WithCoalesce(on bool) Option {
	return func(r *Resolver) { r.coalesce = on }
}

// New 创建敲门解析器
func New(c Core, log logger.Logger, opts ...Option) *Resolver {
	if log == nil {
		log = logger.NewNop()
	}
	r := &Resolver{core: c, log: log}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve 对主机执行敲门，会阻塞调用方，只能在后台任务中调用
func (r *Resolver) Resolve(host string) domain.KnockOutcome {
	if !r.coalesce {
		return r.resolve(host)
	}
	v, _, shared := r.group.Do(host, func() (any, error) {
		return r.resolve(host), nil
	})
	if shared {
		r.log.Debug("复用在途敲门结果", "host", host)
	}
	return v.(domain.KnockOutcome)
}

func (r *Resolver) resolve(host string) domain.KnockOutcome {
	resourceID, err := r.core.DeriveResourceID(host)
	if err != nil {
		return r.failure(host, err)
	}

	res, err := r.core.Knock(resourceID)
	if err != nil {
		return r.failure(host, err)
	}

	outcome := Evaluate(res)
	if outcome.Success {
		r.log.Info("敲门成功", "host", host, "resourceId", resourceID, "resolvedHost", outcome.ResolvedHost, "openTime", outcome.OpenTime)
	} else {
		r.log.Warn("敲门失败", "host", host, "resourceId", resourceID, "errCode", outcome.ErrorCode, "errMsg", outcome.ErrorMessage)
	}
	return outcome
}

func (r *Resolver) failure(host string, err error) domain.KnockOutcome {
	code := CodeCoreError
	if errors.Is(err, domain.ErrCoreNotReady) {
		code = CodeCoreNotReady
	}
	r.log.Err(err, "敲门调用内核失败", "host", host)
	return domain.KnockOutcome{ErrorCode: code, ErrorMessage: err.Error()}
}

// Evaluate 将内核原始结果转换为敲门结果：
// 错误码为空或为 "0" 且映射非空时成功，取映射中第一项的主机
func Evaluate(res core.KnockResult) domain.KnockOutcome {
	out := domain.KnockOutcome{
		ErrorCode:    res.ErrCode,
		ErrorMessage: res.ErrMsg,
		OpenTime:     res.OpenTime,
	}
	if res.ErrCode != "" && res.ErrCode != domain.SuccessCode {
		return out
	}
	if len(res.ResolvedHosts) == 0 {
		if out.ErrorMessage == "" {
			out.ErrorMessage = "no resolved host returned"
		}
		return out
	}
	first := res.ResolvedHosts[0]
	if first.Host == "" {
		out.ErrorCode = CodeEmptyHost
		out.ErrorMessage = fmt.Sprintf("empty resolved host for %q", first.Name)
		return out
	}
	out.Success = true
	out.ResolvedHost = first.Host
	return out
}
