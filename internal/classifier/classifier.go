// Package classifier 判断主机名是否受敲门协议保护
package classifier

import (
	"strings"

	"nhpbrowser/internal/logger"
)

// DomainTester 内核的域名判断能力
type DomainTester interface {
	IsProtectedDomain(host string) (bool, error)
}

// Classifier 域名分类器，内核不可用时按保留后缀降级判断
type Classifier struct {
	core   DomainTester
	suffix string
	log    logger.Logger
}

// New 创建分类器，suffix 为降级时使用的保留后缀（如 ".nhp"）
func New(core DomainTester, suffix string, log logger.Logger) *Classifier {
	if log == nil {
		log = logger.NewNop()
	}
	suffix = strings.ToLower(suffix)
	if suffix != "" && !strings.HasPrefix(suffix, ".") {
		suffix = "." + suffix
	}
	return &Classifier{core: core, suffix: suffix, log: log}
}

// IsProtected 主机是否受保护，无副作用
func (c *Classifier) IsProtected(host string) bool {
	if host == "" {
		return false
	}
	if c.core != nil {
		ok, err := c.core.IsProtectedDomain(host)
		if err == nil {
			return ok
		}
		c.log.Debug("内核域名判断不可用，使用后缀降级判断", "host", host, "error", err.Error())
	}
	return c.HasReservedSuffix(host)
}

// HasReservedSuffix 语法层面的后缀判断
func (c *Classifier) HasReservedSuffix(host string) bool {
	if c.suffix == "" {
		return false
	}
	h := strings.TrimSuffix(strings.ToLower(host), ".")
	return strings.HasSuffix(h, c.suffix)
}
