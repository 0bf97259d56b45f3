// Package ledger 记录经敲门成功访问过的精确 URL，用于前进后退时恢复保护状态
package ledger

import (
	"net/url"
	"strings"
)

// Ledger 受保护 URL 账本，只能在界面线程中访问。
// 记录与查询都先经过 Canonical，渲染器回报的规范形式与加载时的写法视为同一 URL。
type Ledger struct {
	urls map[string]struct{}
}

// New 创建空账本
func New() *Ledger {
	return &Ledger{urls: make(map[string]struct{})}
}

// Add 记录改写后的 URL
func (l *Ledger) Add(url string) {
	if url == "" {
		return
	}
	l.urls[Canonical(url)] = struct{}{}
}

// Contains 规范化后精确匹配
func (l *Ledger) Contains(url string) bool {
	if url == "" {
		return false
	}
	_, ok := l.urls[Canonical(url)]
	return ok
}

// Len 记录数
func (l *Ledger) Len() int { return len(l.urls) }

// Clear 清空账本，仅由清除浏览数据调用
func (l *Ledger) Clear() {
	l.urls = make(map[string]struct{})
}

// Canonical 返回浏览器内核回报的 URL 形式：协议与主机小写、去掉默认端口、空路径补 "/"。
// 路径、查询与片段原样保留；无法解析或不是分层 URL 时原样返回。
func Canonical(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" || u.Opaque != "" {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	switch port := u.Port(); {
	case port == "",
		u.Scheme == "https" && port == "443",
		u.Scheme == "http" && port == "80":
		u.Host = host
	default:
		u.Host = host + ":" + port
	}
	if u.Path == "" {
		u.Path = "/"
		u.RawPath = ""
	}
	return u.String()
}
