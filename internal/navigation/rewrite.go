package navigation

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"nhpbrowser/pkg/domain"
)

// HostOf 提取 URL 的主机名，解析失败或无主机时返回空
func HostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// RewriteHost 只替换 URL authority 中的主机名，端口、用户信息、路径、查询与片段逐字节保留
func RewriteHost(raw, newHost string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidURL, err)
	}
	host := u.Hostname()
	if host == "" || newHost == "" {
		return "", fmt.Errorf("%w: missing host in %q", domain.ErrInvalidURL, raw)
	}

	sep := strings.Index(raw, "//")
	if sep < 0 {
		return "", fmt.Errorf("%w: no authority in %q", domain.ErrInvalidURL, raw)
	}
	authStart := sep + 2
	authEnd := len(raw)
	if i := strings.IndexAny(raw[authStart:], "/?#"); i >= 0 {
		authEnd = authStart + i
	}
	authority := raw[authStart:authEnd]

	hostStart := 0
	if at := strings.LastIndex(authority, "@"); at >= 0 {
		hostStart = at + 1
	}
	hostPort := authority[hostStart:]

	hostEnd := len(hostPort)
	if strings.HasPrefix(hostPort, "[") {
		if i := strings.Index(hostPort, "]"); i >= 0 {
			hostEnd = i + 1
		}
	} else if i := strings.LastIndex(hostPort, ":"); i >= 0 {
		hostEnd = i
	}

	current := strings.Trim(hostPort[:hostEnd], "[]")
	if !strings.EqualFold(current, host) {
		return "", fmt.Errorf("%w: host %q not found in authority", domain.ErrInvalidURL, host)
	}

	replacement := newHost
	if ip := net.ParseIP(newHost); ip != nil && ip.To4() == nil {
		replacement = "[" + newHost + "]"
	}

	absStart := authStart + hostStart
	return raw[:absStart] + replacement + raw[absStart+hostEnd:], nil
}
