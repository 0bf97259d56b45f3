package deviceinfo

import (
	"os"
	"runtime"
	"strings"
)

var osNames = map[string]string{
	"windows": "Windows",
	"darwin":  "macOS",
	"linux":   "Linux",
}

// String 返回扫码校验时上报的设备描述，格式为 "<系统> <主机名>"
func String() string {
	host, _ := os.Hostname()
	return Format(runtime.GOOS, host)
}

// Format 按系统标识与主机名拼接设备描述
func Format(goos, hostname string) string {
	name, ok := osNames[goos]
	if !ok {
		name = goos
	}
	hostname = strings.TrimSpace(hostname)
	if hostname == "" {
		return name
	}
	return name + " " + hostname
}
