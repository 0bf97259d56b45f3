package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config 配置文件结构体
type Config struct {
	Version string `yaml:"version"`
	Sqlite  struct {
		Db     string `yaml:"db"`
		Prefix string `yaml:"prefix"`
	} `yaml:"sqlite"`
	Log struct {
		Level  string   `yaml:"level"`
		Writer []string `yaml:"writer"`
	} `yaml:"log"`
	Browser BrowserConfig `yaml:"browser"`
	Core    CoreSection   `yaml:"core"`
	Knock   struct {
		// Coalesce 为 true 时同一主机的并发敲门合并为一次
		Coalesce bool `yaml:"coalesce"`
	} `yaml:"knock"`
	QR      QRConfig `yaml:"qr"`
	Workers struct {
		Size  int `yaml:"size"`
		Queue int `yaml:"queue"`
	} `yaml:"workers"`
}

// BrowserConfig 浏览器外壳配置
type BrowserConfig struct {
	HomeURL         string `yaml:"homeURL"`
	SearchURL       string `yaml:"searchURL"`
	UserAgentSuffix string `yaml:"userAgentSuffix"`
	ExecPath        string `yaml:"execPath"`
	Headless        bool   `yaml:"headless"`
}

// CoreSection 协议内核初始化参数
type CoreSection struct {
	WorkDir        string `yaml:"workDir"`
	LogLevel       int    `yaml:"logLevel"`
	ConfigFile     string `yaml:"configFile"`     // agent/servers/resources JSON 文件
	ReservedSuffix string `yaml:"reservedSuffix"` // 内核不可用时的域名后缀兜底判断
}

// QRConfig 扫码登录配置
type QRConfig struct {
	Scheme            string `yaml:"scheme"`
	DefaultAppID      string `yaml:"defaultAppID"`
	DefaultResourceID string `yaml:"defaultResourceID"`
	FallbackServer    string `yaml:"fallbackServer"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	cfg := &Config{Version: "1.0.0"}
	cfg.Sqlite.Db = "data.db"
	cfg.Sqlite.Prefix = "nhpbrowser_"
	cfg.Log.Level = "debug"
	// file需要在console之前，因为打包后控制台日志无法写入会影响文件日志
	cfg.Log.Writer = []string{"file", "console"}
	cfg.Browser = BrowserConfig{
		HomeURL:         "https://www.baidu.com",
		SearchURL:       "https://www.baidu.com/s?wd=",
		UserAgentSuffix: " StealthDNS/1.0",
	}
	cfg.Core = CoreSection{
		WorkDir:        "",
		LogLevel:       4,
		ConfigFile:     "resources.json",
		ReservedSuffix: ".nhp",
	}
	cfg.QR = QRConfig{
		Scheme:            "nhp://scan?",
		DefaultAppID:      "example",
		DefaultResourceID: "demo",
		FallbackServer:    "https://nhp.opennhp.org",
	}
	cfg.Workers.Size = 4
	cfg.Workers.Queue = 64
	return cfg
}

// Load 读取 YAML 配置文件并覆盖默认值，文件不存在时返回默认配置
func Load(path string) (*Config, error) {
	cfg := NewConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置必填项
func (c *Config) Validate() error {
	if c.Browser.HomeURL == "" {
		return errors.New("config: browser.homeURL is required")
	}
	if c.QR.Scheme == "" {
		return errors.New("config: qr.scheme is required")
	}
	if c.Core.ReservedSuffix == "" {
		return errors.New("config: core.reservedSuffix is required")
	}
	return nil
}
