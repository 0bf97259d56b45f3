package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"nhpbrowser/pkg/domain"

	"github.com/tidwall/sjson"
)

// DefaultServerPort NHP 服务端默认端口
const DefaultServerPort = 62206

// CoreConfig 协议内核配置文档（agent / servers / resources）
type CoreConfig struct {
	Agent     AgentConfig      `json:"agent"`
	Servers   []ServerConfig   `json:"servers"`
	Resources []ResourceConfig `json:"resources"`
}

// AgentConfig 客户端身份
type AgentConfig struct {
	PrivateKeyBase64 string `json:"privateKeyBase64"`
	UserID           string `json:"userId"`
	OrganizationID   string `json:"organizationId"`
	CipherScheme     int    `json:"cipherScheme"`
}

// ServerConfig 敲门服务器
type ServerConfig struct {
	Hostname     string `json:"hostname"`
	IP           string `json:"ip"`
	Port         int    `json:"port"`
	PubKeyBase64 string `json:"pubKeyBase64"`
	ExpireTime   int64  `json:"expireTime"`
}

// ResourceConfig 受保护资源
type ResourceConfig struct {
	AuthServiceID  string `json:"authServiceId"`
	ResourceID     string `json:"resourceId"`
	ServerIP       string `json:"serverIp"`
	ServerHostname string `json:"serverHostname"`
	ServerPort     int    `json:"serverPort"`
}

// LoadCoreConfig 读取并校验内核配置文档
func LoadCoreConfig(path string) (*CoreConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigNotFound, err)
	}
	return ParseCoreConfig(data)
}

// ParseCoreConfig 解析内核配置文档
func ParseCoreConfig(data []byte) (*CoreConfig, error) {
	var cc CoreConfig
	if err := json.Unmarshal(data, &cc); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}
	if err := cc.Validate(); err != nil {
		return nil, err
	}
	return &cc, nil
}

// Validate 校验服务器与资源条目
func (c *CoreConfig) Validate() error {
	for i, s := range c.Servers {
		if s.Hostname == "" && s.IP == "" {
			return fmt.Errorf("%w: servers[%d] needs hostname or ip", domain.ErrInvalidConfig, i)
		}
		if s.PubKeyBase64 == "" {
			return fmt.Errorf("%w: servers[%d] missing pubKeyBase64", domain.ErrInvalidConfig, i)
		}
	}
	seen := make(map[string]struct{}, len(c.Resources))
	for i, r := range c.Resources {
		if r.ResourceID == "" {
			return fmt.Errorf("%w: resources[%d] missing resourceId", domain.ErrInvalidConfig, i)
		}
		if _, dup := seen[r.ResourceID]; dup {
			return fmt.Errorf("%w: duplicate resourceId %q", domain.ErrInvalidConfig, r.ResourceID)
		}
		seen[r.ResourceID] = struct{}{}
	}
	return nil
}

// BuildInitPayload 将配置逐项映射为内核 init 所需的 JSON，并补齐默认值
func (c *CoreConfig) BuildInitPayload() (string, error) {
	userID := c.Agent.UserID
	if userID == "" {
		userID = "mobile-user"
	}
	scheme := c.Agent.CipherScheme
	if scheme == 0 {
		scheme = 1
	}

	var err error
	payload := `{"agent":{},"servers":[],"resources":[]}`
	set := func(path string, v any) {
		if err != nil {
			return
		}
		payload, err = sjson.Set(payload, path, v)
	}

	set("agent.privateKeyBase64", c.Agent.PrivateKeyBase64)
	set("agent.userId", userID)
	set("agent.organizationId", c.Agent.OrganizationID)
	set("agent.cipherScheme", scheme)

	for i, s := range c.Servers {
		port := s.Port
		if port == 0 {
			port = DefaultServerPort
		}
		p := "servers." + strconv.Itoa(i)
		set(p+".hostname", s.Hostname)
		set(p+".ip", s.IP)
		set(p+".port", port)
		set(p+".pubKeyBase64", s.PubKeyBase64)
		set(p+".expireTime", s.ExpireTime)
	}

	for i, r := range c.Resources {
		port := r.ServerPort
		if port == 0 {
			port = DefaultServerPort
		}
		p := "resources." + strconv.Itoa(i)
		set(p+".authServiceId", r.AuthServiceID)
		set(p+".resourceId", r.ResourceID)
		set(p+".serverIp", r.ServerIP)
		set(p+".serverHostname", r.ServerHostname)
		set(p+".serverPort", port)
	}

	if err != nil {
		return "", fmt.Errorf("构建内核初始化参数失败: %w", err)
	}
	return payload, nil
}
