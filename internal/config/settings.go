package config

// DefaultSettings 定义所有设置的默认值
type DefaultSettings struct {
	Language    string
	Theme       string
	HomeURL     string
	SearchURL   string
	DesktopMode string
}

// GetDefaultSettings 返回默认设置
func GetDefaultSettings() DefaultSettings {
	cfg := NewConfig()
	return DefaultSettings{
		Language:    "zh",
		Theme:       "system",
		HomeURL:     cfg.Browser.HomeURL,
		SearchURL:   cfg.Browser.SearchURL,
		DesktopMode: "false",
	}
}
