package model

import (
	"time"
)

// Setting 用户设置表
type Setting struct {
	Key       string    `gorm:"primaryKey" json:"key"`  // 设置键
	Value     string    `gorm:"type:text" json:"value"` // 设置值
	UpdatedAt time.Time `json:"updatedAt"`              // 更新时间
}

// 预定义的设置 Key
const (
	SettingKeyHomeURL     = "home_url"     // 主页
	SettingKeySearchURL   = "search_url"   // 搜索引擎前缀
	SettingKeyLanguage    = "language"     // 界面语言
	SettingKeyTheme       = "theme"        // 主题
	SettingKeyDesktopMode = "desktop_mode" // 桌面版网页
)

// Bookmark 书签表，URL 唯一
type Bookmark struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Title     string    `json:"title"`
	URL       string    `gorm:"uniqueIndex;not null" json:"url"`
	CreatedAt time.Time `json:"createdAt"`
}

// KnockEventRecord 敲门历史记录表，仅用于审计展示
type KnockEventRecord struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	TabID        int64     `gorm:"index" json:"tabId"`
	Host         string    `gorm:"index" json:"host"`
	ResolvedHost string    `json:"resolvedHost"`
	URL          string    `json:"url"`
	Success      bool      `gorm:"index" json:"success"`
	ErrorCode    string    `json:"errorCode"`
	ErrorMessage string    `gorm:"type:text" json:"errorMessage"`
	Timestamp    int64     `gorm:"index" json:"timestamp"`
	CreatedAt    time.Time `json:"createdAt"`
}

// All 返回需要迁移的全部模型
func All() []any {
	return []any{&Setting{}, &Bookmark{}, &KnockEventRecord{}}
}
